package openai

import (
	"context"
	"errors"
	"testing"

	"db-agent-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeGenerator struct {
	messages []llms.MessageContent
	opts     llms.CallOptions
	resp     *llms.ContentResponse
	err      error
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, o := range options {
		o(&f.opts)
	}
	return f.resp, f.err
}

func TestChatMapsRolesAndOptions(t *testing.T) {
	gen := &fakeGenerator{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "hello"}}}}
	p := &Provider{model: gen, modelName: "gpt-4o-mini"}

	out, err := p.Chat(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "be brief"},
		{Role: llm.RoleAssistant, Content: "ok"},
		{Role: llm.RoleUser, Content: "hi"},
	}, llm.WithJSON(), llm.WithMaxTokens(64))

	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	require.Len(t, gen.messages, 3)
	assert.Equal(t, llms.ChatMessageTypeSystem, gen.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, gen.messages[1].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, gen.messages[2].Role)
	assert.Equal(t, "gpt-4o-mini", gen.opts.Model)
	assert.Equal(t, 64, gen.opts.MaxTokens)
	assert.True(t, gen.opts.JSONMode)
}

func TestChatErrors(t *testing.T) {
	_, err := (&Provider{model: &fakeGenerator{err: errors.New("rate limited")}}).Generate(context.Background(), "hi")
	assert.ErrorContains(t, err, "rate limited")

	_, err = (&Provider{model: &fakeGenerator{resp: &llms.ContentResponse{}}}).Generate(context.Background(), "hi")
	assert.ErrorContains(t, err, "no choices")
}
