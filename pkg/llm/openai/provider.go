// Package openai adapts any OpenAI-compatible chat completion endpoint
// (OpenAI, OpenRouter, vLLM, LM Studio) to llm.LLMProvider.
package openai

import (
	"context"
	"errors"
	"fmt"

	"db-agent-be/pkg/llm"

	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

// generator is the part of llms.Model this provider needs.
type generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

type Provider struct {
	model     generator
	modelName string
}

var _ llm.LLMProvider = &Provider{}

// NewProvider builds a provider for baseURL. An empty baseURL targets the
// public OpenAI API.
func NewProvider(baseURL, apiKey, modelName string) (*Provider, error) {
	if apiKey == "" {
		// Local OpenAI-compatible servers accept any token but the client insists on one.
		apiKey = "unused"
	}
	opts := []lcopenai.Option{
		lcopenai.WithToken(apiKey),
		lcopenai.WithModel(modelName),
	}
	if baseURL != "" {
		opts = append(opts, lcopenai.WithBaseURL(baseURL))
	}

	client, err := lcopenai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return &Provider{model: client, modelName: modelName}, nil
}

func roleOf(role string) llms.ChatMessageType {
	switch role {
	case llm.RoleSystem:
		return llms.ChatMessageTypeSystem
	case llm.RoleAssistant, "model":
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

func (p *Provider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	options := llm.Apply(llm.Options{Temperature: 0.2, Model: p.modelName}, opts...)

	messages := make([]llms.MessageContent, len(history))
	for i, msg := range history {
		messages[i] = llms.TextParts(roleOf(msg.Role), msg.Content)
	}

	callOpts := []llms.CallOption{
		llms.WithTemperature(options.Temperature),
		llms.WithModel(options.Model),
	}
	if options.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(options.MaxTokens))
	}
	if options.JSON {
		callOpts = append(callOpts, llms.WithJSONMode())
	}

	resp, err := p.model.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return resp.Choices[0].Content, nil
}

func (p *Provider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return p.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}
