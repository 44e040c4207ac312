package stream

import (
	"context"
	"testing"
	"time"

	"db-agent-be/pkg/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(ch <-chan Chunk) []Chunk {
	var out []Chunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

func TestCompleteIsLastAndUnique(t *testing.T) {
	e := NewEmitter()
	ctx := context.Background()

	go func() {
		_ = e.Thinking(ctx, "list_tables", "")
		_ = e.Text(ctx, "")
		_ = e.Text(ctx, "flights, pilots, planes")
		_ = e.Finish(ctx)
		_ = e.Finish(ctx)
	}()

	chunks := drain(e.Chunks())

	require.Len(t, chunks, 3)
	assert.Equal(t, "list_tables", chunks[0].Thinking.Tool)
	assert.Equal(t, "flights, pilots, planes", chunks[1].Text)
	assert.True(t, chunks[2].Complete)
}

func TestSendAfterFinishFails(t *testing.T) {
	e := NewEmitter()
	ctx := context.Background()

	go func() { drain(e.Chunks()) }()
	require.NoError(t, e.Finish(ctx))

	err := e.Text(ctx, "late")
	assert.True(t, apperrors.Is(err, apperrors.Stream))
}

func TestSendBlocksUntilConsumed(t *testing.T) {
	e := NewEmitter()
	sent := make(chan struct{})

	go func() {
		_ = e.Text(context.Background(), "one")
		close(sent)
	}()

	select {
	case <-sent:
		t.Fatal("send returned before the consumer took the chunk")
	case <-time.After(50 * time.Millisecond):
	}

	c := <-e.Chunks()
	assert.Equal(t, "one", c.Text)
	<-sent
}

func TestCancelledConsumerStopsProducer(t *testing.T) {
	e := NewEmitter()
	ctx, cancel := context.WithCancel(context.Background())

	errs := make(chan error, 1)
	go func() { errs <- e.Text(ctx, "nobody reads this") }()

	cancel()
	err := <-errs
	assert.True(t, apperrors.Is(err, apperrors.Stream))

	// Finish still closes the channel so the transport can exit.
	assert.Error(t, e.Finish(ctx))
	_, open := <-e.Chunks()
	assert.False(t, open)
}
