// Package stream carries the incremental output of one turn from the
// producer (router and pipeline) to the transport.
//
// The channel is unbuffered: every send waits until the consumer takes the
// chunk, so a slow client slows the producer and a gone client (cancelled
// context) stops it. Each turn ends with exactly one Complete chunk, after
// which the channel is closed.
package stream

import (
	"context"
	"sync"

	"db-agent-be/pkg/apperrors"
)

// Thought announces a tool invocation.
type Thought struct {
	Tool  string `json:"tool"`
	Input string `json:"input,omitempty"`
}

// Chunk is one unit of streamed output. Exactly one of the fields is set.
type Chunk struct {
	Text     string
	Thinking *Thought
	Complete bool
}

// Sink is the producer side used by handlers.
type Sink interface {
	Thinking(ctx context.Context, tool, input string) error
	Text(ctx context.Context, text string) error
}

// Emitter is a single-producer, single-consumer chunk stream.
type Emitter struct {
	ch chan Chunk

	mu        sync.Mutex
	completed bool
	finish    sync.Once
}

var _ Sink = (*Emitter)(nil)

func NewEmitter() *Emitter {
	return &Emitter{ch: make(chan Chunk)}
}

// Chunks is the consumer side. It is closed after the Complete chunk.
func (e *Emitter) Chunks() <-chan Chunk {
	return e.ch
}

func (e *Emitter) Thinking(ctx context.Context, tool, input string) error {
	return e.send(ctx, Chunk{Thinking: &Thought{Tool: tool, Input: input}})
}

// Text emits s. Empty text is skipped.
func (e *Emitter) Text(ctx context.Context, s string) error {
	if s == "" {
		return nil
	}
	return e.send(ctx, Chunk{Text: s})
}

// Finish emits the Complete chunk and closes the stream. Only the first call
// has any effect. The stream is closed even when the consumer is gone.
func (e *Emitter) Finish(ctx context.Context) error {
	var err error
	e.finish.Do(func() {
		e.mu.Lock()
		e.completed = true
		e.mu.Unlock()

		select {
		case e.ch <- Chunk{Complete: true}:
		case <-ctx.Done():
			err = apperrors.Wrap(apperrors.Stream, "consumer went away before completion", ctx.Err())
		}
		close(e.ch)
	})
	return err
}

func (e *Emitter) send(ctx context.Context, c Chunk) error {
	e.mu.Lock()
	done := e.completed
	e.mu.Unlock()
	if done {
		return apperrors.New(apperrors.Stream, "stream already completed")
	}

	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.Stream, "consumer went away", err)
	}

	select {
	case e.ch <- c:
		return nil
	case <-ctx.Done():
		return apperrors.Wrap(apperrors.Stream, "consumer went away", ctx.Err())
	}
}
