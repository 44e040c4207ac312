package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"db-agent-be/internal/dto"
	"db-agent-be/internal/pkg/logger"
	"db-agent-be/pkg/ai/router"
	"db-agent-be/pkg/ai/stream"
	"db-agent-be/pkg/apperrors"
	"db-agent-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	module  string
	message string
	details map[string]interface{}
}

// memLogger keeps Info entries in memory.
type memLogger struct {
	mu      sync.Mutex
	entries []entry
}

func (m *memLogger) Debug(module, message string, details map[string]interface{}) {}
func (m *memLogger) Warn(module, message string, details map[string]interface{}) {}
func (m *memLogger) Error(module, message string, details map[string]interface{}) {}
func (m *memLogger) Sync() error { return nil }
func (m *memLogger) StdLogger(module string) *log.Logger { return log.New(io.Discard, "", 0) }

func (m *memLogger) Info(module, message string, details map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry{module: module, message: message, details: details})
}

func (m *memLogger) Entries(module string, limit, offset int) ([]logger.LogEntry, error) {
	return []logger.LogEntry{}, nil
}

func (m *memLogger) all() []entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entry(nil), m.entries...)
}

type handlerFunc func(ctx context.Context, q router.Query, sink stream.Sink) (string, error)

func (f handlerFunc) Handle(ctx context.Context, q router.Query, sink stream.Sink) (string, error) {
	return f(ctx, q, sink)
}

func collect(t *testing.T, ch <-chan stream.Chunk) []stream.Chunk {
	t.Helper()
	var out []stream.Chunk
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, c)
		case <-timeout:
			t.Fatal("stream was not closed")
			return out
		}
	}
}

func newPubSub() *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
}

func request(msg string) *dto.ChatRequest {
	req := &dto.ChatRequest{Message: msg}
	req.Normalize()
	return req
}

func TestStreamOrdersChunksAndCompletesLast(t *testing.T) {
	h := handlerFunc(func(ctx context.Context, q router.Query, sink stream.Sink) (string, error) {
		assert.NoError(t, sink.Thinking(ctx, "list_tables", ""))
		assert.NoError(t, sink.Text(ctx, "flights, pilots, planes"))
		return "flights, pilots, planes", nil
	})
	svc := NewChatService(h, nil, "", time.Minute, logger.NewNopLogger())

	chunks := collect(t, svc.Stream(context.Background(), request("list tables")))

	require.Len(t, chunks, 3)
	assert.Equal(t, &stream.Thought{Tool: "list_tables"}, chunks[0].Thinking)
	assert.Equal(t, "flights, pilots, planes", chunks[1].Text)
	assert.True(t, chunks[2].Complete)
}

func TestStreamRecoversPanics(t *testing.T) {
	h := handlerFunc(func(ctx context.Context, q router.Query, sink stream.Sink) (string, error) {
		panic("nil map write")
	})
	svc := NewChatService(h, nil, "", time.Minute, logger.NewNopLogger())

	chunks := collect(t, svc.Stream(context.Background(), request("hi")))

	require.Len(t, chunks, 2)
	assert.Equal(t, genericFailure, chunks[0].Text)
	assert.True(t, chunks[1].Complete)
}

func TestStreamReportsTimeout(t *testing.T) {
	h := handlerFunc(func(ctx context.Context, q router.Query, sink stream.Sink) (string, error) {
		<-ctx.Done()
		return "", apperrors.Wrap(apperrors.Stream, "turn cancelled", ctx.Err())
	})
	svc := NewChatService(h, nil, "", 20*time.Millisecond, logger.NewNopLogger())

	chunks := collect(t, svc.Stream(context.Background(), request("slow question")))

	require.Len(t, chunks, 2)
	assert.Equal(t, timeoutReply, chunks[0].Text)
	assert.True(t, chunks[1].Complete)
}

func TestStreamStopsWhenClientLeaves(t *testing.T) {
	started := make(chan struct{})
	h := handlerFunc(func(ctx context.Context, q router.Query, sink stream.Sink) (string, error) {
		close(started)
		<-ctx.Done()
		return "", sink.Text(ctx, "too late")
	})
	svc := NewChatService(h, nil, "", time.Minute, logger.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())

	ch := svc.Stream(ctx, request("hi"))
	<-started
	cancel()

	chunks := collect(t, ch)
	for _, c := range chunks {
		assert.NotEqual(t, "too late", c.Text)
	}
}

func TestStreamPublishesAuditMessage(t *testing.T) {
	pubSub := newPubSub()
	defer pubSub.Close()
	msgs, err := pubSub.Subscribe(context.Background(), "turns")
	require.NoError(t, err)

	h := handlerFunc(func(ctx context.Context, q router.Query, sink stream.Sink) (string, error) {
		_ = sink.Thinking(ctx, "delegate_to_schema_explorer", q.Text)
		_ = sink.Thinking(ctx, "list_tables", "")
		return "three tables", nil
	})
	svc := NewChatService(h, pubSub, "turns", time.Minute, logger.NewNopLogger())

	collect(t, svc.Stream(context.Background(), request("list tables")))

	select {
	case msg := <-msgs:
		msg.Ack()
		var got dto.TurnAuditMessage
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		assert.Equal(t, dto.DefaultUserID, got.UserID)
		assert.Equal(t, dto.DefaultSessionID, got.SessionID)
		assert.Equal(t, "list tables", got.Message)
		assert.Equal(t, "three tables", got.Reply)
		assert.Equal(t, []string{"delegate_to_schema_explorer", "list_tables"}, got.Tools)
		assert.False(t, got.Failed)
		assert.NotEmpty(t, got.TurnID)
	case <-time.After(5 * time.Second):
		t.Fatal("no audit message published")
	}
}

type fakeForwarder struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (f *fakeForwarder) Publish(ctx context.Context, event events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

func (f *fakeForwarder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestAuditServiceLogsAndForwards(t *testing.T) {
	tests := []struct {
		name       string
		forwardErr error
	}{
		{name: "forwarded"},
		{name: "forwarder down", forwardErr: errors.New("nats: no responders")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pubSub := newPubSub()
			defer pubSub.Close()
			auditLog := &memLogger{}
			fwd := &fakeForwarder{err: tt.forwardErr}
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			svc := NewAuditService(pubSub, "turns", auditLog, fwd, logger.NewNopLogger())
			require.NoError(t, svc.Consume(ctx))

			payload, err := json.Marshal(dto.TurnAuditMessage{TurnID: "t-1", UserID: "u", Reply: "ok", DurationMs: 42})
			require.NoError(t, err)
			require.NoError(t, pubSub.Publish("turns",
				message.NewMessage("bad", []byte("{not json")),
				message.NewMessage("t-1", payload),
			))

			require.Eventually(t, func() bool { return fwd.count() == 1 }, 5*time.Second, 10*time.Millisecond)

			entries := auditLog.all()
			require.Len(t, entries, 1)
			assert.Equal(t, "t-1", entries[0].details["turn_id"])

			fwd.mu.Lock()
			ev := fwd.events[0]
			fwd.mu.Unlock()
			assert.Equal(t, events.TypeTurnCompleted, ev.EventType())
			assert.EqualValues(t, 42, ev.Payload()["duration_ms"])
		})
	}
}

func TestAuditServiceRecent(t *testing.T) {
	auditLog := logger.NewIsolatedLogger(filepath.Join(t.TempDir(), "turns.log"))
	svc := NewAuditService(nil, "turns", auditLog, nil, logger.NewNopLogger()).(*auditService)

	for _, m := range []dto.TurnAuditMessage{
		{TurnID: "t-1", SessionID: "a", Message: "list tables", Tools: []string{"list_tables"}, DurationMs: 5},
		{TurnID: "t-2", SessionID: "b", Message: "hello"},
		{TurnID: "t-3", SessionID: "a", Message: "drop it", Failed: true},
	} {
		payload, err := json.Marshal(m)
		require.NoError(t, err)
		svc.processMessage(context.Background(), message.NewMessage(m.TurnID, payload))
	}
	require.NoError(t, auditLog.Sync())

	tests := []struct {
		name  string
		query dto.TurnHistoryQuery
		want  []string
	}{
		{name: "default limit", want: []string{"t-3", "t-2", "t-1"}},
		{name: "paged", query: dto.TurnHistoryQuery{Limit: 1, Offset: 1}, want: []string{"t-2"}},
		{name: "one session", query: dto.TurnHistoryQuery{SessionID: "a"}, want: []string{"t-3", "t-1"}},
		{name: "one session paged", query: dto.TurnHistoryQuery{SessionID: "a", Limit: 1, Offset: 1}, want: []string{"t-1"}},
		{name: "unknown session", query: dto.TurnHistoryQuery{SessionID: "zzz"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := svc.Recent(tt.query)
			require.NoError(t, err)

			got := make([]string, len(records))
			for i, r := range records {
				got[i] = r.TurnID
			}
			assert.Equal(t, tt.want, got)
		})
	}

	records, err := svc.Recent(dto.TurnHistoryQuery{SessionID: "a"})
	require.NoError(t, err)
	assert.True(t, records[0].Failed)
	assert.Equal(t, []string{"list_tables"}, records[1].Tools)
	assert.EqualValues(t, 5, records[1].DurationMs)
	assert.NotEmpty(t, records[1].LoggedAt)
}
