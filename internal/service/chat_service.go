package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"db-agent-be/internal/dto"
	"db-agent-be/internal/pkg/logger"
	"db-agent-be/pkg/ai/router"
	"db-agent-be/pkg/ai/stream"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

const (
	genericFailure = "Sorry, something went wrong while answering. Please try again."
	timeoutReply   = "Sorry, that took too long to answer. Please try a narrower question."
)

// TurnHandler answers one turn, reporting progress to sink.
type TurnHandler interface {
	Handle(ctx context.Context, q router.Query, sink stream.Sink) (string, error)
}

type IChatService interface {
	// Stream starts answering req and returns the chunk stream. The stream
	// always ends with exactly one Complete chunk and is then closed.
	// Cancelling ctx stops the turn.
	Stream(ctx context.Context, req *dto.ChatRequest) <-chan stream.Chunk
}

type chatService struct {
	handler   TurnHandler
	publisher message.Publisher
	topic     string
	timeout   time.Duration
	logger    logger.ILogger
}

// NewChatService wires the turn handler to the transport. publisher may be
// nil, in which case no audit events are published.
func NewChatService(
	handler TurnHandler,
	publisher message.Publisher,
	topic string,
	timeout time.Duration,
	logger logger.ILogger,
) IChatService {
	return &chatService{
		handler:   handler,
		publisher: publisher,
		topic:     topic,
		timeout:   timeout,
		logger:    logger,
	}
}

func (s *chatService) Stream(ctx context.Context, req *dto.ChatRequest) <-chan stream.Chunk {
	em := stream.NewEmitter()
	go s.run(ctx, req, em)
	return em.Chunks()
}

func (s *chatService) run(ctx context.Context, req *dto.ChatRequest, em *stream.Emitter) {
	turnID := uuid.NewString()
	start := time.Now()
	sink := &toolRecorder{Sink: em}

	turnCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.timeout > 0 {
		turnCtx, cancel = context.WithTimeout(ctx, s.timeout)
	}
	defer cancel()

	var reply string
	failed := false

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("CHAT", "Turn panicked", map[string]interface{}{"turn_id": turnID, "panic": fmt.Sprint(r)})
			failed = true
			reply = genericFailure
			_ = em.Text(ctx, genericFailure)
		}

		if err := em.Finish(ctx); err != nil {
			s.logger.Warn("CHAT", "Client left before the turn completed", map[string]interface{}{"turn_id": turnID})
		}

		s.publishAudit(dto.TurnAuditMessage{
			TurnID:     turnID,
			UserID:     req.UserID,
			SessionID:  req.SessionID,
			Message:    req.Message,
			Reply:      reply,
			Tools:      sink.Tools(),
			Failed:     failed,
			DurationMs: time.Since(start).Milliseconds(),
			FinishedAt: time.Now(),
		})
	}()

	s.logger.Info("CHAT", "Turn started", map[string]interface{}{"turn_id": turnID, "user_id": req.UserID, "session_id": req.SessionID})

	q := router.Query{Text: req.Message, UserID: req.UserID, SessionID: req.SessionID}
	out, err := s.handler.Handle(turnCtx, q, sink)
	if err != nil {
		failed = true
		if errors.Is(turnCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			s.logger.Warn("CHAT", "Turn timed out", map[string]interface{}{"turn_id": turnID, "timeout": s.timeout.String()})
			reply = timeoutReply
			_ = em.Text(ctx, timeoutReply)
			return
		}
		s.logger.Warn("CHAT", "Turn stopped", map[string]interface{}{"turn_id": turnID, "error": err.Error()})
		return
	}

	reply = out
	s.logger.Info("CHAT", "Turn completed", map[string]interface{}{"turn_id": turnID, "duration_ms": time.Since(start).Milliseconds()})
}

func (s *chatService) publishAudit(m dto.TurnAuditMessage) {
	if s.publisher == nil {
		return
	}

	payload, err := json.Marshal(m)
	if err != nil {
		s.logger.Error("CHAT", "Failed to encode audit message", map[string]interface{}{"error": err.Error()})
		return
	}

	if err := s.publisher.Publish(s.topic, message.NewMessage(m.TurnID, payload)); err != nil {
		s.logger.Error("CHAT", "Failed to publish audit message", map[string]interface{}{"turn_id": m.TurnID, "error": err.Error()})
	}
}

// toolRecorder remembers which tools a turn announced.
type toolRecorder struct {
	stream.Sink

	mu    sync.Mutex
	tools []string
}

func (r *toolRecorder) Thinking(ctx context.Context, tool, input string) error {
	r.mu.Lock()
	r.tools = append(r.tools, tool)
	r.mu.Unlock()
	return r.Sink.Thinking(ctx, tool, input)
}

func (r *toolRecorder) Tools() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tools...)
}
