package service

import (
	"context"
	"encoding/json"
	"time"

	"db-agent-be/internal/dto"
	"db-agent-be/internal/pkg/logger"
	"db-agent-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
)

// EventForwarder ships events off the process, e.g. to NATS.
type EventForwarder interface {
	Publish(ctx context.Context, event events.Event) error
}

// AuditLog is where turns are written and read back from.
type AuditLog interface {
	logger.ILogger
	logger.LogReader
}

type IAuditService interface {
	Consume(ctx context.Context) error
	// Recent lists audited turns newest first, optionally for one session.
	Recent(query dto.TurnHistoryQuery) ([]dto.TurnRecord, error)
}

const (
	turnModule       = "TURN"
	defaultTurnLimit = 20
)

type auditService struct {
	subscriber message.Subscriber
	topicName  string
	auditLog   AuditLog
	forwarder  EventForwarder
	logger     logger.ILogger
}

// NewAuditService records every turn from topicName in auditLog and, when
// forwarder is not nil, forwards it as a TURN_COMPLETED event.
func NewAuditService(
	subscriber message.Subscriber,
	topicName string,
	auditLog AuditLog,
	forwarder EventForwarder,
	logger logger.ILogger,
) IAuditService {
	return &auditService{
		subscriber: subscriber,
		topicName:  topicName,
		auditLog:   auditLog,
		forwarder:  forwarder,
		logger:     logger,
	}
}

func (as *auditService) Consume(ctx context.Context) error {
	messages, err := as.subscriber.Subscribe(ctx, as.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			as.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (as *auditService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.TurnAuditMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		as.logger.Error("AUDIT", "Failed to unmarshal turn message", map[string]interface{}{"error": err.Error()})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	as.auditLog.Info(turnModule, "Turn completed", map[string]interface{}{
		"turn_id":     payload.TurnID,
		"user_id":     payload.UserID,
		"session_id":  payload.SessionID,
		"message":     payload.Message,
		"reply":       payload.Reply,
		"tools":       payload.Tools,
		"failed":      payload.Failed,
		"duration_ms": payload.DurationMs,
	})

	if as.forwarder != nil {
		fctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := as.forwarder.Publish(fctx, events.TurnCompleted{
			TurnID:     payload.TurnID,
			UserID:     payload.UserID,
			SessionID:  payload.SessionID,
			Message:    payload.Message,
			Reply:      payload.Reply,
			Tools:      payload.Tools,
			Failed:     payload.Failed,
			Duration:   time.Duration(payload.DurationMs) * time.Millisecond,
			FinishedAt: payload.FinishedAt,
		})
		cancel()
		if err != nil {
			// The audit file already holds the record; forwarding is best effort.
			as.logger.Warn("AUDIT", "Failed to forward turn event", map[string]interface{}{"turn_id": payload.TurnID, "error": err.Error()})
		}
	}

	msg.Ack()
}

func (as *auditService) Recent(query dto.TurnHistoryQuery) ([]dto.TurnRecord, error) {
	limit := query.Limit
	if limit == 0 {
		limit = defaultTurnLimit
	}

	// Filtering by session happens after paging through the file, so read
	// everything when a session is given.
	readLimit, readOffset := limit, query.Offset
	if query.SessionID != "" {
		readLimit, readOffset = int(^uint(0)>>1), 0
	}

	entries, err := as.auditLog.Entries(turnModule, readLimit, readOffset)
	if err != nil {
		return nil, err
	}

	records := make([]dto.TurnRecord, 0, len(entries))
	for _, e := range entries {
		r := turnRecord(e)
		if query.SessionID != "" && r.SessionID != query.SessionID {
			continue
		}
		records = append(records, r)
	}

	if query.SessionID != "" {
		if query.Offset >= len(records) {
			return []dto.TurnRecord{}, nil
		}
		records = records[query.Offset:]
		if len(records) > limit {
			records = records[:limit]
		}
	}
	return records, nil
}

// turnRecord maps the details written by processMessage. Numbers come back
// from JSON as float64 and lists as []interface{}.
func turnRecord(e logger.LogEntry) dto.TurnRecord {
	str := func(key string) string {
		v, _ := e.Details[key].(string)
		return v
	}
	failed, _ := e.Details["failed"].(bool)
	duration, _ := e.Details["duration_ms"].(float64)

	tools := []string{}
	if raw, ok := e.Details["tools"].([]interface{}); ok {
		for _, t := range raw {
			if name, ok := t.(string); ok {
				tools = append(tools, name)
			}
		}
	}

	return dto.TurnRecord{
		TurnID:     str("turn_id"),
		UserID:     str("user_id"),
		SessionID:  str("session_id"),
		Message:    str("message"),
		Reply:      str("reply"),
		Tools:      tools,
		Failed:     failed,
		DurationMs: int64(duration),
		LoggedAt:   e.Timestamp,
	}
}
