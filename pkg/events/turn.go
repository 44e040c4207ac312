package events

import "time"

const TypeTurnCompleted = "TURN_COMPLETED"

// TurnCompleted records one answered chat turn.
type TurnCompleted struct {
	TurnID     string
	UserID     string
	SessionID  string
	Message    string
	Reply      string
	Tools      []string
	Failed     bool
	Duration   time.Duration
	FinishedAt time.Time
}

func (e TurnCompleted) EventType() string {
	return TypeTurnCompleted
}

func (e TurnCompleted) Payload() map[string]interface{} {
	tools := e.Tools
	if tools == nil {
		tools = []string{}
	}
	return map[string]interface{}{
		"turn_id":       e.TurnID,
		"user_id":       e.UserID,
		"session_id":    e.SessionID,
		"message":       e.Message,
		"reply":         e.Reply,
		"tools":         tools,
		"failed":        e.Failed,
		"duration_ms":   e.Duration.Milliseconds(),
		OccurredAtField: e.FinishedAt.Format(time.RFC3339Nano),
	}
}

func (e TurnCompleted) Timestamp() time.Time {
	return e.FinishedAt
}
