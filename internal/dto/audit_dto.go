package dto

import "time"

// TurnAuditMessage is published on the in-process bus after every chat turn.
type TurnAuditMessage struct {
	TurnID     string    `json:"turn_id"`
	UserID     string    `json:"user_id"`
	SessionID  string    `json:"session_id"`
	Message    string    `json:"message"`
	Reply      string    `json:"reply"`
	Tools      []string  `json:"tools,omitempty"`
	Failed     bool      `json:"failed"`
	DurationMs int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
}

// TurnRecord is one audited turn as returned by GET /turns.
type TurnRecord struct {
	TurnID     string   `json:"turn_id"`
	UserID     string   `json:"user_id"`
	SessionID  string   `json:"session_id"`
	Message    string   `json:"message"`
	Reply      string   `json:"reply"`
	Tools      []string `json:"tools"`
	Failed     bool     `json:"failed"`
	DurationMs int64    `json:"duration_ms"`
	LoggedAt   string   `json:"logged_at"`
}

type TurnHistoryQuery struct {
	SessionID string `query:"session_id"`
	Limit     int    `query:"limit" validate:"omitempty,min=1,max=100"`
	Offset    int    `query:"offset" validate:"omitempty,min=0"`
}
