package dto

import (
	"strings"

	"db-agent-be/pkg/ai/stream"
)

const (
	DefaultUserID    = "default_user"
	DefaultSessionID = "default_session"
)

type ChatRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message" validate:"required,max=4000"`
}

// Normalize trims the message and fills in the default ids.
func (r *ChatRequest) Normalize() {
	r.Message = strings.TrimSpace(r.Message)
	if r.UserID == "" {
		r.UserID = DefaultUserID
	}
	if r.SessionID == "" {
		r.SessionID = DefaultSessionID
	}
}

// StreamFrame is the JSON body of one `data:` line of the chat stream.
type StreamFrame struct {
	Text     string          `json:"text,omitempty"`
	Thought  *stream.Thought `json:"thought,omitempty"`
	Complete bool            `json:"complete,omitempty"`
}

func NewStreamFrame(c stream.Chunk) StreamFrame {
	return StreamFrame{
		Text:     c.Text,
		Thought:  c.Thinking,
		Complete: c.Complete,
	}
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ToolCallRequest struct {
	Input string `json:"input"`
}

type ToolCallResponse struct {
	Tool   string `json:"tool"`
	Output string `json:"output"`
}
