package nats

import (
	"encoding/json"
	"testing"
	"time"

	"db-agent-be/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTurnCompleted(t *testing.T) {
	finished := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	turn := events.TurnCompleted{
		TurnID:     "t-1",
		UserID:     "u",
		SessionID:  "s",
		Message:    "list tables",
		Reply:      "flights, pilots, planes",
		Duration:   1500 * time.Millisecond,
		FinishedAt: finished,
	}
	data, err := json.Marshal(turn.Payload())
	require.NoError(t, err)

	subject := Subject(turn.EventType())
	event, err := Decode(subject, data)

	require.NoError(t, err)
	assert.Equal(t, "events.TURN_COMPLETED", subject)
	assert.Equal(t, events.TypeTurnCompleted, event.EventType())
	assert.True(t, finished.Equal(event.Timestamp()))
	assert.Equal(t, "t-1", event.Payload()["turn_id"])
	assert.EqualValues(t, 1500, event.Payload()["duration_ms"])
	assert.Equal(t, []interface{}{}, event.Payload()["tools"])
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode("events.X", []byte("not json"))
	assert.Error(t, err)
}

func TestDecodeWithoutTimestamp(t *testing.T) {
	event, err := Decode("events.CUSTOM", []byte(`{"a": 1}`))

	require.NoError(t, err)
	assert.Equal(t, "CUSTOM", event.EventType())
	assert.True(t, event.Timestamp().IsZero())
	assert.EqualValues(t, 1, event.Payload()["a"])
}
