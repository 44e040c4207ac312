package events

import "time"

// OccurredAtField carries the event time inside a published payload, in
// RFC 3339 with nanoseconds.
const OccurredAtField = "occurred_at"

// Event is anything published on the bus. The subject is derived from
// EventType.
type Event interface {
	EventType() string
	Payload() map[string]interface{}
	Timestamp() time.Time
}

// Record is an event read back from the bus, where only the type and the
// decoded payload are known.
type Record struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

// Restore rebuilds an event from its type and decoded payload. The time is
// taken from OccurredAtField; a missing or malformed value yields the zero
// time.
func Restore(eventType string, payload map[string]interface{}) Record {
	r := Record{Type: eventType, Data: payload}
	if raw, ok := payload[OccurredAtField].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			r.OccurredAt = ts
		}
	}
	return r
}

func (r Record) EventType() string               { return r.Type }
func (r Record) Payload() map[string]interface{} { return r.Data }
func (r Record) Timestamp() time.Time            { return r.OccurredAt }
