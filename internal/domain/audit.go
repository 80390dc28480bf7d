package domain

// AuditEvent is the wire form of a committed log entry, published on the
// audit side channel. Payload carries the log entry body, never raw
// attachment content.
type AuditEvent struct {
	Service    string         `json:"service"`
	EventType  string         `json:"event_type"`
	EntityID   string         `json:"entity_id"`
	Actor      string         `json:"actor,omitempty"`
	OccurredAt string         `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}
