package domain

import "time"

// AuditEvent is an append-only record of one logical mutation attempt.
// Successful mutations and policy failures after authorization both
// produce exactly one event; replays produce none.
type AuditEvent struct {
	ID            string
	TicketID      *string
	ActorType     ActorType
	ActorID       string
	ActorRole     string
	ToolName      string
	RequestID     string
	CorrelationID *string
	TraceID       *string
	BeforeState   *TicketState
	AfterState    *TicketState
	PayloadHash   string
	Payload       map[string]any
	CreatedAt     time.Time
}
