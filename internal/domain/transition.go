package domain

import "time"

// TransitionLogEntry is an append-only record of a ticket state
// change. Exactly one entry exists per request that actually changed
// ticket state; idempotent replays add none.
type TransitionLogEntry struct {
	ID        string
	TicketID  string
	FromState TicketState
	ToState   TicketState
	ToolName  string
	ActorID   string
	ActorRole string
	CreatedAt time.Time
}
