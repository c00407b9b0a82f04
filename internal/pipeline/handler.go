package pipeline

import (
	"context"
	"time"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/policy"
)

// Request is everything a tool handler needs: the validated envelope,
// the resolved policy, the locked ticket row (nil for creation
// tools), and the transition decision.
type Request struct {
	Envelope *RequestEnvelope
	Tool     policy.ToolPolicy
	Ticket   *domain.Ticket
	Decision TransitionDecision
	Now      time.Time
}

// Outcome is what a handler hands back for persistence. The
// orchestrator applies the transition decision to Outcome.Ticket,
// writes the logs and serializes Response for the caller and for
// idempotent replay.
type Outcome struct {
	// Ticket is the entity after the handler's domain logic, before
	// the state transition is applied. Creation tools build it here.
	Ticket *domain.Ticket
	// State overrides the decision's resulting state when the
	// handler picks the outcome dynamically (approval decisions).
	State *domain.TicketState
	// TicketDirty marks non-state field changes that need a ticket
	// update even when the state is unchanged.
	TicketDirty bool
	// Response becomes the JSON body, stored verbatim for replay.
	Response   any
	StatusCode int
	// Outbox is the zero-or-one side effect emitted with the
	// mutation.
	Outbox *domain.OutboxEvent
	// AuditPayload is merged into the audit event's payload.
	AuditPayload map[string]any
}

// Handler executes one tool's domain logic inside the mutation
// transaction. Returning an error aborts everything except the audit
// record when the failure is a post-authorization policy rejection.
type Handler interface {
	Execute(ctx context.Context, tx MutationTx, req *Request) (*Outcome, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, tx MutationTx, req *Request) (*Outcome, error)

func (f HandlerFunc) Execute(ctx context.Context, tx MutationTx, req *Request) (*Outcome, error) {
	return f(ctx, tx, req)
}
