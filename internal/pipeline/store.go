package pipeline

import (
	"context"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// Store opens the single mutation transaction every write request
// runs in. The durable store is the only synchronization point across
// API and worker instances.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx MutationTx) error) error
}

// MutationTx is the transactional surface the pipeline and its tool
// handlers write through. Transition and audit rows are insert-only;
// no update or delete path exists for them.
type MutationTx interface {
	// GetTicketForUpdate locks the ticket row for the remainder of
	// the transaction. Returns nil when the ticket does not exist.
	GetTicketForUpdate(ctx context.Context, ticketID string) (*domain.Ticket, error)
	// FindTicketBySignature resolves a prior intake by its dedupe
	// signature. Returns nil when no ticket carries the signature.
	FindTicketBySignature(ctx context.Context, signature string) (*domain.Ticket, error)
	InsertTicket(ctx context.Context, ticket *domain.Ticket) error
	UpdateTicket(ctx context.Context, ticket *domain.Ticket) error

	InsertTransition(ctx context.Context, entry *domain.TransitionLogEntry) error
	InsertAudit(ctx context.Context, event *domain.AuditEvent) error
	// InsertOutbox enqueues one side effect. A uniqueness violation
	// on the idempotency key must surface as an error so the whole
	// transaction aborts.
	InsertOutbox(ctx context.Context, event *domain.OutboxEvent) error

	GetIdempotency(ctx context.Context, actorID, requestKey string) (*domain.IdempotencyRecord, error)
	InsertIdempotency(ctx context.Context, record *domain.IdempotencyRecord) error

	ListEvidence(ctx context.Context, ticketID string) ([]domain.EvidenceItem, error)
	InsertEvidence(ctx context.Context, item *domain.EvidenceItem) error
	MarkEvidenceImmutable(ctx context.Context, ticketID string) error
	InsertCloseoutArtifact(ctx context.Context, artifact *domain.CloseoutArtifact) error
}
