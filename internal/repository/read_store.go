package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/policy"
)

// ReadStore serves the read tools and the drift health check. Reads
// run outside the mutation transaction and take no locks.
type ReadStore struct {
	pool *pgxpool.Pool
}

func NewReadStore(pool *pgxpool.Pool) *ReadStore {
	return &ReadStore{pool: pool}
}

func (s *ReadStore) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`
	return scanTicket(s.pool.QueryRow(ctx, query, ticketID))
}

func (s *ReadStore) ListEvidence(ctx context.Context, ticketID string) ([]domain.EvidenceItem, error) {
	const query = `
        SELECT id, ticket_id, kind, uri, checksum, evidence_key, metadata, is_immutable, created_at, updated_at
        FROM evidence_items
        WHERE ticket_id = $1
        ORDER BY created_at, id`
	rows, err := s.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvidence(rows)
}

func (s *ReadStore) ListTransitions(ctx context.Context, ticketID string) ([]domain.TransitionLogEntry, error) {
	const query = `
        SELECT id, ticket_id, COALESCE(from_state, ''), to_state, tool_name, actor_id, actor_role, created_at
        FROM ticket_transition_log
        WHERE ticket_id = $1
        ORDER BY created_at, id`
	rows, err := s.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.TransitionLogEntry, 0)
	for rows.Next() {
		var entry domain.TransitionLogEntry
		err := rows.Scan(
			&entry.ID, &entry.TicketID, &entry.FromState, &entry.ToState,
			&entry.ToolName, &entry.ActorID, &entry.ActorRole, &entry.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *ReadStore) ListAuditEvents(ctx context.Context, ticketID string) ([]domain.AuditEvent, error) {
	const query = `
        SELECT id, ticket_id, actor_type, actor_id, actor_role, tool_name, request_id,
               correlation_id, trace_id, before_state, after_state, payload_hash, payload, created_at
        FROM audit_events
        WHERE ticket_id = $1
        ORDER BY created_at, id`
	rows, err := s.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.AuditEvent, 0)
	for rows.Next() {
		var event domain.AuditEvent
		var payload []byte
		err := rows.Scan(
			&event.ID, &event.TicketID, &event.ActorType, &event.ActorID,
			&event.ActorRole, &event.ToolName, &event.RequestID, &event.CorrelationID,
			&event.TraceID, &event.BeforeState, &event.AfterState, &event.PayloadHash,
			&payload, &event.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &event.Payload); err != nil {
				return nil, fmt.Errorf("decode audit payload: %w", err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// TransitionEdges reads the datastore's own transition-legality
// constraint, the comparison target for the contract drift detector.
func (s *ReadStore) TransitionEdges(ctx context.Context) ([]policy.TransitionEdge, error) {
	const query = `SELECT from_state, to_state FROM ticket_state_transitions ORDER BY from_state, to_state`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	edges := make([]policy.TransitionEdge, 0)
	for rows.Next() {
		var edge policy.TransitionEdge
		if err := rows.Scan(&edge.FromState, &edge.ToState); err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

// FindTicketBySignature resolves an intake dedupe signature without a
// lock, for read-side checks.
func (s *ReadStore) FindTicketBySignature(ctx context.Context, signature string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE identity_signature = $1 ORDER BY created_at LIMIT 1`
	ticket, err := scanTicket(s.pool.QueryRow(ctx, query, signature))
	if err != nil && errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return ticket, err
}
