// Package repository implements the Postgres persistence layer: the
// mutation transaction the pipeline writes through, the outbox queue,
// the redis replay cache and the read-side queries.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/pipeline"
)

// MutationStore runs mutation pipelines against Postgres. Each call
// to InTx opens exactly one transaction; the ticket row lock taken by
// GetTicketForUpdate serializes concurrent writers per ticket.
type MutationStore struct {
	pool *pgxpool.Pool
}

func NewMutationStore(pool *pgxpool.Pool) *MutationStore {
	return &MutationStore{pool: pool}
}

func (s *MutationStore) InTx(ctx context.Context, fn func(ctx context.Context, tx pipeline.MutationTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin mutation tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &mutationTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type mutationTx struct {
	tx pgx.Tx
}

const ticketColumns = `
	id, account_id, site_id, asset_id, customer_name, contact_phone, contact_email,
	summary, description, state, version,
	priority, incident_type, nte_cents, scheduled_start, scheduled_end,
	assigned_tech_id, hold_reason, identity_signature, identity_confidence,
	classification_confidence, sop_handoff_acknowledged, checklist_status,
	no_signature_reason, evidence_immutable, created_at, updated_at, closed_at`

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	var checklist []byte
	err := row.Scan(
		&ticket.ID, &ticket.AccountID, &ticket.SiteID, &ticket.AssetID,
		&ticket.CustomerName, &ticket.ContactPhone, &ticket.ContactEmail,
		&ticket.Summary, &ticket.Description, &ticket.State, &ticket.Version,
		&ticket.Priority, &ticket.IncidentType, &ticket.NTECents,
		&ticket.ScheduledStart, &ticket.ScheduledEnd, &ticket.AssignedTechID,
		&ticket.HoldReason, &ticket.IdentitySignature, &ticket.IdentityConfidence,
		&ticket.ClassificationConfidence, &ticket.SOPHandoffAcknowledged,
		&checklist, &ticket.NoSignatureReason, &ticket.EvidenceImmutable,
		&ticket.CreatedAt, &ticket.UpdatedAt, &ticket.ClosedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(checklist) > 0 {
		if err := json.Unmarshal(checklist, &ticket.ChecklistStatus); err != nil {
			return nil, fmt.Errorf("decode checklist_status: %w", err)
		}
	}
	return &ticket, nil
}

func (t *mutationTx) GetTicketForUpdate(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1 FOR UPDATE`
	return scanTicket(t.tx.QueryRow(ctx, query, ticketID))
}

func (t *mutationTx) FindTicketBySignature(ctx context.Context, signature string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE identity_signature = $1 ORDER BY created_at LIMIT 1`
	return scanTicket(t.tx.QueryRow(ctx, query, signature))
}

func (t *mutationTx) InsertTicket(ctx context.Context, ticket *domain.Ticket) error {
	checklist, err := json.Marshal(ticket.ChecklistStatus)
	if err != nil {
		return fmt.Errorf("encode checklist_status: %w", err)
	}
	const query = `
        INSERT INTO tickets (
            id, account_id, site_id, asset_id, customer_name, contact_phone, contact_email,
            summary, description, state, version,
            priority, incident_type, nte_cents, scheduled_start, scheduled_end,
            assigned_tech_id, hold_reason, identity_signature, identity_confidence,
            classification_confidence, sop_handoff_acknowledged, checklist_status,
            no_signature_reason, evidence_immutable, created_at, updated_at, closed_at
        ) VALUES (
            $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
            $21,$22,$23,$24,$25,$26,$27,$28
        )`
	_, err = t.tx.Exec(ctx, query,
		ticket.ID, ticket.AccountID, ticket.SiteID, ticket.AssetID,
		ticket.CustomerName, ticket.ContactPhone, ticket.ContactEmail,
		ticket.Summary, ticket.Description, ticket.State, ticket.Version,
		ticket.Priority, ticket.IncidentType, ticket.NTECents,
		ticket.ScheduledStart, ticket.ScheduledEnd, ticket.AssignedTechID,
		ticket.HoldReason, ticket.IdentitySignature, ticket.IdentityConfidence,
		ticket.ClassificationConfidence, ticket.SOPHandoffAcknowledged, checklist,
		ticket.NoSignatureReason, ticket.EvidenceImmutable,
		ticket.CreatedAt, ticket.UpdatedAt, ticket.ClosedAt,
	)
	return err
}

func (t *mutationTx) UpdateTicket(ctx context.Context, ticket *domain.Ticket) error {
	checklist, err := json.Marshal(ticket.ChecklistStatus)
	if err != nil {
		return fmt.Errorf("encode checklist_status: %w", err)
	}
	const query = `
        UPDATE tickets SET
            state=$1, version=$2, priority=$3, incident_type=$4, nte_cents=$5,
            scheduled_start=$6, scheduled_end=$7, assigned_tech_id=$8, hold_reason=$9,
            identity_confidence=$10, classification_confidence=$11,
            sop_handoff_acknowledged=$12, checklist_status=$13, no_signature_reason=$14,
            evidence_immutable=$15, updated_at=$16, closed_at=$17, summary=$18,
            description=$19
        WHERE id=$20`
	cmd, err := t.tx.Exec(ctx, query,
		ticket.State, ticket.Version, ticket.Priority, ticket.IncidentType,
		ticket.NTECents, ticket.ScheduledStart, ticket.ScheduledEnd,
		ticket.AssignedTechID, ticket.HoldReason, ticket.IdentityConfidence,
		ticket.ClassificationConfidence, ticket.SOPHandoffAcknowledged, checklist,
		ticket.NoSignatureReason, ticket.EvidenceImmutable, ticket.UpdatedAt,
		ticket.ClosedAt, ticket.Summary, ticket.Description, ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("ticket %s not found for update", ticket.ID)
	}
	return nil
}

func (t *mutationTx) InsertTransition(ctx context.Context, entry *domain.TransitionLogEntry) error {
	const query = `
        INSERT INTO ticket_transition_log (id, ticket_id, from_state, to_state, tool_name, actor_id, actor_role, created_at)
        VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,$7,$8)`
	_, err := t.tx.Exec(ctx, query,
		entry.ID, entry.TicketID, string(entry.FromState), entry.ToState,
		entry.ToolName, entry.ActorID, entry.ActorRole, entry.CreatedAt,
	)
	return err
}

func (t *mutationTx) InsertAudit(ctx context.Context, event *domain.AuditEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode audit payload: %w", err)
	}
	const query = `
        INSERT INTO audit_events (
            id, ticket_id, actor_type, actor_id, actor_role, tool_name, request_id,
            correlation_id, trace_id, before_state, after_state, payload_hash, payload, created_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`
	_, err = t.tx.Exec(ctx, query,
		event.ID, event.TicketID, event.ActorType, event.ActorID, event.ActorRole,
		event.ToolName, event.RequestID, event.CorrelationID, event.TraceID,
		event.BeforeState, event.AfterState, event.PayloadHash, payload, event.CreatedAt,
	)
	return err
}

func (t *mutationTx) InsertOutbox(ctx context.Context, event *domain.OutboxEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode outbox payload: %w", err)
	}
	const query = `
        INSERT INTO outbox_events (
            id, aggregate_type, aggregate_id, event_type, payload, idempotency_key,
            status, attempt_count, next_attempt_at, last_error, created_at, updated_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err = t.tx.Exec(ctx, query,
		event.ID, event.AggregateType, event.AggregateID, event.EventType, payload,
		event.IdempotencyKey, event.Status, event.AttemptCount, event.NextAttemptAt,
		event.LastError, event.CreatedAt, event.UpdatedAt,
	)
	return err
}

func (t *mutationTx) GetIdempotency(ctx context.Context, actorID, requestKey string) (*domain.IdempotencyRecord, error) {
	const query = `
        SELECT actor_id, request_key, tool_name, payload_hash, response, status_code, created_at
        FROM idempotency_records
        WHERE actor_id = $1 AND request_key = $2`
	var record domain.IdempotencyRecord
	err := t.tx.QueryRow(ctx, query, actorID, requestKey).Scan(
		&record.ActorID, &record.RequestKey, &record.ToolName, &record.PayloadHash,
		&record.Response, &record.StatusCode, &record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (t *mutationTx) InsertIdempotency(ctx context.Context, record *domain.IdempotencyRecord) error {
	const query = `
        INSERT INTO idempotency_records (actor_id, request_key, tool_name, payload_hash, response, status_code, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := t.tx.Exec(ctx, query,
		record.ActorID, record.RequestKey, record.ToolName, record.PayloadHash,
		record.Response, record.StatusCode, record.CreatedAt,
	)
	return err
}

func (t *mutationTx) ListEvidence(ctx context.Context, ticketID string) ([]domain.EvidenceItem, error) {
	const query = `
        SELECT id, ticket_id, kind, uri, checksum, evidence_key, metadata, is_immutable, created_at, updated_at
        FROM evidence_items
        WHERE ticket_id = $1
        ORDER BY created_at, id`
	rows, err := t.tx.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvidence(rows)
}

func (t *mutationTx) InsertEvidence(ctx context.Context, item *domain.EvidenceItem) error {
	metadata, err := json.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("encode evidence metadata: %w", err)
	}
	const query = `
        INSERT INTO evidence_items (id, ticket_id, kind, uri, checksum, evidence_key, metadata, is_immutable, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err = t.tx.Exec(ctx, query,
		item.ID, item.TicketID, item.Kind, item.URI, item.Checksum,
		item.EvidenceKey, metadata, item.Immutable, item.CreatedAt, item.UpdatedAt,
	)
	return err
}

func (t *mutationTx) MarkEvidenceImmutable(ctx context.Context, ticketID string) error {
	const query = `UPDATE evidence_items SET is_immutable = true, updated_at = NOW() WHERE ticket_id = $1`
	_, err := t.tx.Exec(ctx, query, ticketID)
	return err
}

func (t *mutationTx) InsertCloseoutArtifact(ctx context.Context, artifact *domain.CloseoutArtifact) error {
	keys, err := json.Marshal(artifact.EvidenceKeys)
	if err != nil {
		return fmt.Errorf("encode artifact evidence keys: %w", err)
	}
	const query = `
        INSERT INTO closeout_artifacts (id, ticket_id, artifact_type, template_version, evidence_keys, created_at)
        VALUES ($1,$2,'closeout_packet',$3,$4,$5)`
	_, err = t.tx.Exec(ctx, query,
		artifact.ID, artifact.TicketID, artifact.TemplateVersion, keys, artifact.CreatedAt,
	)
	return err
}

func collectEvidence(rows pgx.Rows) ([]domain.EvidenceItem, error) {
	items := make([]domain.EvidenceItem, 0)
	for rows.Next() {
		var item domain.EvidenceItem
		var metadata []byte
		err := rows.Scan(
			&item.ID, &item.TicketID, &item.Kind, &item.URI, &item.Checksum,
			&item.EvidenceKey, &metadata, &item.Immutable, &item.CreatedAt, &item.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &item.Metadata); err != nil {
				return nil, fmt.Errorf("decode evidence metadata: %w", err)
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
