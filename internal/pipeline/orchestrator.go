package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/observability"
	"github.com/spec-kit/dispatch-service/internal/policy"
	"github.com/spec-kit/dispatch-service/pkg/util"
)

// Result is the pipeline's answer to the transport layer. Body is the
// serialized response; on a replay it is the stored bytes, unchanged.
type Result struct {
	StatusCode int
	Body       []byte
	Replayed   bool
}

// Orchestrator runs every mutating request through the same
// fail-fast stage sequence and persists the outcome as one atomic
// unit: ticket row, transition row (iff state changed), audit row,
// zero-or-one outbox row, idempotency record.
type Orchestrator struct {
	store    Store
	reader   IdempotencyReader
	handlers map[string]Handler
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

func NewOrchestrator(store Store, reader IdempotencyReader, logger *zap.Logger, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{
		store:    store,
		reader:   reader,
		handlers: make(map[string]Handler),
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Register binds a tool name to its handler. Panics on duplicate
// registration; the handler set is wired once at startup.
func (o *Orchestrator) Register(toolName string, handler Handler) {
	if _, exists := o.handlers[toolName]; exists {
		panic(fmt.Sprintf("pipeline: handler for %s registered twice", toolName))
	}
	o.handlers[toolName] = handler
}

// Execute runs one mutating request end to end. Every failure path
// returns a DomainError; post-authorization policy failures also
// leave an audit record.
func (o *Orchestrator) Execute(ctx context.Context, env *RequestEnvelope) (Result, error) {
	if env.ReceivedAt.IsZero() {
		env.ReceivedAt = o.now()
	}
	if _, err := env.Fingerprint(); err != nil {
		return Result{}, util.NewInternalError(err)
	}

	tool, ok := policy.Lookup(env.ToolName)
	if !ok {
		return o.fail(env, StageReceived, util.NewValidationError(
			"UNKNOWN_TOOL",
			fmt.Sprintf("tool %q is not part of the dispatch contract", env.ToolName),
			nil,
		))
	}

	// Idempotency admission runs against the read-through cache
	// first; the authoritative re-check happens inside the
	// transaction.
	admission, err := AdmitIdempotency(ctx, o.reader, env, tool.IdempotencyRequired)
	if err != nil {
		return o.fail(env, StageIdempotencyChecked, err)
	}
	if admission.Replay {
		o.metrics.RecordReplay(env.ToolName)
		return Result{StatusCode: admission.StatusCode, Body: admission.Response, Replayed: true}, nil
	}

	if _, err := Authorize(env); err != nil {
		return o.fail(env, StageAuthorized, err)
	}

	if violations := policy.ValidatePayload(tool.Payload, env.Payload); len(violations) > 0 {
		err := util.NewValidationError(
			"SCHEMA_VIOLATION",
			"request payload does not match the tool contract",
			map[string]any{"violations": violations},
		)
		o.auditRejection(ctx, env, util.ToDomainError(err))
		return o.fail(env, StageAuthorized, err)
	}

	handler, ok := o.handlers[env.ToolName]
	if !ok {
		return o.fail(env, StageAuthorized, util.NewInternalError(
			fmt.Errorf("no handler registered for %s", env.ToolName),
		))
	}

	var result Result
	txErr := o.store.InTx(ctx, func(ctx context.Context, tx MutationTx) error {
		// Losing concurrent writer re-reads as a replay.
		if key := strings.TrimSpace(env.RequestKey); key != "" {
			record, err := tx.GetIdempotency(ctx, env.Actor.ID, key)
			if err != nil {
				return util.NewInternalError(err)
			}
			if record != nil {
				if record.PayloadHash != env.PayloadHash || record.ToolName != env.ToolName {
					return util.NewConflict(
						"IDEMPOTENCY_PAYLOAD_MISMATCH",
						"idempotency key was already used with a different payload",
						map[string]any{"request_key": key},
					)
				}
				result = Result{StatusCode: record.StatusCode, Body: record.Response, Replayed: true}
				return nil
			}
		}

		var ticket *domain.Ticket
		if tool.RequiresTicket() {
			if strings.TrimSpace(env.TicketID) == "" {
				return util.NewValidationError("SCHEMA_VIOLATION", "ticket id is required", nil)
			}
			loaded, err := tx.GetTicketForUpdate(ctx, env.TicketID)
			if err != nil {
				return util.NewInternalError(err)
			}
			if loaded == nil {
				return util.NewNotFound("ticket", map[string]any{"ticket_id": env.TicketID})
			}
			ticket = loaded
		}

		decision, err := ValidateTransition(tool, ticket, env)
		if err != nil {
			return err
		}

		req := &Request{Envelope: env, Tool: tool, Ticket: ticket, Decision: decision, Now: o.now()}
		outcome, err := handler.Execute(ctx, tx, req)
		if err != nil {
			return err
		}

		persisted, err := o.persist(ctx, tx, env, req, outcome)
		if err != nil {
			return err
		}
		result = persisted
		return nil
	})
	if txErr != nil {
		derr := util.ToDomainError(txErr)
		// Post-authorization policy rejections are audited even
		// though the mutation itself rolled back.
		if derr.HTTPStatus < http.StatusInternalServerError {
			o.auditRejection(ctx, env, derr)
		}
		return o.fail(env, StagePersisted, derr)
	}

	if result.Replayed {
		o.metrics.RecordReplay(env.ToolName)
	} else {
		o.metrics.RecordMutation(env.ToolName)
	}
	return result, nil
}

// persist applies the transition decision and writes the atomic
// mutation unit.
func (o *Orchestrator) persist(ctx context.Context, tx MutationTx, env *RequestEnvelope, req *Request, outcome *Outcome) (Result, error) {
	now := req.Now
	ticket := outcome.Ticket
	if ticket == nil {
		ticket = req.Ticket
	}

	finalState := req.Decision.To
	if outcome.State != nil {
		finalState = *outcome.State
	}

	stateChanged := false
	if req.Ticket == nil {
		// Creation tools insert the ticket themselves; its first
		// state still earns a transition-log row.
		stateChanged = ticket != nil && finalState != ""
	} else {
		stateChanged = finalState != "" && finalState != req.Decision.From
	}

	if req.Ticket != nil && (stateChanged || outcome.TicketDirty) {
		if stateChanged {
			ticket.State = finalState
		}
		ticket.Version++
		ticket.UpdatedAt = now
		if err := tx.UpdateTicket(ctx, ticket); err != nil {
			return Result{}, util.NewInternalError(err)
		}
	}

	transitionID := ""
	if stateChanged && ticket != nil {
		entry := &domain.TransitionLogEntry{
			ID:        uuid.NewString(),
			TicketID:  ticket.ID,
			FromState: req.Decision.From,
			ToState:   finalState,
			ToolName:  env.ToolName,
			ActorID:   env.Actor.ID,
			ActorRole: env.Actor.Role,
			CreatedAt: now,
		}
		if err := tx.InsertTransition(ctx, entry); err != nil {
			return Result{}, util.NewInternalError(err)
		}
		transitionID = entry.ID
	}

	audit := o.buildAudit(env, now)
	audit.Payload["outcome"] = "APPLIED"
	for key, value := range outcome.AuditPayload {
		audit.Payload[key] = value
	}
	if ticket != nil {
		audit.TicketID = &ticket.ID
		if req.Ticket != nil {
			before := req.Decision.From
			audit.BeforeState = &before
		}
		after := ticket.State
		audit.AfterState = &after
	}
	if err := tx.InsertAudit(ctx, audit); err != nil {
		return Result{}, util.NewInternalError(err)
	}

	if outcome.Outbox != nil {
		event := outcome.Outbox
		if event.ID == "" {
			event.ID = uuid.NewString()
		}
		if event.IdempotencyKey == "" {
			// One side effect per transition: retries of the same
			// logical transition collide on this key.
			event.IdempotencyKey = fmt.Sprintf("%s:%s:%s", event.AggregateID, event.EventType, transitionID)
		}
		event.Status = domain.OutboxStatusPending
		event.CreatedAt = now
		event.UpdatedAt = now
		event.NextAttemptAt = now
		if err := tx.InsertOutbox(ctx, event); err != nil {
			// Includes the uniqueness violation on the idempotency
			// key: the side effect is never enqueued twice.
			return Result{}, util.NewInternalError(err)
		}
	}

	statusCode := outcome.StatusCode
	if statusCode == 0 {
		statusCode = http.StatusOK
	}
	body, err := json.Marshal(outcome.Response)
	if err != nil {
		return Result{}, util.NewInternalError(err)
	}

	if key := strings.TrimSpace(env.RequestKey); key != "" {
		record := &domain.IdempotencyRecord{
			ActorID:     env.Actor.ID,
			RequestKey:  key,
			ToolName:    env.ToolName,
			PayloadHash: env.PayloadHash,
			Response:    body,
			StatusCode:  statusCode,
			CreatedAt:   now,
		}
		if err := tx.InsertIdempotency(ctx, record); err != nil {
			return Result{}, util.NewInternalError(err)
		}
	}

	return Result{StatusCode: statusCode, Body: body}, nil
}

func (o *Orchestrator) buildAudit(env *RequestEnvelope, now time.Time) *domain.AuditEvent {
	audit := &domain.AuditEvent{
		ID:          uuid.NewString(),
		ActorType:   env.Actor.Type,
		ActorID:     env.Actor.ID,
		ActorRole:   env.Actor.Role,
		ToolName:    env.ToolName,
		RequestID:   env.RequestKey,
		PayloadHash: env.PayloadHash,
		Payload:     map[string]any{},
		CreatedAt:   now,
	}
	if env.CorrelationID != "" {
		correlation := env.CorrelationID
		audit.CorrelationID = &correlation
	}
	if env.TraceID != "" {
		trace := env.TraceID
		audit.TraceID = &trace
	}
	if env.TicketID != "" {
		ticketID := env.TicketID
		audit.TicketID = &ticketID
	}
	return audit
}

// auditRejection records a post-authorization policy failure in its
// own transaction; the mutation it rejects was rolled back.
func (o *Orchestrator) auditRejection(ctx context.Context, env *RequestEnvelope, derr *util.DomainError) {
	err := o.store.InTx(ctx, func(ctx context.Context, tx MutationTx) error {
		audit := o.buildAudit(env, o.now())
		audit.Payload["outcome"] = "REJECTED"
		audit.Payload["error_code"] = derr.Code
		return tx.InsertAudit(ctx, audit)
	})
	if err != nil {
		o.logger.Error("failed to audit rejected mutation",
			zap.String("tool", env.ToolName),
			zap.String("actor_id", env.Actor.ID),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) fail(env *RequestEnvelope, stage Stage, err error) (Result, error) {
	derr := util.ToDomainError(err)
	o.metrics.RecordError(env.ToolName, derr.Code)
	o.logger.Info("mutation rejected",
		zap.String("tool", env.ToolName),
		zap.String("actor_id", env.Actor.ID),
		zap.String("stage", string(stage)),
		zap.String("code", derr.Code),
		zap.String("correlation_id", env.CorrelationID),
	)
	return Result{}, derr
}
