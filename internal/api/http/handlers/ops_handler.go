package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/auth"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/observability"
	"github.com/spec-kit/dispatch-service/internal/pipeline"
	"github.com/spec-kit/dispatch-service/internal/repository"
	"github.com/spec-kit/dispatch-service/pkg/util"
)

const deadLetterPageLimit = 100

// OpsHandler serves the operator surface: outbox dead-letter
// inspection and replay, plus the process counter snapshot.
type OpsHandler struct {
	outbox  *repository.OutboxStore
	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewOpsHandler(outbox *repository.OutboxStore, metrics *observability.Metrics, logger *zap.Logger) *OpsHandler {
	return &OpsHandler{outbox: outbox, metrics: metrics, logger: logger}
}

func (h *OpsHandler) authorize(c *fiber.Ctx) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	env := &pipeline.RequestEnvelope{Actor: actor, ToolName: "outbox.replay"}
	_, err = pipeline.Authorize(env)
	return err
}

// ListDeadLetters returns events that exhausted their attempts.
func (h *OpsHandler) ListDeadLetters(c *fiber.Ctx) error {
	if err := h.authorize(c); err != nil {
		return err
	}
	events, err := h.outbox.ListDeadLetters(c.UserContext(), deadLetterPageLimit)
	if err != nil {
		return util.NewInternalError(err)
	}
	views := make([]fiber.Map, 0, len(events))
	for _, event := range events {
		views = append(views, deadLetterView(event))
	}
	return c.JSON(fiber.Map{"dead_letters": views})
}

// Replay requeues one dead-lettered event with a fresh attempt
// budget. The original idempotency key survives so a provider that
// already saw the message still dedupes it.
func (h *OpsHandler) Replay(c *fiber.Ctx) error {
	if err := h.authorize(c); err != nil {
		return err
	}
	outboxID := c.Params("outboxId")
	replayed, err := h.outbox.Replay(c.UserContext(), outboxID, time.Now())
	if err != nil {
		return util.NewInternalError(err)
	}
	if !replayed {
		return util.NewNotFound("outbox_event", map[string]any{"outbox_id": outboxID})
	}

	actor, _ := auth.ActorFromContext(c)
	h.logger.Info("outbox event replayed",
		zap.String("outbox_id", outboxID),
		zap.String("actor_id", actor.ID),
	)
	return c.JSON(fiber.Map{
		"outbox_id": outboxID,
		"status":    string(domain.OutboxStatusPending),
	})
}

// Metrics returns the in-process counter snapshot.
func (h *OpsHandler) Metrics(c *fiber.Ctx) error {
	if err := h.authorize(c); err != nil {
		return err
	}
	return c.JSON(h.metrics.Snapshot())
}

func deadLetterView(event domain.OutboxEvent) fiber.Map {
	view := fiber.Map{
		"id":              event.ID,
		"aggregate_type":  event.AggregateType,
		"aggregate_id":    event.AggregateID,
		"event_type":      event.EventType,
		"idempotency_key": event.IdempotencyKey,
		"attempt_count":   event.AttemptCount,
		"created_at":      event.CreatedAt,
		"updated_at":      event.UpdatedAt,
	}
	if event.LastError != nil {
		view["last_error"] = *event.LastError
	}
	return view
}
