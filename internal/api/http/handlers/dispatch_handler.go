package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/auth"
	"github.com/spec-kit/dispatch-service/internal/pipeline"
	"github.com/spec-kit/dispatch-service/pkg/util"
)

// DispatchHandler funnels every mutating tool route into the
// orchestrator. The route itself only contributes the tool name and
// the ticket id; all policy lives in the pipeline.
type DispatchHandler struct {
	orchestrator *pipeline.Orchestrator
	logger       *zap.Logger
}

func NewDispatchHandler(orchestrator *pipeline.Orchestrator, logger *zap.Logger) *DispatchHandler {
	return &DispatchHandler{orchestrator: orchestrator, logger: logger}
}

// Invoke returns the fiber handler for one tool route.
func (h *DispatchHandler) Invoke(toolName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.RequireActor(c)
		if err != nil {
			return err
		}

		payload := map[string]any{}
		if body := c.Body(); len(body) > 0 {
			if err := json.Unmarshal(body, &payload); err != nil {
				return util.NewValidationError(
					"SCHEMA_VIOLATION",
					"request body must be a JSON object",
					nil,
				)
			}
		}

		env := &pipeline.RequestEnvelope{
			Actor:         actor,
			ToolName:      toolName,
			RequestKey:    c.Get("X-Request-Id"),
			CorrelationID: c.Get("X-Correlation-Id"),
			TraceID:       c.Get("X-Trace-Id"),
			TicketID:      c.Params("ticketId"),
			Payload:       payload,
		}

		result, err := h.orchestrator.Execute(c.UserContext(), env)
		if err != nil {
			return err
		}
		if result.Replayed {
			c.Set("X-Idempotent-Replay", "true")
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Status(result.StatusCode).Send(result.Body)
	}
}
