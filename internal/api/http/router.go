package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/dispatch-service/internal/api/http/handlers"
	"github.com/spec-kit/dispatch-service/internal/auth"
	"github.com/spec-kit/dispatch-service/internal/policy"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Dispatch       *handlers.DispatchHandler
	Tickets        *handlers.TicketsHandler
	Ops            *handlers.OpsHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes. Mutating tool routes are derived
// from the contract catalog so the router can never disagree with the
// policy table about method or path.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/drift", cfg.Health.Drift)
	app.Get("/contract", cfg.Health.Contract)

	protected := app.Group("", cfg.AuthMiddleware.Handle)

	for _, tool := range policy.Export() {
		if !tool.Mutating {
			continue
		}
		registerToolRoute(protected, tool, cfg.Dispatch.Invoke(tool.ToolName))
	}

	protected.Get("/tickets/:ticketId", cfg.Tickets.Get)
	protected.Get("/tickets/:ticketId/evidence", cfg.Tickets.ListEvidence)
	protected.Get("/tickets/:ticketId/timeline", cfg.Tickets.Timeline)

	protected.Get("/ops/outbox/dead-letters", cfg.Ops.ListDeadLetters)
	protected.Post("/ops/outbox/:outboxId/replay", cfg.Ops.Replay)
	protected.Get("/ops/metrics", cfg.Ops.Metrics)
}

func registerToolRoute(router fiber.Router, tool policy.ToolExport, handler fiber.Handler) {
	path := fiberPath(tool.Route)
	switch tool.Method {
	case fiber.MethodPost:
		router.Post(path, handler)
	case fiber.MethodPut:
		router.Put(path, handler)
	case fiber.MethodPatch:
		router.Patch(path, handler)
	default:
		router.Get(path, handler)
	}
}

// fiberPath converts contract route templates ({ticketId}) to fiber
// parameter syntax (:ticketId).
func fiberPath(route string) string {
	replacer := strings.NewReplacer("{", ":", "}", "")
	return replacer.Replace(route)
}
