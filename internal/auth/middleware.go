package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/pkg/util"
)

const actorKey = "auth_actor"

// Middleware validates bearer tokens and stores the resolved actor on
// the request context.
type Middleware struct {
	verifier *Verifier
}

func NewMiddleware(verifier *Verifier) *Middleware {
	return &Middleware{verifier: verifier}
}

// Handle enforces authentication for protected routes.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	actor, err := m.verifier.Authenticate(c.Get("Authorization"))
	if err != nil {
		return err
	}
	c.Locals(actorKey, actor)
	return c.Next()
}

// ActorFromContext retrieves the authenticated actor.
func ActorFromContext(c *fiber.Ctx) (domain.Actor, bool) {
	actor, ok := c.Locals(actorKey).(domain.Actor)
	return actor, ok
}

// RequireActor is a convenience for handlers that cannot run without
// an authenticated caller.
func RequireActor(c *fiber.Ctx) (domain.Actor, error) {
	actor, ok := ActorFromContext(c)
	if !ok {
		return domain.Actor{}, util.NewUnauthorized("request is not authenticated")
	}
	return actor, nil
}
