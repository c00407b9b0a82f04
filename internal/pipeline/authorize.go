package pipeline

import (
	"errors"
	"fmt"

	"github.com/spec-kit/dispatch-service/internal/policy"
	"github.com/spec-kit/dispatch-service/pkg/util"
)

// Authorize resolves the tool policy for the envelope and checks the
// actor's role against it. The actor role is rewritten to its
// canonical form on success. Runs before any persistence and before
// transition validation.
func Authorize(env *RequestEnvelope) (policy.ToolPolicy, error) {
	tool, ok := policy.Lookup(env.ToolName)
	if !ok {
		return policy.ToolPolicy{}, util.NewValidationError(
			"UNKNOWN_TOOL",
			fmt.Sprintf("tool %q is not part of the dispatch contract", env.ToolName),
			nil,
		)
	}

	canonical, err := policy.NormalizeRole(env.Actor.Role)
	if err != nil {
		var unknown *policy.UnknownRoleError
		if errors.As(err, &unknown) {
			return policy.ToolPolicy{}, util.NewUnauthorized(
				fmt.Sprintf("unknown actor role %q", unknown.Supplied),
			)
		}
		return policy.ToolPolicy{}, util.NewInternalError(err)
	}
	env.Actor.Role = canonical

	if !tool.AllowsRole(canonical) {
		return policy.ToolPolicy{}, util.NewForbidden(
			"TOOL_ROLE_FORBIDDEN",
			fmt.Sprintf("role %q may not invoke %s", canonical, tool.ToolName),
		)
	}
	return tool, nil
}
