package pipeline

import (
	"fmt"
	"strings"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/policy"
	"github.com/spec-kit/dispatch-service/pkg/util"
)

// TransitionDecision is the resolved outcome of transition
// validation: where the ticket is, where the tool takes it, and
// whether a bypass path was exercised.
type TransitionDecision struct {
	From       domain.TicketState
	To         domain.TicketState
	Changed    bool
	BypassMode string
}

// ValidateTransition enforces the tool's allowed-source-state set and
// resolves the resulting state. Bypass evaluation runs first when the
// payload claims the tool's bypass mode: all of the rule's extra
// fields must be present and non-empty and the actor identity must be
// resolvable when the rule demands it. An incomplete bypass fails
// closed. Bypass changes which fields are mandatory, never the
// legality of the source state.
func ValidateTransition(tool policy.ToolPolicy, ticket *domain.Ticket, env *RequestEnvelope) (TransitionDecision, error) {
	decision := TransitionDecision{}

	if tool.Bypass != nil {
		mode, err := evaluateBypass(tool.Bypass, env)
		if err != nil {
			return decision, err
		}
		decision.BypassMode = mode
	}

	if ticket == nil {
		// Creation tools have no source state; the resulting state
		// is the ticket's first.
		decision.To = tool.ResultingState
		decision.Changed = decision.To != ""
		return decision, nil
	}

	decision.From = ticket.State
	if !tool.AllowsSourceState(ticket.State) {
		allowed := make([]string, 0, len(tool.AllowedFromStates))
		for _, state := range tool.AllowedFromStates {
			allowed = append(allowed, string(state))
		}
		return decision, util.NewConflict(
			"INVALID_STATE_TRANSITION",
			fmt.Sprintf("%s is not legal from state %s", tool.ToolName, ticket.State),
			map[string]any{
				"current_state":       string(ticket.State),
				"allowed_from_states": allowed,
			},
		)
	}

	if tool.ResultingState != "" && tool.ResultingState != ticket.State {
		decision.To = tool.ResultingState
		decision.Changed = true
	} else {
		decision.To = ticket.State
	}
	return decision, nil
}

// evaluateBypass returns the claimed bypass mode, or "" when the
// payload takes the standard path.
func evaluateBypass(rule *policy.BypassRule, env *RequestEnvelope) (string, error) {
	claimed, _ := env.Payload[rule.ModeField].(string)
	if claimed != rule.RequiredMode {
		return "", nil
	}

	missing := make([]string, 0)
	for _, field := range rule.RequiredFields {
		if !bypassFieldPresent(env.Payload[field]) {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return "", util.NewValidationError(
			"SCHEMA_VIOLATION",
			fmt.Sprintf("%s mode requires additional justification fields", rule.RequiredMode),
			map[string]any{
				"bypass_mode":    rule.RequiredMode,
				"missing_fields": missing,
			},
		)
	}
	if rule.RequireActorIdentity && strings.TrimSpace(env.Actor.ID) == "" {
		return "", util.NewUnauthorized("bypass mode requires a verifiable actor identity")
	}
	return claimed, nil
}

func bypassFieldPresent(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case bool:
		return v
	default:
		return true
	}
}
