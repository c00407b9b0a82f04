package policy

import (
	"sort"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// FieldExport is the serializable form of one payload field
// constraint. Zero-valued limits are omitted so the export only shows
// constraints the validator actually enforces.
type FieldExport struct {
	Name     string    `json:"name"`
	Kind     FieldKind `json:"kind"`
	MinLen   int       `json:"min_len,omitempty"`
	Min      *float64  `json:"min,omitempty"`
	Max      *float64  `json:"max,omitempty"`
	Enum     []string  `json:"enum,omitempty"`
	MinItems int       `json:"min_items,omitempty"`
}

// PayloadSchemaExport mirrors PayloadSchema for contract consumers.
type PayloadSchemaExport struct {
	Required         []FieldExport `json:"required"`
	Optional         []FieldExport `json:"optional"`
	AdditionalClosed bool          `json:"additional_closed"`
}

// BypassExport is the serializable form of a tool's bypass rule:
// claiming RequiredMode in ModeField makes RequiredFields mandatory.
type BypassExport struct {
	ModeField            string   `json:"mode_field"`
	RequiredMode         string   `json:"required_mode"`
	RequiredFields       []string `json:"required_fields"`
	RequireActorIdentity bool     `json:"require_actor_identity"`
}

// ToolExport is the externally consumable projection of one catalog
// entry, used by the router, the drift detector and the contract
// endpoint.
type ToolExport struct {
	ToolName            string               `json:"tool_name"`
	Method              string               `json:"method"`
	Route               string               `json:"route"`
	AllowedRoles        []string             `json:"allowed_roles"`
	AllowedFromStates   []domain.TicketState `json:"allowed_from_states"`
	ResultingState      *domain.TicketState  `json:"resulting_state"`
	IdempotencyRequired bool                 `json:"idempotency_required"`
	Mutating            bool                 `json:"mutating"`
	Override            bool                 `json:"override"`
	RequiresTicket      bool                 `json:"requires_ticket"`
	Payload             PayloadSchemaExport  `json:"payload"`
	Bypass              *BypassExport        `json:"bypass"`
}

// Export returns the full catalog sorted by tool name.
func Export() []ToolExport {
	exports := make([]ToolExport, 0, len(catalog))
	for _, entry := range catalog {
		export := ToolExport{
			ToolName:            entry.ToolName,
			Method:              entry.Method,
			Route:               entry.Route,
			AllowedRoles:        append([]string(nil), entry.AllowedRoles...),
			IdempotencyRequired: entry.IdempotencyRequired,
			Mutating:            entry.Mutating,
			Override:            entry.Override,
			RequiresTicket:      entry.RequiresTicket(),
			Payload:             exportPayloadSchema(entry.Payload),
			Bypass:              exportBypassRule(entry.Bypass),
		}
		if entry.AllowedFromStates != nil {
			export.AllowedFromStates = append([]domain.TicketState(nil), entry.AllowedFromStates...)
		}
		if entry.ResultingState != "" {
			resulting := entry.ResultingState
			export.ResultingState = &resulting
		}
		exports = append(exports, export)
	}
	sort.Slice(exports, func(i, j int) bool {
		return exports[i].ToolName < exports[j].ToolName
	})
	return exports
}

func exportPayloadSchema(schema PayloadSchema) PayloadSchemaExport {
	return PayloadSchemaExport{
		Required:         exportFields(schema.Required),
		Optional:         exportFields(schema.Optional),
		AdditionalClosed: schema.AdditionalClosed,
	}
}

func exportFields(fields []Field) []FieldExport {
	exports := make([]FieldExport, 0, len(fields))
	for _, field := range fields {
		export := FieldExport{
			Name:     field.Name,
			Kind:     field.Kind,
			MinLen:   field.MinLen,
			MinItems: field.MinItems,
		}
		if field.HasRange {
			min := field.Min
			export.Min = &min
			// An upper bound at or below Min is the validator's "no
			// upper bound", so it stays out of the export too.
			if field.Max > field.Min {
				max := field.Max
				export.Max = &max
			}
		}
		if field.Enum != nil {
			export.Enum = append([]string(nil), field.Enum...)
		}
		exports = append(exports, export)
	}
	return exports
}

func exportBypassRule(rule *BypassRule) *BypassExport {
	if rule == nil {
		return nil
	}
	return &BypassExport{
		ModeField:            rule.ModeField,
		RequiredMode:         rule.RequiredMode,
		RequiredFields:       append([]string(nil), rule.RequiredFields...),
		RequireActorIdentity: rule.RequireActorIdentity,
	}
}
