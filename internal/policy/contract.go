// Package policy holds the declarative tool catalog: which roles may
// invoke each tool, which source states are legal, what state results,
// and what extra obligations (idempotency, bypass fields) apply. Every
// other pipeline component consumes this table; none re-declare its
// facts.
package policy

import "github.com/spec-kit/dispatch-service/internal/domain"

// FieldKind enumerates the payload field shapes the generic validator
// understands.
type FieldKind string

const (
	KindString   FieldKind = "string"
	KindUUID     FieldKind = "uuid"
	KindNumber   FieldKind = "number"
	KindInteger  FieldKind = "integer"
	KindBoolean  FieldKind = "boolean"
	KindDateTime FieldKind = "datetime"
	KindObject   FieldKind = "object"
	KindArray    FieldKind = "array"
)

// Field describes one payload field constraint.
type Field struct {
	Name     string
	Kind     FieldKind
	MinLen   int
	Min      float64
	Max      float64
	HasRange bool
	Enum     []string
	MinItems int
}

// PayloadSchema is the declarative shape of a tool payload. Unknown
// extra fields are tolerated on mutating tools and rejected on reads.
type PayloadSchema struct {
	Required         []Field
	Optional         []Field
	AdditionalClosed bool
}

// BypassRule declares the alternate, more-permissive execution path a
// tool may offer: claiming the mode makes the listed fields mandatory.
type BypassRule struct {
	ModeField            string
	RequiredMode         string
	RequiredFields       []string
	RequireActorIdentity bool
}

// ToolPolicy is one immutable catalog entry.
type ToolPolicy struct {
	ToolName            string
	Method              string
	Route               string
	AllowedRoles        []string
	AllowedFromStates   []domain.TicketState // nil means any source state
	ResultingState      domain.TicketState   // empty means unchanged
	IdempotencyRequired bool
	Mutating            bool
	Override            bool
	Payload             PayloadSchema
	Bypass              *BypassRule
}

// Lookup returns the catalog entry for a tool name.
func Lookup(toolName string) (ToolPolicy, bool) {
	entry, ok := catalog[toolName]
	return entry, ok
}

// ToolNames returns every catalog key (unsorted).
func ToolNames() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	return names
}

// AllowsSourceState reports whether the entry admits the given state.
func (p ToolPolicy) AllowsSourceState(state domain.TicketState) bool {
	if p.AllowedFromStates == nil {
		return true
	}
	for _, candidate := range p.AllowedFromStates {
		if candidate == state {
			return true
		}
	}
	return false
}

// AllowsRole reports whether the canonical role may invoke the tool.
func (p ToolPolicy) AllowsRole(role string) bool {
	for _, candidate := range p.AllowedRoles {
		if candidate == role {
			return true
		}
	}
	return false
}

// RequiresTicket reports whether the tool operates on an existing
// ticket (route-scoped).
func (p ToolPolicy) RequiresTicket() bool {
	return routeNeedsTicket(p.Route)
}

func routeNeedsTicket(route string) bool {
	for i := 0; i+9 <= len(route); i++ {
		if route[i:i+9] == "{ticketId" {
			return true
		}
	}
	return false
}

var anyState []domain.TicketState = nil

var allActiveStates = []domain.TicketState{
	domain.TicketStateNew,
	domain.TicketStateNeedsInfo,
	domain.TicketStateTriaged,
	domain.TicketStateApprovalRequired,
	domain.TicketStateReadyToSchedule,
	domain.TicketStateScheduleProposed,
	domain.TicketStateScheduled,
	domain.TicketStatePendingCustomerConf,
	domain.TicketStateDispatched,
	domain.TicketStateOnSite,
	domain.TicketStateInProgress,
	domain.TicketStateOnHold,
	domain.TicketStateCompletedPendingVerf,
	domain.TicketStateVerified,
	domain.TicketStateInvoiced,
}

var priorityEnum = []string{"EMERGENCY", "URGENT", "ROUTINE"}

var scheduleWindowFields = Field{Name: "options", Kind: KindArray, MinItems: 1}

var catalog = map[string]ToolPolicy{
	"ticket.create": {
		ToolName:            "ticket.create",
		Method:              "POST",
		Route:               "/tickets",
		AllowedRoles:        []string{RoleDispatcher, RoleAgent},
		AllowedFromStates:   anyState,
		ResultingState:      domain.TicketStateNew,
		IdempotencyRequired: true,
		Mutating:            true,
		Payload: PayloadSchema{
			Required: []Field{
				{Name: "account_id", Kind: KindUUID},
				{Name: "site_id", Kind: KindUUID},
				{Name: "summary", Kind: KindString, MinLen: 1},
			},
			Optional: []Field{
				{Name: "description", Kind: KindString, MinLen: 1},
				{Name: "asset_id", Kind: KindUUID},
				{Name: "nte_cents", Kind: KindNumber, Min: 0, HasRange: true},
			},
		},
	},
	"ticket.blind_intake": {
		ToolName:            "ticket.blind_intake",
		Method:              "POST",
		Route:               "/tickets/intake",
		AllowedRoles:        []string{RoleDispatcher, RoleAgent},
		AllowedFromStates:   anyState,
		IdempotencyRequired: true,
		Mutating:            true,
		Payload: PayloadSchema{
			Required: []Field{
				{Name: "account_id", Kind: KindUUID},
				{Name: "site_id", Kind: KindUUID},
				{Name: "summary", Kind: KindString, MinLen: 1},
				{Name: "incident_type", Kind: KindString, MinLen: 1},
				{Name: "customer_name", Kind: KindString, MinLen: 1},
				{Name: "priority", Kind: KindString, Enum: priorityEnum},
				{Name: "identity_confidence", Kind: KindNumber, Min: 0, Max: 100, HasRange: true},
				{Name: "classification_confidence", Kind: KindNumber, Min: 0, Max: 100, HasRange: true},
			},
			Optional: []Field{
				{Name: "contact_phone", Kind: KindString, MinLen: 7},
				{Name: "contact_email", Kind: KindString, MinLen: 3},
				{Name: "description", Kind: KindString, MinLen: 1},
				{Name: "nte_cents", Kind: KindNumber, Min: 0, HasRange: true},
				{Name: "sop_handoff_acknowledged", Kind: KindBoolean},
				{Name: "sop_handoff_prompt", Kind: KindString, MinLen: 1},
			},
		},
	},
	"ticket.triage": {
		ToolName: "ticket.triage",
		Method:   "POST",
		Route:    "/tickets/{ticketId}/triage",
		AllowedRoles: []string{
			RoleDispatcher, RoleAgent,
		},
		AllowedFromStates: []domain.TicketState{
			domain.TicketStateNew,
			domain.TicketStateNeedsInfo,
			domain.TicketStateTriaged,
		},
		ResultingState:      domain.TicketStateTriaged,
		IdempotencyRequired: true,
		Mutating:            true,
		Payload: PayloadSchema{
			Required: []Field{
				{Name: "priority", Kind: KindString, Enum: priorityEnum},
				{Name: "incident_type", Kind: KindString, MinLen: 1},
			},
			Optional: []Field{
				{Name: "nte_cents", Kind: KindNumber, Min: 0, HasRange: true},
				{Name: "workflow_outcome", Kind: KindString, Enum: []string{"TRIAGED", "READY_TO_SCHEDULE", "APPROVAL_REQUIRED"}},
				{Name: "ready_to_schedule", Kind: KindBoolean},
				{Name: "requires_approval", Kind: KindBoolean},
				{Name: "approval_reason", Kind: KindString, MinLen: 1},
				{Name: "approval_amount_delta_cents", Kind: KindNumber, Min: 0, HasRange: true},
				{Name: "sop_handoff_acknowledged", Kind: KindBoolean},
			},
		},
	},
	"schedule.propose": {
		ToolName:            "schedule.propose",
		Method:              "POST",
		Route:               "/tickets/{ticketId}/schedule/propose",
		AllowedRoles:        []string{RoleDispatcher, RoleAgent},
		AllowedFromStates:   []domain.TicketState{domain.TicketStateReadyToSchedule},
		ResultingState:      domain.TicketStateScheduleProposed,
		IdempotencyRequired: true,
		Mutating:            true,
		Payload: PayloadSchema{
			Required: []Field{scheduleWindowFields},
		},
	},
	"schedule.confirm": {
		ToolName:            "schedule.confirm",
		Method:              "POST",
		Route:               "/tickets/{ticketId}/schedule/confirm",
		AllowedRoles:        []string{RoleDispatcher},
		AllowedFromStates:   []domain.TicketState{domain.TicketStateScheduleProposed},
		ResultingState:      domain.TicketStateScheduled,
		IdempotencyRequired: true,
		Mutating:            true,
		Payload: PayloadSchema{
			Required: []Field{
				{Name: "start", Kind: KindDateTime},
				{Name: "end", Kind: KindDateTime},
			},
		},
	},
	"schedule.hold": {
		ToolName:            "schedule.hold",
		Method:              "POST",
		Route:               "/tickets/{ticketId}/schedule/hold",
		AllowedRoles:        []string{RoleDispatcher},
		AllowedFromStates:   []domain.TicketState{domain.TicketStateScheduleProposed, domain.TicketStateScheduled},
		ResultingState:      domain.TicketStatePendingCustomerConf,
		IdempotencyRequired: true,
		Mutating:            true,
		Payload: PayloadSchema{
			Required: []Field{
				{Name: "hold_reason", Kind: KindString, Enum: []string{"CUSTOMER_PENDING", "CUSTOMER_UNREACHABLE", "CUSTOMER_CONFIRMATION_STALE"}},
				{Name: "confirmation_window", Kind: KindObject},
			},
		},
	},
	"schedule.release": {
		ToolName:            "schedule.release",
		Method:              "POST",
		Route:               "/tickets/{ticketId}/schedule/release",
		AllowedRoles:        []string{RoleDispatcher},
		AllowedFromStates:   []domain.TicketState{domain.TicketStatePendingCustomerConf},
		ResultingState:      domain.TicketStateScheduled,
		IdempotencyRequired: true,
		Mutating:            true,
		Payload: PayloadSchema{
			Required: []Field{
				{Name: "customer_confirmation_id", Kind: KindUUID},
			},
		},
	},
	"schedule.rollback": {
		ToolName:            "schedule.rollback",
		Method:              "POST",
		Route:               "/tickets/{ticketId}/schedule/rollback",
		AllowedRoles:        []string{RoleDispatcher},
		AllowedFromStates:   []domain.TicketState{domain.TicketStatePendingCustomerConf},
		ResultingState:      domain.TicketStateReadyToSchedule,
		IdempotencyRequired: true,
		Mutating:            true,
		Payload: PayloadSchema{
			Required: []Field{
				{Name: "confirmation_id", Kind: KindUUID},
			},
			Optional: []Field{
				{Name: "reason", Kind: KindString, MinLen: 1},
			},
		},
	},
	"assignment.dispatch": {
		ToolName:            "assignment.dispatch",
		Method:              "POST",
		Route:               "/tickets/{ticketId}/assignment/dispatch",
		AllowedRoles:        []string{RoleDispatcher},
		AllowedFromStates:   []domain.TicketState{domain.TicketStateTriaged, domain.TicketStateScheduled},
		ResultingState:      domain.TicketStateDispatched,
		IdempotencyRequired: true,
		Mutating:            true,
		Payload: PayloadSchema{
			Required: []Field{
				{Name: "tech_id", Kind: KindUUID},
			},
			Optional: []Field{
				{Name: "provider_id", Kind: KindUUID},
				{Name: "dispatch_mode", Kind: KindString, Enum: []string{"STANDARD", "EMERGENCY_BYPASS"}},
				{Name: "dispatch_rationale", Kind: KindString, MinLen: 1},
				{Name: "dispatch_confirmation", Kind: KindBoolean},
				{Name: "recommendation_snapshot_id", Kind: KindUUID},
			},
		},
		Bypass: &BypassRule{
			ModeField:            "dispatch_mode",
			RequiredMode:         "EMERGENCY_BYPASS",
			RequiredFields:       []string{"dispatch_rationale", "dispatch_confirmation"},
			RequireActorIdentity: true,
		},
	},
	"assignment.recommend": {
		ToolName: "assignment.recommend",
		Method:   "POST",
		Route:    "/tickets/{ticketId}/assignment/recommend",
		AllowedRoles: []string{
			RoleDispatcher, RoleAgent,
		},
		AllowedFromStates: []domain.TicketState{
			domain.TicketStateScheduled,
			domain.TicketStateReadyToSchedule,
			domain.TicketStateScheduleProposed,
		},
		IdempotencyRequired: true,
		Mutating:            true,
		Payload: PayloadSchema{
			Required: []Field{
				{Name: "service_type", Kind: KindString, MinLen: 1},
			},
			Optional: []Field{
				{Name: "recommendation_limit", Kind: KindInteger, Min: 1, Max: 20, HasRange: true},
				{Name: "preferred_window", Kind: KindObject},
			},
		},
	},
	"tech.check_in": {
		ToolName:            "tech.check_in",
		Method:              "POST",
		Route:               "/tickets/{ticketId}/tech/check-in",
		AllowedRoles:        []string{RoleTechnician, RoleDispatcher},
		AllowedFromStates:   []domain.TicketState{domain.TicketStateDispatched},
		ResultingState:      domain.TicketStateInProgress,
		IdempotencyRequired: true,
		Mutating:            true,
		Payload: PayloadSchema{
			Required: []Field{
				{Name: "timestamp", Kind: KindDateTime},
			},
			Optional: []Field{
				{Name: "location", Kind: KindObject},
			},
		},
	},
	"tech.request_change": {
		ToolName:            "tech.request_change",
		Method:              "POST",
		Route:               "/tickets/{ticketId}/tech/request-change",
		AllowedRoles:        []string{RoleTechnician},
		AllowedFromStates:   []domain.TicketState{domain.TicketStateInProgress},
		ResultingState:      domain.TicketStateApprovalRequired,
		IdempotencyRequired: true,
		Mutating:            true,
		Payload: PayloadSchema{
			Required: []Field{
				{Name: "approval_type", Kind: KindString, Enum: []string{"NTE_INCREASE", "PROPOSAL"}},
				{Name: "reason", Kind: KindString, MinLen: 1},
			},
			Optional: []Field{
				{Name: "amount_delta_cents", Kind: KindNumber, Min: 0, HasRange: true},
				{Name: "evidence_refs", Kind: KindArray},
			},
		},
	},
	"approval.decide": {
		ToolName:            "approval.decide",
		Method:              "POST",
		Route:               "/tickets/{ticketId}/approval/decide",
		AllowedRoles:        []string{RoleApprover, RoleDispatcher},
		AllowedFromStates:   []domain.TicketState{domain.TicketStateApprovalRequired},
		ResultingState:      domain.TicketStateInProgress,
		IdempotencyRequired: true,
		Mutating:            true,
		Payload: PayloadSchema{
			Required: []Field{
				{Name: "approval_id", Kind: KindUUID},
				{Name: "decision", Kind: KindString, Enum: []string{"APPROVED", "DENIED"}},
			},
			Optional: []Field{
				{Name: "notes", Kind: KindString, MinLen: 1},
			},
		},
	},
	"closeout.add_evidence": {
		ToolName:            "closeout.add_evidence",
		Method:              "POST",
		Route:               "/tickets/{ticketId}/evidence",
		AllowedRoles:        []string{RoleDispatcher, RoleAgent, RoleTechnician},
		AllowedFromStates:   anyState,
		IdempotencyRequired: true,
		Mutating:            true,
		Payload: PayloadSchema{
			Required: []Field{
				{Name: "kind", Kind: KindString, MinLen: 1},
				{Name: "uri", Kind: KindString, MinLen: 1},
			},
			Optional: []Field{
				{Name: "checksum", Kind: KindString, MinLen: 1},
				{Name: "evidence_key", Kind: KindString, MinLen: 1},
				{Name: "metadata", Kind: KindObject},
			},
		},
	},
	"closeout.candidate": {
		ToolName:            "closeout.candidate",
		Method:              "POST",
		Route:               "/tickets/{ticketId}/closeout/candidate",
		AllowedRoles:        []string{RoleDispatcher, RoleAgent, RoleTechnician},
		AllowedFromStates:   []domain.TicketState{domain.TicketStateInProgress},
		ResultingState:      domain.TicketStateCompletedPendingVerf,
		IdempotencyRequired: true,
		Mutating:            true,
		Payload: PayloadSchema{
			Required: []Field{
				{Name: "checklist_status", Kind: KindObject},
			},
			Optional: []Field{
				{Name: "no_signature_reason", Kind: KindString, MinLen: 1},
				{Name: "evidence_refs", Kind: KindArray},
			},
		},
	},
	"tech.complete": {
		ToolName:            "tech.complete",
		Method:              "POST",
		Route:               "/tickets/{ticketId}/tech/complete",
		AllowedRoles:        []string{RoleDispatcher, RoleTechnician},
		AllowedFromStates:   []domain.TicketState{domain.TicketStateInProgress},
		ResultingState:      domain.TicketStateCompletedPendingVerf,
		IdempotencyRequired: true,
		Mutating:            true,
		Payload: PayloadSchema{
			Required: []Field{
				{Name: "checklist_status", Kind: KindObject},
			},
			Optional: []Field{
				{Name: "no_signature_reason", Kind: KindString, MinLen: 1},
				{Name: "evidence_refs", Kind: KindArray},
			},
		},
	},
	"qa.verify": {
		ToolName:            "qa.verify",
		Method:              "POST",
		Route:               "/tickets/{ticketId}/qa/verify",
		AllowedRoles:        []string{RoleQA, RoleDispatcher},
		AllowedFromStates:   []domain.TicketState{domain.TicketStateCompletedPendingVerf},
		ResultingState:      domain.TicketStateVerified,
		IdempotencyRequired: true,
		Mutating:            true,
		Payload: PayloadSchema{
			Required: []Field{
				{Name: "timestamp", Kind: KindDateTime},
				{Name: "result", Kind: KindString, Enum: []string{"PASS", "FAIL"}},
			},
			Optional: []Field{
				{Name: "notes", Kind: KindString, MinLen: 1},
			},
		},
	},
	"billing.generate_invoice": {
		ToolName:            "billing.generate_invoice",
		Method:              "POST",
		Route:               "/tickets/{ticketId}/billing/generate-invoice",
		AllowedRoles:        []string{RoleFinance},
		AllowedFromStates:   []domain.TicketState{domain.TicketStateVerified},
		ResultingState:      domain.TicketStateInvoiced,
		IdempotencyRequired: true,
		Mutating:            true,
		Payload:             PayloadSchema{},
	},
	"ticket.close": {
		ToolName:            "ticket.close",
		Method:              "POST",
		Route:               "/tickets/{ticketId}/close",
		AllowedRoles:        []string{RoleDispatcher, RoleFinance, RoleApprover},
		AllowedFromStates:   []domain.TicketState{domain.TicketStateVerified, domain.TicketStateInvoiced},
		ResultingState:      domain.TicketStateClosed,
		IdempotencyRequired: true,
		Mutating:            true,
		Payload: PayloadSchema{
			Optional: []Field{
				{Name: "reason", Kind: KindString, MinLen: 1},
				{Name: "closeout_override_code", Kind: KindString, MinLen: 1},
			},
		},
	},
	"ticket.force_close": {
		ToolName:            "ticket.force_close",
		Method:              "POST",
		Route:               "/tickets/{ticketId}/force-close",
		AllowedRoles:        []string{RoleDispatcher, RoleApprover},
		AllowedFromStates:   []domain.TicketState{domain.TicketStateCompletedPendingVerf},
		ResultingState:      domain.TicketStateClosed,
		IdempotencyRequired: true,
		Mutating:            true,
		Override:            true,
		Payload: PayloadSchema{
			Required: []Field{
				{Name: "override_code", Kind: KindString, MinLen: 5},
				{Name: "override_reason", Kind: KindString, MinLen: 20},
				{Name: "approver_role", Kind: KindString, MinLen: 1},
			},
		},
	},
	"ticket.cancel": {
		ToolName:            "ticket.cancel",
		Method:              "POST",
		Route:               "/tickets/{ticketId}/cancel",
		AllowedRoles:        []string{RoleDispatcher, RoleApprover, RoleFinance},
		AllowedFromStates:   allActiveStates,
		ResultingState:      domain.TicketStateCancelled,
		IdempotencyRequired: true,
		Mutating:            true,
		Payload: PayloadSchema{
			Required: []Field{
				{Name: "reason", Kind: KindString, MinLen: 1},
			},
			Optional: []Field{
				{Name: "cancellation_code", Kind: KindString, MinLen: 1},
			},
		},
	},
	"dispatch.force_hold": {
		ToolName:     "dispatch.force_hold",
		Method:       "POST",
		Route:        "/tickets/{ticketId}/dispatch/force-hold",
		AllowedRoles: []string{RoleDispatcher},
		AllowedFromStates: []domain.TicketState{
			domain.TicketStateDispatched,
			domain.TicketStateOnSite,
			domain.TicketStateInProgress,
		},
		ResultingState:      domain.TicketStateOnHold,
		IdempotencyRequired: true,
		Mutating:            true,
		Override:            true,
		Payload: PayloadSchema{
			Optional: []Field{
				{Name: "hold_reason", Kind: KindString, Enum: []string{"CUSTOMER_PENDING", "CUSTOMER_UNREACHABLE", "CUSTOMER_CONFIRMATION_STALE"}},
				{Name: "reason", Kind: KindString, MinLen: 1},
			},
		},
	},
	"dispatch.force_unassign": {
		ToolName:     "dispatch.force_unassign",
		Method:       "POST",
		Route:        "/tickets/{ticketId}/dispatch/force-unassign",
		AllowedRoles: []string{RoleDispatcher},
		AllowedFromStates: []domain.TicketState{
			domain.TicketStateReadyToSchedule,
			domain.TicketStateScheduleProposed,
			domain.TicketStateScheduled,
			domain.TicketStatePendingCustomerConf,
			domain.TicketStateDispatched,
			domain.TicketStateOnSite,
			domain.TicketStateInProgress,
			domain.TicketStateOnHold,
			domain.TicketStateCompletedPendingVerf,
			domain.TicketStateVerified,
			domain.TicketStateInvoiced,
		},
		ResultingState:      domain.TicketStateScheduled,
		IdempotencyRequired: true,
		Mutating:            true,
		Payload: PayloadSchema{
			Optional: []Field{
				{Name: "reason", Kind: KindString, MinLen: 1},
				{Name: "reassign_type", Kind: KindString, MinLen: 1},
			},
		},
	},
	"reopen_after_verification": {
		ToolName:            "reopen_after_verification",
		Method:              "POST",
		Route:               "/tickets/{ticketId}/closeout/reopen-after-verification",
		AllowedRoles:        []string{RoleDispatcher, RoleQA},
		AllowedFromStates:   []domain.TicketState{domain.TicketStateVerified, domain.TicketStateInvoiced},
		ResultingState:      domain.TicketStateInProgress,
		IdempotencyRequired: true,
		Mutating:            true,
		Payload: PayloadSchema{
			Required: []Field{
				{Name: "reason", Kind: KindString, MinLen: 1},
			},
			Optional: []Field{
				{Name: "reopen_scope", Kind: KindString, MinLen: 1},
			},
		},
	},
	"closeout.evidence_exception": {
		ToolName:     "closeout.evidence_exception",
		Method:       "POST",
		Route:        "/tickets/{ticketId}/closeout/evidence-exception",
		AllowedRoles: []string{RoleDispatcher, RoleQA, RoleApprover},
		AllowedFromStates: []domain.TicketState{
			domain.TicketStateInProgress,
			domain.TicketStateCompletedPendingVerf,
			domain.TicketStateVerified,
			domain.TicketStateInvoiced,
		},
		IdempotencyRequired: true,
		Mutating:            true,
		Payload: PayloadSchema{
			Required: []Field{
				{Name: "exception_reason", Kind: KindString, MinLen: 1},
			},
			Optional: []Field{
				{Name: "evidence_refs", Kind: KindArray},
				{Name: "expires_at", Kind: KindDateTime},
			},
		},
	},
	"dispatch.manual_bypass": {
		ToolName:     "dispatch.manual_bypass",
		Method:       "POST",
		Route:        "/tickets/{ticketId}/dispatch/manual-bypass",
		AllowedRoles: []string{RoleDispatcher},
		AllowedFromStates: []domain.TicketState{
			domain.TicketStateInProgress,
			domain.TicketStateCompletedPendingVerf,
		},
		ResultingState:      domain.TicketStateCompletedPendingVerf,
		IdempotencyRequired: true,
		Mutating:            true,
		Payload: PayloadSchema{
			Required: []Field{
				{Name: "bypass_rationale", Kind: KindString, MinLen: 1},
			},
			Optional: []Field{
				{Name: "target_tool", Kind: KindString, MinLen: 1},
			},
		},
	},
	"ticket.get": {
		ToolName: "ticket.get",
		Method:   "GET",
		Route:    "/tickets/{ticketId}",
		AllowedRoles: []string{
			RoleDispatcher, RoleAgent, RoleCustomer, RoleTechnician,
			RoleQA, RoleApprover, RoleFinance,
		},
		Payload: PayloadSchema{AdditionalClosed: true},
	},
	"closeout.list_evidence": {
		ToolName: "closeout.list_evidence",
		Method:   "GET",
		Route:    "/tickets/{ticketId}/evidence",
		AllowedRoles: []string{
			RoleDispatcher, RoleAgent, RoleTechnician,
			RoleQA, RoleApprover, RoleFinance,
		},
		Payload: PayloadSchema{AdditionalClosed: true},
	},
	"ticket.timeline": {
		ToolName: "ticket.timeline",
		Method:   "GET",
		Route:    "/tickets/{ticketId}/timeline",
		AllowedRoles: []string{
			RoleDispatcher, RoleAgent, RoleCustomer, RoleTechnician,
			RoleQA, RoleApprover, RoleFinance,
		},
		Payload: PayloadSchema{AdditionalClosed: true},
	},
	"outbox.replay": {
		ToolName:            "outbox.replay",
		Method:              "POST",
		Route:               "/ops/outbox/{outboxId}/replay",
		AllowedRoles:        []string{RoleDispatcher, RoleAdmin},
		IdempotencyRequired: false,
		Mutating:            false,
		Payload: PayloadSchema{
			Optional: []Field{
				{Name: "reason", Kind: KindString, MinLen: 1},
			},
		},
	},
}
