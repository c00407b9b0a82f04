package domain

import "time"

// TicketState enumerates lifecycle states for dispatch tickets.
type TicketState string

const (
	TicketStateNew                  TicketState = "NEW"
	TicketStateNeedsInfo            TicketState = "NEEDS_INFO"
	TicketStateTriaged              TicketState = "TRIAGED"
	TicketStateApprovalRequired     TicketState = "APPROVAL_REQUIRED"
	TicketStateReadyToSchedule      TicketState = "READY_TO_SCHEDULE"
	TicketStateScheduleProposed     TicketState = "SCHEDULE_PROPOSED"
	TicketStateScheduled            TicketState = "SCHEDULED"
	TicketStatePendingCustomerConf  TicketState = "PENDING_CUSTOMER_CONFIRMATION"
	TicketStateDispatched           TicketState = "DISPATCHED"
	TicketStateOnSite               TicketState = "ON_SITE"
	TicketStateInProgress           TicketState = "IN_PROGRESS"
	TicketStateOnHold               TicketState = "ON_HOLD"
	TicketStateCompletedPendingVerf TicketState = "COMPLETED_PENDING_VERIFICATION"
	TicketStateVerified             TicketState = "VERIFIED"
	TicketStateInvoiced             TicketState = "INVOICED"
	TicketStateClosed               TicketState = "CLOSED"
	TicketStateCancelled            TicketState = "CANCELLED"
)

// TicketPriority enumerates dispatch urgency.
type TicketPriority string

const (
	TicketPriorityEmergency TicketPriority = "EMERGENCY"
	TicketPriorityUrgent    TicketPriority = "URGENT"
	TicketPriorityRoutine   TicketPriority = "ROUTINE"
)

// Ticket is the aggregate for dispatch work items. Terminal states
// (CLOSED, CANCELLED) are absorbing; tickets are never deleted.
type Ticket struct {
	ID                       string
	AccountID                string
	SiteID                   string
	AssetID                  *string
	CustomerName             *string
	ContactPhone             *string
	ContactEmail             *string
	Summary                  string
	Description              *string
	State                    TicketState
	Version                  int64
	Priority                 TicketPriority
	IncidentType             *string
	NTECents                 *int64
	ScheduledStart           *time.Time
	ScheduledEnd             *time.Time
	AssignedTechID           *string
	HoldReason               *string
	IdentitySignature        *string
	IdentityConfidence       *float64
	ClassificationConfidence *float64
	SOPHandoffAcknowledged   *bool
	ChecklistStatus          map[string]bool
	NoSignatureReason        *string
	EvidenceImmutable        bool
	CreatedAt                time.Time
	UpdatedAt                time.Time
	ClosedAt                 *time.Time
}

// IsTerminal reports whether the state admits no further transitions.
func (s TicketState) IsTerminal() bool {
	return s == TicketStateClosed || s == TicketStateCancelled
}
