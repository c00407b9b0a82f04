package service

import (
	"time"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// TicketView is the response body for ticket mutations and reads.
type TicketView struct {
	ID                       string     `json:"id"`
	AccountID                string     `json:"account_id"`
	SiteID                   string     `json:"site_id"`
	AssetID                  *string    `json:"asset_id,omitempty"`
	CustomerName             *string    `json:"customer_name,omitempty"`
	ContactPhone             *string    `json:"contact_phone,omitempty"`
	ContactEmail             *string    `json:"contact_email,omitempty"`
	Summary                  string     `json:"summary"`
	Description              *string    `json:"description,omitempty"`
	State                    string     `json:"state"`
	Version                  int64      `json:"version"`
	Priority                 string     `json:"priority"`
	IncidentType             *string    `json:"incident_type,omitempty"`
	NTECents                 *int64     `json:"nte_cents,omitempty"`
	ScheduledStart           *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd             *time.Time `json:"scheduled_end,omitempty"`
	AssignedTechID           *string    `json:"assigned_tech_id,omitempty"`
	HoldReason               *string    `json:"hold_reason,omitempty"`
	IdentityConfidence       *float64   `json:"identity_confidence,omitempty"`
	ClassificationConfidence *float64   `json:"classification_confidence,omitempty"`
	EvidenceImmutable        bool       `json:"evidence_immutable"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
	ClosedAt                 *time.Time `json:"closed_at,omitempty"`
}

func NewTicketView(ticket *domain.Ticket) TicketView {
	return TicketView{
		ID:                       ticket.ID,
		AccountID:                ticket.AccountID,
		SiteID:                   ticket.SiteID,
		AssetID:                  ticket.AssetID,
		CustomerName:             ticket.CustomerName,
		ContactPhone:             ticket.ContactPhone,
		ContactEmail:             ticket.ContactEmail,
		Summary:                  ticket.Summary,
		Description:              ticket.Description,
		State:                    string(ticket.State),
		Version:                  ticket.Version,
		Priority:                 string(ticket.Priority),
		IncidentType:             ticket.IncidentType,
		NTECents:                 ticket.NTECents,
		ScheduledStart:           ticket.ScheduledStart,
		ScheduledEnd:             ticket.ScheduledEnd,
		AssignedTechID:           ticket.AssignedTechID,
		HoldReason:               ticket.HoldReason,
		IdentityConfidence:       ticket.IdentityConfidence,
		ClassificationConfidence: ticket.ClassificationConfidence,
		EvidenceImmutable:        ticket.EvidenceImmutable,
		CreatedAt:                ticket.CreatedAt,
		UpdatedAt:                ticket.UpdatedAt,
		ClosedAt:                 ticket.ClosedAt,
	}
}

// EvidenceView is the response body for evidence writes and listings.
type EvidenceView struct {
	ID          string         `json:"id"`
	TicketID    string         `json:"ticket_id"`
	Kind        string         `json:"kind"`
	URI         string         `json:"uri"`
	Checksum    *string        `json:"checksum,omitempty"`
	EvidenceKey *string        `json:"evidence_key,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Immutable   bool           `json:"is_immutable"`
	CreatedAt   time.Time      `json:"created_at"`
}

// TransitionView is one hop in a ticket's timeline.
type TransitionView struct {
	ID        string    `json:"id"`
	FromState string    `json:"from_state,omitempty"`
	ToState   string    `json:"to_state"`
	ToolName  string    `json:"tool_name"`
	ActorID   string    `json:"actor_id"`
	ActorRole string    `json:"actor_role"`
	CreatedAt time.Time `json:"created_at"`
}

func NewTransitionView(entry domain.TransitionLogEntry) TransitionView {
	return TransitionView{
		ID:        entry.ID,
		FromState: string(entry.FromState),
		ToState:   string(entry.ToState),
		ToolName:  entry.ToolName,
		ActorID:   entry.ActorID,
		ActorRole: entry.ActorRole,
		CreatedAt: entry.CreatedAt,
	}
}

// AuditView is one audit event in a ticket's timeline.
type AuditView struct {
	ID            string         `json:"id"`
	ActorType     string         `json:"actor_type"`
	ActorID       string         `json:"actor_id"`
	ActorRole     string         `json:"actor_role"`
	ToolName      string         `json:"tool_name"`
	CorrelationID *string        `json:"correlation_id,omitempty"`
	BeforeState   *string        `json:"before_state,omitempty"`
	AfterState    *string        `json:"after_state,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

func NewAuditView(event domain.AuditEvent) AuditView {
	view := AuditView{
		ID:            event.ID,
		ActorType:     string(event.ActorType),
		ActorID:       event.ActorID,
		ActorRole:     event.ActorRole,
		ToolName:      event.ToolName,
		CorrelationID: event.CorrelationID,
		Payload:       event.Payload,
		CreatedAt:     event.CreatedAt,
	}
	if event.BeforeState != nil {
		before := string(*event.BeforeState)
		view.BeforeState = &before
	}
	if event.AfterState != nil {
		after := string(*event.AfterState)
		view.AfterState = &after
	}
	return view
}

func NewEvidenceView(item *domain.EvidenceItem) EvidenceView {
	return EvidenceView{
		ID:          item.ID,
		TicketID:    item.TicketID,
		Kind:        item.Kind,
		URI:         item.URI,
		Checksum:    item.Checksum,
		EvidenceKey: item.EvidenceKey,
		Metadata:    item.Metadata,
		Immutable:   item.Immutable,
		CreatedAt:   item.CreatedAt,
	}
}
