package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/closeout"
	"github.com/spec-kit/dispatch-service/internal/config"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/pipeline"
	"github.com/spec-kit/dispatch-service/internal/policy"
	"github.com/spec-kit/dispatch-service/pkg/util"
)

const serviceTestTemplates = `{
  "schema_version": "1.0.0",
  "templates": [
    {
      "incident_type": "DOOR_WONT_LATCH",
      "version": "1.0.0",
      "required_evidence_keys": [
        "photo_before_door_edge_and_strike",
        "photo_after_latched_alignment",
        "note_adjustments_and_test_cycles",
        "signature_or_no_signature_reason"
      ],
      "required_checklist_keys": [
        "work_performed",
        "parts_used_or_needed",
        "resolution_status",
        "onsite_photos_after",
        "billing_authorization"
      ]
    },
    {
      "incident_type": "CANNOT_SECURE_ENTRY",
      "version": "1.0.0",
      "required_evidence_keys": [
        "photo_before_security_risk",
        "photo_after_temporary_or_permanent_securement",
        "note_risk_mitigation_and_customer_handoff",
        "signature_or_no_signature_reason"
      ],
      "required_checklist_keys": [
        "work_performed",
        "parts_used_or_needed",
        "resolution_status",
        "onsite_photos_after",
        "billing_authorization"
      ]
    }
  ]
}`

const serviceTestRiskRules = `{
  "schema_version": "1.0.0",
  "rules": [
    {"incident_type": "CANNOT_SECURE_ENTRY", "level": "high", "reasons": ["entry_point_unsecured", "life_safety_exposure"]}
  ]
}`

var testNow = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, auth config.AuthConfig) *Service {
	t.Helper()
	templates, err := closeout.ParseTemplateSet([]byte(serviceTestTemplates))
	require.NoError(t, err)
	riskGate, err := closeout.ParseRiskRules([]byte(serviceTestRiskRules))
	require.NoError(t, err)
	verifier := closeout.NewEvidenceVerifier(closeout.EvidenceVerifierOptions{AllowedSchemes: []string{"s3"}})
	intake := config.IntakeConfig{MinIdentityConfidence: 70, MinClassificationConfidence: 70}
	return New(zap.NewNop(), closeout.NewEngine(templates), riskGate, verifier, intake, auth)
}

// stubTx is the minimal in-memory MutationTx the handler tests need.
type stubTx struct {
	tickets     map[string]*domain.Ticket
	bySignature map[string]*domain.Ticket
	evidence    map[string][]domain.EvidenceItem
	frozen      map[string]bool
	artifacts   []domain.CloseoutArtifact
}

func newStubTx() *stubTx {
	return &stubTx{
		tickets:     make(map[string]*domain.Ticket),
		bySignature: make(map[string]*domain.Ticket),
		evidence:    make(map[string][]domain.EvidenceItem),
		frozen:      make(map[string]bool),
	}
}

func (t *stubTx) GetTicketForUpdate(_ context.Context, ticketID string) (*domain.Ticket, error) {
	return t.tickets[ticketID], nil
}

func (t *stubTx) FindTicketBySignature(_ context.Context, signature string) (*domain.Ticket, error) {
	return t.bySignature[signature], nil
}

func (t *stubTx) InsertTicket(_ context.Context, ticket *domain.Ticket) error {
	t.tickets[ticket.ID] = ticket
	if ticket.IdentitySignature != nil {
		t.bySignature[*ticket.IdentitySignature] = ticket
	}
	return nil
}

func (t *stubTx) UpdateTicket(_ context.Context, ticket *domain.Ticket) error {
	t.tickets[ticket.ID] = ticket
	return nil
}

func (t *stubTx) InsertTransition(_ context.Context, _ *domain.TransitionLogEntry) error { return nil }
func (t *stubTx) InsertAudit(_ context.Context, _ *domain.AuditEvent) error             { return nil }
func (t *stubTx) InsertOutbox(_ context.Context, _ *domain.OutboxEvent) error           { return nil }

func (t *stubTx) GetIdempotency(_ context.Context, _, _ string) (*domain.IdempotencyRecord, error) {
	return nil, nil
}
func (t *stubTx) InsertIdempotency(_ context.Context, _ *domain.IdempotencyRecord) error { return nil }

func (t *stubTx) ListEvidence(_ context.Context, ticketID string) ([]domain.EvidenceItem, error) {
	return t.evidence[ticketID], nil
}

func (t *stubTx) InsertEvidence(_ context.Context, item *domain.EvidenceItem) error {
	t.evidence[item.TicketID] = append(t.evidence[item.TicketID], *item)
	return nil
}

func (t *stubTx) MarkEvidenceImmutable(_ context.Context, ticketID string) error {
	t.frozen[ticketID] = true
	return nil
}

func (t *stubTx) InsertCloseoutArtifact(_ context.Context, artifact *domain.CloseoutArtifact) error {
	t.artifacts = append(t.artifacts, *artifact)
	return nil
}

func (t *stubTx) addEvidence(ticketID string, keys ...string) {
	for _, key := range keys {
		k := key
		t.evidence[ticketID] = append(t.evidence[ticketID], domain.EvidenceItem{
			ID:          "ev-" + key,
			TicketID:    ticketID,
			Kind:        "photo",
			URI:         "s3://evidence/" + key,
			EvidenceKey: &k,
			CreatedAt:   testNow,
			UpdatedAt:   testNow,
		})
	}
}

func toolRequest(t *testing.T, toolName string, ticket *domain.Ticket, payload map[string]any) *pipeline.Request {
	t.Helper()
	tool, ok := policy.Lookup(toolName)
	require.True(t, ok, toolName)

	decision := pipeline.TransitionDecision{To: tool.ResultingState}
	if ticket != nil {
		decision.From = ticket.State
		if tool.ResultingState == "" || tool.ResultingState == ticket.State {
			decision.To = ticket.State
		} else {
			decision.Changed = true
		}
	}
	return &pipeline.Request{
		Envelope: &pipeline.RequestEnvelope{
			Actor:    domain.Actor{ID: "actor-1", Role: "dispatcher", Type: domain.ActorTypeHuman},
			ToolName: toolName,
			TicketID: ticketID(ticket),
			Payload:  payload,
		},
		Tool:     tool,
		Ticket:   ticket,
		Decision: decision,
		Now:      testNow,
	}
}

func ticketID(ticket *domain.Ticket) string {
	if ticket == nil {
		return ""
	}
	return ticket.ID
}

func inProgressTicket(incidentType string) *domain.Ticket {
	it := incidentType
	return &domain.Ticket{
		ID:           "t-1",
		AccountID:    "acc-1",
		SiteID:       "site-1",
		Summary:      "door will not latch",
		State:        domain.TicketStateInProgress,
		Version:      5,
		Priority:     domain.TicketPriorityRoutine,
		IncidentType: &it,
		CreatedAt:    testNow.Add(-24 * time.Hour),
		UpdatedAt:    testNow.Add(-time.Hour),
	}
}

func requireConflict(t *testing.T, err error, code string) *util.DomainError {
	t.Helper()
	require.Error(t, err)
	derr := util.ToDomainError(err)
	require.Equal(t, code, derr.Code)
	require.Equal(t, 409, derr.HTTPStatus)
	return derr
}

func doorChecklistPayload() map[string]any {
	return map[string]any{
		"checklist_status": map[string]any{
			"work_performed":        true,
			"parts_used_or_needed":  true,
			"resolution_status":     true,
			"onsite_photos_after":   true,
			"billing_authorization": true,
		},
	}
}
