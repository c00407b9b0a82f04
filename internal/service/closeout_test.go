package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/dispatch-service/internal/config"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/pkg/util"
)

var doorEvidenceKeys = []string{
	"photo_before_door_edge_and_strike",
	"photo_after_latched_alignment",
	"note_adjustments_and_test_cycles",
	"signature_or_no_signature_reason",
}

func TestAddEvidence(t *testing.T) {
	svc := newTestService(t, config.AuthConfig{})
	tx := newStubTx()
	ticket := inProgressTicket("DOOR_WONT_LATCH")

	payload := map[string]any{
		"kind":         "photo",
		"uri":          "s3://evidence/before.jpg",
		"evidence_key": "photo_before_door_edge_and_strike",
	}
	outcome, err := svc.AddEvidence(context.Background(), tx, toolRequest(t, "closeout.add_evidence", ticket, payload))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, outcome.StatusCode)
	require.Len(t, tx.evidence["t-1"], 1)
	assert.Equal(t, "photo_before_door_edge_and_strike", outcome.AuditPayload["evidence_key"])
}

func TestAddEvidenceRejectedAfterClose(t *testing.T) {
	svc := newTestService(t, config.AuthConfig{})
	ticket := inProgressTicket("DOOR_WONT_LATCH")
	ticket.EvidenceImmutable = true

	payload := map[string]any{"kind": "photo", "uri": "s3://evidence/late.jpg"}
	_, err := svc.AddEvidence(context.Background(), newStubTx(), toolRequest(t, "closeout.add_evidence", ticket, payload))
	requireConflict(t, err, "EVIDENCE_IMMUTABLE")
}

func TestTechCompleteRejectsMissingEvidence(t *testing.T) {
	svc := newTestService(t, config.AuthConfig{})
	tx := newStubTx()
	ticket := inProgressTicket("DOOR_WONT_LATCH")
	tx.addEvidence("t-1", doorEvidenceKeys[0], doorEvidenceKeys[3])

	_, err := svc.TechComplete(context.Background(), tx, toolRequest(t, "tech.complete", ticket, doorChecklistPayload()))
	derr := requireConflict(t, err, "CLOSEOUT_REQUIREMENTS_INCOMPLETE")
	assert.Equal(t, "MISSING_EVIDENCE", derr.Details["requirement_code"])
	assert.Equal(t, "MISSING_EVIDENCE", derr.Details["readiness_code"])
	assert.Equal(t, "DOOR_WONT_LATCH", derr.Details["incident_type"])
	assert.ElementsMatch(t, []string{doorEvidenceKeys[1], doorEvidenceKeys[2]}, derr.Details["missing_evidence_keys"])
	assert.Empty(t, derr.Details["missing_checklist_keys"])
}

func TestTechCompleteRejectsMissingChecklist(t *testing.T) {
	svc := newTestService(t, config.AuthConfig{})
	tx := newStubTx()
	ticket := inProgressTicket("DOOR_WONT_LATCH")
	tx.addEvidence("t-1", doorEvidenceKeys...)

	payload := map[string]any{"checklist_status": map[string]any{"work_performed": true}}
	_, err := svc.TechComplete(context.Background(), tx, toolRequest(t, "tech.complete", ticket, payload))
	derr := requireConflict(t, err, "CLOSEOUT_REQUIREMENTS_INCOMPLETE")
	assert.Equal(t, "MISSING_CHECKLIST", derr.Details["requirement_code"])
}

func TestTechCompleteSignatureOnlyGapHasDedicatedCode(t *testing.T) {
	svc := newTestService(t, config.AuthConfig{})
	tx := newStubTx()
	ticket := inProgressTicket("DOOR_WONT_LATCH")
	tx.addEvidence("t-1", doorEvidenceKeys[0], doorEvidenceKeys[1], doorEvidenceKeys[2])

	_, err := svc.TechComplete(context.Background(), tx, toolRequest(t, "tech.complete", ticket, doorChecklistPayload()))
	derr := requireConflict(t, err, "CLOSEOUT_REQUIREMENTS_INCOMPLETE")
	assert.Equal(t, "MISSING_SIGNATURE_CONFIRMATION", derr.Details["requirement_code"])
}

func TestTechCompleteNoSignatureReasonSatisfiesSignatureSlot(t *testing.T) {
	svc := newTestService(t, config.AuthConfig{})
	tx := newStubTx()
	ticket := inProgressTicket("DOOR_WONT_LATCH")
	tx.addEvidence("t-1", doorEvidenceKeys[0], doorEvidenceKeys[1], doorEvidenceKeys[2])

	payload := doorChecklistPayload()
	payload["no_signature_reason"] = "customer had left the site"
	outcome, err := svc.TechComplete(context.Background(), tx, toolRequest(t, "tech.complete", ticket, payload))
	require.NoError(t, err)
	assert.True(t, outcome.TicketDirty)
	assert.Equal(t, "READY", outcome.AuditPayload["readiness_code"])
	assert.Equal(t, "1.0.0", outcome.AuditPayload["template_version"])
	require.NotNil(t, outcome.Ticket.NoSignatureReason)
	assert.True(t, outcome.Ticket.ChecklistStatus["billing_authorization"])
}

func TestTechCompleteRejectsInvalidEvidenceReference(t *testing.T) {
	svc := newTestService(t, config.AuthConfig{})
	tx := newStubTx()
	ticket := inProgressTicket("DOOR_WONT_LATCH")
	tx.addEvidence("t-1", doorEvidenceKeys...)
	key := "photo_extra"
	tx.evidence["t-1"] = append(tx.evidence["t-1"], domain.EvidenceItem{
		ID:          "ev-bad",
		TicketID:    "t-1",
		Kind:        "photo",
		URI:         "https://example.com/leaked.jpg",
		EvidenceKey: &key,
	})

	_, err := svc.TechComplete(context.Background(), tx, toolRequest(t, "tech.complete", ticket, doorChecklistPayload()))
	derr := requireConflict(t, err, "CLOSEOUT_REQUIREMENTS_INCOMPLETE")
	assert.Equal(t, "INVALID_EVIDENCE_REFERENCE", derr.Details["requirement_code"])
	assert.Equal(t, []string{"https://example.com/leaked.jpg"}, derr.Details["invalid_evidence_refs"])
}

func TestCloseoutCandidateBlockedForHighRiskIncident(t *testing.T) {
	svc := newTestService(t, config.AuthConfig{})
	tx := newStubTx()
	ticket := inProgressTicket("CANNOT_SECURE_ENTRY")

	_, err := svc.CloseoutCandidate(context.Background(), tx, toolRequest(t, "closeout.candidate", ticket, doorChecklistPayload()))
	derr := requireConflict(t, err, "MANUAL_REVIEW_REQUIRED")
	assert.Equal(t, "AUTOMATION_RISK_BLOCK", derr.Details["requirement_code"])

	profile, ok := derr.Details["risk_profile"].(domain.RiskProfile)
	require.True(t, ok)
	assert.Equal(t, domain.RiskLevelHigh, profile.Level)
	assert.Equal(t, "CANNOT_SECURE_ENTRY", profile.IncidentType)
	assert.NotEmpty(t, profile.Reasons)
}

func TestCloseoutCandidateLowRiskCarriesProfileInAudit(t *testing.T) {
	svc := newTestService(t, config.AuthConfig{})
	tx := newStubTx()
	ticket := inProgressTicket("DOOR_WONT_LATCH")
	tx.addEvidence("t-1", doorEvidenceKeys...)

	outcome, err := svc.CloseoutCandidate(context.Background(), tx, toolRequest(t, "closeout.candidate", ticket, doorChecklistPayload()))
	require.NoError(t, err)

	profile, ok := outcome.AuditPayload["risk_profile"].(domain.RiskProfile)
	require.True(t, ok)
	assert.Equal(t, domain.RiskLevelLow, profile.Level)
}

func TestTechCompleteBypassesRiskGate(t *testing.T) {
	svc := newTestService(t, config.AuthConfig{})
	tx := newStubTx()
	ticket := inProgressTicket("CANNOT_SECURE_ENTRY")
	tx.addEvidence("t-1",
		"photo_before_security_risk",
		"photo_after_temporary_or_permanent_securement",
		"note_risk_mitigation_and_customer_handoff",
		"signature_or_no_signature_reason",
	)

	_, err := svc.TechComplete(context.Background(), tx, toolRequest(t, "tech.complete", ticket, doorChecklistPayload()))
	require.NoError(t, err, "the human completion path is not risk gated")
}

func TestQAVerifyFailRoutesBackToRework(t *testing.T) {
	svc := newTestService(t, config.AuthConfig{})
	ticket := inProgressTicket("DOOR_WONT_LATCH")
	ticket.State = domain.TicketStateCompletedPendingVerf

	payload := map[string]any{
		"timestamp": "2026-08-28T10:00:00Z",
		"result":    "FAIL",
		"notes":     "after photo does not show the strike plate",
	}
	outcome, err := svc.QAVerify(context.Background(), newStubTx(), toolRequest(t, "qa.verify", ticket, payload))
	require.NoError(t, err, "a failed verification is a recorded outcome, not an error")
	require.NotNil(t, outcome.State)
	assert.Equal(t, domain.TicketStateInProgress, *outcome.State)
	assert.Equal(t, "FAIL", outcome.AuditPayload["result"])
	assert.Equal(t, "after photo does not show the strike plate", outcome.AuditPayload["notes"])
}

func TestQAVerifyPassReEvaluatesCloseout(t *testing.T) {
	svc := newTestService(t, config.AuthConfig{})
	tx := newStubTx()
	ticket := inProgressTicket("DOOR_WONT_LATCH")
	ticket.State = domain.TicketStateCompletedPendingVerf
	ticket.ChecklistStatus = map[string]bool{
		"work_performed":        true,
		"parts_used_or_needed":  true,
		"resolution_status":     true,
		"onsite_photos_after":   true,
		"billing_authorization": true,
	}
	tx.addEvidence("t-1", doorEvidenceKeys...)

	payload := map[string]any{"timestamp": "2026-08-28T10:00:00Z", "result": "PASS"}
	outcome, err := svc.QAVerify(context.Background(), tx, toolRequest(t, "qa.verify", ticket, payload))
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStateVerified, *outcome.State)
}

func TestQAVerifyPassRejectsWhenEvidenceRegressed(t *testing.T) {
	svc := newTestService(t, config.AuthConfig{})
	tx := newStubTx()
	ticket := inProgressTicket("DOOR_WONT_LATCH")
	ticket.State = domain.TicketStateCompletedPendingVerf
	ticket.ChecklistStatus = map[string]bool{"work_performed": true}

	payload := map[string]any{"timestamp": "2026-08-28T10:00:00Z", "result": "PASS"}
	_, err := svc.QAVerify(context.Background(), tx, toolRequest(t, "qa.verify", ticket, payload))
	requireConflict(t, err, "CLOSEOUT_REQUIREMENTS_INCOMPLETE")
}

func closableTicket(tx *stubTx) *domain.Ticket {
	ticket := inProgressTicket("DOOR_WONT_LATCH")
	ticket.State = domain.TicketStateVerified
	ticket.ChecklistStatus = map[string]bool{
		"work_performed":        true,
		"parts_used_or_needed":  true,
		"resolution_status":     true,
		"onsite_photos_after":   true,
		"billing_authorization": true,
	}
	tx.addEvidence(ticket.ID, doorEvidenceKeys...)
	return ticket
}

func TestCloseTicketWritesArtifactAndFreezesEvidence(t *testing.T) {
	svc := newTestService(t, config.AuthConfig{})
	tx := newStubTx()
	ticket := closableTicket(tx)

	outcome, err := svc.CloseTicket(context.Background(), tx, toolRequest(t, "ticket.close", ticket, map[string]any{}))
	require.NoError(t, err)

	assert.True(t, tx.frozen["t-1"])
	require.Len(t, tx.artifacts, 1)
	artifact := tx.artifacts[0]
	assert.Equal(t, "t-1", artifact.TicketID)
	assert.Equal(t, "1.0.0", artifact.TemplateVersion)
	assert.ElementsMatch(t, doorEvidenceKeys, artifact.EvidenceKeys)

	assert.True(t, outcome.Ticket.EvidenceImmutable)
	require.NotNil(t, outcome.Ticket.ClosedAt)
	assert.Equal(t, artifact.ID, outcome.AuditPayload["closeout_artifact_id"])
	assert.Equal(t, false, outcome.AuditPayload["closeout_waived"])
}

func TestCloseTicketRejectsIncompleteCloseout(t *testing.T) {
	svc := newTestService(t, config.AuthConfig{})
	tx := newStubTx()
	ticket := inProgressTicket("DOOR_WONT_LATCH")
	ticket.State = domain.TicketStateVerified

	_, err := svc.CloseTicket(context.Background(), tx, toolRequest(t, "ticket.close", ticket, map[string]any{}))
	requireConflict(t, err, "CLOSEOUT_REQUIREMENTS_INCOMPLETE")
	assert.Empty(t, tx.artifacts)
	assert.False(t, tx.frozen["t-1"])
}

func TestCloseTicketOverrideCodeWaivesGate(t *testing.T) {
	digest, err := bcrypt.GenerateFromPassword([]byte("override-pass-1"), bcrypt.MinCost)
	require.NoError(t, err)
	svc := newTestService(t, config.AuthConfig{ForceCloseCodeBcrypt: string(digest)})
	tx := newStubTx()
	ticket := inProgressTicket("DOOR_WONT_LATCH")
	ticket.State = domain.TicketStateVerified

	payload := map[string]any{"closeout_override_code": "override-pass-1", "reason": "customer waived paperwork"}
	outcome, err := svc.CloseTicket(context.Background(), tx, toolRequest(t, "ticket.close", ticket, payload))
	require.NoError(t, err)
	assert.Equal(t, true, outcome.AuditPayload["closeout_waived"])
	assert.True(t, tx.frozen["t-1"], "waived closes still freeze evidence")
	require.Len(t, tx.artifacts, 1, "waived closes still snapshot the evidence set")
	assert.Empty(t, tx.artifacts[0].TemplateVersion)
}

func TestCloseTicketRejectsWrongOverrideCode(t *testing.T) {
	digest, err := bcrypt.GenerateFromPassword([]byte("override-pass-1"), bcrypt.MinCost)
	require.NoError(t, err)
	svc := newTestService(t, config.AuthConfig{ForceCloseCodeBcrypt: string(digest)})
	ticket := inProgressTicket("DOOR_WONT_LATCH")
	ticket.State = domain.TicketStateVerified

	payload := map[string]any{"closeout_override_code": "guessing"}
	_, err = svc.CloseTicket(context.Background(), newStubTx(), toolRequest(t, "ticket.close", ticket, payload))
	require.Error(t, err)
	assert.Equal(t, "OVERRIDE_CODE_REJECTED", util.ToDomainError(err).Code)
}

func TestForceCloseChecksOverrideCode(t *testing.T) {
	digest, err := bcrypt.GenerateFromPassword([]byte("override-pass-1"), bcrypt.MinCost)
	require.NoError(t, err)
	svc := newTestService(t, config.AuthConfig{ForceCloseCodeBcrypt: string(digest)})
	tx := newStubTx()
	ticket := inProgressTicket("DOOR_WONT_LATCH")
	ticket.State = domain.TicketStateCompletedPendingVerf

	payload := map[string]any{
		"override_code":   "override-pass-1",
		"override_reason": "verification blocked by unreachable customer",
		"approver_role":   "approver",
	}
	outcome, err := svc.ForceClose(context.Background(), tx, toolRequest(t, "ticket.force_close", ticket, payload))
	require.NoError(t, err)
	assert.True(t, tx.frozen["t-1"])
	assert.Empty(t, tx.artifacts, "forced closes produce no closeout packet")
	assert.Equal(t, true, outcome.AuditPayload["override"])
	assert.True(t, outcome.Ticket.EvidenceImmutable)
}

func TestForceCloseFailsClosedWhenUnconfigured(t *testing.T) {
	svc := newTestService(t, config.AuthConfig{})
	ticket := inProgressTicket("DOOR_WONT_LATCH")
	ticket.State = domain.TicketStateCompletedPendingVerf

	payload := map[string]any{
		"override_code":   "anything",
		"override_reason": "verification blocked by unreachable customer",
		"approver_role":   "approver",
	}
	_, err := svc.ForceClose(context.Background(), newStubTx(), toolRequest(t, "ticket.force_close", ticket, payload))
	require.Error(t, err)
	derr := util.ToDomainError(err)
	assert.Equal(t, "OVERRIDE_CODE_REJECTED", derr.Code)
	assert.Equal(t, 403, derr.HTTPStatus)
}

func TestReopenAfterVerificationRejectsClosedTicket(t *testing.T) {
	svc := newTestService(t, config.AuthConfig{})
	ticket := inProgressTicket("DOOR_WONT_LATCH")
	ticket.State = domain.TicketStateVerified
	ticket.EvidenceImmutable = true

	payload := map[string]any{"reason": "rework requested"}
	_, err := svc.ReopenAfterVerification(context.Background(), newStubTx(), toolRequest(t, "reopen_after_verification", ticket, payload))
	requireConflict(t, err, "EVIDENCE_IMMUTABLE")
}
