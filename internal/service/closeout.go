package service

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/dispatch-service/internal/closeout"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/pipeline"
	"github.com/spec-kit/dispatch-service/pkg/util"
)

// AddEvidence handles closeout.add_evidence. Evidence stays mutable
// until the ticket closes; once the set is frozen further writes are
// rejected.
func (s *Service) AddEvidence(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request) (*pipeline.Outcome, error) {
	ticket := req.Ticket
	if ticket.EvidenceImmutable {
		return nil, util.NewConflict(
			"EVIDENCE_IMMUTABLE",
			"evidence for a closed ticket can no longer be modified",
			map[string]any{"ticket_id": ticket.ID},
		)
	}

	payload := req.Envelope.Payload
	item := &domain.EvidenceItem{
		ID:          uuid.NewString(),
		TicketID:    ticket.ID,
		Kind:        payloadString(payload, "kind"),
		URI:         payloadString(payload, "uri"),
		Checksum:    payloadStringPtr(payload, "checksum"),
		EvidenceKey: payloadStringPtr(payload, "evidence_key"),
		Metadata:    payloadObject(payload, "metadata"),
		CreatedAt:   req.Now,
		UpdatedAt:   req.Now,
	}
	if err := tx.InsertEvidence(ctx, item); err != nil {
		return nil, util.NewInternalError(err)
	}

	audit := map[string]any{
		"evidence_id": item.ID,
		"kind":        item.Kind,
	}
	if item.EvidenceKey != nil {
		audit["evidence_key"] = *item.EvidenceKey
	}
	return &pipeline.Outcome{
		Ticket:       ticket,
		Response:     NewEvidenceView(item),
		StatusCode:   http.StatusCreated,
		AuditPayload: audit,
	}, nil
}

// evaluateCloseout runs the evidence-reference check and the template
// gate against the ticket's current evidence set. A failed gate comes
// back as the CLOSEOUT_REQUIREMENTS_INCOMPLETE conflict carrying the
// structured requirement_code the caller surfaces unchanged.
func (s *Service) evaluateCloseout(ctx context.Context, tx pipeline.MutationTx, ticket *domain.Ticket, checklist map[string]bool, noSignatureReason string) (*closeout.Evaluation, error) {
	items, err := tx.ListEvidence(ctx, ticket.ID)
	if err != nil {
		return nil, util.NewInternalError(err)
	}

	if invalid := s.verifier.InvalidRefs(ctx, items); len(invalid) > 0 {
		return nil, util.NewConflict(
			"CLOSEOUT_REQUIREMENTS_INCOMPLETE",
			"one or more evidence references failed verification",
			map[string]any{
				"requirement_code":      closeout.RequirementCodeInvalidReference,
				"invalid_evidence_refs": invalid,
			},
		)
	}

	incidentType := ""
	if ticket.IncidentType != nil {
		incidentType = *ticket.IncidentType
	}
	evaluation := s.engine.Evaluate(closeout.EvaluationInput{
		IncidentType:      incidentType,
		EvidenceItems:     items,
		ChecklistStatus:   checklist,
		NoSignatureReason: noSignatureReason,
	})
	if !evaluation.Ready {
		return nil, util.NewConflict(
			"CLOSEOUT_REQUIREMENTS_INCOMPLETE",
			"closeout requirements are not satisfied",
			map[string]any{
				"requirement_code":       evaluation.RequirementCode(),
				"readiness_code":         evaluation.Code,
				"incident_type":          evaluation.IncidentType,
				"missing_evidence_keys":  evaluation.MissingEvidenceKeys,
				"missing_checklist_keys": evaluation.MissingChecklistKeys,
			},
		)
	}
	return &evaluation, nil
}

// completionInput folds the request checklist over whatever the ticket
// already carries, so resubmissions can be partial.
func completionInput(ticket *domain.Ticket, payload map[string]any) (map[string]bool, string) {
	checklist := make(map[string]bool, len(ticket.ChecklistStatus))
	for key, done := range ticket.ChecklistStatus {
		checklist[key] = done
	}
	for key, done := range payloadChecklist(payload, "checklist_status") {
		checklist[key] = done
	}

	noSignatureReason := payloadString(payload, "no_signature_reason")
	if noSignatureReason == "" && ticket.NoSignatureReason != nil {
		noSignatureReason = *ticket.NoSignatureReason
	}
	return checklist, noSignatureReason
}

// CloseoutCandidate handles closeout.candidate: the automation path
// out of IN_PROGRESS. High-risk incident types never pass this gate;
// they require the human tech.complete flow.
func (s *Service) CloseoutCandidate(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request) (*pipeline.Outcome, error) {
	ticket := req.Ticket
	incidentType := ""
	if ticket.IncidentType != nil {
		incidentType = *ticket.IncidentType
	}

	profile := s.riskGate.Classify(incidentType)
	if profile.Level == domain.RiskLevelHigh {
		return nil, util.NewConflict(
			"MANUAL_REVIEW_REQUIRED",
			"incident type requires manual completion review",
			map[string]any{
				"requirement_code": closeout.RequirementCodeRiskBlock,
				"risk_profile":     profile,
			},
		)
	}

	return s.complete(ctx, tx, req, map[string]any{"risk_profile": profile})
}

// TechComplete handles tech.complete: the human completion path, not
// subject to the automation risk gate.
func (s *Service) TechComplete(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request) (*pipeline.Outcome, error) {
	return s.complete(ctx, tx, req, nil)
}

func (s *Service) complete(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request, extraAudit map[string]any) (*pipeline.Outcome, error) {
	ticket := req.Ticket
	checklist, noSignatureReason := completionInput(ticket, req.Envelope.Payload)

	evaluation, err := s.evaluateCloseout(ctx, tx, ticket, checklist, noSignatureReason)
	if err != nil {
		return nil, err
	}

	ticket.ChecklistStatus = checklist
	if noSignatureReason != "" {
		ticket.NoSignatureReason = &noSignatureReason
	}

	audit := map[string]any{
		"readiness_code":   evaluation.Code,
		"template_version": evaluation.TemplateVersion,
	}
	for key, value := range extraAudit {
		audit[key] = value
	}
	return &pipeline.Outcome{
		Ticket:       ticket,
		TicketDirty:  true,
		Response:     NewTicketView(ticket),
		AuditPayload: audit,
	}, nil
}

// QAVerify handles qa.verify. A PASS advances to VERIFIED; a FAIL
// sends the ticket back to IN_PROGRESS for rework instead of leaving
// it parked in verification.
func (s *Service) QAVerify(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request) (*pipeline.Outcome, error) {
	ticket := req.Ticket
	payload := req.Envelope.Payload
	result := payloadString(payload, "result")

	outcomeState := req.Decision.To
	if result == "FAIL" {
		outcomeState = domain.TicketStateInProgress
	} else {
		checklist, noSignatureReason := completionInput(ticket, nil)
		if _, err := s.evaluateCloseout(ctx, tx, ticket, checklist, noSignatureReason); err != nil {
			return nil, err
		}
	}

	audit := map[string]any{
		"result":      result,
		"verified_at": payloadString(payload, "timestamp"),
	}
	if notes := payloadStringPtr(payload, "notes"); notes != nil {
		audit["notes"] = *notes
	}
	return &pipeline.Outcome{
		Ticket:       ticket,
		State:        &outcomeState,
		Response:     NewTicketView(ticket),
		AuditPayload: audit,
	}, nil
}

// CloseTicket handles ticket.close: the terminal happy-path gate. The
// evidence set is re-verified one last time, then frozen, and the
// closeout packet snapshot is written alongside the state change.
func (s *Service) CloseTicket(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request) (*pipeline.Outcome, error) {
	ticket := req.Ticket
	payload := req.Envelope.Payload

	overrideCode := payloadString(payload, "closeout_override_code")
	waived := false
	if overrideCode != "" {
		if err := s.checkOverrideCode(overrideCode); err != nil {
			return nil, err
		}
		waived = true
	}

	templateVersion := ""
	if !waived {
		checklist, noSignatureReason := completionInput(ticket, nil)
		evaluation, err := s.evaluateCloseout(ctx, tx, ticket, checklist, noSignatureReason)
		if err != nil {
			return nil, err
		}
		templateVersion = evaluation.TemplateVersion
	}

	items, err := tx.ListEvidence(ctx, ticket.ID)
	if err != nil {
		return nil, util.NewInternalError(err)
	}
	if err := tx.MarkEvidenceImmutable(ctx, ticket.ID); err != nil {
		return nil, util.NewInternalError(err)
	}
	artifact := &domain.CloseoutArtifact{
		ID:              uuid.NewString(),
		TicketID:        ticket.ID,
		TemplateVersion: templateVersion,
		EvidenceKeys:    evidenceKeys(items),
		CreatedAt:       req.Now,
	}
	if err := tx.InsertCloseoutArtifact(ctx, artifact); err != nil {
		return nil, util.NewInternalError(err)
	}

	closedAt := req.Now
	ticket.ClosedAt = &closedAt
	ticket.EvidenceImmutable = true

	audit := map[string]any{
		"closeout_artifact_id": artifact.ID,
		"closeout_waived":      waived,
	}
	if reason := payloadStringPtr(payload, "reason"); reason != nil {
		audit["reason"] = *reason
	}
	return &pipeline.Outcome{
		Ticket:       ticket,
		TicketDirty:  true,
		Response:     map[string]any{"ticket": NewTicketView(ticket)},
		AuditPayload: audit,
	}, nil
}

// EvidenceException handles closeout.evidence_exception: records an
// approved waiver in the audit trail. The exception does not mutate
// requirement templates; it documents the human judgement call.
func (s *Service) EvidenceException(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request) (*pipeline.Outcome, error) {
	payload := req.Envelope.Payload
	audit := map[string]any{
		"exception_reason": payloadString(payload, "exception_reason"),
	}
	if refs, ok := payload["evidence_refs"].([]any); ok {
		audit["evidence_refs"] = refs
	}
	if expires := payloadTimePtr(payload, "expires_at"); expires != nil {
		audit["expires_at"] = expires.Format(time.RFC3339)
	}
	return &pipeline.Outcome{
		Response:     map[string]any{"ticket": NewTicketView(req.Ticket)},
		AuditPayload: audit,
	}, nil
}

// ReopenAfterVerification handles reopen_after_verification: a
// verified or invoiced ticket goes back to IN_PROGRESS for rework.
func (s *Service) ReopenAfterVerification(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request) (*pipeline.Outcome, error) {
	ticket := req.Ticket
	if ticket.EvidenceImmutable {
		return nil, util.NewConflict(
			"EVIDENCE_IMMUTABLE",
			"a closed ticket cannot be reopened",
			map[string]any{"ticket_id": ticket.ID},
		)
	}

	payload := req.Envelope.Payload
	audit := map[string]any{
		"reason": payloadString(payload, "reason"),
	}
	if scope := payloadStringPtr(payload, "reopen_scope"); scope != nil {
		audit["reopen_scope"] = *scope
	}
	return &pipeline.Outcome{
		Ticket:       ticket,
		TicketDirty:  true,
		Response:     NewTicketView(ticket),
		AuditPayload: audit,
	}, nil
}

func evidenceKeys(items []domain.EvidenceItem) []string {
	keys := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		key := item.Key()
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}
