// Package service implements the per-tool domain logic executed
// inside the mutation pipeline, plus the read-side queries behind the
// read tools.
package service

import (
	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/closeout"
	"github.com/spec-kit/dispatch-service/internal/config"
	"github.com/spec-kit/dispatch-service/internal/pipeline"
)

// Service carries the collaborators every tool handler shares.
type Service struct {
	logger   *zap.Logger
	engine   *closeout.Engine
	riskGate *closeout.RiskGate
	verifier *closeout.EvidenceVerifier
	intake   config.IntakeConfig
	auth     config.AuthConfig
}

func New(logger *zap.Logger, engine *closeout.Engine, riskGate *closeout.RiskGate, verifier *closeout.EvidenceVerifier, intake config.IntakeConfig, auth config.AuthConfig) *Service {
	return &Service{
		logger:   logger,
		engine:   engine,
		riskGate: riskGate,
		verifier: verifier,
		intake:   intake,
		auth:     auth,
	}
}

// RegisterHandlers binds every mutating tool in the catalog to its
// handler.
func (s *Service) RegisterHandlers(orch *pipeline.Orchestrator) {
	orch.Register("ticket.create", pipeline.HandlerFunc(s.CreateTicket))
	orch.Register("ticket.blind_intake", pipeline.HandlerFunc(s.BlindIntake))
	orch.Register("ticket.triage", pipeline.HandlerFunc(s.Triage))
	orch.Register("schedule.propose", pipeline.HandlerFunc(s.SchedulePropose))
	orch.Register("schedule.confirm", pipeline.HandlerFunc(s.ScheduleConfirm))
	orch.Register("schedule.hold", pipeline.HandlerFunc(s.ScheduleHold))
	orch.Register("schedule.release", pipeline.HandlerFunc(s.ScheduleRelease))
	orch.Register("schedule.rollback", pipeline.HandlerFunc(s.ScheduleRollback))
	orch.Register("assignment.dispatch", pipeline.HandlerFunc(s.AssignmentDispatch))
	orch.Register("assignment.recommend", pipeline.HandlerFunc(s.AssignmentRecommend))
	orch.Register("tech.check_in", pipeline.HandlerFunc(s.TechCheckIn))
	orch.Register("tech.request_change", pipeline.HandlerFunc(s.TechRequestChange))
	orch.Register("approval.decide", pipeline.HandlerFunc(s.ApprovalDecide))
	orch.Register("closeout.add_evidence", pipeline.HandlerFunc(s.AddEvidence))
	orch.Register("closeout.candidate", pipeline.HandlerFunc(s.CloseoutCandidate))
	orch.Register("tech.complete", pipeline.HandlerFunc(s.TechComplete))
	orch.Register("qa.verify", pipeline.HandlerFunc(s.QAVerify))
	orch.Register("billing.generate_invoice", pipeline.HandlerFunc(s.GenerateInvoice))
	orch.Register("ticket.close", pipeline.HandlerFunc(s.CloseTicket))
	orch.Register("ticket.force_close", pipeline.HandlerFunc(s.ForceClose))
	orch.Register("ticket.cancel", pipeline.HandlerFunc(s.CancelTicket))
	orch.Register("dispatch.force_hold", pipeline.HandlerFunc(s.ForceHold))
	orch.Register("dispatch.force_unassign", pipeline.HandlerFunc(s.ForceUnassign))
	orch.Register("reopen_after_verification", pipeline.HandlerFunc(s.ReopenAfterVerification))
	orch.Register("closeout.evidence_exception", pipeline.HandlerFunc(s.EvidenceException))
	orch.Register("dispatch.manual_bypass", pipeline.HandlerFunc(s.ManualBypass))
}
