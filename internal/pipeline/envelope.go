// Package pipeline implements the mutation pipeline every write
// request passes through: idempotency admission, authorization,
// transition validation, tool execution and a single atomic persist.
package pipeline

import (
	"time"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/pkg/canonicaljson"
)

// Stage names the pipeline checkpoints, in execution order. A request
// that fails at any stage short-circuits with no partial writes; only
// failures after AUTHORIZED leave an audit trail.
type Stage string

const (
	StageReceived              Stage = "RECEIVED"
	StageIdempotencyChecked    Stage = "IDEMPOTENCY_CHECKED"
	StageAuthorized            Stage = "AUTHORIZED"
	StageTransitionValidated   Stage = "TRANSITION_VALIDATED"
	StageRequirementsEvaluated Stage = "REQUIREMENTS_EVALUATED"
	StagePersisted             Stage = "PERSISTED"
	StageResponded             Stage = "RESPONDED"
)

// RequestEnvelope is the normalized form of one inbound request after
// the transport and auth layers have done their part: a resolved
// actor, the tool being invoked, correlation metadata and the raw
// payload.
type RequestEnvelope struct {
	Actor         domain.Actor
	ToolName      string
	RequestKey    string
	CorrelationID string
	TraceID       string
	TicketID      string
	Payload       map[string]any
	ReceivedAt    time.Time

	// PayloadHash is the canonical fingerprint of Payload, computed
	// once on entry.
	PayloadHash string
}

// Fingerprint computes and caches the canonical payload hash.
// Equivalent payloads with different key order fingerprint
// identically.
func (e *RequestEnvelope) Fingerprint() (string, error) {
	if e.PayloadHash != "" {
		return e.PayloadHash, nil
	}
	hash, err := canonicaljson.Hash(e.Payload)
	if err != nil {
		return "", err
	}
	e.PayloadHash = hash
	return hash, nil
}
