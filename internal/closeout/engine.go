package closeout

import (
	"sort"
	"strings"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// SignatureEvidenceKey is the evidence slot that may alternatively be
// satisfied by an explicit no-signature reason on the closeout payload.
const SignatureEvidenceKey = "signature_or_no_signature_reason"

// Readiness codes produced by the requirement engine.
const (
	CodeReady                = "READY"
	CodeMissingEvidence      = "MISSING_EVIDENCE"
	CodeMissingChecklist     = "MISSING_CHECKLIST"
	CodeMissingRequirements  = "MISSING_REQUIREMENTS"
	CodeTemplateNotFound     = "TEMPLATE_NOT_FOUND"
	CodeMissingSignatureConf = "MISSING_SIGNATURE_CONFIRMATION"
)

// EvaluationInput carries the ticket-side facts the engine inspects.
type EvaluationInput struct {
	IncidentType      string
	EvidenceItems     []domain.EvidenceItem
	ChecklistStatus   map[string]bool
	NoSignatureReason string
}

// Evaluation is the outcome of a readiness check. Missing key lists
// are always sorted so responses are deterministic.
type Evaluation struct {
	Ready                bool     `json:"ready"`
	Code                 string   `json:"code"`
	IncidentType         string   `json:"incident_type"`
	TemplateVersion      string   `json:"template_version,omitempty"`
	MissingEvidenceKeys  []string `json:"missing_evidence_keys"`
	MissingChecklistKeys []string `json:"missing_checklist_keys"`
}

// RequirementCode maps the readiness code to the requirement_code
// surfaced in closeout rejections. A rejection whose only gap is the
// signature slot is reported as a signature confirmation failure.
func (e Evaluation) RequirementCode() string {
	if e.Code == CodeMissingEvidence &&
		len(e.MissingEvidenceKeys) == 1 &&
		e.MissingEvidenceKeys[0] == SignatureEvidenceKey {
		return CodeMissingSignatureConf
	}
	return e.Code
}

// Engine evaluates closeout readiness against a template set.
type Engine struct {
	templates *TemplateSet
}

func NewEngine(templates *TemplateSet) *Engine {
	return &Engine{templates: templates}
}

// Evaluate checks the ticket's evidence and checklist against the
// incident template. A non-empty no-signature reason satisfies the
// signature slot; everything else needs a matching evidence key.
func (e *Engine) Evaluate(input EvaluationInput) Evaluation {
	incidentType := NormalizeIncidentType(input.IncidentType)
	template, ok := e.templates.Template(incidentType)
	if !ok {
		return Evaluation{
			Ready:                false,
			Code:                 CodeTemplateNotFound,
			IncidentType:         incidentType,
			MissingEvidenceKeys:  []string{},
			MissingChecklistKeys: []string{},
		}
	}

	present := collectEvidenceKeys(input.EvidenceItems)
	if strings.TrimSpace(input.NoSignatureReason) != "" {
		present[SignatureEvidenceKey] = struct{}{}
	}

	missingEvidence := make([]string, 0)
	for _, key := range template.RequiredEvidenceKeys {
		if _, have := present[key]; !have {
			missingEvidence = append(missingEvidence, key)
		}
	}

	missingChecklist := make([]string, 0)
	for _, key := range template.RequiredChecklistKeys {
		if !input.ChecklistStatus[key] {
			missingChecklist = append(missingChecklist, key)
		}
	}

	sort.Strings(missingEvidence)
	sort.Strings(missingChecklist)

	code := CodeReady
	switch {
	case len(missingEvidence) > 0 && len(missingChecklist) > 0:
		code = CodeMissingRequirements
	case len(missingEvidence) > 0:
		code = CodeMissingEvidence
	case len(missingChecklist) > 0:
		code = CodeMissingChecklist
	}

	return Evaluation{
		Ready:                code == CodeReady,
		Code:                 code,
		IncidentType:         incidentType,
		TemplateVersion:      template.Version,
		MissingEvidenceKeys:  missingEvidence,
		MissingChecklistKeys: missingChecklist,
	}
}

func collectEvidenceKeys(items []domain.EvidenceItem) map[string]struct{} {
	keys := make(map[string]struct{}, len(items))
	for _, item := range items {
		if key := strings.TrimSpace(item.Key()); key != "" {
			keys[key] = struct{}{}
		}
	}
	return keys
}
