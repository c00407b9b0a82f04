package closeout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	set, err := ParseTemplateSet([]byte(testTemplateJSON))
	require.NoError(t, err)
	return NewEngine(set)
}

func evidenceWithKeys(keys ...string) []domain.EvidenceItem {
	items := make([]domain.EvidenceItem, 0, len(keys))
	for _, key := range keys {
		k := key
		items = append(items, domain.EvidenceItem{
			ID:          "ev-" + key,
			TicketID:    "t-1",
			Kind:        "photo",
			URI:         "s3://bucket/" + key,
			EvidenceKey: &k,
		})
	}
	return items
}

func fullChecklist() map[string]bool {
	return map[string]bool{
		"work_performed":        true,
		"parts_used_or_needed":  true,
		"resolution_status":     true,
		"onsite_photos_after":   true,
		"billing_authorization": true,
	}
}

var fullEvidenceKeys = []string{
	"photo_before_door_edge_and_strike",
	"photo_after_latched_alignment",
	"note_adjustments_and_test_cycles",
	"signature_or_no_signature_reason",
}

func TestEvaluateReady(t *testing.T) {
	engine := testEngine(t)
	evaluation := engine.Evaluate(EvaluationInput{
		IncidentType:    "DOOR_WONT_LATCH",
		EvidenceItems:   evidenceWithKeys(fullEvidenceKeys...),
		ChecklistStatus: fullChecklist(),
	})
	assert.True(t, evaluation.Ready)
	assert.Equal(t, CodeReady, evaluation.Code)
	assert.Equal(t, CodeReady, evaluation.RequirementCode())
	assert.Equal(t, "1.0.0", evaluation.TemplateVersion)
	assert.Empty(t, evaluation.MissingEvidenceKeys)
	assert.Empty(t, evaluation.MissingChecklistKeys)
}

func TestEvaluateTemplateNotFound(t *testing.T) {
	engine := testEngine(t)
	evaluation := engine.Evaluate(EvaluationInput{IncidentType: "UNKNOWN_TYPE"})
	assert.False(t, evaluation.Ready)
	assert.Equal(t, CodeTemplateNotFound, evaluation.Code)
	assert.Equal(t, "UNKNOWN_TYPE", evaluation.IncidentType)
}

func TestEvaluateMissingEvidenceOnly(t *testing.T) {
	engine := testEngine(t)
	evaluation := engine.Evaluate(EvaluationInput{
		IncidentType:    "DOOR_WONT_LATCH",
		EvidenceItems:   evidenceWithKeys(fullEvidenceKeys[0], fullEvidenceKeys[3]),
		ChecklistStatus: fullChecklist(),
	})
	assert.False(t, evaluation.Ready)
	assert.Equal(t, CodeMissingEvidence, evaluation.Code)
	assert.Equal(t, CodeMissingEvidence, evaluation.RequirementCode())
	assert.ElementsMatch(t, []string{
		"photo_after_latched_alignment",
		"note_adjustments_and_test_cycles",
	}, evaluation.MissingEvidenceKeys)
	assert.IsNonDecreasing(t, evaluation.MissingEvidenceKeys)
}

func TestEvaluateMissingChecklistOnly(t *testing.T) {
	engine := testEngine(t)
	checklist := fullChecklist()
	checklist["billing_authorization"] = false
	evaluation := engine.Evaluate(EvaluationInput{
		IncidentType:    "DOOR_WONT_LATCH",
		EvidenceItems:   evidenceWithKeys(fullEvidenceKeys...),
		ChecklistStatus: checklist,
	})
	assert.Equal(t, CodeMissingChecklist, evaluation.Code)
	assert.Equal(t, []string{"billing_authorization"}, evaluation.MissingChecklistKeys)
}

func TestEvaluateMissingBothIsMissingRequirements(t *testing.T) {
	engine := testEngine(t)
	evaluation := engine.Evaluate(EvaluationInput{
		IncidentType:    "DOOR_WONT_LATCH",
		ChecklistStatus: map[string]bool{},
	})
	assert.Equal(t, CodeMissingRequirements, evaluation.Code)
	assert.Equal(t, CodeMissingRequirements, evaluation.RequirementCode())
	assert.Len(t, evaluation.MissingEvidenceKeys, 4)
	assert.Len(t, evaluation.MissingChecklistKeys, 5)
}

func TestNoSignatureReasonSatisfiesSignatureSlot(t *testing.T) {
	engine := testEngine(t)
	evaluation := engine.Evaluate(EvaluationInput{
		IncidentType:      "DOOR_WONT_LATCH",
		EvidenceItems:     evidenceWithKeys(fullEvidenceKeys[0], fullEvidenceKeys[1], fullEvidenceKeys[2]),
		ChecklistStatus:   fullChecklist(),
		NoSignatureReason: "customer left before signature",
	})
	assert.True(t, evaluation.Ready)
}

func TestOnlyMissingSignatureMapsToSignatureConfirmation(t *testing.T) {
	engine := testEngine(t)
	evaluation := engine.Evaluate(EvaluationInput{
		IncidentType:    "DOOR_WONT_LATCH",
		EvidenceItems:   evidenceWithKeys(fullEvidenceKeys[0], fullEvidenceKeys[1], fullEvidenceKeys[2]),
		ChecklistStatus: fullChecklist(),
	})
	assert.False(t, evaluation.Ready)
	assert.Equal(t, CodeMissingEvidence, evaluation.Code)
	assert.Equal(t, CodeMissingSignatureConf, evaluation.RequirementCode())
	assert.Equal(t, []string{SignatureEvidenceKey}, evaluation.MissingEvidenceKeys)
}

func TestEvidenceKeyFromMetadataCounts(t *testing.T) {
	engine := testEngine(t)
	items := evidenceWithKeys(fullEvidenceKeys[0], fullEvidenceKeys[1], fullEvidenceKeys[3])
	items = append(items, domain.EvidenceItem{
		ID:       "ev-meta",
		TicketID: "t-1",
		Kind:     "note",
		URI:      "s3://bucket/note",
		Metadata: map[string]any{"evidence_key": "note_adjustments_and_test_cycles"},
	})
	evaluation := engine.Evaluate(EvaluationInput{
		IncidentType:    "DOOR_WONT_LATCH",
		EvidenceItems:   items,
		ChecklistStatus: fullChecklist(),
	})
	assert.True(t, evaluation.Ready)
}
