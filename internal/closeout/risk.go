package closeout

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// RequirementCodeRiskBlock is the requirement_code attached to manual
// review rejections raised by the risk gate.
const RequirementCodeRiskBlock = "AUTOMATION_RISK_BLOCK"

// RiskRule classifies one incident type. Incident types without a rule
// default to low risk with no reasons.
type RiskRule struct {
	IncidentType string   `json:"incident_type"`
	Level        string   `json:"level"`
	Reasons      []string `json:"reasons"`
}

type rawRiskRuleFile struct {
	SchemaVersion string     `json:"schema_version"`
	Rules         []RiskRule `json:"rules"`
}

// RiskRuleError reports an invalid risk rule configuration.
type RiskRuleError struct {
	Code    string
	Message string
}

func (e *RiskRuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func invalidRiskRuleSet(format string, args ...any) error {
	return &RiskRuleError{Code: "INVALID_RISK_RULE_SET", Message: fmt.Sprintf(format, args...)}
}

// RiskGate classifies incident types into automation risk profiles.
// High-risk incidents block automated closeout and require a human in
// the loop.
type RiskGate struct {
	SchemaVersion string
	byType        map[string]RiskRule
}

// ParseRiskRules validates raw risk rule JSON into a RiskGate.
func ParseRiskRules(raw []byte) (*RiskGate, error) {
	var file rawRiskRuleFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, invalidRiskRuleSet("risk rule file must be valid JSON: %v", err)
	}

	gate := &RiskGate{
		SchemaVersion: file.SchemaVersion,
		byType:        make(map[string]RiskRule, len(file.Rules)),
	}
	if gate.SchemaVersion == "" {
		gate.SchemaVersion = "unknown"
	}

	for _, rule := range file.Rules {
		incidentType := NormalizeIncidentType(rule.IncidentType)
		if incidentType == "" {
			return nil, invalidRiskRuleSet("field 'incident_type' must be a non-empty string")
		}
		if _, exists := gate.byType[incidentType]; exists {
			return nil, invalidRiskRuleSet("duplicate risk rule %q", incidentType)
		}
		level := strings.ToLower(strings.TrimSpace(rule.Level))
		if level != string(domain.RiskLevelLow) && level != string(domain.RiskLevelHigh) {
			return nil, invalidRiskRuleSet("risk rule %q has unknown level %q", incidentType, rule.Level)
		}
		if level == string(domain.RiskLevelHigh) && len(rule.Reasons) == 0 {
			return nil, invalidRiskRuleSet("high-risk rule %q must list at least one reason", incidentType)
		}
		reasons := make([]string, 0, len(rule.Reasons))
		for _, reason := range rule.Reasons {
			if trimmed := strings.TrimSpace(reason); trimmed != "" {
				reasons = append(reasons, trimmed)
			}
		}
		sort.Strings(reasons)
		gate.byType[incidentType] = RiskRule{
			IncidentType: incidentType,
			Level:        level,
			Reasons:      reasons,
		}
	}
	return gate, nil
}

// LoadRiskRules reads and parses the risk rule file at path.
func LoadRiskRules(path string) (*RiskGate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, invalidRiskRuleSet("read risk rule file %s: %v", path, err)
	}
	return ParseRiskRules(raw)
}

// Classify resolves the risk profile for an incident type. Unknown
// types are low risk.
func (g *RiskGate) Classify(incidentType string) domain.RiskProfile {
	normalized := NormalizeIncidentType(incidentType)
	if rule, ok := g.byType[normalized]; ok {
		return domain.RiskProfile{
			Level:        domain.RiskLevel(rule.Level),
			Reasons:      append([]string{}, rule.Reasons...),
			IncidentType: normalized,
		}
	}
	return domain.RiskProfile{
		Level:        domain.RiskLevelLow,
		Reasons:      []string{},
		IncidentType: normalized,
	}
}
