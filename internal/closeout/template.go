// Package closeout holds the requirement gates that decide whether a
// ticket may progress through completion, verification and close: the
// incident-template requirement engine, the risk profile gate, and the
// strict evidence reference verifier.
package closeout

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// IncidentTemplate maps a normalized incident type to its required
// evidence and checklist keys. Key lists are sorted and deduplicated
// at load time.
type IncidentTemplate struct {
	IncidentType          string   `json:"incident_type"`
	Version               string   `json:"version"`
	RequiredEvidenceKeys  []string `json:"required_evidence_keys"`
	RequiredChecklistKeys []string `json:"required_checklist_keys"`
}

// TemplateSet is the externally configured catalog of incident
// templates, unique per normalized incident type.
type TemplateSet struct {
	SchemaVersion string
	byType        map[string]IncidentTemplate
}

// TemplateSetError reports an invalid template configuration.
type TemplateSetError struct {
	Code    string
	Message string
}

func (e *TemplateSetError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func invalidTemplateSet(format string, args ...any) error {
	return &TemplateSetError{Code: "INVALID_TEMPLATE_SET", Message: fmt.Sprintf(format, args...)}
}

type rawTemplateFile struct {
	SchemaVersion string             `json:"schema_version"`
	Templates     []IncidentTemplate `json:"templates"`
}

// NormalizeIncidentType trims and uppercases an incident type.
func NormalizeIncidentType(incidentType string) string {
	return strings.ToUpper(strings.TrimSpace(incidentType))
}

// ParseTemplateSet validates raw template JSON into a TemplateSet.
func ParseTemplateSet(raw []byte) (*TemplateSet, error) {
	var file rawTemplateFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, invalidTemplateSet("template file must be valid JSON: %v", err)
	}
	if len(file.Templates) == 0 {
		return nil, invalidTemplateSet("field 'templates' must be a non-empty array")
	}

	set := &TemplateSet{
		SchemaVersion: file.SchemaVersion,
		byType:        make(map[string]IncidentTemplate, len(file.Templates)),
	}
	if set.SchemaVersion == "" {
		set.SchemaVersion = "unknown"
	}

	for _, entry := range file.Templates {
		incidentType := NormalizeIncidentType(entry.IncidentType)
		if incidentType == "" {
			return nil, invalidTemplateSet("field 'incident_type' must be a non-empty string")
		}
		if _, exists := set.byType[incidentType]; exists {
			return nil, invalidTemplateSet("duplicate incident template %q", incidentType)
		}
		evidenceKeys, err := normalizeKeyList(entry.RequiredEvidenceKeys, "required_evidence_keys")
		if err != nil {
			return nil, err
		}
		checklistKeys, err := normalizeKeyList(entry.RequiredChecklistKeys, "required_checklist_keys")
		if err != nil {
			return nil, err
		}
		version := strings.TrimSpace(entry.Version)
		if version == "" {
			version = "1.0.0"
		}
		set.byType[incidentType] = IncidentTemplate{
			IncidentType:          incidentType,
			Version:               version,
			RequiredEvidenceKeys:  evidenceKeys,
			RequiredChecklistKeys: checklistKeys,
		}
	}
	return set, nil
}

// LoadTemplateSet reads and parses the template file at path.
func LoadTemplateSet(path string) (*TemplateSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, invalidTemplateSet("read template file %s: %v", path, err)
	}
	return ParseTemplateSet(raw)
}

// Template resolves the template for an incident type, or false when
// the type is not configured.
func (s *TemplateSet) Template(incidentType string) (IncidentTemplate, bool) {
	template, ok := s.byType[NormalizeIncidentType(incidentType)]
	return template, ok
}

// IncidentTypes lists the configured types, sorted.
func (s *TemplateSet) IncidentTypes() []string {
	types := make([]string, 0, len(s.byType))
	for incidentType := range s.byType {
		types = append(types, incidentType)
	}
	sort.Strings(types)
	return types
}

func normalizeKeyList(keys []string, fieldName string) ([]string, error) {
	if len(keys) == 0 {
		return nil, invalidTemplateSet("field '%s' must be a non-empty array", fieldName)
	}
	seen := make(map[string]struct{}, len(keys))
	normalized := make([]string, 0, len(keys))
	for i, key := range keys {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" {
			return nil, invalidTemplateSet("field '%s[%d]' must be a non-empty string", fieldName, i)
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	sort.Strings(normalized)
	return normalized, nil
}
