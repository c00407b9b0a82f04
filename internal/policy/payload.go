package policy

import (
	"fmt"
	"regexp"
	"time"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// SchemaViolation describes one payload field failing its declared
// constraint.
type SchemaViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidatePayload checks payload against the tool's declared shape and
// returns every violation found.
func ValidatePayload(schema PayloadSchema, payload map[string]any) []SchemaViolation {
	var violations []SchemaViolation

	for _, field := range schema.Required {
		value, present := payload[field.Name]
		if !present || value == nil {
			violations = append(violations, SchemaViolation{Field: field.Name, Reason: "required"})
			continue
		}
		if reason := checkField(field, value); reason != "" {
			violations = append(violations, SchemaViolation{Field: field.Name, Reason: reason})
		}
	}

	for _, field := range schema.Optional {
		value, present := payload[field.Name]
		if !present || value == nil {
			continue
		}
		if reason := checkField(field, value); reason != "" {
			violations = append(violations, SchemaViolation{Field: field.Name, Reason: reason})
		}
	}

	if schema.AdditionalClosed && len(payload) > 0 {
		declared := make(map[string]struct{}, len(schema.Required)+len(schema.Optional))
		for _, field := range schema.Required {
			declared[field.Name] = struct{}{}
		}
		for _, field := range schema.Optional {
			declared[field.Name] = struct{}{}
		}
		for name := range payload {
			if _, ok := declared[name]; !ok {
				violations = append(violations, SchemaViolation{Field: name, Reason: "unexpected field"})
			}
		}
	}

	return violations
}

func checkField(field Field, value any) string {
	switch field.Kind {
	case KindString, KindUUID, KindDateTime:
		text, ok := value.(string)
		if !ok {
			return "must be a string"
		}
		if field.Kind == KindUUID {
			if !uuidPattern.MatchString(text) {
				return "must be a uuid"
			}
			return ""
		}
		if field.Kind == KindDateTime {
			if _, err := time.Parse(time.RFC3339, text); err != nil {
				return "must be an RFC 3339 timestamp"
			}
			return ""
		}
		if len(text) < field.MinLen {
			return fmt.Sprintf("must be at least %d characters", field.MinLen)
		}
		if len(field.Enum) > 0 && !enumContains(field.Enum, text) {
			return "is not an allowed value"
		}
		return ""
	case KindNumber, KindInteger:
		number, ok := asFloat(value)
		if !ok {
			return "must be a number"
		}
		if field.Kind == KindInteger && number != float64(int64(number)) {
			return "must be an integer"
		}
		if field.HasRange {
			if number < field.Min {
				return fmt.Sprintf("must be >= %v", field.Min)
			}
			if field.Max > field.Min && number > field.Max {
				return fmt.Sprintf("must be <= %v", field.Max)
			}
		}
		return ""
	case KindBoolean:
		if _, ok := value.(bool); !ok {
			return "must be a boolean"
		}
		return ""
	case KindObject:
		if _, ok := value.(map[string]any); !ok {
			return "must be an object"
		}
		return ""
	case KindArray:
		items, ok := value.([]any)
		if !ok {
			return "must be an array"
		}
		if len(items) < field.MinItems {
			return fmt.Sprintf("must have at least %d items", field.MinItems)
		}
		return ""
	default:
		return ""
	}
}

func asFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	default:
		return 0, false
	}
}

func enumContains(values []string, candidate string) bool {
	for _, value := range values {
		if value == candidate {
			return true
		}
	}
	return false
}
