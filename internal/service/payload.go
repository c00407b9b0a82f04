package service

import (
	"strings"
	"time"
)

// Payload accessors. Shapes were already validated against the tool
// schema before a handler runs; these only convert.

func payloadString(payload map[string]any, key string) string {
	if value, ok := payload[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func payloadStringPtr(payload map[string]any, key string) *string {
	value := payloadString(payload, key)
	if value == "" {
		return nil
	}
	return &value
}

func payloadBool(payload map[string]any, key string) bool {
	value, _ := payload[key].(bool)
	return value
}

func payloadBoolPtr(payload map[string]any, key string) *bool {
	if value, ok := payload[key].(bool); ok {
		return &value
	}
	return nil
}

func payloadFloat(payload map[string]any, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func payloadFloatPtr(payload map[string]any, key string) *float64 {
	if value, ok := payloadFloat(payload, key); ok {
		return &value
	}
	return nil
}

func payloadInt64Ptr(payload map[string]any, key string) *int64 {
	if value, ok := payloadFloat(payload, key); ok {
		converted := int64(value)
		return &converted
	}
	return nil
}

func payloadTimePtr(payload map[string]any, key string) *time.Time {
	raw := payloadString(payload, key)
	if raw == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &parsed
}

func payloadObject(payload map[string]any, key string) map[string]any {
	value, _ := payload[key].(map[string]any)
	return value
}

func payloadChecklist(payload map[string]any, key string) map[string]bool {
	raw := payloadObject(payload, key)
	if raw == nil {
		return nil
	}
	checklist := make(map[string]bool, len(raw))
	for field, value := range raw {
		flag, _ := value.(bool)
		checklist[field] = flag
	}
	return checklist
}
