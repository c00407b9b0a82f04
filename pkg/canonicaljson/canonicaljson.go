// Package canonicaljson produces a stable serialization of arbitrary
// JSON-shaped values so that equivalent payloads with different key
// ordering hash identically.
package canonicaljson

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Marshal serializes value with all object keys sorted recursively.
func Marshal(value any) ([]byte, error) {
	var builder strings.Builder
	if err := writeCanonical(&builder, value); err != nil {
		return nil, err
	}
	return []byte(builder.String()), nil
}

// Hash returns the hex-encoded sha256 of the canonical serialization.
func Hash(value any) (string, error) {
	data, err := Marshal(value)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:]), nil
}

func writeCanonical(builder *strings.Builder, value any) error {
	switch typed := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		builder.WriteByte('{')
		for i, key := range keys {
			if i > 0 {
				builder.WriteByte(',')
			}
			encodedKey, err := json.Marshal(key)
			if err != nil {
				return err
			}
			builder.Write(encodedKey)
			builder.WriteByte(':')
			if err := writeCanonical(builder, typed[key]); err != nil {
				return err
			}
		}
		builder.WriteByte('}')
		return nil
	case []any:
		builder.WriteByte('[')
		for i, entry := range typed {
			if i > 0 {
				builder.WriteByte(',')
			}
			if err := writeCanonical(builder, entry); err != nil {
				return err
			}
		}
		builder.WriteByte(']')
		return nil
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return err
		}
		builder.Write(encoded)
		return nil
	}
}
