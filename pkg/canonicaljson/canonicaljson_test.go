package canonicaljson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSortsKeysRecursively(t *testing.T) {
	value := map[string]any{
		"zeta": 1,
		"alpha": map[string]any{
			"nested_b": "x",
			"nested_a": []any{map[string]any{"k2": true, "k1": false}},
		},
	}
	data, err := Marshal(value)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"nested_a":[{"k1":false,"k2":true}],"nested_b":"x"},"zeta":1}`, string(data))
}

func TestHashIgnoresKeyOrder(t *testing.T) {
	first, err := Hash(map[string]any{"a": 1, "b": map[string]any{"c": "v", "d": nil}})
	require.NoError(t, err)
	second, err := Hash(map[string]any{"b": map[string]any{"d": nil, "c": "v"}, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestHashDistinguishesValues(t *testing.T) {
	first, err := Hash(map[string]any{"a": 1})
	require.NoError(t, err)
	second, err := Hash(map[string]any{"a": 2})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestMarshalPreservesArrayOrder(t *testing.T) {
	first, err := Marshal([]any{1, 2, 3})
	require.NoError(t, err)
	second, err := Marshal([]any{3, 2, 1})
	require.NoError(t, err)
	assert.NotEqual(t, string(first), string(second))
}

func TestHashOfNilPayload(t *testing.T) {
	hash, err := Hash(nil)
	require.NoError(t, err)
	assert.Len(t, hash, 64)
}
