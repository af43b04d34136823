package stream_test

import (
	"testing"

	"logforwarder/pkg/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldExpander_ExplodesArrayField(t *testing.T) {
	e := &stream.FieldExpander{Field: "Records"}
	parsed := map[string]any{
		"Records": []any{
			map[string]any{"eventName": "A"},
			map[string]any{"eventName": "B"},
		},
	}

	out, err := e.Expand([]byte(`{}`), parsed, 0, 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 0, out[0].Index)
	assert.Equal(t, 1, out[1].Index)
	assert.Contains(t, string(out[0].Payload), "A")
	assert.Contains(t, string(out[1].Payload), "B")
}

func TestFieldExpander_NestedDottedPath(t *testing.T) {
	e := &stream.FieldExpander{Field: "detail.items"}
	parsed := map[string]any{
		"detail": map[string]any{
			"items": []any{"x", "y", "z"},
		},
	}

	out, err := e.Expand([]byte(`{}`), parsed, 0, 1)
	require.NoError(t, err)
	require.Len(t, out, 3)
}

func TestFieldExpander_MissingFieldErrors(t *testing.T) {
	e := &stream.FieldExpander{Field: "missing"}
	_, err := e.Expand([]byte(`{}`), map[string]any{}, 0, 1)
	assert.Error(t, err)
}

func TestFieldExpander_NonArrayFieldErrors(t *testing.T) {
	e := &stream.FieldExpander{Field: "scalar"}
	_, err := e.Expand([]byte(`{}`), map[string]any{"scalar": "not an array"}, 0, 1)
	assert.Error(t, err)
}
