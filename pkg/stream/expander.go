package stream

import (
	"fmt"
	"strings"

	"github.com/segmentio/encoding/json"
)

// FieldExpander implements EventListExpander: it explodes a
// configured array-valued field of a parsed JSON object into one
// ExpandedRecord per element, each carrying an ExpandedIndex ordinal.
//
// Field lookup reuses the teacher's dotted-path traversal idiom
// (pkg/utils.FieldExists) rather than introducing a second lookup
// helper.
type FieldExpander struct {
	Field string
}

// Expand implements EventListExpander.
func (e *FieldExpander) Expand(payload []byte, parsed map[string]any, startingOffset, endingOffset int64) ([]ExpandedRecord, error) {
	value, ok := fieldByPath(e.Field, parsed)
	if !ok {
		return nil, fmt.Errorf("expand: field %q not present in event", e.Field)
	}

	elements, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("expand: field %q is not an array", e.Field)
	}

	out := make([]ExpandedRecord, 0, len(elements))
	for i, el := range elements {
		sub, err := json.Marshal(el)
		if err != nil {
			return nil, fmt.Errorf("expand: marshal element %d of %q: %w", i, e.Field, err)
		}
		out = append(out, ExpandedRecord{
			Payload:        sub,
			StartingOffset: startingOffset,
			EndingOffset:   endingOffset,
			Index:          i,
		})
	}

	return out, nil
}

// fieldByPath walks a dot-separated path through nested maps, mirroring
// pkg/utils.FieldExists.
func fieldByPath(field string, event map[string]any) (any, bool) {
	parts := strings.Split(field, ".")
	var cur any = event
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}
