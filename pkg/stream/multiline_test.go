package stream_test

import (
	"testing"

	"logforwarder/pkg/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiline_NilProcessorIsPassthrough(t *testing.T) {
	src := stream.NewSliceStage([]byte("a\nb\n"))
	upstream := stream.NewByLinesStage(src, 0)

	stage := stream.NewMultilineStage(upstream, nil, 0)
	rec, ok, err := stage.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", string(rec.Payload))
}

// joinAllProcessor is a trivial MultilineProcessor test double that
// groups every upstream record into one.
type joinAllProcessor struct{}

func (joinAllProcessor) Group(upstream stream.Stage) stream.GroupedStage {
	return &joinAllGrouped{upstream: upstream}
}

type joinAllGrouped struct {
	upstream stream.Stage
	done     bool
}

func (g *joinAllGrouped) Next() (stream.GroupedLine, bool, error) {
	if g.done {
		return stream.GroupedLine{}, false, nil
	}
	var payload []byte
	var newline []byte
	for {
		rec, ok, err := g.upstream.Next()
		if err != nil {
			return stream.GroupedLine{}, false, err
		}
		if !ok {
			break
		}
		payload = append(payload, rec.Payload...)
		newline = rec.Newline
	}
	g.done = true
	return stream.GroupedLine{Payload: payload, EndingLength: int64(len(payload)), Newline: newline}, true, nil
}

func TestMultiline_GroupsAndAccumulatesOffset(t *testing.T) {
	src := stream.NewSliceStage([]byte("ab\ncd\n"))
	upstream := stream.NewByLinesStage(src, 0)

	stage := stream.NewMultilineStage(upstream, joinAllProcessor{}, 10)
	rec, ok, err := stage.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abcd", string(rec.Payload))
	assert.Equal(t, int64(10), rec.StartingOffset)
	assert.Equal(t, int64(14), rec.EndingOffset)

	_, ok, err = stage.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}
