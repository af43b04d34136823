package stream_test

import (
	"testing"

	"logforwarder/pkg/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mixed-newline-style input must yield the terminator that actually
// precedes each line's '\n', not one style uniformly applied to the
// whole chunk.
func TestByLines_MixedNewlineStyles(t *testing.T) {
	src := stream.NewSliceStage([]byte("a\nbb\r\nccc"))
	stage := stream.NewByLinesStage(src, 0)

	rec, ok, err := stage.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", string(rec.Payload))
	assert.Equal(t, int64(0), rec.StartingOffset)
	assert.Equal(t, int64(2), rec.EndingOffset)
	assert.Equal(t, "\n", string(rec.Newline))

	rec, ok, err = stage.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bb", string(rec.Payload))
	assert.Equal(t, int64(2), rec.StartingOffset)
	assert.Equal(t, int64(6), rec.EndingOffset)
	assert.Equal(t, "\r\n", string(rec.Newline))

	rec, ok, err = stage.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ccc", string(rec.Payload))
	assert.Equal(t, int64(6), rec.StartingOffset)
	assert.Equal(t, int64(9), rec.EndingOffset)
	assert.Empty(t, rec.Newline)

	_, ok, err = stage.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestByLines_OffsetsNonDecreasing(t *testing.T) {
	src := stream.NewSliceStage([]byte("one\ntwo\nthree\nfour\n"))
	stage := stream.NewByLinesStage(src, 100)

	var last int64 = 100
	for {
		rec, ok, err := stage.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		assert.GreaterOrEqual(t, rec.StartingOffset, last)
		assert.GreaterOrEqual(t, rec.EndingOffset, rec.StartingOffset)
		last = rec.EndingOffset
	}
	assert.Equal(t, int64(119), last)
}

func TestByLines_SumOfPayloadAndNewlineEqualsStreamLength(t *testing.T) {
	input := "alpha\r\nbeta\ngamma\r\ndelta"
	src := stream.NewSliceStage([]byte(input))
	stage := stream.NewByLinesStage(src, 0)

	var total int
	for {
		rec, ok, err := stage.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		total += len(rec.Payload) + len(rec.Newline)
	}
	assert.Equal(t, len(input), total)
}
