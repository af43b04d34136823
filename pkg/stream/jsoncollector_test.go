package stream_test

import (
	"strings"
	"testing"

	"logforwarder/pkg/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ndjsonStage(t *testing.T, input string) stream.Stage {
	t.Helper()
	src := stream.NewSliceStage([]byte(input))
	lines := stream.NewByLinesStage(src, 0)
	return stream.NewJSONCollectorStage(lines, 0, stream.JSONCollectorConfig{
		ContentType: stream.JSONNDJSON,
	})
}

func drain(t *testing.T, stage stream.Stage) []stream.Record {
	t.Helper()
	var out []stream.Record
	for {
		rec, ok, err := stage.Next()
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, rec)
	}
}

func TestJSONCollector_NDJSONTwoObjects(t *testing.T) {
	recs := drain(t, ndjsonStage(t, "{\"x\":1}\n{\"y\":2}\n"))

	require.Len(t, recs, 2)
	assert.Equal(t, `{"x":1}`, string(recs[0].Payload))
	assert.Equal(t, int64(0), recs[0].StartingOffset)
	assert.Equal(t, int64(8), recs[0].EndingOffset)

	assert.Equal(t, `{"y":2}`, string(recs[1].Payload))
	assert.Equal(t, int64(8), recs[1].StartingOffset)
	assert.Equal(t, int64(16), recs[1].EndingOffset)
}

// An object whose fields are split across several upstream line
// records must still be reassembled into one record, trimmed only of
// its outer surrounding newlines.
func TestJSONCollector_ObjectSpanningMultipleLines(t *testing.T) {
	recs := drain(t, ndjsonStage(t, "{\n\"x\":\n1\n}\n"))

	require.Len(t, recs, 1)
	assert.Equal(t, "{\n\"x\":\n1\n}", string(recs[0].Payload))
	assert.Equal(t, int64(0), recs[0].StartingOffset)
	assert.Equal(t, int64(11), recs[0].EndingOffset)
}

// Input that looks like it might be JSON (starts with '{') but never
// parses must trip the circuit breaker and
// fall back to plain line records covering the whole stream, with none
// produced via successful JSON parsing.
func TestJSONCollector_CircuitBreakerFallsBackToLines(t *testing.T) {
	line := "{not json at all\n"
	input := strings.Repeat(line, 2000)

	recs := drain(t, ndjsonStage(t, input))

	require.Len(t, recs, 2000)
	assert.Equal(t, int64(0), recs[0].StartingOffset)

	var total int64
	for i, rec := range recs {
		assert.Equal(t, "{not json at all", string(rec.Payload), "record %d", i)
		total += int64(len(rec.Payload)) + int64(len(rec.Newline))
	}
	assert.Equal(t, int64(len(input)), total)
	assert.Equal(t, int64(len(input)), recs[len(recs)-1].EndingOffset)
}

// Offsets must never decrease across a full drain.
func TestJSONCollector_OffsetsNonDecreasing(t *testing.T) {
	recs := drain(t, ndjsonStage(t, "{\"a\":1}\n{\"b\":2}\n{\"c\":3}\n"))

	var last int64
	for _, rec := range recs {
		assert.GreaterOrEqual(t, rec.StartingOffset, last)
		assert.GreaterOrEqual(t, rec.EndingOffset, rec.StartingOffset)
		last = rec.EndingOffset
	}
}

func TestJSONCollector_DisabledIsPassthrough(t *testing.T) {
	src := stream.NewSliceStage([]byte("plain\ntext\n"))
	lines := stream.NewByLinesStage(src, 0)
	stage := stream.NewJSONCollectorStage(lines, 0, stream.JSONCollectorConfig{
		ContentType: stream.JSONDisabled,
	})

	recs := drain(t, stage)
	require.Len(t, recs, 2)
	assert.Equal(t, "plain", string(recs[0].Payload))
	assert.Equal(t, "text", string(recs[1].Payload))
}

func TestJSONCollector_SingleModeJoinsWholeStream(t *testing.T) {
	src := stream.NewSliceStage([]byte("line one\nline two\n"))
	lines := stream.NewByLinesStage(src, 0)
	stage := stream.NewJSONCollectorStage(lines, 0, stream.JSONCollectorConfig{
		ContentType: stream.JSONSingle,
	})

	recs := drain(t, stage)
	require.Len(t, recs, 1)
	assert.Equal(t, "line one\nline two", string(recs[0].Payload))
	assert.Equal(t, int64(0), recs[0].StartingOffset)
	assert.Equal(t, int64(19), recs[0].EndingOffset)
}
