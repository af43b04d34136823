package stream_test

import (
	"bytes"
	"compress/gzip"
	"testing"

	"logforwarder/pkg/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write(data)
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func drainChunks(t *testing.T, stage stream.Stage) []byte {
	t.Helper()
	var out []byte
	for {
		rec, ok, err := stage.Next()
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, rec.Payload...)
	}
}

func TestInflate_PlainPassthrough(t *testing.T) {
	stage, err := stream.NewInflateStage(bytes.NewReader([]byte("hello world")), false, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(drainChunks(t, stage)))
}

func TestInflate_GzippedFromStart(t *testing.T) {
	compressed := gzipBytes(t, []byte("the quick brown fox"))
	stage, err := stream.NewInflateStage(bytes.NewReader(compressed), true, 0)
	require.NoError(t, err)
	assert.Equal(t, "the quick brown fox", string(drainChunks(t, stage)))
}

func TestInflate_GzippedResumeFromOffset(t *testing.T) {
	original := "the quick brown fox"
	compressed := gzipBytes(t, []byte(original))
	stage, err := stream.NewInflateStage(bytes.NewReader(compressed), true, 10)
	require.NoError(t, err)
	assert.Equal(t, original[10:], string(drainChunks(t, stage)))
}

func TestInflate_MalformedGzipErrors(t *testing.T) {
	_, err := stream.NewInflateStage(bytes.NewReader([]byte("not gzip data")), true, 0)
	assert.Error(t, err)
}
