package storage_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"testing"

	"logforwarder/pkg/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3Client struct {
	body        []byte
	contentType string
	lastInput   *s3.GetObjectInput
}

func (f *fakeS3Client) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.lastInput = in
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader(f.body)),
		ContentType: aws.String(f.contentType),
	}, nil
}

func TestS3Reader_PlainTextByLines(t *testing.T) {
	client := &fakeS3Client{body: []byte("first\nsecond\n"), contentType: "text/plain"}
	reader := storage.NewS3Reader(client, "bucket", "key.log", storage.Capabilities{})

	stage, err := reader.GetByLines(context.Background(), 0)
	require.NoError(t, err)

	rec, ok, err := stage.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", string(rec.Payload))

	rec, ok, err = stage.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", string(rec.Payload))

	_, ok, err = stage.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestS3Reader_GzipDetectedByKeySuffix(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, _ = gw.Write([]byte("compressed line\n"))
	_ = gw.Close()

	client := &fakeS3Client{body: buf.Bytes(), contentType: "application/octet-stream"}
	reader := storage.NewS3Reader(client, "bucket", "events.json.gz", storage.Capabilities{})

	stage, err := reader.GetByLines(context.Background(), 0)
	require.NoError(t, err)

	rec, ok, err := stage.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "compressed line", string(rec.Payload))
}

func TestS3Reader_NonGzipResumeUsesRangeHeader(t *testing.T) {
	client := &fakeS3Client{body: []byte("tail\n"), contentType: "text/plain"}
	reader := storage.NewS3Reader(client, "bucket", "key.log", storage.Capabilities{})

	_, err := reader.GetByLines(context.Background(), 10)
	require.NoError(t, err)

	require.NotNil(t, client.lastInput.Range)
	assert.Equal(t, "bytes=10-", aws.ToString(client.lastInput.Range))
}
