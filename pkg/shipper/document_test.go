package shipper

import (
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEventDocument_EnrichesWithSourceIdentity(t *testing.T) {
	body, err := buildEventDocument(
		"arn:aws:s3:::my-bucket", "AWSLogs/123/CloudTrail/file.json", 1024,
		[]byte(`{"eventName":"PutObject"}`), "aws.cloudtrail", "default", nil,
	)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(body, &doc))

	fields := doc["fields"].(map[string]any)
	assert.Equal(t, `{"eventName":"PutObject"}`, fields["message"])
	assert.Equal(t, float64(1024), fields["log"].(map[string]any)["offset"])

	s3 := fields["aws"].(map[string]any)["s3"].(map[string]any)
	assert.Equal(t, "arn:aws:s3:::my-bucket", s3["bucket"].(map[string]any)["arn"])
	assert.Equal(t, "AWSLogs/123/CloudTrail/file.json", s3["object"].(map[string]any)["key"])

	dataStream := doc["data_stream"].(map[string]any)
	assert.Equal(t, "logs", dataStream["type"])
	assert.Equal(t, "aws.cloudtrail", dataStream["dataset"])
	assert.Equal(t, "default", dataStream["namespace"])

	event := doc["event"].(map[string]any)
	assert.Equal(t, "aws.cloudtrail", event["dataset"])
	assert.Equal(t, `{"eventName":"PutObject"}`, event["original"])

	tags := doc["tags"].([]any)
	assert.Equal(t, []any{"preserve_original_event", "forwarded", "aws-cloudtrail"}, tags)
}

func TestBuildEventDocument_AppendsConfiguredTags(t *testing.T) {
	body, err := buildEventDocument(
		"arn:aws:s3:::my-bucket", "key.json", 0,
		[]byte(`{}`), "generic", "default", []string{"team:platform"},
	)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(body, &doc))

	tags := doc["tags"].([]any)
	assert.Equal(t, []any{"preserve_original_event", "forwarded", "generic", "team:platform"}, tags)
}
