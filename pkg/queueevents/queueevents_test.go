package queueevents_test

import (
	"context"
	"encoding/json"
	"testing"

	"logforwarder/pkg/flags"
	"logforwarder/pkg/pipeline"
	"logforwarder/pkg/queueevents"
	"logforwarder/pkg/shipper"
	"logforwarder/pkg/storage"
	"logforwarder/pkg/stream"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"
)

// emptyStage never yields a record, letting these tests exercise
// dispatch without decoding any real object content.
type emptyStage struct{}

func (emptyStage) Next() (stream.Record, bool, error) { return stream.Record{}, false, nil }

type emptyReader struct{}

func (emptyReader) Capabilities() storage.Capabilities { return storage.Capabilities{} }
func (emptyReader) GetByLines(context.Context, int64) (stream.Stage, error) {
	return emptyStage{}, nil
}

func newTestProcessor(t *testing.T) *queueevents.Processor {
	t.Helper()
	sh, err := shipper.New(nil, shipper.Config{
		ElasticsearchURL: "https://es.example.com",
		Username:         "user",
		Password:         "pass",
		Namespace:        "dev",
	})
	require.NoError(t, err)

	p := pipeline.New(sh, nil)
	return queueevents.NewProcessor(flags.S3Processor{}, p, func(string, string) storage.Reader {
		return emptyReader{}
	})
}

func sqsEventBytes(t *testing.T, rec events.SQSMessage) []byte {
	t.Helper()
	b, err := json.Marshal(events.SQSEvent{Records: []events.SQSMessage{rec}})
	require.NoError(t, err)
	return b
}

func TestHandler_DispatchesPrimaryS3Notification(t *testing.T) {
	processor := newTestProcessor(t)

	s3Event := events.S3Event{Records: []events.S3EventRecord{{
		S3: events.S3Entity{
			Bucket: events.S3Bucket{Name: "my-bucket", Arn: "arn:aws:s3:::my-bucket"},
			Object: events.S3Object{Key: "AWSLogs/1/CloudTrail/file.json.gz"},
		},
	}}}
	body, err := json.Marshal(s3Event)
	require.NoError(t, err)

	payload := sqsEventBytes(t, events.SQSMessage{MessageId: "m1", Body: string(body), EventSource: "aws:sqs"})

	_, err = processor.Handler(context.Background(), payload)
	require.NoError(t, err)
}

func TestHandler_DispatchesReplayMessage(t *testing.T) {
	processor := newTestProcessor(t)

	replay := pipeline.ReplayPayload{
		Bucket:     "my-bucket",
		BucketARN:  "arn:aws:s3:::my-bucket",
		Key:        "AWSLogs/1/CloudTrail/file.json.gz",
		RangeStart: 128,
	}
	body, err := replay.Marshal()
	require.NoError(t, err)

	rec := events.SQSMessage{
		MessageId:   "m2",
		Body:        body,
		EventSource: "aws:sqs",
		MessageAttributes: map[string]events.SQSMessageAttribute{
			"originalEventSource": {StringValue: strPtr("s3"), DataType: "String"},
		},
	}
	payload := sqsEventBytes(t, rec)

	_, err = processor.Handler(context.Background(), payload)
	require.NoError(t, err)
}

func TestHandler_NoRecords_ReturnsTriggerError(t *testing.T) {
	processor := newTestProcessor(t)

	payload, err := json.Marshal(events.SQSEvent{})
	require.NoError(t, err)

	_, err = processor.Handler(context.Background(), payload)
	require.Error(t, err)
}

func TestHandler_UnsupportedEventSource_ReturnsTriggerError(t *testing.T) {
	processor := newTestProcessor(t)

	payload := sqsEventBytes(t, events.SQSMessage{MessageId: "m3", Body: "{}", EventSource: "aws:sns"})

	_, err := processor.Handler(context.Background(), payload)
	require.Error(t, err)
}

func strPtr(s string) *string { return &s }
