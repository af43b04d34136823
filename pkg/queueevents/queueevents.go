// Package queueevents dispatches one SQS-triggered Lambda invocation
// to the decoding pipeline: a primary message wraps an S3
// event notification referencing one or more objects to ingest; a
// self_sqs message is a replay this function previously published and
// carries its own resume point directly, without a second S3 read.
package queueevents

import (
	"context"
	"fmt"

	"logforwarder/pkg/flags"
	"logforwarder/pkg/pipeline"
	"logforwarder/pkg/storage"
	"logforwarder/pkg/stream"
	"logforwarder/pkg/trigger"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/encoding/json"
)

// ReaderFactory builds a storage.Reader for one S3 object, letting the
// processor stay agnostic of the concrete AWS clients it is wired
// against.
type ReaderFactory func(bucket, key string) storage.Reader

// Processor dispatches SQS records to the decoding pipeline.
type Processor struct {
	Pipeline  *pipeline.Pipeline
	NewReader ReaderFactory
}

// NewProcessor builds a Processor.
func NewProcessor(_ flags.S3Processor, p *pipeline.Pipeline, newReader ReaderFactory) *Processor {
	return &Processor{Pipeline: p, NewReader: newReader}
}

// Handler decodes the raw Lambda event payload as an SQS event,
// classifies it, and dispatches every record.
func (p *Processor) Handler(ctx context.Context, payload []byte) ([]byte, error) {
	sqsEvent := new(events.SQSEvent)
	if err := json.Unmarshal(payload, sqsEvent); err != nil {
		return nil, fmt.Errorf("unmarshal sqs event: %w", err)
	}

	generic, err := toGenericEvent(sqsEvent)
	if err != nil {
		return nil, err
	}

	kind, err := trigger.Classify(generic)
	if err != nil {
		return nil, err
	}

	for _, rec := range sqsEvent.Records {
		var dispatchErr error
		switch kind {
		case trigger.SelfSQS:
			dispatchErr = p.dispatchReplay(ctx, rec)
		default:
			dispatchErr = p.dispatchPrimary(ctx, rec)
		}
		if dispatchErr != nil {
			log.Ctx(ctx).Error().Err(dispatchErr).Str("messageId", rec.MessageId).Msg("failed to process sqs record")
			return nil, dispatchErr
		}
	}

	return []byte(""), nil
}

// toGenericEvent re-encodes the typed SQS event as a generic map so
// trigger.Classify can inspect it the same way it inspects a raw
// Lambda invocation payload.
func toGenericEvent(sqsEvent *events.SQSEvent) (map[string]any, error) {
	raw, err := json.Marshal(sqsEvent)
	if err != nil {
		return nil, fmt.Errorf("marshal sqs event: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("unmarshal generic event: %w", err)
	}
	return generic, nil
}

func (p *Processor) dispatchPrimary(ctx context.Context, rec events.SQSMessage) error {
	s3Event := new(events.S3Event)
	if err := json.Unmarshal([]byte(rec.Body), s3Event); err != nil {
		return fmt.Errorf("unmarshal s3 event: %w", err)
	}

	for _, s3rec := range s3Event.Records {
		bucket := s3rec.S3.Bucket.Name
		key := s3rec.S3.Object.Key
		bucketARN := s3rec.S3.Bucket.Arn

		reader := p.NewReader(bucket, key)
		if err := p.Pipeline.ProcessObject(ctx, bucket, bucketARN, key, 0, reader); err != nil {
			return fmt.Errorf("process s3://%s/%s: %w", bucket, key, err)
		}
	}
	return nil
}

func (p *Processor) dispatchReplay(ctx context.Context, rec events.SQSMessage) error {
	replay, err := pipeline.ParseReplayPayload([]byte(rec.Body))
	if err != nil {
		return fmt.Errorf("unmarshal replay payload: %w", err)
	}

	reader := p.NewReader(replay.Bucket, replay.Key)
	if err := p.Pipeline.ProcessObject(ctx, replay.Bucket, replay.BucketARN, replay.Key, replay.RangeStart, reader); err != nil {
		return fmt.Errorf("replay s3://%s/%s from offset %d: %w", replay.Bucket, replay.Key, replay.RangeStart, err)
	}
	return nil
}

// defaultCapabilities returns the decoding Capabilities derived from
// the processor's environment configuration, used by ReaderFactory
// implementations that build an S3Reader.
func defaultCapabilities(cfg flags.S3Processor) storage.Capabilities {
	contentType := stream.JSONContentType(cfg.JSONContentType)
	if contentType == "" {
		contentType = stream.JSONNDJSON
	}

	var expander stream.EventListExpander
	if cfg.ExpandEventListFromField != "" {
		expander = &stream.FieldExpander{Field: cfg.ExpandEventListFromField}
	}

	return storage.Capabilities{
		JSONContentType:            contentType,
		EventListFromFieldExpander: expander,
	}
}

// DefaultCapabilities exposes defaultCapabilities for callers
// constructing their own ReaderFactory (e.g. cmd/main.go).
var DefaultCapabilities = defaultCapabilities
