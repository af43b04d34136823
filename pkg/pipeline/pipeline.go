// Package pipeline wires the storage Reader, the stream decoding
// stack, and the Elasticsearch Shipper together into the per-object
// decode-and-ship operation the Lambda handler drives.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"logforwarder/pkg/decodeerrors"
	myaws "logforwarder/pkg/aws"
	"logforwarder/pkg/rules"
	"logforwarder/pkg/shipper"
	"logforwarder/pkg/storage"
	"logforwarder/pkg/stream"
	"logforwarder/pkg/trigger"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/encoding/json"
)

// RuleEvaluator is the narrow slice of rules.CachedConfiguration the
// pipeline needs: evaluate a decoded event against the drop rules.
// pkg/rules.CachedConfiguration satisfies it unchanged.
type RuleEvaluator interface {
	EvalRules(evt map[string]any) (bool, *rules.DropedEvent, error)
}

// deadlineMargin is how far ahead of the Lambda's actual deadline the
// pipeline stops pulling new records and instead flushes and replays
// the remainder, leaving enough slack to do both before the runtime
// kills the invocation.
const deadlineMargin = 2 * time.Second

// Pipeline processes one source object end to end: read -> decode ->
// enrich -> ship, replaying any unread tail onto the self queue when
// the invocation is about to run out of time.
type Pipeline struct {
	Shipper *shipper.Shipper
	Conn    *myaws.Connection
	Rules   RuleEvaluator
}

// SetRules installs an optional pre-ingest drop-rules filter, evaluated
// against each decoded event before it is shipped. A nil Rules (the
// default) ships everything.
func (p *Pipeline) SetRules(r RuleEvaluator) {
	p.Rules = r
}

// New builds a Pipeline over an already-constructed Shipper and AWS
// connection (the connection supplies the replay queue), and installs
// the shipper's replay handler so a bulk write failure re-publishes
// just that one event's resume point.
func New(sh *shipper.Shipper, conn *myaws.Connection) *Pipeline {
	p := &Pipeline{Shipper: sh, Conn: conn}
	sh.SetReplayHandler(p.replayFailedAction)
	return p
}

// replayFailedAction re-publishes a single bulk-rejected event as a
// ReplayPayload resuming just before it, so the next invocation
// re-decodes and re-ships it.
func (p *Pipeline) replayFailedAction(ctx context.Context, action shipper.Action, cause error) error {
	payload := ReplayPayload{
		Bucket:    action.Bucket,
		BucketARN: action.BucketARN,
		Key:       action.Key,
		// Resume at the failed event's own starting offset so it is
		// re-decoded and re-shipped, not skipped.
		RangeStart: action.StartingOffset,
	}
	body, err := payload.Marshal()
	if err != nil {
		return fmt.Errorf("marshal replay payload: %w", err)
	}

	log.Ctx(ctx).Error().
		Str("bucket", action.Bucket).Str("key", action.Key).Str("id", action.ID).
		Err(cause).Msg("bulk action failed, replaying")

	return p.Conn.SendSQSMessageWithAttributes(ctx, body, map[string]string{
		trigger.OriginalEventSourceAttribute: "s3",
	})
}

// ProcessObject decodes reader starting at rangeStart, ships every
// decoded event, and returns. If ctx's deadline is reached before the
// object is fully consumed, it flushes what has been shipped so far
// and publishes a ReplayPayload for the unread tail instead of
// returning an error.
func (p *Pipeline) ProcessObject(ctx context.Context, bucket, bucketARN, key string, rangeStart int64, reader storage.Reader) error {
	stage, err := reader.GetByLines(ctx, rangeStart)
	if err != nil {
		return err
	}

	caps := reader.Capabilities()
	stage = stream.NewMultilineStage(stage, caps.MultilineProcessor, rangeStart)
	stage = stream.NewJSONCollectorStage(stage, rangeStart, stream.JSONCollectorConfig{
		ContentType:        caps.JSONContentType,
		Expander:           caps.EventListFromFieldExpander,
		MultilineInstalled: caps.MultilineProcessor != nil,
	})

	dataset, index := p.Shipper.DiscoverDataset(key)
	log.Ctx(ctx).Debug().Str("bucket", bucket).Str("key", key).Str("dataset", dataset).Msg("processing object")

	for {
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < deadlineMargin {
			return p.replayTail(ctx, bucket, bucketARN, key, rangeStart)
		}

		rec, ok, err := stage.Next()
		if err != nil {
			return &decodeerrors.DecodeError{Bucket: bucket, Key: key, Err: err}
		}
		if !ok {
			break
		}

		if drop, err := p.shouldDrop(rec.Payload); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("bucket", bucket).Str("key", key).Msg("drop-rule evaluation failed, shipping event")
		} else if drop {
			rangeStart = rec.EndingOffset
			continue
		}

		if err := p.Shipper.Send(ctx, index, dataset, bucket, bucketARN, key, rec.StartingOffset, rec.EndingOffset, rec.Payload); err != nil {
			return fmt.Errorf("ship event from s3://%s/%s: %w", bucket, key, err)
		}
		rangeStart = rec.EndingOffset
	}

	return p.Shipper.Flush(ctx)
}

// shouldDrop evaluates payload against the installed drop rules, if
// any. A payload that doesn't parse as a JSON object is never dropped:
// the drop rules only ever match against decoded CloudTrail-style event
// fields.
func (p *Pipeline) shouldDrop(payload []byte) (bool, error) {
	if p.Rules == nil {
		return false, nil
	}

	var evt map[string]any
	if err := json.Unmarshal(payload, &evt); err != nil {
		return false, nil
	}

	drop, dropped, err := p.Rules.EvalRules(evt)
	if err != nil {
		return false, err
	}
	if drop {
		log.Debug().Str("rule", dropped.RuleName).Msg("event dropped by rule")
	}
	return drop, nil
}

// replayTail flushes whatever has already been queued and publishes a
// replay message so a later invocation resumes this object at
// rangeStart.
func (p *Pipeline) replayTail(ctx context.Context, bucket, bucketARN, key string, rangeStart int64) error {
	if err := p.Shipper.Flush(ctx); err != nil {
		return fmt.Errorf("flush before replay: %w", err)
	}

	payload := ReplayPayload{Bucket: bucket, BucketARN: bucketARN, Key: key, RangeStart: rangeStart}
	body, err := payload.Marshal()
	if err != nil {
		return fmt.Errorf("marshal replay payload: %w", err)
	}

	if err := p.Conn.SendSQSMessageWithAttributes(ctx, body, map[string]string{
		trigger.OriginalEventSourceAttribute: "s3",
	}); err != nil {
		return fmt.Errorf("publish replay message: %w", err)
	}

	log.Ctx(ctx).Warn().
		Str("bucket", bucket).Str("key", key).Int64("range_start", rangeStart).
		Msg("deadline approaching, replayed remainder of object")

	return nil
}
