// Package shipper batches decoded log events and indexes them into
// Elasticsearch, deriving a deterministic document id per event
// so retries and replays never duplicate an already-shipped event.
package shipper

import (
	"bytes"
	"context"
	"fmt"

	"logforwarder/pkg/decodeerrors"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/encoding/json"
)

// ReplayHandler is invoked once per bulk action that Elasticsearch
// rejected for a reason other than "this _id already exists". It is
// the caller's hook to re-publish the failed Action onto a replay
// queue.
type ReplayHandler func(ctx context.Context, action Action, cause error) error

// Action is one document queued for indexing. Bucket/BucketARN/Key and
// EndingOffset identify the source byte range the document was decoded
// from, carried along purely so a ReplayHandler can re-publish a
// resume point for this exact event if the write fails.
type Action struct {
	Index string
	ID    string
	Body  []byte

	Bucket         string
	BucketARN      string
	Key            string
	StartingOffset int64
	EndingOffset   int64
}

// MetricsRecorder is the narrow metrics sink a Shipper reports bulk
// outcomes to; pkg/metrics.CloudWatchMetrics satisfies it.
type MetricsRecorder interface {
	RecordBulkOutcome(actionCount, replayedCount int, dimensions map[string]string)
}

// Shipper batches Actions and flushes them to Elasticsearch via the
// bulk API, using the "create" op type so a document that was already
// indexed under the same deterministic _id is silently skipped instead
// of duplicated.
type Shipper struct {
	client        *elasticsearch.Client
	cfg           Config
	replayHandler ReplayHandler
	metrics       MetricsRecorder

	batch     []Action
	batchSize int
}

// New builds a Shipper against the given Elasticsearch client.
func New(client *elasticsearch.Client, cfg Config) (*Shipper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Shipper{
		client: client,
		cfg:    cfg,
		batch:  make([]Action, 0, cfg.BatchMaxActions),
	}, nil
}

// SetReplayHandler installs the callback used for per-action replay on
// a non-duplicate bulk failure.
func (s *Shipper) SetReplayHandler(h ReplayHandler) {
	s.replayHandler = h
}

// SetMetrics installs the sink bulk outcomes are reported to.
func (s *Shipper) SetMetrics(m MetricsRecorder) {
	s.metrics = m
}

// DiscoverDataset classifies objectKey into a dataset name and builds
// the destination index for it under the Shipper's namespace.
func (s *Shipper) DiscoverDataset(objectKey string) (dataset, index string) {
	dataset = ClassifyDataset(objectKey)
	return dataset, IndexName(dataset, s.cfg.Namespace)
}

// Send enriches message into the documented event-document shape,
// queues it for indexing, deriving its _id from the source object's
// identity and the event's starting offset, and flushes the batch once
// either threshold is reached.
func (s *Shipper) Send(ctx context.Context, index, dataset, bucket, bucketARN, objectKey string, startingOffset, endingOffset int64, message []byte) error {
	body, err := buildEventDocument(bucketARN, objectKey, startingOffset, message, dataset, s.cfg.Namespace, s.cfg.Tags)
	if err != nil {
		return fmt.Errorf("build event document: %w", err)
	}

	action := Action{
		Index:          index,
		ID:             DocumentID(bucketARN, objectKey, startingOffset),
		Body:           body,
		Bucket:         bucket,
		BucketARN:      bucketARN,
		Key:            objectKey,
		StartingOffset: startingOffset,
		EndingOffset:   endingOffset,
	}

	s.batch = append(s.batch, action)
	s.batchSize += len(body)

	if len(s.batch) >= s.cfg.BatchMaxActions || s.batchSize >= s.cfg.BatchMaxBytes {
		return s.Flush(ctx)
	}
	return nil
}

// Flush sends any queued actions to Elasticsearch and resets the batch.
func (s *Shipper) Flush(ctx context.Context) error {
	if len(s.batch) == 0 {
		return nil
	}

	actions := s.batch
	s.batch = make([]Action, 0, s.cfg.BatchMaxActions)
	s.batchSize = 0

	body, err := buildBulkBody(actions)
	if err != nil {
		return fmt.Errorf("build bulk body: %w", err)
	}

	req := esapi.BulkRequest{Body: bytes.NewReader(body)}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("bulk request: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("bulk request returned error status: %s", res.String())
	}

	return s.handleOutcome(ctx, actions, res)
}

func buildBulkBody(actions []Action) ([]byte, error) {
	var buf bytes.Buffer
	for _, a := range actions {
		meta := map[string]any{
			"create": map[string]any{
				"_index": a.Index,
				"_id":    a.ID,
			},
		}
		metaLine, err := json.Marshal(meta)
		if err != nil {
			return nil, err
		}
		buf.Write(metaLine)
		buf.WriteByte('\n')
		buf.Write(a.Body)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Create struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"create"`
	} `json:"items"`
}

// handleOutcome inspects the bulk response and, for every action that
// failed with something other than a document-already-exists conflict,
// invokes the replay handler exactly once. A "version
// conflict" (409, already created by an earlier attempt) is treated as
// success: that is the whole point of the create op-type idempotency.
func (s *Shipper) handleOutcome(ctx context.Context, actions []Action, res *esapi.Response) error {
	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}

	if !parsed.Errors {
		if s.metrics != nil {
			s.metrics.RecordBulkOutcome(len(actions), 0, nil)
		}
		return nil
	}

	byID := make(map[string]Action, len(actions))
	for _, a := range actions {
		byID[a.ID] = a
	}

	replayed := 0
	for _, item := range parsed.Items {
		if item.Create.Error.Type == "" {
			continue
		}
		if item.Create.Status == 409 {
			// Already indexed under this _id by a prior attempt: not a
			// failure.
			continue
		}

		action, ok := byID[item.Create.ID]
		if !ok {
			return &decodeerrors.DuplicateIDError{ID: item.Create.ID, Count: 0}
		}

		cause := fmt.Errorf("%s: %s", item.Create.Error.Type, item.Create.Error.Reason)
		log.Ctx(ctx).Error().
			Str("index", action.Index).
			Str("id", action.ID).
			Err(cause).
			Msg("bulk action failed")

		if s.replayHandler == nil {
			continue
		}
		if err := s.replayHandler(ctx, action, cause); err != nil {
			return fmt.Errorf("replay action %s: %w", action.ID, err)
		}
		replayed++
	}

	if s.metrics != nil {
		s.metrics.RecordBulkOutcome(len(actions), replayed, nil)
	}

	return nil
}
