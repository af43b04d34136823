// Package trigger classifies the Lambda invocation event into the
// queue message kind that drives dispatch.
package trigger

import (
	"logforwarder/pkg/decodeerrors"
)

// Kind distinguishes a primary ingestion message from a replayed one.
type Kind string

const (
	// SQS is a primary message: an S3 event notification fan-in off the
	// ingestion queue.
	SQS Kind = "sqs"
	// SelfSQS is a replay message this function previously emitted onto
	// its own replay queue after a partial failure or a truncated read.
	SelfSQS Kind = "self_sqs"
)

// OriginalEventSourceAttribute is the SQS message attribute a replay
// publish sets so the next invocation's Classify recognizes it as
// SelfSQS rather than a primary notification.
const OriginalEventSourceAttribute = "originalEventSource"

// sqsEventSource is the only Records[0].eventSource value Classify
// accepts. Anything else (SNS, EventBridge, a hand-crafted test event
// missing the field) is not a supported trigger.
const sqsEventSource = "aws:sqs"

// Classify inspects one SQS record's envelope (already JSON-decoded into
// a generic map) and returns its Kind.
//
// A record is self_sqs when its messageAttributes carry an
// originalEventSource set by a prior replay publish; otherwise, any
// record present at all is treated as a primary sqs message.
//
// The source check is an OR of "no Records key" and "Records is
// empty", not an AND: an event with an empty Records list is just as
// mistriggered as one missing the key entirely, and requiring both to
// be true would let an empty-array invocation slip through as valid.
func Classify(event map[string]any) (Kind, error) {
	rawRecords, hasRecords := event["Records"]
	records, isSlice := rawRecords.([]any)

	if !hasRecords || !isSlice || len(records) == 0 {
		return "", &decodeerrors.TriggerError{Reason: "event has no Records"}
	}

	first, ok := records[0].(map[string]any)
	if !ok {
		return "", &decodeerrors.TriggerError{Reason: "not supported trigger"}
	}
	eventSource, _ := first["eventSource"].(string)
	if eventSource != sqsEventSource {
		return "", &decodeerrors.TriggerError{Reason: "not supported trigger"}
	}

	for _, r := range records {
		rec, ok := r.(map[string]any)
		if !ok {
			continue
		}
		if isSelfSQS(rec) {
			return SelfSQS, nil
		}
	}

	return SQS, nil
}

func isSelfSQS(record map[string]any) bool {
	attrs, ok := record["messageAttributes"].(map[string]any)
	if !ok {
		return false
	}
	origin, ok := attrs[OriginalEventSourceAttribute]
	if !ok {
		return false
	}
	switch v := origin.(type) {
	case map[string]any:
		s, _ := v["stringValue"].(string)
		return s != ""
	case string:
		return v != ""
	default:
		return false
	}
}
