package pipeline

import "github.com/segmentio/encoding/json"

// ReplayPayload is the body of a self-published SQS message: enough
// information to resume decoding a source object from a specific byte
// offset, used both for the end-of-deadline tail replay and for
// re-shipping a single event that failed a bulk write.
type ReplayPayload struct {
	Bucket     string `json:"bucket"`
	BucketARN  string `json:"bucket_arn"`
	Key        string `json:"key"`
	RangeStart int64  `json:"range_start"`
}

// Marshal encodes the payload for SendSQSMessageWithAttributes.
func (p ReplayPayload) Marshal() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParseReplayPayload decodes a self_sqs message body back into a
// ReplayPayload.
func ParseReplayPayload(body []byte) (ReplayPayload, error) {
	var p ReplayPayload
	err := json.Unmarshal(body, &p)
	return p, err
}
