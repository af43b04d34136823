package shipper

import (
	"strings"

	"github.com/segmentio/encoding/json"
)

// eventDocument is the Elasticsearch document shape shipped for every
// decoded log line: the raw message plus enough of its S3 source
// identity for DocumentID and replay to resume at the right byte,
// wrapped in the data stream metadata Elasticsearch routes ingestion on.
// A direct port of _enrich_event (shippers/es.py, handlers/aws/utils.py)
// and the fields.* shape _s3_object_id reads back out of it.
type eventDocument struct {
	Fields     eventFields `json:"fields"`
	DataStream dataStream  `json:"data_stream"`
	Event      eventMeta   `json:"event"`
	Tags       []string    `json:"tags"`
}

type eventFields struct {
	Message string    `json:"message"`
	Log     logFields `json:"log"`
	AWS     awsFields `json:"aws"`
}

type logFields struct {
	Offset int64 `json:"offset"`
}

type awsFields struct {
	S3 s3Fields `json:"s3"`
}

type s3Fields struct {
	Bucket s3Bucket `json:"bucket"`
	Object s3Object `json:"object"`
}

type s3Bucket struct {
	ARN string `json:"arn"`
}

type s3Object struct {
	Key string `json:"key"`
}

type dataStream struct {
	Type      string `json:"type"`
	Dataset   string `json:"dataset"`
	Namespace string `json:"namespace"`
}

type eventMeta struct {
	Dataset  string `json:"dataset"`
	Original string `json:"original"`
}

// buildEventDocument wraps one decoded log line into the enriched
// document shape shipped to Elasticsearch. The offset carried in
// fields.log.offset is the record's starting offset, matching
// _s3_object_id's use of the same field to derive the document _id.
func buildEventDocument(bucketARN, objectKey string, startingOffset int64, message []byte, dataset, namespace string, extraTags []string) ([]byte, error) {
	msg := string(message)

	tags := make([]string, 0, 3+len(extraTags))
	tags = append(tags, "preserve_original_event", "forwarded", strings.ReplaceAll(dataset, ".", "-"))
	tags = append(tags, extraTags...)

	doc := eventDocument{
		Fields: eventFields{
			Message: msg,
			Log:     logFields{Offset: startingOffset},
			AWS: awsFields{S3: s3Fields{
				Bucket: s3Bucket{ARN: bucketARN},
				Object: s3Object{Key: objectKey},
			}},
		},
		DataStream: dataStream{Type: "logs", Dataset: dataset, Namespace: namespace},
		Event:      eventMeta{Dataset: dataset, Original: msg},
		Tags:       tags,
	}

	return json.Marshal(doc)
}
