package shipper

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DocumentID derives the deterministic Elasticsearch document _id for
// one event, so that re-ingesting the same byte range of the same
// source object (a retry, a replay) produces the same _id and the
// `create` op-type silently no-ops instead of duplicating the event.
//
// The id is the first 10 hex characters of sha256(bucketARN+objectKey),
// followed by a hyphen and the zero-padded 12-digit starting offset of
// the record within the decoded stream, mirroring fields.log.offset on
// the shipped event document. Offset, not a running counter, is used so
// the id is reproducible independent of batching or retries.
func DocumentID(bucketARN, objectKey string, startingOffset int64) string {
	sum := sha256.Sum256([]byte(bucketARN + objectKey))
	prefix := hex.EncodeToString(sum[:])[:10]
	return fmt.Sprintf("%s-%012d", prefix, startingOffset)
}
