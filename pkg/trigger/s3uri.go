package trigger

import (
	"fmt"
	"strings"
)

const s3URIPrefix = "s3://"

// ParseS3URI splits an "s3://bucket/key" URI into its bucket and key.
//
// The prefix is removed with a strict literal-prefix check, not a
// character-set strip: a naive `strings.Trim(uri, "s3://")` (mirroring
// Python's `str.strip`) would also eat any leading/trailing characters
// that happen to appear in the set {s,3,:,/}, corrupting bucket names
// like "s3bucket" into "bucket". TrimPrefix only removes the exact
// literal "s3://" once, from the front.
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !strings.HasPrefix(uri, s3URIPrefix) {
		return "", "", fmt.Errorf("parse s3 uri %q: missing %q prefix", uri, s3URIPrefix)
	}
	rest := strings.TrimPrefix(uri, s3URIPrefix)

	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("parse s3 uri %q: expected bucket and key", uri)
	}
	return parts[0], parts[1], nil
}

// BucketNameFromARN extracts the bucket name from an S3 bucket ARN,
// e.g. "arn:aws:s3:::my-bucket" -> "my-bucket".
func BucketNameFromARN(arn string) string {
	parts := strings.Split(arn, ":")
	return parts[len(parts)-1]
}
