package storage

import (
	"context"
	"fmt"
	"strings"

	"logforwarder/pkg/decodeerrors"
	"logforwarder/pkg/stream"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the narrow slice of the S3 client this package depends on,
// kept separate from the full SDK client so tests can supply a fake.
type S3API interface {
	GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Reader implements Reader over a single S3 object.
type S3Reader struct {
	Client S3API
	Bucket string
	Key    string
	Config Capabilities
}

// NewS3Reader builds an S3Reader for one bucket/key pair.
func NewS3Reader(client S3API, bucket, key string, caps Capabilities) *S3Reader {
	return &S3Reader{Client: client, Bucket: bucket, Key: key, Config: caps}
}

// Capabilities returns the decoding toggles configured for this object.
func (r *S3Reader) Capabilities() Capabilities {
	return r.Config
}

// GetByLines fetches the object body and wraps it in the inflate and
// by-lines stages, resuming from rangeStart.
//
// Gzip detection mirrors the teacher's DownloadCloudtrail: a
// Content-Type of application/x-gzip, or a .gz/.gzip key suffix, marks
// the body as compressed.
func (r *S3Reader) GetByLines(ctx context.Context, rangeStart int64) (stream.Stage, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(r.Bucket),
		Key:    aws.String(r.Key),
	}

	isGzipped := strings.HasSuffix(r.Key, ".gz") || strings.HasSuffix(r.Key, ".gzip")

	// A non-gzipped object can be resumed with a byte-range request;
	// a gzipped one cannot, since the offset is into the decompressed
	// stream, so the full object is fetched and the prefix discarded
	// after inflation instead.
	if rangeStart > 0 && !isGzipped {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", rangeStart))
	}

	out, err := r.Client.GetObject(ctx, input)
	if err != nil {
		return nil, &decodeerrors.DecodeError{Bucket: r.Bucket, Key: r.Key, Err: fmt.Errorf("get object: %w", err)}
	}

	if aws.ToString(out.ContentType) == "application/x-gzip" {
		isGzipped = true
	}

	inflated, err := stream.NewInflateStage(out.Body, isGzipped, rangeStart)
	if err != nil {
		return nil, &decodeerrors.DecodeError{Bucket: r.Bucket, Key: r.Key, Err: err}
	}

	return stream.NewByLinesStage(inflated, rangeStart), nil
}
