package stream

import (
	"compress/gzip"
	"fmt"
	"io"

	"logforwarder/pkg/decodeerrors"
)

// ChunkSize is the recommended inflate chunk size.
const ChunkSize = 64 * 1024

// inflateStage transparently decompresses a gzip body, resuming from a
// byte offset, and emits fixed-size inflated chunks. Non-gzipped bodies
// pass through unchanged. Emitted offsets are zero placeholders; the
// downstream line splitter computes the real offsets.
type inflateStage struct {
	reader io.Reader
	closer io.Closer
	done   bool
}

// NewInflateStage wraps body for decompression. When isGzipped is true,
// body is decoded as gzip and range_start bytes are discarded before the
// first chunk is emitted (compress/gzip exposes no native seek, so
// resuming means reading and dropping the skipped prefix). When false,
// body is assumed to already start at rangeStart (the caller issued a
// ranged GetObject) and is streamed through unchanged.
func NewInflateStage(body io.Reader, isGzipped bool, rangeStart int64) (Stage, error) {
	if !isGzipped {
		return &inflateStage{reader: body}, nil
	}

	gz, err := gzip.NewReader(body)
	if err != nil {
		return nil, &decodeerrors.DecodeError{Err: fmt.Errorf("malformed gzip framing: %w", err)}
	}

	if rangeStart > 0 {
		if _, err := io.CopyN(io.Discard, gz, rangeStart); err != nil && err != io.EOF {
			return nil, &decodeerrors.DecodeError{Err: fmt.Errorf("seeking gzip stream to offset %d: %w", rangeStart, err)}
		}
	}

	return &inflateStage{reader: gz, closer: gz}, nil
}

func (s *inflateStage) Next() (Record, bool, error) {
	if s.done {
		return Record{}, false, nil
	}

	buf := make([]byte, ChunkSize)
	n, err := io.ReadFull(s.reader, buf)
	if n == 0 {
		s.done = true
		if s.closer != nil {
			_ = s.closer.Close()
		}
		if err != nil && err != io.EOF {
			return Record{}, false, &decodeerrors.DecodeError{Err: err}
		}
		return Record{}, false, nil
	}

	if err == io.ErrUnexpectedEOF || err == io.EOF {
		s.done = true
	} else if err != nil {
		return Record{}, false, &decodeerrors.DecodeError{Err: err}
	}

	return Record{Payload: buf[:n]}, true, nil
}
