package stream

import "bytes"

// byLinesStage maintains a rolling buffer of bytes not yet terminated by
// a newline, and yields each complete line as soon as its terminator is
// seen. `\r\n` is preferred over a bare `\n`: a line is only considered
// `\r\n`-terminated when the byte preceding the `\n` is `\r`. CR-only
// endings are never recognized as line terminators on their own.
type byLinesStage struct {
	upstream     Stage
	buf          []byte
	ending       int64
	upstreamDone bool
}

// NewByLinesStage turns an upstream stage of arbitrary byte chunks into
// whole lines with byte-exact offset accounting, starting at rangeStart.
func NewByLinesStage(upstream Stage, rangeStart int64) Stage {
	return &byLinesStage{upstream: upstream, ending: rangeStart}
}

func (s *byLinesStage) Next() (Record, bool, error) {
	for {
		if rec, ok := s.tryExtract(); ok {
			return rec, true, nil
		}

		if s.upstreamDone {
			if len(s.buf) == 0 {
				return Record{}, false, nil
			}

			starting := s.ending
			ending := starting + int64(len(s.buf))
			rec := Record{Payload: s.buf, StartingOffset: starting, EndingOffset: ending, Newline: nil}
			s.ending = ending
			s.buf = nil
			return rec, true, nil
		}

		next, ok, err := s.upstream.Next()
		if err != nil {
			return Record{}, false, err
		}
		if !ok {
			s.upstreamDone = true
			continue
		}
		s.buf = append(s.buf, next.Payload...)
	}
}

// tryExtract pulls one complete line out of the front of the buffer, if
// one is available.
func (s *byLinesStage) tryExtract() (Record, bool) {
	nlIdx := bytes.IndexByte(s.buf, '\n')
	if nlIdx < 0 {
		return Record{}, false
	}

	var newline []byte
	lineEnd := nlIdx
	if nlIdx > 0 && s.buf[nlIdx-1] == '\r' {
		newline = crlf
		lineEnd = nlIdx - 1
	} else {
		newline = lf
	}

	line := make([]byte, lineEnd)
	copy(line, s.buf[:lineEnd])

	starting := s.ending
	ending := starting + int64(lineEnd) + int64(len(newline))

	s.ending = ending
	s.buf = s.buf[nlIdx+1:]

	return Record{Payload: line, StartingOffset: starting, EndingOffset: ending, Newline: newline}, true
}

var (
	crlf = []byte("\r\n")
	lf   = []byte("\n")
)
