package stream

import (
	"bytes"

	"github.com/segmentio/encoding/json"
)

// JSONContentType selects the JSON collector's mode.
type JSONContentType string

const (
	JSONDisabled JSONContentType = "disabled"
	JSONSingle   JSONContentType = "single"
	JSONNDJSON   JSONContentType = "ndjson"
)

// circuitBreakerLimit is the bounded-lookahead budget: a `{`-prefixed
// input that never parses forces a by-lines fallback after this many
// failed accumulation attempts.
const circuitBreakerLimit = 1000

// ExpandedRecord is one element an EventListExpander peels out of an
// array-valued field.
type ExpandedRecord struct {
	Payload        []byte
	StartingOffset int64
	EndingOffset   int64
	Index          int
}

// EventListExpander is an external collaborator: when present, the
// collector hands it each parsed JSON object and its byte span and
// forwards whatever sub-records it returns.
type EventListExpander interface {
	Expand(payload []byte, parsed map[string]any, startingOffset, endingOffset int64) ([]ExpandedRecord, error)
}

// jsonCollectorState is the per-stream mutable accumulation state.
type jsonCollectorState struct {
	unfinished     []byte
	hasObjectStart bool
	isJSONObject   bool
	circuitBroken  bool
	circuitBreaker int
	startingOffset int64
	endingOffset   int64
}

// JSONCollectorConfig configures jsonCollectorStage construction.
type JSONCollectorConfig struct {
	ContentType        JSONContentType
	Expander           EventListExpander
	MultilineInstalled bool
	// Unmarshal is the injected JSON-parsing capability (Design Note
	// "dynamic json_library swap"); defaults to segmentio/encoding/json.
	Unmarshal func(data []byte, v any) error
}

type collected struct {
	payload []byte
	parsed  map[string]any
	isEmpty bool
}

type jsonCollectorStage struct {
	upstream    Stage
	contentType JSONContentType
	expander    EventListExpander
	unmarshal   func([]byte, any) error

	state jsonCollectorState

	singleEager bool
	done        bool
	queue       []Record
	pendingErr  error
}

// NewJSONCollectorStage wraps upstream to re-assemble JSON documents
// that may span multiple upstream line records. Disabled when
// cfg.ContentType is JSONDisabled or a multiline processor is installed
// (multiline takes precedence).
func NewJSONCollectorStage(upstream Stage, rangeStart int64, cfg JSONCollectorConfig) Stage {
	if cfg.ContentType == JSONDisabled || cfg.MultilineInstalled {
		return upstream
	}

	unmarshal := cfg.Unmarshal
	if unmarshal == nil {
		unmarshal = json.Unmarshal
	}

	s := &jsonCollectorStage{
		upstream:    upstream,
		contentType: cfg.ContentType,
		expander:    cfg.Expander,
		unmarshal:   unmarshal,
	}
	s.state.endingOffset = rangeStart

	if cfg.ContentType == JSONSingle && cfg.Expander == nil {
		s.singleEager = true
	}

	return s
}

func (s *jsonCollectorStage) Next() (Record, bool, error) {
	for len(s.queue) == 0 {
		if s.pendingErr != nil {
			err := s.pendingErr
			s.pendingErr = nil
			return Record{}, false, err
		}
		if s.done {
			return Record{}, false, nil
		}
		if s.singleEager {
			return s.collectSingle()
		}

		rec, ok, err := s.upstream.Next()
		if err != nil {
			return Record{}, false, err
		}
		if !ok {
			s.done = true
			// Trailing buffer: if no JSON object was ever
			// successfully collected, drain via the fallback so
			// `{`-prefixed-but-not-JSON input still produces events.
			if !s.state.isJSONObject {
				s.queue = append(s.queue, s.fallback()...)
			}
			continue
		}

		s.process(rec)
	}

	out := s.queue[0]
	s.queue = s.queue[1:]
	return out, true, nil
}

func (s *jsonCollectorStage) handleOffset(skew int64) {
	s.state.startingOffset = s.state.endingOffset
	s.state.endingOffset += skew
}

func (s *jsonCollectorStage) process(rec Record) {
	if !s.state.hasObjectStart {
		stripped := bytes.TrimLeft(rec.Payload, " \t\r\n\v\f")
		if len(stripped) > 0 && stripped[0] == '{' {
			s.state.hasObjectStart = true
		}

		if !s.state.hasObjectStart {
			s.handleOffset(int64(len(rec.Payload) + len(rec.Newline)))
			s.queue = append(s.queue, Record{
				Payload:        rec.Payload,
				StartingOffset: rec.StartingOffset,
				EndingOffset:   rec.EndingOffset,
				Newline:        rec.Newline,
			})
			return
		}
	}

	for _, c := range s.collect(rec.Payload, rec.Newline) {
		if s.expander != nil && c.parsed != nil {
			expanded, err := s.expander.Expand(c.payload, c.parsed, s.state.startingOffset, s.state.endingOffset)
			if err != nil {
				s.pendingErr = err
				return
			}
			for _, e := range expanded {
				idx := e.Index
				s.queue = append(s.queue, Record{
					Payload:        e.Payload,
					StartingOffset: e.StartingOffset,
					EndingOffset:   e.EndingOffset,
					Newline:        rec.Newline,
					ExpandedIndex:  &idx,
				})
			}
			continue
		}

		s.queue = append(s.queue, Record{
			Payload:        c.payload,
			StartingOffset: s.state.startingOffset,
			EndingOffset:   s.state.endingOffset,
			Newline:        rec.Newline,
		})
	}

	if s.state.circuitBroken {
		s.queue = append(s.queue, s.fallback()...)
	}
}

// collect appends data+newline to the buffered unfinished line and
// tries to parse it as a JSON object.
func (s *jsonCollectorStage) collect(data, newline []byte) []collected {
	st := &s.state
	st.unfinished = append(st.unfinished, data...)
	st.unfinished = append(st.unfinished, newline...)

	var parsed map[string]any
	if err := s.unmarshal(st.unfinished, &parsed); err == nil {
		dataToYield := st.unfinished
		st.unfinished = nil
		s.handleOffset(int64(len(dataToYield)))

		if len(newline) > 0 {
			st.circuitBreaker -= bytes.Count(dataToYield, newline) - 1
		} else {
			st.circuitBreaker--
		}

		trimmed := trimSurroundingNewlines(dataToYield)
		st.isJSONObject = true

		return []collected{{payload: trimmed, parsed: parsed}}
	}

	trimmedBuf := trimSurroundingNewlines(st.unfinished)
	if st.isJSONObject && len(trimmedBuf) == 0 {
		st.unfinished = nil
		s.handleOffset(int64(len(newline)))
		return []collected{{payload: []byte{}, isEmpty: true}}
	}

	st.circuitBreaker++
	if st.circuitBreaker > circuitBreakerLimit {
		st.circuitBroken = true
	}
	return nil
}

// fallback treats the whole current unfinished buffer as a raw body and
// runs it through by_lines starting at the collector's current ending
// offset. It clears the buffer and the object-start flag so subsequent
// chunks resume direct pass-through until the next `{`.
func (s *jsonCollectorStage) fallback() []Record {
	raw := s.state.unfinished
	s.state.unfinished = nil
	s.state.hasObjectStart = false
	s.state.circuitBroken = false
	s.state.circuitBreaker = 0

	if len(raw) == 0 {
		return nil
	}

	src := NewSliceStage(raw)
	bl := NewByLinesStage(src, s.state.endingOffset)

	var out []Record
	for {
		rec, ok, _ := bl.Next()
		if !ok {
			break
		}
		s.state.startingOffset = rec.StartingOffset
		s.state.endingOffset = rec.EndingOffset
		out = append(out, rec)
	}
	return out
}

func (s *jsonCollectorStage) collectSingle() (Record, bool, error) {
	var parts [][]byte
	var first, last Record
	gotAny := false

	for {
		rec, ok, err := s.upstream.Next()
		if err != nil {
			s.done = true
			return Record{}, false, err
		}
		if !ok {
			break
		}
		if !gotAny {
			first = rec
			gotAny = true
		}
		last = rec
		parts = append(parts, rec.Payload)
	}

	s.done = true
	if !gotAny {
		return Record{}, false, nil
	}

	data := bytes.Join(parts, first.Newline)
	return Record{
		Payload:        data,
		StartingOffset: first.StartingOffset,
		EndingOffset:   last.EndingOffset,
		Newline:        first.Newline,
	}, true, nil
}

func trimSurroundingNewlines(b []byte) []byte {
	start := 0
	for start < len(b) && (b[start] == '\r' || b[start] == '\n') {
		start++
	}
	end := len(b)
	for end > start && (b[end-1] == '\r' || b[end-1] == '\n') {
		end--
	}
	return b[start:end]
}
