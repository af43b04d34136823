package stream

// GroupedLine is what a MultilineProcessor hands back for one collapsed
// event: the grouped payload, the newline it ends with, and the length
// of the upstream byte span it consumed (the processor is opaque about
// content but authoritative about byte spans).
type GroupedLine struct {
	Payload      []byte
	EndingLength int64
	Newline      []byte
}

// GroupedStage is the pull-iterator a MultilineProcessor returns.
type GroupedStage interface {
	Next() (GroupedLine, bool, error)
}

// MultilineProcessor is an external collaborator: the algorithm that
// decides which consecutive lines belong to one logical event is
// injected, not implemented here.
type MultilineProcessor interface {
	// Group consumes upstream (payload, newline) pairs and returns a
	// lazy sequence of grouped spans.
	Group(upstream Stage) GroupedStage
}

// multilineStage accumulates a running offset over a MultilineProcessor's
// grouped output.
type multilineStage struct {
	grouped GroupedStage
	ending  int64
}

// NewMultilineStage returns upstream unchanged when processor is nil
// (the storage reader exposes no multiline_processor), otherwise wraps
// it with the injected processor.
func NewMultilineStage(upstream Stage, processor MultilineProcessor, rangeStart int64) Stage {
	if processor == nil {
		return upstream
	}
	return &multilineStage{grouped: processor.Group(upstream), ending: rangeStart}
}

func (s *multilineStage) Next() (Record, bool, error) {
	g, ok, err := s.grouped.Next()
	if err != nil || !ok {
		return Record{}, ok, err
	}

	starting := s.ending
	ending := starting + g.EndingLength
	s.ending = ending

	return Record{Payload: g.Payload, StartingOffset: starting, EndingOffset: ending, Newline: g.Newline}, true, nil
}
