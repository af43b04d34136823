// Package storage provides the Reader abstraction that turns a
// cloud-object-storage object into a stream.Stage, along with the
// per-object decoding capability toggles the pipeline threads through
// the rest of the stream stack.
package storage

import (
	"context"

	"logforwarder/pkg/stream"
)

// Capabilities describes the optional per-object decoding behavior a
// Reader's caller must wire into the stream stack: at most
// one of a MultilineProcessor or a JSON content type applies, and an
// EventListFromFieldExpander only makes sense alongside JSONNDJSON or
// JSONSingle.
type Capabilities struct {
	MultilineProcessor         stream.MultilineProcessor
	JSONContentType            stream.JSONContentType
	EventListFromFieldExpander stream.EventListExpander
}

// Reader is the storage-backend abstraction: given a resume
// offset, it returns a Stage that yields line records starting at that
// offset, plus the decoding Capabilities that apply to this object.
type Reader interface {
	GetByLines(ctx context.Context, rangeStart int64) (stream.Stage, error)
	Capabilities() Capabilities
}
