// Package decodeerrors gives the error taxonomy of the decoding pipeline
// concrete Go types so callers can distinguish fatal configuration and
// trigger errors from per-object decode errors with errors.As instead of
// string matching.
package decodeerrors

import "fmt"

// ConfigurationError is fatal at construction time: missing or
// contradictory shipper/storage configuration.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// TriggerError is fatal per invocation: an unsupported or malformed
// queue event.
type TriggerError struct {
	Reason string
}

func (e *TriggerError) Error() string {
	return fmt.Sprintf("trigger error: %s", e.Reason)
}

// DecodeError is fatal per object: the remainder of the object is
// abandoned but the invocation continues with the next object.
type DecodeError struct {
	Bucket string
	Key    string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error for s3://%s/%s: %v", e.Bucket, e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DuplicateIDError guards the invariant that two bulk actions in the
// same batch never share a derived _id. The original implementation
// asserts this; here it is a proper error.
type DuplicateIDError struct {
	ID    string
	Count int
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("expected exactly one action with _id %q, found %d", e.ID, e.Count)
}
