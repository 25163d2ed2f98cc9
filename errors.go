package hashseq

import (
	"errors"
	"fmt"
)

// Codec-level errors, surfaced only from Decode and its helpers. Runtime
// sequence operations never return an error: a duplicate event is a no-op,
// an event with a missing dependency is orphaned, and an out-of-range
// index is clamped.
var (
	// ErrUnexpectedEOF is returned when the input ends before a length
	// or field the format promised was fully read.
	ErrUnexpectedEOF = errors.New("hashseq: unexpected end of input")

	// ErrInvalidVarint is returned when a varint exceeds the 10-byte cap
	// without terminating.
	ErrInvalidVarint = errors.New("hashseq: invalid varint")

	// ErrInvalidUTF8 is returned when a decoded scalar value is not a
	// valid Unicode code point.
	ErrInvalidUTF8 = errors.New("hashseq: invalid utf8 scalar value")

	// ErrEmptyRun is returned when a decoded run record has zero
	// characters; a run store invariant requires every run to carry at
	// least one element.
	ErrEmptyRun = errors.New("hashseq: empty run")

	// errMissingRun is returned when a remove-run chain record
	// references a run id that was never decoded.
	errMissingRun = errors.New("hashseq: remove-run chain references unknown run")
)

// InvalidOpTagError is returned when a per-event record carries a tag byte
// outside {RUN, ROOT, BEFORE, REMOVE, AFTER}.
type InvalidOpTagError struct {
	Tag byte
}

func (e *InvalidOpTagError) Error() string {
	return fmt.Sprintf("hashseq: invalid op tag %d", e.Tag)
}

// Is reports whether target is also an *InvalidOpTagError, so callers can
// test for the kind without caring about the offending byte via
// errors.Is(err, &InvalidOpTagError{}).
func (e *InvalidOpTagError) Is(target error) bool {
	_, ok := target.(*InvalidOpTagError)
	return ok
}

// InvalidIDIndexError is returned when the dictionary codec format
// references an id table index outside [0, len(table)).
type InvalidIDIndexError struct {
	Index int
}

func (e *InvalidIDIndexError) Error() string {
	return fmt.Sprintf("hashseq: invalid id dictionary index %d", e.Index)
}

func (e *InvalidIDIndexError) Is(target error) bool {
	_, ok := target.(*InvalidIDIndexError)
	return ok
}
