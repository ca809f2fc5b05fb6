package stream

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimedOut may be used with errors.Is to detect a TimedOutError
	ErrTimedOut = &TimedOutError{}
	// ErrStreamClosed may be used with errors.Is to detect a StreamClosedError
	ErrStreamClosed = &StreamClosedError{}
	// ErrPredicate may be used with errors.Is to detect a PredicateError
	ErrPredicate = &PredicateError{}
	// ErrMatcherReleased is returned when waiting on a released Matcher
	ErrMatcherReleased = errors.New("matcher was released")
)

// ErrKVs is an utility interface used to get key-values out of stream errors
type ErrKVs interface {
	KVs() map[string]interface{}
}

// TimedOutError is reported when no event satisfied a predicate before the
// wait deadline
type TimedOutError struct {
	streamName string
	pred       string
	timeout    time.Duration
	scanned    uint64
}

// Error returns an error message
func (err *TimedOutError) Error() string {
	return fmt.Sprintf(
		"timed out after %v waiting for event matching %s on stream %q",
		err.timeout,
		err.pred,
		err.streamName,
	)
}

// Is returns true when the given error is also a TimedOutError
func (err *TimedOutError) Is(target error) bool {
	_, ok := target.(*TimedOutError)
	return ok
}

// Predicate returns the description of the predicate that was not satisfied
func (err *TimedOutError) Predicate() string {
	return err.pred
}

// Timeout returns the duration the matcher waited for
func (err *TimedOutError) Timeout() time.Duration {
	return err.timeout
}

// Scanned returns how many events were tested against the predicate
func (err *TimedOutError) Scanned() uint64 {
	return err.scanned
}

// KVs returns a metadata map for structured logging
func (err *TimedOutError) KVs() map[string]interface{} {
	return map[string]interface{}{
		"stream.name":  err.streamName,
		"wait.pred":    err.pred,
		"wait.timeout": err.timeout.String(),
		"wait.scanned": err.scanned,
	}
}

// StreamClosedError is reported when the stream producer finished before a
// predicate was satisfied, or when events are appended after close
type StreamClosedError struct {
	streamName string
	pred       string
	scanned    uint64
}

// Error returns an error message
func (err *StreamClosedError) Error() string {
	if err.pred == "" {
		return fmt.Sprintf("stream %q is closed", err.streamName)
	}
	return fmt.Sprintf(
		"stream %q closed before an event matching %s was observed",
		err.streamName,
		err.pred,
	)
}

// Is returns true when the given error is also a StreamClosedError
func (err *StreamClosedError) Is(target error) bool {
	_, ok := target.(*StreamClosedError)
	return ok
}

// Predicate returns the description of the predicate that was not satisfied
// (empty when the error comes from an Append call)
func (err *StreamClosedError) Predicate() string {
	return err.pred
}

// KVs returns a metadata map for structured logging
func (err *StreamClosedError) KVs() map[string]interface{} {
	kvs := map[string]interface{}{
		"stream.name": err.streamName,
	}
	if err.pred != "" {
		kvs["wait.pred"] = err.pred
		kvs["wait.scanned"] = err.scanned
	}
	return kvs
}

// PredicateError is reported when the predicate given to a wait call panics.
// This is considered a defect in the calling test and it is never retried.
type PredicateError struct {
	streamName string
	pred       string
	seq        uint64
	event      string
	cause      interface{}
	stack      []byte
}

// Error returns an error message
func (err *PredicateError) Error() string {
	return fmt.Sprintf(
		"predicate %s panicked on event #%d (%s): %v",
		err.pred,
		err.seq,
		err.event,
		err.cause,
	)
}

// Is returns true when the given error is also a PredicateError
func (err *PredicateError) Is(target error) bool {
	_, ok := target.(*PredicateError)
	return ok
}

// Unwrap returns the panic value when it was an error
func (err *PredicateError) Unwrap() error {
	if causeErr, ok := err.cause.(error); ok {
		return causeErr
	}
	return nil
}

// Cause returns the value given to panic
func (err *PredicateError) Cause() interface{} {
	return err.cause
}

// KVs returns a metadata map for structured logging
func (err *PredicateError) KVs() map[string]interface{} {
	return map[string]interface{}{
		"stream.name": err.streamName,
		"wait.pred":   err.pred,
		"event.seq":   err.seq,
		"event":       err.event,
		"stacktrace":  string(err.stack),
	}
}
