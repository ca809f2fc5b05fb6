package stream

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
)

// WaitState represents the lifecycle of a single wait call on a Matcher
type WaitState uint32

const (
	// ignore zero value of iota
	_ WaitState = iota
	// Created is the state of a wait call that has not scanned any event yet
	Created
	// Scanning is the state of a wait call testing events or blocked waiting
	// for new ones
	Scanning
	// Matched is the state of a wait call that found a satisfying event
	Matched
	// TimedOut is the state of a wait call whose deadline expired
	TimedOut
	// Closed is the state of a wait call on a stream that got closed
	Closed
	// Cancelled is the state of a wait call whose context got cancelled
	Cancelled
	// Failed is the state of a wait call whose predicate panicked
	Failed
)

// String returns a string representation of the current WaitState
func (ws WaitState) String() string {
	switch ws {
	case Created:
		return "created"
	case Scanning:
		return "scanning"
	case Matched:
		return "matched"
	case TimedOut:
		return "timed_out"
	case Closed:
		return "closed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "<unknown>"
	}
}

// Terminal returns true for states no wait call ever leaves
func (ws WaitState) Terminal() bool {
	return ws >= Matched
}

////////////////////////////////////////////////////////////////////////////////

// Matcher represents a single consumer of a Stream. It owns a cursor that
// points to the first event it has not consumed yet. Many matchers may consume
// the same Stream concurrently; each one observes the full event order.
//
// A single Matcher must not be used from multiple goroutines at the same time.
type Matcher[A any] struct {
	st       *Stream[A]
	cursor   uint64
	released bool
}

// NewMatcher returns a Matcher whose cursor points to the oldest event
// retained by the stream (or the next event to come when FromTail is used).
// Matchers pin retained events until they are released.
func (st *Stream[A]) NewMatcher(opts ...MatcherOpt) *Matcher[A] {
	var s matcherSettings
	for _, optFn := range opts {
		optFn(&s)
	}

	st.mux.Lock()
	defer st.mux.Unlock()

	m := &Matcher[A]{st: st, cursor: st.baseSeqLocked()}
	if s.fromTail {
		m.cursor = st.nextSeq
	}
	st.matchers[m] = struct{}{}
	st.watched = true
	return m
}

// Release stops this Matcher from pinning events on the stream. Wait calls
// on a released matcher fail with ErrMatcherReleased. Calling Release more
// than once has no further effect.
func (m *Matcher[A]) Release() {
	st := m.st
	st.mux.Lock()
	defer st.mux.Unlock()
	if m.released {
		return
	}
	m.released = true
	delete(st.matchers, m)
	st.trimLocked()
}

// Cursor returns the sequence number of the next event this matcher will scan
func (m *Matcher[A]) Cursor() uint64 {
	m.st.mux.Lock()
	defer m.st.mux.Unlock()
	return m.cursor
}

// WaitFor blocks until an event at or after the cursor satisfies the given
// predicate, the timeout elapses, the context is done or the stream is
// closed. When many events satisfy the predicate, the earliest one wins.
//
// On a match the cursor moves past the matched event; on any other outcome the
// cursor stays where it was. A timeout of zero (or less) uses the default
// timeout of the stream.
func (m *Matcher[A]) WaitFor(
	ctx context.Context,
	pred EventP[A],
	timeout time.Duration,
) (Record[A], error) {
	rec, _, err := m.wait(ctx, pred, timeout, false)
	return rec, err
}

// Next blocks until the next event after the cursor is available
func (m *Matcher[A]) Next(ctx context.Context, timeout time.Duration) (Record[A], error) {
	return m.WaitFor(ctx, Any[A](), timeout)
}

// TakeTill behaves like WaitFor, but it also returns all the events that got
// skipped between the cursor and the matched event. Skipped events are only
// returned on a successful match.
func (m *Matcher[A]) TakeTill(
	ctx context.Context,
	pred EventP[A],
	timeout time.Duration,
) ([]Record[A], Record[A], error) {
	rec, skipped, err := m.wait(ctx, pred, timeout, true)
	return skipped, rec, err
}

func (m *Matcher[A]) wait(
	ctx context.Context,
	pred EventP[A],
	timeout time.Duration,
	collect bool,
) (Record[A], []Record[A], error) {
	st := m.st
	if timeout <= 0 {
		timeout = st.settings.defaultTimeout
	}
	predDesc := safePredString(pred)

	startTime := time.Now()
	waitCtx, cancelWait := context.WithTimeout(ctx, timeout)
	defer cancelWait()

	// the cond variable has no notion of deadlines, so we wake every waiter up
	// when ours expires and let each of them re-check its own context
	stopWakeup := context.AfterFunc(waitCtx, st.wakeAll)
	defer stopWakeup()

	var skipped []Record[A]
	if collect {
		skipped = make([]Record[A], 0, 10)
	}

	st.mux.Lock()
	rec, state, scanned, err := foldl(
		m,
		ctx,
		waitCtx,
		func(rec Record[A]) (bool, error) {
			matched, err := callPred(st, pred, rec)
			if err != nil {
				return false, err
			}
			if !matched && collect {
				skipped = append(skipped, rec)
			}
			return matched, nil
		},
	)
	st.mux.Unlock()

	elapsed := time.Since(startTime)
	st.settings.metrics.waitFinished(st.settings.name, state, elapsed.Seconds())

	switch state {
	case TimedOut:
		err = &TimedOutError{
			streamName: st.settings.name,
			pred:       predDesc,
			timeout:    timeout,
			scanned:    scanned,
		}
	case Closed:
		err = &StreamClosedError{
			streamName: st.settings.name,
			pred:       predDesc,
			scanned:    scanned,
		}
	case Cancelled:
		err = fmt.Errorf("wait for %s cancelled: %w", predDesc, err)
	}

	ll := st.logger().WithFields(logrus.Fields{
		"wait.pred":    predDesc,
		"wait.outcome": state.String(),
		"wait.elapsed": elapsed.String(),
		"wait.scanned": scanned,
	})
	switch state {
	case Matched:
		ll.WithField("event.seq", rec.Seq).Debug("wait matched")
		return rec, skipped, nil
	case Failed:
		ll.WithError(err).Error("wait predicate panicked")
	default:
		ll.WithError(err).Debug("wait did not match")
	}
	return Record[A]{}, nil, err
}

// wakeAll wakes every goroutine blocked on a wait call of this stream
func (st *Stream[A]) wakeAll() {
	st.mux.Lock()
	st.cond.Broadcast()
	st.mux.Unlock()
}

// foldl goes through the events of the stream starting at the matcher cursor,
// and blocks when waiting for new events to happen. It stops when the step
// function returns true (the cursor moves past that event), when it returns an
// error, or when the wait gets interrupted.
//
// The caller must hold the stream lock.
func foldl[A any](
	m *Matcher[A],
	parentCtx context.Context,
	waitCtx context.Context,
	stepFn func(Record[A]) (bool, error),
) (Record[A], WaitState, uint64, error) {
	st := m.st
	var scanned uint64

	if m.released {
		return Record[A]{}, Failed, scanned, ErrMatcherReleased
	}
	if st.closed {
		return Record[A]{}, Closed, scanned, nil
	}

	evIx := m.cursor
	for {
		// the matcher may have fallen behind if it was released and re-used
		// concurrently, never read before the oldest retained record
		if base := st.baseSeqLocked(); evIx < base {
			evIx = base
		}

		for evIx < st.nextSeq {
			rec := st.recordAtLocked(evIx)
			evIx++
			scanned++

			stop, err := stepFn(rec)
			if err != nil {
				return Record[A]{}, Failed, scanned, err
			}
			if stop {
				m.cursor = evIx
				if m.cursor > st.highWater {
					st.highWater = m.cursor
				}
				st.trimLocked()
				return rec, Matched, scanned, nil
			}
		}

		// All the events that arrived so far have been tested, at this point
		// we either stop or wait for the producer to append new events. Close
		// takes precedence over deadlines.
		if st.closed {
			return Record[A]{}, Closed, scanned, nil
		}
		if err := parentCtx.Err(); err != nil {
			return Record[A]{}, Cancelled, scanned, err
		}
		if waitCtx.Err() != nil {
			return Record[A]{}, TimedOut, scanned, nil
		}

		st.cond.Wait()
	}
}

// callPred executes the predicate, transforming panics into PredicateError
// values
func callPred[A any](st *Stream[A], pred EventP[A], rec Record[A]) (matched bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PredicateError{
				streamName: st.settings.name,
				pred:       safePredString(pred),
				seq:        rec.Seq,
				event:      fmt.Sprintf("%v", rec.Event),
				cause:      p,
				stack:      debug.Stack(),
			}
		}
	}()
	return pred.Call(rec.Event), nil
}

// safePredString renders the predicate description, a predicate that panics on
// Call may panic on String as well
func safePredString[A any](pred EventP[A]) (desc string) {
	defer func() {
		if p := recover(); p != nil {
			desc = fmt.Sprintf("%T", pred)
		}
	}()
	return pred.String()
}
