package streamtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capatazlib/go-evstream/config"
	"github.com/capatazlib/go-evstream/stream"
)

type tHelper interface {
	Helper()
}

type tCleanup interface {
	Cleanup(func())
}

// settings contains the configuration of a single assertion call
type settings struct {
	ctx      context.Context
	timeout  time.Duration
	tailSize int
}

// Opt allows to tweak a single assertion call
type Opt func(*settings)

// WithTimeout overrides the default timeout for this assertion call
func WithTimeout(d time.Duration) Opt {
	return func(s *settings) {
		s.timeout = d
	}
}

// WithTailSize sets how many of the latest events are rendered when the
// assertion fails
func WithTailSize(n int) Opt {
	return func(s *settings) {
		s.tailSize = n
	}
}

// WithContext sets the context used for the wait calls of this assertion
func WithContext(ctx context.Context) Opt {
	return func(s *settings) {
		s.ctx = ctx
	}
}

func buildSettings(opts []Opt) settings {
	cfg := config.Default()
	s := settings{
		ctx:      context.Background(),
		timeout:  cfg.DefaultTimeout,
		tailSize: cfg.TailSize,
	}
	for _, optFn := range opts {
		optFn(&s)
	}
	return s
}

////////////////////////////////////////////////////////////////////////////////

func renderEvents[A any](recs []stream.Record[A]) string {
	if len(recs) == 0 {
		return "  <no events>\n"
	}
	var builder strings.Builder
	for _, rec := range recs {
		builder.WriteString(fmt.Sprintf("  %3d: %v\n", rec.Seq, rec.Event))
	}
	return builder.String()
}

// describeOutcome explains why a wait call did not match
func describeOutcome(err error) string {
	var timedOut *stream.TimedOutError
	switch {
	case errors.As(err, &timedOut):
		return fmt.Sprintf(
			"timed out after %v (%d events scanned)",
			timedOut.Timeout(),
			timedOut.Scanned(),
		)
	case errors.Is(err, stream.ErrStreamClosed):
		return "stream closed before a match"
	case errors.Is(err, stream.ErrPredicate):
		return fmt.Sprintf("predicate failed: %v", err)
	default:
		return err.Error()
	}
}

func failureMessage[A any](
	st *stream.Stream[A],
	expectation string,
	err error,
	tailSize int,
) string {
	tail := st.Tail(tailSize)
	return fmt.Sprintf(
		"expected stream %q to %s\noutcome: %s\nlast %d event(s):\n%s",
		st.Name(),
		expectation,
		describeOutcome(err),
		len(tail),
		renderEvents(tail),
	)
}

////////////////////////////////////////////////////////////////////////////////

// AssertEmits is an assertion that blocks until the given stream emits an
// event matching the given predicate. It scans the stream from its oldest
// retained event. When no event matches before the timeout (or the stream gets
// closed), the failure message names the predicate and renders the latest
// events observed on the stream.
func AssertEmits[A any](
	t assert.TestingT,
	st *stream.Stream[A],
	pred stream.EventP[A],
	opts ...Opt,
) (stream.Record[A], bool) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	m := st.NewMatcher()
	defer m.Release()
	return AssertMatcherEmits(t, m, st, pred, opts...)
}

// AssertMatcherEmits behaves like AssertEmits, but it continues from the
// cursor of the given matcher, which must belong to the given stream
func AssertMatcherEmits[A any](
	t assert.TestingT,
	m *stream.Matcher[A],
	st *stream.Stream[A],
	pred stream.EventP[A],
	opts ...Opt,
) (stream.Record[A], bool) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	s := buildSettings(opts)
	rec, err := m.WaitFor(s.ctx, pred, s.timeout)
	if err != nil {
		t.Errorf("%s", failureMessage(st, "emit "+pred.String(), err, s.tailSize))
		return rec, false
	}
	return rec, true
}

// RequireEmits is like AssertEmits, but it stops the test on failure
func RequireEmits[A any](
	t require.TestingT,
	st *stream.Stream[A],
	pred stream.EventP[A],
	opts ...Opt,
) stream.Record[A] {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	rec, ok := AssertEmits(t, st, pred, opts...)
	if !ok {
		t.FailNow()
	}
	return rec
}

// AssertEmitsInOrder is an assertion that verifies the stream emits events
// matching the given predicates, in the given order. Events in between matches
// are ignored. The timeout applies to the whole sequence.
func AssertEmitsInOrder[A any](
	t assert.TestingT,
	st *stream.Stream[A],
	preds []stream.EventP[A],
	opts ...Opt,
) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	m := st.NewMatcher()
	defer m.Release()
	return emitsInOrder(t, m, st, preds, buildSettings(opts))
}

func emitsInOrder[A any](
	t assert.TestingT,
	m *stream.Matcher[A],
	st *stream.Stream[A],
	preds []stream.EventP[A],
	s settings,
) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	deadline := time.Now().Add(s.timeout)
	for i, pred := range preds {
		// never pass a non positive timeout, it would fall back to the
		// stream default
		remaining := time.Until(deadline)
		if remaining <= 0 {
			remaining = time.Nanosecond
		}
		if _, err := m.WaitFor(s.ctx, pred, remaining); err != nil {
			expectation := fmt.Sprintf(
				"emit %d events in order, entry %d did not match:\ncriteria: %s",
				len(preds),
				i,
				pred.String(),
			)
			t.Errorf("%s", failureMessage(st, expectation, err, s.tailSize))
			return false
		}
	}
	return true
}

// never is a predicate that no event satisfies, it is used to wait until a
// stream gets closed
func never[A any]() stream.EventP[A] {
	return stream.Func("<stream closed>", func(A) bool { return false })
}

// AssertClosed is an assertion that verifies the stream producer finishes
// before the timeout
func AssertClosed[A any](t assert.TestingT, st *stream.Stream[A], opts ...Opt) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	s := buildSettings(opts)
	m := st.NewMatcher(stream.FromTail())
	defer m.Release()

	_, err := m.WaitFor(s.ctx, never[A](), s.timeout)
	if errors.Is(err, stream.ErrStreamClosed) {
		return true
	}
	t.Errorf("%s", failureMessage(st, "be closed", err, s.tailSize))
	return false
}

// AssertEmitsNone is an assertion that verifies no event matching the given
// predicate shows up during the timeout. A stream closing without emitting
// such event also passes.
func AssertEmitsNone[A any](
	t assert.TestingT,
	st *stream.Stream[A],
	pred stream.EventP[A],
	opts ...Opt,
) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	s := buildSettings(opts)
	m := st.NewMatcher()
	defer m.Release()

	rec, err := m.WaitFor(s.ctx, pred, s.timeout)
	if err == nil {
		t.Errorf(
			"expected stream %q to emit no event matching %s, but got:\n  %3d: %v\n",
			st.Name(),
			pred.String(),
			rec.Seq,
			rec.Event,
		)
		return false
	}
	if errors.Is(err, stream.ErrTimedOut) || errors.Is(err, stream.ErrStreamClosed) {
		return true
	}
	t.Errorf("%s", failureMessage(st, "emit no "+pred.String(), err, s.tailSize))
	return false
}

////////////////////////////////////////////////////////////////////////////////

// Subject keeps a matcher open on a stream so that successive assertions
// continue where the previous one matched, in the style of
// AssertThat(t, st).Emits(...)
type Subject[A any] struct {
	t     assert.TestingT
	st    *stream.Stream[A]
	m     *stream.Matcher[A]
	extra []Opt
}

// AssertThat returns a Subject over the given stream. The underlying matcher
// is released when the test finishes (or when Release is called).
func AssertThat[A any](t assert.TestingT, st *stream.Stream[A]) *Subject[A] {
	subj := &Subject[A]{t: t, st: st, m: st.NewMatcher()}
	if c, ok := t.(tCleanup); ok {
		c.Cleanup(subj.Release)
	}
	return subj
}

// Within returns a Subject that uses the given timeout on its assertions
func (subj *Subject[A]) Within(d time.Duration) *Subject[A] {
	subj.extra = append(subj.extra, WithTimeout(d))
	return subj
}

// Emits asserts the given predicates match events of the stream in order
func (subj *Subject[A]) Emits(preds ...stream.EventP[A]) bool {
	if h, ok := subj.t.(tHelper); ok {
		h.Helper()
	}
	return emitsInOrder(subj.t, subj.m, subj.st, preds, buildSettings(subj.extra))
}

// Release stops the subject matcher from pinning events of the stream
func (subj *Subject[A]) Release() {
	subj.m.Release()
}

////////////////////////////////////////////////////////////////////////////////

// verifyExactMatch is an utility function that checks the input slice of EventP
// predicate match 1 to 1 with a given list of events.
func verifyExactMatch[A any](preds []stream.EventP[A], given []A) error {
	if len(preds) != len(given) {
		return fmt.Errorf(
			"expecting exact match, but length is not the same:\nwant: %d\ngiven: %d\nevents:\n%s",
			len(preds),
			len(given),
			renderValues(given),
		)
	}
	for i, pred := range preds {
		if !pred.Call(given[i]) {
			return fmt.Errorf(
				"expecting exact match, but entry %d did not match:\ncriteria: %s\nevent: %v\nevents:\n%s",
				i,
				pred.String(),
				given[i],
				renderValues(given),
			)
		}
	}
	return nil
}

// AssertExactMatch is an assertion that checks the input slice of EventP
// predicate match 1 to 1 with a given list of events.
func AssertExactMatch[A any](t assert.TestingT, evs []A, preds []stream.EventP[A]) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if err := verifyExactMatch(preds, evs); err != nil {
		t.Errorf("%s", err)
		return false
	}
	return true
}

// verifyPartialMatch is a utility function that matches (in order) a list of
// EventP predicates to a list of events. There does not need to be a one to one
// match between the input events and the predicates; we may have more input
// events and it is ok to skip some events in between matches.
//
// This function returns all predicates that didn't match (in order) the given
// input events. If the returned slice is empty, it means there was a succesful
// match.
func verifyPartialMatch[A any](preds []stream.EventP[A], given []A) []stream.EventP[A] {
	for len(preds) > 0 {
		// if we went through all the given events, we did not partially match
		if len(given) == 0 {
			return preds
		}
		if preds[0].Call(given[0]) {
			preds = preds[1:]
		}
		given = given[1:]
	}
	return preds
}

// AssertPartialMatch is an assertion that matches in order a list of EventP
// predicates to a list of events, skipping events in between matches.
func AssertPartialMatch[A any](t assert.TestingT, evs []A, preds []stream.EventP[A]) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	pendingPreds := verifyPartialMatch(preds, evs)
	if len(pendingPreds) == 0 {
		return true
	}

	pendingPredStrs := make([]string, 0, len(pendingPreds))
	for _, pred := range pendingPreds {
		pendingPredStrs = append(pendingPredStrs, pred.String())
	}
	t.Errorf(
		"Last match(es) didn't work - pending count: %d:\n%s\nInput events:\n%s",
		len(pendingPreds),
		strings.Join(pendingPredStrs, "\n"),
		renderValues(evs),
	)
	return false
}

// Events returns the events wrapped by the given records
func Events[A any](recs []stream.Record[A]) []A {
	acc := make([]A, 0, len(recs))
	for _, rec := range recs {
		acc = append(acc, rec.Event)
	}
	return acc
}

func renderValues[A any](evs []A) string {
	var builder strings.Builder
	for i, ev := range evs {
		builder.WriteString(fmt.Sprintf("  %3d: %+v\n", i, ev))
	}
	return builder.String()
}
