package stream

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

////////////////////////////////////////////////////////////////////////////////

// Record is an event wrapped with its arrival order and timestamp. Records are
// immutable once appended to a Stream.
type Record[A any] struct {
	Seq   uint64
	At    time.Time
	Event A
}

// String returns an string representation for the Record
func (r Record[A]) String() string {
	return fmt.Sprintf("#%d %s %v", r.Seq, r.At.Format("15:04:05.000000"), r.Event)
}

// Stats is a point in time summary of a Stream
type Stats struct {
	ID           string
	Name         string
	Appended     uint64
	Retained     int
	Dropped      uint64
	OpenMatchers int
	Closed       bool
}

// Stream is an ordered, append-only sequence of events with a single producer
// and any number of consumers (see Matcher).
//
// Every mutation (append, cursor advance, close) happens while holding the
// stream lock; waiting consumers are suspended on a sync.Cond and woken up on
// every append, on close and when their deadline expires.
type Stream[A any] struct {
	id       string
	settings settings

	mux  sync.Mutex
	cond *sync.Cond

	// records[0].Seq is the sequence number of the oldest retained record
	records []Record[A]
	nextSeq uint64
	dropped uint64

	// open matchers pin the records at or after their cursor
	matchers map[*Matcher[A]]struct{}
	// highWater is the furthest cursor any matcher ever reached
	highWater uint64
	watched   bool

	closed bool
	doneCh chan struct{}
}

// New returns an open Stream configured with the given options
func New[A any](opts ...Opt) *Stream[A] {
	s := defaultSettings()
	for _, optFn := range opts {
		optFn(&s)
	}
	st := &Stream[A]{
		id:       uuid.New().String(),
		settings: s,
		records:  make([]Record[A], 0, s.historySize+1),
		matchers: make(map[*Matcher[A]]struct{}),
		doneCh:   make(chan struct{}),
	}
	st.cond = sync.NewCond(&st.mux)
	return st
}

// ID returns the unique identifier of this Stream
func (st *Stream[A]) ID() string {
	return st.id
}

// Name returns the human-readable name of this Stream
func (st *Stream[A]) Name() string {
	return st.settings.name
}

// DefaultTimeout returns the timeout used on wait calls that don't provide one
func (st *Stream[A]) DefaultTimeout() time.Duration {
	return st.settings.defaultTimeout
}

func (st *Stream[A]) logger() logrus.FieldLogger {
	return st.settings.ll.WithFields(logrus.Fields{
		"stream.name": st.settings.name,
		"stream.id":   st.id,
	})
}

// Append adds an event at the end of the stream and wakes up every waiting
// matcher. It returns a StreamClosedError when the stream is already closed,
// in which case the event is discarded.
func (st *Stream[A]) Append(ev A) error {
	st.mux.Lock()
	defer st.mux.Unlock()

	if st.closed {
		return &StreamClosedError{streamName: st.settings.name}
	}

	st.records = append(st.records, Record[A]{
		Seq:   st.nextSeq,
		At:    time.Now(),
		Event: ev,
	})
	st.nextSeq++
	st.trimLocked()
	st.settings.metrics.eventAppended(st.settings.name, len(st.records))
	st.cond.Broadcast()
	return nil
}

// Notifier returns an EventNotifier that appends to this stream. Events
// notified after the stream got closed are logged and dropped.
func (st *Stream[A]) Notifier() EventNotifier[A] {
	return func(ev A) {
		if err := st.Append(ev); err != nil {
			st.logger().WithError(err).Warn("event notified after stream was closed")
		}
	}
}

// Close marks the stream as terminated. Every in-flight wait call resolves
// with a StreamClosedError, and so does any future one. Calling Close more than
// once has no further effect.
func (st *Stream[A]) Close() {
	st.mux.Lock()
	defer st.mux.Unlock()

	if st.closed {
		return
	}
	st.closed = true
	close(st.doneCh)
	st.cond.Broadcast()

	st.logger().WithFields(logrus.Fields{
		"stream.appended": st.nextSeq,
		"stream.dropped":  st.dropped,
	}).Debug("stream closed")
}

// Done returns a channel that gets closed when the stream is closed
func (st *Stream[A]) Done() <-chan struct{} {
	return st.doneCh
}

// Closed returns true if Close was called on this stream
func (st *Stream[A]) Closed() bool {
	st.mux.Lock()
	defer st.mux.Unlock()
	return st.closed
}

// Snapshot returns all the records this stream is currently retaining
func (st *Stream[A]) Snapshot() []Record[A] {
	st.mux.Lock()
	defer st.mux.Unlock()
	return append(st.records[:0:0], st.records...)
}

// Tail returns (at most) the last n records this stream is retaining
func (st *Stream[A]) Tail(n int) []Record[A] {
	st.mux.Lock()
	defer st.mux.Unlock()
	if n <= 0 {
		return []Record[A]{}
	}
	from := len(st.records) - n
	if from < 0 {
		from = 0
	}
	return append(st.records[:0:0], st.records[from:]...)
}

// TailStrings returns the string representation of the last n retained
// records
func (st *Stream[A]) TailStrings(n int) []string {
	recs := st.Tail(n)
	acc := make([]string, 0, len(recs))
	for _, rec := range recs {
		acc = append(acc, rec.String())
	}
	return acc
}

// Stats returns a summary of the current state of this stream
func (st *Stream[A]) Stats() Stats {
	st.mux.Lock()
	defer st.mux.Unlock()
	return Stats{
		ID:           st.id,
		Name:         st.settings.name,
		Appended:     st.nextSeq,
		Retained:     len(st.records),
		Dropped:      st.dropped,
		OpenMatchers: len(st.matchers),
		Closed:       st.closed,
	}
}

////////////////////////////////////////////////////////////////////////////////

// baseSeqLocked returns the sequence number of the oldest retained record
func (st *Stream[A]) baseSeqLocked() uint64 {
	return st.nextSeq - uint64(len(st.records))
}

// recordAtLocked returns the record with the given sequence number, the caller
// must make sure the record is still retained
func (st *Stream[A]) recordAtLocked(seq uint64) Record[A] {
	return st.records[seq-st.baseSeqLocked()]
}

// trimLocked discards the records that every open matcher has moved past,
// keeping the last historySize of them for diagnostics.
func (st *Stream[A]) trimLocked() {
	if !st.watched {
		// no matcher has ever been offered an event
		return
	}

	floor := st.highWater
	for m := range st.matchers {
		if m.cursor < floor {
			floor = m.cursor
		}
	}

	var keepFrom uint64
	if st.nextSeq > uint64(st.settings.historySize) {
		keepFrom = st.nextSeq - uint64(st.settings.historySize)
	}
	if keepFrom < floor {
		floor = keepFrom
	}

	base := st.baseSeqLocked()
	if floor <= base {
		return
	}

	n := int(floor - base)
	// the backing array is released on the next append that outgrows it
	st.records = st.records[n:]
	st.dropped += uint64(n)
	st.settings.metrics.eventsTrimmed(st.settings.name, len(st.records))
}
