package streamtest_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/capatazlib/go-evstream/stream"
	"github.com/capatazlib/go-evstream/streamtest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeT records assertion failures instead of failing the running test
type fakeT struct {
	msgs      []string
	failedNow bool
}

func (f *fakeT) Errorf(format string, args ...interface{}) {
	f.msgs = append(f.msgs, fmt.Sprintf(format, args...))
}

func (f *fakeT) FailNow() {
	f.failedNow = true
}

func (f *fakeT) failed() bool {
	return len(f.msgs) > 0
}

func newStream(t *testing.T, name string, evs ...string) *stream.Stream[string] {
	st := stream.New[string](stream.WithName(name))
	for _, ev := range evs {
		require.NoError(t, st.Append(ev))
	}
	return st
}

func TestAssertEmitsPasses(t *testing.T) {
	st := newStream(t, "dut")
	defer st.Close()

	go func() {
		for _, ev := range []string{"A", "B", "C"} {
			_ = st.Append(ev)
		}
	}()

	rec, ok := streamtest.AssertEmits(t, st, stream.Eq("C"), streamtest.WithTimeout(5*time.Second))
	assert.True(t, ok)
	assert.Equal(t, "C", rec.Event)
}

func TestAssertEmitsTimeoutDiagnostics(t *testing.T) {
	st := newStream(t, "cert", "A", "B", "C")
	defer st.Close()

	ft := &fakeT{}
	_, ok := streamtest.AssertEmits(
		ft,
		st,
		stream.Eq("Z"),
		streamtest.WithTimeout(10*time.Millisecond),
		streamtest.WithTailSize(2),
	)

	assert.False(t, ok)
	require.Len(t, ft.msgs, 1)
	msg := ft.msgs[0]
	assert.Contains(t, msg, `expected stream "cert" to emit == Z`)
	assert.Contains(t, msg, "timed out after 10ms (3 events scanned)")
	assert.Contains(t, msg, "last 2 event(s)")
	assert.Contains(t, msg, "  1: B")
	assert.Contains(t, msg, "  2: C")
	assert.NotContains(t, msg, "  0: A")
}

func TestAssertEmitsOnClosedStream(t *testing.T) {
	st := newStream(t, "closed", "A")
	st.Close()

	ft := &fakeT{}
	_, ok := streamtest.AssertEmits(ft, st, stream.Eq("Z"), streamtest.WithTimeout(time.Minute))
	assert.False(t, ok)
	require.Len(t, ft.msgs, 1)
	assert.Contains(t, ft.msgs[0], "stream closed before a match")
	assert.Contains(t, ft.msgs[0], "  0: A")
}

func TestAssertEmitsReportsPredicateFailures(t *testing.T) {
	st := newStream(t, "boom", "A")
	defer st.Close()

	ft := &fakeT{}
	_, ok := streamtest.AssertEmits(ft, st, stream.Func("explodes", func(string) bool {
		panic("boom")
	}), streamtest.WithTimeout(time.Second))
	assert.False(t, ok)
	require.Len(t, ft.msgs, 1)
	assert.Contains(t, ft.msgs[0], "predicate failed")
	assert.Contains(t, ft.msgs[0], "boom")
}

func TestRequireEmitsStopsTheTest(t *testing.T) {
	st := newStream(t, "req", "A")
	defer st.Close()

	ft := &fakeT{}
	streamtest.RequireEmits(ft, st, stream.Eq("B"), streamtest.WithTimeout(time.Millisecond))
	assert.True(t, ft.failedNow)

	ft = &fakeT{}
	rec := streamtest.RequireEmits(ft, st, stream.Eq("A"), streamtest.WithTimeout(time.Second))
	assert.False(t, ft.failedNow)
	assert.Equal(t, "A", rec.Event)
}

func TestAssertEmitsInOrder(t *testing.T) {
	st := newStream(t, "ordered", "A", "x", "B", "y", "C")
	defer st.Close()

	t.Run("in order", func(t *testing.T) {
		assert.True(t, streamtest.AssertEmitsInOrder(t, st,
			[]stream.EventP[string]{stream.Eq("A"), stream.Eq("B"), stream.Eq("C")},
			streamtest.WithTimeout(time.Second),
		))
	})

	t.Run("out of order", func(t *testing.T) {
		ft := &fakeT{}
		ok := streamtest.AssertEmitsInOrder(ft, st,
			[]stream.EventP[string]{stream.Eq("B"), stream.Eq("A")},
			streamtest.WithTimeout(20*time.Millisecond),
		)
		assert.False(t, ok)
		require.Len(t, ft.msgs, 1)
		assert.Contains(t, ft.msgs[0], "entry 1 did not match")
		assert.Contains(t, ft.msgs[0], "criteria: == A")
	})
}

func TestAssertClosed(t *testing.T) {
	t.Run("closed by producer", func(t *testing.T) {
		st := newStream(t, "finishing", "A")
		go st.Close()
		assert.True(t, streamtest.AssertClosed(t, st, streamtest.WithTimeout(5*time.Second)))
	})

	t.Run("still open", func(t *testing.T) {
		st := newStream(t, "open")
		defer st.Close()
		ft := &fakeT{}
		assert.False(t, streamtest.AssertClosed(ft, st, streamtest.WithTimeout(5*time.Millisecond)))
		require.Len(t, ft.msgs, 1)
		assert.Contains(t, ft.msgs[0], `expected stream "open" to be closed`)
	})
}

func TestAssertEmitsNone(t *testing.T) {
	st := newStream(t, "quiet", "A", "B")
	defer st.Close()

	assert.True(t, streamtest.AssertEmitsNone(t, st, stream.Eq("Z"), streamtest.WithTimeout(5*time.Millisecond)))

	ft := &fakeT{}
	assert.False(t, streamtest.AssertEmitsNone(ft, st, stream.Eq("B"), streamtest.WithTimeout(time.Second)))
	require.Len(t, ft.msgs, 1)
	assert.Contains(t, ft.msgs[0], "to emit no event matching == B")
}

func TestSubjectContinuesWhereItMatched(t *testing.T) {
	st := newStream(t, "subject", "A", "B", "A")
	defer st.Close()

	ft := &fakeT{}
	subj := streamtest.AssertThat(ft, st).Within(20 * time.Millisecond)
	defer subj.Release()

	assert.True(t, subj.Emits(stream.Eq("A")))
	assert.True(t, subj.Emits(stream.Eq("A")))
	assert.False(t, ft.failed())

	assert.False(t, subj.Emits(stream.Eq("A")))
	require.Len(t, ft.msgs, 1)
	assert.Contains(t, ft.msgs[0], "timed out")
}

func TestAssertThatReleasesOnCleanup(t *testing.T) {
	st := newStream(t, "cleanup", "A")
	defer st.Close()

	t.Run("inner", func(t *testing.T) {
		streamtest.AssertThat(t, st).Within(time.Second).Emits(stream.Eq("A"))
		assert.Equal(t, 1, st.Stats().OpenMatchers)
	})
	assert.Equal(t, 0, st.Stats().OpenMatchers)
}

func TestAssertExactMatch(t *testing.T) {
	evs := []string{"A", "B"}
	assert.True(t, streamtest.AssertExactMatch(t, evs, []stream.EventP[string]{
		stream.Eq("A"), stream.Eq("B"),
	}))

	ft := &fakeT{}
	assert.False(t, streamtest.AssertExactMatch(ft, evs, []stream.EventP[string]{stream.Eq("A")}))
	assert.Contains(t, ft.msgs[0], "length is not the same")

	ft = &fakeT{}
	assert.False(t, streamtest.AssertExactMatch(ft, evs, []stream.EventP[string]{
		stream.Eq("A"), stream.Eq("C"),
	}))
	assert.Contains(t, ft.msgs[0], "entry 1 did not match")
}

func TestAssertPartialMatch(t *testing.T) {
	evs := []string{"A", "x", "B", "y", "C"}
	assert.True(t, streamtest.AssertPartialMatch(t, evs, []stream.EventP[string]{
		stream.Eq("A"), stream.Eq("C"),
	}))

	ft := &fakeT{}
	assert.False(t, streamtest.AssertPartialMatch(ft, evs, []stream.EventP[string]{
		stream.Eq("C"), stream.Eq("A"),
	}))
	require.Len(t, ft.msgs, 1)
	assert.True(t, strings.HasPrefix(ft.msgs[0], "Last match(es) didn't work - pending count: 1"))
}

func TestEvents(t *testing.T) {
	st := newStream(t, "events", "A", "B")
	defer st.Close()
	assert.Equal(t, []string{"A", "B"}, streamtest.Events(st.Snapshot()))
}
