package stream_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capatazlib/go-evstream/stream"
)

type waitResult struct {
	rec stream.Record[string]
	err error
}

func appendAll(t *testing.T, st *stream.Stream[string], evs ...string) {
	t.Helper()
	for _, ev := range evs {
		require.NoError(t, st.Append(ev))
	}
}

func TestWaitForReturnsEarliestMatch(t *testing.T) {
	st := stream.New[string](stream.WithName("earliest"))
	defer st.Close()

	appendAll(t, st, "A", "B1", "C", "B2")

	m := st.NewMatcher()
	defer m.Release()

	isB := stream.Func("starts with B", func(ev string) bool {
		return len(ev) > 0 && ev[0] == 'B'
	})

	rec, err := m.WaitFor(context.Background(), isB, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "B1", rec.Event)
	assert.Equal(t, uint64(1), rec.Seq)
	assert.Equal(t, uint64(2), m.Cursor())

	// the cursor moved past B1, the next match must be B2
	rec, err = m.WaitFor(context.Background(), isB, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "B2", rec.Event)
}

func TestWaitForIssuedBeforeEventsArrive(t *testing.T) {
	st := stream.New[string]()
	defer st.Close()

	m := st.NewMatcher()
	defer m.Release()

	resultCh := make(chan waitResult)
	go func() {
		rec, err := m.WaitFor(context.Background(), stream.Eq("C"), 5*time.Second)
		resultCh <- waitResult{rec: rec, err: err}
	}()

	appendAll(t, st, "A", "B", "C")

	res := <-resultCh
	require.NoError(t, res.err)
	assert.Equal(t, "C", res.rec.Event)
	assert.Equal(t, uint64(2), res.rec.Seq)
}

func TestWaitForTimesOutNeverEarly(t *testing.T) {
	st := stream.New[string](stream.WithName("slow"))
	defer st.Close()

	appendAll(t, st, "A", "B")

	m := st.NewMatcher()
	defer m.Release()

	timeout := 50 * time.Millisecond
	start := time.Now()
	_, err := m.WaitFor(context.Background(), stream.Eq("Z"), timeout)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, stream.ErrTimedOut))
	assert.GreaterOrEqual(t, elapsed, timeout)

	var timedOut *stream.TimedOutError
	require.True(t, errors.As(err, &timedOut))
	assert.Equal(t, "== Z", timedOut.Predicate())
	assert.Equal(t, timeout, timedOut.Timeout())
	assert.Equal(t, uint64(2), timedOut.Scanned())
	assert.Contains(t, err.Error(), `stream "slow"`)
}

func TestTimeoutDoesNotMoveCursor(t *testing.T) {
	st := stream.New[string]()
	defer st.Close()

	appendAll(t, st, "A", "B")

	m := st.NewMatcher()
	defer m.Release()

	_, err := m.WaitFor(context.Background(), stream.Eq("Z"), 10*time.Millisecond)
	require.True(t, errors.Is(err, stream.ErrTimedOut))
	assert.Equal(t, uint64(0), m.Cursor())

	rec, err := m.WaitFor(context.Background(), stream.Eq("A"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "A", rec.Event)
}

func TestWaitUsesDefaultTimeout(t *testing.T) {
	st := stream.New[string](stream.WithDefaultTimeout(20 * time.Millisecond))
	defer st.Close()

	m := st.NewMatcher()
	defer m.Release()

	_, err := m.WaitFor(context.Background(), stream.Eq("Z"), 0)
	var timedOut *stream.TimedOutError
	require.True(t, errors.As(err, &timedOut))
	assert.Equal(t, 20*time.Millisecond, timedOut.Timeout())
	assert.Equal(t, 20*time.Millisecond, st.DefaultTimeout())
}

func TestCloseResolvesInFlightWait(t *testing.T) {
	st := stream.New[string]()

	m := st.NewMatcher()
	defer m.Release()

	resultCh := make(chan waitResult)
	go func() {
		rec, err := m.WaitFor(context.Background(), stream.Eq("Z"), time.Minute)
		resultCh <- waitResult{rec: rec, err: err}
	}()

	appendAll(t, st, "A")
	st.Close()

	select {
	case res := <-resultCh:
		require.Error(t, res.err)
		assert.True(t, errors.Is(res.err, stream.ErrStreamClosed))
		assert.False(t, errors.Is(res.err, stream.ErrTimedOut))
	case <-time.After(5 * time.Second):
		t.Fatal("wait call did not resolve after close")
	}
}

func TestWaitOnClosedStreamReturnsImmediately(t *testing.T) {
	st := stream.New[string]()
	appendAll(t, st, "A")
	st.Close()

	m := st.NewMatcher()
	defer m.Release()

	start := time.Now()
	_, err := m.WaitFor(context.Background(), stream.Eq("A"), time.Minute)
	assert.True(t, errors.Is(err, stream.ErrStreamClosed))
	assert.Less(t, time.Since(start), time.Second)
}

func TestCloseIsIdempotent(t *testing.T) {
	st := stream.New[string]()
	appendAll(t, st, "A")

	st.Close()
	first := st.Stats()
	st.Close()
	second := st.Stats()

	assert.Equal(t, first, second)
	assert.True(t, st.Closed())

	select {
	case <-st.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}

func TestAppendAfterClose(t *testing.T) {
	st := stream.New[string](stream.WithName("late"))
	st.Close()

	err := st.Append("A")
	require.Error(t, err)
	assert.True(t, errors.Is(err, stream.ErrStreamClosed))
	assert.Equal(t, `stream "late" is closed`, err.Error())
	assert.Equal(t, uint64(0), st.Stats().Appended)

	// notifiers swallow the error
	st.Notifier()("B")
	assert.Equal(t, uint64(0), st.Stats().Appended)
}

func TestMatchersHaveIndependentCursors(t *testing.T) {
	st := stream.New[string]()
	defer st.Close()

	appendAll(t, st, "A", "B")

	m1 := st.NewMatcher()
	defer m1.Release()
	m2 := st.NewMatcher()
	defer m2.Release()

	rec, err := m1.WaitFor(context.Background(), stream.Eq("A"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "A", rec.Event)

	rec, err = m2.WaitFor(context.Background(), stream.Eq("A"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "A", rec.Event)
	assert.Equal(t, uint64(0), rec.Seq)
}

func TestConcurrentMatchersObserveFullOrder(t *testing.T) {
	const total = 200

	st := stream.New[string]()
	defer st.Close()

	expected := make([]string, 0, total)
	for i := 0; i < total; i++ {
		expected = append(expected, fmt.Sprintf("ev-%d", i))
	}

	collect := func(m *stream.Matcher[string]) []string {
		defer m.Release()
		acc := make([]string, 0, total)
		for len(acc) < total {
			rec, err := m.Next(context.Background(), 5*time.Second)
			if err != nil {
				return acc
			}
			acc = append(acc, rec.Event)
		}
		return acc
	}

	matchers := []*stream.Matcher[string]{st.NewMatcher(), st.NewMatcher()}
	results := make([][]string, len(matchers))

	var wg sync.WaitGroup
	for i, m := range matchers {
		wg.Add(1)
		go func(i int, m *stream.Matcher[string]) {
			defer wg.Done()
			results[i] = collect(m)
		}(i, m)
	}

	for _, ev := range expected {
		require.NoError(t, st.Append(ev))
	}
	wg.Wait()

	for i := range results {
		assert.Empty(t, cmp.Diff(expected, results[i]), "matcher %d", i)
	}
}

func TestTakeTillReturnsSkippedEvents(t *testing.T) {
	st := stream.New[string]()
	defer st.Close()

	appendAll(t, st, "A", "B", "C", "D")

	m := st.NewMatcher()
	defer m.Release()

	skipped, rec, err := m.TakeTill(context.Background(), stream.Eq("C"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "C", rec.Event)

	diff := cmp.Diff(
		[]stream.Record[string]{{Seq: 0, Event: "A"}, {Seq: 1, Event: "B"}},
		skipped,
		cmpopts.IgnoreFields(stream.Record[string]{}, "At"),
	)
	assert.Empty(t, diff)

	rec, err = m.Next(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "D", rec.Event)
}

func TestFromTailIgnoresPreviousEvents(t *testing.T) {
	st := stream.New[string]()
	defer st.Close()

	appendAll(t, st, "A")
	m := st.NewMatcher(stream.FromTail())
	defer m.Release()

	_, err := m.WaitFor(context.Background(), stream.Eq("A"), 10*time.Millisecond)
	assert.True(t, errors.Is(err, stream.ErrTimedOut))

	appendAll(t, st, "A")
	rec, err := m.WaitFor(context.Background(), stream.Eq("A"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.Seq)
}

func TestPredicatePanicIsReported(t *testing.T) {
	st := stream.New[string]()
	defer st.Close()

	appendAll(t, st, "A", "B")

	m := st.NewMatcher()
	defer m.Release()

	boom := errors.New("boom")
	pred := stream.Func("explodes on B", func(ev string) bool {
		if ev == "B" {
			panic(boom)
		}
		return false
	})

	_, err := m.WaitFor(context.Background(), pred, time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, stream.ErrPredicate))
	assert.True(t, errors.Is(err, boom))

	var predErr *stream.PredicateError
	require.True(t, errors.As(err, &predErr))
	assert.Equal(t, boom, predErr.Cause())
	kvs := predErr.KVs()
	assert.Equal(t, "explodes on B", kvs["wait.pred"])
	assert.Equal(t, uint64(1), kvs["event.seq"])
	assert.Contains(t, kvs["stacktrace"], "\n")

	// predicate failures don't consume events
	assert.Equal(t, uint64(0), m.Cursor())
}

func TestCancelledContext(t *testing.T) {
	st := stream.New[string]()
	defer st.Close()

	m := st.NewMatcher()
	defer m.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := m.WaitFor(ctx, stream.Eq("Z"), time.Minute)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, stream.ErrTimedOut))
}

func TestReleasedMatcher(t *testing.T) {
	st := stream.New[string]()
	defer st.Close()

	m := st.NewMatcher()
	m.Release()
	m.Release()

	_, err := m.WaitFor(context.Background(), stream.Eq("A"), time.Second)
	assert.True(t, errors.Is(err, stream.ErrMatcherReleased))
	assert.Equal(t, 0, st.Stats().OpenMatchers)
}

func TestRetentionKeepsHistory(t *testing.T) {
	st := stream.New[string](stream.WithHistorySize(2))
	defer st.Close()

	m := st.NewMatcher()
	for i := 0; i < 10; i++ {
		require.NoError(t, st.Append(fmt.Sprintf("e%d", i)))
	}

	// nothing is dropped while the matcher has not scanned the events
	assert.Equal(t, 10, st.Stats().Retained)

	_, err := m.WaitFor(context.Background(), stream.Eq("e9"), time.Second)
	require.NoError(t, err)

	stats := st.Stats()
	assert.Equal(t, 2, stats.Retained)
	assert.Equal(t, uint64(8), stats.Dropped)
	assert.Equal(t, []string{"e8", "e9"}, eventsOf(st.Snapshot()))

	m.Release()

	// a new matcher starts at the oldest retained event
	m2 := st.NewMatcher()
	defer m2.Release()
	rec, err := m2.Next(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "e8", rec.Event)
}

func TestRetentionWaitsForSlowestMatcher(t *testing.T) {
	st := stream.New[string](stream.WithHistorySize(0))
	defer st.Close()

	fast := st.NewMatcher()
	defer fast.Release()
	slow := st.NewMatcher()
	defer slow.Release()

	appendAll(t, st, "A", "B", "C")

	_, err := fast.WaitFor(context.Background(), stream.Eq("C"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Stats().Retained)

	_, err = slow.WaitFor(context.Background(), stream.Eq("A"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, eventsOf(st.Snapshot()))
}

func TestUnwatchedStreamKeepsEverything(t *testing.T) {
	st := stream.New[string](stream.WithHistorySize(1))
	defer st.Close()

	appendAll(t, st, "A", "B", "C", "D", "E")
	assert.Equal(t, 5, st.Stats().Retained)
	assert.Equal(t, []string{"D", "E"}, eventsOf(st.Tail(2)))
	assert.Len(t, st.TailStrings(10), 5)
	assert.Empty(t, st.Tail(0))
}

func TestMetricsAreReported(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := stream.NewMetrics(reg)

	st := stream.New[string](stream.WithName("metered"), stream.WithMetrics(metrics))
	defer st.Close()

	m := st.NewMatcher()
	defer m.Release()

	appendAll(t, st, "A", "B")
	_, err := m.WaitFor(context.Background(), stream.Eq("B"), time.Second)
	require.NoError(t, err)
	_, err = m.WaitFor(context.Background(), stream.Eq("Z"), time.Millisecond)
	require.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Appended().WithLabelValues("metered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Waits().WithLabelValues("metered", "matched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Waits().WithLabelValues("metered", "timed_out")))
}

func eventsOf(recs []stream.Record[string]) []string {
	acc := make([]string, 0, len(recs))
	for _, rec := range recs {
		acc = append(acc, rec.Event)
	}
	return acc
}
