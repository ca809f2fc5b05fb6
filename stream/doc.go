/*
Package stream offers an ordered, append-only event log that lets test code
block until an asynchronous event satisfying a predicate shows up.

A Stream has exactly one producer, typically an adapter that receives events
from a device or a remote process and calls Append (or the function returned
by Notifier). Consumers create a Matcher per flow of assertions; each Matcher
owns a cursor and observes the complete event order independently of other
matchers.

	st := stream.New[hci.Event](stream.WithName("cert-hci"))
	defer st.Close()

	go device.Run(ctx, st.Notifier())

	m := st.NewMatcher()
	defer m.Release()

	rec, err := m.WaitFor(ctx, hci.CommandComplete(hci.OpWriteLocalName), time.Second)

A wait call finishes in one of the following ways:

* Matched: the earliest event at or after the cursor satisfying the predicate
is returned and the cursor moves past it.

* TimedOut: no event satisfied the predicate before the timeout expired, a
*TimedOutError is returned. This never happens before the timeout elapsed.

* Closed: the stream got closed before a match, a *StreamClosedError is
returned. Waiting on an already closed stream returns immediately.

* Failed: the predicate panicked, a *PredicateError is returned.

Timeouts and context cancellations have no side effects on the stream nor on
the cursor of the matcher. Retention is bounded: once every open matcher moved
past an event, only the most recent ones (see WithHistorySize) are kept for
diagnostics.
*/
package stream
