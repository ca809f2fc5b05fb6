package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/capatazlib/go-evstream/hci"
	"github.com/capatazlib/go-evstream/stream"
	"github.com/capatazlib/go-evstream/streamtest"
)

// reporter collects assertion failures of the check command
type reporter struct {
	out    io.Writer
	failed bool
}

func (r *reporter) Errorf(format string, args ...interface{}) {
	r.failed = true
	fmt.Fprintf(r.out, format, args...)
	fmt.Fprintln(r.out)
}

func check(c *cli.Context) error {
	events, err := os.ReadFile(c.String("log"))
	if err != nil {
		return errorf("failed to read event log: %s", err)
	}
	expectations, err := os.ReadFile(c.String("expect"))
	if err != nil {
		return errorf("failed to read expectations: %s", err)
	}

	timeout := c.Duration("timeout")
	if timeout <= 0 {
		timeout = cfg.DefaultTimeout
	}

	ok, err := runCheck(c.Context, ll, events, expectations, timeout, cfg.TailSize, os.Stdout)
	if err != nil {
		return errorf("%s", err)
	}
	if !ok {
		return cli.Exit("check failed", 1)
	}
	return nil
}

// parseExpectations decodes a YAML list of expectation records
func parseExpectations(data []byte) ([]stream.EventP[hci.Event], error) {
	var exps []hci.Expectation
	if err := yaml.Unmarshal(data, &exps); err != nil {
		return nil, fmt.Errorf("failed to decode expectations: %w", err)
	}
	if len(exps) == 0 {
		return nil, fmt.Errorf("expectation list is empty")
	}
	return hci.ParseExpectations(exps)
}

// runCheck replays the given event log through a stream and asserts the
// expectations match its events in order. Failures are written to out.
func runCheck(
	ctx context.Context,
	ll logrus.FieldLogger,
	events []byte,
	expectations []byte,
	timeout time.Duration,
	tailSize int,
	out io.Writer,
) (bool, error) {
	preds, err := parseExpectations(expectations)
	if err != nil {
		return false, err
	}

	var evs []hci.Event
	err = hci.DecodeEvents(events, func(ev hci.Event) error {
		evs = append(evs, ev)
		return nil
	})
	if err != nil {
		return false, err
	}

	st := stream.New[hci.Event](
		stream.WithName("replay"),
		stream.WithLogger(ll),
		// replayed logs are finite, keep all of them for diagnostics
		stream.WithHistorySize(len(evs)),
	)
	defer st.Close()

	// the stream stays open during the assertion, a closed stream would
	// fail waits without looking at its buffered events
	for _, ev := range evs {
		if err := st.Append(ev); err != nil {
			return false, err
		}
	}
	ll.WithFields(logrus.Fields{
		"check.events":       st.Stats().Appended,
		"check.expectations": len(preds),
	}).Debug("event log replayed")

	r := &reporter{out: out}
	ok := streamtest.AssertEmitsInOrder(
		r,
		st,
		preds,
		streamtest.WithContext(ctx),
		streamtest.WithTimeout(timeout),
		streamtest.WithTailSize(tailSize),
	)
	if ok {
		fmt.Fprintf(out, "ok: %d expectation(s) matched\n", len(preds))
	}
	return ok, nil
}
