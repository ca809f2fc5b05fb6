package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/capatazlib/go-evstream/hci"
	"github.com/capatazlib/go-evstream/stream"
	"github.com/capatazlib/go-evstream/streamtest"
)

// Discoverability selects the inquiry access code used by an inquiry
type Discoverability uint8

const (
	// GeneralDiscoverability finds every discoverable device
	GeneralDiscoverability Discoverability = iota
	// LimitedDiscoverability finds devices in limited discoverable mode
	LimitedDiscoverability
)

// lap returns the inquiry access code of the discoverability mode
func (d Discoverability) lap() uint32 {
	if d == LimitedDiscoverability {
		return hci.LIAC
	}
	return hci.GIAC
}

// InquiryMsg describes an inquiry started through the Neighbor facade
type InquiryMsg struct {
	Discoverability Discoverability
	ResultMode      hci.InquiryMode
	// Length is expressed in units of 1.28 seconds (or the unit configured
	// on the Air)
	Length uint8
	// MaxResults of zero means unlimited
	MaxResults uint8
}

// forwardPoll is the timeout of each wait call of the session forwarder, it
// only bounds how long a single wait call lives
const forwardPoll = time.Minute

// Neighbor is the device side facade of the neighbor discovery module, built
// on top of a simulated controller
type Neighbor struct {
	ctrl *Controller
	ll   logrus.FieldLogger
}

// NewNeighbor returns a Neighbor facade driving the given controller
func NewNeighbor(ctrl *Controller) *Neighbor {
	return &Neighbor{
		ctrl: ctrl,
		ll:   ctrl.ll.WithField("sim.facade", "neighbor"),
	}
}

// sendAndWait sends the given command, and waits on the given matcher for the
// event that acknowledges it
func (n *Neighbor) sendAndWait(
	ctx context.Context,
	m *stream.Matcher[hci.Event],
	cmd hci.Command,
	ack stream.EventP[hci.Event],
) error {
	if err := n.ctrl.Send(cmd); err != nil {
		return err
	}
	rec, err := m.WaitFor(ctx, ack, 0)
	if err != nil {
		return fmt.Errorf("waiting for %s: %w", cmd.OpCode(), err)
	}
	if rec.Event.Status != hci.StatusSuccess {
		return fmt.Errorf("%s failed with status %s", cmd.OpCode(), rec.Event.Status)
	}
	return nil
}

// SetInquiryMode configures the inquiry result mode of the controller and
// starts an inquiry. The returned session streams every inquiry result and
// the inquiry completion. The session stream stays open after the inquiry
// completes, so results remain available to assertions; it gets closed when
// the session is closed or the controller goes away.
func (n *Neighbor) SetInquiryMode(ctx context.Context, msg InquiryMsg) (*InquirySession, error) {
	events := n.ctrl.Events()

	// both matchers are created before any command is sent so no event gets
	// lost
	cmdM := events.NewMatcher(stream.FromTail())
	defer cmdM.Release()
	fwdM := events.NewMatcher(stream.FromTail())

	err := n.sendAndWait(
		ctx,
		cmdM,
		hci.WriteInquiryMode{Mode: msg.ResultMode},
		hci.CommandComplete(hci.OpWriteInquiryMode),
	)
	if err == nil {
		err = n.sendAndWait(
			ctx,
			cmdM,
			hci.Inquiry{
				LAP:          msg.Discoverability.lap(),
				Length:       msg.Length,
				NumResponses: msg.MaxResults,
			},
			hci.CommandStatus(hci.OpInquiry),
		)
	}
	if err != nil {
		fwdM.Release()
		return nil, err
	}

	air := n.ctrl.air
	opts := make([]stream.Opt, 0, len(air.settings.streamOpts)+1)
	opts = append(opts, air.settings.streamOpts...)
	opts = append(opts, stream.WithName(n.ctrl.name+".inquiry"))

	sessCtx, cancel := context.WithCancel(context.Background())
	sess := &InquirySession{
		events: stream.New[hci.Event](opts...),
		cancel: cancel,
		doneCh: make(chan struct{}),
		ll:     n.ll.WithField("inquiry.mode", msg.ResultMode.String()),
	}
	go sess.forward(sessCtx, fwdM)
	return sess, nil
}

// GetRemoteName sends a remote name request for the given address. The
// returned session verifies the answer.
func (n *Neighbor) GetRemoteName(addr hci.Address) (*NameSession, error) {
	events := n.ctrl.Events()
	m := events.NewMatcher(stream.FromTail())
	if err := n.ctrl.Send(hci.RemoteNameRequest{Address: addr}); err != nil {
		m.Release()
		return nil, err
	}
	return &NameSession{events: events, m: m, addr: addr}, nil
}

////////////////////////////////////////////////////////////////////////////////

// InquirySession streams the inquiry events of a single inquiry
type InquirySession struct {
	events *stream.Stream[hci.Event]
	cancel context.CancelFunc
	doneCh chan struct{}
	once   sync.Once
	ll     logrus.FieldLogger
}

// Events returns the session stream
func (sess *InquirySession) Events() *stream.Stream[hci.Event] {
	return sess.events
}

// Close stops forwarding events and closes the session stream
func (sess *InquirySession) Close() {
	sess.once.Do(sess.cancel)
	<-sess.doneCh
	sess.events.Close()
}

// forward copies inquiry events from the controller stream into the session
// stream until the inquiry completes
func (sess *InquirySession) forward(ctx context.Context, m *stream.Matcher[hci.Event]) {
	defer close(sess.doneCh)
	defer m.Release()

	isInquiry := stream.Func("inquiry event", hci.IsInquiryEvent)
	for {
		rec, err := m.WaitFor(ctx, isInquiry, forwardPoll)
		switch {
		case err == nil:
			if appendErr := sess.events.Append(rec.Event); appendErr != nil {
				sess.ll.WithError(appendErr).Warn("could not forward inquiry event")
				return
			}
			if rec.Event.Code == hci.EventInquiryComplete {
				return
			}
		case errors.Is(err, stream.ErrTimedOut):
			continue
		case errors.Is(err, stream.ErrStreamClosed):
			sess.ll.Debug("controller stream closed, closing inquiry session")
			sess.events.Close()
			return
		default:
			sess.ll.WithError(err).Debug("inquiry session finished")
			return
		}
	}
}

////////////////////////////////////////////////////////////////////////////////

// NameSession waits for the answer of a remote name request
type NameSession struct {
	events *stream.Stream[hci.Event]
	m      *stream.Matcher[hci.Event]
	addr   hci.Address
}

// VerifyName asserts the remote device answered with the given name
func (sess *NameSession) VerifyName(t assert.TestingT, name string, opts ...streamtest.Opt) bool {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	_, ok := streamtest.AssertMatcherEmits(t, sess.m, sess.events, hci.RemoteName(sess.addr, name), opts...)
	return ok
}

// Release stops the session from pinning events of the controller stream
func (sess *NameSession) Release() {
	sess.m.Release()
}
