package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/capatazlib/go-evstream/hci"
	"github.com/capatazlib/go-evstream/stream"
)

// ErrAirClosed is returned when using controllers of a closed Air
var ErrAirClosed = errors.New("sim: air is closed")

// Air is the medium shared by simulated controllers. Controllers discover
// each other and exchange names through it.
//
// A single lock guards the state of every controller on the Air, so events
// caused by one command are appended to the streams of all the involved
// controllers before the command returns.
type Air struct {
	settings airSettings

	mux         sync.Mutex
	controllers []*Controller
	byAddr      map[hci.Address]*Controller
	nextAddr    uint32
	closed      bool
}

// NewAir returns an Air with no controllers
func NewAir(opts ...Opt) *Air {
	s := defaultAirSettings()
	for _, optFn := range opts {
		optFn(&s)
	}
	return &Air{
		settings: s,
		byAddr:   make(map[hci.Address]*Controller),
	}
}

func (air *Air) newStream(name string) *stream.Stream[hci.Event] {
	opts := make([]stream.Opt, 0, len(air.settings.streamOpts)+1)
	opts = append(opts, air.settings.streamOpts...)
	opts = append(opts, stream.WithName(name))
	return stream.New[hci.Event](opts...)
}

// generateAddrLocked returns an address no controller on the air uses
func (air *Air) generateAddrLocked() hci.Address {
	for {
		air.nextAddr++
		n := air.nextAddr
		addr := hci.Address{0x00, 0x1A, 0x7D, byte(n >> 16), byte(n >> 8), byte(n)}
		if _, taken := air.byAddr[addr]; !taken {
			return addr
		}
	}
}

// NewController adds a controller with the given name to the air. The
// controller starts with scans disabled and the standard inquiry mode.
func (air *Air) NewController(name string, opts ...ControllerOpt) (*Controller, error) {
	s := controllerSettings{rssi: -40}
	for _, optFn := range opts {
		optFn(&s)
	}

	air.mux.Lock()
	defer air.mux.Unlock()

	if air.closed {
		return nil, ErrAirClosed
	}
	if s.addr.IsEmpty() {
		s.addr = air.generateAddrLocked()
	}
	if other, taken := air.byAddr[s.addr]; taken {
		return nil, fmt.Errorf("sim: address %s already used by %s", s.addr, other.name)
	}

	ctrl := &Controller{
		air:           air,
		name:          name,
		addr:          s.addr,
		rssi:          s.rssi,
		classOfDevice: s.classOfDevice,
		events:        air.newStream(name + ".hci"),
		ll: air.settings.ll.WithFields(logrus.Fields{
			"sim.controller": name,
			"sim.address":    s.addr.String(),
		}),
	}
	air.controllers = append(air.controllers, ctrl)
	air.byAddr[s.addr] = ctrl

	ctrl.ll.Debug("controller joined the air")
	return ctrl, nil
}

// Controllers returns the controllers on the air, in the order they joined
func (air *Air) Controllers() []*Controller {
	air.mux.Lock()
	defer air.mux.Unlock()
	acc := make([]*Controller, len(air.controllers))
	copy(acc, air.controllers)
	return acc
}

// Close stops every running inquiry and closes the event streams of every
// controller. Calling Close more than once has no further effect.
func (air *Air) Close() {
	air.mux.Lock()
	defer air.mux.Unlock()
	if air.closed {
		return
	}
	air.closed = true
	for _, ctrl := range air.controllers {
		ctrl.stopInquiryLocked()
		ctrl.events.Close()
	}
	air.settings.ll.WithField("sim.controllers", len(air.controllers)).Debug("air closed")
}

// discoverableLocked reports the given controller to every inquiry running on
// the air that has not seen it yet
func (air *Air) discoverableLocked(target *Controller) {
	for _, ctrl := range air.controllers {
		if ctrl == target || ctrl.inquiry == nil {
			continue
		}
		ctrl.reportLocked(target)
	}
}
