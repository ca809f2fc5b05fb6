package sim

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/capatazlib/go-evstream/hci"
	"github.com/capatazlib/go-evstream/stream"
)

// DefaultInquiryUnit is the duration of a single unit of the Length parameter
// of an inquiry command
const DefaultInquiryUnit = 1280 * time.Millisecond

type airSettings struct {
	inquiryUnit time.Duration
	ll          logrus.FieldLogger
	streamOpts  []stream.Opt
}

// Opt allows to tweak the behavior of an Air
type Opt func(*airSettings)

// WithInquiryUnit overrides the duration of an inquiry length unit, tests use
// it to shrink inquiries to a few milliseconds
func WithInquiryUnit(d time.Duration) Opt {
	return func(s *airSettings) {
		if d > 0 {
			s.inquiryUnit = d
		}
	}
}

// WithLogger sets the logger used by the simulation
func WithLogger(ll logrus.FieldLogger) Opt {
	return func(s *airSettings) {
		s.ll = ll
	}
}

// WithStreamOpts sets options applied to every stream created by the
// simulation. The stream name is always set by the simulation.
func WithStreamOpts(opts ...stream.Opt) Opt {
	return func(s *airSettings) {
		s.streamOpts = append(s.streamOpts, opts...)
	}
}

func defaultAirSettings() airSettings {
	ll := logrus.New()
	ll.Out = io.Discard
	return airSettings{
		inquiryUnit: DefaultInquiryUnit,
		ll:          ll,
	}
}

type controllerSettings struct {
	addr          hci.Address
	rssi          int8
	classOfDevice uint32
}

// ControllerOpt allows to tweak a Controller when it joins the Air
type ControllerOpt func(*controllerSettings)

// WithAddress sets the address of the controller, by default one is
// generated
func WithAddress(addr hci.Address) ControllerOpt {
	return func(s *controllerSettings) {
		s.addr = addr
	}
}

// WithRSSI sets the signal strength other controllers observe when
// discovering this one
func WithRSSI(rssi int8) ControllerOpt {
	return func(s *controllerSettings) {
		s.rssi = rssi
	}
}

// WithClassOfDevice sets the class of device reported on inquiry results
func WithClassOfDevice(cod uint32) ControllerOpt {
	return func(s *controllerSettings) {
		s.classOfDevice = cod
	}
}
