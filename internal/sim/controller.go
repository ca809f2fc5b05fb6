package sim

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/capatazlib/go-evstream/hci"
	"github.com/capatazlib/go-evstream/stream"
)

// inquiry holds the state of a running inquiry
type inquiry struct {
	timer      *time.Timer
	maxResults int
	reported   map[hci.Address]struct{}
}

// Controller is a simulated Bluetooth controller. Commands sent to it produce
// HCI events on its event stream.
type Controller struct {
	air           *Air
	name          string
	addr          hci.Address
	rssi          int8
	classOfDevice uint32
	events        *stream.Stream[hci.Event]
	ll            logrus.FieldLogger

	// the fields below are guarded by the air lock
	scan        hci.ScanEnable
	inquiryMode hci.InquiryMode
	localName   []byte
	eir         []hci.GapData
	inquiry     *inquiry
}

// Name returns the name given to this controller
func (ctrl *Controller) Name() string {
	return ctrl.name
}

// Address returns the device address of this controller
func (ctrl *Controller) Address() hci.Address {
	return ctrl.addr
}

// Events returns the stream where the controller appends its HCI events
func (ctrl *Controller) Events() *stream.Stream[hci.Event] {
	return ctrl.events
}

// emitLocked appends an event to the controller stream
func (ctrl *Controller) emitLocked(ev hci.Event) {
	if err := ctrl.events.Append(ev); err != nil {
		ctrl.ll.WithError(err).Warn("could not emit event")
	}
}

func (ctrl *Controller) commandComplete(op hci.OpCode, status hci.Status) hci.Event {
	return hci.Event{Code: hci.EventCommandComplete, OpCode: op, Status: status}
}

func (ctrl *Controller) commandStatus(op hci.OpCode, status hci.Status) hci.Event {
	return hci.Event{Code: hci.EventCommandStatus, OpCode: op, Status: status}
}

// Send processes the given command. Every event caused by the command is
// appended to the involved streams before Send returns; inquiry results for
// devices that become discoverable later, and inquiry completions, are
// appended as they happen.
func (ctrl *Controller) Send(cmd hci.Command) error {
	air := ctrl.air
	air.mux.Lock()
	defer air.mux.Unlock()

	if air.closed {
		return ErrAirClosed
	}

	ctrl.ll.WithField("hci.opcode", cmd.OpCode().String()).Debug("command received")

	switch cmd := cmd.(type) {
	case hci.WriteScanEnable:
		ctrl.scan = cmd.ScanEnable
		ctrl.emitLocked(ctrl.commandComplete(cmd.OpCode(), hci.StatusSuccess))
		if ctrl.scan.Inquiry() {
			air.discoverableLocked(ctrl)
		}

	case hci.WriteLocalName:
		ctrl.localName = []byte(cmd.Name())
		ctrl.emitLocked(ctrl.commandComplete(cmd.OpCode(), hci.StatusSuccess))

	case hci.ReadLocalName:
		ev := ctrl.commandComplete(cmd.OpCode(), hci.StatusSuccess)
		ev.RemoteName = string(ctrl.localName)
		ctrl.emitLocked(ev)

	case hci.WriteExtendedInquiryResponse:
		ctrl.eir = copyGapData(cmd.Data)
		ctrl.emitLocked(ctrl.commandComplete(cmd.OpCode(), hci.StatusSuccess))

	case hci.WriteInquiryMode:
		if cmd.Mode > hci.ExtendedMode {
			ctrl.emitLocked(ctrl.commandComplete(cmd.OpCode(), hci.StatusInvalidParameters))
			return nil
		}
		ctrl.inquiryMode = cmd.Mode
		ctrl.emitLocked(ctrl.commandComplete(cmd.OpCode(), hci.StatusSuccess))

	case hci.ReadBdAddr:
		ev := ctrl.commandComplete(cmd.OpCode(), hci.StatusSuccess)
		ev.Address = ctrl.addr
		ctrl.emitLocked(ev)

	case hci.Inquiry:
		if ctrl.inquiry != nil || cmd.Length == 0 {
			ctrl.emitLocked(ctrl.commandStatus(cmd.OpCode(), hci.StatusCommandDisallowed))
			return nil
		}
		ctrl.emitLocked(ctrl.commandStatus(cmd.OpCode(), hci.StatusSuccess))
		ctrl.startInquiryLocked(cmd)

	case hci.InquiryCancel:
		if ctrl.inquiry == nil {
			ctrl.emitLocked(ctrl.commandComplete(cmd.OpCode(), hci.StatusCommandDisallowed))
			return nil
		}
		ctrl.stopInquiryLocked()
		ctrl.emitLocked(ctrl.commandComplete(cmd.OpCode(), hci.StatusSuccess))

	case hci.RemoteNameRequest:
		ctrl.emitLocked(ctrl.commandStatus(cmd.OpCode(), hci.StatusSuccess))
		ev := hci.Event{
			Code:    hci.EventRemoteNameRequestComplete,
			Status:  hci.StatusPageTimeout,
			Address: cmd.Address,
		}
		if target, ok := air.byAddr[cmd.Address]; ok && target != ctrl && target.scan.Page() {
			ev.Status = hci.StatusSuccess
			ev.RemoteName = string(target.localName)
		}
		ctrl.emitLocked(ev)

	case hci.Reset:
		ctrl.stopInquiryLocked()
		ctrl.scan = hci.NoScans
		ctrl.inquiryMode = hci.StandardMode
		ctrl.localName = nil
		ctrl.eir = nil
		ctrl.emitLocked(ctrl.commandComplete(cmd.OpCode(), hci.StatusSuccess))

	default:
		ctrl.emitLocked(ctrl.commandComplete(cmd.OpCode(), hci.StatusUnknownCommand))
		return fmt.Errorf("sim: unsupported command %s", cmd.OpCode())
	}
	return nil
}

// startInquiryLocked reports every discoverable controller on the air and
// schedules the end of the inquiry
func (ctrl *Controller) startInquiryLocked(cmd hci.Inquiry) {
	inq := &inquiry{
		maxResults: int(cmd.NumResponses),
		reported:   make(map[hci.Address]struct{}),
	}
	length := time.Duration(cmd.Length) * ctrl.air.settings.inquiryUnit
	inq.timer = time.AfterFunc(length, func() { ctrl.inquiryExpired(inq) })
	ctrl.inquiry = inq

	ctrl.ll.WithFields(logrus.Fields{
		"inquiry.length":      length.String(),
		"inquiry.max_results": inq.maxResults,
		"inquiry.mode":        ctrl.inquiryMode.String(),
	}).Debug("inquiry started")

	for _, target := range ctrl.air.controllers {
		if target == ctrl || !target.scan.Inquiry() {
			continue
		}
		ctrl.reportLocked(target)
		if ctrl.inquiry != inq {
			// max results reached
			return
		}
	}
}

// inquiryExpired is called by the inquiry timer
func (ctrl *Controller) inquiryExpired(inq *inquiry) {
	air := ctrl.air
	air.mux.Lock()
	defer air.mux.Unlock()
	// the inquiry may have been cancelled or finished early while the timer
	// was firing
	if air.closed || ctrl.inquiry != inq {
		return
	}
	ctrl.finishInquiryLocked()
}

// reportLocked emits an inquiry result about the given target, following the
// inquiry mode of this controller
func (ctrl *Controller) reportLocked(target *Controller) {
	inq := ctrl.inquiry
	if _, seen := inq.reported[target.addr]; seen {
		return
	}
	inq.reported[target.addr] = struct{}{}

	ev := hci.Event{
		Code:          ctrl.inquiryMode.ResultCode(),
		Address:       target.addr,
		ClassOfDevice: target.classOfDevice,
	}
	switch ctrl.inquiryMode {
	case hci.RssiMode:
		ev.RSSI = target.rssi
	case hci.ExtendedMode:
		ev.RSSI = target.rssi
		ev.EIR = copyGapData(target.eir)
	}
	ctrl.emitLocked(ev)

	if inq.maxResults > 0 && len(inq.reported) >= inq.maxResults {
		ctrl.finishInquiryLocked()
	}
}

// finishInquiryLocked ends the running inquiry with an InquiryComplete event
func (ctrl *Controller) finishInquiryLocked() {
	reported := len(ctrl.inquiry.reported)
	ctrl.stopInquiryLocked()
	ctrl.emitLocked(hci.Event{Code: hci.EventInquiryComplete, Status: hci.StatusSuccess})
	ctrl.ll.WithField("inquiry.reported", reported).Debug("inquiry complete")
}

// stopInquiryLocked releases the inquiry timer without emitting events
func (ctrl *Controller) stopInquiryLocked() {
	if ctrl.inquiry == nil {
		return
	}
	ctrl.inquiry.timer.Stop()
	ctrl.inquiry = nil
}

func copyGapData(input []hci.GapData) []hci.GapData {
	if len(input) == 0 {
		return nil
	}
	acc := make([]hci.GapData, 0, len(input))
	for _, gd := range input {
		data := make([]byte, len(gd.Data))
		copy(data, gd.Data)
		acc = append(acc, hci.GapData{Type: gd.Type, Data: data})
	}
	return acc
}
