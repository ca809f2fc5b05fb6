package hci

import (
	"fmt"

	"github.com/capatazlib/go-evstream/stream"
)

// HasCode is a predicate that matches events with the given code
func HasCode(code EventCode) stream.EventP[Event] {
	return stream.Func(
		fmt.Sprintf("code == %s", code),
		func(ev Event) bool { return ev.Code == code },
	)
}

// FromAddress is a predicate that matches events about the given device
func FromAddress(addr Address) stream.EventP[Event] {
	return stream.Func(
		fmt.Sprintf("address == %s", addr),
		func(ev Event) bool { return ev.Address == addr },
	)
}

// CommandComplete matches the completion event of the given command
func CommandComplete(op OpCode) stream.EventP[Event] {
	return stream.Func(
		fmt.Sprintf("CommandComplete(%s)", op),
		func(ev Event) bool {
			return ev.Code == EventCommandComplete && ev.OpCode == op
		},
	)
}

// CommandStatus matches the status event of the given command
func CommandStatus(op OpCode) stream.EventP[Event] {
	return stream.Func(
		fmt.Sprintf("CommandStatus(%s)", op),
		func(ev Event) bool {
			return ev.Code == EventCommandStatus && ev.OpCode == op
		},
	)
}

func resultFrom(name string, code EventCode, addr Address) stream.EventP[Event] {
	return stream.Func(
		fmt.Sprintf("%s(%s)", name, addr),
		func(ev Event) bool {
			return ev.Code == code && ev.Address == addr
		},
	)
}

// InquiryResult matches a standard inquiry result reporting the given device
func InquiryResult(addr Address) stream.EventP[Event] {
	return resultFrom("InquiryResult", EventInquiryResult, addr)
}

// InquiryResultWithRssi matches an RSSI inquiry result reporting the given
// device
func InquiryResultWithRssi(addr Address) stream.EventP[Event] {
	return resultFrom("InquiryResultWithRssi", EventInquiryResultWithRssi, addr)
}

// ExtendedInquiryResult matches an extended inquiry result reporting the given
// device
func ExtendedInquiryResult(addr Address) stream.EventP[Event] {
	return resultFrom("ExtendedInquiryResult", EventExtendedInquiryResult, addr)
}

// InquiryComplete matches the end of an inquiry
func InquiryComplete() stream.EventP[Event] {
	return stream.Func(
		"InquiryComplete()",
		func(ev Event) bool { return ev.Code == EventInquiryComplete },
	)
}

// RemoteNameRequestComplete matches a successful name request answered by the
// given device
func RemoteNameRequestComplete(addr Address) stream.EventP[Event] {
	return stream.Func(
		fmt.Sprintf("RemoteNameRequestComplete(%s)", addr),
		func(ev Event) bool {
			return ev.Code == EventRemoteNameRequestComplete &&
				ev.Status == StatusSuccess &&
				ev.Address == addr
		},
	)
}

// RemoteName matches a successful name request answered by the given device
// with the given name
func RemoteName(addr Address, name string) stream.EventP[Event] {
	return stream.Func(
		fmt.Sprintf("RemoteName(%s, %q)", addr, name),
		func(ev Event) bool {
			return ev.Code == EventRemoteNameRequestComplete &&
				ev.Status == StatusSuccess &&
				ev.Address == addr &&
				ev.RemoteName == name
		},
	)
}

// IsInquiryEvent returns true for inquiry results (of any mode) and inquiry
// completion events
func IsInquiryEvent(ev Event) bool {
	switch ev.Code {
	case EventInquiryResult,
		EventInquiryResultWithRssi,
		EventExtendedInquiryResult,
		EventInquiryComplete:
		return true
	default:
		return false
	}
}
