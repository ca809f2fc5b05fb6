package hci

import (
	"fmt"
	"strconv"
	"strings"
)

// OpCode identifies an HCI command (OGF and OCF packed in 16 bits)
type OpCode uint16

const (
	// OpInquiry starts the discovery of nearby devices
	OpInquiry OpCode = 0x0401
	// OpInquiryCancel stops an inquiry in progress
	OpInquiryCancel OpCode = 0x0402
	// OpRemoteNameRequest asks a remote device for its user friendly name
	OpRemoteNameRequest OpCode = 0x0419
	// OpReset resets the controller
	OpReset OpCode = 0x0C03
	// OpWriteLocalName sets the user friendly name of the controller
	OpWriteLocalName OpCode = 0x0C13
	// OpReadLocalName returns the user friendly name of the controller
	OpReadLocalName OpCode = 0x0C14
	// OpWriteScanEnable sets the inquiry and page scan modes
	OpWriteScanEnable OpCode = 0x0C1A
	// OpWriteInquiryMode sets the format of the inquiry result events
	OpWriteInquiryMode OpCode = 0x0C45
	// OpWriteExtendedInquiryResponse sets the data sent on extended inquiry
	// results
	OpWriteExtendedInquiryResponse OpCode = 0x0C52
	// OpReadBdAddr returns the address of the controller
	OpReadBdAddr OpCode = 0x1009
)

var opCodeNames = map[OpCode]string{
	OpInquiry:                      "inquiry",
	OpInquiryCancel:                "inquiry_cancel",
	OpRemoteNameRequest:            "remote_name_request",
	OpReset:                        "reset",
	OpWriteLocalName:               "write_local_name",
	OpReadLocalName:                "read_local_name",
	OpWriteScanEnable:              "write_scan_enable",
	OpWriteInquiryMode:             "write_inquiry_mode",
	OpWriteExtendedInquiryResponse: "write_extended_inquiry_response",
	OpReadBdAddr:                   "read_bd_addr",
}

// String returns the snake case name of the opcode
func (op OpCode) String() string {
	if name, ok := opCodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("opcode(0x%04x)", uint16(op))
}

// ParseOpCode accepts either an opcode name (write_local_name) or its
// hexadecimal value (0x0c13)
func ParseOpCode(input string) (OpCode, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	for op, name := range opCodeNames {
		if name == input {
			return op, nil
		}
	}
	if strings.HasPrefix(input, "0x") {
		n, err := strconv.ParseUint(input[2:], 16, 16)
		if err == nil {
			return OpCode(n), nil
		}
	}
	return 0, fmt.Errorf("unknown opcode %q", input)
}

// MarshalText renders the opcode by name
func (op OpCode) MarshalText() ([]byte, error) {
	return []byte(op.String()), nil
}

// UnmarshalText parses an opcode name or hexadecimal value
func (op *OpCode) UnmarshalText(text []byte) error {
	parsed, err := ParseOpCode(string(text))
	if err != nil {
		return err
	}
	*op = parsed
	return nil
}

////////////////////////////////////////////////////////////////////////////////

// EventCode identifies the kind of an HCI event
type EventCode uint8

const (
	// EventInquiryComplete signals the end of an inquiry
	EventInquiryComplete EventCode = 0x01
	// EventInquiryResult reports a discovered device
	EventInquiryResult EventCode = 0x02
	// EventRemoteNameRequestComplete carries the name of a remote device
	EventRemoteNameRequestComplete EventCode = 0x07
	// EventCommandComplete signals a command finished executing
	EventCommandComplete EventCode = 0x0E
	// EventCommandStatus signals a command started executing
	EventCommandStatus EventCode = 0x0F
	// EventInquiryResultWithRssi reports a discovered device and its signal
	// strength
	EventInquiryResultWithRssi EventCode = 0x22
	// EventExtendedInquiryResult reports a discovered device, its signal
	// strength and its extended inquiry response data
	EventExtendedInquiryResult EventCode = 0x2F
)

var eventCodeNames = map[EventCode]string{
	EventInquiryComplete:           "inquiry_complete",
	EventInquiryResult:             "inquiry_result",
	EventRemoteNameRequestComplete: "remote_name_request_complete",
	EventCommandComplete:           "command_complete",
	EventCommandStatus:             "command_status",
	EventInquiryResultWithRssi:     "inquiry_result_with_rssi",
	EventExtendedInquiryResult:     "extended_inquiry_result",
}

// String returns the snake case name of the event code
func (code EventCode) String() string {
	if name, ok := eventCodeNames[code]; ok {
		return name
	}
	return fmt.Sprintf("event_code(0x%02x)", uint8(code))
}

// ParseEventCode accepts either an event name (inquiry_result) or its
// hexadecimal value (0x02)
func ParseEventCode(input string) (EventCode, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	for code, name := range eventCodeNames {
		if name == input {
			return code, nil
		}
	}
	if strings.HasPrefix(input, "0x") {
		n, err := strconv.ParseUint(input[2:], 16, 8)
		if err == nil {
			return EventCode(n), nil
		}
	}
	return 0, fmt.Errorf("unknown event code %q", input)
}

// MarshalText renders the event code by name
func (code EventCode) MarshalText() ([]byte, error) {
	return []byte(code.String()), nil
}

// UnmarshalText parses an event code name or hexadecimal value
func (code *EventCode) UnmarshalText(text []byte) error {
	parsed, err := ParseEventCode(string(text))
	if err != nil {
		return err
	}
	*code = parsed
	return nil
}

////////////////////////////////////////////////////////////////////////////////

// Status is the error code carried by command and completion events
type Status uint8

const (
	// StatusSuccess indicates the command succeeded
	StatusSuccess Status = 0x00
	// StatusUnknownCommand indicates the controller doesn't know the opcode
	StatusUnknownCommand Status = 0x01
	// StatusPageTimeout indicates the remote device did not answer a page
	StatusPageTimeout Status = 0x04
	// StatusCommandDisallowed indicates the command can't run in the current
	// controller state
	StatusCommandDisallowed Status = 0x0C
	// StatusInvalidParameters indicates the command parameters are invalid
	StatusInvalidParameters Status = 0x12
)

// String returns a string representation of the status
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusUnknownCommand:
		return "unknown_command"
	case StatusPageTimeout:
		return "page_timeout"
	case StatusCommandDisallowed:
		return "command_disallowed"
	case StatusInvalidParameters:
		return "invalid_parameters"
	default:
		return fmt.Sprintf("status(0x%02x)", uint8(s))
	}
}

// ScanEnable tells which scans a controller runs, inquiry scans make it
// discoverable, page scans make it connectable
type ScanEnable uint8

const (
	// NoScans makes the controller invisible
	NoScans ScanEnable = iota
	// InquiryScanOnly makes the controller discoverable only
	InquiryScanOnly
	// PageScanOnly makes the controller connectable only
	PageScanOnly
	// InquiryAndPageScan makes the controller discoverable and connectable
	InquiryAndPageScan
)

// Inquiry returns true when the inquiry scan is enabled
func (se ScanEnable) Inquiry() bool {
	return se == InquiryScanOnly || se == InquiryAndPageScan
}

// Page returns true when the page scan is enabled
func (se ScanEnable) Page() bool {
	return se == PageScanOnly || se == InquiryAndPageScan
}

// String returns a string representation of the scan mode
func (se ScanEnable) String() string {
	switch se {
	case NoScans:
		return "no_scans"
	case InquiryScanOnly:
		return "inquiry_scan_only"
	case PageScanOnly:
		return "page_scan_only"
	case InquiryAndPageScan:
		return "inquiry_and_page_scan"
	default:
		return fmt.Sprintf("scan_enable(%d)", uint8(se))
	}
}

// InquiryMode selects which event reports inquiry results
type InquiryMode uint8

const (
	// StandardMode reports results with EventInquiryResult
	StandardMode InquiryMode = iota
	// RssiMode reports results with EventInquiryResultWithRssi
	RssiMode
	// ExtendedMode reports results with EventExtendedInquiryResult
	ExtendedMode
)

// String returns a string representation of the inquiry mode
func (im InquiryMode) String() string {
	switch im {
	case StandardMode:
		return "standard"
	case RssiMode:
		return "rssi"
	case ExtendedMode:
		return "extended"
	default:
		return fmt.Sprintf("inquiry_mode(%d)", uint8(im))
	}
}

// ResultCode returns the event code used to report inquiry results on this
// mode
func (im InquiryMode) ResultCode() EventCode {
	switch im {
	case RssiMode:
		return EventInquiryResultWithRssi
	case ExtendedMode:
		return EventExtendedInquiryResult
	default:
		return EventInquiryResult
	}
}

// GapDataType identifies an entry of the extended inquiry response
type GapDataType uint8

const (
	// GapShortenedLocalName is a prefix of the device name
	GapShortenedLocalName GapDataType = 0x08
	// GapCompleteLocalName is the full device name
	GapCompleteLocalName GapDataType = 0x09
	// GapTxPowerLevel is the transmit power of the device
	GapTxPowerLevel GapDataType = 0x0A
)

// String returns a string representation of the data type
func (gt GapDataType) String() string {
	switch gt {
	case GapShortenedLocalName:
		return "shortened_local_name"
	case GapCompleteLocalName:
		return "complete_local_name"
	case GapTxPowerLevel:
		return "tx_power_level"
	default:
		return fmt.Sprintf("gap_data_type(0x%02x)", uint8(gt))
	}
}

// GapData is a single entry of an extended inquiry response
type GapData struct {
	Type GapDataType `json:"type"`
	Data []byte      `json:"data"`
}

func (gd GapData) String() string {
	switch gd.Type {
	case GapShortenedLocalName, GapCompleteLocalName:
		return fmt.Sprintf("%s:%q", gd.Type, gd.Data)
	default:
		return fmt.Sprintf("%s:%x", gd.Type, gd.Data)
	}
}
