package hci

import (
	"bytes"
	"fmt"
)

const (
	// LocalNameSize is the fixed size of the name parameter of
	// WriteLocalName, shorter names are padded with NUL bytes
	LocalNameSize = 248
	// GIAC is the general inquiry access code
	GIAC uint32 = 0x9E8B33
	// LIAC is the limited inquiry access code
	LIAC uint32 = 0x9E8B00
)

// Command is an HCI command sent to a controller
type Command interface {
	OpCode() OpCode
}

// WriteScanEnable sets the scan modes of the controller
type WriteScanEnable struct {
	ScanEnable ScanEnable
}

// OpCode implements Command
func (WriteScanEnable) OpCode() OpCode { return OpWriteScanEnable }

// WriteLocalName sets the user friendly name of the controller
type WriteLocalName struct {
	LocalName []byte
}

// OpCode implements Command
func (WriteLocalName) OpCode() OpCode { return OpWriteLocalName }

// NewWriteLocalName builds a WriteLocalName command padding the given name to
// LocalNameSize bytes
func NewWriteLocalName(name string) (WriteLocalName, error) {
	if len(name) > LocalNameSize {
		return WriteLocalName{}, fmt.Errorf(
			"local name is %d bytes long, max is %d", len(name), LocalNameSize,
		)
	}
	padded := make([]byte, LocalNameSize)
	copy(padded, name)
	return WriteLocalName{LocalName: padded}, nil
}

// Name returns the local name without its NUL padding
func (cmd WriteLocalName) Name() string {
	if i := bytes.IndexByte(cmd.LocalName, 0); i >= 0 {
		return string(cmd.LocalName[:i])
	}
	return string(cmd.LocalName)
}

// ReadLocalName returns the user friendly name of the controller through a
// CommandComplete event
type ReadLocalName struct{}

// OpCode implements Command
func (ReadLocalName) OpCode() OpCode { return OpReadLocalName }

// WriteExtendedInquiryResponse sets the data the controller sends on extended
// inquiry results
type WriteExtendedInquiryResponse struct {
	FecRequired bool
	Data        []GapData
}

// OpCode implements Command
func (WriteExtendedInquiryResponse) OpCode() OpCode { return OpWriteExtendedInquiryResponse }

// WriteInquiryMode selects which event reports inquiry results
type WriteInquiryMode struct {
	Mode InquiryMode
}

// OpCode implements Command
func (WriteInquiryMode) OpCode() OpCode { return OpWriteInquiryMode }

// ReadBdAddr returns the controller address through a CommandComplete event
type ReadBdAddr struct{}

// OpCode implements Command
func (ReadBdAddr) OpCode() OpCode { return OpReadBdAddr }

// Inquiry starts the discovery of devices in inquiry scan mode. Length is
// expressed in units of 1.28 seconds; a NumResponses of zero means unlimited.
type Inquiry struct {
	LAP          uint32
	Length       uint8
	NumResponses uint8
}

// OpCode implements Command
func (Inquiry) OpCode() OpCode { return OpInquiry }

// InquiryCancel stops the inquiry in progress
type InquiryCancel struct{}

// OpCode implements Command
func (InquiryCancel) OpCode() OpCode { return OpInquiryCancel }

// RemoteNameRequest asks a remote device for its name, the answer is reported
// with EventRemoteNameRequestComplete
type RemoteNameRequest struct {
	Address Address
}

// OpCode implements Command
func (RemoteNameRequest) OpCode() OpCode { return OpRemoteNameRequest }

// Reset brings the controller back to its initial state
type Reset struct{}

// OpCode implements Command
func (Reset) OpCode() OpCode { return OpReset }
