package hci

import (
	"fmt"

	"github.com/capatazlib/go-evstream/stream"
)

// Expectation is the serializable form of an event matcher, as found in the
// expectation files of the evstream check command, e.g.
//
//	- event: command_complete
//	  opcode: write_local_name
//	- event: inquiry_result
//	  address: 00:11:22:33:44:55
type Expectation struct {
	Event   string `yaml:"event" json:"event"`
	OpCode  string `yaml:"opcode,omitempty" json:"opcode,omitempty"`
	Address string `yaml:"address,omitempty" json:"address,omitempty"`
	Name    string `yaml:"name,omitempty" json:"name,omitempty"`
}

// ParseExpectation transforms an expectation record into the matcher it
// describes
func ParseExpectation(exp Expectation) (stream.EventP[Event], error) {
	code, err := ParseEventCode(exp.Event)
	if err != nil {
		return nil, err
	}

	var addr Address
	if exp.Address != "" {
		addr, err = ParseAddress(exp.Address)
		if err != nil {
			return nil, err
		}
	}

	requireAddr := func() error {
		if exp.Address == "" {
			return fmt.Errorf("expectation %s requires an address", code)
		}
		return nil
	}

	switch code {
	case EventCommandComplete, EventCommandStatus:
		if exp.OpCode == "" {
			return nil, fmt.Errorf("expectation %s requires an opcode", code)
		}
		op, err := ParseOpCode(exp.OpCode)
		if err != nil {
			return nil, err
		}
		if code == EventCommandComplete {
			return CommandComplete(op), nil
		}
		return CommandStatus(op), nil

	case EventInquiryResult:
		if err := requireAddr(); err != nil {
			return nil, err
		}
		return InquiryResult(addr), nil

	case EventInquiryResultWithRssi:
		if err := requireAddr(); err != nil {
			return nil, err
		}
		return InquiryResultWithRssi(addr), nil

	case EventExtendedInquiryResult:
		if err := requireAddr(); err != nil {
			return nil, err
		}
		return ExtendedInquiryResult(addr), nil

	case EventInquiryComplete:
		return InquiryComplete(), nil

	case EventRemoteNameRequestComplete:
		if err := requireAddr(); err != nil {
			return nil, err
		}
		if exp.Name != "" {
			return RemoteName(addr, exp.Name), nil
		}
		return RemoteNameRequestComplete(addr), nil

	default:
		if exp.Address != "" {
			return stream.And(HasCode(code), FromAddress(addr)), nil
		}
		return HasCode(code), nil
	}
}

// ParseExpectations transforms a list of expectation records into matchers,
// reporting the position of the first invalid record
func ParseExpectations(exps []Expectation) ([]stream.EventP[Event], error) {
	preds := make([]stream.EventP[Event], 0, len(exps))
	for i, exp := range exps {
		pred, err := ParseExpectation(exp)
		if err != nil {
			return nil, fmt.Errorf("expectation %d: %w", i, err)
		}
		preds = append(preds, pred)
	}
	return preds, nil
}
