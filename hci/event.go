package hci

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Event is a decoded HCI event. Only the fields relevant to the event code are
// set; inquiry results carry a single response per event.
type Event struct {
	Code          EventCode `json:"code"`
	OpCode        OpCode    `json:"opcode,omitempty"`
	Status        Status    `json:"status"`
	Address       Address   `json:"address"`
	RSSI          int8      `json:"rssi,omitempty"`
	ClassOfDevice uint32    `json:"class_of_device,omitempty"`
	RemoteName    string    `json:"remote_name,omitempty"`
	EIR           []GapData `json:"eir,omitempty"`
}

// LocalName returns the device name found in the extended inquiry response of
// the event, preferring the complete name over the shortened one
func (ev Event) LocalName() (string, bool) {
	var shortened []byte
	found := false
	for _, gd := range ev.EIR {
		switch gd.Type {
		case GapCompleteLocalName:
			return string(bytes.TrimRight(gd.Data, "\x00")), true
		case GapShortenedLocalName:
			shortened = gd.Data
			found = true
		}
	}
	return string(bytes.TrimRight(shortened, "\x00")), found
}

// String returns an string representation for the Event
func (ev Event) String() string {
	var buffer strings.Builder
	buffer.WriteString("Event{")
	buffer.WriteString(fmt.Sprintf("code: %s", ev.Code))
	switch ev.Code {
	case EventCommandComplete, EventCommandStatus:
		buffer.WriteString(fmt.Sprintf(", opcode: %s", ev.OpCode))
	}
	buffer.WriteString(fmt.Sprintf(", status: %s", ev.Status))
	if !ev.Address.IsEmpty() {
		buffer.WriteString(fmt.Sprintf(", address: %s", ev.Address))
	}
	if ev.RSSI != 0 {
		buffer.WriteString(fmt.Sprintf(", rssi: %d", ev.RSSI))
	}
	if ev.ClassOfDevice != 0 {
		buffer.WriteString(fmt.Sprintf(", cod: 0x%06x", ev.ClassOfDevice))
	}
	if ev.RemoteName != "" {
		buffer.WriteString(fmt.Sprintf(", name: %q", ev.RemoteName))
	}
	if len(ev.EIR) > 0 {
		eir := make([]string, 0, len(ev.EIR))
		for _, gd := range ev.EIR {
			eir = append(eir, gd.String())
		}
		buffer.WriteString(fmt.Sprintf(", eir: [%s]", strings.Join(eir, " ")))
	}
	buffer.WriteString("}")
	return buffer.String()
}

// DecodeEvents reads a stream of JSON encoded events (one per line in log
// files) and calls the given function for each of them, in order
func DecodeEvents(data []byte, fn func(Event) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	for i := 0; dec.More(); i++ {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			return fmt.Errorf("decode event %d: %w", i, err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return nil
}
