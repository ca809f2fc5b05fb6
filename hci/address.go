package hci

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Address is a 6 byte Bluetooth device address (BD_ADDR), stored in the
// order it is displayed
type Address [6]byte

// EmptyAddress is the zero value of Address
var EmptyAddress Address

// String renders the address as colon separated hexadecimal bytes
func (addr Address) String() string {
	return fmt.Sprintf(
		"%02X:%02X:%02X:%02X:%02X:%02X",
		addr[0], addr[1], addr[2], addr[3], addr[4], addr[5],
	)
}

// IsEmpty returns true when all the bytes of the address are zero
func (addr Address) IsEmpty() bool {
	return addr == EmptyAddress
}

// ParseAddress parses an address in the AA:BB:CC:DD:EE:FF format
func ParseAddress(input string) (Address, error) {
	var addr Address
	parts := strings.Split(strings.TrimSpace(input), ":")
	if len(parts) != len(addr) {
		return addr, fmt.Errorf("invalid address %q: expecting 6 bytes", input)
	}
	for i, part := range parts {
		if len(part) != 2 {
			return Address{}, fmt.Errorf("invalid address %q: byte %d is %q", input, i, part)
		}
		bs, err := hex.DecodeString(part)
		if err != nil {
			return Address{}, fmt.Errorf("invalid address %q: %w", input, err)
		}
		addr[i] = bs[0]
	}
	return addr, nil
}

// MustParseAddress is like ParseAddress, but panics on invalid input
func MustParseAddress(input string) Address {
	addr, err := ParseAddress(input)
	if err != nil {
		panic(err)
	}
	return addr
}

// MarshalText renders the address in its display format
func (addr Address) MarshalText() ([]byte, error) {
	return []byte(addr.String()), nil
}

// UnmarshalText parses the address display format, an empty input is the
// empty address
func (addr *Address) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*addr = EmptyAddress
		return nil
	}
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*addr = parsed
	return nil
}
