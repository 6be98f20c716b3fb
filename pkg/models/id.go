package models

import (
	"fmt"
	"strings"
)

// ID uniquely names an asset as the pair of the system hosting it and its
// address on that system. Entities and systems use flat string ids instead.
type ID struct {
	System  string
	Address string
}

func NewID(system, address string) ID {
	return ID{System: system, Address: address}
}

func (id ID) String() string {
	return id.System + ":" + id.Address
}

func (id ID) IsZero() bool {
	return id.System == "" && id.Address == ""
}

// ParseID parses the "system:address" form. Addresses may themselves contain
// colons (e.g. asset classes), so only the first separator splits.
func ParseID(s string) (ID, error) {
	system, address, ok := strings.Cut(s, ":")
	if !ok || system == "" || address == "" {
		return ID{}, fmt.Errorf("invalid asset id %q: want system:address", s)
	}
	return ID{System: system, Address: address}, nil
}

// MarshalText lets IDs key JSON maps in their stringified form.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := ParseID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
