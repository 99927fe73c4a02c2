package tagger

import (
	"fmt"
	"strings"
)

// Label is the entity class assigned to a token.
type Label string

const (
	Institution Label = "INSTITUTION"
	Address     Label = "ADDRESS"
	Country     Label = "COUNTRY"
	// Other marks tokens outside any entity, such as separators.
	Other Label = "O"
)

// Labels lists every label in a stable order.
var Labels = []Label{Institution, Address, Country, Other}

// ParseLabel converts a label name to a Label. "O" and "OTHER" both map to
// Other. Matching is case-insensitive.
func ParseLabel(s string) (Label, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INSTITUTION":
		return Institution, nil
	case "ADDRESS":
		return Address, nil
	case "COUNTRY":
		return Country, nil
	case "O", "OTHER":
		return Other, nil
	}
	return "", fmt.Errorf("tagger: unknown label %q", s)
}

// Valid reports whether l is one of the known labels.
func (l Label) Valid() bool {
	switch l {
	case Institution, Address, Country, Other:
		return true
	}
	return false
}

func (l Label) String() string { return string(l) }
