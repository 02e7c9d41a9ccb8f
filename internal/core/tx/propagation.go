package tx

import (
	"fmt"
	"strings"
)

// Propagation decides what Execute does with the ambient transaction.
type Propagation uint8

const (
	// Required joins the ambient transaction or begins a new one.
	Required Propagation = iota
	// RequiresNew suspends the ambient transaction and always begins a new one.
	RequiresNew
	// Supports joins the ambient transaction or runs without one.
	Supports
	// NotSupported suspends the ambient transaction and runs without one.
	NotSupported
	// Mandatory joins the ambient transaction and fails when there is none.
	Mandatory
	// Never runs without a transaction and fails when one is ambient.
	Never
	// Nested opens a savepoint in the ambient transaction or begins a new one.
	Nested
)

var propagationNames = [...]string{
	Required:     "REQUIRED",
	RequiresNew:  "REQUIRES_NEW",
	Supports:     "SUPPORTS",
	NotSupported: "NOT_SUPPORTED",
	Mandatory:    "MANDATORY",
	Never:        "NEVER",
	Nested:       "NESTED",
}

func (p Propagation) String() string {
	if int(p) < len(propagationNames) {
		return propagationNames[p]
	}
	return fmt.Sprintf("Propagation(%d)", uint8(p))
}

// Valid reports whether p is one of the seven known policies.
func (p Propagation) Valid() bool {
	return int(p) < len(propagationNames)
}

// ParsePropagation converts a policy name (case-insensitive) into a Propagation.
func ParsePropagation(s string) (Propagation, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range propagationNames {
		if n == name {
			return Propagation(i), nil
		}
	}
	return Required, fmt.Errorf("unknown propagation %q", s)
}
