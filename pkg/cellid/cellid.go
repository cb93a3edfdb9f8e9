package cellid

import (
	"strings"

	"github.com/google/uuid"
)

// Length is the canonical width of a cell identifier.
const Length = 8

// ID identifies one cell within one notebook session.
// Canonical form is Length lower-case hex characters.
type ID string

// String returns the id as a plain string
func (id ID) String() string {
	return string(id)
}

// Truncate converts a raw identifier (a dashed UUID, a longer kernel key)
// into its canonical form by dropping dashes and keeping the first Length characters.
func Truncate(raw string) ID {
	s := strings.ToLower(strings.ReplaceAll(raw, "-", ""))
	if len(s) > Length {
		s = s[:Length]
	}
	return ID(s)
}

// Valid reports whether s is a canonical cell identifier
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for _, r := range s {
		if !isHex(r) {
			return false
		}
	}
	return true
}

func isHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')
}

// FromUUID derives the canonical id of a cell whose shell-side id is u
func FromUUID(u uuid.UUID) ID {
	return Truncate(u.String())
}

// New mints a fresh identifier, e.g. for a duplicated or pasted cell
func New() ID {
	return FromUUID(uuid.New())
}

// NewUnique mints identifiers until one is not taken.
// Truncation to eight characters makes collisions rare but possible.
func NewUnique(taken func(ID) bool) ID {
	for {
		id := New()
		if taken == nil || !taken(id) {
			return id
		}
	}
}
