// Package roles normalizes the role strings the backend hands out and answers
// the three questions the booking flow gates on: is the caller a customer,
// a practitioner, or staff.
package roles

import (
	"sort"
	"strings"
)

// Tag is a logical role. Raw server strings never leave this package.
type Tag int

const (
	Unknown Tag = iota
	Admin
	Practitioner
	FrontDesk
	Customer
)

const namespacePrefix = "ROLE_"

var aliases = map[string]Tag{
	"ADMIN":         Admin,
	"ADMINISTRADOR": Admin,
	"VETERINARIO":   Practitioner,
	"VETERINARIA":   Practitioner,
	"RECEPCIONISTA": FrontDesk,
	"CLIENTE":       Customer,
}

// String returns the bare wire name of the tag.
func (t Tag) String() string {
	switch t {
	case Admin:
		return "ADMIN"
	case Practitioner:
		return "VETERINARIO"
	case FrontDesk:
		return "RECEPCIONISTA"
	case Customer:
		return "CLIENTE"
	default:
		return "UNKNOWN"
	}
}

// Parse maps "VETERINARIO", "ROLE_VETERINARIO", " role_veterinario " and the
// like to the same Tag.
func Parse(raw string) Tag {
	name := strings.ToUpper(strings.TrimSpace(raw))
	name = strings.TrimPrefix(name, namespacePrefix)
	if tag, ok := aliases[name]; ok {
		return tag
	}
	return Unknown
}

// Set is the normalized role set of one identity.
type Set map[Tag]struct{}

// NewSet normalizes raw role strings. Unrecognized strings are dropped.
func NewSet(raw ...string) Set {
	s := make(Set, len(raw))
	for _, r := range raw {
		if tag := Parse(r); tag != Unknown {
			s[tag] = struct{}{}
		}
	}
	return s
}

// Has reports whether the set holds tag.
func (s Set) Has(tag Tag) bool {
	_, ok := s[tag]
	return ok
}

// Tags returns the set members in a stable order.
func (s Set) Tags() []Tag {
	out := make([]Tag, 0, len(s))
	for tag := range s {
		out = append(out, tag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsAdmin reports an Admin tag.
func IsAdmin(s Set) bool { return s.Has(Admin) }

// IsFrontDesk reports a FrontDesk tag.
func IsFrontDesk(s Set) bool { return s.Has(FrontDesk) }

// IsStaff is true for Admin or FrontDesk. These identities load the full
// customer and pet lists. Practitioners are deliberately not staff here; they
// get their own self-scoped path.
func IsStaff(s Set) bool {
	return IsAdmin(s) || IsFrontDesk(s)
}

// IsPractitioner is true when the identity is a practitioner and not staff.
// Such identities are bound to their own appointments.
func IsPractitioner(s Set) bool {
	return s.Has(Practitioner) && !IsStaff(s)
}

// IsCustomer is true for a restricted self-service identity.
func IsCustomer(s Set) bool {
	return s.Has(Customer) && !IsStaff(s) && !s.Has(Practitioner)
}
