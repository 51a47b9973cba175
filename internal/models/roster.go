package models

import "fmt"

// Kind distinguishes the two roster sections.
type Kind string

const (
	KindAgent    Kind = "agent"
	KindCategory Kind = "category"
)

// Valid reports whether k is a known roster kind.
func (k Kind) Valid() bool {
	switch k {
	case KindAgent, KindCategory:
		return true
	default:
		return false
	}
}

// Section returns the roster file key holding entries of this kind.
func (k Kind) Section() string {
	if k == KindCategory {
		return "categories"
	}
	return "agents"
}

// RosterEntry binds a named agent or category to its backing model.
// An empty Model means the entry is misconfigured.
type RosterEntry struct {
	Name  string
	Kind  Kind
	Model string
}

// ID returns the "<kind>:<name>" identifier used by status records.
func (e RosterEntry) ID() string {
	return fmt.Sprintf("%s:%s", e.Kind, e.Name)
}

// HasModel reports whether the entry references a model at all.
func (e RosterEntry) HasModel() bool {
	return e.Model != ""
}
