// README: Shared identifier type used across modules.
package types

// ID is an opaque identifier assigned by the travel backend (trip, host or match id).
type ID string

func (id ID) String() string { return string(id) }

// IsZero reports whether the id is empty.
func (id ID) IsZero() bool { return id == "" }
