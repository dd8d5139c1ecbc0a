package ir

import "strconv"

// ID is a target-side primary key that may be unresolved.
//
// Storage and payload rows keep the "0 means absent" convention; ID wraps
// it at API boundaries so the sentinel cannot leak into arithmetic.
type ID struct {
	v int64
}

// Unresolved is the zero ID.
var Unresolved = ID{}

// NewID wraps a storage key. Non-positive keys are unresolved.
func NewID(v int64) ID {
	if v <= 0 {
		return Unresolved
	}
	return ID{v: v}
}

// Value returns the key and whether it is resolved.
func (id ID) Value() (int64, bool) {
	return id.v, id.v > 0
}

// Resolved reports whether the ID points at a row.
func (id ID) Resolved() bool {
	return id.v > 0
}

// OrZero returns the key, or 0 when unresolved. Use only when writing a
// foreign key column.
func (id ID) OrZero() int64 {
	return id.v
}

func (id ID) String() string {
	if id.v <= 0 {
		return "unresolved"
	}
	return strconv.FormatInt(id.v, 10)
}
