package translation

import (
	"errors"
	"fmt"
)

// UnresolvedError reports a required foreign key that has no target row.
type UnresolvedError struct {
	ObjectType string // type of the row being written
	Column     string
	DependsOn  string // type the column references
	SourceID   int64
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("required dependency %s.%s -> %s (source id %d) is unresolved",
		e.ObjectType, e.Column, e.DependsOn, e.SourceID)
}

// IsUnresolved checks if an error is an *UnresolvedError.
func IsUnresolved(err error) bool {
	var ue *UnresolvedError
	return errors.As(err, &ue)
}
