package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates a referenced record does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// IsNotFound reports whether err is (or wraps) an ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}

// UnknownAttributeError is returned when setting an attribute or relation the
// entity type does not declare.
type UnknownAttributeError struct {
	Entity EntityType
	Name   string
}

func (e UnknownAttributeError) Error() string {
	return fmt.Sprintf("%s has no attribute %q", e.Entity, e.Name)
}
