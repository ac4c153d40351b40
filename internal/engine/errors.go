package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDivisionByZero is returned by formulas whose denominator is zero.
var ErrDivisionByZero = errors.New("division by zero")

// ErrNonFinite marks a formula result that is NaN or infinite.
var ErrNonFinite = errors.New("non-finite result")

// CycleError is returned by Schema.Register when the new dependency edges
// would close a cycle. Cycle lists the nodes as "type.name".
type CycleError struct {
	Field string
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("registering %s creates a dependency cycle: %s", e.Field, strings.Join(e.Cycle, " -> "))
}

// DuplicateFieldError is returned when a field name is registered twice for
// the same entity type or collides with a declared attribute or relation.
type DuplicateFieldError struct {
	Type  string
	Field string
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("field %s.%s already registered", e.Type, e.Field)
}

// UnknownTypeError reports a reference to an undeclared entity type.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("entity type %q not declared", e.Type)
}

// UnknownPathError reports a dependency path that cannot be resolved against
// the declared types.
type UnknownPathError struct {
	Type   string
	Field  string
	Path   string
	Reason string
}

func (e *UnknownPathError) Error() string {
	return fmt.Sprintf("field %s.%s: dependency %q: %s", e.Type, e.Field, e.Path, e.Reason)
}

// UnknownFieldError is returned by Engine.Get for names the graph does not know.
type UnknownFieldError struct {
	Type  string
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %s.%s", e.Type, e.Field)
}

// UndefinedPathError explains why a value is undefined: a relation hop or an
// attribute along a dependency path is unset. It is carried by Value.Reason
// and never returned as an error from Get.
type UndefinedPathError struct {
	Ref     Ref
	Path    string
	Segment string
}

func (e *UndefinedPathError) Error() string {
	return fmt.Sprintf("%s: %q is unset in path %q", e.Ref, e.Segment, e.Path)
}

// UndefinedResultError is returned by Engine.Get when a field's inputs are
// defined but its formula cannot produce a finite number, or when one of its
// dependencies failed that way.
type UndefinedResultError struct {
	Ref   Ref
	Field string
	Err   error
}

func (e *UndefinedResultError) Error() string {
	return fmt.Sprintf("%s.%s is undefined: %v", e.Ref, e.Field, e.Err)
}

func (e *UndefinedResultError) Unwrap() error { return e.Err }

// IsUndefinedResult reports whether err (or any error in its chain) is an
// UndefinedResultError.
func IsUndefinedResult(err error) bool {
	var ue *UndefinedResultError
	return errors.As(err, &ue)
}

// IsCycle reports whether err is a registration cycle.
func IsCycle(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}

// IsDuplicateField reports whether err is a duplicate registration.
func IsDuplicateField(err error) bool {
	var de *DuplicateFieldError
	return errors.As(err, &de)
}
