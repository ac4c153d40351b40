package engine

import (
	"fmt"
	"strconv"
)

// Ref identifies an entity instance.
type Ref struct {
	Type string
	ID   string
}

func (r Ref) String() string { return r.Type + "/" + r.ID }

// Entity is the read-only view of a record the engine evaluates against. The
// engine never writes raw attributes.
type Entity interface {
	Ref() Ref
	// Attribute returns a raw numeric attribute; false when unset.
	Attribute(name string) (float64, bool)
	// Related follows a single relation; false when unset.
	Related(relation string) (Entity, bool)
	// Members lists a collection relation in insertion order.
	Members(collection string) []Entity
}

type valueKind uint8

const (
	kindUndefined valueKind = iota
	kindNumber
	kindEntities
)

// Value is the tagged result of a derived field: a number, an ordered view of
// entities, or undefined with the reason it could not be computed.
type Value struct {
	kind     valueKind
	num      float64
	entities []Entity
	reason   error
}

// Number wraps a numeric result.
func Number(f float64) Value { return Value{kind: kindNumber, num: f} }

// EntityList wraps an ordered view. The slice is copied.
func EntityList(list []Entity) Value {
	cpy := make([]Entity, len(list))
	copy(cpy, list)
	return Value{kind: kindEntities, entities: cpy}
}

// Undefined returns a value that could not be computed because of reason.
func Undefined(reason error) Value { return Value{reason: reason} }

// Defined reports whether the value holds a result.
func (v Value) Defined() bool { return v.kind != kindUndefined }

// Float returns the numeric result.
func (v Value) Float() (float64, bool) {
	if v.kind != kindNumber {
		return 0, false
	}
	return v.num, true
}

// Entities returns a copy of an ordered view.
func (v Value) Entities() []Entity {
	if v.kind != kindEntities {
		return nil
	}
	out := make([]Entity, len(v.entities))
	copy(out, v.entities)
	return out
}

// Reason explains an undefined value; nil otherwise.
func (v Value) Reason() error { return v.reason }

func (v Value) String() string {
	switch v.kind {
	case kindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case kindEntities:
		refs := make([]string, len(v.entities))
		for i, e := range v.entities {
			refs[i] = e.Ref().String()
		}
		return fmt.Sprint(refs)
	default:
		return "undefined"
	}
}
