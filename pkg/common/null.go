package common

import "fmt"

// NullMode decides what an absent input value means. In DefaultReplacement
// mode absent collapses to the kind's zero. In SQLCompatible mode values
// are tri-state: present, or logically null.
type NullMode int

const (
	DefaultReplacement NullMode = iota
	SQLCompatible
)

func (nm NullMode) String() string {
	switch nm {
	case DefaultReplacement:
		return "default"
	case SQLCompatible:
		return "sql"
	default:
		panic("usp")
	}
}

func (nm NullMode) SqlCompatible() bool {
	return nm == SQLCompatible
}

func ParseNullMode(s string) (NullMode, error) {
	switch s {
	case "", "default":
		return DefaultReplacement, nil
	case "sql":
		return SQLCompatible, nil
	default:
		return DefaultReplacement, fmt.Errorf("unknown null mode %q", s)
	}
}

// Nullable carries one value of a grouping dimension or aggregation input.
// The zero Nullable is null.
type Nullable[T any] struct {
	Val   T
	Valid bool
}

func SomeVal[T any](v T) Nullable[T] {
	return Nullable[T]{Val: v, Valid: true}
}

func NullVal[T any]() Nullable[T] {
	return Nullable[T]{}
}

func (n Nullable[T]) IsNull() bool {
	return !n.Valid
}
