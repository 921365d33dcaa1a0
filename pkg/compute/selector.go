package compute

import (
	"github.com/google/uuid"

	"github.com/meridianolap/meridian/pkg/common"
	"github.com/meridianolap/meridian/pkg/expr"
)

// ExecCtx carries the per-query execution parameters every codec and
// aggregator read. The null mode is fixed at construction; changing it
// mid-query is unsupported.
type ExecCtx struct {
	NullMode common.NullMode
	QueryId  uuid.UUID
}

func NewExecCtx(mode common.NullMode) *ExecCtx {
	return &ExecCtx{
		NullMode: mode,
		QueryId:  uuid.New(),
	}
}

// ColumnValueSelector yields the current row's value from an external
// value source. IsNull is meaningful only under SQL-compatible null
// handling; callers in default-replacement mode must treat it as false.
type ColumnValueSelector interface {
	Float64() float64
	Int64() int64
	IsNull() bool
}

// DimensionSelector extends the selector contract for grouping dimensions:
// a row may carry several values (multi-value string dimensions), each
// addressed by a dictionary id owned by the source.
type DimensionSelector interface {
	ColumnValueSelector
	RowCardinality() int
	IDAt(i int) int32
	LookupName(id int32) string
}

// ColumnSource resolves selectors for a processing unit. The core never
// sees a concrete storage format behind it.
type ColumnSource interface {
	//nil when the column does not exist
	MakeValueSelector(field string) ColumnValueSelector
	MakeDimensionSelector(field string) DimensionSelector
	//current-row environment for expression evaluation
	Env() map[string]any
}

// RowSource is a ColumnSource with a row cursor, owned by exactly one
// processing unit.
type RowSource interface {
	ColumnSource
	Next() bool
}

type constSelector[T Numeric] struct {
	_val T
}

func (sel *constSelector[T]) Float64() float64 {
	return float64(sel._val)
}

func (sel *constSelector[T]) Int64() int64 {
	return int64(sel._val)
}

func (sel *constSelector[T]) IsNull() bool {
	return false
}

// nullDimSelector stands in for an absent dimension column. Every row is
// a single logical null.
type nullDimSelector struct{}

func (nullDimSelector) Float64() float64 {
	panic("usp")
}

func (nullDimSelector) Int64() int64 {
	panic("usp")
}

func (nullDimSelector) IsNull() bool {
	return true
}

func (nullDimSelector) RowCardinality() int {
	return 0
}

func (nullDimSelector) IDAt(i int) int32 {
	panic("usp")
}

func (nullDimSelector) LookupName(id int32) string {
	return ""
}

// exprSelector evaluates a compiled expression against the source's
// current-row environment. A nil program result reads as null.
type exprSelector struct {
	_prog *expr.Compiled
	_src  ColumnSource
}

func (sel *exprSelector) Float64() float64 {
	v, ok, err := sel._prog.EvalFloat64(sel._src.Env())
	if err != nil {
		panic(err)
	}
	if !ok {
		return 0
	}
	return v
}

func (sel *exprSelector) Int64() int64 {
	v, ok, err := sel._prog.EvalInt64(sel._src.Env())
	if err != nil {
		panic(err)
	}
	if !ok {
		return 0
	}
	return v
}

func (sel *exprSelector) IsNull() bool {
	_, ok, err := sel._prog.EvalFloat64(sel._src.Env())
	if err != nil {
		panic(err)
	}
	return !ok
}
