// Copyright 2024-2025 meridian authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package compute

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/huandu/go-clone"

	"github.com/meridianolap/meridian/pkg/common"
	"github.com/meridianolap/meridian/pkg/expr"
	"github.com/meridianolap/meridian/pkg/util"
)

// Aggregator is the heap-resident running accumulator.
type Aggregator interface {
	Aggregate()
	Get() any
	Reset()
}

// BufferAggregator keeps its state at a caller-owned buffer offset. Init
// writes the identity element; Aggregate folds the selector's current
// value in place; Get reads without mutating. For the same input stream a
// BufferAggregator and an Aggregator from the same factory must produce
// bit-identical results.
type BufferAggregator interface {
	Init(buf []byte, pos int)
	Aggregate(buf []byte, pos int)
	Get(buf []byte, pos int) any
	StateSize() int
}

// AggregateCombiner folds many already-aggregated partial values without
// boxing each one.
type AggregateCombiner interface {
	Reset(sel ColumnValueSelector)
	Fold(sel ColumnValueSelector)
	Get() any
}

// AggregatorFactory is the immutable, plan-time description of one
// aggregation. Factories are shared read-only across all processing
// units; every transition below is a pure construction.
type AggregatorFactory interface {
	Name() string
	FieldName() string
	Expression() string
	Kind() common.ValueKind
	//resolves the input value stream, falling back to the op's identity
	//sentinel when the column does not exist
	Selector(ctx *ExecCtx, src ColumnSource) (ColumnValueSelector, error)
	Factorize(ctx *ExecCtx, sel ColumnValueSelector) Aggregator
	FactorizeBuffered(ctx *ExecCtx, sel ColumnValueSelector) BufferAggregator
	//associative, commutative; nil propagates: combine(nil,x)=x
	Combine(lhs, rhs any) any
	//factory for the merge stage: consumes this factory's own output
	CombiningFactory() AggregatorFactory
	RequiredColumns() []AggregatorFactory
	//identity for simple numeric aggregations; extension point for
	//aggregators whose accumulator differs from the reported type
	FinalizeComputation(v any) any
	CacheKey() []byte
	MakeAggregateCombiner() AggregateCombiner
	StateSize() int

	//combine raw buffer-resident partial states in place
	combineState(dst []byte, dstPos int, src []byte, srcPos int)
}

// SimpleAggregatorFactory is the min/max/sum family over the numeric
// kinds. Exactly one of fieldName and expression drives value
// production; the expression compiles lazily against the injected macro
// table.
type SimpleAggregatorFactory[T Numeric] struct {
	_name       string
	_fieldName  string
	_expression string
	_macros     *expr.MacroTable
	_kind       common.ValueKind
	_op         aggrOp[T]
	_cacheTag   byte

	_compileOnce sync.Once
	_compiled    *expr.Compiled
	_compileErr  error
}

func newSimpleFactory[T Numeric](
	name string,
	fieldName string,
	expression string,
	macros *expr.MacroTable,
	kind common.ValueKind,
	op aggrOp[T],
	cacheTag byte,
) (*SimpleAggregatorFactory[T], error) {
	util.AssertFunc(kind.IsNumeric())
	if name == "" {
		return nil, fmt.Errorf("%s aggregator: output name is required", op._name)
	}
	if (fieldName == "") == (expression == "") {
		return nil, fmt.Errorf("%s aggregator %q: exactly one of fieldName and expression must be set", op._name, name)
	}
	return &SimpleAggregatorFactory[T]{
		_name:       name,
		_fieldName:  fieldName,
		_expression: expression,
		_macros:     macros,
		_kind:       kind,
		_op:         op,
		_cacheTag:   cacheTag,
	}, nil
}

func (f *SimpleAggregatorFactory[T]) Name() string {
	return f._name
}

func (f *SimpleAggregatorFactory[T]) FieldName() string {
	return f._fieldName
}

func (f *SimpleAggregatorFactory[T]) Expression() string {
	return f._expression
}

func (f *SimpleAggregatorFactory[T]) Kind() common.ValueKind {
	return f._kind
}

func (f *SimpleAggregatorFactory[T]) compile() (*expr.Compiled, error) {
	f._compileOnce.Do(func() {
		f._compiled, f._compileErr = expr.Compile(f._expression, f._macros)
	})
	return f._compiled, f._compileErr
}

func (f *SimpleAggregatorFactory[T]) Selector(ctx *ExecCtx, src ColumnSource) (ColumnValueSelector, error) {
	if f._expression != "" {
		prog, err := f.compile()
		if err != nil {
			return nil, err
		}
		return &exprSelector{_prog: prog, _src: src}, nil
	}
	sel := src.MakeValueSelector(f._fieldName)
	if sel == nil {
		//absent column: the identity sentinel keeps an all-absent group
		//at the aggregation's identity element
		return &constSelector[T]{_val: f._op._identity}, nil
	}
	return sel, nil
}

func (f *SimpleAggregatorFactory[T]) Factorize(ctx *ExecCtx, sel ColumnValueSelector) Aggregator {
	return &simpleAggregator[T]{
		_ctx: ctx,
		_sel: sel,
		_op:  f._op,
		_val: f._op._identity,
	}
}

func (f *SimpleAggregatorFactory[T]) FactorizeBuffered(ctx *ExecCtx, sel ColumnValueSelector) BufferAggregator {
	return &simpleBufferAggregator[T]{
		_ctx: ctx,
		_sel: sel,
		_op:  f._op,
	}
}

func (f *SimpleAggregatorFactory[T]) Combine(lhs, rhs any) any {
	if lhs == nil {
		return rhs
	}
	if rhs == nil {
		return lhs
	}
	return f._op._fold(lhs.(T), rhs.(T))
}

func (f *SimpleAggregatorFactory[T]) CombiningFactory() AggregatorFactory {
	nf := clone.Clone(f).(*SimpleAggregatorFactory[T])
	nf._fieldName = f._name
	nf._expression = ""
	nf._compileOnce = sync.Once{}
	nf._compiled = nil
	nf._compileErr = nil
	return nf
}

func (f *SimpleAggregatorFactory[T]) RequiredColumns() []AggregatorFactory {
	nf := clone.Clone(f).(*SimpleAggregatorFactory[T])
	if f._fieldName != "" {
		nf._name = f._fieldName
	}
	return []AggregatorFactory{nf}
}

func (f *SimpleAggregatorFactory[T]) FinalizeComputation(v any) any {
	return v
}

func (f *SimpleAggregatorFactory[T]) CacheKey() []byte {
	return buildCacheKey(f._cacheTag, f._fieldName, f._expression)
}

func (f *SimpleAggregatorFactory[T]) MakeAggregateCombiner() AggregateCombiner {
	return &simpleAggregateCombiner[T]{_op: f._op}
}

func (f *SimpleAggregatorFactory[T]) StateSize() int {
	var val T
	return int(unsafe.Sizeof(val))
}

func (f *SimpleAggregatorFactory[T]) combineState(dst []byte, dstPos int, src []byte, srcPos int) {
	util.AssertFunc(dstPos+f.StateSize() <= len(dst))
	util.AssertFunc(srcPos+f.StateSize() <= len(src))
	dv := util.Load2[T](util.BytesSliceToPointer(dst), dstPos)
	sv := util.Load2[T](util.BytesSliceToPointer(src), srcPos)
	util.Store2[T](f._op._fold(dv, sv), util.BytesSliceToPointer(dst), dstPos)
}

func (f *SimpleAggregatorFactory[T]) String() string {
	return fmt.Sprintf("%s{name=%q, fieldName=%q, expression=%q}",
		f._op._name, f._name, f._fieldName, f._expression)
}

type simpleAggregator[T Numeric] struct {
	_ctx *ExecCtx
	_sel ColumnValueSelector
	_op  aggrOp[T]
	_val T
}

func (agg *simpleAggregator[T]) Aggregate() {
	v, ok := readValue[T](agg._ctx, agg._sel)
	if !ok {
		return
	}
	agg._val = agg._op._fold(agg._val, v)
}

func (agg *simpleAggregator[T]) Get() any {
	return agg._val
}

func (agg *simpleAggregator[T]) Reset() {
	agg._val = agg._op._identity
}

type simpleBufferAggregator[T Numeric] struct {
	_ctx *ExecCtx
	_sel ColumnValueSelector
	_op  aggrOp[T]
}

func (agg *simpleBufferAggregator[T]) StateSize() int {
	var val T
	return int(unsafe.Sizeof(val))
}

func (agg *simpleBufferAggregator[T]) checkState(buf []byte, pos int) {
	util.AssertFunc(pos >= 0 && pos+agg.StateSize() <= len(buf))
}

func (agg *simpleBufferAggregator[T]) Init(buf []byte, pos int) {
	agg.checkState(buf, pos)
	util.Store2[T](agg._op._identity, util.BytesSliceToPointer(buf), pos)
}

func (agg *simpleBufferAggregator[T]) Aggregate(buf []byte, pos int) {
	agg.checkState(buf, pos)
	v, ok := readValue[T](agg._ctx, agg._sel)
	if !ok {
		return
	}
	ptr := util.BytesSliceToPointer(buf)
	cur := util.Load2[T](ptr, pos)
	util.Store2[T](agg._op._fold(cur, v), ptr, pos)
}

func (agg *simpleBufferAggregator[T]) Get(buf []byte, pos int) any {
	agg.checkState(buf, pos)
	return util.Load2[T](util.BytesSliceToPointer(buf), pos)
}

type simpleAggregateCombiner[T Numeric] struct {
	_op  aggrOp[T]
	_val T
}

func (cmb *simpleAggregateCombiner[T]) Reset(sel ColumnValueSelector) {
	cmb._val = selectorValue[T](sel)
}

func (cmb *simpleAggregateCombiner[T]) Fold(sel ColumnValueSelector) {
	cmb._val = cmb._op._fold(cmb._val, selectorValue[T](sel))
}

func (cmb *simpleAggregateCombiner[T]) Get() any {
	return cmb._val
}

// Factory constructors, one per (operation, kind) family.

func NewFloat64MaxFactory(name, fieldName, expression string, macros *expr.MacroTable) (AggregatorFactory, error) {
	return newSimpleFactory[float64](name, fieldName, expression, macros, common.VK_FLOAT64, maxFloat64Op(), cacheTypeFloat64Max)
}

func NewFloat64MinFactory(name, fieldName, expression string, macros *expr.MacroTable) (AggregatorFactory, error) {
	return newSimpleFactory[float64](name, fieldName, expression, macros, common.VK_FLOAT64, minFloat64Op(), cacheTypeFloat64Min)
}

func NewFloat64SumFactory(name, fieldName, expression string, macros *expr.MacroTable) (AggregatorFactory, error) {
	return newSimpleFactory[float64](name, fieldName, expression, macros, common.VK_FLOAT64, sumOp[float64](), cacheTypeFloat64Sum)
}

func NewFloat32MaxFactory(name, fieldName, expression string, macros *expr.MacroTable) (AggregatorFactory, error) {
	return newSimpleFactory[float32](name, fieldName, expression, macros, common.VK_FLOAT32, maxFloat32Op(), cacheTypeFloat32Max)
}

func NewFloat32MinFactory(name, fieldName, expression string, macros *expr.MacroTable) (AggregatorFactory, error) {
	return newSimpleFactory[float32](name, fieldName, expression, macros, common.VK_FLOAT32, minFloat32Op(), cacheTypeFloat32Min)
}

func NewFloat32SumFactory(name, fieldName, expression string, macros *expr.MacroTable) (AggregatorFactory, error) {
	return newSimpleFactory[float32](name, fieldName, expression, macros, common.VK_FLOAT32, sumOp[float32](), cacheTypeFloat32Sum)
}

func NewInt64MaxFactory(name, fieldName, expression string, macros *expr.MacroTable) (AggregatorFactory, error) {
	return newSimpleFactory[int64](name, fieldName, expression, macros, common.VK_INT64, maxInt64Op(), cacheTypeInt64Max)
}

func NewInt64MinFactory(name, fieldName, expression string, macros *expr.MacroTable) (AggregatorFactory, error) {
	return newSimpleFactory[int64](name, fieldName, expression, macros, common.VK_INT64, minInt64Op(), cacheTypeInt64Min)
}

func NewInt64SumFactory(name, fieldName, expression string, macros *expr.MacroTable) (AggregatorFactory, error) {
	return newSimpleFactory[int64](name, fieldName, expression, macros, common.VK_INT64, sumOp[int64](), cacheTypeInt64Sum)
}

func NewInt32MaxFactory(name, fieldName, expression string, macros *expr.MacroTable) (AggregatorFactory, error) {
	return newSimpleFactory[int32](name, fieldName, expression, macros, common.VK_INT32, maxInt32Op(), cacheTypeInt32Max)
}

func NewInt32MinFactory(name, fieldName, expression string, macros *expr.MacroTable) (AggregatorFactory, error) {
	return newSimpleFactory[int32](name, fieldName, expression, macros, common.VK_INT32, minInt32Op(), cacheTypeInt32Min)
}

func NewInt32SumFactory(name, fieldName, expression string, macros *expr.MacroTable) (AggregatorFactory, error) {
	return newSimpleFactory[int32](name, fieldName, expression, macros, common.VK_INT32, sumOp[int32](), cacheTypeInt32Sum)
}
