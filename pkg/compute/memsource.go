package compute

import (
	"github.com/meridianolap/meridian/pkg/common"
	"github.com/meridianolap/meridian/pkg/util"
)

// MemSegment is an in-memory RowSource standing in for the storage system
// at the selector boundary: a handful of named columns plus a row cursor.
// Slices of one segment share columns (and therefore string dictionaries),
// which is what cross-unit merge relies on.
type MemSegment struct {
	_ctx  *ExecCtx
	_f64  map[string]*Float64Column
	_i64  map[string]*Int64Column
	_str  map[string]*StringColumn
	_rows int
	_cur  int
	_hi   int
}

func NewMemSegment(ctx *ExecCtx) *MemSegment {
	return &MemSegment{
		_ctx: ctx,
		_f64: make(map[string]*Float64Column),
		_i64: make(map[string]*Int64Column),
		_str: make(map[string]*StringColumn),
		_cur: -1,
	}
}

func (seg *MemSegment) trackRows(cnt int) {
	if seg._rows == 0 {
		seg._rows = cnt
		seg._hi = cnt
		return
	}
	util.AssertFunc(seg._rows == cnt)
}

func (seg *MemSegment) AddFloat64Column(name string, vals []common.Nullable[float64]) {
	seg.trackRows(len(vals))
	seg._f64[name] = NewFloat64Column(vals)
}

func (seg *MemSegment) AddInt64Column(name string, vals []common.Nullable[int64]) {
	seg.trackRows(len(vals))
	seg._i64[name] = NewInt64Column(vals)
}

func (seg *MemSegment) AddStringColumn(name string, rows [][]string) {
	seg.trackRows(len(rows))
	seg._str[name] = NewStringColumn(rows)
}

func (seg *MemSegment) RowCount() int {
	return seg._rows
}

// Slice is a cursor over [lo, hi) sharing this segment's columns. Each
// slice is owned by exactly one processing unit.
func (seg *MemSegment) Slice(lo, hi int) *MemSegment {
	util.AssertFunc(0 <= lo && lo <= hi && hi <= seg._rows)
	return &MemSegment{
		_ctx:  seg._ctx,
		_f64:  seg._f64,
		_i64:  seg._i64,
		_str:  seg._str,
		_rows: seg._rows,
		_cur:  lo - 1,
		_hi:   hi,
	}
}

func (seg *MemSegment) Next() bool {
	seg._cur++
	return seg._cur < seg._hi
}

func (seg *MemSegment) MakeValueSelector(field string) ColumnValueSelector {
	if col, has := seg._f64[field]; has {
		return &f64Selector{_seg: seg, _col: col}
	}
	if col, has := seg._i64[field]; has {
		return &i64Selector{_seg: seg, _col: col}
	}
	if col, has := seg._str[field]; has {
		return &strSelector{_seg: seg, _col: col}
	}
	return nil
}

func (seg *MemSegment) MakeDimensionSelector(field string) DimensionSelector {
	if col, has := seg._f64[field]; has {
		return &f64Selector{_seg: seg, _col: col}
	}
	if col, has := seg._i64[field]; has {
		return &i64Selector{_seg: seg, _col: col}
	}
	if col, has := seg._str[field]; has {
		return &strSelector{_seg: seg, _col: col}
	}
	return nullDimSelector{}
}

func (seg *MemSegment) Env() map[string]any {
	env := make(map[string]any)
	sql := seg._ctx.NullMode.SqlCompatible()
	for name, col := range seg._f64 {
		if !col._valid.RowIsValid(uint64(seg._cur)) && sql {
			env[name] = nil
			continue
		}
		env[name] = col._vals[seg._cur]
	}
	for name, col := range seg._i64 {
		if !col._valid.RowIsValid(uint64(seg._cur)) && sql {
			env[name] = nil
			continue
		}
		env[name] = col._vals[seg._cur]
	}
	for name, col := range seg._str {
		ids := col._rows[seg._cur]
		switch len(ids) {
		case 0:
			env[name] = nil
		case 1:
			env[name] = col._dict[ids[0]]
		default:
			vals := make([]string, 0, len(ids))
			for _, id := range ids {
				vals = append(vals, col._dict[id])
			}
			env[name] = vals
		}
	}
	return env
}

type Float64Column struct {
	_vals  []float64
	_valid util.Bitmap
}

func NewFloat64Column(vals []common.Nullable[float64]) *Float64Column {
	col := &Float64Column{
		_vals: make([]float64, len(vals)),
	}
	col._valid.Init(len(vals))
	for i, v := range vals {
		if v.IsNull() {
			col._valid.SetInvalid(uint64(i))
		} else {
			col._vals[i] = v.Val
		}
	}
	return col
}

type Int64Column struct {
	_vals  []int64
	_valid util.Bitmap
}

func NewInt64Column(vals []common.Nullable[int64]) *Int64Column {
	col := &Int64Column{
		_vals: make([]int64, len(vals)),
	}
	col._valid.Init(len(vals))
	for i, v := range vals {
		if v.IsNull() {
			col._valid.SetInvalid(uint64(i))
		} else {
			col._vals[i] = v.Val
		}
	}
	return col
}

// StringColumn interns values into a per-column dictionary; rows hold
// dictionary ids and may carry zero, one, or many values.
type StringColumn struct {
	_rows [][]int32
	_dict []string
	_ids  map[string]int32
}

func NewStringColumn(rows [][]string) *StringColumn {
	col := &StringColumn{
		_ids: make(map[string]int32),
	}
	for _, row := range rows {
		ids := make([]int32, 0, len(row))
		for _, v := range row {
			id, has := col._ids[v]
			if !has {
				id = int32(len(col._dict))
				col._dict = append(col._dict, v)
				col._ids[v] = id
			}
			ids = append(ids, id)
		}
		col._rows = append(col._rows, ids)
	}
	return col
}

type f64Selector struct {
	_seg *MemSegment
	_col *Float64Column
}

func (sel *f64Selector) Float64() float64 {
	return sel._col._vals[sel._seg._cur]
}

func (sel *f64Selector) Int64() int64 {
	return int64(sel._col._vals[sel._seg._cur])
}

func (sel *f64Selector) IsNull() bool {
	if !sel._seg._ctx.NullMode.SqlCompatible() {
		return false
	}
	return !sel._col._valid.RowIsValid(uint64(sel._seg._cur))
}

func (sel *f64Selector) RowCardinality() int {
	return 1
}

func (sel *f64Selector) IDAt(i int) int32 {
	panic("usp")
}

func (sel *f64Selector) LookupName(id int32) string {
	panic("usp")
}

type i64Selector struct {
	_seg *MemSegment
	_col *Int64Column
}

func (sel *i64Selector) Float64() float64 {
	return float64(sel._col._vals[sel._seg._cur])
}

func (sel *i64Selector) Int64() int64 {
	return sel._col._vals[sel._seg._cur]
}

func (sel *i64Selector) IsNull() bool {
	if !sel._seg._ctx.NullMode.SqlCompatible() {
		return false
	}
	return !sel._col._valid.RowIsValid(uint64(sel._seg._cur))
}

func (sel *i64Selector) RowCardinality() int {
	return 1
}

func (sel *i64Selector) IDAt(i int) int32 {
	panic("usp")
}

func (sel *i64Selector) LookupName(id int32) string {
	panic("usp")
}

type strSelector struct {
	_seg *MemSegment
	_col *StringColumn
}

func (sel *strSelector) Float64() float64 {
	//aggregating a string column is a type mismatch
	panic("type mismatch: string column read as float64")
}

func (sel *strSelector) Int64() int64 {
	panic("type mismatch: string column read as int64")
}

func (sel *strSelector) IsNull() bool {
	return len(sel._col._rows[sel._seg._cur]) == 0
}

func (sel *strSelector) RowCardinality() int {
	return len(sel._col._rows[sel._seg._cur])
}

func (sel *strSelector) IDAt(i int) int32 {
	return sel._col._rows[sel._seg._cur][i]
}

func (sel *strSelector) LookupName(id int32) string {
	return sel._col._dict[id]
}
