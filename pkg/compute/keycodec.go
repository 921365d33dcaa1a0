package compute

import (
	"github.com/meridianolap/meridian/pkg/common"
	"github.com/meridianolap/meridian/pkg/util"
)

// Datum is one grouping dimension value: a closed tagged variant over the
// supported value kinds. Numeric values live in F64/I64; string and
// complex values enter the key as dictionary ids owned by their selector.
type Datum struct {
	Kind common.ValueKind
	Null bool
	F64  float64
	I64  int64
	ID   int32
}

func NullDatum(kind common.ValueKind) Datum {
	return Datum{Kind: kind, Null: true}
}

func Float64Datum(v float64) Datum {
	return Datum{Kind: common.VK_FLOAT64, F64: v}
}

func Float32Datum(v float32) Datum {
	return Datum{Kind: common.VK_FLOAT32, F64: float64(v)}
}

func Int64Datum(v int64) Datum {
	return Datum{Kind: common.VK_INT64, I64: v}
}

func Int32Datum(v int32) Datum {
	return Datum{Kind: common.VK_INT32, I64: int64(v)}
}

func IdDatum(kind common.ValueKind, id int32) Datum {
	return Datum{Kind: kind, ID: id}
}

// KeyColumnCodec encodes one dimension's value into its fixed-width slot
// of the grouping key and decodes it back. Slot layout: one null-flag
// byte, then the value region in native byte order. Encoding null always
// zero-fills the value region so raw-byte comparison over keys stays
// deterministic.
type KeyColumnCodec interface {
	Kind() common.ValueKind
	//slot width including the null-flag byte
	Width() int
	Encode(key []byte, pos int, v Datum)
	Decode(key []byte, pos int) Datum
	ExtractFromSelector(ctx *ExecCtx, sel ColumnValueSelector) Datum
	//write the row's value at rowValIdx as an additional bucket.
	//single-valued kinds return false.
	AppendRowToKeyIfMultiValued(key []byte, pos int, sel ColumnValueSelector, rowValIdx int) bool
}

func CodecForKind(kind common.ValueKind) KeyColumnCodec {
	switch kind {
	case common.VK_FLOAT32:
		return float32Codec{}
	case common.VK_FLOAT64:
		return float64Codec{}
	case common.VK_INT32:
		return int32Codec{}
	case common.VK_INT64:
		return int64Codec{}
	case common.VK_STRING:
		return stringCodec{}
	case common.VK_COMPLEX:
		return complexCodec{}
	default:
		panic("usp")
	}
}

func checkSlot(key []byte, pos int, width int, kind common.ValueKind, v Datum) {
	util.AssertFunc(pos >= 0 && pos+width <= len(key))
	util.AssertFunc(v.Kind == kind)
}

const (
	flagNull    byte = 1
	flagPresent byte = 0
)

type float64Codec struct{}

func (float64Codec) Kind() common.ValueKind {
	return common.VK_FLOAT64
}

func (float64Codec) Width() int {
	return 1 + common.VK_FLOAT64.PhySize()
}

func (c float64Codec) Encode(key []byte, pos int, v Datum) {
	checkSlot(key, pos, c.Width(), common.VK_FLOAT64, v)
	ptr := util.BytesSliceToPointer(key)
	if v.Null {
		key[pos] = flagNull
		util.Store2[float64](0, ptr, pos+1)
	} else {
		key[pos] = flagPresent
		util.Store2[float64](v.F64, ptr, pos+1)
	}
}

func (c float64Codec) Decode(key []byte, pos int) Datum {
	util.AssertFunc(pos >= 0 && pos+c.Width() <= len(key))
	if key[pos] == flagNull {
		return NullDatum(common.VK_FLOAT64)
	}
	return Float64Datum(util.Load2[float64](util.BytesSliceToPointer(key), pos+1))
}

func (float64Codec) ExtractFromSelector(ctx *ExecCtx, sel ColumnValueSelector) Datum {
	if ctx.NullMode.SqlCompatible() && sel.IsNull() {
		return NullDatum(common.VK_FLOAT64)
	}
	return Float64Datum(sel.Float64())
}

func (float64Codec) AppendRowToKeyIfMultiValued(key []byte, pos int, sel ColumnValueSelector, rowValIdx int) bool {
	//double columns are single-valued by construction
	return false
}

type float32Codec struct{}

func (float32Codec) Kind() common.ValueKind {
	return common.VK_FLOAT32
}

func (float32Codec) Width() int {
	return 1 + common.VK_FLOAT32.PhySize()
}

func (c float32Codec) Encode(key []byte, pos int, v Datum) {
	checkSlot(key, pos, c.Width(), common.VK_FLOAT32, v)
	ptr := util.BytesSliceToPointer(key)
	if v.Null {
		key[pos] = flagNull
		util.Store2[float32](0, ptr, pos+1)
	} else {
		key[pos] = flagPresent
		util.Store2[float32](float32(v.F64), ptr, pos+1)
	}
}

func (c float32Codec) Decode(key []byte, pos int) Datum {
	util.AssertFunc(pos >= 0 && pos+c.Width() <= len(key))
	if key[pos] == flagNull {
		return NullDatum(common.VK_FLOAT32)
	}
	return Float32Datum(util.Load2[float32](util.BytesSliceToPointer(key), pos+1))
}

func (float32Codec) ExtractFromSelector(ctx *ExecCtx, sel ColumnValueSelector) Datum {
	if ctx.NullMode.SqlCompatible() && sel.IsNull() {
		return NullDatum(common.VK_FLOAT32)
	}
	return Float32Datum(float32(sel.Float64()))
}

func (float32Codec) AppendRowToKeyIfMultiValued(key []byte, pos int, sel ColumnValueSelector, rowValIdx int) bool {
	return false
}

type int64Codec struct{}

func (int64Codec) Kind() common.ValueKind {
	return common.VK_INT64
}

func (int64Codec) Width() int {
	return 1 + common.VK_INT64.PhySize()
}

func (c int64Codec) Encode(key []byte, pos int, v Datum) {
	checkSlot(key, pos, c.Width(), common.VK_INT64, v)
	ptr := util.BytesSliceToPointer(key)
	if v.Null {
		key[pos] = flagNull
		util.Store2[int64](0, ptr, pos+1)
	} else {
		key[pos] = flagPresent
		util.Store2[int64](v.I64, ptr, pos+1)
	}
}

func (c int64Codec) Decode(key []byte, pos int) Datum {
	util.AssertFunc(pos >= 0 && pos+c.Width() <= len(key))
	if key[pos] == flagNull {
		return NullDatum(common.VK_INT64)
	}
	return Int64Datum(util.Load2[int64](util.BytesSliceToPointer(key), pos+1))
}

func (int64Codec) ExtractFromSelector(ctx *ExecCtx, sel ColumnValueSelector) Datum {
	if ctx.NullMode.SqlCompatible() && sel.IsNull() {
		return NullDatum(common.VK_INT64)
	}
	return Int64Datum(sel.Int64())
}

func (int64Codec) AppendRowToKeyIfMultiValued(key []byte, pos int, sel ColumnValueSelector, rowValIdx int) bool {
	return false
}

type int32Codec struct{}

func (int32Codec) Kind() common.ValueKind {
	return common.VK_INT32
}

func (int32Codec) Width() int {
	return 1 + common.VK_INT32.PhySize()
}

func (c int32Codec) Encode(key []byte, pos int, v Datum) {
	checkSlot(key, pos, c.Width(), common.VK_INT32, v)
	ptr := util.BytesSliceToPointer(key)
	if v.Null {
		key[pos] = flagNull
		util.Store2[int32](0, ptr, pos+1)
	} else {
		key[pos] = flagPresent
		util.Store2[int32](int32(v.I64), ptr, pos+1)
	}
}

func (c int32Codec) Decode(key []byte, pos int) Datum {
	util.AssertFunc(pos >= 0 && pos+c.Width() <= len(key))
	if key[pos] == flagNull {
		return NullDatum(common.VK_INT32)
	}
	return Int32Datum(util.Load2[int32](util.BytesSliceToPointer(key), pos+1))
}

func (int32Codec) ExtractFromSelector(ctx *ExecCtx, sel ColumnValueSelector) Datum {
	if ctx.NullMode.SqlCompatible() && sel.IsNull() {
		return NullDatum(common.VK_INT32)
	}
	return Int32Datum(int32(sel.Int64()))
}

func (int32Codec) AppendRowToKeyIfMultiValued(key []byte, pos int, sel ColumnValueSelector, rowValIdx int) bool {
	return false
}

// stringCodec keys on the selector-owned dictionary id. Rows may be
// multi-valued; successive values fan out into additional buckets.
type stringCodec struct{}

func (stringCodec) Kind() common.ValueKind {
	return common.VK_STRING
}

func (stringCodec) Width() int {
	return 1 + common.VK_STRING.PhySize()
}

func (c stringCodec) Encode(key []byte, pos int, v Datum) {
	checkSlot(key, pos, c.Width(), common.VK_STRING, v)
	ptr := util.BytesSliceToPointer(key)
	if v.Null {
		key[pos] = flagNull
		util.Store2[int32](0, ptr, pos+1)
	} else {
		key[pos] = flagPresent
		util.Store2[int32](v.ID, ptr, pos+1)
	}
}

func (c stringCodec) Decode(key []byte, pos int) Datum {
	util.AssertFunc(pos >= 0 && pos+c.Width() <= len(key))
	if key[pos] == flagNull {
		return NullDatum(common.VK_STRING)
	}
	return IdDatum(common.VK_STRING, util.Load2[int32](util.BytesSliceToPointer(key), pos+1))
}

func (stringCodec) ExtractFromSelector(ctx *ExecCtx, sel ColumnValueSelector) Datum {
	dim, ok := sel.(DimensionSelector)
	util.AssertFunc(ok)
	if dim.RowCardinality() == 0 {
		return NullDatum(common.VK_STRING)
	}
	return IdDatum(common.VK_STRING, dim.IDAt(0))
}

func (c stringCodec) AppendRowToKeyIfMultiValued(key []byte, pos int, sel ColumnValueSelector, rowValIdx int) bool {
	dim, ok := sel.(DimensionSelector)
	util.AssertFunc(ok)
	if rowValIdx >= dim.RowCardinality() {
		return false
	}
	c.Encode(key, pos, IdDatum(common.VK_STRING, dim.IDAt(rowValIdx)))
	return true
}

// complexCodec treats complex values as opaque interned objects: the
// selector hands out a stable id per distinct value, single-valued.
type complexCodec struct{}

func (complexCodec) Kind() common.ValueKind {
	return common.VK_COMPLEX
}

func (complexCodec) Width() int {
	return 1 + common.VK_COMPLEX.PhySize()
}

func (c complexCodec) Encode(key []byte, pos int, v Datum) {
	checkSlot(key, pos, c.Width(), common.VK_COMPLEX, v)
	ptr := util.BytesSliceToPointer(key)
	if v.Null {
		key[pos] = flagNull
		util.Store2[int32](0, ptr, pos+1)
	} else {
		key[pos] = flagPresent
		util.Store2[int32](v.ID, ptr, pos+1)
	}
}

func (c complexCodec) Decode(key []byte, pos int) Datum {
	util.AssertFunc(pos >= 0 && pos+c.Width() <= len(key))
	if key[pos] == flagNull {
		return NullDatum(common.VK_COMPLEX)
	}
	return IdDatum(common.VK_COMPLEX, util.Load2[int32](util.BytesSliceToPointer(key), pos+1))
}

func (complexCodec) ExtractFromSelector(ctx *ExecCtx, sel ColumnValueSelector) Datum {
	dim, ok := sel.(DimensionSelector)
	util.AssertFunc(ok)
	if dim.RowCardinality() == 0 {
		return NullDatum(common.VK_COMPLEX)
	}
	return IdDatum(common.VK_COMPLEX, dim.IDAt(0))
}

func (complexCodec) AppendRowToKeyIfMultiValued(key []byte, pos int, sel ColumnValueSelector, rowValIdx int) bool {
	return false
}

// GroupDim names one grouping dimension: the source column it reads and
// the output name its decoded value is reported under.
type GroupDim struct {
	OutputName string
	Field      string
	Kind       common.ValueKind
}

// KeyLayout is the fixed layout of the grouping key buffer: the
// concatenation of per-dimension slots in dimension order. Built once per
// query and stable for its lifetime, spill included.
type KeyLayout struct {
	_dims    []GroupDim
	_codecs  []KeyColumnCodec
	_offsets []int
	_width   int
}

func NewKeyLayout(dims []GroupDim) *KeyLayout {
	kl := &KeyLayout{
		_dims: dims,
	}
	for _, dim := range dims {
		codec := CodecForKind(dim.Kind)
		kl._codecs = append(kl._codecs, codec)
		kl._offsets = append(kl._offsets, kl._width)
		kl._width += codec.Width()
	}
	return kl
}

func (kl *KeyLayout) DimCount() int {
	return len(kl._dims)
}

func (kl *KeyLayout) Dim(i int) GroupDim {
	return kl._dims[i]
}

func (kl *KeyLayout) Codec(i int) KeyColumnCodec {
	return kl._codecs[i]
}

func (kl *KeyLayout) Offset(i int) int {
	return kl._offsets[i]
}

func (kl *KeyLayout) Width() int {
	return kl._width
}

func (kl *KeyLayout) NewKeyBuffer() []byte {
	return make([]byte, kl._width)
}

// DecodeRow materializes one output row from raw key bytes. Nulls decode
// to nil under SQL-compatible handling and to the kind's default
// replacement otherwise.
func (kl *KeyLayout) DecodeRow(ctx *ExecCtx, key []byte, dimSels []DimensionSelector, out map[string]any) {
	util.AssertFunc(len(key) == kl._width)
	util.AssertFunc(len(dimSels) == len(kl._dims))
	for i, dim := range kl._dims {
		d := kl._codecs[i].Decode(key, kl._offsets[i])
		out[dim.OutputName] = kl.datumValue(ctx, d, dimSels[i])
	}
}

func (kl *KeyLayout) datumValue(ctx *ExecCtx, d Datum, dimSel DimensionSelector) any {
	if d.Null {
		if ctx.NullMode.SqlCompatible() {
			return nil
		}
		switch d.Kind {
		case common.VK_FLOAT32:
			return float32(0)
		case common.VK_FLOAT64:
			return float64(0)
		case common.VK_INT32:
			return int32(0)
		case common.VK_INT64:
			return int64(0)
		case common.VK_STRING:
			return ""
		case common.VK_COMPLEX:
			return nil
		default:
			panic("usp")
		}
	}
	switch d.Kind {
	case common.VK_FLOAT32:
		return float32(d.F64)
	case common.VK_FLOAT64:
		return d.F64
	case common.VK_INT32:
		return int32(d.I64)
	case common.VK_INT64:
		return d.I64
	case common.VK_STRING, common.VK_COMPLEX:
		return dimSel.LookupName(d.ID)
	default:
		panic("usp")
	}
}
