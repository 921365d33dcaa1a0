package compute

import (
	"bytes"
	"math/rand"
	"slices"

	"github.com/dchest/siphash"
	"github.com/tidwall/btree"

	"github.com/meridianolap/meridian/pkg/util"
)

// groupBucket owns one group's key bytes and the buffer-resident
// aggregator states laid out back to back.
type groupBucket struct {
	_key   []byte
	_state []byte
}

// Grouper buckets rows by raw grouping-key bytes within one processing
// unit. Two keys land in the same bucket iff their bytes are equal,
// null flags included. Exclusively owned by its unit, never shared.
type Grouper struct {
	_ctx        *ExecCtx
	_layout     *KeyLayout
	_dimSels    []DimensionSelector
	_factories  []AggregatorFactory
	_aggs       []BufferAggregator
	_stateOffs  []int
	_stateWidth int

	//scratch key buffer, reused across rows
	_key   []byte
	_stack []int

	_k0, _k1 uint64
	_buckets map[uint64][]*groupBucket
	_ordered *btree.BTreeG[*groupBucket]
	_rows    int
}

func bucketLess(a, b *groupBucket) bool {
	return bytes.Compare(a._key, b._key) < 0
}

// NewGrouper binds the layout's dimension selectors and one buffer
// aggregator per factory. aggrSels may be nil for a merge-only grouper
// that is fed through AbsorbPartial instead of SinkRow.
func NewGrouper(
	ctx *ExecCtx,
	layout *KeyLayout,
	dimSels []DimensionSelector,
	factories []AggregatorFactory,
	aggrSels []ColumnValueSelector,
) *Grouper {
	util.AssertFunc(len(dimSels) == layout.DimCount())
	util.AssertFunc(aggrSels == nil || len(aggrSels) == len(factories))
	g := &Grouper{
		_ctx:       ctx,
		_layout:    layout,
		_dimSels:   dimSels,
		_factories: factories,
		_key:       layout.NewKeyBuffer(),
		_stack:     make([]int, layout.DimCount()),
		_k0:        rand.Uint64(),
		_k1:        rand.Uint64(),
		_buckets:   make(map[uint64][]*groupBucket),
		_ordered:   btree.NewBTreeG[*groupBucket](bucketLess),
	}
	for i, fac := range factories {
		var sel ColumnValueSelector
		if aggrSels != nil {
			sel = aggrSels[i]
		}
		g._aggs = append(g._aggs, fac.FactorizeBuffered(ctx, sel))
		g._stateOffs = append(g._stateOffs, g._stateWidth)
		g._stateWidth += fac.StateSize()
	}
	return g
}

// SinkRow folds the source's current row into its bucket. Multi-valued
// dimensions fan one row out into one bucket per value combination.
func (g *Grouper) SinkRow() {
	for i := 0; i < g._layout.DimCount(); i++ {
		codec := g._layout.Codec(i)
		d := codec.ExtractFromSelector(g._ctx, g._dimSels[i])
		codec.Encode(g._key, g._layout.Offset(i), d)
		g._stack[i] = 1
	}
	for {
		g.aggregateCurrentKey()
		i := g._layout.DimCount() - 1
		for ; i >= 0; i-- {
			codec := g._layout.Codec(i)
			if codec.AppendRowToKeyIfMultiValued(g._key, g._layout.Offset(i), g._dimSels[i], g._stack[i]) {
				g._stack[i]++
				for j := i + 1; j < g._layout.DimCount(); j++ {
					cj := g._layout.Codec(j)
					d := cj.ExtractFromSelector(g._ctx, g._dimSels[j])
					cj.Encode(g._key, g._layout.Offset(j), d)
					g._stack[j] = 1
				}
				break
			}
		}
		if i < 0 {
			break
		}
	}
	g._rows++
}

func (g *Grouper) aggregateCurrentKey() {
	b := g.findOrCreate(g._key)
	for i, agg := range g._aggs {
		agg.Aggregate(b._state, g._stateOffs[i])
	}
}

func (g *Grouper) findOrCreate(key []byte) *groupBucket {
	h := siphash.Hash(g._k0, g._k1, key)
	for _, b := range g._buckets[h] {
		if bytes.Equal(b._key, key) {
			return b
		}
	}
	b := &groupBucket{
		_key:   slices.Clone(key),
		_state: make([]byte, g._stateWidth),
	}
	for i, agg := range g._aggs {
		agg.Init(b._state, g._stateOffs[i])
	}
	g._buckets[h] = append(g._buckets[h], b)
	g._ordered.Set(b)
	return b
}

func (g *Grouper) Rows() int {
	return g._rows
}

func (g *Grouper) GroupCount() int {
	return g._ordered.Len()
}

// GroupRow is one finalized output row.
type GroupRow struct {
	Dims map[string]any
	Aggs map[string]any
}

// Scan materializes every group in key-byte order.
func (g *Grouper) Scan() []GroupRow {
	ret := make([]GroupRow, 0, g._ordered.Len())
	g._ordered.Scan(func(b *groupBucket) bool {
		row := GroupRow{
			Dims: make(map[string]any),
			Aggs: make(map[string]any),
		}
		g._layout.DecodeRow(g._ctx, b._key, g._dimSels, row.Dims)
		for i, fac := range g._factories {
			row.Aggs[fac.Name()] = fac.FinalizeComputation(g._aggs[i].Get(b._state, g._stateOffs[i]))
		}
		ret = append(ret, row)
		return true
	})
	return ret
}

// PartialRow is one group's raw key bytes plus its raw aggregator state
// region, both in the layouts fixed at plan time.
type PartialRow struct {
	Key   []byte
	State []byte
}

// Partials snapshots every bucket for cross-unit merge or spill.
func (g *Grouper) Partials() []PartialRow {
	ret := make([]PartialRow, 0, g._ordered.Len())
	g._ordered.Scan(func(b *groupBucket) bool {
		ret = append(ret, PartialRow{
			Key:   slices.Clone(b._key),
			State: slices.Clone(b._state),
		})
		return true
	})
	return ret
}

// AbsorbPartial merges one partial group into this grouper. Merge order
// does not matter: the per-factory combine is associative and
// commutative.
func (g *Grouper) AbsorbPartial(key []byte, state []byte) {
	util.AssertFunc(len(key) == g._layout.Width())
	util.AssertFunc(len(state) == g._stateWidth)
	b := g.findOrCreate(key)
	for i, fac := range g._factories {
		fac.combineState(b._state, g._stateOffs[i], state, g._stateOffs[i])
	}
}

func (g *Grouper) StateWidth() int {
	return g._stateWidth
}
