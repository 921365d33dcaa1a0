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
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridianolap/meridian/pkg/util"
)

// ProcessingUnit scans one row source into one grouper, synchronous and
// single-threaded. Parallelism comes from running independent units on
// disjoint row ranges; they share nothing but the immutable factories and
// layout.
type ProcessingUnit struct {
	_ctx     *ExecCtx
	_src     RowSource
	_grouper *Grouper
}

func NewProcessingUnit(
	ctx *ExecCtx,
	layout *KeyLayout,
	factories []AggregatorFactory,
	src RowSource,
) (*ProcessingUnit, error) {
	dimSels := make([]DimensionSelector, 0, layout.DimCount())
	for i := 0; i < layout.DimCount(); i++ {
		dimSels = append(dimSels, src.MakeDimensionSelector(layout.Dim(i).Field))
	}
	aggrSels := make([]ColumnValueSelector, 0, len(factories))
	for _, fac := range factories {
		sel, err := fac.Selector(ctx, src)
		if err != nil {
			return nil, err
		}
		aggrSels = append(aggrSels, sel)
	}
	return &ProcessingUnit{
		_ctx:     ctx,
		_src:     src,
		_grouper: NewGrouper(ctx, layout, dimSels, factories, aggrSels),
	}, nil
}

// Run folds rows until the source is exhausted or ctx is done. A panic
// from a selector (type mismatch, bad expression value) aborts the unit
// and surfaces as its error; the unit is never retried in place.
func (pu *ProcessingUnit) Run(ctx context.Context) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = util.ConvertPanicError(v)
		}
	}()
	for pu._src.Next() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		pu._grouper.SinkRow()
	}
	return nil
}

func (pu *ProcessingUnit) Result() []GroupRow {
	return pu._grouper.Scan()
}

func (pu *ProcessingUnit) Partials() []PartialRow {
	return pu._grouper.Partials()
}

func (pu *ProcessingUnit) Grouper() *Grouper {
	return pu._grouper
}

// RunParallel drives independent units on worker goroutines. A failed
// unit cancels the rest.
func RunParallel(ctx context.Context, units []*ProcessingUnit) error {
	eg, ectx := errgroup.WithContext(ctx)
	for i, pu := range units {
		i, pu := i, pu
		eg.Go(func() error {
			if err := pu.Run(ectx); err != nil {
				util.Error("processing unit failed",
					zap.Int("unit", i),
					zap.String("query", pu._ctx.QueryId.String()),
					zap.Error(err))
				return err
			}
			return nil
		})
	}
	return eg.Wait()
}

// MergeUnits combines the units' partial results into a fresh grouper.
// All units must share one source dictionary (slices of one segment do);
// dimension selectors for decode are borrowed from the first unit.
func MergeUnits(ctx *ExecCtx, layout *KeyLayout, factories []AggregatorFactory, units []*ProcessingUnit) *Grouper {
	util.AssertFunc(len(units) > 0)
	merged := NewGrouper(ctx, layout, units[0]._grouper._dimSels, factories, nil)
	for _, pu := range units {
		for _, p := range pu.Partials() {
			merged.AbsorbPartial(p.Key, p.State)
		}
	}
	return merged
}
