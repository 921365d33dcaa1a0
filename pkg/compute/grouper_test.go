package compute

import (
	"context"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianolap/meridian/pkg/common"
)

func mustFactory(t *testing.T) func(fac AggregatorFactory, err error) AggregatorFactory {
	return func(fac AggregatorFactory, err error) AggregatorFactory {
		t.Helper()
		require.NoError(t, err)
		return fac
	}
}

func runSingleUnit(t *testing.T, ctx *ExecCtx, layout *KeyLayout, facs []AggregatorFactory, src RowSource) *ProcessingUnit {
	t.Helper()
	pu, err := NewProcessingUnit(ctx, layout, facs, src)
	require.NoError(t, err)
	require.NoError(t, pu.Run(context.Background()))
	return pu
}

func Test_groupByDoubleDimension(t *testing.T) {
	ctx := NewExecCtx(common.SQLCompatible)
	seg := NewMemSegment(ctx)
	vals := []common.Nullable[float64]{
		common.SomeVal(3.0), common.NullVal[float64](), common.SomeVal(7.5),
	}
	seg.AddFloat64Column("d", vals)

	layout := NewKeyLayout([]GroupDim{
		{OutputName: "d", Field: "d", Kind: common.VK_FLOAT64},
	})
	facs := []AggregatorFactory{
		mustFactory(t)(NewFloat64MaxFactory("m", "d", "", nil)),
	}
	pu := runSingleUnit(t, ctx, layout, facs, seg)

	rows := pu.Result()
	require.Len(t, rows, 3)
	got := make(map[any]any)
	for _, row := range rows {
		got[row.Dims["d"]] = row.Aggs["m"]
	}
	//values decode back exactly, null stays null
	assert.Equal(t, 3.0, got[3.0])
	assert.Equal(t, 7.5, got[7.5])
	//the null row contributed no value, so its group sits at the identity
	assert.Equal(t, math.Inf(-1), got[nil])
}

func Test_groupByDoubleDimensionDefaultMode(t *testing.T) {
	ctx := NewExecCtx(common.DefaultReplacement)
	seg := NewMemSegment(ctx)
	vals := []common.Nullable[float64]{
		common.SomeVal(3.0), common.NullVal[float64](), common.SomeVal(7.5),
	}
	seg.AddFloat64Column("d", vals)

	layout := NewKeyLayout([]GroupDim{
		{OutputName: "d", Field: "d", Kind: common.VK_FLOAT64},
	})
	facs := []AggregatorFactory{
		mustFactory(t)(NewFloat64MaxFactory("m", "d", "", nil)),
	}
	pu := runSingleUnit(t, ctx, layout, facs, seg)

	//the null row reads as 0.0 and groups with nothing else
	rows := pu.Result()
	require.Len(t, rows, 3)
	got := make(map[any]any)
	for _, row := range rows {
		got[row.Dims["d"]] = row.Aggs["m"]
	}
	assert.Equal(t, 0.0, got[0.0])
	assert.Equal(t, 3.0, got[3.0])
	assert.Equal(t, 7.5, got[7.5])
}

func Test_globalAggregationNoDims(t *testing.T) {
	ctx := NewExecCtx(common.SQLCompatible)
	seg := NewMemSegment(ctx)
	seg.AddFloat64Column("v", []common.Nullable[float64]{
		common.SomeVal(3.0), common.NullVal[float64](), common.SomeVal(7.5),
	})

	layout := NewKeyLayout(nil)
	facs := []AggregatorFactory{
		mustFactory(t)(NewFloat64MaxFactory("m", "v", "", nil)),
		mustFactory(t)(NewFloat64MinFactory("n", "v", "", nil)),
		mustFactory(t)(NewFloat64SumFactory("s", "v", "", nil)),
	}
	pu := runSingleUnit(t, ctx, layout, facs, seg)

	rows := pu.Result()
	require.Len(t, rows, 1)
	assert.Equal(t, 7.5, rows[0].Aggs["m"])
	assert.Equal(t, 3.0, rows[0].Aggs["n"])
	assert.Equal(t, 10.5, rows[0].Aggs["s"])
	assert.Equal(t, 3, pu.Grouper().Rows())
	assert.Equal(t, 1, pu.Grouper().GroupCount())
}

func Test_globalAggregationZeroRows(t *testing.T) {
	ctx := NewExecCtx(common.SQLCompatible)
	seg := NewMemSegment(ctx)
	seg.AddFloat64Column("v", nil)

	layout := NewKeyLayout(nil)
	facs := []AggregatorFactory{
		mustFactory(t)(NewFloat64MaxFactory("m", "v", "", nil)),
	}
	pu := runSingleUnit(t, ctx, layout, facs, seg)

	//no rows ever reached the grouper, so no group exists at all
	assert.Empty(t, pu.Result())
	assert.Equal(t, 0, pu.Grouper().Rows())
}

func Test_multiValueStringFanOut(t *testing.T) {
	ctx := NewExecCtx(common.SQLCompatible)
	seg := NewMemSegment(ctx)
	seg.AddStringColumn("tag", [][]string{
		{"a", "b"},
		{"b"},
		{},
	})
	seg.AddFloat64Column("v", []common.Nullable[float64]{
		common.SomeVal(1.0), common.SomeVal(10.0), common.SomeVal(100.0),
	})

	layout := NewKeyLayout([]GroupDim{
		{OutputName: "tag", Field: "tag", Kind: common.VK_STRING},
	})
	facs := []AggregatorFactory{
		mustFactory(t)(NewFloat64SumFactory("s", "v", "", nil)),
	}
	pu := runSingleUnit(t, ctx, layout, facs, seg)

	//the first row counts once per value it carries
	rows := pu.Result()
	require.Len(t, rows, 3)
	got := make(map[any]any)
	for _, row := range rows {
		got[row.Dims["tag"]] = row.Aggs["s"]
	}
	assert.Equal(t, 1.0, got["a"])
	assert.Equal(t, 11.0, got["b"])
	assert.Equal(t, 100.0, got[nil])
}

func buildRandomSegment(ctx *ExecCtx, rows int, seed int64) *MemSegment {
	rng := rand.New(rand.NewSource(seed))
	tags := make([][]string, 0, rows)
	buckets := make([]common.Nullable[int64], 0, rows)
	vals := make([]common.Nullable[float64], 0, rows)
	names := []string{"red", "green", "blue", "cyan"}
	for i := 0; i < rows; i++ {
		row := []string{names[rng.Intn(len(names))]}
		if rng.Intn(8) == 0 {
			row = append(row, names[rng.Intn(len(names))])
		}
		tags = append(tags, row)
		buckets = append(buckets, common.SomeVal(int64(rng.Intn(4))))
		if rng.Intn(10) == 0 {
			vals = append(vals, common.NullVal[float64]())
		} else {
			vals = append(vals, common.SomeVal(float64(rng.Intn(1000))))
		}
	}
	seg := NewMemSegment(ctx)
	seg.AddStringColumn("tag", tags)
	seg.AddInt64Column("bucket", buckets)
	seg.AddFloat64Column("value", vals)
	return seg
}

func groupLayoutAndFactories(t *testing.T) (*KeyLayout, []AggregatorFactory) {
	t.Helper()
	layout := NewKeyLayout([]GroupDim{
		{OutputName: "tag", Field: "tag", Kind: common.VK_STRING},
		{OutputName: "bucket", Field: "bucket", Kind: common.VK_INT64},
	})
	facs := []AggregatorFactory{
		mustFactory(t)(NewFloat64MaxFactory("value_max", "value", "", nil)),
		mustFactory(t)(NewFloat64SumFactory("value_sum", "value", "", nil)),
		mustFactory(t)(NewInt64MinFactory("bucket_min", "bucket", "", nil)),
	}
	return layout, facs
}

func Test_mergeUnitsMatchesSingleUnit(t *testing.T) {
	ctx := NewExecCtx(common.SQLCompatible)
	layout, facs := groupLayoutAndFactories(t)
	const rows = 400

	single := runSingleUnit(t, ctx, layout, facs,
		buildRandomSegment(ctx, rows, 23))

	//same data split over three units sharing one dictionary
	seg := buildRandomSegment(ctx, rows, 23)
	units := make([]*ProcessingUnit, 0, 3)
	for _, r := range [][2]int{{0, 150}, {150, 151}, {151, rows}} {
		pu, err := NewProcessingUnit(ctx, layout, facs, seg.Slice(r[0], r[1]))
		require.NoError(t, err)
		units = append(units, pu)
	}
	require.NoError(t, RunParallel(context.Background(), units))

	merged := MergeUnits(ctx, layout, facs, units)
	require.Equal(t, single.Result(), merged.Scan())
}

func Test_spillRoundTrip(t *testing.T) {
	ctx := NewExecCtx(common.SQLCompatible)
	layout, facs := groupLayoutAndFactories(t)
	seg := buildRandomSegment(ctx, 300, 41)

	left, err := NewProcessingUnit(ctx, layout, facs, seg.Slice(0, 140))
	require.NoError(t, err)
	right, err := NewProcessingUnit(ctx, layout, facs, seg.Slice(140, 300))
	require.NoError(t, err)
	require.NoError(t, RunParallel(context.Background(), []*ProcessingUnit{left, right}))

	direct := MergeUnits(ctx, layout, facs, []*ProcessingUnit{left, right})

	//spill the right unit, then merge the left with the restored partials
	path := filepath.Join(t.TempDir(), "unit1.part")
	require.NoError(t, SpillPartials(path, layout, right.Grouper().StateWidth(), right.Partials()))

	restored := MergeUnits(ctx, layout, facs, []*ProcessingUnit{left})
	require.NoError(t, RestorePartials(path, layout, restored))

	require.Equal(t, direct.Scan(), restored.Scan())
}

func Test_spillReaderRejectsTruncatedRecord(t *testing.T) {
	ctx := NewExecCtx(common.SQLCompatible)
	layout, facs := groupLayoutAndFactories(t)
	seg := buildRandomSegment(ctx, 50, 5)
	pu := runSingleUnit(t, ctx, layout, facs, seg)

	path := filepath.Join(t.TempDir(), "unit.part")
	require.NoError(t, SpillPartials(path, layout, pu.Grouper().StateWidth(), pu.Partials()))

	//a reader expecting wider records hits a short final read
	sr, err := NewSpillReader(path, layout, pu.Grouper().StateWidth()+7)
	require.NoError(t, err)
	defer sr.Close()
	for {
		_, err = sr.Read()
		if err != nil {
			break
		}
	}
	require.ErrorContains(t, err, "truncated spill record")
}

func Test_typeMismatchAbortsUnit(t *testing.T) {
	ctx := NewExecCtx(common.SQLCompatible)
	seg := NewMemSegment(ctx)
	seg.AddStringColumn("tag", [][]string{{"a"}, {"b"}})

	layout := NewKeyLayout(nil)
	facs := []AggregatorFactory{
		mustFactory(t)(NewFloat64SumFactory("s", "tag", "", nil)),
	}
	pu, err := NewProcessingUnit(ctx, layout, facs, seg)
	require.NoError(t, err)

	err = pu.Run(context.Background())
	require.ErrorContains(t, err, "type mismatch")
}

func Test_runHonorsContextCancellation(t *testing.T) {
	execCtx := NewExecCtx(common.SQLCompatible)
	layout, facs := groupLayoutAndFactories(t)
	seg := buildRandomSegment(execCtx, 100, 11)
	pu, err := NewProcessingUnit(execCtx, layout, facs, seg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, pu.Run(ctx), context.Canceled)
}

func Test_absorbPartialChecksWidths(t *testing.T) {
	ctx := NewExecCtx(common.SQLCompatible)
	layout, facs := groupLayoutAndFactories(t)
	g := NewGrouper(ctx, layout, []DimensionSelector{nullDimSelector{}, nullDimSelector{}}, facs, nil)

	require.Panics(t, func() {
		g.AbsorbPartial(make([]byte, layout.Width()-1), make([]byte, g.StateWidth()))
	})
	require.Panics(t, func() {
		g.AbsorbPartial(make([]byte, layout.Width()), make([]byte, g.StateWidth()+1))
	})
}
