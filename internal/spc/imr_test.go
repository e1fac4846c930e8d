package spc

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
)

const tol = 1e-9

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func series(values ...float64) []Point {
	pts := make([]Point, len(values))
	for i, v := range values {
		pts[i] = Point{Seq: int64(i + 1), Timestamp: t0.Add(time.Duration(i) * time.Hour), Value: v}
	}
	return pts
}

func numeric(lower, upper *float64) model.EffectiveParameterDefinition {
	return model.EffectiveParameterDefinition{ParameterID: 1, Kind: model.KindNumeric, Lower: lower, Upper: upper}
}

func TestEvaluate_SpikeIsOutOfControl(t *testing.T) {
	res, err := Evaluate(series(10, 10, 10, 10, 50), numeric(nil, nil))
	require.NoError(t, err)

	st := res.Stats
	require.NotNil(t, st)
	assert.Equal(t, 5, st.N)
	assert.InDelta(t, 18.0, st.Mean, tol)
	assert.Equal(t, []float64{0, 0, 0, 40}, st.MovingRanges)
	assert.InDelta(t, 10.0, st.MRBar, tol)
	assert.InDelta(t, 8.865248, st.Sigma, 1e-6)
	assert.InDelta(t, 44.595745, st.UCLI, 1e-6)
	assert.InDelta(t, -8.595745, st.LCLI, 1e-6)
	assert.InDelta(t, 32.67, st.UCLMR, tol)
	assert.Equal(t, 0.0, st.LCLMR)

	require.Len(t, res.Points, 5)
	for i := 0; i < 4; i++ {
		assert.False(t, res.Points[i].OutOfControl, i)
	}
	assert.True(t, res.Points[4].OutOfControl)
	assert.Equal(t, 1, res.OutOfControlCount())
	assert.Equal(t, 0, res.OutOfSpecCount())
	assert.Nil(t, res.Points[0].MovingRange)
	assert.InDelta(t, 40.0, *res.Points[4].MovingRange, tol)
}

func TestEvaluate_Properties(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for trial := 0; trial < 50; trial++ {
		n := 2 + rng.IntN(40)
		values := make([]float64, n)
		for i := range values {
			values[i] = 100 + rng.NormFloat64()*5
		}

		res, err := Evaluate(series(values...), numeric(nil, nil))
		require.NoError(t, err)
		st := res.Stats

		var mrSum float64
		for i := 1; i < n; i++ {
			mr := math.Abs(values[i] - values[i-1])
			assert.InDelta(t, mr, st.MovingRanges[i-1], tol)
			mrSum += mr
		}
		assert.InDelta(t, mrSum/float64(n-1), st.MRBar, tol)
		assert.InDelta(t, st.MRBar/1.128, st.Sigma, tol)
		assert.InDelta(t, 6*st.Sigma, st.UCLI-st.LCLI, 1e-6)
		assert.True(t, st.ControlLimitsDefined)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	pts := series(9.81, 10.02, 9.77, 10.4, 9.95, 10.11, 9.63)
	a, err := Evaluate(pts, numeric(model.Float(9.7), model.Float(10.3)))
	require.NoError(t, err)
	b, err := Evaluate(pts, numeric(model.Float(9.7), model.Float(10.3)))
	require.NoError(t, err)

	assert.Equal(t, math.Float64bits(a.Stats.Mean), math.Float64bits(b.Stats.Mean))
	assert.Equal(t, math.Float64bits(a.Stats.Sigma), math.Float64bits(b.Stats.Sigma))
	assert.Equal(t, math.Float64bits(a.Stats.UCLI), math.Float64bits(b.Stats.UCLI))
	assert.Equal(t, a, b)
}

func TestEvaluate_SpecIndependentOfControl(t *testing.T) {
	pts := series(4, 6, 7, 11, 8)

	wide, err := Evaluate(pts, numeric(model.Float(0), model.Float(100)))
	require.NoError(t, err)
	narrow, err := Evaluate(pts, numeric(model.Float(5), model.Float(10)))
	require.NoError(t, err)

	// Spec limits do not move the control limits.
	assert.Equal(t, wide.Stats, narrow.Stats)
	for i := range pts {
		assert.Equal(t, wide.Points[i].OutOfControl, narrow.Points[i].OutOfControl)
		assert.False(t, wide.Points[i].OutOfSpec)
	}
	assert.True(t, narrow.Points[0].OutOfSpec)
	assert.True(t, narrow.Points[3].OutOfSpec)
	assert.Equal(t, 2, narrow.OutOfSpecCount())
}

func TestEvaluate_Empty(t *testing.T) {
	res, err := Evaluate(nil, numeric(nil, nil))
	require.NoError(t, err)
	assert.Nil(t, res.Stats)
	assert.Empty(t, res.Points)
	assert.Nil(t, res.Last())
}

func TestEvaluate_SinglePoint(t *testing.T) {
	res, err := Evaluate(series(12), numeric(model.Float(5), model.Float(10)))
	require.NoError(t, err)

	assert.Equal(t, 12.0, res.Stats.Mean)
	assert.False(t, res.Stats.ControlLimitsDefined)
	assert.Empty(t, res.Stats.MovingRanges)
	assert.False(t, res.Points[0].OutOfControl)
	assert.True(t, res.Points[0].OutOfSpec)
}

func TestEvaluate_ConstantSeries(t *testing.T) {
	res, err := Evaluate(series(7, 7, 7), numeric(nil, nil))
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.Stats.Sigma)
	assert.Equal(t, 7.0, res.Stats.UCLI)
	assert.Equal(t, 7.0, res.Stats.LCLI)
	assert.Equal(t, 0, res.OutOfControlCount())
}

func TestEvaluate_Unsorted(t *testing.T) {
	pts := series(1, 2, 3)
	pts[0], pts[2] = pts[2], pts[0]

	_, err := Evaluate(pts, numeric(nil, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrUnsorted)

	SortPoints(pts)
	assert.True(t, IsSorted(pts))
	res, err := Evaluate(pts, numeric(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1}, res.Stats.MovingRanges)
}

func TestSortPoints_TieBrokenBySeq(t *testing.T) {
	pts := []Point{
		{Seq: 3, Timestamp: t0, Value: 3},
		{Seq: 1, Timestamp: t0, Value: 1},
		{Seq: 2, Timestamp: t0.Add(-time.Minute), Value: 2},
	}
	SortPoints(pts)
	assert.Equal(t, []int64{2, 1, 3}, []int64{pts[0].Seq, pts[1].Seq, pts[2].Seq})

	// Equal timestamps in seq order are sorted; reversed seq is not.
	assert.False(t, IsSorted([]Point{{Seq: 2, Timestamp: t0}, {Seq: 1, Timestamp: t0}}))
}

func TestEvaluate_CheckRejected(t *testing.T) {
	_, err := Evaluate(series(1, 0), model.EffectiveParameterDefinition{Kind: model.KindCheck})
	assert.ErrorIs(t, err, model.ErrNotNumeric)
}

func TestPointsFromRecords(t *testing.T) {
	recs := []model.MeasurementRecord{
		{ID: 4, TakenAt: t0, Value: model.Float(1.5)},
		{ID: 5, TakenAt: t0.Add(time.Minute)},
	}
	pts := PointsFromRecords(recs)
	require.Len(t, pts, 1)
	assert.Equal(t, Point{Seq: 4, Timestamp: t0, Value: 1.5}, pts[0])
}

func TestCompute_LargeValuesStayFinite(t *testing.T) {
	st := Compute([]float64{1e308, 1.7e308, 1.2e308})
	require.NotNil(t, st)

	assert.False(t, math.IsInf(st.Mean, 0))
	assert.InDelta(t, 1.3e308, st.Mean, 1e294)
	assert.False(t, math.IsInf(st.MRBar, 0))
	assert.InDelta(t, 0.6e308, st.MRBar, 1e294)

	st = Compute([]float64{1e308, 1.7e308, -1.7e308})
	assert.InDelta(t, 1e308/3, st.Mean, 1e294)
}
