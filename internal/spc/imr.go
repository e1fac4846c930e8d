// Package spc computes Individual–Moving-Range statistics over a
// measurement series and classifies each point against control and spec
// limits.
//
// Evaluation is pure: the same ordered input always produces bit-identical
// output, so statistics are recomputed from the record log on every read
// instead of being stored.
package spc

import (
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
)

// Control chart constants for moving ranges of two consecutive points.
const (
	D2 = 1.128
	D3 = 0.0
	D4 = 3.267

	// SigmaMultiplier is the Rule 1 distance of the control limits.
	SigmaMultiplier = 3.0
)

// Point is one numeric observation. Seq breaks timestamp ties.
type Point struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Statistics summarises a series. Control limits are only meaningful when
// ControlLimitsDefined is true (two or more points).
type Statistics struct {
	N                    int       `json:"n"`
	Mean                 float64   `json:"mean"`
	MovingRanges         []float64 `json:"moving_ranges"`
	MRBar                float64   `json:"mr_bar"`
	Sigma                float64   `json:"sigma"`
	UCLI                 float64   `json:"ucl_i"`
	LCLI                 float64   `json:"lcl_i"`
	UCLMR                float64   `json:"ucl_mr"`
	LCLMR                float64   `json:"lcl_mr"`
	ControlLimitsDefined bool      `json:"control_limits_defined"`
}

// Classification is the verdict for one point. MovingRange is nil for the
// first point.
type Classification struct {
	Index        int       `json:"index"`
	Seq          int64     `json:"seq"`
	Timestamp    time.Time `json:"timestamp"`
	Value        float64   `json:"value"`
	MovingRange  *float64  `json:"moving_range,omitempty"`
	OutOfControl bool      `json:"out_of_control"`
	OutOfSpec    bool      `json:"out_of_spec"`
}

// Result is the outcome of evaluating a series. Stats is nil for an empty
// series.
type Result struct {
	Stats  *Statistics      `json:"stats,omitempty"`
	Points []Classification `json:"points"`
}

// OutOfControlCount returns how many points violate Rule 1.
func (r *Result) OutOfControlCount() int {
	n := 0
	for _, p := range r.Points {
		if p.OutOfControl {
			n++
		}
	}
	return n
}

// OutOfSpecCount returns how many points fall outside the spec limits.
func (r *Result) OutOfSpecCount() int {
	n := 0
	for _, p := range r.Points {
		if p.OutOfSpec {
			n++
		}
	}
	return n
}

// Last returns the classification of the newest point, or nil.
func (r *Result) Last() *Classification {
	if len(r.Points) == 0 {
		return nil
	}
	return &r.Points[len(r.Points)-1]
}

// Less orders points by timestamp, then by insertion sequence.
func Less(a, b Point) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.Seq < b.Seq
}

// SortPoints sorts points in place into evaluation order. The sort is
// stable, so points with equal timestamp and sequence keep their input order.
func SortPoints(points []Point) {
	sort.SliceStable(points, func(i, j int) bool { return Less(points[i], points[j]) })
}

// IsSorted reports whether points are in evaluation order.
func IsSorted(points []Point) bool {
	for i := 1; i < len(points); i++ {
		if Less(points[i], points[i-1]) {
			return false
		}
	}
	return true
}

// Compute returns the I-MR statistics of values taken in order. It returns
// nil for an empty series.
func Compute(values []float64) *Statistics {
	n := len(values)
	if n == 0 {
		return nil
	}

	st := &Statistics{N: n, Mean: runningMean(values)}

	if n < 2 {
		st.MovingRanges = []float64{}
		return st
	}

	st.MovingRanges = make([]float64, n-1)
	for i := 1; i < n; i++ {
		st.MovingRanges[i-1] = math.Abs(values[i] - values[i-1])
	}
	st.MRBar = runningMean(st.MovingRanges)
	st.Sigma = st.MRBar / D2
	st.UCLI = st.Mean + SigmaMultiplier*st.Sigma
	st.LCLI = st.Mean - SigmaMultiplier*st.Sigma
	st.UCLMR = D4 * st.MRBar
	st.LCLMR = math.Max(0, D3*st.MRBar)
	st.ControlLimitsDefined = true
	return st
}

// runningMean averages values incrementally so that large finite inputs do
// not overflow an intermediate sum.
func runningMean(values []float64) float64 {
	var mean float64
	for i, x := range values {
		k := float64(i + 1)
		mean += x/k - mean/k
	}
	return mean
}

// Evaluate computes statistics for points and classifies every point.
// Points must already be in evaluation order (see SortPoints); unordered
// input fails with model.ErrUnsorted. CHECK definitions fail with
// model.ErrNotNumeric.
func Evaluate(points []Point, def model.EffectiveParameterDefinition) (*Result, error) {
	if def.Kind != model.KindNumeric {
		return nil, eris.Wrapf(model.ErrNotNumeric, "spc: parameter %d is %s", def.ParameterID, def.Kind)
	}
	if !IsSorted(points) {
		return nil, eris.Wrapf(model.ErrUnsorted, "spc: series for parameter %d", def.ParameterID)
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	st := Compute(values)

	res := &Result{Stats: st, Points: make([]Classification, len(points))}
	for i, p := range points {
		c := Classification{
			Index:     i,
			Seq:       p.Seq,
			Timestamp: p.Timestamp,
			Value:     p.Value,
			OutOfSpec: def.OutOfSpec(p.Value),
		}
		if i > 0 {
			mr := st.MovingRanges[i-1]
			c.MovingRange = &mr
		}
		if st.ControlLimitsDefined {
			c.OutOfControl = p.Value > st.UCLI || p.Value < st.LCLI
		}
		res.Points[i] = c
	}
	return res, nil
}

// PointsFromRecords converts numeric records into points, skipping any
// record without a value.
func PointsFromRecords(recs []model.MeasurementRecord) []Point {
	pts := make([]Point, 0, len(recs))
	for _, r := range recs {
		if r.Value == nil {
			continue
		}
		pts = append(pts, Point{Seq: r.ID, Timestamp: r.TakenAt, Value: *r.Value})
	}
	return pts
}
