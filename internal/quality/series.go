package quality

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
	"github.com/BrendaWanda/ControlCalidad/internal/spc"
	"github.com/BrendaWanda/ControlCalidad/internal/store"
)

// CheckSummary counts pass/fail results of a CHECK series.
type CheckSummary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// Series is one measurement series with its statistics. Result is set for
// NUMERIC series and Checks for CHECK series.
type Series struct {
	Key        model.SeriesKey                    `json:"key"`
	Definition model.EffectiveParameterDefinition `json:"definition"`
	From       time.Time                          `json:"from,omitempty"`
	To         time.Time                          `json:"to,omitempty"`
	Records    []model.MeasurementRecord          `json:"records"`
	Result     *spc.Result                        `json:"result,omitempty"`
	Checks     *CheckSummary                      `json:"checks,omitempty"`
}

// GetSeries returns the records of key taken within [from, to] in evaluation
// order, with statistics recomputed from them. Zero times leave the range
// open. Records are sorted by (taken_at, id) before evaluation.
func (s *Service) GetSeries(ctx context.Context, key model.SeriesKey, from, to time.Time) (*Series, error) {
	def, err := s.resolver.Resolve(ctx, key.ParameterID, key.PresentationID)
	if err != nil {
		return nil, eris.Wrapf(err, "quality: series %s", key)
	}
	if def.LineID != key.LineID || def.ControlTypeID != key.ControlTypeID {
		return nil, eris.Wrapf(model.ErrIncompatibleHierarchy,
			"quality: series %s does not match line %d / control type %d", key, def.LineID, def.ControlTypeID)
	}

	f := store.SeriesFilter(key)
	f.From, f.To = from, to
	recs, err := s.store.ListMeasurements(ctx, f)
	if err != nil {
		return nil, eris.Wrapf(err, "quality: load series %s", key)
	}

	out := &Series{Key: key, Definition: *def, From: from, To: to, Records: recs}
	if out.Records == nil {
		out.Records = []model.MeasurementRecord{}
	}

	switch def.Kind {
	case model.KindNumeric:
		pts := spc.PointsFromRecords(recs)
		spc.SortPoints(pts)
		start := time.Now()
		res, err := spc.Evaluate(pts, *def)
		s.metrics.ObserveSPC(time.Since(start))
		if err != nil {
			return nil, eris.Wrapf(err, "quality: evaluate series %s", key)
		}
		out.Result = res
	case model.KindCheck:
		cs := &CheckSummary{}
		for _, r := range recs {
			if r.Passed == nil {
				continue
			}
			cs.Total++
			if *r.Passed {
				cs.Passed++
			} else {
				cs.Failed++
			}
		}
		out.Checks = cs
	}
	return out, nil
}

// SeriesReport is the statistical digest of one NUMERIC series.
type SeriesReport struct {
	Key          model.SeriesKey `json:"key"`
	Parameter    string          `json:"parameter"`
	Unit         string          `json:"unit,omitempty"`
	Lower        *float64        `json:"lower,omitempty"`
	Upper        *float64        `json:"upper,omitempty"`
	N            int             `json:"n"`
	Mean         float64         `json:"mean"`
	Sigma        float64         `json:"sigma"`
	UCL          float64         `json:"ucl"`
	LCL          float64         `json:"lcl"`
	OutOfControl int             `json:"out_of_control"`
	OutOfSpec    int             `json:"out_of_spec"`
}

// ReportRequest scopes a report. LineID zero covers every line.
type ReportRequest struct {
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
	LineID int64     `json:"line_id,omitempty"`
}

// Report is the conformity and alert digest of a period.
type Report struct {
	From       time.Time              `json:"from"`
	To         time.Time              `json:"to"`
	Conformity []model.LineConformity `json:"conformity"`
	Alerts     *model.AlertSummary    `json:"alerts"`
	Series     []SeriesReport         `json:"series"`
}

// reportConcurrency bounds how many series a report evaluates at once.
const reportConcurrency = 4

// Report builds the period digest. Series are evaluated concurrently.
func (s *Service) Report(ctx context.Context, req ReportRequest) (*Report, error) {
	if req.To.IsZero() {
		req.To = s.now().UTC()
	}
	if !req.From.IsZero() && req.From.After(req.To) {
		return nil, eris.Errorf("quality: report range %s is after %s", req.From.Format(time.RFC3339), req.To.Format(time.RFC3339))
	}
	out := &Report{From: req.From, To: req.To}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		conf, err := s.store.Conformity(gctx, req.From, req.To)
		if err != nil {
			return eris.Wrap(err, "quality: conformity")
		}
		for _, c := range conf {
			if req.LineID == 0 || c.LineID == req.LineID {
				out.Conformity = append(out.Conformity, c)
			}
		}
		return nil
	})
	g.Go(func() error {
		sum, err := s.store.SummarizeAlerts(gctx, req.From)
		if err != nil {
			return eris.Wrap(err, "quality: summarize alerts")
		}
		out.Alerts = sum
		return nil
	})
	g.Go(func() error {
		series, err := s.seriesReports(gctx, req)
		out.Series = series
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) seriesReports(ctx context.Context, req ReportRequest) ([]SeriesReport, error) {
	keys, err := s.store.ListSeriesKeys(ctx, store.MeasurementFilter{
		LineID: req.LineID, Kind: model.KindNumeric, From: req.From, To: req.To,
	})
	if err != nil {
		return nil, eris.Wrap(err, "quality: list series")
	}

	reports := make([]SeriesReport, len(keys))
	var mu sync.Mutex
	var skipped []int

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reportConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			series, err := s.GetSeries(gctx, key, req.From, req.To)
			if err != nil && !errors.Is(err, model.ErrNotFound) {
				return err
			}
			// Deleted catalog entries and series redeclared CHECK have no digest.
			if err != nil || series.Result == nil || series.Result.Stats == nil {
				mu.Lock()
				skipped = append(skipped, i)
				mu.Unlock()
				return nil
			}
			st := series.Result.Stats
			reports[i] = SeriesReport{
				Key:          key,
				Parameter:    series.Definition.Name,
				Unit:         series.Definition.Unit,
				Lower:        series.Definition.Lower,
				Upper:        series.Definition.Upper,
				N:            st.N,
				Mean:         st.Mean,
				Sigma:        st.Sigma,
				UCL:          st.UCLI,
				LCL:          st.LCLI,
				OutOfControl: series.Result.OutOfControlCount(),
				OutOfSpec:    series.Result.OutOfSpecCount(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(skipped) == 0 {
		return reports, nil
	}
	drop := make(map[int]bool, len(skipped))
	for _, i := range skipped {
		drop[i] = true
	}
	kept := reports[:0]
	for i, r := range reports {
		if !drop[i] {
			kept = append(kept, r)
		}
	}
	return kept, nil
}
