package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/BrendaWanda/ControlCalidad/internal/catalog"
	"github.com/BrendaWanda/ControlCalidad/internal/ingest"
	"github.com/BrendaWanda/ControlCalidad/internal/model"
	"github.com/BrendaWanda/ControlCalidad/internal/quality"
	"github.com/BrendaWanda/ControlCalidad/internal/spc"
)

const timeLayout = "2006-01-02 15:04"

func optFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'g', 6, 64)
}

func limits(lower, upper *float64) string {
	return fmt.Sprintf("[%s, %s]", optFloat(lower), optFloat(upper))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

func formatDefinitions(out io.Writer, defs []model.EffectiveParameterDefinition) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPARAMETER\tKIND\tUNIT\tLIMITS\tOVERRIDDEN\tINCOMPLETE")
	_, _ = fmt.Fprintln(w, "--\t---------\t----\t----\t------\t----------\t----------")
	for _, d := range defs {
		lim := limits(d.Lower, d.Upper)
		if d.Kind == model.KindCheck {
			lim = "-"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ParameterID, d.Name, d.Kind, d.Unit, lim, yesNo(d.Overridden), yesNo(d.Incomplete))
	}
	_ = w.Flush()
}

func formatCatalog(out io.Writer, trees []catalog.Tree) {
	for _, t := range trees {
		_, _ = fmt.Fprintf(out, "Line %d: %s\n", t.Line.ID, t.Line.Name)
		for _, p := range t.Presentations {
			_, _ = fmt.Fprintf(out, "  Presentation %d: %s\n", p.ID, p.Name)
		}
		for _, ct := range t.ControlTypes {
			_, _ = fmt.Fprintf(out, "  Control type %d: %s\n", ct.ControlType.ID, ct.ControlType.Name)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, p := range ct.Parameters {
				lim := limits(p.Lower, p.Upper)
				if p.Kind == model.KindCheck {
					lim = ""
				}
				_, _ = fmt.Fprintf(w, "    %d\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Kind, p.Unit, lim)
			}
			_ = w.Flush()
		}
	}
}

func formatSeedResult(out io.Writer, r *catalog.SeedResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Created:\t%d\n", r.Created)
	_, _ = fmt.Fprintf(w, "Updated:\t%d\n", r.Updated)
	_, _ = fmt.Fprintf(w, "Unchanged:\t%d\n", r.Unchanged)
	_, _ = fmt.Fprintf(w, "Overrides:\t%d\n", r.Overrides)
	_ = w.Flush()
}

func formatSubmitResults(out io.Writer, results []quality.SubmitResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RECORD\tSERIES\tTAKEN\tVALUE\tALERT\tOUT_OF_CONTROL")
	_, _ = fmt.Fprintln(w, "------\t------\t-----\t-----\t-----\t--------------")
	for _, r := range results {
		alert := ""
		if r.Alert != nil {
			alert = fmt.Sprintf("#%d %s", r.Alert.ID, r.Alert.Kind)
		}
		ooc := ""
		if r.Classification != nil {
			ooc = yesNo(r.Classification.OutOfControl)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.RecordID, r.Record.Key(), r.Record.TakenAt.Format(timeLayout), recordValue(r.Record), alert, ooc)
	}
	_ = w.Flush()
}

func recordValue(r model.MeasurementRecord) string {
	switch {
	case r.Value != nil:
		return optFloat(r.Value)
	case r.Passed != nil && *r.Passed:
		return "pass"
	case r.Passed != nil:
		return "fail"
	}
	return "-"
}

func formatSeries(out io.Writer, s *quality.Series) {
	d := s.Definition
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Series:\t%s\n", s.Key)
	_, _ = fmt.Fprintf(w, "Parameter:\t%s (%s)\n", d.Name, d.Kind)
	if d.Kind == model.KindNumeric {
		_, _ = fmt.Fprintf(w, "Spec limits:\t%s %s\n", limits(d.Lower, d.Upper), d.Unit)
	}
	_, _ = fmt.Fprintf(w, "Records:\t%d\n", len(s.Records))

	if s.Result != nil && s.Result.Stats != nil {
		st := s.Result.Stats
		_, _ = fmt.Fprintf(w, "Mean:\t%.4g\n", st.Mean)
		_, _ = fmt.Fprintf(w, "MR-bar:\t%.4g\n", st.MRBar)
		_, _ = fmt.Fprintf(w, "Sigma:\t%.4g\n", st.Sigma)
		if st.ControlLimitsDefined {
			_, _ = fmt.Fprintf(w, "Control limits:\t[%.4g, %.4g]\n", st.LCLI, st.UCLI)
			_, _ = fmt.Fprintf(w, "MR limit:\t%.4g\n", st.UCLMR)
		}
		_, _ = fmt.Fprintf(w, "Out of control:\t%d\n", s.Result.OutOfControlCount())
		_, _ = fmt.Fprintf(w, "Out of spec:\t%d\n", s.Result.OutOfSpecCount())
	}
	if s.Checks != nil {
		_, _ = fmt.Fprintf(w, "Passed:\t%d\n", s.Checks.Passed)
		_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Checks.Failed)
	}
	_ = w.Flush()

	if len(s.Records) == 0 {
		return
	}
	var points map[int64]spc.Classification
	if s.Result != nil {
		points = make(map[int64]spc.Classification, len(s.Result.Points))
		for _, p := range s.Result.Points {
			points[p.Seq] = p
		}
	}

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tRECORD\tTAKEN\tVALUE\tMR\tFLAGS\tREFERENCE")
	_, _ = fmt.Fprintln(w, "-\t------\t-----\t-----\t--\t-----\t---------")
	for i, r := range s.Records {
		mr, flags := "", ""
		if p, ok := points[r.ID]; ok {
			mr = optFloat(p.MovingRange)
			if p.MovingRange == nil {
				mr = ""
			}
			switch {
			case p.OutOfSpec && p.OutOfControl:
				flags = "SPEC,CONTROL"
			case p.OutOfSpec:
				flags = "SPEC"
			case p.OutOfControl:
				flags = "CONTROL"
			}
		} else if r.Passed != nil && !*r.Passed {
			flags = "FAILED"
		}
		_, _ = fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
			i+1, r.ID, r.TakenAt.Format(timeLayout), recordValue(r), mr, flags, r.Reference)
	}
	_ = w.Flush()
}

func formatMeasurements(out io.Writer, recs []model.MeasurementRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTAKEN\tSERIES\tVALUE\tREFERENCE\tRECORDER\tNOTE")
	_, _ = fmt.Fprintln(w, "--\t-----\t------\t-----\t---------\t--------\t----")
	for _, r := range recs {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.TakenAt.Format(timeLayout), r.Key(), recordValue(r), r.Reference, r.RecorderID, truncate(r.Note, 40))
	}
	_ = w.Flush()
}

func formatAlerts(out io.Writer, alerts []model.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tSTATE\tSERIES\tOBSERVED\tLIMITS\tCREATED\tDESCRIPTION")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t------\t--------\t------\t-------\t-----------")
	for _, a := range alerts {
		key := model.SeriesKey{LineID: a.LineID, PresentationID: a.PresentationID, ControlTypeID: a.ControlTypeID, ParameterID: a.ParameterID}
		lim := ""
		if a.Kind == model.AlertOutOfSpec {
			lim = limits(a.Lower, a.Upper)
		}
		observed := ""
		if a.Observed != nil {
			observed = optFloat(a.Observed)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.Kind, a.State, key, observed, lim, a.CreatedAt.Format(timeLayout), truncate(a.Description, 50))
	}
	_ = w.Flush()
}

func formatAlert(out io.Writer, a *model.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Alert:\t%d\n", a.ID)
	_, _ = fmt.Fprintf(w, "Kind:\t%s\n", a.Kind)
	_, _ = fmt.Fprintf(w, "State:\t%s\n", a.State)
	_, _ = fmt.Fprintf(w, "Record:\t%d\n", a.RecordID)
	if a.ReviewerID != "" {
		_, _ = fmt.Fprintf(w, "Reviewer:\t%s\n", a.ReviewerID)
	}
	if a.ReviewNote != "" {
		_, _ = fmt.Fprintf(w, "Note:\t%s\n", a.ReviewNote)
	}
	if a.ResolvedAt != nil {
		_, _ = fmt.Fprintf(w, "Resolved:\t%s\n", a.ResolvedAt.Format(timeLayout))
	}
	_ = w.Flush()
}

var summaryStates = []model.AlertState{model.AlertPending, model.AlertInProgress, model.AlertConfirmed, model.AlertRejected}

func formatSummary(out io.Writer, s *model.AlertSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Since:\t%s\n", s.Since.Format(timeLayout))
	_, _ = fmt.Fprintf(w, "Total alerts:\t%d\n", s.Total)
	for _, st := range summaryStates {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", st, s.ByState[st])
	}
	_, _ = fmt.Fprintf(w, "Backlog:\t%d\n", s.Backlog())
	_, _ = fmt.Fprintf(w, "Out of spec:\t%d\n", s.ByKind[model.AlertOutOfSpec])
	_, _ = fmt.Fprintf(w, "Check failed:\t%d\n", s.ByKind[model.AlertCheckFailed])
	for _, d := range s.PerDay {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", d.Day, d.Count)
	}
	_ = w.Flush()
}

func formatReport(out io.Writer, r *quality.Report) {
	from := "beginning"
	if !r.From.IsZero() {
		from = r.From.Format(timeLayout)
	}
	_, _ = fmt.Fprintf(out, "Report %s to %s\n\n", from, r.To.Format(timeLayout))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LINE\tRECORDS\tCONFORMING\tRATE")
	_, _ = fmt.Fprintln(w, "----\t-------\t----------\t----")
	for _, c := range r.Conformity {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%.1f%%\n", c.LineName, c.Records, c.Conforming, c.Rate)
	}
	_ = w.Flush()

	if r.Alerts != nil {
		_, _ = fmt.Fprintln(out)
		formatSummary(out, r.Alerts)
	}

	if len(r.Series) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SERIES\tPARAMETER\tN\tMEAN\tSIGMA\tLCL\tUCL\tOOC\tOOS")
	_, _ = fmt.Fprintln(w, "------\t---------\t-\t----\t-----\t---\t---\t---\t---")
	for _, s := range r.Series {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%.4g\t%.4g\t%.4g\t%.4g\t%d\t%d\n",
			s.Key, s.Parameter, s.N, s.Mean, s.Sigma, s.LCL, s.UCL, s.OutOfControl, s.OutOfSpec)
	}
	_ = w.Flush()
}

func formatImportResult(out io.Writer, r *ingest.Result, elapsed time.Duration) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Rows:\t%d\n", r.Rows)
	_, _ = fmt.Fprintf(w, "Accepted:\t%d\n", r.Accepted)
	_, _ = fmt.Fprintf(w, "Batches:\t%d\n", r.Batches)
	_, _ = fmt.Fprintf(w, "Alerts raised:\t%d\n", r.Alerts)
	_, _ = fmt.Fprintf(w, "Elapsed:\t%s\n", elapsed.Round(time.Millisecond))
	_ = w.Flush()
}

func formatValidationErrors(out io.Writer, verrs model.ValidationErrors) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ENTRY\tFIELD\tCODE\tMESSAGE")
	_, _ = fmt.Fprintln(w, "-----\t-----\t----\t-------")
	for _, e := range verrs {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.Index, e.Field, e.CodeName(), e.Message)
	}
	_ = w.Flush()
}
