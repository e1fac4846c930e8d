// Package export renders series, measurement searches and alert lists as CSV
// or XLSX for download.
package export

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
	"github.com/BrendaWanda/ControlCalidad/internal/quality"
	"github.com/BrendaWanda/ControlCalidad/internal/spc"
)

// Format is an export file format.
type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

// ParseFormat accepts "csv" or "xlsx" in any case. Empty means XLSX.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return XLSX, nil
	case CSV, XLSX:
		return f, nil
	}
	return "", eris.Wrapf(model.ErrInvalidField, "export: unknown format %q", s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == CSV {
		return "text/csv; charset=utf-8"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// FileName returns a unique download name such as "series-1-2-3-4-1a2b3c4d.xlsx".
func FileName(prefix string, f Format) string {
	return fmt.Sprintf("%s-%s.%s", prefix, uuid.NewString()[:8], f)
}

// SeriesFilePrefix names a series export after its key.
func SeriesFilePrefix(key model.SeriesKey) string {
	return "series-" + strings.ReplaceAll(key.String(), "/", "-")
}

var seriesHeader = []string{
	"index", "record_id", "taken_at", "value", "passed", "moving_range",
	"out_of_spec", "out_of_control", "reference", "recorder_id", "note",
}

// seriesRows renders one row per record. NUMERIC rows carry the SPC
// classification of the record; CHECK rows carry the pass flag.
func seriesRows(s *quality.Series) [][]string {
	classByID := map[int64]spc.Classification{}
	if s.Result != nil {
		for _, c := range s.Result.Points {
			classByID[c.Seq] = c
		}
	}

	rows := make([][]string, 0, len(s.Records))
	for i, r := range s.Records {
		row := []string{
			strconv.Itoa(i + 1),
			strconv.FormatInt(r.ID, 10),
			r.TakenAt.UTC().Format(time.RFC3339),
			"", "", "", "", "",
			r.Reference, r.RecorderID, r.Note,
		}
		if r.Value != nil {
			row[3] = formatFloat(*r.Value)
		}
		if r.Passed != nil {
			row[4] = strconv.FormatBool(*r.Passed)
		}
		if c, ok := classByID[r.ID]; ok {
			if c.MovingRange != nil {
				row[5] = formatFloat(*c.MovingRange)
			}
			row[6] = strconv.FormatBool(c.OutOfSpec)
			row[7] = strconv.FormatBool(c.OutOfControl)
		}
		rows = append(rows, row)
	}
	return rows
}

// statisticsRows is the label/value summary placed beside a series.
func statisticsRows(s *quality.Series) [][]string {
	d := s.Definition
	rows := [][]string{
		{"parameter", d.Name},
		{"kind", string(d.Kind)},
		{"unit", d.Unit},
		{"lower_spec", optFloat(d.Lower)},
		{"upper_spec", optFloat(d.Upper)},
	}
	if s.Result != nil && s.Result.Stats != nil {
		st := s.Result.Stats
		rows = append(rows,
			[]string{"n", strconv.Itoa(st.N)},
			[]string{"mean", formatFloat(st.Mean)},
			[]string{"mr_bar", formatFloat(st.MRBar)},
			[]string{"sigma", formatFloat(st.Sigma)},
			[]string{"ucl_i", formatFloat(st.UCLI)},
			[]string{"lcl_i", formatFloat(st.LCLI)},
			[]string{"ucl_mr", formatFloat(st.UCLMR)},
			[]string{"out_of_control", strconv.Itoa(s.Result.OutOfControlCount())},
			[]string{"out_of_spec", strconv.Itoa(s.Result.OutOfSpecCount())},
		)
	}
	if s.Checks != nil {
		rows = append(rows,
			[]string{"total", strconv.Itoa(s.Checks.Total)},
			[]string{"passed", strconv.Itoa(s.Checks.Passed)},
			[]string{"failed", strconv.Itoa(s.Checks.Failed)},
		)
	}
	return rows
}

var measurementHeader = []string{
	"record_id", "line_id", "presentation_id", "control_type_id", "parameter_id",
	"kind", "taken_at", "value", "passed", "reference", "recorder_id", "note",
}

func measurementRows(recs []model.MeasurementRecord) [][]string {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		passed := ""
		if r.Passed != nil {
			passed = strconv.FormatBool(*r.Passed)
		}
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			strconv.FormatInt(r.LineID, 10),
			strconv.FormatInt(r.PresentationID, 10),
			strconv.FormatInt(r.ControlTypeID, 10),
			strconv.FormatInt(r.ParameterID, 10),
			string(r.Kind),
			r.TakenAt.UTC().Format(time.RFC3339),
			optFloat(r.Value),
			passed,
			r.Reference,
			r.RecorderID,
			r.Note,
		})
	}
	return rows
}

var alertHeader = []string{
	"id", "kind", "state", "description", "record_id", "line_id", "presentation_id",
	"control_type_id", "parameter_id", "observed", "lower", "upper", "reference",
	"reviewer_id", "review_note", "created_at", "resolved_at",
}

func alertRows(alerts []model.Alert) [][]string {
	rows := make([][]string, 0, len(alerts))
	for _, a := range alerts {
		resolved := ""
		if a.ResolvedAt != nil {
			resolved = a.ResolvedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{
			strconv.FormatInt(a.ID, 10),
			string(a.Kind),
			string(a.State),
			a.Description,
			strconv.FormatInt(a.RecordID, 10),
			strconv.FormatInt(a.LineID, 10),
			strconv.FormatInt(a.PresentationID, 10),
			strconv.FormatInt(a.ControlTypeID, 10),
			strconv.FormatInt(a.ParameterID, 10),
			optFloat(a.Observed),
			optFloat(a.Lower),
			optFloat(a.Upper),
			a.Reference,
			a.ReviewerID,
			a.ReviewNote,
			a.CreatedAt.UTC().Format(time.RFC3339),
			resolved,
		})
	}
	return rows
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
