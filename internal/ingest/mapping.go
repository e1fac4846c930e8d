package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
)

// Column names understood in a header row, keyed by normalised spelling.
var columnAliases = map[string]string{
	"line_id": "line_id", "line": "line_id", "linea": "line_id", "línea": "line_id",
	"presentation_id": "presentation_id", "presentation": "presentation_id",
	"presentacion": "presentation_id", "presentación": "presentation_id",
	"control_type_id": "control_type_id", "control_type": "control_type_id",
	"tipo_control": "control_type_id", "tipo_de_control": "control_type_id",
	"parameter_id": "parameter_id", "parameter": "parameter_id",
	"parametro": "parameter_id", "parámetro": "parameter_id",
	"value": "value", "valor": "value", "resultado": "value",
	"taken_at": "taken_at", "timestamp": "taken_at", "fecha": "taken_at", "fecha_hora": "taken_at",
	"reference": "reference", "referencia": "reference", "orden": "reference", "lote": "reference",
	"note": "note", "nota": "note", "observacion": "note", "observación": "note",
}

var requiredColumns = []string{"line_id", "presentation_id", "control_type_id", "parameter_id", "value", "taken_at"}

// timeLayouts are tried in order for taken_at cells.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"2006-01-02",
	"02/01/2006",
}

// Parsed is the result of mapping a sheet. Rows[i] is the 1-based file row
// that produced Submissions[i]; the header is row 1.
type Parsed struct {
	Submissions []model.Submission
	Rows        []int
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.Join(strings.Fields(h), "_")
}

// mapHeader returns the column index of every known field.
func mapHeader(header []string) (map[string]int, error) {
	cols := map[string]int{}
	for i, h := range header {
		field, ok := columnAliases[normalizeHeader(h)]
		if !ok {
			continue
		}
		if _, dup := cols[field]; dup {
			return nil, eris.Wrapf(model.ErrInvalidField, "ingest: column %s appears twice", field)
		}
		cols[field] = i
	}
	var missing []string
	for _, f := range requiredColumns {
		if _, ok := cols[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Wrapf(model.ErrInvalidField, "ingest: missing columns %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

// ParseRows maps a header row and the data rows below it into submissions.
// Blank rows are skipped. Cell problems are collected for every row and
// returned together as model.ValidationErrors indexed by file row. Times
// without a zone are read in loc (UTC when nil).
func ParseRows(rows [][]string, loc *time.Location) (*Parsed, error) {
	if len(rows) == 0 {
		return nil, eris.Wrap(model.ErrInvalidField, "ingest: file has no header row")
	}
	if loc == nil {
		loc = time.UTC
	}
	cols, err := mapHeader(rows[0])
	if err != nil {
		return nil, err
	}

	out := &Parsed{}
	var verrs model.ValidationErrors
	for i, row := range rows[1:] {
		fileRow := i + 2
		if blank(row) {
			continue
		}
		cell := func(field string) string {
			j, ok := cols[field]
			if !ok || j >= len(row) {
				return ""
			}
			return row[j]
		}

		var sub model.Submission
		var rowErrs model.ValidationErrors
		for _, f := range []struct {
			name string
			dst  *int64
		}{
			{"line_id", &sub.LineID},
			{"presentation_id", &sub.PresentationID},
			{"control_type_id", &sub.ControlTypeID},
			{"parameter_id", &sub.ParameterID},
		} {
			id, err := strconv.ParseInt(cell(f.name), 10, 64)
			if err != nil || id <= 0 {
				rowErrs = append(rowErrs, model.ValidationError{
					Index: fileRow, Field: f.name, Code: model.ErrInvalidField,
					Message: fmt.Sprintf("%q is not a valid id", cell(f.name)),
				})
				continue
			}
			*f.dst = id
		}

		taken, err := parseTime(cell("taken_at"), loc)
		if err != nil {
			rowErrs = append(rowErrs, model.ValidationError{
				Index: fileRow, Field: "taken_at", Code: model.ErrInvalidField, Message: err.Error(),
			})
		}
		sub.TakenAt = taken
		sub.Value = cell("value")
		sub.Reference = cell("reference")
		sub.Note = cell("note")

		if len(rowErrs) > 0 {
			verrs = append(verrs, rowErrs...)
			continue
		}
		out.Submissions = append(out.Submissions, sub)
		out.Rows = append(out.Rows, fileRow)
	}
	if len(verrs) > 0 {
		return nil, verrs
	}
	if len(out.Submissions) == 0 {
		return nil, eris.Wrap(model.ErrInvalidField, "ingest: file has no data rows")
	}
	return out, nil
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, eris.New("timestamp is required")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range timeLayouts[1:] {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("%q is not a recognised timestamp", s)
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
