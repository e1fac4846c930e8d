package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrendaWanda/ControlCalidad/internal/catalog"
	"github.com/BrendaWanda/ControlCalidad/internal/ingest"
	"github.com/BrendaWanda/ControlCalidad/internal/model"
	"github.com/BrendaWanda/ControlCalidad/internal/quality"
	"github.com/BrendaWanda/ControlCalidad/internal/spc"
)

var t0 = time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)

func TestFormatAlerts(t *testing.T) {
	alerts := []model.Alert{
		{
			ID: 7, Kind: model.AlertOutOfSpec, State: model.AlertPending,
			LineID: 1, PresentationID: 2, ControlTypeID: 3, ParameterID: 4,
			Observed: model.Float(12.5), Lower: model.Float(5), Upper: model.Float(10),
			Description: "Humedad 12.5 outside [5, 10] on a line that has a very long description attached",
			CreatedAt:   t0,
		},
		{ID: 8, Kind: model.AlertCheckFailed, State: model.AlertInProgress, CreatedAt: t0},
	}

	var buf bytes.Buffer
	formatAlerts(&buf, alerts)
	out := buf.String()

	assert.Contains(t, out, "KIND")
	assert.Contains(t, out, "OUT_OF_SPEC")
	assert.Contains(t, out, "1/2/3/4")
	assert.Contains(t, out, "12.5")
	assert.Contains(t, out, "[5, 10]")
	assert.Contains(t, out, "2025-06-15 10:30")
	assert.Contains(t, out, "...")
	assert.Contains(t, out, "IN_PROGRESS")
}

func TestFormatSeries_Numeric(t *testing.T) {
	def := model.EffectiveParameterDefinition{Name: "Humedad", Kind: model.KindNumeric, Unit: "%",
		Lower: model.Float(5), Upper: model.Float(10)}
	recs := []model.MeasurementRecord{
		{ID: 1, TakenAt: t0, Value: model.Float(10)},
		{ID: 2, TakenAt: t0.Add(time.Hour), Value: model.Float(10)},
		{ID: 3, TakenAt: t0.Add(2 * time.Hour), Value: model.Float(10)},
		{ID: 4, TakenAt: t0.Add(3 * time.Hour), Value: model.Float(10)},
		{ID: 5, TakenAt: t0.Add(4 * time.Hour), Value: model.Float(50), Reference: "OT-9"},
	}
	res, err := spc.Evaluate(spc.PointsFromRecords(recs), def)
	require.NoError(t, err)

	var buf bytes.Buffer
	formatSeries(&buf, &quality.Series{Definition: def, Records: recs, Result: res})
	out := buf.String()

	assert.Contains(t, out, "Humedad (NUMERIC)")
	assert.Contains(t, out, "[5, 10] %")
	assert.Contains(t, out, "Mean:")
	assert.Contains(t, out, "Control limits:")
	assert.Contains(t, out, "SPEC,CONTROL")
	assert.Contains(t, out, "OT-9")
}

func TestFormatSeries_Check(t *testing.T) {
	no := false
	s := &quality.Series{
		Definition: model.EffectiveParameterDefinition{Name: "Sellado", Kind: model.KindCheck},
		Records:    []model.MeasurementRecord{{ID: 1, TakenAt: t0, Passed: &no}},
		Checks:     &quality.CheckSummary{Total: 1, Failed: 1},
	}
	var buf bytes.Buffer
	formatSeries(&buf, s)
	out := buf.String()

	assert.NotContains(t, out, "Spec limits")
	assert.Contains(t, out, "Failed:")
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "fail")
}

func TestFormatSummary(t *testing.T) {
	s := &model.AlertSummary{
		Since:   t0,
		Total:   5,
		ByState: map[model.AlertState]int{model.AlertPending: 2, model.AlertInProgress: 1, model.AlertConfirmed: 2},
		ByKind:  map[model.AlertKind]int{model.AlertOutOfSpec: 4, model.AlertCheckFailed: 1},
		PerDay:  []model.DayCount{{Day: "2025-06-15", Count: 5}},
	}
	var buf bytes.Buffer
	formatSummary(&buf, s)
	out := buf.String()

	assert.Contains(t, out, "Total alerts:")
	assert.Contains(t, out, "Backlog:")
	assert.Regexp(t, `Backlog:\s+3`, out)
	assert.Regexp(t, `REJECTED:\s+0`, out)
	assert.Contains(t, out, "2025-06-15")
}

func TestFormatReport(t *testing.T) {
	r := &quality.Report{
		To:         t0,
		Conformity: []model.LineConformity{{LineID: 1, LineName: "Galletas", Records: 4, Conforming: 3, Rate: 75}},
		Series: []quality.SeriesReport{{
			Key: model.SeriesKey{LineID: 1, PresentationID: 1, ControlTypeID: 1, ParameterID: 1}, Parameter: "Humedad",
			N: 4, Mean: 8, Sigma: 1.2, UCL: 11.6, LCL: 4.4, OutOfSpec: 1,
		}},
	}
	var buf bytes.Buffer
	formatReport(&buf, r)
	out := buf.String()

	assert.Contains(t, out, "Report beginning to 2025-06-15 10:30")
	assert.Contains(t, out, "75.0%")
	assert.Contains(t, out, "1/1/1/1")
	assert.Contains(t, out, "11.6")
}

func TestFormatDefinitions(t *testing.T) {
	defs := []model.EffectiveParameterDefinition{
		{ParameterID: 1, Name: "Humedad", Kind: model.KindNumeric, Lower: model.Float(5), Overridden: true},
		{ParameterID: 2, Name: "Sellado", Kind: model.KindCheck},
	}
	var buf bytes.Buffer
	formatDefinitions(&buf, defs)
	out := buf.String()
	assert.Contains(t, out, "[5, -]")
	assert.Contains(t, out, "yes")
	assert.Contains(t, out, "Sellado")
}

func TestFormatCatalogAndSeed(t *testing.T) {
	trees := []catalog.Tree{{
		Line:          model.Line{ID: 1, Name: "Galletas"},
		Presentations: []model.Presentation{{ID: 2, Name: "Paquete 200g"}},
		ControlTypes: []catalog.ControlTypeTree{{
			ControlType: model.ControlType{ID: 3, Name: "En proceso"},
			Parameters:  []model.Parameter{{ID: 4, Name: "Humedad", Kind: model.KindNumeric, Upper: model.Float(10)}},
		}},
	}}
	var buf bytes.Buffer
	formatCatalog(&buf, trees)
	assert.Contains(t, buf.String(), "Presentation 2: Paquete 200g")
	assert.Contains(t, buf.String(), "[-, 10]")

	buf.Reset()
	formatSeedResult(&buf, &catalog.SeedResult{Created: 6})
	assert.Regexp(t, `Created:\s+6`, buf.String())
}

func TestFormatImportAndValidation(t *testing.T) {
	var buf bytes.Buffer
	formatImportResult(&buf, &ingest.Result{Rows: 10, Accepted: 10, Batches: 2, Alerts: 1}, 1500*time.Millisecond)
	assert.Regexp(t, `Alerts raised:\s+1`, buf.String())
	assert.Contains(t, buf.String(), "1.5s")

	buf.Reset()
	formatValidationErrors(&buf, model.ValidationErrors{
		{Index: 4, Field: "value", Code: model.ErrMissingValue, Message: "a numeric value is required"},
	})
	assert.Contains(t, buf.String(), "missing_value")
	assert.Contains(t, buf.String(), "a numeric value is required")
}

func TestParseTimeFlag(t *testing.T) {
	got, err := parseTimeFlag("2025-06-01", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 23, 59, 59, 999999999, time.UTC), got)

	got, err = parseTimeFlag("2025-06-01T08:00:00-04:00", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), got)

	got, err = parseTimeFlag("", false)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = parseTimeFlag("ayer", false)
	assert.Error(t, err)
}

func TestParseID(t *testing.T) {
	id, err := parseID(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = parseID("0")
	assert.Error(t, err)
	_, err = parseID("x")
	assert.Error(t, err)
}

func TestFormatMeasurements(t *testing.T) {
	passed := true
	recs := []model.MeasurementRecord{
		{ID: 3, LineID: 1, PresentationID: 2, ControlTypeID: 3, ParameterID: 4, Value: model.Float(7.5),
			TakenAt: time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC), Reference: "OT-9", RecorderID: "op-1"},
		{ID: 4, LineID: 1, PresentationID: 2, ControlTypeID: 3, ParameterID: 5, Passed: &passed,
			TakenAt: time.Date(2025, 6, 15, 10, 31, 0, 0, time.UTC), Reference: "OT-9", RecorderID: "op-2"},
	}

	var buf bytes.Buffer
	formatMeasurements(&buf, recs)
	out := buf.String()

	assert.Contains(t, out, "REFERENCE")
	assert.Contains(t, out, "1/2/3/4")
	assert.Contains(t, out, "7.5")
	assert.Contains(t, out, "pass")
	assert.Contains(t, out, "2025-06-15 10:30")
	assert.Equal(t, 2, strings.Count(out, "OT-9"))
}
