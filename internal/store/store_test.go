package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
)

func TestSummarize(t *testing.T) {
	since := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	s := summarize(since, []alertCountRow{
		{state: model.AlertPending, kind: model.AlertOutOfSpec, day: "2025-05-02", n: 3},
		{state: model.AlertInProgress, kind: model.AlertCheckFailed, day: "2025-05-01", n: 1},
		{state: model.AlertConfirmed, kind: model.AlertOutOfSpec, day: "2025-05-02", n: 2},
	})

	assert.Equal(t, 6, s.Total)
	assert.Equal(t, 4, s.Backlog())
	assert.Equal(t, 5, s.ByKind[model.AlertOutOfSpec])
	assert.Equal(t, []model.DayCount{{Day: "2025-05-01", Count: 1}, {Day: "2025-05-02", Count: 5}}, s.PerDay)
}

func TestMeasurementQuery_Placeholders(t *testing.T) {
	c := &conds{ph: func(int) string { return "?" }, tv: func(t time.Time) any { return t }}
	from := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	q := measurementQuery(c, MeasurementFilter{ParameterID: 4, From: from, Limit: 10})
	assert.Equal(t, `SELECT `+measurementColumns+` FROM measurements WHERE parameter_id = ? AND taken_at >= ? ORDER BY taken_at, id LIMIT ?`, q)
	assert.Equal(t, []any{int64(4), from, 10}, c.args)
}

func TestAlertQuery_DefaultLimit(t *testing.T) {
	c := &conds{ph: func(int) string { return "?" }, tv: func(t time.Time) any { return t }}

	q := alertQuery(c, AlertFilter{})
	assert.Equal(t, `SELECT `+alertColumns+` FROM alerts ORDER BY created_at DESC, id DESC LIMIT ?`, q)
	assert.Equal(t, []any{DefaultListLimit}, c.args)
}

func TestMeasurementQuery_Reference(t *testing.T) {
	c := &conds{ph: func(int) string { return "?" }, tv: func(t time.Time) any { return t }}

	q := measurementQuery(c, MeasurementFilter{LineID: 1, Reference: "OT-7"})
	assert.Equal(t, `SELECT `+measurementColumns+` FROM measurements WHERE line_id = ? AND reference = ? ORDER BY taken_at, id`, q)
	assert.Equal(t, []any{int64(1), "OT-7"}, c.args)
}
