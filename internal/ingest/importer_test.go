package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
	"github.com/BrendaWanda/ControlCalidad/internal/quality"
	"github.com/BrendaWanda/ControlCalidad/internal/store"
)

var rc = model.RequestContext{RecorderID: "op-1"}

type fakeSubmitter struct {
	calls  [][]model.Submission
	failAt int // 1-based call that fails; 0 never
	err    error
	nextID int64
}

func (f *fakeSubmitter) SubmitBatch(_ context.Context, _ model.RequestContext, subs []model.Submission) ([]quality.SubmitResult, error) {
	f.calls = append(f.calls, subs)
	if f.failAt == len(f.calls) {
		return nil, f.err
	}
	out := make([]quality.SubmitResult, len(subs))
	for i, s := range subs {
		f.nextID++
		out[i].RecordID = f.nextID
		if s.Value == "99" {
			id := f.nextID * 10
			out[i].AlertID = &id
		}
	}
	return out, nil
}

func header() []string {
	return []string{"line_id", "presentation_id", "control_type_id", "parameter_id", "value", "taken_at"}
}

func dataRows(values ...string) [][]string {
	rows := [][]string{header()}
	for _, v := range values {
		rows = append(rows, []string{"1", "2", "3", "4", v, "2025-06-01 08:00"})
	}
	return rows
}

func TestImport_SingleTransaction(t *testing.T) {
	fs := &fakeSubmitter{}
	res, err := NewImporter(fs, Options{}).Import(context.Background(), rc, dataRows("7", "99", "8"))
	require.NoError(t, err)

	assert.Len(t, fs.calls, 1)
	assert.Equal(t, &Result{Rows: 3, Accepted: 3, Alerts: 1, Batches: 1, AlertIDs: []int64{20}}, res)
}

func TestImport_Batches(t *testing.T) {
	fs := &fakeSubmitter{}
	res, err := NewImporter(fs, Options{BatchSize: 2}).Import(context.Background(), rc, dataRows("1", "2", "3", "4", "5"))
	require.NoError(t, err)

	require.Len(t, fs.calls, 3)
	assert.Len(t, fs.calls[2], 1)
	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 5, res.Accepted)
}

func TestImport_RemapsValidationErrors(t *testing.T) {
	fs := &fakeSubmitter{
		failAt: 2,
		err: model.ValidationErrors{
			{Index: 1, Field: "value", Code: model.ErrInvalidValue, Message: "not a number"},
		},
	}
	// The blank row 3 shifts file rows relative to submission indexes.
	rows := dataRows("1", "2", "3", "x")
	rows = append(rows[:3], append([][]string{{"", "", "", "", "", ""}}, rows[3:]...)...)

	res, err := NewImporter(fs, Options{BatchSize: 2}).Import(context.Background(), rc, rows)
	require.Error(t, err)

	var verrs model.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, 6, verrs[0].Index)
	assert.Equal(t, 1, res.Batches)
	assert.Equal(t, 2, res.Accepted)
}

func TestImport_InfrastructureError(t *testing.T) {
	fs := &fakeSubmitter{failAt: 1, err: errors.New("disk full")}
	res, err := NewImporter(fs, Options{}).Import(context.Background(), rc, dataRows("1"))
	assert.EqualError(t, err, "disk full")
	assert.Equal(t, 0, res.Accepted)
}

func TestImportFile_UnsupportedType(t *testing.T) {
	_, err := NewImporter(&fakeSubmitter{}, Options{}).ImportFile(context.Background(), rc, "registros.pdf")
	assert.ErrorIs(t, err, model.ErrInvalidField)
}

func TestImportFile_CSVEndToEnd(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "qc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	line, err := st.CreateLine(ctx, "Galletas")
	require.NoError(t, err)
	pres, err := st.CreatePresentation(ctx, model.Presentation{Name: "Paquete 200g", LineID: line.ID})
	require.NoError(t, err)
	ct, err := st.CreateControlType(ctx, model.ControlType{Name: "En proceso", LineID: line.ID})
	require.NoError(t, err)
	param, err := st.CreateParameter(ctx, model.Parameter{Name: "Humedad", Kind: model.KindNumeric,
		Lower: model.Float(5), Upper: model.Float(10), ControlTypeID: ct.ID})
	require.NoError(t, err)

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	svc := quality.New(st, quality.WithClock(func() time.Time { return now }))

	csv := "linea;presentacion;tipo_control;parametro;valor;fecha\n" +
		idRow(line.ID, pres.ID, ct.ID, param.ID, "7,5", "2025-06-01 08:00") +
		idRow(line.ID, pres.ID, ct.ID, param.ID, "11", "2025-06-01 09:00")
	path := filepath.Join(t.TempDir(), "humedad.csv")
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o600))

	im := NewImporter(svc, Options{CSV: CSVOptions{Delimiter: ';'}})
	res, err := im.ImportFile(ctx, rc, path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Accepted)
	assert.Equal(t, 1, res.Alerts)

	recs, err := st.ListMeasurements(ctx, store.MeasurementFilter{ParameterID: param.ID})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 7.5, *recs[0].Value)
	assert.Equal(t, "op-1", recs[0].RecorderID)
}

func idRow(line, pres, ct, param int64, value, at string) string {
	return formatID(line) + ";" + formatID(pres) + ";" + formatID(ct) + ";" + formatID(param) + ";" + value + ";" + at + "\n"
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
