package quality

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
	"github.com/BrendaWanda/ControlCalidad/internal/store"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type env struct {
	svc   *Service
	st    store.Store
	line  *model.Line
	pres  *model.Presentation
	ct    *model.ControlType
	param *model.Parameter // NUMERIC [5, 10]
	open  *model.Parameter // NUMERIC, no limits
	check *model.Parameter // CHECK
}

type recordingObserver struct {
	mu      sync.Mutex
	entries []model.Entry
}

func (o *recordingObserver) Committed(_ context.Context, entries []model.Entry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, entries...)
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "qc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	e := &env{st: st}
	e.line, err = st.CreateLine(ctx, "Galletas")
	require.NoError(t, err)
	e.pres, err = st.CreatePresentation(ctx, model.Presentation{Name: "Paquete 200g", LineID: e.line.ID})
	require.NoError(t, err)
	e.ct, err = st.CreateControlType(ctx, model.ControlType{Name: "En proceso", LineID: e.line.ID})
	require.NoError(t, err)
	e.param, err = st.CreateParameter(ctx, model.Parameter{Name: "Humedad", Kind: model.KindNumeric, Unit: "%",
		Lower: model.Float(5), Upper: model.Float(10), ControlTypeID: e.ct.ID})
	require.NoError(t, err)
	e.open, err = st.CreateParameter(ctx, model.Parameter{Name: "Peso", Kind: model.KindNumeric, Unit: "g", ControlTypeID: e.ct.ID})
	require.NoError(t, err)
	e.check, err = st.CreateParameter(ctx, model.Parameter{Name: "Sellado", Kind: model.KindCheck, ControlTypeID: e.ct.ID})
	require.NoError(t, err)

	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	e.svc = New(st, opts...)
	return e
}

func (e *env) sub(p *model.Parameter, value string, at time.Time) model.Submission {
	return model.Submission{
		LineID: e.line.ID, PresentationID: e.pres.ID, ControlTypeID: e.ct.ID, ParameterID: p.ID,
		Value: value, TakenAt: at, Reference: "OT-77",
	}
}

func (e *env) key(p *model.Parameter) model.SeriesKey {
	return model.SeriesKey{LineID: e.line.ID, PresentationID: e.pres.ID, ControlTypeID: e.ct.ID, ParameterID: p.ID}
}

var rc = model.RequestContext{RecorderID: "op-1"}

func countRecords(t *testing.T, st store.Store) int {
	t.Helper()
	recs, err := st.ListMeasurements(context.Background(), store.MeasurementFilter{})
	require.NoError(t, err)
	return len(recs)
}

func TestSubmit_OutOfSpecRaisesPendingAlert(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.svc.SubmitMeasurement(ctx, rc, e.sub(e.param, "12.0", now.Add(-time.Minute)))
	require.NoError(t, err)
	assert.NotZero(t, res.RecordID)
	require.NotNil(t, res.AlertID)

	a, err := e.st.GetAlert(ctx, *res.AlertID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertOutOfSpec, a.Kind)
	assert.Equal(t, model.AlertPending, a.State)
	assert.Equal(t, res.RecordID, a.RecordID)
	assert.Equal(t, 12.0, *a.Observed)
	assert.Equal(t, 5.0, *a.Lower)
	assert.Equal(t, 10.0, *a.Upper)
	assert.Contains(t, a.Description, "OT-77")
}

func TestSubmit_InSpecNoAlert(t *testing.T) {
	e := newEnv(t)

	res, err := e.svc.SubmitMeasurement(context.Background(), rc, e.sub(e.param, "7.0", now.Add(-time.Minute)))
	require.NoError(t, err)
	assert.NotZero(t, res.RecordID)
	assert.Nil(t, res.AlertID)
	assert.Nil(t, res.Alert)
}

func TestSubmit_SpikeOutOfControlWithoutLimits(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	var last *SubmitResult
	for i, v := range []string{"10", "10", "10", "10", "50"} {
		res, err := e.svc.SubmitMeasurement(ctx, rc, e.sub(e.open, v, now.Add(time.Duration(i-10)*time.Minute)))
		require.NoError(t, err)
		assert.Nil(t, res.AlertID, v)
		last = res
	}
	require.NotNil(t, last.Classification)
	assert.True(t, last.Classification.OutOfControl)
	assert.False(t, last.Classification.OutOfSpec)

	series, err := e.svc.GetSeries(ctx, e.key(e.open), time.Time{}, time.Time{})
	require.NoError(t, err)
	st := series.Result.Stats
	assert.Equal(t, 5, st.N)
	assert.InDelta(t, 18.0, st.Mean, 1e-9)
	assert.InDelta(t, 10.0, st.MRBar, 1e-9)
	assert.InDelta(t, 8.87, st.Sigma, 0.01)
	assert.InDelta(t, 44.6, st.UCLI, 0.01)
	assert.True(t, series.Result.Points[4].OutOfControl)
	assert.Equal(t, 0, series.Result.OutOfSpecCount())

	alerts, err := e.svc.ListAlerts(ctx, store.AlertFilter{})
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestSubmit_Check(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.svc.SubmitMeasurement(ctx, rc, e.sub(e.check, "false", now.Add(-time.Minute)))
	require.NoError(t, err)
	require.NotNil(t, res.Alert)
	assert.Equal(t, model.AlertCheckFailed, res.Alert.Kind)
	assert.Nil(t, res.Classification)

	res, err = e.svc.SubmitMeasurement(ctx, rc, e.sub(e.check, "true", now.Add(-time.Minute)))
	require.NoError(t, err)
	assert.Nil(t, res.Alert)

	series, err := e.svc.GetSeries(ctx, e.key(e.check), time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Nil(t, series.Result)
	assert.Equal(t, &CheckSummary{Total: 2, Passed: 1, Failed: 1}, series.Checks)
}

func TestSubmit_BlankNumericRejected(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.SubmitMeasurement(context.Background(), rc, e.sub(e.param, "  ", now.Add(-time.Minute)))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrMissingValue)

	var verrs model.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	require.Len(t, verrs, 1)
	assert.Equal(t, "value", verrs[0].Field)

	assert.Equal(t, 0, countRecords(t, e.st))
	alerts, err := e.svc.ListAlerts(context.Background(), store.AlertFilter{})
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestSubmitBatch_AllOrNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	future := e.sub(e.param, "7", now.Add(time.Hour))
	missing := e.sub(e.param, "8", now.Add(-time.Minute))
	missing.ParameterID = 9999
	otherLine, err := e.st.CreateLine(ctx, "Pastas")
	require.NoError(t, err)
	wrongLine := e.sub(e.param, "8", now.Add(-time.Minute))
	wrongLine.LineID = otherLine.ID

	_, err = e.svc.SubmitBatch(ctx, rc, []model.Submission{
		e.sub(e.param, "7", now.Add(-time.Minute)),
		future,
		missing,
		wrongLine,
	})
	var verrs model.ValidationErrors
	require.True(t, errors.As(err, &verrs))

	byIndex := map[int][]string{}
	for _, v := range verrs {
		byIndex[v.Index] = append(byIndex[v.Index], v.CodeName())
	}
	assert.NotContains(t, byIndex, 0)
	assert.Equal(t, []string{"future_timestamp"}, byIndex[1])
	assert.Equal(t, []string{"not_found"}, byIndex[2])
	assert.Equal(t, []string{"incompatible_hierarchy"}, byIndex[3])
	assert.Equal(t, 0, countRecords(t, e.st))
}

func TestSubmitBatch_CommitsTogetherAndNotifies(t *testing.T) {
	obs := &recordingObserver{}
	e := newEnv(t, WithObserver(obs))

	out, err := e.svc.SubmitBatch(context.Background(), rc, []model.Submission{
		e.sub(e.param, "7", now.Add(-2*time.Minute)),
		e.sub(e.param, "11", now.Add(-time.Minute)),
		e.sub(e.check, "no", now.Add(-time.Minute)),
	})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Nil(t, out[0].AlertID)
	assert.NotNil(t, out[1].AlertID)
	assert.NotNil(t, out[2].AlertID)

	// The second point is classified against the first from the same batch.
	require.NotNil(t, out[1].Classification)
	assert.Equal(t, 1, out[1].Classification.Index)

	assert.Len(t, obs.entries, 3)
	assert.Equal(t, 3, countRecords(t, e.st))
}

func TestSubmit_InvalidLimitsIsConfigurationError(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.st.UpsertOverride(ctx, model.ParameterOverride{PresentationID: e.pres.ID, ParameterID: e.param.ID, Lower: model.Float(20)})
	require.NoError(t, err)

	_, err = e.svc.SubmitMeasurement(ctx, rc, e.sub(e.param, "7", now.Add(-time.Minute)))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidLimits)
	var verrs model.ValidationErrors
	assert.False(t, errors.As(err, &verrs))
	assert.Equal(t, 0, countRecords(t, e.st))
}

func TestSubmit_CancelledContextWritesNothing(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.svc.SubmitMeasurement(ctx, rc, e.sub(e.param, "7", now.Add(-time.Minute)))
	require.Error(t, err)
	assert.Equal(t, 0, countRecords(t, e.st))
}

func TestSubmit_OverrideApplies(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.st.UpsertOverride(ctx, model.ParameterOverride{PresentationID: e.pres.ID, ParameterID: e.param.ID, Upper: model.Float(8)})
	require.NoError(t, err)

	def, err := e.svc.ResolveEffectiveDefinition(ctx, e.param.ID, e.pres.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, *def.Lower)
	assert.Equal(t, 8.0, *def.Upper)

	res, err := e.svc.SubmitMeasurement(ctx, rc, e.sub(e.param, "9", now.Add(-time.Minute)))
	require.NoError(t, err)
	require.NotNil(t, res.Alert)
	assert.Equal(t, 8.0, *res.Alert.Upper)

	defs, err := e.svc.ListParametersFor(ctx, e.pres.ID, e.ct.ID)
	require.NoError(t, err)
	assert.Len(t, defs, 3)
}

func TestTransitionAlert(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.svc.SubmitMeasurement(ctx, rc, e.sub(e.param, "12", now.Add(-time.Minute)))
	require.NoError(t, err)
	id := *res.AlertID
	reviewer := model.RequestContext{RecorderID: "qa-1"}

	_, err = e.svc.TransitionAlert(ctx, reviewer, id, model.AlertPending, "")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	a, err := e.svc.TransitionAlert(ctx, reviewer, id, model.AlertConfirmed, "lote retenido")
	require.NoError(t, err)
	assert.Equal(t, model.AlertConfirmed, a.State)
	assert.NotNil(t, a.ResolvedAt)
	assert.Equal(t, "qa-1", a.ReviewerID)

	_, err = e.svc.TransitionAlert(ctx, reviewer, id, model.AlertRejected, "")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestGetSeries_Errors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	key := e.key(e.param)
	key.ControlTypeID = 999
	_, err := e.svc.GetSeries(ctx, key, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, model.ErrIncompatibleHierarchy)

	key = e.key(e.param)
	key.PresentationID = 999
	_, err = e.svc.GetSeries(ctx, key, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, model.ErrNotFound)

	series, err := e.svc.GetSeries(ctx, e.key(e.param), time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, series.Records)
	assert.Nil(t, series.Result.Stats)
}

func TestGetSeries_DateRange(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for i, v := range []string{"6", "7", "8", "9"} {
		_, err := e.svc.SubmitMeasurement(ctx, rc, e.sub(e.param, v, now.Add(-time.Duration(4-i)*time.Hour)))
		require.NoError(t, err)
	}

	series, err := e.svc.GetSeries(ctx, e.key(e.param), now.Add(-3*time.Hour), now.Add(-2*time.Hour))
	require.NoError(t, err)
	require.Len(t, series.Records, 2)
	assert.Equal(t, 7.0, *series.Records[0].Value)
	assert.Equal(t, 8.0, *series.Records[1].Value)
}

func TestReport(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.SubmitBatch(ctx, rc, []model.Submission{
		e.sub(e.param, "7", now.Add(-3*time.Hour)),
		e.sub(e.param, "12", now.Add(-2*time.Hour)),
		e.sub(e.open, "100", now.Add(-2*time.Hour)),
		e.sub(e.check, "true", now.Add(-time.Hour)),
	})
	require.NoError(t, err)

	rep, err := e.svc.Report(ctx, ReportRequest{From: now.Add(-24 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, now, rep.To)

	require.Len(t, rep.Conformity, 1)
	assert.Equal(t, 4, rep.Conformity[0].Records)
	assert.Equal(t, 3, rep.Conformity[0].Conforming)
	assert.InDelta(t, 75.0, rep.Conformity[0].Rate, 1e-9)

	require.Len(t, rep.Series, 2)
	assert.Equal(t, "Humedad", rep.Series[0].Parameter)
	assert.Equal(t, 2, rep.Series[0].N)
	assert.Equal(t, 1, rep.Series[0].OutOfSpec)
	assert.Equal(t, 1, rep.Series[1].N)

	_, err = e.svc.Report(ctx, ReportRequest{From: now, To: now.Add(-time.Hour)})
	assert.Error(t, err)
}

func TestListMeasurements_ByWorkOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	other := e.sub(e.param, "8", now.Add(-time.Hour))
	other.Reference = "OT-78"
	_, err := e.svc.SubmitBatch(ctx, rc, []model.Submission{
		e.sub(e.param, "7", now.Add(-3*time.Hour)),
		e.sub(e.check, "no", now.Add(-2*time.Hour)),
		other,
	})
	require.NoError(t, err)

	recs, err := e.svc.ListMeasurements(ctx, store.MeasurementFilter{Reference: "OT-77"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, e.param.ID, recs[0].ParameterID)
	assert.Equal(t, e.check.ID, recs[1].ParameterID)

	recs, err = e.svc.ListMeasurements(ctx, store.MeasurementFilter{LineID: e.line.ID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "OT-78", recs[0].Reference)

	alerts, err := e.svc.ListAlerts(ctx, store.AlertFilter{Reference: "OT-77"})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.AlertCheckFailed, alerts[0].Kind)
}
