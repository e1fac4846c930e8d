package tsdb

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
	"github.com/BrendaWanda/ControlCalidad/internal/resilience"
)

type mockWriteAPI struct {
	mu     sync.Mutex
	points []*write.Point
	fails  int
	calls  int
	done   chan struct{}
}

func (m *mockWriteAPI) WritePoint(_ context.Context, point ...*write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.fails {
		return errors.New("influx unavailable")
	}
	m.points = append(m.points, point...)
	if m.done != nil {
		m.done <- struct{}{}
	}
	return nil
}

func (m *mockWriteAPI) WriteRecord(context.Context, ...string) error { return nil }
func (m *mockWriteAPI) EnableBatching()                              {}
func (m *mockWriteAPI) Flush(context.Context) error                  { return nil }

var takenAt = time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)

func numericEntry() model.Entry {
	return model.Entry{
		Record: model.MeasurementRecord{
			ID: 42, LineID: 1, PresentationID: 2, ControlTypeID: 3, ParameterID: 4,
			Kind: model.KindNumeric, Value: model.Float(12.5), TakenAt: takenAt, Reference: "OT-9",
		},
		Alert: &model.Alert{ID: 7, Kind: model.AlertOutOfSpec},
	}
}

func TestPoint_Numeric(t *testing.T) {
	lp := write.PointToLineProtocol(Point(numericEntry()), time.Second)

	assert.True(t, strings.HasPrefix(lp, Measurement+","), lp)
	assert.Contains(t, lp, "line_id=1")
	assert.Contains(t, lp, "parameter_id=4")
	assert.Contains(t, lp, "kind=NUMERIC")
	assert.Contains(t, lp, "value=12.5")
	assert.Contains(t, lp, "alert=true")
	assert.Contains(t, lp, "record_id=42i")
	assert.Contains(t, lp, `reference="OT-9"`)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(lp), " 1749983400"), lp)
}

func TestPoint_Check(t *testing.T) {
	passed := true
	e := model.Entry{Record: model.MeasurementRecord{ID: 1, Kind: model.KindCheck, Passed: &passed, TakenAt: takenAt}}
	lp := write.PointToLineProtocol(Point(e), time.Second)

	assert.Contains(t, lp, "passed=true")
	assert.Contains(t, lp, "alert=false")
	assert.NotContains(t, lp, "value=")
	assert.NotContains(t, lp, "reference=")
}

func TestSink_WritesCommittedEntries(t *testing.T) {
	w := &mockWriteAPI{done: make(chan struct{}, 1)}
	s := NewSink(w)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Committed(ctx, []model.Entry{numericEntry(), numericEntry()})

	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		t.Fatal("points not written")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Len(t, w.points, 2)
}

func TestSink_RetriesFailedWrites(t *testing.T) {
	w := &mockWriteAPI{fails: 2}
	s := NewSink(w)
	s.policy = resilience.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	require.NoError(t, s.write(context.Background(), []*write.Point{Point(numericEntry())}))
	assert.Equal(t, 3, w.calls)
	assert.Len(t, w.points, 1)
}

func TestSink_DropsWhenFull(t *testing.T) {
	s := NewSink(&mockWriteAPI{})
	for i := 0; i < sinkQueue+3; i++ {
		s.Committed(context.Background(), []model.Entry{numericEntry()})
	}
	assert.Len(t, s.queue, sinkQueue)
}
