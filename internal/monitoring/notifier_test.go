package monitoring

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
)

type recordingPoster struct {
	mu      sync.Mutex
	notices []Notice
	got     chan struct{}
}

func (p *recordingPoster) Post(_ context.Context, n Notice) error {
	p.mu.Lock()
	p.notices = append(p.notices, n)
	p.mu.Unlock()
	p.got <- struct{}{}
	return nil
}

func entryWithAlert(id int64, kind model.AlertKind) model.Entry {
	return model.Entry{
		Record: model.MeasurementRecord{ID: id * 10, LineID: 1, PresentationID: 2, ControlTypeID: 3, ParameterID: 4},
		Alert:  &model.Alert{ID: id, Kind: kind, RecordID: id * 10, Description: "Humedad out of range", Reference: "OT-1"},
	}
}

func TestNotifier_DeliversAlertNotices(t *testing.T) {
	poster := &recordingPoster{got: make(chan struct{}, 10)}
	n := NewNotifier(poster, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	n.Committed(ctx, []model.Entry{
		entryWithAlert(1, model.AlertOutOfSpec),
		{Record: model.MeasurementRecord{ID: 99}},
		entryWithAlert(2, model.AlertCheckFailed),
	})

	for i := 0; i < 2; i++ {
		select {
		case <-poster.got:
		case <-time.After(5 * time.Second):
			t.Fatal("notice not delivered")
		}
	}

	poster.mu.Lock()
	defer poster.mu.Unlock()
	require.Len(t, poster.notices, 2)
	first := poster.notices[0]
	assert.Equal(t, NoticeNewAlert, first.Type)
	assert.Equal(t, "high", first.Severity)
	assert.Equal(t, int64(1), first.Details["alert_id"])
	assert.Equal(t, "1/2/3/4", first.Details["series"])
	assert.Contains(t, first.Message, "OUT_OF_SPEC alert 1")
	assert.Equal(t, "medium", poster.notices[1].Severity)
}

func TestNotifier_DropsWhenFull(t *testing.T) {
	n := NewNotifier(&recordingPoster{got: make(chan struct{}, 1)}, 1)

	entries := make([]model.Entry, notifierQueue+5)
	for i := range entries {
		entries[i] = entryWithAlert(int64(i+1), model.AlertOutOfSpec)
	}
	// Nothing drains the queue; Committed must still return.
	n.Committed(context.Background(), entries)
	assert.Len(t, n.queue, notifierQueue)
}
