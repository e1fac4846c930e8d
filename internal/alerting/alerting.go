// Package alerting decides when a measurement raises an alert and moves
// alerts through their review states.
package alerting

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
	"github.com/BrendaWanda/ControlCalidad/internal/spc"
)

// RaiseIfNeeded returns the alert a record triggers, or nil. NUMERIC records
// raise OUT_OF_SPEC only on a spec violation; a point that is only beyond the
// control limits raises nothing. CHECK records raise CHECK_FAILED when the
// check was not met. cls may be nil when no classification is available.
func RaiseIfNeeded(rec model.MeasurementRecord, def model.EffectiveParameterDefinition, cls *spc.Classification) *model.Alert {
	base := model.Alert{
		State:          model.AlertPending,
		RecordID:       rec.ID,
		LineID:         rec.LineID,
		PresentationID: rec.PresentationID,
		ControlTypeID:  rec.ControlTypeID,
		ParameterID:    rec.ParameterID,
		Reference:      rec.Reference,
	}

	switch def.Kind {
	case model.KindNumeric:
		if rec.Value == nil {
			return nil
		}
		x := *rec.Value
		if !def.OutOfSpec(x) {
			return nil
		}
		a := base
		a.Kind = model.AlertOutOfSpec
		a.Observed = model.Float(x)
		a.Lower = copyFloat(def.Lower)
		a.Upper = copyFloat(def.Upper)
		a.Description = describeOutOfSpec(def, x, rec.Reference, cls != nil && cls.OutOfControl)
		return &a
	case model.KindCheck:
		if rec.Passed == nil || *rec.Passed {
			return nil
		}
		a := base
		a.Kind = model.AlertCheckFailed
		a.Description = describeCheckFailed(def, rec.Reference)
		return &a
	}
	return nil
}

func describeOutOfSpec(def model.EffectiveParameterDefinition, x float64, ref string, beyond3Sigma bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s out of range: observed %s%s, allowed [%s, %s]",
		def.Name, formatFloat(x), unitSuffix(def.Unit), bound(def.Lower, "-inf"), bound(def.Upper, "+inf"))
	if beyond3Sigma {
		b.WriteString("; also beyond 3 sigma")
	}
	if ref != "" {
		fmt.Fprintf(&b, " (ref %s)", ref)
	}
	return b.String()
}

func describeCheckFailed(def model.EffectiveParameterDefinition, ref string) string {
	s := fmt.Sprintf("%s: check not met", def.Name)
	if ref != "" {
		s += fmt.Sprintf(" (ref %s)", ref)
	}
	return s
}

func formatFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}

func bound(p *float64, open string) string {
	if p == nil {
		return open
	}
	return formatFloat(*p)
}

func unitSuffix(unit string) string {
	if unit == "" {
		return ""
	}
	return " " + unit
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	return model.Float(*p)
}

// CanTransition reports whether an alert may move from one state to another.
// PENDING is only ever an initial state; CONFIRMED and REJECTED are final.
func CanTransition(from, to model.AlertState) bool {
	if to == model.AlertPending || from.Terminal() {
		return false
	}
	switch from {
	case model.AlertPending:
		return to == model.AlertConfirmed || to == model.AlertInProgress || to == model.AlertRejected
	case model.AlertInProgress:
		return to == model.AlertConfirmed || to == model.AlertRejected
	}
	return false
}

// Store is the persistence the manager needs.
type Store interface {
	GetAlert(ctx context.Context, id int64) (*model.Alert, error)
	// CompareAndSetAlertState applies t only while the alert is still in
	// t.From. It fails with model.ErrConflict otherwise.
	CompareAndSetAlertState(ctx context.Context, t model.AlertTransition) (*model.Alert, error)
}

// Manager applies reviewer transitions.
type Manager struct {
	store Store
	now   func() time.Time
}

// NewManager returns a Manager backed by store.
func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

// Transition moves an alert to target on behalf of a reviewer. It fails with
// model.ErrInvalidTransition when the state machine forbids the move and with
// model.ErrConflict when another reviewer changed the alert first.
func (m *Manager) Transition(ctx context.Context, rc model.RequestContext, id int64, target model.AlertState, note string) (*model.Alert, error) {
	cur, err := m.store.GetAlert(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "alerting: load alert %d", id)
	}
	if !CanTransition(cur.State, target) {
		return nil, eris.Wrapf(model.ErrInvalidTransition, "alerting: alert %d from %s to %s", id, cur.State, target)
	}

	updated, err := m.store.CompareAndSetAlertState(ctx, model.AlertTransition{
		ID:         id,
		From:       cur.State,
		To:         target,
		ReviewerID: strings.TrimSpace(rc.RecorderID),
		Note:       note,
		At:         m.now().UTC(),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "alerting: transition alert %d", id)
	}

	zap.L().Info("alert transitioned",
		zap.Int64("alert_id", id),
		zap.String("from", string(cur.State)),
		zap.String("to", string(target)),
		zap.String("reviewer", rc.RecorderID),
	)
	return updated, nil
}
