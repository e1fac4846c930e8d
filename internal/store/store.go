// Package store persists the catalog, the append-only measurement log and
// alerts.
package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
)

// DefaultListLimit caps list queries that do not set a limit.
const DefaultListLimit = 100

// MeasurementFilter selects records. Zero ids and an empty reference (work
// order) match any value; zero times leave the range open. From and To are inclusive. When Latest is set and
// Limit is positive the newest Limit records are returned, still in
// ascending order.
type MeasurementFilter struct {
	LineID         int64               `json:"line_id,omitempty"`
	PresentationID int64               `json:"presentation_id,omitempty"`
	ControlTypeID  int64               `json:"control_type_id,omitempty"`
	ParameterID    int64               `json:"parameter_id,omitempty"`
	Kind           model.ParameterKind `json:"kind,omitempty"`
	Reference      string              `json:"reference,omitempty"`
	From           time.Time           `json:"from,omitempty"`
	To             time.Time           `json:"to,omitempty"`
	Limit          int                 `json:"limit,omitempty"`
	Latest         bool                `json:"latest,omitempty"`
}

// SeriesFilter returns a filter matching exactly one series.
func SeriesFilter(key model.SeriesKey) MeasurementFilter {
	return MeasurementFilter{
		LineID:         key.LineID,
		PresentationID: key.PresentationID,
		ControlTypeID:  key.ControlTypeID,
		ParameterID:    key.ParameterID,
	}
}

// AlertFilter selects alerts. Zero values match anything. Results are
// ordered newest first.
type AlertFilter struct {
	LineID         int64            `json:"line_id,omitempty"`
	PresentationID int64            `json:"presentation_id,omitempty"`
	ControlTypeID  int64            `json:"control_type_id,omitempty"`
	ParameterID    int64            `json:"parameter_id,omitempty"`
	State          model.AlertState `json:"state,omitempty"`
	Kind           model.AlertKind  `json:"kind,omitempty"`
	Reference      string           `json:"reference,omitempty"`
	From           time.Time        `json:"from,omitempty"`
	To             time.Time        `json:"to,omitempty"`
	Limit          int              `json:"limit,omitempty"`
	Offset         int              `json:"offset,omitempty"`
}

// Store defines the persistence interface. Getters of catalog entities
// return an error wrapping model.ErrNotFound for missing or soft-deleted
// rows.
type Store interface {
	// Lines
	CreateLine(ctx context.Context, name string) (*model.Line, error)
	GetLine(ctx context.Context, id int64) (*model.Line, error)
	ListLines(ctx context.Context) ([]model.Line, error)

	// Presentations
	CreatePresentation(ctx context.Context, p model.Presentation) (*model.Presentation, error)
	GetPresentation(ctx context.Context, id int64) (*model.Presentation, error)
	ListPresentations(ctx context.Context, lineID int64) ([]model.Presentation, error)
	DeletePresentation(ctx context.Context, id int64) error

	// Control types
	CreateControlType(ctx context.Context, ct model.ControlType) (*model.ControlType, error)
	GetControlType(ctx context.Context, id int64) (*model.ControlType, error)
	ListControlTypes(ctx context.Context, lineID int64) ([]model.ControlType, error)

	// Parameters
	CreateParameter(ctx context.Context, p model.Parameter) (*model.Parameter, error)
	GetParameter(ctx context.Context, id int64) (*model.Parameter, error)
	ListParameters(ctx context.Context, controlTypeID int64) ([]model.Parameter, error)
	UpdateParameter(ctx context.Context, p model.Parameter) error
	DeleteParameter(ctx context.Context, id int64) error

	// Overrides. GetOverride returns nil, nil when none exists.
	UpsertOverride(ctx context.Context, o model.ParameterOverride) (*model.ParameterOverride, error)
	GetOverride(ctx context.Context, presentationID, parameterID int64) (*model.ParameterOverride, error)
	DeleteOverride(ctx context.Context, presentationID, parameterID int64) error

	// Measurements. AppendMeasurements writes every record and its alert in
	// one transaction and returns the entries with ids assigned.
	AppendMeasurements(ctx context.Context, entries []model.Entry) ([]model.Entry, error)
	ListMeasurements(ctx context.Context, filter MeasurementFilter) ([]model.MeasurementRecord, error)
	ListSeriesKeys(ctx context.Context, filter MeasurementFilter) ([]model.SeriesKey, error)

	// Alerts
	GetAlert(ctx context.Context, id int64) (*model.Alert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error)
	CompareAndSetAlertState(ctx context.Context, t model.AlertTransition) (*model.Alert, error)

	// Reports
	SummarizeAlerts(ctx context.Context, since time.Time) (*model.AlertSummary, error)
	Conformity(ctx context.Context, from, to time.Time) ([]model.LineConformity, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

type scannable interface {
	Scan(dest ...any) error
}

type alertCountRow struct {
	state model.AlertState
	kind  model.AlertKind
	day   string
	n     int
}

func summarize(since time.Time, rows []alertCountRow) *model.AlertSummary {
	s := &model.AlertSummary{
		Since:   since,
		ByState: map[model.AlertState]int{},
		ByKind:  map[model.AlertKind]int{},
	}
	perDay := map[string]int{}
	for _, r := range rows {
		s.Total += r.n
		s.ByState[r.state] += r.n
		s.ByKind[r.kind] += r.n
		perDay[r.day] += r.n
	}
	s.PerDay = make([]model.DayCount, 0, len(perDay))
	for day, n := range perDay {
		s.PerDay = append(s.PerDay, model.DayCount{Day: day, Count: n})
	}
	sort.Slice(s.PerDay, func(i, j int) bool { return s.PerDay[i].Day < s.PerDay[j].Day })
	return s
}

func listLimit(n int) int {
	if n <= 0 {
		return DefaultListLimit
	}
	return n
}

// conds accumulates WHERE clauses with driver-specific placeholders.
type conds struct {
	parts []string
	args  []any
	ph    func(n int) string
	tv    func(t time.Time) any
}

func (c *conds) arg(v any) string {
	c.args = append(c.args, v)
	return c.ph(len(c.args))
}

func (c *conds) eq(col string, v any) {
	c.parts = append(c.parts, col+" = "+c.arg(v))
}

func (c *conds) cmpTime(col, op string, t time.Time) {
	c.parts = append(c.parts, col+" "+op+" "+c.arg(c.tv(t)))
}

func (c *conds) where() string {
	if len(c.parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.parts, " AND ")
}

func (c *conds) measurement(f MeasurementFilter) {
	if f.LineID != 0 {
		c.eq("line_id", f.LineID)
	}
	if f.PresentationID != 0 {
		c.eq("presentation_id", f.PresentationID)
	}
	if f.ControlTypeID != 0 {
		c.eq("control_type_id", f.ControlTypeID)
	}
	if f.ParameterID != 0 {
		c.eq("parameter_id", f.ParameterID)
	}
	if f.Kind != "" {
		c.eq("kind", string(f.Kind))
	}
	if ref := strings.TrimSpace(f.Reference); ref != "" {
		c.eq("reference", ref)
	}
	if !f.From.IsZero() {
		c.cmpTime("taken_at", ">=", f.From)
	}
	if !f.To.IsZero() {
		c.cmpTime("taken_at", "<=", f.To)
	}
}

func (c *conds) alert(f AlertFilter) {
	if f.LineID != 0 {
		c.eq("line_id", f.LineID)
	}
	if f.PresentationID != 0 {
		c.eq("presentation_id", f.PresentationID)
	}
	if f.ControlTypeID != 0 {
		c.eq("control_type_id", f.ControlTypeID)
	}
	if f.ParameterID != 0 {
		c.eq("parameter_id", f.ParameterID)
	}
	if f.State != "" {
		c.eq("state", string(f.State))
	}
	if f.Kind != "" {
		c.eq("kind", string(f.Kind))
	}
	if ref := strings.TrimSpace(f.Reference); ref != "" {
		c.eq("reference", ref)
	}
	if !f.From.IsZero() {
		c.cmpTime("created_at", ">=", f.From)
	}
	if !f.To.IsZero() {
		c.cmpTime("created_at", "<=", f.To)
	}
}

const measurementColumns = `id, line_id, presentation_id, control_type_id, parameter_id, kind, value, passed, taken_at, reference, recorder_id, note, created_at`

const alertColumns = `id, kind, state, description, record_id, line_id, presentation_id, control_type_id, parameter_id, observed, lower_limit, upper_limit, reference, reviewer_id, review_note, created_at, resolved_at, updated_at`

// measurementQuery builds the series read. With Latest the newest rows are
// picked first and then re-ordered ascending by (taken_at, id).
func measurementQuery(c *conds, f MeasurementFilter) string {
	c.measurement(f)
	base := `SELECT ` + measurementColumns + ` FROM measurements` + c.where()
	if f.Limit > 0 && f.Latest {
		return `SELECT ` + measurementColumns + ` FROM (` + base +
			` ORDER BY taken_at DESC, id DESC LIMIT ` + c.arg(f.Limit) + `) AS recent ORDER BY taken_at, id`
	}
	q := base + ` ORDER BY taken_at, id`
	if f.Limit > 0 {
		q += ` LIMIT ` + c.arg(f.Limit)
	}
	return q
}

func alertQuery(c *conds, f AlertFilter) string {
	c.alert(f)
	q := `SELECT ` + alertColumns + ` FROM alerts` + c.where() + ` ORDER BY created_at DESC, id DESC`
	q += ` LIMIT ` + c.arg(listLimit(f.Limit))
	if f.Offset > 0 {
		q += ` OFFSET ` + c.arg(f.Offset)
	}
	return q
}

func seriesKeyQuery(c *conds, f MeasurementFilter) string {
	c.measurement(f)
	return `SELECT DISTINCT line_id, presentation_id, control_type_id, parameter_id FROM measurements` +
		c.where() + ` ORDER BY line_id, presentation_id, control_type_id, parameter_id`
}

// nullable turns an optional field into a driver argument: nil or the value.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableKind(k *model.ParameterKind) any {
	if k == nil {
		return nil
	}
	return string(*k)
}

// openEnd replaces a zero upper bound with one no timestamp reaches.
func openEnd(to time.Time) time.Time {
	if to.IsZero() {
		return time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
	}
	return to
}
