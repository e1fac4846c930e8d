package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
)

// sqliteTimeLayout is fixed width so text comparison orders correctly.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	// Connection-scoped pragmas go in the DSN so every pooled connection gets them.
	dsn += sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS lines (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS presentations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	line_id    INTEGER NOT NULL REFERENCES lines(id),
	created_at TEXT NOT NULL,
	deleted_at TEXT
);

CREATE TABLE IF NOT EXISTS control_types (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	line_id     INTEGER NOT NULL REFERENCES lines(id),
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS parameters (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	name            TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	kind            TEXT NOT NULL CHECK (kind IN ('NUMERIC', 'CHECK')),
	unit            TEXT NOT NULL DEFAULT '',
	lower_limit     REAL,
	upper_limit     REAL,
	control_type_id INTEGER NOT NULL REFERENCES control_types(id),
	created_at      TEXT NOT NULL,
	deleted_at      TEXT
);

CREATE TABLE IF NOT EXISTS parameter_overrides (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	presentation_id INTEGER NOT NULL REFERENCES presentations(id),
	parameter_id    INTEGER NOT NULL REFERENCES parameters(id),
	kind            TEXT CHECK (kind IN ('NUMERIC', 'CHECK')),
	unit            TEXT,
	lower_limit     REAL,
	upper_limit     REAL,
	updated_at      TEXT NOT NULL,
	UNIQUE (presentation_id, parameter_id)
);

CREATE TABLE IF NOT EXISTS measurements (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	line_id         INTEGER NOT NULL REFERENCES lines(id),
	presentation_id INTEGER NOT NULL REFERENCES presentations(id),
	control_type_id INTEGER NOT NULL REFERENCES control_types(id),
	parameter_id    INTEGER NOT NULL REFERENCES parameters(id),
	kind            TEXT NOT NULL,
	value           REAL,
	passed          INTEGER,
	taken_at        TEXT NOT NULL,
	reference       TEXT NOT NULL DEFAULT '',
	recorder_id     TEXT NOT NULL,
	note            TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	kind            TEXT NOT NULL,
	state           TEXT NOT NULL DEFAULT 'PENDING',
	description     TEXT NOT NULL DEFAULT '',
	record_id       INTEGER NOT NULL REFERENCES measurements(id),
	line_id         INTEGER NOT NULL,
	presentation_id INTEGER NOT NULL,
	control_type_id INTEGER NOT NULL,
	parameter_id    INTEGER NOT NULL,
	observed        REAL,
	lower_limit     REAL,
	upper_limit     REAL,
	reference       TEXT NOT NULL DEFAULT '',
	reviewer_id     TEXT NOT NULL DEFAULT '',
	review_note     TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL,
	resolved_at     TEXT,
	updated_at      TEXT NOT NULL,
	UNIQUE (record_id, kind)
);

CREATE INDEX IF NOT EXISTS idx_presentations_line ON presentations(line_id);
CREATE INDEX IF NOT EXISTS idx_control_types_line ON control_types(line_id);
CREATE INDEX IF NOT EXISTS idx_parameters_control_type ON parameters(control_type_id);
CREATE INDEX IF NOT EXISTS idx_measurements_series ON measurements(parameter_id, presentation_id, taken_at, id);
CREATE INDEX IF NOT EXISTS idx_measurements_line_taken ON measurements(line_id, taken_at);
CREATE INDEX IF NOT EXISTS idx_measurements_reference ON measurements(reference);
CREATE INDEX IF NOT EXISTS idx_alerts_state ON alerts(state);
CREATE INDEX IF NOT EXISTS idx_alerts_reference ON alerts(reference);
CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) conds() *conds {
	return &conds{
		ph: func(int) string { return "?" },
		tv: func(t time.Time) any { return sqliteTime(t) },
	}
}

// --- Lines ---

func (s *SQLiteStore) CreateLine(ctx context.Context, name string) (*model.Line, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO lines (name, created_at) VALUES (?, ?)`,
		name, sqliteTime(now),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert line %q", name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: line id")
	}
	return &model.Line{ID: id, Name: name, CreatedAt: now}, nil
}

func (s *SQLiteStore) GetLine(ctx context.Context, id int64) (*model.Line, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM lines WHERE id = ?`, id)
	l, err := scanSQLiteLine(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "sqlite: line %d", id)
	}
	return l, eris.Wrapf(err, "sqlite: get line %d", id)
}

func (s *SQLiteStore) ListLines(ctx context.Context) ([]model.Line, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM lines ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list lines")
	}
	defer rows.Close()

	var out []model.Line
	for rows.Next() {
		l, err := scanSQLiteLine(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan line")
		}
		out = append(out, *l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list lines iterate")
}

func scanSQLiteLine(row scannable) (*model.Line, error) {
	var l model.Line
	var created string
	if err := row.Scan(&l.ID, &l.Name, &created); err != nil {
		return nil, err
	}
	var err error
	l.CreatedAt, err = parseSQLiteTime(created)
	return &l, err
}

// --- Presentations ---

func (s *SQLiteStore) CreatePresentation(ctx context.Context, p model.Presentation) (*model.Presentation, error) {
	p.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO presentations (name, line_id, created_at) VALUES (?, ?, ?)`,
		p.Name, p.LineID, sqliteTime(p.CreatedAt),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert presentation %q", p.Name)
	}
	if p.ID, err = res.LastInsertId(); err != nil {
		return nil, eris.Wrap(err, "sqlite: presentation id")
	}
	p.DeletedAt = nil
	return &p, nil
}

func (s *SQLiteStore) GetPresentation(ctx context.Context, id int64) (*model.Presentation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, line_id, created_at, deleted_at FROM presentations WHERE id = ? AND deleted_at IS NULL`, id)
	p, err := scanSQLitePresentation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "sqlite: presentation %d", id)
	}
	return p, eris.Wrapf(err, "sqlite: get presentation %d", id)
}

func (s *SQLiteStore) ListPresentations(ctx context.Context, lineID int64) ([]model.Presentation, error) {
	query := `SELECT id, name, line_id, created_at, deleted_at FROM presentations WHERE deleted_at IS NULL`
	var args []any
	if lineID != 0 {
		query += ` AND line_id = ?`
		args = append(args, lineID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list presentations")
	}
	defer rows.Close()

	var out []model.Presentation
	for rows.Next() {
		p, err := scanSQLitePresentation(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan presentation")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list presentations iterate")
}

func (s *SQLiteStore) DeletePresentation(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE presentations SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		sqliteTime(time.Now()), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete presentation %d", id)
	}
	return checkRowsAffected(res, "presentation", id)
}

func scanSQLitePresentation(row scannable) (*model.Presentation, error) {
	var p model.Presentation
	var created string
	var deleted sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.LineID, &created, &deleted); err != nil {
		return nil, err
	}
	var err error
	if p.CreatedAt, err = parseSQLiteTime(created); err != nil {
		return nil, err
	}
	p.DeletedAt, err = parseNullSQLiteTime(deleted)
	return &p, err
}

// --- Control types ---

func (s *SQLiteStore) CreateControlType(ctx context.Context, ct model.ControlType) (*model.ControlType, error) {
	ct.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO control_types (name, description, line_id, created_at) VALUES (?, ?, ?, ?)`,
		ct.Name, ct.Description, ct.LineID, sqliteTime(ct.CreatedAt),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert control type %q", ct.Name)
	}
	if ct.ID, err = res.LastInsertId(); err != nil {
		return nil, eris.Wrap(err, "sqlite: control type id")
	}
	return &ct, nil
}

func (s *SQLiteStore) GetControlType(ctx context.Context, id int64) (*model.ControlType, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, line_id, created_at FROM control_types WHERE id = ?`, id)
	ct, err := scanSQLiteControlType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "sqlite: control type %d", id)
	}
	return ct, eris.Wrapf(err, "sqlite: get control type %d", id)
}

func (s *SQLiteStore) ListControlTypes(ctx context.Context, lineID int64) ([]model.ControlType, error) {
	query := `SELECT id, name, description, line_id, created_at FROM control_types`
	var args []any
	if lineID != 0 {
		query += ` WHERE line_id = ?`
		args = append(args, lineID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list control types")
	}
	defer rows.Close()

	var out []model.ControlType
	for rows.Next() {
		ct, err := scanSQLiteControlType(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan control type")
		}
		out = append(out, *ct)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list control types iterate")
}

func scanSQLiteControlType(row scannable) (*model.ControlType, error) {
	var ct model.ControlType
	var created string
	if err := row.Scan(&ct.ID, &ct.Name, &ct.Description, &ct.LineID, &created); err != nil {
		return nil, err
	}
	var err error
	ct.CreatedAt, err = parseSQLiteTime(created)
	return &ct, err
}

// --- Parameters ---

const parameterColumns = `id, name, description, kind, unit, lower_limit, upper_limit, control_type_id, created_at, deleted_at`

func (s *SQLiteStore) CreateParameter(ctx context.Context, p model.Parameter) (*model.Parameter, error) {
	p.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO parameters (name, description, kind, unit, lower_limit, upper_limit, control_type_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Description, string(p.Kind), p.Unit, nullable(p.Lower), nullable(p.Upper), p.ControlTypeID, sqliteTime(p.CreatedAt),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert parameter %q", p.Name)
	}
	if p.ID, err = res.LastInsertId(); err != nil {
		return nil, eris.Wrap(err, "sqlite: parameter id")
	}
	p.DeletedAt = nil
	return &p, nil
}

func (s *SQLiteStore) GetParameter(ctx context.Context, id int64) (*model.Parameter, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+parameterColumns+` FROM parameters WHERE id = ? AND deleted_at IS NULL`, id)
	p, err := scanSQLiteParameter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "sqlite: parameter %d", id)
	}
	return p, eris.Wrapf(err, "sqlite: get parameter %d", id)
}

func (s *SQLiteStore) ListParameters(ctx context.Context, controlTypeID int64) ([]model.Parameter, error) {
	query := `SELECT ` + parameterColumns + ` FROM parameters WHERE deleted_at IS NULL`
	var args []any
	if controlTypeID != 0 {
		query += ` AND control_type_id = ?`
		args = append(args, controlTypeID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list parameters")
	}
	defer rows.Close()

	var out []model.Parameter
	for rows.Next() {
		p, err := scanSQLiteParameter(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan parameter")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list parameters iterate")
}

func (s *SQLiteStore) UpdateParameter(ctx context.Context, p model.Parameter) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE parameters SET name = ?, description = ?, kind = ?, unit = ?, lower_limit = ?, upper_limit = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		p.Name, p.Description, string(p.Kind), p.Unit, nullable(p.Lower), nullable(p.Upper), p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update parameter %d", p.ID)
	}
	return checkRowsAffected(res, "parameter", p.ID)
}

func (s *SQLiteStore) DeleteParameter(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE parameters SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		sqliteTime(time.Now()), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete parameter %d", id)
	}
	return checkRowsAffected(res, "parameter", id)
}

func scanSQLiteParameter(row scannable) (*model.Parameter, error) {
	var p model.Parameter
	var kind, created string
	var lower, upper sql.NullFloat64
	var deleted sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &kind, &p.Unit, &lower, &upper, &p.ControlTypeID, &created, &deleted); err != nil {
		return nil, err
	}
	p.Kind = model.ParameterKind(kind)
	p.Lower = nullFloat(lower)
	p.Upper = nullFloat(upper)
	var err error
	if p.CreatedAt, err = parseSQLiteTime(created); err != nil {
		return nil, err
	}
	p.DeletedAt, err = parseNullSQLiteTime(deleted)
	return &p, err
}

// --- Overrides ---

func (s *SQLiteStore) UpsertOverride(ctx context.Context, o model.ParameterOverride) (*model.ParameterOverride, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO parameter_overrides (presentation_id, parameter_id, kind, unit, lower_limit, upper_limit, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (presentation_id, parameter_id) DO UPDATE SET
		   kind = excluded.kind, unit = excluded.unit,
		   lower_limit = excluded.lower_limit, upper_limit = excluded.upper_limit,
		   updated_at = excluded.updated_at`,
		o.PresentationID, o.ParameterID, nullableKind(o.Kind), nullable(o.Unit), nullable(o.Lower), nullable(o.Upper), sqliteTime(time.Now()),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert override %d/%d", o.PresentationID, o.ParameterID)
	}
	return s.GetOverride(ctx, o.PresentationID, o.ParameterID)
}

func (s *SQLiteStore) GetOverride(ctx context.Context, presentationID, parameterID int64) (*model.ParameterOverride, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, presentation_id, parameter_id, kind, unit, lower_limit, upper_limit, updated_at
		 FROM parameter_overrides WHERE presentation_id = ? AND parameter_id = ?`,
		presentationID, parameterID,
	)

	var o model.ParameterOverride
	var kind, unit sql.NullString
	var lower, upper sql.NullFloat64
	var updated string
	err := row.Scan(&o.ID, &o.PresentationID, &o.ParameterID, &kind, &unit, &lower, &upper, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get override %d/%d", presentationID, parameterID)
	}
	if kind.Valid {
		k := model.ParameterKind(kind.String)
		o.Kind = &k
	}
	if unit.Valid {
		o.Unit = &unit.String
	}
	o.Lower = nullFloat(lower)
	o.Upper = nullFloat(upper)
	o.UpdatedAt, err = parseSQLiteTime(updated)
	return &o, err
}

func (s *SQLiteStore) DeleteOverride(ctx context.Context, presentationID, parameterID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM parameter_overrides WHERE presentation_id = ? AND parameter_id = ?`,
		presentationID, parameterID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete override %d/%d", presentationID, parameterID)
	}
	return checkRowsAffected(res, "override for parameter", parameterID)
}

// --- Measurements ---

func (s *SQLiteStore) AppendMeasurements(ctx context.Context, entries []model.Entry) ([]model.Entry, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin append")
	}

	out, err := s.appendInTx(ctx, tx, entries)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return nil, eris.Wrapf(err, "sqlite: rollback failed (%v)", rbErr)
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit append")
	}
	return out, nil
}

func (s *SQLiteStore) appendInTx(ctx context.Context, tx *sql.Tx, entries []model.Entry) ([]model.Entry, error) {
	now := time.Now().UTC()
	out := make([]model.Entry, len(entries))
	for i, e := range entries {
		rec := e.Record
		rec.CreatedAt = now
		res, err := tx.ExecContext(ctx,
			`INSERT INTO measurements (line_id, presentation_id, control_type_id, parameter_id, kind, value, passed, taken_at, reference, recorder_id, note, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.LineID, rec.PresentationID, rec.ControlTypeID, rec.ParameterID, string(rec.Kind),
			nullable(rec.Value), nullable(rec.Passed), sqliteTime(rec.TakenAt), rec.Reference, rec.RecorderID, rec.Note, sqliteTime(now),
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert measurement %d", i)
		}
		if rec.ID, err = res.LastInsertId(); err != nil {
			return nil, eris.Wrap(err, "sqlite: measurement id")
		}
		out[i].Record = rec

		if e.Alert == nil {
			continue
		}
		a := *e.Alert
		a.RecordID = rec.ID
		a.State = model.AlertPending
		a.CreatedAt, a.UpdatedAt = now, now
		a.ResolvedAt = nil
		res, err = tx.ExecContext(ctx,
			`INSERT INTO alerts (kind, state, description, record_id, line_id, presentation_id, control_type_id, parameter_id, observed, lower_limit, upper_limit, reference, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(a.Kind), string(a.State), a.Description, a.RecordID, a.LineID, a.PresentationID, a.ControlTypeID, a.ParameterID,
			nullable(a.Observed), nullable(a.Lower), nullable(a.Upper), a.Reference, sqliteTime(now), sqliteTime(now),
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert alert for measurement %d", rec.ID)
		}
		if a.ID, err = res.LastInsertId(); err != nil {
			return nil, eris.Wrap(err, "sqlite: alert id")
		}
		out[i].Alert = &a
	}
	return out, nil
}

func (s *SQLiteStore) ListMeasurements(ctx context.Context, filter MeasurementFilter) ([]model.MeasurementRecord, error) {
	c := s.conds()
	rows, err := s.db.QueryContext(ctx, measurementQuery(c, filter), c.args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list measurements")
	}
	defer rows.Close()

	var out []model.MeasurementRecord
	for rows.Next() {
		r, err := scanSQLiteMeasurement(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan measurement")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list measurements iterate")
}

func (s *SQLiteStore) ListSeriesKeys(ctx context.Context, filter MeasurementFilter) ([]model.SeriesKey, error) {
	c := s.conds()
	rows, err := s.db.QueryContext(ctx, seriesKeyQuery(c, filter), c.args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list series keys")
	}
	defer rows.Close()

	var out []model.SeriesKey
	for rows.Next() {
		var k model.SeriesKey
		if err := rows.Scan(&k.LineID, &k.PresentationID, &k.ControlTypeID, &k.ParameterID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan series key")
		}
		out = append(out, k)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list series keys iterate")
}

func scanSQLiteMeasurement(row scannable) (*model.MeasurementRecord, error) {
	var r model.MeasurementRecord
	var kind, taken, created string
	var value sql.NullFloat64
	var passed sql.NullBool
	err := row.Scan(&r.ID, &r.LineID, &r.PresentationID, &r.ControlTypeID, &r.ParameterID, &kind,
		&value, &passed, &taken, &r.Reference, &r.RecorderID, &r.Note, &created)
	if err != nil {
		return nil, err
	}
	r.Kind = model.ParameterKind(kind)
	r.Value = nullFloat(value)
	if passed.Valid {
		b := passed.Bool
		r.Passed = &b
	}
	if r.TakenAt, err = parseSQLiteTime(taken); err != nil {
		return nil, err
	}
	r.CreatedAt, err = parseSQLiteTime(created)
	return &r, err
}

// --- Alerts ---

func (s *SQLiteStore) GetAlert(ctx context.Context, id int64) (*model.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	a, err := scanSQLiteAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "sqlite: alert %d", id)
	}
	return a, eris.Wrapf(err, "sqlite: get alert %d", id)
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	c := s.conds()
	rows, err := s.db.QueryContext(ctx, alertQuery(c, filter), c.args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list alerts")
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		a, err := scanSQLiteAlert(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alert")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list alerts iterate")
}

func (s *SQLiteStore) CompareAndSetAlertState(ctx context.Context, t model.AlertTransition) (*model.Alert, error) {
	at := sqliteTime(t.At)
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET state = ?, reviewer_id = ?, review_note = ?, updated_at = ?, resolved_at = COALESCE(resolved_at, ?)
		 WHERE id = ? AND state = ?`,
		string(t.To), t.ReviewerID, t.Note, at, at, t.ID, string(t.From),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: transition alert %d", t.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		if _, err := s.GetAlert(ctx, t.ID); err != nil {
			return nil, err
		}
		return nil, eris.Wrapf(model.ErrConflict, "sqlite: alert %d is no longer %s", t.ID, t.From)
	}
	return s.GetAlert(ctx, t.ID)
}

func scanSQLiteAlert(row scannable) (*model.Alert, error) {
	var a model.Alert
	var kind, state, created, updated string
	var observed, lower, upper sql.NullFloat64
	var resolved sql.NullString
	err := row.Scan(&a.ID, &kind, &state, &a.Description, &a.RecordID, &a.LineID, &a.PresentationID,
		&a.ControlTypeID, &a.ParameterID, &observed, &lower, &upper, &a.Reference, &a.ReviewerID,
		&a.ReviewNote, &created, &resolved, &updated)
	if err != nil {
		return nil, err
	}
	a.Kind = model.AlertKind(kind)
	a.State = model.AlertState(state)
	a.Observed = nullFloat(observed)
	a.Lower = nullFloat(lower)
	a.Upper = nullFloat(upper)
	if a.CreatedAt, err = parseSQLiteTime(created); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseSQLiteTime(updated); err != nil {
		return nil, err
	}
	a.ResolvedAt, err = parseNullSQLiteTime(resolved)
	return &a, err
}

// --- Reports ---

func (s *SQLiteStore) SummarizeAlerts(ctx context.Context, since time.Time) (*model.AlertSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state, kind, substr(created_at, 1, 10), COUNT(*) FROM alerts
		 WHERE created_at >= ? GROUP BY 1, 2, 3`,
		sqliteTime(since),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: summarize alerts")
	}
	defer rows.Close()

	var counts []alertCountRow
	for rows.Next() {
		var r alertCountRow
		var state, kind string
		if err := rows.Scan(&state, &kind, &r.day, &r.n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alert count")
		}
		r.state, r.kind = model.AlertState(state), model.AlertKind(kind)
		counts = append(counts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: summarize alerts iterate")
	}
	return summarize(since, counts), nil
}

func (s *SQLiteStore) Conformity(ctx context.Context, from, to time.Time) ([]model.LineConformity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT l.id, l.name, COUNT(m.id), COUNT(m.id) - COUNT(a.record_id)
		 FROM lines l
		 LEFT JOIN measurements m ON m.line_id = l.id AND m.taken_at >= ? AND m.taken_at <= ?
		 LEFT JOIN (SELECT DISTINCT record_id FROM alerts) a ON a.record_id = m.id
		 GROUP BY l.id, l.name ORDER BY l.id`,
		sqliteTime(from), sqliteTime(openEnd(to)),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: conformity")
	}
	defer rows.Close()

	var out []model.LineConformity
	for rows.Next() {
		var c model.LineConformity
		if err := rows.Scan(&c.LineID, &c.LineName, &c.Records, &c.Conforming); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan conformity")
		}
		c.ComputeRate()
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: conformity iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(model.ErrNotFound, "%s %d", entity, id)
	}
	return nil
}

func sqliteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	return t, eris.Wrapf(err, "sqlite: parse time %q", s)
}

func parseNullSQLiteTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseSQLiteTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
