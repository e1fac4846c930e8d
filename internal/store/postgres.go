package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/BrendaWanda/ControlCalidad/internal/db"
	"github.com/BrendaWanda/ControlCalidad/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	insertMeasurementSQL = `INSERT INTO measurements (line_id, presentation_id, control_type_id, parameter_id, kind, value, passed, taken_at, reference, recorder_id, note, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`
	insertAlertSQL       = `INSERT INTO alerts (kind, state, description, record_id, line_id, presentation_id, control_type_id, parameter_id, observed, lower_limit, upper_limit, reference, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13) RETURNING id`
	casAlertSQL          = `UPDATE alerts SET state = $1, reviewer_id = $2, review_note = $3, updated_at = $4, resolved_at = COALESCE(resolved_at, $4) WHERE id = $5 AND state = $6 RETURNING ` + alertColumns
	getAlertSQL          = `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	getParameterSQL      = `SELECT ` + parameterColumns + ` FROM parameters WHERE id = $1 AND deleted_at IS NULL`
	getPresentationSQL   = `SELECT id, name, line_id, created_at, deleted_at FROM presentations WHERE id = $1 AND deleted_at IS NULL`
	getControlTypeSQL    = `SELECT id, name, description, line_id, created_at FROM control_types WHERE id = $1`
	getOverrideSQL       = `SELECT id, presentation_id, parameter_id, kind, unit, lower_limit, upper_limit, updated_at FROM parameter_overrides WHERE presentation_id = $1 AND parameter_id = $2`
)

// preparedStatements lists queries to prepare on each new connection. They
// cover the submit path: resolution, record insert and alert insert.
var preparedStatements = map[string]string{
	"insert_measurement": insertMeasurementSQL,
	"insert_alert":       insertAlertSQL,
	"cas_alert":          casAlertSQL,
	"get_alert":          getAlertSQL,
	"get_parameter":      getParameterSQL,
	"get_presentation":   getPresentationSQL,
	"get_control_type":   getControlTypeSQL,
	"get_override":       getOverrideSQL,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// Tables may not exist before the first migrate.
		var ready bool
		if err := conn.QueryRow(ctx, `SELECT to_regclass('alerts') IS NOT NULL`).Scan(&ready); err != nil || !ready {
			return nil
		}
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS lines (
	id         BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS presentations (
	id         BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	name       TEXT NOT NULL,
	line_id    BIGINT NOT NULL REFERENCES lines(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS control_types (
	id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	line_id     BIGINT NOT NULL REFERENCES lines(id),
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS parameters (
	id              BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	name            TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	kind            TEXT NOT NULL CHECK (kind IN ('NUMERIC', 'CHECK')),
	unit            TEXT NOT NULL DEFAULT '',
	lower_limit     DOUBLE PRECISION,
	upper_limit     DOUBLE PRECISION,
	control_type_id BIGINT NOT NULL REFERENCES control_types(id),
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at      TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS parameter_overrides (
	id              BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	presentation_id BIGINT NOT NULL REFERENCES presentations(id),
	parameter_id    BIGINT NOT NULL REFERENCES parameters(id),
	kind            TEXT CHECK (kind IN ('NUMERIC', 'CHECK')),
	unit            TEXT,
	lower_limit     DOUBLE PRECISION,
	upper_limit     DOUBLE PRECISION,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (presentation_id, parameter_id)
);

CREATE TABLE IF NOT EXISTS measurements (
	id              BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	line_id         BIGINT NOT NULL REFERENCES lines(id),
	presentation_id BIGINT NOT NULL REFERENCES presentations(id),
	control_type_id BIGINT NOT NULL REFERENCES control_types(id),
	parameter_id    BIGINT NOT NULL REFERENCES parameters(id),
	kind            TEXT NOT NULL,
	value           DOUBLE PRECISION,
	passed          BOOLEAN,
	taken_at        TIMESTAMPTZ NOT NULL,
	reference       TEXT NOT NULL DEFAULT '',
	recorder_id     TEXT NOT NULL,
	note            TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS alerts (
	id              BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	kind            TEXT NOT NULL,
	state           TEXT NOT NULL DEFAULT 'PENDING',
	description     TEXT NOT NULL DEFAULT '',
	record_id       BIGINT NOT NULL REFERENCES measurements(id),
	line_id         BIGINT NOT NULL,
	presentation_id BIGINT NOT NULL,
	control_type_id BIGINT NOT NULL,
	parameter_id    BIGINT NOT NULL,
	observed        DOUBLE PRECISION,
	lower_limit     DOUBLE PRECISION,
	upper_limit     DOUBLE PRECISION,
	reference       TEXT NOT NULL DEFAULT '',
	reviewer_id     TEXT NOT NULL DEFAULT '',
	review_note     TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	resolved_at     TIMESTAMPTZ,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
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

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) conds() *conds {
	return &conds{
		ph: func(n int) string { return fmt.Sprintf("$%d", n) },
		tv: func(t time.Time) any { return t.UTC() },
	}
}

// --- Lines ---

func (s *PostgresStore) CreateLine(ctx context.Context, name string) (*model.Line, error) {
	l := model.Line{Name: name, CreatedAt: time.Now().UTC()}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO lines (name, created_at) VALUES ($1, $2) RETURNING id`,
		name, l.CreatedAt,
	).Scan(&l.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert line %q", name)
	}
	return &l, nil
}

func (s *PostgresStore) GetLine(ctx context.Context, id int64) (*model.Line, error) {
	var l model.Line
	err := s.pool.QueryRow(ctx, `SELECT id, name, created_at FROM lines WHERE id = $1`, id).
		Scan(&l.ID, &l.Name, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "postgres: line %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get line %d", id)
	}
	return &l, nil
}

func (s *PostgresStore) ListLines(ctx context.Context) ([]model.Line, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, created_at FROM lines ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list lines")
	}
	defer rows.Close()

	var out []model.Line
	for rows.Next() {
		var l model.Line
		if err := rows.Scan(&l.ID, &l.Name, &l.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan line")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list lines iterate")
}

// --- Presentations ---

func (s *PostgresStore) CreatePresentation(ctx context.Context, p model.Presentation) (*model.Presentation, error) {
	p.CreatedAt = time.Now().UTC()
	p.DeletedAt = nil
	err := s.pool.QueryRow(ctx,
		`INSERT INTO presentations (name, line_id, created_at) VALUES ($1, $2, $3) RETURNING id`,
		p.Name, p.LineID, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert presentation %q", p.Name)
	}
	return &p, nil
}

func (s *PostgresStore) GetPresentation(ctx context.Context, id int64) (*model.Presentation, error) {
	var p model.Presentation
	err := s.pool.QueryRow(ctx, getPresentationSQL, id).
		Scan(&p.ID, &p.Name, &p.LineID, &p.CreatedAt, &p.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "postgres: presentation %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get presentation %d", id)
	}
	return &p, nil
}

func (s *PostgresStore) ListPresentations(ctx context.Context, lineID int64) ([]model.Presentation, error) {
	query := `SELECT id, name, line_id, created_at, deleted_at FROM presentations WHERE deleted_at IS NULL`
	args := []any{}
	if lineID != 0 {
		query += ` AND line_id = $1`
		args = append(args, lineID)
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list presentations")
	}
	defer rows.Close()

	var out []model.Presentation
	for rows.Next() {
		var p model.Presentation
		if err := rows.Scan(&p.ID, &p.Name, &p.LineID, &p.CreatedAt, &p.DeletedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan presentation")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list presentations iterate")
}

func (s *PostgresStore) DeletePresentation(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE presentations SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete presentation %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrNotFound, "postgres: presentation %d", id)
	}
	return nil
}

// --- Control types ---

func (s *PostgresStore) CreateControlType(ctx context.Context, ct model.ControlType) (*model.ControlType, error) {
	ct.CreatedAt = time.Now().UTC()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO control_types (name, description, line_id, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		ct.Name, ct.Description, ct.LineID, ct.CreatedAt,
	).Scan(&ct.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert control type %q", ct.Name)
	}
	return &ct, nil
}

func (s *PostgresStore) GetControlType(ctx context.Context, id int64) (*model.ControlType, error) {
	var ct model.ControlType
	err := s.pool.QueryRow(ctx, getControlTypeSQL, id).
		Scan(&ct.ID, &ct.Name, &ct.Description, &ct.LineID, &ct.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "postgres: control type %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get control type %d", id)
	}
	return &ct, nil
}

func (s *PostgresStore) ListControlTypes(ctx context.Context, lineID int64) ([]model.ControlType, error) {
	query := `SELECT id, name, description, line_id, created_at FROM control_types`
	args := []any{}
	if lineID != 0 {
		query += ` WHERE line_id = $1`
		args = append(args, lineID)
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list control types")
	}
	defer rows.Close()

	var out []model.ControlType
	for rows.Next() {
		var ct model.ControlType
		if err := rows.Scan(&ct.ID, &ct.Name, &ct.Description, &ct.LineID, &ct.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan control type")
		}
		out = append(out, ct)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list control types iterate")
}

// --- Parameters ---

func (s *PostgresStore) CreateParameter(ctx context.Context, p model.Parameter) (*model.Parameter, error) {
	p.CreatedAt = time.Now().UTC()
	p.DeletedAt = nil
	err := s.pool.QueryRow(ctx,
		`INSERT INTO parameters (name, description, kind, unit, lower_limit, upper_limit, control_type_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		p.Name, p.Description, string(p.Kind), p.Unit, nullable(p.Lower), nullable(p.Upper), p.ControlTypeID, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert parameter %q", p.Name)
	}
	return &p, nil
}

func (s *PostgresStore) GetParameter(ctx context.Context, id int64) (*model.Parameter, error) {
	p, err := scanPostgresParameter(s.pool.QueryRow(ctx, getParameterSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "postgres: parameter %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get parameter %d", id)
	}
	return p, nil
}

func (s *PostgresStore) ListParameters(ctx context.Context, controlTypeID int64) ([]model.Parameter, error) {
	query := `SELECT ` + parameterColumns + ` FROM parameters WHERE deleted_at IS NULL`
	args := []any{}
	if controlTypeID != 0 {
		query += ` AND control_type_id = $1`
		args = append(args, controlTypeID)
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list parameters")
	}
	defer rows.Close()

	var out []model.Parameter
	for rows.Next() {
		p, err := scanPostgresParameter(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan parameter")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list parameters iterate")
}

func (s *PostgresStore) UpdateParameter(ctx context.Context, p model.Parameter) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE parameters SET name = $1, description = $2, kind = $3, unit = $4, lower_limit = $5, upper_limit = $6
		 WHERE id = $7 AND deleted_at IS NULL`,
		p.Name, p.Description, string(p.Kind), p.Unit, nullable(p.Lower), nullable(p.Upper), p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update parameter %d", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrNotFound, "postgres: parameter %d", p.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteParameter(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE parameters SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete parameter %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrNotFound, "postgres: parameter %d", id)
	}
	return nil
}

func scanPostgresParameter(row scannable) (*model.Parameter, error) {
	var p model.Parameter
	var kind string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &kind, &p.Unit, &p.Lower, &p.Upper,
		&p.ControlTypeID, &p.CreatedAt, &p.DeletedAt); err != nil {
		return nil, err
	}
	p.Kind = model.ParameterKind(kind)
	return &p, nil
}

// --- Overrides ---

func (s *PostgresStore) UpsertOverride(ctx context.Context, o model.ParameterOverride) (*model.ParameterOverride, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO parameter_overrides (presentation_id, parameter_id, kind, unit, lower_limit, upper_limit, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (presentation_id, parameter_id) DO UPDATE SET
		   kind = EXCLUDED.kind, unit = EXCLUDED.unit,
		   lower_limit = EXCLUDED.lower_limit, upper_limit = EXCLUDED.upper_limit,
		   updated_at = EXCLUDED.updated_at`,
		o.PresentationID, o.ParameterID, nullableKind(o.Kind), nullable(o.Unit), nullable(o.Lower), nullable(o.Upper), time.Now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert override %d/%d", o.PresentationID, o.ParameterID)
	}
	return s.GetOverride(ctx, o.PresentationID, o.ParameterID)
}

func (s *PostgresStore) GetOverride(ctx context.Context, presentationID, parameterID int64) (*model.ParameterOverride, error) {
	var o model.ParameterOverride
	var kind *string
	err := s.pool.QueryRow(ctx, getOverrideSQL, presentationID, parameterID).
		Scan(&o.ID, &o.PresentationID, &o.ParameterID, &kind, &o.Unit, &o.Lower, &o.Upper, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get override %d/%d", presentationID, parameterID)
	}
	if kind != nil {
		k := model.ParameterKind(*kind)
		o.Kind = &k
	}
	return &o, nil
}

func (s *PostgresStore) DeleteOverride(ctx context.Context, presentationID, parameterID int64) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM parameter_overrides WHERE presentation_id = $1 AND parameter_id = $2`,
		presentationID, parameterID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete override %d/%d", presentationID, parameterID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrNotFound, "postgres: override %d/%d", presentationID, parameterID)
	}
	return nil
}

// --- Measurements ---

func (s *PostgresStore) AppendMeasurements(ctx context.Context, entries []model.Entry) ([]model.Entry, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	out := make([]model.Entry, len(entries))

	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		for i, e := range entries {
			rec := e.Record
			rec.CreatedAt = now
			err := tx.QueryRow(ctx, insertMeasurementSQL,
				rec.LineID, rec.PresentationID, rec.ControlTypeID, rec.ParameterID, string(rec.Kind),
				nullable(rec.Value), nullable(rec.Passed), rec.TakenAt.UTC(), rec.Reference, rec.RecorderID, rec.Note, now,
			).Scan(&rec.ID)
			if err != nil {
				return eris.Wrapf(err, "postgres: insert measurement %d", i)
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
			err = tx.QueryRow(ctx, insertAlertSQL,
				string(a.Kind), string(a.State), a.Description, a.RecordID, a.LineID, a.PresentationID, a.ControlTypeID, a.ParameterID,
				nullable(a.Observed), nullable(a.Lower), nullable(a.Upper), a.Reference, now,
			).Scan(&a.ID)
			if err != nil {
				return eris.Wrapf(err, "postgres: insert alert for measurement %d", rec.ID)
			}
			out[i].Alert = &a
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) ListMeasurements(ctx context.Context, filter MeasurementFilter) ([]model.MeasurementRecord, error) {
	c := s.conds()
	rows, err := s.pool.Query(ctx, measurementQuery(c, filter), c.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list measurements")
	}
	defer rows.Close()

	var out []model.MeasurementRecord
	for rows.Next() {
		var r model.MeasurementRecord
		var kind string
		if err := rows.Scan(&r.ID, &r.LineID, &r.PresentationID, &r.ControlTypeID, &r.ParameterID, &kind,
			&r.Value, &r.Passed, &r.TakenAt, &r.Reference, &r.RecorderID, &r.Note, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan measurement")
		}
		r.Kind = model.ParameterKind(kind)
		r.TakenAt = r.TakenAt.UTC()
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list measurements iterate")
}

func (s *PostgresStore) ListSeriesKeys(ctx context.Context, filter MeasurementFilter) ([]model.SeriesKey, error) {
	c := s.conds()
	rows, err := s.pool.Query(ctx, seriesKeyQuery(c, filter), c.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list series keys")
	}
	defer rows.Close()

	var out []model.SeriesKey
	for rows.Next() {
		var k model.SeriesKey
		if err := rows.Scan(&k.LineID, &k.PresentationID, &k.ControlTypeID, &k.ParameterID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan series key")
		}
		out = append(out, k)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list series keys iterate")
}

// --- Alerts ---

func (s *PostgresStore) GetAlert(ctx context.Context, id int64) (*model.Alert, error) {
	a, err := scanPostgresAlert(s.pool.QueryRow(ctx, getAlertSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "postgres: alert %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get alert %d", id)
	}
	return a, nil
}

func (s *PostgresStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	c := s.conds()
	rows, err := s.pool.Query(ctx, alertQuery(c, filter), c.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list alerts")
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		a, err := scanPostgresAlert(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan alert")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list alerts iterate")
}

func (s *PostgresStore) CompareAndSetAlertState(ctx context.Context, t model.AlertTransition) (*model.Alert, error) {
	a, err := scanPostgresAlert(s.pool.QueryRow(ctx, casAlertSQL,
		string(t.To), t.ReviewerID, t.Note, t.At.UTC(), t.ID, string(t.From)))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := s.GetAlert(ctx, t.ID); err != nil {
			return nil, err
		}
		return nil, eris.Wrapf(model.ErrConflict, "postgres: alert %d is no longer %s", t.ID, t.From)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: transition alert %d", t.ID)
	}
	return a, nil
}

func scanPostgresAlert(row scannable) (*model.Alert, error) {
	var a model.Alert
	var kind, state string
	err := row.Scan(&a.ID, &kind, &state, &a.Description, &a.RecordID, &a.LineID, &a.PresentationID,
		&a.ControlTypeID, &a.ParameterID, &a.Observed, &a.Lower, &a.Upper, &a.Reference, &a.ReviewerID,
		&a.ReviewNote, &a.CreatedAt, &a.ResolvedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Kind = model.AlertKind(kind)
	a.State = model.AlertState(state)
	return &a, nil
}

// --- Reports ---

func (s *PostgresStore) SummarizeAlerts(ctx context.Context, since time.Time) (*model.AlertSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT state, kind, to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD'), COUNT(*) FROM alerts
		 WHERE created_at >= $1 GROUP BY 1, 2, 3`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: summarize alerts")
	}
	defer rows.Close()

	var counts []alertCountRow
	for rows.Next() {
		var r alertCountRow
		var state, kind string
		if err := rows.Scan(&state, &kind, &r.day, &r.n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan alert count")
		}
		r.state, r.kind = model.AlertState(state), model.AlertKind(kind)
		counts = append(counts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: summarize alerts iterate")
	}
	return summarize(since, counts), nil
}

func (s *PostgresStore) Conformity(ctx context.Context, from, to time.Time) ([]model.LineConformity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT l.id, l.name, COUNT(m.id), COUNT(m.id) - COUNT(a.record_id)
		 FROM lines l
		 LEFT JOIN measurements m ON m.line_id = l.id AND m.taken_at >= $1 AND m.taken_at <= $2
		 LEFT JOIN (SELECT DISTINCT record_id FROM alerts) a ON a.record_id = m.id
		 GROUP BY l.id, l.name ORDER BY l.id`,
		from.UTC(), openEnd(to).UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: conformity")
	}
	defer rows.Close()

	var out []model.LineConformity
	for rows.Next() {
		var c model.LineConformity
		if err := rows.Scan(&c.LineID, &c.LineName, &c.Records, &c.Conforming); err != nil {
			return nil, eris.Wrap(err, "postgres: scan conformity")
		}
		c.ComputeRate()
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: conformity iterate")
}
