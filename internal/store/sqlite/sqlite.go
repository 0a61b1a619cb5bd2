package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/multierr"
	_ "modernc.org/sqlite"

	"macrodb/internal/model"
	"macrodb/internal/store"
)

const (
	// timeLayout is fixed width so stored timestamps sort as text.
	timeLayout          = "2006-01-02T15:04:05.000000Z07:00"
	defaultHistoryLimit = 20
)

type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	db, err := sqlx.Open("sqlite", dsn(path))
	if err != nil {
		return nil, store.Wrap("open", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, store.Wrap("migrate", err)
	}

	return s, nil
}

// dsn asks the driver to apply the pragmas on every connection it opens, so
// they survive a reconnect.
func dsn(path string) string {
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return path + separator + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	statements := []string{
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS indicators (
			code TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			frequency TEXT NOT NULL,
			unit TEXT NOT NULL,
			source_agency TEXT NOT NULL,
			description TEXT,
			api_url TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS observations (
			indicator_code TEXT NOT NULL,
			period TEXT NOT NULL,
			value REAL NOT NULL,
			obs_status TEXT,
			fetched_at TEXT NOT NULL,
			PRIMARY KEY (indicator_code, period),
			FOREIGN KEY (indicator_code) REFERENCES indicators(code)
		);`,
		`CREATE TABLE IF NOT EXISTS fetch_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			indicator_code TEXT NOT NULL,
			run_id TEXT,
			fetched_at TEXT NOT NULL,
			rows_upserted INTEGER NOT NULL,
			status TEXT NOT NULL,
			message TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_obs_period
			ON observations(indicator_code, period DESC);`,
		`CREATE TABLE IF NOT EXISTS forecasts (
			institution TEXT NOT NULL,
			indicator TEXT NOT NULL,
			year TEXT NOT NULL,
			value REAL,
			updated_at TEXT,
			fetched_at TEXT NOT NULL,
			PRIMARY KEY (institution, indicator, year)
		);`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return store.Wrap(op, err)
	}
	if err := fn(tx); err != nil {
		return store.Wrap(op, multierr.Append(err, tx.Rollback()))
	}
	if err := tx.Commit(); err != nil {
		return store.Wrap(op, err)
	}
	return nil
}

func (s *Store) UpsertIndicator(ctx context.Context, indicator model.Indicator) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indicators (code, name, frequency, unit, source_agency, description, api_url)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			frequency = excluded.frequency,
			unit = excluded.unit,
			source_agency = excluded.source_agency,
			description = excluded.description,
			api_url = excluded.api_url
	`,
		indicator.Code,
		indicator.Name,
		string(indicator.Frequency),
		indicator.Unit,
		indicator.Agency,
		nullString(indicator.Description),
		nullString(indicator.Endpoint),
	)
	return store.Wrap("upsert indicator", err)
}

func (s *Store) UpsertObservations(ctx context.Context, observations []model.Observation) (int, error) {
	if len(observations) == 0 {
		return 0, nil
	}

	now := s.now().UTC()
	err := s.inTx(ctx, "upsert observations", func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO observations (indicator_code, period, value, obs_status, fetched_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(indicator_code, period) DO UPDATE SET
				value = excluded.value,
				obs_status = excluded.obs_status,
				fetched_at = excluded.fetched_at
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, observation := range observations {
			fetchedAt := observation.FetchedAt
			if fetchedAt.IsZero() {
				fetchedAt = now
			}
			if _, err := stmt.ExecContext(
				ctx,
				observation.IndicatorCode,
				observation.Period,
				observation.Value,
				nullString(string(observation.Status)),
				formatTime(fetchedAt),
			); err != nil {
				return fmt.Errorf("%s %s: %w", observation.IndicatorCode, observation.Period, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(observations), nil
}

func (s *Store) UpsertForecasts(ctx context.Context, forecasts []model.Forecast) (int, error) {
	if len(forecasts) == 0 {
		return 0, nil
	}

	now := s.now().UTC()
	err := s.inTx(ctx, "upsert forecasts", func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO forecasts (institution, indicator, year, value, updated_at, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(institution, indicator, year) DO UPDATE SET
				value = excluded.value,
				updated_at = excluded.updated_at,
				fetched_at = excluded.fetched_at
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, forecast := range forecasts {
			fetchedAt := forecast.FetchedAt
			if fetchedAt.IsZero() {
				fetchedAt = now
			}
			var value sql.NullFloat64
			if forecast.Value != nil {
				value = sql.NullFloat64{Float64: *forecast.Value, Valid: true}
			}
			if _, err := stmt.ExecContext(
				ctx,
				forecast.Institution,
				forecast.Indicator,
				forecast.Year,
				value,
				nullString(forecast.UpdatedAt),
				formatTime(fetchedAt),
			); err != nil {
				return fmt.Errorf("%s %s %s: %w", forecast.Institution, forecast.Indicator, forecast.Year, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(forecasts), nil
}

func (s *Store) LogFetch(ctx context.Context, entry model.FetchLogEntry) error {
	fetchedAt := entry.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fetch_log (indicator_code, run_id, fetched_at, rows_upserted, status, message)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		entry.SourceCode,
		nullString(entry.RunID),
		formatTime(fetchedAt),
		entry.Rows,
		string(entry.Status),
		nullString(entry.Message),
	)
	return store.Wrap("log fetch", err)
}

type indicatorRow struct {
	Code        string         `db:"code"`
	Name        string         `db:"name"`
	Frequency   string         `db:"frequency"`
	Unit        string         `db:"unit"`
	Agency      string         `db:"source_agency"`
	Description sql.NullString `db:"description"`
	Endpoint    sql.NullString `db:"api_url"`
}

func (s *Store) Indicator(ctx context.Context, code string) (*model.Indicator, error) {
	var row indicatorRow
	err := s.db.GetContext(ctx, &row, `
		SELECT code, name, frequency, unit, source_agency, description, api_url
		FROM indicators WHERE code = ?
	`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Wrap("indicator", err)
	}
	return &model.Indicator{
		Code:        row.Code,
		Name:        row.Name,
		Frequency:   model.Frequency(row.Frequency),
		Unit:        row.Unit,
		Agency:      row.Agency,
		Description: row.Description.String,
		Endpoint:    row.Endpoint.String,
	}, nil
}

type observationRow struct {
	IndicatorCode string         `db:"indicator_code"`
	Period        string         `db:"period"`
	Value         float64        `db:"value"`
	Status        sql.NullString `db:"obs_status"`
	FetchedAt     string         `db:"fetched_at"`
}

func (r observationRow) toModel() model.Observation {
	return model.Observation{
		IndicatorCode: r.IndicatorCode,
		Period:        r.Period,
		Value:         r.Value,
		Status:        model.ObsStatus(r.Status.String),
		FetchedAt:     parseTime(r.FetchedAt),
	}
}

type latestRow struct {
	observationRow
	Name string `db:"name"`
	Unit string `db:"unit"`
}

func (r latestRow) toModel() model.LatestObservation {
	return model.LatestObservation{
		Observation: r.observationRow.toModel(),
		Name:        r.Name,
		Unit:        r.Unit,
	}
}

func (s *Store) Latest(ctx context.Context, code string) (*model.LatestObservation, error) {
	var row latestRow
	err := s.db.GetContext(ctx, &row, `
		SELECT o.indicator_code, o.period, o.value, o.obs_status, o.fetched_at, i.name, i.unit
		FROM observations o JOIN indicators i ON o.indicator_code = i.code
		WHERE o.indicator_code = ?
		ORDER BY o.period DESC
		LIMIT 1
	`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Wrap("latest", err)
	}
	latest := row.toModel()
	return &latest, nil
}

func (s *Store) AllLatest(ctx context.Context) ([]model.LatestObservation, error) {
	var rows []latestRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT o.indicator_code, o.period, o.value, o.obs_status, o.fetched_at, i.name, i.unit
		FROM observations o JOIN indicators i ON o.indicator_code = i.code
		WHERE o.period = (
			SELECT MAX(period) FROM observations WHERE indicator_code = o.indicator_code
		)
		ORDER BY o.indicator_code
	`)
	if err != nil {
		return nil, store.Wrap("all latest", err)
	}
	result := make([]model.LatestObservation, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toModel())
	}
	return result, nil
}

func (s *Store) Observations(ctx context.Context, code, from, to string) ([]model.Observation, error) {
	var rows []observationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT indicator_code, period, value, obs_status, fetched_at
		FROM observations
		WHERE indicator_code = ?
			AND (? = '' OR period >= ?)
			AND (? = '' OR period <= ?)
		ORDER BY period
	`, code, from, from, to, to)
	if err != nil {
		return nil, store.Wrap("observations", err)
	}
	result := make([]model.Observation, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toModel())
	}
	return result, nil
}

type recordRow struct {
	observationRow
	Name   string `db:"name"`
	Unit   string `db:"unit"`
	Agency string `db:"source_agency"`
}

func (s *Store) AllObservations(ctx context.Context) ([]model.ObservationRecord, error) {
	var rows []recordRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT o.indicator_code, i.name, o.period, o.value,
			o.obs_status, i.unit, i.source_agency, o.fetched_at
		FROM observations o JOIN indicators i ON o.indicator_code = i.code
		ORDER BY o.indicator_code, o.period
	`)
	if err != nil {
		return nil, store.Wrap("all observations", err)
	}
	result := make([]model.ObservationRecord, 0, len(rows))
	for _, row := range rows {
		result = append(result, model.ObservationRecord{
			IndicatorCode: row.IndicatorCode,
			Name:          row.Name,
			Period:        row.Period,
			Value:         row.Value,
			Status:        model.ObsStatus(row.Status.String),
			Unit:          row.Unit,
			Agency:        row.Agency,
			FetchedAt:     parseTime(row.FetchedAt),
		})
	}
	return result, nil
}

type forecastRow struct {
	Institution string          `db:"institution"`
	Indicator   string          `db:"indicator"`
	Year        string          `db:"year"`
	Value       sql.NullFloat64 `db:"value"`
	UpdatedAt   sql.NullString  `db:"updated_at"`
	FetchedAt   string          `db:"fetched_at"`
}

func (s *Store) AllForecasts(ctx context.Context) ([]model.Forecast, error) {
	var rows []forecastRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT institution, indicator, year, value, updated_at, fetched_at
		FROM forecasts
		ORDER BY indicator, year, institution
	`)
	if err != nil {
		return nil, store.Wrap("all forecasts", err)
	}
	result := make([]model.Forecast, 0, len(rows))
	for _, row := range rows {
		forecast := model.Forecast{
			Institution: row.Institution,
			Indicator:   row.Indicator,
			Year:        row.Year,
			UpdatedAt:   row.UpdatedAt.String,
			FetchedAt:   parseTime(row.FetchedAt),
		}
		if row.Value.Valid {
			value := row.Value.Float64
			forecast.Value = &value
		}
		result = append(result, forecast)
	}
	return result, nil
}

type fetchLogRow struct {
	ID         int64          `db:"id"`
	SourceCode string         `db:"indicator_code"`
	RunID      sql.NullString `db:"run_id"`
	FetchedAt  string         `db:"fetched_at"`
	Rows       int            `db:"rows_upserted"`
	Status     string         `db:"status"`
	Message    sql.NullString `db:"message"`
}

// FetchHistory returns the most recent audit entries first. A non-positive
// limit falls back to 20.
func (s *Store) FetchHistory(ctx context.Context, limit int) ([]model.FetchLogEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	var rows []fetchLogRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, indicator_code, run_id, fetched_at, rows_upserted, status, message
		FROM fetch_log
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, store.Wrap("fetch history", err)
	}
	result := make([]model.FetchLogEntry, 0, len(rows))
	for _, row := range rows {
		result = append(result, model.FetchLogEntry{
			ID:         row.ID,
			SourceCode: row.SourceCode,
			RunID:      row.RunID.String,
			FetchedAt:  parseTime(row.FetchedAt),
			Rows:       row.Rows,
			Status:     model.FetchStatus(row.Status),
			Message:    row.Message.String,
		})
	}
	return result, nil
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

var _ store.Store = (*Store)(nil)
