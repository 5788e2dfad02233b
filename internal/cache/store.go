// Package cache persists hourly CNEC records and observed border flows in a SQL
// database (sqlite by default, postgres optionally). Rows are keyed by
// (id, hour) and written insert-or-ignore, so re-fetching an hour never
// duplicates or overwrites data.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fbmc-quality/internal/model"
	"fbmc-quality/internal/timeseries"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and tunes the backing database.
type Config struct {
	Driver       string        `yaml:"driver" validate:"omitempty,oneof=sqlite postgres"`
	Path         string        `yaml:"path"`
	DSN          string        `yaml:"dsn"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
	MaxOpenConns int           `yaml:"max_open_conns"`
}

// UnavailableError means the store could not be opened or queried. Callers
// treat it as a cache miss, never as a fatal error.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("cache unavailable (%s): %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func unavailable(op string, err error) error {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return err
	}
	return &UnavailableError{Op: op, Err: err}
}

// Stats summarises the cache contents.
type Stats struct {
	Driver    string     `json:"driver"`
	Records   int64      `json:"records"`
	Hours     int64      `json:"hours"`
	Cnecs     int64      `json:"cnecs"`
	FirstHour *time.Time `json:"first_hour,omitempty"`
	LastHour  *time.Time `json:"last_hour,omitempty"`
	FlowRows  int64      `json:"flow_rows"`
	// EmptyHours were fetched but had no publication.
	EmptyHours int64 `json:"empty_hours"`
}

// Store is the durable hourly cache. It is safe for concurrent use.
type Store struct {
	db      *sqlx.DB
	driver  string
	timeout time.Duration
}

// Open connects to the configured database and creates the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 30 * time.Second
	}

	var dsn string
	switch driver {
	case DriverSQLite:
		if cfg.Path == "" {
			return nil, unavailable("open", fmt.Errorf("sqlite path is required"))
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, unavailable("open", fmt.Errorf("creating cache dir: %w", err))
		}
		dsn = cfg.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, unavailable("open", fmt.Errorf("postgres dsn is required"))
		}
		dsn = cfg.DSN
	default:
		return nil, unavailable("open", fmt.Errorf("unsupported driver %q", driver))
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, unavailable("open", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	s := &Store{db: db, driver: driver, timeout: cfg.QueryTimeout}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, unavailable("ping", err)
	}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, unavailable("schema", err)
	}

	log.Debug().Str("driver", driver).Msg("cache opened")
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initializing schema: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS cnec_records (
		cnec_id              TEXT NOT NULL,
		hour_unix            BIGINT NOT NULL,
		raw_id               BIGINT NOT NULL DEFAULT 0,
		tso                  TEXT NOT NULL DEFAULT '',
		cnec_name            TEXT NOT NULL,
		cnec_type            TEXT NOT NULL DEFAULT '',
		cne_name             TEXT NOT NULL DEFAULT '',
		cne_type             TEXT NOT NULL DEFAULT '',
		cne_status           TEXT NOT NULL DEFAULT '',
		cne_eic              TEXT NOT NULL DEFAULT '',
		direction            TEXT NOT NULL DEFAULT '',
		hub_from             TEXT NOT NULL DEFAULT '',
		hub_to               TEXT NOT NULL DEFAULT '',
		substation_from      TEXT NOT NULL DEFAULT '',
		substation_to        TEXT NOT NULL DEFAULT '',
		element_type         TEXT NOT NULL DEFAULT '',
		fmax_type            TEXT NOT NULL DEFAULT '',
		cont_tso             TEXT NOT NULL DEFAULT '',
		cont_name            TEXT NOT NULL DEFAULT '',
		cont_status          TEXT NOT NULL DEFAULT '',
		cont_substation_from TEXT NOT NULL DEFAULT '',
		cont_substation_to   TEXT NOT NULL DEFAULT '',
		imax_method          TEXT NOT NULL DEFAULT '',
		contingencies        TEXT NOT NULL DEFAULT '',
		presolved            BOOLEAN NOT NULL DEFAULT FALSE,
		significant          BOOLEAN NOT NULL DEFAULT FALSE,
		ram                  DOUBLE PRECISION NOT NULL DEFAULT 0,
		min_flow             DOUBLE PRECISION NOT NULL DEFAULT 0,
		max_flow             DOUBLE PRECISION NOT NULL DEFAULT 0,
		u                    DOUBLE PRECISION NOT NULL DEFAULT 0,
		imax                 DOUBLE PRECISION NOT NULL DEFAULT 0,
		fmax                 DOUBLE PRECISION NOT NULL DEFAULT 0,
		frm                  DOUBLE PRECISION NOT NULL DEFAULT 0,
		fnrao                DOUBLE PRECISION NOT NULL DEFAULT 0,
		fref                 DOUBLE PRECISION NOT NULL DEFAULT 0,
		fall                 DOUBLE PRECISION NOT NULL DEFAULT 0,
		amr                  DOUBLE PRECISION NOT NULL DEFAULT 0,
		aac                  DOUBLE PRECISION NOT NULL DEFAULT 0,
		iva                  DOUBLE PRECISION NOT NULL DEFAULT 0,
		fref_init            DOUBLE PRECISION,
		fcore                DOUBLE PRECISION,
		fuaf                 DOUBLE PRECISION,
		lta_margin           DOUBLE PRECISION,
		cva                  DOUBLE PRECISION,
		ftotal_ltn           DOUBLE PRECISION,
		fltn                 DOUBLE PRECISION,
		ptdfs                TEXT NOT NULL DEFAULT '{}',
		PRIMARY KEY (cnec_id, hour_unix)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cnec_records_hour ON cnec_records(hour_unix)`,
	`CREATE INDEX IF NOT EXISTS idx_cnec_records_name ON cnec_records(cnec_name)`,
	`CREATE TABLE IF NOT EXISTS border_flows (
		from_zone TEXT NOT NULL,
		to_zone   TEXT NOT NULL,
		hour_unix BIGINT NOT NULL,
		flow      DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (from_zone, to_zone, hour_unix)
	)`,
	`CREATE TABLE IF NOT EXISTS empty_hours (
		hour_unix BIGINT NOT NULL PRIMARY KEY
	)`,
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

type recordRow struct {
	CnecID             string   `db:"cnec_id"`
	HourUnix           int64    `db:"hour_unix"`
	RawID              int64    `db:"raw_id"`
	Tso                string   `db:"tso"`
	CnecName           string   `db:"cnec_name"`
	CnecType           string   `db:"cnec_type"`
	CneName            string   `db:"cne_name"`
	CneType            string   `db:"cne_type"`
	CneStatus          string   `db:"cne_status"`
	CneEic             string   `db:"cne_eic"`
	Direction          string   `db:"direction"`
	HubFrom            string   `db:"hub_from"`
	HubTo              string   `db:"hub_to"`
	SubstationFrom     string   `db:"substation_from"`
	SubstationTo       string   `db:"substation_to"`
	ElementType        string   `db:"element_type"`
	FmaxType           string   `db:"fmax_type"`
	ContTso            string   `db:"cont_tso"`
	ContName           string   `db:"cont_name"`
	ContStatus         string   `db:"cont_status"`
	ContSubstationFrom string   `db:"cont_substation_from"`
	ContSubstationTo   string   `db:"cont_substation_to"`
	ImaxMethod         string   `db:"imax_method"`
	Contingencies      string   `db:"contingencies"`
	Presolved          bool     `db:"presolved"`
	Significant        bool     `db:"significant"`
	RAM                float64  `db:"ram"`
	MinFlow            float64  `db:"min_flow"`
	MaxFlow            float64  `db:"max_flow"`
	U                  float64  `db:"u"`
	Imax               float64  `db:"imax"`
	Fmax               float64  `db:"fmax"`
	Frm                float64  `db:"frm"`
	Fnrao              float64  `db:"fnrao"`
	Fref               float64  `db:"fref"`
	Fall               float64  `db:"fall"`
	Amr                float64  `db:"amr"`
	Aac                float64  `db:"aac"`
	Iva                float64  `db:"iva"`
	FrefInit           *float64 `db:"fref_init"`
	Fcore              *float64 `db:"fcore"`
	Fuaf               *float64 `db:"fuaf"`
	LtaMargin          *float64 `db:"lta_margin"`
	Cva                *float64 `db:"cva"`
	FtotalLtn          *float64 `db:"ftotal_ltn"`
	Fltn               *float64 `db:"fltn"`
	Ptdfs              string   `db:"ptdfs"`
}

var recordColumns = []string{
	"cnec_id", "hour_unix", "raw_id", "tso", "cnec_name", "cnec_type", "cne_name",
	"cne_type", "cne_status", "cne_eic", "direction", "hub_from", "hub_to",
	"substation_from", "substation_to", "element_type", "fmax_type", "cont_tso",
	"cont_name", "cont_status", "cont_substation_from", "cont_substation_to",
	"imax_method", "contingencies", "presolved", "significant", "ram", "min_flow",
	"max_flow", "u", "imax", "fmax", "frm", "fnrao", "fref", "fall", "amr", "aac",
	"iva", "fref_init", "fcore", "fuaf", "lta_margin", "cva", "ftotal_ltn", "fltn",
	"ptdfs",
}

var insertRecordSQL = func() string {
	named := make([]string, len(recordColumns))
	for i, c := range recordColumns {
		named[i] = ":" + c
	}
	return "INSERT INTO cnec_records (" + strings.Join(recordColumns, ", ") + ") VALUES (" +
		strings.Join(named, ", ") + ") ON CONFLICT (cnec_id, hour_unix) DO NOTHING"
}()

var selectRecordSQL = "SELECT " + strings.Join(recordColumns, ", ") + " FROM cnec_records"

func toRow(r model.CnecRecord) (recordRow, error) {
	ptdfs := r.Ptdfs
	if ptdfs == nil {
		ptdfs = map[string]float64{}
	}
	raw, err := json.Marshal(ptdfs)
	if err != nil {
		return recordRow{}, fmt.Errorf("encoding ptdfs: %w", err)
	}
	return recordRow{
		CnecID: r.CnecID, HourUnix: timeseries.FloorHour(r.Time).Unix(), RawID: r.RawID, Tso: r.Tso,
		CnecName: r.CnecName, CnecType: r.CnecType, CneName: r.CneName, CneType: r.CneType,
		CneStatus: r.CneStatus, CneEic: r.CneEic, Direction: r.Direction,
		HubFrom: r.HubFrom, HubTo: r.HubTo, SubstationFrom: r.SubstationFrom, SubstationTo: r.SubstationTo,
		ElementType: r.ElementType, FmaxType: r.FmaxType, ContTso: r.ContTso, ContName: r.ContName,
		ContStatus: r.ContStatus, ContSubstationFrom: r.ContSubstationFrom, ContSubstationTo: r.ContSubstationTo,
		ImaxMethod: r.ImaxMethod, Contingencies: r.Contingencies,
		Presolved: r.Presolved, Significant: r.Significant,
		RAM: r.RAM, MinFlow: r.MinFlow, MaxFlow: r.MaxFlow, U: r.U, Imax: r.Imax, Fmax: r.Fmax,
		Frm: r.Frm, Fnrao: r.Fnrao, Fref: r.Fref, Fall: r.Fall, Amr: r.Amr, Aac: r.Aac, Iva: r.Iva,
		FrefInit: r.FrefInit, Fcore: r.Fcore, Fuaf: r.Fuaf, LtaMargin: r.LtaMargin, Cva: r.Cva,
		FtotalLtn: r.FtotalLtn, Fltn: r.Fltn,
		Ptdfs: string(raw),
	}, nil
}

func (row recordRow) toRecord() (model.CnecRecord, error) {
	ptdfs := map[string]float64{}
	if row.Ptdfs != "" {
		if err := json.Unmarshal([]byte(row.Ptdfs), &ptdfs); err != nil {
			return model.CnecRecord{}, fmt.Errorf("decoding ptdfs of %s: %w", row.CnecID, err)
		}
	}
	return model.CnecRecord{
		CnecID: row.CnecID, Time: time.Unix(row.HourUnix, 0).UTC(), RawID: row.RawID, Tso: row.Tso,
		CnecName: row.CnecName, CnecType: row.CnecType, CneName: row.CneName, CneType: row.CneType,
		CneStatus: row.CneStatus, CneEic: row.CneEic, Direction: row.Direction,
		HubFrom: row.HubFrom, HubTo: row.HubTo, SubstationFrom: row.SubstationFrom, SubstationTo: row.SubstationTo,
		ElementType: row.ElementType, FmaxType: row.FmaxType, ContTso: row.ContTso, ContName: row.ContName,
		ContStatus: row.ContStatus, ContSubstationFrom: row.ContSubstationFrom, ContSubstationTo: row.ContSubstationTo,
		ImaxMethod: row.ImaxMethod, Contingencies: row.Contingencies,
		Presolved: row.Presolved, Significant: row.Significant,
		RAM: row.RAM, MinFlow: row.MinFlow, MaxFlow: row.MaxFlow, U: row.U, Imax: row.Imax, Fmax: row.Fmax,
		Frm: row.Frm, Fnrao: row.Fnrao, Fref: row.Fref, Fall: row.Fall, Amr: row.Amr, Aac: row.Aac, Iva: row.Iva,
		FrefInit: row.FrefInit, Fcore: row.Fcore, Fuaf: row.Fuaf, LtaMargin: row.LtaMargin, Cva: row.Cva,
		FtotalLtn: row.FtotalLtn, Fltn: row.Fltn,
		Ptdfs: ptdfs,
	}, nil
}

// PutRecords inserts records in one transaction, ignoring keys that already
// exist. It returns the number of rows actually inserted.
func (s *Store) PutRecords(ctx context.Context, recs []model.CnecRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, unavailable("begin", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, insertRecordSQL)
	if err != nil {
		return 0, unavailable("prepare", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range recs {
		row, err := toRow(r)
		if err != nil {
			return 0, err
		}
		res, err := stmt.ExecContext(ctx, row)
		if err != nil {
			return 0, unavailable("insert", fmt.Errorf("record %s@%s: %w", r.CnecID, r.Time.Format(time.RFC3339), err))
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable("commit", err)
	}
	return inserted, nil
}

// QueryRecords returns every record with an hour in r, ordered by hour then
// CNEC id.
func (s *Store) QueryRecords(ctx context.Context, r timeseries.TimeRange) ([]model.CnecRecord, error) {
	return s.queryRecords(ctx, "hour_unix >= ? AND hour_unix < ?", r.From.Unix(), r.To.Unix())
}

func (s *Store) queryRecords(ctx context.Context, where string, args ...any) ([]model.CnecRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []recordRow
	q := s.db.Rebind(selectRecordSQL + " WHERE " + where + " ORDER BY hour_unix, cnec_id")
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, unavailable("query", err)
	}

	out := make([]model.CnecRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Hours returns the distinct hours in r that have at least one record.
func (s *Store) Hours(ctx context.Context, r timeseries.TimeRange) ([]time.Time, error) {
	return s.hours(ctx, "hours", "SELECT DISTINCT hour_unix FROM cnec_records WHERE hour_unix >= ? AND hour_unix < ? ORDER BY hour_unix", r)
}

// MarkEmpty records hours that upstream answered without any rows, so later
// reconciliations do not fetch them again.
func (s *Store) MarkEmpty(ctx context.Context, hours []time.Time) (int, error) {
	if len(hours) == 0 {
		return 0, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, unavailable("begin", err)
	}
	defer tx.Rollback()

	q := s.db.Rebind("INSERT INTO empty_hours (hour_unix) VALUES (?) ON CONFLICT (hour_unix) DO NOTHING")
	inserted := 0
	for _, h := range hours {
		res, err := tx.ExecContext(ctx, q, timeseries.FloorHour(h).Unix())
		if err != nil {
			return 0, unavailable("mark empty", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable("commit", err)
	}
	return inserted, nil
}

// EmptyHours returns the hours in r previously marked as having no publication.
func (s *Store) EmptyHours(ctx context.Context, r timeseries.TimeRange) ([]time.Time, error) {
	return s.hours(ctx, "empty hours", "SELECT hour_unix FROM empty_hours WHERE hour_unix >= ? AND hour_unix < ? ORDER BY hour_unix", r)
}

func (s *Store) hours(ctx context.Context, op, query string, r timeseries.TimeRange) ([]time.Time, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var unix []int64
	if err := s.db.SelectContext(ctx, &unix, s.db.Rebind(query), r.From.Unix(), r.To.Unix()); err != nil {
		return nil, unavailable(op, err)
	}
	out := make([]time.Time, len(unix))
	for i, u := range unix {
		out[i] = time.Unix(u, 0).UTC()
	}
	return out, nil
}

type flowRow struct {
	From     string  `db:"from_zone"`
	To       string  `db:"to_zone"`
	HourUnix int64   `db:"hour_unix"`
	Flow     float64 `db:"flow"`
}

// PutFlows stores observed net flows from→to, ignoring hours already present.
func (s *Store) PutFlows(ctx context.Context, from, to string, points []model.FlowPoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, unavailable("begin", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx,
		`INSERT INTO border_flows (from_zone, to_zone, hour_unix, flow)
		 VALUES (:from_zone, :to_zone, :hour_unix, :flow)
		 ON CONFLICT (from_zone, to_zone, hour_unix) DO NOTHING`)
	if err != nil {
		return 0, unavailable("prepare", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, p := range points {
		res, err := stmt.ExecContext(ctx, flowRow{From: from, To: to, HourUnix: timeseries.FloorHour(p.Time).Unix(), Flow: p.Flow})
		if err != nil {
			return 0, unavailable("insert", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable("commit", err)
	}
	return inserted, nil
}

// QueryFlows returns the stored net flows from→to within r in hour order.
func (s *Store) QueryFlows(ctx context.Context, from, to string, r timeseries.TimeRange) ([]model.FlowPoint, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []flowRow
	q := s.db.Rebind(`SELECT from_zone, to_zone, hour_unix, flow FROM border_flows
		WHERE from_zone = ? AND to_zone = ? AND hour_unix >= ? AND hour_unix < ?
		ORDER BY hour_unix`)
	if err := s.db.SelectContext(ctx, &rows, q, from, to, r.From.Unix(), r.To.Unix()); err != nil {
		return nil, unavailable("query flows", err)
	}
	out := make([]model.FlowPoint, len(rows))
	for i, row := range rows {
		out[i] = model.FlowPoint{Time: time.Unix(row.HourUnix, 0).UTC(), Flow: row.Flow}
	}
	return out, nil
}

// Stats reports row counts and the covered hour span.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var agg struct {
		Records int64  `db:"records"`
		Hours   int64  `db:"hours"`
		Cnecs   int64  `db:"cnecs"`
		First   *int64 `db:"first_hour"`
		Last    *int64 `db:"last_hour"`
	}
	err := s.db.GetContext(ctx, &agg, `SELECT COUNT(*) AS records,
		COUNT(DISTINCT hour_unix) AS hours,
		COUNT(DISTINCT cnec_id) AS cnecs,
		MIN(hour_unix) AS first_hour,
		MAX(hour_unix) AS last_hour
		FROM cnec_records`)
	if err != nil {
		return Stats{}, unavailable("stats", err)
	}

	st := Stats{Driver: s.driver, Records: agg.Records, Hours: agg.Hours, Cnecs: agg.Cnecs}
	if agg.First != nil {
		t := time.Unix(*agg.First, 0).UTC()
		st.FirstHour = &t
	}
	if agg.Last != nil {
		t := time.Unix(*agg.Last, 0).UTC()
		st.LastHour = &t
	}
	if err := s.db.GetContext(ctx, &st.FlowRows, "SELECT COUNT(*) FROM border_flows"); err != nil {
		return Stats{}, unavailable("stats", err)
	}
	if err := s.db.GetContext(ctx, &st.EmptyHours, "SELECT COUNT(*) FROM empty_hours"); err != nil {
		return Stats{}, unavailable("stats", err)
	}
	return st, nil
}
