package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one pipeline run.
type RunRecord struct {
	RunID          string
	Mode           string
	InputPath      string
	CreatedAt      time.Time
	ValidLines     int
	SkippedLines   int
	Considered     int64
	Accepted       int64
	Rejected       int64
	MeanVelocity   *float64 // nil when no velocities were produced
	StdDevVelocity *float64
	ParamsJSON     string
}

// PointRecord is one emitted detection. GroupKey is the fragment ID for
// unlabeled runs, the object ID for labeled runs, and "falling" for live
// replays. Seq orders points within a group.
type PointRecord struct {
	GroupKey string
	Seq      int
	Frame    int
	X        int
	Y        int
	Radius   int
	Velocity *float64
}

// Store wraps a SQLite connection holding hail_runs and hail_points.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies pending migrations.
// Pragmas are passed in the DSN so every pooled connection enforces them.
func Open(path string) (*Store, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	return m, nil
}

// migrateUp applies all pending migrations. The migrate instance is not
// closed because that would close the shared *sql.DB.
func (s *Store) migrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// SchemaVersion reports the applied migration version.
func (s *Store) SchemaVersion() (uint, bool, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

// SaveRun inserts a run and its points in one transaction.
func (s *Store) SaveRun(ctx context.Context, run RunRecord, points []PointRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	params := run.ParamsJSON
	if params == "" {
		params = "{}"
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO hail_runs (
			run_id, mode, input_path, created_unix_nanos,
			valid_lines, skipped_lines, considered, accepted, rejected,
			mean_velocity, stddev_velocity, params_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Mode, run.InputPath, created.UnixNano(),
		run.ValidLines, run.SkippedLines, run.Considered, run.Accepted, run.Rejected,
		run.MeanVelocity, run.StdDevVelocity, params,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO hail_points (run_id, group_key, seq, frame, x, y, radius, velocity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare point insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, run.RunID, p.GroupKey, p.Seq, p.Frame, p.X, p.Y, p.Radius, p.Velocity); err != nil {
			return fmt.Errorf("insert point %s/%d: %w", p.GroupKey, p.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", run.RunID, err)
	}
	return nil
}

const runColumns = `run_id, mode, input_path, created_unix_nanos,
	valid_lines, skipped_lines, considered, accepted, rejected,
	mean_velocity, stddev_velocity, params_json`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var (
		r            RunRecord
		createdNanos int64
		mean, stddev sql.NullFloat64
	)
	if err := row.Scan(&r.RunID, &r.Mode, &r.InputPath, &createdNanos,
		&r.ValidLines, &r.SkippedLines, &r.Considered, &r.Accepted, &r.Rejected,
		&mean, &stddev, &r.ParamsJSON); err != nil {
		return nil, err
	}
	r.CreatedAt = time.Unix(0, createdNanos)
	if mean.Valid {
		r.MeanVelocity = &mean.Float64
	}
	if stddev.Valid {
		r.StdDevVelocity = &stddev.Float64
	}
	return &r, nil
}

// GetRun returns one run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM hail_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM hail_runs ORDER BY created_unix_nanos DESC, run_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListPoints returns a run's points ordered by insertion group then sequence.
func (s *Store) ListPoints(ctx context.Context, runID string) ([]PointRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT group_key, seq, frame, x, y, radius, velocity
		FROM hail_points WHERE run_id = ?
		ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("list points for %s: %w", runID, err)
	}
	defer rows.Close()

	var points []PointRecord
	for rows.Next() {
		var (
			p PointRecord
			v sql.NullFloat64
		)
		if err := rows.Scan(&p.GroupKey, &p.Seq, &p.Frame, &p.X, &p.Y, &p.Radius, &v); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		if v.Valid {
			p.Velocity = &v.Float64
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// DeleteRun removes a run and, via cascade, its points.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM hail_runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}
