// Package store persists loaded patients in SQLite: the manifest
// hierarchy, capture records, per-session statistics and batch runs.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/sgrt.report/internal/manifest"
	"github.com/banshee-data/sgrt.report/internal/patient"
)

// DateLayout is the stored form of a session's treatment date.
const DateLayout = "2006-01-02"

type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// busy_timeout and synchronous are per connection.
	sqlDB.SetMaxOpenConns(1)

	if err := applyPragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	db := &DB{DB: sqlDB, path: path}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func applyPragmas(db *sql.DB) error {
	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	} {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return nil
}

// Path is the file the database was opened from.
func (db *DB) Path() string { return db.path }

// SaveRun records a batch run and its failures.
func (db *DB) SaveRun(ctx context.Context, r *patient.BatchReport) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (
			run_id, started_unix, elapsed_ms, scanned, loaded, failed,
			surfaces, surface_errors, unattached, sessions, skipped_logs
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID.String(), unixSeconds(r.Started), r.Elapsed.Milliseconds(),
		r.Scanned, r.Loaded, r.Failed,
		r.Surfaces, r.SurfaceErrors, r.UnattachedSurfaces, r.Sessions, r.SkippedDeltaLogs)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_failures WHERE run_id = ?`, r.RunID.String()); err != nil {
		return err
	}
	for _, f := range r.Failures {
		_, err := tx.ExecContext(ctx, `INSERT INTO run_failures (run_id, dir, error) VALUES (?, ?, ?)`,
			r.RunID.String(), f.Dir, f.Err.Error())
		if err != nil {
			return fmt.Errorf("failed to insert run failure: %w", err)
		}
	}
	return tx.Commit()
}

// SavePatient replaces everything stored for p's patient id. Within one run
// the first directory to store an id wins; a later directory with the same
// id fails with patient.ErrDuplicatePatient.
func (db *DB) SavePatient(ctx context.Context, runID uuid.UUID, p *patient.Patient) error {
	id := p.ID()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var prevRun, prevDir string
	err = tx.QueryRowContext(ctx, "SELECT run_id, dir FROM patients WHERE patient_id = ?", id).Scan(&prevRun, &prevDir)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to look up patient %s: %w", id, err)
	case prevRun == runID.String() && prevDir != p.Dir:
		return fmt.Errorf("%w: %s in %s already stored from %s", patient.ErrDuplicatePatient, id, p.Dir, prevDir)
	}

	for _, table := range []string{"sessions", "surfaces", "nodes", "patients"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE patient_id = ?", id); err != nil {
			return fmt.Errorf("failed to clear %s for %s: %w", table, id, err)
		}
	}

	details, err := json.Marshal(p.Details())
	if err != nil {
		return err
	}
	unattached := 0
	if p.Correlation != nil {
		unattached = len(p.Correlation.Unattached)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO patients (
			patient_id, run_id, dir, manifest_path, details_json, surfaces, unattached, updated_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, runID.String(), p.Dir, p.ManifestPath, string(details),
		len(p.Surfaces), unattached, unixSeconds(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to insert patient %s: %w", id, err)
	}

	for i := 0; i < p.Tree.Len(); i++ {
		n := p.Tree.Node(manifest.NodeID(i))
		d, err := json.Marshal(n.Details)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO nodes (patient_id, node_id, parent_id, kind, description, details_json)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, int(n.ID), int(n.Parent), n.Kind.String(), n.Details.Description(), string(d))
		if err != nil {
			return fmt.Errorf("failed to insert node %d: %w", n.ID, err)
		}
	}

	for _, r := range p.Surfaces {
		var node sql.NullInt64
		if f, ok := p.Tree.FieldOf(r); ok {
			node = sql.NullInt64{Int64: int64(f.ID()), Valid: true}
		}
		var keys sql.NullString
		if k, ok := r.Keys(); ok {
			keys = sql.NullString{String: k.String(), Valid: true}
		}
		var created sql.NullFloat64
		if !r.CreatedAt.IsZero() {
			created = sql.NullFloat64{Float64: unixSeconds(r.CreatedAt), Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO surfaces (patient_id, dir, node_id, keys, display_name, created_unix)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, r.Dir, node, keys, r.DisplayName, created)
		if err != nil {
			return fmt.Errorf("failed to insert surface %s: %w", r.Dir, err)
		}
	}

	for i, s := range p.Calendar().Sessions() {
		st := s.Stats()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (
				patient_id, session_index, date, start_unix, duration_s,
				samples, tracked, beam_on,
				mean_magnitude, stddev_magnitude, max_magnitude, p95_magnitude, max_abs_rotation
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, i, s.Date.Format(DateLayout), unixSeconds(s.Start), s.Duration().Seconds(),
			st.Samples, st.Tracked, st.BeamOn,
			nullFloat(st.MeanMagnitude), nullFloat(st.StdDevMagnitude),
			nullFloat(st.MaxMagnitude), nullFloat(st.P95Magnitude), st.MaxAbsRotation)
		if err != nil {
			return fmt.Errorf("failed to insert session %d for %s: %w", i, id, err)
		}
	}

	return tx.Commit()
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnix(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}
