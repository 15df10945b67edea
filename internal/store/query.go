package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PatientSummary is one stored patient.
type PatientSummary struct {
	PatientID    string         `json:"patient_id"`
	RunID        string         `json:"run_id"`
	Dir          string         `json:"dir"`
	ManifestPath string         `json:"manifest_path"`
	Details      map[string]any `json:"details"`
	Surfaces     int            `json:"surfaces"`
	Unattached   int            `json:"unattached"`
	Sessions     int            `json:"sessions"`
	Updated      time.Time      `json:"updated"`
}

// SessionSummary is one stored treatment session. Magnitude figures are
// nil when the session had no tracked beam-on samples.
type SessionSummary struct {
	PatientID       string    `json:"patient_id"`
	Index           int       `json:"index"`
	Date            string    `json:"date"`
	Start           time.Time `json:"start"`
	DurationSeconds float64   `json:"duration_s"`
	Samples         int       `json:"samples"`
	Tracked         int       `json:"tracked"`
	BeamOn          int       `json:"beam_on"`
	MeanMagnitude   *float64  `json:"mean_magnitude"`
	StdDevMagnitude *float64  `json:"stddev_magnitude"`
	MaxMagnitude    *float64  `json:"max_magnitude"`
	P95Magnitude    *float64  `json:"p95_magnitude"`
	MaxAbsRotation  float64   `json:"max_abs_rotation"`
}

// NodeRow is one stored hierarchy node.
type NodeRow struct {
	NodeID      int            `json:"node_id"`
	ParentID    int            `json:"parent_id"`
	Kind        string         `json:"kind"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details"`
}

// RunSummary is one stored batch run.
type RunSummary struct {
	RunID    string        `json:"run_id"`
	Started  time.Time     `json:"started"`
	Elapsed  time.Duration `json:"elapsed"`
	Scanned  int           `json:"scanned"`
	Loaded   int           `json:"loaded"`
	Failed   int           `json:"failed"`
	Sessions int           `json:"sessions"`
}

// Patients lists stored patients ordered by id.
func (db *DB) Patients(ctx context.Context) ([]PatientSummary, error) {
	return db.patients(ctx, "")
}

// Patient returns one stored patient.
func (db *DB) Patient(ctx context.Context, id string) (*PatientSummary, bool, error) {
	ps, err := db.patients(ctx, "WHERE p.patient_id = ?", id)
	if err != nil || len(ps) == 0 {
		return nil, false, err
	}
	return &ps[0], true, nil
}

func (db *DB) patients(ctx context.Context, where string, args ...any) ([]PatientSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT p.patient_id, COALESCE(p.run_id, ''), p.dir, p.manifest_path, p.details_json,
		       p.surfaces, p.unattached, p.updated_unix,
		       (SELECT COUNT(*) FROM sessions s WHERE s.patient_id = p.patient_id)
		FROM patients p
		`+where+`
		ORDER BY p.patient_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PatientSummary
	for rows.Next() {
		var (
			ps      PatientSummary
			details string
			updated float64
		)
		if err := rows.Scan(&ps.PatientID, &ps.RunID, &ps.Dir, &ps.ManifestPath, &details,
			&ps.Surfaces, &ps.Unattached, &updated, &ps.Sessions); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(details), &ps.Details); err != nil {
			return nil, fmt.Errorf("patient %s details: %w", ps.PatientID, err)
		}
		ps.Updated = fromUnix(updated)
		out = append(out, ps)
	}
	return out, rows.Err()
}

// Sessions lists a patient's sessions in date order.
func (db *DB) Sessions(ctx context.Context, patientID string) ([]SessionSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT patient_id, session_index, date, start_unix, duration_s, samples, tracked, beam_on,
		       mean_magnitude, stddev_magnitude, max_magnitude, p95_magnitude, max_abs_rotation
		FROM sessions
		WHERE patient_id = ?
		ORDER BY session_index`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			s                   SessionSummary
			start               float64
			mean, sd, peak, p95 sql.NullFloat64
		)
		if err := rows.Scan(&s.PatientID, &s.Index, &s.Date, &start, &s.DurationSeconds,
			&s.Samples, &s.Tracked, &s.BeamOn, &mean, &sd, &peak, &p95, &s.MaxAbsRotation); err != nil {
			return nil, err
		}
		s.Start = fromUnix(start)
		s.MeanMagnitude, s.StdDevMagnitude = floatPtr(mean), floatPtr(sd)
		s.MaxMagnitude, s.P95Magnitude = floatPtr(peak), floatPtr(p95)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Nodes lists a patient's hierarchy in node order.
func (db *DB) Nodes(ctx context.Context, patientID string) ([]NodeRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT node_id, parent_id, kind, COALESCE(description, ''), details_json
		FROM nodes
		WHERE patient_id = ?
		ORDER BY node_id`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NodeRow
	for rows.Next() {
		var (
			n       NodeRow
			details string
		)
		if err := rows.Scan(&n.NodeID, &n.ParentID, &n.Kind, &n.Description, &details); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(details), &n.Details); err != nil {
			return nil, fmt.Errorf("node %d details: %w", n.NodeID, err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Runs lists batch runs, newest first.
func (db *DB) Runs(ctx context.Context) ([]RunSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, started_unix, elapsed_ms, scanned, loaded, failed, sessions
		FROM runs
		ORDER BY started_unix DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			r         RunSummary
			started   float64
			elapsedMS int64
		)
		if err := rows.Scan(&r.RunID, &started, &elapsedMS, &r.Scanned, &r.Loaded, &r.Failed, &r.Sessions); err != nil {
			return nil, err
		}
		r.Started = fromUnix(started)
		r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}
