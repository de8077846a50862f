package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run status values.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// Run is one conversion attempt.
type Run struct {
	RunID        string          `json:"run_id"`
	ConfigPath   string          `json:"config_path,omitempty"`
	Status       string          `json:"status"`
	FailedStage  string          `json:"failed_stage,omitempty"`
	Error        string          `json:"error,omitempty"`
	K            float64         `json:"k"`
	C            float64         `json:"c"`
	Sn           float64         `json:"sn"`
	OutputType   string          `json:"output_type"`
	Layout       string          `json:"layout"`
	PointCount   int             `json:"point_count"`
	HelmertJSON  json.RawMessage `json:"helmert,omitempty"`
	Summary      string          `json:"summary,omitempty"`
	Outputs      []string        `json:"outputs,omitempty"`
	CreatedAtNs  int64           `json:"created_at_ns"`
	FinishedAtNs *int64          `json:"finished_at_ns,omitempty"`
}

// RunPoint is a control point used by a run, with its fitted residual.
type RunPoint struct {
	Index          int
	Name           string
	SourceLon      float64
	SourceLat      float64
	SourceHeight   float64
	TargetLon      float64
	TargetLat      float64
	TargetHeight   float64
	Epoch          float64
	ResidualEastM  *float64
	ResidualNorthM *float64
}

// RunStore persists runs.
type RunStore struct {
	db *sql.DB
	// now is replaced in tests.
	now func() time.Time
}

// NewRunStore wraps an open run log.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db.DB, now: time.Now}
}

// InsertRun creates a run. An empty RunID gets a new UUID and a zero
// CreatedAtNs gets the current time.
func (s *RunStore) InsertRun(r *Run) error {
	if r.RunID == "" {
		r.RunID = uuid.New().String()
	}
	if r.CreatedAtNs == 0 {
		r.CreatedAtNs = s.now().UnixNano()
	}
	if r.Status == "" {
		r.Status = StatusRunning
	}
	outputs, err := json.Marshal(r.Outputs)
	if err != nil {
		return fmt.Errorf("encode outputs: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO runs (
			run_id, config_path, status, failed_stage, error,
			k, c, sn, output_type, layout, point_count,
			helmert_json, summary, outputs_json, created_at_ns, finished_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, nullString(r.ConfigPath), r.Status, nullString(r.FailedStage), nullString(r.Error),
		r.K, r.C, r.Sn, r.OutputType, r.Layout, r.PointCount,
		nullString(string(r.HelmertJSON)), nullString(r.Summary), string(outputs),
		r.CreatedAtNs, nullInt64(r.FinishedAtNs),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateRun overwrites the mutable fields of a run.
func (s *RunStore) UpdateRun(r *Run) error {
	outputs, err := json.Marshal(r.Outputs)
	if err != nil {
		return fmt.Errorf("encode outputs: %w", err)
	}
	res, err := s.db.Exec(`
		UPDATE runs SET status = ?, failed_stage = ?, error = ?, point_count = ?,
			helmert_json = ?, summary = ?, outputs_json = ?, finished_at_ns = ?
		WHERE run_id = ?`,
		r.Status, nullString(r.FailedStage), nullString(r.Error), r.PointCount,
		nullString(string(r.HelmertJSON)), nullString(r.Summary), string(outputs),
		nullInt64(r.FinishedAtNs), r.RunID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, r.RunID)
	}
	return nil
}

// Finish marks a run succeeded, or failed at stage with err.
func (s *RunStore) Finish(r *Run, stage string, runErr error) error {
	done := s.now().UnixNano()
	r.FinishedAtNs = &done
	if runErr != nil {
		r.Status = StatusFailed
		r.FailedStage = stage
		r.Error = runErr.Error()
	} else {
		r.Status = StatusSucceeded
	}
	return s.UpdateRun(r)
}

const runColumns = `run_id, config_path, status, failed_stage, error,
	k, c, sn, output_type, layout, point_count,
	helmert_json, summary, outputs_json, created_at_ns, finished_at_ns`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var configPath, failedStage, errText, helmert, summary, outputs sql.NullString
	var finished sql.NullInt64
	err := row.Scan(&r.RunID, &configPath, &r.Status, &failedStage, &errText,
		&r.K, &r.C, &r.Sn, &r.OutputType, &r.Layout, &r.PointCount,
		&helmert, &summary, &outputs, &r.CreatedAtNs, &finished)
	if err != nil {
		return nil, err
	}
	r.ConfigPath = configPath.String
	r.FailedStage = failedStage.String
	r.Error = errText.String
	r.Summary = summary.String
	if helmert.Valid && helmert.String != "" {
		r.HelmertJSON = json.RawMessage(helmert.String)
	}
	if outputs.Valid && outputs.String != "" {
		if err := json.Unmarshal([]byte(outputs.String), &r.Outputs); err != nil {
			return nil, fmt.Errorf("decode outputs: %w", err)
		}
	}
	if finished.Valid {
		v := finished.Int64
		r.FinishedAtNs = &v
	}
	return &r, nil
}

// GetRun returns the run with the given id.
func (s *RunStore) GetRun(runID string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *RunStore) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY created_at_ns DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// InsertPoints records the control points of a run in one transaction.
func (s *RunStore) InsertPoints(runID string, points []RunPoint) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO run_control_points (
			run_id, point_index, name, source_lon, source_lat, source_height,
			target_lon, target_lat, target_height, epoch, residual_east_m, residual_north_m
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.Exec(runID, p.Index, p.Name, p.SourceLon, p.SourceLat, p.SourceHeight,
			p.TargetLon, p.TargetLat, p.TargetHeight, p.Epoch,
			nullFloat64(p.ResidualEastM), nullFloat64(p.ResidualNorthM)); err != nil {
			return fmt.Errorf("insert point %s: %w", p.Name, err)
		}
	}
	return tx.Commit()
}

// Points returns the control points of a run in index order.
func (s *RunStore) Points(runID string) ([]RunPoint, error) {
	rows, err := s.db.Query(`
		SELECT point_index, name, source_lon, source_lat, source_height,
		       target_lon, target_lat, target_height, epoch, residual_east_m, residual_north_m
		FROM run_control_points WHERE run_id = ? ORDER BY point_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("list points: %w", err)
	}
	defer rows.Close()

	var out []RunPoint
	for rows.Next() {
		var p RunPoint
		var east, north sql.NullFloat64
		if err := rows.Scan(&p.Index, &p.Name, &p.SourceLon, &p.SourceLat, &p.SourceHeight,
			&p.TargetLon, &p.TargetLat, &p.TargetHeight, &p.Epoch, &east, &north); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		if east.Valid {
			v := east.Float64
			p.ResidualEastM = &v
		}
		if north.Valid {
			v := north.Float64
			p.ResidualNorthM = &v
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullFloat64(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
