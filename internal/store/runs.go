package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/demsinks/internal/depression"
	"github.com/banshee-data/demsinks/internal/monitoring"
	"github.com/banshee-data/demsinks/internal/timeutil"
)

// Run kinds.
const (
	KindSinks       = "sinks"
	KindDepressions = "depressions"
	KindMounts      = "mounts"
)

// Run is one extraction run.
type Run struct {
	RunID       string          `json:"run_id"`
	Kind        string          `json:"kind"`
	InputPath   string          `json:"input_path,omitempty"`
	ParamsJSON  json.RawMessage `json:"params_json,omitempty"`
	Rows        int             `json:"rows"`
	Cols        int             `json:"cols"`
	Resolution  float64         `json:"resolution"`
	RegionCount int             `json:"region_count"`
	NodeCount   int             `json:"node_count"`
	LevelCount  int             `json:"level_count"`
	Anomalies   int             `json:"anomalies"`
	ToolVersion string          `json:"tool_version,omitempty"`
	CreatedAtNs int64           `json:"created_at_ns"`
}

// NodeRecord is a stored hierarchy node.
type NodeRecord struct {
	NodeID     int
	Level      int
	LevelValue float64
	ParentID   *int
	RootID     int
	Depression depression.Depression
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// RunStore provides persistence for extraction runs.
type RunStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewRunStore creates a new RunStore stamping runs with the system clock.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db.DB, clock: timeutil.RealClock{}}
}

// WithClock replaces the clock used for created_at_ns.
func (s *RunStore) WithClock(c timeutil.Clock) *RunStore {
	s.clock = c
	return s
}

// InsertRun creates a run row. If run.RunID is empty, a new UUID is generated.
func (s *RunStore) InsertRun(ctx context.Context, run *Run) error {
	return s.insertRun(ctx, s.db, run)
}

func (s *RunStore) insertRun(ctx context.Context, ex execer, run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAtNs == 0 {
		run.CreatedAtNs = s.clock.Now().UnixNano()
	}
	query := `
		INSERT INTO runs (
			run_id, kind, input_path, params_json, rows, cols, resolution,
			region_count, node_count, level_count, anomalies, tool_version, created_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := ex.ExecContext(ctx, query,
		run.RunID,
		run.Kind,
		nullString(run.InputPath),
		nullString(string(run.ParamsJSON)),
		run.Rows,
		run.Cols,
		run.Resolution,
		run.RegionCount,
		run.NodeCount,
		run.LevelCount,
		run.Anomalies,
		nullString(run.ToolVersion),
		run.CreatedAtNs,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// InsertDepressions stores the depression table of a run.
func (s *RunStore) InsertDepressions(ctx context.Context, runID string, deps []depression.Depression) error {
	return s.inTx(ctx, func(tx *sql.Tx) error { return insertDepressions(ctx, tx, runID, deps) })
}

func insertDepressions(ctx context.Context, ex execer, runID string, deps []depression.Depression) error {
	query := `
		INSERT INTO depressions (
			run_id, region_id, pixel_count, area, volume, mean_depth, max_depth, min_elev, max_elev
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, d := range deps {
		if _, err := ex.ExecContext(ctx, query, runID, d.ID, d.PixelCount, d.Area, d.Volume,
			d.MeanDepth, d.MaxDepth, d.MinElev, d.MaxElev); err != nil {
			return fmt.Errorf("insert depression %d: %w", d.ID, err)
		}
	}
	return nil
}

// InsertNodes stores every node of a hierarchy.
func (s *RunStore) InsertNodes(ctx context.Context, runID string, h *depression.Hierarchy) error {
	return s.inTx(ctx, func(tx *sql.Tx) error { return insertNodes(ctx, tx, runID, h) })
}

func insertNodes(ctx context.Context, ex execer, runID string, h *depression.Hierarchy) error {
	query := `
		INSERT INTO hierarchy_nodes (
			run_id, node_id, level, level_value, parent_id, root_id, region_id,
			pixel_count, area, volume, mean_depth, max_depth, min_elev, max_elev
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, n := range h.Nodes() {
		var parent *int
		if n.Parent != nil {
			parent = &n.Parent.ID
		}
		d := n.Depression
		if _, err := ex.ExecContext(ctx, query, runID, n.ID, n.Level, n.LevelValue, nullInt(parent),
			n.Root().ID, d.ID, d.PixelCount, d.Area, d.Volume,
			d.MeanDepth, d.MaxDepth, d.MinElev, d.MaxElev); err != nil {
			return fmt.Errorf("insert node %d: %w", n.ID, err)
		}
	}
	return nil
}

// RecordSinks stores a sink run and its depressions in one transaction.
// It returns the run id.
func (s *RunStore) RecordSinks(ctx context.Context, run *Run, deps []depression.Depression) (string, error) {
	run.RegionCount = len(deps)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.insertRun(ctx, tx, run); err != nil {
			return err
		}
		return insertDepressions(ctx, tx, run.RunID, deps)
	})
	if err != nil {
		return "", err
	}
	monitoring.Logf("[store] recorded %s run %s: %d regions", run.Kind, run.RunID, run.RegionCount)
	return run.RunID, nil
}

// RecordHierarchy stores a hierarchy run, its level-0 depressions and its
// nodes in one transaction. It returns the run id.
func (s *RunStore) RecordHierarchy(ctx context.Context, run *Run, deps []depression.Depression, h *depression.Hierarchy) (string, error) {
	run.RegionCount = len(deps)
	run.NodeCount = len(h.Nodes())
	run.LevelCount = h.Levels
	run.Anomalies = h.Anomalies
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.insertRun(ctx, tx, run); err != nil {
			return err
		}
		if err := insertDepressions(ctx, tx, run.RunID, deps); err != nil {
			return err
		}
		return insertNodes(ctx, tx, run.RunID, h)
	})
	if err != nil {
		return "", err
	}
	monitoring.Logf("[store] recorded %s run %s: %d regions, %d nodes", run.Kind, run.RunID, run.RegionCount, run.NodeCount)
	return run.RunID, nil
}

func (s *RunStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const runColumns = `run_id, kind, input_path, params_json, rows, cols, resolution,
		region_count, node_count, level_count, anomalies, tool_version, created_at_ns`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc rowScanner) (*Run, error) {
	var run Run
	var inputPath, paramsJSON, toolVersion sql.NullString
	err := sc.Scan(
		&run.RunID,
		&run.Kind,
		&inputPath,
		&paramsJSON,
		&run.Rows,
		&run.Cols,
		&run.Resolution,
		&run.RegionCount,
		&run.NodeCount,
		&run.LevelCount,
		&run.Anomalies,
		&toolVersion,
		&run.CreatedAtNs,
	)
	if err != nil {
		return nil, err
	}
	if inputPath.Valid {
		run.InputPath = inputPath.String
	}
	if paramsJSON.Valid && paramsJSON.String != "" {
		run.ParamsJSON = json.RawMessage(paramsJSON.String)
	}
	if toolVersion.Valid {
		run.ToolVersion = toolVersion.String
	}
	return &run, nil
}

// GetRun retrieves a run by id.
func (s *RunStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first, optionally filtered by kind.
func (s *RunStore) ListRuns(ctx context.Context, kind string) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []interface{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at_ns DESC, run_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListDepressions returns the depressions of a run ordered by region id.
func (s *RunStore) ListDepressions(ctx context.Context, runID string) ([]depression.Depression, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT region_id, pixel_count, area, volume, mean_depth, max_depth, min_elev, max_elev
		FROM depressions
		WHERE run_id = ?
		ORDER BY region_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list depressions: %w", err)
	}
	defer rows.Close()

	var deps []depression.Depression
	for rows.Next() {
		var d depression.Depression
		if err := rows.Scan(&d.ID, &d.PixelCount, &d.Area, &d.Volume, &d.MeanDepth, &d.MaxDepth, &d.MinElev, &d.MaxElev); err != nil {
			return nil, fmt.Errorf("scan depression: %w", err)
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

// ListNodes returns the hierarchy nodes of a run ordered by node id.
func (s *RunStore) ListNodes(ctx context.Context, runID string) ([]NodeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, level, level_value, parent_id, root_id, region_id,
		       pixel_count, area, volume, mean_depth, max_depth, min_elev, max_elev
		FROM hierarchy_nodes
		WHERE run_id = ?
		ORDER BY node_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []NodeRecord
	for rows.Next() {
		var n NodeRecord
		var parent sql.NullInt64
		d := &n.Depression
		if err := rows.Scan(&n.NodeID, &n.Level, &n.LevelValue, &parent, &n.RootID, &d.ID,
			&d.PixelCount, &d.Area, &d.Volume, &d.MeanDepth, &d.MaxDepth, &d.MinElev, &d.MaxElev); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		if parent.Valid {
			v := int(parent.Int64)
			n.ParentID = &v
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// DeleteRun removes a run and, through cascading keys, its results.
func (s *RunStore) DeleteRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
