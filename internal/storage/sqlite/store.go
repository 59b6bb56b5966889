// Package sqlite persists finished analysis runs and market scans.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dyike/ThesisGo/consts"
	"github.com/dyike/ThesisGo/internal/models"
	"github.com/dyike/ThesisGo/pkg/sqlite"
)

var ErrNotFound = errors.New("record not found")

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// RunRecord is the list view of a stored run.
type RunRecord struct {
	RowID          int64
	ID             string
	Company        string
	Status         string
	Error          string
	Confidence     float64
	Recommendation string
	StepsCompleted int
	TotalSteps     int
	ExecutionTime  time.Duration
	CreatedAt      time.Time
}

type ScanRecord struct {
	RowID          int64
	ID             string
	LookbackDays   int
	DiscoveryMode  string
	StocksAnalyzed int
	Sentiment      string
	CreatedAt      time.Time
}

// RunFilter narrows ListRuns. Company matches case-insensitively as a
// substring; Cursor pages backwards from a RowID.
type RunFilter struct {
	Company string
	Cursor  int64
	Limit   int
}

type RunStats struct {
	Total            int
	Successful       int
	AvgConfidence    float64
	AvgExecutionTime time.Duration
	UniqueCompanies  int
}

func Open(dbPath string) (*Store, error) {
	db, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    company TEXT NOT NULL,
    status TEXT NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    confidence REAL NOT NULL DEFAULT 0,
    recommendation TEXT NOT NULL DEFAULT '',
    steps_completed INTEGER NOT NULL DEFAULT 0,
    total_steps INTEGER NOT NULL DEFAULT 0,
    tools_json TEXT NOT NULL DEFAULT '[]',
    errors_json TEXT NOT NULL DEFAULT '[]',
    sources_json TEXT NOT NULL DEFAULT '[]',
    execution_ms INTEGER NOT NULL DEFAULT 0,
    started_at TEXT NOT NULL DEFAULT '',
    finished_at TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS run_stages (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    stage TEXT NOT NULL,
    seq INTEGER NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    recorded_at TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, stage)
);

CREATE TABLE IF NOT EXISTS scans (
    id TEXT PRIMARY KEY,
    lookback_days INTEGER NOT NULL,
    discovery_mode TEXT NOT NULL,
    stocks_analyzed INTEGER NOT NULL DEFAULT 0,
    sentiment TEXT NOT NULL DEFAULT '',
    result_json TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_company ON runs(company);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// SaveRun stores a finished run with one row per stage. Saving the same run
// ID again replaces it.
func (s *Store) SaveRun(ctx context.Context, report *models.RunReport, elapsed time.Duration) error {
	if report == nil || report.State == nil {
		return fmt.Errorf("run report has no state")
	}
	st := report.State
	if strings.TrimSpace(st.RunID) == "" {
		return fmt.Errorf("run id is required")
	}

	tools, err := json.Marshal(st.ToolsUsed)
	if err != nil {
		return fmt.Errorf("encode tools: %w", err)
	}
	errs, err := json.Marshal(st.Errors)
	if err != nil {
		return fmt.Errorf("encode errors: %w", err)
	}
	sources, err := json.Marshal(st.Sources)
	if err != nil {
		return fmt.Errorf("encode sources: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO runs (id, company, status, error, confidence, recommendation, steps_completed, total_steps,
    tools_json, errors_json, sources_json, execution_ms, started_at, finished_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    status=excluded.status,
    error=excluded.error,
    confidence=excluded.confidence,
    recommendation=excluded.recommendation,
    steps_completed=excluded.steps_completed,
    total_steps=excluded.total_steps,
    tools_json=excluded.tools_json,
    errors_json=excluded.errors_json,
    sources_json=excluded.sources_json,
    execution_ms=excluded.execution_ms,
    finished_at=excluded.finished_at
`, st.RunID, st.Company, report.Status, report.Error, st.Confidence, st.Recommendation,
		report.StepsCompleted, report.TotalSteps, string(tools), string(errs), string(sources),
		elapsed.Milliseconds(), formatTime(st.StartedAt), formatTime(st.FinishedAt), formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_stages WHERE run_id = ?`, st.RunID); err != nil {
		return fmt.Errorf("clear stages: %w", err)
	}
	for i, stage := range consts.Stages {
		out := st.Stages[stage]
		if out == nil {
			continue
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO run_stages (run_id, stage, seq, content, recorded_at)
VALUES (?, ?, ?, ?, ?)
`, st.RunID, string(stage), i+1, out.Content, formatTime(out.Timestamp))
		if err != nil {
			return fmt.Errorf("insert stage %s: %w", stage, err)
		}
	}
	// The revision shares the stage table but sorts after every stage.
	if rev := st.Revision; rev != nil {
		_, err := tx.ExecContext(ctx, `
INSERT INTO run_stages (run_id, stage, seq, content, recorded_at)
VALUES (?, ?, ?, ?, ?)
`, st.RunID, consts.RevisionKey, len(consts.Stages)+1, rev.Content, formatTime(rev.Timestamp))
		if err != nil {
			return fmt.Errorf("insert revision: %w", err)
		}
	}
	return tx.Commit()
}

const runColumns = `rowid, id, company, status, error, confidence, recommendation, steps_completed, total_steps, execution_ms, created_at`

// ListRuns lists runs newest first.
func (s *Store) ListRuns(ctx context.Context, f RunFilter) ([]RunRecord, error) {
	limit := clampLimit(f.Limit)
	rows, err := s.db.QueryContext(ctx, `
SELECT `+runColumns+`
FROM runs
WHERE (? = 0 OR rowid < ?)
  AND (? = '' OR lower(company) LIKE '%' || lower(?) || '%')
ORDER BY rowid DESC
LIMIT ?
`, f.Cursor, f.Cursor, f.Company, f.Company, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs rows: %w", err)
	}
	return runs, nil
}

// GetRun rebuilds the full report of a stored run.
func (s *Store) GetRun(ctx context.Context, id string) (*models.RunReport, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("run id is required")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT company, status, error, confidence, recommendation, steps_completed, total_steps,
    tools_json, errors_json, sources_json, started_at, finished_at
FROM runs WHERE id = ?
`, id)

	var (
		report                             models.RunReport
		company, recommendation            string
		confidence                         float64
		toolsJSON, errorsJSON, sourcesJSON string
		startedAt, finishedAt              string
	)
	if err := row.Scan(&company, &report.Status, &report.Error, &confidence, &recommendation,
		&report.StepsCompleted, &report.TotalSteps, &toolsJSON, &errorsJSON, &sourcesJSON,
		&startedAt, &finishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get run: %w", err)
	}

	state := models.NewAnalysisState(id, company)
	state.Confidence = confidence
	state.Recommendation = recommendation
	state.StartedAt = parseTime(startedAt)
	state.FinishedAt = parseTime(finishedAt)
	if err := json.Unmarshal([]byte(toolsJSON), &state.ToolsUsed); err != nil {
		return nil, fmt.Errorf("decode tools: %w", err)
	}
	if err := json.Unmarshal([]byte(errorsJSON), &state.Errors); err != nil {
		return nil, fmt.Errorf("decode errors: %w", err)
	}
	if err := json.Unmarshal([]byte(sourcesJSON), &state.Sources); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT stage, content, recorded_at FROM run_stages WHERE run_id = ? ORDER BY seq ASC
`, id)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var stage, content, recordedAt string
		if err := rows.Scan(&stage, &content, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		out := &models.StageOutput{Content: content, Timestamp: parseTime(recordedAt)}
		if stage == consts.RevisionKey {
			state.Revision = out
			continue
		}
		state.Stages[consts.Stage(stage)] = out
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stages rows: %w", err)
	}

	report.State = state
	return &report, nil
}

func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

// ClearRuns removes every stored run and returns how many were deleted.
func (s *Store) ClearRuns(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs`)
	if err != nil {
		return 0, fmt.Errorf("clear runs: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Stats(ctx context.Context) (RunStats, error) {
	var (
		stats  RunStats
		avgCon sql.NullFloat64
		avgExe sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*),
       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
       AVG(confidence),
       AVG(execution_ms),
       COUNT(DISTINCT lower(company))
FROM runs
`, consts.State_Success).Scan(&stats.Total, &stats.Successful, &avgCon, &avgExe, &stats.UniqueCompanies)
	if err != nil {
		return RunStats{}, fmt.Errorf("run stats: %w", err)
	}
	stats.AvgConfidence = avgCon.Float64
	stats.AvgExecutionTime = time.Duration(avgExe.Float64 * float64(time.Millisecond))
	return stats, nil
}

func (s *Store) SaveScan(ctx context.Context, result *models.ScanResult) error {
	if result == nil || strings.TrimSpace(result.ID) == "" {
		return fmt.Errorf("scan id is required")
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode scan: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO scans (id, lookback_days, discovery_mode, stocks_analyzed, sentiment, result_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET result_json=excluded.result_json
`, result.ID, result.LookbackDays, result.DiscoveryMode, result.Stats.StocksAnalyzed,
		string(result.Insights.Sentiment), string(data), formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

func (s *Store) ListScans(ctx context.Context, limit int) ([]ScanRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT rowid, id, lookback_days, discovery_mode, stocks_analyzed, sentiment, created_at
FROM scans
ORDER BY rowid DESC
LIMIT ?
`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var scans []ScanRecord
	for rows.Next() {
		var (
			rec       ScanRecord
			createdAt string
		)
		if err := rows.Scan(&rec.RowID, &rec.ID, &rec.LookbackDays, &rec.DiscoveryMode,
			&rec.StocksAnalyzed, &rec.Sentiment, &createdAt); err != nil {
			return nil, fmt.Errorf("scan scan row: %w", err)
		}
		rec.CreatedAt = parseTime(createdAt)
		scans = append(scans, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list scans rows: %w", err)
	}
	return scans, nil
}

func (s *Store) GetScan(ctx context.Context, id string) (*models.ScanResult, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT result_json FROM scans WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("scan %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get scan: %w", err)
	}
	var result models.ScanResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("decode scan: %w", err)
	}
	return &result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var (
		rec       RunRecord
		execMS    int64
		createdAt string
	)
	if err := row.Scan(&rec.RowID, &rec.ID, &rec.Company, &rec.Status, &rec.Error, &rec.Confidence,
		&rec.Recommendation, &rec.StepsCompleted, &rec.TotalSteps, &execMS, &createdAt); err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	rec.ExecutionTime = time.Duration(execMS) * time.Millisecond
	rec.CreatedAt = parseTime(createdAt)
	return &rec, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
