// Package store persists job status and results for the gateway.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

var (
	ErrAlreadyProcessing = errors.New("meeting is already being processed")
	ErrNotFound          = errors.New("job not found")
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Fixed width keeps stored timestamps lexically ordered.
const timeLayout = "2006-01-02T15:04:05.000000Z"

type Job struct {
	MeetingID string          `json:"meeting_id"`
	Title     string          `json:"title"`
	Status    Status          `json:"status"`
	Error     string          `json:"error,omitempty"`
	Source    string          `json:"source"`
	Result    json.RawMessage `json:"result,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type JobStore struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

func Open(dbPath string) (*JobStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &JobStore{db: db, now: time.Now}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *JobStore) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *JobStore) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			meeting_id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			result_json TEXT,
			source TEXT NOT NULL DEFAULT 'api',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_updated ON jobs(status, updated_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *JobStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *JobStore) stamp() string {
	return s.now().UTC().Format(timeLayout)
}

// Begin marks a meeting as processing. A meeting that is already processing
// is rejected; finished meetings may be processed again.
func (s *JobStore) Begin(ctx context.Context, meetingID, title, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin job: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE meeting_id = ?`, meetingID).Scan(&status)
	switch {
	case err == nil && Status(status) == StatusProcessing:
		return ErrAlreadyProcessing
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("begin job: %w", err)
	}

	now := s.stamp()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobs (meeting_id, title, status, error, result_json, source, created_at, updated_at)
		VALUES (?, ?, ?, '', NULL, ?, ?, ?)
		ON CONFLICT(meeting_id) DO UPDATE SET
			title = excluded.title,
			status = excluded.status,
			error = '',
			result_json = NULL,
			source = excluded.source,
			updated_at = excluded.updated_at
	`, meetingID, title, string(StatusProcessing), source, now, now)
	if err != nil {
		return fmt.Errorf("begin job: %w", err)
	}
	return tx.Commit()
}

// Complete stores the serialized result of a successful run.
func (s *JobStore) Complete(ctx context.Context, meetingID string, result []byte) error {
	return s.finish(ctx, meetingID, StatusCompleted, "", result)
}

// Fail records a failed run. result may be nil.
func (s *JobStore) Fail(ctx context.Context, meetingID, errMsg string, result []byte) error {
	return s.finish(ctx, meetingID, StatusFailed, errMsg, result)
}

func (s *JobStore) finish(ctx context.Context, meetingID string, status Status, errMsg string, result []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var resultCol any
	if len(result) > 0 {
		resultCol = string(result)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, result_json = ?, updated_at = ?
		WHERE meeting_id = ?
	`, string(status), errMsg, resultCol, s.stamp(), meetingID)
	if err != nil {
		return fmt.Errorf("update job %s: %w", meetingID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update job %s: %w", meetingID, ErrNotFound)
	}
	return nil
}

const jobColumns = `meeting_id, title, status, error, result_json, source, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var (
		j                Job
		status           string
		result           sql.NullString
		created, updated string
	)
	if err := row.Scan(&j.MeetingID, &j.Title, &status, &j.Error, &result, &j.Source, &created, &updated); err != nil {
		return nil, err
	}
	j.Status = Status(status)
	if result.Valid {
		j.Result = json.RawMessage(result.String)
	}
	j.CreatedAt, _ = time.Parse(timeLayout, created)
	j.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &j, nil
}

func (s *JobStore) Get(ctx context.Context, meetingID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE meeting_id = ?`, meetingID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", meetingID, err)
	}
	return j, nil
}

// List returns the most recently updated jobs first.
func (s *JobStore) List(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// InterruptedError is recorded on jobs that were still processing when the
// previous gateway process exited.
const InterruptedError = "interrupted by restart"

// ResetInterrupted fails every job left in processing. Call it once at
// startup, before any new work is accepted.
func (s *JobStore) ResetInterrupted(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE status = ?
	`, string(StatusFailed), InterruptedError, s.stamp(), string(StatusProcessing))
	if err != nil {
		return 0, fmt.Errorf("reset interrupted jobs: %w", err)
	}
	return res.RowsAffected()
}

// PruneFinished deletes completed and failed jobs last updated before cutoff.
// Jobs still processing are kept.
func (s *JobStore) PruneFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM jobs WHERE status != ? AND updated_at < ?
	`, string(StatusProcessing), cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}
