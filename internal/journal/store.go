package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"avatarcast/internal/export"
	"avatarcast/internal/jobs"
)

// Store is the SQLite-backed journal.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the journal database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save upserts a job snapshot. Snapshots older than the stored row are ignored.
func (s *Store) Save(ctx context.Context, job jobs.Job) error {
	if job.ID == "" {
		return errors.New("journal: job id required")
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, state, external_id, created_at, updated_at, body)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             state = excluded.state,
             external_id = excluded.external_id,
             updated_at = excluded.updated_at,
             body = excluded.body
         WHERE excluded.updated_at >= jobs.updated_at`,
		job.ID,
		string(job.State),
		nullableString(job.ExternalID),
		job.CreatedAt.UnixNano(),
		job.UpdatedAt.UnixNano(),
		string(body),
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// Load returns every journaled job ordered by creation time.
func (s *Store) Load(ctx context.Context) ([]jobs.Job, error) {
	return s.query(ctx, `SELECT body FROM jobs ORDER BY created_at, id`)
}

// LoadActive returns jobs that have not reached a terminal state.
func (s *Store) LoadActive(ctx context.Context) ([]jobs.Job, error) {
	return s.query(ctx,
		`SELECT body FROM jobs WHERE state NOT IN (?, ?, ?) ORDER BY created_at, id`,
		string(jobs.StateSucceeded), string(jobs.StateFailed), string(jobs.StateCancelled),
	)
}

// Get fetches a single job. It returns (nil, nil) when the job is unknown.
func (s *Store) Get(ctx context.Context, id string) (*jobs.Job, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM jobs WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	var job jobs.Job
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

// Prune removes terminal jobs last updated before cutoff and returns the count.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE state IN (?, ?, ?) AND updated_at < ?`,
		string(jobs.StateSucceeded), string(jobs.StateFailed), string(jobs.StateCancelled),
		cutoff.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]jobs.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []jobs.Job
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		var job jobs.Job
		if err := json.Unmarshal([]byte(body), &job); err != nil {
			return nil, fmt.Errorf("decode job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

// Batch is a recorded export run.
type Batch struct {
	ID        string          `json:"id"`
	PresetID  string          `json:"preset_id"`
	CreatedAt time.Time       `json:"created_at"`
	Summary   export.Summary  `json:"summary"`
	Results   []export.Result `json:"results"`
}

// SaveBatch records an export batch.
func (s *Store) SaveBatch(ctx context.Context, batch Batch) error {
	if batch.ID == "" {
		return errors.New("journal: batch id required")
	}
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch %s: %w", batch.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO export_batches (id, preset_id, created_at, total, done, failed, body)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		batch.ID, batch.PresetID, batch.CreatedAt.UnixNano(),
		batch.Summary.Total, batch.Summary.Done, batch.Summary.Failed,
		string(body),
	)
	if err != nil {
		return fmt.Errorf("save batch %s: %w", batch.ID, err)
	}
	return nil
}

// RecentBatches returns up to limit batches, newest first.
func (s *Store) RecentBatches(ctx context.Context, limit int) ([]Batch, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM export_batches ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		var batch Batch
		if err := json.Unmarshal([]byte(body), &batch); err != nil {
			return nil, fmt.Errorf("decode batch: %w", err)
		}
		out = append(out, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	return out, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
