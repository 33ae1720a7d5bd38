package mockserver

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jobson/jobson-cli/internal/models"
)

// ErrJobNotFound is returned for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// Job statuses written by the runner.
const (
	StatusSubmitted  = models.JobStatusSubmitted
	StatusRunning    = models.JobStatusRunning
	StatusFinished   = models.JobStatusFinished
	StatusAborted    = models.JobStatusAborted
	StatusFatalError = models.JobStatusFatalError
)

// Output streams of a job.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  owner TEXT NOT NULL,
  spec_id TEXT NOT NULL,
  request_json TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  stdout TEXT NOT NULL DEFAULT '',
  stderr TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS timestamps (
  job_id TEXT NOT NULL REFERENCES jobs(id),
  seq INTEGER NOT NULL,
  status TEXT NOT NULL,
  time TEXT NOT NULL,
  message TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (job_id, seq)
);
`

// Store keeps submitted jobs in SQLite. OpenStore(":memory:") gives a store
// that lives as long as the process.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates the job database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// CreateJob records a new job with the submitted status.
func (s *Store) CreateJob(ctx context.Context, id, owner string, req models.JobRequest, now time.Time) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO jobs (id, name, owner, spec_id, request_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, req.Name, owner, req.Spec, string(body), now.UnixNano(),
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO timestamps (job_id, seq, status, time) VALUES (?, 0, ?, ?)`,
		id, StatusSubmitted, now.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// AddStatus appends a status change to a job's history.
func (s *Store) AddStatus(ctx context.Context, id, status, message string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO timestamps (job_id, seq, status, time, message)
		 SELECT ?, MAX(seq) + 1, ?, ?, ? FROM timestamps WHERE job_id = ? HAVING COUNT(*) > 0`,
		id, status, now.UTC().Format(time.RFC3339Nano), message, id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// AppendOutput adds data to one output stream of a job.
func (s *Store) AppendOutput(ctx context.Context, id, stream string, data []byte) error {
	var q string
	switch stream {
	case StreamStdout:
		q = `UPDATE jobs SET stdout = stdout || ? WHERE id = ?`
	case StreamStderr:
		q = `UPDATE jobs SET stderr = stderr || ? WHERE id = ?`
	default:
		return fmt.Errorf("unknown stream %q", stream)
	}
	res, err := s.db.ExecContext(ctx, q, string(data), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Output returns the content of a stream. ok is false when the job never
// wrote to it.
func (s *Store) Output(ctx context.Context, id, stream string) (data []byte, ok bool, err error) {
	var q string
	switch stream {
	case StreamStdout:
		q = `SELECT stdout FROM jobs WHERE id = ?`
	case StreamStderr:
		q = `SELECT stderr FROM jobs WHERE id = ?`
	default:
		return nil, false, fmt.Errorf("unknown stream %q", stream)
	}
	var out string
	if err := s.db.QueryRowContext(ctx, q, id).Scan(&out); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, ErrJobNotFound
		}
		return nil, false, err
	}
	return []byte(out), out != "", nil
}

// Request returns the request a job was submitted with.
func (s *Store) Request(ctx context.Context, id string) (models.JobRequest, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT request_json FROM jobs WHERE id = ?`, id).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.JobRequest{}, ErrJobNotFound
		}
		return models.JobRequest{}, err
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var req models.JobRequest
	if err := dec.Decode(&req); err != nil {
		return models.JobRequest{}, fmt.Errorf("corrupt request for job %s: %w", id, err)
	}
	return req, nil
}

// Job returns a job with its status history.
func (s *Store) Job(ctx context.Context, id string) (models.JobDetails, error) {
	job := models.JobDetails{ID: id}
	err := s.db.QueryRowContext(ctx, `SELECT name, owner FROM jobs WHERE id = ?`, id).Scan(&job.Name, &job.Owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.JobDetails{}, ErrJobNotFound
		}
		return models.JobDetails{}, err
	}
	if job.Timestamps, err = s.timestamps(ctx, id); err != nil {
		return models.JobDetails{}, err
	}
	return job, nil
}

func (s *Store) timestamps(ctx context.Context, id string) ([]models.JobTimestamp, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, time, message FROM timestamps WHERE job_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.JobTimestamp{}
	for rows.Next() {
		var ts models.JobTimestamp
		if err := rows.Scan(&ts.Status, &ts.Time, &ts.Message); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// Jobs lists jobs newest first. query matches id, name or owner; page is zero
// based.
func (s *Store) Jobs(ctx context.Context, query string, page, pageSize int) ([]models.JobDetails, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if page < 0 {
		page = 0
	}

	q := `SELECT id FROM jobs`
	var args []any
	if query != "" {
		q += ` WHERE id LIKE ? OR name LIKE ? OR owner LIKE ?`
		like := "%" + query + "%"
		args = append(args, like, like, like)
	}
	q += ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, pageSize, page*pageSize)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	jobs := make([]models.JobDetails, 0, len(ids))
	for _, id := range ids {
		job, err := s.Job(ctx, id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
