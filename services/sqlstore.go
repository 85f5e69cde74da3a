package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"mediafetch/types"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const jobColumns = `id, source_reference, format, title, channel, metadata, embed_thumbnail,
	status, progress, result_path, result_file_name, error_message, warning,
	created_at, started_at, completed_at`

const createJobsTable = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	source_reference TEXT NOT NULL,
	format TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	channel TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}',
	embed_thumbnail INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	progress INTEGER NOT NULL DEFAULT 0,
	result_path TEXT NOT NULL DEFAULT '',
	result_file_name TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	warning TEXT NOT NULL DEFAULT '',
	created_at BIGINT NOT NULL,
	started_at BIGINT NOT NULL DEFAULT 0,
	completed_at BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
`

// sqlStore persists jobs through database/sql (SQLite or PostgreSQL).
// Timestamps are stored as unix nanoseconds so both drivers agree.
type sqlStore struct {
	db       *sql.DB
	postgres bool
	// serializes read-modify-write in Update
	mu sync.Mutex
}

// OpenSQLStore opens (and migrates) a job store backed by driver "sqlite" or "postgres"
func OpenSQLStore(driver, dsn string) (JobStore, error) {
	var db *sql.DB
	var err error

	switch driver {
	case "sqlite":
		if dir := filepath.Dir(dsn); dir != "" && dsn != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create store directory: %w", err)
			}
		}
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		// one connection keeps pragmas and ":memory:" databases consistent
		db.SetMaxOpenConns(1)
	case "postgres":
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s store: %w", driver, err)
	}

	if driver == "sqlite" {
		if _, err := db.Exec(`
			PRAGMA busy_timeout = 5000;
			PRAGMA journal_mode = WAL;
		`); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure sqlite store: %w", err)
		}
	}

	if _, err := db.Exec(createJobsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s store: %w", driver, err)
	}

	return &sqlStore{db: db, postgres: driver == "postgres"}, nil
}

func (s *sqlStore) Insert(job types.Job) error {
	meta, err := json.Marshal(job.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	_, err = s.db.Exec(s.rebind(`INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		job.ID, job.SourceReference, string(job.Format), job.Title, job.Channel, string(meta),
		boolToInt(job.EmbedThumbnail), string(job.Status), job.Progress,
		job.ResultPath, job.ResultFileName, job.Error, job.Warning,
		job.CreatedAt.UnixNano(), unixNanoOrZero(job.StartedAt), unixNanoOrZero(job.CompletedAt))
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

func (s *sqlStore) Get(id string) (types.Job, error) {
	row := s.db.QueryRow(s.rebind(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`), id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Job{}, ErrJobNotFound
	}
	return job, err
}

func (s *sqlStore) List() ([]types.Job, error) {
	rows, err := s.db.Query(`SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []types.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *sqlStore) Update(id string, fn func(job *types.Job) error) (types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Get(id)
	if err != nil {
		return types.Job{}, err
	}

	working := cloneJob(current)
	if err := fn(&working); err != nil {
		return current, err
	}

	meta, err := json.Marshal(working.Metadata)
	if err != nil {
		return current, fmt.Errorf("encode metadata: %w", err)
	}

	res, err := s.db.Exec(s.rebind(`UPDATE jobs SET
		title = ?, channel = ?, metadata = ?, embed_thumbnail = ?,
		status = ?, progress = ?, result_path = ?, result_file_name = ?,
		error_message = ?, warning = ?, started_at = ?, completed_at = ?
		WHERE id = ?`),
		working.Title, working.Channel, string(meta), boolToInt(working.EmbedThumbnail),
		string(working.Status), working.Progress, working.ResultPath, working.ResultFileName,
		working.Error, working.Warning, unixNanoOrZero(working.StartedAt), unixNanoOrZero(working.CompletedAt),
		id)
	if err != nil {
		return current, fmt.Errorf("update job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return current, ErrJobNotFound
	}
	return working, nil
}

func (s *sqlStore) Delete(id string) error {
	res, err := s.db.Exec(s.rebind(`DELETE FROM jobs WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

// rebind rewrites "?" placeholders as "$n" for PostgreSQL
func (s *sqlStore) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (types.Job, error) {
	var (
		job                              types.Job
		format, status, meta             string
		embed                            int
		createdAt, startedAt, finishedAt int64
	)
	err := row.Scan(&job.ID, &job.SourceReference, &format, &job.Title, &job.Channel, &meta, &embed,
		&status, &job.Progress, &job.ResultPath, &job.ResultFileName, &job.Error, &job.Warning,
		&createdAt, &startedAt, &finishedAt)
	if err != nil {
		return types.Job{}, err
	}

	if err := json.Unmarshal([]byte(meta), &job.Metadata); err != nil {
		return types.Job{}, fmt.Errorf("decode metadata of job %s: %w", job.ID, err)
	}
	job.Format = types.Format(format)
	job.Status = types.JobStatus(status)
	job.EmbedThumbnail = embed != 0
	job.CreatedAt = time.Unix(0, createdAt)
	if startedAt != 0 {
		job.StartedAt = timePtr(time.Unix(0, startedAt))
	}
	if finishedAt != 0 {
		job.CompletedAt = timePtr(time.Unix(0, finishedAt))
	}
	return job, nil
}

func unixNanoOrZero(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixNano()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
