package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"chatrelay/pkg/message"
)

// Job states. A job claimed by a worker that died comes back to pending
// once its lease expires, so completed work can run twice; delivery is
// at-least-once, never exactly-once.
const (
	statusPending = "pending"
	statusRunning = "running"
	statusDone    = "done"
	statusFailed  = "failed"
)

// Queue is a durable work queue for deferred generation jobs, backed by a
// local SQLite database so jobs survive process restarts.
type Queue struct {
	db     *sql.DB
	lease  time.Duration
	notify chan struct{}
}

func Open(dbPath string, lease time.Duration) (*Queue, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create queue directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			enqueued_at INTEGER NOT NULL,
			claimed_at INTEGER,
			finished_at INTEGER
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create jobs table: %w", err)
	}
	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_jobs_status_enqueued ON jobs(status, enqueued_at)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create jobs index: %w", err)
	}

	if lease <= 0 {
		lease = 5 * time.Minute
	}

	return &Queue{
		db:     db,
		lease:  lease,
		notify: make(chan struct{}, 1),
	}, nil
}

func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue persists a job and returns immediately. It never waits on the
// workers; an idle worker is nudged through a non-blocking notify.
func (q *Queue) Enqueue(job *message.DeferredJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to serialize job: %w", err)
	}

	_, err = q.db.Exec(`
		INSERT INTO jobs (id, payload, status, enqueued_at)
		VALUES (?, ?, ?, ?)
	`, job.ID, string(payload), statusPending, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Claim transfers the oldest runnable job to a worker. Runnable means
// pending, or running under an expired lease. Returns nil when the queue
// is empty.
func (q *Queue) Claim(ctx context.Context) (*message.DeferredJob, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	expired := now - int64(q.lease.Seconds())

	var id, payload string
	err = tx.QueryRowContext(ctx, `
		SELECT id, payload FROM jobs
		WHERE status = ? OR (status = ? AND claimed_at < ?)
		ORDER BY enqueued_at
		LIMIT 1
	`, statusPending, statusRunning, expired).Scan(&id, &payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query runnable job: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE jobs SET status = ?, claimed_at = ?, attempts = attempts + 1
		WHERE id = ?
	`, statusRunning, now, id)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	var job message.DeferredJob
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		// Unreadable payload: park it as failed so it stops recycling.
		q.finish(id, statusFailed)
		return nil, fmt.Errorf("failed to deserialize job %s: %w", id, err)
	}
	return &job, nil
}

func (q *Queue) MarkDone(id string) error {
	return q.finish(id, statusDone)
}

func (q *Queue) MarkFailed(id string) error {
	return q.finish(id, statusFailed)
}

func (q *Queue) finish(id, status string) error {
	_, err := q.db.Exec(`
		UPDATE jobs SET status = ?, finished_at = ? WHERE id = ?
	`, status, time.Now().Unix(), id)
	return err
}

// PruneFinished deletes done and failed jobs older than retention.
func (q *Queue) PruneFinished(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()
	res, err := q.db.Exec(`
		DELETE FROM jobs
		WHERE status IN (?, ?) AND finished_at IS NOT NULL AND finished_at < ?
	`, statusDone, statusFailed, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PendingCount reports jobs waiting for a worker.
func (q *Queue) PendingCount() (int, error) {
	var n int
	err := q.db.QueryRow(`SELECT COUNT(*) FROM jobs WHERE status = ?`, statusPending).Scan(&n)
	return n, err
}
