// ABOUTME: Store methods for the jobs table: enqueue, SKIP LOCKED claim, outcomes.
// ABOUTME: Claiming is a single conditional UPDATE; one of N racing workers wins.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/teacurran/village-homepage-sub012/internal/job"
)

// EnqueueJobParams holds the fields for creating a new job.
type EnqueueJobParams struct {
	JobType     string
	Queue       job.Queue
	Priority    int32
	Payload     json.RawMessage
	MaxAttempts int32
	// NotBefore is the earliest claim-eligible time; nil means now.
	NotBefore *time.Time
}

const enqueueJobSQL = `
INSERT INTO jobs (job_type, queue, priority, payload, max_attempts, scheduled_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6::timestamptz, now()))
RETURNING id`

func (p EnqueueJobParams) validate() error {
	if p.JobType == "" {
		return errors.New("empty job type")
	}
	if !p.Queue.Valid() {
		return fmt.Errorf("unknown queue family %q", p.Queue)
	}
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", p.MaxAttempts)
	}
	return nil
}

func (p EnqueueJobParams) payloadOrEmpty() json.RawMessage {
	if len(p.Payload) == 0 {
		return json.RawMessage(`{}`)
	}
	return p.Payload
}

// EnqueueJob inserts a new pending job and returns its id. It never blocks
// on worker availability; the row is simply picked up by the next eligible
// poll.
func (s *Store) EnqueueJob(ctx context.Context, p EnqueueJobParams) (int64, error) {
	if err := p.validate(); err != nil {
		return 0, fmt.Errorf("enqueue job: %w", err)
	}
	var id int64
	err := s.pool.QueryRow(ctx, enqueueJobSQL,
		p.JobType, string(p.Queue), p.Priority, p.payloadOrEmpty(), p.MaxAttempts, p.NotBefore,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("enqueue job: %w", err)
	}
	return id, nil
}

// EnqueueJobTx runs the same insert on a caller-owned transaction so the
// job row commits or rolls back together with the producer's own writes.
// A producer crash between its domain write and the enqueue therefore
// cannot silently lose the job.
func (s *Store) EnqueueJobTx(ctx context.Context, tx pgx.Tx, p EnqueueJobParams) (int64, error) {
	if err := p.validate(); err != nil {
		return 0, fmt.Errorf("enqueue job: %w", err)
	}
	var id int64
	err := tx.QueryRow(ctx, enqueueJobSQL,
		p.JobType, string(p.Queue), p.Priority, p.payloadOrEmpty(), p.MaxAttempts, p.NotBefore,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("enqueue job: %w", err)
	}
	return id, nil
}

// claimJobSQL atomically claims the single best eligible job. Eligible
// means pending and due, or processing with an expired lease (an abandoned
// claim from a crashed worker — reclaimable without any explicit unlock).
// The inner SELECT orders by (priority DESC, scheduled_at, id) and uses
// FOR UPDATE SKIP LOCKED so concurrent claimants never block each other:
// exactly one wins the row, the rest move on to the next candidate.
const claimJobSQL = `
UPDATE jobs SET
    status     = 'processing',
    locked_at  = now(),
    locked_by  = $1,
    updated_at = now()
WHERE id = (
    SELECT id FROM jobs
    WHERE queue = ANY($2)
      AND (
            (status = 'pending'    AND scheduled_at <= now())
         OR (status = 'processing' AND locked_at < now() - make_interval(secs => $3))
      )
    ORDER BY priority DESC, scheduled_at, id
    FOR UPDATE SKIP LOCKED
    LIMIT 1
)
RETURNING ` + jobColumns

const jobColumns = `id, job_type, queue, priority, payload, status, attempts, max_attempts,
    scheduled_at, locked_at, locked_by, completed_at, failed_at, last_error,
    created_at, updated_at`

// ClaimJob claims one eligible job from the given queues for workerID,
// stamping the lease. Jobs whose locked_at is older than leaseTimeout are
// treated as abandoned and may be re-claimed. Returns (nil, nil) when no
// job is currently eligible — losing a claim race is not an error.
func (s *Store) ClaimJob(ctx context.Context, queues []job.Queue, workerID string, leaseTimeout time.Duration) (*job.Job, error) {
	names := make([]string, len(queues))
	for i, q := range queues {
		names[i] = string(q)
	}
	row := s.pool.QueryRow(ctx, claimJobSQL, workerID, names, leaseTimeout.Seconds())
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return j, nil
}

// CompleteJob marks a processing job as completed. If the row is no longer
// processing (the lease expired and another worker already finished it),
// the update is a silent no-op — at-least-once semantics make the second
// outcome redundant, not wrong.
func (s *Store) CompleteJob(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET
		    status       = 'completed',
		    completed_at = now(),
		    locked_at    = NULL,
		    locked_by    = NULL,
		    updated_at   = now()
		WHERE id = $1 AND status = 'processing'`, id)
	if err != nil {
		return fmt.Errorf("complete job %d: %w", id, err)
	}
	return nil
}

// RetryJob returns a processing job to pending with an incremented attempt
// count, a backoff delay on scheduled_at, and a cleared lease. lastError
// records the most recent failure for operators.
func (s *Store) RetryJob(ctx context.Context, id int64, delay time.Duration, lastError string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET
		    status       = 'pending',
		    attempts     = attempts + 1,
		    scheduled_at = now() + make_interval(secs => $2),
		    locked_at    = NULL,
		    locked_by    = NULL,
		    last_error   = $3,
		    updated_at   = now()
		WHERE id = $1 AND status = 'processing'`, id, delay.Seconds(), lastError)
	if err != nil {
		return fmt.Errorf("retry job %d: %w", id, err)
	}
	return nil
}

// FailJob marks a processing job as terminally failed: retries exhausted,
// a terminal handler error, or an unregistered job type. The row is left
// for operator inspection; the engine never retries it again.
func (s *Store) FailJob(ctx context.Context, id int64, lastError string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET
		    status     = 'failed',
		    attempts   = attempts + 1,
		    failed_at  = now(),
		    locked_at  = NULL,
		    locked_by  = NULL,
		    last_error = $2,
		    updated_at = now()
		WHERE id = $1 AND status = 'processing'`, id, lastError)
	if err != nil {
		return fmt.Errorf("fail job %d: %w", id, err)
	}
	return nil
}

// CountProcessing returns the number of live in-flight jobs in a queue
// family. Rows whose lease is older than leaseTimeout are abandoned, not
// in flight, and are excluded so a crashed worker cannot pin a family at
// its concurrency ceiling forever.
func (s *Store) CountProcessing(ctx context.Context, queue job.Queue, leaseTimeout time.Duration) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM jobs
		WHERE queue = $1 AND status = 'processing'
		  AND locked_at >= now() - make_interval(secs => $2)`,
		string(queue), leaseTimeout.Seconds(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count processing %s: %w", queue, err)
	}
	return n, nil
}

// scanJob scans one full job row in jobColumns order.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j           job.Job
		queue       string
		status      string
		lockedAt    sql.NullTime
		lockedBy    sql.NullString
		completedAt sql.NullTime
		failedAt    sql.NullTime
		lastError   sql.NullString
	)
	err := row.Scan(
		&j.ID, &j.JobType, &queue, &j.Priority, &j.Payload, &status,
		&j.Attempts, &j.MaxAttempts, &j.ScheduledAt, &lockedAt, &lockedBy,
		&completedAt, &failedAt, &lastError, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Queue = job.Queue(queue)
	j.Status = job.Status(status)
	if lockedAt.Valid {
		j.LockedAt = &lockedAt.Time
	}
	if lockedBy.Valid {
		j.LockedBy = &lockedBy.String
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	if failedAt.Valid {
		j.FailedAt = &failedAt.Time
	}
	if lastError.Valid {
		j.LastError = &lastError.String
	}
	return &j, nil
}
