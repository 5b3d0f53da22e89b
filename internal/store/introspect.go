// ABOUTME: Introspection surface over the jobs table for operational tooling.
// ABOUTME: Per-queue stats, per-job detail, filtered listing, manual replay.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/teacurran/village-homepage-sub012/internal/job"
)

// QueueStat summarizes one queue family for monitoring.
type QueueStat struct {
	Queue      job.Queue
	Pending    int64
	Processing int64
	Completed  int64
	Failed     int64
	// OldestPending is the scheduled_at of the oldest eligible pending job,
	// nil when the queue has no pending work. Its age against now is the
	// primary backlog-health signal.
	OldestPending *time.Time
}

// QueueStats returns per-status counts and oldest-pending age for every
// queue family that has any rows, ordered by queue name.
func (s *Store) QueueStats(ctx context.Context) ([]QueueStat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT queue,
		       COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'processing'),
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       MIN(scheduled_at) FILTER (WHERE status = 'pending')
		FROM jobs
		GROUP BY queue
		ORDER BY queue`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	var result []QueueStat
	for rows.Next() {
		var (
			st     QueueStat
			queue  string
			oldest sql.NullTime
		)
		if err := rows.Scan(&queue, &st.Pending, &st.Processing, &st.Completed, &st.Failed, &oldest); err != nil {
			return nil, fmt.Errorf("queue stats: %w", err)
		}
		st.Queue = job.Queue(queue)
		if oldest.Valid {
			st.OldestPending = &oldest.Time
		}
		result = append(result, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return result, nil
}

// GetJob returns the job with the given id, or nil if not found. Exposes
// payload, attempts, and last_error for manual inspection of failed work.
func (s *Store) GetJob(ctx context.Context, id int64) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	return j, nil
}

// ListJobsParams holds optional filters for ListJobs. Nil filters match
// everything.
type ListJobsParams struct {
	Queue   *job.Queue
	Status  *job.Status
	JobType *string
	// AfterID is the keyset cursor: only rows with id < AfterID are
	// returned. Zero means start from the newest row.
	AfterID int64
	Limit   int
}

// ListJobs returns jobs newest-first with optional queue/status/type
// filters and keyset pagination on id. Caller passes Limit+1 to detect
// whether a next page exists.
func (s *Store) ListJobs(ctx context.Context, p ListJobsParams) ([]job.Job, error) {
	psql := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	sb := psql.Select(jobColumns).
		From("jobs").
		OrderBy("id DESC").
		Limit(uint64(p.Limit)) //nolint:gosec // G115: limit validated by caller

	if p.Queue != nil {
		sb = sb.Where(sq.Eq{"queue": string(*p.Queue)})
	}
	if p.Status != nil {
		sb = sb.Where(sq.Eq{"status": string(*p.Status)})
	}
	if p.JobType != nil {
		sb = sb.Where(sq.Eq{"job_type": *p.JobType})
	}
	if p.AfterID > 0 {
		sb = sb.Where(sq.Lt{"id": p.AfterID})
	}

	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("list jobs: build query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var result []job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		result = append(result, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return result, nil
}

// ReplayJob resets a terminally failed job back to pending with a zeroed
// attempt count so workers pick it up again. No-ops silently if the job is
// not in the failed state.
func (s *Store) ReplayJob(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET
		    status       = 'pending',
		    attempts     = 0,
		    scheduled_at = now(),
		    failed_at    = NULL,
		    last_error   = NULL,
		    updated_at   = now()
		WHERE id = $1 AND status = 'failed'`, id)
	if err != nil {
		return fmt.Errorf("replay job %d: %w", id, err)
	}
	return nil
}
