// Package job defines the domain types of the background job engine: the
// persisted Job record, the queue-family and status enumerations, the
// handler contract with its failure classification, the closed handler
// registry, and the retry backoff policy.
//
// Delivery is at-least-once. A handler may be re-run after a lease expiry
// or a retryable failure, so handlers must be idempotent or use the
// attempts counter to detect replays.
package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Queue is a queue family: a named partition of the backlog by resource
// profile and urgency, independent of job type. Multiple job types may
// share a family.
type Queue string

const (
	QueueDefault    Queue = "default"
	QueueHigh       Queue = "high"
	QueueLow        Queue = "low"
	QueueBulk       Queue = "bulk"
	QueueScreenshot Queue = "screenshot"
)

// Queues returns all queue families in a stable order.
func Queues() []Queue {
	return []Queue{QueueDefault, QueueHigh, QueueLow, QueueBulk, QueueScreenshot}
}

// Valid reports whether q is one of the fixed queue families.
func (q Queue) Valid() bool {
	switch q {
	case QueueDefault, QueueHigh, QueueLow, QueueBulk, QueueScreenshot:
		return true
	}
	return false
}

// ParseQueue converts a queue family name (case-insensitive) to a Queue.
func ParseQueue(s string) (Queue, error) {
	q := Queue(strings.ToLower(strings.TrimSpace(s)))
	if !q.Valid() {
		return "", fmt.Errorf("unknown queue family %q", s)
	}
	return q, nil
}

// Status is the lifecycle state of a job row.
// pending -> processing -> (completed | failed). A processing row whose
// lease has expired re-enters the eligible set without an explicit
// transition back to pending.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Job is the persisted unit of asynchronous work.
type Job struct {
	ID          int64
	JobType     string
	Queue       Queue
	Priority    int32
	Payload     json.RawMessage
	Status      Status
	Attempts    int32
	MaxAttempts int32
	ScheduledAt time.Time
	LockedAt    *time.Time
	LockedBy    *string
	CompletedAt *time.Time
	FailedAt    *time.Time
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Handler is the function executed for each claimed job. A nil return
// marks the job completed. A non-nil return is retryable by default
// (exponential backoff up to max_attempts, then failed status); wrap the
// error with Terminal to fail the job immediately instead.
type Handler func(ctx context.Context, payload json.RawMessage) error

// TerminalError marks a handler failure that must not be retried, such as
// a payload validation error that no number of re-runs will fix.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string { return e.Err.Error() }

func (e *TerminalError) Unwrap() error { return e.Err }

// Terminal wraps err so the supervisor fails the job immediately instead
// of scheduling a retry. Terminal(nil) returns nil.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &TerminalError{Err: err}
}

// IsTerminal reports whether err is, or wraps, a TerminalError.
func IsTerminal(err error) bool {
	var te *TerminalError
	return errors.As(err, &te)
}
