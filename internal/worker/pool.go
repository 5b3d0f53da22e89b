// Package worker runs the execution supervisors that claim and execute
// jobs from the jobs table using FOR UPDATE SKIP LOCKED.
//
// Handlers are registered per job type in a job.Registry before calling
// Pool.Start. Each served queue family gets a dedicated polling goroutine,
// gated by the concurrency Governor. Any number of worker processes may
// run the same configuration against the same table; all coordination is
// through the store, so zero, one, or many supervisors behave identically.
//
// There is no lease renewal: a handler that runs longer than the lease
// timeout risks a duplicate concurrent execution once its lease expires.
// Handlers must be idempotent or decomposed into shorter steps.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teacurran/village-homepage-sub012/internal/job"
	"github.com/teacurran/village-homepage-sub012/internal/store"
)

// Config holds supervisor tuning parameters (sourced from config.Config).
type Config struct {
	// Queues this process serves; one polling goroutine per family.
	Queues []job.Queue
	// PollInterval is the idle delay between unsuccessful polls.
	PollInterval time.Duration
	// LeaseTimeout is the age at which a processing job's claim is
	// considered abandoned and reclaimable.
	LeaseTimeout time.Duration
	// Backoff computes retry delays for retryable failures.
	Backoff job.Backoff
	// Limits are the per-family in-flight ceilings; 0 means unlimited.
	Limits map[job.Queue]int
}

const (
	defaultPollInterval = 2 * time.Second
	defaultLeaseTimeout = 5 * time.Minute
)

// Pool manages the polling goroutines of one worker process. A random
// workerID is generated at construction time to distinguish this process
// in the locked_by column.
type Pool struct {
	store    *store.Store
	registry *job.Registry
	cfg      Config
	gov      *Governor
	workerID string
}

// New creates a Pool backed by st, dispatching through registry.
func New(st *store.Store, registry *job.Registry, cfg Config) *Pool {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.LeaseTimeout <= 0 {
		cfg.LeaseTimeout = defaultLeaseTimeout
	}
	if len(cfg.Queues) == 0 {
		cfg.Queues = job.Queues()
	}
	return &Pool{
		store:    st,
		registry: registry,
		cfg:      cfg,
		gov:      NewGovernor(st, cfg.Limits, cfg.LeaseTimeout),
		workerID: uuid.New().String(),
	}
}

// WorkerID returns the identity this process stamps into locked_by.
func (p *Pool) WorkerID() string { return p.workerID }

// Start launches one polling goroutine per served queue, then blocks until
// ctx is cancelled. On cancellation the goroutines stop claiming, any
// in-flight job completes, and Start returns after all goroutines exit.
func (p *Pool) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, q := range p.cfg.Queues {
		wg.Add(1)
		go func(queue job.Queue) {
			defer wg.Done()
			p.runQueue(ctx, queue)
		}(q)
	}
	wg.Wait()
	slog.Info("worker pool stopped", "worker_id", p.workerID)
}

// runQueue polls queue for jobs until ctx is cancelled. Uses time.NewTicker
// (not time.After) to avoid timer leaks.
func (p *Pool) runQueue(ctx context.Context, queue job.Queue) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	slog.Info("worker queue started",
		"queue", queue, "worker_id", p.workerID, "registered_types", p.registry.Types())

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker queue stopping", "queue", queue)
			return
		case <-ticker.C:
			p.processOne(ctx, queue)
		}
	}
}

// RunOnce performs one synchronous claim pass over every served queue and
// reports how many jobs were executed. Used in tests only.
func (p *Pool) RunOnce(ctx context.Context) int {
	n := 0
	for _, q := range p.cfg.Queues {
		if p.processOne(ctx, q) {
			n++
		}
	}
	return n
}

// processOne claims at most one job from queue and executes it, reporting
// whether a job was executed. Errors are logged but never stop the polling
// loop — the goroutine continues to the next tick.
func (p *Pool) processOne(ctx context.Context, queue job.Queue) bool {
	ok, err := p.gov.Allow(ctx, queue)
	if err != nil {
		slog.Error("governor check error", "queue", queue, "error", err)
		return false
	}
	if !ok {
		// Family at its in-flight ceiling; skip it this tick rather
		// than block. Other queues' goroutines keep polling.
		return false
	}

	j, err := p.store.ClaimJob(ctx, []job.Queue{queue}, p.workerID, p.cfg.LeaseTimeout)
	if err != nil {
		slog.Error("claim job error", "queue", queue, "error", err)
		return false
	}
	if j == nil {
		return false // nothing eligible; normal case
	}

	p.execute(ctx, j)
	return true
}

// execute dispatches a claimed job to its handler and records the outcome.
// No error escapes: every handler failure is classified as retryable or
// terminal and written back to the store.
func (p *Pool) execute(ctx context.Context, j *job.Job) {
	h, registered := p.registry.Handler(j.JobType)
	if !registered {
		// Retrying against a handler that will never exist would loop
		// until max_attempts for nothing; fail fast instead.
		slog.Error("no handler registered for job type",
			"job_type", j.JobType, "job_id", j.ID, "queue", j.Queue)
		p.fail(ctx, j, fmt.Sprintf("no handler registered for job type %q", j.JobType))
		return
	}

	slog.Info("executing job",
		"queue", j.Queue, "job_type", j.JobType, "job_id", j.ID, "attempts", j.Attempts)

	err := p.invoke(ctx, h, j)
	if err == nil {
		if cerr := p.store.CompleteJob(ctx, j.ID); cerr != nil {
			slog.Error("complete job error", "job_id", j.ID, "error", cerr)
			return
		}
		slog.Info("job completed", "queue", j.Queue, "job_id", j.ID)
		return
	}

	if job.IsTerminal(err) {
		slog.Error("job failed terminally",
			"queue", j.Queue, "job_id", j.ID, "error", err)
		p.fail(ctx, j, err.Error())
		return
	}

	// Unclassified failures are assumed transient.
	nextAttempt := j.Attempts + 1
	if nextAttempt >= j.MaxAttempts {
		slog.Error("job retries exhausted",
			"queue", j.Queue, "job_id", j.ID, "attempts", nextAttempt, "error", err)
		p.fail(ctx, j, err.Error())
		return
	}

	delay := p.cfg.Backoff.Delay(nextAttempt)
	slog.Warn("job handler failed, scheduling retry",
		"queue", j.Queue, "job_id", j.ID, "attempt", nextAttempt, "delay", delay, "error", err)
	if rerr := p.store.RetryJob(ctx, j.ID, delay, err.Error()); rerr != nil {
		slog.Error("retry job error", "job_id", j.ID, "error", rerr)
	}
}

// invoke runs the handler, converting a panic into an ordinary retryable
// error so one bad payload cannot take down the polling goroutine.
func (p *Pool) invoke(ctx context.Context, h job.Handler, j *job.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, j.Payload)
}

func (p *Pool) fail(ctx context.Context, j *job.Job, msg string) {
	if err := p.store.FailJob(ctx, j.ID, msg); err != nil {
		slog.Error("fail job error", "job_id", j.ID, "error", err)
	}
}
