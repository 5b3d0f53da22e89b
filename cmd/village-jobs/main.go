// Command village-jobs runs the asynchronous job engine.
//
// Subcommands:
//
//	worker   — start the polling worker pool (any number of processes may run)
//	migrate  — run pending database migrations and exit
//	enqueue  — enqueue a single job from the command line
//	stats    — print per-queue backlog statistics and exit
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	// Embeds the IANA timezone database in the binary so that
	// time.LoadLocation works inside distroless containers that have no
	// /usr/share/zoneinfo.
	_ "time/tzdata"

	// Automatically sets GOMEMLIMIT from the cgroup memory limit so that
	// the Go GC triggers before the OOM killer fires in containers.
	_ "github.com/KimMachineGun/automemlimit"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/teacurran/village-homepage-sub012/internal/config"
	"github.com/teacurran/village-homepage-sub012/internal/job"
	"github.com/teacurran/village-homepage-sub012/internal/store"
	"github.com/teacurran/village-homepage-sub012/internal/worker"
	"github.com/teacurran/village-homepage-sub012/migrations"
)

func main() {
	root := &cobra.Command{
		Use:   "village-jobs",
		Short: "Durable multi-queue background job engine",
		// Silence default error printing; we print it ourselves with slog.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(
		workerCmd(),
		migrateCmd(),
		enqueueCmd(),
		statsCmd(),
	)

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// ── worker ────────────────────────────────────────────────────────────────────

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Start the polling worker pool",
		RunE:  runWorker,
	}
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	db, err := newPool(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	queues := make([]job.Queue, 0, len(cfg.WorkerQueues))
	for _, name := range cfg.WorkerQueues {
		q, err := job.ParseQueue(name)
		if err != nil {
			return fmt.Errorf("WORKER_QUEUES: %w", err)
		}
		queues = append(queues, q)
	}

	registry := job.NewRegistry()
	if err := registerHandlers(registry); err != nil {
		return fmt.Errorf("register handlers: %w", err)
	}

	pool := worker.New(store.New(db), registry, worker.Config{
		Queues:       queues,
		PollInterval: cfg.WorkerPollInterval,
		LeaseTimeout: cfg.WorkerLeaseTimeout,
		Backoff:      job.Backoff{Base: cfg.BackoffBase, Max: cfg.BackoffMax},
		Limits:       cfg.QueueLimits(),
	})

	slog.Info("worker started",
		"worker_id", pool.WorkerID(),
		"queues", cfg.WorkerQueues,
		"lease_timeout", cfg.WorkerLeaseTimeout,
	)
	pool.Start(ctx) // blocks until ctx cancelled, then drains in-flight jobs
	return nil
}

// registerHandlers wires the job-type handlers this deployment executes.
// The handlers below are stubs; each owning subsystem (screenshot capture,
// feed refresh, AI categorization, …) replaces its own as it is wired in.
func registerHandlers(r *job.Registry) error {
	if err := r.Register("SCREENSHOT_CAPTURE", screenshotCaptureHandler); err != nil {
		return err
	}
	return r.Register("RSS_FEED_REFRESH", rssFeedRefreshHandler)
}

func screenshotCaptureHandler(_ context.Context, payload json.RawMessage) error {
	slog.Info("screenshot capture job received — capture pipeline not wired in this build",
		"payload_len", len(payload))
	return nil
}

func rssFeedRefreshHandler(_ context.Context, payload json.RawMessage) error {
	slog.Info("feed refresh job received — feed pipeline not wired in this build",
		"payload_len", len(payload))
	return nil
}

// ── migrate ───────────────────────────────────────────────────────────────────

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run pending database migrations and exit",
		RunE:  runMigrate,
	}
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.Info("running migrations")

	// Source: embedded SQL files from the migrations package.
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	// golang-migrate requires a *sql.DB. Use pgx's stdlib adapter so the same
	// driver is used project-wide. No pooling needed here — this is a one-shot
	// migration run.
	connCfg, err := pgx.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse db url: %w", err)
	}
	db := stdlib.OpenDB(*connCfg)
	defer db.Close() //nolint:errcheck

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}

	version, _, _ := m.Version() //nolint:errcheck
	slog.Info("migrations complete", "version", version)
	return nil
}

// ── enqueue ───────────────────────────────────────────────────────────────────

func enqueueCmd() *cobra.Command {
	var (
		jobType     string
		queueName   string
		priority    int32
		payload     string
		maxAttempts int32
		delay       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue a single job from the command line",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			slog.SetDefault(newLogger(cfg))

			q, err := job.ParseQueue(queueName)
			if err != nil {
				return err
			}
			if !json.Valid([]byte(payload)) {
				return fmt.Errorf("payload is not valid JSON")
			}
			if maxAttempts <= 0 {
				maxAttempts = int32(cfg.JobDefaultMaxAttempts) //nolint:gosec // G115: config-validated small int
			}
			var notBefore *time.Time
			if delay > 0 {
				t := time.Now().Add(delay)
				notBefore = &t
			}

			db, err := newPool(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			defer db.Close()

			id, err := store.New(db).EnqueueJob(cmd.Context(), store.EnqueueJobParams{
				JobType:     jobType,
				Queue:       q,
				Priority:    priority,
				Payload:     json.RawMessage(payload),
				MaxAttempts: maxAttempts,
				NotBefore:   notBefore,
			})
			if err != nil {
				return err
			}
			slog.Info("job enqueued", "job_id", id, "job_type", jobType, "queue", q)
			return nil
		},
	}

	cmd.Flags().StringVar(&jobType, "type", "", "job type (required)")
	cmd.Flags().StringVar(&queueName, "queue", "default", "queue family")
	cmd.Flags().Int32Var(&priority, "priority", 0, "priority, higher first")
	cmd.Flags().StringVar(&payload, "payload", "{}", "JSON payload")
	cmd.Flags().Int32Var(&maxAttempts, "max-attempts", 0, "retry ceiling (default from config)")
	cmd.Flags().DurationVar(&delay, "delay", 0, "initial delay before the job is eligible")
	_ = cmd.MarkFlagRequired("type") //nolint:errcheck

	return cmd
}

// ── stats ─────────────────────────────────────────────────────────────────────

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print per-queue backlog statistics and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			slog.SetDefault(newLogger(cfg))

			db, err := newPool(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			defer db.Close()

			stats, err := store.New(db).QueueStats(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "QUEUE\tPENDING\tPROCESSING\tCOMPLETED\tFAILED\tOLDEST PENDING")
			for _, st := range stats {
				oldest := "-"
				if st.OldestPending != nil {
					oldest = time.Since(*st.OldestPending).Round(time.Second).String()
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\n",
					st.Queue, st.Pending, st.Processing, st.Completed, st.Failed, oldest)
			}
			return w.Flush()
		},
	}
}

// ── helpers ───────────────────────────────────────────────────────────────────

// newPool creates and validates a pgxpool with PgBouncer compatibility,
// statement timeout, and pool sizing from config.
//
// Retries up to 10 times with linear backoff to handle the container
// startup race where Postgres is not immediately ready.
func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.DBQueryExecMode == "simple_protocol" {
		poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}

	// Global per-query statement timeout prevents runaway queries from
	// holding connections indefinitely.
	poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.Itoa(cfg.DBStatementTimeoutMS)

	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MaxConnIdleTime = cfg.DBMaxConnIdleTime

	var (
		db      *pgxpool.Pool
		connErr error
	)
	for attempt := 1; attempt <= 10; attempt++ {
		db, connErr = pgxpool.NewWithConfig(ctx, poolCfg)
		if connErr == nil {
			if connErr = db.Ping(ctx); connErr == nil {
				break
			}
			db.Close()
		}
		slog.Warn("database not ready, retrying",
			"attempt", attempt,
			"error", connErr,
		)
		// time.NewTimer (not time.After) to avoid leaking the timer if ctx
		// is cancelled before the timer fires.
		timer := time.NewTimer(time.Duration(attempt) * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if connErr != nil {
		return nil, fmt.Errorf("database unavailable after retries: %w", connErr)
	}

	// Advisory schema version check: warn if the applied schema version does
	// not match the version the binary was compiled for. Catches deployments
	// where migrations haven't been applied yet.
	var schemaVersion int
	err = db.QueryRow(ctx,
		"SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1",
	).Scan(&schemaVersion)
	if err == nil && schemaVersion != expectedSchemaVersion {
		slog.Warn("schema version mismatch — run `village-jobs migrate`",
			"applied_version", schemaVersion,
			"expected_version", expectedSchemaVersion,
		)
	}

	return db, nil
}

// expectedSchemaVersion is the database migration version this binary requires.
// Update this constant when new migrations are added.
const expectedSchemaVersion = 1

// newLogger creates a slog.Logger based on the configured log level and format.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" || cfg.IsDevelopment() {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
