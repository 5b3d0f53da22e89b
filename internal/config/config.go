// Package config parses and validates all application configuration from
// environment variables using caarlos0/env/v11.
//
// Call [Load] once at startup; pass the resulting [Config] to subcommands.
// The process exits if any field tagged "required" is missing.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/teacurran/village-homepage-sub012/internal/job"
)

// Config holds all application configuration sourced from environment variables.
type Config struct {
	// ── Database ─────────────────────────────────────────────────────────────────
	DatabaseURL          string        `env:"DATABASE_URL,required"`
	DBMaxConns           int32         `env:"DB_MAX_CONNS"            envDefault:"25"`
	DBMaxConnIdleTime    time.Duration `env:"DB_MAX_CONN_IDLE_TIME"   envDefault:"5m"`
	DBStatementTimeoutMS int           `env:"DB_STATEMENT_TIMEOUT_MS" envDefault:"14000"`
	// DBQueryExecMode: "simple_protocol" (PgBouncer-compatible) or "extended_protocol".
	DBQueryExecMode string `env:"DB_QUERY_EXEC_MODE" envDefault:"simple_protocol"`

	// ── Worker ───────────────────────────────────────────────────────────────────
	// Comma-separated queue families this process serves; one polling
	// goroutine runs per family.
	WorkerQueues []string `env:"WORKER_QUEUES" envSeparator:"," envDefault:"default,high,low,bulk,screenshot"`
	// Idle delay between unsuccessful polls of a queue.
	WorkerPollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"2s"`
	// Age at which a processing job's lease is considered abandoned and the
	// job becomes claimable again. Must exceed the longest handler runtime;
	// there is no lease renewal.
	WorkerLeaseTimeout time.Duration `env:"WORKER_LEASE_TIMEOUT" envDefault:"5m"`

	// ── Retry / backoff ──────────────────────────────────────────────────────────
	JobDefaultMaxAttempts int           `env:"JOB_DEFAULT_MAX_ATTEMPTS" envDefault:"3"`
	BackoffBase           time.Duration `env:"BACKOFF_BASE"             envDefault:"30s"`
	BackoffMax            time.Duration `env:"BACKOFF_MAX"              envDefault:"1h"`

	// ── Queue concurrency ceilings ───────────────────────────────────────────────
	// Max simultaneously processing jobs per family across ALL worker
	// processes; 0 means unlimited. screenshot drives a constrained pool of
	// headless-browser instances (each ~400 MB); bulk batches must not crowd
	// out default/high latency-sensitive work.
	QueueDefaultMaxInflight    int `env:"QUEUE_DEFAULT_MAX_INFLIGHT"    envDefault:"0"`
	QueueHighMaxInflight       int `env:"QUEUE_HIGH_MAX_INFLIGHT"       envDefault:"0"`
	QueueLowMaxInflight        int `env:"QUEUE_LOW_MAX_INFLIGHT"        envDefault:"4"`
	QueueBulkMaxInflight       int `env:"QUEUE_BULK_MAX_INFLIGHT"       envDefault:"2"`
	QueueScreenshotMaxInflight int `env:"QUEUE_SCREENSHOT_MAX_INFLIGHT" envDefault:"2"`

	// ── Server lifecycle ─────────────────────────────────────────────────────────
	AppEnv                 string `env:"APP_ENV"                  envDefault:"development"`
	ShutdownTimeoutSeconds int    `env:"SHUTDOWN_TIMEOUT_SECONDS" envDefault:"60"`

	// ── Logging ──────────────────────────────────────────────────────────────────
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load parses and returns Config from environment variables.
// Returns an error if any required field is missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment reports whether the application is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// QueueLimits returns the per-family in-flight ceilings keyed by queue.
// Families mapped to 0 are unlimited.
func (c *Config) QueueLimits() map[job.Queue]int {
	return map[job.Queue]int{
		job.QueueDefault:    c.QueueDefaultMaxInflight,
		job.QueueHigh:       c.QueueHighMaxInflight,
		job.QueueLow:        c.QueueLowMaxInflight,
		job.QueueBulk:       c.QueueBulkMaxInflight,
		job.QueueScreenshot: c.QueueScreenshotMaxInflight,
	}
}
