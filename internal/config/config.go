// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Config is built once at process start and never mutated afterwards.
// - Every handler receives it by reference; a change requires a restart.
// - External errors must be wrapped via this package's error helpers.
package config

import "runtime"

// Config contains process configuration, shared by the supervisor, the
// reverse proxy and every worker.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the proxy's externally reachable listen address.
	Addr string `koanf:"addr"`

	// WorkerCount sets the number of worker processes in the pool.
	WorkerCount int `koanf:"worker_count"`

	// WorkerBasePort is the first local port assigned to the pool; slot i
	// listens on WorkerBasePort+i on the loopback interface.
	WorkerBasePort int `koanf:"worker_base_port"`

	// MaxRows caps the number of dataset rows accepted per request.
	MaxRows int `koanf:"max_rows"`

	// BodyLimit caps the request body accepted by the proxy, in echo's
	// human-readable form, e.g. "32M".
	BodyLimit string `koanf:"body_limit"`

	// RequestTimeoutMS bounds a whole proxied request.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	// RateLimit and RateBurst bound the proxy's accepted request rate.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`

	// HealthIntervalMS is the supervisor's worker probe period.
	HealthIntervalMS int `koanf:"health_interval_ms"`

	// RestartDelayMS is the pause before a dead worker slot is respawned.
	// Deliberately short and uncapped: a crash loop should be loud in the
	// logs, not absorbed by backoff.
	RestartDelayMS int `koanf:"restart_delay_ms"`

	// DefaultScore is the fallback temperature score for rows without
	// usable target data, used when the request does not supply one.
	DefaultScore float64 `koanf:"default_score"`

	// RegressionIntercept and RegressionSlope parameterize the engine's
	// target-to-score regression.
	RegressionIntercept float64 `koanf:"regression_intercept"`
	RegressionSlope     float64 `koanf:"regression_slope"`

	// ReferenceData points at the sector benchmark YAML loaded read-only
	// at worker start. A worker exits non-zero when it is missing.
	ReferenceData string `koanf:"reference_data"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9280",
		WorkerCount:         max(2, runtime.NumCPU()/2),
		WorkerBasePort:      9301,
		MaxRows:             10_000,
		BodyLimit:           "32M",
		RequestTimeoutMS:    60_000,
		RateLimit:           100,
		RateBurst:           200,
		HealthIntervalMS:    2_000,
		RestartDelayMS:      500,
		DefaultScore:        3.2,
		RegressionIntercept: 3.4,
		RegressionSlope:     -0.15,
		ReferenceData:       "refdata/benchmarks.yaml",
	}
}
