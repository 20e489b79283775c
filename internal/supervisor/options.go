package supervisor

import (
	"time"

	"github.com/tempalign/tempalign/pkg/logger"
)

const (
	defaultRestartDelay  = 500 * time.Millisecond
	defaultProbeInterval = 2 * time.Second
	probeTimeout         = time.Second
)

// Option applies a configuration option to the Pool.
type Option func(*Pool)

// WithPorts sets the loopback ports, one per worker slot.
func WithPorts(ports []int) Option {
	return func(p *Pool) {
		p.ports = ports
	}
}

// WithCommand overrides how worker processes are launched. Used by tests
// to substitute short-lived commands for the real binary.
func WithCommand(cmd CommandFunc) Option {
	return func(p *Pool) {
		if cmd != nil {
			p.command = cmd
		}
	}
}

// WithRestartDelay sets the pause between a worker exit and its restart.
func WithRestartDelay(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.restartDelay = d
		}
	}
}

// WithProbe overrides the health probe.
func WithProbe(probe ProbeFunc) Option {
	return func(p *Pool) {
		if probe != nil {
			p.probe = probe
		}
	}
}

// WithProbeInterval sets how often worker health is refreshed.
func WithProbeInterval(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.probeInterval = d
		}
	}
}

// WithLogger sets a custom logger for the pool.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.log = l
		}
	}
}
