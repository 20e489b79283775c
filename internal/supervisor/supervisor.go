// Package supervisor keeps a fixed pool of worker processes alive. Each
// slot owns one loopback port; a worker that exits for any reason is
// restarted into the same slot after a short delay. Health is probed out
// of band and published to the proxy through Snapshot.
package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tempalign/tempalign/pkg/logger"
	"github.com/tempalign/tempalign/pkg/metrics"
)

// CommandFunc builds the command for one worker slot. The returned command
// must serve HTTP on the loopback interface at the given port.
type CommandFunc func(ctx context.Context, port int) *exec.Cmd

// ProbeFunc checks whether the worker behind target is able to take
// traffic.
type ProbeFunc func(ctx context.Context, target *url.URL) error

// Target is one worker endpoint with its last observed health state.
type Target struct {
	URL     *url.URL
	Healthy bool
}

type slot struct {
	index   int
	port    int
	url     *url.URL
	healthy atomic.Bool
}

// Pool supervises a set of worker processes.
type Pool struct {
	command       CommandFunc
	ports         []int
	restartDelay  time.Duration
	probe         ProbeFunc
	probeInterval time.Duration
	log           logger.Logger

	slots []*slot
}

// New constructs a pool. At least one port must be configured.
func New(opts ...Option) (*Pool, error) {
	p := &Pool{
		restartDelay:  defaultRestartDelay,
		probeInterval: defaultProbeInterval,
	}
	for _, opt := range opts {
		opt(p)
	}

	if len(p.ports) == 0 {
		return nil, ErrNoWorkers
	}
	if p.command == nil {
		cmd, err := workerCommand()
		if err != nil {
			return nil, err
		}
		p.command = cmd
	}
	if p.probe == nil {
		p.probe = httpProbe
	}
	if p.log == nil {
		p.log = logger.Get().Named("supervisor")
	}

	p.slots = make([]*slot, len(p.ports))
	for i, port := range p.ports {
		u, err := url.Parse(fmt.Sprintf("http://127.0.0.1:%d", port))
		if err != nil {
			return nil, err
		}
		p.slots[i] = &slot{index: i, port: port, url: u}
	}
	return p, nil
}

// Run supervises all slots until ctx is cancelled. It blocks; the error is
// ctx's cause once every loop has drained.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range p.slots {
		g.Go(func() error {
			return p.runSlot(gctx, s)
		})
	}
	g.Go(func() error {
		return p.probeLoop(gctx)
	})
	return g.Wait()
}

// runSlot starts the slot's worker and restarts it whenever it exits. The
// restart delay is fixed: a crash-looping worker cycles at a bounded rate
// while the remaining slots keep serving.
func (p *Pool) runSlot(ctx context.Context, s *slot) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		cmd := p.command(ctx, s.port)
		p.log.Info(ctx, "starting worker",
			logger.Int("slot", s.index),
			logger.Int("port", s.port))

		err := cmd.Start()
		if err == nil {
			err = cmd.Wait()
		}
		s.healthy.Store(false)
		metrics.SetWorkerUp(strconv.Itoa(s.index), false)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		p.log.Warn(ctx, "worker exited",
			logger.Int("slot", s.index),
			logger.Int("port", s.port),
			logger.Error(err))
		metrics.RecordWorkerRestart(strconv.Itoa(s.index))

		select {
		case <-time.After(p.restartDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// probeLoop refreshes each slot's health on a fixed interval.
func (p *Pool) probeLoop(ctx context.Context) error {
	ticker := time.NewTicker(p.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, s := range p.slots {
				healthy := p.probe(ctx, s.url) == nil
				if healthy != s.healthy.Swap(healthy) {
					p.log.Info(ctx, "worker health changed",
						logger.Int("slot", s.index),
						logger.Bool("healthy", healthy))
				}
				metrics.SetWorkerUp(strconv.Itoa(s.index), healthy)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Snapshot returns every worker endpoint with its current health state.
func (p *Pool) Snapshot() []Target {
	out := make([]Target, len(p.slots))
	for i, s := range p.slots {
		out[i] = Target{URL: s.url, Healthy: s.healthy.Load()}
	}
	return out
}

// Targets returns every worker endpoint regardless of health.
func (p *Pool) Targets() []*url.URL {
	out := make([]*url.URL, len(p.slots))
	for i, s := range p.slots {
		out[i] = s.url
	}
	return out
}

// workerCommand relaunches the running binary in worker mode.
func workerCommand() (CommandFunc, error) {
	bin, err := os.Executable()
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, port int) *exec.Cmd {
		cmd := exec.CommandContext(ctx, bin, "worker", "--port", strconv.Itoa(port))
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Env = os.Environ()
		return cmd
	}, nil
}

// httpProbe considers a worker healthy when its health endpoint answers
// with a 2xx within the probe timeout.
func httpProbe(ctx context.Context, target *url.URL) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.JoinPath("/healthz").String(), http.NoBody)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}
