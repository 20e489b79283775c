package proxy

import (
	"sync/atomic"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tempalign/tempalign/internal/supervisor"
)

// TargetSource reports the worker endpoints and their health. The
// supervisor pool satisfies it.
type TargetSource interface {
	Snapshot() []supervisor.Target
}

// healthBalancer is a round-robin balancer that skips unhealthy workers.
// Targets come from the source on every pick, so a restarted worker
// rejoins the rotation without re-registration.
type healthBalancer struct {
	source TargetSource
	next   atomic.Uint64
}

func newHealthBalancer(source TargetSource) *healthBalancer {
	return &healthBalancer{source: source}
}

// AddTarget is a no-op; the target set is owned by the source.
func (b *healthBalancer) AddTarget(*middleware.ProxyTarget) bool { return false }

// RemoveTarget is a no-op; the target set is owned by the source.
func (b *healthBalancer) RemoveTarget(string) bool { return false }

// Next picks the next healthy worker. With every worker down it falls
// back to plain rotation; the availability middleware has already turned
// such requests away, this keeps the proxy from dereferencing nil.
func (b *healthBalancer) Next(echo.Context) *middleware.ProxyTarget {
	snap := b.source.Snapshot()
	if len(snap) == 0 {
		return nil
	}

	healthy := snap[:0:0]
	for _, t := range snap {
		if t.Healthy {
			healthy = append(healthy, t)
		}
	}
	if len(healthy) == 0 {
		healthy = snap
	}

	pick := healthy[int(b.next.Add(1)-1)%len(healthy)]
	return &middleware.ProxyTarget{Name: pick.URL.Host, URL: pick.URL}
}
