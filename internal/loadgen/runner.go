package loadgen

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tempalign/tempalign/pkg/logger"
)

// Defaults applied when a Config field is zero.
const (
	defaultRequests = 100
	defaultRows     = 50
	defaultWorkers  = 4
	defaultTimeout  = 30 * time.Second
)

type submission struct {
	portfolio  []byte
	parameters string
}

// Run executes one load run against a live gateway and returns its
// statistics. The run fails fast when the gateway is not healthy.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	applyDefaults(cfg)
	log := logger.Get().Named("loadgen")

	stats := &Stats{StartTime: time.Now()}
	c := newClient(cfg.BaseURL, cfg.Timeout)

	if err := c.health(ctx); err != nil {
		return nil, err
	}

	subs := make([]submission, cfg.Requests)
	for i := range subs {
		subs[i] = submission{
			portfolio:  generatePortfolio(cfg.Rows),
			parameters: generateParameters(i),
		}
	}
	stats.Generated = len(subs)
	log.Info(ctx, "generated portfolios",
		logger.Int("requests", cfg.Requests),
		logger.Int("rows", cfg.Rows))

	var submitted, succeeded, rejected, failed, fullCoverage atomic.Int64

	work := make(chan submission, cfg.Workers*2)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sub := range work {
				status, resp, err := c.assess(ctx, sub.portfolio, sub.parameters)
				submitted.Add(1)
				switch {
				case err != nil || status >= http.StatusInternalServerError:
					failed.Add(1)
					if cfg.Verbose {
						log.Warn(ctx, "submission failed",
							logger.Int("status", status),
							logger.Error(err))
					}
				case status == http.StatusOK:
					succeeded.Add(1)
					if resp.Coverage == "1" {
						fullCoverage.Add(1)
					}
				default:
					rejected.Add(1)
					if cfg.Verbose && resp != nil && len(resp.Errors) > 0 {
						log.Warn(ctx, "submission rejected",
							logger.Int("status", status),
							logger.String("field", resp.Errors[0].Field),
							logger.String("message", resp.Errors[0].Message))
					}
				}
			}
		}()
	}

	for _, sub := range subs {
		select {
		case <-ctx.Done():
			close(work)
			wg.Wait()
			return stats, ctx.Err()
		case work <- sub:
		}
	}
	close(work)
	wg.Wait()

	stats.Submitted = int(submitted.Load())
	stats.Succeeded = int(succeeded.Load())
	stats.Rejected = int(rejected.Load())
	stats.Failed = int(failed.Load())
	stats.FullCoverage = int(fullCoverage.Load())

	if err := verifyRepeatability(ctx, c, subs[0], stats); err != nil {
		return stats, err
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	log.Info(ctx, "load run finished",
		logger.Int("submitted", stats.Submitted),
		logger.Int("succeeded", stats.Succeeded),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
		logger.Int("repeat_mismatches", stats.RepeatMismatch),
		logger.Duration("duration", stats.Duration))
	return stats, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Requests <= 0 {
		cfg.Requests = defaultRequests
	}
	if cfg.Rows <= 0 {
		cfg.Rows = defaultRows
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
}
