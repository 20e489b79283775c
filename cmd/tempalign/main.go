// Command tempalign runs the portfolio temperature alignment gateway.
//
// The binary has two modes. "serve" runs the public face: a reverse proxy
// plus a supervised pool of worker subprocesses, each a copy of this
// binary in "worker" mode. "worker" runs one single-request-at-a-time
// scoring process on a loopback port and is not meant to be started by
// hand.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/tempalign/tempalign/internal/adapters/http/api"
	"github.com/tempalign/tempalign/internal/adapters/http/proxy"
	service "github.com/tempalign/tempalign/internal/app"
	"github.com/tempalign/tempalign/internal/config"
	"github.com/tempalign/tempalign/internal/loadgen"
	"github.com/tempalign/tempalign/internal/refdata"
	"github.com/tempalign/tempalign/internal/supervisor"
	"github.com/tempalign/tempalign/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 120 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// The registry carries only this service's metrics; the default Go and
	// process collectors would show up twice behind the proxy.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	root := &cli.Command{
		Name:  "tempalign",
		Usage: "portfolio temperature alignment gateway",
		Commands: []*cli.Command{
			serveCmd(),
			workerCmd(),
			loadtestCmd(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the reverse proxy and the supervised worker pool",
		Action: func(ctx context.Context, _ *cli.Command) error {
			cfg, err := bootstrap(ctx, "serve")
			if err != nil {
				return err
			}
			log := logger.Get()

			ports := make([]int, cfg.WorkerCount)
			for i := range ports {
				ports[i] = cfg.WorkerBasePort + i
			}

			pool, err := supervisor.New(
				supervisor.WithPorts(ports),
				supervisor.WithRestartDelay(time.Duration(cfg.RestartDelayMS)*time.Millisecond),
				supervisor.WithProbeInterval(time.Duration(cfg.HealthIntervalMS)*time.Millisecond),
			)
			if err != nil {
				return err
			}

			front, err := proxy.New(
				proxy.WithConfig(cfg),
				proxy.WithSource(pool),
			)
			if err != nil {
				return err
			}

			log.Info(ctx, "starting gateway",
				logger.String("addr", cfg.Addr),
				logger.Int("workers", cfg.WorkerCount))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return pool.Run(gctx) })
			g.Go(func() error { return front.Run(gctx) })

			err = g.Wait()
			if ctx.Err() != nil {
				log.Info(ctx, "gateway stopped")
				return nil
			}
			return err
		},
	}
}

func workerCmd() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Run one scoring worker on a loopback port",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:     "port",
				Usage:    "Loopback port to serve on",
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := bootstrap(ctx, "worker")
			if err != nil {
				return err
			}
			log := logger.Get()

			benchmarks, err := refdata.Load(cfg.ReferenceData)
			if err != nil {
				return fmt.Errorf("reference data %q: %w", cfg.ReferenceData, err)
			}

			svc := service.New(
				service.WithConfig(cfg),
				service.WithBenchmarks(benchmarks),
				service.WithLogger(log.Named("service")),
			)

			mux := http.NewServeMux()
			api.NewServer(svc).Register(ctx, mux)

			addr := "127.0.0.1:" + strconv.Itoa(cmd.Int("port"))
			srv := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadTimeout:       readTimeout,
				WriteTimeout:      writeTimeout,
				IdleTimeout:       idleTimeout,
				ReadHeaderTimeout: readHeaderTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info(ctx, "worker listening",
					logger.String("addr", addr),
					logger.Int("benchmark_sectors", len(benchmarks.Sectors())))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			log.Info(ctx, "worker stopped", logger.String("addr", addr))
			return nil
		},
	}
}

func loadtestCmd() *cli.Command {
	return &cli.Command{
		Name:  "loadtest",
		Usage: "Drive synthetic portfolio traffic against a running gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Usage: "Base URL of the gateway",
				Value: "http://localhost:9280",
			},
			&cli.IntFlag{
				Name:  "requests",
				Usage: "Number of assess requests to submit",
				Value: 100,
			},
			&cli.IntFlag{
				Name:  "rows",
				Usage: "Dataset rows per generated portfolio",
				Value: 50,
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Number of concurrent submitters",
				Value: 4,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "HTTP request timeout",
				Value: 30 * time.Second,
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log every submission",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := logger.Init("loadtest"); err != nil {
				return fmt.Errorf("initialize logging: %w", err)
			}

			stats, err := loadgen.Run(ctx, &loadgen.Config{
				BaseURL:  cmd.String("url"),
				Requests: int(cmd.Int("requests")),
				Rows:     int(cmd.Int("rows")),
				Workers:  int(cmd.Int("workers")),
				Timeout:  cmd.Duration("timeout"),
				Verbose:  cmd.Bool("verbose"),
			})
			if err != nil {
				return err
			}
			if stats.Failed > 0 || stats.RepeatMismatch > 0 {
				return fmt.Errorf("load run found problems: %d failed, %d repeat mismatches",
					stats.Failed, stats.RepeatMismatch)
			}
			return nil
		},
	}
}

// bootstrap initializes logging and loads configuration, shared by both
// modes.
func bootstrap(ctx context.Context, process string) (*config.Config, error) {
	if err := logger.Init(process); err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, nil
}
