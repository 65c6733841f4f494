package serverrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	cfgpkg "github.com/rzbill/coedit/internal/config"
	"github.com/rzbill/coedit/internal/metrics"
	"github.com/rzbill/coedit/internal/runtime"
	grpcserver "github.com/rzbill/coedit/internal/server/grpc"
	httpserver "github.com/rzbill/coedit/internal/server/http"
	pebblestore "github.com/rzbill/coedit/internal/storage/pebble"
	logpkg "github.com/rzbill/coedit/pkg/log"
)

// ErrWorkerNeedsRedis is returned when a standalone worker is started on the
// single-process pebble backend.
var ErrWorkerNeedsRedis = errors.New("standalone workers need the redis backend")

type Options struct {
	DataDir       string
	GRPCAddr      string
	HTTPAddr      string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	// NoWorkers leaves the shard streams to standalone worker processes.
	NoWorkers bool
	// Shards limits the in-process workers; empty serves every shard.
	Shards []int
}

// newProcessLogger builds the process-wide logger from config and routes the
// standard library logger through it.
func newProcessLogger(cfg logpkg.Config) logpkg.Logger {
	l, err := logpkg.ApplyConfig(cfg)
	if err != nil {
		lvl := logpkg.InfoLevel
		if parsed, e := logpkg.ParseLevel(cfg.Level); e == nil {
			lvl = parsed
		}
		l = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}
	// Pebble logs through the standard library
	logpkg.RedirectStdLog(l)
	return l
}

func newRegistry() (*prometheus.Registry, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg, metrics.New(reg)
}

// Run starts gRPC and HTTP servers plus the shard workers and blocks until
// ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	procLogger := newProcessLogger(opts.Config.Log)
	reg, m := newRegistry()

	rt, err := runtime.Open(sctx, runtime.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Config:        opts.Config,
		Logger:        procLogger,
		Metrics:       m,
	})
	if err != nil {
		return err
	}
	defer rt.Close()
	svc, err := rt.Collab()
	if err != nil {
		return err
	}

	procLogger.Info("Starting coedit server",
		logpkg.Str("grpc", opts.GRPCAddr),
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("backend", string(opts.Config.Backend)),
		logpkg.Int("shards", opts.Config.Shards),
		logpkg.Bool("workers", !opts.NoWorkers),
	)

	gsrv := grpcserver.New(rt, procLogger)
	hsrv := httpserver.New(rt, svc, procLogger, httpserver.Options{Gatherer: reg})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gsrv.ListenAndServe(sctx, opts.GRPCAddr); err != nil && sctx.Err() == nil {
			procLogger.Error("grpc server", logpkg.Err(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, opts.HTTPAddr); err != nil && sctx.Err() == nil {
			procLogger.Error("http server", logpkg.Err(err))
		}
	}()

	if !opts.NoWorkers {
		pool, err := rt.Workers(opts.Shards)
		if err != nil {
			stop()
			wg.Wait()
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pool.Run(sctx); err != nil {
				procLogger.Error("workers", logpkg.Err(err))
			}
		}()
	}

	<-sctx.Done()
	// stop the servers and workers before the deferred runtime close
	gsrv.Close()
	hsrv.Close()
	wg.Wait()
	return nil
}

// WorkerOptions configures a standalone worker process.
type WorkerOptions struct {
	// DataDir holds room files for the fs document store.
	DataDir string
	Config  cfgpkg.Config
	Shards  []int
}

// RunWorker consumes the given shards until ctx is cancelled. It needs the
// redis backend since the pebble store belongs to the server process.
func RunWorker(ctx context.Context, opts WorkerOptions) error {
	if opts.Config.Backend != cfgpkg.BackendRedis {
		return fmt.Errorf("%w, got %q", ErrWorkerNeedsRedis, opts.Config.Backend)
	}
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	procLogger := newProcessLogger(opts.Config.Log)
	_, m := newRegistry()

	rt, err := runtime.Open(sctx, runtime.Options{DataDir: opts.DataDir, Config: opts.Config, Logger: procLogger, Metrics: m})
	if err != nil {
		return err
	}
	defer rt.Close()
	pool, err := rt.Workers(opts.Shards)
	if err != nil {
		return err
	}
	procLogger.Info("Starting coedit worker", logpkg.Any("shards", pool.Shards()), logpkg.Str("redis", opts.Config.RedisAddr))
	return pool.Run(sctx)
}
