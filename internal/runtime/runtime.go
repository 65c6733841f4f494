package runtime

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rzbill/coedit/internal/collab"
	cfgpkg "github.com/rzbill/coedit/internal/config"
	"github.com/rzbill/coedit/internal/docstore"
	"github.com/rzbill/coedit/internal/fanout"
	"github.com/rzbill/coedit/internal/metrics"
	pebblestore "github.com/rzbill/coedit/internal/storage/pebble"
	"github.com/rzbill/coedit/internal/store"
	"github.com/rzbill/coedit/internal/store/pebblekv"
	"github.com/rzbill/coedit/internal/store/redisstore"
	"github.com/rzbill/coedit/internal/worker"
	logpkg "github.com/rzbill/coedit/pkg/log"
)

const fanoutBuffer = 256

// Options for building the Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	Logger        logpkg.Logger
	// Metrics is optional; nil records nothing.
	Metrics *metrics.Metrics
	// RedisClient replaces the client built from Config.RedisAddr.
	RedisClient redis.UniversalClient
}

// Runtime wires the shared store, document storage and fan-out of one
// coedit process.
type Runtime struct {
	store   store.Store
	docs    docstore.Storage
	bus     fanout.Broadcaster
	config  cfgpkg.Config
	logger  logpkg.Logger
	metrics *metrics.Metrics
}

// Open initializes storage and returns a Runtime.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	lg := opts.Logger
	if lg == nil {
		lg = logpkg.NewNopLogger()
	}
	rt := &Runtime{config: cfg, logger: lg, metrics: opts.Metrics}

	switch cfg.Backend {
	case cfgpkg.BackendRedis:
		rdb := opts.RedisClient
		if rdb == nil {
			rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		}
		st, err := redisstore.New(redisstore.Options{Client: rdb, Shards: cfg.Shards, ClientTTL: cfg.ClientTTL.Std()})
		if err != nil {
			return nil, err
		}
		if err := st.Ping(ctx); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		rt.store = st
		rt.bus = fanout.NewRedis(rdb, fanoutBuffer, lg)
	default:
		if opts.DataDir == "" {
			return nil, errors.New("runtime: DataDir is required for the pebble backend")
		}
		db, err := pebblestore.Open(pebblestore.Options{
			DataDir:       filepath.Join(opts.DataDir, "pebble"),
			Fsync:         opts.Fsync,
			FsyncInterval: opts.FsyncInterval,
			Metrics:       metrics.StorageHook{M: opts.Metrics},
		})
		if err != nil {
			return nil, err
		}
		st, err := pebblekv.New(pebblekv.Options{
			DB:        db,
			Shards:    cfg.Shards,
			ClientTTL: cfg.ClientTTL.Std(),
			OnTrim:    opts.Metrics.TrimHook,
		})
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		rt.store = st
		rt.bus = fanout.NewHub(fanoutBuffer)
	}

	docs, err := openDocs(ctx, cfg, opts.DataDir)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.docs = docs
	return rt, nil
}

func openDocs(ctx context.Context, cfg cfgpkg.Config, dataDir string) (docstore.Storage, error) {
	if cfg.DocumentStore == cfgpkg.DocumentStorePostgres {
		return docstore.OpenPostgres(ctx, cfg.PostgresURL)
	}
	root := cfg.DocumentRoot
	if root == "" {
		if dataDir == "" {
			return nil, errors.New("runtime: documentRoot or DataDir is required for the fs document store")
		}
		root = filepath.Join(dataDir, "rooms")
	}
	return docstore.NewFS(root)
}

// Close releases the broadcaster, document storage and store, in that
// order.
func (r *Runtime) Close() error {
	var errs []error
	if r.bus != nil {
		errs = append(errs, r.bus.Close())
	}
	if r.docs != nil {
		errs = append(errs, r.docs.Close())
	}
	if r.store != nil {
		errs = append(errs, r.store.Close())
	}
	return errors.Join(errs...)
}

// CheckHealth pings the shared store.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.store == nil {
		return errors.New("store not open")
	}
	return r.store.Ping(ctx)
}

func (r *Runtime) Store() store.Store              { return r.store }
func (r *Runtime) Docs() docstore.Storage          { return r.docs }
func (r *Runtime) Broadcaster() fanout.Broadcaster { return r.bus }
func (r *Runtime) Config() cfgpkg.Config           { return r.config }
func (r *Runtime) Metrics() *metrics.Metrics       { return r.metrics }
func (r *Runtime) Logger() logpkg.Logger           { return r.logger }

// Collab builds the client action service.
func (r *Runtime) Collab() (*collab.Service, error) {
	return collab.New(collab.Options{
		Store:             r.store,
		Docs:              r.docs,
		Broadcaster:       r.bus,
		Logger:            r.logger,
		Metrics:           r.metrics,
		Filter:            r.config.EditFilter,
		MaxOperationBytes: r.config.MaxOperationBytes,
	})
}

// Workers builds a pool for shards; an empty list serves every shard.
func (r *Runtime) Workers(shards []int) (*worker.Pool, error) {
	return worker.NewPool(worker.Options{
		Store:        r.store,
		Docs:         r.docs,
		Broadcaster:  r.bus,
		Logger:       r.logger,
		Metrics:      r.metrics,
		HistoryMax:   r.config.HistoryMax,
		Block:        r.config.StreamBlock.Std(),
		Count:        r.config.StreamReadCount,
		TrimConsumed: r.config.TrimConsumed,
	}, shards)
}

// ShardStatus is the checkpoint of one shard.
type ShardStatus struct {
	Shard      int    `json:"shard"`
	Checkpoint string `json:"checkpoint"`
}

// Shards reports the checkpoint of every shard.
func (r *Runtime) Shards(ctx context.Context) ([]ShardStatus, error) {
	out := make([]ShardStatus, 0, r.store.Shards())
	for i := 0; i < r.store.Shards(); i++ {
		cp, err := r.store.Checkpoint(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("shard %d: %w", i, err)
		}
		out = append(out, ShardStatus{Shard: i, Checkpoint: cp})
	}
	return out, nil
}
