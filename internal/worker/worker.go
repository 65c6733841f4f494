package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rzbill/coedit/internal/authority"
	"github.com/rzbill/coedit/internal/docstore"
	"github.com/rzbill/coedit/internal/fanout"
	"github.com/rzbill/coedit/internal/metrics"
	"github.com/rzbill/coedit/internal/ot"
	"github.com/rzbill/coedit/internal/session"
	"github.com/rzbill/coedit/internal/store"
	logpkg "github.com/rzbill/coedit/pkg/log"
)

var tracer = otel.Tracer("github.com/rzbill/coedit/internal/worker")

const (
	defaultBlock = time.Second
	defaultCount = 100
	maxRetry     = 30 * time.Second
)

// Options configures a Worker.
type Options struct {
	Store store.Store
	// Docs receives the text of room documents after every edit. Optional.
	Docs        docstore.Storage
	Broadcaster fanout.Broadcaster
	Logger      logpkg.Logger
	Metrics     *metrics.Metrics

	Shard int
	// HistoryMax bounds the retained history; 0 never compacts.
	HistoryMax int
	// Block is how long a read waits for new entries.
	Block time.Duration
	// Count is the maximum number of entries per read.
	Count int
	// TrimConsumed removes consumed entries after each batch.
	TrimConsumed bool
	// RetryBase is the first delay after a store failure.
	RetryBase time.Duration
}

// Worker processes one shard.
type Worker struct {
	opts     Options
	log      logpkg.Logger
	sessions *session.Cache
}

// New validates the shard and prepares a Worker.
func New(opts Options) (*Worker, error) {
	if opts.Store == nil || opts.Broadcaster == nil {
		return nil, errors.New("worker: Store and Broadcaster are required")
	}
	if err := store.CheckShard(opts.Shard, opts.Store.Shards()); err != nil {
		return nil, err
	}
	if opts.Block <= 0 {
		opts.Block = defaultBlock
	}
	if opts.Count <= 0 {
		opts.Count = defaultCount
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 200 * time.Millisecond
	}
	lg := opts.Logger
	if lg == nil {
		lg = logpkg.NewNopLogger()
	}
	lg = lg.With(logpkg.Component("worker"), logpkg.Int("shard", opts.Shard))
	return &Worker{
		opts: opts,
		log:  lg,
		sessions: session.NewCache(&session.Loader{
			Store:  opts.Store,
			Docs:   opts.Docs,
			Logger: lg,
		}),
	}, nil
}

// Shard is the shard this worker consumes.
func (w *Worker) Shard() int { return w.opts.Shard }

// Run consumes the shard until ctx is cancelled. It resumes after the
// durable checkpoint, so a restarted worker neither skips nor reapplies
// entries. Run returns nil on cancellation.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker started")
	defer w.log.Info("worker stopped")

	attempt := 0
	after, err := w.opts.Store.Checkpoint(ctx, w.opts.Shard)
	for err != nil {
		if !w.backoff(ctx, &attempt, "read checkpoint", err) {
			return nil
		}
		after, err = w.opts.Store.Checkpoint(ctx, w.opts.Shard)
	}

	for ctx.Err() == nil {
		entries, err := w.opts.Store.Read(ctx, w.opts.Shard, after, w.opts.Count, w.opts.Block)
		if err != nil {
			if !w.backoff(ctx, &attempt, "read stream", err) {
				return nil
			}
			continue
		}
		failed := false
		for _, e := range entries {
			if err := w.Process(ctx, e); err != nil {
				if !w.backoff(ctx, &attempt, "process entry", err, logpkg.Str("entry", e.ID)) {
					return nil
				}
				// restart from what is durable
				if cp, cerr := w.opts.Store.Checkpoint(ctx, w.opts.Shard); cerr == nil {
					after = cp
				}
				failed = true
				break
			}
			after = e.ID
			attempt = 0
		}
		if !failed && len(entries) > 0 && w.opts.TrimConsumed {
			if n, err := w.opts.Store.TrimConsumed(ctx, w.opts.Shard); err != nil {
				w.log.Warn("trim consumed entries", logpkg.Err(err))
			} else if n > 0 {
				w.log.Debug("trimmed consumed entries", logpkg.Int("count", n))
			}
		}
	}
	return nil
}

// backoff logs err and sleeps with exponential delay. It reports false when
// ctx ended.
func (w *Worker) backoff(ctx context.Context, attempt *int, what string, err error, fields ...logpkg.Field) bool {
	if ctx.Err() != nil {
		return false
	}
	*attempt++
	d := w.opts.RetryBase << min(*attempt-1, 16)
	if d > maxRetry || d <= 0 {
		d = maxRetry
	}
	w.log.Error(what+" failed, retrying", append(fields, logpkg.Err(err), logpkg.Duration("delay", d))...)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// outcome of applying one entry under the session lock.
type outcome struct {
	applied   ot.Edit
	revision  int
	depth     int
	doc       string
	compacted bool
	skipped   bool

	compactFailed bool
}

// Process applies one stream entry. A returned error means nothing was
// persisted and the entry must be read again; entries that can never apply
// are dropped and return nil.
func (w *Worker) Process(ctx context.Context, e store.Entry) (err error) {
	start := time.Now()
	ed := e.Edit
	ctx, span := tracer.Start(ctx, "worker.Process", trace.WithAttributes(
		attribute.Int("shard", w.opts.Shard),
		attribute.String("entry", e.ID),
		attribute.String("doc", ed.Key.String()),
		attribute.String("client", ed.ClientID),
		attribute.Int("revision", ed.Revision),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := ed.Key.Validate(); err != nil {
		return w.drop(ctx, e, metrics.ReasonInvalid, err, false)
	}
	if ed.ClientID == "" || ed.Revision < 0 {
		return w.drop(ctx, e, metrics.ReasonInvalid, fmt.Errorf("client %q revision %d", ed.ClientID, ed.Revision), false)
	}
	edit, err := ed.Decode()
	if err != nil {
		return w.drop(ctx, e, metrics.ReasonDecode, err, true)
	}

	sess, err := w.sessions.Get(ctx, ed.Key)
	if errors.Is(err, docstore.ErrBinaryFile) || errors.Is(err, docstore.ErrNotFound) || errors.Is(err, store.ErrInvalidKey) {
		return w.drop(ctx, e, metrics.ReasonInvalid, err, true)
	}
	if err != nil {
		return err
	}

	var out outcome
	err = sess.Synchronize(func(a *session.Authority) error {
		if sess.LastEntryID() == e.ID {
			out.skipped = true
			return nil
		}
		out.depth = a.Revision() - ed.Revision
		applied, err := receive(a, ed.Revision, edit)
		if err != nil {
			return err
		}
		out.applied, out.revision, out.doc = applied, a.Revision(), a.Document()
		commit := store.Commit{
			Key:     ed.Key,
			State:   store.State{Doc: out.doc, Revision: out.revision, BaseRevision: a.BaseRevision()},
			Applied: applied,
			Shard:   w.opts.Shard,
			EntryID: e.ID,
		}
		if err := w.opts.Store.Commit(ctx, commit); err != nil {
			return &storeError{err: err}
		}
		sess.SetLastEntryID(e.ID)
		if a.Compact(w.opts.HistoryMax) {
			// the edit is durable; a failed compaction is retried by the next
			// load of the session
			if err := w.opts.Store.CompactHistory(ctx, ed.Key, a.BaseRevision()); err != nil {
				w.log.Warn("compact history", logpkg.Str("doc", ed.Key.String()), logpkg.Err(err))
				out.compactFailed = true
			} else {
				out.compacted = true
			}
		}
		return nil
	})
	var se *storeError
	switch {
	case errors.As(err, &se):
		// the in-memory authority may be ahead of the store
		w.sessions.Evict(ed.Key)
		return se.err
	case errors.Is(err, authority.ErrStaleRevision):
		return w.drop(ctx, e, metrics.ReasonStale, err, true)
	case err != nil:
		return w.drop(ctx, e, metrics.ReasonApply, err, true)
	case out.skipped:
		w.log.Debug("entry already applied", logpkg.Str("entry", e.ID))
		return nil
	}

	w.afterCommit(ctx, sess, ed, out)
	if out.compactFailed {
		// the cached authority dropped history the store still holds
		w.sessions.Evict(ed.Key)
	}
	w.opts.Metrics.ObserveApplied(w.opts.Shard, out.depth, time.Since(start))
	span.SetAttributes(attribute.Int("applied_revision", out.revision), attribute.Int("transform_depth", out.depth))
	return nil
}

// receive runs Authority.Receive, turning a panic into an error so one entry
// cannot take the process down.
func receive(a *session.Authority, revision int, edit ot.Edit) (applied ot.Edit, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic while applying: %v", ot.ErrInvariant, r)
		}
	}()
	return a.Receive(revision, edit)
}

type storeError struct{ err error }

func (e *storeError) Error() string { return e.err.Error() }
func (e *storeError) Unwrap() error { return e.err }

// afterCommit updates presence, mirrors room documents to the document
// storage and publishes events. Failures here are logged; the edit is
// already durable.
func (w *Worker) afterCommit(ctx context.Context, sess *session.Session, ed store.Edit, out outcome) {
	key := ed.Key
	sel := out.applied.Meta
	if err := w.opts.Store.SetClientSelection(ctx, key, ed.ClientID, sel); err != nil {
		w.log.Warn("store selection", logpkg.Str("doc", key.String()), logpkg.Err(err))
	}
	if err := w.opts.Store.TouchClient(ctx, key, ed.ClientID); err != nil {
		w.log.Warn("touch client", logpkg.Str("doc", key.String()), logpkg.Err(err))
	}

	if key.Scope == store.ScopeRoom && w.opts.Docs != nil {
		if err := w.opts.Docs.Write(ctx, key.Room, key.Path, out.doc); err != nil {
			w.log.Warn("write document file", logpkg.Str("doc", key.String()), logpkg.Err(err))
		}
	}

	ch := key.Channel()
	w.publish(ctx, ch, fanout.Ack(ed.ClientID))
	w.publish(ctx, ch, fanout.Operation(ed.ClientID, out.applied))
	if out.compacted {
		w.log.Info("history compacted",
			logpkg.Str("doc", key.String()),
			logpkg.Int("base_rev", out.revision))
		w.opts.Metrics.ObserveCompaction(w.opts.Shard)
		w.opts.Metrics.ObserveResync(w.opts.Shard, "all")
		w.publish(ctx, ch, fanout.Resync(""))
	}
}

// drop advances the checkpoint past e without changing any document. When
// resync is set the author is told to refetch the document.
func (w *Worker) drop(ctx context.Context, e store.Entry, reason string, cause error, resync bool) error {
	w.log.Warn("dropping entry",
		logpkg.Str("entry", e.ID),
		logpkg.Str("doc", e.Edit.Key.String()),
		logpkg.Str("client", e.Edit.ClientID),
		logpkg.Str("reason", reason),
		logpkg.Err(cause))
	if err := w.opts.Store.SetCheckpoint(ctx, w.opts.Shard, e.ID); err != nil {
		return err
	}
	w.opts.Metrics.ObserveDropped(w.opts.Shard, reason)
	if resync && e.Edit.ClientID != "" {
		w.opts.Metrics.ObserveResync(w.opts.Shard, "origin")
		w.publish(ctx, e.Edit.Key.Channel(), fanout.Resync(e.Edit.ClientID))
	}
	return nil
}

func (w *Worker) publish(ctx context.Context, channel string, ev fanout.Event) {
	if err := w.opts.Broadcaster.Publish(ctx, channel, ev); err != nil {
		w.log.Warn("publish event", logpkg.Str("channel", channel), logpkg.Str("type", string(ev.Type)), logpkg.Err(err))
	}
}
