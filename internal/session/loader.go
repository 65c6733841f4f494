package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rzbill/coedit/internal/docstore"
	"github.com/rzbill/coedit/internal/store"
	logpkg "github.com/rzbill/coedit/pkg/log"
)

// Loader reads document state from the store, creating it on first access.
type Loader struct {
	Store store.Documents
	// Docs seeds room documents; nil starts every document empty.
	Docs   docstore.Storage
	Logger logpkg.Logger
}

// FetchState returns the persisted state of key. A document that was never
// opened is created at revision 0, seeded from its file for room documents.
// A missing file is created empty.
func (l *Loader) FetchState(ctx context.Context, key store.DocKey) (store.State, error) {
	st, ok, err := l.Store.LoadState(ctx, key)
	if err != nil {
		return store.State{}, fmt.Errorf("load state %s: %w", key, err)
	}
	if ok {
		return st, nil
	}
	doc := ""
	if key.Scope == store.ScopeRoom && l.Docs != nil {
		doc, err = l.Docs.Read(ctx, key.Room, key.Path)
		switch {
		case errors.Is(err, docstore.ErrNotFound):
			doc = ""
			if err := l.Docs.Write(ctx, key.Room, key.Path, ""); err != nil {
				return store.State{}, fmt.Errorf("create file %s: %w", key, err)
			}
		case err != nil:
			return store.State{}, fmt.Errorf("seed %s: %w", key, err)
		}
	}
	return l.Store.CreateState(ctx, key, doc)
}

// Load rebuilds a session. When base revision plus history length does not
// match the stored revision the history is dropped and compacted to the
// stored revision, which forces clients to resync.
func (l *Loader) Load(ctx context.Context, key store.DocKey) (*Session, error) {
	st, err := l.FetchState(ctx, key)
	if err != nil {
		return nil, err
	}
	history, err := l.Store.LoadHistory(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", key, err)
	}
	base := st.BaseRevision
	if base+len(history) != st.Revision {
		if l.Logger != nil {
			l.Logger.Warn("history mismatch, forcing resync",
				logpkg.Str("doc", key.String()),
				logpkg.Int("base_rev", base),
				logpkg.Int("history", len(history)),
				logpkg.Int("rev", st.Revision))
		}
		history, base = nil, st.Revision
		if err := l.Store.CompactHistory(ctx, key, base); err != nil {
			return nil, fmt.Errorf("repair history %s: %w", key, err)
		}
	}
	s := New(key, st.Doc, history, base)
	s.lastEntryID = st.LastEntryID
	return s, nil
}

// Cache keeps the sessions a worker has loaded. It is owned by one worker.
type Cache struct {
	loader *Loader

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewCache(loader *Loader) *Cache {
	return &Cache{loader: loader, sessions: make(map[string]*Session)}
}

// Get returns the cached session for key, loading it on a miss.
func (c *Cache) Get(ctx context.Context, key store.DocKey) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[key.String()]; ok {
		return s, nil
	}
	s, err := c.loader.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	c.sessions[key.String()] = s
	return s, nil
}

// Evict drops key so the next Get reloads it from the store.
func (c *Cache) Evict(key store.DocKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, key.String())
}

// Len is the number of cached sessions.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}
