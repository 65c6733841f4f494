// Package session holds the live, lock-guarded authority of each document a
// worker serves, and rebuilds it from the store on first use.
package session

import (
	"sync"

	"github.com/rzbill/coedit/internal/authority"
	"github.com/rzbill/coedit/internal/ot"
	"github.com/rzbill/coedit/internal/store"
)

// Authority is the document authority specialised to selection metadata.
type Authority = authority.Authority[*ot.Selection]

// Session guards one document's authority. Every mutating access goes
// through Synchronize.
type Session struct {
	key store.DocKey

	mu   sync.Mutex
	auth *Authority
	// lastEntryID is the stream entry behind the current revision.
	lastEntryID string
}

// New builds a session from persisted state.
func New(key store.DocKey, doc string, history []ot.Edit, baseRevision int) *Session {
	return &Session{
		key:  key,
		auth: authority.New(doc, history, baseRevision),
	}
}

func (s *Session) Key() store.DocKey { return s.key }

// Synchronize runs fn with the session lock held.
func (s *Session) Synchronize(fn func(a *Authority) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.auth)
}

func (s *Session) Document() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth.Document()
}

func (s *Session) Revision() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth.Revision()
}

// State returns the document, revision and base revision together.
func (s *Session) State() store.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return store.State{Doc: s.auth.Document(), Revision: s.auth.Revision(), BaseRevision: s.auth.BaseRevision()}
}

// LastEntryID is the id of the stream entry that produced the current
// revision. Callers hold the lock through Synchronize.
func (s *Session) LastEntryID() string { return s.lastEntryID }

// SetLastEntryID records id after a successful commit. Callers hold the
// lock through Synchronize.
func (s *Session) SetLastEntryID(id string) { s.lastEntryID = id }
