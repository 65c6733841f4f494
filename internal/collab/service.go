// Package collab implements the actions a connected client can take on a
// document: join, leave, submit an operation, move its selection, rename
// itself and ask for a resync. Operations are only validated and enqueued
// here; the shard worker applies them.
package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rzbill/coedit/internal/docstore"
	"github.com/rzbill/coedit/internal/fanout"
	"github.com/rzbill/coedit/internal/metrics"
	"github.com/rzbill/coedit/internal/ot"
	"github.com/rzbill/coedit/internal/session"
	"github.com/rzbill/coedit/internal/store"
	logpkg "github.com/rzbill/coedit/pkg/log"
)

// ErrRejected is returned for edits refused before they reach a stream.
var ErrRejected = errors.New("collab: edit rejected")

// Options configures a Service.
type Options struct {
	Store       store.Store
	Docs        docstore.Storage
	Broadcaster fanout.Broadcaster
	Logger      logpkg.Logger
	Metrics     *metrics.Metrics
	// Filter is a CEL expression every submitted edit must satisfy.
	Filter string
	// MaxOperationBytes bounds the wire size of an operation; 0 disables.
	MaxOperationBytes int
}

// Service handles client actions.
type Service struct {
	store   store.Store
	docs    docstore.Storage
	bus     fanout.Broadcaster
	log     logpkg.Logger
	metrics *metrics.Metrics
	loader  *session.Loader
	filter  editFilter
	maxOp   int
}

// New compiles the edit filter and returns a Service.
func New(opts Options) (*Service, error) {
	if opts.Store == nil || opts.Broadcaster == nil {
		return nil, errors.New("collab: Store and Broadcaster are required")
	}
	f, err := newEditFilter(opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("compile edit filter: %w", err)
	}
	lg := opts.Logger
	if lg == nil {
		lg = logpkg.NewNopLogger()
	}
	lg = lg.With(logpkg.Component("collab"))
	return &Service{
		store:   opts.Store,
		docs:    opts.Docs,
		bus:     opts.Broadcaster,
		log:     lg,
		metrics: opts.Metrics,
		loader:  &session.Loader{Store: opts.Store, Docs: opts.Docs, Logger: lg},
		filter:  f,
		maxOp:   opts.MaxOperationBytes,
	}, nil
}

// Join registers clientID on key and returns the doc event for it.
// Callers subscribe to the document channel before joining so that no
// operation between the snapshot and the subscription is missed.
func (s *Service) Join(ctx context.Context, key store.DocKey, clientID string) (fanout.Event, error) {
	if err := checkClient(key, clientID); err != nil {
		return fanout.Event{}, err
	}
	if err := s.store.EnsureClient(ctx, key, clientID); err != nil {
		return fanout.Event{}, err
	}
	return s.docEvent(ctx, key, clientID)
}

// Resync re-sends the document to clientID.
func (s *Service) Resync(ctx context.Context, key store.DocKey, clientID string) (fanout.Event, error) {
	return s.Join(ctx, key, clientID)
}

func (s *Service) docEvent(ctx context.Context, key store.DocKey, clientID string) (fanout.Event, error) {
	st, clients, err := s.State(ctx, key)
	if err != nil {
		return fanout.Event{}, err
	}
	return fanout.Doc(clientID, st.Doc, st.Revision, clients), nil
}

// State returns the persisted document together with its live clients. The
// document is created on first access.
func (s *Service) State(ctx context.Context, key store.DocKey) (store.State, map[string]store.Presence, error) {
	if err := key.Validate(); err != nil {
		return store.State{}, nil, err
	}
	st, err := s.loader.FetchState(ctx, key)
	if err != nil {
		return store.State{}, nil, err
	}
	clients, err := s.store.Clients(ctx, key)
	if err != nil {
		return store.State{}, nil, err
	}
	return st, clients, nil
}

// Leave removes clientID and tells the others.
func (s *Service) Leave(ctx context.Context, key store.DocKey, clientID string) error {
	if err := checkClient(key, clientID); err != nil {
		return err
	}
	if err := s.store.RemoveClient(ctx, key, clientID); err != nil {
		return err
	}
	return s.bus.Publish(ctx, key.Channel(), fanout.ClientLeft(clientID))
}

// Submission is an operation as sent by a client.
type Submission struct {
	Revision  int             `json:"revision"`
	Operation json.RawMessage `json:"operation"`
	Selection json.RawMessage `json:"selection,omitempty"`
}

// Submit validates an operation and enqueues it on the document's shard.
// It returns the stream entry id.
func (s *Service) Submit(ctx context.Context, key store.DocKey, clientID string, sub Submission) (string, error) {
	if err := checkClient(key, clientID); err != nil {
		return "", err
	}
	if sub.Revision < 0 {
		return "", s.reject("revision", "negative revision %d", sub.Revision)
	}
	if s.maxOp > 0 && len(sub.Operation) > s.maxOp {
		return "", s.reject("size", "operation is %d bytes, limit %d", len(sub.Operation), s.maxOp)
	}
	op, err := ot.ParseOperation(sub.Operation)
	if err != nil {
		return "", s.reject("decode", "%v", err)
	}
	if _, err := ot.ParseSelection(sub.Selection); err != nil {
		return "", s.reject("decode", "%v", err)
	}
	if !s.filter.Eval(key, clientID, sub.Revision, len(sub.Operation), op) {
		return "", s.reject("filter", "edit filter refused the operation")
	}
	id, err := s.store.Enqueue(ctx, store.Edit{
		Key:       key,
		ClientID:  clientID,
		Revision:  sub.Revision,
		Operation: sub.Operation,
		Selection: sub.Selection,
	})
	if err != nil {
		return "", err
	}
	s.log.Debug("edit enqueued", logpkg.Str("doc", key.String()), logpkg.Str("client", clientID), logpkg.Str("entry", id))
	return id, nil
}

func (s *Service) reject(reason, format string, args ...any) error {
	s.metrics.ObserveRejected(reason)
	return fmt.Errorf("%w: "+format, append([]any{ErrRejected}, args...)...)
}

// UpdateSelection stores the client's selection and broadcasts it. A nil
// selection clears it.
func (s *Service) UpdateSelection(ctx context.Context, key store.DocKey, clientID string, sel *ot.Selection) error {
	if err := checkClient(key, clientID); err != nil {
		return err
	}
	if err := s.store.SetClientSelection(ctx, key, clientID, sel); err != nil {
		return err
	}
	if err := s.store.TouchClient(ctx, key, clientID); err != nil {
		return err
	}
	return s.bus.Publish(ctx, key.Channel(), fanout.Selection(clientID, sel))
}

// SetName stores a display name. Names are trimmed; a blank name is
// ignored.
func (s *Service) SetName(ctx context.Context, key store.DocKey, clientID, name string) error {
	if err := checkClient(key, clientID); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	if err := s.store.SetClientName(ctx, key, clientID, name); err != nil {
		return err
	}
	if err := s.store.TouchClient(ctx, key, clientID); err != nil {
		return err
	}
	return s.bus.Publish(ctx, key.Channel(), fanout.SetName(clientID, name))
}

// Files lists the files of a room.
func (s *Service) Files(ctx context.Context, room int64) ([]docstore.File, error) {
	if s.docs == nil {
		return nil, nil
	}
	return s.docs.List(ctx, room)
}

func checkClient(key store.DocKey, clientID string) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if clientID == "" {
		return fmt.Errorf("%w: empty client id", ErrRejected)
	}
	return nil
}
