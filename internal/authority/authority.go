// Package authority holds the canonical state of one document and serializes
// the edits applied to it.
package authority

import (
	"errors"
	"fmt"

	"github.com/rzbill/coedit/internal/ot"
)

var (
	// ErrStaleRevision means the client's revision predates the retained
	// history. The client has to resync; retrying will not help.
	ErrStaleRevision = errors.New("authority: operation revision too old")
	// ErrRevisionNotInHistory means the client claims a revision the
	// authority has not reached.
	ErrRevisionNotInHistory = errors.New("authority: operation revision not in history")
)

// Authority owns a document, the operations applied since baseRevision, and
// the revision counters. It is not safe for concurrent use; callers serialize
// access (see session.Session).
type Authority[M ot.Metadata[M]] struct {
	doc          string
	history      []ot.Wrapped[M]
	baseRevision int
}

// New restores an authority from persisted state. history holds the
// operations applied after baseRevision, oldest first.
func New[M ot.Metadata[M]](doc string, history []ot.Wrapped[M], baseRevision int) *Authority[M] {
	if baseRevision < 0 {
		baseRevision = 0
	}
	return &Authority[M]{doc: doc, history: history, baseRevision: baseRevision}
}

// Document returns the current text.
func (a *Authority[M]) Document() string { return a.doc }

// BaseRevision is the revision the retained history starts from.
func (a *Authority[M]) BaseRevision() int { return a.baseRevision }

// Revision is the number of operations applied since the document was created.
func (a *Authority[M]) Revision() int { return a.baseRevision + len(a.history) }

// History returns the retained operations, oldest first.
func (a *Authority[M]) History() []ot.Wrapped[M] {
	return append([]ot.Wrapped[M](nil), a.history...)
}

// Receive accepts an operation the client built against revision. The
// operation is transformed past every operation the client had not seen,
// applied, and appended to history. The transformed operation is returned
// so it can be broadcast to other clients.
//
// On error the authority is unchanged.
func (a *Authority[M]) Receive(revision int, op ot.Wrapped[M]) (ot.Wrapped[M], error) {
	if revision < a.baseRevision {
		return ot.Wrapped[M]{}, fmt.Errorf("%w: revision %d, base revision %d", ErrStaleRevision, revision, a.baseRevision)
	}
	if revision > a.Revision() {
		return ot.Wrapped[M]{}, fmt.Errorf("%w: revision %d, current revision %d", ErrRevisionNotInHistory, revision, a.Revision())
	}

	for _, concurrent := range a.history[revision-a.baseRevision:] {
		prime, _, err := ot.TransformWrapped(op, concurrent)
		if err != nil {
			return ot.Wrapped[M]{}, err
		}
		op = prime
	}

	doc, err := op.Apply(a.doc)
	if err != nil {
		return ot.Wrapped[M]{}, err
	}
	a.doc = doc
	a.history = append(a.history, op)
	return op, nil
}

// Compact drops the history once it grows past maxHistory, moving
// baseRevision up to the current revision. It reports whether it fired.
// Clients behind the new base revision get ErrStaleRevision afterwards.
func (a *Authority[M]) Compact(maxHistory int) bool {
	if maxHistory <= 0 || len(a.history) <= maxHistory {
		return false
	}
	a.baseRevision = a.Revision()
	a.history = nil
	return true
}
