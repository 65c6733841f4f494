package authority

import (
	"testing"

	"github.com/rzbill/coedit/internal/ot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func edit(op *ot.Operation, sel *ot.Selection) ot.Edit { return ot.Wrap(op, sel) }

func TestReceiveAtCurrentRevision(t *testing.T) {
	a := New[*ot.Selection]("abc", nil, 0)
	got, err := a.Receive(0, edit(ot.New().Retain(1).Insert("X").Retain(2), ot.Cursor(2)))
	require.NoError(t, err)
	assert.Equal(t, "aXbc", a.Document())
	assert.Equal(t, 1, a.Revision())
	assert.Equal(t, ot.Cursor(2), got.Meta)
	assert.Len(t, a.History(), 1)
}

func TestConcurrentEditsConvergeInEitherOrder(t *testing.T) {
	x := func() ot.Edit { return edit(ot.New().Retain(1).Insert("X").Retain(2), nil) }
	y := func() ot.Edit { return edit(ot.New().Retain(3).Insert("Y"), nil) }

	for name, order := range map[string][]func() ot.Edit{"x first": {x, y}, "y first": {y, x}} {
		t.Run(name, func(t *testing.T) {
			a := New[*ot.Selection]("abc", nil, 0)
			for _, mk := range order {
				_, err := a.Receive(0, mk())
				require.NoError(t, err)
			}
			assert.Equal(t, "aXbcY", a.Document())
			assert.Equal(t, 2, a.Revision())
		})
	}
}

func TestReceiveTransformsSelection(t *testing.T) {
	a := New[*ot.Selection]("abcd", nil, 0)
	_, err := a.Receive(0, edit(ot.New().Insert(">>").Retain(4), nil))
	require.NoError(t, err)
	got, err := a.Receive(0, edit(ot.New().Retain(4).Insert("!"), ot.Cursor(5)))
	require.NoError(t, err)
	assert.Equal(t, ">>abcd!", a.Document())
	assert.Equal(t, ot.Cursor(7), got.Meta)
}

func TestRevisionErrors(t *testing.T) {
	a := New[*ot.Selection]("", nil, 5)
	_, err := a.Receive(4, edit(ot.New().Insert("a"), nil))
	require.ErrorIs(t, err, ErrStaleRevision)
	_, err = a.Receive(6, edit(ot.New().Insert("a"), nil))
	require.ErrorIs(t, err, ErrRevisionNotInHistory)
	assert.Equal(t, 5, a.Revision())
}

func TestReceiveBadLengthLeavesStateUntouched(t *testing.T) {
	a := New[*ot.Selection]("abc", nil, 0)
	_, err := a.Receive(0, edit(ot.New().Retain(10), nil))
	require.ErrorIs(t, err, ot.ErrLengthMismatch)
	assert.Equal(t, "abc", a.Document())
	assert.Equal(t, 0, a.Revision())
}

func TestCompactAfterBound(t *testing.T) {
	a := New[*ot.Selection]("", nil, 0)
	for i := 0; i < 3; i++ {
		_, err := a.Receive(a.Revision(), edit(ot.New().Retain(i).Insert("x"), nil))
		require.NoError(t, err)
		assert.False(t, a.Compact(3))
	}
	_, err := a.Receive(a.Revision(), edit(ot.New().Retain(3).Insert("x"), nil))
	require.NoError(t, err)
	require.True(t, a.Compact(3))
	assert.Equal(t, 4, a.BaseRevision())
	assert.Equal(t, 4, a.Revision())
	assert.Empty(t, a.History())
	assert.Equal(t, "xxxx", a.Document())

	_, err = a.Receive(0, edit(ot.New().Insert("late"), nil))
	require.ErrorIs(t, err, ErrStaleRevision)
}

func TestCompactDisabled(t *testing.T) {
	a := New[*ot.Selection]("", nil, 0)
	_, err := a.Receive(0, edit(ot.New().Insert("x"), nil))
	require.NoError(t, err)
	assert.False(t, a.Compact(0))
	assert.False(t, a.Compact(-1))
}

func TestRestoreFromHistory(t *testing.T) {
	hist := []ot.Edit{edit(ot.New().Insert("ab"), nil)}
	a := New("ab", hist, 2)
	assert.Equal(t, 3, a.Revision())
	got, err := a.Receive(2, edit(ot.New().Insert("Z"), nil))
	require.NoError(t, err)
	assert.Equal(t, "Zab", a.Document())
	assert.Equal(t, "insert 'Z', retain 2", got.Op.String())
}
