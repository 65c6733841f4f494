package ot

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRangeTransformCaret(t *testing.T) {
	op := New().Retain(1).Insert("X").Retain(3)
	assert.Equal(t, Range{3, 3}, Range{2, 2}.Transform(op))
	assert.Equal(t, Range{0, 0}, Range{0, 0}.Transform(op))
}

func TestRangeTransformInsideDeletionClampsToStart(t *testing.T) {
	op := New().Retain(1).Delete(2).Retain(1)
	assert.Equal(t, Range{1, 1}, Range{2, 2}.Transform(op))
	assert.Equal(t, Range{1, 1}, Range{3, 3}.Transform(op))
	assert.Equal(t, Range{0, 2}, Range{0, 4}.Transform(op))
}

func TestSelectionTransformPreservesOrder(t *testing.T) {
	sel := &Selection{Ranges: []Range{{0, 2}, {4, 4}, {5, 1}}}
	op := New().Insert("__").Retain(6)
	got := sel.Transform(op)
	assert.Equal(t, []Range{{2, 4}, {6, 6}, {7, 3}}, got.Ranges)
	// the input is untouched
	assert.Equal(t, Range{0, 2}, sel.Ranges[0])
}

func TestNilSelection(t *testing.T) {
	var sel *Selection
	assert.Nil(t, sel.Transform(New().Retain(1)))
	assert.False(t, sel.SomethingSelected())
	assert.True(t, sel.Equal(nil))
	assert.False(t, sel.Equal(Cursor(0)))
}

func TestSelectionHelpers(t *testing.T) {
	assert.False(t, Cursor(3).SomethingSelected())
	assert.True(t, (&Selection{Ranges: []Range{{1, 1}, {2, 5}}}).SomethingSelected())
	assert.True(t, Cursor(3).Equal(&Selection{Ranges: []Range{{3, 3}}}))
	assert.Equal(t, Cursor(9), Cursor(1).Compose(Cursor(9)))
}

func TestSelectionJSON(t *testing.T) {
	b, err := json.Marshal(Cursor(2))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ranges":[{"anchor":2,"head":2}]}`, string(b))

	b, err = json.Marshal(&Selection{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ranges":[]}`, string(b))

	sel, err := ParseSelection([]byte(`{"ranges":[{"anchor":1,"head":4}]}`))
	require.NoError(t, err)
	assert.Equal(t, []Range{{1, 4}}, sel.Ranges)

	sel, err = ParseSelection([]byte(`[{"anchor":0,"head":0}]`))
	require.NoError(t, err)
	assert.Equal(t, []Range{{0, 0}}, sel.Ranges)

	sel, err = ParseSelection([]byte(`null`))
	require.NoError(t, err)
	assert.Nil(t, sel)

	_, err = ParseSelection([]byte(`"nope"`))
	require.ErrorIs(t, err, ErrInvalidArgument)
}
