package ot

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeMatchesSequentialApply(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 300; i++ {
		doc := randomString(r, r.Intn(40))
		a := randomOperation(r, doc)
		afterA, err := a.Apply(doc)
		require.NoError(t, err)
		b := randomOperation(r, afterA)
		afterB, err := b.Apply(afterA)
		require.NoError(t, err)

		ab, err := Compose(a, b)
		require.NoError(t, err)
		assert.Equal(t, a.BaseLength(), ab.BaseLength())
		assert.Equal(t, b.TargetLength(), ab.TargetLength())
		out, err := ab.Apply(doc)
		require.NoError(t, err)
		require.Equal(t, afterB, out)
	}
}

func TestComposeIncompatibleLengths(t *testing.T) {
	a := New().Retain(3).Insert("x")
	b := New().Retain(3)
	_, err := a.Compose(b)
	require.ErrorIs(t, err, ErrIncompatibleLengths)
}

func TestTransformConvergence(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 500; i++ {
		doc := randomString(r, r.Intn(40))
		a := randomOperation(r, doc)
		b := randomOperation(r, doc)

		aPrime, bPrime, err := Transform(a, b)
		require.NoError(t, err)

		afterA, err := a.Apply(doc)
		require.NoError(t, err)
		afterB, err := b.Apply(doc)
		require.NoError(t, err)

		left, err := bPrime.Apply(afterA)
		require.NoError(t, err)
		right, err := aPrime.Apply(afterB)
		require.NoError(t, err)
		require.Equal(t, left, right, "doc=%q a=%s b=%s", doc, a, b)

		// compose(a, b') and compose(b, a') have the same effect
		ab, err := Compose(a, bPrime)
		require.NoError(t, err)
		ba, err := Compose(b, aPrime)
		require.NoError(t, err)
		viaAB, err := ab.Apply(doc)
		require.NoError(t, err)
		viaBA, err := ba.Apply(doc)
		require.NoError(t, err)
		require.Equal(t, viaAB, viaBA)
	}
}

// Two inserts at the same offset: the first argument's text always comes
// first, whichever order the operations are transformed in by callers.
func TestTransformInsertTieBreakFavorsFirstArgument(t *testing.T) {
	doc := "ab"
	a := New().Retain(1).Insert("A").Retain(1)
	b := New().Retain(1).Insert("B").Retain(1)

	aPrime, bPrime, err := Transform(a, b)
	require.NoError(t, err)
	assert.Equal(t, "retain 1, insert 'A', retain 2", aPrime.String())
	assert.Equal(t, "retain 2, insert 'B', retain 1", bPrime.String())

	afterA, _ := a.Apply(doc)
	out, err := bPrime.Apply(afterA)
	require.NoError(t, err)
	assert.Equal(t, "aABb", out)

	// Swapping the arguments swaps the order.
	bPrime2, aPrime2, err := Transform(b, a)
	require.NoError(t, err)
	afterB, _ := b.Apply(doc)
	out2, err := aPrime2.Apply(afterB)
	require.NoError(t, err)
	assert.Equal(t, "aBAb", out2)
	_ = bPrime2
}

func TestTransformDeleteDelete(t *testing.T) {
	a := New().Retain(1).Delete(3)
	b := New().Delete(2).Retain(2)
	aPrime, bPrime, err := Transform(a, b)
	require.NoError(t, err)
	assert.Equal(t, "delete 2", aPrime.String())
	assert.Equal(t, "delete 1", bPrime.String())
}

func TestTransformRejectsDifferentBaseLengths(t *testing.T) {
	_, _, err := Transform(New().Retain(2), New().Retain(3))
	require.ErrorIs(t, err, ErrIncompatibleLengths)
}

func TestConcurrentInsertsConverge(t *testing.T) {
	doc := "abc"
	x := New().Retain(1).Insert("X").Retain(2)
	y := New().Retain(3).Insert("Y")

	xPrime, yPrime, err := Transform(x, y)
	require.NoError(t, err)

	afterX, _ := x.Apply(doc)
	viaX, err := yPrime.Apply(afterX)
	require.NoError(t, err)
	afterY, _ := y.Apply(doc)
	viaY, err := xPrime.Apply(afterY)
	require.NoError(t, err)

	assert.Equal(t, "aXbcY", viaX)
	assert.Equal(t, "aXbcY", viaY)
}
