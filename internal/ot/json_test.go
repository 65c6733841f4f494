package ot

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationWireForm(t *testing.T) {
	op := New().Retain(2).Insert("hé").Delete(3).Retain(1)
	b, err := json.Marshal(op)
	require.NoError(t, err)
	assert.JSONEq(t, `[2,"hé",-3,1]`, string(b))

	parsed, err := ParseOperation(b)
	require.NoError(t, err)
	assert.True(t, op.Equal(parsed))
	assert.Equal(t, op.BaseLength(), parsed.BaseLength())
	assert.Equal(t, op.TargetLength(), parsed.TargetLength())
}

func TestParseOperationNormalizes(t *testing.T) {
	op, err := ParseOperation([]byte(`[1, 1, -1, "x"]`))
	require.NoError(t, err)
	assert.Equal(t, "retain 2, insert 'x', delete 1", op.String())
}

func TestParseOperationRejects(t *testing.T) {
	for _, in := range []string{`[0]`, `[1.5]`, `[true]`, `[{"a":1}]`, `{"ops":[]}`, `null`, `not json`} {
		_, err := ParseOperation([]byte(in))
		require.ErrorIs(t, err, ErrInvalidArgument, in)
	}
}

func TestParseOperationRejectsLengthOverflow(t *testing.T) {
	for _, in := range []string{
		`[-9223372036854775807,-9223372036854775807,4]`,
		`[9223372036854775807,1]`,
		`[1,"x",9223372036854775807]`,
		`[-9223372036854775808]`,
		`[99999999999999999999]`,
	} {
		op, err := ParseOperation([]byte(in))
		require.ErrorIs(t, err, ErrInvalidArgument, in)
		assert.Nil(t, op, in)
	}
}

func TestLengthOverflowDoesNotPanicOnApply(t *testing.T) {
	op := New().Delete(math.MaxInt).Delete(math.MaxInt).Retain(4)
	require.ErrorIs(t, op.Err(), ErrInvalidArgument)
	assert.NotPanics(t, func() {
		_, err := op.Apply("ab")
		require.Error(t, err)
	})
}

func TestParseEmptyOperation(t *testing.T) {
	op, err := ParseOperation([]byte(`[]`))
	require.NoError(t, err)
	assert.True(t, op.IsNoop())
}

func TestUnmarshalInStruct(t *testing.T) {
	var msg struct {
		Revision  int        `json:"revision"`
		Operation Operation  `json:"operation"`
		Selection *Selection `json:"selection"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"revision":3,"operation":[1,"X",2],"selection":{"ranges":[{"anchor":2,"head":2}]}}`), &msg))
	assert.Equal(t, 3, msg.Revision)
	assert.Equal(t, 3, msg.Operation.BaseLength())
	assert.Equal(t, Cursor(2), msg.Selection)
}

func TestEditRecord(t *testing.T) {
	e := Wrap(New().Retain(1).Insert("X"), Cursor(2))
	b, err := MarshalEdit(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"operation":[1,"X"],"selection":{"ranges":[{"anchor":2,"head":2}]}}`, string(b))

	back, err := UnmarshalEdit(b)
	require.NoError(t, err)
	assert.True(t, e.Op.Equal(back.Op))
	assert.True(t, e.Meta.Equal(back.Meta))

	b, err = MarshalEdit(Wrap[*Selection](New().Delete(1), nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"operation":[-1],"selection":null}`, string(b))

	_, err = UnmarshalEdit([]byte(`{"selection":null}`))
	require.ErrorIs(t, err, ErrInvalidArgument)
}
