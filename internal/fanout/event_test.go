package fanout

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/coedit/internal/ot"
	"github.com/rzbill/coedit/internal/store"
)

func TestEventWireForm(t *testing.T) {
	cases := []struct {
		ev   Event
		want string
	}{
		{Doc("c1", "", 0, nil), `{"type":"doc","client_id":"c1","str":"","revision":0,"clients":{}}`},
		{Ack("c1"), `{"type":"ack","client_id":"c1"}`},
		{Operation("c1", ot.Wrap(ot.New().Retain(1).Insert("X"), ot.Cursor(2))),
			`{"type":"operation","client_id":"c1","operation":[1,"X"],"selection":{"ranges":[{"anchor":2,"head":2}]}}`},
		{Selection("c2", nil), `{"type":"selection","client_id":"c2"}`},
		{ClientLeft("c3"), `{"type":"client_left","client_id":"c3"}`},
		{Resync(""), `{"type":"resync"}`},
		{SetName("c1", "Ada"), `{"type":"set_name","client_id":"c1","name":"Ada"}`},
	}
	for _, tc := range cases {
		b, err := json.Marshal(tc.ev)
		require.NoError(t, err)
		assert.JSONEq(t, tc.want, string(b), string(tc.ev.Type))
	}
}

func TestEventDecode(t *testing.T) {
	clients := map[string]store.Presence{"c2": {Name: "Bo", SeenAt: 5}}
	b, err := json.Marshal(Doc("c1", "abc", 7, clients))
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(b, &ev))
	assert.Equal(t, EventDoc, ev.Type)
	assert.Equal(t, "abc", ev.Str)
	assert.Equal(t, 7, ev.Revision)
	assert.Equal(t, "Bo", ev.Clients["c2"].Name)

	b, err = json.Marshal(Operation("c1", ot.Wrap[*ot.Selection](ot.New().Delete(2), nil)))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &ev))
	assert.True(t, ev.Operation.Equal(ot.New().Delete(2)))
	assert.Nil(t, ev.Selection)
}

func TestShouldDeliver(t *testing.T) {
	assert.True(t, Ack("a").ShouldDeliver("a"))
	assert.False(t, Ack("a").ShouldDeliver("b"))
	assert.False(t, Operation("a", ot.Wrap[*ot.Selection](ot.New(), nil)).ShouldDeliver("a"))
	assert.True(t, Operation("a", ot.Wrap[*ot.Selection](ot.New(), nil)).ShouldDeliver("b"))
	assert.True(t, Resync("").ShouldDeliver("b"))
	assert.False(t, Resync("a").ShouldDeliver("b"))
	assert.True(t, Resync("a").ShouldDeliver("a"))
	assert.True(t, SetName("a", "x").ShouldDeliver("a"))
	assert.True(t, ClientLeft("a").ShouldDeliver("b"))
}
