package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"uk.co.dudmesh.roastlive/pkg/feed"
)

type recorder struct {
	mu      sync.Mutex
	changes []feed.Change
}

func (r *recorder) handle(c feed.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

func TestHub(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	h := New()

	stream42, stream43, inserts, everything := &recorder{}, &recorder{}, &recorder{}, &recorder{}
	_, err := h.Subscribe(ctx, feed.Filter{Table: "stream_messages", Event: "*", MatchColumn: "stream_id", MatchValue: "42"}, stream42.handle)
	require.NoError(t, err)
	handle43, err := h.Subscribe(ctx, feed.Filter{Table: "stream_messages", Event: "*", MatchColumn: "stream_id", MatchValue: "43"}, stream43.handle)
	require.NoError(t, err)
	_, err = h.Subscribe(ctx, feed.Filter{Table: "stream_messages", Event: string(feed.ChangeInsert), MatchColumn: "stream_id", MatchValue: "42"}, inserts.handle)
	require.NoError(t, err)
	_, err = h.Subscribe(ctx, feed.Filter{Table: "stream_messages"}, everything.handle)
	require.NoError(t, err)
	assert.Equal(4, h.Len())

	record := map[string]string{"id": "m1", "stream_id": "42"}
	n, err := h.Publish(feed.ChangeInsert, "stream_messages", Columns{"stream_id": "42"}, record)
	require.NoError(t, err)
	assert.Equal(3, n)

	n, _ = h.Publish(feed.ChangeUpdate, "stream_messages", Columns{"stream_id": "42"}, record)
	assert.Equal(2, n)

	n, _ = h.Publish(feed.ChangeInsert, "dm_messages", Columns{"stream_id": "42"}, record)
	assert.Equal(0, n)

	assert.Equal(2, stream42.len())
	assert.Equal(1, inserts.len())
	assert.Equal(0, stream43.len())
	assert.Equal(2, everything.len())

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(stream42.changes[0].Record, &decoded))
	assert.Equal("m1", decoded["id"])
	assert.Equal(feed.ChangeUpdate, stream42.changes[1].Kind)

	require.NoError(t, handle43.Unsubscribe())
	require.NoError(t, handle43.Unsubscribe())
	assert.Equal(3, h.Len())

	t.Run("Invalid Filter", func(t *testing.T) {
		_, err := h.Subscribe(ctx, feed.Filter{}, stream42.handle)
		assert.Error(err)
		_, err = h.Subscribe(ctx, feed.Filter{Table: "notifications", MatchColumn: "user_id"}, stream42.handle)
		assert.Error(err)
	})

	t.Run("Close", func(t *testing.T) {
		h.Close()
		assert.Equal(0, h.Len())
		last := stream42.changes[len(stream42.changes)-1]
		assert.Equal(feed.ChangeError, last.Kind)
		assert.True(errors.Is(last.Err, ErrorClosed))

		_, err := h.Subscribe(ctx, feed.Filter{Table: "stream_messages"}, stream42.handle)
		assert.True(errors.Is(err, ErrorClosed))
	})
}
