package feed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscription(t *testing.T) {
	assert := assert.New(t)
	sub := &fakeSubscriber{}
	logger := &discardLogger{}

	var events []Event[testItem]
	s, err := Open(context.Background(), sub, "stream:42", Filter{Table: "stream_messages"}, decodeTestItem, func(ev Event[testItem]) {
		events = append(events, ev)
	}, logger)
	require.NoError(t, err)
	assert.Equal("stream:42", s.Channel())

	t.Run("Deliver", func(t *testing.T) {
		sub.push(ChangeInsert, testItem{ID: "a", Author: "u", CreatedAt: at(1)})
		sub.push(ChangeUpdate, testItem{ID: "a", Author: "u", Read: true, CreatedAt: at(1)})
		sub.pushChange(Change{Kind: ChangeReconnected})
		sub.pushChange(Change{Kind: "TRUNCATE"})

		require.Len(t, events, 3)
		assert.Equal(EventInsert, events[0].Kind)
		assert.Equal(EventUpdate, events[1].Kind)
		assert.True(events[1].Item.Read)
		assert.Equal(EventReconnected, events[2].Kind)
		assert.Equal(1, logger.count())
	})

	t.Run("Close", func(t *testing.T) {
		assert.Nil(s.Close())
		assert.Nil(s.Close())
		assert.Equal(1, sub.unsubscribed)

		sub.push(ChangeInsert, testItem{ID: "b", Author: "u", CreatedAt: at(2)})
		assert.Len(events, 3)
	})
}
