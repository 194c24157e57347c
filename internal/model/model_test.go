package model

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"uk.co.dudmesh.roastlive/pkg/feed"
)

func TestChannelKey(t *testing.T) {
	assert := assert.New(t)

	t.Run("Filter", func(t *testing.T) {
		f, err := StreamChannel("42").Filter()
		assert.Nil(err)
		assert.Equal(feed.Filter{Table: "stream_messages", Event: "*", MatchColumn: "stream_id", MatchValue: "42"}, f)

		f, err = ConversationChannel("7").Filter()
		assert.Nil(err)
		assert.Equal("dm_messages", f.Table)
		assert.Equal("conversation_id", f.MatchColumn)

		f, err = NotificationChannel("u1").Filter()
		assert.Nil(err)
		assert.Equal("notifications", f.Table)
		assert.Equal("user_id", f.MatchColumn)
		assert.Equal("u1", f.MatchValue)
	})

	t.Run("Invalid", func(t *testing.T) {
		for _, key := range []string{"", "stream", "stream:", "room:1"} {
			_, err := ChannelKey(key).Filter()
			assert.True(errors.Is(err, ErrorInvalidChannel), key)
		}
		assert.Equal(Table(""), ChannelKey("nope").Table())
	})

	t.Run("From Filter", func(t *testing.T) {
		for _, key := range []ChannelKey{StreamChannel("42"), ConversationChannel("7"), NotificationChannel("u1")} {
			f, err := key.Filter()
			assert.Nil(err)
			back, err := ChannelOf(f)
			assert.Nil(err)
			assert.Equal(key, back)
		}

		_, err := ChannelOf(feed.Filter{Table: "stream_messages", MatchColumn: "author_id", MatchValue: "u1"})
		assert.True(errors.Is(err, ErrorInvalidChannel))
		_, err = ChannelOf(feed.Filter{Table: "stream_messages"})
		assert.True(errors.Is(err, ErrorInvalidChannel))
	})
}

func TestMessage(t *testing.T) {
	assert := assert.New(t)

	m := Message{ID: "m1", StreamID: "42", AuthorID: "u1", Content: "gg", CreatedAt: time.Now()}
	assert.Nil(m.Validate())
	assert.Nil(m.ValidateNew())
	assert.Equal(StreamChannel("42"), m.Channel())
	assert.Equal(MaxStreamMessageLength, m.MaxLength())

	other := m
	other.ID = "m2"
	assert.Equal(m.Fingerprint(), other.Fingerprint())
	other.AuthorID = "u2"
	assert.NotEqual(m.Fingerprint(), other.Fingerprint())

	both := m
	both.ConversationID = "7"
	assert.NotNil(both.Validate())

	dm := Message{ConversationID: "7", AuthorID: "u1", Content: strings.Repeat("é", MaxDirectMessageLength)}
	assert.Nil(dm.ValidateNew())
	dm.Content += "x"
	assert.True(errors.Is(dm.ValidateNew(), ErrorContentTooLong))

	blank := Message{StreamID: "42", AuthorID: "u1", Content: "   "}
	assert.True(errors.Is(blank.ValidateNew(), ErrorEmptyContent))
}

func TestNotification(t *testing.T) {
	assert := assert.New(t)
	n := Notification{ID: "n1", RecipientID: "u1", Type: NotificationTypeGift, CreatedAt: time.Now()}
	assert.Nil(n.Validate())
	assert.Equal(NotificationChannel("u1"), n.Channel())

	n.Type = "poke"
	assert.True(errors.Is(n.Validate(), ErrorUnknownNotificationType))
}

func TestSettings(t *testing.T) {
	assert := assert.New(t)

	t.Run("Defaults", func(t *testing.T) {
		s := DefaultSettings("u1")
		assert.Nil(s.Validate())
		assert.Equal(DefaultSlowModeSeconds, s.SlowModeSeconds)
		assert.Equal(MaxGuests, s.MaxGuests)
	})

	t.Run("Slow Mode Range", func(t *testing.T) {
		for _, seconds := range []int{0, 61, -1} {
			seconds := seconds
			patch := SettingsPatch{SlowModeSeconds: &seconds}
			err := patch.Validate()
			var v *feed.ValidationError
			assert.True(errors.As(err, &v), "seconds %d", seconds)
			if v != nil {
				assert.Equal("slow_mode_seconds", v.Field)
			}
		}
		for _, seconds := range []int{1, 30, 60} {
			seconds := seconds
			patch := SettingsPatch{SlowModeSeconds: &seconds}
			assert.Nil(patch.Validate())
		}
	})

	t.Run("Enums", func(t *testing.T) {
		theme := "neon"
		patch := SettingsPatch{Theme: &theme}
		assert.True(feed.IsValidation(patch.Validate()))

		zero := 0
		patch = SettingsPatch{ScreenTimeLimitMinutes: &zero}
		assert.Nil(patch.Validate())
	})

	t.Run("Apply", func(t *testing.T) {
		s := DefaultSettings("u1")
		enabled := true
		seconds := 10
		mode := "followers"
		patch := SettingsPatch{EnableSlowMode: &enabled, SlowModeSeconds: &seconds, LiveChatMode: &mode}
		patch.Apply(&s)

		assert.True(s.EnableSlowMode)
		assert.Equal(10, s.SlowModeSeconds)
		assert.Equal("followers", s.LiveChatMode)
		assert.Equal("everyone", s.DMPermissions)

		assert.Equal(map[string]interface{}{
			"enable_slow_mode":  true,
			"slow_mode_seconds": 10,
			"live_chat_mode":    "followers",
		}, patch.Columns())
		assert.False(patch.Empty())
		assert.True((&SettingsPatch{}).Empty())
	})
}

func TestIDs(t *testing.T) {
	assert := assert.New(t)
	assert.NotEqual(CreateID(), CreateID())

	earlier := NewRecordID(time.Unix(1000, 0))
	later := NewRecordID(time.Unix(2000, 0))
	assert.Len(earlier, 26)
	assert.Less(earlier, later)
}
