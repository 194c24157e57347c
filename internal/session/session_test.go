package session

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"uk.co.dudmesh.roastlive/internal/auth"
	"uk.co.dudmesh.roastlive/internal/boot"
	"uk.co.dudmesh.roastlive/internal/handlers"
	"uk.co.dudmesh.roastlive/internal/hub"
	"uk.co.dudmesh.roastlive/internal/model"
	"uk.co.dudmesh.roastlive/internal/scorer"
	"uk.co.dudmesh.roastlive/internal/service/chat"
	"uk.co.dudmesh.roastlive/internal/store"
	"uk.co.dudmesh.roastlive/pkg/feed"
)

func newServer(t *testing.T) *httptest.Server {
	s, err := store.OpenMemory("session_" + strings.ReplaceAll(t.Name(), "/", "_"))
	require.NoError(t, err)
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	h := hub.New()
	e := echo.New()
	e.HideBanner = true
	handlers.Register(e, &handlers.Deps{
		Store:         s,
		Hub:           h,
		Authenticator: auth.NewCredentials(s),
		Tokens:        auth.NewTokens(key, time.Hour),
		Scorer:        scorer.New(scorer.DefaultTerms),
	})
	server := httptest.NewServer(e)
	t.Cleanup(func() {
		server.Close()
		h.Close()
		s.Close()
	})
	return server
}

func connect(t *testing.T, server *httptest.Server, userID string) *Session {
	config, err := boot.LoadWith(envconfig.MapLookuper(map[string]string{
		"BASE_URL":     server.URL,
		"REALTIME_URL": "ws" + strings.TrimPrefix(server.URL, "http") + "/realtime",
		"USER_ID":      userID,
		"PASSWORD":     userID + "-password",
		"SEND_TIMEOUT": "5s",
	}))
	require.NoError(t, err)

	s, err := New(context.Background(), config)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewRequiresUser(t *testing.T) {
	config, err := boot.LoadWith(envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)
	_, err = New(context.Background(), config)
	assert.True(t, errors.Is(err, ErrorMissingUser))
}

func TestSession(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	server := newServer(t)
	alice, bob := connect(t, server, "alice"), connect(t, server, "bob")
	assert.Equal("alice", alice.Username)

	t.Run("Chat", func(t *testing.T) {
		aliceChat, err := alice.Chat.OpenStream(ctx, "42", chat.Options{})
		require.NoError(t, err)
		defer aliceChat.Close()
		bobChat, err := bob.Chat.OpenStream(ctx, "42", chat.Options{})
		require.NoError(t, err)
		defer bobChat.Close()

		require.NoError(t, aliceChat.Send(ctx, "hello everyone"))
		assert.Eventually(func() bool {
			messages := aliceChat.Messages()
			return len(messages) == 1 && aliceChat.Pending() == 0 && !strings.HasPrefix(messages[0].ID, "~")
		}, 5*time.Second, 10*time.Millisecond)

		assert.Eventually(func() bool { return bobChat.Len() == 1 }, 5*time.Second, 10*time.Millisecond)
		seen := bobChat.Messages()
		require.Len(t, seen, 1)
		assert.Equal("hello everyone", seen[0].Content)
		assert.Equal(model.UserID("alice"), seen[0].AuthorID)
		assert.Equal(aliceChat.Messages()[0].ID, seen[0].ID)

		err = aliceChat.Send(ctx, "kill yourself")
		assert.True(feed.IsValidation(err))
		assert.Len(aliceChat.Messages(), 1)

		require.NoError(t, bobChat.Pin(ctx, seen[0].ID, true))
		assert.Eventually(func() bool {
			_, ok := aliceChat.Pinned()
			return ok
		}, 5*time.Second, 10*time.Millisecond)

		require.NoError(t, aliceChat.Delete(ctx, seen[0].ID))
		assert.Eventually(func() bool { return bobChat.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("Notifications", func(t *testing.T) {
		inbox, err := alice.Notifications.Open(ctx, nil)
		require.NoError(t, err)
		defer inbox.Close()

		for _, title := range []string{"bob followed you", "bob sent you a rose"} {
			_, err := bob.API.Insert(ctx, string(model.TableNotifications), &model.Notification{
				RecipientID: "alice",
				Type:        model.NotificationTypeFollow,
				Title:       title,
			})
			require.NoError(t, err)
		}
		assert.Eventually(func() bool { return inbox.UnreadCount() == 2 }, 5*time.Second, 10*time.Millisecond)
		assert.Equal("bob sent you a rose", inbox.Notifications()[0].Title)

		require.NoError(t, inbox.MarkRead(ctx, inbox.Notifications()[1].ID))
		assert.Equal(1, inbox.UnreadCount())

		require.NoError(t, inbox.MarkAllRead(ctx))
		assert.Equal(0, inbox.UnreadCount())
		remote, err := inbox.RemoteUnreadCount(ctx)
		require.NoError(t, err)
		assert.Equal(0, remote)
	})

	t.Run("Settings", func(t *testing.T) {
		settings, err := alice.Settings.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(model.DefaultSlowModeSeconds, settings.SlowModeSeconds)

		enabled, seconds := true, 5
		changed, err := alice.Settings.Update(ctx, "alice", &model.SettingsPatch{EnableSlowMode: &enabled, SlowModeSeconds: &seconds})
		require.NoError(t, err)
		assert.True(changed)

		host, err := bob.Settings.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(5*time.Second, chat.SlowMode(host))
	})
}
