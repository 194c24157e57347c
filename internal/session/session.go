package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"
	"uk.co.dudmesh.roastlive/internal/boot"
	"uk.co.dudmesh.roastlive/internal/model"
	"uk.co.dudmesh.roastlive/internal/service/chat"
	"uk.co.dudmesh.roastlive/internal/service/notify"
	"uk.co.dudmesh.roastlive/internal/service/settings"
	"uk.co.dudmesh.roastlive/pkg/api"
	"uk.co.dudmesh.roastlive/pkg/moderation"
	"uk.co.dudmesh.roastlive/pkg/realtime"
)

var ErrorMissingUser = errors.New("USER_ID is required")

// Session is everything a signed in client needs. It is built once at
// start up, passed to whoever needs it and closed at exit.
type Session struct {
	UserID   model.UserID
	Username string

	API        *api.Client
	Realtime   *realtime.Client
	Moderation *moderation.Service

	Chat          *chat.Service
	Notifications *notify.Service
	Settings      *settings.Service
}

// New signs in with the configured token, or with the user id and password
// when there is none, and connects to the realtime service.
func New(ctx context.Context, config *boot.Config) (*Session, error) {
	if config.Client.UserID == "" {
		return nil, ErrorMissingUser
	}

	client := api.New(config.BaseURL, config.Client.AuthToken)
	if client.Token() == "" {
		if _, err := client.CreateSession(ctx, config.Client.UserID, config.Client.Password); err != nil {
			return nil, fmt.Errorf("signing in: %w", err)
		}
	}

	moderationAPI := client
	if config.ModerationURL != "" {
		moderationAPI = api.New(config.ModerationURL, client.Token())
	}

	rtSettings := realtime.DefaultSettings()
	rtSettings.MinBackoff = config.Client.MinBackoff
	rtSettings.MaxBackoff = config.Client.MaxBackoff

	return Assemble(model.UserID(config.Client.UserID), config.Client.Username, config.SendTimeout,
		client,
		realtime.New(ctx, config.RealtimeURL, client.Token(), rtSettings, log.New("realtime")),
		moderation.New(moderationAPI, log.New("moderation"))), nil
}

// Assemble wires the services of a session from connected clients.
func Assemble(userID model.UserID, username string, sendTimeout time.Duration, client *api.Client, rt *realtime.Client, moderator *moderation.Service) *Session {
	if username == "" {
		username = string(userID)
	}
	s := &Session{
		UserID:        userID,
		Username:      username,
		API:           client,
		Realtime:      rt,
		Moderation:    moderator,
		Chat:          chat.New(userID, username, rt, client, moderator),
		Notifications: notify.New(userID, rt, client),
		Settings:      settings.New(client),
	}
	if sendTimeout > 0 {
		s.Chat.SendTimeout = sendTimeout
	}
	return s
}

func (s *Session) Close() error {
	if s.Realtime == nil {
		return nil
	}
	return s.Realtime.Close()
}
