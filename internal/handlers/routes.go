package handlers

import (
	"github.com/labstack/echo/v4"
	"uk.co.dudmesh.roastlive/internal/auth"
	"uk.co.dudmesh.roastlive/pkg/feed"
)

type Hub interface {
	feed.Subscriber
	Publisher
}

type Deps struct {
	Store         Store
	Hub           Hub
	Authenticator Authenticator
	Tokens        TokenIssuer
	Scorer        Scorer
	Realtime      *RealtimeSettings
}

func Register(e *echo.Echo, deps *Deps) {
	realtimeSettings := deps.Realtime
	if realtimeSettings == nil {
		realtimeSettings = DefaultRealtimeSettings()
	}

	e.GET("/health", Health())
	e.POST("/auth/session", CreateSession(deps.Authenticator, deps.Tokens, deps.Store))
	e.GET("/auth/jwks", KeySet(deps.Tokens))

	g := e.Group("", auth.Middleware(deps.Tokens))

	g.POST("/rest/notifications/read-all", MarkAllRead(deps.Store, deps.Hub))
	g.GET("/rest/notifications/unread-count", UnreadCount(deps.Store))
	g.POST("/rest/:table", Insert(deps.Store, deps.Hub))
	g.GET("/rest/:table", List(deps.Store))
	g.PATCH("/rest/:table/:id", Patch(deps.Store, deps.Hub))

	g.GET("/settings/:userId", GetSettings(deps.Store))
	g.POST("/settings/:userId", InitializeSettings(deps.Store))
	g.PATCH("/settings/:userId", UpdateSettings(deps.Store))

	g.POST("/api/moderation/message", ModerateMessage(deps.Scorer))
	g.POST("/api/moderation/profile", ModerateProfile(deps.Scorer))

	g.GET("/realtime", Realtime(deps.Hub, realtimeSettings))
}
