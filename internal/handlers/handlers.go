package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"uk.co.dudmesh.roastlive/internal/auth"
	"uk.co.dudmesh.roastlive/internal/hub"
	"uk.co.dudmesh.roastlive/internal/model"
	"uk.co.dudmesh.roastlive/internal/store"
	"uk.co.dudmesh.roastlive/pkg/feed"
	"uk.co.dudmesh.roastlive/pkg/moderation"
)

type MessageStore interface {
	InsertMessage(ctx context.Context, table model.Table, m *model.Message) error
	GetMessage(ctx context.Context, table model.Table, id string) (*model.Message, error)
	PatchMessage(ctx context.Context, table model.Table, id string, patch map[string]interface{}) (*model.Message, error)
	ListMessages(ctx context.Context, key model.ChannelKey, limit int, descending bool) ([]model.Message, error)
}

type NotificationStore interface {
	InsertNotification(ctx context.Context, n *model.Notification) error
	GetNotification(ctx context.Context, id string) (*model.Notification, error)
	PatchNotification(ctx context.Context, id string, patch map[string]interface{}) (*model.Notification, error)
	ListNotifications(ctx context.Context, userID model.UserID, limit int, descending bool) ([]model.Notification, error)
	MarkAllRead(ctx context.Context, userID model.UserID) ([]model.Notification, error)
	UnreadCount(ctx context.Context, userID model.UserID) (int, error)
}

type SettingsStore interface {
	GetSettings(ctx context.Context, userID model.UserID) (*model.Settings, error)
	InitializeSettings(ctx context.Context, userID model.UserID) (*model.Settings, bool, error)
	UpdateSettings(ctx context.Context, userID model.UserID, patch *model.SettingsPatch) (*model.Settings, error)
}

type Store interface {
	MessageStore
	NotificationStore
	SettingsStore
}

type Publisher interface {
	Publish(kind feed.ChangeKind, table string, columns hub.Columns, record interface{}) (int, error)
}

type Authenticator interface {
	Authenticate(ctx context.Context, userID model.UserID, password string) error
}

type TokenIssuer interface {
	auth.Verifier
	Issue(userID model.UserID) (*model.Session, error)
	KeySet() (*auth.KeySet, error)
}

type Scorer interface {
	Score(text string) moderation.Result
}

// httpError maps domain errors onto HTTP statuses. Anything unknown is left
// to echo, which answers 500.
func httpError(err error) error {
	var validation *feed.ValidationError
	var httpErr *echo.HTTPError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &httpErr):
		return err
	case errors.As(err, &validation):
		return echo.NewHTTPError(http.StatusBadRequest, validation.Error()).SetInternal(err)
	case errors.Is(err, model.ErrorNotFound), errors.Is(err, model.ErrorUnknownTable):
		return echo.NewHTTPError(http.StatusNotFound, err.Error()).SetInternal(err)
	case errors.Is(err, model.ErrorForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error()).SetInternal(err)
	case errors.Is(err, auth.ErrorInvalidPassword):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error()).SetInternal(err)
	case errors.Is(err, model.ErrorEmptyContent),
		errors.Is(err, model.ErrorContentTooLong),
		errors.Is(err, model.ErrorInvalidChannel),
		errors.Is(err, model.ErrorUnknownNotificationType),
		errors.Is(err, store.ErrorInvalidPatch):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	return err
}

// bindBody decodes only the request body. Path parameters such as :id must
// not leak into records or patches.
func bindBody(c echo.Context, i interface{}) error {
	return (&echo.DefaultBinder{}).BindBody(c, i)
}

func Health() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}
