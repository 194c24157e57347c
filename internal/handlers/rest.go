package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"uk.co.dudmesh.roastlive/internal/auth"
	"uk.co.dudmesh.roastlive/internal/hub"
	"uk.co.dudmesh.roastlive/internal/model"
	"uk.co.dudmesh.roastlive/pkg/feed"
)

const defaultListLimit = 100

// tableStrategy holds the REST operations of one table.
type tableStrategy struct {
	insert func(c echo.Context, userID model.UserID) (feed.Receipt, error)
	patch  func(c echo.Context, userID model.UserID, id string, patch map[string]interface{}) error
	list   func(c echo.Context, userID model.UserID, value string, limit int, descending bool) (interface{}, error)
	// column is the only column a list may filter on.
	column string
}

type rest struct {
	store     Store
	publisher Publisher
}

func messageColumns(m *model.Message) hub.Columns {
	if m.StreamID != "" {
		return hub.Columns{"stream_id": m.StreamID}
	}
	return hub.Columns{"conversation_id": m.ConversationID}
}

func notificationColumns(n *model.Notification) hub.Columns {
	return hub.Columns{"user_id": string(n.RecipientID)}
}

func (r *rest) publish(kind feed.ChangeKind, table model.Table, columns hub.Columns, record interface{}) {
	if _, err := r.publisher.Publish(kind, string(table), columns, record); err != nil {
		log.Errorf("publishing %s %s: %+v", table, kind, err)
	}
}

func (r *rest) messageStrategy(table model.Table, column string) tableStrategy {
	return tableStrategy{
		column: column,
		insert: func(c echo.Context, userID model.UserID) (feed.Receipt, error) {
			m := &model.Message{}
			if err := bindBody(c, m); err != nil {
				return feed.Receipt{}, err
			}
			m.ID = ""
			m.AuthorID = userID
			m.IsPinned = false
			m.IsDeleted = false
			m.IsSystem = false
			if err := m.Validate(); err != nil {
				return feed.Receipt{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			if err := r.store.InsertMessage(c.Request().Context(), table, m); err != nil {
				return feed.Receipt{}, err
			}
			r.publish(feed.ChangeInsert, table, messageColumns(m), m)
			return feed.Receipt{ID: m.ID, CreatedAt: m.CreatedAt}, nil
		},
		patch: func(c echo.Context, userID model.UserID, id string, patch map[string]interface{}) error {
			ctx := c.Request().Context()
			m, err := r.store.GetMessage(ctx, table, id)
			if err != nil {
				return err
			}
			if _, deleting := patch["is_deleted"]; deleting && m.AuthorID != userID {
				return model.ErrorForbidden
			}
			m, err = r.store.PatchMessage(ctx, table, id, patch)
			if err != nil {
				return err
			}
			r.publish(feed.ChangeUpdate, table, messageColumns(m), m)
			return nil
		},
		list: func(c echo.Context, userID model.UserID, value string, limit int, descending bool) (interface{}, error) {
			key := model.StreamChannel(value)
			if table == model.TableDirectMessages {
				key = model.ConversationChannel(value)
			}
			return r.store.ListMessages(c.Request().Context(), key, limit, descending)
		},
	}
}

func (r *rest) notificationStrategy() tableStrategy {
	return tableStrategy{
		column: "user_id",
		insert: func(c echo.Context, userID model.UserID) (feed.Receipt, error) {
			n := &model.Notification{}
			if err := bindBody(c, n); err != nil {
				return feed.Receipt{}, err
			}
			n.ID = ""
			n.IsRead = false
			if err := n.Validate(); err != nil {
				return feed.Receipt{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			if err := r.store.InsertNotification(c.Request().Context(), n); err != nil {
				return feed.Receipt{}, err
			}
			r.publish(feed.ChangeInsert, model.TableNotifications, notificationColumns(n), n)
			return feed.Receipt{ID: n.ID, CreatedAt: n.CreatedAt}, nil
		},
		patch: func(c echo.Context, userID model.UserID, id string, patch map[string]interface{}) error {
			ctx := c.Request().Context()
			n, err := r.store.GetNotification(ctx, id)
			if err != nil {
				return err
			}
			if n.RecipientID != userID {
				return model.ErrorForbidden
			}
			n, err = r.store.PatchNotification(ctx, id, patch)
			if err != nil {
				return err
			}
			r.publish(feed.ChangeUpdate, model.TableNotifications, notificationColumns(n), n)
			return nil
		},
		list: func(c echo.Context, userID model.UserID, value string, limit int, descending bool) (interface{}, error) {
			if model.UserID(value) != userID {
				return nil, model.ErrorForbidden
			}
			return r.store.ListNotifications(c.Request().Context(), userID, limit, descending)
		},
	}
}

func (r *rest) strategies() map[model.Table]tableStrategy {
	return map[model.Table]tableStrategy{
		model.TableStreamMessages: r.messageStrategy(model.TableStreamMessages, "stream_id"),
		model.TableDirectMessages: r.messageStrategy(model.TableDirectMessages, "conversation_id"),
		model.TableNotifications:  r.notificationStrategy(),
	}
}

func strategyFor(strategies map[model.Table]tableStrategy, c echo.Context) (tableStrategy, error) {
	strategy, ok := strategies[model.Table(c.Param("table"))]
	if !ok {
		return tableStrategy{}, model.ErrorUnknownTable
	}
	return strategy, nil
}

func Insert(store Store, publisher Publisher) echo.HandlerFunc {
	strategies := (&rest{store, publisher}).strategies()
	return func(c echo.Context) error {
		strategy, err := strategyFor(strategies, c)
		if err != nil {
			return httpError(err)
		}
		receipt, err := strategy.insert(c, auth.UserID(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusCreated, receipt)
	}
}

func Patch(store Store, publisher Publisher) echo.HandlerFunc {
	strategies := (&rest{store, publisher}).strategies()
	return func(c echo.Context) error {
		strategy, err := strategyFor(strategies, c)
		if err != nil {
			return httpError(err)
		}
		patch := map[string]interface{}{}
		if err := bindBody(c, &patch); err != nil {
			return err
		}
		if err := strategy.patch(c, auth.UserID(c), c.Param("id"), patch); err != nil {
			return httpError(err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// List answers GET /rest/:table?column=&value=&limit=&order=desc with the
// newest rows of one channel.
func List(store Store) echo.HandlerFunc {
	strategies := (&rest{store: store}).strategies()
	return func(c echo.Context) error {
		strategy, err := strategyFor(strategies, c)
		if err != nil {
			return httpError(err)
		}
		if c.QueryParam("column") != strategy.column || c.QueryParam("value") == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "filter on "+strategy.column+" is required")
		}

		limit := defaultListLimit
		if raw := c.QueryParam("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit <= 0 {
				return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive number")
			}
		}
		rows, err := strategy.list(c, auth.UserID(c), c.QueryParam("value"), limit, c.QueryParam("order") == "desc")
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, rows)
	}
}

func MarkAllRead(store NotificationStore, publisher Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := auth.UserID(c)
		changed, err := store.MarkAllRead(c.Request().Context(), userID)
		if err != nil {
			return httpError(err)
		}
		for i := range changed {
			if _, err := publisher.Publish(feed.ChangeUpdate, string(model.TableNotifications), notificationColumns(&changed[i]), &changed[i]); err != nil {
				log.Errorf("publishing read notification: %+v", err)
			}
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func UnreadCount(store NotificationStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		count, err := store.UnreadCount(c.Request().Context(), auth.UserID(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, map[string]int{"count": count})
	}
}
