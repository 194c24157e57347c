package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/labstack/gommon/log"
	"uk.co.dudmesh.roastlive/internal/model"
	"uk.co.dudmesh.roastlive/pkg/api"
	"uk.co.dudmesh.roastlive/pkg/feed"
)

const HistorySize = 50

type API interface {
	feed.WriteService
	List(ctx context.Context, table string, q api.Query, out interface{}) error
	Get(ctx context.Context, path string, result interface{}) error
	Post(ctx context.Context, path string, body interface{}, result interface{}) error
}

type Service struct {
	userID     model.UserID
	subscriber feed.Subscriber
	api        API
	logger     feed.Logger
}

func New(userID model.UserID, subscriber feed.Subscriber, api API) *Service {
	return &Service{
		userID:     userID,
		subscriber: subscriber,
		api:        api,
		logger:     log.New("notify"),
	}
}

// Inbox is the live notification feed of the session user.
type Inbox struct {
	*feed.Feed[model.Notification]
	api API
}

func (s *Service) Open(ctx context.Context, onChange func()) (*Inbox, error) {
	key := model.NotificationChannel(s.userID)
	filter, err := key.Filter()
	if err != nil {
		return nil, err
	}

	inbox := &Inbox{api: s.api}
	inbox.Feed = feed.New[model.Notification](s.subscriber, s.api, feed.Options[model.Notification]{
		Channel:  string(key),
		Filter:   filter,
		Table:    string(model.TableNotifications),
		Decode:   Decode,
		Logger:   s.logger,
		OnChange: onChange,
		Snapshot: func(ctx context.Context) ([]model.Notification, error) {
			notifications := []model.Notification{}
			q := api.Query{Column: filter.MatchColumn, Value: filter.MatchValue, Limit: HistorySize, Descending: true}
			if err := s.api.List(ctx, string(model.TableNotifications), q, &notifications); err != nil {
				return nil, fmt.Errorf("loading notifications: %w", err)
			}
			return notifications, nil
		},
	})

	if err := inbox.Open(ctx); err != nil {
		return nil, err
	}
	return inbox, nil
}

func Decode(record json.RawMessage) (model.Notification, error) {
	var n model.Notification
	if err := json.Unmarshal(record, &n); err != nil {
		return model.Notification{}, fmt.Errorf("decoding notification: %w", err)
	}
	return n, nil
}

// Notifications returns the feed newest first.
func (i *Inbox) Notifications() []model.Notification {
	notifications := i.ListOrdered()
	for l, r := 0, len(notifications)-1; l < r; l, r = l+1, r-1 {
		notifications[l], notifications[r] = notifications[r], notifications[l]
	}
	return notifications
}

// UnreadCount counts the unread notifications held locally.
func (i *Inbox) UnreadCount() int {
	count := 0
	for _, n := range i.ListOrdered() {
		if !n.IsRead {
			count++
		}
	}
	return count
}

// RemoteUnreadCount asks the backend, which also counts notifications older
// than the loaded history.
func (i *Inbox) RemoteUnreadCount(ctx context.Context) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	if err := i.api.Get(ctx, "/rest/notifications/unread-count", &resp); err != nil {
		return 0, fmt.Errorf("fetching unread count: %w", err)
	}
	return resp.Count, nil
}

func markRead(n model.Notification) model.Notification {
	n.IsRead = true
	return n
}

func (i *Inbox) MarkRead(ctx context.Context, id string) error {
	if n, ok := i.Get(id); ok && n.IsRead {
		return nil
	}
	return i.Update(ctx, id, map[string]interface{}{"is_read": true}, markRead)
}

func (i *Inbox) MarkAllRead(ctx context.Context) error {
	unread := func(n model.Notification) bool { return !n.IsRead }
	return i.UpdateWhere(ctx, unread, markRead, func(ctx context.Context) error {
		if err := i.api.Post(ctx, "/rest/notifications/read-all", struct{}{}, nil); err != nil {
			return fmt.Errorf("marking all read: %w", err)
		}
		return nil
	})
}
