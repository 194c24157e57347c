package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"uk.co.dudmesh.roastlive/internal/model"
)

func (s *Store) InsertNotification(ctx context.Context, n *model.Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}
	if n.Title == "" {
		return fmt.Errorf("%w: title", model.ErrorEmptyContent)
	}
	if len(n.Payload) == 0 || string(n.Payload) == "null" {
		n.Payload = json.RawMessage("{}")
	}
	n.CreatedAt = s.timestamp()
	n.ID = model.NewRecordID(n.CreatedAt)

	_, err := s.db.NamedExecContext(ctx, `insert into notifications
		(id, user_id, type, title, body, payload, is_read, client_token, created_at)
		values(:id, :user_id, :type, :title, :body, :payload, :is_read, :client_token, :created_at)`, n)
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (*model.Notification, error) {
	n := &model.Notification{}
	err := s.db.GetContext(ctx, n, "select * from notifications where id = ?", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrorNotFound
		}
		return nil, fmt.Errorf("fetching notification: %w", err)
	}
	return n, nil
}

func (s *Store) PatchNotification(ctx context.Context, id string, patch map[string]interface{}) (*model.Notification, error) {
	if err := s.patch(ctx, model.TableNotifications, id, patch); err != nil {
		return nil, err
	}
	return s.GetNotification(ctx, id)
}

func (s *Store) ListNotifications(ctx context.Context, userID model.UserID, limit int, descending bool) ([]model.Notification, error) {
	query, args, err := listQuery(model.NotificationChannel(userID), limit, descending)
	if err != nil {
		return nil, err
	}
	notifications := []model.Notification{}
	if err := s.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return notifications, nil
}

// MarkAllRead flags every unread notification of a user as read and returns
// the rows it changed.
func (s *Store) MarkAllRead(ctx context.Context, userID model.UserID) ([]model.Notification, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	unread := []model.Notification{}
	err = tx.SelectContext(ctx, &unread,
		"select * from notifications where user_id = ? and is_read = 0 order by created_at, id", userID)
	if err != nil {
		return nil, fmt.Errorf("listing unread notifications: %w", err)
	}
	if len(unread) == 0 {
		return unread, nil
	}

	_, err = tx.ExecContext(ctx, "update notifications set is_read = 1 where user_id = ? and is_read = 0", userID)
	if err != nil {
		return nil, fmt.Errorf("marking notifications read: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing: %w", err)
	}

	for i := range unread {
		unread[i].IsRead = true
	}
	return unread, nil
}

func (s *Store) UnreadCount(ctx context.Context, userID model.UserID) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, "select count(*) from notifications where user_id = ? and is_read = 0", userID)
	if err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return count, nil
}
