package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"uk.co.dudmesh.roastlive/internal/model"
)

var messageInserts = map[model.Table]string{
	model.TableStreamMessages: `insert into stream_messages
		(id, stream_id, author_id, username, content, type, is_pinned, is_system, is_deleted, client_token, created_at)
		values(:id, :stream_id, :author_id, :username, :content, :type, :is_pinned, :is_system, :is_deleted, :client_token, :created_at)`,
	model.TableDirectMessages: `insert into dm_messages
		(id, conversation_id, author_id, username, content, type, is_pinned, is_system, is_deleted, client_token, created_at)
		values(:id, :conversation_id, :author_id, :username, :content, :type, :is_pinned, :is_system, :is_deleted, :client_token, :created_at)`,
}

// InsertMessage assigns the id and creation time of m and writes it.
func (s *Store) InsertMessage(ctx context.Context, table model.Table, m *model.Message) error {
	query, ok := messageInserts[table]
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrorUnknownTable, table)
	}
	if (table == model.TableStreamMessages) != (m.StreamID != "") {
		return fmt.Errorf("%w: message does not belong in %s", model.ErrorInvalidChannel, table)
	}
	if err := m.ValidateNew(); err != nil {
		return err
	}

	m.CreatedAt = s.timestamp()
	m.ID = model.NewRecordID(m.CreatedAt)
	if m.Type == "" {
		m.Type = model.MessageTypeMessage
	}

	res, err := s.db.NamedExecContext(ctx, query, m)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	if rows, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	} else if rows != 1 {
		return fmt.Errorf("expected 1 row to be affected, got %d", rows)
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, table model.Table, id string) (*model.Message, error) {
	if _, ok := messageInserts[table]; !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrorUnknownTable, table)
	}
	m := &model.Message{}
	err := s.db.GetContext(ctx, m, fmt.Sprintf("select * from %s where id = ?", table), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrorNotFound
		}
		return nil, fmt.Errorf("fetching message: %w", err)
	}
	return m, nil
}

// PatchMessage changes the flags named in patch and returns the updated row.
func (s *Store) PatchMessage(ctx context.Context, table model.Table, id string, patch map[string]interface{}) (*model.Message, error) {
	if _, ok := messageInserts[table]; !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrorUnknownTable, table)
	}
	if err := s.patch(ctx, table, id, patch); err != nil {
		return nil, err
	}
	return s.GetMessage(ctx, table, id)
}

// ListMessages returns the latest limit messages of a stream or conversation
// channel, oldest first unless descending is set.
func (s *Store) ListMessages(ctx context.Context, key model.ChannelKey, limit int, descending bool) ([]model.Message, error) {
	query, args, err := listQuery(key, limit, descending)
	if err != nil {
		return nil, err
	}
	if key.Table() == model.TableNotifications {
		return nil, fmt.Errorf("%w: %s is not a message channel", model.ErrorInvalidChannel, key)
	}

	messages := []model.Message{}
	if err := s.db.SelectContext(ctx, &messages, query, args...); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return messages, nil
}

func (s *Store) patch(ctx context.Context, table model.Table, id string, patch map[string]interface{}) error {
	query, args, err := buildPatch(table, id, patch)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating %s: %w", table, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return model.ErrorNotFound
	}
	return nil
}

// listQuery selects the newest limit rows of a channel and puts them in the
// requested order.
func listQuery(key model.ChannelKey, limit int, descending bool) (string, []interface{}, error) {
	filter, err := key.Filter()
	if err != nil {
		return "", nil, err
	}
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}

	latest := fmt.Sprintf("select * from %s where %s = ? order by created_at desc, id desc limit ?",
		filter.Table, filter.MatchColumn)
	if descending {
		return latest, []interface{}{filter.MatchValue, limit}, nil
	}
	return "select * from (" + latest + ") order by created_at, id", []interface{}{filter.MatchValue, limit}, nil
}

const MaxListLimit = 500
