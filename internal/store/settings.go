package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"uk.co.dudmesh.roastlive/internal/model"
)

var settingsColumns = columnsOf(reflect.TypeOf(model.Settings{}))

func columnsOf(t reflect.Type) []string {
	columns := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if column := t.Field(i).Tag.Get("db"); column != "" {
			columns = append(columns, column)
		}
	}
	return columns
}

func settingsTable() string {
	t := reflect.TypeOf(model.Settings{})
	definitions := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		column := field.Tag.Get("db")
		if column == "user_id" {
			definitions = append(definitions, "user_id text not null primary key")
			continue
		}
		switch {
		case field.Type == reflect.TypeOf(time.Time{}):
			definitions = append(definitions, column+" datetime not null")
		case field.Type.Kind() == reflect.Bool:
			definitions = append(definitions, column+" boolean not null default 0")
		case field.Type.Kind() == reflect.Int:
			definitions = append(definitions, column+" integer not null default 0")
		default:
			definitions = append(definitions, column+" text not null default ''")
		}
	}
	return "create table if not exists user_settings (\n\t" + strings.Join(definitions, ",\n\t") + "\n)"
}

func (s *Store) GetSettings(ctx context.Context, userID model.UserID) (*model.Settings, error) {
	settings := &model.Settings{}
	err := s.db.GetContext(ctx, settings, "select * from user_settings where user_id = ?", userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrorNotFound
		}
		return nil, fmt.Errorf("fetching settings: %w", err)
	}
	return settings, nil
}

// InitializeSettings writes the default settings for a user unless a row
// already exists, and returns the stored row either way.
func (s *Store) InitializeSettings(ctx context.Context, userID model.UserID) (*model.Settings, bool, error) {
	settings := model.DefaultSettings(userID)
	settings.UpdatedAt = s.timestamp()

	placeholders := make([]string, len(settingsColumns))
	for i, column := range settingsColumns {
		placeholders[i] = ":" + column
	}
	res, err := s.db.NamedExecContext(ctx, fmt.Sprintf("insert or ignore into user_settings (%s) values(%s)",
		strings.Join(settingsColumns, ", "), strings.Join(placeholders, ", ")), &settings)
	if err != nil {
		return nil, false, fmt.Errorf("inserting settings: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("getting rows affected: %w", err)
	}

	stored, err := s.GetSettings(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return stored, rows == 1, nil
}

// UpdateSettings applies the set fields of patch and returns the new row.
func (s *Store) UpdateSettings(ctx context.Context, userID model.UserID, patch *model.SettingsPatch) (*model.Settings, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	columns := patch.Columns()
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: no columns", ErrorInvalidPatch)
	}

	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)

	sets := make([]string, 0, len(names)+1)
	args := make([]interface{}, 0, len(names)+2)
	for _, name := range names {
		sets = append(sets, name+" = ?")
		args = append(args, columns[name])
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.timestamp(), userID)

	res, err := s.db.ExecContext(ctx, "update user_settings set "+strings.Join(sets, ", ")+" where user_id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("updating settings: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return nil, model.ErrorNotFound
	}
	return s.GetSettings(ctx, userID)
}
