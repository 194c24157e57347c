package store

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"uk.co.dudmesh.roastlive/internal/model"
)

var ErrorInvalidPatch = errors.New("invalid patch")

// Store persists the rows behind every feed, the user settings and the
// login credentials.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open opens roast.db under dataDir, creating it on first use.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return open("file:" + path.Join(dataDir, "roast.db") + "?_journal_mode=WAL&_busy_timeout=5000")
}

// OpenMemory opens a shared in-memory database. Stores opened with the same
// name see the same rows until the last one is closed.
func OpenMemory(name string) (*Store, error) {
	return open("file:" + name + ".db?mode=memory&cache=shared")
}

func open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// sqlite serialises writers anyway and shared cache tables lock per
	// connection
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

func messageTable(table model.Table, channelColumn string) string {
	return fmt.Sprintf(`create table if not exists %s (
		id text not null primary key,
		%s text not null,
		author_id text not null,
		username text not null default '',
		content text not null,
		type text not null default 'message',
		is_pinned boolean not null default 0,
		is_system boolean not null default 0,
		is_deleted boolean not null default 0,
		client_token text not null default '',
		created_at datetime not null
	)`, table, channelColumn)
}

func (s *Store) createTables() error {
	statements := map[string]string{
		"stream_messages": messageTable(model.TableStreamMessages, "stream_id"),
		"stream_messages index": `create index if not exists stream_messages_channel
			on stream_messages (stream_id, created_at, id)`,
		"dm_messages": messageTable(model.TableDirectMessages, "conversation_id"),
		"dm_messages index": `create index if not exists dm_messages_channel
			on dm_messages (conversation_id, created_at, id)`,
		"notifications": `create table if not exists notifications (
			id text not null primary key,
			user_id text not null,
			type text not null,
			title text not null,
			body text not null default '',
			payload blob not null default '{}',
			is_read boolean not null default 0,
			client_token text not null default '',
			created_at datetime not null
		)`,
		"notifications index": `create index if not exists notifications_user
			on notifications (user_id, created_at, id)`,
		"user_settings": settingsTable(),
		"credentials": `create table if not exists credentials (
			user_id text not null primary key,
			password_hash text not null,
			created_at datetime not null
		)`,
	}

	// tables before their indexes
	names := make([]string, 0, len(statements))
	for name := range statements {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := s.db.Exec(statements[name]); err != nil {
			return fmt.Errorf("creating %s: %w", name, err)
		}
	}
	return nil
}

// patchColumns lists the columns a client may change, per table. All of them
// are flags.
var patchColumns = map[model.Table]map[string]bool{
	model.TableStreamMessages: {"is_pinned": true, "is_deleted": true},
	model.TableDirectMessages: {"is_deleted": true},
	model.TableNotifications:  {"is_read": true},
}

func buildPatch(table model.Table, id string, patch map[string]interface{}) (string, []interface{}, error) {
	allowed, ok := patchColumns[table]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", model.ErrorUnknownTable, table)
	}
	if len(patch) == 0 {
		return "", nil, fmt.Errorf("%w: no columns", ErrorInvalidPatch)
	}

	columns := make([]string, 0, len(patch))
	for column, value := range patch {
		if !allowed[column] {
			return "", nil, fmt.Errorf("%w: column %s cannot be changed", ErrorInvalidPatch, column)
		}
		if _, ok := value.(bool); !ok {
			return "", nil, fmt.Errorf("%w: column %s must be a boolean", ErrorInvalidPatch, column)
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)

	sets := make([]string, len(columns))
	args := make([]interface{}, 0, len(columns)+1)
	for i, column := range columns {
		sets[i] = column + " = ?"
		args = append(args, patch[column])
	}
	args = append(args, id)
	return fmt.Sprintf("update %s set %s where id = ?", table, strings.Join(sets, ", ")), args, nil
}
