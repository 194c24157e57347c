package feed

import (
	"context"
	"encoding/json"
	"time"
)

// Item is a single entry of a feed, e.g. a chat message or a notification.
type Item interface {
	ItemID() string
	ItemCreatedAt() time.Time
	// CorrelationToken is the client generated token echoed back by the
	// server for the record created by a local send. Empty when unknown.
	CorrelationToken() string
	Validate() error
}

// Fingerprinter is implemented by items that can be matched to a provisional
// send by content when the server echo carries no correlation token.
type Fingerprinter interface {
	Fingerprint() uint64
}

// Tombstoner is implemented by items that can be soft deleted by an update.
type Tombstoner interface {
	Deleted() bool
}

type EventKind int

const (
	EventInsert EventKind = iota
	EventUpdate
	EventError
	EventReconnected
)

func (k EventKind) String() string {
	switch k {
	case EventInsert:
		return "insert"
	case EventUpdate:
		return "update"
	case EventError:
		return "error"
	case EventReconnected:
		return "reconnected"
	}
	return "unknown"
}

type Event[T Item] struct {
	Kind EventKind
	Item T
	Err  error
}

const FilterAllEvents = "*"

// Filter scopes a subscription to the rows of one table where
// MatchColumn equals MatchValue.
type Filter struct {
	Table       string `json:"table"`
	Event       string `json:"event"`
	MatchColumn string `json:"matchColumn"`
	MatchValue  string `json:"matchValue"`
}

func (f Filter) Accepts(kind ChangeKind) bool {
	return f.Event == "" || f.Event == FilterAllEvents || f.Event == string(kind)
}

type ChangeKind string

const (
	ChangeInsert      ChangeKind = "INSERT"
	ChangeUpdate      ChangeKind = "UPDATE"
	ChangeError       ChangeKind = "ERROR"
	ChangeReconnected ChangeKind = "RECONNECTED"
)

// Change is a raw event as delivered by the subscription service.
type Change struct {
	Kind   ChangeKind
	Record json.RawMessage
	Err    error
}

type ChangeHandler func(Change)

type Handle interface {
	Unsubscribe() error
}

// Subscriber is the managed pub/sub service a feed listens on.
type Subscriber interface {
	Subscribe(ctx context.Context, filter Filter, handler ChangeHandler) (Handle, error)
}

type Receipt struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// WriteService persists records on the backend.
type WriteService interface {
	Insert(ctx context.Context, table string, record interface{}) (Receipt, error)
	Update(ctx context.Context, table string, id string, patch map[string]interface{}) error
}

// Logger is satisfied by both gommon's *log.Logger and echo.Logger.
type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}
