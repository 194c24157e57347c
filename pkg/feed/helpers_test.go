package feed

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash"
)

type testItem struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Token     string    `json:"token,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Read      bool      `json:"read,omitempty"`
	Gone      bool      `json:"gone,omitempty"`
}

func (i testItem) ItemID() string           { return i.ID }
func (i testItem) ItemCreatedAt() time.Time { return i.CreatedAt }
func (i testItem) CorrelationToken() string { return i.Token }
func (i testItem) Deleted() bool            { return i.Gone }

func (i testItem) Validate() error {
	if i.Author == "" {
		return errors.New("missing author")
	}
	return nil
}

func (i testItem) Fingerprint() uint64 {
	return xxhash.Sum64String(i.Author + "\x00" + i.Content)
}

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return epoch.Add(time.Duration(ms) * time.Millisecond)
}

func decodeTestItem(record json.RawMessage) (testItem, error) {
	var item testItem
	err := json.Unmarshal(record, &item)
	return item, err
}

func record(item testItem) json.RawMessage {
	b, _ := json.Marshal(item)
	return b
}

type fakeHandle struct {
	sub *fakeSubscriber
}

func (h *fakeHandle) Unsubscribe() error {
	h.sub.mu.Lock()
	defer h.sub.mu.Unlock()
	h.sub.unsubscribed++
	return nil
}

// fakeSubscriber keeps the handler so tests can push changes after the
// subscription has been closed, the way a late network event would.
type fakeSubscriber struct {
	mu           sync.Mutex
	err          error
	filter       Filter
	handler      ChangeHandler
	unsubscribed int
}

func (s *fakeSubscriber) Subscribe(ctx context.Context, filter Filter, handler ChangeHandler) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.filter = filter
	s.handler = handler
	return &fakeHandle{sub: s}, nil
}

func (s *fakeSubscriber) push(kind ChangeKind, item testItem) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	handler(Change{Kind: kind, Record: record(item)})
}

func (s *fakeSubscriber) pushChange(change Change) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	handler(change)
}

type fakeWriter struct {
	mu      sync.Mutex
	inserts []interface{}
	updates []map[string]interface{}
	// insert decides the outcome of each Insert; nil accepts with a fresh id.
	insert func(ctx context.Context, record interface{}) (Receipt, error)
	update func(ctx context.Context, id string) error
}

func (w *fakeWriter) Insert(ctx context.Context, table string, rec interface{}) (Receipt, error) {
	w.mu.Lock()
	w.inserts = append(w.inserts, rec)
	n := len(w.inserts)
	w.mu.Unlock()

	if w.insert != nil {
		return w.insert(ctx, rec)
	}
	return Receipt{ID: "srv-" + strconv.Itoa(n), CreatedAt: epoch}, nil
}

func (w *fakeWriter) Update(ctx context.Context, table string, id string, patch map[string]interface{}) error {
	w.mu.Lock()
	w.updates = append(w.updates, patch)
	w.mu.Unlock()

	if w.update != nil {
		return w.update(ctx, id)
	}
	return nil
}

type discardLogger struct {
	mu    sync.Mutex
	warns int
}

func (l *discardLogger) Debugf(format string, args ...interface{}) {}
func (l *discardLogger) Errorf(format string, args ...interface{}) {}
func (l *discardLogger) Warnf(format string, args ...interface{}) {
	l.mu.Lock()
	l.warns++
	l.mu.Unlock()
}

func (l *discardLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.warns
}

func ids(items []testItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}
