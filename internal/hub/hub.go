package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"uk.co.dudmesh.roastlive/pkg/feed"
)

var (
	subscriptionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "roast",
		Name:      "hub_subscriptions",
		Help:      "Number of live change subscriptions.",
	})
	deliveredCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roast",
		Name:      "hub_changes_delivered_total",
		Help:      "Changes delivered to subscribers, by table and kind.",
	}, []string{"table", "kind"})
)

var ErrorClosed = errors.New("hub closed")

// Columns holds the filterable column values of a published row.
type Columns map[string]string

type subscription struct {
	id      uint64
	filter  feed.Filter
	handler feed.ChangeHandler
}

// Hub fans row changes out to the subscriptions whose filter matches. It
// implements feed.Subscriber, so in-process feeds can listen on it directly.
type Hub struct {
	mu     sync.RWMutex
	next   uint64
	subs   map[uint64]*subscription
	closed bool
}

func New() *Hub {
	return &Hub{subs: make(map[uint64]*subscription)}
}

type handle struct {
	hub  *Hub
	id   uint64
	once sync.Once
}

func (h *handle) Unsubscribe() error {
	h.once.Do(func() {
		h.hub.remove(h.id)
	})
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, filter feed.Filter, handler feed.ChangeHandler) (feed.Handle, error) {
	if filter.Table == "" {
		return nil, fmt.Errorf("subscribing: missing table")
	}
	if (filter.MatchColumn == "") != (filter.MatchValue == "") {
		return nil, fmt.Errorf("subscribing: match column and value go together")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrorClosed
	}
	h.next++
	h.subs[h.next] = &subscription{id: h.next, filter: filter, handler: handler}
	subscriptionsGauge.Inc()
	return &handle{hub: h, id: h.next}, nil
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[id]; ok {
		delete(h.subs, id)
		subscriptionsGauge.Dec()
	}
}

func (s *subscription) matches(kind feed.ChangeKind, table string, columns Columns) bool {
	if s.filter.Table != table || !s.filter.Accepts(kind) {
		return false
	}
	if s.filter.MatchColumn == "" {
		return true
	}
	value, ok := columns[s.filter.MatchColumn]
	return ok && value == s.filter.MatchValue
}

// Publish delivers record to every matching subscription and returns how
// many received it. Handlers run on the caller's goroutine.
func (h *Hub) Publish(kind feed.ChangeKind, table string, columns Columns, record interface{}) (int, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return 0, fmt.Errorf("marshalling record: %w", err)
	}

	h.mu.RLock()
	matched := make([]*subscription, 0, 4)
	for _, sub := range h.subs {
		if sub.matches(kind, table, columns) {
			matched = append(matched, sub)
		}
	}
	h.mu.RUnlock()

	change := feed.Change{Kind: kind, Record: data}
	for _, sub := range matched {
		sub.handler(change)
	}
	deliveredCounter.WithLabelValues(table, string(kind)).Add(float64(len(matched)))
	return len(matched), nil
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close tells every subscription that the hub went away and drops them.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[uint64]*subscription)
	h.closed = true
	subscriptionsGauge.Sub(float64(len(subs)))
	h.mu.Unlock()

	for _, sub := range subs {
		sub.handler(feed.Change{Kind: feed.ChangeError, Err: ErrorClosed})
	}
}
