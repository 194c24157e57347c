package feed

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
)

const (
	provisionalPrefix  = "~"
	DefaultMatchWindow = 30 * time.Second
)

// ProvisionalKey is the store key of an unconfirmed local send.
func ProvisionalKey(token string) string {
	return provisionalPrefix + token
}

type pending struct {
	key            string
	at             time.Time
	serverID       string
	fingerprint    uint64
	hasFingerprint bool
}

// Reconciler merges remote change events and optimistic local writes into a
// Store. All mutations are serialized by the reconciler, and once it is
// closed every mutation is a no-op.
type Reconciler[T Item] struct {
	mu      sync.Mutex
	channel string
	store   *Store[T]
	pending map[string]*pending
	// hidden holds ids removed by an optimistic soft delete that the
	// server has not confirmed yet.
	hidden map[string]bool
	// touched holds the revision of the last event or local change per id.
	touched     map[string]uint64
	revision    uint64
	matchWindow time.Duration
	logger      Logger
	closed      bool
}

func NewReconciler[T Item](channel string, store *Store[T], matchWindow time.Duration, logger Logger) *Reconciler[T] {
	if matchWindow <= 0 {
		matchWindow = DefaultMatchWindow
	}
	if logger == nil {
		logger = log.New("feed")
	}
	return &Reconciler[T]{
		channel:     channel,
		store:       store,
		pending:     make(map[string]*pending),
		hidden:      make(map[string]bool),
		touched:     make(map[string]uint64),
		matchWindow: matchWindow,
		logger:      logger,
	}
}

func (r *Reconciler[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *Reconciler[T]) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Pending returns the number of sends still awaiting confirmation.
func (r *Reconciler[T]) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// AddProvisional stores an optimistic item. Its id must be the
// ProvisionalKey of its correlation token.
func (r *Reconciler[T]) AddProvisional(item T) error {
	token := item.CorrelationToken()
	if token == "" {
		return ErrorMissingToken
	}
	if item.ItemID() != ProvisionalKey(token) {
		return fmt.Errorf("provisional item id %q does not match token %q", item.ItemID(), token)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrorClosed
	}

	p := &pending{key: item.ItemID(), at: item.ItemCreatedAt()}
	if f, ok := any(item).(Fingerprinter); ok {
		p.fingerprint = f.Fingerprint()
		p.hasFingerprint = true
	}
	r.pending[token] = p
	r.store.Upsert(item)
	return nil
}

// Acknowledge records the server id assigned to a pending send so its echo
// can be matched even when the echo carries no correlation token.
func (r *Reconciler[T]) Acknowledge(token string, serverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pending[token]; ok {
		p.serverID = serverID
	}
}

// Rollback removes the provisional item of a failed send. It reports false
// when the send was already confirmed or is unknown.
func (r *Reconciler[T]) Rollback(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[token]
	if !ok {
		return false
	}
	delete(r.pending, token)
	r.store.Remove(p.key)
	return true
}

// Apply merges one remote event. Malformed items are dropped, logged and
// reported as a *MalformedEventError; the caller is expected to carry on.
func (r *Reconciler[T]) Apply(ev Event[T]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrorClosed
	}

	switch ev.Kind {
	case EventInsert:
		if err := r.insert(ev.Item); err != nil {
			return err
		}
	case EventUpdate:
		if err := r.update(ev.Item); err != nil {
			return err
		}
	default:
		return nil
	}
	r.touch(ev.Item.ItemID())
	return nil
}

func (r *Reconciler[T]) touch(id string) {
	r.revision++
	r.touched[id] = r.revision
}

func (r *Reconciler[T]) insert(item T) error {
	if err := r.check(item); err != nil {
		return err
	}

	if token, p := r.match(item); p != nil {
		delete(r.pending, token)
		r.store.Remove(p.key)
	}
	delete(r.hidden, item.ItemID())

	if isDeleted(item) {
		r.store.Remove(item.ItemID())
		return nil
	}
	r.store.Upsert(item)
	return nil
}

func (r *Reconciler[T]) update(item T) error {
	if err := r.check(item); err != nil {
		return err
	}
	delete(r.hidden, item.ItemID())

	if isDeleted(item) {
		r.store.Remove(item.ItemID())
		return nil
	}
	r.store.Upsert(item)
	return nil
}

// Modify replaces the stored item with fn applied to it and returns the
// previous value, for optimistic updates. A result that is soft deleted is
// removed from the store.
func (r *Reconciler[T]) Modify(id string, fn func(T) T) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.closed {
		return zero, false
	}
	prev, ok := r.store.Get(id)
	if !ok {
		return zero, false
	}
	next := fn(prev)
	r.touch(id)
	if isDeleted(next) {
		r.store.Remove(id)
		r.hidden[id] = true
		return prev, true
	}
	r.store.Upsert(next)
	return prev, true
}

// Restore puts back a value returned by Modify, unless a remote event for
// the item arrived in between.
func (r *Reconciler[T]) Restore(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	id := item.ItemID()
	if _, ok := r.store.Get(id); ok || r.hidden[id] {
		delete(r.hidden, id)
		r.touch(id)
		r.store.Upsert(item)
	}
}

// Merge applies a server snapshot on top of the current state. Snapshot
// rows confirm matching pending sends; pending sends that the snapshot does
// not cover stay provisional.
func (r *Reconciler[T]) Merge(snapshot []T) {
	r.MergeSince(snapshot, math.MaxUint64)
}

// Mark returns the current revision. Pass it to MergeSince when the
// snapshot request starts.
func (r *Reconciler[T]) Mark() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revision
}

// MergeSince is Merge for a snapshot requested at mark. Rows of items that
// changed after mark are older than the stored value and are skipped.
func (r *Reconciler[T]) MergeSince(snapshot []T, mark uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	for _, item := range snapshot {
		if r.touched[item.ItemID()] > mark {
			continue
		}
		_ = r.insert(item)
	}
}

func (r *Reconciler[T]) match(item T) (string, *pending) {
	if token := item.CorrelationToken(); token != "" {
		if p, ok := r.pending[token]; ok {
			return token, p
		}
		return "", nil
	}

	id := item.ItemID()
	for token, p := range r.pending {
		if p.serverID != "" && p.serverID == id {
			return token, p
		}
	}

	f, ok := any(item).(Fingerprinter)
	if !ok {
		return "", nil
	}
	fingerprint := f.Fingerprint()

	var bestToken string
	var best *pending
	for token, p := range r.pending {
		if !p.hasFingerprint || p.fingerprint != fingerprint || p.serverID != "" {
			continue
		}
		if abs(item.ItemCreatedAt().Sub(p.at)) > r.matchWindow {
			continue
		}
		if best == nil || p.at.Before(best.at) {
			bestToken, best = token, p
		}
	}
	return bestToken, best
}

func (r *Reconciler[T]) check(item T) error {
	var err error
	switch {
	case item.ItemID() == "":
		err = fmt.Errorf("missing id")
	case item.ItemCreatedAt().IsZero():
		err = fmt.Errorf("missing createdAt")
	default:
		err = item.Validate()
	}
	if err != nil {
		malformed := &MalformedEventError{Channel: r.channel, Err: err}
		r.logger.Warnf("dropping event: %v", malformed)
		return malformed
	}
	return nil
}

func isDeleted(item Item) bool {
	t, ok := item.(Tombstoner)
	return ok && t.Deleted()
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
