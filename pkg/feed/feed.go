package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/labstack/gommon/log"
	"github.com/nrednav/cuid2"
)

const DefaultSendTimeout = 10 * time.Second

// Draft describes a local send before it is written. Key is the store key the
// provisional item must use as its id.
type Draft struct {
	Key       string
	Token     string
	Content   string
	CreatedAt time.Time
}

type Options[T Item] struct {
	Channel string
	Filter  Filter
	// Table receives the records written by Send.
	Table  string
	Decode DecodeFunc[T]
	// Snapshot loads the recent history of the channel. It runs after the
	// subscription is open and again after every reconnect.
	Snapshot func(ctx context.Context) ([]T, error)
	// Compose builds the provisional item and the record to write for a send.
	Compose func(d Draft) (T, interface{}, error)
	// Guard may reject a send before anything is written, e.g. slow mode.
	Guard func(ctx context.Context, content string) error
	// OnSent runs after the backend accepted a send.
	OnSent      func()
	MaxLength   int
	SendTimeout time.Duration
	MatchWindow time.Duration
	Logger      Logger
	OnChange    func()
	OnError     func(error)
	Now         func() time.Time
	NewToken    func() string
}

// Feed keeps the local view of one channel in sync with the backend.
type Feed[T Item] struct {
	subscriber Subscriber
	writer     WriteService
	opts       Options[T]

	store      *Store[T]
	reconciler *Reconciler[T]

	mu     sync.Mutex
	sub    *Subscription[T]
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

func New[T Item](subscriber Subscriber, writer WriteService, opts Options[T]) *Feed[T] {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.New("feed")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewToken == nil {
		opts.NewToken = cuid2.Generate
	}
	if opts.Channel == "" {
		opts.Channel = opts.Filter.Table + ":" + opts.Filter.MatchValue
	}

	store := NewStore[T]()
	ctx, cancel := context.WithCancel(context.Background())
	return &Feed[T]{
		subscriber: subscriber,
		writer:     writer,
		opts:       opts,
		store:      store,
		reconciler: NewReconciler(opts.Channel, store, opts.MatchWindow, opts.Logger),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (f *Feed[T]) Channel() string {
	return f.opts.Channel
}

// Open subscribes to the channel and then merges the initial snapshot, so no
// event written in between is missed. A failed snapshot is logged and the
// feed carries on with push events only.
func (f *Feed[T]) Open(ctx context.Context) error {
	if f.reconciler.Closed() {
		return ErrorClosed
	}

	f.mu.Lock()
	if f.sub != nil {
		f.mu.Unlock()
		return errors.New("feed already open")
	}
	f.mu.Unlock()

	sub, err := Open(ctx, f.subscriber, f.opts.Channel, f.opts.Filter, f.opts.Decode, f.handle, f.opts.Logger)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.sub = sub
	f.mu.Unlock()

	if f.reconciler.Closed() {
		return sub.Close()
	}
	if err := f.reload(ctx); err != nil {
		f.opts.Logger.Warnf("loading %s: %v", f.opts.Channel, err)
	}
	return nil
}

func (f *Feed[T]) reload(ctx context.Context) error {
	if f.opts.Snapshot == nil {
		return nil
	}
	mark := f.reconciler.Mark()
	items, err := f.opts.Snapshot(ctx)
	if err != nil {
		return err
	}
	f.reconciler.MergeSince(items, mark)
	f.changed()
	return nil
}

func (f *Feed[T]) handle(ev Event[T]) {
	switch ev.Kind {
	case EventInsert, EventUpdate:
		if err := f.reconciler.Apply(ev); err == nil {
			f.changed()
		}
	case EventError:
		f.opts.Logger.Errorf("%v", ev.Err)
		if f.opts.OnError != nil {
			f.opts.OnError(ev.Err)
		}
	case EventReconnected:
		f.opts.Logger.Debugf("%s reconnected, reloading", f.opts.Channel)
		go func() {
			if err := f.reload(f.ctx); err != nil && f.ctx.Err() == nil {
				f.opts.Logger.Warnf("reloading %s: %v", f.opts.Channel, err)
			}
		}()
	}
}

func (f *Feed[T]) changed() {
	if f.opts.OnChange != nil && !f.reconciler.Closed() {
		f.opts.OnChange()
	}
}

// Send writes content and shows it immediately as a provisional item.
// Blank content is ignored. A rejected or timed out write removes the
// provisional item and returns a *SendError holding the original content.
func (f *Feed[T]) Send(ctx context.Context, content string) error {
	text := strings.TrimSpace(content)
	if text == "" {
		return nil
	}
	if f.opts.MaxLength > 0 && utf8.RuneCountInString(text) > f.opts.MaxLength {
		return &ValidationError{Field: "content", Reason: fmt.Sprintf("must be at most %d characters", f.opts.MaxLength)}
	}
	if f.reconciler.Closed() {
		return ErrorClosed
	}
	if f.opts.Compose == nil {
		return ErrorReadOnly
	}
	f.mu.Lock()
	opened := f.sub != nil
	f.mu.Unlock()
	if !opened {
		return ErrorNotOpen
	}
	if f.opts.Guard != nil {
		if err := f.opts.Guard(ctx, text); err != nil {
			return err
		}
	}

	token := f.opts.NewToken()
	item, record, err := f.opts.Compose(Draft{
		Key:       ProvisionalKey(token),
		Token:     token,
		Content:   text,
		CreatedAt: f.opts.Now(),
	})
	if err != nil {
		return fmt.Errorf("composing send: %w", err)
	}
	if err := f.reconciler.AddProvisional(item); err != nil {
		return err
	}
	f.changed()

	ctx, cancel := context.WithTimeout(ctx, f.opts.SendTimeout)
	defer cancel()

	receipt, err := f.writer.Insert(ctx, f.opts.Table, record)
	if err != nil {
		if !f.reconciler.Rollback(token) {
			f.opts.Logger.Warnf("send on %s failed after its echo arrived: %v", f.opts.Channel, err)
			f.sent()
			return nil
		}
		f.changed()
		return &SendError{Content: content, Err: err}
	}

	f.reconciler.Acknowledge(token, receipt.ID)
	f.sent()
	return nil
}

func (f *Feed[T]) sent() {
	if f.opts.OnSent != nil {
		f.opts.OnSent()
	}
}

// Update applies fn to the stored item at once and writes patch. The previous
// value is restored when the write fails.
func (f *Feed[T]) Update(ctx context.Context, id string, patch map[string]interface{}, fn func(T) T) error {
	prev, ok := f.reconciler.Modify(id, fn)
	if !ok {
		if f.reconciler.Closed() {
			return ErrorClosed
		}
		return fmt.Errorf("updating %s: item not found", id)
	}
	f.changed()

	ctx, cancel := context.WithTimeout(ctx, f.opts.SendTimeout)
	defer cancel()

	if err := f.writer.Update(ctx, f.opts.Table, id, patch); err != nil {
		f.reconciler.Restore(prev)
		f.changed()
		return fmt.Errorf("updating %s: %w", id, err)
	}
	return nil
}

// UpdateWhere applies fn at once to every stored item that match accepts and
// then runs write. All of them are restored when write fails.
func (f *Feed[T]) UpdateWhere(ctx context.Context, match func(T) bool, fn func(T) T, write func(ctx context.Context) error) error {
	if f.reconciler.Closed() {
		return ErrorClosed
	}
	var prevs []T
	for _, item := range f.store.ListOrdered() {
		if !match(item) {
			continue
		}
		if prev, ok := f.reconciler.Modify(item.ItemID(), fn); ok {
			prevs = append(prevs, prev)
		}
	}
	if len(prevs) > 0 {
		f.changed()
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.SendTimeout)
	defer cancel()

	if err := write(ctx); err != nil {
		for _, prev := range prevs {
			f.reconciler.Restore(prev)
		}
		if len(prevs) > 0 {
			f.changed()
		}
		return err
	}
	return nil
}

func (f *Feed[T]) ListOrdered() []T {
	return f.store.ListOrdered()
}

func (f *Feed[T]) Get(id string) (T, bool) {
	return f.store.Get(id)
}

func (f *Feed[T]) Len() int {
	return f.store.Len()
}

// Pending returns the number of sends awaiting their echo.
func (f *Feed[T]) Pending() int {
	return f.reconciler.Pending()
}

// Close stops the subscription. No item changes after it returns.
func (f *Feed[T]) Close() error {
	var err error
	f.closeOnce.Do(func() {
		f.cancel()

		f.mu.Lock()
		sub := f.sub
		f.mu.Unlock()

		if sub != nil {
			err = sub.Close()
		}
		f.reconciler.Close()
	})
	return err
}
