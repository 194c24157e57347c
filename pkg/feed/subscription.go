package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/labstack/gommon/log"
)

type DecodeFunc[T Item] func(record json.RawMessage) (T, error)

// Sink receives the events of a subscription. It must not call Close on the
// subscription it is attached to.
type Sink[T Item] func(Event[T])

// Subscription delivers the decoded change events of one channel to a sink.
// Deliveries are serialized, and none happen after Close returns.
type Subscription[T Item] struct {
	channel string
	decode  DecodeFunc[T]
	sink    Sink[T]
	logger  Logger

	mu     sync.Mutex
	closed bool
	handle Handle

	closeOnce sync.Once
	closeErr  error
}

// Open subscribes to filter on behalf of channel. When the subscription
// cannot be established the sink receives an EventError carrying a
// *SubscriptionError, which is also returned.
func Open[T Item](ctx context.Context, subscriber Subscriber, channel string, filter Filter, decode DecodeFunc[T], sink Sink[T], logger Logger) (*Subscription[T], error) {
	if logger == nil {
		logger = log.New("feed")
	}
	s := &Subscription[T]{
		channel: channel,
		decode:  decode,
		sink:    sink,
		logger:  logger,
	}

	handle, err := subscriber.Subscribe(ctx, filter, s.deliver)
	if err != nil {
		subErr := &SubscriptionError{Channel: channel, Err: err}
		s.emit(Event[T]{Kind: EventError, Err: subErr})
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		return nil, subErr
	}

	s.mu.Lock()
	s.handle = handle
	s.mu.Unlock()

	return s, nil
}

func (s *Subscription[T]) Channel() string {
	return s.channel
}

// Close stops delivery. It is safe to call more than once.
func (s *Subscription[T]) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		handle := s.handle
		s.mu.Unlock()

		if handle != nil {
			if err := handle.Unsubscribe(); err != nil {
				s.closeErr = fmt.Errorf("unsubscribing %s: %w", s.channel, err)
			}
		}
	})
	return s.closeErr
}

func (s *Subscription[T]) deliver(change Change) {
	switch change.Kind {
	case ChangeError:
		s.emit(Event[T]{Kind: EventError, Err: &SubscriptionError{Channel: s.channel, Err: change.Err}})
	case ChangeReconnected:
		s.emit(Event[T]{Kind: EventReconnected})
	case ChangeInsert, ChangeUpdate:
		item, err := s.decode(change.Record)
		if err != nil {
			s.logger.Warnf("dropping event: %v", &MalformedEventError{Channel: s.channel, Err: err})
			return
		}
		kind := EventInsert
		if change.Kind == ChangeUpdate {
			kind = EventUpdate
		}
		s.emit(Event[T]{Kind: kind, Item: item})
	default:
		s.logger.Warnf("dropping event on %s: unknown change kind %q", s.channel, change.Kind)
	}
}

func (s *Subscription[T]) emit(ev Event[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.sink(ev)
}
