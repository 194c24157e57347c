package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"uk.co.dudmesh.roastlive/internal/auth"
	"uk.co.dudmesh.roastlive/internal/model"
	"uk.co.dudmesh.roastlive/pkg/feed"
	"uk.co.dudmesh.roastlive/pkg/frame"
)

type RealtimeSettings struct {
	// Origins lists the allowed browser origins, "*" allows any.
	Origins      []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// SendBuffer is how many frames may queue for a slow client before it is
	// disconnected.
	SendBuffer int
}

func DefaultRealtimeSettings() *RealtimeSettings {
	return &RealtimeSettings{
		Origins:      []string{"*"},
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		SendBuffer:   256,
	}
}

func (s *RealtimeSettings) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range s.Origins {
		if allowed == "*" || allowed == origin || allowed == u.Host {
			return true
		}
	}
	return false
}

// Realtime upgrades to a websocket that speaks the frame protocol. The route
// must sit behind auth.Middleware.
func Realtime(subscriber feed.Subscriber, settings *RealtimeSettings) echo.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     settings.checkOrigin,
	}
	return func(c echo.Context) error {
		ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			// the upgrader has already answered
			log.Warnf("upgrading realtime connection: %v", err)
			return nil
		}
		conn := &connection{
			ws:         ws,
			userID:     auth.UserID(c),
			subscriber: subscriber,
			settings:   settings,
			send:       make(chan []byte, settings.SendBuffer),
			done:       make(chan struct{}),
			subs:       make(map[string]feed.Handle),
		}
		conn.serve(c.Request().Context())
		return nil
	}
}

type connection struct {
	ws         *websocket.Conn
	userID     model.UserID
	subscriber feed.Subscriber
	settings   *RealtimeSettings

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	subs map[string]feed.Handle
}

func (c *connection) serve(ctx context.Context) {
	log.Debugf("realtime connection for %s", c.userID)
	go c.writeLoop()
	c.readLoop(ctx)
	c.close()

	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]feed.Handle)
	c.mu.Unlock()
	for _, handle := range subs {
		handle.Unsubscribe()
	}
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

func (c *connection) readLoop(ctx context.Context) {
	for {
		c.ws.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debugf("realtime connection for %s: %v", c.userID, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		f, err := frame.Parse(data)
		if err != nil {
			c.enqueue(frame.Error("", err.Error()))
			continue
		}
		switch f.Type {
		case frame.TypePing:
			c.enqueue(frame.New(frame.TypePong, f.Ref))
		case frame.TypeSubscribe:
			if err := c.subscribe(ctx, f.Ref, *f.Filter); err != nil {
				c.enqueue(frame.Error(f.Ref, err.Error()))
				continue
			}
			c.enqueue(frame.New(frame.TypeSubscribed, f.Ref))
		case frame.TypeUnsubscribe:
			c.unsubscribe(f.Ref)
		}
	}
}

// authorize limits notification channels to their owner. Stream and
// conversation channels are open to every signed-in user: the server keeps
// no conversation membership, so it has nothing to check them against.
func (c *connection) authorize(filter feed.Filter) error {
	key, err := model.ChannelOf(filter)
	if err != nil {
		return err
	}
	kind, id, err := model.ParseChannelKey(string(key))
	if err != nil {
		return err
	}
	switch kind {
	case model.ChannelNotifications:
		if model.UserID(id) != c.userID {
			return model.ErrorForbidden
		}
	case model.ChannelStream, model.ChannelConversation:
	default:
		return fmt.Errorf("unknown channel %s", key)
	}
	return nil
}

func (c *connection) subscribe(ctx context.Context, ref string, filter feed.Filter) error {
	if err := c.authorize(filter); err != nil {
		return err
	}

	c.mu.Lock()
	if _, ok := c.subs[ref]; ok {
		c.mu.Unlock()
		return fmt.Errorf("ref %s is already subscribed", ref)
	}
	c.mu.Unlock()

	handle, err := c.subscriber.Subscribe(ctx, filter, func(change feed.Change) {
		if change.Kind == feed.ChangeError {
			c.enqueue(frame.Error(ref, change.Err.Error()))
			return
		}
		f, err := frame.Change(ref, change.Kind, filter.Table, change.Record)
		if err != nil {
			log.Errorf("encoding change: %+v", err)
			return
		}
		c.enqueue(f)
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.subs[ref] = handle
	c.mu.Unlock()
	return nil
}

func (c *connection) unsubscribe(ref string) {
	c.mu.Lock()
	handle, ok := c.subs[ref]
	delete(c.subs, ref)
	c.mu.Unlock()
	if ok {
		handle.Unsubscribe()
	}
}

// enqueue never blocks. A client that cannot keep up is disconnected and
// recovers by reloading after it reconnects.
func (c *connection) enqueue(f *frame.Frame) {
	data, err := f.Encode()
	if err != nil {
		log.Errorf("encoding frame: %+v", err)
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		log.Warnf("realtime client %s is too slow, disconnecting", c.userID)
		c.close()
	}
}

func (c *connection) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		}
	}
}
