package realtime

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/gommon/log"
	"github.com/nrednav/cuid2"
	"uk.co.dudmesh.roastlive/pkg/feed"
	"uk.co.dudmesh.roastlive/pkg/frame"
)

var (
	ErrorClosed       = errors.New("realtime client closed")
	ErrorNotConnected = errors.New("not connected")
)

type Settings struct {
	HandshakeTimeout time.Duration
	SubscribeTimeout time.Duration
	WriteTimeout     time.Duration
	// ReadTimeout must be longer than PingInterval.
	ReadTimeout  time.Duration
	PingInterval time.Duration
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
}

func DefaultSettings() *Settings {
	return &Settings{
		HandshakeTimeout: 5 * time.Second,
		SubscribeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      30 * time.Second,
		PingInterval:     10 * time.Second,
		MinBackoff:       500 * time.Millisecond,
		MaxBackoff:       30 * time.Second,
	}
}

// Client is a feed.Subscriber over one websocket connection. It reconnects
// with exponential backoff and subscribes again to every open subscription.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	url      string
	token    string
	settings *Settings
	logger   feed.Logger
	dialer   *websocket.Dialer

	mu   sync.Mutex
	subs map[string]*subscription
	conn *websocket.Conn
	// up is closed while a connection is established.
	up chan struct{}

	writeMu sync.Mutex
}

type subscription struct {
	client  *Client
	ref     string
	filter  feed.Filter
	handler feed.ChangeHandler
	ack     chan error

	// owned by the run goroutine
	established bool
	stale       bool
}

func NewWithDefaults(ctx context.Context, rawURL string, token string) *Client {
	return New(ctx, rawURL, token, DefaultSettings(), nil)
}

// New starts connecting to rawURL in the background.
func New(ctx context.Context, rawURL string, token string, settings *Settings, logger feed.Logger) *Client {
	if logger == nil {
		logger = log.New("realtime")
	}
	cancelCtx, cancel := context.WithCancel(ctx)
	c := &Client{
		ctx:      cancelCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
		url:      rawURL,
		token:    token,
		settings: settings,
		logger:   logger,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: settings.HandshakeTimeout,
		},
		subs: make(map[string]*subscription),
		up:   make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Subscribe waits for the connection, sends a subscribe frame and returns
// once the server has acknowledged it.
func (c *Client) Subscribe(ctx context.Context, filter feed.Filter, handler feed.ChangeHandler) (feed.Handle, error) {
	sub := &subscription{
		client:  c,
		ref:     cuid2.Generate(),
		filter:  filter,
		handler: handler,
		ack:     make(chan error, 1),
	}

	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return nil, ErrorClosed
	}
	c.subs[sub.ref] = sub
	up := c.up
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.settings.SubscribeTimeout)
	defer cancel()

	fail := func(err error) (feed.Handle, error) {
		c.remove(sub.ref)
		return nil, err
	}

	select {
	case <-up:
	case <-c.ctx.Done():
		return fail(ErrorClosed)
	case <-ctx.Done():
		return fail(fmt.Errorf("waiting for connection: %w", ctx.Err()))
	}

	if err := c.write(frame.Subscribe(sub.ref, filter)); err != nil {
		return fail(fmt.Errorf("sending subscribe: %w", err))
	}

	select {
	case err := <-sub.ack:
		if err != nil {
			return fail(err)
		}
	case <-c.ctx.Done():
		return fail(ErrorClosed)
	case <-ctx.Done():
		return fail(fmt.Errorf("waiting for subscribed: %w", ctx.Err()))
	}
	return sub, nil
}

func (s *subscription) Unsubscribe() error {
	if !s.client.remove(s.ref) {
		return nil
	}
	err := s.client.write(frame.New(frame.TypeUnsubscribe, s.ref))
	if err != nil && !errors.Is(err, ErrorNotConnected) && !errors.Is(err, ErrorClosed) {
		return fmt.Errorf("sending unsubscribe: %w", err)
	}
	return nil
}

func (c *Client) remove(ref string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[ref]
	delete(c.subs, ref)
	return ok
}

func (c *Client) lookup(ref string) *subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[ref]
}

func (c *Client) snapshot() []*subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := make([]*subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	return subs
}

func (c *Client) write(f *frame.Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if c.ctx.Err() != nil {
		return ErrorClosed
	}
	if conn == nil {
		return ErrorNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) dial() (*websocket.Conn, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("parsing realtime url: %w", err)
	}
	if c.token != "" {
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
	}

	ws, _, err := c.dialer.DialContext(c.ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dialing: %w", err)
	}
	return ws, nil
}

func (c *Client) run() {
	defer close(c.done)
	defer c.cancel()

	backoff := c.settings.MinBackoff
	for {
		ws, err := c.dial()
		if err == nil {
			backoff = c.settings.MinBackoff
			err = c.serve(ws)
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Warnf("connection lost: %v", err)
			c.dropped(err)
		} else {
			c.logger.Debugf("connect failed: %v", err)
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(jitter(backoff)):
		}
		backoff *= 2
		if backoff > c.settings.MaxBackoff {
			backoff = c.settings.MaxBackoff
		}
	}
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
}

func (c *Client) serve(ws *websocket.Conn) error {
	c.mu.Lock()
	c.conn = ws
	close(c.up)
	c.mu.Unlock()

	handleCtx, handleCancel := context.WithCancel(c.ctx)
	defer func() {
		handleCancel()
		c.mu.Lock()
		c.conn = nil
		c.up = make(chan struct{})
		c.mu.Unlock()
		ws.Close()
	}()

	go func() {
		<-handleCtx.Done()
		ws.Close()
	}()
	go c.ping(handleCtx)

	for _, sub := range c.snapshot() {
		if !sub.stale {
			continue
		}
		if err := c.write(frame.Subscribe(sub.ref, sub.filter)); err != nil {
			return fmt.Errorf("resubscribing: %w", err)
		}
	}

	for {
		ws.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.dispatch(data)
	}
}

func (c *Client) ping(ctx context.Context) {
	ticker := time.NewTicker(c.settings.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.write(frame.New(frame.TypePing, "")); err != nil {
				return
			}
		}
	}
}

func (c *Client) dispatch(data []byte) {
	f, err := frame.Parse(data)
	if err != nil {
		c.logger.Warnf("dropping frame: %v", err)
		return
	}

	switch f.Type {
	case frame.TypePing:
		c.write(frame.New(frame.TypePong, f.Ref))
		return
	case frame.TypePong:
		return
	}

	sub := c.lookup(f.Ref)
	if sub == nil {
		return
	}

	switch f.Type {
	case frame.TypeSubscribed:
		if !sub.established {
			sub.established = true
			select {
			case sub.ack <- nil:
			default:
			}
		} else if sub.stale {
			sub.stale = false
			sub.handler(feed.Change{Kind: feed.ChangeReconnected})
		}
	case frame.TypeError:
		err := errors.New(f.Message)
		if !sub.established {
			select {
			case sub.ack <- err:
			default:
			}
			return
		}
		sub.handler(feed.Change{Kind: feed.ChangeError, Err: err})
	case frame.TypeChange:
		if f.Table != "" && f.Table != sub.filter.Table {
			c.logger.Warnf("dropping change for table %s on subscription to %s", f.Table, sub.filter.Table)
			return
		}
		sub.handler(feed.Change{Kind: f.Kind, Record: f.Record})
	}
}

func (c *Client) dropped(cause error) {
	err := fmt.Errorf("connection lost: %w", cause)
	for _, sub := range c.snapshot() {
		if !sub.established || sub.stale {
			continue
		}
		sub.stale = true
		sub.handler(feed.Change{Kind: feed.ChangeError, Err: err})
	}
}

// Close stops the client and waits for its connection to shut down.
func (c *Client) Close() error {
	c.cancel()
	<-c.done
	return nil
}
