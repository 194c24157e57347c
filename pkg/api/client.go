package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"uk.co.dudmesh.roastlive/pkg/feed"
)

const DefaultTimeout = 10 * time.Second

// StatusError is returned for any non 2xx response.
type StatusError struct {
	Status  int
	Method  string
	Path    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
}

func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}

// Client talks JSON to the REST backend. It implements feed.WriteService.
type Client struct {
	baseURL    string
	http       *fasthttp.Client
	timeout    time.Duration
	maxRetries int

	mu    sync.RWMutex
	token string
}

func New(baseURL string, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &fasthttp.Client{
			Name:                "roastlive",
			MaxIdleConnDuration: 30 * time.Second,
		},
		timeout:    DefaultTimeout,
		maxRetries: 3,
		token:      token,
	}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type Query struct {
	Column string
	Value  string
	Limit  int
	// Descending returns the newest rows first.
	Descending bool
}

func (q Query) encode() string {
	v := url.Values{}
	if q.Column != "" {
		v.Set("column", q.Column)
		v.Set("value", q.Value)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Descending {
		v.Set("order", "desc")
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

func (c *Client) Insert(ctx context.Context, table string, record interface{}) (feed.Receipt, error) {
	var receipt feed.Receipt
	if err := c.Post(ctx, "/rest/"+url.PathEscape(table), record, &receipt); err != nil {
		return feed.Receipt{}, err
	}
	return receipt, nil
}

func (c *Client) Update(ctx context.Context, table string, id string, patch map[string]interface{}) error {
	return c.Patch(ctx, "/rest/"+url.PathEscape(table)+"/"+url.PathEscape(id), patch, nil)
}

// List decodes the rows of table matching q into out.
func (c *Client) List(ctx context.Context, table string, q Query, out interface{}) error {
	return c.Get(ctx, "/rest/"+url.PathEscape(table)+q.encode(), out)
}

// CreateSession logs in and keeps the issued token for later requests.
func (c *Client) CreateSession(ctx context.Context, userID string, password string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]string{"user_id": userID, "password": password}
	if err := c.Post(ctx, "/auth/session", body, &resp); err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	c.SetToken(resp.Token)
	return resp.Token, nil
}

func (c *Client) Get(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, fasthttp.MethodGet, path, nil, result)
}

func (c *Client) Post(ctx context.Context, path string, body interface{}, result interface{}) error {
	return c.do(ctx, fasthttp.MethodPost, path, body, result)
}

func (c *Client) Patch(ctx context.Context, path string, body interface{}, result interface{}) error {
	return c.do(ctx, fasthttp.MethodPatch, path, body, result)
}

func (c *Client) do(ctx context.Context, method string, path string, body interface{}, result interface{}) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request body: %w", err)
		}
		payload = data
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		req.Reset()
		resp.Reset()
		req.SetRequestURI(c.baseURL + path)
		req.Header.SetMethod(method)
		req.Header.Set("Accept", "application/json")
		if token := c.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		if payload != nil {
			req.Header.SetContentType("application/json")
			req.SetBodyRaw(payload)
		}

		if err := c.http.DoDeadline(req, resp, deadline); err != nil {
			if errors.Is(err, fasthttp.ErrTimeout) {
				return fmt.Errorf("%s %s: %w", method, path, context.DeadlineExceeded)
			}
			return fmt.Errorf("%s %s: %w", method, path, err)
		}

		status := resp.StatusCode()
		if status == fasthttp.StatusTooManyRequests && attempt < c.maxRetries {
			wait := time.Duration(1<<attempt) * 250 * time.Millisecond
			if time.Now().Add(wait).After(deadline) {
				return &StatusError{Status: status, Method: method, Path: path}
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		if status < 200 || status >= 300 {
			return &StatusError{Status: status, Method: method, Path: path, Message: errorMessage(resp.Body())}
		}

		if result == nil || len(resp.Body()) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Body(), result); err != nil {
			return fmt.Errorf("unmarshalling response: %w", err)
		}
		return nil
	}
}

// errorMessage extracts echo's {"message": "..."} error body.
func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(body))
}
