package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient(t *testing.T) {
	assert := assert.New(t)

	var throttled int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/auth/session":
			var params map[string]string
			json.NewDecoder(r.Body).Decode(&params)
			if params["user_id"] != "u1" || params["password"] != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			io.WriteString(w, `{"token":"tok-1"}`)
		case r.Method == http.MethodPost && r.URL.Path == "/rest/stream_messages":
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				io.WriteString(w, `{"message":"missing token"}`)
				return
			}
			body, _ := io.ReadAll(r.Body)
			record := map[string]interface{}{}
			json.Unmarshal(body, &record)
			if record["content"] == "bad" {
				w.WriteHeader(http.StatusBadRequest)
				io.WriteString(w, `{"message":"content rejected"}`)
				return
			}
			io.WriteString(w, `{"id":"m1","createdAt":"2024-05-01T12:00:00Z"}`)
		case r.Method == http.MethodPatch && r.URL.Path == "/rest/notifications/n1":
			if atomic.AddInt32(&throttled, 1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodGet && r.URL.Path == "/rest/stream_messages":
			q := r.URL.Query()
			if q.Get("column") != "stream_id" || q.Get("value") != "42" || q.Get("limit") != "100" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			io.WriteString(w, `[{"id":"a"},{"id":"b"}]`)
		case r.URL.Path == "/slow":
			time.Sleep(200 * time.Millisecond)
			io.WriteString(w, `{}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := New(server.URL+"/", "")

	t.Run("Unauthorized", func(t *testing.T) {
		_, err := client.Insert(context.Background(), "stream_messages", map[string]string{"content": "hi"})
		assert.True(IsStatus(err, http.StatusUnauthorized))
		assert.Contains(err.Error(), "missing token")
	})

	t.Run("Session", func(t *testing.T) {
		token, err := client.CreateSession(context.Background(), "u1", "secret")
		require.NoError(t, err)
		assert.Equal("tok-1", token)
		assert.Equal("tok-1", client.Token())
	})

	t.Run("Insert", func(t *testing.T) {
		receipt, err := client.Insert(context.Background(), "stream_messages", map[string]string{"content": "hi"})
		assert.Nil(err)
		assert.Equal("m1", receipt.ID)
		assert.Equal(2024, receipt.CreatedAt.Year())

		_, err = client.Insert(context.Background(), "stream_messages", map[string]string{"content": "bad"})
		var se *StatusError
		assert.True(errors.As(err, &se))
		assert.Equal("content rejected", se.Message)
	})

	t.Run("Update Retries 429", func(t *testing.T) {
		err := client.Update(context.Background(), "notifications", "n1", map[string]interface{}{"is_read": true})
		assert.Nil(err)
		assert.Equal(int32(2), atomic.LoadInt32(&throttled))
	})

	t.Run("List", func(t *testing.T) {
		var rows []map[string]string
		err := client.List(context.Background(), "stream_messages", Query{Column: "stream_id", Value: "42", Limit: 100}, &rows)
		assert.Nil(err)
		assert.Len(rows, 2)
	})

	t.Run("Deadline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := client.Get(ctx, "/slow", nil)
		assert.True(errors.Is(err, context.DeadlineExceeded))
	})

	t.Run("Not Found", func(t *testing.T) {
		err := client.Get(context.Background(), "/nope", nil)
		assert.True(IsStatus(err, http.StatusNotFound))
	})
}
