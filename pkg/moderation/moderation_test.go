package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"uk.co.dudmesh.roastlive/pkg/api"
)

type failingPoster struct{}

func (failingPoster) Post(ctx context.Context, path string, body interface{}, result interface{}) error {
	return errors.New("connection refused")
}

type silentLogger struct{ errors int }

func (l *silentLogger) Errorf(format string, args ...interface{}) { l.errors++ }

func TestActionForScore(t *testing.T) {
	assert := assert.New(t)
	cases := map[float64]Action{
		0:     ActionAllow,
		0.29:  ActionAllow,
		0.3:   ActionFlag,
		0.49:  ActionFlag,
		0.5:   ActionHide,
		0.69:  ActionHide,
		0.7:   ActionTimeout,
		0.849: ActionTimeout,
		0.85:  ActionBlock,
		1:     ActionBlock,
	}
	for score, action := range cases {
		assert.Equal(action, ActionForScore(score), "score %v", score)
	}

	assert.True(ShouldBlock(Result{Action: ActionBlock}))
	assert.True(ShouldBlock(Result{Action: ActionTimeout}))
	assert.False(ShouldBlock(Result{Action: ActionHide}))
	assert.True(ShouldHide(Result{Action: ActionHide}))
	assert.False(ShouldHide(Result{Action: ActionFlag}))
}

func TestFailOpen(t *testing.T) {
	assert := assert.New(t)

	t.Run("Error", func(t *testing.T) {
		logger := &silentLogger{}
		s := New(failingPoster{}, logger)
		assert.Equal(Result{Flagged: false, Action: ActionAllow, Score: 0}, s.ModerateMessage(context.Background(), "you stink"))
		assert.Equal(Allowed, s.ModerateProfile(context.Background(), "name", ""))
		assert.Equal(2, logger.errors)
	})

	t.Run("Server Error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		s := New(api.New(server.URL, ""), &silentLogger{})
		assert.Equal(Allowed, s.ModerateMessage(context.Background(), "hello"))
	})

	t.Run("Nil Service", func(t *testing.T) {
		var s *Service
		assert.Equal(Allowed, s.ModerateMessage(context.Background(), "hello"))
	})
}

func TestModerate(t *testing.T) {
	assert := assert.New(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		req := map[string]string{}
		json.Unmarshal(body, &req)

		switch r.URL.Path {
		case "/api/moderation/message":
			if req["message"] == "awful" {
				io.WriteString(w, `{"flagged":true,"score":0.9,"action":"block","categories":{"toxicity":0.9}}`)
				return
			}
			io.WriteString(w, `{"flagged":false,"score":0.55}`)
		case "/api/moderation/profile":
			io.WriteString(w, `{"flagged":false,"score":0.1,"action":"allow"}`)
		}
	}))
	defer server.Close()

	s := New(api.New(server.URL, ""), &silentLogger{})

	r := s.ModerateMessage(context.Background(), "awful")
	assert.True(r.Flagged)
	assert.Equal(ActionBlock, r.Action)
	assert.Equal(0.9, r.Categories.Toxicity)
	assert.True(ShouldBlock(r))

	r = s.ModerateMessage(context.Background(), "meh")
	assert.Equal(ActionHide, r.Action)

	assert.Equal(ActionAllow, s.ModerateProfile(context.Background(), "roaster", "bio").Action)
}
