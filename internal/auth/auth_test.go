package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"uk.co.dudmesh.roastlive/internal/model"
)

func TestKeys(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	key, err := LoadOrCreateKey(dir)
	require.NoError(t, err)
	_, err = os.Stat(path.Join(dir, signingKeyFile))
	require.NoError(t, err)

	again, err := LoadOrCreateKey(dir)
	require.NoError(t, err)
	assert.True(key.Equal(again))

	publicData, err := EncodePublicKey(&key.PublicKey)
	require.NoError(t, err)
	public, err := DecodePublicKey(publicData)
	require.NoError(t, err)
	assert.True(key.PublicKey.Equal(public))

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(publicData, &fields))
	assert.Equal("ES256", fields["alg"])
	assert.Equal(KeyID(&key.PublicKey), fields["kid"])
	assert.NotContains(fields, "d")

	_, err = DecodePrivateKey(publicData)
	assert.Error(err)
}

func newTestTokens(t *testing.T) *Tokens {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return NewTokens(key, time.Hour)
}

func TestTokens(t *testing.T) {
	assert := assert.New(t)
	tokens := newTestTokens(t)

	session, err := tokens.Issue("u1")
	require.NoError(t, err)
	assert.NotEmpty(session.ID)

	userID, err := tokens.Verify(session.Token)
	require.NoError(t, err)
	assert.Equal(model.UserID("u1"), userID)

	t.Run("Expired", func(t *testing.T) {
		tokens.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		defer func() { tokens.now = time.Now }()
		old, err := tokens.Issue("u1")
		require.NoError(t, err)
		_, err = tokens.Verify(old.Token)
		assert.True(errors.Is(err, ErrorInvalidToken))
	})

	t.Run("Other Key", func(t *testing.T) {
		other := newTestTokens(t)
		forged, err := other.Issue("u1")
		require.NoError(t, err)
		_, err = tokens.Verify(forged.Token)
		assert.True(errors.Is(err, ErrorInvalidToken))
	})

	t.Run("Key Set", func(t *testing.T) {
		set, err := tokens.KeySet()
		require.NoError(t, err)
		require.Len(t, set.Keys, 1)
		public, err := DecodePublicKey(set.Keys[0])
		require.NoError(t, err)
		assert.True(tokens.key.PublicKey.Equal(public))
	})

	_, err = tokens.Issue("")
	assert.Error(err)
}

type memoryCredentials struct {
	mu     sync.Mutex
	hashes map[model.UserID]string
}

func (m *memoryCredentials) PasswordHash(ctx context.Context, userID model.UserID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hash, ok := m.hashes[userID]
	if !ok {
		return "", model.ErrorNotFound
	}
	return hash, nil
}

func (m *memoryCredentials) ClaimPassword(ctx context.Context, userID model.UserID, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hashes[userID]; ok {
		return false, nil
	}
	m.hashes[userID] = hash
	return true, nil
}

func TestCredentials(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	credentials := NewCredentials(&memoryCredentials{hashes: map[model.UserID]string{}})
	credentials.cost = 4

	assert.Nil(credentials.Authenticate(ctx, "u1", "hunter2"))
	assert.Nil(credentials.Authenticate(ctx, "u1", "hunter2"))
	assert.True(errors.Is(credentials.Authenticate(ctx, "u1", "wrong"), ErrorInvalidPassword))
	assert.True(errors.Is(credentials.Authenticate(ctx, "u1", ""), ErrorInvalidPassword))
	assert.Nil(credentials.Authenticate(ctx, "u2", "other"))
}

func TestMiddleware(t *testing.T) {
	assert := assert.New(t)
	tokens := newTestTokens(t)
	session, err := tokens.Issue("u1")
	require.NoError(t, err)

	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		return c.String(http.StatusOK, string(UserID(c)))
	}, Middleware(tokens))

	cases := []struct {
		name   string
		target string
		header string
		status int
		body   string
	}{
		{"Header", "/me", "Bearer " + session.Token, http.StatusOK, "u1"},
		{"Query", "/me?token=" + session.Token, "", http.StatusOK, "u1"},
		{"Missing", "/me", "", http.StatusUnauthorized, ""},
		{"Garbage", "/me", "Bearer nope", http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tc.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(tc.status, rec.Code)
			if tc.body != "" {
				assert.Equal(tc.body, rec.Body.String())
			}
		})
	}
}
