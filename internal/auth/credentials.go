package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"uk.co.dudmesh.roastlive/internal/model"
)

var ErrorInvalidPassword = errors.New("invalid user id or password")

type CredentialStore interface {
	PasswordHash(ctx context.Context, userID model.UserID) (string, error)
	ClaimPassword(ctx context.Context, userID model.UserID, hash string) (bool, error)
}

// Credentials checks user passwords. The first password presented for a
// user id is stored and required from then on.
type Credentials struct {
	store CredentialStore
	cost  int
}

func NewCredentials(store CredentialStore) *Credentials {
	return &Credentials{store: store, cost: 10}
}

func (c *Credentials) Authenticate(ctx context.Context, userID model.UserID, password string) error {
	if password == "" {
		return ErrorInvalidPassword
	}

	encoded, err := c.store.PasswordHash(ctx, userID)
	if errors.Is(err, model.ErrorNotFound) {
		claimed, claimErr := c.claim(ctx, userID, password)
		if claimErr != nil || claimed {
			return claimErr
		}
		// lost a race with another first login
		encoded, err = c.store.PasswordHash(ctx, userID)
	}
	if err != nil {
		return fmt.Errorf("fetching password: %w", err)
	}

	hash, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("decoding password: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return ErrorInvalidPassword
	}
	return nil
}

func (c *Credentials) claim(ctx context.Context, userID model.UserID, password string) (bool, error) {
	passwordBytes, err := bcrypt.GenerateFromPassword([]byte(password), c.cost)
	if err != nil {
		return false, fmt.Errorf("generating encoded password: %w", err)
	}
	return c.store.ClaimPassword(ctx, userID, base64.StdEncoding.EncodeToString(passwordBytes))
}
