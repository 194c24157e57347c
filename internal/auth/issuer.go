package auth

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"uk.co.dudmesh.roastlive/internal/model"
)

const Issuer = "roast-live"

var ErrorInvalidToken = errors.New("invalid token")

// Tokens issues and verifies ES256 session tokens.
type Tokens struct {
	key   *ecdsa.PrivateKey
	keyID string
	ttl   time.Duration
	now   func() time.Time
}

func NewTokens(key *ecdsa.PrivateKey, ttl time.Duration) *Tokens {
	return &Tokens{
		key:   key,
		keyID: KeyID(&key.PublicKey),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (t *Tokens) Issue(userID model.UserID) (*model.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("issuing token: missing user id")
	}
	now := t.now().UTC()
	claims := jwt.StandardClaims{
		Id:        model.CreateID(),
		Issuer:    Issuer,
		Subject:   string(userID),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(t.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = t.keyID

	signed, err := token.SignedString(t.key)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}
	return &model.Session{
		ID:        claims.Id,
		UserID:    userID,
		Token:     signed,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// Verify checks the signature and expiry of a token and returns its user.
func (t *Tokens) Verify(tokenString string) (model.UserID, error) {
	claims := &jwt.StandardClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &t.key.PublicKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrorInvalidToken, err)
	}
	if claims.Issuer != Issuer || claims.Subject == "" {
		return "", fmt.Errorf("%w: bad claims", ErrorInvalidToken)
	}
	return model.UserID(claims.Subject), nil
}

func (t *Tokens) KeySet() (*KeySet, error) {
	keyData, err := EncodePublicKey(&t.key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &KeySet{Keys: []json.RawMessage{keyData}}, nil
}
