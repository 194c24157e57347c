package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"

	"github.com/btcsuite/btcutil/base58"
	"github.com/cespare/xxhash"
	"github.com/rakutentech/jwk-go/jwk"
)

const signingKeyFile = "signing-key.jwk"

// KeyID derives a short stable id for a public key.
func KeyID(publicKey *ecdsa.PublicKey) string {
	hash := xxhash.New()
	hash.Write(publicKey.X.Bytes())
	hash.Write(publicKey.Y.Bytes())
	return base58.Encode(hash.Sum(nil))
}

func encodeKey(key interface{}, keyID string) ([]byte, error) {
	ks := jwk.NewSpec(key)
	rawJWK, err := ks.ToJWK()
	if err != nil {
		return nil, fmt.Errorf("creating JWK: %w", err)
	}

	rawJWK.Use = "sig"
	rawJWK.Alg = "ES256"
	rawJWK.Kid = keyID

	keyData, err := rawJWK.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshalling JWK: %w", err)
	}
	return keyData, nil
}

func EncodePrivateKey(privateKey *ecdsa.PrivateKey) ([]byte, error) {
	return encodeKey(privateKey, KeyID(&privateKey.PublicKey))
}

func EncodePublicKey(publicKey *ecdsa.PublicKey) ([]byte, error) {
	return encodeKey(publicKey, KeyID(publicKey))
}

func DecodePrivateKey(keyData []byte) (*ecdsa.PrivateKey, error) {
	keySpec, err := jwk.Parse(string(keyData))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	privateKey, ok := keySpec.Key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("not an ECDSA private key")
	}
	return privateKey, nil
}

func DecodePublicKey(keyData []byte) (*ecdsa.PublicKey, error) {
	keySpec, err := jwk.Parse(string(keyData))
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	publicKey, ok := keySpec.Key.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("not an ECDSA public key")
	}
	return publicKey, nil
}

// LoadOrCreateKey reads the signing key from dataDir, generating and saving
// a new P-256 key on first start.
func LoadOrCreateKey(dataDir string) (*ecdsa.PrivateKey, error) {
	keyFile := path.Join(dataDir, signingKeyFile)
	keyData, err := os.ReadFile(keyFile)
	if err == nil {
		return DecodePrivateKey(keyData)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading signing key: %w", err)
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating signing key: %w", err)
	}
	keyData, err = EncodePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(keyFile, keyData, 0o600); err != nil {
		return nil, fmt.Errorf("writing signing key: %w", err)
	}
	return privateKey, nil
}

// KeySet is the JSON Web Key Set published for token verifiers.
type KeySet struct {
	Keys []json.RawMessage `json:"keys"`
}
