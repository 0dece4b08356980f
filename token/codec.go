package token

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize       = 32
	minSecretSize = 16
)

var hkdfInfo = []byte("habitauth:session-token:v1")

// Status is the outcome of a Decrypt call.
type Status int

const (
	// StatusOK means the token verified and its expiry lies in the future.
	StatusOK Status = iota
	// StatusExpired means the token verified but its embedded expiry has
	// passed.
	StatusExpired
	// StatusInvalid covers every other failure: absent, malformed,
	// truncated, tampered, or an unknown payload version.
	StatusInvalid
)

// String describes the string operation and its observable behavior.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusExpired:
		return "expired"
	case StatusInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Codec seals session payloads with AES-256-GCM. The key is derived once
// from the operator secret with HKDF-SHA256; a Codec is immutable and safe
// for concurrent use.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec derives the sealing key from secret and returns a ready codec.
// Rotating the secret invalidates every token sealed under the old one.
func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) < minSecretSize {
		return nil, fmt.Errorf("codec secret too short: got %d, want at least %d", len(secret), minSecretSize)
	}

	key := make([]byte, keySize)
	reader := hkdf.New(sha256.New, secret, nil, hkdfInfo)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("deriving codec key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return &Codec{aead: aead}, nil
}

// Encrypt seals p into an opaque cookie-safe string. It fails only when the
// payload is malformed (oversized identifiers) or the nonce source fails.
func (c *Codec) Encrypt(p Payload) (string, error) {
	if p.UserID == "" {
		return "", errors.New("payload userID must not be empty")
	}

	plain, err := encodePayload(&p)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, plain, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens tok and classifies the result. now supplies the expiry
// clock so callers (and tests) control time explicitly.
func (c *Codec) Decrypt(tok string, now time.Time) (Payload, Status) {
	if tok == "" {
		return Payload{}, StatusInvalid
	}

	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		return Payload{}, StatusInvalid
	}
	if len(raw) < c.aead.NonceSize() {
		return Payload{}, StatusInvalid
	}

	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return Payload{}, StatusInvalid
	}

	p, err := decodePayload(plain)
	if err != nil {
		return Payload{}, StatusInvalid
	}

	if p.ExpiresAt <= now.Unix() {
		return *p, StatusExpired
	}

	return *p, StatusOK
}
