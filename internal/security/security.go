// Package security seals persisted model snapshots at rest.
package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/knirvcorp/drr/internal/storage"
)

var (
	ErrNotSealed = errors.New("security: value is not sealed")
	ErrOpen      = errors.New("security: failed to open sealed value")
	ErrNoSecret  = errors.New("security: empty secret")
)

// magic prefixes every sealed value, followed by the salt and the GCM
// nonce and ciphertext.
var magic = []byte("DRRSEAL1")

const saltSize = 16

type Encryption struct {
	iterations int
	keyLength  int
}

func NewEncryption() *Encryption {
	return &Encryption{
		iterations: 100000,
		keyLength:  32,
	}
}

// DeriveKey derives an encryption key from a secret
func (e *Encryption) DeriveKey(secret string, salt []byte) []byte {
	return pbkdf2.Key(
		[]byte(secret),
		salt,
		e.iterations,
		e.keyLength,
		sha256.New,
	)
}

// Encrypt encrypts data with AES-GCM, prefixing the random nonce.
func (e *Encryption) Encrypt(data []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, data, nil), nil
}

// Decrypt reverses Encrypt.
func (e *Encryption) Decrypt(encrypted []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(encrypted) < nonceSize {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrOpen)
	}

	nonce, ciphertext := encrypted[:nonceSize], encrypted[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}

	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// GenerateSalt generates a random salt for key derivation
func (e *Encryption) GenerateSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// Seal encrypts data under a key derived from secret with a fresh salt.
func (e *Encryption) Seal(data []byte, secret string) ([]byte, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	salt, err := e.GenerateSalt()
	if err != nil {
		return nil, err
	}
	ct, err := e.Encrypt(data, e.DeriveKey(secret, salt))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(magic)+len(salt)+len(ct))
	out = append(out, magic...)
	out = append(out, salt...)
	return append(out, ct...), nil
}

// Open decrypts a value produced by Seal.
func (e *Encryption) Open(sealed []byte, secret string) ([]byte, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if !IsSealed(sealed) {
		return nil, ErrNotSealed
	}
	rest := sealed[len(magic):]
	if len(rest) < saltSize {
		return nil, fmt.Errorf("%w: truncated salt", ErrOpen)
	}
	return e.Decrypt(rest[saltSize:], e.DeriveKey(secret, rest[:saltSize]))
}

// IsSealed reports whether data carries the sealed value header.
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, magic)
}

// Sealer wraps a Store, sealing values on Put and opening them on Get.
type Sealer struct {
	storage.Store
	enc    *Encryption
	secret string
}

func NewSealer(store storage.Store, secret string) (*Sealer, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &Sealer{Store: store, enc: NewEncryption(), secret: secret}, nil
}

func (s *Sealer) Put(ctx context.Context, key string, value []byte) error {
	sealed, err := s.enc.Seal(value, s.secret)
	if err != nil {
		return fmt.Errorf("failed to seal %s: %w", key, err)
	}
	return s.Store.Put(ctx, key, sealed)
}

func (s *Sealer) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.Store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	data, err := s.enc.Open(sealed, s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	return data, nil
}
