// Package credtoken seals short credential strings for transport through
// client-visible channels (queue messages, callback URLs). Keys are derived
// from a configured password and salt with PBKDF2, so two deployments
// sharing configuration can open each other's tokens.
package credtoken

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyLength  = 32
	iterations = 10000
	// minSaltLength pads short salts up to the PBKDF2 minimum
	minSaltLength = 8
	saltPadByte   = 'f'
)

// ErrOpenFailed reports a token that could not be authenticated or decoded
var ErrOpenFailed = errors.New("credential token cannot be opened")

// Sealer seals and opens credential tokens with a derived symmetric key
type Sealer struct {
	key []byte
}

// NewSealer derives the sealing key from password and salt. Salts shorter
// than eight bytes are right-padded rather than rejected, matching the
// lenient handling of operator-supplied configuration elsewhere.
func NewSealer(password, salt string) (*Sealer, error) {
	if password == "" {
		return nil, errors.New("credential password must not be empty")
	}
	key := pbkdf2.Key([]byte(password), padSalt(salt), iterations, keyLength, sha256.New)
	return &Sealer{key: key}, nil
}

// Seal encrypts plaintext and returns a URL-safe token
func (s *Sealer) Seal(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a token produced by Seal
func (s *Sealer) Open(token string) (string, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	if len(sealed) < gcm.NonceSize() {
		return "", fmt.Errorf("%w: token too short", ErrOpenFailed)
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	return string(plaintext), nil
}

func padSalt(salt string) []byte {
	b := []byte(salt)
	for len(b) < minSaltLength {
		b = append(b, saltPadByte)
	}
	return b
}
