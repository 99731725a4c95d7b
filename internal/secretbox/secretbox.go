// Package secretbox seals and opens the provider token material stored
// on a Mailbox: AES-256-GCM with the key derived from the configured
// master secret through HKDF-SHA256.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// ErrIntegrity is returned when an envelope fails to authenticate or is
// malformed. Callers map this to the IntegrityFailure error kind.
var ErrIntegrity = errors.New("secretbox: integrity check failed")

const keySize = 32 // AES-256

const nonceSize = 16 // 128-bit random nonce per plaintext

// Box seals and opens opaque token strings with a single master key,
// derived once per process via HKDF-SHA256 from the configured secret.
type Box struct {
	key [keySize]byte
}

// New derives a Box's AES-256 key from masterSecret via HKDF-SHA256. info
// binds the derived key to its purpose, so the same master secret can feed
// multiple independent Boxes without key reuse across purposes.
func New(masterSecret, info string) (*Box, error) {
	if len(masterSecret) == 0 {
		return nil, errors.New("secretbox: empty master secret")
	}
	h := hkdf.New(sha256.New, []byte(masterSecret), nil, []byte(info))
	var key [keySize]byte
	if _, err := io.ReadFull(h, key[:]); err != nil {
		return nil, fmt.Errorf("secretbox: derive key: %w", err)
	}
	return &Box{key: key}, nil
}

// Seal encrypts plaintext and returns the envelope format
// hex(nonce):hex(tag):hex(ciphertext). GCM produces the tag appended to
// the ciphertext; it is split back out so nonce, tag and ciphertext are
// separately visible in the stored envelope.
func (b *Box) Seal(plaintext string) (string, error) {
	block, err := aes.NewCipher(b.key[:])
	if err != nil {
		return "", fmt.Errorf("secretbox: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return "", fmt.Errorf("secretbox: new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secretbox: read nonce: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	tagSize := gcm.Overhead()
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]
	return strings.Join([]string{
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	}, ":"), nil
}

// Open decrypts an envelope produced by Seal. Any parse or authentication
// failure is reported as ErrIntegrity, never a partial plaintext.
func (b *Box) Open(envelope string) (string, error) {
	parts := strings.Split(envelope, ":")
	if len(parts) != 3 {
		return "", ErrIntegrity
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", ErrIntegrity
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", ErrIntegrity
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrIntegrity
	}

	block, err := aes.NewCipher(b.key[:])
	if err != nil {
		return "", fmt.Errorf("secretbox: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return "", fmt.Errorf("secretbox: new gcm: %w", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return "", ErrIntegrity
	}
	sealed := append(ciphertext, tag...)
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrIntegrity
	}
	return string(plaintext), nil
}
