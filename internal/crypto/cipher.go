package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// CiphertextPrefix marks every value produced by Cipher.Encrypt.
const CiphertextPrefix = "v1:"

const keyInfo = "hubconnect credential cipher v1"

// CipherError is returned when a ciphertext cannot be opened: bad encoding,
// truncated input, wrong key or tampered data.
type CipherError struct {
	Op  string
	Err error
}

func (e *CipherError) Error() string {
	return fmt.Sprintf("cipher %s: %v", e.Op, e.Err)
}

func (e *CipherError) Unwrap() error { return e.Err }

// Cipher encrypts short secrets (tokens, settings blobs) at rest.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type aesGCMCipher struct {
	aead cipher.AEAD
}

// NewCipher derives an AES-256 key from passphrase with HKDF-SHA256, so any
// passphrase length or charset is accepted.
func NewCipher(passphrase string) (Cipher, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("encryption passphrase must not be empty")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(passphrase), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return &aesGCMCipher{aead: gcm}, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns
// "v1:" + base64(nonce || ciphertext).
func (c *aesGCMCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", &CipherError{Op: "encrypt", Err: fmt.Errorf("generating nonce: %w", err)}
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return CiphertextPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *aesGCMCipher) Decrypt(ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, CiphertextPrefix) {
		return "", &CipherError{Op: "decrypt", Err: fmt.Errorf("missing %q prefix", CiphertextPrefix)}
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, CiphertextPrefix))
	if err != nil {
		return "", &CipherError{Op: "decrypt", Err: fmt.Errorf("decoding base64: %w", err)}
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize+c.aead.Overhead() {
		return "", &CipherError{Op: "decrypt", Err: fmt.Errorf("ciphertext too short")}
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", &CipherError{Op: "decrypt", Err: err}
	}

	return string(plaintext), nil
}

// LooksEncrypted reports whether s has the shape of a Cipher output. It does
// not prove s can be decrypted with the current key.
func LooksEncrypted(s string) bool {
	if !strings.HasPrefix(s, CiphertextPrefix) {
		return false
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, CiphertextPrefix))
	return err == nil && len(data) >= 12+16
}

// GeneratePassphrase returns a random 32-byte passphrase, base64 encoded.
func GeneratePassphrase() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating passphrase: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
