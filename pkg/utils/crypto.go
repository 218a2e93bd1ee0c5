package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	encryptionSalt = "spendwise-device-secret"
	encryptionInfo = "totp-secret-at-rest"

	// sealedPrefix marks values produced by SealSecret. Anything without it
	// is a secret stored before encryption was enabled.
	sealedPrefix = "enc:v1:"
)

var (
	ErrEncryptionNotConfigured = errors.New("encryption not configured")
	ErrMalformedCiphertext     = errors.New("malformed ciphertext")
)

var encryptionKey []byte

// ConfigureEncryption derives the AES-256 key for device secrets from secret
// with HKDF-SHA256. An empty secret disables encryption.
func ConfigureEncryption(secret string) {
	if secret == "" {
		encryptionKey = nil
		return
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), []byte(encryptionSalt), []byte(encryptionInfo)), key); err != nil {
		panic(fmt.Sprintf("derive encryption key: %v", err))
	}
	encryptionKey = key
}

func EncryptionEnabled() bool {
	return encryptionKey != nil
}

func aead() (cipher.AEAD, error) {
	if encryptionKey == nil {
		return nil, ErrEncryptionNotConfigured
	}
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptAESGCM returns base64(nonce || ciphertext).
func EncryptAESGCM(plaintext string) (string, error) {
	gcm, err := aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

func DecryptAESGCM(encoded string) (string, error) {
	gcm, err := aead()
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	if len(raw) < gcm.NonceSize() {
		return "", ErrMalformedCiphertext
	}
	plaintext, err := gcm.Open(nil, raw[:gcm.NonceSize()], raw[gcm.NonceSize():], nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// SealSecret encrypts value for storage. With encryption disabled the value
// is stored as is.
func SealSecret(value string) (string, error) {
	if !EncryptionEnabled() || value == "" {
		return value, nil
	}
	encrypted, err := EncryptAESGCM(value)
	if err != nil {
		return "", err
	}
	return sealedPrefix + encrypted, nil
}

// OpenSecret reverses SealSecret. Unsealed values are returned unchanged; a
// sealed value that cannot be opened, for example after the encryption secret
// changed, is an error.
func OpenSecret(value string) (string, error) {
	encoded, sealed := strings.CutPrefix(value, sealedPrefix)
	if !sealed {
		return value, nil
	}
	return DecryptAESGCM(encoded)
}

func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}
