// Package secret seals tenant provider configuration at rest.
//
// A process-wide root key wraps one random data key per tenant; the data key
// seals that tenant's Judge0 credentials. Both layers use AES-256-GCM with the
// nonce prepended to the ciphertext.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const keySize = 32

var ErrShortCiphertext = errors.New("secret: ciphertext too short")

// Keyring holds the root key.
type Keyring struct {
	root []byte
}

// NewKeyring parses a 64-character hex root key.
func NewKeyring(rootKeyHex string) (*Keyring, error) {
	key, err := hex.DecodeString(rootKeyHex)
	if err != nil {
		return nil, errors.New("ROOT_ENCRYPTION_KEY must be hex-encoded")
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("ROOT_ENCRYPTION_KEY must be %d bytes (%d hex chars)", keySize, keySize*2)
	}
	return &Keyring{root: key}, nil
}

// NewDataKey returns a fresh tenant data key, wrapped under the root key for storage.
func (k *Keyring) NewDataKey() (wrapped []byte, err error) {
	dataKey := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, dataKey); err != nil {
		return nil, err
	}
	return Seal(k.root, dataKey)
}

// UnwrapDataKey recovers a tenant data key stored by NewDataKey.
func (k *Keyring) UnwrapDataKey(wrapped []byte) ([]byte, error) {
	return Open(k.root, wrapped)
}

// Seal encrypts plaintext under key. Output is nonce || ciphertext+tag.
func Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal.
func Open(key, sealed []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	n := aead.NonceSize()
	if len(sealed) < n {
		return nil, ErrShortCiphertext
	}
	return aead.Open(nil, sealed[:n], sealed[n:], nil)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
