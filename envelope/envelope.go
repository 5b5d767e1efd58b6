package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// KeySize is the required symmetric key length (AES-256).
const KeySize = 32

// NonceSize is the GCM nonce length in bytes.
const NonceSize = 12

var (
	// ErrInvalidKey is returned when a key is not exactly KeySize bytes.
	ErrInvalidKey = errors.New("envelope: key must be 32 bytes")
	// ErrDecrypt is returned when a ciphertext fails authentication.
	ErrDecrypt = errors.New("envelope: decryption failed")
)

// Envelope wraps exactly one encrypted payload. Envelopes are never mutated,
// only replaced on re-encryption.
type Envelope struct {
	Ciphertext []byte `json:"ciphertext" bson:"ciphertext"`
	IV         []byte `json:"iv" bson:"iv"`
	AuthTag    []byte `json:"auth_tag" bson:"auth_tag"`
}

// Encrypt seals plaintext under key with a fresh random nonce.
func Encrypt(key, plaintext []byte) (*Envelope, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, NonceSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("envelope: nonce generation: %w", err)
	}
	sealed := aead.Seal(nil, iv, plaintext, nil)
	// Seal appends the 16-byte auth tag to the ciphertext; store them apart.
	tagStart := len(sealed) - aead.Overhead()
	return &Envelope{
		Ciphertext: sealed[:tagStart],
		IV:         iv,
		AuthTag:    sealed[tagStart:],
	}, nil
}

// Decrypt opens an envelope under key. A wrong key or tampered envelope
// returns ErrDecrypt.
func Decrypt(key []byte, env *Envelope) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(env.IV) != NonceSize {
		return nil, ErrDecrypt
	}
	sealed := make([]byte, 0, len(env.Ciphertext)+len(env.AuthTag))
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.AuthTag...)
	plaintext, err := aead.Open(nil, env.IV, sealed, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("envelope: cipher init: %w", err)
	}
	return cipher.NewGCM(block)
}
