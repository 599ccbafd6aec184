package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

var (
	// ErrDecryption covers malformed ciphertext and wrong key/IV pairings,
	// both detected via the GCM authentication tag.
	ErrDecryption = errors.New("artifact decryption failed")
)

// DeriveKey stretches the configured vault secret into a 256-bit AES key.
// Both secret and salt come from process configuration; the derived key is
// injected into New so the crypto routines never touch ambient state.
func DeriveKey(secret, salt string) []byte {
	return argon2.IDKey([]byte(secret), []byte(salt), 1, 64*1024, 4, 32)
}

// box wraps AES-GCM under a single fixed key. Encrypt and decrypt share no
// mutable state, so concurrent calls on different artifacts are safe.
type box struct {
	aead cipher.AEAD
}

func newBox(key []byte) (*box, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &box{aead: aead}, nil
}

// seal encrypts plaintext under a fresh random nonce. The nonce is returned
// separately and stored as the file's IV; it is never embedded in the blob.
func (b *box) seal(plaintext []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}
	return b.aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

func (b *box) open(ciphertext, nonce []byte) ([]byte, error) {
	if len(nonce) != b.aead.NonceSize() {
		return nil, ErrDecryption
	}
	plaintext, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}
