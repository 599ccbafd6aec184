// Package vault stores uploaded artifacts encrypted at rest. Every file is
// sealed under the single configured key with a fresh random IV, so two
// copies of the same plaintext never share ciphertext. The vault performs no
// authorization; handlers must check entitlement before calling Retrieve.
package vault

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"path"
	"path/filepath"
)

var (
	// ErrNotFound means the locator does not exist in the backend.
	ErrNotFound = errors.New("artifact not found")
	// ErrStorage wraps backend write failures (permissions, disk full).
	ErrStorage = errors.New("artifact storage failure")
)

// Backend is the raw byte store under the vault. Implementations hold
// ciphertext only and never see the key.
type Backend interface {
	Put(ctx context.Context, locator string, data []byte) error
	Get(ctx context.Context, locator string) ([]byte, error)
	Remove(ctx context.Context, locator string) error
}

// StoredArtifact is what the caller persists alongside file metadata.
type StoredArtifact struct {
	Locator   string
	Encrypted bool
	IV        string
	Size      int64
}

type Vault struct {
	backend Backend
	box     *box
}

// New builds a vault over the given backend. The key must be a valid AES
// key length; use DeriveKey to produce one from the configured secret.
func New(key []byte, backend Backend) (*Vault, error) {
	b, err := newBox(key)
	if err != nil {
		return nil, err
	}
	return &Vault{backend: backend, box: b}, nil
}

// Store encrypts data under a fresh IV and writes the ciphertext at locator.
// The returned IV (hex) must be persisted with the file record; without it
// the blob cannot be recovered.
func (v *Vault) Store(ctx context.Context, data []byte, locator string) (StoredArtifact, error) {
	ciphertext, nonce, err := v.box.seal(data)
	if err != nil {
		return StoredArtifact{}, err
	}
	if err := v.backend.Put(ctx, locator, ciphertext); err != nil {
		return StoredArtifact{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return StoredArtifact{
		Locator:   locator,
		Encrypted: true,
		IV:        hex.EncodeToString(nonce),
		Size:      int64(len(data)),
	}, nil
}

// Retrieve reads the blob at locator. With a non-empty ivHex the blob is
// decrypted; an empty ivHex returns the bytes unmodified, which supports
// records written before encryption at rest was introduced.
func (v *Vault) Retrieve(ctx context.Context, locator, ivHex string) ([]byte, error) {
	data, err := v.backend.Get(ctx, locator)
	if err != nil {
		return nil, err
	}
	if ivHex == "" {
		return data, nil
	}
	nonce, err := hex.DecodeString(ivHex)
	if err != nil {
		return nil, ErrDecryption
	}
	return v.box.open(data, nonce)
}

// Remove deletes the blob at locator. Missing blobs are not an error.
func (v *Vault) Remove(ctx context.Context, locator string) error {
	if err := v.backend.Remove(ctx, locator); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// ResolveContentType maps a file name to a MIME type, defaulting to a
// generic binary type for unrecognized extensions.
func ResolveContentType(fileName string) string {
	if ct := mime.TypeByExtension(filepath.Ext(fileName)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// DocumentLocator is the deterministic layout for original document files.
func DocumentLocator(documentID, fileID string) string {
	return path.Join("documents", documentID, fileID)
}

// ResponseLocator is the layout for client response files.
func ResponseLocator(documentID, fileID string) string {
	return path.Join("responses", documentID, fileID)
}
