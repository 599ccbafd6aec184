package vault

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FSBackend keeps ciphertext blobs on the local filesystem under a root
// directory. Locators are relative slash paths; anything escaping the root
// is rejected before touching the disk.
type FSBackend struct {
	root string
}

func NewFSBackend(root string) (*FSBackend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &FSBackend{root: root}, nil
}

func (b *FSBackend) resolve(locator string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(locator))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid locator %q", locator)
	}
	return filepath.Join(b.root, clean), nil
}

func (b *FSBackend) Put(ctx context.Context, locator string, data []byte) error {
	path, err := b.resolve(locator)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

func (b *FSBackend) Get(ctx context.Context, locator string) ([]byte, error) {
	path, err := b.resolve(locator)
	if err != nil {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read artifact: %v", ErrStorage, err)
	}
	return data, nil
}

func (b *FSBackend) Remove(ctx context.Context, locator string) error {
	path, err := b.resolve(locator)
	if err != nil {
		return ErrNotFound
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}
