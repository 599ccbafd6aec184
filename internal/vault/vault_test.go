package vault

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"testing"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	backend, err := NewFSBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSBackend: %v", err)
	}
	v, err := New(testKey(t), backend)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func TestStoreRetrieveRoundTrip(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	large := make([]byte, 2<<20)
	if _, err := rand.Read(large); err != nil {
		t.Fatalf("rand: %v", err)
	}

	payloads := map[string][]byte{
		"empty": {},
		"small": []byte("quarterly report"),
		"large": large,
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			locator := DocumentLocator("doc_1", "file_"+name)
			artifact, err := v.Store(ctx, payload, locator)
			if err != nil {
				t.Fatalf("Store: %v", err)
			}
			if !artifact.Encrypted || artifact.IV == "" {
				t.Fatalf("artifact not marked encrypted: %+v", artifact)
			}
			if artifact.Size != int64(len(payload)) {
				t.Fatalf("size = %d, want %d", artifact.Size, len(payload))
			}

			got, err := v.Retrieve(ctx, artifact.Locator, artifact.IV)
			if err != nil {
				t.Fatalf("Retrieve: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Fatal("round trip mismatch")
			}
		})
	}
}

func TestStoreProducesUniqueIVsAndCiphertext(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()
	payload := []byte("identical plaintext")

	first, err := v.Store(ctx, payload, "documents/doc_1/file_a")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	second, err := v.Store(ctx, payload, "documents/doc_1/file_b")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	if first.IV == second.IV {
		t.Fatal("two encryptions reused an IV")
	}

	blobA, err := v.backend.Get(ctx, first.Locator)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	blobB, err := v.backend.Get(ctx, second.Locator)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if bytes.Equal(blobA, blobB) {
		t.Fatal("identical plaintext produced identical ciphertext")
	}
}

func TestRetrieveLegacyPlaintextPassthrough(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	raw := []byte("stored before encryption at rest")
	if err := v.backend.Put(ctx, "documents/doc_legacy/file_1", raw); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := v.Retrieve(ctx, "documents/doc_legacy/file_1", "")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatal("legacy bytes modified on read")
	}
}

func TestRetrieveMissingLocator(t *testing.T) {
	v := newTestVault(t)
	if _, err := v.Retrieve(context.Background(), "documents/doc_x/nope", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing locator error = %v, want ErrNotFound", err)
	}
}

func TestRetrieveWrongIV(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	artifact, err := v.Store(ctx, []byte("payload"), "documents/doc_1/file_1")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	if _, err := v.Retrieve(ctx, artifact.Locator, "00112233445566778899aabb"); !errors.Is(err, ErrDecryption) {
		t.Fatalf("wrong IV error = %v, want ErrDecryption", err)
	}
	if _, err := v.Retrieve(ctx, artifact.Locator, "not-hex"); !errors.Is(err, ErrDecryption) {
		t.Fatalf("malformed IV error = %v, want ErrDecryption", err)
	}
}

func TestFSBackendRejectsEscapingLocators(t *testing.T) {
	backend, err := NewFSBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSBackend: %v", err)
	}
	if err := backend.Put(context.Background(), "../outside", []byte("x")); err == nil {
		t.Fatal("expected traversal locator to be rejected")
	}
	if _, err := backend.Get(context.Background(), "../outside"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("traversal read error = %v, want ErrNotFound", err)
	}
}

func TestFSBackendReadFailureIsStorageError(t *testing.T) {
	backend, err := NewFSBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSBackend: %v", err)
	}
	ctx := context.Background()

	// A locator resolving to a directory fails the read with something other
	// than a missing file; that must surface as ErrStorage, not ErrNotFound.
	if err := backend.Put(ctx, "documents/doc_1/file_1", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := backend.Get(ctx, "documents/doc_1"); !errors.Is(err, ErrStorage) {
		t.Fatalf("directory read error = %v, want ErrStorage", err)
	}
}

func TestResolveContentType(t *testing.T) {
	cases := map[string]string{
		"report.pdf": "application/pdf",
		"notes.txt":  "text/plain; charset=utf-8",
		"binary.xyz": "application/octet-stream",
		"no-ext":     "application/octet-stream",
	}
	for name, want := range cases {
		if got := ResolveContentType(name); got != want {
			t.Errorf("ResolveContentType(%q) = %q, want %q", name, got, want)
		}
	}
}
