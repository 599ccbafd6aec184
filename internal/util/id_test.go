package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID("doc")
	if !strings.HasPrefix(id, "doc_") {
		t.Fatalf("id = %q, want doc_ prefix", id)
	}
	if len(id) != len("doc_")+32 {
		t.Fatalf("id length = %d, want prefix plus 32 hex chars", len(id))
	}

	if bare := NewID(""); len(bare) != 32 || strings.Contains(bare, "_") {
		t.Fatalf("bare id = %q, want 32 hex chars", bare)
	}

	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := NewID("cli")
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
