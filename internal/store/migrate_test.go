package store

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

func TestListMigrationFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_later.up.sql", "0001_init.up.sql", "0001_init.down.sql", "README.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "archive.up.sql"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	files, err := listMigrationFiles(dir)
	if err != nil {
		t.Fatalf("listMigrationFiles: %v", err)
	}
	want := []string{
		filepath.Join(dir, "0001_init.up.sql"),
		filepath.Join(dir, "0002_later.up.sql"),
	}
	if len(files) != len(want) {
		t.Fatalf("files = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Fatalf("files[%d] = %s, want %s", i, files[i], want[i])
		}
	}
}

// The migration runner applies files in lexicographic order, so names must
// sort the way they are meant to run and every file must carry content.
func TestMigrationFiles(t *testing.T) {
	dir := filepath.Join("..", "..", "db", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			t.Errorf("unexpected file in migrations dir: %s", name)
			continue
		}
		names = append(names, name)

		contents, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if len(strings.TrimSpace(string(contents))) == 0 {
			t.Errorf("migration %s is empty", name)
		}
	}

	if len(names) == 0 {
		t.Fatal("no migrations found")
	}
	if !sort.StringsAreSorted(names) {
		t.Errorf("migration names do not sort in application order: %v", names)
	}
	seen := map[string]bool{}
	for _, name := range names {
		prefix := strings.SplitN(name, "_", 2)[0]
		if seen[prefix] {
			t.Errorf("duplicate migration version prefix %s", prefix)
		}
		seen[prefix] = true
	}
}
