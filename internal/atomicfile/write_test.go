package atomicfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// assertNoTemp fails if any temp file is left in dir.
func assertNoTemp(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "locations.json")

	if err := Write(path, []byte(`{"areas":{}}`), 0o644); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != `{"areas":{}}` {
		t.Errorf("content = %q", got)
	}
	assertNoTemp(t, dir)
}

func TestWrite_ReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	for _, content := range []string{"version = 1\n", "version = 2\n"} {
		if err := Write(path, []byte(content), 0o644); err != nil {
			t.Fatalf("Write(%q): %v", content, err)
		}
	}
	got, _ := os.ReadFile(path)
	if string(got) != "version = 2\n" {
		t.Errorf("content = %q, want second write", got)
	}
	assertNoTemp(t, dir)
}

func TestWrite_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "cache.json")

	if err := Write(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Stat: %v", err)
	}
}

func TestWrite_Permissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exilecord.pid")

	if err := Write(path, []byte("1:abc"), 0o600); err != nil {
		t.Fatalf("Write: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm()&0o600 == 0 {
		t.Errorf("permissions = %o, want owner rw", info.Mode().Perm())
	}
}

func TestWrite_FailureLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	// A directory at the target path makes the final rename fail.
	target := filepath.Join(dir, "occupied")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(target, "child"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Write(target, []byte("data"), 0o644); err == nil {
		t.Fatal("expected error renaming over a non-empty directory")
	}
	assertNoTemp(t, dir)
}
