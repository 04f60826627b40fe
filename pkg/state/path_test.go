package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDBDir_UsesVolumeMount(t *testing.T) {
	t.Setenv("RAILWAY_VOLUME_MOUNT_PATH", "/data")
	if got := DBDir(); got != "/data" {
		t.Fatalf("expected /data, got %q", got)
	}

	t.Setenv("RAILWAY_VOLUME_MOUNT_PATH", "  ")
	if got := DBDir(); got != DefaultDBDir {
		t.Fatalf("expected default, got %q", got)
	}
}

func TestDBPath(t *testing.T) {
	got := DBPath("/data", "dev", "abc")
	if want := filepath.Join("/data", "xmtp-dev-abc.db3"); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestHasDBFiles(t *testing.T) {
	dir := t.TempDir()
	if HasDBFiles(dir) {
		t.Fatalf("expected empty dir to have no db files")
	}
	if HasDBFiles(filepath.Join(dir, "missing")) {
		t.Fatalf("missing dir should report false")
	}

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "dir.db3"), 0o755); err != nil {
		t.Fatal(err)
	}
	if HasDBFiles(dir) {
		t.Fatalf("non-db files and directories should not count")
	}

	if err := os.WriteFile(filepath.Join(dir, "xmtp-dev-abc.db3"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if !HasDBFiles(dir) {
		t.Fatalf("expected db file to be found")
	}
}
