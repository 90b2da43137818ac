package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSavePayload_WritesFile(t *testing.T) {
	dir := t.TempDir()

	path, err := savePayload(dir, "notes.txt", []byte("hello"))
	if err != nil {
		t.Fatalf("savePayload failed: %v", err)
	}
	if path != filepath.Join(dir, "notes.txt") {
		t.Errorf("Wrong path: got %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("Wrong content: got %q", data)
	}
}

func TestSavePayload_NeverOverwrites(t *testing.T) {
	dir := t.TempDir()

	first, err := savePayload(dir, "notes.txt", []byte("one"))
	if err != nil {
		t.Fatalf("savePayload failed: %v", err)
	}
	second, err := savePayload(dir, "notes.txt", []byte("two"))
	if err != nil {
		t.Fatalf("savePayload failed: %v", err)
	}

	if second == first {
		t.Fatalf("Second save reused %s", first)
	}
	if second != filepath.Join(dir, "notes-1.txt") {
		t.Errorf("Wrong collision path: got %s", second)
	}
	data, _ := os.ReadFile(first)
	if string(data) != "one" {
		t.Errorf("Original clobbered: got %q", data)
	}
}

func TestSavePayload_FlattensSenderPath(t *testing.T) {
	dir := t.TempDir()

	path, err := savePayload(dir, "../../etc/passwd", []byte("x"))
	if err != nil {
		t.Fatalf("savePayload failed: %v", err)
	}
	if path != filepath.Join(dir, "passwd") {
		t.Errorf("Path not flattened: got %s", path)
	}
}
