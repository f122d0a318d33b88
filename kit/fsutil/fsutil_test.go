package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExistsAndKinds(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "platform.plugin.js")
	if err := os.WriteFile(file, []byte("export default {}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if ok, err := Exists(file); err != nil || !ok {
		t.Errorf("Exists(file) = %v, %v; want true", ok, err)
	}
	if ok, err := Exists(filepath.Join(dir, "missing")); err != nil || ok {
		t.Errorf("Exists(missing) = %v, %v; want false", ok, err)
	}
	if !IsDir(dir) || IsDir(file) {
		t.Error("IsDir misclassified entries")
	}
}

func TestIsWithin(t *testing.T) {
	root := filepath.FromSlash("/project/src")
	tests := []struct {
		path string
		want bool
	}{
		{"/project/src", true},
		{"/project/src/pages", true},
		{"/project/srcfoo", false},
		{"/project", false},
		{"/project/src/../dist", false},
		{"/project/src/..foo", true},
	}
	for _, tt := range tests {
		if got := IsWithin(root, filepath.FromSlash(tt.path)); got != tt.want {
			t.Errorf("IsWithin(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestWriteFileAndCopyDir(t *testing.T) {
	src := t.TempDir()
	if err := WriteFile(filepath.Join(src, "a", "b", "c.txt"), []byte("hi")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	dst := filepath.Join(t.TempDir(), "out")
	if err := CopyDir(src, dst); err != nil {
		t.Fatalf("CopyDir() error = %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dst, "a", "b", "c.txt"))
	if err != nil || string(got) != "hi" {
		t.Errorf("copied file = %q, %v; want hi", got, err)
	}

	if err := WriteFile(filepath.Join(src, "a", "b", "c.txt"), []byte("bye")); err != nil {
		t.Fatal(err)
	}
	if err := CopyDir(src, dst); err != nil {
		t.Fatalf("CopyDir() into existing dir error = %v", err)
	}
	got, _ = os.ReadFile(filepath.Join(dst, "a", "b", "c.txt"))
	if string(got) != "bye" {
		t.Errorf("overwritten file = %q, want bye", got)
	}
}
