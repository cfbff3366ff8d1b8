package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestLocalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	ctx := context.Background()

	n, err := l.Create(ctx, "notes.txt", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n != 5 {
		t.Fatalf("Create wrote %d bytes, want 5", n)
	}

	if _, err := l.Create(ctx, "notes.txt", strings.NewReader("other")); !errors.Is(err, ErrExists) {
		t.Fatalf("second Create err = %v, want ErrExists", err)
	}

	obj, err := l.Open(ctx, "notes.txt")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	body, _ := io.ReadAll(obj.Content)
	_ = obj.Content.Close()
	if string(body) != "hello" || obj.Size != 5 {
		t.Fatalf("Open returned %q size %d", body, obj.Size)
	}

	names, err := l.List(ctx)
	if err != nil || len(names) != 1 || names[0] != "notes.txt" {
		t.Fatalf("List = %v, %v", names, err)
	}

	if err := l.Remove(ctx, "notes.txt"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := l.Remove(ctx, "notes.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Remove err = %v, want ErrNotFound", err)
	}
	if _, err := l.Open(ctx, "notes.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Open after remove err = %v, want ErrNotFound", err)
	}
}

func TestLocalRejectsTraversal(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	ctx := context.Background()

	for _, name := range []string{"", "..", "../x.txt", "a/b.txt", `a\b.txt`} {
		if _, err := l.Create(ctx, name, strings.NewReader("x")); err == nil {
			t.Fatalf("Create(%q) succeeded", name)
		}
		if _, err := l.Open(ctx, name); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Open(%q) err = %v, want ErrNotFound", name, err)
		}
	}
}

func TestLocalCreateCleansUpOnFailure(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	if _, err := l.Create(context.Background(), "broken.pdf", failingReader{}); err == nil {
		t.Fatal("expected error from failing reader")
	}
	if _, err := os.Stat(filepath.Join(dir, "broken.pdf")); !os.IsNotExist(err) {
		t.Fatalf("partial file left behind: %v", err)
	}
}

func TestLocalListSkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for _, n := range []string{"b.txt", "a.txt"} {
		if _, err := l.Create(ctx, n, strings.NewReader(n)); err != nil {
			t.Fatal(err)
		}
	}

	names, err := l.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if strings.Join(names, ",") != "a.txt,b.txt" {
		t.Fatalf("List = %v", names)
	}
}
