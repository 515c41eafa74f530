package docsource

import (
	"context"
	"errors"
	"testing"
)

func TestFSReadWriteListDelete(t *testing.T) {
	ctx := context.Background()
	src, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("new fs: %v", err)
	}

	files := map[string]string{
		"notes/a.md":        "# A\n",
		"notes/deep/b.md":   "# B\n",
		"other/c.markdown":  "# C\n",
		"notes/.git/config": "ignored",
	}
	for p, body := range files {
		if err := src.Write(ctx, p, []byte(body)); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}

	got, err := src.Read(ctx, "notes/deep/b.md")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "# B\n" {
		t.Fatalf("unexpected content %q", got)
	}

	list, err := src.List(ctx, "notes")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"notes/a.md", "notes/deep/b.md"}
	if len(list) != len(want) {
		t.Fatalf("expected %v, got %v", want, list)
	}
	for i := range want {
		if list[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, list)
		}
	}

	if err := src.Delete(ctx, "notes/a.md"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := src.Read(ctx, "notes/a.md"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := src.Delete(ctx, "notes/a.md"); err != nil {
		t.Fatalf("deleting a missing file should succeed: %v", err)
	}
}

func TestPathsCannotEscapeRoot(t *testing.T) {
	src, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("new fs: %v", err)
	}
	for _, p := range []string{"../x.md", "/etc/passwd", "", "a/../../b.md", ".."} {
		if _, err := src.Read(context.Background(), p); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("path %q: expected ErrInvalidPath, got %v", p, err)
		}
	}
}

func TestIsMarkdown(t *testing.T) {
	cases := map[string]bool{"a.md": true, "b.MARKDOWN": true, "c.txt": false, "noext": false}
	for name, want := range cases {
		if got := IsMarkdown(name); got != want {
			t.Fatalf("IsMarkdown(%q) = %v, want %v", name, got, want)
		}
	}
}
