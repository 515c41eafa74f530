package gitrepo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestDocumentHistoryLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	first, err := svc.Commit("doc-1", "# Plan\n\nDraft\n", "Avery", "Import document")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if first.Hash == "" || first.Added != 3 {
		t.Fatalf("unexpected first commit: %+v", first)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "doc-1", contentFile)); err != nil {
		t.Fatalf("content file missing: %v", err)
	}

	second, err := svc.Commit("doc-1", "# Plan\n\nFinal\n", "Avery Jones", "Edit paragraph")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if second.Hash == first.Hash || second.Added != 1 || second.Removed != 1 {
		t.Fatalf("unexpected second commit: %+v", second)
	}

	history, err := svc.History("doc-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[0].Hash != second.Hash || history[1].Hash != first.Hash {
		t.Fatalf("unexpected history: %+v", history)
	}

	content, err := svc.ContentAt("doc-1", first.Hash)
	if err != nil {
		t.Fatalf("ContentAt() error = %v", err)
	}
	if content != "# Plan\n\nDraft\n" {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestCommitUnchangedContentKeepsHead(t *testing.T) {
	svc := New(t.TempDir())
	first, err := svc.Commit("doc-1", "same\n", "Avery", "one")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	again, err := svc.Commit("doc-1", "same\n", "Avery", "two")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if again.Hash != first.Hash {
		t.Fatalf("expected head %s, got %s", first.Hash, again.Hash)
	}
	history, err := svc.History("doc-1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one commit, got %d", len(history))
	}
}

func TestHistoryOfUnknownDocumentIsEmpty(t *testing.T) {
	svc := New(t.TempDir())
	history, err := svc.History("missing", 5)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %+v", history)
	}
	if _, err := svc.ContentAt("missing", "abc1234"); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("expected ErrNoHistory, got %v", err)
	}
}

func TestConcurrentCommitsSameDocument(t *testing.T) {
	svc := New(t.TempDir())
	if _, err := svc.Commit("doc-1", "base\n", "Avery", "base"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	const writers = 12
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			body := fmt.Sprintf("revision-%02d\n", idx)
			if _, err := svc.Commit("doc-1", body, "Avery", fmt.Sprintf("Commit %02d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Fatalf("Commit() concurrent error = %v", err)
	}

	history, err := svc.History("doc-1", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != writers+1 {
		t.Fatalf("expected %d commits in history, got %d", writers+1, len(history))
	}
	head, err := svc.ContentAt("doc-1", history[0].Hash)
	if err != nil {
		t.Fatalf("ContentAt() error = %v", err)
	}
	if !strings.HasPrefix(head, "revision-") {
		t.Fatalf("unexpected head content %q", head)
	}
}

func TestSanitizeEmail(t *testing.T) {
	tests := map[string]string{
		"Avery Jones": "Avery.Jones",
		"a_b-c":       "a.b.c",
		"!!!":         "user",
	}
	for in, want := range tests {
		if got := sanitizeEmail(in); got != want {
			t.Fatalf("sanitizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
