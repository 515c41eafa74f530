// Package docsource stores document markdown by relative path, on the local
// filesystem or in a MinIO bucket.
package docsource

import (
	"context"
	"errors"
	"path"
	"strings"
)

var (
	ErrNotFound    = errors.New("document source not found")
	ErrInvalidPath = errors.New("invalid document source path")
)

type Store interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	// List returns the slash separated paths under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// MarkdownExtensions are the file extensions folder scans pick up.
var MarkdownExtensions = []string{".md", ".markdown"}

func IsMarkdown(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range MarkdownExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// cleanPath normalizes a relative slash path and rejects anything that
// would escape the storage root.
func cleanPath(p string) (string, error) {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" || strings.HasPrefix(p, "/") {
		return "", ErrInvalidPath
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrInvalidPath
	}
	return clean, nil
}
