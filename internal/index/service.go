// Package index turns stored markdown into persisted node records: read the
// source, parse into a collecting sink, apply the snapshot in one
// transaction, then notify downstream consumers.
package index

import (
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"lattice/api/internal/logger"
	"lattice/api/internal/metrics"
	"lattice/api/internal/model"
	"lattice/api/internal/nodetype"
	"lattice/api/internal/parser"
)

// Documents is the slice of the store the index pipeline needs.
type Documents interface {
	GetDocument(ctx context.Context, id model.DocumentID) (model.Document, error)
	ReplaceDocument(ctx context.Context, docID model.DocumentID, snap model.NodeSnapshot) error
	UpdateDocumentHash(ctx context.Context, id model.DocumentID, hash string) error
}

// Source reads document markdown by storage path.
type Source interface {
	Read(ctx context.Context, path string) ([]byte, error)
}

// Hook runs after a document's records were replaced. Hook failures are
// logged and do not fail the index run.
type Hook interface {
	DocumentIndexed(ctx context.Context, doc model.Document, snap model.NodeSnapshot) error
}

type HookFunc func(ctx context.Context, doc model.Document, snap model.NodeSnapshot) error

func (f HookFunc) DocumentIndexed(ctx context.Context, doc model.Document, snap model.NodeSnapshot) error {
	return f(ctx, doc, snap)
}

type Service struct {
	parser *parser.Parser
	docs   Documents
	source Source
	hooks  []Hook
	log    *logger.Logger
}

func NewService(types nodetype.Snapshot, docs Documents, source Source, log *logger.Logger, hooks ...Hook) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		parser: parser.New(types),
		docs:   docs,
		source: source,
		hooks:  hooks,
		log:    log,
	}
}

// ParseMarkdown parses markdown without touching storage.
func (s *Service) ParseMarkdown(docID model.DocumentID, markdown string) (model.NodeSnapshot, []string, error) {
	start := time.Now()
	sink := NewCollectingSink()
	result, err := s.parser.Parse(markdown, docID, sink)
	metrics.ObserveSince(metrics.ParseDuration, start)
	if err != nil {
		return model.NodeSnapshot{}, result.Warnings, fmt.Errorf("parse document %s: %w", docID, err)
	}
	snap := sink.Snapshot()
	metrics.ParseNodes.Observe(float64(len(snap.Bases)))
	metrics.ParseWarnings.Add(float64(len(result.Warnings)))
	return snap, result.Warnings, nil
}

// IndexDocument reads, parses and stores one document.
func (s *Service) IndexDocument(ctx context.Context, docID model.DocumentID) error {
	start := time.Now()
	doc, err := s.docs.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	raw, err := s.source.Read(ctx, doc.Path)
	if err != nil {
		return fmt.Errorf("read document source %s: %w", doc.Path, err)
	}
	markdown := string(raw)

	snap, warnings, err := s.ParseMarkdown(docID, markdown)
	if len(warnings) > 0 {
		s.log.ParseWarnings(docID.String(), warnings)
	}
	if err != nil {
		return err
	}

	if err := s.docs.ReplaceDocument(ctx, docID, snap); err != nil {
		return fmt.Errorf("apply index %s: %w", docID, err)
	}
	doc.ContentHash = ContentHash(markdown)
	if err := s.docs.UpdateDocumentHash(ctx, docID, doc.ContentHash); err != nil {
		return err
	}

	for _, hook := range s.hooks {
		if err := hook.DocumentIndexed(ctx, doc, snap); err != nil {
			s.log.Warn("index hook failed", "document", docID.String(), "error", err)
		}
	}
	s.log.ParseCompleted(docID.String(), len(snap.Bases), time.Since(start))
	return nil
}

// ContentHash is the 16 hex digit xxhash of markdown.
func ContentHash(markdown string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(markdown))
}
