package search

import (
	"context"
	"fmt"

	"lattice/api/internal/logger"
	"lattice/api/internal/model"
	"lattice/api/internal/nodetype"
	"lattice/api/internal/tree"
)

// Backend is both halves of a search engine.
type Backend interface {
	Searcher
	Indexer
}

// Service fronts an optional search backend. Without a healthy backend
// searches come back empty and index updates are dropped.
type Service struct {
	backend Backend
	types   nodetype.Snapshot
	log     *logger.Logger
	async   bool
}

// NewService creates a search service. backend may be nil if Meilisearch is
// not configured.
func NewService(backend Backend, types nodetype.Snapshot, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{backend: backend, types: types, log: log, async: true}
}

func (s *Service) available() bool {
	return s.backend != nil && s.backend.Healthy()
}

func (s *Service) Search(q Query) Response {
	if !s.available() {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.backend.Search(q)
	if err != nil {
		s.log.Warn("search failed", "query", q.Text, "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// DocumentIndexed pushes the document's node records to the backend
// (fire-and-forget).
func (s *Service) DocumentIndexed(_ context.Context, doc model.Document, snap model.NodeSnapshot) error {
	if !s.available() {
		return nil
	}
	t, err := tree.Build(snap)
	if err != nil {
		return fmt.Errorf("build tree for search: %w", err)
	}
	s.IndexTree(doc, t)
	return nil
}

// IndexTree replaces the indexed records of doc with those of t.
func (s *Service) IndexTree(doc model.Document, t *tree.NodeTree) {
	if !s.available() {
		return
	}
	records := BuildRecords(s.types, t, doc)
	s.run(func() {
		if err := s.backend.ReplaceDocumentNodes(doc.ID.String(), records); err != nil {
			s.log.Warn("search index document failed", "document", doc.ID.String(), "error", err)
		}
	})
}

// DeleteDocument removes a document's nodes from the index (fire-and-forget).
func (s *Service) DeleteDocument(docID model.DocumentID) {
	if !s.available() {
		return
	}
	s.run(func() {
		if err := s.backend.DeleteDocumentNodes(docID.String()); err != nil {
			s.log.Warn("search delete document failed", "document", docID.String(), "error", err)
		}
	})
}

func (s *Service) run(fn func()) {
	if s.async {
		go fn()
		return
	}
	fn()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
