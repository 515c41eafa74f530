package search

import (
	"context"
	"errors"
	"testing"

	"lattice/api/internal/index"
	"lattice/api/internal/model"
	"lattice/api/internal/nodetype"
	"lattice/api/internal/parser"
	"lattice/api/internal/tree"
)

func buildTree(t *testing.T, doc model.Document, source string) (*tree.NodeTree, model.NodeSnapshot) {
	t.Helper()
	sink := index.NewCollectingSink()
	if _, err := parser.New(nodetype.Default()).Parse(source, doc.ID, sink); err != nil {
		t.Fatalf("parse: %v", err)
	}
	snap := sink.Snapshot()
	built, err := tree.Build(snap)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return built, snap
}

func TestBuildRecordsTracksSections(t *testing.T) {
	doc := model.Document{ID: model.NewDocumentID(), Title: "Guide"}
	built, _ := buildTree(t, doc, "# Intro\n\nhello world\n\n## Setup\n\ninstall it\n\n# Usage\n\nrun it\n")

	records := BuildRecords(nodetype.Default(), built, doc)
	type want struct{ kind, section, text string }
	expected := []want{
		{"Heading", "", "Intro"},
		{"Paragraph", "Intro", "hello world"},
		{"Heading", "Intro", "Setup"},
		{"Paragraph", "Intro / Setup", "install it"},
		{"Heading", "", "Usage"},
		{"Paragraph", "Usage", "run it"},
	}
	if len(records) != len(expected) {
		t.Fatalf("expected %d records, got %d: %+v", len(expected), len(records), records)
	}
	for i, w := range expected {
		r := records[i]
		if r.Kind != w.kind || r.Section != w.section || r.Text != w.text {
			t.Fatalf("record %d: got %+v, want %+v", i, r, w)
		}
		if r.DocumentID != doc.ID.String() || r.DocumentTitle != "Guide" {
			t.Fatalf("record %d carries wrong document: %+v", i, r)
		}
	}
	if records[2].HeadingLevel != 2 {
		t.Fatalf("expected heading level 2, got %d", records[2].HeadingLevel)
	}
}

type fakeBackend struct {
	healthy  bool
	replaced map[string][]NodeRecord
	fail     error
}

func (f *fakeBackend) Healthy() bool { return f.healthy }

func (f *fakeBackend) Search(q Query) ([]Result, int, error) {
	if f.fail != nil {
		return nil, 0, f.fail
	}
	var out []Result
	for docID, records := range f.replaced {
		for _, r := range records {
			if r.Text == q.Text {
				out = append(out, Result{ID: r.ID, DocumentID: docID, Snippet: r.Text})
			}
		}
	}
	return out, len(out), nil
}

func (f *fakeBackend) ReplaceDocumentNodes(documentID string, records []NodeRecord) error {
	f.replaced[documentID] = records
	return nil
}

func (f *fakeBackend) DeleteDocumentNodes(documentID string) error {
	delete(f.replaced, documentID)
	return nil
}

func TestServiceIndexesAndSearches(t *testing.T) {
	backend := &fakeBackend{healthy: true, replaced: map[string][]NodeRecord{}}
	svc := NewService(backend, nodetype.Default(), nil)
	svc.async = false

	doc := model.Document{ID: model.NewDocumentID(), Title: "Notes"}
	_, snap := buildTree(t, doc, "# Title\n\nneedle\n")
	if err := svc.DocumentIndexed(context.Background(), doc, snap); err != nil {
		t.Fatalf("document indexed: %v", err)
	}

	resp := svc.Search(Query{Text: "needle"})
	if resp.Total != 1 || len(resp.Results) != 1 || resp.Results[0].DocumentID != doc.ID.String() {
		t.Fatalf("unexpected response: %+v", resp)
	}

	svc.DeleteDocument(doc.ID)
	if _, ok := backend.replaced[doc.ID.String()]; ok {
		t.Fatal("document nodes should be deleted")
	}
}

func TestServiceDegradesWithoutBackend(t *testing.T) {
	svc := NewService(nil, nodetype.Default(), nil)
	resp := svc.Search(Query{Text: "x"})
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Fatalf("expected empty non-nil results, got %+v", resp)
	}

	failing := NewService(&fakeBackend{healthy: true, fail: errors.New("down")}, nodetype.Default(), nil)
	if resp := failing.Search(Query{Text: "x"}); resp.Total != 0 {
		t.Fatalf("expected empty response on backend error, got %+v", resp)
	}
}
