package tree

import (
	"errors"
	"testing"

	"lattice/api/internal/model"
)

type fixture struct {
	doc      model.DocumentID
	snapshot model.NodeSnapshot
}

func newFixture() *fixture {
	return &fixture{doc: model.NewDocumentID()}
}

func (f *fixture) add(parent *model.NodeID, start int, withRange bool) model.NodeID {
	id := model.NewNodeID()
	f.snapshot.Bases = append(f.snapshot.Bases, model.NodeBase{ID: id, DocID: f.doc, ParentID: parent, NodeTypeID: int64(model.KindParagraph)})
	if withRange {
		f.snapshot.Ranges = append(f.snapshot.Ranges, model.NodeRange{NodeID: id, Start: start, End: start + 1})
	}
	return id
}

func TestBuildOrdersByRangeStart(t *testing.T) {
	f := newFixture()
	late := f.add(nil, 20, true)
	early := f.add(nil, 5, true)
	floating := f.add(nil, 0, false)
	c2 := f.add(&early, 9, true)
	c1 := f.add(&early, 6, true)

	nt, err := Build(f.snapshot)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	wantRoots := []model.NodeID{early, late, floating}
	for i, id := range wantRoots {
		if nt.Roots[i] != id {
			t.Fatalf("root %d: expected %s, got %s", i, id, nt.Roots[i])
		}
	}
	kids := nt.Children(early)
	if len(kids) != 2 || kids[0] != c1 || kids[1] != c2 {
		t.Fatalf("unexpected child order: %v", kids)
	}
	if nt.Len() != 5 {
		t.Fatalf("expected 5 nodes, got %d", nt.Len())
	}
}

func TestBuildKeepsInputOrderForTies(t *testing.T) {
	f := newFixture()
	a := f.add(nil, 3, true)
	b := f.add(nil, 3, true)
	for i := 0; i < 5; i++ {
		nt, err := Build(f.snapshot)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		if nt.Roots[0] != a || nt.Roots[1] != b {
			t.Fatalf("tie order changed on run %d", i)
		}
	}
}

func TestBuildRejectsDanglingSideRecord(t *testing.T) {
	f := newFixture()
	f.add(nil, 0, true)
	f.snapshot.Texts = append(f.snapshot.Texts, model.NodeText{NodeID: model.NewNodeID(), Text: "orphan"})
	if _, err := Build(f.snapshot); !errors.Is(err, ErrInconsistent) {
		t.Fatalf("expected ErrInconsistent, got %v", err)
	}
}

func TestBuildRejectsDuplicateBase(t *testing.T) {
	f := newFixture()
	id := f.add(nil, 0, true)
	f.snapshot.Bases = append(f.snapshot.Bases, f.snapshot.Bases[0])
	if _, err := Build(f.snapshot); !errors.Is(err, ErrInconsistent) {
		t.Fatalf("expected ErrInconsistent for %s, got %v", id, err)
	}
}

func TestBuildAttachesSideRecords(t *testing.T) {
	f := newFixture()
	id := f.add(nil, 0, true)
	f.snapshot.Texts = append(f.snapshot.Texts, model.NodeText{NodeID: id, Text: "body"})
	f.snapshot.Headings = append(f.snapshot.Headings, model.NodeHeading{NodeID: id, Level: 2})
	nt, err := Build(f.snapshot)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	rec, ok := nt.Node(id)
	if !ok {
		t.Fatalf("node missing")
	}
	if rec.TextValue() != "body" || rec.Heading == nil || rec.Heading.Level != 2 {
		t.Fatalf("side records not attached: %+v", rec)
	}
}

func TestSubtree(t *testing.T) {
	f := newFixture()
	root := f.add(nil, 0, true)
	other := f.add(nil, 50, true)
	child := f.add(&root, 1, true)
	grandchild := f.add(&child, 2, true)

	nt, err := Build(f.snapshot)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	sub, err := Subtree(nt, child)
	if err != nil {
		t.Fatalf("subtree: %v", err)
	}
	if len(sub.Roots) != 1 || sub.Roots[0] != child {
		t.Fatalf("unexpected roots: %v", sub.Roots)
	}
	if sub.Len() != 2 {
		t.Fatalf("expected 2 nodes, got %d", sub.Len())
	}
	if _, ok := sub.Node(other); ok {
		t.Fatalf("unrelated node leaked into subtree")
	}
	if got := Descendants(nt, root); len(got) != 3 || got[2] != grandchild {
		t.Fatalf("unexpected descendants: %v", got)
	}
	if _, err := Subtree(nt, model.NewNodeID()); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestWalkSkipsChildren(t *testing.T) {
	f := newFixture()
	root := f.add(nil, 0, true)
	f.add(&root, 1, true)
	nt, err := Build(f.snapshot)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	visited := 0
	nt.Walk(func(*NodeRecord, int) bool {
		visited++
		return false
	})
	if visited != 1 {
		t.Fatalf("expected 1 visit, got %d", visited)
	}
}
