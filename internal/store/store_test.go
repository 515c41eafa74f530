package store_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"lattice/api/internal/index"
	"lattice/api/internal/model"
	"lattice/api/internal/nodetype"
	"lattice/api/internal/parser"
	"lattice/api/internal/render/markdown"
	"lattice/api/internal/store"
	"lattice/api/internal/tree"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := store.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := store.ApplyMigrations(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return store.New(db)
}

func parseSnapshot(t *testing.T, docID model.DocumentID, source string) model.NodeSnapshot {
	t.Helper()
	sink := index.NewCollectingSink()
	if _, err := parser.New(nodetype.Default()).Parse(source, docID, sink); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return sink.Snapshot()
}

func TestDriverForURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost/db":   store.DriverPostgres,
		"postgresql://localhost/db":     store.DriverPostgres,
		"file:lattice.db?cache=shared":  store.DriverSQLite,
		":memory:":                      store.DriverSQLite,
		"/var/lib/lattice/lattice.db":   store.DriverSQLite,
		"POSTGRES://upper@localhost/db": store.DriverPostgres,
	}
	for url, want := range tests {
		if got := store.DriverForURL(url); got != want {
			t.Fatalf("DriverForURL(%q) = %q, want %q", url, got, want)
		}
	}
}

func TestMigrationsRoundTripSQLite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := store.ApplyMigrations(ctx, s.DB()); err != nil {
		t.Fatalf("second apply should be a no-op: %v", err)
	}
	if err := store.RollbackMigrations(ctx, s.DB()); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if err := store.ApplyMigrations(ctx, s.DB()); err != nil {
		t.Fatalf("apply after rollback: %v", err)
	}
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("LATTICE_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("LATTICE_TEST_DATABASE_URL is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := store.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if err := store.ApplyMigrations(ctx, db); err != nil {
		t.Fatalf("apply up migrations (pass 1): %v", err)
	}
	if err := store.RollbackMigrations(ctx, db); err != nil {
		t.Fatalf("apply down migrations: %v", err)
	}
	if err := store.ApplyMigrations(ctx, db); err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
}

func TestLoadNodeTypesMatchesBuiltins(t *testing.T) {
	s := openTestStore(t)

	types, err := s.LoadNodeTypes(context.Background())
	if err != nil {
		t.Fatalf("load node types: %v", err)
	}
	want := nodetype.Default().Entries()
	got := types.Entries()
	if len(got) != len(want) {
		t.Fatalf("expected %d node types, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReplaceDocumentRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	docID := model.NewDocumentID()

	source := "# Title\n\nSome *text* with a [link](https://example.com \"t\").\n\n- [x] done\n- open\n\n| a | b |\n| :-- | --: |\n| 1 | 2 |\n\n![alt](img.png)\n\n```go\nfmt.Println()\n```\n"
	snap := parseSnapshot(t, docID, source)

	if err := s.ReplaceDocument(ctx, docID, snap); err != nil {
		t.Fatalf("replace document: %v", err)
	}

	loaded, err := s.Load(ctx, docID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(loaded.Bases) != len(snap.Bases) {
		t.Fatalf("expected %d bases, got %d", len(snap.Bases), len(loaded.Bases))
	}
	if len(loaded.Texts) != len(snap.Texts) || len(loaded.Ranges) != len(snap.Ranges) {
		t.Fatalf("text/range counts differ: %d/%d vs %d/%d", len(loaded.Texts), len(loaded.Ranges), len(snap.Texts), len(snap.Ranges))
	}
	if len(loaded.Headings) != 1 || loaded.Headings[0].Level != 1 {
		t.Fatalf("unexpected headings: %+v", loaded.Headings)
	}
	if len(loaded.Tasks) != 1 || !loaded.Tasks[0].Checked {
		t.Fatalf("unexpected tasks: %+v", loaded.Tasks)
	}
	if len(loaded.Tables) != 1 || len(loaded.Tables[0].Alignments) != 2 ||
		loaded.Tables[0].Alignments[0] != model.AlignLeft || loaded.Tables[0].Alignments[1] != model.AlignRight {
		t.Fatalf("unexpected tables: %+v", loaded.Tables)
	}
	if len(loaded.Links) != 1 || loaded.Links[0].LinkType != model.LinkInline || loaded.Links[0].Title != "t" {
		t.Fatalf("unexpected links: %+v", loaded.Links)
	}
	if len(loaded.CodeBlocks) != 1 || loaded.CodeBlocks[0].Language == nil || *loaded.CodeBlocks[0].Language != "go" {
		t.Fatalf("unexpected code blocks: %+v", loaded.CodeBlocks)
	}

	types := nodetype.Default()
	ser := markdown.NewSerializer(types)
	before, err := tree.Build(snap)
	if err != nil {
		t.Fatalf("build parsed tree: %v", err)
	}
	after, err := tree.Build(loaded)
	if err != nil {
		t.Fatalf("build loaded tree: %v", err)
	}
	want, err := ser.Serialize(before)
	if err != nil {
		t.Fatalf("serialize parsed: %v", err)
	}
	got, err := ser.Serialize(after)
	if err != nil {
		t.Fatalf("serialize loaded: %v", err)
	}
	if got != want {
		t.Fatalf("stored tree serializes differently:\n%s\n---\n%s", got, want)
	}

	// A second replace overwrites rather than duplicates.
	if err := s.ReplaceDocument(ctx, docID, parseSnapshot(t, docID, "plain\n")); err != nil {
		t.Fatalf("replace again: %v", err)
	}
	loaded, err = s.Load(ctx, docID)
	if err != nil {
		t.Fatalf("load again: %v", err)
	}
	if len(loaded.Headings) != 0 || len(loaded.Tables) != 0 {
		t.Fatalf("old records survived replace: %+v", loaded)
	}
}

func TestReplaceNodesRemovesOnlyListedNodes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	docID := model.NewDocumentID()

	snap := parseSnapshot(t, docID, "first\n\nsecond\n")
	if err := s.ReplaceDocument(ctx, docID, snap); err != nil {
		t.Fatalf("replace document: %v", err)
	}
	built, err := tree.Build(snap)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(built.Roots) != 2 {
		t.Fatalf("expected two paragraphs, got %d roots", len(built.Roots))
	}
	remove := append([]model.NodeID{built.Roots[0]}, tree.Descendants(built, built.Roots[0])...)

	if err := s.ReplaceNodes(ctx, remove, model.NodeSnapshot{}); err != nil {
		t.Fatalf("replace nodes: %v", err)
	}
	loaded, err := s.Load(ctx, docID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	after, err := tree.Build(loaded)
	if err != nil {
		t.Fatalf("build loaded: %v", err)
	}
	if len(after.Roots) != 1 || after.Roots[0] != built.Roots[1] {
		t.Fatalf("expected only the second paragraph to remain, got %v", after.Roots)
	}
}

func TestWikiBacklinks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	docID := model.NewDocumentID()
	target := model.NewNodeID()

	snap := parseSnapshot(t, docID, "see [["+target.String()+"|there]]\n")
	if len(snap.Wikis) != 1 {
		t.Fatalf("expected one wiki record, got %d", len(snap.Wikis))
	}
	if err := s.ReplaceDocument(ctx, docID, snap); err != nil {
		t.Fatalf("replace: %v", err)
	}
	links, err := s.WikiBacklinks(ctx, target)
	if err != nil {
		t.Fatalf("backlinks: %v", err)
	}
	if len(links) != 1 || links[0] != snap.Wikis[0].NodeID {
		t.Fatalf("unexpected backlinks: %v", links)
	}
}

func TestDocumentsAndWorkspaceResolution(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ws, err := s.CreateWorkspace(ctx, "Research")
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	folder, err := s.CreateFolder(ctx, ws.ID, "notes")
	if err != nil {
		t.Fatalf("create folder: %v", err)
	}
	doc, err := s.CreateDocument(ctx, model.Document{FolderID: folder.ID, Path: "notes/a.md", Title: "A"})
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	if doc.Ext != "md" {
		t.Fatalf("expected default ext md, got %q", doc.Ext)
	}

	got, err := s.WorkspaceOfDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("workspace of document: %v", err)
	}
	if got == nil || *got != ws.ID {
		t.Fatalf("expected workspace %s, got %v", ws.ID, got)
	}

	missing, err := s.WorkspaceOfDocument(ctx, model.NewDocumentID())
	if err != nil || missing != nil {
		t.Fatalf("expected nil workspace for unknown document, got %v, %v", missing, err)
	}

	if err := s.UpdateDocumentHash(ctx, doc.ID, "abc"); err != nil {
		t.Fatalf("update hash: %v", err)
	}
	reloaded, err := s.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if reloaded.ContentHash != "abc" {
		t.Fatalf("expected hash abc, got %q", reloaded.ContentHash)
	}

	if _, err := s.CreateDocument(ctx, model.Document{FolderID: folder.ID, Path: "../escape.md", Title: "x"}); err == nil {
		t.Fatal("expected validation error for relative escape")
	}

	if err := s.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("delete document: %v", err)
	}
	if _, err := s.GetDocument(ctx, doc.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSettingsUpsertAndLookup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	q := model.SettingQuery{UserID: "u1", Scope: model.ScopeGlobal, Namespace: model.NamespaceMarkmap, Key: "initial_expand_level"}
	got, err := s.GetSetting(ctx, q)
	if err != nil || got != nil {
		t.Fatalf("expected no setting yet, got %v, %v", got, err)
	}

	first, err := s.PutSetting(ctx, model.UserSetting{UserID: "u1", Scope: model.ScopeGlobal, ScopeID: "ignored", Namespace: model.NamespaceMarkmap, Key: "initial_expand_level", ValueJSON: "2"})
	if err != nil {
		t.Fatalf("put setting: %v", err)
	}
	if first.ScopeID != "" {
		t.Fatalf("global scope id should be cleared, got %q", first.ScopeID)
	}

	second, err := s.PutSetting(ctx, model.UserSetting{UserID: "u1", Scope: model.ScopeGlobal, Namespace: model.NamespaceMarkmap, Key: "initial_expand_level", ValueJSON: "3"})
	if err != nil {
		t.Fatalf("overwrite setting: %v", err)
	}
	if second.ID != first.ID || second.ValueJSON != "3" {
		t.Fatalf("expected in-place update, got %+v then %+v", first, second)
	}

	if _, err := s.PutSetting(ctx, model.UserSetting{UserID: "u1", Scope: "team", Namespace: "markmap", Key: "k", ValueJSON: "1"}); err == nil {
		t.Fatal("expected invalid scope to be rejected")
	}

	list, err := s.ListSettings(ctx, "u1", model.NamespaceMarkmap)
	if err != nil {
		t.Fatalf("list settings: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one setting, got %d", len(list))
	}
}
