package export

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"lattice/api/internal/index"
	"lattice/api/internal/model"
	"lattice/api/internal/nodetype"
	"lattice/api/internal/parser"
	"lattice/api/internal/render/html"
	"lattice/api/internal/tree"
)

type fixture struct {
	doc  model.Document
	tree *tree.NodeTree
}

func (f *fixture) GetDocument(_ context.Context, id model.DocumentID) (model.Document, error) {
	if id != f.doc.ID {
		return model.Document{}, errors.New("not found")
	}
	return f.doc, nil
}

func (f *fixture) LoadTree(_ context.Context, id model.DocumentID) (*tree.NodeTree, error) {
	if id != f.doc.ID {
		return nil, errors.New("not found")
	}
	return f.tree, nil
}

func newFixture(t *testing.T, title, markdown string) *fixture {
	t.Helper()
	doc := model.Document{
		ID:        model.NewDocumentID(),
		Path:      "notes/plan.md",
		Title:     title,
		Lang:      "en",
		UpdatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	sink := index.NewCollectingSink()
	if _, err := parser.New(nodetype.Default()).Parse(markdown, doc.ID, sink); err != nil {
		t.Fatalf("parse: %v", err)
	}
	nt, err := tree.Build(sink.Snapshot())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return &fixture{doc: doc, tree: nt}
}

func newTestService(f *fixture) *Service {
	return NewService(f, f, nodetype.Default(), html.New())
}

func TestExportMarkdown(t *testing.T) {
	f := newFixture(t, "Release Plan", "# Goals\n\nShip it.\n")
	res, err := newTestService(f).Export(context.Background(), Request{DocumentID: f.doc.ID, Format: FormatMarkdown})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if res.Filename != "release-plan.md" {
		t.Fatalf("unexpected filename %q", res.Filename)
	}
	if !strings.Contains(string(res.Data), "# Goals") || !strings.Contains(string(res.Data), "Ship it.") {
		t.Fatalf("unexpected markdown %q", res.Data)
	}
	if !strings.HasPrefix(res.MimeType, "text/markdown") {
		t.Fatalf("unexpected mime type %q", res.MimeType)
	}
}

func TestExportHTMLWrapsDocument(t *testing.T) {
	f := newFixture(t, "Release Plan", "# Goals\n\nShip <script>alert(1)</script> it.\n")
	res, err := newTestService(f).Export(context.Background(), Request{DocumentID: f.doc.ID, Format: FormatHTML})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	page := string(res.Data)
	for _, want := range []string{"<!DOCTYPE html>", "<title>Release Plan</title>", "<h1", "Goals", `lang="en"`} {
		if !strings.Contains(page, want) {
			t.Fatalf("expected %q in page:\n%s", want, page)
		}
	}
	if strings.Contains(page, "<script>") {
		t.Fatal("script tag survived sanitization")
	}
	if res.Filename != "release-plan.html" {
		t.Fatalf("unexpected filename %q", res.Filename)
	}
}

func TestExportPDFUsesPrinter(t *testing.T) {
	f := newFixture(t, "Plan", "para\n")
	svc := newTestService(f)
	var printed string
	svc.pdf = func(_ context.Context, page, title string) (*Result, error) {
		printed = page
		return &Result{Data: []byte("%PDF"), Filename: Filename(title) + ".pdf", MimeType: "application/pdf"}, nil
	}
	res, err := svc.Export(context.Background(), Request{DocumentID: f.doc.ID, Format: FormatPDF})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if res.Filename != "plan.pdf" || !strings.Contains(printed, "para") {
		t.Fatalf("unexpected pdf result %q / %q", res.Filename, printed)
	}
}

func TestExportUnknownDocument(t *testing.T) {
	f := newFixture(t, "Plan", "para\n")
	_, err := newTestService(f).Export(context.Background(), Request{DocumentID: model.NewDocumentID(), Format: FormatMarkdown})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "md", want: FormatMarkdown},
		{in: "markdown", want: FormatMarkdown},
		{in: "HTML", want: FormatHTML},
		{in: "pdf", want: FormatPDF},
		{in: "docx", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			var verr *model.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("%s: expected validation error, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("%s: got %q, %v", tt.in, got, err)
		}
	}
}

func TestFilename(t *testing.T) {
	if got := Filename("Héllo, World!"); got != "hello-world" {
		t.Fatalf("got %q", got)
	}
	if got := Filename("!!!"); got != "document" {
		t.Fatalf("got %q", got)
	}
	if got := Filename(strings.Repeat("abc ", 30)); len(got) > 50 || strings.HasSuffix(got, "-") {
		t.Fatalf("got %q", got)
	}
}

func TestHTMLDataURL(t *testing.T) {
	if got := htmlDataURL("a b<é"); got != "data:text/html;charset=utf-8,a%20b%3C%C3%A9" {
		t.Fatalf("got %q", got)
	}
}

func TestFindBrowser(t *testing.T) {
	onPath := func(names ...string) func(string) (string, error) {
		return func(name string) (string, error) {
			for _, n := range names {
				if n == name {
					return "/usr/bin/" + name, nil
				}
			}
			return "", exec.ErrNotFound
		}
	}
	noEnv := func(string) string { return "" }

	got, err := findBrowser(noEnv, onPath("chromium", "google-chrome"))
	if err != nil || got != "/usr/bin/chromium" {
		t.Fatalf("expected chromium, got %q %v", got, err)
	}

	_, err = findBrowser(noEnv, onPath())
	if !errors.Is(err, ErrPDFDependencyMissing) {
		t.Fatalf("expected ErrPDFDependencyMissing, got %v", err)
	}

	explicit := func(string) string { return "/opt/chrome" }
	_, err = findBrowser(explicit, onPath("chromium"))
	if !errors.Is(err, ErrPDFDependencyMissing) {
		t.Fatalf("unresolvable CHROME_PATH should not fall back, got %v", err)
	}
}

func TestPageFooterEscapesTitle(t *testing.T) {
	footer := pageFooter(`Q&A <draft>`)
	if !strings.Contains(footer, "Q&amp;A &lt;draft&gt;") || !strings.Contains(footer, `class="totalPages"`) {
		t.Fatalf("unexpected footer %q", footer)
	}
}
