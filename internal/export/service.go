package export

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/gosimple/slug"

	"lattice/api/internal/model"
	"lattice/api/internal/nodetype"
	"lattice/api/internal/render/markdown"
	"lattice/api/internal/tree"
)

// DocumentReader loads document metadata.
type DocumentReader interface {
	GetDocument(ctx context.Context, id model.DocumentID) (model.Document, error)
}

type TreeLoader interface {
	LoadTree(ctx context.Context, docID model.DocumentID) (*tree.NodeTree, error)
}

// HTMLRenderer turns markdown into a sanitized HTML fragment.
type HTMLRenderer interface {
	Render(markdown string) (string, error)
}

// PDFFunc prints a standalone HTML page to PDF.
type PDFFunc func(ctx context.Context, html, title string) (*Result, error)

// Service provides document export functionality
type Service struct {
	docs       DocumentReader
	trees      TreeLoader
	serializer *markdown.Serializer
	html       HTMLRenderer
	pdf        PDFFunc
}

func NewService(docs DocumentReader, trees TreeLoader, types nodetype.Snapshot, html HTMLRenderer) *Service {
	return &Service{
		docs:       docs,
		trees:      trees,
		serializer: markdown.NewSerializer(types),
		html:       html,
		pdf:        printPDF,
	}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	doc, err := s.docs.GetDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	t, err := s.trees.LoadTree(ctx, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("load tree: %w", err)
	}
	md, err := s.serializer.Serialize(t)
	if err != nil {
		return nil, fmt.Errorf("serialize document: %w", err)
	}

	if req.Format == FormatMarkdown {
		return &Result{
			Data:     []byte(md),
			Filename: Filename(doc.Title) + ".md",
			MimeType: "text/markdown; charset=utf-8",
		}, nil
	}

	body, err := s.html.Render(md)
	if err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	page, err := RenderDocumentHTML(TemplateData{
		Title:       doc.Title,
		Path:        doc.Path,
		Lang:        doc.Lang,
		ContentHTML: template.HTML(body),
		UpdatedAt:   doc.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML:
		return &Result{
			Data:     []byte(page),
			Filename: Filename(doc.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return s.pdf(ctx, page, doc.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

// Filename is a safe, lowercase file stem for a title.
func Filename(title string) string {
	name := slug.Make(title)
	if len(name) > 50 {
		name = strings.TrimRight(name[:50], "-")
	}
	if name == "" {
		name = "document"
	}
	return name
}
