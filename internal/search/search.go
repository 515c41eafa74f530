package search

import (
	"strings"

	"lattice/api/internal/model"
	"lattice/api/internal/nodetype"
	"lattice/api/internal/render/markdown"
	"lattice/api/internal/tree"
)

// NodeRecord is the data we index for one block node.
type NodeRecord struct {
	ID            string `json:"id"`
	DocumentID    string `json:"documentId"`
	DocumentTitle string `json:"documentTitle"`
	Kind          string `json:"kind"`
	HeadingLevel  int    `json:"headingLevel,omitempty"`
	Section       string `json:"section"`
	Text          string `json:"text"`
}

// Result is a single search hit returned to the caller.
type Result struct {
	ID            string `json:"id"`
	DocumentID    string `json:"documentId"`
	DocumentTitle string `json:"documentTitle"`
	Kind          string `json:"kind"`
	Section       string `json:"section,omitempty"`
	Snippet       string `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text       string
	DocumentID string
	Kind       string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push node records into a search index.
type Indexer interface {
	ReplaceDocumentNodes(documentID string, records []NodeRecord) error
	DeleteDocumentNodes(documentID string) error
}

var indexedKinds = map[model.Kind]bool{
	model.KindHeading:   true,
	model.KindParagraph: true,
	model.KindCodeBlock: true,
	model.KindHtmlBlock: true,
	model.KindListItem:  true,
	model.KindTask:      true,
	model.KindTable:     true,
}

type section struct {
	level int
	title string
}

// BuildRecords extracts headings and text blocks. Section is the path of
// enclosing heading titles, outermost first, joined with " / ".
func BuildRecords(types nodetype.Snapshot, t *tree.NodeTree, doc model.Document) []NodeRecord {
	var records []NodeRecord
	var sections []section

	t.Walk(func(rec *tree.NodeRecord, depth int) bool {
		kind, err := types.KindByID(rec.Base.NodeTypeID)
		if err != nil || !indexedKinds[kind] {
			return true
		}
		text := strings.TrimSpace(markdown.PlainText(types, t, rec.ID()))
		if text == "" {
			return false
		}

		record := NodeRecord{
			ID:            rec.ID().String(),
			DocumentID:    doc.ID.String(),
			DocumentTitle: doc.Title,
			Kind:          kind.String(),
			Text:          text,
		}
		if kind == model.KindHeading && rec.Heading != nil {
			record.HeadingLevel = rec.Heading.Level
			if depth == 0 {
				for len(sections) > 0 && sections[len(sections)-1].level >= rec.Heading.Level {
					sections = sections[:len(sections)-1]
				}
				record.Section = joinSections(sections)
				sections = append(sections, section{level: rec.Heading.Level, title: text})
				records = append(records, record)
				return false
			}
		}
		record.Section = joinSections(sections)
		records = append(records, record)
		return false
	})
	return records
}

func joinSections(sections []section) string {
	titles := make([]string, 0, len(sections))
	for _, s := range sections {
		titles = append(titles, s.title)
	}
	return strings.Join(titles, " / ")
}
