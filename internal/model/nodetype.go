package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the markdown construct a node represents.
type Kind int

const (
	KindUnknown Kind = iota
	KindHeading
	KindList
	KindListItem
	KindCodeBlock
	KindTable
	KindImage
	KindLink
	KindTask
	KindWiki
	KindParagraph
	KindBlockQuote
	KindHtmlBlock
	KindCodeInline
	KindTableHead
	KindTableRow
	KindTableCell
	KindEmphasis
	KindStrong
	KindStrikethrough
	KindSuperscript
	KindSubscript
	KindFootnoteDefinition
	KindFootnoteReference
	KindDefinitionList
	KindDefinitionListTitle
	KindDefinitionListDefinition
	KindMetadataBlock
	KindMathInline
	KindMathDisplay
	KindHtmlInline
	KindHorizontalRule
	KindText
)

var kindNames = map[Kind]string{
	KindHeading:                  "Heading",
	KindList:                     "List",
	KindListItem:                 "ListItem",
	KindCodeBlock:                "CodeBlock",
	KindTable:                    "Table",
	KindImage:                    "Image",
	KindLink:                     "Link",
	KindTask:                     "Task",
	KindWiki:                     "Wiki",
	KindParagraph:                "Paragraph",
	KindBlockQuote:               "BlockQuote",
	KindHtmlBlock:                "HtmlBlock",
	KindCodeInline:               "CodeInline",
	KindTableHead:                "TableHead",
	KindTableRow:                 "TableRow",
	KindTableCell:                "TableCell",
	KindEmphasis:                 "Emphasis",
	KindStrong:                   "Strong",
	KindStrikethrough:            "Strikethrough",
	KindSuperscript:              "Superscript",
	KindSubscript:                "Subscript",
	KindFootnoteDefinition:       "FootnoteDefinition",
	KindFootnoteReference:        "FootnoteReference",
	KindDefinitionList:           "DefinitionList",
	KindDefinitionListTitle:      "DefinitionListTitle",
	KindDefinitionListDefinition: "DefinitionListDefinition",
	KindMetadataBlock:            "MetadataBlock",
	KindMathInline:               "MathInline",
	KindMathDisplay:              "MathDisplay",
	KindHtmlInline:               "HtmlInline",
	KindHorizontalRule:           "HorizontalRule",
	KindText:                     "Text",
}

// AllKinds lists every known kind in id order.
func AllKinds() []Kind {
	kinds := make([]Kind, 0, len(kindNames))
	for k := KindHeading; k <= KindText; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// KindFromName maps a stored node type name back to its kind. Unrecognised
// names map to KindUnknown.
func KindFromName(name string) Kind {
	for k, n := range kindNames {
		if n == name {
			return k
		}
	}
	return KindUnknown
}

// IsInline reports whether the kind renders inside a line of text.
func (k Kind) IsInline() bool {
	switch k {
	case KindText, KindEmphasis, KindStrong, KindStrikethrough, KindSuperscript,
		KindSubscript, KindCodeInline, KindMathInline, KindMathDisplay, KindHtmlInline,
		KindFootnoteReference, KindLink, KindImage, KindWiki:
		return true
	}
	return false
}

// IsTablePart reports whether the kind only appears inside a table.
func (k Kind) IsTablePart() bool {
	return k == KindTableHead || k == KindTableRow || k == KindTableCell
}

type Alignment int

const (
	AlignNone Alignment = iota
	AlignLeft
	AlignCenter
	AlignRight
)

// LinkKind is how a link was written in the source.
type LinkKind struct {
	Name string
	// HasPothole is set for wiki links written as [[target|display]].
	HasPothole bool
}

var (
	LinkInline           = LinkKind{Name: "Inline"}
	LinkReference        = LinkKind{Name: "Reference"}
	LinkReferenceUnknown = LinkKind{Name: "ReferenceUnknown"}
	LinkCollapsed        = LinkKind{Name: "Collapsed"}
	LinkCollapsedUnknown = LinkKind{Name: "CollapsedUnknown"}
	LinkShortcut         = LinkKind{Name: "Shortcut"}
	LinkShortcutUnknown  = LinkKind{Name: "ShortcutUnknown"}
	LinkAutolink         = LinkKind{Name: "Autolink"}
	LinkEmail            = LinkKind{Name: "Email"}
)

const linkWikiName = "WikiLink"

func LinkWiki(hasPothole bool) LinkKind {
	return LinkKind{Name: linkWikiName, HasPothole: hasPothole}
}

func (l LinkKind) String() string {
	if l.Name == linkWikiName {
		return linkWikiName + ":" + strconv.FormatBool(l.HasPothole)
	}
	return l.Name
}

func ParseLinkKind(raw string) (LinkKind, error) {
	if rest, ok := strings.CutPrefix(raw, linkWikiName+":"); ok {
		pothole, err := strconv.ParseBool(rest)
		if err != nil {
			return LinkKind{}, fmt.Errorf("parse link type %q: %w", raw, err)
		}
		return LinkWiki(pothole), nil
	}
	switch raw {
	case "Inline", "Reference", "ReferenceUnknown", "Collapsed", "CollapsedUnknown",
		"Shortcut", "ShortcutUnknown", "Autolink", "Email":
		return LinkKind{Name: raw}, nil
	}
	return LinkKind{}, fmt.Errorf("unknown link type %q", raw)
}

// NodeType is the typed payload of one node. The set of implementations is
// closed and lives in this file.
type NodeType interface {
	Kind() Kind
}

// Plain is a node type without attributes.
type Plain Kind

func (p Plain) Kind() Kind { return Kind(p) }

type HeadingType struct{ Level int }

func (HeadingType) Kind() Kind { return KindHeading }

// ListType is a List, or a ListItem when IsItem is set.
type ListType struct {
	Order  int
	IsItem bool
}

func (l ListType) Kind() Kind {
	if l.IsItem {
		return KindListItem
	}
	return KindList
}

type CodeBlockType struct{ Language *string }

func (CodeBlockType) Kind() Kind { return KindCodeBlock }

type TableType struct{ Alignments []Alignment }

func (TableType) Kind() Kind { return KindTable }

type ImageType struct {
	Src   string
	Alt   *string
	Title string
}

func (ImageType) Kind() Kind { return KindImage }

type LinkType struct {
	Href     string
	Title    string
	LinkKind LinkKind
	RefID    string
}

func (LinkType) Kind() Kind { return KindLink }

type TaskType struct{ Checked bool }

func (TaskType) Kind() Kind { return KindTask }

type FootnoteDefinitionType struct{ Label string }

func (FootnoteDefinitionType) Kind() Kind { return KindFootnoteDefinition }

type FootnoteReferenceType struct{ Label string }

func (FootnoteReferenceType) Kind() Kind { return KindFootnoteReference }

type WikiType struct {
	Target  NodeID
	Display string
}

func (WikiType) Kind() Kind { return KindWiki }

// MetadataBlockType is front matter; Style is "YamlStyle" or "PlusesStyle".
type MetadataBlockType struct{ Style string }

func (MetadataBlockType) Kind() Kind { return KindMetadataBlock }
