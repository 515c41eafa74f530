package parser

import "lattice/api/internal/model"

// EventKind enumerates the markdown events the stack machine consumes.
type EventKind int

const (
	EventStart EventKind = iota
	EventEnd
	EventText
	EventSoftBreak
	EventHardBreak
	EventHTML
	EventInlineHTML
	EventCode
	EventInlineMath
	EventDisplayMath
	EventFootnoteReference
	EventRule
	EventTaskListMarker
	EventWiki
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "Start"
	case EventEnd:
		return "End"
	case EventText:
		return "Text"
	case EventSoftBreak:
		return "SoftBreak"
	case EventHardBreak:
		return "HardBreak"
	case EventHTML:
		return "Html"
	case EventInlineHTML:
		return "InlineHtml"
	case EventCode:
		return "Code"
	case EventInlineMath:
		return "InlineMath"
	case EventDisplayMath:
		return "DisplayMath"
	case EventFootnoteReference:
		return "FootnoteReference"
	case EventRule:
		return "Rule"
	case EventTaskListMarker:
		return "TaskListMarker"
	case EventWiki:
		return "Wiki"
	}
	return "Unknown"
}

type TagKind int

const (
	TagParagraph TagKind = iota
	TagHeading
	TagBlockQuote
	TagCodeBlock
	TagHTMLBlock
	TagList
	TagItem
	TagFootnoteDefinition
	TagDefinitionList
	TagDefinitionListTitle
	TagDefinitionListDefinition
	TagTable
	TagTableHead
	TagTableRow
	TagTableCell
	TagEmphasis
	TagStrong
	TagStrikethrough
	TagSuperscript
	TagSubscript
	TagLink
	TagImage
	TagMetadataBlock
)

// Tag is the payload of Start and End events. Only the fields relevant to
// Kind are set.
type Tag struct {
	Kind TagKind

	Level      int
	Language   *string
	ListStart  *int
	ItemOrder  int
	Alignments []model.Alignment

	LinkKind model.LinkKind
	Dest     string
	Title    string
	RefID    string

	Label         string
	MetadataStyle string
}

// Event is one step of the forward pass. Start and End are byte offsets into
// the original markdown.
type Event struct {
	Kind    EventKind
	Tag     Tag
	Text    string
	Checked bool
	Wiki    *WikiTarget
	Start   int
	End     int
}

type WikiTarget struct {
	Target  model.NodeID
	Display string
}
