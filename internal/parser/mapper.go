package parser

import (
	"strings"

	"lattice/api/internal/model"
)

type ActionOp int

const (
	ActionPush ActionOp = iota
	ActionEmit
	ActionClose
)

// Action is what a mapper decided to do with one event.
type Action struct {
	Op       ActionOp
	NodeType model.NodeType
	Text     *string
	// Closes lists the kinds an ActionClose may match on the stack.
	Closes []model.Kind
	Start  int
	End    int
}

// Mapper translates one event into at most one action. A mapper that
// returns matched=false lets the next mapper in the chain try.
type Mapper interface {
	Map(ev Event) (action *Action, matched bool)
}

// ChainMapper tries mappers in order; the first match wins.
type ChainMapper struct {
	mappers []Mapper
}

func NewChainMapper(mappers ...Mapper) *ChainMapper {
	return &ChainMapper{mappers: mappers}
}

func (c *ChainMapper) Map(ev Event) (*Action, bool) {
	for _, m := range c.mappers {
		if action, ok := m.Map(ev); ok {
			return action, true
		}
	}
	return nil, false
}

// TextMapper accumulates text-like events into one pending run.
type TextMapper struct {
	buf     strings.Builder
	start   int
	end     int
	pending bool
}

func (t *TextMapper) Map(ev Event) (*Action, bool) {
	switch ev.Kind {
	case EventText, EventHTML:
		t.append(ev.Text, ev.Start, ev.End)
	case EventSoftBreak:
		t.append(" ", ev.Start, ev.End)
	case EventHardBreak:
		t.append("\n", ev.Start, ev.End)
	default:
		return nil, false
	}
	return nil, true
}

func (t *TextMapper) append(value string, start, end int) {
	if !t.pending {
		t.start, t.end = start, end
		t.pending = true
	} else {
		if start < t.start {
			t.start = start
		}
		if end > t.end {
			t.end = end
		}
	}
	t.buf.WriteString(value)
}

// Flush returns the accumulated run and resets the mapper. ok is false when
// nothing non-empty was accumulated.
func (t *TextMapper) Flush() (text string, start, end int, ok bool) {
	if !t.pending {
		return "", 0, 0, false
	}
	text, start, end = t.buf.String(), t.start, t.end
	t.buf.Reset()
	t.pending = false
	return text, start, end, text != ""
}

// DefaultMapper maps structural and leaf events to tree actions.
type DefaultMapper struct{}

func (DefaultMapper) Map(ev Event) (*Action, bool) {
	switch ev.Kind {
	case EventStart:
		return &Action{Op: ActionPush, NodeType: nodeTypeForTag(ev.Tag), Start: ev.Start}, true
	case EventEnd:
		return &Action{Op: ActionClose, Closes: closesForTag(ev.Tag), End: ev.End}, true
	case EventCode:
		return emit(model.Plain(model.KindCodeInline), normalizeOptional(ev.Text), ev), true
	case EventInlineMath:
		return emit(model.Plain(model.KindMathInline), normalizeOptional(ev.Text), ev), true
	case EventDisplayMath:
		return emit(model.Plain(model.KindMathDisplay), normalizeOptional(ev.Text), ev), true
	case EventInlineHTML:
		return emit(model.Plain(model.KindHtmlInline), normalizeOptional(ev.Text), ev), true
	case EventFootnoteReference:
		return emit(model.FootnoteReferenceType{Label: ev.Text}, normalizeOptional(ev.Text), ev), true
	case EventRule:
		return emit(model.Plain(model.KindHorizontalRule), nil, ev), true
	case EventWiki:
		if ev.Wiki == nil {
			return nil, false
		}
		return emit(model.WikiType{Target: ev.Wiki.Target, Display: ev.Wiki.Display}, normalizeOptional(ev.Wiki.Display), ev), true
	}
	return nil, false
}

func emit(nt model.NodeType, text *string, ev Event) *Action {
	return &Action{Op: ActionEmit, NodeType: nt, Text: text, Start: ev.Start, End: ev.End}
}

func normalizeOptional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func nodeTypeForTag(tag Tag) model.NodeType {
	switch tag.Kind {
	case TagParagraph:
		return model.Plain(model.KindParagraph)
	case TagHeading:
		return model.HeadingType{Level: tag.Level}
	case TagBlockQuote:
		return model.Plain(model.KindBlockQuote)
	case TagCodeBlock:
		return model.CodeBlockType{Language: tag.Language}
	case TagHTMLBlock:
		return model.Plain(model.KindHtmlBlock)
	case TagList:
		order := 0
		if tag.ListStart != nil {
			order = *tag.ListStart
		}
		return model.ListType{Order: order}
	case TagItem:
		return model.ListType{Order: tag.ItemOrder, IsItem: true}
	case TagFootnoteDefinition:
		return model.FootnoteDefinitionType{Label: tag.Label}
	case TagDefinitionList:
		return model.Plain(model.KindDefinitionList)
	case TagDefinitionListTitle:
		return model.Plain(model.KindDefinitionListTitle)
	case TagDefinitionListDefinition:
		return model.Plain(model.KindDefinitionListDefinition)
	case TagTable:
		return model.TableType{Alignments: tag.Alignments}
	case TagTableHead:
		return model.Plain(model.KindTableHead)
	case TagTableRow:
		return model.Plain(model.KindTableRow)
	case TagTableCell:
		return model.Plain(model.KindTableCell)
	case TagEmphasis:
		return model.Plain(model.KindEmphasis)
	case TagStrong:
		return model.Plain(model.KindStrong)
	case TagStrikethrough:
		return model.Plain(model.KindStrikethrough)
	case TagSuperscript:
		return model.Plain(model.KindSuperscript)
	case TagSubscript:
		return model.Plain(model.KindSubscript)
	case TagLink:
		return model.LinkType{Href: tag.Dest, Title: tag.Title, LinkKind: tag.LinkKind, RefID: tag.RefID}
	case TagImage:
		return model.ImageType{Src: tag.Dest, Title: tag.Title}
	case TagMetadataBlock:
		return model.MetadataBlockType{Style: tag.MetadataStyle}
	}
	return model.Plain(model.KindUnknown)
}

// closesForTag is the set of kinds an end tag may close. A list item may
// have been retyped into a task by its marker.
func closesForTag(tag Tag) []model.Kind {
	if tag.Kind == TagItem {
		return []model.Kind{model.KindListItem, model.KindTask}
	}
	return []model.Kind{nodeTypeForTag(tag).Kind()}
}
