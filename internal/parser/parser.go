// Package parser turns markdown into flat node records delivered through a
// Sink. Parsing is a single forward pass of a stack machine over markdown
// events; malformed input never aborts it and degrades to warnings instead.
package parser

import (
	"fmt"
	"time"

	"github.com/yuin/goldmark"

	"lattice/api/internal/model"
	"lattice/api/internal/nodetype"
)

const (
	WarnEndTagMissingStart = "markdown parser end tag missing start"
	WarnOpenNodes          = "markdown parser ended with open nodes"
	WarnTaskWithoutItem    = "markdown parser task marker without list item"
)

// Sink receives node records as the parser produces them.
type Sink interface {
	PushBase(base model.NodeBase) error
	PushNodeType(id model.NodeID, nodeType model.NodeType) error
	PushText(text model.NodeText) error
	PushRange(r model.NodeRange) error
	UpdateBaseType(id model.NodeID, nodeTypeID int64) error
	Flush() error
}

type Result struct {
	Warnings []string
}

type Parser struct {
	types nodetype.Snapshot
	md    goldmark.Markdown
	now   func() time.Time
}

func New(types nodetype.Snapshot) *Parser {
	return &Parser{types: types, md: newMarkdown(), now: time.Now}
}

// Parse runs one forward pass over markdown and streams records into sink.
func (p *Parser) Parse(markdown string, docID model.DocumentID, sink Sink) (Result, error) {
	events, warnings := collectEvents(p.md, markdown)
	st := &state{
		parser: p,
		docID:  docID,
		sink:   sink,
		now:    p.now(),
		text:   &TextMapper{},
	}
	st.warnings = append(st.warnings, warnings...)
	st.mapper = NewChainMapper(st.text, DefaultMapper{})

	for _, ev := range events {
		if err := st.handle(ev); err != nil {
			return Result{Warnings: st.warnings}, err
		}
	}
	if err := st.flushText(); err != nil {
		return Result{Warnings: st.warnings}, err
	}
	if err := st.closeRemaining(len(markdown)); err != nil {
		return Result{Warnings: st.warnings}, err
	}
	if err := sink.Flush(); err != nil {
		return Result{Warnings: st.warnings}, fmt.Errorf("flush sink: %w", err)
	}
	return Result{Warnings: st.warnings}, nil
}

type stackEntry struct {
	id     model.NodeID
	kind   model.Kind
	typeID int64
	start  int
}

type state struct {
	parser   *Parser
	docID    model.DocumentID
	sink     Sink
	now      time.Time
	text     *TextMapper
	mapper   Mapper
	stack    []stackEntry
	warnings []string
}

func isTextEvent(kind EventKind) bool {
	switch kind {
	case EventText, EventSoftBreak, EventHardBreak, EventHTML:
		return true
	}
	return false
}

func (st *state) handle(ev Event) error {
	if !isTextEvent(ev.Kind) {
		if err := st.flushText(); err != nil {
			return err
		}
	}
	if ev.Kind == EventTaskListMarker {
		return st.retypeTask(ev.Checked)
	}
	action, ok := st.mapper.Map(ev)
	if !ok || action == nil {
		return nil
	}
	switch action.Op {
	case ActionPush:
		return st.push(action.NodeType, action.Start)
	case ActionEmit:
		return st.emit(action.NodeType, action.Text, action.Start, action.End)
	case ActionClose:
		return st.close(action.Closes, action.End)
	}
	return nil
}

func (st *state) typeID(nt model.NodeType) (int64, error) {
	if h, ok := nt.(model.HeadingType); ok {
		if err := model.ValidateHeadingLevel(h.Level); err != nil {
			return 0, err
		}
	}
	id, err := st.parser.types.IDByKind(nt.Kind())
	if err != nil {
		return 0, fmt.Errorf("resolve node type %s: %w", nt.Kind(), err)
	}
	return id, nil
}

func (st *state) parent() *model.NodeID {
	if len(st.stack) == 0 {
		return nil
	}
	id := st.stack[len(st.stack)-1].id
	return &id
}

func (st *state) pushBase(nt model.NodeType) (model.NodeID, int64, error) {
	typeID, err := st.typeID(nt)
	if err != nil {
		return model.NodeID{}, 0, err
	}
	id := model.NewNodeID()
	base := model.NodeBase{
		ID:         id,
		DocID:      st.docID,
		ParentID:   st.parent(),
		NodeTypeID: typeID,
		CreatedAt:  st.now,
		UpdatedAt:  st.now,
	}
	if err := st.sink.PushBase(base); err != nil {
		return model.NodeID{}, 0, fmt.Errorf("push base: %w", err)
	}
	return id, typeID, nil
}

func (st *state) push(nt model.NodeType, start int) error {
	id, typeID, err := st.pushBase(nt)
	if err != nil {
		return err
	}
	st.stack = append(st.stack, stackEntry{id: id, kind: nt.Kind(), typeID: typeID, start: start})
	if err := st.sink.PushNodeType(id, nt); err != nil {
		return fmt.Errorf("push node type: %w", err)
	}
	return nil
}

func (st *state) emit(nt model.NodeType, text *string, start, end int) error {
	id, _, err := st.pushBase(nt)
	if err != nil {
		return err
	}
	if err := st.sink.PushNodeType(id, nt); err != nil {
		return fmt.Errorf("push node type: %w", err)
	}
	if text != nil {
		if err := st.sink.PushText(model.NodeText{NodeID: id, Text: *text}); err != nil {
			return fmt.Errorf("push text: %w", err)
		}
	}
	return st.pushRange(id, start, end)
}

func (st *state) pushRange(id model.NodeID, start, end int) error {
	if err := st.sink.PushRange(model.NodeRange{NodeID: id, Start: start, End: end, UpdatedAt: st.now}); err != nil {
		return fmt.Errorf("push range: %w", err)
	}
	return nil
}

// close pops the most recently opened entry whose type matches, which is not
// necessarily the top of the stack.
func (st *state) close(kinds []model.Kind, end int) error {
	ids := make(map[int64]struct{}, len(kinds))
	for _, k := range kinds {
		if id, err := st.parser.types.IDByKind(k); err == nil {
			ids[id] = struct{}{}
		}
	}
	for i := len(st.stack) - 1; i >= 0; i-- {
		entry := st.stack[i]
		if _, ok := ids[entry.typeID]; !ok {
			continue
		}
		st.stack = append(st.stack[:i], st.stack[i+1:]...)
		return st.pushRange(entry.id, entry.start, end)
	}
	st.warnings = append(st.warnings, WarnEndTagMissingStart)
	return nil
}

// retypeTask turns the list item that owns a task marker into a Task node.
// Loose items have a Paragraph open above the item.
func (st *state) retypeTask(checked bool) error {
	idx := -1
	if n := len(st.stack); n > 0 {
		switch {
		case st.stack[n-1].kind == model.KindListItem:
			idx = n - 1
		case st.stack[n-1].kind == model.KindParagraph && n > 1 && st.stack[n-2].kind == model.KindListItem:
			idx = n - 2
		}
	}
	if idx < 0 {
		st.warnings = append(st.warnings, WarnTaskWithoutItem)
		return nil
	}
	nt := model.TaskType{Checked: checked}
	typeID, err := st.typeID(nt)
	if err != nil {
		return err
	}
	entry := &st.stack[idx]
	entry.kind = model.KindTask
	entry.typeID = typeID
	if err := st.sink.UpdateBaseType(entry.id, typeID); err != nil {
		return fmt.Errorf("update base type: %w", err)
	}
	if err := st.sink.PushNodeType(entry.id, nt); err != nil {
		return fmt.Errorf("push node type: %w", err)
	}
	return nil
}

func (st *state) flushText() error {
	value, start, end, ok := st.text.Flush()
	if !ok {
		return nil
	}
	return st.emit(model.Plain(model.KindText), &value, start, end)
}

func (st *state) closeRemaining(length int) error {
	if len(st.stack) == 0 {
		return nil
	}
	st.warnings = append(st.warnings, WarnOpenNodes)
	for len(st.stack) > 0 {
		entry := st.stack[len(st.stack)-1]
		st.stack = st.stack[:len(st.stack)-1]
		if err := st.pushRange(entry.id, entry.start, length); err != nil {
			return err
		}
	}
	return nil
}
