package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"lattice/api/internal/model"
	"lattice/api/internal/nodetype"
)

const batchSize = 200

// sideTables lists every table keyed by node_id, children of nodes.
var sideTables = []string{
	"node_text",
	"node_range",
	"node_heading",
	"node_list",
	"node_code_block",
	"node_table",
	"node_image",
	"node_link",
	"node_task",
	"node_wiki",
	"node_footnote_definition",
}

// LoadNodeTypes reads the node_types table into an immutable snapshot.
func (s *Store) LoadNodeTypes(ctx context.Context) (nodetype.Snapshot, error) {
	var rows []struct {
		ID   int64  `db:"id"`
		Name string `db:"name"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, name FROM node_types ORDER BY id`); err != nil {
		return nodetype.Snapshot{}, fmt.Errorf("load node types: %w", err)
	}
	entries := make([]nodetype.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, nodetype.Entry{ID: row.ID, Name: row.Name})
	}
	snapshot, err := nodetype.New(entries)
	if err != nil {
		return nodetype.Snapshot{}, fmt.Errorf("load node types: %w", err)
	}
	return snapshot, nil
}

// Load returns every record of one document. Rows come back ordered by id,
// which for UUIDv7 ids is creation order.
func (s *Store) Load(ctx context.Context, docID model.DocumentID) (model.NodeSnapshot, error) {
	var snap model.NodeSnapshot
	doc := docID.String()

	var nodes []nodeRow
	if err := s.db.SelectContext(ctx, &nodes, s.db.Rebind(`
		SELECT id, doc_id, parent_id, node_type_id, created_at, updated_at
		FROM nodes WHERE doc_id=? ORDER BY id
	`), doc); err != nil {
		return snap, fmt.Errorf("load nodes: %w", err)
	}
	for _, row := range nodes {
		base, err := row.toModel()
		if err != nil {
			return snap, err
		}
		snap.Bases = append(snap.Bases, base)
	}

	var texts []textRow
	if err := s.selectSide(ctx, &texts, "node_text", "t.node_id, t.text", doc); err != nil {
		return snap, err
	}
	for _, row := range texts {
		id, err := parseNodeID(row.NodeID)
		if err != nil {
			return snap, err
		}
		snap.Texts = append(snap.Texts, model.NodeText{NodeID: id, Text: row.Text})
	}

	var ranges []rangeRow
	if err := s.selectSide(ctx, &ranges, "node_range", "t.node_id, t.range_start, t.range_end, t.updated_at", doc); err != nil {
		return snap, err
	}
	for _, row := range ranges {
		id, err := parseNodeID(row.NodeID)
		if err != nil {
			return snap, err
		}
		snap.Ranges = append(snap.Ranges, model.NodeRange{NodeID: id, Start: int(row.Start), End: int(row.End), UpdatedAt: fromMillis(row.UpdatedAt)})
	}

	var headings []headingRow
	if err := s.selectSide(ctx, &headings, "node_heading", "t.node_id, t.level", doc); err != nil {
		return snap, err
	}
	for _, row := range headings {
		id, err := parseNodeID(row.NodeID)
		if err != nil {
			return snap, err
		}
		snap.Headings = append(snap.Headings, model.NodeHeading{NodeID: id, Level: row.Level})
	}

	var lists []listRow
	if err := s.selectSide(ctx, &lists, "node_list", "t.node_id, t.ordering, t.is_item", doc); err != nil {
		return snap, err
	}
	for _, row := range lists {
		id, err := parseNodeID(row.NodeID)
		if err != nil {
			return snap, err
		}
		snap.Lists = append(snap.Lists, model.NodeList{NodeID: id, Ordering: row.Ordering, IsItem: row.IsItem})
	}

	var codes []codeBlockRow
	if err := s.selectSide(ctx, &codes, "node_code_block", "t.node_id, t.language", doc); err != nil {
		return snap, err
	}
	for _, row := range codes {
		id, err := parseNodeID(row.NodeID)
		if err != nil {
			return snap, err
		}
		snap.CodeBlocks = append(snap.CodeBlocks, model.NodeCodeBlock{NodeID: id, Language: stringPtr(row.Language)})
	}

	var tables []tableRow
	if err := s.selectSide(ctx, &tables, "node_table", "t.node_id, t.align_json", doc); err != nil {
		return snap, err
	}
	for _, row := range tables {
		id, err := parseNodeID(row.NodeID)
		if err != nil {
			return snap, err
		}
		aligns, err := model.ParseAlignmentsJSON(row.AlignJSON)
		if err != nil {
			return snap, fmt.Errorf("node %s: %w", row.NodeID, err)
		}
		snap.Tables = append(snap.Tables, model.NodeTable{NodeID: id, Alignments: aligns})
	}

	var images []imageRow
	if err := s.selectSide(ctx, &images, "node_image", "t.node_id, t.src, t.alt, t.title", doc); err != nil {
		return snap, err
	}
	for _, row := range images {
		id, err := parseNodeID(row.NodeID)
		if err != nil {
			return snap, err
		}
		snap.Images = append(snap.Images, model.NodeImage{NodeID: id, Src: row.Src, Alt: stringPtr(row.Alt), Title: row.Title})
	}

	var links []linkRow
	if err := s.selectSide(ctx, &links, "node_link", "t.node_id, t.href, t.title, t.link_type, t.ref_id", doc); err != nil {
		return snap, err
	}
	for _, row := range links {
		id, err := parseNodeID(row.NodeID)
		if err != nil {
			return snap, err
		}
		kind, err := model.ParseLinkKind(row.LinkType)
		if err != nil {
			return snap, fmt.Errorf("node %s: %w", row.NodeID, err)
		}
		snap.Links = append(snap.Links, model.NodeLink{NodeID: id, Href: row.Href, Title: row.Title, LinkType: kind, RefID: row.RefID})
	}

	var tasks []taskRow
	if err := s.selectSide(ctx, &tasks, "node_task", "t.node_id, t.checked", doc); err != nil {
		return snap, err
	}
	for _, row := range tasks {
		id, err := parseNodeID(row.NodeID)
		if err != nil {
			return snap, err
		}
		snap.Tasks = append(snap.Tasks, model.NodeTask{NodeID: id, Checked: row.Checked})
	}

	var wikis []wikiRow
	if err := s.selectSide(ctx, &wikis, "node_wiki", "t.node_id, t.target_node_id, t.display_text, t.created_at, t.updated_at", doc); err != nil {
		return snap, err
	}
	for _, row := range wikis {
		id, err := parseNodeID(row.NodeID)
		if err != nil {
			return snap, err
		}
		target, err := parseNodeID(row.TargetNodeID)
		if err != nil {
			return snap, err
		}
		snap.Wikis = append(snap.Wikis, model.NodeWiki{
			NodeID:       id,
			TargetNodeID: target,
			DisplayText:  row.DisplayText,
			CreatedAt:    fromMillis(row.CreatedAt),
			UpdatedAt:    fromMillis(row.UpdatedAt),
		})
	}

	var footnotes []footnoteRow
	if err := s.selectSide(ctx, &footnotes, "node_footnote_definition", "t.node_id, t.label", doc); err != nil {
		return snap, err
	}
	for _, row := range footnotes {
		id, err := parseNodeID(row.NodeID)
		if err != nil {
			return snap, err
		}
		snap.FootnoteDefinitions = append(snap.FootnoteDefinitions, model.NodeFootnoteDefinition{NodeID: id, Label: row.Label})
	}

	return snap, nil
}

func (s *Store) selectSide(ctx context.Context, dest any, table, columns, docID string) error {
	query := s.db.Rebind(`SELECT ` + columns + ` FROM ` + table + ` t
		JOIN nodes n ON n.id = t.node_id
		WHERE n.doc_id=? ORDER BY t.node_id`)
	if err := s.db.SelectContext(ctx, dest, query, docID); err != nil {
		return fmt.Errorf("load %s: %w", table, err)
	}
	return nil
}

// ReplaceDocument deletes every record of the document and inserts snap in
// one transaction.
func (s *Store) ReplaceDocument(ctx context.Context, docID model.DocumentID, snap model.NodeSnapshot) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := deleteDocumentNodes(ctx, tx, docID); err != nil {
			return err
		}
		return insertSnapshot(ctx, tx, snap)
	})
}

// ReplaceNodes deletes the listed nodes with their side records and inserts
// snap in one transaction. It backs subtree and inline edits.
func (s *Store) ReplaceNodes(ctx context.Context, remove []model.NodeID, snap model.NodeSnapshot) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := deleteNodes(ctx, tx, remove); err != nil {
			return err
		}
		return insertSnapshot(ctx, tx, snap)
	})
}

// ReplaceNodeText deletes the listed nodes and sets text as the node's own
// text in one transaction.
func (s *Store) ReplaceNodeText(ctx context.Context, remove []model.NodeID, text model.NodeText) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := deleteNodes(ctx, tx, remove); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM node_text WHERE node_id=?`), text.NodeID.String()); err != nil {
			return fmt.Errorf("delete node_text: %w", err)
		}
		row := textRow{NodeID: text.NodeID.String(), Text: text.Text}
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO node_text (node_id, text) VALUES (:node_id, :text)`, row); err != nil {
			return fmt.Errorf("insert node_text: %w", err)
		}
		return nil
	})
}

func (s *Store) DeleteDocumentNodes(ctx context.Context, docID model.DocumentID) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		return deleteDocumentNodes(ctx, tx, docID)
	})
}

// WikiBacklinks lists the ids of wiki nodes that point at target.
func (s *Store) WikiBacklinks(ctx context.Context, target model.NodeID) ([]model.NodeID, error) {
	var raw []string
	if err := s.db.SelectContext(ctx, &raw, s.db.Rebind(`SELECT node_id FROM node_wiki WHERE target_node_id=? ORDER BY node_id`), target.String()); err != nil {
		return nil, fmt.Errorf("load wiki backlinks: %w", err)
	}
	ids := make([]model.NodeID, 0, len(raw))
	for _, r := range raw {
		id, err := parseNodeID(r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func deleteDocumentNodes(ctx context.Context, tx *sqlx.Tx, docID model.DocumentID) error {
	doc := docID.String()
	for _, table := range sideTables {
		query := tx.Rebind(`DELETE FROM ` + table + ` WHERE node_id IN (SELECT id FROM nodes WHERE doc_id=?)`)
		if _, err := tx.ExecContext(ctx, query, doc); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM nodes WHERE doc_id=?`), doc); err != nil {
		return fmt.Errorf("delete nodes: %w", err)
	}
	return nil
}

func deleteNodes(ctx context.Context, tx *sqlx.Tx, ids []model.NodeID) error {
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	for start := 0; start < len(raw); start += batchSize {
		chunk := raw[start:min(start+batchSize, len(raw))]
		for _, table := range append(append([]string{}, sideTables...), "nodes") {
			column := "node_id"
			if table == "nodes" {
				column = "id"
			}
			query, args, err := sqlx.In(`DELETE FROM `+table+` WHERE `+column+` IN (?)`, chunk)
			if err != nil {
				return fmt.Errorf("build delete %s: %w", table, err)
			}
			if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
		}
	}
	return nil
}

func insertSnapshot(ctx context.Context, tx *sqlx.Tx, snap model.NodeSnapshot) error {
	nodes := make([]nodeRow, len(snap.Bases))
	for i, b := range snap.Bases {
		nodes[i] = newNodeRow(b)
	}
	if err := insertRows(ctx, tx, "nodes", `INSERT INTO nodes (id, doc_id, parent_id, node_type_id, created_at, updated_at)
		VALUES (:id, :doc_id, :parent_id, :node_type_id, :created_at, :updated_at)`, nodes); err != nil {
		return err
	}

	texts := make([]textRow, len(snap.Texts))
	for i, t := range snap.Texts {
		texts[i] = textRow{NodeID: t.NodeID.String(), Text: t.Text}
	}
	if err := insertRows(ctx, tx, "node_text", `INSERT INTO node_text (node_id, text) VALUES (:node_id, :text)`, texts); err != nil {
		return err
	}

	ranges := make([]rangeRow, len(snap.Ranges))
	for i, r := range snap.Ranges {
		ranges[i] = rangeRow{NodeID: r.NodeID.String(), Start: int64(r.Start), End: int64(r.End), UpdatedAt: toMillis(r.UpdatedAt)}
	}
	if err := insertRows(ctx, tx, "node_range", `INSERT INTO node_range (node_id, range_start, range_end, updated_at)
		VALUES (:node_id, :range_start, :range_end, :updated_at)`, ranges); err != nil {
		return err
	}

	headings := make([]headingRow, len(snap.Headings))
	for i, h := range snap.Headings {
		headings[i] = headingRow{NodeID: h.NodeID.String(), Level: h.Level}
	}
	if err := insertRows(ctx, tx, "node_heading", `INSERT INTO node_heading (node_id, level) VALUES (:node_id, :level)`, headings); err != nil {
		return err
	}

	lists := make([]listRow, len(snap.Lists))
	for i, l := range snap.Lists {
		lists[i] = listRow{NodeID: l.NodeID.String(), Ordering: l.Ordering, IsItem: l.IsItem}
	}
	if err := insertRows(ctx, tx, "node_list", `INSERT INTO node_list (node_id, ordering, is_item) VALUES (:node_id, :ordering, :is_item)`, lists); err != nil {
		return err
	}

	codes := make([]codeBlockRow, len(snap.CodeBlocks))
	for i, c := range snap.CodeBlocks {
		codes[i] = codeBlockRow{NodeID: c.NodeID.String(), Language: nullString(c.Language)}
	}
	if err := insertRows(ctx, tx, "node_code_block", `INSERT INTO node_code_block (node_id, language) VALUES (:node_id, :language)`, codes); err != nil {
		return err
	}

	tables := make([]tableRow, len(snap.Tables))
	for i, t := range snap.Tables {
		tables[i] = tableRow{NodeID: t.NodeID.String(), AlignJSON: t.AlignmentsJSON()}
	}
	if err := insertRows(ctx, tx, "node_table", `INSERT INTO node_table (node_id, align_json) VALUES (:node_id, :align_json)`, tables); err != nil {
		return err
	}

	images := make([]imageRow, len(snap.Images))
	for i, img := range snap.Images {
		images[i] = imageRow{NodeID: img.NodeID.String(), Src: img.Src, Alt: nullString(img.Alt), Title: img.Title}
	}
	if err := insertRows(ctx, tx, "node_image", `INSERT INTO node_image (node_id, src, alt, title) VALUES (:node_id, :src, :alt, :title)`, images); err != nil {
		return err
	}

	links := make([]linkRow, len(snap.Links))
	for i, l := range snap.Links {
		links[i] = linkRow{NodeID: l.NodeID.String(), Href: l.Href, Title: l.Title, LinkType: l.LinkType.String(), RefID: l.RefID}
	}
	if err := insertRows(ctx, tx, "node_link", `INSERT INTO node_link (node_id, href, title, link_type, ref_id)
		VALUES (:node_id, :href, :title, :link_type, :ref_id)`, links); err != nil {
		return err
	}

	tasks := make([]taskRow, len(snap.Tasks))
	for i, t := range snap.Tasks {
		tasks[i] = taskRow{NodeID: t.NodeID.String(), Checked: t.Checked}
	}
	if err := insertRows(ctx, tx, "node_task", `INSERT INTO node_task (node_id, checked) VALUES (:node_id, :checked)`, tasks); err != nil {
		return err
	}

	wikis := make([]wikiRow, len(snap.Wikis))
	for i, w := range snap.Wikis {
		wikis[i] = wikiRow{
			NodeID:       w.NodeID.String(),
			TargetNodeID: w.TargetNodeID.String(),
			DisplayText:  w.DisplayText,
			CreatedAt:    toMillis(w.CreatedAt),
			UpdatedAt:    toMillis(w.UpdatedAt),
		}
	}
	if err := insertRows(ctx, tx, "node_wiki", `INSERT INTO node_wiki (node_id, target_node_id, display_text, created_at, updated_at)
		VALUES (:node_id, :target_node_id, :display_text, :created_at, :updated_at)`, wikis); err != nil {
		return err
	}

	footnotes := make([]footnoteRow, len(snap.FootnoteDefinitions))
	for i, f := range snap.FootnoteDefinitions {
		footnotes[i] = footnoteRow{NodeID: f.NodeID.String(), Label: f.Label}
	}
	return insertRows(ctx, tx, "node_footnote_definition", `INSERT INTO node_footnote_definition (node_id, label) VALUES (:node_id, :label)`, footnotes)
}

// insertRows runs a batched named insert. query must end with the VALUES
// tuple so sqlx can repeat it per row.
func insertRows[T any](ctx context.Context, tx *sqlx.Tx, table, query string, rows []T) error {
	for start := 0; start < len(rows); start += batchSize {
		chunk := rows[start:min(start+batchSize, len(rows))]
		if _, err := tx.NamedExecContext(ctx, query, chunk); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return nil
}
