package search

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"lattice/api/internal/logger"
)

const (
	idxNodes     = "lattice_nodes"
	pageSize     = 1000
	snippetWords = 24
)

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	log     *logger.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the node index. An
// unreachable server is logged; the health loop reconfigures it on recovery.
func NewMeili(url, apiKey string, log *logger.Logger) *Meili {
	if log == nil {
		log = logger.Discard()
	}
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		log:    log,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.BackendUnavailable("meilisearch", err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxNodes,
		PrimaryKey: "id",
	}); err != nil {
		m.log.Debug("create search index (may already exist)", "index", idxNodes, "error", err)
	}

	index := m.client.Index(idxNodes)
	filterable := []interface{}{"documentId", "kind"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.Warn("update filterable attributes", "index", idxNodes, "error", err)
	}
	searchable := []string{"text", "section", "documentTitle"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.Warn("update searchable attributes", "index", idxNodes, "error", err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.log.Info("meilisearch recovered, reconfiguring index")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}
	sr := &meili.SearchRequest{
		IndexUID:              idxNodes,
		Query:                 q.Text,
		Limit:                 limit,
		Offset:                int64(q.Offset),
		AttributesToHighlight: []string{"text", "section"},
		AttributesToCrop:      []string{"text"},
		CropLength:            snippetWords,
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if filters := filtersFor(q); len(filters) > 0 {
		sr.Filter = filters
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{sr},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	var results []Result
	total := 0
	for _, r := range resp.Results {
		total += int(r.EstimatedTotalHits)
		for _, hit := range r.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

func filtersFor(q Query) []string {
	var filters []string
	if q.DocumentID != "" {
		filters = append(filters, fmt.Sprintf("documentId = %q", q.DocumentID))
	}
	if q.Kind != "" {
		filters = append(filters, fmt.Sprintf("kind = %q", q.Kind))
	}
	return filters
}

func hitToResult(hit meili.Hit) Result {
	return Result{
		ID:            decodeString(hit, "id"),
		DocumentID:    decodeString(hit, "documentId"),
		DocumentTitle: decodeString(hit, "documentTitle"),
		Kind:          decodeString(hit, "kind"),
		Section:       firstNonBlank(decodeFormattedString(hit, "section"), decodeString(hit, "section")),
		Snippet:       firstNonBlank(decodeFormattedString(hit, "text"), decodeString(hit, "text")),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(formatted[key], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// documentNodeIDs pages through the ids currently indexed for a document.
func (m *Meili) documentNodeIDs(documentID string) ([]string, error) {
	var ids []string
	for offset := int64(0); ; offset += pageSize {
		resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
			Queries: []*meili.SearchRequest{{
				IndexUID:             idxNodes,
				Limit:                pageSize,
				Offset:               offset,
				AttributesToRetrieve: []string{"id"},
				Filter:               []string{fmt.Sprintf("documentId = %q", documentID)},
			}},
		})
		if err != nil {
			return nil, fmt.Errorf("list indexed nodes: %w", err)
		}
		page := 0
		for _, r := range resp.Results {
			for _, hit := range r.Hits {
				if id := decodeString(hit, "id"); id != "" {
					ids = append(ids, id)
				}
				page++
			}
		}
		if page < pageSize {
			return ids, nil
		}
	}
}

// ReplaceDocumentNodes drops indexed nodes of the document that are not in
// records, then adds or updates records.
func (m *Meili) ReplaceDocumentNodes(documentID string, records []NodeRecord) error {
	existing, err := m.documentNodeIDs(documentID)
	if err != nil {
		return err
	}
	keep := make(map[string]bool, len(records))
	for _, r := range records {
		keep[r.ID] = true
	}
	for _, id := range existing {
		if keep[id] {
			continue
		}
		if _, err := m.client.Index(idxNodes).DeleteDocument(id, nil); err != nil {
			return fmt.Errorf("delete node %s: %w", id, err)
		}
	}
	if len(records) == 0 {
		return nil
	}
	if _, err := m.client.Index(idxNodes).AddDocuments(records, nil); err != nil {
		return fmt.Errorf("add nodes: %w", err)
	}
	return nil
}

func (m *Meili) DeleteDocumentNodes(documentID string) error {
	return m.ReplaceDocumentNodes(documentID, nil)
}
