package app

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"lattice/api/internal/cache"
	"lattice/api/internal/docsource"
	"lattice/api/internal/edit"
	"lattice/api/internal/export"
	"lattice/api/internal/gitrepo"
	"lattice/api/internal/index"
	"lattice/api/internal/logger"
	"lattice/api/internal/markmap"
	"lattice/api/internal/metrics"
	"lattice/api/internal/model"
	"lattice/api/internal/nodetype"
	"lattice/api/internal/render/html"
	"lattice/api/internal/render/markdown"
	"lattice/api/internal/search"
	"lattice/api/internal/store"
	"lattice/api/internal/tree"
)

// Deps are the collaborators a Service is built from. Cache and Search may
// be nil.
type Deps struct {
	Store   *store.Store
	Source  docsource.Store
	History *gitrepo.Service
	Cache   cache.Cache
	Search  search.Backend
	Log     *logger.Logger

	IndexWorkers       int
	IndexQueue         int
	ReindexParallelism int
}

type Service struct {
	store   *store.Store
	source  docsource.Store
	history *gitrepo.Service
	cache   cache.Cache
	log     *logger.Logger

	types      nodetype.Snapshot
	serializer *markdown.Serializer
	html       *html.Renderer
	search     *search.Service
	indexer    *index.Service
	queue      *index.Coordinator
	markmap    *markmap.Service
	options    *markmap.SettingsOptions
	edit       *edit.Service
	export     *export.Service

	flight       singleflight.Group
	reindexLimit int
}

// New loads the node type table and wires every domain service.
func New(ctx context.Context, deps Deps) (*Service, error) {
	if deps.Log == nil {
		deps.Log = logger.Discard()
	}
	if deps.Cache == nil {
		deps.Cache = cache.Noop{}
	}
	types, err := deps.Store.LoadNodeTypes(ctx)
	if err != nil {
		return nil, err
	}
	if deps.ReindexParallelism < 1 {
		deps.ReindexParallelism = 4
	}

	s := &Service{
		store:        deps.Store,
		source:       deps.Source,
		history:      deps.History,
		cache:        deps.Cache,
		log:          deps.Log,
		types:        types,
		serializer:   markdown.NewSerializer(types),
		html:         html.New(),
		reindexLimit: deps.ReindexParallelism,
	}
	s.search = search.NewService(deps.Search, types, deps.Log)
	invalidate := index.HookFunc(func(ctx context.Context, doc model.Document, _ model.NodeSnapshot) error {
		return s.cache.Invalidate(ctx, doc.ID)
	})
	s.indexer = index.NewService(types, deps.Store, deps.Source, deps.Log, s.search, invalidate)
	s.queue = index.NewCoordinator(s.indexer, deps.IndexWorkers, deps.IndexQueue, deps.Log)
	s.options = markmap.NewSettingsOptions(deps.Store, deps.Store, deps.Log)
	s.markmap = markmap.NewService(s, s.options, markmap.NewTransformer(types, s.html))
	s.edit = edit.NewService(types, deps.Store)
	s.export = export.NewService(deps.Store, s, types, s.html)
	return s, nil
}

// Start launches the index workers.
func (s *Service) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Close drains queued parses.
func (s *Service) Close() {
	s.queue.Close()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

type DocumentView struct {
	model.Document
	IndexStatus index.Status `json:"indexStatus,omitempty"`
}

func (s *Service) view(doc model.Document) DocumentView {
	status, _ := s.queue.Status(doc.ID)
	return DocumentView{Document: doc, IndexStatus: status}
}

type WorkspaceView struct {
	Workspace model.Workspace `json:"workspace"`
	Folder    model.Folder    `json:"folder"`
}

// CreateWorkspace creates a workspace with one folder rooted at rootPath.
func (s *Service) CreateWorkspace(ctx context.Context, name, rootPath string) (WorkspaceView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return WorkspaceView{}, &model.ValidationError{Field: "name", Message: "workspace name is required"}
	}
	rootPath = strings.Trim(strings.TrimSpace(rootPath), "/")
	if rootPath == "" {
		rootPath = slug.Make(name)
	}
	if err := model.ValidateDocumentPath(rootPath); err != nil {
		return WorkspaceView{}, err
	}
	ws, err := s.store.CreateWorkspace(ctx, name)
	if err != nil {
		return WorkspaceView{}, err
	}
	folder, err := s.store.CreateFolder(ctx, ws.ID, rootPath)
	if err != nil {
		return WorkspaceView{}, err
	}
	return WorkspaceView{Workspace: ws, Folder: folder}, nil
}

func (s *Service) FolderDocuments(ctx context.Context, folderID model.FolderID) ([]DocumentView, error) {
	if _, err := s.store.GetFolder(ctx, folderID); err != nil {
		return nil, err
	}
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]DocumentView, 0)
	for _, doc := range docs {
		if doc.FolderID == folderID {
			out = append(out, s.view(doc))
		}
	}
	return out, nil
}

type CreateDocumentInput struct {
	FolderID string `json:"folderId"`
	Path     string `json:"path"`
	Title    string `json:"title"`
	Lang     string `json:"lang"`
	Markdown string `json:"markdown"`
}

// CreateDocument stores the markdown, records it in history and parses it
// before returning.
func (s *Service) CreateDocument(ctx context.Context, userID string, input CreateDocumentInput) (DocumentView, error) {
	folderID, err := model.ParseFolderID(strings.TrimSpace(input.FolderID))
	if err != nil {
		return DocumentView{}, &model.ValidationError{Field: "folderId", Message: "folderId must be a UUID"}
	}
	folder, err := s.store.GetFolder(ctx, folderID)
	if err != nil {
		return DocumentView{}, err
	}
	if err := model.ValidateTitle(input.Title); err != nil {
		return DocumentView{}, err
	}
	docPath := strings.TrimSpace(input.Path)
	if docPath == "" {
		name := slug.Make(input.Title)
		if name == "" {
			name = "document"
		}
		docPath = path.Join(folder.RootPath, name+".md")
	}

	doc, err := s.store.CreateDocument(ctx, model.Document{
		FolderID: folderID,
		Path:     docPath,
		Title:    strings.TrimSpace(input.Title),
		Lang:     input.Lang,
	})
	if err != nil {
		return DocumentView{}, err
	}
	if err := s.source.Write(ctx, doc.Path, []byte(input.Markdown)); err != nil {
		return DocumentView{}, err
	}
	if _, err := s.history.Commit(doc.ID.String(), input.Markdown, userID, "Create document"); err != nil {
		return DocumentView{}, err
	}
	if err := s.queue.Run(ctx, doc.ID); err != nil {
		return DocumentView{}, err
	}
	return s.Document(ctx, doc.ID)
}

func (s *Service) Document(ctx context.Context, docID model.DocumentID) (DocumentView, error) {
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return DocumentView{}, err
	}
	return s.view(doc), nil
}

// DeleteDocument drops the document, its source and its search records.
// History is kept on disk.
func (s *Service) DeleteDocument(ctx context.Context, docID model.DocumentID) error {
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDocument(ctx, docID); err != nil {
		return err
	}
	if err := s.source.Delete(ctx, doc.Path); err != nil {
		return err
	}
	s.search.DeleteDocument(docID)
	s.invalidate(ctx, docID)
	return nil
}

func (s *Service) Source(ctx context.Context, docID model.DocumentID) (string, error) {
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return "", err
	}
	raw, err := s.source.Read(ctx, doc.Path)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// PutSource replaces the document markdown and queues a parse.
func (s *Service) PutSource(ctx context.Context, userID string, docID model.DocumentID, markdown string) (DocumentView, error) {
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return DocumentView{}, err
	}
	if err := s.source.Write(ctx, doc.Path, []byte(markdown)); err != nil {
		return DocumentView{}, err
	}
	if _, err := s.history.Commit(docID.String(), markdown, userID, "Replace document source"); err != nil {
		return DocumentView{}, err
	}
	s.invalidate(ctx, docID)
	if err := s.queue.Enqueue(ctx, docID); err != nil {
		return DocumentView{}, err
	}
	return s.view(doc), nil
}

func (s *Service) EnqueueIndex(ctx context.Context, docID model.DocumentID) (DocumentView, error) {
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return DocumentView{}, err
	}
	if err := s.queue.Enqueue(ctx, docID); err != nil {
		return DocumentView{}, err
	}
	return s.view(doc), nil
}

// LoadTree loads and assembles the stored tree of an existing document.
func (s *Service) LoadTree(ctx context.Context, docID model.DocumentID) (*tree.NodeTree, error) {
	if _, err := s.store.GetDocument(ctx, docID); err != nil {
		return nil, err
	}
	snap, err := s.store.Load(ctx, docID)
	if err != nil {
		return nil, err
	}
	return tree.Build(snap)
}

type TreeNode struct {
	ID       string     `json:"id"`
	Kind     string     `json:"kind"`
	Text     string     `json:"text,omitempty"`
	Children []TreeNode `json:"children,omitempty"`
}

func (s *Service) Tree(ctx context.Context, docID model.DocumentID) ([]TreeNode, error) {
	t, err := s.LoadTree(ctx, docID)
	if err != nil {
		return nil, err
	}
	var build func(id model.NodeID) (TreeNode, error)
	build = func(id model.NodeID) (TreeNode, error) {
		rec, ok := t.Node(id)
		if !ok {
			return TreeNode{}, fmt.Errorf("%w: %s", tree.ErrInconsistent, id)
		}
		kind, err := s.types.KindByID(rec.Base.NodeTypeID)
		if err != nil {
			return TreeNode{}, err
		}
		node := TreeNode{ID: id.String(), Kind: kind.String(), Text: rec.TextValue()}
		for _, child := range t.Children(id) {
			c, err := build(child)
			if err != nil {
				return TreeNode{}, err
			}
			node.Children = append(node.Children, c)
		}
		return node, nil
	}
	out := make([]TreeNode, 0, len(t.Roots))
	for _, root := range t.Roots {
		node, err := build(root)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, nil
}

// cached returns the cached artifact of kind or builds and stores it.
// Cache failures only cost a rebuild.
func (s *Service) cached(ctx context.Context, docID model.DocumentID, kind string, build func() ([]byte, error)) ([]byte, error) {
	if value, ok, err := s.cache.Get(ctx, docID, kind); err == nil && ok {
		return value, nil
	} else if err != nil {
		s.log.BackendUnavailable("cache", err)
	}
	value, err := build()
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, docID, kind, value); err != nil {
		s.log.BackendUnavailable("cache", err)
	}
	return value, nil
}

func (s *Service) invalidate(ctx context.Context, docID model.DocumentID) {
	if err := s.cache.Invalidate(ctx, docID); err != nil {
		s.log.BackendUnavailable("cache", err)
	}
}

// Markdown serializes the stored tree.
func (s *Service) Markdown(ctx context.Context, docID model.DocumentID) (string, error) {
	value, err := s.cached(ctx, docID, cache.KindMarkdown, func() ([]byte, error) {
		t, err := s.LoadTree(ctx, docID)
		if err != nil {
			return nil, err
		}
		md, err := s.serializer.Serialize(t)
		return []byte(md), err
	})
	return string(value), err
}

// HTML renders the serialized markdown as a sanitized fragment.
func (s *Service) HTML(ctx context.Context, docID model.DocumentID) (string, error) {
	value, err := s.cached(ctx, docID, cache.KindHTML, func() ([]byte, error) {
		md, err := s.Markdown(ctx, docID)
		if err != nil {
			return nil, err
		}
		out, err := s.html.Render(md)
		return []byte(out), err
	})
	return string(value), err
}

// Markmap returns the fully loaded markmap as JSON. Concurrent builds for
// the same user and document share one result.
func (s *Service) Markmap(ctx context.Context, userID string, docID model.DocumentID) (json.RawMessage, error) {
	defer metrics.ObserveSince(metrics.MarkmapDuration.WithLabelValues("execute"), time.Now())
	value, err, _ := s.flight.Do("markmap:"+userID+":"+docID.String(), func() (any, error) {
		return s.cached(ctx, docID, cache.PerUser(cache.KindMarkmap, userID), func() ([]byte, error) {
			node, err := s.markmap.Execute(ctx, userID, docID)
			if err != nil {
				return nil, err
			}
			return json.Marshal(node)
		})
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(value.([]byte)), nil
}

func (s *Service) MarkmapRoot(ctx context.Context, userID string, docID model.DocumentID) (*markmap.Node, error) {
	defer metrics.ObserveSince(metrics.MarkmapDuration.WithLabelValues("root"), time.Now())
	value, err, _ := s.flight.Do("markmap-root:"+userID+":"+docID.String(), func() (any, error) {
		return s.markmap.ExecuteRoot(ctx, userID, docID)
	})
	if err != nil {
		return nil, err
	}
	return value.(*markmap.Node), nil
}

func (s *Service) MarkmapChildren(ctx context.Context, userID string, docID model.DocumentID, nodeID string) ([]*markmap.Node, error) {
	defer metrics.ObserveSince(metrics.MarkmapDuration.WithLabelValues("children"), time.Now())
	value, err, _ := s.flight.Do("markmap-children:"+userID+":"+docID.String()+":"+nodeID, func() (any, error) {
		return s.markmap.ExecuteChildren(ctx, userID, docID, nodeID)
	})
	if err != nil {
		return nil, err
	}
	children := value.([]*markmap.Node)
	if children == nil {
		children = []*markmap.Node{}
	}
	return children, nil
}

func (s *Service) MarkmapNode(ctx context.Context, userID string, docID model.DocumentID, nodeID string) (*markmap.Node, error) {
	defer metrics.ObserveSince(metrics.MarkmapDuration.WithLabelValues("node"), time.Now())
	value, err, _ := s.flight.Do("markmap-node:"+userID+":"+docID.String()+":"+nodeID, func() (any, error) {
		return s.markmap.ExecuteNode(ctx, userID, docID, nodeID)
	})
	if err != nil {
		return nil, err
	}
	return value.(*markmap.Node), nil
}

func (s *Service) MarkmapOptions(ctx context.Context, userID string, docID model.DocumentID) (markmap.Options, error) {
	if _, err := s.store.GetDocument(ctx, docID); err != nil {
		return markmap.Options{}, err
	}
	return s.options.Resolve(ctx, userID, docID)
}

func (s *Service) FetchNodeMarkdown(ctx context.Context, docID model.DocumentID, nodeID model.NodeID, mode edit.Mode) (string, error) {
	if _, err := s.store.GetDocument(ctx, docID); err != nil {
		return "", err
	}
	return s.edit.FetchMarkdown(ctx, docID, nodeID, mode)
}

// SaveNodeMarkdown applies an edit, then writes the re-serialized document
// back to its source, history, search index and caches.
func (s *Service) SaveNodeMarkdown(ctx context.Context, userID string, docID model.DocumentID, nodeID model.NodeID, mode edit.Mode, content string) (string, error) {
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return "", err
	}
	saved, err := s.edit.SaveMarkdown(ctx, docID, nodeID, mode, content)
	if err != nil {
		return "", err
	}
	if err := s.source.Write(ctx, doc.Path, []byte(saved.Markdown)); err != nil {
		return "", err
	}
	doc.ContentHash = index.ContentHash(saved.Markdown)
	if err := s.store.UpdateDocumentHash(ctx, docID, doc.ContentHash); err != nil {
		return "", err
	}
	message := fmt.Sprintf("Edit %s %s", mode, nodeID)
	if _, err := s.history.Commit(docID.String(), saved.Markdown, userID, message); err != nil {
		return "", err
	}
	s.search.IndexTree(doc, saved.Tree)
	s.invalidate(ctx, docID)
	return saved.Markdown, nil
}

func (s *Service) Anchors(ctx context.Context, docID model.DocumentID, nodeID model.NodeID) ([]edit.Anchor, error) {
	if _, err := s.store.GetDocument(ctx, docID); err != nil {
		return nil, err
	}
	return s.edit.Anchors(ctx, docID, nodeID)
}

func (s *Service) Backlinks(ctx context.Context, nodeID model.NodeID) ([]model.NodeID, error) {
	return s.store.WikiBacklinks(ctx, nodeID)
}

func (s *Service) History(ctx context.Context, docID model.DocumentID, limit int) ([]gitrepo.CommitInfo, error) {
	if _, err := s.store.GetDocument(ctx, docID); err != nil {
		return nil, err
	}
	return s.history.History(docID.String(), limit)
}

func (s *Service) HistoryContent(ctx context.Context, docID model.DocumentID, hash string) (string, error) {
	if _, err := s.store.GetDocument(ctx, docID); err != nil {
		return "", err
	}
	return s.history.ContentAt(docID.String(), hash)
}

func (s *Service) Export(ctx context.Context, docID model.DocumentID, format export.Format) (*export.Result, error) {
	return s.export.Export(ctx, export.Request{DocumentID: docID, Format: format})
}

func (s *Service) Search(q search.Query) search.Response {
	return s.search.Search(q)
}

func (s *Service) Settings(ctx context.Context, userID string) ([]model.UserSetting, error) {
	return s.store.ListSettings(ctx, userID, model.NamespaceMarkmap)
}

type PutSettingInput struct {
	Scope   string          `json:"scope"`
	ScopeID string          `json:"scopeId"`
	Key     string          `json:"key"`
	Value   json.RawMessage `json:"value"`
}

var markmapSettingKeys = map[string]struct{}{
	markmap.KeyInitialExpandLevel: {},
	markmap.KeyLoadModeRoot:       {},
	markmap.KeyLoadModeChild:      {},
}

// PutSetting stores one markmap setting and drops the cached markmaps it
// can affect.
func (s *Service) PutSetting(ctx context.Context, userID string, input PutSettingInput) (model.UserSetting, error) {
	scope, err := model.ParseSettingScope(strings.TrimSpace(input.Scope))
	if err != nil {
		return model.UserSetting{}, err
	}
	if _, ok := markmapSettingKeys[input.Key]; !ok {
		return model.UserSetting{}, &model.ValidationError{Field: "key", Message: "unknown markmap setting"}
	}
	if len(input.Value) == 0 || !json.Valid(input.Value) {
		return model.UserSetting{}, &model.ValidationError{Field: "value", Message: "value must be JSON"}
	}
	if scope != model.ScopeGlobal && strings.TrimSpace(input.ScopeID) == "" {
		return model.UserSetting{}, &model.ValidationError{Field: "scopeId", Message: "scopeId is required"}
	}
	setting, err := s.store.PutSetting(ctx, model.UserSetting{
		UserID:    userID,
		Scope:     scope,
		ScopeID:   strings.TrimSpace(input.ScopeID),
		Namespace: model.NamespaceMarkmap,
		Key:       input.Key,
		ValueJSON: string(input.Value),
	})
	if err != nil {
		return model.UserSetting{}, err
	}

	if scope == model.ScopeDocument {
		if docID, err := model.ParseDocumentID(setting.ScopeID); err == nil {
			s.invalidate(ctx, docID)
		}
		return setting, nil
	}
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return setting, nil
	}
	for _, doc := range docs {
		s.invalidate(ctx, doc.ID)
	}
	return setting, nil
}

type ImportReport struct {
	Created   []string `json:"created"`
	Updated   []string `json:"updated"`
	Unchanged []string `json:"unchanged"`
	Removed   []string `json:"removed"`
}

// ImportFolder syncs a folder with its source storage: new markdown files
// become documents, changed files are re-parsed and documents whose file
// is gone are removed.
func (s *Service) ImportFolder(ctx context.Context, userID string, folderID model.FolderID) (ImportReport, error) {
	report := ImportReport{Created: []string{}, Updated: []string{}, Unchanged: []string{}, Removed: []string{}}
	folder, err := s.store.GetFolder(ctx, folderID)
	if err != nil {
		return report, err
	}
	files, err := s.source.List(ctx, folder.RootPath)
	if err != nil {
		return report, err
	}
	existing, err := s.FolderDocuments(ctx, folderID)
	if err != nil {
		return report, err
	}
	byPath := make(map[string]model.Document, len(existing))
	for _, view := range existing {
		byPath[view.Path] = view.Document
	}

	var queue []model.DocumentID
	seen := make(map[string]struct{}, len(files))
	for _, file := range files {
		if !docsource.IsMarkdown(file) {
			continue
		}
		seen[file] = struct{}{}
		raw, err := s.source.Read(ctx, file)
		if err != nil {
			return report, err
		}
		hash := index.ContentHash(string(raw))
		doc, ok := byPath[file]
		switch {
		case !ok:
			title := strings.TrimSuffix(path.Base(file), path.Ext(file))
			created, err := s.store.CreateDocument(ctx, model.Document{FolderID: folderID, Path: file, Title: title})
			if err != nil {
				return report, err
			}
			if _, err := s.history.Commit(created.ID.String(), string(raw), userID, "Import document"); err != nil {
				return report, err
			}
			report.Created = append(report.Created, file)
			queue = append(queue, created.ID)
		case doc.ContentHash != hash:
			if _, err := s.history.Commit(doc.ID.String(), string(raw), userID, "Import changes"); err != nil {
				return report, err
			}
			report.Updated = append(report.Updated, file)
			queue = append(queue, doc.ID)
		default:
			report.Unchanged = append(report.Unchanged, file)
		}
	}

	for p, doc := range byPath {
		if _, ok := seen[p]; ok {
			continue
		}
		if err := s.store.DeleteDocument(ctx, doc.ID); err != nil {
			return report, err
		}
		s.search.DeleteDocument(doc.ID)
		s.invalidate(ctx, doc.ID)
		report.Removed = append(report.Removed, p)
	}

	if err := s.queue.EnqueueMany(ctx, queue); err != nil {
		return report, err
	}
	return report, nil
}

// ReindexAll parses every document again, a bounded number at a time.
func (s *Service) ReindexAll(ctx context.Context) (int, error) {
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return 0, err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.reindexLimit)
	for _, doc := range docs {
		id := doc.ID
		g.Go(func() error {
			return s.queue.Run(gctx, id)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// IndexStatus reports the coordinator state of a document.
func (s *Service) IndexStatus(ctx context.Context, docID model.DocumentID) (map[string]any, error) {
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	status, ok := s.queue.Status(docID)
	if !ok {
		return map[string]any{"documentId": doc.ID, "status": nil, "contentHash": doc.ContentHash}, nil
	}
	return map[string]any{"documentId": doc.ID, "status": status, "contentHash": doc.ContentHash}, nil
}
