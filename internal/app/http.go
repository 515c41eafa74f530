package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lattice/api/internal/edit"
	"lattice/api/internal/export"
	"lattice/api/internal/gitrepo"
	"lattice/api/internal/logger"
	"lattice/api/internal/metrics"
	"lattice/api/internal/model"
	"lattice/api/internal/search"
)

// defaultUser owns settings and history entries of requests that carry no
// X-User-ID header.
const defaultUser = "local"

type HTTPServer struct {
	service    *Service
	corsOrigin string
	log        *logger.Logger
	router     *mux.Router
}

func NewHTTPServer(service *Service, corsOrigin string, log *logger.Logger) *HTTPServer {
	if log == nil {
		log = logger.Discard()
	}
	s := &HTTPServer{service: service, corsOrigin: corsOrigin, log: log}
	s.router = s.routes()
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(s.router)
}

// apiHandler is a handler whose error is written as a JSON error body.
type apiHandler func(http.ResponseWriter, *http.Request) error

func (fn apiHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := fn(w, r); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
	}
}

func (s *HTTPServer) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed", nil)
	})

	r.Handle("/api/health", apiHandler(s.health)).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/api/ready", apiHandler(s.ready)).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Handle("/workspaces", apiHandler(s.createWorkspace)).Methods(http.MethodPost)
	api.Handle("/folders/{folder}/documents", apiHandler(s.folderDocuments)).Methods(http.MethodGet)
	api.Handle("/folders/{folder}/import", apiHandler(s.importFolder)).Methods(http.MethodPost)
	api.Handle("/reindex", apiHandler(s.reindex)).Methods(http.MethodPost)
	api.Handle("/search", apiHandler(s.search)).Methods(http.MethodGet)
	api.Handle("/settings/markmap", apiHandler(s.settings)).Methods(http.MethodGet)
	api.Handle("/settings/markmap", apiHandler(s.putSetting)).Methods(http.MethodPut)

	api.Handle("/documents", apiHandler(s.createDocument)).Methods(http.MethodPost)
	doc := api.PathPrefix("/documents/{doc}").Subrouter()
	doc.Handle("", apiHandler(s.document)).Methods(http.MethodGet)
	doc.Handle("", apiHandler(s.deleteDocument)).Methods(http.MethodDelete)
	doc.Handle("/source", apiHandler(s.source)).Methods(http.MethodGet)
	doc.Handle("/source", apiHandler(s.putSource)).Methods(http.MethodPut)
	doc.Handle("/index", apiHandler(s.enqueueIndex)).Methods(http.MethodPost)
	doc.Handle("/index", apiHandler(s.indexStatus)).Methods(http.MethodGet)
	doc.Handle("/tree", apiHandler(s.tree)).Methods(http.MethodGet)
	doc.Handle("/markdown", apiHandler(s.markdown)).Methods(http.MethodGet)
	doc.Handle("/html", apiHandler(s.html)).Methods(http.MethodGet)
	doc.Handle("/markmap", apiHandler(s.markmap)).Methods(http.MethodGet)
	doc.Handle("/markmap/options", apiHandler(s.markmapOptions)).Methods(http.MethodGet)
	doc.Handle("/markmap/root", apiHandler(s.markmapRoot)).Methods(http.MethodGet)
	doc.Handle("/markmap/nodes/{node}/children", apiHandler(s.markmapChildren)).Methods(http.MethodGet)
	doc.Handle("/markmap/nodes/{node}", apiHandler(s.markmapNode)).Methods(http.MethodGet)
	doc.Handle("/nodes/{node}/markdown", apiHandler(s.nodeMarkdown)).Methods(http.MethodGet)
	doc.Handle("/nodes/{node}/markdown", apiHandler(s.saveNodeMarkdown)).Methods(http.MethodPut)
	doc.Handle("/nodes/{node}/anchors", apiHandler(s.anchors)).Methods(http.MethodGet)
	doc.Handle("/nodes/{node}/backlinks", apiHandler(s.backlinks)).Methods(http.MethodGet)
	doc.Handle("/history", apiHandler(s.history)).Methods(http.MethodGet)
	doc.Handle("/history/{hash}", apiHandler(s.historyContent)).Methods(http.MethodGet)
	doc.Handle("/export", apiHandler(s.export)).Methods(http.MethodGet)
	return r
}

func (s *HTTPServer) health(w http.ResponseWriter, _ *http.Request) error {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	return nil
}

func (s *HTTPServer) ready(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
	return nil
}

func (s *HTTPServer) createWorkspace(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Name     string `json:"name"`
		RootPath string `json:"rootPath"`
	}
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	view, err := s.service.CreateWorkspace(r.Context(), body.Name, body.RootPath)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, view)
	return nil
}

func (s *HTTPServer) folderDocuments(w http.ResponseWriter, r *http.Request) error {
	folderID, err := folderParam(r)
	if err != nil {
		return err
	}
	docs, err := s.service.FolderDocuments(r.Context(), folderID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
	return nil
}

func (s *HTTPServer) importFolder(w http.ResponseWriter, r *http.Request) error {
	folderID, err := folderParam(r)
	if err != nil {
		return err
	}
	report, err := s.service.ImportFolder(r.Context(), userID(r), folderID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, report)
	return nil
}

func (s *HTTPServer) reindex(w http.ResponseWriter, r *http.Request) error {
	count, err := s.service.ReindexAll(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": count})
	return nil
}

func (s *HTTPServer) search(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		return err
	}
	offset, err := intParam(q.Get("offset"), "offset")
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, s.service.Search(search.Query{
		Text:       q.Get("q"),
		DocumentID: q.Get("documentId"),
		Kind:       q.Get("kind"),
		Limit:      limit,
		Offset:     offset,
	}))
	return nil
}

func (s *HTTPServer) settings(w http.ResponseWriter, r *http.Request) error {
	settings, err := s.service.Settings(r.Context(), userID(r))
	if err != nil {
		return err
	}
	if settings == nil {
		settings = []model.UserSetting{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
	return nil
}

func (s *HTTPServer) putSetting(w http.ResponseWriter, r *http.Request) error {
	var body PutSettingInput
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	setting, err := s.service.PutSetting(r.Context(), userID(r), body)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, setting)
	return nil
}

func (s *HTTPServer) createDocument(w http.ResponseWriter, r *http.Request) error {
	var body CreateDocumentInput
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	view, err := s.service.CreateDocument(r.Context(), userID(r), body)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, view)
	return nil
}

func (s *HTTPServer) document(w http.ResponseWriter, r *http.Request) error {
	docID, err := documentParam(r)
	if err != nil {
		return err
	}
	view, err := s.service.Document(r.Context(), docID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, view)
	return nil
}

func (s *HTTPServer) deleteDocument(w http.ResponseWriter, r *http.Request) error {
	docID, err := documentParam(r)
	if err != nil {
		return err
	}
	if err := s.service.DeleteDocument(r.Context(), docID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *HTTPServer) source(w http.ResponseWriter, r *http.Request) error {
	docID, err := documentParam(r)
	if err != nil {
		return err
	}
	markdown, err := s.service.Source(r.Context(), docID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"documentId": docID, "markdown": markdown})
	return nil
}

func (s *HTTPServer) putSource(w http.ResponseWriter, r *http.Request) error {
	docID, err := documentParam(r)
	if err != nil {
		return err
	}
	var body struct {
		Markdown string `json:"markdown"`
	}
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	view, err := s.service.PutSource(r.Context(), userID(r), docID, body.Markdown)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusAccepted, view)
	return nil
}

func (s *HTTPServer) enqueueIndex(w http.ResponseWriter, r *http.Request) error {
	docID, err := documentParam(r)
	if err != nil {
		return err
	}
	view, err := s.service.EnqueueIndex(r.Context(), docID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusAccepted, view)
	return nil
}

func (s *HTTPServer) indexStatus(w http.ResponseWriter, r *http.Request) error {
	docID, err := documentParam(r)
	if err != nil {
		return err
	}
	status, err := s.service.IndexStatus(r.Context(), docID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, status)
	return nil
}

func (s *HTTPServer) tree(w http.ResponseWriter, r *http.Request) error {
	docID, err := documentParam(r)
	if err != nil {
		return err
	}
	roots, err := s.service.Tree(r.Context(), docID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"documentId": docID, "roots": roots})
	return nil
}

func (s *HTTPServer) markdown(w http.ResponseWriter, r *http.Request) error {
	docID, err := documentParam(r)
	if err != nil {
		return err
	}
	md, err := s.service.Markdown(r.Context(), docID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"documentId": docID, "markdown": md})
	return nil
}

func (s *HTTPServer) html(w http.ResponseWriter, r *http.Request) error {
	docID, err := documentParam(r)
	if err != nil {
		return err
	}
	out, err := s.service.HTML(r.Context(), docID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"documentId": docID, "html": out})
	return nil
}

func (s *HTTPServer) markmap(w http.ResponseWriter, r *http.Request) error {
	docID, err := documentParam(r)
	if err != nil {
		return err
	}
	out, err := s.service.Markmap(r.Context(), userID(r), docID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

func (s *HTTPServer) markmapOptions(w http.ResponseWriter, r *http.Request) error {
	docID, err := documentParam(r)
	if err != nil {
		return err
	}
	opts, err := s.service.MarkmapOptions(r.Context(), userID(r), docID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, opts)
	return nil
}

func (s *HTTPServer) markmapRoot(w http.ResponseWriter, r *http.Request) error {
	docID, err := documentParam(r)
	if err != nil {
		return err
	}
	node, err := s.service.MarkmapRoot(r.Context(), userID(r), docID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, node)
	return nil
}

func (s *HTTPServer) markmapChildren(w http.ResponseWriter, r *http.Request) error {
	docID, err := documentParam(r)
	if err != nil {
		return err
	}
	children, err := s.service.MarkmapChildren(r.Context(), userID(r), docID, mux.Vars(r)["node"])
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"children": children})
	return nil
}

func (s *HTTPServer) markmapNode(w http.ResponseWriter, r *http.Request) error {
	docID, err := documentParam(r)
	if err != nil {
		return err
	}
	node, err := s.service.MarkmapNode(r.Context(), userID(r), docID, mux.Vars(r)["node"])
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, node)
	return nil
}

func (s *HTTPServer) nodeMarkdown(w http.ResponseWriter, r *http.Request) error {
	docID, nodeID, err := nodeParams(r)
	if err != nil {
		return err
	}
	mode, err := edit.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		return err
	}
	md, err := s.service.FetchNodeMarkdown(r.Context(), docID, nodeID, mode)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodeId": nodeID, "mode": mode, "markdown": md})
	return nil
}

func (s *HTTPServer) saveNodeMarkdown(w http.ResponseWriter, r *http.Request) error {
	docID, nodeID, err := nodeParams(r)
	if err != nil {
		return err
	}
	mode, err := edit.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		return err
	}
	var body struct {
		Markdown string `json:"markdown"`
	}
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	md, err := s.service.SaveNodeMarkdown(r.Context(), userID(r), docID, nodeID, mode, body.Markdown)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"documentId": docID, "markdown": md})
	return nil
}

func (s *HTTPServer) anchors(w http.ResponseWriter, r *http.Request) error {
	docID, nodeID, err := nodeParams(r)
	if err != nil {
		return err
	}
	anchors, err := s.service.Anchors(r.Context(), docID, nodeID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"anchors": anchors})
	return nil
}

func (s *HTTPServer) backlinks(w http.ResponseWriter, r *http.Request) error {
	_, nodeID, err := nodeParams(r)
	if err != nil {
		return err
	}
	ids, err := s.service.Backlinks(r.Context(), nodeID)
	if err != nil {
		return err
	}
	if ids == nil {
		ids = []model.NodeID{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodeIds": ids})
	return nil
}

func (s *HTTPServer) history(w http.ResponseWriter, r *http.Request) error {
	docID, err := documentParam(r)
	if err != nil {
		return err
	}
	limit, err := intParam(r.URL.Query().Get("limit"), "limit")
	if err != nil {
		return err
	}
	commits, err := s.service.History(r.Context(), docID, limit)
	if err != nil {
		return err
	}
	if commits == nil {
		commits = []gitrepo.CommitInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"commits": commits})
	return nil
}

func (s *HTTPServer) historyContent(w http.ResponseWriter, r *http.Request) error {
	docID, err := documentParam(r)
	if err != nil {
		return err
	}
	hash := mux.Vars(r)["hash"]
	md, err := s.service.HistoryContent(r.Context(), docID, hash)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"hash": hash, "markdown": md})
	return nil
}

func (s *HTTPServer) export(w http.ResponseWriter, r *http.Request) error {
	docID, err := documentParam(r)
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		return err
	}
	result, err := s.service.Export(r.Context(), docID, format)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
	return nil
}

func userID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-User-ID")); id != "" {
		return id
	}
	return defaultUser
}

func documentParam(r *http.Request) (model.DocumentID, error) {
	id, err := model.ParseDocumentID(mux.Vars(r)["doc"])
	if err != nil {
		return model.DocumentID{}, &model.ValidationError{Field: "documentId", Message: "document id must be a UUID"}
	}
	return id, nil
}

func folderParam(r *http.Request) (model.FolderID, error) {
	id, err := model.ParseFolderID(mux.Vars(r)["folder"])
	if err != nil {
		return model.FolderID{}, &model.ValidationError{Field: "folderId", Message: "folder id must be a UUID"}
	}
	return id, nil
}

func nodeParams(r *http.Request) (model.DocumentID, model.NodeID, error) {
	docID, err := documentParam(r)
	if err != nil {
		return model.DocumentID{}, model.NodeID{}, err
	}
	nodeID, err := model.ParseNodeID(mux.Vars(r)["node"])
	if err != nil {
		return model.DocumentID{}, model.NodeID{}, &model.ValidationError{Field: "nodeId", Message: "node id must be a UUID"}
	}
	return docID, nodeID, nil
}

func intParam(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, &model.ValidationError{Field: field, Message: "must be a non-negative integer"}
	}
	return v, nil
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		metrics.HTTPRequests.WithLabelValues(s.routeName(r), fmt.Sprintf("%dxx", writer.status/100)).Inc()
		s.log.Request(requestID, r.Method, r.URL.Path, writer.status, time.Since(started))
	})
}

// routeName is the matched route template, so metric labels stay bounded.
func (s *HTTPServer) routeName(r *http.Request) string {
	var match mux.RouteMatch
	if s.router.Match(r, &match) && match.Route != nil {
		if tpl, err := match.Route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, X-User-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return &DomainError{Status: http.StatusBadRequest, Code: CodeInvalidBody, Message: "invalid JSON body", Cause: err}
	}
	return nil
}
