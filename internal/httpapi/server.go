// Package httpapi is the HTTP front-end collaborator: a thin REST layer
// over the Engine library surface (§6, §12). It owns no search state of
// its own.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/harrowgate/ftsengine/internal/engine"
	"github.com/harrowgate/ftsengine/pkg/types"
)

// Server wraps an Engine with the chi router implementing the documented
// HTTP contract.
type Server struct {
	engine *engine.Engine
	log    *slog.Logger
	cfg    types.ServerConfig
	router chi.Router
}

// New builds a Server. It does not start listening; call Run.
func New(e *engine.Engine, cfg types.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{engine: e, log: logger, cfg: cfg}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the router for tests and alternate transports.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/documents", s.handleCreateDocument)
	r.Post("/documents/batch", s.handleCreateBatch)
	r.Get("/documents/{id}", s.handleGetDocument)
	r.Put("/documents/{id}", s.handlePutDocument)
	r.Delete("/documents/{id}", s.handleDeleteDocument)
	r.Get("/search", s.handleSearch)
	r.Get("/stats", s.handleStats)

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Run listens on cfg.Host:cfg.Port until ctx is canceled, then shuts down
// gracefully within cfg.ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		s.log.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type documentRequest struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
}

func (dr documentRequest) toDocument() types.Document {
	return types.Document{ID: dr.ID, Title: dr.Title, Content: dr.Content, URL: dr.URL}
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.Errorf("httpapi.handleCreateDocument", types.ErrInvalidInput, "malformed body: %v", err))
		return
	}
	if err := s.engine.UpsertDocument(req.toDocument()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type batchRequest struct {
	Documents []documentRequest `json:"documents"`
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.Errorf("httpapi.handleCreateBatch", types.ErrInvalidInput, "malformed body: %v", err))
		return
	}
	docs := make([]types.Document, len(req.Documents))
	for i, d := range req.Documents {
		docs[i] = d.toDocument()
	}
	if err := s.engine.UpsertBatch(docs); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "count": len(docs)})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, ok, err := s.engine.GetDocument(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, types.Errorf("httpapi.handleGetDocument", types.ErrNotFound, "document %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handlePutDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.Errorf("httpapi.handlePutDocument", types.ErrInvalidInput, "malformed body: %v", err))
		return
	}
	if req.ID != "" && req.ID != id {
		writeError(w, types.Errorf("httpapi.handlePutDocument", types.ErrInvalidInput, "body id %q does not match path id %q", req.ID, id))
		return
	}
	req.ID = id
	if err := s.engine.UpsertDocument(req.toDocument()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := s.engine.DeleteDocument(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeError(w, types.Errorf("httpapi.handleDeleteDocument", types.ErrNotFound, "document %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := types.DefaultSearchOptions()

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, types.Errorf("httpapi.handleSearch", types.ErrInvalidInput, "invalid limit %q", v))
			return
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, types.Errorf("httpapi.handleSearch", types.ErrInvalidInput, "invalid offset %q", v))
			return
		}
		opts.Offset = n
	}
	if v := q.Get("ranked"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, types.Errorf("httpapi.handleSearch", types.ErrInvalidInput, "invalid ranked %q", v))
			return
		}
		opts.Ranked = b
	}
	if v := q.Get("mode"); v != "" {
		mode := types.SearchMode(v)
		if mode != types.ModeAND && mode != types.ModeOR {
			writeError(w, types.Errorf("httpapi.handleSearch", types.ErrInvalidInput, "invalid mode %q", v))
			return
		}
		opts.Mode = mode
	}

	results, err := s.engine.Search(q.Get("query"), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrStorageError), errors.Is(err, types.ErrCorruption):
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
