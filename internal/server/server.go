// Package server exposes the model registry and download operations over
// HTTP. Handlers translate JSON bodies to registry/download calls; every
// validation failure maps to a 4xx with an error message, never a crash.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/example/go-tts-registry/internal/download"
	"github.com/example/go-tts-registry/internal/engine"
	"github.com/example/go-tts-registry/internal/registry"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	logger   *slog.Logger
	loader   engine.Loader
	endpoint string
}

func defaultOptions() options {
	return options{
		logger:   slog.Default(),
		loader:   nil,
		endpoint: download.DefaultEndpoint,
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLoader attaches an inference loader that is asked to load a model
// after it becomes active. Load failures are logged, not surfaced: the
// registry mutation already succeeded.
func WithLoader(l engine.Loader) Option {
	return func(o *options) { o.loader = l }
}

// WithEndpoint overrides the repository download URL template.
func WithEndpoint(tmpl string) Option {
	return func(o *options) {
		if tmpl != "" {
			o.endpoint = tmpl
		}
	}
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

type handler struct {
	models   *registry.Manager
	executor *download.Executor
	tracker  *download.Tracker
	coord    *download.Coordinator
	loader   engine.Loader
	endpoint string
	log      *slog.Logger
}

// NewHandler returns an http.Handler serving the registry and download API.
func NewHandler(models *registry.Manager, executor *download.Executor, tracker *download.Tracker, coord *download.Coordinator, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		models:   models,
		executor: executor,
		tracker:  tracker,
		coord:    coord,
		loader:   opts.loader,
		endpoint: opts.endpoint,
		log:      opts.logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /api/models", h.handleListModels)
	mux.HandleFunc("POST /api/models", h.handleAddModel)
	mux.HandleFunc("GET /api/models/active", h.handleGetActive)
	mux.HandleFunc("POST /api/models/active", h.handleSetActive)
	mux.HandleFunc("GET /api/models/{id}", h.handleGetModel)
	mux.HandleFunc("PATCH /api/models/{id}", h.handleUpdateModel)
	mux.HandleFunc("DELETE /api/models/{id}", h.handleDeleteModel)
	mux.HandleFunc("POST /api/downloads", h.handleStartDownload)
	mux.HandleFunc("GET /api/downloads/{id}", h.handleDownloadStatus)
	mux.HandleFunc("DELETE /api/downloads/{id}", h.handleCancelDownload)
	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

func (h *handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	includeCache := r.URL.Query().Get("include_cache") == "1"
	writeJSON(w, http.StatusOK, h.models.ListModels(includeCache))
}

func (h *handler) handleGetModel(w http.ResponseWriter, r *http.Request) {
	entry, err := h.models.GetModel(r.PathValue("id"))
	if err != nil {
		writeErrorFor(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *handler) handleAddModel(w http.ResponseWriter, r *http.Request) {
	var entry registry.ModelEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if entry.Source == "" {
		entry.Source = registry.SourceLocal
	}
	if err := h.models.AddModel(entry); err != nil {
		writeErrorFor(w, err)
		return
	}
	h.log.Info("model added", slog.String("model_id", entry.ID))
	writeJSON(w, http.StatusCreated, map[string]string{"id": entry.ID})
}

func (h *handler) handleUpdateModel(w http.ResponseWriter, r *http.Request) {
	var upd registry.ModelUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	id := r.PathValue("id")
	if err := h.models.UpdateModel(id, upd); err != nil {
		writeErrorFor(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (h *handler) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	purge := r.URL.Query().Get("delete_cache") == "1"
	warnings, err := h.models.DeleteModel(id, purge)
	if err != nil {
		writeErrorFor(w, err)
		return
	}
	resp := map[string]any{"id": id}
	if len(warnings) > 0 {
		resp["warnings"] = warnings
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) handleGetActive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"active_model": activeOrNil(h.models.ActiveModel())})
}

type setActiveRequest struct {
	ModelID string `json:"model_id"`
}

func (h *handler) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.ModelID == "" {
		writeError(w, http.StatusBadRequest, "model_id field is required")
		return
	}
	if err := h.models.SetActiveModel(req.ModelID); err != nil {
		writeErrorFor(w, err)
		return
	}

	if h.loader != nil {
		entry, err := h.models.GetModel(req.ModelID)
		if err == nil {
			if _, loadErr := h.loader.Load(r.Context(), entry.ModelPath, entry.VocabPath, entry.Config); loadErr != nil {
				h.log.Warn("inference loader failed for new active model",
					slog.String("model_id", req.ModelID),
					slog.String("error", loadErr.Error()),
				)
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"active_model": req.ModelID})
}

type startDownloadRequest struct {
	ModelID    string         `json:"model_id"`
	Name       string         `json:"name"`
	SourceRepo string         `json:"source_repo"`
	ModelFile  string         `json:"model_file"`
	VocabFile  string         `json:"vocab_file"`
	ModelURL   string         `json:"model_url"`
	VocabURL   string         `json:"vocab_url"`
	Config     map[string]any `json:"config"`
	Language   string         `json:"language"`
	Languages  []string       `json:"languages"`
}

func (h *handler) handleStartDownload(w http.ResponseWriter, r *http.Request) {
	var req startDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	var src download.Source
	switch {
	case req.SourceRepo != "":
		src = download.RepoSource{
			RepoID:    req.SourceRepo,
			ModelFile: req.ModelFile,
			VocabFile: req.VocabFile,
			Endpoint:  h.endpoint,
		}
	case req.ModelURL != "":
		src = download.URLSource{ModelURL: req.ModelURL, VocabURL: req.VocabURL}
	default:
		writeError(w, http.StatusBadRequest, "either source_repo or model_url is required")
		return
	}

	err := h.executor.Start(download.Request{
		ModelID:   req.ModelID,
		Name:      req.Name,
		Source:    src,
		Config:    req.Config,
		Language:  req.Language,
		Languages: req.Languages,
	})
	if err != nil {
		writeErrorFor(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"model_id": req.ModelID, "status": "downloading"})
}

func (h *handler) handleDownloadStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if status, ok := h.tracker.Get(id); ok {
		writeJSON(w, http.StatusOK, status)
		return
	}
	// No status entry plus the model present in the registry means the
	// download finished.
	if _, err := h.models.GetModel(id); err == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
		return
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("no download status for %s", id))
}

func (h *handler) handleCancelDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.coord.RequestCancel(id) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no active download for %s", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"model_id": id, "cancelled": true})
}

func activeOrNil(id string) any {
	if id == "" {
		return nil
	}
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeErrorFor maps the registry/download error taxonomy to HTTP statuses.
func writeErrorFor(w http.ResponseWriter, err error) {
	var (
		notFound   *registry.NotFoundError
		duplicate  *registry.DuplicateIDError
		defModel   *registry.DefaultModelError
		inProgress *download.InProgressError
	)
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &duplicate), errors.As(err, &inProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &defModel):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// ---------------------------------------------------------------------------
// Server — wires handler into net/http.Server with graceful shutdown
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful
// shutdown.
type Server struct {
	addr            string
	handler         http.Handler
	shutdownTimeout time.Duration
}

func New(addr string, h http.Handler) *Server {
	return &Server{
		addr:            addr,
		handler:         h,
		shutdownTimeout: 30 * time.Second,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

// ProbeHTTP checks the health endpoint of a running server.
func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
