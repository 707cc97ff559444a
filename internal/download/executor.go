package download

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/example/go-tts-registry/internal/registry"
)

const (
	defaultChunkSize      = 64 * 1024
	defaultUpdateInterval = 500 * time.Millisecond

	// weightsStageEnd is where the primary weights file hands progress
	// over to the vocab file in a two-file download.
	weightsStageEnd = 90.0
)

// errCancelled terminates a worker whose cancel flag was observed.
var errCancelled = errors.New("download cancelled")

// AccessDeniedError reports a 401/403 from the remote source.
type AccessDeniedError struct {
	URL string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied for %s; provide an auth token", e.URL)
}

// ExecutorOptions tunes the transfer loop. Zero values select defaults.
type ExecutorOptions struct {
	ChunkSize      int
	UpdateInterval time.Duration
	AuthToken      string
	Client         *http.Client
	Logger         *slog.Logger
}

// Executor runs one model download end-to-end on a background goroutine,
// reporting through the tracker and honoring the coordinator's cancel flag
// once per chunk.
type Executor struct {
	models  *registry.Manager
	tracker *Tracker
	coord   *Coordinator
	client  *http.Client
	log     *slog.Logger

	chunkSize      int
	updateInterval time.Duration
	authToken      string
}

// NewExecutor creates an executor over the given registry, tracker, and
// coordinator.
func NewExecutor(models *registry.Manager, tracker *Tracker, coord *Coordinator, opts ExecutorOptions) *Executor {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.UpdateInterval <= 0 {
		opts.UpdateInterval = defaultUpdateInterval
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Executor{
		models:         models,
		tracker:        tracker,
		coord:          coord,
		client:         opts.Client,
		log:            opts.Logger,
		chunkSize:      opts.ChunkSize,
		updateInterval: opts.UpdateInterval,
		authToken:      opts.AuthToken,
	}
}

// Request describes one download to start. Language fields are optional;
// when absent they are inferred from the model id and source locator.
type Request struct {
	ModelID   string
	Name      string
	Source    Source
	Config    map[string]any
	Language  string
	Languages []string
}

// Start validates the request, registers the cancellation entry, writes the
// initial downloading status, and hands off to a background worker. The
// preflight checks make Start idempotent against duplicate or racing
// requests: an installed model, a running download, or a live cancellation
// entry each reject the request synchronously.
func (e *Executor) Start(req Request) error {
	if req.ModelID == "" {
		return errors.New("model id is required")
	}
	if req.Source == nil {
		return errors.New("download source is required")
	}
	if err := req.Source.Validate(); err != nil {
		return err
	}

	doc := e.models.Store().Read()
	if doc.HasModel(req.ModelID) {
		return &registry.DuplicateIDError{ID: req.ModelID}
	}
	if status, ok := doc.Downloads[req.ModelID]; ok && status.Status == registry.StateDownloading {
		return &InProgressError{ID: req.ModelID}
	}

	dir := e.models.ModelDir(req.ModelID)
	workerID := uuid.NewString()
	if err := e.coord.Register(req.ModelID, workerID, req.Source.Repo(), dir); err != nil {
		return err
	}

	zero := 0.0
	if err := e.tracker.Set(req.ModelID, Update{State: registry.StateDownloading, Progress: &zero}); err != nil {
		e.log.Warn("failed to persist initial download status",
			slog.String("model_id", req.ModelID),
			slog.String("error", err.Error()),
		)
	}

	e.log.Info("download started",
		slog.String("model_id", req.ModelID),
		slog.String("worker_id", workerID),
		slog.String("repo", req.Source.Repo()),
	)
	go e.run(req, workerID, dir)
	return nil
}

func (e *Executor) run(req Request, workerID, dir string) {
	defer e.coord.Release(req.ModelID)
	log := e.log.With(
		slog.String("model_id", req.ModelID),
		slog.String("worker_id", workerID),
	)

	files := req.Source.Files()
	staged := len(files) > 1
	paths := make([]string, len(files))

	for i, file := range files {
		stageStart, stageEnd := stageBounds(i, len(files))
		paths[i] = filepath.Join(dir, file.Name)

		err := e.fetch(req.ModelID, file.URL, paths[i], stageStart, stageEnd, staged)
		if errors.Is(err, errCancelled) {
			log.Info("download cancelled by worker")
			_ = e.tracker.Remove(req.ModelID)
			return
		}
		if err != nil {
			log.Error("download failed", slog.String("url", file.URL), slog.String("error", err.Error()))
			_ = e.tracker.Set(req.ModelID, Update{State: registry.StateFailed, Error: err.Error()})
			return
		}
	}

	// A cancel that lands between the last chunk and here must still win.
	if e.coord.Cancelled(req.ModelID) {
		log.Info("download cancelled after transfer")
		_ = e.tracker.Remove(req.ModelID)
		return
	}

	entry := e.buildEntry(req, paths)
	if err := e.models.AddModel(entry); err != nil {
		// Never drop finished files without a trace: the failure (e.g. a
		// duplicate id from a racing add) stays visible to pollers.
		log.Error("failed to register downloaded model", slog.String("error", err.Error()))
		_ = e.tracker.Set(req.ModelID, Update{State: registry.StateFailed, Error: err.Error()})
		return
	}
	_ = e.tracker.Complete(req.ModelID)
	log.Info("model installed", slog.String("path", entry.ModelPath))
}

// fetch streams one file to disk in fixed-size chunks, checking the cancel
// flag once per chunk and pushing a throttled progress update after each
// write. On error it deletes the partial file but leaves the rest of the
// target directory alone, so earlier files survive for retry or inspection.
func (e *Executor) fetch(id, fileURL, dest string, stageStart, stageEnd float64, staged bool) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	total := e.probeSize(fileURL)

	req, err := http.NewRequest(http.MethodGet, fileURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	e.setAuth(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &AccessDeniedError{URL: fileURL}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("download failed for %s: %s", fileURL, resp.Status)
	}
	if total <= 0 && resp.ContentLength > 0 {
		total = resp.ContentLength
	}

	fh, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	buf := make([]byte, e.chunkSize)
	var written int64
	var lastUpdate time.Time
	for {
		if e.coord.Cancelled(id) {
			_ = fh.Close()
			_ = os.Remove(dest)
			return errCancelled
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := fh.Write(buf[:n]); writeErr != nil {
				_ = fh.Close()
				_ = os.Remove(dest)
				return fmt.Errorf("write %s: %w", dest, writeErr)
			}
			written += int64(n)
			if time.Since(lastUpdate) >= e.updateInterval {
				e.report(id, written, total, stageStart, stageEnd, staged)
				lastUpdate = time.Now()
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = fh.Close()
			_ = os.Remove(dest)
			return fmt.Errorf("download read failed: %w", readErr)
		}
	}

	if err := fh.Close(); err != nil {
		_ = os.Remove(dest)
		return fmt.Errorf("close file: %w", err)
	}

	// Unthrottled final report so the stage boundary lands exactly.
	if total <= 0 {
		total = written
	}
	e.report(id, written, total, stageStart, stageEnd, staged)
	return nil
}

// report persists a progress update. A single-file download reports raw
// sizes and lets the tracker derive the percentage; a staged multi-file
// download reports the staged percentage explicitly so the externally
// visible progress stays monotonic across files.
func (e *Executor) report(id string, written, total int64, stageStart, stageEnd float64, staged bool) {
	u := Update{State: registry.StateDownloading}
	switch {
	case staged:
		p := stageStart
		if total > 0 {
			p += float64(written) / float64(total) * (stageEnd - stageStart)
		}
		u.Progress = &p
	case total > 0:
		u.DownloadedSize = &written
		u.TotalSize = &total
	default:
		u.DownloadedSize = &written
	}

	if err := e.tracker.Set(id, u); err != nil {
		e.log.Warn("failed to persist download progress",
			slog.String("model_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// probeSize issues a HEAD request to learn the file size up front. Any
// failure means "unknown" (-1); the download proceeds regardless.
func (e *Executor) probeSize(fileURL string) int64 {
	req, err := http.NewRequest(http.MethodHead, fileURL, nil)
	if err != nil {
		return -1
	}
	e.setAuth(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return -1
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 399 {
		return -1
	}
	if resp.ContentLength > 0 {
		return resp.ContentLength
	}
	return -1
}

func (e *Executor) setAuth(req *http.Request) {
	if e.authToken == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+e.authToken)
}

func (e *Executor) buildEntry(req Request, paths []string) registry.ModelEntry {
	language, languages := req.Language, req.Languages
	if language == "" && len(languages) == 0 {
		candidates := []string{req.ModelID, req.Source.Repo()}
		for _, f := range req.Source.Files() {
			candidates = append(candidates, f.URL)
		}
		language, languages = inferLanguages(candidates...)
	}

	name := req.Name
	if name == "" {
		name = req.ModelID
	}
	vocabPath := ""
	if len(paths) > 1 {
		vocabPath = paths[1]
	}
	return registry.ModelEntry{
		ID:         req.ModelID,
		Name:       name,
		SourceRepo: req.Source.Repo(),
		ModelPath:  paths[0],
		VocabPath:  vocabPath,
		Config:     req.Config,
		Source:     req.Source.Kind(),
		Language:   language,
		Languages:  languages,
	}
}

// stageBounds maps the i-th of n files to its slice of the overall progress
// range: the weights file spans 0–90, the remaining files split 90–100.
func stageBounds(i, n int) (float64, float64) {
	if n <= 1 {
		return 0, 100
	}
	if i == 0 {
		return 0, weightsStageEnd
	}
	span := (100 - weightsStageEnd) / float64(n-1)
	return weightsStageEnd + span*float64(i-1), weightsStageEnd + span*float64(i)
}
