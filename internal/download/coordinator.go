package download

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/go-tts-registry/internal/registry"
)

// releaseGrace is how long a cancellation entry outlives its worker, so a
// near-simultaneous cancel request still finds the entry.
const releaseGrace = 3 * time.Second

// CancelledMessage is the error text a poller sees after an explicit cancel.
const CancelledMessage = "Download cancelled by user"

// InProgressError reports a start request for a model id whose download is
// already running.
type InProgressError struct {
	ID string
}

func (e *InProgressError) Error() string {
	return fmt.Sprintf("Download already in progress for %s", e.ID)
}

type cancelEntry struct {
	workerID string
	repo     string
	dir      string
	cancel   atomic.Bool
}

// Coordinator is the process-wide table of in-flight downloads, keyed by
// model id. Its cancel flag is the only channel between an HTTP caller and a
// download worker; cancellation is cooperative, never preemptive.
type Coordinator struct {
	tracker *Tracker
	log     *slog.Logger
	grace   time.Duration

	mu      sync.Mutex
	entries map[string]*cancelEntry
}

// NewCoordinator creates an empty coordinator. grace <= 0 selects the default
// entry-removal grace period. A nil logger defaults to slog.Default().
func NewCoordinator(tracker *Tracker, grace time.Duration, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if grace <= 0 {
		grace = releaseGrace
	}
	return &Coordinator{
		tracker: tracker,
		log:     log,
		grace:   grace,
		entries: make(map[string]*cancelEntry),
	}
}

// Register creates a cancellation entry for id and returns the worker token.
// Registering an id that already has an entry fails, which makes download
// starts idempotent against racing requests.
func (c *Coordinator) Register(id, workerID, repo, dir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[id]; exists {
		return &InProgressError{ID: id}
	}
	c.entries[id] = &cancelEntry{workerID: workerID, repo: repo, dir: dir}
	return nil
}

// Active reports whether a cancellation entry exists for id.
func (c *Coordinator) Active(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

// Cancelled reports whether cancellation has been requested for id. Workers
// poll this once per chunk.
func (c *Coordinator) Cancelled(id string) bool {
	c.mu.Lock()
	entry, ok := c.entries[id]
	c.mu.Unlock()
	return ok && entry.cancel.Load()
}

// RequestCancel flips the cancel flag for id and returns whether a download
// was there to cancel. In the same synchronous call it marks the download
// status failed and best-effort deletes the files written so far, so the
// cancellation is immediately visible to pollers even though the worker may
// stream for up to one more chunk before noticing. The worker's own cancel
// branch cleans up whatever lands after this.
//
// The failed status is written before the flag is flipped: the worker only
// removes the status entry after observing the flag, so this ordering
// guarantees the entry is gone once the worker exits instead of being
// re-created behind its back.
func (c *Coordinator) RequestCancel(id string) bool {
	c.mu.Lock()
	entry, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return false
	}
	dir := entry.dir
	workerID := entry.workerID
	c.mu.Unlock()

	c.log.Info("download cancellation requested",
		slog.String("model_id", id),
		slog.String("worker_id", workerID),
	)

	if err := c.tracker.Set(id, Update{State: registry.StateFailed, Error: CancelledMessage}); err != nil {
		c.log.Warn("failed to persist cancelled status",
			slog.String("model_id", id),
			slog.String("error", err.Error()),
		)
	}
	entry.cancel.Store(true)

	if dir != "" {
		if err := os.RemoveAll(dir); err != nil {
			c.log.Warn("failed to remove cancelled download files",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
		}
	}
	return true
}

// Release schedules removal of the entry for id after the grace period. The
// delay keeps a racing cancel request from addressing a just-removed entry.
func (c *Coordinator) Release(id string) {
	time.AfterFunc(c.grace, func() {
		c.mu.Lock()
		delete(c.entries, id)
		c.mu.Unlock()
	})
}
