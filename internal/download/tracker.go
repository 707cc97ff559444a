// Package download runs model downloads on background workers: byte-precise
// progress tracking persisted through the registry store, cooperative
// cancellation, and the chunked transfer loop itself.
package download

import (
	"log/slog"
	"math"
	"time"

	"github.com/example/go-tts-registry/internal/registry"
)

// Tracker translates raw byte counters into the persisted download status
// shape. All writes go through the registry store at whole-document
// granularity.
type Tracker struct {
	store *registry.Store
	log   *slog.Logger
}

// NewTracker creates a tracker backed by store. A nil logger defaults to
// slog.Default().
func NewTracker(store *registry.Store, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{store: store, log: log}
}

// Update carries one progress report. Nil numeric fields mean "unknown".
type Update struct {
	State          registry.DownloadState
	DownloadedSize *int64
	TotalSize      *int64
	Progress       *float64
	Error          string
}

// Set persists a progress update for id. When both sizes are known the
// percentage is derived from them; a known downloaded size without a total is
// persisted with no percentage at all (it is undefined); otherwise an
// explicitly supplied percentage is used. Every branch stamps a fresh
// timestamp.
func (t *Tracker) Set(id string, u Update) error {
	status := registry.DownloadStatus{
		Status:    u.State,
		Timestamp: time.Now().Unix(),
	}

	switch {
	case u.DownloadedSize != nil && u.TotalSize != nil && *u.TotalSize > 0:
		p := truncateProgress(float64(*u.DownloadedSize) / float64(*u.TotalSize) * 100)
		status.DownloadedSize = u.DownloadedSize
		status.TotalSize = u.TotalSize
		status.Progress = &p
	case u.DownloadedSize != nil:
		status.DownloadedSize = u.DownloadedSize
	case u.Progress != nil:
		p := truncateProgress(*u.Progress)
		status.Progress = &p
	}

	if u.Error != "" {
		msg := u.Error
		status.Error = &msg
	}

	return t.store.Update(func(doc *registry.Document) error {
		doc.Downloads[id] = status
		return nil
	})
}

// Complete removes the download entry for id. A completed status is never
// persisted: pollers learn of completion from the entry's absence combined
// with the model appearing in the registry.
func (t *Tracker) Complete(id string) error {
	t.log.Info("download reached 100%", slog.String("model_id", id))
	return t.Remove(id)
}

// Get returns the status entry for id, if one exists.
func (t *Tracker) Get(id string) (registry.DownloadStatus, bool) {
	doc := t.store.Read()
	status, ok := doc.Downloads[id]
	return status, ok
}

// Remove deletes the status entry for id. Removing an absent entry is a
// no-op.
func (t *Tracker) Remove(id string) error {
	return t.store.Update(func(doc *registry.Document) error {
		delete(doc.Downloads, id)
		return nil
	})
}

// truncateProgress truncates a raw percentage to one decimal place and clamps
// it to [0, 100]. Truncation, not rounding: 99.96% must display as 99.9, a
// poller may never see 100.0 before the transfer has fully landed on disk.
func truncateProgress(raw float64) float64 {
	p := math.Floor(raw*10) / 10
	if p > 100 {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	return p
}
