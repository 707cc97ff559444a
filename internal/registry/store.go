package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	writeRetries   = 3
	writeRetryWait = 100 * time.Millisecond
)

// Store persists the registry document as a single JSON file. Writes go to a
// temporary file in the same directory followed by an atomic rename, so a
// reader never observes a half-written document. The registry is a cache, not
// a system of record: an unparsable file is reset to the default document
// instead of failing the caller.
type Store struct {
	path string
	log  *slog.Logger

	// Serializes writers within this process. Cross-process races stay
	// last-writer-wins at whole-document granularity.
	mu sync.Mutex
}

// NewStore creates a store for the registry file at path. A nil logger
// defaults to slog.Default().
func NewStore(path string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{path: path, log: log}
}

// Path returns the registry file location.
func (s *Store) Path() string { return s.path }

// Initialize creates the registry file with the default document if it is
// absent, resets it if it is corrupted, and guarantees the bundled model
// entry is present with the active model pointing somewhere valid. It is
// idempotent and safe to call before every read.
func (s *Store) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.loadLocked()
	return err
}

// Read returns the current registry document, initializing or repairing the
// file first. On unrecoverable read failure it returns an in-memory default
// document rather than an error.
func (s *Store) Read() Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		s.log.Error("registry read failed, serving default document",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return DefaultDocument()
	}
	return doc
}

// Write persists the document atomically, retrying transient failures a
// bounded number of times.
func (s *Store) Write(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(doc)
}

// Update applies fn to the current document under the store lock and
// persists the result. This is the read-modify-write primitive every
// mutation in the system goes through. When fn returns an error the document
// is left untouched on disk.
func (s *Store) Update(fn func(*Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		doc = DefaultDocument()
	}
	if err := fn(&doc); err != nil {
		return err
	}
	return s.writeLocked(doc)
}

func (s *Store) loadLocked() (Document, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Document{}, fmt.Errorf("read registry: %w", err)
		}
		doc := DefaultDocument()
		if err := s.writeLocked(doc); err != nil {
			return Document{}, err
		}
		return doc, nil
	}

	doc, ok := decodeDocument(raw)
	if !ok {
		s.log.Warn("registry file corrupted, resetting to default document",
			slog.String("path", s.path),
		)
		doc = DefaultDocument()
		if err := s.writeLocked(doc); err != nil {
			return Document{}, err
		}
		return doc, nil
	}

	if repairDocument(&doc) {
		if err := s.writeLocked(doc); err != nil {
			return Document{}, err
		}
	}
	return doc, nil
}

// decodeDocument parses raw bytes and validates the required top-level keys
// are present. Any structural problem is reported as not-ok so the caller
// resets the file.
func decodeDocument(raw []byte) (Document, bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Document{}, false
	}
	for _, key := range []string{"active_model", "models"} {
		if _, present := probe[key]; !present {
			return Document{}, false
		}
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, false
	}
	return doc, true
}

// repairDocument enforces the invariants that survive any registry state:
// the downloads map exists, the bundled model entry is present, and
// active_model points at an existing entry. Returns true when the document
// was changed and needs persisting.
func repairDocument(doc *Document) bool {
	changed := false

	if doc.Downloads == nil {
		doc.Downloads = map[string]DownloadStatus{}
		changed = true
	}
	if !doc.HasModel(DefaultModelID) {
		doc.Models = append([]ModelEntry{DefaultModelEntry()}, doc.Models...)
		changed = true
	}
	if doc.ActiveModel == nil || !doc.HasModel(*doc.ActiveModel) {
		id := DefaultModelID
		doc.ActiveModel = &id
		changed = true
	}
	return changed
}

func (s *Store) writeLocked(doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < writeRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(writeRetryWait)
		}
		lastErr = replaceFile(s.path, data)
		if lastErr == nil {
			return nil
		}
		s.log.Warn("registry write failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.String("error", lastErr.Error()),
		)
	}
	return fmt.Errorf("write registry after %d attempts: %w", writeRetries, lastErr)
}

// replaceFile writes data to a temporary file next to path and renames it
// into place. Windows occasionally reports a transient permission error when
// the destination is momentarily locked by a concurrent reader; the caller
// retries those.
func replaceFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace registry file: %w", err)
	}
	return nil
}
