package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"github.com/example/go-tts-registry/internal/hub"
)

// ExternalCache lists and purges externally cached model data keyed by source
// repo. Failures to reach the cache degrade to warnings, never hard errors.
type ExternalCache interface {
	List() ([]hub.CachedModel, error)
	Purge(repo string) error
}

// Manager layers the registry business rules on top of the Store: model CRUD,
// active-model selection, and the coupled file/cache cleanup on delete.
type Manager struct {
	store     *Store
	cache     ExternalCache
	modelsDir string
	log       *slog.Logger
}

// NewManager creates a manager. modelsDir is where downloaded models keep
// their per-id directories; cache may be nil when no external cache is
// configured. A nil logger defaults to slog.Default().
func NewManager(store *Store, modelsDir string, cache ExternalCache, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{store: store, cache: cache, modelsDir: modelsDir, log: log}
}

// Store exposes the underlying document store.
func (m *Manager) Store() *Store { return m.store }

// ModelDir returns the dedicated directory for a model id's downloaded files.
func (m *Manager) ModelDir(id string) string {
	return filepath.Join(m.modelsDir, id)
}

// Snapshot is the list-models projection of the registry document, optionally
// augmented with externally cached models.
type Snapshot struct {
	ActiveModel *string                   `json:"active_model"`
	Models      []ModelEntry              `json:"models"`
	Downloads   map[string]DownloadStatus `json:"downloads"`
	CacheModels []hub.CachedModel         `json:"cache_models,omitempty"`
}

// ListModels returns the current registry contents. With includeCache set it
// additionally asks the external cache for its entries; cache failures are
// logged and leave CacheModels empty.
func (m *Manager) ListModels(includeCache bool) Snapshot {
	doc := m.store.Read()
	snap := Snapshot{
		ActiveModel: doc.ActiveModel,
		Models:      doc.Models,
		Downloads:   doc.Downloads,
	}
	if includeCache && m.cache != nil {
		cached, err := m.cache.List()
		if err != nil {
			m.log.Warn("external cache listing failed", slog.String("error", err.Error()))
		} else {
			snap.CacheModels = cached
		}
	}
	return snap
}

// ActiveModel returns the active model id, or empty string when none is set.
func (m *Manager) ActiveModel() string {
	doc := m.store.Read()
	if doc.ActiveModel == nil {
		return ""
	}
	return *doc.ActiveModel
}

// GetModel returns the entry for id.
func (m *Manager) GetModel(id string) (ModelEntry, error) {
	doc := m.store.Read()
	i := doc.FindModel(id)
	if i < 0 {
		return ModelEntry{}, &NotFoundError{ID: id}
	}
	return doc.Models[i], nil
}

// SetActiveModel points active_model at id. Setting the already-active model
// is a no-op success. Read() self-heals the document first, so the default
// model is always eligible even after an eviction.
func (m *Manager) SetActiveModel(id string) error {
	return m.store.Update(func(doc *Document) error {
		if !doc.HasModel(id) {
			return &NotFoundError{ID: id}
		}
		if doc.ActiveModel != nil && *doc.ActiveModel == id {
			return nil
		}
		doc.ActiveModel = &id
		m.log.Info("active model changed", slog.String("model_id", id))
		return nil
	})
}

// AddModel appends a new entry. A duplicate id is rejected without touching
// the registry. When the registry held nothing but the bundled default and
// the new entry is a real model, it becomes the active model.
func (m *Manager) AddModel(entry ModelEntry) error {
	if entry.ID == "" {
		return errors.New("model id is required")
	}
	normalizeEntry(&entry)

	return m.store.Update(func(doc *Document) error {
		if doc.HasModel(entry.ID) {
			return &DuplicateIDError{ID: entry.ID}
		}
		doc.Models = append(doc.Models, entry)

		if entry.Source != SourceDefault && onlyDefaultBefore(doc, entry.ID) {
			id := entry.ID
			doc.ActiveModel = &id
			m.log.Info("first real model added, promoting to active",
				slog.String("model_id", entry.ID))
		}
		return nil
	})
}

// ModelUpdate carries the mutable fields of a model entry. Nil fields are
// left untouched.
type ModelUpdate struct {
	Name      *string        `json:"name,omitempty"`
	Language  *string        `json:"language,omitempty"`
	Languages []string       `json:"languages,omitempty"`
	Config    map[string]any `json:"config,omitempty"`
}

// UpdateModel mutates the allow-listed fields of an entry. Updating language
// without languages collapses languages to the singleton list. A call that
// changes nothing is still a success.
func (m *Manager) UpdateModel(id string, upd ModelUpdate) error {
	return m.store.Update(func(doc *Document) error {
		i := doc.FindModel(id)
		if i < 0 {
			return &NotFoundError{ID: id}
		}

		entry := doc.Models[i]
		if upd.Name != nil {
			entry.Name = *upd.Name
		}
		if upd.Language != nil {
			entry.Language = *upd.Language
			if upd.Languages == nil {
				entry.Languages = []string{*upd.Language}
			}
		}
		if upd.Languages != nil {
			entry.Languages = slices.Clone(upd.Languages)
		}
		if upd.Config != nil {
			entry.Config = upd.Config
		}

		if reflect.DeepEqual(entry, doc.Models[i]) {
			return nil
		}
		doc.Models[i] = entry
		return nil
	})
}

// DeleteModel removes an entry, reassigns the active model if needed, drops
// any stale download status, and then cleans up the model's files. The
// registry mutation is persisted before file deletion, so a cleanup failure
// never leaves the registry inconsistent; cleanup problems come back as
// warnings.
func (m *Manager) DeleteModel(id string, purgeCache bool) ([]string, error) {
	if id == DefaultModelID {
		return nil, &DefaultModelError{ID: id}
	}

	var removed ModelEntry
	err := m.store.Update(func(doc *Document) error {
		i := doc.FindModel(id)
		if i < 0 {
			return &NotFoundError{ID: id}
		}
		removed = doc.Models[i]
		doc.Models = slices.Delete(doc.Models, i, i+1)

		if doc.ActiveModel != nil && *doc.ActiveModel == id {
			if doc.HasModel(DefaultModelID) {
				def := DefaultModelID
				doc.ActiveModel = &def
			} else {
				doc.ActiveModel = nil
			}
		}
		delete(doc.Downloads, id)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var warnings []string

	dir := m.ModelDir(id)
	if err := os.RemoveAll(dir); err != nil {
		warnings = append(warnings, fmt.Sprintf("failed to remove model directory %s: %v", dir, err))
	}
	for _, path := range []string{removed.ModelPath, removed.VocabPath} {
		if path == "" || path == PathSentinel || insideDir(dir, path) {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			warnings = append(warnings, fmt.Sprintf("failed to remove %s: %v", path, err))
		}
	}

	if purgeCache && removed.SourceRepo != "" && m.cache != nil {
		if err := m.cache.Purge(removed.SourceRepo); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to purge external cache for %s: %v", removed.SourceRepo, err))
		}
	}

	for _, w := range warnings {
		m.log.Warn("model delete cleanup", slog.String("model_id", id), slog.String("warning", w))
	}
	m.log.Info("model deleted", slog.String("model_id", id))
	return warnings, nil
}

func normalizeEntry(entry *ModelEntry) {
	if entry.Name == "" {
		entry.Name = entry.ID
	}
	if entry.Config == nil {
		entry.Config = map[string]any{}
	}
	if entry.Language == "" && len(entry.Languages) > 0 {
		entry.Language = entry.Languages[0]
	}
	if entry.Language == "" {
		entry.Language = "en"
	}
	if len(entry.Languages) == 0 {
		entry.Languages = []string{entry.Language}
	}
}

// onlyDefaultBefore reports whether, ignoring newID, the registry holds
// nothing but the bundled default entry.
func onlyDefaultBefore(doc *Document, newID string) bool {
	for _, entry := range doc.Models {
		if entry.ID == newID || entry.ID == DefaultModelID {
			continue
		}
		return false
	}
	return true
}

// insideDir reports whether path lives under dir, so a RemoveAll of dir
// already covered it.
func insideDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
