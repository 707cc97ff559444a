// Package registry persists the model registry: every installed model, the
// active model pointer, and the status of in-flight downloads. The registry is
// a single JSON document on disk; all other packages read and mutate it
// through the Store and Manager types in this package.
package registry

// DefaultModelID is the bundled model entry that always exists in the
// registry and can never be deleted.
const DefaultModelID = "f5tts-v1-base"

// PathSentinel marks a model or vocab path as "use the bundled model"
// instead of an explicit filesystem path.
const PathSentinel = "default"

// Source identifies where a model entry's files came from.
type Source string

const (
	SourceDefault     Source = "default"
	SourceHuggingFace Source = "huggingface"
	SourceURL         Source = "url"
	SourceLocal       Source = "local"
)

// ModelEntry describes one installed TTS model.
type ModelEntry struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	SourceRepo string         `json:"source_repo,omitempty"`
	ModelPath  string         `json:"model_path"`
	VocabPath  string         `json:"vocab_path"`
	Config     map[string]any `json:"config"`
	Source     Source         `json:"source"`
	Language   string         `json:"language"`
	Languages  []string       `json:"languages"`
}

// DownloadState is the persisted state of an in-flight download. A completed
// download is never persisted; completion is signaled by the status entry
// disappearing while the model appears in Models.
type DownloadState string

const (
	StateDownloading DownloadState = "downloading"
	StateFailed      DownloadState = "failed"
)

// DownloadStatus tracks progress of one in-flight or failed download.
type DownloadStatus struct {
	Status         DownloadState `json:"status"`
	DownloadedSize *int64        `json:"downloaded_size,omitempty"`
	TotalSize      *int64        `json:"total_size,omitempty"`
	Progress       *float64      `json:"progress,omitempty"`
	Error          *string       `json:"error"`
	Timestamp      int64         `json:"timestamp"`
}

// Document is the full registry document as persisted on disk.
type Document struct {
	ActiveModel *string                   `json:"active_model"`
	Models      []ModelEntry              `json:"models"`
	Downloads   map[string]DownloadStatus `json:"downloads"`
}

// DefaultModelEntry returns the bundled model entry that the store re-inserts
// whenever it is missing.
func DefaultModelEntry() ModelEntry {
	return ModelEntry{
		ID:        DefaultModelID,
		Name:      "F5-TTS v1 Base",
		ModelPath: PathSentinel,
		VocabPath: PathSentinel,
		Config:    map[string]any{},
		Source:    SourceDefault,
		Language:  "en",
		Languages: []string{"en"},
	}
}

// DefaultDocument returns a fresh registry document containing only the
// bundled model, which is also the active model.
func DefaultDocument() Document {
	id := DefaultModelID
	return Document{
		ActiveModel: &id,
		Models:      []ModelEntry{DefaultModelEntry()},
		Downloads:   map[string]DownloadStatus{},
	}
}

// FindModel returns the index of the entry with the given id, or -1.
func (d Document) FindModel(id string) int {
	for i := range d.Models {
		if d.Models[i].ID == id {
			return i
		}
	}
	return -1
}

// HasModel reports whether an entry with the given id exists.
func (d Document) HasModel(id string) bool {
	return d.FindModel(id) >= 0
}
