package registry_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/go-tts-registry/internal/registry"
)

func newTestStore(t *testing.T) *registry.Store {
	t.Helper()
	return registry.NewStore(filepath.Join(t.TempDir(), "registry.json"), nil)
}

func TestInitializeCreatesDefaultDocument(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Initialize())

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	require.True(t, json.Valid(raw))

	doc := store.Read()
	require.NotNil(t, doc.ActiveModel)
	require.Equal(t, registry.DefaultModelID, *doc.ActiveModel)
	require.True(t, doc.HasModel(registry.DefaultModelID))
	require.NotNil(t, doc.Downloads)
}

func TestInitializeIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Initialize())
	require.NoError(t, store.Update(func(doc *registry.Document) error {
		doc.Models = append(doc.Models, registry.ModelEntry{
			ID: "extra", Name: "Extra", ModelPath: "/m", VocabPath: "/v",
			Config: map[string]any{}, Source: registry.SourceLocal,
			Language: "en", Languages: []string{"en"},
		})
		return nil
	}))
	require.NoError(t, store.Initialize())

	doc := store.Read()
	require.True(t, doc.HasModel("extra"), "second initialize must not reset existing data")
}

func TestReadResetsCorruptedFile(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not valid json"), 0o644))

	doc := store.Read()

	require.True(t, doc.HasModel(registry.DefaultModelID))
	require.NotNil(t, doc.ActiveModel)
	require.Equal(t, registry.DefaultModelID, *doc.ActiveModel)

	// The reset must also land on disk.
	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	require.True(t, json.Valid(raw))
}

func TestReadResetsDocumentMissingRequiredKeys(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"models": []}`), 0o644))

	doc := store.Read()
	require.True(t, doc.HasModel(registry.DefaultModelID))
}

func TestReadReinsertsEvictedDefaultModel(t *testing.T) {
	store := newTestStore(t)
	raw := `{
		"active_model": "other",
		"models": [
			{"id": "other", "name": "Other", "model_path": "/m", "vocab_path": "/v",
			 "config": {}, "source": "local", "language": "en", "languages": ["en"]}
		],
		"downloads": {}
	}`
	require.NoError(t, os.WriteFile(store.Path(), []byte(raw), 0o644))

	doc := store.Read()

	i := doc.FindModel(registry.DefaultModelID)
	require.GreaterOrEqual(t, i, 0)
	require.Equal(t, registry.SourceDefault, doc.Models[i].Source)
	require.True(t, doc.HasModel("other"), "repair must not drop existing entries")
	require.Equal(t, "other", *doc.ActiveModel, "repair must not steal the active slot")
}

func TestWriteReadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	size := int64(1234)
	total := int64(10000)
	progress := 12.3
	errMsg := "connection reset"
	active := "voice-de"
	doc := registry.Document{
		ActiveModel: &active,
		Models: []registry.ModelEntry{
			registry.DefaultModelEntry(),
			{
				ID: "voice-de", Name: "German Voice", SourceRepo: "acme/voice-de",
				ModelPath: "/models/voice-de/model.pt", VocabPath: "/models/voice-de/vocab.txt",
				Config: map[string]any{"sample_rate": float64(24000)},
				Source: registry.SourceHuggingFace, Language: "de", Languages: []string{"de", "en"},
			},
		},
		Downloads: map[string]registry.DownloadStatus{
			"voice-fr": {
				Status:         registry.StateDownloading,
				DownloadedSize: &size,
				TotalSize:      &total,
				Progress:       &progress,
				Timestamp:      1700000000,
			},
			"voice-it": {
				Status:    registry.StateFailed,
				Error:     &errMsg,
				Timestamp: 1700000100,
			},
		},
	}

	require.NoError(t, store.Write(doc))
	got := store.Read()

	require.Equal(t, doc.ActiveModel, got.ActiveModel)
	require.Equal(t, doc.Models, got.Models)
	require.Equal(t, doc.Downloads, got.Downloads)
}

func TestWriteLeavesNoTempFile(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Write(registry.DefaultDocument()))

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, filepath.Base(store.Path()), entries[0].Name())
}

func TestUpdateAbortsWithoutWritingOnError(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Initialize())
	before := store.Read()

	wantErr := &registry.NotFoundError{ID: "nope"}
	err := store.Update(func(doc *registry.Document) error {
		doc.Models = nil
		return wantErr
	})
	require.ErrorAs(t, err, &wantErr)

	after := store.Read()
	require.Equal(t, before.Models, after.Models)
}

func TestDownloadStatusErrorSerializesAsNull(t *testing.T) {
	st := registry.DownloadStatus{Status: registry.StateDownloading, Timestamp: 1}
	raw, err := json.Marshal(st)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"error":null`)
}
