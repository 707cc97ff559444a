package download

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/example/go-tts-registry/internal/registry"
)

// DefaultEndpoint is the URL template used to resolve a file inside a
// content repository.
const DefaultEndpoint = "https://huggingface.co/%s/resolve/main/%s"

// RemoteFile is one file to transfer: its URL and the local file name it is
// stored under.
type RemoteFile struct {
	URL  string
	Name string
}

// Source describes where a model's bytes come from. Both kinds funnel into
// the same chunked transfer loop; they differ only in URL construction.
type Source interface {
	// Files returns the transfers in download order: the weights file
	// first, then an optional vocab file.
	Files() []RemoteFile
	// Repo returns the origin repository identifier, or "" for direct
	// URLs. Kept on the model entry for later cache cleanup.
	Repo() string
	// Kind is the source tag recorded on the finished model entry.
	Kind() registry.Source
	// Validate reports a malformed descriptor before any work starts.
	Validate() error
}

// RepoSource downloads files from a named content repository using an URL
// template.
type RepoSource struct {
	RepoID    string
	ModelFile string
	VocabFile string
	// Endpoint overrides DefaultEndpoint; it must contain two %s verbs
	// (repo, file path).
	Endpoint string
}

func (s RepoSource) Files() []RemoteFile {
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	files := []RemoteFile{{
		URL:  fmt.Sprintf(endpoint, s.RepoID, s.ModelFile),
		Name: path.Base(s.ModelFile),
	}}
	if s.VocabFile != "" {
		files = append(files, RemoteFile{
			URL:  fmt.Sprintf(endpoint, s.RepoID, s.VocabFile),
			Name: path.Base(s.VocabFile),
		})
	}
	return files
}

func (s RepoSource) Repo() string          { return s.RepoID }
func (s RepoSource) Kind() registry.Source { return registry.SourceHuggingFace }

func (s RepoSource) Validate() error {
	if s.RepoID == "" {
		return errors.New("source repo is required")
	}
	if s.ModelFile == "" {
		return errors.New("model file path is required")
	}
	return nil
}

// URLSource downloads files from direct URLs.
type URLSource struct {
	ModelURL string
	VocabURL string
}

func (s URLSource) Files() []RemoteFile {
	files := []RemoteFile{{URL: s.ModelURL, Name: fileNameFromURL(s.ModelURL)}}
	if s.VocabURL != "" {
		files = append(files, RemoteFile{URL: s.VocabURL, Name: fileNameFromURL(s.VocabURL)})
	}
	return files
}

func (s URLSource) Repo() string          { return "" }
func (s URLSource) Kind() registry.Source { return registry.SourceURL }

func (s URLSource) Validate() error {
	if s.ModelURL == "" {
		return errors.New("model URL is required")
	}
	for _, raw := range []string{s.ModelURL, s.VocabURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid download URL %q", raw)
		}
	}
	return nil
}

// fileNameFromURL extracts the final path element of an URL, ignoring any
// query string.
func fileNameFromURL(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	trimmed := raw
	if i := strings.IndexByte(trimmed, '?'); i >= 0 {
		trimmed = trimmed[:i]
	}
	return path.Base(trimmed)
}
