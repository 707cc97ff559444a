// Package hub inspects and purges a HuggingFace-style hub cache directory.
// The cache is external state owned by other tooling: every operation here
// degrades to a warning-level outcome rather than a hard failure.
package hub

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const repoDirPrefix = "models--"

// CachedModel describes one repo present in the hub cache.
type CachedModel struct {
	Repo      string `json:"repo"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
}

// Cache reads and deletes entries under a hub cache root, where each repo
// lives in a directory named models--{org}--{name}.
type Cache struct {
	root string
	log  *slog.Logger
}

// NewCache creates a cache inspector rooted at dir. A nil logger defaults to
// slog.Default().
func NewCache(dir string, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{root: dir, log: log}
}

// Root returns the cache directory.
func (c *Cache) Root() string { return c.root }

// List returns the repos currently present in the cache, sorted by repo id.
// A missing cache root is an empty list, not an error.
func (c *Cache) List() ([]CachedModel, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read hub cache dir: %w", err)
	}

	var models []CachedModel
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), repoDirPrefix) {
			continue
		}
		dir := filepath.Join(c.root, entry.Name())
		size, err := dirSize(dir)
		if err != nil {
			c.log.Warn("failed to size hub cache entry",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
		}
		models = append(models, CachedModel{
			Repo:      repoFromDirName(entry.Name()),
			Path:      dir,
			SizeBytes: size,
		})
	}

	sort.Slice(models, func(i, j int) bool { return models[i].Repo < models[j].Repo })
	return models, nil
}

// Purge removes the cache entry for repo. Purging a repo that is not cached
// is a no-op.
func (c *Cache) Purge(repo string) error {
	if repo == "" {
		return nil
	}
	dir := filepath.Join(c.root, dirNameFromRepo(repo))
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("purge hub cache for %s: %w", repo, err)
	}
	c.log.Info("purged hub cache entry", slog.String("repo", repo), slog.String("dir", dir))
	return nil
}

func repoFromDirName(name string) string {
	return strings.ReplaceAll(strings.TrimPrefix(name, repoDirPrefix), "--", "/")
}

func dirNameFromRepo(repo string) string {
	return repoDirPrefix + strings.ReplaceAll(repo, "/", "--")
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
