package main

import (
	"time"

	"github.com/example/go-tts-registry/internal/config"
	"github.com/example/go-tts-registry/internal/download"
	"github.com/example/go-tts-registry/internal/hub"
	"github.com/example/go-tts-registry/internal/registry"
)

// components bundles the wired registry/download subsystem for a command.
type components struct {
	store    *registry.Store
	models   *registry.Manager
	tracker  *download.Tracker
	coord    *download.Coordinator
	executor *download.Executor
	cache    *hub.Cache
}

func buildComponents(cfg config.Config) *components {
	store := registry.NewStore(cfg.Paths.RegistryPath, nil)

	var cache *hub.Cache
	var ext registry.ExternalCache
	if cfg.Hub.CacheDir != "" {
		cache = hub.NewCache(cfg.Hub.CacheDir, nil)
		ext = cache
	}

	models := registry.NewManager(store, cfg.Paths.ModelsDir, ext, nil)
	tracker := download.NewTracker(store, nil)
	coord := download.NewCoordinator(tracker, 0, nil)
	executor := download.NewExecutor(models, tracker, coord, download.ExecutorOptions{
		ChunkSize:      cfg.Download.ChunkSizeKB * 1024,
		UpdateInterval: time.Duration(cfg.Download.UpdateIntervalMS) * time.Millisecond,
		AuthToken:      cfg.Download.AuthToken,
	})

	return &components{
		store:    store,
		models:   models,
		tracker:  tracker,
		coord:    coord,
		executor: executor,
		cache:    cache,
	}
}
