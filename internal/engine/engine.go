// Package engine defines the contract between the model registry and the
// inference runtime. The registry never inspects model internals; it hands a
// loader the paths and config from a model entry and gets back an opaque
// handle.
package engine

import (
	"context"
	"fmt"
	"maps"
	"os/exec"
	"slices"

	"github.com/example/go-tts-registry/internal/registry"
)

// Handle is a ready-to-use model owned by the inference runtime.
type Handle interface {
	Close() error
}

// Loader turns a model entry's paths and config into a usable model. The
// registry.PathSentinel value means "use the bundled model with no explicit
// path".
type Loader interface {
	Load(ctx context.Context, modelPath, vocabPath string, config map[string]any) (Handle, error)
}

// IsBundled reports whether a path refers to the built-in bundled model.
func IsBundled(path string) bool {
	return path == "" || path == registry.PathSentinel
}

// NopLoader accepts every load request and returns an inert handle. Used
// when serving the registry API without an inference runtime attached.
type NopLoader struct{}

func (NopLoader) Load(context.Context, string, string, map[string]any) (Handle, error) {
	return nopHandle{}, nil
}

type nopHandle struct{}

func (nopHandle) Close() error { return nil }

// CLILoader fronts an inference runtime that runs as a subprocess. Load
// verifies the executable and model files are reachable and returns a handle
// carrying the resolved invocation; the subprocess itself is started per
// synthesis request by the runtime, not here.
type CLILoader struct {
	// BinPath is the inference CLI executable. Empty means look up
	// "f5-tts" on PATH.
	BinPath string
}

type cliHandle struct {
	bin  string
	args []string
}

func (h *cliHandle) Close() error { return nil }

// Args returns the resolved CLI arguments for the loaded model.
func (h *cliHandle) Args() []string { return append([]string(nil), h.args...) }

func (l *CLILoader) Load(_ context.Context, modelPath, vocabPath string, config map[string]any) (Handle, error) {
	bin := l.BinPath
	if bin == "" {
		bin = "f5-tts"
	}
	resolved, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("inference CLI not found: %w", err)
	}

	var args []string
	if !IsBundled(modelPath) {
		args = append(args, "--ckpt_file", modelPath)
	}
	if !IsBundled(vocabPath) {
		args = append(args, "--vocab_file", vocabPath)
	}
	for _, key := range slices.Sorted(maps.Keys(config)) {
		args = append(args, "--"+key, fmt.Sprint(config[key]))
	}
	return &cliHandle{bin: resolved, args: args}, nil
}
