// Package doctor provides environment preflight checks for ttsregistry.
package doctor

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// Config holds the paths and settings the doctor checks.
type Config struct {
	// RegistryPath is the registry JSON file location.
	RegistryPath string
	// ModelsDir is where downloaded models are stored.
	ModelsDir string
	// CacheDir is the optional external hub cache directory.
	CacheDir string
	// Endpoint is the repository download URL template.
	Endpoint string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- registry file ----------------------------------------------------
	raw, err := os.ReadFile(cfg.RegistryPath)
	switch {
	case os.IsNotExist(err):
		fmt.Fprintf(w, "%s registry file: absent (will be created on first use)\n", PassMark)
	case err != nil:
		res.fail(fmt.Sprintf("registry file: %v", err))
		fmt.Fprintf(w, "%s registry file: %v\n", FailMark, err)
	case !json.Valid(raw):
		// Not fatal: the store resets a corrupted file, but the operator
		// should know the contents are about to be discarded.
		fmt.Fprintf(w, "%s registry file: corrupted JSON, will be reset on next use\n", PassMark)
	default:
		fmt.Fprintf(w, "%s registry file: %s\n", PassMark, cfg.RegistryPath)
	}

	// ---- registry directory writable --------------------------------------
	if err := checkWritable(filepath.Dir(cfg.RegistryPath)); err != nil {
		res.fail(fmt.Sprintf("registry directory: %v", err))
		fmt.Fprintf(w, "%s registry directory: not writable (%v)\n", FailMark, err)
	} else {
		fmt.Fprintf(w, "%s registry directory: writable\n", PassMark)
	}

	// ---- models directory -------------------------------------------------
	if err := checkWritable(cfg.ModelsDir); err != nil {
		res.fail(fmt.Sprintf("models directory: %v", err))
		fmt.Fprintf(w, "%s models directory: not writable (%v)\n", FailMark, err)
	} else {
		fmt.Fprintf(w, "%s models directory: %s\n", PassMark, cfg.ModelsDir)
	}

	// ---- hub cache directory ----------------------------------------------
	if cfg.CacheDir == "" {
		fmt.Fprintf(w, "%s hub cache: not configured\n", PassMark)
	} else if _, err := os.Stat(cfg.CacheDir); err != nil {
		res.fail(fmt.Sprintf("hub cache %q: %v", cfg.CacheDir, err))
		fmt.Fprintf(w, "%s hub cache %s: not found\n", FailMark, cfg.CacheDir)
	} else {
		fmt.Fprintf(w, "%s hub cache: %s\n", PassMark, cfg.CacheDir)
	}

	// ---- download endpoint template ---------------------------------------
	if err := checkEndpoint(cfg.Endpoint); err != nil {
		res.fail(fmt.Sprintf("download endpoint: %v", err))
		fmt.Fprintf(w, "%s download endpoint: %v\n", FailMark, err)
	} else {
		fmt.Fprintf(w, "%s download endpoint: %s\n", PassMark, cfg.Endpoint)
	}

	return res
}

// checkWritable verifies dir exists (creating it if needed) and accepts a
// probe file.
func checkWritable(dir string) error {
	if dir == "" || dir == "." {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(name)
}

// checkEndpoint requires an http(s) template with exactly two %s verbs
// (repo, file path).
func checkEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("endpoint is empty")
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return fmt.Errorf("endpoint %q is not an http(s) URL template", endpoint)
	}
	if strings.Count(endpoint, "%s") != 2 {
		return fmt.Errorf("endpoint %q must contain two %%s verbs (repo, file)", endpoint)
	}
	return nil
}
