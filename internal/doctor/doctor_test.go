package doctor

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunAllChecksPass(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		RegistryPath: filepath.Join(dir, "registry.json"),
		ModelsDir:    filepath.Join(dir, "models"),
		Endpoint:     "https://huggingface.co/%s/resolve/main/%s",
	}

	var buf bytes.Buffer
	res := Run(cfg, &buf)

	if res.Failed() {
		t.Fatalf("expected all checks to pass, got failures: %v", res.Failures())
	}
	out := buf.String()
	if strings.Contains(out, FailMark) {
		t.Fatalf("output contains a failure mark:\n%s", out)
	}
	if !strings.Contains(out, "absent (will be created on first use)") {
		t.Fatalf("missing registry-absent line:\n%s", out)
	}
}

func TestRunCorruptedRegistryIsWarningNotFailure(t *testing.T) {
	dir := t.TempDir()
	regPath := filepath.Join(dir, "registry.json")
	if err := os.WriteFile(regPath, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Config{
		RegistryPath: regPath,
		ModelsDir:    filepath.Join(dir, "models"),
		Endpoint:     "https://huggingface.co/%s/resolve/main/%s",
	}

	var buf bytes.Buffer
	res := Run(cfg, &buf)

	if res.Failed() {
		t.Fatalf("corrupted registry must not fail the doctor: %v", res.Failures())
	}
	if !strings.Contains(buf.String(), "will be reset on next use") {
		t.Fatalf("missing reset warning:\n%s", buf.String())
	}
}

func TestRunMissingHubCacheFails(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		RegistryPath: filepath.Join(dir, "registry.json"),
		ModelsDir:    filepath.Join(dir, "models"),
		CacheDir:     filepath.Join(dir, "no-such-cache"),
		Endpoint:     "https://huggingface.co/%s/resolve/main/%s",
	}

	var buf bytes.Buffer
	res := Run(cfg, &buf)

	if !res.Failed() {
		t.Fatal("expected a failure for the missing cache dir")
	}
	if got := len(res.Failures()); got != 1 {
		t.Fatalf("expected exactly one failure, got %d: %v", got, res.Failures())
	}
}

func TestRunBadEndpointFails(t *testing.T) {
	for _, endpoint := range []string{
		"",
		"ftp://mirror/%s/%s",
		"https://mirror.example.com/%s",
		"https://mirror.example.com/%s/%s/%s",
	} {
		dir := t.TempDir()
		cfg := Config{
			RegistryPath: filepath.Join(dir, "registry.json"),
			ModelsDir:    filepath.Join(dir, "models"),
			Endpoint:     endpoint,
		}
		res := Run(cfg, &bytes.Buffer{})
		if !res.Failed() {
			t.Errorf("endpoint %q: expected failure", endpoint)
		}
	}
}

func TestCheckWritable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "models")
	if err := checkWritable(dir); err != nil {
		t.Fatalf("checkWritable should create missing dirs: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("dir was not created: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("probe file left behind: %v", entries)
	}
}
