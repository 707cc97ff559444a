package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/go-tts-registry/internal/download"
	"github.com/spf13/cobra"
)

const downloadPollInterval = 300 * time.Millisecond

func newModelDownloadCmd() *cobra.Command {
	var (
		repo      string
		modelFile string
		vocabFile string
		modelURL  string
		vocabURL  string
		name      string
		language  string
	)

	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Download a model from a repository or direct URLs",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			id := args[0]

			var src download.Source
			switch {
			case repo != "":
				src = download.RepoSource{
					RepoID:    repo,
					ModelFile: modelFile,
					VocabFile: vocabFile,
					Endpoint:  cfg.Download.Endpoint,
				}
			case modelURL != "":
				src = download.URLSource{ModelURL: modelURL, VocabURL: vocabURL}
			default:
				return errors.New("either --repo or --model-url is required")
			}

			c := buildComponents(cfg)
			if err := c.store.Initialize(); err != nil {
				return err
			}
			err = c.executor.Start(download.Request{
				ModelID:  id,
				Name:     name,
				Source:   src,
				Language: language,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return waitForDownload(ctx, c, id)
		},
	}

	cmd.Flags().StringVar(&repo, "repo", "", "Content repository id (e.g. SWivid/F5-TTS)")
	cmd.Flags().StringVar(&modelFile, "model-file", "", "Weights file path inside the repository")
	cmd.Flags().StringVar(&vocabFile, "vocab-file", "", "Vocab file path inside the repository")
	cmd.Flags().StringVar(&modelURL, "model-url", "", "Direct URL to the weights file")
	cmd.Flags().StringVar(&vocabURL, "vocab-url", "", "Direct URL to the vocab file")
	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the id)")
	cmd.Flags().StringVar(&language, "language", "", "Primary language code (inferred when empty)")

	return cmd
}

// waitForDownload polls the tracker until the download finishes, printing
// progress lines. An interrupt requests cancellation and waits for the
// worker to acknowledge it.
func waitForDownload(ctx context.Context, c *components, id string) error {
	ticker := time.NewTicker(downloadPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if c.coord.RequestCancel(id) {
				fmt.Fprintf(os.Stderr, "cancelling download of %s\n", id)
			}
			return fmt.Errorf("download of %s cancelled", id)
		case <-ticker.C:
		}

		status, ok := c.tracker.Get(id)
		if !ok {
			if c.models.Store().Read().HasModel(id) {
				fmt.Fprintf(os.Stdout, "downloaded %s\n", id)
				return nil
			}
			return fmt.Errorf("download of %s ended without installing the model", id)
		}

		switch {
		case status.Error != nil:
			return fmt.Errorf("download of %s failed: %s", id, *status.Error)
		case status.Progress != nil && status.TotalSize != nil && status.DownloadedSize != nil:
			fmt.Fprintf(os.Stdout, "  progress: %.1f%% (%d/%d bytes)\n",
				*status.Progress, *status.DownloadedSize, *status.TotalSize)
		case status.Progress != nil:
			fmt.Fprintf(os.Stdout, "  progress: %.1f%%\n", *status.Progress)
		case status.DownloadedSize != nil:
			fmt.Fprintf(os.Stdout, "  progress: %d bytes\n", *status.DownloadedSize)
		}
	}
}
