package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/example/go-tts-registry/internal/registry"
	"github.com/spf13/cobra"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Model registry commands",
	}

	cmd.AddCommand(newModelListCmd())
	cmd.AddCommand(newModelAddCmd())
	cmd.AddCommand(newModelDeleteCmd())
	cmd.AddCommand(newModelSetActiveCmd())
	cmd.AddCommand(newModelUpdateCmd())
	cmd.AddCommand(newModelDownloadCmd())
	return cmd
}

func newModelListCmd() *cobra.Command {
	var includeCache bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered models and in-flight downloads",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			c := buildComponents(cfg)
			snap := c.models.ListModels(includeCache)

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSOURCE\tLANGUAGES\tACTIVE")
			for _, m := range snap.Models {
				active := ""
				if snap.ActiveModel != nil && *snap.ActiveModel == m.ID {
					active = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					m.ID, m.Name, m.Source, strings.Join(m.Languages, ","), active)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			for id, st := range snap.Downloads {
				line := fmt.Sprintf("download %s: %s", id, st.Status)
				if st.Progress != nil {
					line += fmt.Sprintf(" %.1f%%", *st.Progress)
				}
				if st.Error != nil {
					line += " (" + *st.Error + ")"
				}
				fmt.Fprintln(os.Stdout, line)
			}
			for _, cm := range snap.CacheModels {
				fmt.Fprintf(os.Stdout, "cached %s (%d bytes)\n", cm.Repo, cm.SizeBytes)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&includeCache, "cache", false, "Include externally cached models")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw registry snapshot as JSON")

	return cmd
}

func newModelAddCmd() *cobra.Command {
	var entry registry.ModelEntry
	var languages []string

	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Register an already-installed local model",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			entry.ID = args[0]
			entry.Source = registry.SourceLocal
			entry.Languages = languages

			c := buildComponents(cfg)
			if err := c.models.AddModel(entry); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "added %s\n", entry.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&entry.Name, "name", "", "Display name (defaults to the id)")
	cmd.Flags().StringVar(&entry.ModelPath, "model-path", "", "Path to the model weights file")
	cmd.Flags().StringVar(&entry.VocabPath, "vocab-path", "", "Path to the vocab file")
	cmd.Flags().StringVar(&entry.Language, "language", "", "Primary language code")
	cmd.Flags().StringSliceVar(&languages, "languages", nil, "Supported language codes")
	_ = cmd.MarkFlagRequired("model-path")

	return cmd
}

func newModelDeleteCmd() *cobra.Command {
	var purgeCache bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a model and its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			c := buildComponents(cfg)
			warnings, err := c.models.DeleteModel(args[0], purgeCache)
			if err != nil {
				return err
			}
			for _, w := range warnings {
				fmt.Fprintf(os.Stderr, "warning: %s\n", w)
			}
			fmt.Fprintf(os.Stdout, "deleted %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&purgeCache, "purge-cache", false, "Also purge the external hub cache entry")

	return cmd
}

func newModelSetActiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-active <id>",
		Short: "Select the model that serves inference requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			c := buildComponents(cfg)
			if err := c.models.SetActiveModel(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "active model: %s\n", args[0])
			return nil
		},
	}
}

func newModelUpdateCmd() *cobra.Command {
	var name, language string
	var languages []string

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update mutable fields of a model entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			var upd registry.ModelUpdate
			if cmd.Flags().Changed("name") {
				upd.Name = &name
			}
			if cmd.Flags().Changed("language") {
				upd.Language = &language
			}
			if cmd.Flags().Changed("languages") {
				upd.Languages = languages
			}

			c := buildComponents(cfg)
			if err := c.models.UpdateModel(args[0], upd); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "updated %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "New display name")
	cmd.Flags().StringVar(&language, "language", "", "New primary language code")
	cmd.Flags().StringSliceVar(&languages, "languages", nil, "New supported language codes")

	return cmd
}
