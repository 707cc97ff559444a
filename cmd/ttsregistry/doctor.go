package main

import (
	"fmt"
	"os"

	"github.com/example/go-tts-registry/internal/doctor"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run environment preflight checks",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			res := doctor.Run(doctor.Config{
				RegistryPath: cfg.Paths.RegistryPath,
				ModelsDir:    cfg.Paths.ModelsDir,
				CacheDir:     cfg.Hub.CacheDir,
				Endpoint:     cfg.Download.Endpoint,
			}, os.Stdout)

			if res.Failed() {
				return fmt.Errorf("%d check(s) failed", len(res.Failures()))
			}
			return nil
		},
	}
}
