package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/go-tts-registry/internal/engine"
	"github.com/example/go-tts-registry/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var inferenceCLI string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the model registry HTTP server",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			c := buildComponents(cfg)
			if err := c.store.Initialize(); err != nil {
				return err
			}

			var loader engine.Loader = engine.NopLoader{}
			if inferenceCLI != "" {
				loader = &engine.CLILoader{BinPath: inferenceCLI}
			}

			h := server.NewHandler(c.models, c.executor, c.tracker, c.coord,
				server.WithLoader(loader),
				server.WithEndpoint(cfg.Download.Endpoint),
			)
			srv := server.New(cfg.Server.ListenAddr, h).
				WithShutdownTimeout(time.Duration(cfg.Server.ShutdownTimeout) * time.Second)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&inferenceCLI, "inference-cli", "", "Inference CLI executable to load active models with")

	return cmd
}
