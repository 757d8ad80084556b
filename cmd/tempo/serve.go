package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	tempo "github.com/overturetool/tempo-plotting-tool"
	"github.com/overturetool/tempo-plotting-tool/internal/config"
)

// modelFlags are shared by every command that loads a model.
type modelFlags struct {
	configPath string
	source     string
	root       string
	guard      string
	maxDepth   int
}

func (f *modelFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", config.ConfigFileName, "Path to the configuration file")
	cmd.Flags().StringVarP(&f.source, "model", "m", "", "Model source path or s3://bucket/key (default from config)")
	cmd.Flags().StringVarP(&f.root, "root", "r", "", "Root class to select at startup")
	cmd.Flags().StringVar(&f.guard, "cycle-guard", "", "Cycle guard: path or self")
	cmd.Flags().IntVar(&f.maxDepth, "max-depth", 0, "Maximum structure depth")
}

// load reads the config file and applies command-line overrides.
func (f *modelFlags) load() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.source != "" {
		cfg.Model.Source = f.source
	}
	if f.root != "" {
		cfg.Model.Root = f.root
	}
	if f.guard != "" {
		cfg.Model.CycleGuard = f.guard
	}
	if f.maxDepth > 0 {
		cfg.Model.MaxDepth = f.maxDepth
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	var (
		mf          modelFlags
		address     string
		logLevel    string
		logFormat   string
		idleTimeout time.Duration
		origins     []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the subscription server",
		Long: `Load the model and serve the subscription endpoint.

Examples:
  tempo serve --model plant.go
  tempo serve --model s3://models/plant.go --root Plant
  tempo serve --config deploy/tempo.json --address :9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := mf.load()
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Server.Address = address
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if logFormat != "" {
				cfg.Log.Format = logFormat
			}
			if cmd.Flags().Changed("idle-timeout") {
				cfg.Server.IdleTimeout = idleTimeout.String()
			}
			if len(origins) > 0 {
				cfg.Server.AllowedOrigins = origins
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := tempo.New(ctx, cfg)
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Serving %s on %s%s", cfg.Model.Source, cfg.Server.Address, cfg.Server.Endpoint)
			return app.Run(ctx)
		},
	}

	mf.register(cmd)
	cmd.Flags().StringVarP(&address, "address", "a", "", "Listen address (default from config)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "Log format: text or json")
	cmd.Flags().DurationVar(&idleTimeout, "idle-timeout", 0, "Close connections idle this long (0 = never)")
	cmd.Flags().StringSliceVar(&origins, "allow-origin", nil, "Accepted Origin headers (* for any)")

	return cmd
}
