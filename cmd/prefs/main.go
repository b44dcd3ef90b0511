package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kalambet/prefs/internal/config"
	"github.com/kalambet/prefs/internal/prefs"
	"github.com/kalambet/prefs/internal/storage"
	"github.com/kalambet/prefs/internal/storage/dynamo"
	"github.com/kalambet/prefs/internal/storage/memory"
)

var version = "dev"

var noColor bool

// app is the state shared by every command of one invocation.
type app struct {
	cfg    config.Config
	holder *prefs.Holder
	logger *slog.Logger

	appID      string
	loadConfig func() (config.Config, error)
}

func main() {
	a := &app{loadConfig: config.Load}
	root := newRootCmd(a)
	err := root.Execute()
	if a.holder != nil {
		if cerr := a.holder.Close(); cerr != nil {
			slog.Warn("closing storage", "error", cerr)
		}
	}
	if err != nil {
		printError(os.Stderr, "%v", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "prefs",
		Short:         "Typed key-value preferences with JSON object storage",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	root.PersistentFlags().StringVar(&a.appID, "app", "", "application id (overrides app.id)")

	root.AddCommand(
		newGetCmd(a),
		newSetCmd(a),
		newRmCmd(a),
		newClearCmd(a),
		newListCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newObjectCmd(a),
		newNamespacesCmd(a),
		newConfigCmd(a),
		newTokenCmd(a),
		newServeCmd(a),
		newStopCmd(a),
		newStatusCmd(a),
	)
	return root
}

// setup loads configuration and installs the logger. Storage is opened
// lazily by the commands that need it.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if a.appID != "" {
		cfg.App.ID = a.appID
	}
	// config show and config set also run on an invalid configuration.
	if !inConfigTree(cmd) {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w (fix with `prefs config set`)", err)
		}
	}
	a.cfg = cfg

	level, _ := cfg.Log.SlogLevel()
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)

	a.holder = prefs.NewHolder(prefs.WithLogger(a.logger))
	return nil
}

func inConfigTree(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Name() == "config" && c.HasParent() && !c.Parent().HasParent() {
			return true
		}
	}
	return false
}

// instance returns the application's preferences, opening storage on first use.
func (a *app) instance(ctx context.Context) (*prefs.Preferences, error) {
	return a.holder.Init(ctx, a.cfg.App.ID, func(ctx context.Context) (prefs.Backend, error) {
		return openBackend(ctx, a.cfg)
	})
}

func openBackend(ctx context.Context, cfg config.Config) (prefs.Backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		s, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		return s, nil
	case config.BackendDynamoDB:
		s, err := dynamo.Open(ctx, dynamo.Config{
			Region:   cfg.Dynamo.Region,
			Endpoint: cfg.Dynamo.Endpoint,
			Table:    cfg.Dynamo.Table,
		})
		if err != nil {
			return nil, fmt.Errorf("opening dynamodb: %w", err)
		}
		return s, nil
	case config.BackendMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}
