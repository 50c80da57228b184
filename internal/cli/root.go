// Package cli implements statsctl, the maintenance command line of the stats
// indexer. Commands bootstrap the same services as the server without
// starting its background workers.
//
// Import Path: statsidx.io/statsidx/internal/cli
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"statsidx.io/statsidx/internal/app"
	"statsidx.io/statsidx/internal/config"
	"statsidx.io/statsidx/internal/indexer"
	"statsidx.io/statsidx/internal/pkg/logger"
)

// Options are the persistent flags shared by every command.
type Options struct {
	ConfigPath string
	Index      string
	Output     string
	LogLevel   string
}

func (o *Options) validate() error {
	switch o.Output {
	case formatTable, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("invalid --output %q (expected: table|json|yaml)", o.Output)
}

// session lazily loads config and bootstraps the application for one command.
type session struct {
	opts *Options
	cfg  *config.Config
}

func (rt *session) config() (*config.Config, error) {
	if rt.cfg != nil {
		return rt.cfg, nil
	}
	cfg, err := config.LoadFile(rt.opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(rt.opts.LogLevel, "console"); err != nil {
		return nil, err
	}
	rt.cfg = cfg
	return cfg, nil
}

// with runs fn against a bootstrapped application and shuts it down after.
func (rt *session) with(cmd *cobra.Command, fn func(*app.Application) error) error {
	cfg, err := rt.config()
	if err != nil {
		return err
	}
	a, err := app.Bootstrap(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Shutdown()
	return fn(a)
}

// index resolves --index, defaulting to the first configured index.
func (rt *session) index(a *app.Application) (*indexer.Index, error) {
	name := rt.opts.Index
	if name == "" {
		names := a.Admin.Indexes()
		if len(names) == 0 {
			return nil, fmt.Errorf("no indexes configured")
		}
		name = names[0]
	}
	return a.Indexer.Engine.Index(name)
}

// NewRootCommand builds the statsctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &Options{Output: formatTable, LogLevel: "warn"}
	rt := &session{opts: opts}

	cmd := &cobra.Command{
		Use:           "statsctl",
		Short:         "Maintain and inspect materialized stats indexes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return opts.validate()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default: ./config.yaml, ./config/config.yaml)")
	cmd.PersistentFlags().StringVarP(&opts.Index, "index", "i", "", "logical index name (default: first configured index)")
	cmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", opts.Output, "output format: table|json|yaml")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "log level written to stderr")

	cmd.AddCommand(
		newStatusCommand(rt),
		newSetModeCommand(rt),
		newReindexCommand(rt),
		newDrainCommand(rt),
		newClearDataCommand(rt),
		newShowStatsCommand(rt),
		newTopCommand(rt),
		newTopConvertersCommand(rt),
		newGetCommand(rt),
		newIncrementCommand(rt),
		newDemoCommand(rt),
		newGenerateDataCommand(rt),
		newAdminTokenCommand(rt),
	)
	return cmd
}
