// Package cli implements the dapbridge command-line interface.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dshills/dapbridge/internal/config"
	"github.com/dshills/dapbridge/internal/observability"
)

// Exit codes.
const (
	exitSuccess = 0
	exitError   = 1
)

// BuildInfo identifies the binary. main sets it from ldflags.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// app carries state shared by the subcommands of one invocation.
type app struct {
	build      BuildInfo
	v          *viper.Viper
	configPath string

	cfg    config.Config
	logger *slog.Logger
}

// NewRootCmd creates the top-level "dapbridge" command with global flags
// and all subcommands registered.
func NewRootCmd(build BuildInfo) *cobra.Command {
	a := &app{build: build, v: config.New()}

	root := &cobra.Command{
		Use:   "dapbridge",
		Short: "A Debug Adapter Protocol server with stable handles",
		Long: "dapbridge serves threads, stack frames, scopes and variables of a\n" +
			"debuggee to a DAP client. Handles stay stable across stops for objects\n" +
			"that keep their position.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: ./dapbridge.yaml)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	_ = a.v.BindPFlag(config.KeyLogLevel, root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newReplayCmd(a))
	root.AddCommand(newVersionCmd(a))

	return root
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context, build BuildInfo) int {
	root := NewRootCmd(build)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}
	return exitSuccess
}

// load reads the configuration and builds the logger. Logs always go to
// stderr; stdout may carry the DAP stream.
func (a *app) load(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(observability.LoggerConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}
