// Command bridgectl talks to analysis engines through the worker bridge,
// either over a server's WebSocket endpoint or in-process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type rootOptions struct {
	logLevel string
	target   targetOptions
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "bridgectl",
		Short:         "Call analysis engines through the worker bridge",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.target.url, "url", "ws://localhost:8080/v1/worker", "Worker endpoint of a running server")
	flags.StringVar(&opts.target.engine, "engine", "", "Engine bundle name (server default when empty)")
	flags.StringVar(&opts.target.bundle, "bundle", "", "Run the engine bundle in this directory in-process instead of connecting to a server")
	flags.IntVar(&opts.target.threads, "threads", 0, "Engine thread pool size for in-process runs")
	flags.DurationVar(&opts.target.readyTimeout, "ready-timeout", 30*time.Second, "How long to wait for the engine to become ready")

	cmd.AddCommand(
		newCallCommand(opts),
		newOpsCommand(opts),
		newInstallCommand(),
		newConsoleCommand(opts),
	)
	return cmd
}

// logger writes to stderr so command output on stdout stays machine-readable.
func (o *rootOptions) logger() (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(o.logLevel)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}
