package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kant-ai/bandsaw/internal/logging"
	"github.com/spf13/cobra"
)

// NewCommand returns the command that continues a session. Without --input
// it prints its help.
func NewCommand() *cobra.Command {
	var opts Options
	var verbose bool
	cmd := &cobra.Command{
		Use:           "runner",
		Short:         "Continue a bandsaw session from a snapshot",
		Long:          `Reads a session snapshot, proceeds the session and writes the resulting snapshot.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Input == "" {
				return cmd.Help()
			}
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			opts.Logger = logging.New(level)
			return Continue(cmd.Context(), opts)
		},
	}
	AddFlags(cmd, &opts)
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output")
	return cmd
}

// AddFlags registers --input, --output and --run-id on cmd.
func AddFlags(cmd *cobra.Command, opts *Options) {
	cmd.Flags().StringVar(&opts.Input, "input", "", "Path of the session snapshot to continue")
	cmd.Flags().StringVar(&opts.Output, "output", "", "Path where the resulting snapshot is written")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "Run id of the calling process")
	cmd.MarkFlagsRequiredTogether("input", "output")
}

// Requested reports whether args ask for a continuation.
func Requested(args []string) bool {
	for _, arg := range args {
		if arg == "--input" || strings.HasPrefix(arg, "--input=") {
			return true
		}
	}
	return false
}

// Main runs the runner command with args and returns the exit code.
// SIGINT and SIGTERM cancel the session's context.
func Main(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if args == nil {
		args = []string{}
	}
	cmd := NewCommand()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
