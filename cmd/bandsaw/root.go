package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/kant-ai/bandsaw/internal/config"
	"github.com/kant-ai/bandsaw/internal/logging"
	"github.com/kant-ai/bandsaw/pkg/runner"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// newRootCmd builds the command tree. Settings are read into v from the
// --config file, BANDSAW_* variables and flags.
func newRootCmd(v *viper.Viper, out io.Writer) *cobra.Command {
	var cfgFile string
	var opts runner.Options

	rootCmd := &cobra.Command{
		Use:   "bandsaw",
		Short: "Run tasks wrapped by advice chains, locally or on remotes",
		Long: `bandsaw continues sessions from snapshots (the bundle side of remote
execution), serves an agent for the HTTP transport and inspects snapshots.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" {
				return nil
			}
			return config.ReadFile(v, cfgFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Input == "" {
				return cmd.Help()
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			level, err := logging.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			opts.Logger = logging.New(level)
			return runner.Continue(cmd.Context(), opts)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: ./bandsaw.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug | info | warn | error")
	bindFlag(v, "log_level", rootCmd.PersistentFlags(), "log-level")
	runner.AddFlags(rootCmd, &opts)

	rootCmd.AddCommand(newInitCmd(&cfgFile))
	rootCmd.AddCommand(newServeCmd(v))
	rootCmd.AddCommand(newInspectCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func bindFlag(v *viper.Viper, key string, fs *pflag.FlagSet, flagName string) {
	if err := v.BindPFlag(key, fs.Lookup(flagName)); err != nil {
		panic(fmt.Sprintf("bindFlag %q → %q: %v", flagName, key, err))
	}
}

// Execute runs the CLI with args and returns the exit code.
func Execute(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if args == nil {
		args = []string{}
	}
	cmd := newRootCmd(config.New(), os.Stdout)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
