package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kant-ai/bandsaw/internal/config"
	"github.com/kant-ai/bandsaw/internal/logging"
	"github.com/kant-ai/bandsaw/pkg/agent"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agent for the HTTP transport",
		Long: `Serves a root directory over HTTP so that remote advices using the http
transport can upload bundles and snapshots, run them and download results.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			level, err := logging.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			logger := logging.New(level)

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			a, err := agent.New(cfg.Agent.Root, agent.WithLogger(logger), agent.WithRegistry(reg))
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              cfg.Agent.Addr,
				Handler:           a.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			serverErrors := make(chan error, 1)
			go func() {
				logger.Info("agent starting", "addr", srv.Addr, "root", a.Root())
				serverErrors <- srv.ListenAndServe()
			}()

			select {
			case err := <-serverErrors:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			case <-cmd.Context().Done():
				logger.Info("shutting down")
				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(ctx); err != nil {
					logger.Warn("graceful shutdown did not complete", "timeout", shutdownTimeout, "error", err)
					return srv.Close()
				}
				logger.Info("agent stopped")
				return nil
			}
		},
	}
	cmd.Flags().String("addr", ":8750", "address to listen on")
	cmd.Flags().String("root", ".bandsaw/agent", "directory served by the agent")
	bindFlag(v, "agent.addr", cmd.Flags(), "addr")
	bindFlag(v, "agent.root", cmd.Flags(), "root")
	return cmd
}
