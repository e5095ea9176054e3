package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/freightsync/internal/api"
)

func newServeCmd(configFile *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the health monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			if cfg.Monitor.Enabled {
				if err := a.monitor.Start(ctx); err != nil {
					return err
				}
				defer a.monitor.Stop()
			}

			a.log.Info("starting freightsync",
				zap.String("version", version),
				zap.Int("carriers", len(a.adapters)),
				zap.String("store", cfg.Store.Driver))
			return api.NewServer(a.engine, a.log).ListenAndServe(ctx, cfg.HTTP)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides http.addr")
	return cmd
}

// commandContext gives one-shot commands a cancellable context.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}
