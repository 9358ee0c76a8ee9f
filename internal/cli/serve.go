package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/fetchq/internal/config"
	"github.com/me/fetchq/internal/origin"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the demo origin server",
		Long:  "Serve runs the deterministic demo origin that bench drives. It stays up until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ocfg := config.DefaultOriginConfig()
			if cmd.Flags().Changed("addr") {
				ocfg.Addr = addr
			}
			ocfg.LogLevel = cfg.LogLevel
			ocfg.LogFormat = cfg.LogFormat

			srv := origin.New(ocfg, logger)
			httpServer := &http.Server{
				Addr:    ocfg.Addr,
				Handler: srv.Handler(),
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("origin listening", "addr", ocfg.Addr)
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("origin server: %w", err)
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			logger.Info("origin stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")

	return cmd
}
