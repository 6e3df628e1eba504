package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/hera/internal/config"
	"github.com/mesh-intelligence/hera/internal/httpapi"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the backend over HTTP for remote orchestrators",
		Long: "Expose the configured sqlite or postgres backend on /v1 so other hera\n" +
			"processes can use it with backend.driver: http. Metrics are served on /metrics.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if a.cfg.Backend.Driver == config.DriverHTTP {
				return fmt.Errorf("serve needs a local backend: %w", config.ErrUnknownDriver)
			}
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			return serve(a.context(cmd), a, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr)")
	return cmd
}

func serve(ctx context.Context, a *app, addr string) error {
	router := httpapi.NewRouter(a.backend, httpapi.WithLogger(a.logger), httpapi.WithMetrics(a.metrics))
	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", zap.String("addr", addr), zap.String("backend", a.cfg.Backend.Driver))
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.logger.Info("shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
