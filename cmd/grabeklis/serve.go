package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pazars/grabeklis/internal/delivery/http/handler"
	"github.com/pazars/grabeklis/internal/delivery/http/router"
	"github.com/pazars/grabeklis/internal/usecase"
	"github.com/pazars/grabeklis/pkg/metrics"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the archive API and Prometheus metrics",
		Long: `Serve the archive over HTTP:

  GET  /api/health   liveness
  GET  /api/summary  archive summary.json
  GET  /api/stats    archive statistics by category
  GET  /api/status   ?url= archive status of one article
  POST /api/crawl    start a crawl in the background
  GET  /api/crawl    state of the running or last crawl
  GET  /metrics      Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m := metrics.New().WithProcessCollectors()
			runs := usecase.NewRunManager(a.crawlerFactory(m), a.logger)
			return a.serve(ctx, m, runs)
		},
	}
	cmd.Flags().String("port", "", "HTTP port (SERVER_PORT)")
	return cmd
}

// serve runs the API until ctx is done, then stops the server and any crawl
// started through it.
func (a *app) serve(ctx context.Context, m *metrics.Metrics, runs usecase.RunController) error {
	mgr, _, err := a.archiveManager(ctx, false)
	if err != nil {
		return err
	}

	apiHandler := handler.NewHandler(mgr, runs, a.logger)
	server := &http.Server{
		Addr:         ":" + a.cfg.ServerPort,
		Handler:      router.New(apiHandler, m, a.logger),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting server", zap.String("port", a.cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := runs.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	a.logger.Info("Server exiting")
	return errors.Join(errs...)
}
