package qgpt

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/kart-io/logger"
	"github.com/spf13/cobra"

	"github.com/kart-io/qgpt/internal/qgpt/handler"
	"github.com/kart-io/qgpt/internal/qgpt/metrics"
	"github.com/kart-io/qgpt/internal/qgpt/router"
)

func newServeCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve search and evaluation over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := newComponents(ctx, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			m := metrics.New()
			h := handler.New(c.catalog, c.embedder, opts.QGPT.TopK, m)
			return serve(ctx, opts, router.NewEngine(opts.HTTP.Mode, h, m))
		},
	}
}

// serve 阻塞直到 ctx 取消，随后在 ShutdownTimeout 内优雅关闭。
func serve(ctx context.Context, opts *Options, h http.Handler) error {
	srv := &http.Server{
		Addr:         opts.HTTP.Addr,
		Handler:      h,
		ReadTimeout:  opts.HTTP.ReadTimeout,
		WriteTimeout: opts.HTTP.WriteTimeout,
		IdleTimeout:  opts.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", srv.Addr, "store", opts.QGPT.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
