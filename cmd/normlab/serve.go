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
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/normlab/internal/app"
	"github.com/hyperjump/normlab/internal/server"
	"github.com/hyperjump/normlab/internal/watcher"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var noWatch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and watch the configured inbox directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return g.withBackend(ctx, func(ctx context.Context, b *app.Backend, s *session) error {
				return serve(ctx, b, s, !noWatch)
			})
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not watch the inbox directories")
	return cmd
}

func serve(ctx context.Context, b *app.Backend, s *session, watch bool) error {
	logger := s.logger
	logger.Info("config loaded", zap.String("config_path", s.configPath), zap.Bool("debug", s.debug))

	var (
		watchSvc   server.WatchService
		background []func()
	)
	if watch && len(s.cfg.Watch.Directories) > 0 {
		var opts []watcher.WatcherOption
		if s.debug {
			opts = append(opts, watcher.WithLogger(logger))
		}
		w := b.NewWatcher(opts...)
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
		background = append(background, w.SyncExistingFiles)
		watchSvc = w
	}

	srv := server.NewServer(b, &s.cfg.Server, logger, watchSvc)
	return runServer(ctx, logger, srv.Start, srv.Stop, background...)
}

// runServer runs start until ctx is done, then calls stop. It returns once start, stop, and
// every background task have returned, so the backend can be closed safely afterwards.
func runServer(ctx context.Context, logger *zap.Logger, start func() error, stop func(context.Context) error, background ...func()) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range background {
		task := task
		g.Go(func() error {
			task()
			return nil
		})
	}
	g.Go(func() error {
		if err := start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return stop(shutdownCtx)
	})
	return g.Wait()
}
