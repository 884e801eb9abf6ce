package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/shashin/internal/indexer"
	"github.com/hyperjump/shashin/internal/library"
	"github.com/hyperjump/shashin/internal/server"
	"github.com/hyperjump/shashin/internal/storage"
	"github.com/hyperjump/shashin/internal/watcher"
)

var serveSkipIndex bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP API. Unless --no-index is given an indexing run starts right away,
and with library.watch enabled new or removed photos are picked up automatically.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveSkipIndex, "no-index", false, "do not start an indexing run on startup")
	rootCmd.AddCommand(serveCmd)
}

// libraryDirs keeps the library roots and the watcher in step for the
// directory endpoints.
type libraryDirs struct {
	lib     *library.DirLibrary
	watch   *watcher.Watcher // nil when watching is disabled
	reindex func()
}

func (d *libraryDirs) Directories() []string {
	return d.lib.Roots()
}

func (d *libraryDirs) AddDirectory(path string, syncExisting bool) error {
	if err := d.lib.AddRoot(path); err != nil {
		return err
	}
	if d.watch != nil {
		if err := d.watch.AddDirectory(path, false); err != nil {
			d.lib.RemoveRoot(path)
			return err
		}
	}
	if syncExisting && d.reindex != nil {
		d.reindex()
	}
	return nil
}

func (d *libraryDirs) RemoveDirectory(path string) error {
	d.lib.RemoveRoot(path)
	if d.watch != nil {
		return d.watch.RemoveDirectory(path)
	}
	return nil
}

// forgetPath drops the embedding of a photo that left the library. Nothing is deleted
// while another copy of the same photo remains.
func forgetPath(ctx context.Context, lib *library.DirLibrary, idx *indexer.Indexer, logger *zap.Logger, path string) {
	id, ok := lib.Forget(path)
	if !ok {
		return
	}
	if err := idx.DeleteItem(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Warn("failed to delete embedding for removed photo",
			zap.String("path", path), zap.String("item_id", id), zap.Error(err))
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger := globalConfig, globalLogger
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dirs := &libraryDirs{lib: components.Library}
	srv := server.NewServer(
		components.Engine,
		components.Indexer,
		components.Store,
		&cfg.Server,
		logger,
		dirs,
		globalConfigPath,
		cfg,
	)
	dirs.reindex = srv.RequestIndex

	if cfg.Library.Watch {
		w := watcher.NewWatcher(
			components.Library.Roots(),
			cfg.Library.Extensions,
			cfg.Library.RecursiveOrDefault(),
			srv.RequestIndex,
			func(path string) { forgetPath(ctx, components.Library, components.Indexer, logger, path) },
			watcher.WithLogger(logger),
		)
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		defer w.Stop()
		dirs.watch = w
	}

	if !serveSkipIndex {
		srv.RequestIndex()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})
	err = g.Wait()
	// Stop cancelled any background run; let it settle before the store closes.
	waitIdle(components.Indexer, 5*time.Second)
	return err
}

func waitIdle(idx *indexer.Indexer, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for idx.Running() && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
}
