package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/MeKo-Tech/mountainatlas/internal/atlas"
	"github.com/MeKo-Tech/mountainatlas/internal/datasource"
	"github.com/MeKo-Tech/mountainatlas/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the atlas API, event stream and demo UI",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Listen address (host:port)")
	serveCmd.Flags().String("demo-dir", filepath.Join("docs", "demo"), "Directory for demo static files (empty disables)")
	serveCmd.Flags().Duration("request-timeout", 30*time.Second, "Timeout per level or zoom change")
	serveCmd.Flags().Bool("watch", false, "Reload when local source files change")
	serveCmd.Flags().Duration("watch-debounce", 500*time.Millisecond, "Quiet period before a file change triggers a reload")

	mustBind := func(key string, name string) {
		if err := viper.BindPFlag(key, serveCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}

	mustBind("serve.addr", "addr")
	mustBind("serve.demo_dir", "demo-dir")
	mustBind("serve.request_timeout", "request-timeout")
	mustBind("serve.watch", "watch")
	mustBind("serve.watch_debounce", "watch-debounce")
}

func runServe(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	addr := viper.GetString("serve.addr")
	demoDir := viper.GetString("serve.demo_dir")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, cache, err := newStore(ctx)
	if err != nil {
		return err
	}
	if cache != nil {
		defer func() { _ = cache.Close() }()
	}

	cfg, err := atlasConfig()
	if err != nil {
		return err
	}

	board := server.NewBoard(logger)
	a := atlas.New(store, board, cfg)
	srv := server.New(a, board, server.Config{
		Logger:         logger,
		DemoDir:        demoDir,
		RequestTimeout: viper.GetDuration("serve.request_timeout"),
	})

	// The API answers 503 until the first load succeeds.
	go func() {
		if _, err := a.Load(ctx); err != nil {
			logger.Error("Initial load failed", "error", err)
		}
	}()

	if viper.GetBool("serve.watch") {
		if err := startWatcher(ctx, a); err != nil {
			return err
		}
	}

	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("atlas server listening",
			"addr", addr,
			"demo_dir", demoDir,
			"areas_url", store.Config().AreasURL,
			"peaks_url", store.Config().PeaksURL,
			"default_level", cfg.DefaultLevel)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	return a.Close(shutdownCtx)
}

// startWatcher reloads the atlas whenever a local source file changes.
func startWatcher(ctx context.Context, a *atlas.Atlas) error {
	cfg := a.Store().Config()
	w, err := datasource.NewWatcher(
		[]string{cfg.AreasURL, cfg.PeaksURL},
		viper.GetDuration("serve.watch_debounce"),
		func() {
			if _, err := a.Reload(ctx); err != nil {
				logger.Warn("Reload after file change failed", "error", err)
			}
		},
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to watch source files: %w", err)
	}
	if w == nil {
		logger.Warn("--watch ignored: no local source files")
		return nil
	}

	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("File watcher stopped", "error", err)
		}
	}()
	return nil
}
