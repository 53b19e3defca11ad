// Package internal provides the application entry points: one-shot builds,
// the catalog HTTP server and the MCP server.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/quire/internal/api"
	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/build"
	"github.com/starford/quire/internal/catalog"
	"github.com/starford/quire/internal/layout"
	"github.com/starford/quire/internal/mcpserver"
	"github.com/starford/quire/internal/metrics"
	"github.com/starford/quire/internal/parser"
	"github.com/starford/quire/internal/permalink"
	"github.com/starford/quire/internal/render"
	"github.com/starford/quire/internal/sse"
	"github.com/starford/quire/internal/storage"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	if app.logger == nil {
		app.logger = slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
			Level: app.config.App.LogLevel,
		}))
		slog.SetDefault(app.logger)
	}

	site := app.config.Site
	app.logger.Info("Configuration loaded",
		slog.String("content_dir", site.ContentDir),
		slog.String("output_dir", site.OutputDir),
		slog.String("permalink", site.Permalink),
		slog.Bool("strict", site.Strict),
		slog.String("sqlite_path", app.config.SQLite.Path),
		slog.String("log_level", app.config.App.LogLevel.String()))

	return app, nil
}

// pipeline assembles a build pipeline over the configured content directory.
func (a *application) pipeline(opts ...build.Option) (*build.Pipeline, error) {
	site := a.config.Site
	store, err := storage.NewFS(site.ContentDir, site.Extensions...)
	if err != nil {
		return nil, fmt.Errorf("init content store: %w", err)
	}
	base := []build.Option{
		build.WithLogger(a.logger),
		build.WithParserOptions(parser.Options{Strict: site.Strict, DefaultLayout: site.DefaultLayout}),
	}
	return build.New(store,
		layout.NewRegistry(site.Layouts),
		permalink.New(site.Permalink, site.BaseURL),
		append(base, opts...)...,
	), nil
}

func (a *application) stagingRenderer() (render.Renderer, error) {
	site := a.config.Site
	if err := os.MkdirAll(site.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	// The output tree holds generated .html pages whatever the source extension.
	out, err := storage.NewFS(site.OutputDir, ".html")
	if err != nil {
		return nil, fmt.Errorf("init output store: %w", err)
	}
	return render.NewStaging(out, layout.NewRegistry(site.Layouts), site.RenderMarkdown, a.logger), nil
}

// Build runs one full pass: pages are staged into the output directory and
// the result is recorded in the catalog.
func Build(ctx context.Context, opts ...Option) (*build.Result, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}

	renderer, err := app.stagingRenderer()
	if err != nil {
		return nil, err
	}
	db, err := catalog.Open(app.config.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init catalog: %w", err)
	}
	defer db.Close()

	p, err := app.pipeline(build.WithRenderer(renderer), build.WithCatalog(db))
	if err != nil {
		return nil, err
	}
	return p.Run(ctx)
}

// Check loads, validates and resolves the collection without writing anything.
func Check(ctx context.Context, opts ...Option) (*build.Result, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	p, err := app.pipeline()
	if err != nil {
		return nil, err
	}
	return p.Run(ctx)
}

// Serve builds the site, then serves the catalog API, build events and
// metrics while rebuilding on every content change.
func Serve(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger

	renderer, err := app.stagingRenderer()
	if err != nil {
		return err
	}

	db, err := catalog.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init catalog: %w", err)
	}
	defer db.Close()

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	var promRecorder *metrics.PrometheusRecorder
	if cfg.Metrics.Enabled {
		promRecorder = metrics.NewPrometheusRecorder(nil)
		recorder = promRecorder
	}

	p, err := app.pipeline(
		build.WithRenderer(renderer),
		build.WithCatalog(db),
		build.WithMetrics(recorder),
	)
	if err != nil {
		return err
	}

	broker := sse.NewBroker(15 * time.Second)
	defer broker.Close()

	svc := api.NewService(db)
	var ready atomic.Bool
	if _, err := db.LastBuild(); err == nil {
		ready.Store(true)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("read catalog: %w", err)
	}

	rebuild := func(ctx context.Context) {
		res, err := p.Run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			svc.RecordFailure(err)
			ev := sse.BuildEvent{Error: err.Error()}
			var de *apperr.DocumentError
			if errors.As(err, &de) {
				ev.Path = de.Path
			}
			broker.PublishBuildEvent(ev)
			return
		}
		svc.RecordSuccess()
		ready.Store(true)
		broker.PublishBuildEvent(sse.BuildEvent{
			BuildID:    res.ID,
			Documents:  res.Index.Len(),
			References: len(res.References),
			Checksum:   res.Checksum,
		})
	}

	// A broken initial build still serves the previous catalog contents.
	rebuild(ctx)

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"no successful build"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if promRecorder != nil {
		r.Handle("/metrics", promRecorder.Handler())
	}

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return build.Watch(gCtx, cfg.Site.ContentDir, build.DefaultDebounce, logger, rebuild)
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Streaming clients hold connections open; close them first.
		broker.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// ServeMCP builds the collection in memory and serves MCP tools over it on
// stdio, refreshing the snapshot after every successful rebuild. Logs go to
// stderr since stdout carries the protocol.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}

	p, err := app.pipeline()
	if err != nil {
		return err
	}
	res, err := p.Run(ctx)
	if err != nil {
		return err
	}

	srv := mcpserver.New(res, app.version)

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		err := build.Watch(watchCtx, app.config.Site.ContentDir, build.DefaultDebounce, app.logger, func(ctx context.Context) {
			if res, err := p.Run(ctx); err == nil {
				srv.Update(res)
			}
		})
		if err != nil {
			app.logger.Warn("watcher stopped", slog.String("error", err.Error()))
		}
	}()

	return srv.ServeStdio()
}
