// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/diary"
	"github.com/starford/ansuz/internal/importer"
	"github.com/starford/ansuz/internal/locator"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/media"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/player"
	"github.com/starford/ansuz/internal/recorder"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/store"
	"github.com/starford/ansuz/internal/timeline"
	"github.com/starford/ansuz/internal/tui"
)

// services holds what every mode shares.
type services struct {
	cfg    *Config
	logger *slog.Logger
	files  *storage.FS
	db     *store.DB
	locs   *locator.Resolver
	prober *media.Prober
	broker *sse.Broker
	svc    *diary.Service
	loc    *time.Location
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{mode: ModeServe, out: os.Stdout}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// The TUI owns the terminal and MCP owns stdout, so logs go elsewhere.
	logOut, closeLog, err := logWriter(app.mode, cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("mode", string(app.mode)),
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("audio_dir", cfg.Audio.Dir),
		slog.String("import_dir", cfg.Import.Dir),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure data directories exist.
	if err := os.MkdirAll(cfg.Audio.Dir, 0o755); err != nil {
		return fmt.Errorf("create audio dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
		return fmt.Errorf("create db dir: %w", err)
	}

	// Initialize storage.
	files, err := storage.NewFS(cfg.Audio.Dir)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// Initialize SQLite record store.
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	// SSE broker.
	broker := sse.NewBroker(cfg.Events.Throttle)
	defer broker.Close()

	rt := &services{
		cfg:    cfg,
		logger: logger,
		files:  files,
		db:     db,
		locs:   locator.NewResolver(files, &http.Client{Timeout: 30 * time.Second}),
		prober: media.NewProber(cfg.Audio.FFprobePath),
		broker: broker,
		loc:    cfg.App.Location(),
	}
	rt.svc = diary.NewService(db, files, rt.locs, rt.prober,
		diary.WithEvents(broker),
		diary.WithLogger(logger),
	)

	switch app.mode {
	case ModeList:
		return rt.list(ctx, app.out)
	case ModeMCP:
		logger.Info("MCP server starting on stdio")
		return mcpserver.New(rt.svc, files, rt.loc).ServeStdio()
	case ModeTUI:
		return rt.tui(ctx)
	case ModeServe, "":
		return rt.serve(ctx)
	}
	return fmt.Errorf("unknown mode %q", app.mode)
}

// logWriter picks the log destination for mode.
func logWriter(mode Mode, cfg *Config) (io.Writer, func(), error) {
	switch mode {
	case ModeMCP, ModeList:
		return os.Stderr, func() {}, nil
	case ModeTUI:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		p := filepath.Join(filepath.Dir(cfg.SQLite.Path), "ansuz.log")
		f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		return f, func() { _ = f.Close() }, nil
	}
	return os.Stdout, func() {}, nil
}

// controllers builds the recording and playback controllers. The returned
// func discards any unsaved recording and releases both.
func (rt *services) controllers(notify player.Notifier) (*recorder.Controller, *player.Controller, func()) {
	a := rt.cfg.Audio
	capture := media.NewFFmpegCapture(a.FFmpegPath, a.InputFormat, a.InputDevice, rt.logger)
	rec := recorder.New(capture, rt.files,
		recorder.WithSampleInterval(a.AmplitudeInterval),
		recorder.WithCaptureConfig(a.CaptureConfig),
		recorder.WithLogger(rt.logger),
	)

	playback := media.NewOtoPlayback(a.FFmpegPath, rt.prober, rt.logger)
	pl := player.New(playback, rt.locs,
		player.WithProgressInterval(a.ProgressInterval),
		player.WithNotifier(notify),
		player.WithLogger(rt.logger),
	)

	return rec, pl, func() {
		rec.CleanupPendingRecording()
		rec.Close()
		pl.Release()
		pl.Close()
	}
}

// watchImports runs the import watcher when an inbox is configured.
func (rt *services) watchImports(ctx context.Context) error {
	dir := rt.cfg.Import.Dir
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create import dir: %w", err)
	}
	err := importer.Watch(ctx, rt.svc, dir, rt.logger, func(rec models.AudioRecord) {
		rt.logger.Info("audio imported", slog.Int64("id", rec.ID), slog.String("file_path", rec.FilePath))
	})
	if err != nil && ctx.Err() == nil {
		rt.logger.Warn("import watcher stopped", slog.String("error", err.Error()))
	}
	return nil
}

func (rt *services) list(ctx context.Context, out io.Writer) error {
	items, err := rt.svc.Timeline(ctx, rt.loc)
	if err != nil {
		return fmt.Errorf("load timeline: %w", err)
	}
	if len(items) == 0 {
		_, err = fmt.Fprintln(out, "No recordings yet.")
		return err
	}
	_, err = io.WriteString(out, timeline.Text(items, rt.loc))
	return err
}

func (rt *services) tui(ctx context.Context) error {
	notices := tui.NewNotifier()
	rec, pl, release := rt.controllers(notices)
	defer release()

	proj := timeline.NewProjector(rt.db, rt.loc)
	defer proj.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	uiCtx, cancel := context.WithCancel(gCtx)

	g.Go(func() error {
		return proj.Run(uiCtx)
	})
	g.Go(func() error {
		return rt.watchImports(uiCtx)
	})
	g.Go(func() error {
		// Quitting the UI stops the projector and the watcher.
		defer cancel()
		return tui.Run(uiCtx, tui.Deps{
			Diary:    rt.svc,
			Recorder: rec,
			Player:   pl,
			Timeline: proj,
			Notices:  notices.C(),
			Location: rt.loc,
		})
	})

	if err := g.Wait(); err != nil {
		rt.logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func (rt *services) serve(ctx context.Context) error {
	cfg, logger := rt.cfg, rt.logger

	rec, pl, release := rt.controllers(rt.broker)
	defer release()

	apiRouter := api.NewRouter(api.Deps{
		Diary:    rt.svc,
		Recorder: rec,
		Player:   pl,
		Files:    rt.files,
		Location: rt.loc,
	}, cfg.Auth.AuthEnabled(), cfg.Auth.Token, rt.broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := rt.db.List(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api. SSE lives at /api/events.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start import watcher.
	g.Go(func() error {
		return rt.watchImports(gCtx)
	})

	// Relay controller state to SSE clients.
	g.Go(func() error {
		return rt.broker.Forward(gCtx, rec, pl)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
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

		logger.Info("Shutting down server...")

		// SSE streams only end when the broker closes.
		rt.broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Returning an error cancels gCtx so the watcher and relay stop.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")
