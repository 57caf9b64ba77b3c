// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/arieluchka/spotify-ocd-saver/internal/api/httpapi"
	"github.com/arieluchka/spotify-ocd-saver/internal/app/monitor"
	"github.com/arieluchka/spotify-ocd-saver/internal/app/policy"
	"github.com/arieluchka/spotify-ocd-saver/internal/app/queuescan"
	"github.com/arieluchka/spotify-ocd-saver/internal/app/scan"
	"github.com/arieluchka/spotify-ocd-saver/internal/infra/config"
	"github.com/arieluchka/spotify-ocd-saver/internal/infra/logger"
	"github.com/arieluchka/spotify-ocd-saver/internal/infra/lrclib"
	"github.com/arieluchka/spotify-ocd-saver/internal/infra/spotify"
	"github.com/arieluchka/spotify-ocd-saver/internal/infra/storage"
)

var (
	app        = kingpin.New("ocd-saver-server", "Trigger-word playback skipping server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	startCmd  = app.Command("start", "Start the server (default)").Default()
	autostart = startCmd.Flag("monitor", "Start a global monitoring session on boot").Default("true").Bool()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	spotifyClient, err := spotify.New(ctx, spotify.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RefreshToken: cfg.Spotify.RefreshToken,
	})
	if err != nil {
		return fmt.Errorf("failed to create Spotify client: %w", err)
	}

	lyricsClient := lrclib.New(lrclib.Config{
		BaseURL:   cfg.Lyrics.BaseURL,
		UserAgent: cfg.Lyrics.UserAgent,
		Timeout:   time.Duration(cfg.Lyrics.TimeoutSec) * time.Second,
	})

	scanService := scan.NewService(store, lyricsClient, scan.Config{
		TailMs: cfg.Scan.TailMs,
	})

	basePolicy, err := policy.FromConfig(cfg.Policy, cfg.Monitor)
	if err != nil {
		return fmt.Errorf("invalid policy config: %w", err)
	}

	intervals := monitor.Intervals{
		Base: time.Duration(cfg.Monitor.PollIntervalMs) * time.Millisecond,
		Min:  time.Duration(cfg.Monitor.MinPollIntervalMs) * time.Millisecond,
		Idle: time.Duration(cfg.Monitor.IdlePollIntervalMs) * time.Millisecond,
	}
	sessionMgr := monitor.NewManager(store, scanService, spotifyClient, basePolicy, intervals)
	defer sessionMgr.StopAll()

	// Queue scanner runs for the whole server lifetime.
	queueCtx, stopQueue := context.WithCancel(ctx)
	defer stopQueue()
	queueRunner := queuescan.NewRunner(spotifyClient, store, scanService, queuescan.Config{
		Interval:       time.Duration(cfg.Scan.QueueIntervalSec) * time.Second,
		RetryNoResults: cfg.Scan.RetryNoResults,
	})
	go func() {
		if err := queueRunner.Run(queueCtx); err != nil && ctx.Err() == nil {
			zlog.Debug().Msgf("Queue scanner exited: %v", err)
		}
	}()

	if *autostart {
		if _, err := sessionMgr.Start(nil, nil); err != nil {
			return fmt.Errorf("failed to start monitoring: %w", err)
		}
	}

	api := httpapi.NewServer(store, scanService, sessionMgr, httpapi.Config{
		GapToleranceMs: cfg.Monitor.GapToleranceMs,
	})

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(api.Handler(), &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown: stop the pollers first so no playback command
	// races the server teardown.
	stopQueue()
	sessionMgr.StopAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}
