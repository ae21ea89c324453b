package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clipforge/clipforge-agent/internal/api"
	"github.com/clipforge/clipforge-agent/internal/compositor"
	"github.com/clipforge/clipforge-agent/internal/config"
	"github.com/clipforge/clipforge-agent/internal/db"
	"github.com/clipforge/clipforge-agent/internal/generate"
	"github.com/clipforge/clipforge-agent/internal/jobs"
	"github.com/clipforge/clipforge-agent/internal/logging"
	"github.com/clipforge/clipforge-agent/internal/media"
	"github.com/clipforge/clipforge-agent/internal/playback"
	"github.com/clipforge/clipforge-agent/internal/project"
	"github.com/clipforge/clipforge-agent/internal/stream"
	"github.com/clipforge/clipforge-agent/internal/ui"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	for _, dir := range []string{cfg.DataDir(), cfg.MediaDir(), cfg.ExportDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting clipforge agent", "version", config.Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := project.NewRepository(database.Conn())
	jobsRepo := jobs.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                  CLIPFORGE AGENT v%-8s                ║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	proj, err := repo.LoadLatest(context.Background())
	if err != nil {
		logger.Warn("failed to load latest project, starting fresh", "error", err)
	}
	if proj == nil {
		proj = project.NewProject("Untitled Project", 30, 1920, 1080)
		logger.Info("created new project", "project_id", proj.ID)
	} else {
		logger.Info("loaded project", "project_id", proj.ID, "name", proj.Name, "version", proj.Version)
	}

	store := project.NewStore(proj, repo, logging.WithComponent(logger, "store"))
	store.SetAutosaveDebounce(cfg.AutosaveDebounce())

	ffmpeg := media.NewRealFFmpeg(logger)
	catalog := media.NewCatalog(store, ffmpeg, logging.WithComponent(logger, "catalog"))

	clock := playback.NewClock(playback.NewTickerScheduler(60), logging.WithComponent(logger, "playback"))
	clock.SetDuration(store.Snapshot().Duration)
	store.Subscribe(func() {
		clock.SetDuration(store.Snapshot().Duration)
	})

	comp := compositor.NewCompositor(store, catalog, logging.WithComponent(logger, "compositor"))
	audioSync := compositor.NewAudioSync(store, catalog)
	clock.Subscribe(func() {
		audioSync.Sync(clock.CurrentTime(), clock.IsPlaying())
	})

	var genClient generate.Client
	if cfg.GenerateToken() != "" {
		genClient = generate.NewHTTPClient(cfg.GenerateBaseURL(), cfg.GenerateToken(), logger)
		logger.Info("generation API enabled", "base_url", cfg.GenerateBaseURL())
	} else {
		genClient = generate.NewStubClient(logger)
		logger.Info("no generation token configured, using stub client")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := jobs.NewRunner(jobsRepo, genClient, catalog, logging.WithComponent(logger, "jobs"))
	runner.SetPollInterval(cfg.GeneratePollInterval())
	go runner.Start(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:        cfg.Port(),
		Store:       store,
		Clock:       clock,
		Catalog:     catalog,
		Compositor:  comp,
		Repository:  repo,
		JobsRepo:    jobsRepo,
		Runner:      runner,
		MediaServer: stream.NewServer(logger),
		ExportDir:   cfg.ExportDir(),
		Logger:      logging.WithComponent(logger, "api"),
		StartTime:   startTime,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Store:  store,
			Clock:  clock,
			Runner: runner,
			Logger: logging.WithComponent(logger, "ui"),
			OnSave: func() error {
				saveCtx, saveCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer saveCancel()
				return store.FlushSave(saveCtx)
			},
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	clock.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	if err := store.FlushSave(shutdownCtx); err != nil {
		logger.Error("failed to flush project on shutdown", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func ensureAuthToken(repo project.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, "auth_token")
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, "auth_token", token); err != nil {
		return "", err
	}

	return token, nil
}
