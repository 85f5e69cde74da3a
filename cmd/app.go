package cmd

import (
	"context"
	"fmt"
	"os"

	"mediafetch/config"
	"mediafetch/services"
	"mediafetch/websocket"

	"go.uber.org/zap"
)

// App wires the services shared by the server and the one-shot CLI
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Store   services.JobStore
	Hub     websocket.Hub
	Queue   services.JobQueue
	Files   services.FileService
	Sweeper *services.ExpirySweeper
}

// NewApp opens the job store and builds the orchestrator around real
// yt-dlp and ffmpeg processes. Jobs left unfinished by a previous run are
// failed before it returns.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download directory: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	hub := websocket.NewHub(logger)
	extractor := services.NewExtractor(services.ExtractorOptions{
		Binary:       cfg.YtDlpPath,
		AudioBitrate: cfg.AudioBitrate,
		UserAgent:    cfg.UserAgent,
	}, logger)
	post := services.NewPostProcessor(cfg.FFmpegPath, logger)

	queue := services.NewJobQueue(services.QueueOptions{
		DownloadDir:    cfg.DownloadDir,
		MaxWorkers:     cfg.MaxWorkers,
		JobTimeout:     cfg.JobTimeout(),
		EmbedThumbnail: cfg.EmbedThumbnail,
	}, store, extractor, post, hub, logger)
	if err := queue.Start(); err != nil {
		store.Close()
		return nil, err
	}

	return &App{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		Hub:     hub,
		Queue:   queue,
		Files:   services.NewFileService(logger),
		Sweeper: services.NewExpirySweeper(store, cfg.ArtifactExpiry(), logger),
	}, nil
}

// Close stops the queue and releases the store
func (a *App) Close(ctx context.Context) error {
	stopErr := a.Queue.Stop(ctx)
	if err := a.Store.Close(); err != nil {
		return err
	}
	return stopErr
}

func openStore(cfg *config.Config) (services.JobStore, error) {
	if cfg.StoreDriver == config.StoreMemory {
		return services.NewMemoryStore(), nil
	}
	return services.OpenSQLStore(cfg.StoreDriver, cfg.StoreDSN)
}
