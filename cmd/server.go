package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"mediafetch/config"
	"mediafetch/handlers"
	"mediafetch/metrics"
	"mediafetch/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

// StartWebServer runs the HTTP API until SIGINT or SIGTERM
func StartWebServer(cfg *config.Config, logger *zap.Logger) error {
	gin.SetMode(cfg.GinMode)

	app, err := NewApp(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		app.Hub.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		app.Sweeper.Start(ctx)
	}()

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.ServerPort),
		Handler:           NewRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Mediafetch web server starting",
			zap.Int("port", cfg.ServerPort),
			zap.String("download_dir", cfg.DownloadDir),
			zap.String("job_store", cfg.StoreDriver),
			zap.Int("max_workers", cfg.MaxWorkers))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			logger.Error("Server failed", zap.Error(err))
		}
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server did not shut down cleanly", zap.Error(err))
	}
	if err := app.Close(shutdownCtx); err != nil {
		logger.Warn("Jobs did not stop cleanly", zap.Error(err))
	}
	cancel()
	wg.Wait()

	logger.Info("Shutdown complete")
	return nil
}

// NewRouter builds the gin engine with every route mounted
func NewRouter(app *App) *gin.Engine {
	r := gin.New()

	r.Use(middleware.Recovery(app.Logger))
	r.Use(middleware.Logging(app.Logger))
	r.Use(middleware.CORS(app.Config.CORSOrigins))
	r.Use(middleware.Security())

	setupRoutes(r,
		handlers.NewJobHandler(app.Queue, app.Hub, app.Logger),
		handlers.NewArtifactHandler(app.Files, app.Queue, app.Config.DownloadDir, app.Logger),
		handlers.NewHealthHandler(app.Config))
	return r
}

// setupRoutes configures all the HTTP routes
func setupRoutes(r *gin.Engine, jobHandler *handlers.JobHandler, artifactHandler *handlers.ArtifactHandler, healthHandler *handlers.HealthHandler) {
	r.GET("/health", healthHandler.HealthCheck)
	r.GET("/metrics", metrics.Handler())

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/status", healthHandler.APIStatus)

		jobsGroup := apiGroup.Group("/jobs")
		{
			jobsGroup.POST("", jobHandler.SubmitJob)
			jobsGroup.GET("", jobHandler.GetAllJobs)
			jobsGroup.GET("/:jobId", jobHandler.GetJob)
			jobsGroup.DELETE("/:jobId", jobHandler.CancelJob)
		}

		artifactsGroup := apiGroup.Group("/artifacts")
		{
			artifactsGroup.GET("", artifactHandler.ListArtifacts)
			artifactsGroup.GET("/:ref", artifactHandler.GetArtifact)
		}

		// WebSocket endpoints for real-time progress
		wsGroup := apiGroup.Group("/ws")
		{
			wsGroup.GET("/jobs", jobHandler.HandleWebSocketAllConnection)
			wsGroup.GET("/jobs/:jobId", jobHandler.HandleWebSocketConnection)
		}
	}
}
