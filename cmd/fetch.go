package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"mediafetch/config"
	"mediafetch/types"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

const pollInterval = 250 * time.Millisecond

// Fetch runs one acquisition job in-process and waits for it, drawing a
// progress bar on out. It returns the job in its terminal state.
func Fetch(ctx context.Context, cfg *config.Config, logger *zap.Logger, req types.SubmitJobRequest, out io.Writer) (types.Job, error) {
	app, err := NewApp(cfg, logger)
	if err != nil {
		return types.Job{}, err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			logger.Warn("Jobs did not stop cleanly", zap.Error(err))
		}
	}()

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go app.Hub.Run(hubCtx)

	job, err := app.Queue.Submit(req)
	if err != nil {
		return types.Job{}, err
	}
	return waitForJob(ctx, app, job.ID, out)
}

func waitForJob(ctx context.Context, app *App, id string, out io.Writer) (types.Job, error) {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("queued"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish())

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		job, err := app.Queue.GetJob(id)
		if err != nil {
			return types.Job{}, err
		}

		bar.Describe(string(job.Status))
		_ = bar.Set(job.Progress)

		if job.Status.IsTerminal() {
			_ = bar.Finish()
			if job.Status == types.JobStatusFailed {
				return job, errors.New(job.Error)
			}
			return job, nil
		}

		select {
		case <-ctx.Done():
			if _, err := app.Queue.CancelJob(id); err != nil {
				app.Logger.Debug("Cancel after interrupt", zap.String("job_id", id), zap.Error(err))
			}
			job, _ = app.Queue.GetJob(id)
			return job, fmt.Errorf("interrupted: %w", context.Cause(ctx))
		case <-ticker.C:
		}
	}
}
