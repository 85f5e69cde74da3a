package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"mediafetch/metrics"
	"mediafetch/types"
	"mediafetch/websocket"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	errJobCancelled = errors.New("job cancelled")
	errNoChange     = errors.New("no change")
)

var sourceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ExtractionRunner downloads the source audio for a job
type ExtractionRunner interface {
	Run(ctx context.Context, req ExtractRequest) (ExtractResult, error)
}

// PostProcessingRunner rewrites tags on an extracted file
type PostProcessingRunner interface {
	Run(ctx context.Context, req PostProcessRequest) (string, error)
}

// JobQueue interface defines the methods for managing acquisition jobs
type JobQueue interface {
	// Start fails jobs a previous process left unfinished.
	Start() error
	// Stop interrupts running jobs and waits for their goroutines.
	Stop(ctx context.Context) error
	Submit(req types.SubmitJobRequest) (types.Job, error)
	GetJob(id string) (types.Job, error)
	GetAllJobs() ([]types.Job, error)
	CancelJob(id string) (types.Job, error)
	// DeleteJob evicts a job and its artifact, cancelling it first if needed.
	DeleteJob(id string) error
	// InFlight reports whether a running job is still writing fileName.
	InFlight(fileName string) bool
}

// QueueOptions configures the orchestrator
type QueueOptions struct {
	DownloadDir string
	MaxWorkers  int
	// JobTimeout bounds the running stages of one job; zero disables it.
	JobTimeout time.Duration
	// EmbedThumbnail is used when a submission does not say.
	EmbedThumbnail bool
}

// jobQueue runs each job through extraction and post-processing
type jobQueue struct {
	opts      QueueOptions
	store     JobStore
	extractor ExtractionRunner
	post      PostProcessingRunner
	names     *NameReserver
	hub       websocket.Hub
	logger    *zap.Logger
	sem       *semaphore.Weighted
	now       func() time.Time

	mu      sync.Mutex
	cancels map[string]context.CancelCauseFunc
	stopped bool
	wg      sync.WaitGroup

	ctx  context.Context
	stop context.CancelCauseFunc
}

// NewJobQueue creates a new job queue; hub may be nil
func NewJobQueue(opts QueueOptions, store JobStore, extractor ExtractionRunner, post PostProcessingRunner, hub websocket.Hub, logger *zap.Logger) JobQueue {
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 1
	}
	ctx, stop := context.WithCancelCause(context.Background())
	return &jobQueue{
		opts:      opts,
		store:     store,
		extractor: extractor,
		post:      post,
		names:     NewNameReserver(),
		hub:       hub,
		logger:    logger.With(zap.String("component", "jobqueue")),
		sem:       semaphore.NewWeighted(int64(opts.MaxWorkers)),
		now:       time.Now,
		cancels:   make(map[string]context.CancelCauseFunc),
		ctx:       ctx,
		stop:      stop,
	}
}

// Start marks jobs that were in flight when the previous process died as failed
func (q *jobQueue) Start() error {
	jobs, err := q.store.List()
	if err != nil {
		return fmt.Errorf("list jobs for recovery: %w", err)
	}

	recovered := 0
	for _, job := range jobs {
		if job.Status.IsTerminal() {
			continue
		}
		if _, err := q.finish(job.ID, types.JobStatusFailed, func(j *types.Job) {
			j.Error = "interrupted by restart"
		}); err != nil {
			q.logger.Error("Failed to recover interrupted job", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		recovered++
	}
	if recovered > 0 {
		q.logger.Info("Recovered interrupted jobs", zap.Int("count", recovered))
	}
	q.refreshActive()
	return nil
}

// Stop cancels all jobs and waits until their goroutines return
func (q *jobQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()

	q.stop(ErrQueueStopped)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit validates the request, records a queued job and schedules it
func (q *jobQueue) Submit(req types.SubmitJobRequest) (types.Job, error) {
	job, err := q.newJob(req)
	if err != nil {
		return types.Job{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return types.Job{}, ErrQueueStopped
	}
	if err := q.store.Insert(job); err != nil {
		return types.Job{}, fmt.Errorf("store job: %w", err)
	}

	metrics.JobSubmitted(string(job.Format))
	q.notify(job, "status", "Job queued")
	q.logger.Info("Job submitted",
		zap.String("job_id", job.ID),
		zap.String("source", job.SourceReference),
		zap.String("format", string(job.Format)))

	jobCtx, cancel := context.WithCancelCause(q.ctx)
	q.cancels[job.ID] = cancel
	q.wg.Add(1)
	go q.process(jobCtx, job)

	return job, nil
}

// newJob validates a submission and builds the queued job for it
func (q *jobQueue) newJob(req types.SubmitJobRequest) (types.Job, error) {
	ref := strings.TrimSpace(req.SourceReference)
	if ref == "" {
		return types.Job{}, fmt.Errorf("%w: sourceReference is required", ErrInvalidSubmission)
	}
	if err := validateSourceReference(ref); err != nil {
		return types.Job{}, err
	}

	format := types.Format(strings.ToLower(strings.TrimSpace(string(req.Format))))
	if format == "" {
		format = types.FormatMP3
	}
	if !format.IsSupported() {
		return types.Job{}, fmt.Errorf("%w: unsupported format %q", ErrInvalidSubmission, req.Format)
	}

	job := types.Job{
		ID:              uuid.New().String(),
		SourceReference: ref,
		Format:          format,
		Title:           strings.TrimSpace(req.Title),
		Channel:         strings.TrimSpace(req.Channel),
		EmbedThumbnail:  q.opts.EmbedThumbnail,
		Status:          types.JobStatusQueued,
		CreatedAt:       q.now(),
	}
	if req.Metadata != nil {
		job.Metadata = *req.Metadata
	}
	if req.EmbedThumbnail != nil {
		job.EmbedThumbnail = *req.EmbedThumbnail
	}
	return job, nil
}

func validateSourceReference(ref string) error {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		u, err := url.Parse(ref)
		if err != nil || u.Host == "" {
			return fmt.Errorf("%w: sourceReference is not a valid URL", ErrInvalidSubmission)
		}
		return nil
	}
	if !sourceIDPattern.MatchString(ref) {
		return fmt.Errorf("%w: sourceReference must be a video id or an http(s) URL", ErrInvalidSubmission)
	}
	return nil
}

// GetJob retrieves a job snapshot by ID
func (q *jobQueue) GetJob(id string) (types.Job, error) {
	return q.store.Get(id)
}

// GetAllJobs returns all jobs, newest first
func (q *jobQueue) GetAllJobs() ([]types.Job, error) {
	return q.store.List()
}

// CancelJob fails a queued or running job and kills its subprocess
func (q *jobQueue) CancelJob(id string) (types.Job, error) {
	job, err := q.finish(id, types.JobStatusFailed, func(j *types.Job) {
		j.Error = errJobCancelled.Error()
	})
	if err != nil {
		if errors.Is(err, errInvalidTransition) {
			return job, ErrJobFinished
		}
		return job, err
	}

	q.mu.Lock()
	cancel, running := q.cancels[id]
	q.mu.Unlock()
	if running {
		cancel(errJobCancelled)
	}

	q.logger.Info("Job cancelled", zap.String("job_id", id))
	return job, nil
}

func (q *jobQueue) InFlight(fileName string) bool {
	stem := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	return q.names.Reserved(q.opts.DownloadDir, stem)
}

// DeleteJob removes the job record and its artifact
func (q *jobQueue) DeleteJob(id string) error {
	job, err := q.store.Get(id)
	if err != nil {
		return err
	}
	if !job.Status.IsTerminal() {
		if job, err = q.CancelJob(id); err != nil && !errors.Is(err, ErrJobFinished) {
			return err
		}
	}

	if job.ResultPath != "" {
		if err := os.Remove(job.ResultPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove artifact: %w", err)
		}
	}
	if err := q.store.Delete(id); err != nil {
		return err
	}

	q.logger.Info("Job deleted", zap.String("job_id", id))
	return nil
}

// process waits for a worker slot and drives one job to a terminal state
func (q *jobQueue) process(ctx context.Context, job types.Job) {
	defer q.wg.Done()
	defer q.forget(job.ID)

	queuedAt := q.now()
	if err := q.sem.Acquire(ctx, 1); err != nil {
		q.fail(job.ID, context.Cause(ctx))
		return
	}
	defer q.sem.Release(1)
	metrics.ObserveStage("queued", queuedAt)

	if q.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, q.opts.JobTimeout,
			fmt.Errorf("job timed out after %s", q.opts.JobTimeout))
		defer cancel()
	}

	if _, err := q.transition(job.ID, types.JobStatusRunning, func(j *types.Job) {
		j.StartedAt = timePtr(q.now())
	}); err != nil {
		// cancelled while waiting for a slot
		return
	}

	path, warning, err := q.execute(ctx, job)
	if err != nil {
		if cause := context.Cause(ctx); cause != nil {
			err = fmt.Errorf("%w: %v", cause, err)
		}
		q.fail(job.ID, err)
		return
	}
	q.complete(job.ID, path, warning)
}

// execute runs extraction then, when requested, post-processing.
// It returns the artifact path and a non-fatal tagging warning.
func (q *jobQueue) execute(ctx context.Context, job types.Job) (string, string, error) {
	dir := q.opts.DownloadDir
	ext := job.Format.Extension()

	base := BuildBaseName(job.Channel, job.Title)
	if base == "" {
		base = SanitizeComponent(job.SourceReference)
	}
	name := q.names.Reserve(dir, base, ext)
	defer q.names.Release(dir, name)

	log := q.logger.With(zap.String("job_id", job.ID), zap.String("name", name))
	defer func() {
		removed := CleanupSidecars(dir, name, job.SourceReference, log)
		if len(removed) > 0 {
			log.Debug("Removed sidecar files", zap.Strings("paths", removed))
		}
	}()

	start := q.now()
	result, err := q.extractor.Run(ctx, ExtractRequest{
		SourceReference: job.SourceReference,
		TargetDir:       dir,
		BaseName:        name,
		Format:          job.Format,
		WriteThumbnail:  job.EmbedThumbnail,
		OnProgress: func(percent int) {
			q.reportProgress(job.ID, percent)
		},
	})
	metrics.ObserveStage("extract", start)
	if err != nil {
		RemovePartials(dir, name)
		return "", "", err
	}
	log.Info("Extraction finished", zap.String("path", result.OutputPath))

	if !job.NeedsPostProcessing() {
		return result.OutputPath, "", nil
	}

	if _, err := q.transition(job.ID, types.JobStatusPostProcessing, nil); err != nil {
		q.discardArtifact(result.OutputPath)
		return "", "", err
	}

	start = q.now()
	finalPath, err := q.post.Run(ctx, PostProcessRequest{
		SourcePath:    result.OutputPath,
		Metadata:      job.Metadata,
		ThumbnailPath: result.ThumbnailPath,
	})
	metrics.ObserveStage("postprocess", start)
	if err != nil {
		if ctx.Err() != nil {
			q.discardArtifact(result.OutputPath)
			return "", "", err
		}
		metrics.PostProcessFailed()
		log.Warn("Post-processing failed, keeping untagged artifact", zap.Error(err))
		return result.OutputPath, err.Error(), nil
	}
	return finalPath, "", nil
}

// reportProgress raises the running job's progress; it never lowers it
func (q *jobQueue) reportProgress(id string, percent int) {
	if percent > 99 {
		// 100 is reserved for completion
		percent = 99
	}
	job, err := q.store.Update(id, func(j *types.Job) error {
		if j.Status != types.JobStatusRunning || percent <= j.Progress {
			return errNoChange
		}
		j.Progress = percent
		return nil
	})
	if err != nil {
		if !errors.Is(err, errNoChange) {
			q.logger.Warn("Failed to record progress", zap.String("job_id", id), zap.Error(err))
		}
		return
	}
	q.notify(job, "progress", "")
}

func (q *jobQueue) complete(id, path, warning string) {
	job, err := q.finish(id, types.JobStatusCompleted, func(j *types.Job) {
		j.ResultPath = path
		j.ResultFileName = filepath.Base(path)
		j.Progress = 100
		j.Warning = warning
	})
	if err != nil {
		// cancelled between finishing the work and recording it
		q.logger.Info("Discarding artifact of finished job", zap.String("job_id", id), zap.Error(err))
		q.discardArtifact(path)
		return
	}
	q.logger.Info("Job completed", zap.String("job_id", id), zap.String("file", job.ResultFileName))
}

func (q *jobQueue) fail(id string, cause error) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	if _, err := q.finish(id, types.JobStatusFailed, func(j *types.Job) {
		j.Error = msg
	}); err != nil {
		q.logger.Debug("Job already finished", zap.String("job_id", id), zap.Error(err))
		return
	}
	q.logger.Warn("Job failed", zap.String("job_id", id), zap.String("error", msg))
}

// finish moves a job to a terminal state, stamping CompletedAt
func (q *jobQueue) finish(id string, status types.JobStatus, mutate func(j *types.Job)) (types.Job, error) {
	job, err := q.transition(id, status, func(j *types.Job) {
		mutate(j)
		j.CompletedAt = timePtr(q.now())
	})
	if err == nil {
		metrics.JobFinished(string(status))
	}
	return job, err
}

// transition validates and applies one state change, then publishes it
func (q *jobQueue) transition(id string, to types.JobStatus, mutate func(j *types.Job)) (types.Job, error) {
	job, err := q.store.Update(id, func(j *types.Job) error {
		if !isValidTransition(j.Status, to) {
			return fmt.Errorf("%w: %s -> %s", errInvalidTransition, j.Status, to)
		}
		j.Status = to
		if mutate != nil {
			mutate(j)
		}
		return checkTerminal(*j)
	})
	if err != nil {
		return job, err
	}

	q.notify(job, messageType(to), statusMessage(job))
	q.refreshActive()
	return job, nil
}

// forget drops the cancel func of a job whose goroutine is exiting
func (q *jobQueue) forget(id string) {
	q.mu.Lock()
	cancel, ok := q.cancels[id]
	delete(q.cancels, id)
	q.mu.Unlock()
	if ok {
		cancel(nil)
	}
}

func (q *jobQueue) discardArtifact(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		q.logger.Warn("Failed to remove artifact", zap.String("path", path), zap.Error(err))
	}
}

func (q *jobQueue) refreshActive() {
	jobs, err := q.store.List()
	if err != nil {
		return
	}
	counts := make(map[string]int)
	for _, job := range jobs {
		if !job.Status.IsTerminal() {
			counts[string(job.Status)]++
		}
	}
	metrics.SetActive(counts)
}

func (q *jobQueue) notify(job types.Job, msgType, message string) {
	if q.hub == nil {
		return
	}
	q.hub.Broadcast(types.ProgressMessage{
		JobID:     job.ID,
		Type:      msgType,
		Progress:  job.Progress,
		Status:    job.Status,
		FileName:  job.ResultFileName,
		Message:   message,
		Timestamp: q.now(),
	})
}

func messageType(status types.JobStatus) string {
	switch status {
	case types.JobStatusCompleted:
		return "complete"
	case types.JobStatusFailed:
		return "error"
	default:
		return "status"
	}
}

func statusMessage(job types.Job) string {
	switch job.Status {
	case types.JobStatusRunning:
		return "Downloading " + job.SourceReference
	case types.JobStatusPostProcessing:
		return "Writing tags"
	case types.JobStatusCompleted:
		return job.ResultFileName + " ready"
	case types.JobStatusFailed:
		return job.Error
	default:
		return string(job.Status)
	}
}
