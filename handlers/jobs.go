package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"mediafetch/services"
	"mediafetch/types"
	"mediafetch/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// JobHandler handles job submission and status endpoints
type JobHandler struct {
	jobQueue services.JobQueue
	hub      websocket.Hub
	logger   *zap.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(jq services.JobQueue, hub websocket.Hub, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		jobQueue: jq,
		hub:      hub,
		logger:   logger.With(zap.String("component", "job_handler")),
	}
}

// SubmitJob validates a submission and queues it
func (h *JobHandler) SubmitJob(c *gin.Context) {
	var req types.SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}

	job, err := h.jobQueue.Submit(req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidSubmission):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid submission",
				"details": err.Error(),
			})
		case errors.Is(err, services.ErrQueueStopped):
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "server is shutting down",
			})
		default:
			h.logger.Error("Failed to submit job", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "failed to submit job",
				"details": err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"jobId": job.ID,
	})
}

// GetAllJobs returns all jobs, newest first
func (h *JobHandler) GetAllJobs(c *gin.Context) {
	jobs, err := h.jobQueue.GetAllJobs()
	if err != nil {
		h.logger.Error("Failed to list jobs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to list jobs",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": len(jobs),
	})
}

// GetJob returns the status of one job
func (h *JobHandler) GetJob(c *gin.Context) {
	job, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, StatusResponse(job))
}

// CancelJob cancels a queued or running job; ?purge=true also deletes it
func (h *JobHandler) CancelJob(c *gin.Context) {
	jobID := c.Param("jobId")
	purge, _ := strconv.ParseBool(c.Query("purge"))

	if purge {
		if err := h.jobQueue.DeleteJob(jobID); err != nil {
			h.writeJobError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "job deleted",
		})
		return
	}

	job, err := h.jobQueue.CancelJob(jobID)
	if err != nil {
		h.writeJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, StatusResponse(job))
}

// HandleWebSocketConnection streams progress messages for one job
func (h *JobHandler) HandleWebSocketConnection(c *gin.Context) {
	job, ok := h.lookup(c)
	if !ok {
		return
	}

	client, err := websocket.Upgrade(h.hub, c.Writer, c.Request, job.ID)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	client.StartPumps()

	// current state for the new subscriber
	h.hub.Broadcast(types.ProgressMessage{
		JobID:     job.ID,
		Type:      "status",
		Progress:  job.Progress,
		Status:    job.Status,
		FileName:  job.ResultFileName,
		Message:   job.Error,
		Timestamp: time.Now(),
	})
}

// HandleWebSocketAllConnection streams progress messages for every job
func (h *JobHandler) HandleWebSocketAllConnection(c *gin.Context) {
	client, err := websocket.Upgrade(h.hub, c.Writer, c.Request, websocket.AllJobs)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	client.StartPumps()
}

func (h *JobHandler) lookup(c *gin.Context) (types.Job, bool) {
	job, err := h.jobQueue.GetJob(c.Param("jobId"))
	if err != nil {
		h.writeJobError(c, err)
		return types.Job{}, false
	}
	return job, true
}

func (h *JobHandler) writeJobError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "job not found",
		})
	case errors.Is(err, services.ErrJobFinished):
		c.JSON(http.StatusConflict, gin.H{
			"error": "job already finished",
		})
	default:
		h.logger.Error("Job operation failed", zap.String("job_id", c.Param("jobId")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "job operation failed",
			"details": err.Error(),
		})
	}
}

// StatusResponse builds the polling view of a job. The download URL is
// only present once the artifact exists.
func StatusResponse(job types.Job) types.JobStatusResponse {
	resp := types.JobStatusResponse{
		JobID:     job.ID,
		Status:    job.Status,
		Progress:  job.Progress,
		Error:     job.Error,
		Warning:   job.Warning,
		CreatedAt: job.CreatedAt,
	}
	if job.Status == types.JobStatusCompleted {
		resp.DownloadURL = "/api/artifacts/" + job.ID
		resp.FileName = job.ResultFileName
	}
	return resp
}
