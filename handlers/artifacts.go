package handlers

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"mediafetch/services"
	"mediafetch/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ArtifactHandler serves finished audio files
type ArtifactHandler struct {
	fileService services.FileService
	jobQueue    services.JobQueue
	downloadDir string
	logger      *zap.Logger
}

// NewArtifactHandler creates a new artifact handler
func NewArtifactHandler(fs services.FileService, jq services.JobQueue, downloadDir string, logger *zap.Logger) *ArtifactHandler {
	return &ArtifactHandler{
		fileService: fs,
		jobQueue:    jq,
		downloadDir: downloadDir,
		logger:      logger.With(zap.String("component", "artifact_handler")),
	}
}

// ListArtifacts returns the audio files in the download directory
func (h *ArtifactHandler) ListArtifacts(c *gin.Context) {
	files, err := h.fileService.ScanArtifacts(h.downloadDir)
	if err != nil {
		h.logger.Error("Error scanning artifacts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to scan files",
			"details": err.Error(),
		})
		return
	}

	ready := files[:0]
	for _, file := range files {
		if !h.jobQueue.InFlight(file.Filename) {
			ready = append(ready, file)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"files": ready,
		"count": len(ready),
	})
}

// GetArtifact streams an artifact. The reference is a job id or, failing
// that, a file name inside the download directory.
func (h *ArtifactHandler) GetArtifact(c *gin.Context) {
	ref := c.Param("ref")

	path, err := h.resolve(ref)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "artifact not found",
			"details": err.Error(),
		})
		return
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "artifact not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to open file",
			"details": err.Error(),
		})
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "artifact not found",
		})
		return
	}

	c.Header("Content-Type", h.fileService.GetContentType(path))
	c.Header("Content-Length", strconv.FormatInt(info.Size(), 10))
	c.Header("Content-Disposition", ContentDisposition(filepath.Base(path)))
	c.Status(http.StatusOK)

	if _, err := io.Copy(c.Writer, file); err != nil {
		// headers are gone; a truncated body must not look complete
		h.logger.Warn("Artifact stream interrupted", zap.String("path", path), zap.Error(err))
		panic(http.ErrAbortHandler)
	}
}

func (h *ArtifactHandler) resolve(ref string) (string, error) {
	job, err := h.jobQueue.GetJob(ref)
	switch {
	case err == nil:
		if job.Status != types.JobStatusCompleted || job.ResultPath == "" {
			return "", errors.New("job has no artifact yet")
		}
		return job.ResultPath, nil
	case !errors.Is(err, services.ErrJobNotFound):
		return "", err
	}

	if err := h.fileService.ValidateFileName(ref); err != nil {
		return "", err
	}
	if h.jobQueue.InFlight(ref) {
		return "", errors.New("artifact is still being written")
	}
	return filepath.Join(h.downloadDir, ref), nil
}

// ContentDisposition builds an attachment header carrying both an ASCII
// fallback and the RFC 5987 UTF-8 file name.
func ContentDisposition(name string) string {
	fallback := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, name)
	return `attachment; filename="` + fallback + `"; filename*=UTF-8''` + url.PathEscape(name)
}
