package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"mediafetch/config"
	"mediafetch/services"
	"mediafetch/types"
	"mediafetch/websocket"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeQueue is an in-memory JobQueue whose jobs are set up by the test
type fakeQueue struct {
	mu        sync.Mutex
	jobs      map[string]types.Job
	submitErr error
	submitted []types.SubmitJobRequest
	deleted   []string
	writing   map[string]bool
}

func newFakeQueue(jobs ...types.Job) *fakeQueue {
	q := &fakeQueue{jobs: make(map[string]types.Job), writing: make(map[string]bool)}
	for _, job := range jobs {
		q.jobs[job.ID] = job
	}
	return q
}

func (q *fakeQueue) Start() error {
	return nil
}

func (q *fakeQueue) Stop(ctx context.Context) error {
	return nil
}

func (q *fakeQueue) Submit(req types.SubmitJobRequest) (types.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.submitErr != nil {
		return types.Job{}, q.submitErr
	}
	q.submitted = append(q.submitted, req)
	job := types.Job{ID: "job-new", SourceReference: req.SourceReference, Status: types.JobStatusQueued, CreatedAt: time.Now()}
	q.jobs[job.ID] = job
	return job, nil
}

func (q *fakeQueue) GetJob(id string) (types.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return types.Job{}, services.ErrJobNotFound
	}
	return job, nil
}

func (q *fakeQueue) InFlight(fileName string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.writing[fileName]
}

func (q *fakeQueue) GetAllJobs() ([]types.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := make([]types.Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (q *fakeQueue) CancelJob(id string) (types.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return types.Job{}, services.ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return job, services.ErrJobFinished
	}
	job.Status = types.JobStatusFailed
	job.Error = "job cancelled"
	q.jobs[id] = job
	return job, nil
}

func (q *fakeQueue) DeleteJob(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.jobs[id]; !ok {
		return services.ErrJobNotFound
	}
	delete(q.jobs, id)
	q.deleted = append(q.deleted, id)
	return nil
}

// TestHelper serves the handlers over a real HTTP listener
type TestHelper struct {
	Server      *httptest.Server
	Queue       *fakeQueue
	DownloadDir string
}

// NewTestHelper mounts the handlers the way the server does
func NewTestHelper(t *testing.T, queue *fakeQueue) *TestHelper {
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	logger := zap.NewNop()
	hub := websocket.NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	cfg := &config.Config{DownloadDir: dir, MaxWorkers: 2, StoreDriver: config.StoreMemory, JobTimeoutMinutes: 30}

	jobHandler := NewJobHandler(queue, hub, logger)
	artifactHandler := NewArtifactHandler(services.NewFileService(logger), queue, dir, logger)
	healthHandler := NewHealthHandler(cfg)

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", healthHandler.HealthCheck)
	api := router.Group("/api")
	{
		api.GET("/status", healthHandler.APIStatus)
		api.POST("/jobs", jobHandler.SubmitJob)
		api.GET("/jobs", jobHandler.GetAllJobs)
		api.GET("/jobs/:jobId", jobHandler.GetJob)
		api.DELETE("/jobs/:jobId", jobHandler.CancelJob)
		api.GET("/artifacts", artifactHandler.ListArtifacts)
		api.GET("/artifacts/:ref", artifactHandler.GetArtifact)
	}

	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		cancel()
	})

	return &TestHelper{Server: server, Queue: queue, DownloadDir: dir}
}

// Do sends a request with an optional JSON body
func (h *TestHelper) Do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewBuffer(data)
		}
	}

	req, err := http.NewRequest(method, h.Server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// DoJSON sends a request and decodes the JSON response into target
func (h *TestHelper) DoJSON(t *testing.T, method, path string, body, target any) *http.Response {
	t.Helper()
	resp := h.Do(t, method, path, body)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
	return resp
}
