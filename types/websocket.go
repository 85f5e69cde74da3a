package types

import "time"

// ProgressMessage represents a WebSocket progress update message
type ProgressMessage struct {
	JobID     string    `json:"jobId"`
	Type      string    `json:"type"`     // "progress", "status", "complete", "error"
	Progress  int       `json:"progress"` // 0-100 percentage
	Status    JobStatus `json:"status"`
	FileName  string    `json:"fileName,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
