package types

import "time"

// SubmitJobRequest is the body of POST /api/jobs
type SubmitJobRequest struct {
	SourceReference string    `json:"sourceReference"`
	Format          Format    `json:"format"`
	Title           string    `json:"title,omitempty"`
	Channel         string    `json:"channel,omitempty"`
	Metadata        *Metadata `json:"metadata,omitempty"`
	EmbedThumbnail  *bool     `json:"embedThumbnail,omitempty"`
}

// JobStatusResponse is the polling view of a job
type JobStatusResponse struct {
	JobID       string    `json:"jobId"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
	FileName    string    `json:"fileName,omitempty"`
	Error       string    `json:"error,omitempty"`
	Warning     string    `json:"warning,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AudioFile represents an artifact found in the download directory
type AudioFile struct {
	Filename string         `json:"filename"`
	Size     int64          `json:"size"`
	Format   string         `json:"format"`
	ModTime  time.Time      `json:"modTime"`
	Metadata *AudioMetadata `json:"metadata,omitempty"`
}

// AudioMetadata represents tags read back from an artifact
type AudioMetadata struct {
	Title       string `json:"title,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	Genre       string `json:"genre,omitempty"`
	Year        int    `json:"year,omitempty"`
	TrackNumber int    `json:"trackNumber,omitempty"`
	HasPicture  bool   `json:"hasPicture"`
}
