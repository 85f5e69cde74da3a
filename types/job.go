package types

import "time"

// Format is the target container/codec of an acquisition job
type Format string

const (
	FormatMP3 Format = "mp3"
)

// SupportedFormats lists the formats a job may request
var SupportedFormats = []Format{FormatMP3}

// IsSupported reports whether f can be requested
func (f Format) IsSupported() bool {
	for _, supported := range SupportedFormats {
		if f == supported {
			return true
		}
	}
	return false
}

// Extension returns the file extension produced for the format, with the dot
func (f Format) Extension() string {
	return "." + string(f)
}

// JobStatus represents the current status of an acquisition job
type JobStatus string

const (
	JobStatusQueued         JobStatus = "queued"
	JobStatusRunning        JobStatus = "running"
	JobStatusPostProcessing JobStatus = "post_processing"
	JobStatusCompleted      JobStatus = "completed"
	JobStatusFailed         JobStatus = "failed"
)

// IsTerminal reports whether no further transitions can happen
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Metadata holds the tag overrides written during post-processing
type Metadata struct {
	Title   string `json:"title,omitempty"`
	Artist  string `json:"artist,omitempty"`
	Album   string `json:"album,omitempty"`
	Track   string `json:"track,omitempty"`
	Year    string `json:"year,omitempty"`
	Genre   string `json:"genre,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// IsEmpty reports whether every tag is blank
func (m Metadata) IsEmpty() bool {
	return m == Metadata{}
}

// Job represents one request to acquire and finalize a media artifact
type Job struct {
	ID              string     `json:"id"`
	SourceReference string     `json:"sourceReference"`
	Format          Format     `json:"format"`
	Title           string     `json:"title,omitempty"`
	Channel         string     `json:"channel,omitempty"`
	Metadata        Metadata   `json:"metadata"`
	EmbedThumbnail  bool       `json:"embedThumbnail"`
	Status          JobStatus  `json:"status"`
	Progress        int        `json:"progress"`
	ResultPath      string     `json:"-"`
	ResultFileName  string     `json:"fileName,omitempty"`
	Error           string     `json:"error,omitempty"`
	Warning         string     `json:"warning,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// NeedsPostProcessing reports whether tags or cover art must be written
func (j Job) NeedsPostProcessing() bool {
	return j.EmbedThumbnail || !j.Metadata.IsEmpty()
}
