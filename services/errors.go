package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidSubmission is returned synchronously for bad client input; no job is created.
	ErrInvalidSubmission = errors.New("invalid submission")
	// ErrExtractionFailed marks a fatal failure of the download stage.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrPostProcessingFailed marks a tagging failure; the job still completes.
	ErrPostProcessingFailed = errors.New("post-processing failed")
	// ErrArtifactNotFound is returned when no output file can be located.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrJobNotFound is returned for unknown or evicted job ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobFinished is returned when cancelling a job in a terminal state.
	ErrJobFinished = errors.New("job already finished")
	// ErrQueueStopped is returned by Submit after Stop.
	ErrQueueStopped = errors.New("job queue stopped")
)

const maxDiagnosticBytes = 2000

// CommandLog captures one external command invocation result
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// Diagnostic returns the most useful captured output, truncated
func (l CommandLog) Diagnostic() string {
	out := strings.TrimSpace(l.Stderr)
	if out == "" {
		out = strings.TrimSpace(l.Stdout)
	}
	return truncateDiagnostic(out)
}

// ExtractionError is a failed extraction run with its captured output
type ExtractionError struct {
	Message    string
	CommandLog CommandLog
	Err        error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrExtractionFailed, e.Message)
	if e.CommandLog.Command != "" {
		msg = fmt.Sprintf("%s (exit=%d)", msg, e.CommandLog.ExitCode)
	}
	if diag := e.CommandLog.Diagnostic(); diag != "" {
		msg += ": " + diag
	}
	return msg
}

// Is lets errors.Is match ErrExtractionFailed
func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtractionFailed
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// PostProcessError is a failed tagging run with its captured output
type PostProcessError struct {
	Message    string
	CommandLog CommandLog
	Err        error
}

func (e *PostProcessError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrPostProcessingFailed, e.Message)
	if e.CommandLog.Command != "" {
		msg = fmt.Sprintf("%s (exit=%d)", msg, e.CommandLog.ExitCode)
	}
	if diag := e.CommandLog.Diagnostic(); diag != "" {
		msg += ": " + diag
	}
	return msg
}

func (e *PostProcessError) Is(target error) bool {
	return target == ErrPostProcessingFailed
}

func (e *PostProcessError) Unwrap() error {
	return e.Err
}

// truncateDiagnostic keeps the tail of long output, where tools print the fatal line
func truncateDiagnostic(s string) string {
	if len(s) <= maxDiagnosticBytes {
		return s
	}
	tail := s[len(s)-maxDiagnosticBytes:]
	// avoid starting mid-rune
	for i := 0; i < len(tail) && i < 4; i++ {
		if tail[i]&0xC0 != 0x80 {
			return "..." + tail[i:]
		}
	}
	return "..." + tail
}
