package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"mediafetch/types"

	"go.uber.org/zap"
)

const artifactLinePrefix = "artifact="

var progressPattern = regexp.MustCompile(`^\[download\]\s+(\d+(?:\.\d+)?)%`)

// ExtractRequest describes one extraction run
type ExtractRequest struct {
	SourceReference string
	TargetDir       string
	BaseName        string
	Format          types.Format
	WriteThumbnail  bool
	// OnProgress receives download percentages as the tool reports them.
	OnProgress func(percent int)
}

// ExtractResult describes the files an extraction run produced
type ExtractResult struct {
	ExitCode      int
	OutputPath    string
	ThumbnailPath string
	CommandLog    CommandLog
}

// ExtractorOptions configures the yt-dlp invocation
type ExtractorOptions struct {
	Binary       string
	AudioBitrate string
	UserAgent    string
}

// Extractor runs yt-dlp to download and transcode audio
type Extractor struct {
	opts   ExtractorOptions
	runner commandRunner
	now    func() time.Time
	logger *zap.Logger
}

// NewExtractor creates an extractor that spawns real processes
func NewExtractor(opts ExtractorOptions, logger *zap.Logger) *Extractor {
	return newExtractor(opts, &execRunner{}, logger)
}

func newExtractor(opts ExtractorOptions, runner commandRunner, logger *zap.Logger) *Extractor {
	if opts.Binary == "" {
		opts.Binary = "yt-dlp"
	}
	if opts.AudioBitrate == "" {
		opts.AudioBitrate = "192K"
	}
	return &Extractor{
		opts:   opts,
		runner: runner,
		now:    time.Now,
		logger: logger.With(zap.String("component", "extractor")),
	}
}

// Run downloads req.SourceReference into req.TargetDir/req.BaseName.<format>
func (e *Extractor) Run(ctx context.Context, req ExtractRequest) (ExtractResult, error) {
	if strings.TrimSpace(req.SourceReference) == "" {
		return ExtractResult{}, &ExtractionError{Message: "source reference is required"}
	}
	if err := os.MkdirAll(req.TargetDir, 0o755); err != nil {
		return ExtractResult{}, &ExtractionError{
			Message: fmt.Sprintf("cannot create target directory %s", req.TargetDir),
			Err:     err,
		}
	}

	args := e.buildArgs(req)
	e.logger.Debug("Starting extraction",
		zap.String("source", req.SourceReference),
		zap.Strings("args", args))

	var reportedPath string
	onLine := func(line string) {
		if path, ok := strings.CutPrefix(strings.TrimSpace(line), artifactLinePrefix); ok {
			reportedPath = path
			return
		}
		if percent, ok := parseProgress(line); ok && req.OnProgress != nil {
			req.OnProgress(percent)
		}
	}

	cmdResult, runErr := e.runner.Run(ctx, onLine, e.opts.Binary, args...)
	log := CommandLog{
		Command:  e.opts.Binary,
		Args:     args,
		ExitCode: cmdResult.ExitCode,
		Stdout:   cmdResult.Stdout,
		Stderr:   cmdResult.Stderr,
	}
	result := ExtractResult{ExitCode: cmdResult.ExitCode, CommandLog: log}

	if runErr != nil {
		msg := "yt-dlp exited with an error"
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			msg = "yt-dlp was interrupted"
		}
		return result, &ExtractionError{Message: msg, CommandLog: log, Err: runErr}
	}

	ext := req.Format.Extension()
	if reportedPath != "" && strings.EqualFold(filepath.Ext(reportedPath), ext) {
		if _, err := os.Stat(reportedPath); err == nil {
			result.OutputPath = reportedPath
		}
	}
	if result.OutputPath == "" {
		path, err := ResolveOutput(req.TargetDir, req.BaseName, ext, RecencyWindow, e.now())
		if err != nil {
			return result, &ExtractionError{
				Message:    "yt-dlp completed but no output file was found",
				CommandLog: log,
				Err:        err,
			}
		}
		result.OutputPath = path
	}

	if req.WriteThumbnail {
		base := strings.TrimSuffix(filepath.Base(result.OutputPath), filepath.Ext(result.OutputPath))
		result.ThumbnailPath = FindThumbnail(req.TargetDir, base)
	}

	return result, nil
}

// buildArgs builds the yt-dlp command line for audio-only extraction
func (e *Extractor) buildArgs(req ExtractRequest) []string {
	args := []string{
		"--format", "bestaudio/worst",
		"--extract-audio",
		"--audio-format", string(req.Format),
		"--audio-quality", e.opts.AudioBitrate,
		"--output", filepath.Join(req.TargetDir, req.BaseName) + ".%(ext)s",
		"--no-playlist",
		"--no-warnings",
		"--no-check-certificates",
		"--sleep-interval", "1",
		"--max-sleep-interval", "3",
		"--newline",
		"--progress",
		"--no-simulate",
		"--print", "after_move:" + artifactLinePrefix + "%(filepath)s",
	}
	if e.opts.UserAgent != "" {
		args = append(args, "--user-agent", e.opts.UserAgent)
	}
	if req.WriteThumbnail {
		args = append(args, "--write-thumbnail", "--convert-thumbnails", "jpg")
	}
	return append(args, "--", SourceURL(req.SourceReference))
}

// SourceURL expands a bare video id to a watch URL
func SourceURL(ref string) string {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return "https://www.youtube.com/watch?v=" + ref
}

// parseProgress reads the percentage from a yt-dlp "[download]  42.0% of ..." line
func parseProgress(line string) (int, bool) {
	m := progressPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	percent := int(value)
	if percent > 100 {
		percent = 100
	}
	return percent, true
}
