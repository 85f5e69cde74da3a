package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mediafetch/types"

	"go.uber.org/zap"
)

// sidecarExtensions are the image files yt-dlp may leave next to an artifact
var sidecarExtensions = []string{".jpg", ".jpeg", ".webp", ".png"}

// PostProcessRequest describes one tagging run
type PostProcessRequest struct {
	SourcePath    string
	Metadata      types.Metadata
	ThumbnailPath string
}

// PostProcessor rewrites container tags and embeds cover art with ffmpeg
type PostProcessor struct {
	binary string
	runner commandRunner
	logger *zap.Logger
}

// NewPostProcessor creates a post-processor that spawns real processes
func NewPostProcessor(binary string, logger *zap.Logger) *PostProcessor {
	return newPostProcessor(binary, &execRunner{}, logger)
}

func newPostProcessor(binary string, runner commandRunner, logger *zap.Logger) *PostProcessor {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &PostProcessor{
		binary: binary,
		runner: runner,
		logger: logger.With(zap.String("component", "postprocessor")),
	}
}

// Run tags req.SourcePath in place and returns the final path.
// The canonical path only ever holds the original or the fully written
// result; on failure the temporary file is removed and the source is kept.
func (p *PostProcessor) Run(ctx context.Context, req PostProcessRequest) (string, error) {
	if _, err := os.Stat(req.SourcePath); err != nil {
		return req.SourcePath, &PostProcessError{
			Message: fmt.Sprintf("cannot access source file %s", req.SourcePath),
			Err:     err,
		}
	}

	thumbnail := req.ThumbnailPath
	if thumbnail != "" {
		if _, err := os.Stat(thumbnail); err != nil {
			p.logger.Warn("Thumbnail missing, tagging without cover",
				zap.String("thumbnail", thumbnail), zap.Error(err))
			thumbnail = ""
		}
	}

	tempPath := tempSiblingPath(req.SourcePath)
	args := buildFFmpegArgs(req.SourcePath, thumbnail, tempPath, req.Metadata)

	cmdResult, runErr := p.runner.Run(ctx, nil, p.binary, args...)
	log := CommandLog{
		Command:  p.binary,
		Args:     args,
		ExitCode: cmdResult.ExitCode,
		Stdout:   cmdResult.Stdout,
		Stderr:   cmdResult.Stderr,
	}
	if runErr != nil {
		p.discard(tempPath)
		return req.SourcePath, &PostProcessError{
			Message:    "ffmpeg tagging failed",
			CommandLog: log,
			Err:        runErr,
		}
	}

	info, err := os.Stat(tempPath)
	if err != nil || info.Size() == 0 {
		p.discard(tempPath)
		return req.SourcePath, &PostProcessError{
			Message:    "ffmpeg completed but produced no output",
			CommandLog: log,
			Err:        err,
		}
	}

	if err := replaceFile(tempPath, req.SourcePath); err != nil {
		p.discard(tempPath)
		return req.SourcePath, &PostProcessError{
			Message: "cannot replace source with tagged file",
			Err:     err,
		}
	}

	return req.SourcePath, nil
}

func (p *PostProcessor) discard(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("Failed to remove temporary file", zap.String("path", path), zap.Error(err))
	}
}

// tempSiblingPath returns "<dir>/<name>.tagging<ext>" so ffmpeg still picks the muxer from the extension
func tempSiblingPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".tagging" + ext
}

// replaceFile moves src over dst; rename replaces atomically where the OS allows it
func replaceFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(src, dst)
}

// buildFFmpegArgs strips existing tags, copies audio untouched and writes overrides
func buildFFmpegArgs(sourcePath, thumbnailPath, outPath string, meta types.Metadata) []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-y",
		"-i", sourcePath,
	}
	if thumbnailPath != "" {
		args = append(args, "-i", thumbnailPath)
	}

	args = append(args,
		"-map_metadata", "-1",
		"-map", "0:a",
		"-c:a", "copy",
	)
	if thumbnailPath != "" {
		args = append(args,
			"-map", "1:v",
			"-c:v", "copy",
			"-disposition:v:0", "attached_pic",
			"-metadata:s:v", "title=Album cover",
			"-metadata:s:v", "comment=Cover (front)",
		)
	}
	args = append(args, "-id3v2_version", "3")

	for _, tag := range metadataTags(meta) {
		args = append(args, "-metadata", tag)
	}

	return append(args, outPath)
}

// metadataTags renders non-empty overrides as ffmpeg key=value pairs
func metadataTags(meta types.Metadata) []string {
	pairs := []struct{ key, value string }{
		{"title", meta.Title},
		{"artist", meta.Artist},
		{"album", meta.Album},
		{"track", meta.Track},
		{"date", meta.Year},
		{"genre", meta.Genre},
		{"comment", meta.Comment},
	}

	tags := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		if value := strings.TrimSpace(pair.value); value != "" {
			tags = append(tags, pair.key+"="+value)
		}
	}
	return tags
}

// FindThumbnail returns the image sidecar for base in dir, or ""
func FindThumbnail(dir, base string) string {
	for _, ext := range sidecarExtensions {
		candidate := filepath.Join(dir, base+ext)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

// CleanupSidecars deletes image files in dir named after base (optionally
// with a yt-dlp " [id]" or ".variant" suffix) or after sourceRef, either as
// the whole stem or as a "[sourceRef]" token.
// Failures are logged and never returned.
func CleanupSidecars(dir, base, sourceRef string, logger *zap.Logger) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("Sidecar cleanup could not read directory", zap.String("dir", dir), zap.Error(err))
		return nil
	}

	// a URL reference is never part of a file name
	if strings.ContainsAny(sourceRef, `/\`) {
		sourceRef = ""
	}

	var removed []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !isSidecar(name) {
			continue
		}
		if !matchesBase(name, base) && !matchesSourceRef(name, sourceRef) {
			continue
		}

		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil {
			logger.Warn("Failed to remove sidecar", zap.String("path", path), zap.Error(err))
			continue
		}
		removed = append(removed, path)
	}
	return removed
}

// matchesBase keeps "Title (2).jpg" of a sibling job out of "Title"'s cleanup
func matchesBase(name, base string) bool {
	if base == "" {
		return false
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if stem == base {
		return true
	}
	rest, ok := strings.CutPrefix(stem, base)
	return ok && (strings.HasPrefix(rest, ".") || strings.HasPrefix(rest, " ["))
}

// matchesSourceRef only accepts the reference as a delimited token, so a
// short id never matches unrelated names
func matchesSourceRef(name, sourceRef string) bool {
	if sourceRef == "" {
		return false
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return stem == sourceRef || strings.Contains(stem, "["+sourceRef+"]")
}

func isSidecar(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, candidate := range sidecarExtensions {
		if ext == candidate {
			return true
		}
	}
	return false
}
