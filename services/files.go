package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mediafetch/types"

	"github.com/dhowden/tag"
	"go.uber.org/zap"
)

// FileService interface defines methods for artifact file management
type FileService interface {
	ScanArtifacts(dir string) ([]types.AudioFile, error)
	ReadTags(path string) *types.AudioMetadata
	ValidateFileName(name string) error
	GetContentType(path string) string
}

// fileService implements the FileService interface
type fileService struct {
	logger *zap.Logger
}

// NewFileService creates a new file service
func NewFileService(logger *zap.Logger) FileService {
	return &fileService{logger: logger.With(zap.String("component", "files"))}
}

var contentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".opus": "audio/ogg",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".wav":  "audio/wav",
}

// ScanArtifacts lists finished audio files directly inside dir.
// Hidden files and in-progress files are skipped.
func (fs *fileService) ScanArtifacts(dir string) ([]types.AudioFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []types.AudioFile{}, nil
		}
		return nil, err
	}

	files := []types.AudioFile{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !isArtifactName(name) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			fs.logger.Warn("Could not stat artifact", zap.String("file", name), zap.Error(err))
			continue
		}

		path := filepath.Join(dir, name)
		files = append(files, types.AudioFile{
			Filename: name,
			Size:     info.Size(),
			Format:   strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), "."),
			ModTime:  info.ModTime(),
			Metadata: fs.ReadTags(path),
		})
	}
	return files, nil
}

// ReadTags reads the tags of an audio file, or returns nil when it has none
func (fs *fileService) ReadTags(path string) *types.AudioMetadata {
	file, err := os.Open(path)
	if err != nil {
		fs.logger.Warn("Could not open audio file", zap.String("path", path), zap.Error(err))
		return nil
	}
	defer file.Close()

	meta, err := tag.ReadFrom(file)
	if err != nil {
		fs.logger.Debug("No readable tags", zap.String("path", path), zap.Error(err))
		return nil
	}

	track, _ := meta.Track()
	return &types.AudioMetadata{
		Title:       meta.Title(),
		Artist:      meta.Artist(),
		Album:       meta.Album(),
		Genre:       meta.Genre(),
		Year:        meta.Year(),
		TrackNumber: track,
		HasPicture:  meta.Picture() != nil,
	}
}

// ValidateFileName accepts only a bare file name inside the download directory
func (fs *fileService) ValidateFileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("empty file name not allowed")
	}
	if name == "." || name == ".." {
		return fmt.Errorf("path traversal not allowed")
	}
	if strings.ContainsAny(name, `/\`) || filepath.IsAbs(name) || filepath.Base(name) != name {
		return fmt.Errorf("paths not allowed, only file names")
	}
	if !isArtifactName(name) {
		return fmt.Errorf("not an audio artifact")
	}
	return nil
}

// GetContentType returns the MIME type for an audio file
func (fs *fileService) GetContentType(path string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "application/octet-stream"
}

func isArtifactName(name string) bool {
	if strings.HasPrefix(name, ".") || strings.Contains(name, ".tagging.") {
		return false
	}
	_, ok := contentTypes[strings.ToLower(filepath.Ext(name))]
	return ok
}
