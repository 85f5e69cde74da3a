package services

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanArtifacts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"Channel - Title.mp3",
		"Other.m4a",
		"Channel - Title.tagging.mp3",
		"Title.jpg",
		".hidden.mp3",
		"notes.txt",
	} {
		mustWriteFile(t, filepath.Join(dir, name), "not really audio")
	}
	mustWriteFile(t, filepath.Join(dir, "sub", "nested.mp3"), "x")

	fs := NewFileService(testLogger())
	files, err := fs.ScanArtifacts(dir)
	require.NoError(t, err)

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Filename)
		assert.Nil(t, f.Metadata, "untagged files have no metadata")
	}
	assert.ElementsMatch(t, []string{"Channel - Title.mp3", "Other.m4a"}, names)
}

func TestScanArtifactsMissingDirectory(t *testing.T) {
	fs := NewFileService(testLogger())
	files, err := fs.ScanArtifacts(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestValidateFileName(t *testing.T) {
	fs := NewFileService(testLogger())

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "plain artifact", input: "Channel - Title.mp3"},
		{name: "unicode", input: "Café – Ü.mp3"},
		{name: "empty", input: " ", wantErr: true},
		{name: "trailing dots in title", input: "Chan - Wait...mp3"},
		{name: "inner dots", input: "Chan - a..b.mp3"},
		{name: "traversal", input: "../secret.mp3", wantErr: true},
		{name: "parent", input: "..", wantErr: true},
		{name: "nested path", input: "sub/file.mp3", wantErr: true},
		{name: "windows path", input: `sub\file.mp3`, wantErr: true},
		{name: "absolute", input: "/etc/passwd", wantErr: true},
		{name: "not audio", input: "jobs.db", wantErr: true},
		{name: "hidden", input: ".env.mp3", wantErr: true},
		{name: "in progress", input: "Title.tagging.mp3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fs.ValidateFileName(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetContentType(t *testing.T) {
	fs := NewFileService(testLogger())
	assert.Equal(t, "audio/mpeg", fs.GetContentType("a/b/Song.MP3"))
	assert.Equal(t, "audio/mp4", fs.GetContentType("Song.m4a"))
	assert.Equal(t, "application/octet-stream", fs.GetContentType("Song.bin"))
}
