package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"mediafetch/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFFmpegArgs(t *testing.T) {
	meta := types.Metadata{Title: "Song", Artist: "Artist", Year: "2009", Album: " "}

	t.Run("with cover", func(t *testing.T) {
		args := buildFFmpegArgs("in.mp3", "in.jpg", "out.mp3", meta)
		assert.Equal(t, []string{
			"-hide_banner", "-nostdin", "-loglevel", "error", "-y",
			"-i", "in.mp3",
			"-i", "in.jpg",
			"-map_metadata", "-1",
			"-map", "0:a",
			"-c:a", "copy",
			"-map", "1:v",
			"-c:v", "copy",
			"-disposition:v:0", "attached_pic",
			"-metadata:s:v", "title=Album cover",
			"-metadata:s:v", "comment=Cover (front)",
			"-id3v2_version", "3",
			"-metadata", "title=Song",
			"-metadata", "artist=Artist",
			"-metadata", "date=2009",
			"out.mp3",
		}, args)
	})

	t.Run("tags only", func(t *testing.T) {
		args := buildFFmpegArgs("in.mp3", "", "out.mp3", types.Metadata{Genre: "Rock"})
		assert.Equal(t, []string{
			"-hide_banner", "-nostdin", "-loglevel", "error", "-y",
			"-i", "in.mp3",
			"-map_metadata", "-1",
			"-map", "0:a",
			"-c:a", "copy",
			"-id3v2_version", "3",
			"-metadata", "genre=Rock",
			"out.mp3",
		}, args)
	})
}

func TestPostProcessorReplacesSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Channel - Title.mp3")
	thumb := filepath.Join(dir, "Channel - Title.jpg")
	mustWriteFile(t, src, "untagged")
	mustWriteFile(t, thumb, "image")

	var gotArgs []string
	runner := &fakeRunner{
		run: func(ctx context.Context, onLine func(string), name string, args ...string) (commandResult, error) {
			gotArgs = args
			mustWriteFile(t, args[len(args)-1], "tagged")
			return commandResult{}, nil
		},
	}

	post := newPostProcessor("ffmpeg", runner, testLogger())
	path, err := post.Run(context.Background(), PostProcessRequest{
		SourcePath:    src,
		Metadata:      types.Metadata{Title: "Title"},
		ThumbnailPath: thumb,
	})
	require.NoError(t, err)

	assert.Equal(t, src, path)
	assert.Equal(t, "tagged", readFile(t, src))
	assert.Equal(t, filepath.Join(dir, "Channel - Title.tagging.mp3"), gotArgs[len(gotArgs)-1])
	assert.Equal(t, thumb, gotArgs[8])
	assert.ElementsMatch(t, []string{"Channel - Title.mp3", "Channel - Title.jpg"}, listDir(t, dir))
}

func TestPostProcessorFailureKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Title.mp3")
	mustWriteFile(t, src, "untagged")

	runner := &fakeRunner{
		run: func(ctx context.Context, onLine func(string), name string, args ...string) (commandResult, error) {
			// half-written output before the crash
			mustWriteFile(t, args[len(args)-1], "partial")
			return commandResult{Stderr: "Invalid data found when processing input", ExitCode: 1}, errors.New("exit status 1")
		},
	}

	post := newPostProcessor("ffmpeg", runner, testLogger())
	path, err := post.Run(context.Background(), PostProcessRequest{
		SourcePath: src,
		Metadata:   types.Metadata{Artist: "Artist"},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPostProcessingFailed)
	assert.Contains(t, err.Error(), "Invalid data")
	assert.Equal(t, src, path)
	assert.Equal(t, "untagged", readFile(t, src))
	assert.Equal(t, []string{"Title.mp3"}, listDir(t, dir))
}

func TestPostProcessorEmptyOutputKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Title.mp3")
	mustWriteFile(t, src, "untagged")

	runner := &fakeRunner{
		run: func(ctx context.Context, onLine func(string), name string, args ...string) (commandResult, error) {
			mustWriteFile(t, args[len(args)-1], "")
			return commandResult{}, nil
		},
	}

	post := newPostProcessor("ffmpeg", runner, testLogger())
	_, err := post.Run(context.Background(), PostProcessRequest{SourcePath: src, Metadata: types.Metadata{Title: "T"}})

	assert.ErrorIs(t, err, ErrPostProcessingFailed)
	assert.Equal(t, "untagged", readFile(t, src))
	assert.Equal(t, []string{"Title.mp3"}, listDir(t, dir))
}

func TestPostProcessorDropsMissingThumbnail(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Title.mp3")
	mustWriteFile(t, src, "untagged")

	var gotArgs []string
	runner := &fakeRunner{
		run: func(ctx context.Context, onLine func(string), name string, args ...string) (commandResult, error) {
			gotArgs = args
			mustWriteFile(t, args[len(args)-1], "tagged")
			return commandResult{}, nil
		},
	}

	post := newPostProcessor("", runner, testLogger())
	_, err := post.Run(context.Background(), PostProcessRequest{
		SourcePath:    src,
		Metadata:      types.Metadata{Title: "T"},
		ThumbnailPath: filepath.Join(dir, "gone.jpg"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, runner.callCount("ffmpeg"))
	assert.False(t, hasArg(gotArgs, "attached_pic"))
	assert.False(t, hasArg(gotArgs, filepath.Join(dir, "gone.jpg")))
}

func TestPostProcessorMissingSource(t *testing.T) {
	runner := &fakeRunner{}

	post := newPostProcessor("ffmpeg", runner, testLogger())
	_, err := post.Run(context.Background(), PostProcessRequest{SourcePath: filepath.Join(t.TempDir(), "nope.mp3")})

	assert.ErrorIs(t, err, ErrPostProcessingFailed)
	assert.Equal(t, 0, runner.callCount("ffmpeg"))
}

func TestCleanupSidecars(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"Channel - Title.jpg",
		"Channel - Title.webp",
		"dQw4w9WgXcQ.png",
		"Channel - Title [dQw4w9WgXcQ].jpg",
		"Channel - Title (2).jpg",
		"Other.jpg",
		"Channel - Title.mp3",
	} {
		mustWriteFile(t, filepath.Join(dir, name), "x")
	}

	removed := CleanupSidecars(dir, "Channel - Title", "dQw4w9WgXcQ", testLogger())
	assert.Len(t, removed, 4)
	assert.ElementsMatch(t, []string{"Channel - Title (2).jpg", "Other.jpg", "Channel - Title.mp3"}, listDir(t, dir))
}

func TestCleanupSidecarsIgnoresURLReference(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, filepath.Join(dir, "https.jpg"), "x")

	removed := CleanupSidecars(dir, "Title", "https://www.youtube.com/watch?v=abc", testLogger())
	assert.Empty(t, removed)
	assert.Equal(t, []string{"https.jpg"}, listDir(t, dir))
}

func TestCleanupSidecarsShortReference(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"a.jpg",
		"x [a].webp",
		"Other Channel - Track.jpg",
		"Channel - Song [abc].jpg",
		"bad.png",
	} {
		mustWriteFile(t, filepath.Join(dir, name), "x")
	}

	removed := CleanupSidecars(dir, "a", "a", testLogger())
	assert.Len(t, removed, 2)
	assert.ElementsMatch(t, []string{"Other Channel - Track.jpg", "Channel - Song [abc].jpg", "bad.png"}, listDir(t, dir))
}
