package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRunner simulates command execution; the injected func plays the tool.
type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	run   func(ctx context.Context, onLine func(string), name string, args ...string) (commandResult, error)
}

func (f *fakeRunner) Run(ctx context.Context, onLine func(string), name string, args ...string) (commandResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()

	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(ctx, onLine, name, args...)
}

func (f *fakeRunner) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.calls {
		if call == name {
			n++
		}
	}
	return n
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// argValue returns the value following flag in args
func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func hasArg(args []string, want string) bool {
	for _, arg := range args {
		if arg == want {
			return true
		}
	}
	return false
}

// ytdlpOutput resolves the --output template the way yt-dlp would for mp3
func ytdlpOutput(args []string) string {
	return strings.ReplaceAll(argValue(args, "--output"), "%(ext)s", "mp3")
}

// listDir returns the names of the entries in dir
func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
