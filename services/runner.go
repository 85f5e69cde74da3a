package services

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"sync"
)

// commandResult is an internal process execution response
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
// onLine, when set, receives every stdout and stderr line as it is
// produced. Calls are serialized.
type commandRunner interface {
	Run(ctx context.Context, onLine func(line string), name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec
type execRunner struct{}

// Run executes one command, streaming the lines of both output streams and
// capturing them. yt-dlp reports progress on stderr once --print is set.
func (r *execRunner) Run(ctx context.Context, onLine func(line string), name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return commandResult{ExitCode: -1}, err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return commandResult{ExitCode: -1}, err
	}
	if err := cmd.Start(); err != nil {
		return commandResult{ExitCode: -1, Stderr: err.Error()}, err
	}

	emit := onLine
	if onLine != nil {
		var mu sync.Mutex
		emit = func(line string) {
			mu.Lock()
			defer mu.Unlock()
			onLine(line)
		}
	}

	var stdout, stderr bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanLines(io.TeeReader(stdoutPipe, &stdout), emit)
	}()
	go func() {
		defer wg.Done()
		scanLines(io.TeeReader(stderrPipe, &stderr), emit)
	}()
	// the pipes must be drained before Wait closes them
	wg.Wait()
	err = cmd.Wait()

	result := commandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		return result, err
	}
	return result, nil
}

// scanLines feeds each line of r to onLine; it keeps reading when onLine is nil
func scanLines(r io.Reader, onLine func(line string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if onLine != nil {
			onLine(scanner.Text())
		}
	}
	// drain anything left after a scanner error so the process never blocks
	_, _ = io.Copy(io.Discard, r)
}
