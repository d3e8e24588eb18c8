package toolrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"
)

// Stream identifies which pipe a line arrived on.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Command is one external process launch.
type Command struct {
	Binary string
	Args   []string
	Dir    string
}

// Executor abstracts command execution for testability. Run returns the exit
// code of a process that ran to completion (zero or not) with a nil error;
// a non-nil error means the process could not be started or was killed.
type Executor interface {
	Run(ctx context.Context, cmd Command, onLine func(Stream, string)) (int, error)
}

// waitDelay bounds how long Run waits for inherited pipes to close after the
// process has been killed.
const waitDelay = 2 * time.Second

// maxPartialLine caps an unterminated line before it is forced out.
const maxPartialLine = 64 * 1024

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, c Command, onLine func(Stream, string)) (int, error) {
	cmd := exec.CommandContext(ctx, c.Binary, c.Args...) //nolint:gosec
	cmd.Dir = c.Dir
	cmd.WaitDelay = waitDelay

	var mu sync.Mutex
	emit := func(stream Stream, line string) {
		if onLine == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		onLine(stream, line)
	}
	stdout := &lineWriter{stream: Stdout, emit: emit}
	stderr := &lineWriter{stream: Stderr, emit: emit}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("start command: %w", err)
	}
	err := cmd.Wait()
	stdout.flush()
	stderr.flush()

	if ctx.Err() != nil {
		return -1, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, fmt.Errorf("wait command: %w", err)
	}
	return 0, nil
}

// lineWriter splits a byte stream on \n and \r so carriage-return progress
// updates arrive as separate lines.
type lineWriter struct {
	stream Stream
	emit   func(Stream, string)
	buf    bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		data := w.buf.Bytes()
		idx := bytes.IndexAny(data, "\r\n")
		if idx < 0 {
			break
		}
		line := string(data[:idx])
		w.buf.Next(idx + 1)
		if line != "" {
			w.emit(w.stream, line)
		}
	}
	if w.buf.Len() > maxPartialLine {
		w.flush()
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	if w.buf.Len() == 0 {
		return
	}
	line := w.buf.String()
	w.buf.Reset()
	w.emit(w.stream, line)
}
