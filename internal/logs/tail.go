package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const timestampLayout = "20060102T150405Z"

// ErrNoLogs is returned by Latest when no run log matches.
var ErrNoLogs = errors.New("no run logs found")

// File is one run log.
type File struct {
	Path      string
	Operation string
	Started   time.Time
	Size      int64
}

// List returns the run logs in dir, newest first. Files that do not follow
// the run log naming are ignored.
func List(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read log directory: %w", err)
	}
	var files []File
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		op, started, ok := parseName(entry.Name())
		if !ok {
			continue
		}
		f := File{Path: filepath.Join(dir, entry.Name()), Operation: op, Started: started}
		if info, err := entry.Info(); err == nil {
			f.Size = info.Size()
		}
		files = append(files, f)
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].Started.After(files[j].Started) })
	return files, nil
}

// Latest returns the newest run log, optionally restricted to one operation.
func Latest(dir, operation string) (File, error) {
	files, err := List(dir)
	if err != nil {
		return File{}, err
	}
	for _, f := range files {
		if operation == "" || f.Operation == operation {
			return f, nil
		}
	}
	return File{}, ErrNoLogs
}

func parseName(name string) (string, time.Time, bool) {
	stem, ok := strings.CutSuffix(name, ".log")
	if !ok {
		return "", time.Time{}, false
	}
	idx := strings.LastIndex(stem, "-")
	if idx <= 0 {
		return "", time.Time{}, false
	}
	started, err := time.Parse(timestampLayout, stem[idx+1:])
	if err != nil {
		return "", time.Time{}, false
	}
	return stem[:idx], started, true
}

// Last returns up to n trailing lines of path and the offset of its end.
func Last(path string, n int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	var ring []string
	if n > 0 {
		ring = make([]string, 0, n)
	}
	scanner := newScanner(file)
	for scanner.Scan() {
		if n <= 0 {
			continue
		}
		if len(ring) == n {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}
	end, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, 0, fmt.Errorf("seek log file: %w", err)
	}
	return ring, end, nil
}

// Follow emits every complete line appended to path after offset, polling
// every poll interval until ctx ends. A truncated file is reread from the
// start.
func Follow(ctx context.Context, path string, offset int64, poll time.Duration, emit func(string)) error {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		next, err := readFrom(path, offset, emit)
		if err != nil {
			return err
		}
		offset = next
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			// A partial last line is picked up on the next poll.
			return offset, nil
		}
		if err != nil {
			return offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		emit(strings.TrimRight(line, "\r\n"))
	}
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return scanner
}
