// Package chdinfo reads CHD metadata through `chdman info`.
package chdinfo

import (
	"bufio"
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"b2pc/internal/toolrun"
	"b2pc/internal/tools"
)

// Media kinds reported for a CHD.
const (
	MediaCD  = "CD"
	MediaDVD = "DVD"
)

// dvdThreshold is the logical size above which an image without a telling
// metadata tag is assumed to be a DVD.
const dvdThreshold = 1_500_000_000

// Info describes one CHD file.
type Info struct {
	Path        string
	Version     int
	LogicalSize int64
	FileSize    int64
	Ratio       float64
	Media       string
	Tracks      int
}

// Reader runs chdman info through the shared tool runner.
type Reader struct {
	runner *toolrun.Runner
}

// NewReader constructs a Reader.
func NewReader(runner *toolrun.Runner) *Reader {
	return &Reader{runner: runner}
}

// Read runs `chdman info --input path` and parses the report.
func (r *Reader) Read(ctx context.Context, path string) (Info, error) {
	res, err := r.runner.Run(ctx, toolrun.Invocation{
		Tool: tools.ChdManager,
		Args: []string{"info", "--input", path},
		Item: filepath.Base(path),
	})
	if err != nil {
		return Info{}, fmt.Errorf("chd info %s: %w", filepath.Base(path), err)
	}
	info := Parse(res.Stdout)
	info.Path = path
	return info, nil
}

// Parse extracts the fields b2pc reports from chdman info output.
func Parse(out string) Info {
	var (
		info   Info
		media  string
		cdTags bool
	)
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, ":")
		if ok {
			value = strings.TrimSpace(value)
			switch strings.TrimSpace(key) {
			case "File Version":
				info.Version, _ = strconv.Atoi(value)
			case "Logical size":
				info.LogicalSize = parseBytes(value)
			case "CHD size":
				info.FileSize = parseBytes(value)
			case "Ratio":
				info.Ratio, _ = strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64)
			}
		}
		switch {
		case strings.Contains(line, "Tag='DVD '"):
			media = MediaDVD
		case strings.Contains(line, "Tag='CHTR'"), strings.Contains(line, "Tag='CHT2'"):
			cdTags = true
		}
		if strings.Contains(line, "TRACK:") {
			cdTags = true
			info.Tracks++
		}
	}

	switch {
	case media != "":
		info.Media = media
	case cdTags:
		info.Media = MediaCD
	case info.LogicalSize > dvdThreshold:
		info.Media = MediaDVD
	default:
		info.Media = MediaCD
	}
	return info
}

// parseBytes reads values such as "734,003,200 bytes".
func parseBytes(value string) int64 {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.ParseInt(strings.ReplaceAll(fields[0], ",", ""), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
