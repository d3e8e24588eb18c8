// Package cuesheet reads the FILE entries of CUE sheets.
package cuesheet

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// File is one FILE entry of a sheet.
type File struct {
	Name string
	Type string
}

// Sheet is the parsed content of a .cue file.
type Sheet struct {
	Path  string
	Files []File
}

// Parse reads the sheet at path. Sheets that are not valid UTF-8 are decoded
// as Windows-1252, the code page most legacy rippers wrote.
func Parse(path string) (*Sheet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cue sheet: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("decode cue sheet: %w", err)
		}
		data = decoded
	}

	sheet := &Sheet{Path: path}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if f, ok := parseFileLine(scanner.Text()); ok {
			sheet.Files = append(sheet.Files, f)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan cue sheet: %w", err)
	}
	return sheet, nil
}

func parseFileLine(line string) (File, bool) {
	line = strings.TrimSpace(line)
	if len(line) < 5 || !strings.EqualFold(line[:4], "FILE") || (line[4] != ' ' && line[4] != '\t') {
		return File{}, false
	}
	rest := strings.TrimSpace(line[5:])
	var name string
	if strings.HasPrefix(rest, `"`) {
		end := strings.LastIndex(rest, `"`)
		if end <= 0 {
			return File{}, false
		}
		name = rest[1:end]
		rest = rest[end+1:]
	} else {
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return File{}, false
		}
		name = fields[0]
		rest = strings.TrimPrefix(rest, name)
	}
	if name == "" {
		return File{}, false
	}
	return File{Name: name, Type: strings.ToUpper(strings.TrimSpace(rest))}, true
}

// BinFiles returns the FILE entries whose name ends in .bin.
func (s *Sheet) BinFiles() []string {
	var out []string
	for _, f := range s.Files {
		if strings.EqualFold(filepath.Ext(f.Name), ".bin") {
			out = append(out, f.Name)
		}
	}
	return out
}

// Resolve locates every referenced .bin next to the sheet, matching names
// case-insensitively. It returns the on-disk paths found and the names that
// are missing or point outside the sheet's directory.
func (s *Sheet) Resolve() (found []string, missing []string, err error) {
	dir := filepath.Dir(s.Path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read cue directory: %w", err)
	}
	byName := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			byName[strings.ToLower(entry.Name())] = entry.Name()
		}
	}
	for _, name := range s.BinFiles() {
		clean := filepath.ToSlash(name)
		if strings.Contains(clean, "/") {
			missing = append(missing, name)
			continue
		}
		actual, ok := byName[strings.ToLower(clean)]
		if !ok {
			missing = append(missing, name)
			continue
		}
		found = append(found, filepath.Join(dir, actual))
	}
	return found, missing, nil
}
