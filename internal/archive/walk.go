package archive

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
)

// Extensions are the archive formats the scanner inspects.
var Extensions = []string{".7z", ".zip", ".gz", ".rar"}

// Walk returns the regular files under root whose extension matches exts
// (case-insensitive), in lexical walk order. Directories listed in exclude are
// not descended into.
func Walk(root string, exts []string, exclude ...string) ([]string, error) {
	want := extensionSet(exts)
	skip := make(map[string]struct{}, len(exclude))
	for _, dir := range exclude {
		if dir == "" {
			continue
		}
		if abs, err := filepath.Abs(dir); err == nil {
			skip[abs] = struct{}{}
		}
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if errors.Is(err, fs.ErrPermission) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if abs, err := filepath.Abs(path); err == nil {
				if _, ok := skip[abs]; ok {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if _, ok := want[strings.ToLower(filepath.Ext(path))]; ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// HasExtension reports whether name ends in one of exts (case-insensitive).
func HasExtension(name string, exts []string) bool {
	_, ok := extensionSet(exts)[strings.ToLower(filepath.Ext(name))]
	return ok
}

func extensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return set
}
