package tools

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"b2pc/internal/services"
)

// Name is the logical name of an external tool.
type Name string

const (
	Archiver         Name = "archiver"
	DiscPatcher      Name = "disc-patcher"
	ChdManager       Name = "chd-manager"
	DiscTool         Name = "disc-tool"
	SquashfsPacker   Name = "squashfs-packer"
	SquashfsUnpacker Name = "squashfs-unpacker"
)

// Requirement defines an external converter the pipeline shells out to.
type Requirement struct {
	Name        Name
	Binary      string
	Description string
}

// Requirements lists every registered tool in validation order.
var Requirements = []Requirement{
	{Name: Archiver, Binary: "7za", Description: "archive listing and extraction"},
	{Name: DiscPatcher, Binary: "xiso", Description: "Xbox ISO rewrite"},
	{Name: ChdManager, Binary: "chdman", Description: "CHD create/extract/info"},
	{Name: DiscTool, Binary: "dolphin-tool", Description: "GC/Wii header probe and RVZ convert"},
	{Name: SquashfsPacker, Binary: "gensquashfs", Description: "SquashFS pack"},
	{Name: SquashfsUnpacker, Binary: "rdsquashfs", Description: "SquashFS unpack"},
}

// Status reports the availability of one registered tool.
type Status struct {
	Name        Name
	Path        string
	Description string
	Available   bool
	Detail      string
}

// Registry maps logical tool names to executable paths. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	paths map[Name]string
}

// New resolves every registered tool. Overrides are keyed by logical name and
// replace the default binary name; relative values are joined to dir. With an
// empty dir, bare binary names are looked up on PATH.
func New(dir string, overrides map[string]string) *Registry {
	paths := make(map[Name]string, len(Requirements))
	for _, req := range Requirements {
		binary := req.Binary
		if override := strings.TrimSpace(overrides[string(req.Name)]); override != "" {
			binary = override
		}
		paths[req.Name] = resolve(dir, binary)
	}
	return &Registry{paths: paths}
}

// NewFromPaths builds a registry from explicit paths, mainly for tests.
func NewFromPaths(paths map[Name]string) *Registry {
	cp := make(map[Name]string, len(paths))
	for k, v := range paths {
		cp[k] = v
	}
	return &Registry{paths: cp}
}

// Path returns the executable path registered for name.
func (r *Registry) Path(name Name) string {
	if r == nil {
		return ""
	}
	return r.paths[name]
}

// Validate checks that every registered tool exists on disk and fails with
// ErrToolNotFound naming the first missing tool.
func (r *Registry) Validate() error {
	for _, status := range r.Status() {
		if !status.Available {
			return services.Wrap(services.ErrToolNotFound, "", "validate tools",
				fmt.Sprintf("%s %s", status.Name, status.Detail), nil)
		}
	}
	return nil
}

// Status evaluates every registered tool and reports availability.
func (r *Registry) Status() []Status {
	results := make([]Status, 0, len(Requirements))
	for _, req := range Requirements {
		path := r.Path(req.Name)
		status := Status{Name: req.Name, Path: path, Description: req.Description}
		switch info, err := os.Stat(path); {
		case strings.TrimSpace(path) == "":
			status.Detail = "not configured"
		case err != nil:
			status.Detail = fmt.Sprintf("not found at %s", path)
		case info.IsDir():
			status.Detail = fmt.Sprintf("not found at %s (directory)", path)
		default:
			status.Available = true
			if info.Mode().Perm()&0o111 == 0 {
				status.Detail = "not executable"
			}
		}
		results = append(results, status)
	}
	return results
}

func resolve(dir, binary string) string {
	if filepath.IsAbs(binary) {
		return binary
	}
	if dir != "" {
		return filepath.Join(dir, binary)
	}
	if found, err := exec.LookPath(binary); err == nil {
		return found
	}
	return binary
}
