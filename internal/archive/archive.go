package archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"b2pc/internal/report"
	"b2pc/internal/services"
	"b2pc/internal/toolrun"
	"b2pc/internal/tools"
)

// Progress bands for discovery: listing fills 0-10%, extraction 10-30%.
const (
	listBase    = 0
	listBand    = 10
	extractBase = 10
	extractBand = 20
)

// EntrySet is the listing of one archive: every member plus the members to
// extract for the requested target extensions.
type EntrySet struct {
	Archive string
	Members []string
	Targets []string
}

// Result summarizes one discovery pass.
type Result struct {
	Files    []string
	Archives int
	Matched  int
	Ignored  int
	Failed   []error
}

// Archiver drives the external archive tool.
type Archiver struct {
	runner   *toolrun.Runner
	reporter *report.Reporter
}

// New constructs an Archiver.
func New(runner *toolrun.Runner, reporter *report.Reporter) *Archiver {
	return &Archiver{runner: runner, reporter: reporter}
}

// List returns the member paths of an archive using the technical listing
// format of 7-Zip.
func (a *Archiver) List(ctx context.Context, archivePath string) ([]string, error) {
	res, err := a.runner.Run(ctx, toolrun.Invocation{
		Tool: tools.Archiver,
		Args: []string{"l", "-slt", archivePath},
		Item: filepath.Base(archivePath),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, services.Wrap(services.ErrArchiveList, "", "list", filepath.Base(archivePath), err)
	}
	return parseListing(res.Stdout), nil
}

// Inspect lists an archive and selects the members matching targets. A .cue
// target pulls in the .bin members next to it whose name starts with the
// cue's base name; a .gdi target pulls in every .bin and .raw track in its
// directory.
func (a *Archiver) Inspect(ctx context.Context, archivePath string, targets []string) (EntrySet, error) {
	members, err := a.List(ctx, archivePath)
	if err != nil {
		return EntrySet{}, err
	}
	return EntrySet{Archive: archivePath, Members: members, Targets: SelectTargets(members, targets)}, nil
}

// SelectTargets picks the members to extract from a listing.
func SelectTargets(members []string, targets []string) []string {
	selected := make(map[string]struct{})
	var out []string
	add := func(m string) {
		if _, ok := selected[m]; ok {
			return
		}
		selected[m] = struct{}{}
		out = append(out, m)
	}
	for _, m := range members {
		if !HasExtension(m, targets) {
			continue
		}
		add(m)
		dir, base := path.Split(m)
		ext := strings.ToLower(path.Ext(base))
		stem := strings.ToLower(strings.TrimSuffix(base, path.Ext(base)))
		for _, sibling := range members {
			sdir, sbase := path.Split(sibling)
			if sdir != dir {
				continue
			}
			sext := strings.ToLower(path.Ext(sbase))
			switch {
			case ext == ".cue" && sext == ".bin" && binOfCue(stem, sbase):
				add(sibling)
			case ext == ".gdi" && (sext == ".bin" || sext == ".raw"):
				add(sibling)
			}
		}
	}
	return out
}

var trackSuffix = regexp.MustCompile(`^[ _-]*[(\[]?track[ _-]*\d+[)\]]?$`)

// binOfCue reports whether bin is the cue's own image: the same base name, or
// the base name followed by a track suffix such as " (Track 2)".
func binOfCue(cueStem, bin string) bool {
	binStem := strings.ToLower(strings.TrimSuffix(bin, path.Ext(bin)))
	if binStem == cueStem {
		return true
	}
	rest, ok := strings.CutPrefix(binStem, cueStem)
	return ok && trackSuffix.MatchString(rest)
}

// Extract pulls the selected members of set into destDir without their
// archive directories.
func (a *Archiver) Extract(ctx context.Context, set EntrySet, destDir string) error {
	if len(set.Targets) == 0 {
		return nil
	}
	args := append([]string{"e", set.Archive, "-y", "-o" + destDir}, set.Targets...)
	if _, err := a.runner.Run(ctx, toolrun.Invocation{
		Tool: tools.Archiver,
		Args: args,
		Item: filepath.Base(set.Archive),
	}); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return services.Wrap(services.ErrExtraction, "", "extract", filepath.Base(set.Archive), err)
	}
	return nil
}

// Materialize runs the full discovery pass over sourceDir: list every archive,
// extract the ones holding targets into sourceDir, then re-walk sourceDir for
// target files. Listing and extraction failures are isolated per archive and
// collected in Result.Failed. Members already present in sourceDir are not
// extracted again.
func (a *Archiver) Materialize(ctx context.Context, sourceDir string, targets []string, exclude ...string) (Result, error) {
	var result Result
	archives, err := Walk(sourceDir, Extensions, exclude...)
	if err != nil {
		return result, fmt.Errorf("walk source: %w", err)
	}
	result.Archives = len(archives)
	if len(archives) > 0 {
		a.reporter.Logf("%d archive(s) found in source", len(archives))
	}

	var matched []EntrySet
	for i, archivePath := range archives {
		if err := ctx.Err(); err != nil {
			return result, services.Wrap(services.ErrCancelled, "", "scan", "", err)
		}
		a.reporter.Logf("Inspecting %s", filepath.Base(archivePath))
		set, err := a.Inspect(ctx, archivePath, targets)
		a.progress(listBase, listBand, i, len(archives), "Scanning archives")
		switch {
		case ctx.Err() != nil:
			return result, services.Wrap(services.ErrCancelled, "", "scan", "", ctx.Err())
		case err != nil:
			a.reporter.Logf("Skipping %s: %v", filepath.Base(archivePath), err)
			result.Failed = append(result.Failed, err)
		case len(set.Targets) == 0:
			a.reporter.Logf("No matching files in %s, ignored", filepath.Base(archivePath))
			result.Ignored++
		default:
			matched = append(matched, set)
		}
	}
	result.Matched = len(matched)

	for i, set := range matched {
		if err := ctx.Err(); err != nil {
			return result, services.Wrap(services.ErrCancelled, "", "extract", "", err)
		}
		for _, c := range flattenCollisions(set.Targets) {
			a.reporter.Logf("Warning: %s and %s in %s both extract to %s; only the last is kept",
				c[0], c[1], filepath.Base(set.Archive), path.Base(c[1]))
		}
		set.Targets = missingIn(sourceDir, set.Targets)
		if len(set.Targets) == 0 {
			a.reporter.Logf("%s already extracted", filepath.Base(set.Archive))
		} else {
			a.reporter.Logf("Extracting %d file(s) from %s", len(set.Targets), filepath.Base(set.Archive))
			if err := a.Extract(ctx, set, sourceDir); err != nil {
				if ctx.Err() != nil {
					return result, services.Wrap(services.ErrCancelled, "", "extract", "", ctx.Err())
				}
				a.reporter.Logf("Extraction of %s failed: %v", filepath.Base(set.Archive), err)
				result.Failed = append(result.Failed, err)
			}
		}
		a.progress(extractBase, extractBand, i, len(matched), "Extracting archives")
	}

	files, err := Walk(sourceDir, targets, exclude...)
	if err != nil {
		return result, fmt.Errorf("walk source: %w", err)
	}
	result.Files = files
	a.reporter.Progress(report.ProgressEvent{TotalProgress: extractBase + extractBand, Stage: "Discovery complete"})
	return result, nil
}

func (a *Archiver) progress(base, band float64, index, total int, stage string) {
	a.reporter.Progress(report.ProgressEvent{
		TotalProgress:       report.Scale(base, band, index, total, 100),
		CurrentFileProgress: 100,
		Stage:               stage,
		CurrentItem:         index + 1,
		TotalItems:          total,
	})
}

// flattenCollisions returns pairs of members that share a base name and so
// overwrite each other when extracted without their folders.
func flattenCollisions(members []string) [][2]string {
	first := make(map[string]string, len(members))
	var out [][2]string
	for _, m := range members {
		base := path.Base(m)
		if prev, ok := first[base]; ok {
			out = append(out, [2]string{prev, m})
			continue
		}
		first[base] = m
	}
	return out
}

func missingIn(dir string, members []string) []string {
	var out []string
	for _, m := range members {
		if _, err := os.Stat(filepath.Join(dir, path.Base(m))); err == nil {
			continue
		}
		out = append(out, m)
	}
	return out
}

// parseListing extracts member paths from `7za l -slt` output. Entries before
// the "----------" separator describe the archive itself; folder entries are
// dropped.
func parseListing(out string) []string {
	var (
		members  []string
		inBody   bool
		current  string
		isFolder bool
	)
	flush := func() {
		if current != "" && !isFolder {
			members = append(members, filepath.ToSlash(current))
		}
		current, isFolder = "", false
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, "----------") {
			inBody = true
			continue
		}
		if !inBody {
			continue
		}
		key, value, ok := strings.Cut(line, " = ")
		if !ok {
			continue
		}
		switch key {
		case "Path":
			flush()
			current = value
		case "Folder":
			isFolder = value == "+"
		case "Attributes":
			if strings.HasPrefix(value, "D") {
				isFolder = true
			}
		}
	}
	flush()
	return members
}
