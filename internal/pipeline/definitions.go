package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"b2pc/internal/archive"
	"b2pc/internal/cuesheet"
	"b2pc/internal/fileutil"
	"b2pc/internal/report"
	"b2pc/internal/services"
	"b2pc/internal/toolrun"
	"b2pc/internal/tools"
)

// Fixed tool arguments.
const (
	rvzBlockSize      = "131072"
	rvzCompressor     = "zstd"
	rvzLevel          = "5"
	squashfsBlockSize = "1048576"
	squashfsJobs      = "8"
)

// definition describes what varies between operations. Everything else is
// shared by run.
type definition struct {
	op          Operation
	description string
	stage       string
	// subdirs are created under the destination; the last one holds the
	// final outputs.
	subdirs []string
	// targets are the extensions discovered in the source tree and inside
	// archives.
	targets []string
	// cleanupExts are the source extensions removed when cleanup is confirmed.
	cleanupExts []string

	plan         func(r *run, source string) *Item
	process      func(ctx context.Context, r *run, it *Item, w toolrun.Window) error
	discoverFn   func(ctx context.Context, r *run) ([]*Item, error)
	validateFn   func(r *run, it *Item) error
	existsFn     func(it *Item) bool
	cleanupFn    func(r *run) ([]string, error)
	afterCleanup func(r *run)
}

var definitions = map[Operation]*definition{
	PatchXboxISO: {
		op:          PatchXboxISO,
		description: "Rewrite Xbox ISOs with the disc patcher into <dest>/xbox",
		stage:       "Patching Xbox ISO",
		subdirs:     []string{xboxDir},
		targets:     []string{".iso"},
		cleanupExts: []string{".iso", ".old"},
		plan: func(r *run, source string) *Item {
			out := filepath.Join(r.dir(xboxDir), filepath.Base(source))
			it := newItem(source, out)
			it.scratch = []string{out + ".old", patchedArtifact(out)}
			return it
		},
		process: patchXbox,
	},
	ConvertToCHD: {
		op:          ConvertToCHD,
		description: "Convert CUE/BIN, GDI and ISO images to CHD into <dest>/CHD",
		stage:       "Converting to CHD",
		subdirs:     []string{chdDir},
		targets:     []string{".cue", ".gdi", ".iso"},
		cleanupExts: []string{".cue", ".bin", ".gdi", ".raw", ".iso"},
		plan: func(r *run, source string) *Item {
			return newItem(source, filepath.Join(r.dir(chdDir), stem(source)+".chd"))
		},
		process: func(ctx context.Context, r *run, it *Item, w toolrun.Window) error {
			_, err := r.runner.Run(ctx, toolrun.Invocation{
				Tool:     tools.ChdManager,
				Args:     []string{"createcd", "-i", it.Source, "-o", it.Output()},
				Dir:      r.dir(chdDir),
				Item:     it.Name(),
				Progress: w,
			})
			return err
		},
	},
	ExtractCHD: {
		op:          ExtractCHD,
		description: "Extract CHD images to CUE/BIN into <dest>/Extracted_CHD",
		stage:       "Extracting CHD",
		subdirs:     []string{extractedCHDDir},
		targets:     []string{".chd"},
		cleanupExts: []string{".chd"},
		plan: func(r *run, source string) *Item {
			base := filepath.Join(r.dir(extractedCHDDir), stem(source))
			return newItem(source, base+".cue", base+".bin")
		},
		process: func(ctx context.Context, r *run, it *Item, w toolrun.Window) error {
			_, err := r.runner.Run(ctx, toolrun.Invocation{
				Tool:     tools.ChdManager,
				Args:     []string{"extractcd", "-i", it.Source, "-o", it.Outputs[0], "-ob", it.Outputs[1]},
				Dir:      r.dir(extractedCHDDir),
				Item:     it.Name(),
				Progress: w,
			})
			return err
		},
	},
	ConvertToRVZ: {
		op:          ConvertToRVZ,
		description: "Convert GameCube/Wii ISOs to RVZ into <dest>/RVZ",
		stage:       "Converting to RVZ",
		subdirs:     []string{rvzDir},
		targets:     []string{".iso"},
		cleanupExts: []string{".iso"},
		plan: func(r *run, source string) *Item {
			return newItem(source, filepath.Join(r.dir(rvzDir), stem(source)+".rvz"))
		},
		process: convertRVZ,
	},
	CompressSquashFS: {
		op:          CompressSquashFS,
		description: "Pack each top-level source folder into <dest>/Compressed_SquashFS/<name>.wsquashfs",
		stage:       "Compressing to wSquashFS",
		subdirs:     []string{compressedSquashfs},
		plan: func(r *run, source string) *Item {
			out := filepath.Join(r.dir(compressedSquashfs), filepath.Base(source)+".wsquashfs")
			it := newItem(source, out)
			it.scratch = []string{strings.TrimSuffix(out, ".wsquashfs") + ".squashfs"}
			return it
		},
		process:    compressFolder,
		discoverFn: discoverFolders,
		cleanupFn:  processedFolders,
	},
	ExtractSquashFS: {
		op:          ExtractSquashFS,
		description: "Unpack .wsquashfs images into <dest>/Extracted_SquashFS/<name>",
		stage:       "Extracting wSquashFS",
		subdirs:     []string{extractedSquashfs},
		targets:     []string{".wsquashfs"},
		cleanupExts: []string{".wsquashfs"},
		plan: func(r *run, source string) *Item {
			return newItem(source, filepath.Join(r.dir(extractedSquashfs), stem(source)))
		},
		process: func(ctx context.Context, r *run, it *Item, w toolrun.Window) error {
			_, err := r.runner.Run(ctx, toolrun.Invocation{
				Tool:     tools.SquashfsUnpacker,
				Args:     []string{"--unpack-path", "/", "--unpack-root", it.Output(), it.Source},
				Dir:      r.dir(extractedSquashfs),
				Item:     it.Name(),
				Progress: w,
			})
			return err
		},
		validateFn: func(r *run, it *Item) error {
			if !fileutil.NonEmptyDir(it.Output()) {
				return services.Wrap(services.ErrOutputValidation, string(ExtractSquashFS), "validate",
					fmt.Sprintf("%s missing or empty", filepath.Base(it.Output())), nil)
			}
			return nil
		},
	},
	MergeBinCue: {
		op:          MergeBinCue,
		description: "Merge multi-bin CUE sheets into one CUE/BIN pair in <dest>/Merged_CUE via <dest>/Temp_CHD",
		stage:       "Merging BIN/CUE",
		subdirs:     []string{tempCHDDir, mergedCueDir},
		targets:     []string{".cue"},
		plan: func(r *run, source string) *Item {
			base := filepath.Join(r.dir(mergedCueDir), stem(source))
			it := newItem(source, base+".cue", base+".bin")
			it.scratch = []string{intermediateCHD(r, source)}
			return it
		},
		process:      mergeCue,
		discoverFn:   discoverMultiBin,
		cleanupFn:    mergedSources,
		afterCleanup: purgeTempCHD,
	},
}

func (d *definition) discover(ctx context.Context, r *run) ([]*Item, error) {
	if d.discoverFn != nil {
		return d.discoverFn(ctx, r)
	}
	files, err := materialize(ctx, r)
	if err != nil {
		return nil, err
	}
	items := make([]*Item, 0, len(files))
	for _, f := range files {
		items = append(items, d.plan(r, f))
	}
	return items, nil
}

func (d *definition) validate(r *run, it *Item) error {
	if d.validateFn != nil {
		return d.validateFn(r, it)
	}
	for _, out := range it.Outputs {
		if !fileutil.NonEmptyFile(out) {
			return services.Wrap(services.ErrOutputValidation, string(d.op), "validate",
				fmt.Sprintf("%s missing or empty", filepath.Base(out)), nil)
		}
	}
	return nil
}

// exists reports whether every output of it is already present.
func (d *definition) exists(it *Item) bool {
	if d.existsFn != nil {
		return d.existsFn(it)
	}
	for _, out := range it.Outputs {
		if !fileutil.Exists(out) {
			return false
		}
	}
	return len(it.Outputs) > 0
}

func (d *definition) cleanupTargets(r *run) ([]string, error) {
	if d.cleanupFn != nil {
		return d.cleanupFn(r)
	}
	return archive.Walk(r.req.Source, d.cleanupExts, r.excluded()...)
}

// materialize runs archive discovery and folds its counters into the summary.
func materialize(ctx context.Context, r *run) ([]string, error) {
	res, err := r.archiver.Materialize(ctx, r.req.Source, r.def.targets, r.excluded()...)
	r.summary.IgnoredArchives = res.Ignored
	r.summary.ArchiveErrors = len(res.Failed)
	r.summary.ErrorCount += len(res.Failed)
	return res.Files, err
}

func patchXbox(ctx context.Context, r *run, it *Item, w toolrun.Window) error {
	out := it.Output()
	before := fileutil.Size(it.Source)
	if err := fileutil.CopyFileVerified(it.Source, out); err != nil {
		return services.Wrap(services.ErrExternalTool, string(PatchXboxISO), "stage copy", it.Name(), err)
	}
	if _, err := r.runner.Run(ctx, toolrun.Invocation{
		Tool:     tools.DiscPatcher,
		Args:     []string{"-r", out},
		Dir:      filepath.Dir(out),
		Item:     it.Name(),
		Progress: w,
	}); err != nil {
		return err
	}

	if patched := patchedArtifact(out); fileutil.NonEmptyFile(patched) {
		if err := os.Rename(patched, out); err != nil {
			return services.Wrap(services.ErrOutputValidation, string(PatchXboxISO), "finalize", filepath.Base(patched), err)
		}
	}
	for _, rmErr := range fileutil.RemoveAll(out + ".old") {
		r.reporter.Logf("Could not remove backup: %v", rmErr)
	}

	after := fileutil.Size(out)
	if before > 0 && after > 0 && after < before {
		r.summary.Optimized++
		r.reporter.Logf("Optimized %s: %s -> %s", it.Name(), humanize.IBytes(uint64(before)), humanize.IBytes(uint64(after)))
	}
	return nil
}

// patchedArtifact is the side output some disc patcher builds write next to
// the rewritten image.
func patchedArtifact(out string) string {
	return strings.TrimSuffix(out, filepath.Ext(out)) + "_patched.iso"
}

func convertRVZ(ctx context.Context, r *run, it *Item, w toolrun.Window) error {
	if err := probeDisc(ctx, r, it); err != nil {
		return err
	}
	_, err := r.runner.Run(ctx, toolrun.Invocation{
		Tool: tools.DiscTool,
		Args: []string{
			"convert", "-i", it.Source, "-o", it.Output(),
			"-f", "rvz", "-b", rvzBlockSize, "-c", rvzCompressor, "-l", rvzLevel,
		},
		Dir:      r.dir(rvzDir),
		Item:     it.Name(),
		Progress: w,
	})
	return err
}

// probeDisc reads the disc header; an image without a readable GC/Wii
// header is incompatible.
func probeDisc(ctx context.Context, r *run, it *Item) error {
	res, err := r.runner.Run(ctx, toolrun.Invocation{
		Tool: tools.DiscTool,
		Args: []string{"header", "-i", it.Source},
		Item: it.Name(),
	})
	switch {
	case err != nil && (ctx.Err() != nil || errors.Is(err, services.ErrToolTimeout)):
		return err
	case err != nil:
		return services.Wrap(services.ErrIncompatibleInput, string(ConvertToRVZ), "header probe",
			fmt.Sprintf("%s is not a GC/Wii disc image", it.Name()), err)
	case strings.TrimSpace(res.Stdout) == "":
		return services.Wrap(services.ErrIncompatibleInput, string(ConvertToRVZ), "header probe",
			fmt.Sprintf("%s: no disc header reported", it.Name()), nil)
	}
	return nil
}

// discoverFolders lists the top-level source folders; archives are not
// inspected for this operation.
func discoverFolders(ctx context.Context, r *run) ([]*Item, error) {
	entries, err := os.ReadDir(r.req.Source)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	skip := make(map[string]struct{})
	for _, dir := range r.excluded() {
		skip[destKey(dir)] = struct{}{}
	}

	var items []*Item
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(r.req.Source, entry.Name())
		if _, ok := skip[destKey(path)]; ok {
			continue
		}
		items = append(items, r.def.plan(r, path))
	}
	r.reporter.Logf("%d folder(s) found in source", len(items))
	r.reporter.Progress(report.ProgressEvent{TotalProgress: discoveryEnd, Stage: "Discovery complete"})
	return items, ctx.Err()
}

func compressFolder(ctx context.Context, r *run, it *Item, w toolrun.Window) error {
	packed := it.scratch[0]
	if _, err := r.runner.Run(ctx, toolrun.Invocation{
		Tool: tools.SquashfsPacker,
		Args: []string{
			"--pack-dir", it.Source, packed,
			"--compressor", r.codec,
			"--block-size", squashfsBlockSize,
			"--num-jobs", squashfsJobs,
		},
		Dir:      r.dir(compressedSquashfs),
		Item:     it.Name(),
		Progress: w,
	}); err != nil {
		return err
	}
	if !fileutil.NonEmptyFile(packed) {
		return services.Wrap(services.ErrOutputValidation, string(CompressSquashFS), "validate",
			fmt.Sprintf("%s missing or empty", filepath.Base(packed)), nil)
	}
	if err := os.Rename(packed, it.Output()); err != nil {
		return services.Wrap(services.ErrOutputValidation, string(CompressSquashFS), "rename", filepath.Base(packed), err)
	}
	return nil
}

// processedFolders returns the source folders that now have a packed image.
func processedFolders(r *run) ([]string, error) {
	var out []string
	for _, it := range r.summary.Items {
		if it.Status == StatusSucceeded || it.Status == StatusSkipped {
			out = append(out, it.Source)
		}
	}
	return out, nil
}

// discoverMultiBin keeps only cue sheets that reference more than one bin,
// all present next to the sheet. Filtered sheets are counted as ignored.
func discoverMultiBin(ctx context.Context, r *run) ([]*Item, error) {
	files, err := materialize(ctx, r)
	if err != nil {
		return nil, err
	}
	var items []*Item
	for _, path := range files {
		name := filepath.Base(path)
		sheet, err := cuesheet.Parse(path)
		if err != nil {
			r.reporter.Logf("Ignoring %s: %v", name, err)
			r.summary.IgnoredCues++
			continue
		}
		found, missing, err := sheet.Resolve()
		switch {
		case err != nil:
			r.reporter.Logf("Ignoring %s: %v", name, err)
		case len(missing) > 0:
			r.reporter.Logf("Ignoring %s: missing %s", name, strings.Join(missing, ", "))
		case len(found) < 2:
			r.reporter.Logf("Ignoring %s: single bin, nothing to merge", name)
		default:
			r.reporter.Logf("Multi-bin cue detected: %s (%d bins)", name, len(found))
			items = append(items, r.def.plan(r, path))
			continue
		}
		r.summary.IgnoredCues++
	}
	return items, nil
}

func intermediateCHD(r *run, cue string) string {
	return filepath.Join(r.dir(tempCHDDir), stem(cue)+".chd")
}

// mergeCue round-trips a multi-bin sheet through an intermediate CHD. The
// item's slot is split in two halves, one per tool call.
func mergeCue(ctx context.Context, r *run, it *Item, w toolrun.Window) error {
	half := func(k int) toolrun.Window {
		sub := w
		sub.Index = 2*w.Index + k
		sub.Total = 2 * w.Total
		return sub
	}

	chd := it.scratch[0]
	if _, err := r.runner.Run(ctx, toolrun.Invocation{
		Tool:     tools.ChdManager,
		Args:     []string{"createcd", "-i", it.Source, "-o", chd},
		Dir:      r.dir(tempCHDDir),
		Item:     it.Name(),
		Progress: half(0),
	}); err != nil {
		return err
	}
	if !fileutil.NonEmptyFile(chd) {
		return services.Wrap(services.ErrOutputValidation, string(MergeBinCue), "validate",
			fmt.Sprintf("intermediate %s missing or empty", filepath.Base(chd)), nil)
	}

	_, err := r.runner.Run(ctx, toolrun.Invocation{
		Tool:     tools.ChdManager,
		Args:     []string{"extractcd", "-i", chd, "-o", it.Outputs[0], "-ob", it.Outputs[1]},
		Dir:      r.dir(mergedCueDir),
		Item:     filepath.Base(chd),
		Progress: half(1),
	})
	return err
}

// mergedSources returns the sheets and tracks of every merged set.
func mergedSources(r *run) ([]string, error) {
	var out []string
	for _, it := range r.summary.Items {
		if it.Status != StatusSucceeded && it.Status != StatusSkipped {
			continue
		}
		sheet, err := cuesheet.Parse(it.Source)
		if err != nil {
			return nil, err
		}
		found, _, err := sheet.Resolve()
		if err != nil {
			return nil, err
		}
		out = append(out, it.Source)
		out = append(out, found...)
	}
	return out, nil
}

// purgeTempCHD empties the intermediate CHD folder and removes it.
func purgeTempCHD(r *run) {
	dir := r.dir(tempCHDDir)
	chds, err := archive.Walk(dir, []string{".chd"})
	if err != nil {
		r.reporter.Logf("Could not list %s: %v", dir, err)
		return
	}
	for _, errRm := range fileutil.RemoveAll(chds...) {
		r.reporter.Logf("Could not remove intermediate CHD: %v", errRm)
	}
	if err := os.Remove(dir); err == nil {
		r.reporter.Logf("Removed %s", dir)
	}
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
