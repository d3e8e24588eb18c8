package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"b2pc/internal/services"
)

// Operation names one of the fixed conversions.
type Operation string

const (
	PatchXboxISO     Operation = "patch-xbox-iso"
	ConvertToCHD     Operation = "convert-to-chd"
	ExtractCHD       Operation = "extract-chd"
	ConvertToRVZ     Operation = "convert-to-rvz"
	CompressSquashFS Operation = "compress-wsquashfs"
	ExtractSquashFS  Operation = "extract-wsquashfs"
	MergeBinCue      Operation = "merge-bin-cue"
)

// Destination subfolders created under the destination directory.
const (
	xboxDir            = "xbox"
	chdDir             = "CHD"
	extractedCHDDir    = "Extracted_CHD"
	rvzDir             = "RVZ"
	compressedSquashfs = "Compressed_SquashFS"
	extractedSquashfs  = "Extracted_SquashFS"
	tempCHDDir         = "Temp_CHD"
	mergedCueDir       = "Merged_CUE"
)

// Compression levels accepted by the SquashFS packer.
const (
	CompressionFast    = "fast"
	CompressionMedium  = "medium"
	CompressionMaximum = "maximum"
)

var compressors = map[string]string{
	CompressionFast:    "lz4",
	CompressionMedium:  "zstd",
	CompressionMaximum: "xz",
}

// Compressor maps a compression level to the packer codec.
func Compressor(level string) (string, error) {
	codec, ok := compressors[strings.ToLower(strings.TrimSpace(level))]
	if !ok {
		return "", services.Wrap(services.ErrInvalidOption, string(CompressSquashFS), "compression level",
			fmt.Sprintf("%q is not one of fast, medium, maximum", level), nil)
	}
	return codec, nil
}

// Operations lists every supported operation in a stable order.
func Operations() []Operation {
	ops := make([]Operation, 0, len(definitions))
	for op := range definitions {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// ParseOperation resolves a name to an Operation.
func ParseOperation(name string) (Operation, error) {
	op := Operation(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := definitions[op]; !ok {
		return "", services.Wrap(services.ErrInvalidOption, "", "operation", fmt.Sprintf("unknown operation %q", name), nil)
	}
	return op, nil
}

// Describe returns a one-line description of op.
func (op Operation) Describe() string {
	if def, ok := definitions[op]; ok {
		return def.description
	}
	return ""
}
