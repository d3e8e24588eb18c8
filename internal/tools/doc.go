// Package tools is the registry of external converters: the archiver, the
// Xbox disc patcher, chdman, dolphin-tool and the SquashFS packer/unpacker.
//
// Paths are resolved once from the configured resource directory (or PATH)
// and validated before every pipeline run.
package tools
