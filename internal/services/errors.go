package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrToolNotFound            = errors.New("tool not found")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	ErrArchiveList             = errors.New("archive list failed")
	ErrExtraction              = errors.New("archive extraction failed")
	ErrToolTimeout             = errors.New("tool timeout")
	ErrIncompatibleInput       = errors.New("incompatible input")
	ErrOutputValidation        = errors.New("output validation failed")
	ErrInvalidOption           = errors.New("invalid option")
	ErrRunInProgress           = errors.New("run already in progress")
	ErrCancelled               = errors.New("run cancelled")
	ErrExternalTool            = errors.New("external tool error")
)

var kinds = []struct {
	marker error
	name   string
}{
	{ErrToolNotFound, "ToolNotFound"},
	{ErrInsufficientPermissions, "InsufficientPermissions"},
	{ErrArchiveList, "ArchiveListError"},
	{ErrExtraction, "ExtractionError"},
	{ErrToolTimeout, "ToolTimeout"},
	{ErrIncompatibleInput, "IncompatibleInput"},
	{ErrOutputValidation, "OutputValidationError"},
	{ErrInvalidOption, "InvalidOption"},
	{ErrRunInProgress, "RunAlreadyInProgress"},
	{ErrCancelled, "Cancelled"},
	{ErrExternalTool, "ExternalToolError"},
}

// Wrap builds an error message that includes operation context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, operation, step, message string, err error) error {
	detail := buildDetail(operation, step, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf returns the taxonomy name of the first marker err carries, or an
// empty string for nil and unclassified errors.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.marker) {
			return k.name
		}
	}
	return ""
}

func buildDetail(operation, step, message string) string {
	parts := make([]string, 0, 3)
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if step = strings.TrimSpace(step); step != "" {
		parts = append(parts, step)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
