// Package fileutil holds the small filesystem helpers the pipeline uses for
// staging copies and validating tool outputs.
package fileutil
