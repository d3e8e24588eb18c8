package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"b2pc/internal/config"
	"b2pc/internal/pipeline"
)

// promptConfirmer asks the cleanup question on the terminal. The pipeline
// bounds the wait, so an unanswered prompt falls back to keeping sources.
type promptConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func (p promptConfirmer) ConfirmCleanup(_ context.Context, op pipeline.Operation) (bool, error) {
	fmt.Fprintf(p.out, "Delete processed source files for %s? [y/N]: ", op)
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// cleanupConfirmer maps a cleanup policy to a confirmer. Asking only happens
// when stdin is a terminal; otherwise sources are kept.
func cleanupConfirmer(policy string, in io.Reader, out io.Writer) (pipeline.Confirmer, error) {
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case config.CleanupAlways:
		return pipeline.Always, nil
	case config.CleanupNever:
		return pipeline.Never, nil
	case config.CleanupAsk, "":
		if !isTerminal(in) {
			return nil, nil
		}
		return promptConfirmer{in: bufio.NewReader(in), out: out}, nil
	default:
		return nil, fmt.Errorf("invalid --cleanup %q (use ask, always or never)", policy)
	}
}
