package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Exit codes: 1 for failed runs and usage errors, 130 when a run was
// interrupted.
const (
	exitFailure   = 1
	exitCancelled = 130
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, errRunCancelled) {
			fmt.Fprintln(os.Stderr, "b2pc: run cancelled")
			os.Exit(exitCancelled)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFailure)
	}
}
