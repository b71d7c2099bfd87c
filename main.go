package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/tonimelisma/phylomerge/internal/model"
)

// Exit codes. Rejected input is distinguished from operational failures so
// that scripts can tell a bad document from a broken store.
const (
	exitFailure  = 1
	exitRejected = 2
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	if errors.Is(err, model.ErrValidation) || errors.Is(err, model.ErrNotFound) {
		return exitRejected
	}

	return exitFailure
}
