package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spboyer/textplay/internal/models"
)

// Exit codes for different failure modes
const (
	ExitSuccess     = 0   // Episode(s) finished
	ExitEpisodeFail = 1   // An episode ended on a fatal episode error
	ExitError       = 2   // Configuration or runtime error
	ExitInterrupted = 130 // Stopped by the operator
)

// EpisodeFailureError indicates that the run started, but one or more
// episodes ended on a fatal error (policy unavailable or environment
// protocol violation).
type EpisodeFailureError struct {
	Message string
	Err     error
}

func (e *EpisodeFailureError) Error() string {
	return e.Message
}

func (e *EpisodeFailureError) Unwrap() error {
	return e.Err
}

func main() {
	err := execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	if errors.Is(err, models.ErrOperatorInterrupt) {
		return ExitInterrupted
	}

	var failure *EpisodeFailureError
	if errors.As(err, &failure) {
		return ExitEpisodeFail
	}

	// All other errors are configuration/runtime errors
	return ExitError
}
