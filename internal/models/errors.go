package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAction means a candidate action was not in the legal vocabulary.
	// It is recoverable: the validator substitutes a legal action.
	ErrInvalidAction = errors.New("invalid action")

	// ErrEnvironmentProtocol means the environment broke its contract, for
	// example by offering no legal actions mid-episode.
	ErrEnvironmentProtocol = errors.New("environment protocol error")

	// ErrPolicyUnavailable means the policy could not produce a candidate at all.
	ErrPolicyUnavailable = errors.New("policy unavailable")

	// ErrOperatorInterrupt means the operator stopped the episode.
	ErrOperatorInterrupt = errors.New("operator interrupt")
)

// InvalidActionError carries the rejected candidate and the legal action
// that replaced it.
type InvalidActionError struct {
	Candidate  string
	Substitute string
}

func (e *InvalidActionError) Error() string {
	return fmt.Sprintf("invalid action %q, substituted %q", e.Candidate, e.Substitute)
}

func (e *InvalidActionError) Unwrap() error {
	return ErrInvalidAction
}

// IsFatal reports whether err should terminate an episode.
func IsFatal(err error) bool {
	if err == nil || errors.Is(err, ErrInvalidAction) {
		return false
	}
	return true
}

// ReasonFor maps a terminating error to the reason recorded on the result.
func ReasonFor(err error) TerminationReason {
	switch {
	case err == nil:
		return ReasonDone
	case errors.Is(err, ErrOperatorInterrupt):
		return ReasonInterrupted
	case errors.Is(err, ErrPolicyUnavailable):
		return ReasonPolicyUnavailable
	default:
		return ReasonEnvironmentError
	}
}
