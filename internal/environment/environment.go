// Package environment adapts game back ends to the turn loop. An Environment
// owns the game state; callers only see observations, rewards and the legal
// action vocabulary.
package environment

import (
	"context"
	"fmt"
)

// Kinds accepted by Open.
const (
	KindScripted = "scripted"
	KindMCP      = "mcp"
)

// Info is the game's own bookkeeping after a reset or step.
type Info struct {
	Score int `json:"score"`
	Moves int `json:"moves"`
}

// StepResult is what one action produced.
type StepResult struct {
	Observation string
	Reward      int
	Done        bool
	Info        Info
}

// Environment is a single text-adventure game instance.
type Environment interface {
	// Reset starts a new game and returns the opening observation
	Reset(ctx context.Context) (string, Info, error)

	// Step applies one action
	Step(ctx context.Context, action string) (StepResult, error)

	// LegalActions lists the actions valid in the current state
	LegalActions(ctx context.Context) ([]string, error)

	// MaxScore is the highest achievable score
	MaxScore(ctx context.Context) (int, error)

	Close() error
}

// Config selects an environment back end.
type Config struct {
	Kind string
	// Script is the scripted game file for KindScripted
	Script string
	// Command launches an MCP game server over stdio
	Command []string
	// URL reaches an MCP game server over streamable HTTP
	URL string
}

// Open builds the environment described by cfg.
func Open(ctx context.Context, cfg Config) (Environment, error) {
	switch cfg.Kind {
	case KindScripted, "":
		if cfg.Script == "" {
			return nil, fmt.Errorf("scripted environment needs a script file")
		}
		return LoadScripted(cfg.Script)
	case KindMCP:
		return DialMCP(ctx, cfg.Command, cfg.URL)
	default:
		return nil, fmt.Errorf("unknown environment kind %q (supported: %s, %s)", cfg.Kind, KindScripted, KindMCP)
	}
}
