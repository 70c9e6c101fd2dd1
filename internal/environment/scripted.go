package environment

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/spboyer/textplay/internal/models"
	"gopkg.in/yaml.v3"
)

// Script is a fixed sequence of game responses. Actions do not branch the
// story; each step answers whatever action was taken.
type Script struct {
	Name     string       `yaml:"name,omitempty"`
	MaxScore *int         `yaml:"max_score,omitempty"`
	Loop     bool         `yaml:"loop,omitempty"`
	Initial  ScriptState  `yaml:"initial"`
	Steps    []ScriptStep `yaml:"steps"`
}

type ScriptState struct {
	Observation  string   `yaml:"observation"`
	LegalActions []string `yaml:"legal_actions"`
}

type ScriptStep struct {
	Observation string `yaml:"observation"`
	Reward      int    `yaml:"reward,omitempty"`
	Done        bool   `yaml:"done,omitempty"`
	// LegalActions replaces the vocabulary; when empty the previous one carries over
	LegalActions []string `yaml:"legal_actions,omitempty"`
}

// Scripted replays a Script. It is used for offline runs and tests.
type Scripted struct {
	script Script

	next    int
	score   int
	moves   int
	done    bool
	legal   []string
	actions []string
}

// NewScripted wraps an in-memory script.
func NewScripted(script Script) *Scripted {
	return &Scripted{script: script}
}

// LoadScripted reads a YAML script file.
func LoadScripted(path string) (*Scripted, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("parsing script %s: %w", path, err)
	}
	if len(script.Steps) == 0 {
		return nil, fmt.Errorf("script %s has no steps", path)
	}
	return NewScripted(script), nil
}

func (s *Scripted) Reset(ctx context.Context) (string, Info, error) {
	if err := ctx.Err(); err != nil {
		return "", Info{}, err
	}
	s.next, s.score, s.moves = 0, 0, 0
	s.done = false
	s.actions = nil
	s.legal = slices.Clone(s.script.Initial.LegalActions)
	return s.script.Initial.Observation, Info{}, nil
}

func (s *Scripted) Step(ctx context.Context, action string) (StepResult, error) {
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}
	if s.done {
		return StepResult{}, fmt.Errorf("%w: step after the game ended", models.ErrEnvironmentProtocol)
	}
	if s.next >= len(s.script.Steps) {
		if !s.script.Loop {
			return StepResult{}, fmt.Errorf("%w: script exhausted after %d steps", models.ErrEnvironmentProtocol, s.moves)
		}
		s.next = 0
	}

	step := s.script.Steps[s.next]
	s.next++
	s.moves++
	s.score += step.Reward
	s.actions = append(s.actions, action)

	if len(step.LegalActions) > 0 {
		s.legal = slices.Clone(step.LegalActions)
	}
	if step.Done {
		s.done = true
		s.legal = nil
	}

	return StepResult{
		Observation: step.Observation,
		Reward:      step.Reward,
		Done:        step.Done,
		Info:        Info{Score: s.score, Moves: s.moves},
	}, nil
}

func (s *Scripted) LegalActions(ctx context.Context) ([]string, error) {
	return slices.Clone(s.legal), ctx.Err()
}

// MaxScore is the script's declared maximum, or the sum of its positive rewards.
func (s *Scripted) MaxScore(ctx context.Context) (int, error) {
	if s.script.MaxScore != nil {
		return *s.script.MaxScore, nil
	}
	total := 0
	for _, st := range s.script.Steps {
		if st.Reward > 0 {
			total += st.Reward
		}
	}
	return total, nil
}

// Actions returns every action applied since the last reset.
func (s *Scripted) Actions() []string {
	return slices.Clone(s.actions)
}

func (s *Scripted) Close() error { return nil }
