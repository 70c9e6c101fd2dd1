package models

// TurnState is what the environment reports at one decision point.
// Values are treated as immutable once produced.
type TurnState struct {
	Observation  string   `json:"observation"`
	Reward       int      `json:"reward"`
	Score        int      `json:"score"`
	LegalActions []string `json:"legal_actions"`
}

// HasAction reports whether action is an exact member of the legal actions.
func (s TurnState) HasAction(action string) bool {
	for _, a := range s.LegalActions {
		if a == action {
			return true
		}
	}
	return false
}

// TurnRecord is one completed turn: the chosen action and the state it led to.
type TurnRecord struct {
	// Turn is the 1-based position of the record within its transcript
	Turn   int       `json:"turn"`
	Action string    `json:"action"`
	State  TurnState `json:"state"`
	// RawOutput is the unparsed model response that produced Action, if any
	RawOutput string `json:"raw_output,omitempty"`
}

// TokenUsage counts tokens sent to and received from a completion service.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add returns the sum of u and other.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
	}
}

// Total is input plus output tokens.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}
