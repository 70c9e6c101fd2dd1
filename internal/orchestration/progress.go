package orchestration

import "github.com/spboyer/textplay/internal/models"

// ProgressListener receives progress updates
type ProgressListener func(event ProgressEvent)

// EventType represents the type of progress event
type EventType string

// EventType constants
const (
	EventEpisodeStart    EventType = "episode_start"
	EventTurnStart       EventType = "turn_start"
	EventInvalidAction   EventType = "invalid_action"
	EventTurnComplete    EventType = "turn_complete"
	EventExportFailed    EventType = "export_failed"
	EventEpisodeComplete EventType = "episode_complete"
)

// ProgressEvent represents a progress update
type ProgressEvent struct {
	EventType EventType
	EpisodeID string
	Policy    string
	Turn      int
	MaxTurns  int
	MaxScore  int
	// Action is the action sent to the environment, after validation
	Action string
	// Candidate is what the policy proposed, set on EventInvalidAction
	Candidate string
	RawOutput string
	State     models.TurnState
	// Moves is the environment's move counter after the step
	Moves  int
	Result *models.EpisodeResult
	Err    error
}

// OnProgress registers a progress listener
func (o *Orchestrator) OnProgress(listener ProgressListener) {
	o.progressMu.Lock()
	defer o.progressMu.Unlock()
	o.listeners = append(o.listeners, listener)
}

func (o *Orchestrator) notifyProgress(event ProgressEvent) {
	o.progressMu.Lock()
	listeners := make([]ProgressListener, len(o.listeners))
	copy(listeners, o.listeners)
	o.progressMu.Unlock()

	event.EpisodeID = o.episodeID
	event.Policy = o.policy.Name()
	event.MaxTurns = o.maxTurns
	for _, listener := range listeners {
		listener(event)
	}
}
