package session

import "time"

// EventType identifies the kind of session event.
type EventType string

const (
	EventEpisodeStart  EventType = "episode_start"
	EventTurnComplete  EventType = "turn_complete"
	EventInvalidAction EventType = "invalid_action"
	EventEpisodeEnd    EventType = "episode_end"
	EventError         EventType = "error"
)

// Event is a single timestamped entry in a session log.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(t EventType, data map[string]any) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		Type:      t,
		Data:      data,
	}
}

// EpisodeStartData returns event data for an episode start.
func EpisodeStartData(episodeID, policy, observation string, maxScore int) map[string]any {
	return map[string]any{
		"episode_id":  episodeID,
		"policy":      policy,
		"observation": observation,
		"max_score":   maxScore,
	}
}

// TurnCompleteData returns event data for one finished turn.
func TurnCompleteData(episodeID string, turn int, action string, reward, score int, done bool) map[string]any {
	return map[string]any{
		"episode_id": episodeID,
		"turn":       turn,
		"action":     action,
		"reward":     reward,
		"score":      score,
		"done":       done,
	}
}

// InvalidActionData returns event data for a rejected candidate action.
func InvalidActionData(episodeID string, turn int, candidate, substitute string) map[string]any {
	return map[string]any{
		"episode_id": episodeID,
		"turn":       turn,
		"candidate":  candidate,
		"substitute": substitute,
	}
}

// EpisodeEndData returns event data for an episode end.
func EpisodeEndData(episodeID, reason string, score, maxScore, steps int, durationMs int64) map[string]any {
	return map[string]any{
		"episode_id":  episodeID,
		"reason":      reason,
		"score":       score,
		"max_score":   maxScore,
		"steps":       steps,
		"duration_ms": durationMs,
	}
}

// ErrorData returns event data for an error.
func ErrorData(message string, details map[string]any) map[string]any {
	d := map[string]any{
		"message": message,
	}
	for k, v := range details {
		d[k] = v
	}
	return d
}
