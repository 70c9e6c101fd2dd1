package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// SessionFile represents a session log file on disk.
type SessionFile struct {
	Path     string
	Name     string
	Size     int64
	ModTime  time.Time
	Events   int
	Episodes int
}

// ListSessions finds session logs in dir, newest first.
func ListSessions(dir string) ([]SessionFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading session directory: %w", err)
	}

	var files []SessionFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), SessionFileSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		sf := SessionFile{
			Path:    filepath.Join(dir, e.Name()),
			Name:    e.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		if events, err := ReadEvents(sf.Path); err == nil {
			sf.Events = len(events)
			sf.Episodes = len(EpisodeIDs(events))
		}
		files = append(files, sf)
	}

	slices.SortFunc(files, func(a, b SessionFile) int {
		return b.ModTime.Compare(a.ModTime)
	})

	return files, nil
}

// ReadEvents parses all events from a session log file. Lines that are not
// valid JSON are skipped.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening session file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var events []Event
	scanner := bufio.NewScanner(f)
	// Observations can be long.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading session file: %w", err)
	}
	return events, nil
}

// EpisodeIDs lists the episodes that started in events, in order.
func EpisodeIDs(events []Event) []string {
	var ids []string
	for _, ev := range events {
		if ev.Type != EventEpisodeStart {
			continue
		}
		if id, ok := ev.Data["episode_id"].(string); ok && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// FilterEpisode keeps the events of the episode whose id starts with prefix.
// Events without an episode id are dropped.
func FilterEpisode(events []Event, prefix string) []Event {
	var out []Event
	for _, ev := range events {
		id, _ := ev.Data["episode_id"].(string) //nolint:errcheck
		if id != "" && strings.HasPrefix(id, prefix) {
			out = append(out, ev)
		}
	}
	return out
}

// RenderTimeline writes a human-readable session timeline to w.
//
//nolint:errcheck // display-only writes; errors are not actionable
func RenderTimeline(w io.Writer, events []Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events found.")
		return
	}

	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w, " SESSION TIMELINE")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w)

	start := events[0].Timestamp
	for _, ev := range events {
		elapsed := ev.Timestamp.Sub(start)
		ts := formatDuration(elapsed)
		id := shortID(ev.Data["episode_id"])

		switch ev.Type {
		case EventEpisodeStart:
			policy, _ := ev.Data["policy"].(string) //nolint:errcheck
			maxScore := jsonNumber(ev.Data["max_score"])
			fmt.Fprintf(w, "[%s] 🚀 Episode %s started  policy=%s  max_score=%d\n", ts, id, policy, maxScore)

		case EventTurnComplete:
			action, _ := ev.Data["action"].(string) //nolint:errcheck
			turn := jsonNumber(ev.Data["turn"])
			reward := jsonNumber(ev.Data["reward"])
			score := jsonNumber(ev.Data["score"])
			fmt.Fprintf(w, "[%s] ▶  %s turn %d: %q  reward=%d  score=%d\n", ts, id, turn, action, reward, score)

		case EventInvalidAction:
			candidate, _ := ev.Data["candidate"].(string)   //nolint:errcheck
			substitute, _ := ev.Data["substitute"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s] ⚠  %s invalid action %q, substituted %q\n", ts, id, candidate, substitute)

		case EventError:
			msg, _ := ev.Data["message"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s] ❌ Error: %s\n", ts, msg)

		case EventEpisodeEnd:
			reason, _ := ev.Data["reason"].(string) //nolint:errcheck
			score := jsonNumber(ev.Data["score"])
			maxScore := jsonNumber(ev.Data["max_score"])
			steps := jsonNumber(ev.Data["steps"])
			dur := jsonNumber(ev.Data["duration_ms"])
			fmt.Fprintf(w, "[%s] 🏁 Episode %s %s  scored %d out of %d in %d steps  (%dms)\n",
				ts, id, reason, score, maxScore, steps, dur)

		default:
			fmt.Fprintf(w, "[%s] %s %v\n", ts, ev.Type, ev.Data)
		}
	}
	fmt.Fprintln(w)
}

func shortID(v any) string {
	id, _ := v.(string) //nolint:errcheck
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%6dms", d.Milliseconds())
	}
	return fmt.Sprintf("%6.1fs", d.Seconds())
}

// jsonNumber extracts a number from a JSON-decoded interface{} (float64 or json.Number).
func jsonNumber(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, _ := n.Int64() //nolint:errcheck
		return int(i)
	}
	return 0
}
