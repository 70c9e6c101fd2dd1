package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/spboyer/textplay/internal/models"
)

// unsafeChars matches characters that are unsafe in filenames.
var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

const compressedExt = ".zst"

func sanitizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "-")
	s = unsafeChars.ReplaceAllString(s, "")
	if s == "" {
		s = "unnamed"
	}
	return s
}

// Filename returns the record filename for an episode played by policy.
func Filename(policy string, ts time.Time) string {
	return fmt.Sprintf("%s-%s.json", sanitizeName(policy), ts.Format("20060102-150405"))
}

// BuildRecord captures the transcript and result of a finished episode.
func BuildRecord(t *Transcript, initial models.TurnState, result models.EpisodeResult) *models.EpisodeRecord {
	return &models.EpisodeRecord{
		Result:  result,
		Priming: t.Priming(),
		Initial: initial,
		Turns:   t.Records(),
	}
}

// WriteRecord serializes rec into dir, zstd-compressed when compress is set.
func WriteRecord(dir string, rec *models.EpisodeRecord, compress bool) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create records dir: %w", err)
	}

	name := Filename(rec.Result.Policy, rec.Result.StartedAt)
	if rec.Result.EpisodeID != "" {
		name = strings.TrimSuffix(name, ".json") + "-" + shortID(rec.Result.EpisodeID) + ".json"
	}
	if compress {
		name += compressedExt
	}
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}

	if !compress {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return "", fmt.Errorf("write record: %w", err)
		}
		return path, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create record: %w", err)
	}
	defer f.Close() //nolint:errcheck

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return "", fmt.Errorf("create zstd writer: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		_ = enc.Close()
		return "", fmt.Errorf("write record: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("flush record: %w", err)
	}
	return path, nil
}

// ReadRecord loads a record written by WriteRecord.
func ReadRecord(path string) (*models.EpisodeRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	var r io.Reader = f
	if strings.HasSuffix(path, compressedExt) {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	var rec models.EpisodeRecord
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}

func shortID(id string) string {
	id = sanitizeName(id)
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
