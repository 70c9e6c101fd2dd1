package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spboyer/textplay/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"simple", "simple"},
		{"Hello World", "hello-world"},
		{"model/with/slashes", "modelwithslashes"},
		{"special@chars!", "specialchars"},
		{"", "unnamed"},
		{"  spaces  ", "spaces"},
		{"Mixed-Case_Test", "mixed-case_test"},
	}

	for i, tt := range tests {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeName(tt.input))
		})
	}
}

func TestFilename(t *testing.T) {
	ts := time.Date(2025, 6, 15, 14, 30, 45, 0, time.UTC)
	assert.Equal(t, "model-20250615-143045.json", Filename("Model", ts))
}

func sampleRecord(t *testing.T) *models.EpisodeRecord {
	t.Helper()
	tr := buildTranscript(t, "priming", 3)
	return BuildRecord(tr, state("West of House", 0, "north", "open mailbox"), models.EpisodeResult{
		EpisodeID: "5f1c9a7e-0000-4000-8000-000000000000",
		Policy:    "random",
		Score:     3,
		MaxScore:  350,
		Moves:     3,
		Steps:     3,
		Reason:    models.ReasonMaxTurns,
		StartedAt: time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC),
	})
}

func TestWriteRecord(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "records")
	rec := sampleRecord(t)

	path, err := WriteRecord(dir, rec, false)
	require.NoError(t, err)
	assert.Equal(t, "random-20250615-140000-5f1c9a7e.json", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded models.EpisodeRecord
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 3, decoded.Result.Score)
	assert.Len(t, decoded.Turns, 3)
	assert.Equal(t, "West of House", decoded.Initial.Observation)
}

func TestWriteRecord_Compressed(t *testing.T) {
	rec := sampleRecord(t)

	path, err := WriteRecord(t.TempDir(), rec, true)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".json.zst"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, json.Valid(raw), "compressed record should not be plain JSON")

	got, err := ReadRecord(path)
	require.NoError(t, err)
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestReadRecord_Missing(t *testing.T) {
	_, err := ReadRecord(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}
