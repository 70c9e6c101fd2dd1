package transcript

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spboyer/textplay/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func state(obs string, score int, legal ...string) models.TurnState {
	return models.TurnState{Observation: obs, Reward: 1, Score: score, LegalActions: legal}
}

func buildTranscript(t *testing.T, priming string, n int) *Transcript {
	t.Helper()
	tr := New(priming)
	for i := 1; i <= n; i++ {
		require.NoError(t, tr.Append(fmt.Sprintf("action %d", i), state(fmt.Sprintf("room %d", i), i, "north", "south"), ""))
	}
	return tr
}

func TestAppend(t *testing.T) {
	tr := New("play well")
	assert.Equal(t, 0, tr.Len())
	_, ok := tr.Latest()
	assert.False(t, ok)

	legal := []string{"north", "south"}
	require.NoError(t, tr.Append("north", state("A forest.", 0, legal...), "go north"))
	legal[0] = "mutated"

	latest, ok := tr.Latest()
	require.True(t, ok)
	assert.Equal(t, 1, latest.Turn)
	assert.Equal(t, "north", latest.Action)
	assert.Equal(t, "go north", latest.RawOutput)
	assert.Equal(t, []string{"north", "south"}, latest.State.LegalActions)
}

func TestAppend_EmptyAction(t *testing.T) {
	tr := New("")
	err := tr.Append("", state("x", 0, "a"), "")
	require.ErrorIs(t, err, ErrEmptyAction)
	assert.Equal(t, 0, tr.Len())
}

func TestRecords_ReturnsCopy(t *testing.T) {
	tr := buildTranscript(t, "", 2)
	recs := tr.Records()
	recs[0].Action = "changed"
	assert.Equal(t, "action 1", tr.Records()[0].Action)
}

func TestRender_FullHistory(t *testing.T) {
	tr := buildTranscript(t, "You are playing a game.", 3)
	out := tr.Render(FullHistory)

	assert.True(t, strings.HasPrefix(out, "You are playing a game.\n\n"))
	assert.Equal(t, 3, strings.Count(out, "Chosen Action:"))

	i1 := strings.Index(out, "Chosen Action: action 1")
	i2 := strings.Index(out, "Chosen Action: action 2")
	i3 := strings.Index(out, "Chosen Action: action 3")
	assert.True(t, i1 >= 0 && i1 < i2 && i2 < i3, "records must appear in append order")
}

func TestRender_RecordFormat(t *testing.T) {
	tr := New("")
	require.NoError(t, tr.Append("open mailbox", models.TurnState{
		Observation:  "  Opening the mailbox reveals a leaflet.\n",
		Reward:       0,
		Score:        5,
		LegalActions: []string{"take leaflet", "close mailbox"},
	}, ""))

	want := "Chosen Action: open mailbox\n" +
		"Led to this Observation: Opening the mailbox reveals a leaflet.\n" +
		"with Reward: 0\n" +
		"with Total Score: 5\n" +
		"Valid Actions: [take leaflet, close mailbox]"
	assert.Equal(t, want, tr.Render(FullHistory))
}

func TestRender_LatestOnly(t *testing.T) {
	tr := New("priming")
	require.NoError(t, tr.Append("north", state("first room", 1, "alpha"), "thinking about north\nnorth"))
	require.NoError(t, tr.Append("south", state("second room", 2, "beta"), "back south\nsouth"))
	require.NoError(t, tr.Append("east", state("third room", 3, "gamma"), "map: cellar below\neast"))

	out := tr.Render(LatestOnly)
	assert.True(t, strings.HasPrefix(out, "priming\n\n"))
	assert.Contains(t, out, "Chosen Action: east")
	assert.Contains(t, out, "third room")
	assert.Contains(t, out, "with Total Score: 3")
	assert.Contains(t, out, "gamma")
	assert.Contains(t, out, "Your Previous Response:\nmap: cellar below\neast")
	assert.Equal(t, 1, strings.Count(out, "Chosen Action:"))

	for _, earlier := range []string{"first room", "second room", "alpha", "beta", "thinking about north", "back south"} {
		assert.NotContains(t, out, earlier)
	}
}

func TestRender_Empty(t *testing.T) {
	assert.Equal(t, "priming", New("priming").Render(FullHistory))
	assert.Equal(t, "priming", New("priming").Render(LatestOnly))
	assert.Equal(t, "", New("").Render(FullHistory))
}

func TestRender_Idempotent(t *testing.T) {
	tr := buildTranscript(t, "p", 4)
	assert.Equal(t, tr.Render(FullHistory), tr.Render(FullHistory))
	assert.Equal(t, 4, tr.Len())
}

func TestWindowBuilder(t *testing.T) {
	tr := buildTranscript(t, "p", 5)
	out := WindowBuilder{Size: 2}.Build(tr)
	assert.Equal(t, 2, strings.Count(out, "Chosen Action:"))
	assert.NotContains(t, out, "action 3")
	assert.Contains(t, out, "action 4")
	assert.Contains(t, out, "action 5")

	assert.Equal(t, tr.Render(FullHistory), WindowBuilder{}.Build(tr))
}

type fixedCounter int

func (c fixedCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return int(c)
}

func TestTokenBudgetBuilder(t *testing.T) {
	tr := buildTranscript(t, "p", 5)

	// priming costs 10, each record 10: room for two records
	out := TokenBudgetBuilder{Budget: 30, Counter: fixedCounter(10)}.Build(tr)
	assert.Equal(t, 2, strings.Count(out, "Chosen Action:"))
	assert.Less(t, strings.Index(out, "action 4"), strings.Index(out, "action 5"))

	// the latest record is always kept
	out = TokenBudgetBuilder{Budget: 1, Counter: fixedCounter(10)}.Build(tr)
	assert.Equal(t, 1, strings.Count(out, "Chosen Action:"))
	assert.Contains(t, out, "action 5")
}

func TestNewContextBuilder(t *testing.T) {
	tests := []struct {
		kind    string
		size    int
		want    ContextBuilder
		wantErr bool
	}{
		{kind: "", want: FullHistoryBuilder{}},
		{kind: KindFullHistory, want: FullHistoryBuilder{}},
		{kind: KindLatestOnly, want: LatestOnlyBuilder{}},
		{kind: KindWindow, size: 3, want: WindowBuilder{Size: 3}},
		{kind: KindWindow, wantErr: true},
		{kind: KindTokenBudget, wantErr: true},
		{kind: "summary", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%d", tt.kind, tt.size), func(t *testing.T) {
			got, err := NewContextBuilder(tt.kind, tt.size, nil)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	b, err := NewContextBuilder(KindTokenBudget, 100, nil)
	require.NoError(t, err)
	assert.IsType(t, TokenBudgetBuilder{}, b)
}

func TestExportSnapshot_FileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "transcript.txt")
	sink := NewFileSink(path)
	tr := buildTranscript(t, "priming", 3)

	require.NoError(t, tr.ExportSnapshot(context.Background(), sink))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, tr.Render(FullHistory), string(data))

	// a later export replaces the earlier one
	require.NoError(t, tr.Append("look", state("a shorter room", 9, "x"), ""))
	require.NoError(t, tr.ExportSnapshot(context.Background(), sink))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, tr.Render(FullHistory), string(data))
}

func TestExportSnapshot_NilSink(t *testing.T) {
	require.NoError(t, New("").ExportSnapshot(context.Background(), nil))
}

func TestExportSnapshot_Failure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	err := New("p").ExportSnapshot(context.Background(), NewFileSink(filepath.Join(blocker, "nested", "t.txt")))
	require.Error(t, err)
}

func TestOpenSink(t *testing.T) {
	ctx := context.Background()

	s, err := OpenSink(ctx, "transcript.txt")
	require.NoError(t, err)
	assert.IsType(t, &FileSink{}, s)

	s, err = OpenSink(ctx, "file:///tmp/transcript.txt")
	require.NoError(t, err)
	require.IsType(t, &FileSink{}, s)
	assert.Equal(t, "/tmp/transcript.txt", s.(*FileSink).Path)

	s, err = OpenSink(ctx, "redis://localhost:6379/0?key=zork&ttl=1h")
	require.NoError(t, err)
	require.IsType(t, &RedisSink{}, s)
	assert.Equal(t, "zork", s.(*RedisSink).key)
	require.NoError(t, s.Close())

	_, err = OpenSink(ctx, "redis://localhost:6379/0?ttl=forever")
	require.Error(t, err)

	t.Setenv(ConnectionStringEnv, "")
	_, err = OpenSink(ctx, "azblob://container/blob.txt")
	require.ErrorContains(t, err, ConnectionStringEnv)

	_, err = OpenSink(ctx, "ftp://example.com/transcript")
	require.Error(t, err)

	_, err = OpenSink(ctx, "")
	require.Error(t, err)
}

func TestUnprimed(t *testing.T) {
	tr := buildTranscript(t, "priming", 2)
	view := tr.Unprimed()

	assert.Empty(t, view.Priming())
	assert.Equal(t, 2, view.Len())
	assert.False(t, strings.HasPrefix(view.Render(FullHistory), "priming"))
	assert.Equal(t, tr.Render(FullHistory), "priming\n\n"+view.Render(FullHistory))

	require.NoError(t, view.Append("x", state("y", 0, "z"), ""))
	assert.Equal(t, 2, tr.Len(), "appending to the view must not touch the original")
}
