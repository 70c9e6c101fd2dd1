package environment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spboyer/textplay/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emptyInput struct{}

// newGameServer exposes a Scripted game through the MCP tools a real game
// server would provide.
func newGameServer(t *testing.T, game *Scripted, failStep bool) *mcp.Server {
	t.Helper()

	server := mcp.NewServer(&mcp.Implementation{Name: "test-game", Version: "v0.0.1"}, nil)

	mcp.AddTool(server, &mcp.Tool{Name: ToolReset, Description: "Start a new game"},
		func(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, ResetOutput, error) {
			obs, info, err := game.Reset(ctx)
			return nil, ResetOutput{Observation: obs, Score: info.Score, Moves: info.Moves}, err
		})

	mcp.AddTool(server, &mcp.Tool{Name: ToolStep, Description: "Apply one action"},
		func(ctx context.Context, _ *mcp.CallToolRequest, in StepInput) (*mcp.CallToolResult, StepOutput, error) {
			if failStep {
				return nil, StepOutput{}, errors.New("interpreter crashed")
			}
			res, err := game.Step(ctx, in.Action)
			return nil, StepOutput{Observation: res.Observation, Reward: res.Reward, Done: res.Done, Score: res.Info.Score, Moves: res.Info.Moves}, err
		})

	mcp.AddTool(server, &mcp.Tool{Name: ToolValidActions, Description: "List legal actions"},
		func(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, ValidActionsOutput, error) {
			legal, err := game.LegalActions(ctx)
			return nil, ValidActionsOutput{Actions: legal}, err
		})

	mcp.AddTool(server, &mcp.Tool{Name: ToolMaxScore, Description: "Highest achievable score"},
		func(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, MaxScoreOutput, error) {
			maxScore, err := game.MaxScore(ctx)
			return nil, MaxScoreOutput{MaxScore: maxScore}, err
		})

	return server
}

func connectGame(t *testing.T, failStep bool) (*MCPEnvironment, *Scripted) {
	t.Helper()
	ctx := context.Background()

	game := loadMailbox(t)
	server := newGameServer(t, game, failStep)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	env, err := ConnectMCP(ctx, clientTransport)
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })

	return env, game
}

func TestMCPEnvironment(t *testing.T) {
	ctx := context.Background()
	env, game := connectGame(t, false)

	obs, info, err := env.Reset(ctx)
	require.NoError(t, err)
	assert.Contains(t, obs, "West of House")
	assert.Equal(t, Info{}, info)

	legal, err := env.LegalActions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"open mailbox", "north", "south"}, legal)

	res, err := env.Step(ctx, "open mailbox")
	require.NoError(t, err)
	assert.Equal(t, "Opening the small mailbox reveals a leaflet.", res.Observation)
	assert.Equal(t, Info{Score: 0, Moves: 1}, res.Info)

	res, err = env.Step(ctx, "take leaflet")
	require.NoError(t, err)
	assert.Equal(t, 5, res.Reward)
	assert.Equal(t, 5, res.Info.Score)

	maxScore, err := env.MaxScore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, maxScore)

	assert.Equal(t, []string{"open mailbox", "take leaflet"}, game.Actions())
}

func TestMCPEnvironment_ToolError(t *testing.T) {
	ctx := context.Background()
	env, _ := connectGame(t, true)

	_, _, err := env.Reset(ctx)
	require.NoError(t, err)

	_, err = env.Step(ctx, "open mailbox")
	require.ErrorIs(t, err, models.ErrEnvironmentProtocol)
	assert.Contains(t, err.Error(), "interpreter crashed")
}

func TestDialMCP_NeedsTarget(t *testing.T) {
	_, err := DialMCP(context.Background(), nil, "")
	require.Error(t, err)
}

func TestDecodeResult(t *testing.T) {
	var out StepOutput
	require.NoError(t, decodeResult(map[string]any{
		"observation": "Taken.",
		"reward":      float64(5),
		"done":        false,
		"score":       float64(5),
		"moves":       float64(2),
	}, &out))
	assert.Equal(t, StepOutput{Observation: "Taken.", Reward: 5, Score: 5, Moves: 2}, out)

	var actions ValidActionsOutput
	require.NoError(t, decodeResult(json.RawMessage(`{"actions":["north"]}`), &actions))
	assert.Equal(t, []string{"north"}, actions.Actions)

	require.Error(t, decodeResult(nil, &out))
}
