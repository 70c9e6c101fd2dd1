package environment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spboyer/textplay/internal/models"
)

// Tool names a game server must expose.
const (
	ToolReset        = "reset"
	ToolStep         = "step"
	ToolValidActions = "valid_actions"
	ToolMaxScore     = "max_score"
)

// ResetOutput is the structured result of the reset tool.
type ResetOutput struct {
	Observation string `json:"observation" mapstructure:"observation"`
	Score       int    `json:"score" mapstructure:"score"`
	Moves       int    `json:"moves" mapstructure:"moves"`
}

// StepInput is the argument of the step tool.
type StepInput struct {
	Action string `json:"action" jsonschema:"Game command to execute"`
}

// StepOutput is the structured result of the step tool.
type StepOutput struct {
	Observation string `json:"observation" mapstructure:"observation"`
	Reward      int    `json:"reward" mapstructure:"reward"`
	Done        bool   `json:"done" mapstructure:"done"`
	Score       int    `json:"score" mapstructure:"score"`
	Moves       int    `json:"moves" mapstructure:"moves"`
}

// ValidActionsOutput is the structured result of the valid_actions tool.
type ValidActionsOutput struct {
	Actions []string `json:"actions" mapstructure:"actions"`
}

// MaxScoreOutput is the structured result of the max_score tool.
type MaxScoreOutput struct {
	MaxScore int `json:"max_score" mapstructure:"max_score"`
}

// MCPEnvironment drives a game hosted by a Model Context Protocol server.
type MCPEnvironment struct {
	session *mcp.ClientSession
}

// DialMCP connects to a game server, either by launching command over stdio
// or by reaching url over streamable HTTP.
func DialMCP(ctx context.Context, command []string, url string) (*MCPEnvironment, error) {
	var transport mcp.Transport
	switch {
	case len(command) > 0:
		transport = &mcp.CommandTransport{Command: exec.Command(command[0], command[1:]...)}
	case url != "":
		transport = &mcp.StreamableClientTransport{Endpoint: url}
	default:
		return nil, fmt.Errorf("mcp environment needs a command or a url")
	}
	return ConnectMCP(ctx, transport)
}

// ConnectMCP starts a client session over transport.
func ConnectMCP(ctx context.Context, transport mcp.Transport) (*MCPEnvironment, error) {
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "textplay",
		Version: "v1.0.0",
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to game server: %w", err)
	}
	return &MCPEnvironment{session: session}, nil
}

func (e *MCPEnvironment) Reset(ctx context.Context) (string, Info, error) {
	var out ResetOutput
	if err := e.call(ctx, ToolReset, nil, &out); err != nil {
		return "", Info{}, err
	}
	return out.Observation, Info{Score: out.Score, Moves: out.Moves}, nil
}

func (e *MCPEnvironment) Step(ctx context.Context, action string) (StepResult, error) {
	var out StepOutput
	if err := e.call(ctx, ToolStep, StepInput{Action: action}, &out); err != nil {
		return StepResult{}, err
	}
	return StepResult{
		Observation: out.Observation,
		Reward:      out.Reward,
		Done:        out.Done,
		Info:        Info{Score: out.Score, Moves: out.Moves},
	}, nil
}

func (e *MCPEnvironment) LegalActions(ctx context.Context) ([]string, error) {
	var out ValidActionsOutput
	if err := e.call(ctx, ToolValidActions, nil, &out); err != nil {
		return nil, err
	}
	return out.Actions, nil
}

func (e *MCPEnvironment) MaxScore(ctx context.Context) (int, error) {
	var out MaxScoreOutput
	if err := e.call(ctx, ToolMaxScore, nil, &out); err != nil {
		return 0, err
	}
	return out.MaxScore, nil
}

func (e *MCPEnvironment) Close() error {
	return e.session.Close()
}

// call invokes a tool and decodes its structured result into out. Tool-level
// failures and malformed results are protocol errors; transport failures and
// cancellation are returned as-is.
func (e *MCPEnvironment) call(ctx context.Context, name string, args any, out any) error {
	if args == nil {
		args = map[string]any{}
	}
	params := &mcp.CallToolParams{Name: name, Arguments: args}

	res, err := e.session.CallTool(ctx, params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("calling %s: %w", name, err)
	}
	if res.IsError {
		return fmt.Errorf("%w: %s failed: %s", models.ErrEnvironmentProtocol, name, resultText(res))
	}

	payload := res.StructuredContent
	if payload == nil {
		// servers without output schemas put JSON in the text content
		var decoded map[string]any
		if err := json.Unmarshal([]byte(resultText(res)), &decoded); err != nil {
			return fmt.Errorf("%w: %s returned no structured content", models.ErrEnvironmentProtocol, name)
		}
		payload = decoded
	}

	if err := decodeResult(payload, out); err != nil {
		return fmt.Errorf("%w: decoding %s result: %w", models.ErrEnvironmentProtocol, name, err)
	}
	return nil
}

func decodeResult(payload any, out any) error {
	if payload == nil {
		return errors.New("empty result")
	}
	// StructuredContent may arrive as raw JSON rather than a decoded map
	if raw, ok := payload.(json.RawMessage); ok {
		var decoded map[string]any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return err
		}
		payload = decoded
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(payload)
}

func resultText(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
