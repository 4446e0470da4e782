// Package llm wraps the OpenAI-compatible chat completions API behind the
// two primitives the bot needs: a history-aware completion call that can
// run named tools mid-exchange, and a structured-extraction call whose
// response is coerced into a validated record.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModel     = "gpt-4o-mini"
	defaultTimeout   = 120 * time.Second
	defaultToolRound = 5
)

// Config configures the OpenAI-compatible client.
type Config struct {
	// APIKey is the bearer token used to authenticate against the API.
	APIKey string

	// BaseURL overrides the API endpoint. Useful for local models (Ollama),
	// Azure OpenAI, or any other OpenAI-compatible endpoint.
	BaseURL string

	// Model is the chat model. Defaults to gpt-4o-mini when empty.
	Model string

	// Temperature is passed through to the completion request.
	Temperature float32

	// Timeout is the HTTP request timeout. Defaults to 120 s — completions
	// with tool calls can be slow.
	Timeout time.Duration

	// MaxToolRounds bounds the number of completion round-trips a single
	// exchange may spend on tool calls. Defaults to 5.
	MaxToolRounds int
}

// Message is one prior conversation turn fed into a completion call.
// Only user and assistant turns participate in the prompt; tool transcript
// turns are a persistence concern, not a prompting one.
type Message struct {
	Role    string
	Content string
}

// Turn is one transcript entry produced by an exchange, in order: the user
// turn, any tool turns, and the final assistant turn.
type Turn struct {
	Role    string
	Content string
}

// Exchange is the outcome of one successful completion call.
type Exchange struct {
	// Reply is the assistant's final free-text answer.
	Reply string
	// Turns is the full new transcript for this exchange (user, tool*,
	// assistant), ready to be appended to the conversation history.
	Turns []Turn
	// TotalTokens is the cumulative usage the service reported across all
	// round-trips of the exchange. Zero when the service reported nothing.
	TotalTokens int
}

// Client calls an OpenAI-compatible chat completions endpoint.
// It is safe for concurrent use.
type Client struct {
	api *openai.Client
	cfg Config
}

// New returns a Client for the given configuration.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = defaultToolRound
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.BaseURL

	return &Client{
		api: openai.NewClientWithConfig(clientConfig),
		cfg: cfg,
	}
}

// Model returns the configured chat model name.
func (c *Client) Model() string { return c.cfg.Model }

// Complete sends the prior conversation plus the new user utterance to the
// model, running any requested tools until the model produces a final
// free-text reply. The call is made exactly once per round — a failed
// completion is returned as an error, never retried here.
func (c *Client) Complete(ctx context.Context, prior []Message, userText string, tools []ToolDef) (*Exchange, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	byName := make(map[string]ToolDef, len(tools))
	wireTools := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		byName[t.Name] = t
		wireTools = append(wireTools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(prior)+1)
	for _, m := range prior {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userText})

	turns := []Turn{{Role: openai.ChatMessageRoleUser, Content: userText}}
	totalTokens := 0

	for round := 0; round < c.cfg.MaxToolRounds; round++ {
		req := openai.ChatCompletionRequest{
			Model:       c.cfg.Model,
			Messages:    msgs,
			Temperature: c.cfg.Temperature,
		}
		if len(wireTools) > 0 {
			req.Tools = wireTools
		}

		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("llm: completion call: %w", err)
		}
		totalTokens += resp.Usage.TotalTokens
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("llm: completion returned no choices")
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			turns = append(turns, Turn{Role: openai.ChatMessageRoleAssistant, Content: msg.Content})
			return &Exchange{Reply: msg.Content, Turns: turns, TotalTokens: totalTokens}, nil
		}

		// The model asked for tools: run each one and feed the results back
		// for another round.
		msgs = append(msgs, msg)
		for _, tc := range msg.ToolCalls {
			result := dispatch(ctx, byName, tc)
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result,
				ToolCallID: tc.ID,
			})
			turns = append(turns, Turn{Role: openai.ChatMessageRoleTool, Content: result})
		}
	}

	return nil, fmt.Errorf("llm: exchange exceeded %d tool rounds without a final reply", c.cfg.MaxToolRounds)
}

// dispatch looks up and runs a single tool call. Every failure mode —
// unknown tool, malformed or schema-invalid arguments, tool error — is
// returned as result text so the model can explain the problem to the user
// instead of the exchange aborting.
func dispatch(ctx context.Context, byName map[string]ToolDef, tc openai.ToolCall) string {
	def, ok := byName[tc.Function.Name]
	if !ok {
		slog.Warn("llm: model requested unknown tool", "tool", tc.Function.Name)
		return fmt.Sprintf("Unknown tool %q.", tc.Function.Name)
	}

	args := json.RawMessage(tc.Function.Arguments)
	if err := def.validateArgs(args); err != nil {
		slog.Warn("llm: tool arguments rejected", "tool", def.Name, "err", err)
		return fmt.Sprintf("Invalid arguments for tool %q: %v", def.Name, err)
	}

	slog.Debug("llm: running tool", "tool", def.Name)
	result, err := def.Run(ctx, args)
	if err != nil {
		slog.Warn("llm: tool execution failed", "tool", def.Name, "err", err)
		return fmt.Sprintf("Tool %q failed: %v", def.Name, err)
	}
	return result
}
