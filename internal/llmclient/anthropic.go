package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicClient implements the strict-schema Chat contract over the
// Anthropic Messages API. Anthropic has no native json_schema response
// format, so the schema is enforced by forcing a single tool call whose
// input_schema is req.Schema and decoding that tool call's input — the same
// forced-tool-use idiom the teacher's AgentClient uses for multi-turn tool
// calling, narrowed here to exactly one mandatory call.
type anthropicClient struct {
	client anthropic.Client
	model  string
}

// NewAnthropic builds a Client backed by the Anthropic Messages API.
func NewAnthropic(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5-20250514"
	}

	return &anthropicClient{client: anthropic.NewClient(opts...), model: model}, nil
}

const emitResponseToolName = "emit_response"

func (c *anthropicClient) Chat(ctx context.Context, req Request, result any) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2000
	}

	inputSchema := anthropic.ToolInputSchemaParam{Type: "object"}
	if req.Schema != nil {
		inputSchema.Properties = req.Schema
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		System:    []anthropic.TextBlockParam{{Type: "text", Text: req.SystemPrompt}},
		Messages: []anthropic.MessageParam{
			{Role: anthropic.MessageParamRoleUser, Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(req.UserPrompt)}},
		},
		Tools: []anthropic.ToolUnionParam{
			{OfTool: &anthropic.ToolParam{
				Name:        emitResponseToolName,
				Description: anthropic.String("Emit the structured " + req.SchemaName + " response."),
				InputSchema: inputSchema,
			}},
		},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: emitResponseToolName},
		},
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	start := time.Now()
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic chat: %w", err)
	}

	slog.DebugContext(ctx, "llm chat completed",
		"provider", "anthropic", "model", c.model, "duration_ms", time.Since(start).Milliseconds(),
		"input_tokens", resp.Usage.InputTokens, "output_tokens", resp.Usage.OutputTokens)

	for _, block := range resp.Content {
		if block.Type == "tool_use" && block.Name == emitResponseToolName {
			if err := json.Unmarshal(block.Input, result); err != nil {
				return nil, &InvalidOutputError{Err: fmt.Errorf("anthropic chat: unmarshal tool input: %w", err)}
			}
			return &Response{
				PromptTokens:     int(resp.Usage.InputTokens),
				CompletionTokens: int(resp.Usage.OutputTokens),
			}, nil
		}
	}

	return nil, &InvalidOutputError{Err: fmt.Errorf("anthropic chat: model did not emit the %s tool call", emitResponseToolName)}
}

func (c *anthropicClient) Model() string { return c.model }
