// Package llmclient is the Prompt Invoker's LLM seam: a provider-neutral,
// single-shot, strict-JSON-schema chat contract. The LLM client's wire
// protocol is explicitly out of scope per the specification (treated as an
// external collaborator referenced only by its contract); this package
// supplies two real, wired implementations — OpenAI and Anthropic — behind
// that contract, following the teacher's common/llm package split between a
// tool-calling AgentClient and a single-shot schema Client.
package llmclient

import (
	"context"
	"errors"
	"log/slog"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
)

// Client is the Prompt Invoker's LLM contract: render a system/user prompt
// pair, constrain the response to schema, and return the parsed object plus
// token usage.
type Client interface {
	Chat(ctx context.Context, req Request, result any) (*Response, error)
	Model() string
}

// Request carries one prompt-invoker call's inputs.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	SchemaName   string
	Schema       any
	MaxTokens    int
	Temperature  *float64 // nil = model default, explicit 0 = deterministic
}

// Response carries token usage for cost accounting.
type Response struct {
	PromptTokens     int
	CompletionTokens int
}

// Config configures either backend; BaseURL is optional (useful for local
// gateways/proxies in tests).
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// GenerateSchema reflects a Go type into a strict JSON schema, the same
// invopop/jsonschema idiom the teacher uses for its tool/response schemas.
func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// Temp is a convenience constructor for Request.Temperature.
func Temp(t float64) *float64 {
	return &t
}

// InvalidOutputError wraps a response that failed to unmarshal into the
// requested schema, distinguishing a model output-format failure from a
// transport failure so the Prompt Invoker can apply its own one-retry
// policy instead of IsRetryable's transport-level one.
type InvalidOutputError struct {
	Err error
}

func (e *InvalidOutputError) Error() string { return "invalid output: " + e.Err.Error() }
func (e *InvalidOutputError) Unwrap() error { return e.Err }

// IsRetryable classifies a Chat error as worth a caller-side retry,
// following the teacher's status-code-driven retry policy.
func IsRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		slog.DebugContext(ctx, "llm error not retryable: context cancelled or deadline exceeded")
		return false
	}

	var invalidOutput *InvalidOutputError
	if errors.As(err, &invalidOutput) {
		slog.DebugContext(ctx, "llm error not retryable via IsRetryable: invalid output has its own retry policy")
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			slog.WarnContext(ctx, "llm rate limited, will retry", "status_code", apiErr.StatusCode)
			return true
		case apiErr.StatusCode >= 500:
			slog.WarnContext(ctx, "llm server error, will retry", "status_code", apiErr.StatusCode)
			return true
		default:
			slog.ErrorContext(ctx, "llm client error, not retryable",
				"status_code", apiErr.StatusCode, "error_type", apiErr.Type, "error_code", apiErr.Code)
			return false
		}
	}

	slog.WarnContext(ctx, "llm network error, will retry", "error", err)
	return true
}
