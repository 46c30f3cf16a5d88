package prompt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"researchagent.dev/core/internal/llmclient"
	"researchagent.dev/core/internal/model"
)

const defaultInvokeTimeout = 180 * time.Second

// Role selects a model alias from the configured role->model mapping
// (§4.4). Single-model deployments are explicitly allowed — Invoker falls
// back to a default client when a role has no dedicated entry.
type Role string

const (
	RoleScoping       Role = "scoping"
	RoleResearch      Role = "research"
	RoleSummarization Role = "summarization"
	RoleSynthesis     Role = "synthesis"
	RoleAnalysis      Role = "analysis"
)

// Invoker renders a named template, calls the LLM under a strict schema and
// a hard timeout, and hands back the parsed object plus usage. It has no
// side effects beyond LLM usage accounting — concurrent calls with
// identical arguments may return different parsed objects (LLMs are
// non-deterministic) but always produce independent usage records.
type Invoker struct {
	clientsByRole map[Role]llmclient.Client
	defaultClient llmclient.Client
	timeout       time.Duration
}

func NewInvoker(defaultClient llmclient.Client, clientsByRole map[Role]llmclient.Client) *Invoker {
	return &Invoker{
		clientsByRole: clientsByRole,
		defaultClient: defaultClient,
		timeout:       defaultInvokeTimeout,
	}
}

// WithTimeout returns a copy of the invoker using a different hard timeout,
// useful for tests.
func (inv *Invoker) WithTimeout(d time.Duration) *Invoker {
	clone := *inv
	clone.timeout = d
	return &clone
}

func (inv *Invoker) clientFor(role Role) llmclient.Client {
	if c, ok := inv.clientsByRole[role]; ok && c != nil {
		return c
	}
	return inv.defaultClient
}

// ModelFor reports the model name backing role, for callers (e.g. the
// Evidence Extractor) that stamp ProcessedEvidence.ExtractedByModel.
func (inv *Invoker) ModelFor(role Role) string {
	return inv.clientFor(role).Model()
}

// invalidOutputReminder is appended to the user prompt on the single
// LLM_INVALID_OUTPUT retry (§7), to push the model back onto schema.
const invalidOutputReminder = "\n\nYour previous response did not match the required JSON schema exactly. " +
	"Respond again with ONLY a single JSON object conforming to the schema, with no surrounding prose."

// Invoke renders templateName with variables, calls the role's LLM client
// under schema, and unmarshals into result. It applies §7's local-recovery
// policy itself: a TIMEOUT is retried once while the parent context still
// has room to run, an LLM_INVALID_OUTPUT (schema/unmarshal failure) is
// retried once with a stricter prompt reminder, and any other
// transport-classified retryable failure (llmclient.IsRetryable) is also
// retried once. A second failure of any kind is returned as a classified
// model.APIError rather than attempted again.
func (inv *Invoker) Invoke(ctx context.Context, templateName string, variables map[string]any, schemaName string, schema any, role Role, result any) (llmclient.Response, error) {
	client := inv.clientFor(role)
	if client == nil {
		return llmclient.Response{}, fmt.Errorf("prompt invoker: no LLM client configured for role %q", role)
	}

	userPrompt, err := Render(templateName, variables)
	if err != nil {
		return llmclient.Response{}, err
	}

	req := llmclient.Request{
		SystemPrompt: systemPromptFor(templateName),
		UserPrompt:   userPrompt,
		SchemaName:   schemaName,
		Schema:       schema,
	}

	const maxAttempts = 2
	for attempt := 1; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, inv.timeout)
		resp, callErr := client.Chat(callCtx, req, result)
		timedOut := callCtx.Err() != nil
		cancel()

		if callErr == nil {
			return *resp, nil
		}

		var invalidOutput *llmclient.InvalidOutputError
		isInvalidOutput := errors.As(callErr, &invalidOutput)

		switch {
		case timedOut:
			if attempt < maxAttempts && ctx.Err() == nil {
				slog.WarnContext(ctx, "prompt invoke timed out, retrying", "template", templateName, "role", role, "attempt", attempt)
				continue
			}
			apiErr := &model.APIError{
				Category:    model.ErrorTimeout,
				Message:     fmt.Sprintf("prompt invoker: template %q timed out after %s", templateName, inv.timeout),
				IsRetryable: ctx.Err() == nil,
				SourceID:    "llm",
			}
			slog.WarnContext(ctx, "prompt invoke timed out, giving up", "template", templateName, "role", role)
			return llmclient.Response{}, apiErr

		case isInvalidOutput:
			if attempt < maxAttempts {
				slog.WarnContext(ctx, "prompt invoke produced invalid output, retrying with stricter prompt",
					"template", templateName, "role", role, "attempt", attempt, "error", callErr)
				req.UserPrompt = userPrompt + invalidOutputReminder
				continue
			}
			apiErr := &model.APIError{
				Category:    model.ErrorLLMInvalidOutput,
				Message:     fmt.Sprintf("prompt invoker: template %q: %v", templateName, callErr),
				IsRetryable: false,
				SourceID:    "llm",
			}
			return llmclient.Response{}, apiErr

		case llmclient.IsRetryable(ctx, callErr):
			if attempt < maxAttempts {
				slog.WarnContext(ctx, "prompt invoke failed, retrying", "template", templateName, "role", role, "attempt", attempt, "error", callErr)
				continue
			}
			return llmclient.Response{}, fmt.Errorf("prompt invoker: invoke %q: %w", templateName, callErr)

		default:
			return llmclient.Response{}, fmt.Errorf("prompt invoker: invoke %q: %w", templateName, callErr)
		}
	}
}

func systemPromptFor(templateName string) string {
	return "You are a disciplined research subsystem component (" + templateName + "). " +
		"Respond ONLY with JSON matching the provided schema. Never include prose outside the JSON object."
}
