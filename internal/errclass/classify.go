// Package errclass maps raw source-adapter failures (an HTTP status code
// and/or a free-text message) into the structured model.APIError taxonomy.
// It is pure and deterministic: identical inputs always produce identical
// outputs (law L3), and it never panics — misclassification surfaces as
// model.ErrorUnknown rather than an escaping error.
package errclass

import (
	"strings"

	"researchagent.dev/core/internal/model"
)

// Config holds the substring pattern lists the classifier consults when no
// HTTP code is available. Lists are matched case-insensitively.
type Config struct {
	TimeoutPatterns   []string
	RateLimitPatterns []string
	NetworkPatterns   []string
}

// DefaultConfig matches the pattern sets named in the configuration surface.
func DefaultConfig() Config {
	return Config{
		TimeoutPatterns:   []string{"timed out", "timeout", "read timed out"},
		RateLimitPatterns: []string{"rate limit", "429", "quota", "too many requests", "throttl"},
		NetworkPatterns:   []string{"connection refused", "no such host", "dns", "connection reset", "network is unreachable"},
	}
}

// Classifier classifies failures according to a fixed HTTP-code table and a
// configurable set of message substring patterns.
type Classifier struct {
	cfg Config
}

func New(cfg Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify implements the §4.1 algorithm: HTTP-code table first, then
// case-insensitive substring patterns, then a conservative UNKNOWN fallback.
func (c *Classifier) Classify(message string, httpCode *int, sourceID string) model.APIError {
	if httpCode != nil {
		if err, ok := classifyHTTPCode(*httpCode, message, sourceID); ok {
			return err
		}
	}

	lower := strings.ToLower(message)
	for _, pat := range c.cfg.TimeoutPatterns {
		if strings.Contains(lower, pat) {
			return model.APIError{
				HTTPCode: httpCode, Category: model.ErrorTimeout, Message: message,
				IsRetryable: true, IsReformulable: false, SourceID: sourceID,
			}
		}
	}
	for _, pat := range c.cfg.RateLimitPatterns {
		if strings.Contains(lower, pat) {
			return model.APIError{
				HTTPCode: httpCode, Category: model.ErrorRateLimit, Message: message,
				IsRetryable: true, IsReformulable: false, SourceID: sourceID,
			}
		}
	}
	for _, pat := range c.cfg.NetworkPatterns {
		if strings.Contains(lower, pat) {
			return model.APIError{
				HTTPCode: httpCode, Category: model.ErrorNetwork, Message: message,
				IsRetryable: true, IsReformulable: false, SourceID: sourceID,
			}
		}
	}

	return model.APIError{
		HTTPCode: httpCode, Category: model.ErrorUnknown, Message: message,
		IsRetryable: false, IsReformulable: false, SourceID: sourceID,
	}
}

func classifyHTTPCode(code int, message, sourceID string) (model.APIError, bool) {
	base := model.APIError{HTTPCode: &code, Message: message, SourceID: sourceID}

	switch code {
	case 401, 403:
		base.Category = model.ErrorAuthentication
		return base, true
	case 404:
		base.Category = model.ErrorNotFound
		return base, true
	case 429:
		base.Category = model.ErrorRateLimit
		base.IsRetryable = true
		return base, true
	case 400, 422:
		base.Category = model.ErrorValidation
		base.IsReformulable = true
		return base, true
	case 500, 502, 503, 504:
		base.Category = model.ErrorServerError
		base.IsRetryable = true
		return base, true
	}

	switch {
	case code >= 400 && code < 600:
		base.Category = model.ErrorUnknown
		return base, true
	}

	return base, false
}
