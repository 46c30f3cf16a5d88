// Package config loads the research agent's configuration surface (§6.4)
// from environment variables, following the teacher's env-with-defaults
// idiom.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"researchagent.dev/core/internal/model"
)

// OTelConfig mirrors the teacher's minimal OTel toggle.
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Headers        string
}

func (o OTelConfig) Enabled() bool {
	return o.Endpoint != ""
}

// ErrorHandling carries the §6.4 error_handling block. cmd/researcher hands
// TimeoutPatterns and RateLimitPatterns to the error classifier; the two
// HTTP-code lists are not read by it, since its code table is fixed.
type ErrorHandling struct {
	UnfixableHTTPCodes []int
	FixableHTTPCodes   []int
	TimeoutPatterns    []string
	RateLimitPatterns  []string
}

// ManagerAgent carries the §6.4 manager_agent block.
type ManagerAgent struct {
	Enabled                  bool
	SaturationCheckInterval  int
	SaturationConfidence     int
	ReprioritizeAfterTask    bool
	AllowSaturationStop      bool
}

// DatabaseConfig is the per-source enabled/timeout pair from the
// databases.<source_id> block.
type DatabaseConfig struct {
	Enabled        bool
	TimeoutSeconds int
}

// Config is the full configuration surface.
type Config struct {
	Env  string
	Port string

	DB    DBConfig
	Redis RedisConfig
	Arango ArangoConfig
	OTel  OTelConfig

	Constraints   model.Constraints
	ErrorHandling ErrorHandling
	ManagerAgent  ManagerAgent
	ModelRoles    map[string]string
	Databases     map[string]DatabaseConfig

	OpenAIAPIKey    string
	AnthropicAPIKey string
}

type DBConfig struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ArangoConfig struct {
	URL      string
	Username string
	Password string
	Database string
}

// Load loads configuration from environment variables (and an optional
// .env file), with sensible development defaults.
func Load() Config {
	_ = godotenv.Load()

	constraints := model.DefaultConstraints()
	constraints.MaxDepth = getEnvInt("RESEARCH_MAX_DEPTH", constraints.MaxDepth)
	constraints.MaxGoals = getEnvInt("RESEARCH_MAX_GOALS", constraints.MaxGoals)
	constraints.MaxTimeSeconds = getEnvInt("RESEARCH_MAX_TIME_SECONDS", constraints.MaxTimeSeconds)
	constraints.MaxTimePerSourceSeconds = getEnvInt("RESEARCH_MAX_TIME_PER_SOURCE_SECONDS", constraints.MaxTimePerSourceSeconds)
	constraints.MaxReformulationAttempts = getEnvInt("RESEARCH_MAX_REFORMULATION_ATTEMPTS", constraints.MaxReformulationAttempts)
	constraints.RateLimitCooldownSeconds = getEnvInt("RESEARCH_RATE_LIMIT_COOLDOWN_SECONDS", constraints.RateLimitCooldownSeconds)
	constraints.SaturationCheckInterval = getEnvInt("RESEARCH_SATURATION_CHECK_INTERVAL", constraints.SaturationCheckInterval)
	constraints.SaturationConfidenceThreshold = getEnvInt("RESEARCH_SATURATION_CONFIDENCE_THRESHOLD", constraints.SaturationConfidenceThreshold)
	constraints.MaxConcurrentTasks = getEnvInt("RESEARCH_MAX_CONCURRENT_TASKS", constraints.MaxConcurrentTasks)

	return Config{
		Env:  getEnv("RESEARCH_ENV", "development"),
		Port: getEnv("PORT", "8080"),
		DB: DBConfig{
			DSN:      buildDSN(),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 2)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Arango: ArangoConfig{
			URL:      getEnv("ARANGO_URL", "http://localhost:8529"),
			Username: getEnv("ARANGO_USERNAME", "root"),
			Password: getEnv("ARANGO_PASSWORD", ""),
			Database: getEnv("ARANGO_DATABASE", "research"),
		},
		OTel: OTelConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "research-agent"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
		},
		Constraints: constraints,
		ErrorHandling: ErrorHandling{
			UnfixableHTTPCodes: getEnvInts("ERROR_HANDLING_UNFIXABLE_HTTP_CODES", []int{401, 403, 404, 429, 500, 502, 503, 504}),
			FixableHTTPCodes:   getEnvInts("ERROR_HANDLING_FIXABLE_HTTP_CODES", []int{400, 422}),
			TimeoutPatterns:    getEnvList("ERROR_HANDLING_TIMEOUT_PATTERNS", []string{"timed out", "timeout", "read timed out"}),
			RateLimitPatterns:  getEnvList("ERROR_HANDLING_RATE_LIMIT_PATTERNS", []string{"rate limit", "429", "quota", "too many requests", "throttl"}),
		},
		ManagerAgent: ManagerAgent{
			Enabled:                 getEnvBool("MANAGER_AGENT_ENABLED", true),
			SaturationCheckInterval: getEnvInt("MANAGER_AGENT_SATURATION_CHECK_INTERVAL", 3),
			SaturationConfidence:    getEnvInt("MANAGER_AGENT_SATURATION_CONFIDENCE_THRESHOLD", 70),
			ReprioritizeAfterTask:   getEnvBool("MANAGER_AGENT_REPRIORITIZE_AFTER_TASK", true),
			AllowSaturationStop:     getEnvBool("MANAGER_AGENT_ALLOW_SATURATION_STOP", true),
		},
		ModelRoles: map[string]string{
			"scoping":       getEnv("MODEL_ROLE_SCOPING", getEnv("MODEL_ROLE_DEFAULT", "gpt-4.1-mini")),
			"research":      getEnv("MODEL_ROLE_RESEARCH", getEnv("MODEL_ROLE_DEFAULT", "gpt-4.1-mini")),
			"summarization": getEnv("MODEL_ROLE_SUMMARIZATION", getEnv("MODEL_ROLE_DEFAULT", "gpt-4.1-mini")),
			"synthesis":     getEnv("MODEL_ROLE_SYNTHESIS", getEnv("MODEL_ROLE_DEFAULT", "gpt-4.1-mini")),
			"analysis":      getEnv("MODEL_ROLE_ANALYSIS", getEnv("MODEL_ROLE_DEFAULT", "gpt-4.1-mini")),
		},
		Databases:       map[string]DatabaseConfig{},
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
	}
}

func buildDSN() string {
	host := getEnv("DATABASE_HOST", "localhost")
	port := getEnv("DATABASE_PORT", "5432")
	user := getEnv("DATABASE_USER", "postgres")
	password := getEnv("DATABASE_PASSWORD", "postgres")
	name := getEnv("DATABASE_NAME", "research_agent")
	sslMode := getEnv("DATABASE_SSLMODE", "disable")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, name, sslMode,
	)
}

func (c Config) IsProduction() bool  { return c.Env == "production" }
func (c Config) IsDevelopment() bool { return c.Env == "development" }

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				out = append(out, t)
			}
		}
		return out
	}
	return fallback
}

func getEnvInts(key string, fallback []int) []int {
	if value, ok := os.LookupEnv(key); ok {
		parts := strings.Split(value, ",")
		out := make([]int, 0, len(parts))
		for _, p := range parts {
			if i, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
				out = append(out, i)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}
