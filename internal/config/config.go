package config

import (
	"fmt"
	"os"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Mode selects the narrator system prompt and whether Suggestions runs.
type Mode string

const (
	ModeAdventure Mode = "adventure"
	ModeCreative  Mode = "creative-writing"
)

// QualityTier maps to a per-role model id via the embedded models/tiers.yaml.
type QualityTier string

const (
	TierSwift    QualityTier = "swift"
	TierBalanced QualityTier = "balanced"
	TierVivid    QualityTier = "vivid"
)

type InjectionMode string

const (
	InjectionAuto      InjectionMode = "auto"
	InjectionAll       InjectionMode = "all"
	InjectionStateOnly InjectionMode = "state-only"
)

// MemoryConfig controls the Memory/Chapter Engine (spec §4.4, §6).
type MemoryConfig struct {
	ChapterThreshold        int // N: entries since last boundary before considering a new chapter
	ChapterBuffer           int // X: entries held back to preserve local context
	AutoSummarize           bool
	EnableRetrieval         bool
	MaxChaptersPerRetrieval int
	EnableArcs              bool
}

// EntryConfig controls the Entry Engine (spec §4.7).
type EntryConfig struct {
	EnableLLMSelection bool
	LLMThreshold       int
	InjectionMode      InjectionMode
	MaxEntryTokens     int
}

// ProviderModels overrides the model id used for each orchestration role.
type ProviderModels struct {
	Narrator      string
	Classifier    string
	Retrieval     string
	Summarization string
	Suggestions   string
}

// Config is the root configuration for the turn orchestration core.
type Config struct {
	Environment string // dev | test | prod
	Mode        Mode
	QualityTier QualityTier

	MemoryConfig MemoryConfig
	EntryConfig  EntryConfig
	Models       ProviderModels

	RecentWindow int // W: recent messages considered by retrieval decision and tier-2 name matching (default 6)

	AnthropicAPIKey  string
	OpenRouterAPIKey string
	DefaultProvider  string

	DatabaseURL string
	TablePrefix string

	Debug bool
}

// Load builds a Config from environment variables, applying the defaults
// spec.md §6 names, then validates the enum-constrained fields before
// handing it to callers.
func Load() (*Config, error) {
	env := getEnv("ENVIRONMENT", "dev")

	cfg := &Config{
		Environment: env,
		Mode:        Mode(getEnv("AVENTURA_MODE", string(ModeAdventure))),
		QualityTier: QualityTier(getEnv("AVENTURA_QUALITY_TIER", string(TierBalanced))),

		MemoryConfig: MemoryConfig{
			ChapterThreshold:        getEnvInt("AVENTURA_CHAPTER_THRESHOLD", 50),
			ChapterBuffer:           getEnvInt("AVENTURA_CHAPTER_BUFFER", 10),
			AutoSummarize:           getEnvBool("AVENTURA_AUTO_SUMMARIZE", true),
			EnableRetrieval:         getEnvBool("AVENTURA_ENABLE_RETRIEVAL", true),
			MaxChaptersPerRetrieval: getEnvInt("AVENTURA_MAX_CHAPTERS_PER_RETRIEVAL", 4),
			EnableArcs:              getEnvBool("AVENTURA_ENABLE_ARCS", false),
		},
		EntryConfig: EntryConfig{
			EnableLLMSelection: getEnvBool("AVENTURA_ENABLE_LLM_SELECTION", true),
			LLMThreshold:       getEnvInt("AVENTURA_LLM_THRESHOLD", 30),
			InjectionMode:      InjectionMode(getEnv("AVENTURA_INJECTION_MODE", string(InjectionAuto))),
			MaxEntryTokens:     getEnvInt("AVENTURA_MAX_ENTRY_TOKENS", 2000),
		},
		Models: ProviderModels{
			Narrator:      getEnv("AVENTURA_MODEL_NARRATOR", ""),
			Classifier:    getEnv("AVENTURA_MODEL_CLASSIFIER", ""),
			Retrieval:     getEnv("AVENTURA_MODEL_RETRIEVAL", ""),
			Summarization: getEnv("AVENTURA_MODEL_SUMMARIZATION", ""),
			Suggestions:   getEnv("AVENTURA_MODEL_SUGGESTIONS", ""),
		},

		RecentWindow: getEnvInt("AVENTURA_RECENT_WINDOW", 6),

		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		OpenRouterAPIKey: getEnv("OPENROUTER_API_KEY", ""),
		DefaultProvider:  getEnv("AVENTURA_DEFAULT_PROVIDER", "anthropic"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		TablePrefix: getTablePrefix(env),

		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// validate enforces the enum-constrained fields every downstream
// component assumes are already one of their known values (Environment,
// Mode, QualityTier, and a sane retrieval window), the same boundary-
// validation style the teacher applies to inbound request structs via
// validation.ValidateStruct/validation.Field.
func (c *Config) validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Environment, validation.Required, validation.In("dev", "test", "prod")),
		validation.Field(&c.Mode, validation.Required, validation.In(ModeAdventure, ModeCreative)),
		validation.Field(&c.QualityTier, validation.Required, validation.In(TierSwift, TierBalanced, TierVivid)),
		validation.Field(&c.RecentWindow, validation.Min(1)),
	)
}

func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

func getTablePrefix(env string) string {
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}
	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
