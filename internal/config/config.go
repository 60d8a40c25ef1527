package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ErrMisconfigured is returned by Validate when a required provider is not configured.
var ErrMisconfigured = errors.New("provider misconfigured")

// Timing holds the display, translation and generation policy knobs.
type Timing struct {
	DisplayMaxChars    int
	DisplayCooldown    time.Duration
	Freshness          time.Duration
	PersistentMaxChars int
	HistoryMax         int
	InterimMinWords    int
	InterimCooldown    time.Duration
	StreamGrowthChars  int
	StreamCadence      time.Duration
	CandidateExpiry    time.Duration
	SpeakingSafety     time.Duration
}

// DefaultTiming returns the canonical timing policy.
func DefaultTiming() Timing {
	return Timing{
		DisplayMaxChars:    200,
		DisplayCooldown:    300 * time.Millisecond,
		Freshness:          10 * time.Second,
		PersistentMaxChars: 500,
		HistoryMax:         15,
		InterimMinWords:    3,
		InterimCooldown:    1500 * time.Millisecond,
		StreamGrowthChars:  12,
		StreamCadence:      400 * time.Millisecond,
		CandidateExpiry:    30 * time.Second,
		SpeakingSafety:     15 * time.Second,
	}
}

// Config holds application configuration.
type Config struct {
	HTTPAddress string

	AssemblyAIKey string
	TokenTTL      time.Duration
	SpeakerLabels bool

	LLMProvider string
	LLMKey      string
	LLMBaseURL  string
	LLMModel    string

	CompanionURL   string
	ControlToken   string
	ICEServersJSON string

	DefaultLanguage     string
	DefaultLanguageCode string
	DisplayLanguageCode string

	SweepSpec string
	Timing    Timing
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file loaded; using process environment")
	}

	addr := getEnv("HTTP_ADDRESS", ":8080")

	assemblyAIKey := os.Getenv("ASSEMBLYAI_API_KEY")
	if assemblyAIKey == "" {
		log.Println("Warning: ASSEMBLYAI_API_KEY not set - transcription will not work")
	}

	provider := getEnv("LLM_PROVIDER", "cerebras")
	llmKey := os.Getenv("LLM_API_KEY")
	baseURL := os.Getenv("LLM_BASE_URL")
	model := os.Getenv("LLM_MODEL_ID")
	switch provider {
	case "gemini":
		if llmKey == "" {
			llmKey = os.Getenv("GEMINI_API_KEY")
		}
		if model == "" {
			model = "gemini-2.5-flash"
		}
	case "openai":
		if llmKey == "" {
			llmKey = os.Getenv("OPENAI_API_KEY")
		}
		if model == "" {
			model = "gpt-4.1-mini"
		}
	default:
		if llmKey == "" {
			llmKey = os.Getenv("CEREBRAS_API_KEY")
		}
		if baseURL == "" {
			baseURL = "https://api.cerebras.ai/v1"
		}
		if model == "" {
			model = "gpt-oss-120b"
		}
	}
	if llmKey == "" {
		log.Printf("Warning: no API key for LLM provider %q - translation and replies will not work", provider)
	}

	companion := os.Getenv("COMPANION_WEBHOOK_URL")
	if companion == "" {
		log.Println("Warning: COMPANION_WEBHOOK_URL not set - selected replies will not be played back")
	}

	t := DefaultTiming()
	t.DisplayMaxChars = getInt("DISPLAY_MAX_CHARS", t.DisplayMaxChars)
	t.DisplayCooldown = getMillis("DISPLAY_COOLDOWN_MS", t.DisplayCooldown)
	t.Freshness = getMillis("FRESHNESS_WINDOW_MS", t.Freshness)
	t.PersistentMaxChars = getInt("PERSISTENT_MAX_CHARS", t.PersistentMaxChars)
	t.HistoryMax = getInt("HISTORY_MAX", t.HistoryMax)
	t.InterimMinWords = getInt("INTERIM_MIN_WORDS", t.InterimMinWords)
	t.InterimCooldown = getMillis("INTERIM_COOLDOWN_MS", t.InterimCooldown)
	t.StreamGrowthChars = getInt("STREAM_GROWTH_CHARS", t.StreamGrowthChars)
	t.StreamCadence = getMillis("STREAM_CADENCE_MS", t.StreamCadence)
	t.CandidateExpiry = getMillis("CANDIDATE_EXPIRY_MS", t.CandidateExpiry)
	t.SpeakingSafety = getMillis("SPEAKING_SAFETY_MS", t.SpeakingSafety)

	log.Printf("config: HTTP_ADDRESS=%s LLM_PROVIDER=%s LLM_MODEL_ID=%s", addr, provider, model)
	return Config{
		HTTPAddress:         addr,
		AssemblyAIKey:       assemblyAIKey,
		TokenTTL:            time.Duration(getInt("ASSEMBLYAI_TOKEN_TTL", 60)) * time.Second,
		SpeakerLabels:       os.Getenv("ASSEMBLYAI_SPEAKER_LABELS") == "true",
		LLMProvider:         provider,
		LLMKey:              llmKey,
		LLMBaseURL:          baseURL,
		LLMModel:            model,
		CompanionURL:        companion,
		ControlToken:        os.Getenv("CONTROL_TOKEN"),
		ICEServersJSON:      getEnv("ICE_SERVERS_JSON", `[{"urls":["stun:stun.l.google.com:19302"]}]`),
		DefaultLanguage:     getEnv("DEFAULT_LANGUAGE", "English"),
		DefaultLanguageCode: getEnv("DEFAULT_LANGUAGE_CODE", "en"),
		DisplayLanguageCode: getEnv("DISPLAY_LANGUAGE_CODE", "en"),
		SweepSpec:           getEnv("SWEEP_SPEC", "@every 1s"),
		Timing:              t,
	}
}

// Validate reports total provider misconfiguration. It is meant to be surfaced once at startup.
func (c Config) Validate() error {
	if c.AssemblyAIKey == "" {
		return fmt.Errorf("%w: ASSEMBLYAI_API_KEY is empty", ErrMisconfigured)
	}
	if c.LLMKey == "" {
		return fmt.Errorf("%w: no API key for LLM provider %q", ErrMisconfigured, c.LLMProvider)
	}
	switch c.LLMProvider {
	case "cerebras", "openai", "gemini":
	default:
		return fmt.Errorf("%w: unknown LLM_PROVIDER %q", ErrMisconfigured, c.LLMProvider)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		log.Printf("Warning: invalid %s=%q, using %d", key, raw, defaultValue)
		return defaultValue
	}
	return v
}

func getMillis(key string, defaultValue time.Duration) time.Duration {
	ms := getInt(key, int(defaultValue/time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}
