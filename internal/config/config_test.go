package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("HTTP_ADDRESS", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("LLM_MODEL_ID", "")
	t.Setenv("LLM_BASE_URL", "")
	t.Setenv("ICE_SERVERS_JSON", "")
	t.Setenv("DISPLAY_COOLDOWN_MS", "")
	cfg := Load()
	if cfg.HTTPAddress != ":8080" {
		t.Fatalf("expected default http address, got %q", cfg.HTTPAddress)
	}
	if cfg.LLMProvider != "cerebras" || cfg.LLMBaseURL == "" || cfg.LLMModel == "" {
		t.Fatalf("expected cerebras defaults, got %+v", cfg)
	}
	if cfg.ICEServersJSON == "" {
		t.Fatalf("expected default ice servers json")
	}
	if cfg.Timing != DefaultTiming() {
		t.Fatalf("expected default timing, got %+v", cfg.Timing)
	}
}

func TestLoad_TimingOverrides(t *testing.T) {
	t.Setenv("DISPLAY_COOLDOWN_MS", "120")
	t.Setenv("HISTORY_MAX", "4")
	t.Setenv("INTERIM_MIN_WORDS", "nope")
	cfg := Load()
	if cfg.Timing.DisplayCooldown != 120*time.Millisecond {
		t.Fatalf("cooldown override ignored: %v", cfg.Timing.DisplayCooldown)
	}
	if cfg.Timing.HistoryMax != 4 {
		t.Fatalf("history override ignored: %d", cfg.Timing.HistoryMax)
	}
	if cfg.Timing.InterimMinWords != DefaultTiming().InterimMinWords {
		t.Fatalf("invalid value should fall back to default, got %d", cfg.Timing.InterimMinWords)
	}
}

func TestLoad_GeminiDefaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("LLM_MODEL_ID", "")
	t.Setenv("LLM_BASE_URL", "")
	t.Setenv("GEMINI_API_KEY", "g-key")
	cfg := Load()
	if cfg.LLMKey != "g-key" {
		t.Fatalf("expected gemini key fallback, got %q", cfg.LLMKey)
	}
	if cfg.LLMBaseURL != "" {
		t.Fatalf("gemini should not get a base url, got %q", cfg.LLMBaseURL)
	}
}

func TestValidate(t *testing.T) {
	ok := Config{AssemblyAIKey: "a", LLMKey: "b", LLMProvider: "cerebras"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cases := []Config{
		{LLMKey: "b", LLMProvider: "cerebras"},
		{AssemblyAIKey: "a", LLMProvider: "cerebras"},
		{AssemblyAIKey: "a", LLMKey: "b", LLMProvider: "bogus"},
	}
	for _, c := range cases {
		if err := c.Validate(); !errors.Is(err, ErrMisconfigured) {
			t.Fatalf("expected ErrMisconfigured for %+v, got %v", c, err)
		}
	}
}
