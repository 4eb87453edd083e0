package config

import (
	"testing"
	"time"
)

func TestLoadReturnsDefaultsWithoutConfigFile(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Addr != ":8000" {
		t.Errorf("Server.Addr = %q, want :8000", cfg.Server.Addr)
	}
	if cfg.Speech.SampleRate != 16000 || cfg.Speech.Language != "en-US" {
		t.Errorf("Speech defaults = %+v", cfg.Speech)
	}
	if cfg.Generation.CallTimeout != 30*time.Second {
		t.Errorf("Generation.CallTimeout = %s, want 30s", cfg.Generation.CallTimeout)
	}
	if cfg.Relay.IngressCapacity != 100 {
		t.Errorf("Relay.IngressCapacity = %d, want 100", cfg.Relay.IngressCapacity)
	}
	if cfg.Relay.TakeTimeout != 100*time.Millisecond || cfg.Relay.SendPoll != 200*time.Millisecond {
		t.Errorf("Relay polling defaults = %+v", cfg.Relay)
	}
}

func TestLoadCredentialsFromEnv(t *testing.T) {
	t.Setenv("VOICE_ASSISTANT_GEMINI_API_KEY", "gem-key")
	t.Setenv("DEEPGRAM_API_KEY", "dg-key")
	t.Setenv("VOICE_ASSISTANT_ELEVENLABS_API_KEY", "")

	creds := LoadCredentials()
	if creds.GeminiAPIKey != "gem-key" {
		t.Errorf("GeminiAPIKey = %q", creds.GeminiAPIKey)
	}
	if creds.DeepgramAPIKey != "dg-key" {
		t.Errorf("DeepgramAPIKey = %q", creds.DeepgramAPIKey)
	}
	if creds.ElevenLabsAPIKey != "" {
		t.Errorf("ElevenLabsAPIKey = %q, want empty", creds.ElevenLabsAPIKey)
	}
}
