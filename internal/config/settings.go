package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Addr  string `mapstructure:"addr"`
	Debug bool   `mapstructure:"debug"`
}

// SpeechConfig describes the recognition stream opened per session.
type SpeechConfig struct {
	Backend        string `mapstructure:"backend"` // "google" or "deepgram"
	Language       string `mapstructure:"language"`
	SampleRate     int    `mapstructure:"sample_rate"`
	InterimResults bool   `mapstructure:"interim_results"`
}

type GenerationConfig struct {
	Backend     string        `mapstructure:"backend"` // "gemini" or "openai"
	Model       string        `mapstructure:"model"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

type SynthesisConfig struct {
	VoiceID string `mapstructure:"voice_id"`
	ModelID string `mapstructure:"model_id"`
}

// RelayConfig holds the per-session queue and polling knobs. The take/send
// timeouts double as the shutdown-polling granularity.
type RelayConfig struct {
	IngressCapacity   int           `mapstructure:"ingress_capacity"`
	TakeTimeout       time.Duration `mapstructure:"take_timeout"`
	SendPoll          time.Duration `mapstructure:"send_poll"`
	WorkerJoinTimeout time.Duration `mapstructure:"worker_join_timeout"`
}

type Settings struct {
	Server     ServerConfig     `mapstructure:"server"`
	Speech     SpeechConfig     `mapstructure:"speech"`
	Generation GenerationConfig `mapstructure:"generation"`
	Synthesis  SynthesisConfig  `mapstructure:"synthesis"`
	Relay      RelayConfig      `mapstructure:"relay"`
	Env        string           `mapstructure:"env"`
}

// Credentials are read from the environment only, never from config files.
// An empty value means the corresponding collaborator is disabled for every
// session; the relay itself keeps running.
type Credentials struct {
	GoogleApplicationCredentials string
	GeminiAPIKey                 string
	ElevenLabsAPIKey             string
	DeepgramAPIKey               string
	OpenAIAPIKey                 string
}

func LoadCredentials() Credentials {
	return Credentials{
		GoogleApplicationCredentials: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		GeminiAPIKey:                 os.Getenv("VOICE_ASSISTANT_GEMINI_API_KEY"),
		ElevenLabsAPIKey:             os.Getenv("VOICE_ASSISTANT_ELEVENLABS_API_KEY"),
		DeepgramAPIKey:               os.Getenv("DEEPGRAM_API_KEY"),
		OpenAIAPIKey:                 os.Getenv("OPEN_AI_API_KEY"),
	}
}

func defaults() Settings {
	return Settings{
		Server: ServerConfig{Addr: ":8000", Debug: false},
		Speech: SpeechConfig{
			Backend:        "google",
			Language:       "en-US",
			SampleRate:     16000,
			InterimResults: true,
		},
		Generation: GenerationConfig{
			Backend:     "gemini",
			Model:       "gemini-2.5-flash",
			CallTimeout: 30 * time.Second,
		},
		Synthesis: SynthesisConfig{
			VoiceID: "JBFqnCBsd6RMkjVDRZzb",
			ModelID: "eleven_multilingual_v2",
		},
		Relay: RelayConfig{
			IngressCapacity:   100,
			TakeTimeout:       100 * time.Millisecond,
			SendPoll:          200 * time.Millisecond,
			WorkerJoinTimeout: 2 * time.Second,
		},
	}
}

// Load reads config_<env>.yaml when present and overlays it on the defaults.
// A missing file is not an error: the relay is fully operable from env vars.
func Load() (*Settings, error) {
	viper.SetConfigName("config_" + genEnv())
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")

	settings := defaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		return &settings, nil
	}

	if err := viper.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &settings, nil
}

func genEnv() string {
	env := viper.GetString("ENV")
	if env == "" {
		return "dev"
	}
	return env
}
