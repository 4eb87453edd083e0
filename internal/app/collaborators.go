package app

import (
	"context"
	"io"

	"github.com/voxline/voxline/internal/config"
	"github.com/voxline/voxline/internal/relay"
	"github.com/voxline/voxline/pkg/Logger"
	"github.com/voxline/voxline/pkg/speech"
	"github.com/voxline/voxline/pkg/speech/deepgram"
	"github.com/voxline/voxline/pkg/speech/elevenlabs"
	"github.com/voxline/voxline/pkg/speech/gemini"
	"github.com/voxline/voxline/pkg/speech/googlestt"
	"github.com/voxline/voxline/pkg/speech/openaigen"
)

// CollaboratorFactory builds the process-wide recognition, generation and
// synthesis clients from configuration and credentials. Each capability is
// independent: a missing key disables that capability and nothing else.
type CollaboratorFactory struct {
	config  *config.Settings
	creds   config.Credentials
	logger  *Logger.Logger
	closers []io.Closer
}

// NewCollaboratorFactory creates a new collaborator factory
func NewCollaboratorFactory(cfg *config.Settings, creds config.Credentials, logger *Logger.Logger) *CollaboratorFactory {
	return &CollaboratorFactory{
		config: cfg,
		creds:  creds,
		logger: logger,
	}
}

// Build assembles whatever the credentials allow.
func (f *CollaboratorFactory) Build(ctx context.Context) relay.Collaborators {
	return relay.Collaborators{
		Recognizer:  f.buildRecognizer(ctx),
		Generator:   f.buildGenerator(ctx),
		Synthesizer: f.buildSynthesizer(),
	}
}

// Closers returns the clients that hold connections and must be released on
// shutdown.
func (f *CollaboratorFactory) Closers() []io.Closer {
	return f.closers
}

func (f *CollaboratorFactory) buildRecognizer(ctx context.Context) speech.Recognizer {
	switch f.config.Speech.Backend {
	case "deepgram":
		if f.creds.DeepgramAPIKey == "" {
			f.logger.Warn("DEEPGRAM_API_KEY not set; transcription disabled")
			return nil
		}
		f.logger.Infof("Using Deepgram recognition")
		return deepgram.New(f.creds.DeepgramAPIKey, f.logger.Named("deepgram"))

	default: // "google"
		if f.creds.GoogleApplicationCredentials == "" {
			f.logger.Warn("GOOGLE_APPLICATION_CREDENTIALS not set; transcription disabled")
			return nil
		}
		client, err := googlestt.New(ctx, f.logger.Named("stt"))
		if err != nil {
			f.logger.Errorf("failed to create Google speech client: %v; transcription disabled", err)
			return nil
		}
		f.closers = append(f.closers, client)
		f.logger.Infof("Using Google Cloud recognition")
		return client
	}
}

func (f *CollaboratorFactory) buildGenerator(ctx context.Context) speech.Generator {
	switch f.config.Generation.Backend {
	case "openai":
		if f.creds.OpenAIAPIKey == "" {
			f.logger.Warn("OPEN_AI_API_KEY not set; generation disabled")
			return nil
		}
		f.logger.Infof("Using OpenAI generation (model %s)", f.config.Generation.Model)
		return openaigen.New(f.creds.OpenAIAPIKey, f.config.Generation.Model)

	default: // "gemini"
		if f.creds.GeminiAPIKey == "" {
			f.logger.Warn("VOICE_ASSISTANT_GEMINI_API_KEY not set; generation disabled")
			return nil
		}
		gen, err := gemini.New(ctx, gemini.Config{
			APIKey:    f.creds.GeminiAPIKey,
			ModelName: f.config.Generation.Model,
		}, f.logger.Named("gemini"))
		if err != nil {
			f.logger.Errorf("failed to create Gemini client: %v; generation disabled", err)
			return nil
		}
		f.closers = append(f.closers, gen)
		f.logger.Infof("Using Gemini generation (model %s)", f.config.Generation.Model)
		return gen
	}
}

func (f *CollaboratorFactory) buildSynthesizer() speech.Synthesizer {
	if f.creds.ElevenLabsAPIKey == "" {
		f.logger.Warn("VOICE_ASSISTANT_ELEVENLABS_API_KEY not set; synthesis disabled")
		return nil
	}
	f.logger.Infof("Using ElevenLabs synthesis (voice %s)", f.config.Synthesis.VoiceID)
	return elevenlabs.New(f.creds.ElevenLabsAPIKey, f.config.Synthesis.VoiceID, f.config.Synthesis.ModelID)
}
