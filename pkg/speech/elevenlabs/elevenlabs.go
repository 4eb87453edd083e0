// Package elevenlabs implements speech.Synthesizer over the ElevenLabs
// streaming text-to-speech endpoint. The response body is an MP3 stream
// which the relay forwards to the client chunk by chunk, untouched.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const baseURL = "https://api.elevenlabs.io"

type Synthesizer struct {
	apiKey  string
	voiceID string
	modelID string
	client  *http.Client
}

func New(apiKey, voiceID, modelID string) *Synthesizer {
	if voiceID == "" {
		voiceID = "JBFqnCBsd6RMkjVDRZzb"
	}
	if modelID == "" {
		modelID = "eleven_multilingual_v2"
	}
	return &Synthesizer{
		apiKey:  apiKey,
		voiceID: voiceID,
		modelID: modelID,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type ttsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// Synthesize starts one streaming synthesis call and hands the body back for
// incremental reads. The caller must close it.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}

	payload, err := json.Marshal(ttsRequest{Text: text, ModelID: s.modelID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tts payload: %w", err)
	}

	u := fmt.Sprintf("%s/v1/text-to-speech/%s/stream", baseURL, s.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build tts request: %w", err)
	}
	req.Header.Set("xi-api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts http request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, fmt.Errorf("tts http %d: %s", resp.StatusCode, string(b))
	}

	return resp.Body, nil
}
