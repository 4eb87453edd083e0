// Package speech defines the narrow contracts for the three external
// collaborators the relay drives: streaming recognition, text generation
// and speech synthesis. Implementations live in the subpackages; the relay
// core only ever sees these interfaces.
package speech

import (
	"context"
	"io"
)

// Result is one unit reported by a recognition stream. Interim results
// carry IsFinal=false and may be revised; a final result closes the
// utterance.
type Result struct {
	Text    string
	IsFinal bool
}

// StreamConfig describes the audio a recognition stream will receive.
// Encoding is fixed to 16-bit little-endian PCM (LINEAR16) and streams are
// always opened with single_utterance disabled.
type StreamConfig struct {
	SampleRate     int
	Language       string
	InterimResults bool
}

// Stream is one live bidirectional recognition stream. Send and Recv may be
// called from different goroutines; neither is safe for concurrent use with
// itself. Recv returns io.EOF once the engine ends the stream cleanly and
// preserves the engine's result order.
type Stream interface {
	// Send forwards one chunk of raw audio to the engine.
	Send(audio []byte) error
	// CloseSend tells the engine no more audio will follow. Recv keeps
	// delivering any results still in flight.
	CloseSend() error
	// Recv blocks for the next recognition result.
	Recv() (Result, error)
}

// Recognizer opens recognition streams. A Recognizer is process-wide and
// must be safe to share across sessions; each session opens exactly one
// stream for its lifetime.
type Recognizer interface {
	OpenStream(ctx context.Context, cfg StreamConfig) (Stream, error)
}

// Generator produces a text reply for a finalized transcript. Callers bound
// the call with the context; there is no retry on failure.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Synthesizer turns text into a finite stream of encoded audio bytes. The
// returned reader streams chunks as the provider produces them; it is not
// restartable and the caller must close it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
}
