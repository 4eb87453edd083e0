package relay

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/voxline/voxline/pkg/Logger"
	"github.com/voxline/voxline/pkg/speech"
)

// synthesisChunkSize is how much synthesized audio goes into one binary
// frame. Small enough to bound time-to-first-audio, large enough to keep
// frame overhead negligible.
const synthesisChunkSize = 4096

// Worker drives one recognition stream for the session's lifetime on its own
// goroutine; the recognition call is blocking and long-lived, so it must stay
// off the connection's receive loop. Every result becomes a Transcript
// message; every final result additionally runs the generation bridge
// synchronously before the next Recv, which serializes generation against
// transcript delivery per utterance without ever blocking audio ingestion.
type Worker struct {
	ingress  *IngressBuffer
	out      *OutboundQueue
	shutdown *atomic.Bool

	recognizer  speech.Recognizer
	generator   speech.Generator
	synthesizer speech.Synthesizer

	streamCfg   speech.StreamConfig
	takeTimeout time.Duration
	genTimeout  time.Duration

	logger *Logger.Logger
	done   chan struct{}
}

type WorkerConfig struct {
	Stream            speech.StreamConfig
	TakeTimeout       time.Duration
	GenerationTimeout time.Duration
}

func NewWorker(
	ingress *IngressBuffer,
	out *OutboundQueue,
	shutdown *atomic.Bool,
	recognizer speech.Recognizer,
	generator speech.Generator,
	synthesizer speech.Synthesizer,
	cfg WorkerConfig,
	logger *Logger.Logger,
) *Worker {
	if cfg.TakeTimeout <= 0 {
		cfg.TakeTimeout = 100 * time.Millisecond
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 30 * time.Second
	}
	return &Worker{
		ingress:     ingress,
		out:         out,
		shutdown:    shutdown,
		recognizer:  recognizer,
		generator:   generator,
		synthesizer: synthesizer,
		streamCfg:   cfg.Stream,
		takeTimeout: cfg.TakeTimeout,
		genTimeout:  cfg.GenerationTimeout,
		logger:      logger,
	}
}

// Start launches the worker goroutine. Call at most once.
func (w *Worker) Start(ctx context.Context) {
	w.done = make(chan struct{})
	go w.run(ctx)
}

// Done is closed when the worker has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	// The worker never restarts within a session; whatever ends it also
	// ends the session's transcription path.
	defer w.shutdown.Store(true)

	stream, err := w.recognizer.OpenStream(ctx, w.streamCfg)
	if err != nil {
		w.logger.Errorf("failed to open recognition stream: %v", err)
		w.out.Put(InfoMessage(fmt.Sprintf("Transcription error: %v", err)))
		return
	}

	go w.feed(stream)

	for {
		result, err := stream.Recv()
		if err == io.EOF {
			w.logger.Infof("recognition stream ended")
			return
		}
		if err != nil {
			w.logger.Errorf("recognition stream failed: %v", err)
			w.out.Put(InfoMessage(fmt.Sprintf("Transcription error: %v", err)))
			return
		}

		w.logger.Infof("transcript (%s): %s", finality(result.IsFinal), result.Text)
		w.out.Put(TranscriptMessage(result.Text, result.IsFinal))

		if result.IsFinal && w.generator != nil {
			w.respond(ctx, result.Text)
		}
	}
}

// feed pumps buffered audio chunks into the recognition stream until the
// sentinel is read, the shutdown flag is set, or a send fails. The short Take
// timeout is the polling granularity for the flag.
func (w *Worker) feed(stream speech.Stream) {
	for !w.shutdown.Load() {
		chunk, ok := w.ingress.Take(w.takeTimeout)
		if !ok {
			continue
		}
		if chunk == nil {
			break
		}
		if err := stream.Send(chunk); err != nil {
			w.logger.Errorf("failed to send audio to recognizer: %v", err)
			break
		}
	}
	if err := stream.CloseSend(); err != nil {
		w.logger.Debugf("recognition CloseSend: %v", err)
	}
}

// respond is the generation bridge: one blocking generation call per final
// transcript, then streamed synthesis when configured. Failures here are
// per-utterance; they never end the session.
func (w *Worker) respond(ctx context.Context, transcript string) {
	genCtx, cancel := context.WithTimeout(ctx, w.genTimeout)
	reply, err := w.generator.Generate(genCtx, transcript)
	cancel()
	if err != nil {
		w.logger.Errorf("generation failed: %v", err)
		w.out.Put(InfoMessage(fmt.Sprintf("LLM error: %v", err)))
		return
	}
	w.logger.Infof("generation reply: %s", reply)

	if w.synthesizer != nil {
		// Synthesis gets a full budget of its own; it must not run on
		// whatever the generation call left of its deadline.
		synthCtx, cancelSynth := context.WithTimeout(ctx, w.genTimeout)
		w.synthesize(synthCtx, reply)
		cancelSynth()
	}

	// The text reply always follows any audio for the same utterance.
	w.out.Put(GenerationTextMessage(reply))
}

// synthesize streams synthesized audio to the outbound queue chunk by chunk,
// bounding end-to-end latency to the first chunk rather than the whole
// synthesis.
func (w *Worker) synthesize(ctx context.Context, text string) {
	body, err := w.synthesizer.Synthesize(ctx, text)
	if err != nil {
		w.logger.Errorf("synthesis failed: %v", err)
		w.out.Put(InfoMessage(fmt.Sprintf("TTS error: %v", err)))
		return
	}
	defer body.Close()

	for {
		chunk := make([]byte, synthesisChunkSize)
		n, err := body.Read(chunk)
		if n > 0 {
			w.out.Put(AudioMessage(chunk[:n]))
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			w.logger.Errorf("synthesis stream read failed: %v", err)
			w.out.Put(InfoMessage(fmt.Sprintf("TTS error: %v", err)))
			return
		}
	}
}

func finality(isFinal bool) string {
	if isFinal {
		return "final"
	}
	return "partial"
}
