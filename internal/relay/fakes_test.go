package relay

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voxline/voxline/pkg/Logger"
	"github.com/voxline/voxline/pkg/speech"
)

func testLogger() *Logger.Logger {
	return &Logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// fakeStream scripts recognition results through a channel; closing the
// channel ends the stream cleanly (io.EOF).
type fakeStream struct {
	results chan speech.Result

	mu     sync.Mutex
	sent   [][]byte
	closed bool

	sendErr   error
	blockSend chan struct{} // when set, Send waits until it is closed
}

func newFakeStream(buffered int) *fakeStream {
	return &fakeStream{results: make(chan speech.Result, buffered)}
}

func (s *fakeStream) Send(audio []byte) error {
	if s.blockSend != nil {
		<-s.blockSend
	}
	if s.sendErr != nil {
		return s.sendErr
	}
	s.mu.Lock()
	s.sent = append(s.sent, append([]byte(nil), audio...))
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) CloseSend() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) Recv() (speech.Result, error) {
	r, ok := <-s.results
	if !ok {
		return speech.Result{}, io.EOF
	}
	return r, nil
}

func (s *fakeStream) sentChunks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}

type fakeRecognizer struct {
	stream  *fakeStream
	openErr error
}

func (r *fakeRecognizer) OpenStream(_ context.Context, _ speech.StreamConfig) (speech.Stream, error) {
	if r.openErr != nil {
		return nil, r.openErr
	}
	return r.stream, nil
}

type fakeGenerator struct {
	reply string
	err   error
	delay time.Duration

	mu      sync.Mutex
	prompts []string
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func (g *fakeGenerator) seenPrompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.prompts))
	copy(out, g.prompts)
	return out
}

type fakeSynthesizer struct {
	audio []byte
	err   error

	mu       sync.Mutex
	deadline time.Time
}

func (s *fakeSynthesizer) Synthesize(ctx context.Context, _ string) (io.ReadCloser, error) {
	if d, ok := ctx.Deadline(); ok {
		s.mu.Lock()
		s.deadline = d
		s.mu.Unlock()
	}
	if s.err != nil {
		return nil, s.err
	}
	return io.NopCloser(bytes.NewReader(s.audio)), nil
}

func (s *fakeSynthesizer) seenDeadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline
}
