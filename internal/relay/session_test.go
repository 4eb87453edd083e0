package relay

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxline/voxline/pkg/speech"
)

type connFrame struct {
	messageType int
	data        []byte
}

// fakeConn scripts inbound frames through a channel and records everything
// the session writes.
type fakeConn struct {
	reads chan connFrame

	mu     sync.Mutex
	writes []connFrame

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn(reads ...connFrame) *fakeConn {
	c := &fakeConn{
		reads:  make(chan connFrame, len(reads)),
		closed: make(chan struct{}),
	}
	for _, f := range reads {
		c.reads <- f
	}
	return c
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	f, ok := <-c.reads
	if !ok {
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
	return f.messageType, f.data, nil
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	c.writes = append(c.writes, connFrame{messageType, append([]byte(nil), data...)})
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) sentFrames() []connFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]connFrame, len(c.writes))
	copy(out, c.writes)
	return out
}

func binFrame(data []byte) connFrame {
	return connFrame{websocket.BinaryMessage, data}
}

func textFrame(text string) connFrame {
	return connFrame{websocket.TextMessage, []byte(text)}
}

func testOptions() Options {
	return Options{
		Stream:            speech.StreamConfig{SampleRate: 16000, Language: "en-US"},
		IngressCapacity:   10,
		TakeTimeout:       5 * time.Millisecond,
		SendPoll:          10 * time.Millisecond,
		WorkerJoinTimeout: time.Second,
		GenerationTimeout: time.Second,
	}
}

// decodeTextFrame returns the "type" tag and the decoded fields.
func decodeTextFrame(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("invalid JSON text frame %s: %v", data, err)
	}
	return fields
}

func runSession(t *testing.T, conn *fakeConn, collab Collaborators, opts Options) *Session {
	t.Helper()
	s := NewSession(conn, collab, opts, testLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(context.Background())
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("session did not finish")
	}
	return s
}

func TestSessionFullPipelineFrameSequence(t *testing.T) {
	stream := newFakeStream(2)
	stream.results <- speech.Result{Text: "hel", IsFinal: false}
	stream.results <- speech.Result{Text: "hello there", IsFinal: true}
	close(stream.results)

	collab := Collaborators{
		Recognizer:  &fakeRecognizer{stream: stream},
		Generator:   &fakeGenerator{reply: "sure thing"},
		Synthesizer: &fakeSynthesizer{audio: make([]byte, synthesisChunkSize+500)},
	}
	conn := newFakeConn(binFrame([]byte("pcm-chunk")), textFrame(" STOP "))

	s := runSession(t, conn, collab, testOptions())

	if got := s.State(); got != StateClosed {
		t.Errorf("State() = %q, want %q", got, StateClosed)
	}
	if !conn.isClosed() {
		t.Error("connection not closed after Run")
	}

	frames := conn.sentFrames()
	var types []string
	for _, f := range frames {
		if f.messageType == websocket.BinaryMessage {
			types = append(types, "audio")
			continue
		}
		fields := decodeTextFrame(t, f.data)
		types = append(types, fields["type"].(string))
	}

	want := []string{"info", "transcript", "transcript", "audio", "audio", "gemini_response"}
	if len(types) != len(want) {
		t.Fatalf("frame types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("frame #%d type = %q, want %q (full sequence %v)", i, types[i], want[i], types)
		}
	}

	ready := decodeTextFrame(t, frames[0].data)
	if ready["message"] != readyMessage {
		t.Errorf("first frame message = %q, want the ready message", ready["message"])
	}
	partial := decodeTextFrame(t, frames[1].data)
	if partial["is_final"] != false || partial["text"] != "hel" {
		t.Errorf("partial transcript frame = %v", partial)
	}
	final := decodeTextFrame(t, frames[2].data)
	if final["is_final"] != true || final["text"] != "hello there" {
		t.Errorf("final transcript frame = %v", final)
	}
	reply := decodeTextFrame(t, frames[5].data)
	if reply["text"] != "sure thing" {
		t.Errorf("reply frame = %v", reply)
	}
}

func TestSessionDegradedWithoutCollaborators(t *testing.T) {
	conn := newFakeConn(
		binFrame([]byte("ignored audio")),
		textFrame("hello server"),
		textFrame("eos"),
	)

	s := runSession(t, conn, Collaborators{}, testOptions())

	if got := s.State(); got != StateClosed {
		t.Errorf("State() = %q, want %q", got, StateClosed)
	}

	frames := conn.sentFrames()
	// Two capability warnings, the ready message, and the text echo; audio
	// is silently discarded with no recognizer.
	if len(frames) != 4 {
		t.Fatalf("got %d frames, want 4: %+v", len(frames), frames)
	}
	for i, f := range frames {
		if f.messageType != websocket.TextMessage {
			t.Fatalf("frame #%d is binary, want all text frames", i)
		}
		if typ := decodeTextFrame(t, f.data)["type"]; typ != "info" {
			t.Errorf("frame #%d type = %v, want info", i, typ)
		}
	}
	if msg := decodeTextFrame(t, frames[2].data)["message"]; msg != readyMessage {
		t.Errorf("frame #2 message = %q, want the ready message after capability warnings", msg)
	}
	if msg := decodeTextFrame(t, frames[3].data)["message"]; msg != "Server received text: hello server" {
		t.Errorf("text echo = %q", msg)
	}
}

func TestSessionShutdownBoundedByJoinTimeout(t *testing.T) {
	// Recv never returns; the drain sequence must abandon the worker after
	// the join timeout instead of hanging.
	stream := newFakeStream(0)
	defer close(stream.results)

	opts := testOptions()
	opts.WorkerJoinTimeout = 50 * time.Millisecond

	conn := newFakeConn(textFrame("stop"))

	start := time.Now()
	s := runSession(t, conn, Collaborators{Recognizer: &fakeRecognizer{stream: stream}}, opts)
	elapsed := time.Since(start)

	if got := s.State(); got != StateClosed {
		t.Errorf("State() = %q, want %q", got, StateClosed)
	}
	if elapsed > 3*time.Second {
		t.Errorf("shutdown took %s, want bounded by the join timeout", elapsed)
	}
}

// blockedWriterConn lets the first write through and parks every later write
// until release is closed.
type blockedWriterConn struct {
	*fakeConn

	wmu     sync.Mutex
	wrote   bool
	release chan struct{}
}

func (c *blockedWriterConn) WriteMessage(messageType int, data []byte) error {
	c.wmu.Lock()
	first := !c.wrote
	c.wrote = true
	c.wmu.Unlock()
	if !first {
		<-c.release
	}
	return c.fakeConn.WriteMessage(messageType, data)
}

func TestSessionShutdownBoundedWithBlockedWriter(t *testing.T) {
	opts := testOptions()
	opts.WorkerJoinTimeout = 50 * time.Millisecond

	// No collaborators, so the session queues two capability warnings plus
	// the ready message; the sender wedges on the second of them.
	conn := &blockedWriterConn{
		fakeConn: newFakeConn(textFrame("stop")),
		release:  make(chan struct{}),
	}
	defer close(conn.release)

	s := NewSession(conn, Collaborators{}, opts, testLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(context.Background())
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("session did not finish with a write still in flight")
	}

	if got := s.State(); got != StateClosed {
		t.Errorf("State() = %q, want %q", got, StateClosed)
	}
	if !conn.isClosed() {
		t.Error("connection not closed after Run")
	}
}

func TestSessionTextOnlyReplyWithoutSynthesizer(t *testing.T) {
	stream := newFakeStream(2)
	stream.results <- speech.Result{Text: "turn", IsFinal: false}
	stream.results <- speech.Result{Text: "turn on the lights", IsFinal: true}
	close(stream.results)

	collab := Collaborators{
		Recognizer: &fakeRecognizer{stream: stream},
		Generator:  &fakeGenerator{reply: "done"},
	}
	conn := newFakeConn(binFrame([]byte("pcm-chunk")), textFrame("stop"))

	s := runSession(t, conn, collab, testOptions())

	if got := s.State(); got != StateClosed {
		t.Errorf("State() = %q, want %q", got, StateClosed)
	}

	frames := conn.sentFrames()
	var types []string
	for _, f := range frames {
		if f.messageType == websocket.BinaryMessage {
			t.Fatalf("got a binary frame with no synthesizer configured: %+v", f)
		}
		types = append(types, decodeTextFrame(t, f.data)["type"].(string))
	}

	want := []string{"info", "transcript", "transcript", "gemini_response"}
	if len(types) != len(want) {
		t.Fatalf("frame types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("frame #%d type = %q, want %q (full sequence %v)", i, types[i], want[i], types)
		}
	}
	if reply := decodeTextFrame(t, frames[3].data); reply["text"] != "done" {
		t.Errorf("reply frame = %v", reply)
	}
}

func TestSessionCountsDroppedChunks(t *testing.T) {
	opts := testOptions()
	opts.IngressCapacity = 2
	opts.WorkerJoinTimeout = 50 * time.Millisecond

	// The feed loop stalls on the first Send, so at most one chunk leaves
	// the buffer; of the remaining three, at least one must overflow the
	// two-chunk capacity.
	stream := newFakeStream(0)
	stream.blockSend = make(chan struct{})
	defer close(stream.results)
	defer close(stream.blockSend)

	reads := []connFrame{
		binFrame([]byte("one")),
		binFrame([]byte("two")),
		binFrame([]byte("three")),
		binFrame([]byte("four")),
		textFrame("stop"),
	}

	s := runSession(t, newFakeConn(reads...), Collaborators{Recognizer: &fakeRecognizer{stream: stream}}, opts)

	if got := s.DroppedChunks(); got < 1 {
		t.Errorf("DroppedChunks() = %d, want at least 1", got)
	}
}

func TestIsStopCommand(t *testing.T) {
	cases := map[string]bool{
		"stop":  true,
		"STOP":  true,
		"Close": true,
		"eos":   true,
		"EOS":   true,
		"stops": false,
		"hello": false,
		"":      false,
	}
	for text, want := range cases {
		if got := isStopCommand(text); got != want {
			t.Errorf("isStopCommand(%q) = %v, want %v", text, got, want)
		}
	}
}
