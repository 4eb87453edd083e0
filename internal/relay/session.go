package relay

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/looplab/fsm"

	"github.com/voxline/voxline/pkg/Logger"
	"github.com/voxline/voxline/pkg/speech"
)

const readyMessage = "Ready to receive audio (16kHz LINEAR16)."

// writeWait bounds every outbound write so a stalled client cannot pin the
// sender loop.
const writeWait = 10 * time.Second

// Session states. A session moves strictly forward:
// accepting -> streaming -> draining -> closed.
const (
	StateAccepting = "accepting"
	StateStreaming = "streaming"
	StateDraining  = "draining"
	StateClosed    = "closed"
)

const (
	eventStream = "stream"
	eventDrain  = "drain"
	eventClose  = "close"
)

// Conn is the transport surface the session needs; *websocket.Conn
// satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Collaborators are the process-wide external services injected per session.
// Any of them may be nil: a missing collaborator degrades its own feature
// only and is reported once at session start.
type Collaborators struct {
	Recognizer  speech.Recognizer
	Generator   speech.Generator
	Synthesizer speech.Synthesizer
}

// Options carries the per-session tuning knobs. The zero value gets the
// production defaults.
type Options struct {
	Stream            speech.StreamConfig
	IngressCapacity   int
	TakeTimeout       time.Duration
	SendPoll          time.Duration
	WorkerJoinTimeout time.Duration
	GenerationTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.Stream.SampleRate == 0 {
		o.Stream.SampleRate = 16000
	}
	if o.Stream.Language == "" {
		o.Stream.Language = "en-US"
	}
	if o.IngressCapacity <= 0 {
		o.IngressCapacity = 100
	}
	if o.TakeTimeout <= 0 {
		o.TakeTimeout = 100 * time.Millisecond
	}
	if o.SendPoll <= 0 {
		o.SendPoll = 200 * time.Millisecond
	}
	if o.WorkerJoinTimeout <= 0 {
		o.WorkerJoinTimeout = 2 * time.Second
	}
	if o.GenerationTimeout <= 0 {
		o.GenerationTimeout = 30 * time.Second
	}
}

// Session supervises one connection: it owns the ingress buffer and outbound
// queue, starts and stops the transcription worker, runs the sender loop, and
// executes the shutdown sequence. The shutdown flag is the sole cancellation
// primitive shared between the loops; it is level-triggered and never
// cleared.
type Session struct {
	id     uuid.UUID
	conn   Conn
	collab Collaborators
	opts   Options
	logger *Logger.Logger

	ingress  *IngressBuffer
	out      *OutboundQueue
	shutdown atomic.Bool
	machine  *fsm.FSM

	worker     *Worker
	senderDone chan struct{}
	cancel     context.CancelFunc

	connectedAt time.Time
}

func NewSession(conn Conn, collab Collaborators, opts Options, logger *Logger.Logger) *Session {
	opts.applyDefaults()

	s := &Session{
		id:          uuid.New(),
		conn:        conn,
		collab:      collab,
		opts:        opts,
		logger:      logger,
		ingress:     NewIngressBuffer(opts.IngressCapacity),
		out:         NewOutboundQueue(),
		senderDone:  make(chan struct{}),
		connectedAt: time.Now(),
	}
	s.machine = fsm.NewFSM(
		StateAccepting,
		fsm.Events{
			{Name: eventStream, Src: []string{StateAccepting}, Dst: StateStreaming},
			{Name: eventDrain, Src: []string{StateAccepting, StateStreaming}, Dst: StateDraining},
			{Name: eventClose, Src: []string{StateDraining}, Dst: StateClosed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Infof("session %s: %s -> %s", s.id, e.Src, e.Dst)
			},
		},
	)
	return s
}

func (s *Session) ID() uuid.UUID          { return s.id }
func (s *Session) State() string          { return s.machine.Current() }
func (s *Session) ConnectedAt() time.Time { return s.connectedAt }
func (s *Session) DroppedChunks() uint64  { return s.ingress.Dropped() }

// Run executes the whole session lifecycle and returns once the connection
// is closed and resources are released. It must be called exactly once, from
// the connection handler's goroutine.
func (s *Session) Run(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	defer s.cancel()

	s.preflight()
	s.out.Put(InfoMessage(readyMessage))

	go s.sendLoop()

	if s.collab.Recognizer != nil {
		s.worker = NewWorker(
			s.ingress, s.out, &s.shutdown,
			s.collab.Recognizer, s.collab.Generator, s.collab.Synthesizer,
			WorkerConfig{
				Stream:            s.opts.Stream,
				TakeTimeout:       s.opts.TakeTimeout,
				GenerationTimeout: s.opts.GenerationTimeout,
			},
			s.logger.Named("worker"),
		)
		s.worker.Start(ctx)
	}

	_ = s.machine.Event(ctx, eventStream)
	s.receiveLoop()
	s.drain()
}

// preflight reports absent collaborator capabilities once, before the ready
// message. The session still proceeds; each missing capability silently
// no-ops for the rest of the session.
func (s *Session) preflight() {
	if s.collab.Recognizer == nil {
		s.logger.Warnf("session %s: recognition not configured", s.id)
		s.out.Put(InfoMessage("Server missing speech credentials; transcription will not work."))
	}
	if s.collab.Generator == nil {
		s.logger.Warnf("session %s: generation not configured", s.id)
		s.out.Put(InfoMessage("Generation service not configured; AI responses will not work."))
	}
}

// receiveLoop translates inbound frames into ingress offers and control
// handling. Any exit path (client close, control command, read error, panic)
// leads to draining; a panic here must never take the process down with it.
func (s *Session) receiveLoop() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("session %s: receive loop panic: %v", s.id, r)
		}
	}()

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Errorf("session %s: websocket read error: %v", s.id, err)
			} else {
				s.logger.Infof("session %s: connection closed by client", s.id)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if !s.ingress.Offer(data) {
				s.logger.Warnf("session %s: ingress buffer full; dropping chunk of %d bytes", s.id, len(data))
			}
		case websocket.TextMessage:
			text := strings.TrimSpace(string(data))
			if isStopCommand(text) {
				s.logger.Infof("session %s: control command %q", s.id, text)
				return
			}
			s.out.Put(InfoMessage("Server received text: " + text))
		}
	}
}

// sendLoop drains the outbound queue to the transport. It exits on send
// failure (the connection is assumed dead) or once the shutdown flag is set
// and the queue has been observed empty.
func (s *Session) sendLoop() {
	defer close(s.senderDone)

	for {
		msg, ok := s.out.Take(s.opts.SendPoll)
		if !ok {
			if s.shutdown.Load() {
				return
			}
			continue
		}

		if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			s.logger.Debugf("session %s: set write deadline: %v", s.id, err)
		}

		var err error
		if msg.Kind == KindAudio {
			err = s.conn.WriteMessage(websocket.BinaryMessage, msg.Audio)
		} else {
			frame, encErr := msg.EncodeText()
			if encErr != nil {
				s.logger.Errorf("session %s: %v", s.id, encErr)
				continue
			}
			err = s.conn.WriteMessage(websocket.TextMessage, frame)
		}
		if err != nil {
			s.logger.Errorf("session %s: websocket send error: %v", s.id, err)
			return
		}
	}
}

// drain executes the shutdown sequence: sentinel in, shutdown flag up, a
// bounded wait for the worker (a worker stuck in a blocking recognizer call
// is abandoned, not waited out), cancel whatever it left in flight, a bounded
// wait for the sender, close the transport. State transitions run on a fresh
// context: the machine refuses events on a canceled one, and the session
// context may already be canceled here.
func (s *Session) drain() {
	ctx := context.Background()
	_ = s.machine.Event(ctx, eventDrain)

	s.ingress.CloseSend()
	s.shutdown.Store(true)

	if s.worker != nil {
		select {
		case <-s.worker.Done():
		case <-time.After(s.opts.WorkerJoinTimeout):
			s.logger.Warnf("session %s: transcription worker did not exit within %s; abandoning",
				s.id, s.opts.WorkerJoinTimeout)
		}
	}

	s.cancel()
	select {
	case <-s.senderDone:
	case <-time.After(s.opts.WorkerJoinTimeout):
		s.logger.Warnf("session %s: sender did not exit within %s; abandoning",
			s.id, s.opts.WorkerJoinTimeout)
	}

	_ = s.machine.Event(ctx, eventClose)
	if err := s.conn.Close(); err != nil {
		s.logger.Debugf("session %s: close: %v", s.id, err)
	}
	s.logger.Infof("session %s: closed (dropped %d chunks)", s.id, s.ingress.Dropped())
}

func isStopCommand(text string) bool {
	switch strings.ToLower(text) {
	case "stop", "close", "eos":
		return true
	}
	return false
}
