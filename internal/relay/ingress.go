package relay

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"
)

const (
	frameHeaderSize = 4
	// Browser capture buffers downsample to well under 8 KiB of PCM per
	// frame; the ring is sized so the chunk cap, not byte space, is the
	// effective limit.
	bytesPerChunkSlot = 8192 + frameHeaderSize
)

// IngressBuffer is the bounded FIFO between the websocket receive loop and
// the transcription worker. Chunks are stored length-prefixed in a byte ring;
// a zero-length frame is the end-of-stream sentinel. Offer never blocks: when
// the buffer is at capacity the newest chunk is dropped and counted. Take
// blocks the single consumer up to a short
// timeout so it can poll the shutdown flag between attempts.
type IngressBuffer struct {
	mu       sync.Mutex
	rb       *ringbuffer.RingBuffer
	count    int
	capacity int
	dropped  uint64

	notify chan struct{}
}

// NewIngressBuffer creates a buffer holding at most capacity chunks.
func NewIngressBuffer(capacity int) *IngressBuffer {
	if capacity <= 0 {
		capacity = 100
	}
	return &IngressBuffer{
		rb:       ringbuffer.New(capacity * bytesPerChunkSlot).SetBlocking(false),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Offer appends chunk without blocking. It reports false when the chunk was
// dropped because the buffer is full (or the chunk cannot fit). Empty chunks
// are ignored; the zero length is reserved for the sentinel.
func (b *IngressBuffer) Offer(chunk []byte) bool {
	if len(chunk) == 0 {
		return true
	}

	b.mu.Lock()
	need := frameHeaderSize + len(chunk)
	if b.count >= b.capacity || b.rb.Free() < need {
		b.dropped++
		b.mu.Unlock()
		return false
	}
	b.writeFrame(chunk)
	b.count++
	b.mu.Unlock()

	b.wake()
	return true
}

// CloseSend appends the end-of-stream sentinel in FIFO position, after any
// chunks already buffered. If even the four header bytes don't fit the
// sentinel is dropped silently; the shutdown flag is the consumer's backstop.
func (b *IngressBuffer) CloseSend() {
	b.mu.Lock()
	if b.rb.Free() >= frameHeaderSize {
		b.writeFrame(nil)
	}
	b.mu.Unlock()

	b.wake()
}

// Take blocks up to timeout for the next chunk. It returns (chunk, true) for
// data, (nil, true) once the sentinel is reached, and (nil, false) on
// timeout so the caller can re-check the shutdown flag and retry. Take must
// only be called from one goroutine.
func (b *IngressBuffer) Take(timeout time.Duration) ([]byte, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		b.mu.Lock()
		if b.rb.Length() >= frameHeaderSize {
			chunk := b.readFrame()
			if chunk != nil {
				b.count--
			}
			b.mu.Unlock()
			return chunk, true
		}
		b.mu.Unlock()

		select {
		case <-b.notify:
		case <-deadline.C:
			return nil, false
		}
	}
}

// Dropped returns how many chunks have been discarded by Offer.
func (b *IngressBuffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Len returns the number of buffered chunks, excluding any sentinel.
func (b *IngressBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// writeFrame appends one length-prefixed frame; callers hold the lock and
// have verified there is room.
func (b *IngressBuffer) writeFrame(chunk []byte) {
	var hdr [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(chunk)))
	b.rb.Write(hdr[:])
	if len(chunk) > 0 {
		b.rb.Write(chunk)
	}
}

// readFrame pops one frame; callers hold the lock and have verified at least
// a header is present. A nil return is the sentinel.
func (b *IngressBuffer) readFrame() []byte {
	var hdr [frameHeaderSize]byte
	b.rb.Read(hdr[:])
	size := binary.LittleEndian.Uint32(hdr[:])
	if size == 0 {
		return nil
	}
	chunk := make([]byte, size)
	b.rb.Read(chunk)
	return chunk
}

func (b *IngressBuffer) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}
