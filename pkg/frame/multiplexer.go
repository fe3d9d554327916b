package frame

import (
	"github.com/pkg/errors"

	"avaneesh/prox1-go/pkg/internal/logger"
	"avaneesh/prox1-go/pkg/internal/queue"
)

// Multiplexer orders pending frames by priority class and drains them one at
// a time into a single reusable transmit buffer.
//
// Multiplexer performs no locking. Callers must serialize Enqueue and
// DrainOne, and must finish with the slice returned by DrainOne before the
// next call since it aliases the internal buffer.
type Multiplexer struct {
	queue  *queue.Queue[*Frame]
	txbuf  [MaxFrameSize]byte
	stats  *Statistics
	logger logger.Logger
}

// NewMultiplexer creates a multiplexer holding at most capacity frames.
// Capacity is clamped to (0, MaxQueueDepth].
func NewMultiplexer(capacity int, log logger.Logger) *Multiplexer {
	if capacity <= 0 || capacity > MaxQueueDepth {
		capacity = MaxQueueDepth
	}
	return &Multiplexer{
		queue:  queue.New[*Frame](capacity),
		stats:  NewStatistics(),
		logger: logger.OrNoOp(log),
	}
}

// Enqueue takes ownership of f and inserts it according to its class:
// fragmented frames and unfragmented data frames go to the tail, unfragmented
// command frames go in front of the first queued unfragmented data frame.
func (m *Multiplexer) Enqueue(f *Frame) error {
	if f == nil {
		return ErrNilFrame
	}
	if m.queue.Free() == 0 {
		m.logger.Warn("Multiplexer: queue full (%d frames), rejecting %s", m.queue.Len(), f)
		return ErrQueueFull
	}

	priority := f.Kind == KindUnfragmented && f.Header.PDUType == PDUCommand
	pos := m.queue.Len()
	if priority {
		if i := m.queue.IndexFunc(isUnfragmentedData); i >= 0 {
			pos = i
		}
	}

	if err := m.queue.Insert(pos, f); err != nil {
		return ErrQueueFull
	}
	m.stats.IncrementEnqueued()
	if priority {
		m.stats.IncrementCommands()
	}
	m.logger.Debug("Multiplexer: queued %s at %d/%d", f, pos, m.queue.Len())
	return nil
}

func isUnfragmentedData(f *Frame) bool {
	return f.Kind == KindUnfragmented && f.Header.PDUType == PDUData
}

// DrainOne serializes the head frame into the transmit buffer, releases the
// head frame's payload and removes it from the queue. The returned slice is
// only valid until the next DrainOne call.
//
// A head frame that fails to serialize is dropped, since it can never be
// sent, and the serialization error is returned.
func (m *Multiplexer) DrainOne() ([]byte, error) {
	head, ok := m.queue.Pop()
	if !ok {
		return nil, ErrQueueEmpty
	}

	n, err := SerializeInto(head, m.txbuf[:])
	head.Release()
	if err != nil {
		m.stats.IncrementDropped()
		m.logger.Error("Multiplexer: dropping unserializable frame: %v", err)
		return nil, errors.Wrap(err, "drain")
	}

	m.stats.IncrementDrained()
	m.stats.AddBytes(uint64(n))
	return m.txbuf[:n], nil
}

// Pending reports whether any frame is waiting for transmission.
func (m *Multiplexer) Pending() bool {
	return m.queue.Len() > 0
}

// Len returns the number of queued frames.
func (m *Multiplexer) Len() int {
	return m.queue.Len()
}

// Free returns how many more frames can be enqueued.
func (m *Multiplexer) Free() int {
	return m.queue.Free()
}

// Peek returns the head frame without removing it. The frame stays owned by
// the multiplexer.
func (m *Multiplexer) Peek() (*Frame, bool) {
	return m.queue.Peek()
}

// Reset releases every queued frame.
func (m *Multiplexer) Reset() {
	m.queue.Clear(func(f *Frame) { f.Release() })
}

// Statistics returns the multiplexer counters.
func (m *Multiplexer) Statistics() *Statistics {
	return m.stats
}
