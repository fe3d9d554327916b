package prox1

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"avaneesh/prox1-go/pkg/frame"
	"avaneesh/prox1-go/pkg/internal/logger"
	"avaneesh/prox1-go/pkg/iolayer"
)

// Session errors
var (
	ErrSessionClosed = errors.New("prox1: session closed")
	ErrSDUTooLarge   = errors.New("prox1: SDU needs more frames than the transmit queue holds")
	ErrNilHandler    = errors.New("prox1: nil handler")
)

// FrameWriter accepts serialized frames for transmission. *channel.Channel
// implements it.
type FrameWriter interface {
	Write(ctx context.Context, data []byte) error
}

// SessionConfig holds the settings of one session.
type SessionConfig struct {
	// Header fields of transmitted frames. SpacecraftID also selects which
	// received frames the session gets.
	SpacecraftID    uint16
	Port            uint8
	PhysicalChannel uint8
	SourceDest      frame.SourceDest
	QoS             frame.QoS

	// Receive side
	Receive  iolayer.Config
	EmitBits bool

	// Transmit side
	QueueDepth      int     // multiplexer capacity in frames
	FramesPerSecond float64 // 0 = unpaced
	Burst           int
}

// DefaultSessionConfig returns default session configuration
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		SpacecraftID: 1,
		QoS:          frame.QoSSequenceControlled,
		SourceDest:   frame.Source,
		Receive:      iolayer.DefaultConfig(),
		QueueDepth:   frame.MaxQueueDepth,
		Burst:        1,
	}
}

// SendOptions selects the per-SDU header fields.
type SendOptions struct {
	Port    uint8
	Command bool // send as a protocol command, ahead of queued user data
	QoS     frame.QoS
}

// Session is one Proximity-1 association on a channel: the transmit path
// from SDU to serialized frames and the receive path from frames back to
// SDUs.
type Session struct {
	id      uuid.UUID
	config  SessionConfig
	writer  FrameWriter
	handler Handler
	limiter *rate.Limiter
	logger  logger.Logger

	// Transmit state, guarded by txMu
	txMu      sync.Mutex
	buffer    *iolayer.Buffer
	segmenter *iolayer.Segmenter
	mux       *frame.Multiplexer
	closed    bool

	// Receive state, guarded by rxMu
	rxMu     sync.Mutex
	receiver *iolayer.Receiver

	framesTx    atomic.Uint64
	writeErrors atomic.Uint64
	delivered   atomic.Uint64
}

// NewSession creates a session writing frames to w and delivering received
// SDUs to h.
func NewSession(cfg SessionConfig, w FrameWriter, h Handler, log logger.Logger) (*Session, error) {
	if h == nil {
		return nil, ErrNilHandler
	}
	if cfg.SpacecraftID > frame.MaxSpacecraftID {
		return nil, errors.Wrapf(ErrInvalidConfig, "spacecraft id %d", cfg.SpacecraftID)
	}
	if cfg.Port > frame.MaxPort {
		return nil, errors.Wrapf(ErrInvalidConfig, "port %d", cfg.Port)
	}
	if cfg.QueueDepth <= 0 || cfg.QueueDepth > frame.MaxQueueDepth {
		cfg.QueueDepth = frame.MaxQueueDepth
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}

	limit := rate.Inf
	if cfg.FramesPerSecond > 0 {
		limit = rate.Limit(cfg.FramesPerSecond)
	}

	id := uuid.New()
	log = logger.OrNoOp(log)
	buf := iolayer.NewBuffer(log)

	s := &Session{
		id:        id,
		config:    cfg,
		writer:    w,
		handler:   h,
		limiter:   rate.NewLimiter(limit, cfg.Burst),
		logger:    log,
		buffer:    buf,
		segmenter: iolayer.NewSegmenter(buf, log),
		mux:       frame.NewMultiplexer(cfg.QueueDepth, log),
		receiver:  iolayer.NewReceiver(cfg.Receive, log),
	}
	s.logger.Debug("Session %s: created for spacecraft %d port %d", id, cfg.SpacecraftID, cfg.Port)
	return s, nil
}

// ID returns the unique session id.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// SpacecraftID implements channel.Session
func (s *Session) SpacecraftID() uint16 {
	return s.config.SpacecraftID
}

// DefaultSendOptions returns the send options taken from the session config.
func (s *Session) DefaultSendOptions() SendOptions {
	return SendOptions{Port: s.config.Port, QoS: s.config.QoS}
}

// Send segments data into frames and holds them until the next Flush. The
// returned packet id identifies the SDU while it waits. data is copied.
func (s *Session) Send(data []byte, opts SendOptions) (iolayer.PacketID, error) {
	if opts.Port > frame.MaxPort {
		return iolayer.InvalidPacketID, errors.Wrapf(ErrInvalidConfig, "port %d", opts.Port)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	if s.closed {
		return iolayer.InvalidPacketID, ErrSessionClosed
	}
	if n := iolayer.FragmentCount(len(data)); n > s.config.QueueDepth {
		return iolayer.InvalidPacketID, errors.Wrapf(ErrSDUTooLarge, "%d frames, queue depth %d", n, s.config.QueueDepth)
	}

	p := iolayer.Params{
		Port:            opts.Port,
		PDUType:         frame.PDUData,
		SpacecraftID:    s.config.SpacecraftID,
		SourceDest:      s.config.SourceDest,
		QoS:             opts.QoS,
		PhysicalChannel: s.config.PhysicalChannel,
	}
	if opts.Command {
		p.PDUType = frame.PDUCommand
	}

	id, err := s.segmenter.Segment(data, p)
	if err != nil {
		return iolayer.InvalidPacketID, err
	}
	return id, nil
}

// stageLocked moves complete packets from the buffer into the multiplexer,
// oldest first, for as long as the multiplexer has room for a whole packet.
func (s *Session) stageLocked() {
	for {
		id, err := s.buffer.FirstPendingID()
		if err != nil {
			return
		}
		if n := len(s.buffer.Frames(id)); n > s.mux.Free() {
			return
		}

		frames, err := s.buffer.HandOff(id)
		if err != nil {
			s.logger.Error("Session %s: dropping packet %d: %v", s.id, id, err)
			_ = s.buffer.Release(id)
			continue
		}
		for _, f := range frames {
			if err := s.mux.Enqueue(f); err != nil {
				s.logger.Error("Session %s: enqueue packet %d: %v", s.id, id, err)
				f.Release()
			}
		}
		if err := s.buffer.Release(id); err != nil {
			s.logger.Error("Session %s: release packet %d: %v", s.id, id, err)
		}
	}
}

// Flush transmits every frame pending on the session, paced by the
// configured frame rate, and returns how many frames were written. It stops
// at the first write error or when ctx is done.
func (s *Session) Flush(ctx context.Context) (int, error) {
	sent := 0
	for {
		s.txMu.Lock()
		if s.closed {
			s.txMu.Unlock()
			return sent, ErrSessionClosed
		}
		s.stageLocked()
		pending := s.mux.Pending()
		s.txMu.Unlock()

		if !pending {
			return sent, nil
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return sent, errors.Wrap(err, "pacing")
		}

		s.txMu.Lock()
		wrote, err := s.drainOneLocked(ctx)
		s.txMu.Unlock()

		if err != nil {
			return sent, err
		}
		if wrote {
			sent++
		}
	}
}

// drainOneLocked writes the head frame. A frame the multiplexer drops as
// unserializable, or an empty queue after a concurrent Flush, is not an
// error.
func (s *Session) drainOneLocked(ctx context.Context) (bool, error) {
	data, err := s.mux.DrainOne()
	if err != nil {
		return false, nil
	}
	if err := s.writer.Write(ctx, data); err != nil {
		s.writeErrors.Add(1)
		return false, errors.Wrap(err, "write frame")
	}
	s.framesTx.Add(1)
	return true, nil
}

// Pending returns the number of frames not yet transmitted.
func (s *Session) Pending() int {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.buffer.Size() + s.mux.Len()
}

// OnFrame implements channel.Session. It takes ownership of f and delivers
// any SDU the frame completes to the handler.
func (s *Session) OnFrame(f *frame.Frame) error {
	defer f.Release()

	s.rxMu.Lock()
	acc, err := s.receiver.Process(f)
	s.rxMu.Unlock()
	if err != nil {
		return errors.Wrapf(err, "session %d", s.config.SpacecraftID)
	}
	if acc == nil {
		return nil
	}

	port := f.Header.Port
	if s.config.EmitBits {
		s.handler.OnBits(port, iolayer.ToBitSequence(acc))
	} else {
		s.handler.OnSDU(port, acc.Take())
	}
	s.delivered.Add(1)
	return nil
}

// Close discards all pending transmit and receive state. Further Send and
// Flush calls fail with ErrSessionClosed.
func (s *Session) Close() error {
	s.txMu.Lock()
	if s.closed {
		s.txMu.Unlock()
		return nil
	}
	s.closed = true
	dropped := s.buffer.Size() + s.mux.Len()
	s.buffer.Reset()
	s.mux.Reset()
	s.txMu.Unlock()

	s.rxMu.Lock()
	s.receiver.Close()
	s.rxMu.Unlock()

	s.logger.Info("Session %s: closed, %d frames discarded", s.id, dropped)
	return nil
}

// SessionStatistics is a snapshot of session counters.
type SessionStatistics struct {
	PacketsSegmented uint64 // SDUs accepted by Send
	PacketsReleased  uint64 // SDUs moved to the transmit queue
	SegmentErrors    uint64
	FramesQueued     uint64
	CommandsQueued   uint64 // unfragmented commands queued ahead of data
	FramesDropped    uint64 // unserializable frames
	FramesTx         uint64
	BytesTx          uint64
	WriteErrors      uint64

	FragmentsRx  uint64
	PacketsRx    uint64
	SDUDelivered uint64
	Discards     uint64
	Timeouts     uint64
	Overflows    uint64

	BufferedFrames      int
	QueuedFrames        int
	PendingReassemblies int
}

// Statistics returns a snapshot of session counters. Reassemblies that have
// timed out are swept first so Timeouts is current.
func (s *Session) Statistics() SessionStatistics {
	s.txMu.Lock()
	tx := s.buffer.Statistics()
	mux := s.mux.Statistics()
	st := SessionStatistics{
		PacketsSegmented: tx.GetPacketsSegmented(),
		PacketsReleased:  tx.GetPacketsReleased(),
		SegmentErrors:    tx.GetSegmentErrors(),
		FramesQueued:     mux.GetEnqueued(),
		CommandsQueued:   mux.GetCommands(),
		FramesDropped:    mux.GetDropped(),
		BytesTx:          mux.GetBytes(),
		BufferedFrames:   s.buffer.Size(),
		QueuedFrames:     s.mux.Len(),
	}
	s.txMu.Unlock()

	s.rxMu.Lock()
	s.receiver.Expire()
	st.PendingReassemblies = s.receiver.Pending()
	s.rxMu.Unlock()

	rx := s.receiver.Statistics()
	st.FramesTx = s.framesTx.Load()
	st.WriteErrors = s.writeErrors.Load()
	st.FragmentsRx = rx.GetRxFragments()
	st.PacketsRx = rx.GetPacketsReceived()
	st.SDUDelivered = s.delivered.Load()
	st.Discards = rx.GetDiscards()
	st.Timeouts = rx.GetTimeoutErrors()
	st.Overflows = rx.GetBufferOverflows()
	return st
}

// String returns string representation of session
func (s *Session) String() string {
	return fmt.Sprintf("Session{ID=%s, SCID=%d, Port=%d}", s.id, s.config.SpacecraftID, s.config.Port)
}
