package iolayer

import (
	"github.com/pkg/errors"

	"avaneesh/prox1-go/pkg/frame"
	"avaneesh/prox1-go/pkg/internal/logger"
)

// Params carries the header fields applied to every frame of one SDU.
type Params struct {
	Port            uint8
	PDUType         frame.PDUType
	SpacecraftID    uint16
	SourceDest      frame.SourceDest
	QoS             frame.QoS
	PhysicalChannel uint8
}

func (p Params) header(fsn uint8) frame.PDUHeader {
	return frame.NewPDUHeader(frame.Version3, p.QoS, p.PDUType, frame.DFCPackets,
		p.SpacecraftID, p.PhysicalChannel, p.Port, p.SourceDest, 0, fsn)
}

// Segmenter splits SDUs into frames and stores them in a Buffer under a
// single packet id. Its pseudo packet id counter is shared by all fragments
// of one SDU and wraps modulo 64. Segmenter performs no locking.
type Segmenter struct {
	buffer   *Buffer
	pseudoID uint8
	logger   logger.Logger
}

// NewSegmenter creates a segmenter writing into buf.
func NewSegmenter(buf *Buffer, log logger.Logger) *Segmenter {
	return &Segmenter{
		buffer: buf,
		logger: logger.OrNoOp(log),
	}
}

// FragmentCount returns how many frames an SDU of n bytes becomes.
func FragmentCount(n int) int {
	if n <= maxFragmentPayload {
		return 1
	}
	return (n + maxFragmentPayload - 1) / maxFragmentPayload
}

// Segment builds the frames for data and stores them in the buffer.
//
// Up to 249 bytes produce one unfragmented frame and leave the pseudo packet
// id untouched. Larger SDUs are cut into 249-byte fragments flagged
// First/Middle/Last with FSN set to the fragment index. On any failure the
// buffer and the pseudo packet id counter are left as they were.
func (s *Segmenter) Segment(data []byte, p Params) (PacketID, error) {
	if len(data) == 0 {
		return InvalidPacketID, ErrEmptyPayload
	}

	n := FragmentCount(len(data))
	if n > MaxFrames {
		s.fail("Segmenter: %d bytes need %d fragments, buffer holds %d", len(data), n, MaxFrames)
		return InvalidPacketID, errors.Wrapf(ErrTooManyFragments, "%d fragments", n)
	}
	if n > s.buffer.Free() {
		s.fail("Segmenter: %d fragments do not fit, %d slots free", n, s.buffer.Free())
		return InvalidPacketID, errors.Wrapf(ErrBufferFull, "need %d slots", n)
	}

	var staged []*frame.Frame
	fragmented := len(data) > maxFragmentPayload
	if fragmented {
		var err error
		if staged, err = s.fragment(data, p, n); err != nil {
			s.fail("Segmenter: building fragments: %v", err)
			return InvalidPacketID, err
		}
	} else {
		f, err := frame.NewUnfragmented(p.header(0), data)
		if err != nil {
			s.fail("Segmenter: building frame: %v", err)
			return InvalidPacketID, err
		}
		staged = []*frame.Frame{f}
	}

	id, err := s.buffer.Store(staged)
	if err != nil {
		for _, f := range staged {
			f.Release()
		}
		s.fail("Segmenter: storing %d frames: %v", len(staged), err)
		return InvalidPacketID, err
	}

	if fragmented {
		s.pseudoID = (s.pseudoID + 1) % pseudoIDModulus
	}
	s.buffer.stats.IncrementPacketsSegmented()
	s.buffer.stats.AddTxFragments(len(staged))
	s.logger.Debug("Segmenter: %d bytes -> id %d, %d frames", len(data), id, len(staged))
	return id, nil
}

func (s *Segmenter) fragment(data []byte, p Params, n int) ([]*frame.Frame, error) {
	out := make([]*frame.Frame, 0, n)
	for i := 0; i < n; i++ {
		start := i * maxFragmentPayload
		end := start + maxFragmentPayload
		if end > len(data) {
			end = len(data)
		}

		flag := frame.SegMiddle
		switch {
		case n == 1:
			flag = frame.SegNone
		case i == 0:
			flag = frame.SegFirst
		case i == n-1:
			flag = frame.SegLast
		}

		f, err := frame.NewFragmented(p.header(uint8(i)), frame.NewSegmentationHeader(flag, s.pseudoID), data[start:end])
		if err != nil {
			for _, done := range out {
				done.Release()
			}
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// PseudoID returns the pseudo packet id the next fragmented SDU will carry.
func (s *Segmenter) PseudoID() uint8 {
	return s.pseudoID
}

func (s *Segmenter) fail(format string, args ...interface{}) {
	s.buffer.stats.IncrementSegmentErrors()
	s.logger.Error(format, args...)
}
