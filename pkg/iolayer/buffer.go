package iolayer

import (
	"github.com/pkg/errors"

	"avaneesh/prox1-go/pkg/frame"
	"avaneesh/prox1-go/pkg/internal/logger"
)

// packetRange is the half-open run [start, end) of frames owned by one id.
type packetRange struct {
	start     int
	end       int
	handedOff bool
	stored    bool
}

// Buffer holds frames awaiting transmission or hand-off, indexed by packet id.
//
// Every id moves Free -> Allocated -> HandedOff -> Free. The frames of one id
// always form a contiguous run and runs never overlap; Release compacts the
// frame array and re-bases the runs that followed the released one.
//
// Buffer performs no locking.
type Buffer struct {
	frames   [MaxFrames]*frame.Frame
	count    int
	index    [MaxPacketIDs]packetRange
	inUse    [MaxPacketIDs]bool
	complete int

	stats  *Statistics
	logger logger.Logger
}

// NewBuffer creates an empty buffer.
func NewBuffer(log logger.Logger) *Buffer {
	return &Buffer{
		stats:  NewStatistics(),
		logger: logger.OrNoOp(log),
	}
}

// AllocateID reserves the lowest free packet id with an empty range at the
// tail of the frame array.
func (b *Buffer) AllocateID() (PacketID, error) {
	for i := 0; i < MaxPacketIDs; i++ {
		if b.inUse[i] {
			continue
		}
		b.inUse[i] = true
		b.index[i] = packetRange{start: b.count, end: b.count}
		return PacketID(i), nil
	}
	b.logger.Error("Buffer: all %d packet ids in use", MaxPacketIDs)
	return InvalidPacketID, ErrNoFreePacketID
}

// Store allocates an id and takes ownership of frames as its range. Nothing
// changes when it fails.
func (b *Buffer) Store(frames []*frame.Frame) (PacketID, error) {
	if len(frames) > MaxFrames {
		return InvalidPacketID, errors.Wrapf(ErrTooManyFragments, "%d frames", len(frames))
	}
	if len(frames) > b.Free() {
		return InvalidPacketID, errors.Wrapf(ErrBufferFull, "need %d slots, %d free", len(frames), b.Free())
	}

	id, err := b.AllocateID()
	if err != nil {
		return InvalidPacketID, err
	}
	for _, f := range frames {
		b.frames[b.count] = f
		b.count++
	}
	b.index[id].end = b.count
	b.index[id].stored = true
	b.complete++
	return id, nil
}

func (b *Buffer) lookup(id PacketID) (packetRange, error) {
	if int(id) >= MaxPacketIDs {
		b.logger.Error("Buffer: packet id %d out of range", id)
		return packetRange{}, ErrInvalidPacketID
	}
	if !b.inUse[id] {
		b.logger.Error("Buffer: packet id %d not allocated", id)
		return packetRange{}, errors.Wrapf(ErrPacketIDNotAllocated, "id %d", id)
	}
	return b.index[id], nil
}

// Release frees every payload owned by id, compacts the frame array and
// returns id to the free pool.
func (b *Buffer) Release(id PacketID) error {
	r, err := b.lookup(id)
	if err != nil {
		return err
	}

	n := r.end - r.start
	for i := r.start; i < r.end; i++ {
		b.frames[i].Release()
	}
	copy(b.frames[r.start:], b.frames[r.end:b.count])
	for i := b.count - n; i < b.count; i++ {
		b.frames[i] = nil
	}
	b.count -= n

	for i := 0; i < MaxPacketIDs; i++ {
		if !b.inUse[i] || PacketID(i) == id {
			continue
		}
		if b.index[i].start >= r.end {
			b.index[i].start -= n
			b.index[i].end -= n
		}
	}

	b.inUse[id] = false
	b.index[id] = packetRange{}
	if r.stored {
		b.complete--
	}
	b.stats.IncrementPacketsReleased()
	b.logger.Debug("Buffer: released id %d (%d frames), %d frames remain", id, n, b.count)
	return nil
}

// HandOff returns deep copies of the frames owned by id and marks the id as
// handed off. The caller owns the copies; the originals stay in the buffer
// until Release. On failure no copies survive.
func (b *Buffer) HandOff(id PacketID) ([]*frame.Frame, error) {
	r, err := b.lookup(id)
	if err != nil {
		return nil, err
	}

	out := make([]*frame.Frame, 0, r.end-r.start)
	for i := r.start; i < r.end; i++ {
		src := b.frames[i]
		if src == nil || src.Payload.Released() {
			for _, c := range out {
				c.Release()
			}
			b.logger.Error("Buffer: id %d frame %d has no payload, hand-off aborted", id, i-r.start)
			return nil, errors.Wrapf(frame.ErrNoPayload, "id %d", id)
		}
		out = append(out, src.Clone())
	}

	b.index[id].handedOff = true
	b.stats.IncrementPacketsHandedOff()
	return out, nil
}

// FirstPendingID returns the id whose range starts at offset 0, the oldest
// packet still held.
func (b *Buffer) FirstPendingID() (PacketID, error) {
	if b.count == 0 {
		return InvalidPacketID, ErrNoPendingPacket
	}
	for i := 0; i < MaxPacketIDs; i++ {
		if b.inUse[i] && b.index[i].start == 0 && b.index[i].end > 0 {
			return PacketID(i), nil
		}
	}
	return InvalidPacketID, ErrNoPendingPacket
}

// Size returns the number of frames held.
func (b *Buffer) Size() int {
	return b.count
}

// Free returns the number of unused frame slots.
func (b *Buffer) Free() int {
	return MaxFrames - b.count
}

// Complete returns the number of stored packets held. Ids reserved with
// AllocateID alone do not count.
func (b *Buffer) Complete() int {
	return b.complete
}

// InUse reports whether id is allocated.
func (b *Buffer) InUse(id PacketID) bool {
	return int(id) < MaxPacketIDs && b.inUse[id]
}

// HandedOff reports whether id has been handed off and not yet released.
func (b *Buffer) HandedOff(id PacketID) bool {
	return b.InUse(id) && b.index[id].handedOff
}

// Range returns the half-open frame range of id.
func (b *Buffer) Range(id PacketID) (start, end int, ok bool) {
	if !b.InUse(id) {
		return 0, 0, false
	}
	r := b.index[id]
	return r.start, r.end, true
}

// Frames returns the frames of id. The slice and frames remain owned by the
// buffer and are only valid until the next mutating call.
func (b *Buffer) Frames(id PacketID) []*frame.Frame {
	if !b.InUse(id) {
		return nil
	}
	r := b.index[id]
	return b.frames[r.start:r.end]
}

// Reset releases every frame and frees every id.
func (b *Buffer) Reset() {
	for i := 0; i < b.count; i++ {
		b.frames[i].Release()
		b.frames[i] = nil
	}
	b.count = 0
	b.complete = 0
	b.index = [MaxPacketIDs]packetRange{}
	b.inUse = [MaxPacketIDs]bool{}
}

// Statistics returns the buffer counters.
func (b *Buffer) Statistics() *Statistics {
	return b.stats
}
