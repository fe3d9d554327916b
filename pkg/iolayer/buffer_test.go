package iolayer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avaneesh/prox1-go/pkg/frame"
	"avaneesh/prox1-go/pkg/internal/logger"
)

func makeFrames(t *testing.T, n int, tag byte) []*frame.Frame {
	t.Helper()
	out := make([]*frame.Frame, n)
	for i := range out {
		f, err := frame.NewUnfragmented(testParams().header(uint8(i)), []byte{tag, byte(i)})
		require.NoError(t, err)
		out[i] = f
	}
	return out
}

func tagsOf(frames []*frame.Frame) []byte {
	var out []byte
	for _, f := range frames {
		out = append(out, f.Payload.Bytes()[0])
	}
	return out
}

// TestBuffer_Compaction stores A, B, C with 2, 1, 3 frames and releases B
func TestBuffer_Compaction(t *testing.T) {
	b := NewBuffer(nil)
	a, err := b.Store(makeFrames(t, 2, 'A'))
	require.NoError(t, err)
	bid, err := b.Store(makeFrames(t, 1, 'B'))
	require.NoError(t, err)
	c, err := b.Store(makeFrames(t, 3, 'C'))
	require.NoError(t, err)

	cStart, cEnd, _ := b.Range(c)
	assert.Equal(t, 3, cStart)
	assert.Equal(t, 6, cEnd)

	bFrames := append([]*frame.Frame(nil), b.Frames(bid)...)
	require.NoError(t, b.Release(bid))
	assert.True(t, bFrames[0].Payload.Released(), "released id gives up its payloads")

	start, end, ok := b.Range(a)
	require.True(t, ok)
	assert.Equal(t, [2]int{0, 2}, [2]int{start, end})

	start, end, ok = b.Range(c)
	require.True(t, ok)
	assert.Equal(t, [2]int{cStart - 1, cEnd - 1}, [2]int{start, end})

	assert.Equal(t, []byte{'A', 'A'}, tagsOf(b.Frames(a)))
	assert.Equal(t, []byte{'C', 'C', 'C'}, tagsOf(b.Frames(c)))
	assert.Equal(t, 5, b.Size())
	assert.Equal(t, 2, b.Complete())
	assert.False(t, b.InUse(bid))
}

// TestBuffer_IDReuse verifies a released id is handed out again
func TestBuffer_IDReuse(t *testing.T) {
	b := NewBuffer(nil)
	for i := 0; i < MaxPacketIDs; i++ {
		id, err := b.AllocateID()
		require.NoError(t, err)
		require.Equal(t, PacketID(i), id)
	}

	require.NoError(t, b.Release(42))
	id, err := b.AllocateID()
	require.NoError(t, err)
	assert.Equal(t, PacketID(42), id)
}

// TestBuffer_ReleaseReservedID verifies an id reserved without frames can
// be released without disturbing the stored packet count
func TestBuffer_ReleaseReservedID(t *testing.T) {
	b := NewBuffer(nil)
	a, err := b.Store(makeFrames(t, 2, 'A'))
	require.NoError(t, err)

	reserved, err := b.AllocateID()
	require.NoError(t, err)
	assert.Equal(t, 1, b.Complete())

	require.NoError(t, b.Release(reserved))
	assert.Equal(t, 1, b.Complete())
	assert.Equal(t, 2, b.Size())

	require.NoError(t, b.Release(a))
	assert.Equal(t, 0, b.Complete())

	for i := 0; i < 3; i++ {
		id, err := b.AllocateID()
		require.NoError(t, err)
		require.NoError(t, b.Release(id))
	}
	assert.Equal(t, 0, b.Complete(), "count never goes negative")

	_, err = b.Store(makeFrames(t, 1, 'B'))
	require.NoError(t, err)
	assert.Equal(t, 1, b.Complete())
}

// TestBuffer_Exhaustion verifies the 256th id fails with the sentinel
func TestBuffer_Exhaustion(t *testing.T) {
	b := NewBuffer(nil)
	for i := 0; i < MaxPacketIDs; i++ {
		_, err := b.AllocateID()
		require.NoError(t, err)
	}

	id, err := b.AllocateID()
	assert.Equal(t, InvalidPacketID, id)
	assert.ErrorIs(t, err, ErrNoFreePacketID)

	_, err = b.Store(makeFrames(t, 1, 'X'))
	assert.ErrorIs(t, err, ErrNoFreePacketID)
	assert.Equal(t, 0, b.Size())
}

// TestBuffer_ReleaseErrors tests invalid and unallocated ids
func TestBuffer_ReleaseErrors(t *testing.T) {
	b := NewBuffer(nil)
	_, err := b.Store(makeFrames(t, 2, 'A'))
	require.NoError(t, err)

	assert.ErrorIs(t, b.Release(InvalidPacketID), ErrInvalidPacketID)
	assert.ErrorIs(t, b.Release(7), ErrPacketIDNotAllocated)
	assert.Equal(t, 1, b.Complete(), "failed release leaves counters alone")
	assert.Equal(t, 2, b.Size())
}

// TestBuffer_UnallocatedIDLogged verifies operations on a free id are logged
func TestBuffer_UnallocatedIDLogged(t *testing.T) {
	var out bytes.Buffer
	b := NewBuffer(logger.NewWithWriter(&out, logger.LevelError))

	_, err := b.HandOff(9)
	assert.ErrorIs(t, err, ErrPacketIDNotAllocated)
	assert.Contains(t, out.String(), "packet id 9 not allocated")

	out.Reset()
	assert.ErrorIs(t, b.Release(9), ErrPacketIDNotAllocated)
	assert.Contains(t, out.String(), "packet id 9 not allocated")
}

// TestBuffer_HandOff verifies copies are independent of the buffer
func TestBuffer_HandOff(t *testing.T) {
	b := NewBuffer(nil)
	id, err := b.Store(makeFrames(t, 3, 'H'))
	require.NoError(t, err)

	copies, err := b.HandOff(id)
	require.NoError(t, err)
	require.Len(t, copies, 3)
	assert.True(t, b.HandedOff(id))
	assert.Equal(t, 3, b.Size(), "originals stay until release")

	require.NoError(t, b.Release(id))
	for i, c := range copies {
		assert.False(t, c.Payload.Released())
		assert.Equal(t, []byte{'H', byte(i)}, c.Payload.Bytes())
		c.Release()
	}
	assert.False(t, b.HandedOff(id))
}

// TestBuffer_HandOffRollback verifies a failed hand-off leaves nothing behind
func TestBuffer_HandOffRollback(t *testing.T) {
	b := NewBuffer(nil)
	id, err := b.Store(makeFrames(t, 3, 'R'))
	require.NoError(t, err)
	b.Frames(id)[2].Payload.Release()

	copies, err := b.HandOff(id)
	assert.Nil(t, copies)
	assert.ErrorIs(t, err, frame.ErrNoPayload)
	assert.False(t, b.HandedOff(id))
}

// TestBuffer_FirstPendingID tracks the oldest packet across releases
func TestBuffer_FirstPendingID(t *testing.T) {
	b := NewBuffer(nil)
	_, err := b.FirstPendingID()
	assert.ErrorIs(t, err, ErrNoPendingPacket)

	a, _ := b.Store(makeFrames(t, 1, 'A'))
	c, _ := b.Store(makeFrames(t, 2, 'C'))

	first, err := b.FirstPendingID()
	require.NoError(t, err)
	assert.Equal(t, a, first)

	require.NoError(t, b.Release(a))
	first, err = b.FirstPendingID()
	require.NoError(t, err)
	assert.Equal(t, c, first)
}

// TestBuffer_StoreCapacity verifies Store refuses what does not fit
func TestBuffer_StoreCapacity(t *testing.T) {
	b := NewBuffer(nil)
	_, err := b.Store(makeFrames(t, MaxFrames-1, 'F'))
	require.NoError(t, err)

	extra := makeFrames(t, 2, 'G')
	_, err = b.Store(extra)
	assert.ErrorIs(t, err, ErrBufferFull)
	assert.Equal(t, MaxFrames-1, b.Size())
	assert.Equal(t, 1, b.Complete())

	b.Reset()
	assert.Equal(t, 0, b.Size())
	assert.Equal(t, MaxFrames, b.Free())
	assert.False(t, b.InUse(0))
}
