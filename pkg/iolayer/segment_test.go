package iolayer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avaneesh/prox1-go/pkg/frame"
)

func testParams() Params {
	return Params{
		Port:            2,
		PDUType:         frame.PDUData,
		SpacecraftID:    0x21A,
		SourceDest:      frame.Source,
		QoS:             frame.QoSSequenceControlled,
		PhysicalChannel: frame.PrimaryChannel,
	}
}

func sdu(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

// TestSegment_Counts checks fragment count, sizes, flags and FSN
func TestSegment_Counts(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		frags    int
		lastSize int
	}{
		{"One byte", 1, 1, 1},
		{"Max fragment payload stays unfragmented", 249, 1, 249},
		{"Just over", 250, 2, 1},
		{"Exact multiple", 249 * 3, 3, 249},
		{"Remainder", 1000, 5, 1000 - 4*249},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffer(nil)
			s := NewSegmenter(b, nil)
			data := sdu(tt.size)

			id, err := s.Segment(data, testParams())
			require.NoError(t, err)

			frames := b.Frames(id)
			require.Len(t, frames, tt.frags)
			assert.Equal(t, tt.frags, FragmentCount(tt.size))
			assert.Equal(t, tt.lastSize, frames[len(frames)-1].Payload.Len())

			var joined []byte
			for i, f := range frames {
				joined = append(joined, f.Payload.Bytes()...)
				assert.Equal(t, uint16(0x21A), f.Header.SpacecraftID)
				assert.Equal(t, uint8(2), f.Header.Port)
				assert.Equal(t, frame.Version3, f.Header.Version)
				assert.LessOrEqual(t, f.Size(), frame.MaxFrameSize)

				if tt.frags == 1 {
					assert.Equal(t, frame.KindUnfragmented, f.Kind)
					assert.Equal(t, frame.DFCPackets, f.Header.DFC)
					continue
				}
				assert.Equal(t, frame.KindFragmented, f.Kind)
				assert.Equal(t, uint8(i), f.Header.FSN)
				want := frame.SegMiddle
				if i == 0 {
					want = frame.SegFirst
				} else if i == len(frames)-1 {
					want = frame.SegLast
				}
				assert.Equal(t, want, f.Seg.Flag, "fragment %d", i)
			}
			assert.True(t, bytes.Equal(data, joined))
		})
	}
}

// TestSegment_PseudoIDWraps verifies 65 fragmented SDUs carry 0..63,0
func TestSegment_PseudoIDWraps(t *testing.T) {
	b := NewBuffer(nil)
	s := NewSegmenter(b, nil)

	for i := 0; i <= 64; i++ {
		id, err := s.Segment(sdu(300), testParams())
		require.NoError(t, err)
		frames := b.Frames(id)
		for _, f := range frames {
			assert.Equal(t, uint8(i%64), f.Seg.PseudoPacketID)
		}
	}
	assert.Equal(t, uint8(1), s.PseudoID())
}

// TestSegment_FastPathKeepsPseudoID verifies small SDUs do not consume pseudo ids
func TestSegment_FastPathKeepsPseudoID(t *testing.T) {
	b := NewBuffer(nil)
	s := NewSegmenter(b, nil)
	_, err := s.Segment(sdu(10), testParams())
	require.NoError(t, err)
	assert.Equal(t, uint8(0), s.PseudoID())
}

// TestSegment_RollsBack verifies a failed call leaves the buffer untouched
func TestSegment_RollsBack(t *testing.T) {
	b := NewBuffer(nil)
	s := NewSegmenter(b, nil)
	_, err := s.Segment(sdu(249*(MaxFrames-2)), testParams())
	require.NoError(t, err)
	before := b.Size()
	pseudo := s.PseudoID()

	_, err = s.Segment(sdu(249*3), testParams())
	assert.ErrorIs(t, err, ErrBufferFull)
	assert.Equal(t, before, b.Size())
	assert.Equal(t, 1, b.Complete())
	assert.Equal(t, pseudo, s.PseudoID())
	assert.Equal(t, uint64(1), b.Statistics().GetSegmentErrors())
}

// TestSegment_Errors tests input rejection
func TestSegment_Errors(t *testing.T) {
	b := NewBuffer(nil)
	s := NewSegmenter(b, nil)

	id, err := s.Segment(nil, testParams())
	assert.Equal(t, InvalidPacketID, id)
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, err = s.Segment(sdu(249*MaxFrames+1), testParams())
	assert.ErrorIs(t, err, ErrTooManyFragments)
	assert.Equal(t, 0, b.Size())
}

// TestSegment_IDExhaustionRollsBack verifies staged frames are released when no id is free
func TestSegment_IDExhaustionRollsBack(t *testing.T) {
	b := NewBuffer(nil)
	s := NewSegmenter(b, nil)
	for i := 0; i < MaxPacketIDs; i++ {
		_, err := b.AllocateID()
		require.NoError(t, err)
	}

	_, err := s.Segment(sdu(600), testParams())
	assert.ErrorIs(t, err, ErrNoFreePacketID)
	assert.Equal(t, 0, b.Size())
	assert.Equal(t, uint8(0), s.PseudoID())
}
