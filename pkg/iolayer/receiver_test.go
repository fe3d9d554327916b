package iolayer

import (
	"bytes"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avaneesh/prox1-go/pkg/frame"
)

func TestReceiver_SegmentRoundTrip(t *testing.T) {
	b := NewBuffer(nil)
	s := NewSegmenter(b, nil)
	r := NewReceiver(DefaultConfig(), nil)

	data := sdu(700)
	id, err := s.Segment(data, testParams())
	require.NoError(t, err)

	var got *Accumulator
	for _, f := range b.Frames(id) {
		acc, err := r.Process(f)
		require.NoError(t, err)
		if acc != nil {
			got = acc
		}
	}
	require.NotNil(t, got)
	assert.True(t, bytes.Equal(data, got.Take()))
	assert.Equal(t, 0, r.Pending())
	assert.Equal(t, uint64(1), r.Statistics().GetPacketsReceived())
	assert.Equal(t, uint64(3), r.Statistics().GetRxFragments())
}

func TestReceiver_Unfragmented(t *testing.T) {
	r := NewReceiver(DefaultConfig(), nil)
	acc, err := r.Process(unfragmented(t, []byte("ping")))
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, []byte("ping"), acc.Bytes())

	acc, err = r.Process(fragment(t, frame.SegNone, 9, 0, []byte("solo")))
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, []byte("solo"), acc.Bytes())
}

func TestReceiver_InterleavedPackets(t *testing.T) {
	r := NewReceiver(DefaultConfig(), nil)

	steps := []*frame.Frame{
		fragment(t, frame.SegFirst, 1, 0, []byte("a1")),
		fragment(t, frame.SegFirst, 2, 0, []byte("b1")),
		fragment(t, frame.SegLast, 2, 1, []byte("b2")),
		fragment(t, frame.SegMiddle, 1, 1, []byte("a2")),
		fragment(t, frame.SegLast, 1, 2, []byte("a3")),
	}

	var done []string
	for _, f := range steps {
		acc, err := r.Process(f)
		require.NoError(t, err)
		if acc != nil {
			done = append(done, string(acc.Take()))
		}
	}
	assert.Equal(t, []string{"b1b2", "a1a2a3"}, done)
}

func TestReceiver_DiscardsOrphans(t *testing.T) {
	r := NewReceiver(DefaultConfig(), nil)

	acc, err := r.Process(fragment(t, frame.SegMiddle, 4, 1, []byte("x")))
	assert.NoError(t, err)
	assert.Nil(t, acc)

	acc, err = r.Process(fragment(t, frame.SegLast, 4, 2, []byte("y")))
	assert.NoError(t, err)
	assert.Nil(t, acc)
	assert.Equal(t, uint64(2), r.Statistics().GetDiscards())

	// a new First restarts the packet
	_, _ = r.Process(fragment(t, frame.SegFirst, 5, 0, []byte("old")))
	_, _ = r.Process(fragment(t, frame.SegFirst, 5, 0, []byte("new")))
	acc, err = r.Process(fragment(t, frame.SegLast, 5, 1, []byte("!")))
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, []byte("new!"), acc.Bytes())
	assert.Equal(t, uint64(3), r.Statistics().GetDiscards())
}

func TestReceiver_Overflow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxReassemblySize = 300
	r := NewReceiver(cfg, nil)

	_, err := r.Process(fragment(t, frame.SegFirst, 6, 0, sdu(249)))
	require.NoError(t, err)
	_, err = r.Process(fragment(t, frame.SegMiddle, 6, 1, sdu(249)))
	assert.ErrorIs(t, err, ErrAccumulatorOverflow)
	assert.Equal(t, 0, r.Pending())
	assert.Equal(t, uint64(1), r.Statistics().GetBufferOverflows())
}

func TestReceiver_Timeout(t *testing.T) {
	r := NewReceiver(Config{
		ReassemblyTimeout: 20 * time.Millisecond,
		CleanupInterval:   10 * time.Millisecond,
	}, nil)

	_, err := r.Process(fragment(t, frame.SegFirst, 7, 0, []byte("late")))
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)

	// The next frame sweeps the expired packet before it is matched.
	acc, err := r.Process(fragment(t, frame.SegLast, 7, 1, []byte("!")))
	assert.NoError(t, err)
	assert.Nil(t, acc)
	assert.Equal(t, uint64(1), r.Statistics().GetTimeoutErrors())
	assert.Equal(t, uint64(1), r.Statistics().GetDiscards())
	assert.Equal(t, 0, r.Pending())
}

func TestReceiver_Expire(t *testing.T) {
	r := NewReceiver(Config{
		ReassemblyTimeout: 20 * time.Millisecond,
		CleanupInterval:   time.Hour,
	}, nil)

	_, err := r.Process(fragment(t, frame.SegFirst, 7, 0, []byte("a")))
	require.NoError(t, err)
	_, err = r.Process(fragment(t, frame.SegFirst, 8, 0, []byte("b")))
	require.NoError(t, err)

	r.Expire()
	assert.Equal(t, 2, r.Pending(), "nothing has expired yet")
	assert.Equal(t, uint64(0), r.Statistics().GetTimeoutErrors())

	time.Sleep(40 * time.Millisecond)
	r.Expire()
	assert.Equal(t, 0, r.Pending())
	assert.Equal(t, uint64(2), r.Statistics().GetTimeoutErrors())
}

func TestReceiver_CompletedPacketsAreNotTimeouts(t *testing.T) {
	r := NewReceiver(Config{ReassemblyTimeout: 10 * time.Millisecond}, nil)

	_, err := r.Process(fragment(t, frame.SegFirst, 3, 0, []byte("ab")))
	require.NoError(t, err)
	acc, err := r.Process(fragment(t, frame.SegLast, 3, 1, []byte("cd")))
	require.NoError(t, err)
	require.NotNil(t, acc)

	time.Sleep(20 * time.Millisecond)
	r.Expire()
	assert.Equal(t, uint64(0), r.Statistics().GetTimeoutErrors())
}

func TestReceiver_StartsNoGoroutines(t *testing.T) {
	before := runtime.NumGoroutine()

	receivers := make([]*Receiver, 0, 50)
	for i := 0; i < 50; i++ {
		r := NewReceiver(DefaultConfig(), nil)
		_, err := r.Process(fragment(t, frame.SegFirst, uint8(i), 0, []byte{byte(i)}))
		require.NoError(t, err)
		receivers = append(receivers, r)
	}
	assert.LessOrEqual(t, runtime.NumGoroutine(), before+2)

	for _, r := range receivers {
		r.Close()
		assert.Equal(t, 0, r.Pending())
		assert.Equal(t, uint64(0), r.Statistics().GetTimeoutErrors(), "closing is not a timeout")
	}
}
