package channel

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avaneesh/prox1-go/pkg/frame"
)

type recordingSession struct {
	scid   uint16
	mu     sync.Mutex
	frames []*frame.Frame
}

func (s *recordingSession) OnFrame(f *frame.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *recordingSession) SpacecraftID() uint16 { return s.scid }

func (s *recordingSession) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func wireFrame(t *testing.T, scid uint16, version uint8, payload []byte) []byte {
	t.Helper()
	h := frame.NewPDUHeader(version, frame.QoSExpedited, frame.PDUData, frame.DFCPackets, scid, 0, 1, frame.Source, 0, 0)
	f, err := frame.NewUnfragmented(h, payload)
	require.NoError(t, err)
	data, err := frame.Serialize(f)
	require.NoError(t, err)
	return data
}

func TestReadFrame_Stream(t *testing.T) {
	a := wireFrame(t, 1, frame.Version3, []byte("first"))
	b := wireFrame(t, 1, frame.Version3, bytes.Repeat([]byte{0xEE}, 200))
	r := bytes.NewReader(append(append([]byte{}, a...), b...))

	got, err := readFrame(r)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	got, err = readFrame(r)
	require.NoError(t, err)
	assert.Equal(t, b, got)

	_, err = readFrame(r)
	assert.Error(t, err)
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// scriptedReader returns one chunk per Read, then err forever.
type scriptedReader struct {
	chunks [][]byte
	err    error
}

func (r *scriptedReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, r.err
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func oversizedHeader() []byte {
	h := frame.NewPDUHeader(frame.Version3, 0, frame.PDUData, frame.DFCPackets, 1, 0, 1, frame.Source, 255, 0)
	hdr := make([]byte, frame.HeaderSize)
	h.Encode(hdr)
	return hdr
}

func TestReadFrame_FramingLost(t *testing.T) {
	valid := wireFrame(t, 1, frame.Version3, []byte("payload"))

	tests := []struct {
		name   string
		chunks [][]byte
	}{
		{"Partial header", [][]byte{valid[:3]}},
		{"Partial body", [][]byte{valid[:frame.HeaderSize+2]}},
		{"Oversized length", [][]byte{oversizedHeader()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readFrame(&scriptedReader{chunks: tt.chunks, err: timeoutError{}})
			assert.ErrorIs(t, err, ErrFramingLost)
			_, isNetErr := err.(net.Error)
			assert.False(t, isNetErr, "must not be retried as a plain timeout")
		})
	}
}

func TestReadFrame_IdleTimeout(t *testing.T) {
	_, err := readFrame(&scriptedReader{err: timeoutError{}})
	netErr, ok := err.(net.Error)
	require.True(t, ok)
	assert.True(t, netErr.Timeout())
}

func TestChannel_RoutesBySpacecraft(t *testing.T) {
	mock := NewMockChannel()
	ch := New("test", mock, nil)

	s1 := &recordingSession{scid: 1}
	s2 := &recordingSession{scid: 2}
	require.NoError(t, ch.AddSession(s1))
	require.NoError(t, ch.AddSession(s2))
	assert.ErrorIs(t, ch.AddSession(&recordingSession{scid: 1}), ErrSessionExists)

	require.NoError(t, ch.Open())
	defer ch.Close()
	assert.ErrorIs(t, ch.Open(), ErrChannelOpen)

	mock.InjectRead(wireFrame(t, 2, frame.Version3, []byte("to two")))
	mock.InjectRead(wireFrame(t, 1, frame.Version3, []byte("to one")))
	mock.InjectRead(wireFrame(t, 3, frame.Version3, []byte("nobody")))
	mock.InjectRead(wireFrame(t, 1, 0, []byte("old version")))
	mock.InjectRead([]byte{0x80})

	assert.Eventually(t, func() bool {
		st := ch.GetStatistics()
		return st.GetFramesRx() == 3 && st.GetInvalidFrames() == 1 && st.GetBadFrames() == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, s1.count())
	assert.Equal(t, 1, s2.count())
	assert.Equal(t, uint64(1), ch.GetStatistics().GetUnrouted())
	assert.Equal(t, []byte("to two"), s2.frames[0].Payload.Bytes())
	assert.Equal(t, uint64(2), ch.GetStatistics().GetActiveSessions())
}

func TestChannel_Write(t *testing.T) {
	mock := NewMockChannel()
	ch := New("test", mock, nil)

	assert.ErrorIs(t, ch.Write(context.Background(), []byte{1}), ErrChannelClosed)

	require.NoError(t, ch.Open())
	buf := []byte{1, 2, 3}
	require.NoError(t, ch.Write(context.Background(), buf))
	buf[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, mock.GetWritten())
	assert.Equal(t, uint64(1), ch.GetStatistics().GetFramesTx())

	require.NoError(t, ch.Close())
	assert.Equal(t, ChannelStateClosed, ch.State())
	assert.ErrorIs(t, ch.Write(context.Background(), buf), ErrChannelClosed)
	assert.ErrorIs(t, ch.Open(), ErrChannelClosed)
	assert.NoError(t, ch.Close())
}

func TestMockPair(t *testing.T) {
	a, b := NewMockPair()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, a.Write(ctx, []byte("ab")))
	got, err := b.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("ab"), got)

	require.NoError(t, b.Write(ctx, []byte("ba")))
	got, err = a.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("ba"), got)

	require.NoError(t, a.Close())
	_, err = a.Read(ctx)
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func TestRouter_Unrouted(t *testing.T) {
	r := NewRouter()
	f, err := frame.NewUnfragmented(frame.NewPDUHeader(frame.Version3, 0, frame.PDUData, 0, 7, 0, 0, 0, 0, 0), []byte{1})
	require.NoError(t, err)

	assert.ErrorIs(t, r.Route(f), ErrNoSession)
	assert.True(t, f.Payload.Released(), "unrouted frame is released")

	s := &recordingSession{scid: 7}
	require.NoError(t, r.AddSession(s))
	got, ok := r.GetSession(7)
	require.True(t, ok)
	assert.Equal(t, s, got)

	r.Clear()
	assert.Equal(t, 0, r.GetSessionCount())
}
