package channel

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"avaneesh/prox1-go/pkg/frame"
)

type fakePort struct {
	rx      *bytes.Reader
	tx      bytes.Buffer
	resets  int
	timeout time.Duration
	closed  bool
}

func (p *fakePort) Read(b []byte) (int, error)  { return p.rx.Read(b) }
func (p *fakePort) Write(b []byte) (int, error) { return p.tx.Write(b) }
func (p *fakePort) Close() error                { p.closed = true; return nil }

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.resets++
	p.rx = bytes.NewReader(nil)
	return nil
}

func TestPortOptions_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		in      PortOptions
		want    PortOptions
		wantErr bool
	}{
		{"Defaults", PortOptions{}, PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}, false},
		{"Long parity name", PortOptions{BaudRate: 9600, Parity: " even "}, PortOptions{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "E"}, false},
		{"Bad data bits", PortOptions{DataBits: 9}, PortOptions{}, true},
		{"Bad stop bits", PortOptions{StopBits: 3}, PortOptions{}, true},
		{"Bad parity", PortOptions{Parity: "mark"}, PortOptions{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalize()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 57600, StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, &serial.Mode{
		BaudRate: 57600,
		DataBits: 8,
		StopBits: serial.TwoStopBits,
		Parity:   serial.OddParity,
	}, mode)

	_, err = PortOptions{DataBits: 4}.SerialMode()
	assert.Error(t, err)
}

func TestSerialChannel_ReadFrames(t *testing.T) {
	a := wireFrame(t, 5, frame.Version3, []byte("uplink"))
	b := wireFrame(t, 5, frame.Version3, []byte("second"))
	port := &fakePort{rx: bytes.NewReader(append(append([]byte{}, a...), b...))}

	sc, err := NewSerialChannelFromPort(port, 0)
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, port.timeout)

	ctx := context.Background()
	got, err := sc.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	got, err = sc.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, b, got)

	_, err = sc.Read(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, uint64(len(a)+len(b)), sc.Statistics().BytesReceived)
}

func TestSerialChannel_ResyncOnBadHeader(t *testing.T) {
	bad := make([]byte, frame.HeaderSize)
	frame.NewPDUHeader(frame.Version3, 0, frame.PDUData, frame.DFCFragmented, 1, 0, 0, 0, 250, 0).Encode(bad)
	port := &fakePort{rx: bytes.NewReader(append(bad, 1, 2, 3))}

	sc, err := NewSerialChannelFromPort(port, time.Millisecond)
	require.NoError(t, err)

	_, err = sc.Read(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 1, port.resets)
	assert.Equal(t, uint64(2), sc.Statistics().ReadErrors)
}

func TestSerialChannel_WriteAndClose(t *testing.T) {
	port := &fakePort{rx: bytes.NewReader(nil)}
	sc, err := NewSerialChannelFromPort(port, 0)
	require.NoError(t, err)

	data := wireFrame(t, 5, frame.Version3, []byte("down"))
	require.NoError(t, sc.Write(context.Background(), data))
	assert.Equal(t, data, port.tx.Bytes())

	require.NoError(t, sc.Close())
	assert.True(t, port.closed)
	assert.ErrorIs(t, sc.Write(context.Background(), data), ErrChannelClosed)
	assert.NoError(t, sc.Close())
}
