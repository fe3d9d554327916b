package channel

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"avaneesh/prox1-go/pkg/frame"
)

// linkStats holds the counters shared by every physical channel.
type linkStats struct {
	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64
	writeErrors   atomic.Uint64
	readErrors    atomic.Uint64
	connects      atomic.Uint64
	disconnects   atomic.Uint64
}

func (s *linkStats) snapshot() TransportStats {
	return TransportStats{
		BytesSent:     s.bytesSent.Load(),
		BytesReceived: s.bytesReceived.Load(),
		WriteErrors:   s.writeErrors.Load(),
		ReadErrors:    s.readErrors.Load(),
		Connects:      s.connects.Load(),
		Disconnects:   s.disconnects.Load(),
	}
}

// stateNotifier fans connection state changes out to an optional listener.
type stateNotifier struct {
	stateListener ConnectionStateListener
	stateLock     sync.RWMutex
}

// SetConnectionStateListener sets a listener for connection state changes
func (n *stateNotifier) SetConnectionStateListener(listener ConnectionStateListener) {
	n.stateLock.Lock()
	defer n.stateLock.Unlock()
	n.stateListener = listener
}

func (n *stateNotifier) established() {
	n.stateLock.RLock()
	l := n.stateListener
	n.stateLock.RUnlock()
	if l != nil {
		l.OnConnectionEstablished()
	}
}

func (n *stateNotifier) lost() {
	n.stateLock.RLock()
	l := n.stateListener
	n.stateLock.RUnlock()
	if l != nil {
		l.OnConnectionLost()
	}
}

// readFrame reads exactly one frame from a byte stream. The header is read
// first and the remaining length derived from it.
//
// An error before the first header byte is returned as is, so read deadlines
// stay recognisable as net.Error timeouts. Any later error means the stream
// position is no longer on a frame boundary and is reported as
// ErrFramingLost; the caller must discard the stream.
func readFrame(r io.Reader) ([]byte, error) {
	buf := make([]byte, frame.MaxFrameSize)
	if n, err := io.ReadFull(r, buf[:frame.HeaderSize]); err != nil {
		if n == 0 {
			return nil, err
		}
		return nil, errors.Wrapf(ErrFramingLost, "header after %d bytes: %v", n, err)
	}

	n, err := frame.FrameLength(buf[:frame.HeaderSize])
	if err != nil {
		return nil, errors.Wrapf(ErrFramingLost, "header % x: %v", buf[:frame.HeaderSize], err)
	}
	if got, err := io.ReadFull(r, buf[frame.HeaderSize:n]); err != nil {
		return nil, errors.Wrapf(ErrFramingLost, "body after %d of %d bytes: %v", got, n-frame.HeaderSize, err)
	}
	return buf[:n], nil
}
