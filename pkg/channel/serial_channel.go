package channel

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// PortOptions describes the UART settings of a radio modem.
type PortOptions struct {
	BaudRate int    `mapstructure:"baud_rate" yaml:"baud_rate"`
	DataBits int    `mapstructure:"data_bits" yaml:"data_bits"`
	StopBits int    `mapstructure:"stop_bits" yaml:"stop_bits"`
	Parity   string `mapstructure:"parity" yaml:"parity"`
}

// Normalize validates the options and applies defaults for any unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 115200
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, errors.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, errors.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	parity := strings.TrimSpace(strings.ToUpper(opts.Parity))
	switch parity {
	case "", "N", "NONE":
		parity = "N"
	case "E", "EVEN":
		parity = "E"
	case "O", "ODD":
		parity = "O"
	default:
		return opts, errors.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}

	opts.Parity = parity
	return opts, nil
}

// SerialMode converts the options into the mode used to open the port.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}

	return mode, nil
}

// SerialPort is the subset of serial.Port the channel needs.
type SerialPort interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// SerialChannel implements PhysicalChannel over a UART attached radio.
// The byte stream is cut into frames using the header length; a header that
// cannot start a frame flushes the input buffer to regain framing.
type SerialChannel struct {
	port      SerialPort
	path      string
	writeLock sync.Mutex
	pollEvery time.Duration

	stateNotifier
	stats linkStats

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

// SerialChannelConfig configures a serial channel
type SerialChannelConfig struct {
	Path    string        // device path, e.g. /dev/ttyUSB0
	Options PortOptions   // UART settings
	Poll    time.Duration // read timeout used to check for cancellation (default 100ms)
}

// NewSerialChannel opens the serial device described by config.
func NewSerialChannel(config SerialChannelConfig) (*SerialChannel, error) {
	if config.Path == "" {
		return nil, errors.Wrap(ErrAddress, "serial device path")
	}

	mode, err := config.Options.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(config.Path, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", config.Path)
	}

	sc, err := NewSerialChannelFromPort(port, config.Poll)
	if err != nil {
		port.Close()
		return nil, err
	}
	sc.path = config.Path
	return sc, nil
}

// NewSerialChannelFromPort wraps an already open port.
func NewSerialChannelFromPort(port SerialPort, poll time.Duration) (*SerialChannel, error) {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	if err := port.SetReadTimeout(poll); err != nil {
		return nil, errors.Wrap(err, "set read timeout")
	}

	ctx, cancel := context.WithCancel(context.Background())
	sc := &SerialChannel{
		port:      port,
		pollEvery: poll,
		ctx:       ctx,
		cancel:    cancel,
	}
	sc.stats.connects.Add(1)
	return sc, nil
}

// portReader turns read timeouts into cancellation checks so io.ReadFull
// can be used on the port.
type portReader struct {
	ctx  context.Context
	own  context.Context
	port io.Reader
}

func (r portReader) Read(p []byte) (int, error) {
	for {
		n, err := r.port.Read(p)
		if n > 0 || err != nil {
			return n, err
		}
		select {
		case <-r.ctx.Done():
			return 0, r.ctx.Err()
		case <-r.own.Done():
			return 0, ErrChannelClosed
		default:
		}
	}
}

// Read implements PhysicalChannel.Read
func (sc *SerialChannel) Read(ctx context.Context) ([]byte, error) {
	r := portReader{ctx: ctx, own: sc.ctx, port: sc.port}
	for {
		data, err := readFrame(r)
		if err == nil {
			sc.stats.bytesReceived.Add(uint64(len(data)))
			return data, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if sc.closed.Load() {
			return nil, ErrChannelClosed
		}
		sc.stats.readErrors.Add(1)
		if err == io.EOF {
			return nil, err
		}
		sc.port.ResetInputBuffer()
	}
}

// Write implements PhysicalChannel.Write
func (sc *SerialChannel) Write(ctx context.Context, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-sc.ctx.Done():
		return ErrChannelClosed
	default:
	}

	sc.writeLock.Lock()
	defer sc.writeLock.Unlock()

	if _, err := sc.port.Write(data); err != nil {
		sc.stats.writeErrors.Add(1)
		return errors.Wrap(err, "serial write")
	}
	sc.stats.bytesSent.Add(uint64(len(data)))
	return nil
}

// Close implements PhysicalChannel.Close
func (sc *SerialChannel) Close() error {
	if !sc.closed.CompareAndSwap(false, true) {
		return nil
	}
	sc.cancel()
	sc.stats.disconnects.Add(1)
	return sc.port.Close()
}

// Statistics implements PhysicalChannel.Statistics
func (sc *SerialChannel) Statistics() TransportStats {
	return sc.stats.snapshot()
}

// Path returns the device path, empty for wrapped ports.
func (sc *SerialChannel) Path() string {
	return sc.path
}
