package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"avaneesh/prox1-go/pkg/frame"
	"avaneesh/prox1-go/pkg/internal/logger"
)

// Channel runs the receive and transmit loops of one physical channel and
// dispatches received frames to the sessions registered on it.
type Channel struct {
	id              string
	instance        uuid.UUID
	physicalChannel PhysicalChannel
	router          *Router
	stats           *Statistics
	logger          logger.Logger

	// State
	state   ChannelState
	stateMu sync.RWMutex

	// Concurrency
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Write queue for serializing writes
	writeQueue chan *writeRequest
}

// writeRequest represents a write request
type writeRequest struct {
	ctx  context.Context
	data []byte
	resp chan error
}

// New creates a new channel
func New(id string, physical PhysicalChannel, log logger.Logger) *Channel {
	ctx, cancel := context.WithCancel(context.Background())

	return &Channel{
		id:              id,
		instance:        uuid.New(),
		physicalChannel: physical,
		router:          NewRouter(),
		stats:           NewStatistics(),
		logger:          logger.OrNoOp(log),
		state:           ChannelStateClosed,
		ctx:             ctx,
		cancel:          cancel,
		writeQueue:      make(chan *writeRequest, 100),
	}
}

// ID returns the channel ID
func (c *Channel) ID() string {
	return c.id
}

// Instance returns the unique id of this channel instance, used to tell
// apart log lines of channels reusing an id.
func (c *Channel) Instance() uuid.UUID {
	return c.instance
}

// Open opens the channel and starts processing
func (c *Channel) Open() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.state == ChannelStateOpen {
		return ErrChannelOpen
	}
	if c.ctx.Err() != nil {
		return ErrChannelClosed
	}

	c.state = ChannelStateOpen

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.readLoop()
	}()
	go func() {
		defer c.wg.Done()
		c.writeLoop()
	}()

	c.logger.Info("Channel %s opened (instance %s)", c.id, c.instance)
	return nil
}

// Close closes the channel. A closed channel cannot be reopened.
func (c *Channel) Close() error {
	c.stateMu.Lock()
	if c.state == ChannelStateClosed && c.ctx.Err() != nil {
		c.stateMu.Unlock()
		return nil
	}
	c.state = ChannelStateClosed
	c.stateMu.Unlock()

	c.logger.Info("Channel %s closing", c.id)

	c.cancel()

	if err := c.physicalChannel.Close(); err != nil {
		c.logger.Error("Error closing physical channel: %v", err)
	}

	c.wg.Wait()

	c.logger.Info("Channel %s closed", c.id)
	return nil
}

// readLoop reads, parses and routes frames until the channel closes
func (c *Channel) readLoop() {
	c.logger.Debug("Channel %s read loop started", c.id)
	defer c.logger.Debug("Channel %s read loop stopped", c.id)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		data, err := c.physicalChannel.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Error("Channel %s read error: %v", c.id, err)
			c.stats.BadFrame()
			continue
		}
		logger.DumpFrame(c.logger, "RX", data)

		f, err := frame.Deserialize(data)
		if err != nil {
			c.logger.Error("Channel %s parse error: %v", c.id, err)
			c.stats.BadFrame()
			continue
		}
		if !frame.Validate(f) {
			c.logger.Warn("Channel %s dropping invalid frame: %s", c.id, f.Header)
			c.stats.InvalidFrame()
			f.Release()
			continue
		}

		c.stats.FrameRx()
		c.logger.Debug("Channel %s received %s", c.id, f)

		if err := c.router.Route(f); err != nil {
			c.stats.Unrouted()
			c.logger.Warn("Channel %s routing error: %v", c.id, err)
		}
	}
}

// writeLoop processes write requests
func (c *Channel) writeLoop() {
	c.logger.Debug("Channel %s write loop started", c.id)
	defer c.logger.Debug("Channel %s write loop stopped", c.id)

	for {
		select {
		case <-c.ctx.Done():
			// Drain remaining requests with error
			for {
				select {
				case req := <-c.writeQueue:
					req.resp <- ErrChannelClosed
				default:
					return
				}
			}

		case req := <-c.writeQueue:
			logger.DumpFrame(c.logger, "TX", req.data)
			err := c.physicalChannel.Write(req.ctx, req.data)
			if err != nil {
				c.stats.WriteError()
				c.logger.Error("Channel %s write error: %v", c.id, err)
			} else {
				c.stats.FrameTx()
			}
			req.resp <- err
		}
	}
}

// Write queues one serialized frame and waits for it to be written. data is
// copied, so the caller may reuse it as soon as Write returns.
func (c *Channel) Write(ctx context.Context, data []byte) error {
	c.stateMu.RLock()
	if c.state != ChannelStateOpen {
		c.stateMu.RUnlock()
		return ErrChannelClosed
	}
	c.stateMu.RUnlock()

	req := &writeRequest{
		ctx:  ctx,
		data: append([]byte(nil), data...),
		resp: make(chan error, 1),
	}

	select {
	case c.writeQueue <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrChannelClosed
	}

	select {
	case err := <-req.resp:
		return err
	case <-c.ctx.Done():
		return ErrChannelClosed
	}
}

// AddSession adds a session to the channel
func (c *Channel) AddSession(session Session) error {
	if err := c.router.AddSession(session); err != nil {
		return err
	}

	c.stats.SetActiveSessions(uint64(c.router.GetSessionCount()))
	c.logger.Info("Channel %s: added session for spacecraft %d", c.id, session.SpacecraftID())
	return nil
}

// RemoveSession removes a session from the channel
func (c *Channel) RemoveSession(scid uint16) {
	c.router.RemoveSession(scid)
	c.stats.SetActiveSessions(uint64(c.router.GetSessionCount()))
	c.logger.Info("Channel %s: removed session for spacecraft %d", c.id, scid)
}

// GetStatistics returns channel statistics
func (c *Channel) GetStatistics() *Statistics {
	return c.stats
}

// GetPhysicalStatistics returns physical channel statistics
func (c *Channel) GetPhysicalStatistics() TransportStats {
	return c.physicalChannel.Statistics()
}

// State returns the current channel state
func (c *Channel) State() ChannelState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// String returns string representation of channel
func (c *Channel) String() string {
	return fmt.Sprintf("Channel{ID=%s, State=%s, Sessions=%d}",
		c.id, c.State(), c.router.GetSessionCount())
}
