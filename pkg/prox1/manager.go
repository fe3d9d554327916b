package prox1

import (
	"sync"

	"github.com/pkg/errors"

	"avaneesh/prox1-go/pkg/channel"
	"avaneesh/prox1-go/pkg/internal/logger"
)

// Manager errors
var (
	ErrChannelExists   = errors.New("prox1: channel already exists")
	ErrChannelNotFound = errors.New("prox1: channel not found")
)

type channelEntry struct {
	channel  *channel.Channel
	sessions map[uint16]*Session
}

// Manager is the root object for Proximity-1 operations.
// It owns channels and the sessions attached to them.
type Manager struct {
	channels map[string]*channelEntry
	mu       sync.RWMutex
	logger   logger.Logger
}

// NewManager creates a new manager using the default logger
func NewManager() *Manager {
	return NewManagerWithLogger(logger.GetDefault())
}

// NewManagerWithLogger creates a new manager with custom logger
func NewManagerWithLogger(log logger.Logger) *Manager {
	return &Manager{
		channels: make(map[string]*channelEntry),
		logger:   logger.OrNoOp(log),
	}
}

// AddChannel opens a channel over the given physical channel
func (m *Manager) AddChannel(id string, physical channel.PhysicalChannel) (*channel.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.channels[id]; exists {
		return nil, errors.Wrapf(ErrChannelExists, "%s", id)
	}

	ch := channel.New(id, physical, m.logger)
	if err := ch.Open(); err != nil {
		return nil, errors.Wrap(err, "open channel")
	}

	m.channels[id] = &channelEntry{channel: ch, sessions: make(map[uint16]*Session)}
	m.logger.Info("Manager: Added channel %s", id)
	return ch, nil
}

// AddSession creates a session on a channel. Frames received for the
// session's spacecraft id are routed to it.
func (m *Manager) AddSession(channelID string, cfg SessionConfig, h Handler) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.channels[channelID]
	if !ok {
		return nil, errors.Wrapf(ErrChannelNotFound, "%s", channelID)
	}

	s, err := NewSession(cfg, entry.channel, h, m.logger)
	if err != nil {
		return nil, err
	}
	if err := entry.channel.AddSession(s); err != nil {
		return nil, err
	}
	entry.sessions[s.SpacecraftID()] = s
	return s, nil
}

// RemoveSession closes the session for scid and detaches it from the channel
func (m *Manager) RemoveSession(channelID string, scid uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.channels[channelID]
	if !ok {
		return errors.Wrapf(ErrChannelNotFound, "%s", channelID)
	}
	s, ok := entry.sessions[scid]
	if !ok {
		return errors.Wrapf(channel.ErrNoSession, "spacecraft %d", scid)
	}

	entry.channel.RemoveSession(scid)
	delete(entry.sessions, scid)
	return s.Close()
}

// RemoveChannel closes a channel and its sessions
func (m *Manager) RemoveChannel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.channels[id]
	if !exists {
		return errors.Wrapf(ErrChannelNotFound, "%s", id)
	}

	m.closeEntry(id, entry)
	delete(m.channels, id)
	m.logger.Info("Manager: Removed channel %s", id)
	return nil
}

func (m *Manager) closeEntry(id string, entry *channelEntry) {
	if err := entry.channel.Close(); err != nil {
		m.logger.Error("Error closing channel %s: %v", id, err)
	}
	for _, s := range entry.sessions {
		_ = s.Close()
	}
}

// GetChannel returns a channel by ID
func (m *Manager) GetChannel(id string) (*channel.Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.channels[id]
	if !exists {
		return nil, false
	}
	return entry.channel, true
}

// GetSession returns the session for scid on a channel
func (m *Manager) GetSession(channelID string, scid uint16) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.channels[channelID]
	if !exists {
		return nil, false
	}
	s, ok := entry.sessions[scid]
	return s, ok
}

// Shutdown shuts down the manager and all channels
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("Manager: Shutting down")

	for id, entry := range m.channels {
		m.closeEntry(id, entry)
	}

	m.channels = make(map[string]*channelEntry)
	m.logger.Info("Manager: Shutdown complete")
	return nil
}

// ChannelCount returns the number of channels
func (m *Manager) ChannelCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.channels)
}
