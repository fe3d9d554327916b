package prox1

import (
	"crypto/tls"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"avaneesh/prox1-go/pkg/channel"
	"avaneesh/prox1-go/pkg/frame"
	"avaneesh/prox1-go/pkg/internal/logger"
	"avaneesh/prox1-go/pkg/iolayer"
)

// Config is the complete configuration of a Proximity-1 endpoint.
type Config struct {
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Link       LinkConfig       `mapstructure:"link" yaml:"link"`
	Channel    ChannelConfig    `mapstructure:"channel" yaml:"channel"`
	Reassembly ReassemblyConfig `mapstructure:"reassembly" yaml:"reassembly"`
	Transmit   TransmitConfig   `mapstructure:"transmit" yaml:"transmit"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"` // text or json
	FrameDebug bool   `mapstructure:"frame_debug" yaml:"frame_debug"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// LinkConfig holds the header fields used for transmitted frames.
type LinkConfig struct {
	SpacecraftID    uint16 `mapstructure:"spacecraft_id" yaml:"spacecraft_id"`
	Port            uint8  `mapstructure:"port" yaml:"port"`
	PhysicalChannel uint8  `mapstructure:"physical_channel" yaml:"physical_channel"`
	Destination     bool   `mapstructure:"destination" yaml:"destination"` // SCID names the receiver
	Expedited       bool   `mapstructure:"expedited" yaml:"expedited"`
}

// ChannelConfig selects and configures the physical channel.
type ChannelConfig struct {
	Type           string              `mapstructure:"type" yaml:"type"` // udp, tcp, quic or serial
	Address        string              `mapstructure:"address" yaml:"address"`
	Server         bool                `mapstructure:"server" yaml:"server"`
	ReadTimeout    time.Duration       `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration       `mapstructure:"write_timeout" yaml:"write_timeout"`
	ReconnectDelay time.Duration       `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	Serial         channel.PortOptions `mapstructure:"serial" yaml:"serial"`
}

// ReassemblyConfig configures the receive side.
type ReassemblyConfig struct {
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Cleanup  time.Duration `mapstructure:"cleanup" yaml:"cleanup"`
	MaxSize  int           `mapstructure:"max_size" yaml:"max_size"`
	EmitBits bool          `mapstructure:"emit_bits" yaml:"emit_bits"` // deliver bit sequences instead of bytes
}

// TransmitConfig configures the transmit side.
type TransmitConfig struct {
	QueueDepth      int     `mapstructure:"queue_depth" yaml:"queue_depth"`
	FramesPerSecond float64 `mapstructure:"frames_per_second" yaml:"frames_per_second"` // 0 = unpaced
	Burst           int     `mapstructure:"burst" yaml:"burst"`
}

// Channel types
const (
	ChannelUDP    = "udp"
	ChannelTCP    = "tcp"
	ChannelQUIC   = "quic"
	ChannelSerial = "serial"
)

// EnvPrefix prefixes environment overrides, e.g. PROX1_LINK_SPACECRAFT_ID.
const EnvPrefix = "PROX1"

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("prox1: invalid config")

// DefaultConfig returns default endpoint configuration
func DefaultConfig() Config {
	rx := iolayer.DefaultConfig()
	return Config{
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Link: LinkConfig{
			SpacecraftID: 1,
		},
		Channel: ChannelConfig{
			Type:           ChannelUDP,
			Address:        "127.0.0.1:4100",
			ReadTimeout:    time.Second,
			WriteTimeout:   5 * time.Second,
			ReconnectDelay: 5 * time.Second,
			Serial: channel.PortOptions{
				BaudRate: 115200,
				DataBits: 8,
				StopBits: 1,
				Parity:   "N",
			},
		},
		Reassembly: ReassemblyConfig{
			Timeout: rx.ReassemblyTimeout,
			Cleanup: rx.CleanupInterval,
			MaxSize: rx.MaxReassemblySize,
		},
		Transmit: TransmitConfig{
			QueueDepth: frame.MaxQueueDepth,
			Burst:      1,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.frame_debug", d.Log.FrameDebug)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)

	v.SetDefault("link.spacecraft_id", d.Link.SpacecraftID)
	v.SetDefault("link.port", d.Link.Port)
	v.SetDefault("link.physical_channel", d.Link.PhysicalChannel)
	v.SetDefault("link.destination", d.Link.Destination)
	v.SetDefault("link.expedited", d.Link.Expedited)

	v.SetDefault("channel.type", d.Channel.Type)
	v.SetDefault("channel.address", d.Channel.Address)
	v.SetDefault("channel.server", d.Channel.Server)
	v.SetDefault("channel.read_timeout", d.Channel.ReadTimeout)
	v.SetDefault("channel.write_timeout", d.Channel.WriteTimeout)
	v.SetDefault("channel.reconnect_delay", d.Channel.ReconnectDelay)
	v.SetDefault("channel.serial.baud_rate", d.Channel.Serial.BaudRate)
	v.SetDefault("channel.serial.data_bits", d.Channel.Serial.DataBits)
	v.SetDefault("channel.serial.stop_bits", d.Channel.Serial.StopBits)
	v.SetDefault("channel.serial.parity", d.Channel.Serial.Parity)

	v.SetDefault("reassembly.timeout", d.Reassembly.Timeout)
	v.SetDefault("reassembly.cleanup", d.Reassembly.Cleanup)
	v.SetDefault("reassembly.max_size", d.Reassembly.MaxSize)
	v.SetDefault("reassembly.emit_bits", d.Reassembly.EmitBits)

	v.SetDefault("transmit.queue_depth", d.Transmit.QueueDepth)
	v.SetDefault("transmit.frames_per_second", d.Transmit.FramesPerSecond)
	v.SetDefault("transmit.burst", d.Transmit.Burst)
}

// LoadConfig reads configuration from path, applies PROX1_ environment
// overrides and validates the result. An empty path yields the defaults
// plus environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges that the wire format and buffers impose.
func (c *Config) Validate() error {
	if c.Link.SpacecraftID > frame.MaxSpacecraftID {
		return errors.Wrapf(ErrInvalidConfig, "spacecraft_id %d exceeds %d", c.Link.SpacecraftID, frame.MaxSpacecraftID)
	}
	if c.Link.Port > frame.MaxPort {
		return errors.Wrapf(ErrInvalidConfig, "port %d exceeds %d", c.Link.Port, frame.MaxPort)
	}
	if c.Link.PhysicalChannel > 1 {
		return errors.Wrapf(ErrInvalidConfig, "physical_channel must be 0 or 1, got %d", c.Link.PhysicalChannel)
	}
	if _, ok := logger.ParseLevel(c.Log.Level); !ok {
		return errors.Wrapf(ErrInvalidConfig, "log level %q", c.Log.Level)
	}

	switch c.Channel.Type {
	case ChannelUDP, ChannelTCP, ChannelQUIC, ChannelSerial:
	default:
		return errors.Wrapf(ErrInvalidConfig, "channel type %q", c.Channel.Type)
	}
	if c.Channel.Address == "" {
		return errors.Wrap(ErrInvalidConfig, "channel address is empty")
	}
	if c.Channel.Type == ChannelSerial {
		if _, err := c.Channel.Serial.Normalize(); err != nil {
			return errors.Wrapf(ErrInvalidConfig, "serial: %v", err)
		}
	}

	if c.Reassembly.MaxSize < 0 {
		return errors.Wrapf(ErrInvalidConfig, "reassembly max_size %d", c.Reassembly.MaxSize)
	}
	if c.Transmit.QueueDepth < 0 || c.Transmit.QueueDepth > frame.MaxQueueDepth {
		return errors.Wrapf(ErrInvalidConfig, "transmit queue_depth must be within 0-%d", frame.MaxQueueDepth)
	}
	if c.Transmit.FramesPerSecond < 0 {
		return errors.Wrapf(ErrInvalidConfig, "transmit frames_per_second %v", c.Transmit.FramesPerSecond)
	}
	return nil
}

// YAML renders the configuration as a YAML document.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// SessionConfig converts the link, reassembly and transmit sections into
// the settings of one session.
func (c *Config) SessionConfig() SessionConfig {
	sc := DefaultSessionConfig()
	sc.SpacecraftID = c.Link.SpacecraftID
	sc.Port = c.Link.Port
	sc.PhysicalChannel = c.Link.PhysicalChannel
	if c.Link.Destination {
		sc.SourceDest = frame.Destination
	}
	if c.Link.Expedited {
		sc.QoS = frame.QoSExpedited
	}
	sc.Receive = iolayer.Config{
		ReassemblyTimeout: c.Reassembly.Timeout,
		CleanupInterval:   c.Reassembly.Cleanup,
		MaxReassemblySize: c.Reassembly.MaxSize,
	}
	sc.EmitBits = c.Reassembly.EmitBits
	sc.QueueDepth = c.Transmit.QueueDepth
	sc.FramesPerSecond = c.Transmit.FramesPerSecond
	sc.Burst = c.Transmit.Burst
	return sc
}

// NewPhysicalChannel opens the physical channel the channel section
// describes. TLS for QUIC uses tlsConfig when non-nil.
func NewPhysicalChannel(c ChannelConfig, tlsConfig *tls.Config) (channel.PhysicalChannel, error) {
	switch c.Type {
	case ChannelUDP:
		return channel.NewUDPChannel(channel.UDPChannelConfig{
			Address:      c.Address,
			IsServer:     c.Server,
			ReadTimeout:  c.ReadTimeout,
			WriteTimeout: c.WriteTimeout,
		})
	case ChannelTCP:
		return channel.NewTCPChannel(channel.TCPChannelConfig{
			Address:        c.Address,
			IsServer:       c.Server,
			ReconnectDelay: c.ReconnectDelay,
			ReadTimeout:    c.ReadTimeout,
			WriteTimeout:   c.WriteTimeout,
		})
	case ChannelQUIC:
		return channel.NewQUICChannel(channel.QUICChannelConfig{
			Address:        c.Address,
			IsServer:       c.Server,
			ReconnectDelay: c.ReconnectDelay,
			ReadTimeout:    c.ReadTimeout,
			WriteTimeout:   c.WriteTimeout,
			TLSConfig:      tlsConfig,
		})
	case ChannelSerial:
		return channel.NewSerialChannel(channel.SerialChannelConfig{
			Path:    c.Address,
			Options: c.Serial,
			Poll:    c.ReadTimeout,
		})
	default:
		return nil, errors.Wrapf(ErrInvalidConfig, "channel type %q", c.Type)
	}
}
