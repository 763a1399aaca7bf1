package config

import (
	"path/filepath"
	"time"

	"github.com/go-i2p/logger"
)

// ConfigDefaults contains every configuration value of the daemon.
type ConfigDefaults struct {
	I2CP    I2CPDefaults    `yaml:"i2cp"`
	NetDB   NetDBDefaults   `yaml:"netdb"`
	Tunnel  TunnelDefaults  `yaml:"tunnel"`
	Time    TimeDefaults    `yaml:"time"`
	Metrics MetricsDefaults `yaml:"metrics"`
}

// I2CPDefaults contains default values for I2CP server
type I2CPDefaults struct {
	// Address is the listen address for I2CP server
	// Default: "localhost:7654" (I2P protocol standard port)
	Address string `yaml:"address"`

	// Network is the network type: "tcp" or "unix"
	// Default: "tcp"
	Network string `yaml:"network"`

	// MaxSessions is maximum concurrent I2CP sessions
	// Default: 100 sessions
	MaxSessions int `yaml:"max_sessions"`

	// BufferSize bounds a single inbound message including its header
	// Default: 65536 bytes
	BufferSize int `yaml:"buffer_size"`

	// MessageQueueSize is the buffer size for outbound messages per session
	// Default: 64 messages
	MessageQueueSize int `yaml:"message_queue_size"`

	// ReadTimeout closes sessions that send nothing for this long
	// Default: 0 (disabled)
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// MessagesPerSecond limits how fast one session's messages are dispatched
	// Default: 0 (unlimited)
	MessagesPerSecond float64 `yaml:"messages_per_second"`

	// MessageBurst is the number of messages allowed above the rate
	// Default: 256
	MessageBurst int `yaml:"message_burst"`
}

// NetDBDefaults contains default values for the local network database
type NetDBDefaults struct {
	// LeaseSetCacheSize is the maximum number of LeaseSets kept in memory
	// Default: 1024
	LeaseSetCacheSize int `yaml:"leaseset_cache_size"`

	// AddressBookPath is the bbolt file holding hostname mappings
	// Default: $HOME/.go-i2cpd/addressbook.db
	AddressBookPath string `yaml:"addressbook_path"`
}

// TunnelDefaults contains default values for the local tunnel service
type TunnelDefaults struct {
	// InboundQuantity is the number of inbound tunnels offered per destination
	// Default: 2
	InboundQuantity int `yaml:"inbound_quantity"`

	// Lifetime is how long each tunnel, and so each lease, stays valid
	// Default: 10 minutes
	Lifetime time.Duration `yaml:"lifetime"`
}

// TimeDefaults contains default values for router time keeping
type TimeDefaults struct {
	// NTPServers are queried in order
	NTPServers []string `yaml:"ntp_servers"`

	// NTPDisabled uses the system clock as is
	// Default: true
	NTPDisabled bool `yaml:"ntp_disabled"`

	// QueryInterval is the time between NTP queries
	// Default: 11 minutes
	QueryInterval time.Duration `yaml:"query_interval"`
}

// MetricsDefaults contains default values for the Prometheus endpoint
type MetricsDefaults struct {
	// Address serves /metrics when not empty
	// Default: "" (disabled)
	Address string `yaml:"address"`
}

// Defaults returns a ConfigDefaults instance with all default values set.
// This is the single source of truth for all configuration defaults.
func Defaults() ConfigDefaults {
	return ConfigDefaults{
		I2CP: I2CPDefaults{
			Address:          "localhost:7654",
			Network:          "tcp",
			MaxSessions:      100,
			BufferSize:       65536,
			MessageQueueSize: 64,
			MessageBurst:     256,
		},
		NetDB: NetDBDefaults{
			LeaseSetCacheSize: 1024,
			AddressBookPath:   filepath.Join(BuildI2CPDirPath(), "addressbook.db"),
		},
		Tunnel: TunnelDefaults{
			InboundQuantity: 2,
			Lifetime:        10 * time.Minute,
		},
		Time: TimeDefaults{
			NTPServers:    []string{"0.pool.ntp.org", "1.pool.ntp.org", "2.pool.ntp.org"},
			NTPDisabled:   true,
			QueryInterval: 11 * time.Minute,
		},
	}
}

// Validate checks if the provided configuration values are reasonable.
// Returns an error describing the first invalid value found.
func Validate(cfg ConfigDefaults) error {
	log.WithFields(logger.Fields{
		"at":     "config.Validate",
		"reason": "verification_requested",
	}).Debug("validating_configuration")
	validators := []func() error{
		func() error { return validateI2CP(cfg.I2CP) },
		func() error { return validateNetDB(cfg.NetDB) },
		func() error { return validateTunnel(cfg.Tunnel) },
		func() error { return validateTime(cfg.Time) },
	}
	for _, validator := range validators {
		if err := validator(); err != nil {
			log.WithError(err).Error("configuration_validation_failed")
			return err
		}
	}
	return nil
}

// validateI2CP validates I2CP server configuration settings.
func validateI2CP(i2cp I2CPDefaults) error {
	switch {
	case i2cp.Network != "tcp" && i2cp.Network != "unix":
		return newValidationError("i2cp.network must be tcp or unix")
	case i2cp.Address == "":
		return newValidationError("i2cp.address must not be empty")
	case i2cp.MaxSessions < 1:
		return newValidationError("i2cp.max_sessions must be at least 1")
	case i2cp.MaxSessions > 0xFFFE:
		return newValidationError("i2cp.max_sessions cannot exceed 65534")
	case i2cp.BufferSize < 1024:
		return newValidationError("i2cp.buffer_size must be at least 1024")
	case i2cp.MessageQueueSize < 1:
		return newValidationError("i2cp.message_queue_size must be at least 1")
	case i2cp.ReadTimeout < 0:
		return newValidationError("i2cp.read_timeout cannot be negative")
	case i2cp.MessagesPerSecond < 0:
		return newValidationError("i2cp.messages_per_second cannot be negative")
	case i2cp.MessagesPerSecond > 0 && i2cp.MessageBurst < 1:
		return newValidationError("i2cp.message_burst must be at least 1 when rate limiting")
	}
	log.WithFields(logger.Fields{
		"at":          "config.validateI2CP",
		"maxSessions": i2cp.MaxSessions,
		"bufferSize":  i2cp.BufferSize,
	}).Debug("i2cp_configuration_validated")
	return nil
}

func validateNetDB(netdb NetDBDefaults) error {
	if netdb.LeaseSetCacheSize < 1 {
		return newValidationError("netdb.leaseset_cache_size must be at least 1")
	}
	return nil
}

func validateTunnel(tunnel TunnelDefaults) error {
	if tunnel.InboundQuantity < 1 || tunnel.InboundQuantity > 16 {
		return newValidationError("tunnel.inbound_quantity must be between 1 and 16")
	}
	if tunnel.Lifetime < time.Minute {
		return newValidationError("tunnel.lifetime must be at least 1m")
	}
	return nil
}

func validateTime(t TimeDefaults) error {
	if !t.NTPDisabled && len(t.NTPServers) == 0 {
		return newValidationError("time.ntp_servers must list a server when NTP is enabled")
	}
	if t.QueryInterval < 0 {
		return newValidationError("time.query_interval cannot be negative")
	}
	return nil
}

type validationError struct {
	message string
}

func newValidationError(message string) error {
	return &validationError{message: message}
}

func (e *validationError) Error() string {
	return "configuration validation failed: " + e.message
}
