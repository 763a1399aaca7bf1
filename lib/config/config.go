package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-i2p/go-i2cpd/lib/util"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"github.com/spf13/viper"
)

var (
	CfgFile string
	log     = logger.GetGoI2PLogger()
)

const (
	GOI2CPD_BASE_DIR = ".go-i2cpd"
	envPrefix        = "GO_I2CPD"
)

// InitConfig loads defaults, the config file and the environment into the
// global viper instance. Without --config a default file is created on first
// run.
func InitConfig() error {
	v := viper.GetViper()
	if CfgFile != "" {
		v.SetConfigFile(CfgFile)
	} else {
		v.AddConfigPath(BuildI2CPDirPath())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	SetDefaults(v)
	BindEnv(v)
	return handleConfigFile(v)
}

// SetDefaults registers every key of Defaults with v.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("i2cp.address", d.I2CP.Address)
	v.SetDefault("i2cp.network", d.I2CP.Network)
	v.SetDefault("i2cp.max_sessions", d.I2CP.MaxSessions)
	v.SetDefault("i2cp.buffer_size", d.I2CP.BufferSize)
	v.SetDefault("i2cp.message_queue_size", d.I2CP.MessageQueueSize)
	v.SetDefault("i2cp.read_timeout", d.I2CP.ReadTimeout)
	v.SetDefault("i2cp.messages_per_second", d.I2CP.MessagesPerSecond)
	v.SetDefault("i2cp.message_burst", d.I2CP.MessageBurst)

	v.SetDefault("netdb.leaseset_cache_size", d.NetDB.LeaseSetCacheSize)
	v.SetDefault("netdb.addressbook_path", d.NetDB.AddressBookPath)

	v.SetDefault("tunnel.inbound_quantity", d.Tunnel.InboundQuantity)
	v.SetDefault("tunnel.lifetime", d.Tunnel.Lifetime)

	v.SetDefault("time.ntp_servers", d.Time.NTPServers)
	v.SetDefault("time.ntp_disabled", d.Time.NTPDisabled)
	v.SetDefault("time.query_interval", d.Time.QueryInterval)

	v.SetDefault("metrics.address", d.Metrics.Address)
}

// BindEnv lets GO_I2CPD_* variables override config keys.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// FromViper reads the effective configuration out of v.
func FromViper(v *viper.Viper) ConfigDefaults {
	return ConfigDefaults{
		I2CP: I2CPDefaults{
			Address:           v.GetString("i2cp.address"),
			Network:           v.GetString("i2cp.network"),
			MaxSessions:       v.GetInt("i2cp.max_sessions"),
			BufferSize:        v.GetInt("i2cp.buffer_size"),
			MessageQueueSize:  v.GetInt("i2cp.message_queue_size"),
			ReadTimeout:       v.GetDuration("i2cp.read_timeout"),
			MessagesPerSecond: v.GetFloat64("i2cp.messages_per_second"),
			MessageBurst:      v.GetInt("i2cp.message_burst"),
		},
		NetDB: NetDBDefaults{
			LeaseSetCacheSize: v.GetInt("netdb.leaseset_cache_size"),
			AddressBookPath:   v.GetString("netdb.addressbook_path"),
		},
		Tunnel: TunnelDefaults{
			InboundQuantity: v.GetInt("tunnel.inbound_quantity"),
			Lifetime:        v.GetDuration("tunnel.lifetime"),
		},
		Time: TimeDefaults{
			NTPServers:    v.GetStringSlice("time.ntp_servers"),
			NTPDisabled:   v.GetBool("time.ntp_disabled"),
			QueryInterval: v.GetDuration("time.query_interval"),
		},
		Metrics: MetricsDefaults{
			Address: v.GetString("metrics.address"),
		},
	}
}

// NewConfigFromViper reads and validates the global configuration.
func NewConfigFromViper() (ConfigDefaults, error) {
	cfg := FromViper(viper.GetViper())
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func createDefaultConfig(v *viper.Viper, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return oops.Wrapf(err, "could not create config directory %s", dir)
	}
	file := filepath.Join(dir, "config.yaml")
	if err := v.SafeWriteConfigAs(file); err != nil {
		return oops.Wrapf(err, "could not write default config file %s", file)
	}
	log.WithField("path", file).Debug("created_default_configuration")
	return nil
}

func handleConfigFile(v *viper.Viper) error {
	err := v.ReadInConfig()
	if err == nil {
		log.WithField("path", v.ConfigFileUsed()).Debug("using_config_file")
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) && CfgFile == "" {
		return createDefaultConfig(v, BuildI2CPDirPath())
	}
	return oops.Wrapf(err, "error reading config file")
}

// BuildI2CPDirPath returns the daemon's state directory.
func BuildI2CPDirPath() string {
	return filepath.Join(util.UserHome(), GOI2CPD_BASE_DIR)
}
