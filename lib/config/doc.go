// Package config provides configuration management for the I2CP daemon.
//
// Values come from, in increasing precedence: built-in defaults (Defaults),
// the YAML config file ($HOME/.go-i2cpd/config.yaml unless --config is
// given), and GO_I2CPD_* environment variables where dots in a key become
// underscores (GO_I2CPD_I2CP_ADDRESS overrides i2cp.address).
package config
