package paywall

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type (
	// LockConfig is the per-lock part of the paywall configuration. A
	// non-empty Name overrides the on-chain lock name on every lock update.
	LockConfig struct {
		Name string `mapstructure:"name" yaml:"name"`
	}

	// Config is the session configuration: the fixed set of locks tracked by
	// one synchronizer instance plus reconciliation parameters
	Config struct {
		Locks                 map[string]LockConfig `mapstructure:"locks" yaml:"locks"`
		DefaultNetwork        int                   `mapstructure:"default_network" yaml:"default_network"`
		RequiredConfirmations int                   `mapstructure:"required_confirmations" yaml:"required_confirmations"`
		PollInterval          time.Duration         `mapstructure:"poll_interval" yaml:"poll_interval"`
	}
)

const (
	defaultRequiredConfirmations = 12
	defaultPollInterval          = 5 * time.Second
)

// ConfigFromViper reads the 'paywall' section of the config file
func ConfigFromViper() (*Config, error) {
	ret := &Config{}
	if err := viper.UnmarshalKey("paywall", ret); err != nil {
		return nil, fmt.Errorf("paywall config: %w", err)
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	ret.Normalize()
	return ret, nil
}

func (c *Config) Validate() error {
	if len(c.Locks) == 0 {
		return fmt.Errorf("paywall config: at least one lock must be configured")
	}
	if c.DefaultNetwork == 0 {
		return fmt.Errorf("paywall config: default_network not specified")
	}
	return nil
}

// Normalize lower-cases configured lock addresses and fills in defaults
func (c *Config) Normalize() {
	c.Locks = NormalizeAddressKeys(c.Locks)
	if c.RequiredConfirmations == 0 {
		c.RequiredConfirmations = defaultRequiredConfirmations
	}
	if c.PollInterval == 0 {
		c.PollInterval = defaultPollInterval
	}
}

// LockAddresses returns the configured lock set in normalized form
func (c *Config) LockAddresses() []string {
	ret := make([]string, 0, len(c.Locks))
	for addr := range c.Locks {
		ret = append(ret, addr)
	}
	return ret
}

// NameOverride returns the configured display name for the lock, if any
func (c *Config) NameOverride(lockAddress string) string {
	return c.Locks[NormalizeAddress(lockAddress)].Name
}
