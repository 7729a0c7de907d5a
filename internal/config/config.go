// ABOUTME: Optional yaml configuration file
// ABOUTME: Defaults overlaid by the user's config, shared by sender and receiver
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file-backed configuration. Every field has a working
// default; the file only needs the values the user wants to change.
type Config struct {
	Audio     AudioConfig     `yaml:"audio"`
	Network   NetworkConfig   `yaml:"network"`
	Negotiate NegotiateConfig `yaml:"negotiate"`
	Meter     MeterConfig     `yaml:"meter"`
}

// AudioConfig selects the capture candidates and block size.
type AudioConfig struct {
	Rates     []int `yaml:"rates"`
	BlockSize int   `yaml:"block_size"`
}

// NetworkConfig holds the transport endpoint defaults.
type NetworkConfig struct {
	Port        int `yaml:"port"`
	MaxDatagram int `yaml:"max_datagram"`
}

// NegotiateConfig bounds the capture retry policy.
type NegotiateConfig struct {
	Retries int           `yaml:"retries"`
	Backoff time.Duration `yaml:"backoff"`
}

// MeterConfig tunes the level meter.
type MeterConfig struct {
	Norm   float64 `yaml:"norm"`
	Stride int     `yaml:"stride"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			Rates:     []int{44100, 22050, 16000, 8000},
			BlockSize: 1024,
		},
		Network: NetworkConfig{
			Port:        50005,
			MaxDatagram: 8192,
		},
		Negotiate: NegotiateConfig{
			Retries: 3,
			Backoff: 2 * time.Second,
		},
		Meter: MeterConfig{
			Norm:   16384,
			Stride: 1,
		},
	}
}

// Load reads the file at path over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}
