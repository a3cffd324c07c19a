// Package config provides the YAML configuration surface for the SSH
// stack. Byte sizes accept human-readable values ("1 GiB", "32 KB");
// durations use Go syntax ("5m", "1h").
package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/postalsys/sshmux/connection"
	"github.com/postalsys/sshmux/internal/logging"
	"github.com/postalsys/sshmux/transport"
)

// File is the on-disk configuration.
type File struct {
	Identification string          `yaml:"identification"`
	Log            LogConfig       `yaml:"log"`
	Kex            KexConfig       `yaml:"kex"`
	Keepalive      KeepaliveConfig `yaml:"keepalive"`
	Channels       ChannelConfig   `yaml:"channels"`
}

// LogConfig selects the log sink.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// KexConfig tunes the rekey triggers.
type KexConfig struct {
	// IntervalBytes is the rekey volume threshold, e.g. "1 GiB".
	IntervalBytes string `yaml:"interval_bytes"`
	// IntervalDuration is the rekey time threshold, e.g. "1h".
	IntervalDuration string `yaml:"interval_duration"`
}

// KeepaliveConfig tunes the liveness probes.
type KeepaliveConfig struct {
	// AliveInterval is the idle time before an MSG_IGNORE probe.
	AliveInterval string `yaml:"alive_interval"`
	// InactivityTimeout is the idle time before disconnecting.
	InactivityTimeout string `yaml:"inactivity_timeout"`
}

// ChannelConfig tunes the connection-layer limits.
type ChannelConfig struct {
	MaxCount      int    `yaml:"max_count"`
	MaxBufferSize string `yaml:"max_buffer_size"`
	MaxPacketSize string `yaml:"max_packet_size"`
}

// Load reads and parses a configuration file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration bytes.
func Parse(data []byte) (*File, error) {
	f := &File{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return f, nil
}

// TransportConfig builds a transport.Config from the file, starting
// from the defaults.
func (f *File) TransportConfig() (*transport.Config, error) {
	cfg := transport.DefaultConfig()
	if f.Identification != "" {
		cfg.Identification = f.Identification
	}
	cfg.Logger = logging.New(f.Log.Level, f.Log.Format)

	if f.Kex.IntervalBytes != "" {
		n, err := humanize.ParseBytes(f.Kex.IntervalBytes)
		if err != nil {
			return nil, fmt.Errorf("kex.interval_bytes: %w", err)
		}
		cfg.KexIntervalBytes = n
	}
	var err error
	if cfg.KexIntervalDuration, err = parseDuration(f.Kex.IntervalDuration, cfg.KexIntervalDuration); err != nil {
		return nil, fmt.Errorf("kex.interval_duration: %w", err)
	}
	if cfg.AliveInterval, err = parseDuration(f.Keepalive.AliveInterval, cfg.AliveInterval); err != nil {
		return nil, fmt.Errorf("keepalive.alive_interval: %w", err)
	}
	if cfg.InactivityTimeout, err = parseDuration(f.Keepalive.InactivityTimeout, cfg.InactivityTimeout); err != nil {
		return nil, fmt.Errorf("keepalive.inactivity_timeout: %w", err)
	}
	return cfg, nil
}

// ConnectionConfig builds a connection.Config from the file, starting
// from the defaults.
func (f *File) ConnectionConfig() (*connection.Config, error) {
	cfg := connection.DefaultConfig()
	cfg.Logger = logging.New(f.Log.Level, f.Log.Format)

	if f.Channels.MaxCount > 0 {
		cfg.MaxChannels = f.Channels.MaxCount
	}
	if f.Channels.MaxBufferSize != "" {
		n, err := humanize.ParseBytes(f.Channels.MaxBufferSize)
		if err != nil {
			return nil, fmt.Errorf("channels.max_buffer_size: %w", err)
		}
		if n > math.MaxUint32 {
			return nil, fmt.Errorf("channels.max_buffer_size: %d exceeds the window range", n)
		}
		cfg.ChannelMaxBufferSize = uint32(n)
	}
	if f.Channels.MaxPacketSize != "" {
		n, err := humanize.ParseBytes(f.Channels.MaxPacketSize)
		if err != nil {
			return nil, fmt.Errorf("channels.max_packet_size: %w", err)
		}
		if n > math.MaxUint32 {
			return nil, fmt.Errorf("channels.max_packet_size: %d exceeds the window range", n)
		}
		cfg.ChannelMaxPacketSize = uint32(n)
	}
	return cfg, nil
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}
