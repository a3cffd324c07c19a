package connection

import (
	"log/slog"

	"github.com/postalsys/sshmux/internal/logging"
	"github.com/postalsys/sshmux/internal/metrics"
)

// Config carries the connection-layer limits.
type Config struct {
	// MaxChannels bounds the number of local channels. Defaults to 256.
	MaxChannels int

	// MaxQueuedRequests bounds each reply queue: the global request
	// queue and the request queue of every channel, each on its own. A
	// want-reply request beyond the bound fails with
	// ErrResourceExhaustion; the connection stays up. Defaults to 256.
	MaxQueuedRequests int

	// ChannelMaxBufferSize is the per-channel inbound buffer limit and
	// the window advertised to the peer. Defaults to 1 MiB.
	ChannelMaxBufferSize uint32

	// ChannelMaxPacketSize is the largest data packet announced to the
	// peer. Defaults to 32 KiB.
	ChannelMaxPacketSize uint32

	// Logger receives connection lifecycle events. Defaults to a no-op
	// logger.
	Logger *slog.Logger

	// Metrics receives channel instrumentation. Nil disables it.
	Metrics *metrics.Metrics
}

// DefaultConfig returns the defaults described above.
func DefaultConfig() *Config {
	return &Config{
		MaxChannels:          256,
		MaxQueuedRequests:    256,
		ChannelMaxBufferSize: 1024 * 1024,
		ChannelMaxPacketSize: 32768,
		Logger:               logging.Nop(),
	}
}

func (c *Config) logger() *slog.Logger {
	if c.Logger == nil {
		return logging.Nop()
	}
	return c.Logger
}
