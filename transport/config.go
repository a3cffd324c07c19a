package transport

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/postalsys/sshmux/identity"
	"github.com/postalsys/sshmux/internal/logging"
	"github.com/postalsys/sshmux/internal/metrics"
)

// Service names recognized by the service handshake.
const (
	ServiceUserAuth   = "ssh-userauth"
	ServiceConnection = "ssh-connection"
)

// Socket is the byte stream the transport runs on. net.Conn and
// net.Pipe ends satisfy it; the core never dials or listens itself.
type Socket interface {
	io.Reader
	io.Writer
	Close() error
}

// HostVerifier decides whether a host identity is acceptable for a
// given endpoint. Implementations typically consult a known_hosts
// database; that parsing lives outside the core.
type HostVerifier interface {
	Verify(ctx context.Context, host string, port uint16, id identity.Identity) error
}

// Role distinguishes the two ends of a transport.
type Role int

const (
	// RoleClient initiates the connection and the ECDH exchange.
	RoleClient Role = iota
	// RoleServer holds the host key and signs the exchange hash.
	RoleServer
)

// String returns the role name.
func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// Config carries the transport parameters. The zero value is not
// usable; start from DefaultConfig.
type Config struct {
	// Identification is the software identifier placed after "SSH-2.0-"
	// in the identification line.
	Identification string

	// KexIntervalBytes is the traffic volume in either direction after
	// which a rekey is initiated. Defaults to 1 GiB.
	KexIntervalBytes uint64

	// KexIntervalDuration is the timespan after which a rekey is
	// initiated. Defaults to 1h.
	KexIntervalDuration time.Duration

	// AliveInterval is the idle time after which an MSG_IGNORE probe is
	// sent. Defaults to 5m.
	AliveInterval time.Duration

	// InactivityTimeout is the idle time after which the connection is
	// considered lost. Defaults to 1h.
	InactivityTimeout time.Duration

	// Algorithm preference lists, most preferred first.
	KexAlgorithms         []string
	HostKeyAlgorithms     []string
	EncryptionAlgorithms  []string
	CompressionAlgorithms []string
	MacAlgorithms         []string

	// Logger receives transport lifecycle events. Defaults to a
	// no-op logger.
	Logger *slog.Logger

	// Metrics receives transport instrumentation. Nil disables it.
	Metrics *metrics.Metrics
}

// DefaultConfig returns the defaults described above.
func DefaultConfig() *Config {
	return &Config{
		Identification:        "sshmux_0.1.0",
		KexIntervalBytes:      1024 * 1024 * 1024,
		KexIntervalDuration:   time.Hour,
		AliveInterval:         5 * time.Minute,
		InactivityTimeout:     time.Hour,
		KexAlgorithms:         append([]string(nil), supportedKexAlgorithms...),
		HostKeyAlgorithms:     append([]string(nil), supportedHostKeyAlgorithms...),
		EncryptionAlgorithms:  append([]string(nil), supportedEncryptionAlgorithms...),
		CompressionAlgorithms: append([]string(nil), supportedCompressionAlgorithms...),
		MacAlgorithms:         append([]string(nil), supportedMacAlgorithms...),
		Logger:                logging.Nop(),
	}
}

// logger returns the configured logger or a no-op one.
func (c *Config) logger() *slog.Logger {
	if c.Logger == nil {
		return logging.Nop()
	}
	return c.Logger
}
