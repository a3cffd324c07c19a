// Package sshmux glues the transport, userauth and connection layers
// into client and server entry points over an abstract byte stream.
//
// The package never dials, listens or executes anything: callers bring
// a connected Socket, a HostVerifier (client) or host key (server) and
// a ConnectionHandler for inbound events.
package sshmux

import (
	"context"
	"errors"
	"fmt"

	"github.com/postalsys/sshmux/connection"
	"github.com/postalsys/sshmux/identity"
	"github.com/postalsys/sshmux/transport"
	"github.com/postalsys/sshmux/userauth"
)

// ClientConfig bundles the client-side configuration.
type ClientConfig struct {
	// User is the name to authenticate as.
	User string

	// HostVerifier decides whether the server's host key is
	// acceptable. Required.
	HostVerifier transport.HostVerifier

	// Auth configures the authentication methods.
	Auth *userauth.ClientConfig

	// Handler receives inbound connection events. Nil rejects
	// everything.
	Handler connection.ConnectionHandler

	// Transport and Connection override the layer defaults.
	Transport  *transport.Config
	Connection *connection.Config
}

// ServerConfig bundles the server-side configuration.
type ServerConfig struct {
	// HostKey signs the key exchange. Required.
	HostKey *identity.Ed25519Keypair

	// Auth configures how users authenticate.
	Auth *userauth.ServerConfig

	// Handler receives inbound connection events for the authenticated
	// connection. Nil rejects everything.
	Handler connection.ConnectionHandler

	// Transport and Connection override the layer defaults.
	Transport  *transport.Config
	Connection *connection.Config
}

// Client establishes an authenticated client connection over sock to
// the endpoint (host, port): handshake, userauth, connection service.
func Client(ctx context.Context, sock transport.Socket, host string, port uint16, cfg *ClientConfig) (*connection.Connection, error) {
	if cfg == nil || cfg.HostVerifier == nil {
		return nil, fmt.Errorf("sshmux: client config needs a host verifier")
	}
	t, err := transport.Connect(ctx, sock, host, port, cfg.HostVerifier, cfg.Transport)
	if err != nil {
		return nil, err
	}
	if err := userauth.Authenticate(ctx, t, cfg.User, cfg.Auth); err != nil {
		if errors.Is(err, userauth.ErrNoMoreAuthMethods) {
			// The transport is left open on auth exhaustion; it is
			// not handed back to the caller.
			return nil, err
		}
		t.Close()
		return nil, err
	}
	return connection.New(t, cfg.Handler, cfg.Connection), nil
}

// Server accepts one authenticated connection over sock and returns the
// authenticated user name alongside the connection.
func Server(ctx context.Context, sock transport.Socket, cfg *ServerConfig) (string, *connection.Connection, error) {
	if cfg == nil || cfg.HostKey == nil {
		return "", nil, fmt.Errorf("sshmux: server config needs a host key")
	}
	t, err := transport.Accept(ctx, sock, cfg.HostKey, cfg.Transport)
	if err != nil {
		return "", nil, err
	}
	user, err := userauth.Serve(ctx, t, cfg.Auth)
	if err != nil {
		t.Close()
		return "", nil, err
	}
	return user, connection.New(t, cfg.Handler, cfg.Connection), nil
}
