package userauth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/postalsys/sshmux/internal/logging"
	"github.com/postalsys/sshmux/transport"
	"github.com/postalsys/sshmux/wire"
)

// ClientConfig controls the client-side method loop.
type ClientConfig struct {
	// Agent supplies publickey identities. Nil disables the publickey
	// method.
	Agent AuthAgent

	// Password, when non-empty, is tried after every agent identity
	// has been exhausted.
	Password string

	// OnBanner, when set, receives USERAUTH_BANNER messages.
	OnBanner func(message string)

	// Logger receives auth progress events. Defaults to a no-op
	// logger.
	Logger *slog.Logger
}

func (c *ClientConfig) logger() *slog.Logger {
	if c == nil || c.Logger == nil {
		return logging.Nop()
	}
	return c.Logger
}

// Authenticate requests the ssh-userauth service and runs the method
// loop for user until the transport is authenticated for the
// ssh-connection service. It returns ErrNoMoreAuthMethods when every
// identity and method has been rejected; the transport stays usable.
func Authenticate(ctx context.Context, t *transport.Transport, user string, cfg *ClientConfig) error {
	if cfg == nil {
		cfg = &ClientConfig{}
	}
	logger := cfg.logger().With(logging.KeyUser, user)

	if err := t.RequestService(transport.ServiceUserAuth); err != nil {
		return err
	}

	if cfg.Agent != nil {
		ids, err := cfg.Agent.Identities(ctx)
		if err != nil {
			return fmt.Errorf("userauth: agent: %w", err)
		}
		for _, id := range ids {
			data, err := marshalSignatureData(t.SessionID(), user, transport.ServiceConnection, id.Identity)
			if err != nil {
				return err
			}
			sig, err := cfg.Agent.Signature(ctx, id.Identity, data, 0)
			if err != nil {
				return fmt.Errorf("userauth: agent: %w", err)
			}
			if sig == nil {
				logger.Debug("agent declined identity", "comment", id.Comment)
				continue
			}
			req := &wire.UserauthRequest{
				User:         user,
				Service:      transport.ServiceConnection,
				Method:       wire.MethodPublicKey,
				HasSignature: true,
				Algorithm:    id.Identity.Algorithm(),
				Identity:     id.Identity,
				Signature:    sig.MarshalBlob(),
			}
			ok, err := exchange(t, req, cfg, logger)
			if err != nil {
				return err
			}
			if ok {
				logger.Debug("publickey accepted", "comment", id.Comment)
				return nil
			}
		}
	}

	if cfg.Password != "" {
		req := &wire.UserauthRequest{
			User:     user,
			Service:  transport.ServiceConnection,
			Method:   wire.MethodPassword,
			Password: cfg.Password,
		}
		ok, err := exchange(t, req, cfg, logger)
		if err != nil {
			return err
		}
		if ok {
			logger.Debug("password accepted")
			return nil
		}
	}

	return ErrNoMoreAuthMethods
}

// exchange sends one USERAUTH_REQUEST and reads until SUCCESS or
// FAILURE, surfacing banners along the way.
func exchange(t *transport.Transport, req *wire.UserauthRequest, cfg *ClientConfig, logger *slog.Logger) (bool, error) {
	if err := t.WriteMessage(req); err != nil {
		return false, err
	}
	for {
		payload, err := t.ReadMessage()
		if err != nil {
			return false, err
		}
		switch payload[0] {
		case wire.NumUserauthSuccess:
			if err := wire.Unmarshal(payload, &wire.UserauthSuccess{}); err != nil {
				return false, err
			}
			return true, nil
		case wire.NumUserauthFailure:
			failure := &wire.UserauthFailure{}
			if err := wire.Unmarshal(payload, failure); err != nil {
				return false, err
			}
			logger.Debug("method rejected",
				logging.KeyMethod, req.Method,
				"continue_with", failure.Methods)
			return false, nil
		case wire.NumUserauthBanner:
			banner := &wire.UserauthBanner{}
			if err := wire.Unmarshal(payload, banner); err != nil {
				return false, err
			}
			if cfg.OnBanner != nil {
				cfg.OnBanner(banner.Message)
			}
		default:
			return false, fmt.Errorf("userauth: unexpected %s", wire.MessageName(payload[0]))
		}
	}
}
