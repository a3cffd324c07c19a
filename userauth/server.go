package userauth

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/postalsys/sshmux/identity"
	"github.com/postalsys/sshmux/internal/logging"
	"github.com/postalsys/sshmux/internal/metrics"
	"github.com/postalsys/sshmux/transport"
	"github.com/postalsys/sshmux/wire"
)

// ServerConfig controls the server-side authentication session.
type ServerConfig struct {
	// Banner, when non-empty, is sent once before the method loop.
	Banner string

	// CheckPublicKey decides whether an identity may authenticate the
	// user. It is consulted both for signatureless probes (answered
	// with USERAUTH_PK_OK) and before accepting a signed request.
	CheckPublicKey func(user string, id identity.Identity) bool

	// CheckPassword decides whether a password authenticates the user.
	// Nil disables the password method.
	CheckPassword func(user, password string) bool

	// MaxAttempts bounds the number of failed requests before the
	// transport is disconnected. Defaults to 16.
	MaxAttempts int

	// AttemptsPerSecond throttles authentication attempts. Defaults
	// to 4/s with a burst of 8.
	AttemptsPerSecond float64

	// Logger receives auth events. Defaults to a no-op logger.
	Logger *slog.Logger

	// Metrics receives auth instrumentation. Nil disables it.
	Metrics *metrics.Metrics
}

func (c *ServerConfig) logger() *slog.Logger {
	if c == nil || c.Logger == nil {
		return logging.Nop()
	}
	return c.Logger
}

func (c *ServerConfig) methods() []string {
	methods := []string{}
	if c.CheckPublicKey != nil {
		methods = append(methods, wire.MethodPublicKey)
	}
	if c.CheckPassword != nil {
		methods = append(methods, wire.MethodPassword)
	}
	return methods
}

// Serve accepts the ssh-userauth service and runs the method loop until
// a request authenticates. It returns the authenticated user name.
// Authentication failures are answered on the wire and counted; the
// transport is torn down after MaxAttempts.
func Serve(ctx context.Context, t *transport.Transport, cfg *ServerConfig) (string, error) {
	if cfg == nil {
		cfg = &ServerConfig{}
	}
	logger := cfg.logger()

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 16
	}
	perSecond := cfg.AttemptsPerSecond
	if perSecond <= 0 {
		perSecond = 4
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), 8)

	if err := t.AcceptService(transport.ServiceUserAuth); err != nil {
		return "", err
	}
	if cfg.Banner != "" {
		if err := t.WriteMessage(&wire.UserauthBanner{Message: cfg.Banner}); err != nil {
			return "", err
		}
	}

	attempts := 0
	for {
		payload, err := t.ReadMessage()
		if err != nil {
			return "", err
		}
		req := &wire.UserauthRequest{}
		if err := wire.Unmarshal(payload, req); err != nil {
			return "", fmt.Errorf("userauth: %s: %w", wire.MessageName(payload[0]), err)
		}
		if req.Service != transport.ServiceConnection {
			t.Disconnect(wire.DisconnectServiceNotAvailable, "unknown service")
			return "", fmt.Errorf("%w: %q", ErrServiceNotAvailable, req.Service)
		}
		if err := limiter.Wait(ctx); err != nil {
			return "", err
		}
		cfg.recordAttempt(req.Method)

		ok, respond := false, true
		switch req.Method {
		case wire.MethodPublicKey:
			if req.HasSignature {
				ok = cfg.verifyPublicKey(t, req, logger)
			} else if cfg.CheckPublicKey != nil && !identity.Identity(req.Identity).IsCertificate() &&
				cfg.CheckPublicKey(req.User, identity.Identity(req.Identity)) {
				// Probe: confirm the key would be acceptable.
				if err := t.WriteMessage(&wire.UserauthPkOk{Algorithm: req.Algorithm, Identity: req.Identity}); err != nil {
					return "", err
				}
				respond = false
			}
		case wire.MethodPassword:
			ok = cfg.CheckPassword != nil && cfg.CheckPassword(req.User, req.Password)
		case wire.MethodNone:
			// Advertise the available methods via the failure reply.
		}

		if ok {
			if err := t.WriteMessage(&wire.UserauthSuccess{}); err != nil {
				return "", err
			}
			if cfg.Metrics != nil {
				cfg.Metrics.AuthSuccesses.Inc()
			}
			logger.Info("authenticated",
				logging.KeyUser, req.User,
				logging.KeyMethod, req.Method)
			return req.User, nil
		}
		if !respond {
			continue
		}
		if cfg.Metrics != nil && req.Method != wire.MethodNone {
			cfg.Metrics.AuthFailures.Inc()
		}
		attempts++
		if attempts >= maxAttempts {
			t.Disconnect(wire.DisconnectNoMoreAuthMethodsAvailable, "too many attempts")
			return "", ErrNoMoreAuthMethods
		}
		if err := t.WriteMessage(&wire.UserauthFailure{Methods: cfg.methods()}); err != nil {
			return "", err
		}
	}
}

// verifyPublicKey checks a signed publickey request: the identity must
// be a plain key acceptable for the user and the signature must verify
// over the session-bound pre-image.
func (c *ServerConfig) verifyPublicKey(t *transport.Transport, req *wire.UserauthRequest, logger *slog.Logger) bool {
	id := identity.Identity(req.Identity)
	if c.CheckPublicKey == nil || id.IsCertificate() || !c.CheckPublicKey(req.User, id) {
		return false
	}
	if req.Algorithm != id.Algorithm() {
		return false
	}
	data, err := marshalSignatureData(t.SessionID(), req.User, req.Service, id)
	if err != nil {
		return false
	}
	sig, err := identity.DecodeSignatureBlob(req.Signature)
	if err != nil {
		return false
	}
	if err := sig.Verify(id, data); err != nil {
		logger.Warn("publickey signature rejected",
			logging.KeyUser, req.User,
			logging.KeyError, err)
		return false
	}
	return true
}

func (c *ServerConfig) recordAttempt(method string) {
	if c.Metrics != nil {
		c.Metrics.AuthAttempts.WithLabelValues(method).Inc()
	}
}
