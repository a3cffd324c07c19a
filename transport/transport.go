// Package transport implements the SSH-2 transport layer: version
// exchange, binary packet protocol, key exchange and message dispatch.
package transport

import (
	"bufio"
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/postalsys/sshmux/identity"
	"github.com/postalsys/sshmux/internal/logging"
	"github.com/postalsys/sshmux/wire"
)

// seqRekeyThreshold triggers a rekey before the 32-bit packet sequence
// space is exhausted.
const seqRekeyThreshold = uint64(1)<<32 - 1<<16

// Transport is one end of an SSH-2 transport. All methods are safe for
// concurrent use; reading is restricted to one goroutine at a time (the
// upper layer's dispatch loop).
type Transport struct {
	cfg    *Config
	sock   Socket
	role   Role
	logger *slog.Logger

	// Client-only: host verification inputs.
	host     string
	port     uint16
	verifier HostVerifier

	// Server-only: host key for signing the exchange hash.
	hostKey *identity.Ed25519Keypair

	ctx context.Context

	r *bufio.Reader
	w *bufio.Writer

	// mu guards the write path (w, wcipher, wseq), the kex state and
	// the session ID.
	mu         sync.Mutex
	wcipher    packetCipher
	wseq       uint64
	kex        *kexState
	kexBytes   uint64
	pendingOut [][]byte
	sessionID  []byte

	// Read state, touched only by the reading goroutine (kex handlers
	// run on it too).
	rcipher       packetCipher
	rseq          uint64
	skipNextKexPkt bool

	clientIdent string
	serverIdent string

	lastRead  atomic.Int64 // unix nanos
	lastProbe atomic.Int64
	lastKex   time.Time

	closed    chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// Connect performs the client side of the SSH handshake on sock:
// identification exchange, initial key exchange and host verification
// against verifier for (host, port).
func Connect(ctx context.Context, sock Socket, host string, port uint16, verifier HostVerifier, cfg *Config) (*Transport, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	t := newTransport(ctx, sock, RoleClient, cfg)
	t.host = host
	t.port = port
	t.verifier = verifier
	if err := t.handshake(); err != nil {
		t.closeWithError(err)
		return nil, err
	}
	go t.keepaliveLoop()
	return t, nil
}

// Accept performs the server side of the SSH handshake on sock, signing
// the exchange with hostKey.
func Accept(ctx context.Context, sock Socket, hostKey *identity.Ed25519Keypair, cfg *Config) (*Transport, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	t := newTransport(ctx, sock, RoleServer, cfg)
	t.hostKey = hostKey
	if err := t.handshake(); err != nil {
		t.closeWithError(err)
		return nil, err
	}
	go t.keepaliveLoop()
	return t, nil
}

func newTransport(ctx context.Context, sock Socket, role Role, cfg *Config) *Transport {
	if ctx == nil {
		ctx = context.Background()
	}
	t := &Transport{
		cfg:     cfg,
		sock:    sock,
		role:    role,
		logger:  logging.ForRole(cfg.logger(), role.String()),
		ctx:     ctx,
		r:       bufio.NewReader(sock),
		w:       bufio.NewWriter(sock),
		wcipher: &plainCipher{rand: rand.Reader},
		rcipher: &plainCipher{rand: rand.Reader},
		closed:  make(chan struct{}),
		lastKex: time.Now(),
	}
	t.lastRead.Store(time.Now().UnixNano())
	return t
}

// handshake exchanges identification lines and runs the initial key
// exchange to completion.
func (t *Transport) handshake() error {
	local := identLine(t.cfg.Identification)
	if err := writeIdentification(t.w, t.cfg.Identification); err != nil {
		return err
	}
	peer, err := readIdentification(t.r)
	if err != nil {
		return err
	}
	if t.role == RoleClient {
		t.clientIdent, t.serverIdent = local, peer
	} else {
		t.clientIdent, t.serverIdent = peer, local
	}

	t.mu.Lock()
	err = t.startKexLocked()
	t.mu.Unlock()
	if err != nil {
		return err
	}
	for t.kexActive() {
		payload, err := t.readAndDispatch()
		if err != nil {
			return err
		}
		if payload != nil {
			return fmt.Errorf("%w: %s during handshake", ErrInvalidMessageKexCritical, wire.MessageName(payload[0]))
		}
	}
	return nil
}

func (t *Transport) kexActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.kex != nil
}

// SessionID returns the exchange hash of the first key exchange. It is
// constant for the lifetime of the transport.
func (t *Transport) SessionID() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// Role returns which end of the transport this is.
func (t *Transport) Role() Role {
	return t.role
}

// Done is closed when the transport has terminated.
func (t *Transport) Done() <-chan struct{} {
	return t.closed
}

// Err returns the terminal error, or nil while the transport is alive.
func (t *Transport) Err() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

// WriteMessage marshals and sends a message.
func (t *Transport) WriteMessage(m wire.Message) error {
	payload, err := wire.Marshal(m)
	if err != nil {
		return err
	}
	return t.WritePayload(payload)
}

// WritePayload sends one payload as a packet. Connection-layer payloads
// (message number above 49) are queued while a key exchange is in
// flight and flushed, in order, once the critical window closes. The
// reading goroutine must never block here or the exchange could not
// make progress.
func (t *Transport) WritePayload(payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidPacket)
	}
	if err := t.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	if t.kex != nil && payload[0] > 49 {
		t.pendingOut = append(t.pendingOut, append([]byte(nil), payload...))
		t.mu.Unlock()
		return nil
	}
	err := t.writePayload(payload)
	t.mu.Unlock()
	if err != nil {
		t.closeWithError(err)
		return err
	}
	return nil
}

// writePayload encrypts and sends one packet. The caller holds t.mu.
func (t *Transport) writePayload(payload []byte) error {
	if err := t.wcipher.writePacket(t.wseq, t.w, payload); err != nil {
		return err
	}
	if err := t.w.Flush(); err != nil {
		return err
	}
	t.wseq++
	t.kexBytes += uint64(len(payload))
	t.cfg.Metrics.ObservePacketSent(wire.MessageName(payload[0]), len(payload))
	if t.kex == nil && (t.kexBytes > t.cfg.KexIntervalBytes || t.wseq > seqRekeyThreshold) {
		return t.startKexLocked()
	}
	return nil
}

// ReadMessage returns the next payload addressed to the layers above
// the transport (message number 50 and up). Transport messages are
// handled internally; a terminal condition surfaces as an error.
func (t *Transport) ReadMessage() ([]byte, error) {
	return t.readMessage(false)
}

func (t *Transport) readMessage(acceptService bool) ([]byte, error) {
	for {
		if err := t.Err(); err != nil {
			return nil, err
		}
		payload, err := t.readAndDispatch()
		if err != nil {
			t.closeWithError(err)
			return nil, err
		}
		if payload == nil {
			continue
		}
		n := payload[0]
		if n == wire.NumServiceRequest || n == wire.NumServiceAccept {
			if acceptService {
				return payload, nil
			}
			return nil, t.fatal(fmt.Errorf("%w: unexpected %s", ErrInvalidServiceRequest, wire.MessageName(n)))
		}
		return payload, nil
	}
}

// readAndDispatch reads one packet and handles it if it belongs to the
// transport layer. It returns a non-nil payload for anything the caller
// has to process.
func (t *Transport) readAndDispatch() ([]byte, error) {
	payload, err := t.rcipher.readPacket(t.rseq, t.r)
	if err != nil {
		return nil, err
	}
	seq := t.rseq
	t.rseq++
	t.lastRead.Store(time.Now().UnixNano())
	t.cfg.Metrics.ObservePacketReceived(wire.MessageName(safeNumber(payload)), len(payload))

	t.mu.Lock()
	t.kexBytes += uint64(len(payload))
	needKex := t.kex == nil && (t.kexBytes > t.cfg.KexIntervalBytes || t.rseq > seqRekeyThreshold)
	if needKex {
		if err := t.startKexLocked(); err != nil {
			t.mu.Unlock()
			return nil, err
		}
	}
	t.mu.Unlock()

	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidPacket)
	}
	n := payload[0]

	if t.skipNextKexPkt && n >= 30 && n <= 49 {
		t.skipNextKexPkt = false
		return nil, nil
	}

	switch n {
	case wire.NumDisconnect:
		msg := &wire.Disconnect{}
		if err := wire.Unmarshal(payload, msg); err != nil {
			return nil, fmt.Errorf("%w: disconnect", ErrInvalidEncoding)
		}
		t.logger.Info("disconnect by peer",
			logging.KeyReason, wire.DisconnectReasonName(msg.Reason),
			logging.KeyMessage, msg.Description)
		t.cfg.Metrics.ObserveDisconnect("peer")
		return nil, &DisconnectError{Reason: msg.Reason, ByPeer: true}
	case wire.NumIgnore:
		return nil, nil
	case wire.NumDebug:
		msg := &wire.Debug{}
		if err := wire.Unmarshal(payload, msg); err != nil {
			return nil, fmt.Errorf("%w: debug", ErrInvalidEncoding)
		}
		t.logger.Debug("debug message from peer", logging.KeyMessage, msg.Message)
		return nil, nil
	case wire.NumUnimplemented:
		msg := &wire.Unimplemented{}
		if err := wire.Unmarshal(payload, msg); err != nil {
			return nil, fmt.Errorf("%w: unimplemented", ErrInvalidEncoding)
		}
		t.logger.Debug("peer rejected packet", "sequence", msg.Sequence)
		return nil, nil
	case wire.NumKexInit:
		return nil, t.handleKexInit(payload)
	case wire.NumKexEcdhInit:
		return nil, t.handleKexEcdhInit(payload)
	case wire.NumKexEcdhReply:
		return nil, t.handleKexEcdhReply(payload)
	case wire.NumNewKeys:
		return nil, t.handleNewKeys(payload)
	}

	if n > 49 && t.recvCritical() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMessageKexCritical, wire.MessageName(n))
	}
	if n <= 49 && n != wire.NumServiceRequest && n != wire.NumServiceAccept {
		// Unknown transport-level message: answer UNIMPLEMENTED.
		t.logger.Debug("unimplemented message", logging.KeyMessage, wire.MessageName(n))
		reply, err := wire.Marshal(&wire.Unimplemented{Sequence: uint32(seq)})
		if err != nil {
			return nil, err
		}
		t.mu.Lock()
		err = t.writePayload(reply)
		t.mu.Unlock()
		return nil, err
	}
	return payload, nil
}

// recvCritical reports whether the inbound critical window is open: the
// peer has committed to a key exchange and has not yet sent NEWKEYS.
func (t *Transport) recvCritical() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.kex != nil && t.kex.peerInit != nil && !t.kex.recvNewKeys
}

// RequestService performs the requester side of the service handshake.
func (t *Transport) RequestService(service string) error {
	if service != ServiceUserAuth && service != ServiceConnection {
		return fmt.Errorf("%w: %q", ErrInvalidServiceRequest, service)
	}
	if err := t.WriteMessage(&wire.ServiceRequest{Service: service}); err != nil {
		return err
	}
	payload, err := t.readMessage(true)
	if err != nil {
		return err
	}
	accept := &wire.ServiceAccept{}
	if err := wire.Unmarshal(payload, accept); err != nil {
		return t.fatal(fmt.Errorf("%w: expected SERVICE_ACCEPT", ErrInvalidServiceRequest))
	}
	if accept.Service != service {
		return t.fatal(fmt.Errorf("%w: accepted %q, requested %q", ErrInvalidServiceRequest, accept.Service, service))
	}
	t.logger.Debug("service accepted", logging.KeyService, service)
	return nil
}

// AcceptService performs the receiver side of the service handshake,
// accepting only the named service.
func (t *Transport) AcceptService(service string) error {
	payload, err := t.readMessage(true)
	if err != nil {
		return err
	}
	req := &wire.ServiceRequest{}
	if err := wire.Unmarshal(payload, req); err != nil {
		return t.fatal(fmt.Errorf("%w: expected SERVICE_REQUEST", ErrInvalidServiceRequest))
	}
	if req.Service != service {
		t.Disconnect(wire.DisconnectServiceNotAvailable, "service not available")
		return fmt.Errorf("%w: %q", ErrInvalidServiceRequest, req.Service)
	}
	if err := t.WriteMessage(&wire.ServiceAccept{Service: service}); err != nil {
		return err
	}
	t.logger.Debug("service accepted", logging.KeyService, service)
	return nil
}

// Disconnect sends SSH_MSG_DISCONNECT and terminates the transport.
// The local terminal error is a DisconnectError with ByPeer false.
func (t *Transport) Disconnect(reason uint32, description string) error {
	msg := &wire.Disconnect{Reason: reason, Description: description}
	if payload, err := wire.Marshal(msg); err == nil {
		t.mu.Lock()
		t.writePayload(payload)
		t.mu.Unlock()
	}
	t.cfg.Metrics.ObserveDisconnect("local")
	err := &DisconnectError{Reason: reason}
	t.closeWithError(err)
	return nil
}

// Close terminates the transport as an application-initiated
// disconnect.
func (t *Transport) Close() error {
	return t.Disconnect(wire.DisconnectByApplication, "")
}

// fatal records err as the terminal error and returns it.
func (t *Transport) fatal(err error) error {
	t.closeWithError(err)
	return err
}

func (t *Transport) closeWithError(err error) {
	t.closeOnce.Do(func() {
		t.errMu.Lock()
		t.err = err
		t.errMu.Unlock()
		close(t.closed)
		t.sock.Close()
		if _, ok := err.(*DisconnectError); !ok {
			t.logger.Warn("transport closed", logging.KeyError, err)
		}
	})
}

// keepaliveLoop sends MSG_IGNORE probes when the link is idle and
// enforces the inactivity timeout and the time-based rekey interval.
func (t *Transport) keepaliveLoop() {
	interval := t.cfg.AliveInterval / 2
	if interval <= 0 || interval > 15*time.Second {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.closed:
			return
		case <-ticker.C:
		}
		now := time.Now()
		idle := now.Sub(time.Unix(0, t.lastRead.Load()))

		if t.cfg.InactivityTimeout > 0 && idle >= t.cfg.InactivityTimeout {
			t.logger.Warn("inactivity timeout", "idle", idle)
			t.Disconnect(wire.DisconnectConnectionLost, "inactivity timeout")
			return
		}
		if t.cfg.AliveInterval > 0 && idle >= t.cfg.AliveInterval {
			sinceProbe := now.Sub(time.Unix(0, t.lastProbe.Load()))
			if sinceProbe >= t.cfg.AliveInterval {
				t.lastProbe.Store(now.UnixNano())
				t.cfg.Metrics.ObserveKeepalive()
				if err := t.WriteMessage(&wire.Ignore{}); err != nil {
					return
				}
			}
		}
		t.mu.Lock()
		if t.cfg.KexIntervalDuration > 0 && t.kex == nil && now.Sub(t.lastKex) >= t.cfg.KexIntervalDuration {
			if err := t.startKexLocked(); err != nil {
				t.mu.Unlock()
				t.closeWithError(err)
				return
			}
		}
		t.mu.Unlock()
	}
}

func safeNumber(payload []byte) uint8 {
	if len(payload) == 0 {
		return 0
	}
	return payload[0]
}
