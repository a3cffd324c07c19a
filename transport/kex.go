package transport

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/curve25519"

	"github.com/postalsys/sshmux/identity"
	"github.com/postalsys/sshmux/internal/logging"
	"github.com/postalsys/sshmux/wire"
)

// Algorithm names.
const (
	AlgoKexCurve25519Sha256       = "curve25519-sha256"
	AlgoKexCurve25519Sha256LibSsh = "curve25519-sha256@libssh.org"
	AlgoEncChacha20Poly1305       = "chacha20-poly1305@openssh.com"
	AlgoCompressionNone           = "none"
)

var (
	supportedKexAlgorithms         = []string{AlgoKexCurve25519Sha256, AlgoKexCurve25519Sha256LibSsh}
	supportedHostKeyAlgorithms     = []string{identity.AlgorithmSshEd25519}
	supportedEncryptionAlgorithms  = []string{AlgoEncChacha20Poly1305}
	supportedCompressionAlgorithms = []string{AlgoCompressionNone}
	supportedMacAlgorithms         = []string{}
)

// findCommon returns the first name in the client's list that also
// appears anywhere in the server's list.
func findCommon(client, server []string) (string, bool) {
	for _, c := range client {
		for _, s := range server {
			if c == s {
				return c, true
			}
		}
	}
	return "", false
}

// guess returns the peer's most preferred entry, the one an eager
// first-kex-packet guess would have used.
func guess(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// negotiated holds the outcome of algorithm negotiation.
type negotiated struct {
	kex            string
	hostKey        string
	encryptionC2S  string
	encryptionS2C  string
	compressionC2S string
	compressionS2C string
}

// negotiate picks one algorithm per category, client preference first.
// MAC lists are intentionally not required to intersect: the only
// supported cipher is an AEAD.
func negotiate(clientInit, serverInit *wire.KexInit) (negotiated, error) {
	var n negotiated
	var ok bool
	if n.kex, ok = findCommon(clientInit.KexAlgorithms, serverInit.KexAlgorithms); !ok {
		return n, ErrNoCommonKexAlgorithm
	}
	if n.hostKey, ok = findCommon(clientInit.ServerHostKeyAlgorithms, serverInit.ServerHostKeyAlgorithms); !ok {
		return n, ErrNoCommonHostKeyAlgorithm
	}
	if n.encryptionC2S, ok = findCommon(clientInit.EncryptionClientToServer, serverInit.EncryptionClientToServer); !ok {
		return n, ErrNoCommonEncryptionAlgorithm
	}
	if n.encryptionS2C, ok = findCommon(clientInit.EncryptionServerToClient, serverInit.EncryptionServerToClient); !ok {
		return n, ErrNoCommonEncryptionAlgorithm
	}
	if n.compressionC2S, ok = findCommon(clientInit.CompressionClientToServer, serverInit.CompressionClientToServer); !ok {
		return n, ErrNoCommonCompressionAlgorithm
	}
	if n.compressionS2C, ok = findCommon(clientInit.CompressionServerToClient, serverInit.CompressionServerToClient); !ok {
		return n, ErrNoCommonCompressionAlgorithm
	}
	return n, nil
}

// newKexInit assembles a KEXINIT from the configured preference lists
// with a fresh cookie.
func newKexInit(cfg *Config) (*wire.KexInit, error) {
	m := &wire.KexInit{
		KexAlgorithms:             cfg.KexAlgorithms,
		ServerHostKeyAlgorithms:   cfg.HostKeyAlgorithms,
		EncryptionClientToServer:  cfg.EncryptionAlgorithms,
		EncryptionServerToClient:  cfg.EncryptionAlgorithms,
		MacClientToServer:         cfg.MacAlgorithms,
		MacServerToClient:         cfg.MacAlgorithms,
		CompressionClientToServer: cfg.CompressionAlgorithms,
		CompressionServerToClient: cfg.CompressionAlgorithms,
	}
	if _, err := io.ReadFull(rand.Reader, m.Cookie[:]); err != nil {
		return nil, fmt.Errorf("draw kex cookie: %w", err)
	}
	return m, nil
}

// generateEphemeral draws a fresh X25519 keypair.
func generateEphemeral() (priv, pub []byte, err error) {
	priv = make([]byte, curve25519.ScalarSize)
	if _, err = io.ReadFull(rand.Reader, priv); err != nil {
		return nil, nil, fmt.Errorf("draw ephemeral secret: %w", err)
	}
	pub, err = curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, nil, fmt.Errorf("derive ephemeral public: %w", err)
	}
	return priv, pub, nil
}

// exchangeHash computes H per RFC 4253 §8: SHA-256 over the framed
// concatenation of both identification lines (without CRLF), both
// KEXINIT payloads, the host key blob, both ephemeral public keys and
// the mpint-encoded shared secret.
type exchangeHash struct {
	clientIdent     string
	serverIdent     string
	clientInit      []byte
	serverInit      []byte
	hostKey         identity.Identity
	clientEphemeral []byte
	serverEphemeral []byte
	sharedSecret    []byte
}

func (h *exchangeHash) digest() []byte {
	d := sha256.New()
	writeFramed := func(p []byte) {
		var l [4]byte
		l[0] = byte(len(p) >> 24)
		l[1] = byte(len(p) >> 16)
		l[2] = byte(len(p) >> 8)
		l[3] = byte(len(p))
		d.Write(l[:])
		d.Write(p)
	}
	writeFramed([]byte(h.clientIdent))
	writeFramed([]byte(h.serverIdent))
	writeFramed(h.clientInit)
	writeFramed(h.serverInit)
	writeFramed(h.hostKey)
	writeFramed(h.clientEphemeral)
	writeFramed(h.serverEphemeral)
	d.Write(encodeMPInt(h.sharedSecret))
	return d.Sum(nil)
}

// kexState tracks one key exchange in flight. Send and receive progress
// are independent: sentNewKeys gates the outbound cipher switch,
// recvNewKeys the inbound one.
type kexState struct {
	ourInit         *wire.KexInit
	ourInitPayload  []byte
	peerInit        *wire.KexInit
	peerInitPayload []byte

	algs negotiated

	ephPriv []byte
	ephPub  []byte

	pendingWrite packetCipher
	pendingRead  packetCipher

	sentEcdhInit bool
	sentNewKeys  bool
	recvNewKeys  bool
}

// startKexLocked sends our KEXINIT and opens the critical window. The
// caller holds t.mu; the write happens through writePayload.
func (t *Transport) startKexLocked() error {
	if t.kex != nil {
		return nil
	}
	init, err := newKexInit(t.cfg)
	if err != nil {
		return err
	}
	payload, err := wire.Marshal(init)
	if err != nil {
		return err
	}
	t.kex = &kexState{
		ourInit:        init,
		ourInitPayload: payload,
	}
	t.logger.Debug("kex started", logging.KeyRole, t.role.String())
	return t.writePayload(payload)
}

// handleKexInit processes the peer's KEXINIT. Called from the read path.
func (t *Transport) handleKexInit(payload []byte) error {
	peerInit := &wire.KexInit{}
	if err := wire.Unmarshal(payload, peerInit); err != nil {
		return fmt.Errorf("%w: kexinit", ErrInvalidEncoding)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.startKexLocked(); err != nil {
		return err
	}
	kex := t.kex
	if kex.peerInit != nil {
		return fmt.Errorf("%w: duplicate kexinit", ErrInvalidPacket)
	}
	kex.peerInit = peerInit
	kex.peerInitPayload = append([]byte(nil), payload...)

	clientInit, serverInit := kex.ourInit, kex.peerInit
	if t.role == RoleServer {
		clientInit, serverInit = kex.peerInit, kex.ourInit
	}
	algs, err := negotiate(clientInit, serverInit)
	if err != nil {
		return err
	}
	kex.algs = algs

	// A wrong guess under first_kex_packet_follows means the peer's
	// eagerly sent kex packet must be dropped.
	if peerInit.FirstKexPacketFollows && (guess(peerInit.KexAlgorithms) != algs.kex ||
		guess(peerInit.ServerHostKeyAlgorithms) != algs.hostKey) {
		t.skipNextKexPkt = true
	}
	t.logger.Debug("kex negotiated",
		logging.KeyAlgorithm, algs.kex,
		"host_key_algorithm", algs.hostKey,
		"encryption", algs.encryptionC2S)

	if t.role == RoleClient {
		kex.ephPriv, kex.ephPub, err = generateEphemeral()
		if err != nil {
			return err
		}
		msg := &wire.KexEcdhInit{ClientPublicKey: kex.ephPub}
		payload, err := wire.Marshal(msg)
		if err != nil {
			return err
		}
		kex.sentEcdhInit = true
		return t.writePayload(payload)
	}
	return nil
}

// handleKexEcdhInit is the server half of the ECDH exchange: compute
// the shared secret, sign H and answer with KEX_ECDH_REPLY followed by
// NEWKEYS.
func (t *Transport) handleKexEcdhInit(payload []byte) error {
	if t.role != RoleServer {
		return fmt.Errorf("%w: ecdh init received by client", ErrInvalidPacket)
	}
	msg := &wire.KexEcdhInit{}
	if err := wire.Unmarshal(payload, msg); err != nil {
		return fmt.Errorf("%w: ecdh init", ErrInvalidEncoding)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	kex := t.kex
	if kex == nil || kex.peerInit == nil {
		return fmt.Errorf("%w: ecdh init outside kex", ErrInvalidPacket)
	}

	ephPriv, ephPub, err := generateEphemeral()
	if err != nil {
		return err
	}
	secret, err := curve25519.X25519(ephPriv, msg.ClientPublicKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPacket, err)
	}

	hostIdentity := t.hostKey.Identity()
	h := exchangeHash{
		clientIdent:     t.clientIdent,
		serverIdent:     t.serverIdent,
		clientInit:      kex.peerInitPayload,
		serverInit:      kex.ourInitPayload,
		hostKey:         hostIdentity,
		clientEphemeral: msg.ClientPublicKey,
		serverEphemeral: ephPub,
		sharedSecret:    secret,
	}
	digest := h.digest()
	sig := t.hostKey.Sign(digest)

	reply := &wire.KexEcdhReply{
		HostKey:         hostIdentity,
		ServerPublicKey: ephPub,
		Signature:       sig.MarshalBlob(),
	}
	replyPayload, err := wire.Marshal(reply)
	if err != nil {
		return err
	}
	if err := t.writePayload(replyPayload); err != nil {
		return err
	}
	return t.finishKexLocked(secret, digest)
}

// handleKexEcdhReply is the client half: verify the host signature,
// consult the host verifier and answer with NEWKEYS.
func (t *Transport) handleKexEcdhReply(payload []byte) error {
	if t.role != RoleClient {
		return fmt.Errorf("%w: ecdh reply received by server", ErrInvalidPacket)
	}
	msg := &wire.KexEcdhReply{}
	if err := wire.Unmarshal(payload, msg); err != nil {
		return fmt.Errorf("%w: ecdh reply", ErrInvalidEncoding)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	kex := t.kex
	if kex == nil || !kex.sentEcdhInit {
		return fmt.Errorf("%w: ecdh reply outside kex", ErrInvalidPacket)
	}

	secret, err := curve25519.X25519(kex.ephPriv, msg.ServerPublicKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPacket, err)
	}

	hostIdentity := identity.Identity(msg.HostKey)
	h := exchangeHash{
		clientIdent:     t.clientIdent,
		serverIdent:     t.serverIdent,
		clientInit:      kex.ourInitPayload,
		serverInit:      kex.peerInitPayload,
		hostKey:         hostIdentity,
		clientEphemeral: kex.ephPub,
		serverEphemeral: msg.ServerPublicKey,
		sharedSecret:    secret,
	}
	digest := h.digest()

	sig, err := identity.DecodeSignatureBlob(msg.Signature)
	if err != nil {
		return fmt.Errorf("%w: host signature", ErrInvalidEncoding)
	}
	if err := sig.Verify(hostIdentity, digest); err != nil {
		return ErrInvalidSignature
	}
	if t.verifier != nil {
		if err := t.verifier.Verify(t.ctx, t.host, t.port, hostIdentity); err != nil {
			t.logger.Warn("host verification failed",
				logging.KeyHost, t.host,
				logging.KeyError, err)
			return err
		}
	}
	return t.finishKexLocked(secret, digest)
}

// finishKexLocked derives the new cipher pair, sends NEWKEYS and
// switches the outbound cipher. The inbound cipher switches when the
// peer's NEWKEYS arrives.
func (t *Transport) finishKexLocked(secret, digest []byte) error {
	kex := t.kex
	sessionID := t.sessionID
	if sessionID == nil {
		sessionID = digest
	}
	stream := &keyStream{k: encodeMPInt(secret), h: digest, sessionID: sessionID}

	c2sKey := stream.derive(keyLetterEncClientToServer, chacha20Poly1305KeySize)
	s2cKey := stream.derive(keyLetterEncServerToClient, chacha20Poly1305KeySize)

	c2s, err := newChacha20Poly1305Cipher(c2sKey, rand.Reader)
	if err != nil {
		return err
	}
	s2c, err := newChacha20Poly1305Cipher(s2cKey, rand.Reader)
	if err != nil {
		return err
	}
	if t.role == RoleClient {
		kex.pendingWrite, kex.pendingRead = c2s, s2c
	} else {
		kex.pendingWrite, kex.pendingRead = s2c, c2s
	}

	newKeys, err := wire.Marshal(&wire.NewKeys{})
	if err != nil {
		return err
	}
	if err := t.writePayload(newKeys); err != nil {
		return err
	}
	t.wcipher = kex.pendingWrite
	kex.sentNewKeys = true
	t.sessionID = sessionID

	if kex.recvNewKeys {
		return t.completeKexLocked()
	}
	return nil
}

// handleNewKeys switches the inbound cipher.
func (t *Transport) handleNewKeys(payload []byte) error {
	if err := wire.Unmarshal(payload, &wire.NewKeys{}); err != nil {
		return fmt.Errorf("%w: newkeys", ErrInvalidEncoding)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	kex := t.kex
	if kex == nil || kex.pendingRead == nil || kex.recvNewKeys {
		return fmt.Errorf("%w: unexpected newkeys", ErrInvalidPacket)
	}
	t.rcipher = kex.pendingRead
	kex.recvNewKeys = true
	if kex.sentNewKeys {
		return t.completeKexLocked()
	}
	return nil
}

// completeKexLocked closes the critical window, resets the rekey
// volume counters and flushes the connection-layer packets queued
// while the exchange was in flight.
func (t *Transport) completeKexLocked() error {
	t.kex = nil
	t.kexBytes = 0
	t.lastKex = time.Now()
	t.cfg.Metrics.ObserveKeyExchange()
	t.logger.Debug("kex complete", logging.KeySessionID, t.sessionID)

	pending := t.pendingOut
	t.pendingOut = nil
	for i, payload := range pending {
		if t.kex != nil {
			// A volume trigger re-opened the window mid-flush; the
			// remainder waits for the next completion.
			t.pendingOut = append(t.pendingOut, pending[i:]...)
			return nil
		}
		if err := t.writePayload(payload); err != nil {
			return err
		}
	}
	return nil
}
