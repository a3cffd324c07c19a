package transport

import (
	"errors"
	"fmt"

	"github.com/postalsys/sshmux/wire"
)

var (
	// ErrInvalidEncoding is returned when a payload cannot be decoded.
	ErrInvalidEncoding = errors.New("transport: invalid encoding")

	// ErrInvalidPacket is returned when a packet violates the framing
	// rules (padding, alignment, minimum size).
	ErrInvalidPacket = errors.New("transport: invalid packet")

	// ErrInvalidPacketLength is returned when a packet length exceeds
	// the 35000-byte limit or undercuts the minimum.
	ErrInvalidPacketLength = errors.New("transport: invalid packet length")

	// ErrInvalidEncryption is returned when authenticated decryption
	// fails.
	ErrInvalidEncryption = errors.New("transport: invalid encryption")

	// ErrInvalidSignature is returned when the host signature over the
	// exchange hash does not verify.
	ErrInvalidSignature = errors.New("transport: invalid signature")

	// ErrInvalidIdentification is returned when the peer's
	// identification line is not an acceptable SSH-2.0 line.
	ErrInvalidIdentification = errors.New("transport: invalid identification")

	// ErrInvalidIdentity is returned when a host identity blob cannot
	// be interpreted.
	ErrInvalidIdentity = errors.New("transport: invalid identity")

	// ErrInvalidMessageKexCritical is returned when a connection-layer
	// message arrives inside the key exchange critical window.
	ErrInvalidMessageKexCritical = errors.New("transport: invalid message during kex")

	// ErrInvalidServiceRequest is returned when the service handshake
	// names an unknown service or answers with the wrong one.
	ErrInvalidServiceRequest = errors.New("transport: invalid service request")

	// ErrNoCommonKexAlgorithm and friends are the negotiation failures.
	ErrNoCommonKexAlgorithm         = errors.New("transport: no common kex algorithm")
	ErrNoCommonHostKeyAlgorithm     = errors.New("transport: no common host key algorithm")
	ErrNoCommonEncryptionAlgorithm  = errors.New("transport: no common encryption algorithm")
	ErrNoCommonCompressionAlgorithm = errors.New("transport: no common compression algorithm")
	ErrNoCommonMacAlgorithm         = errors.New("transport: no common mac algorithm")
)

// DisconnectError is the terminal error of a transport that ended with
// an SSH_MSG_DISCONNECT, ours or the peer's.
type DisconnectError struct {
	Reason uint32
	ByPeer bool
}

func (e *DisconnectError) Error() string {
	origin := "us"
	if e.ByPeer {
		origin = "peer"
	}
	return fmt.Sprintf("transport: disconnect by %s (%s)", origin, wire.DisconnectReasonName(e.Reason))
}

// HostVerificationError is returned by HostVerifier implementations.
type HostVerificationError struct {
	// Kind classifies the failure.
	Kind HostVerificationErrorKind
	// Detail is set for KindOther.
	Detail string
}

// HostVerificationErrorKind enumerates host verification failures.
type HostVerificationErrorKind int

const (
	// KindUnverifiable means no knowledge about the host key exists.
	KindUnverifiable HostVerificationErrorKind = iota
	// KindKeyRevoked means the key is explicitly revoked.
	KindKeyRevoked
	// KindCertError means a certificate was presented and could not be
	// accepted (certificate verification is not supported).
	KindCertError
	// KindOther carries an implementation-specific message.
	KindOther
)

func (e *HostVerificationError) Error() string {
	switch e.Kind {
	case KindUnverifiable:
		return "host verification: unverifiable"
	case KindKeyRevoked:
		return "host verification: key revoked"
	case KindCertError:
		return "host verification: certificate error"
	default:
		return "host verification: " + e.Detail
	}
}
