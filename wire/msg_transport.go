package wire

// Disconnect reason codes (RFC 4253 §11.1), subset in use.
const (
	DisconnectHostNotAllowedToConnect    uint32 = 1
	DisconnectProtocolError              uint32 = 2
	DisconnectKeyExchangeFailed          uint32 = 3
	DisconnectReserved                   uint32 = 4
	DisconnectMacError                   uint32 = 5
	DisconnectCompressionError           uint32 = 6
	DisconnectServiceNotAvailable        uint32 = 7
	DisconnectProtocolVersionNotSupported uint32 = 8
	DisconnectHostKeyNotVerifiable       uint32 = 9
	DisconnectConnectionLost             uint32 = 10
	DisconnectByApplication              uint32 = 11
	DisconnectTooManyConnections         uint32 = 12
	DisconnectAuthCancelledByUser        uint32 = 13
	DisconnectNoMoreAuthMethodsAvailable uint32 = 14
	DisconnectIllegalUserName            uint32 = 15
)

// DisconnectReasonName returns a human-readable name for a reason code.
func DisconnectReasonName(reason uint32) string {
	switch reason {
	case DisconnectHostNotAllowedToConnect:
		return "HOST_NOT_ALLOWED_TO_CONNECT"
	case DisconnectProtocolError:
		return "PROTOCOL_ERROR"
	case DisconnectKeyExchangeFailed:
		return "KEY_EXCHANGE_FAILED"
	case DisconnectMacError:
		return "MAC_ERROR"
	case DisconnectCompressionError:
		return "COMPRESSION_ERROR"
	case DisconnectServiceNotAvailable:
		return "SERVICE_NOT_AVAILABLE"
	case DisconnectProtocolVersionNotSupported:
		return "PROTOCOL_VERSION_NOT_SUPPORTED"
	case DisconnectHostKeyNotVerifiable:
		return "HOST_KEY_NOT_VERIFIABLE"
	case DisconnectConnectionLost:
		return "CONNECTION_LOST"
	case DisconnectByApplication:
		return "DISCONNECT_BY_APPLICATION"
	case DisconnectTooManyConnections:
		return "TOO_MANY_CONNECTIONS"
	case DisconnectAuthCancelledByUser:
		return "AUTH_CANCELLED_BY_USER"
	case DisconnectNoMoreAuthMethodsAvailable:
		return "NO_MORE_AUTH_METHODS_AVAILABLE"
	case DisconnectIllegalUserName:
		return "ILLEGAL_USER_NAME"
	default:
		return "UNKNOWN"
	}
}

// Disconnect is SSH_MSG_DISCONNECT.
type Disconnect struct {
	Reason      uint32
	Description string
	Language    string
}

func (m *Disconnect) Encode(e Encoder) {
	e.PushU8(NumDisconnect)
	e.PushU32(m.Reason)
	e.PushString(m.Description)
	e.PushString(m.Language)
}

func (m *Disconnect) Size() int { return EncodedSize(m) }

func (m *Disconnect) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	if !ok || n != NumDisconnect {
		return false
	}
	if m.Reason, ok = d.TakeU32(); !ok {
		return false
	}
	if m.Description, ok = d.TakeString(); !ok {
		return false
	}
	m.Language, ok = d.TakeString()
	return ok
}

// Ignore is SSH_MSG_IGNORE. The payload is arbitrary and discarded by
// the receiver; an empty one serves as a keepalive probe.
type Ignore struct {
	Data []byte
}

func (m *Ignore) Encode(e Encoder) {
	e.PushU8(NumIgnore)
	e.PushFramed(m.Data)
}

func (m *Ignore) Size() int { return EncodedSize(m) }

func (m *Ignore) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	if !ok || n != NumIgnore {
		return false
	}
	m.Data, ok = d.TakeFramed()
	return ok
}

// Unimplemented is SSH_MSG_UNIMPLEMENTED, referring to the sequence
// number of the rejected packet.
type Unimplemented struct {
	Sequence uint32
}

func (m *Unimplemented) Encode(e Encoder) {
	e.PushU8(NumUnimplemented)
	e.PushU32(m.Sequence)
}

func (m *Unimplemented) Size() int { return EncodedSize(m) }

func (m *Unimplemented) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	if !ok || n != NumUnimplemented {
		return false
	}
	m.Sequence, ok = d.TakeU32()
	return ok
}

// Debug is SSH_MSG_DEBUG.
type Debug struct {
	AlwaysDisplay bool
	Message       string
	Language      string
}

func (m *Debug) Encode(e Encoder) {
	e.PushU8(NumDebug)
	e.PushBool(m.AlwaysDisplay)
	e.PushString(m.Message)
	e.PushString(m.Language)
}

func (m *Debug) Size() int { return EncodedSize(m) }

func (m *Debug) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	if !ok || n != NumDebug {
		return false
	}
	if m.AlwaysDisplay, ok = d.TakeBool(); !ok {
		return false
	}
	if m.Message, ok = d.TakeString(); !ok {
		return false
	}
	m.Language, ok = d.TakeString()
	return ok
}

// ServiceRequest is SSH_MSG_SERVICE_REQUEST.
type ServiceRequest struct {
	Service string
}

func (m *ServiceRequest) Encode(e Encoder) {
	e.PushU8(NumServiceRequest)
	e.PushString(m.Service)
}

func (m *ServiceRequest) Size() int { return EncodedSize(m) }

func (m *ServiceRequest) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	if !ok || n != NumServiceRequest {
		return false
	}
	m.Service, ok = d.TakeString()
	return ok
}

// ServiceAccept is SSH_MSG_SERVICE_ACCEPT.
type ServiceAccept struct {
	Service string
}

func (m *ServiceAccept) Encode(e Encoder) {
	e.PushU8(NumServiceAccept)
	e.PushString(m.Service)
}

func (m *ServiceAccept) Size() int { return EncodedSize(m) }

func (m *ServiceAccept) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	if !ok || n != NumServiceAccept {
		return false
	}
	m.Service, ok = d.TakeString()
	return ok
}
