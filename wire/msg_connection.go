package wire

// Channel type names.
const (
	ChannelTypeSession     = "session"
	ChannelTypeDirectTcpIp = "direct-tcpip"
)

// ExtendedDataStderr is the only extended data type code in use.
const ExtendedDataStderr uint32 = 1

// GlobalRequest is SSH_MSG_GLOBAL_REQUEST. Data is the raw
// request-specific tail.
type GlobalRequest struct {
	Name      string
	WantReply bool
	Data      []byte
}

func (m *GlobalRequest) Encode(e Encoder) {
	e.PushU8(NumGlobalRequest)
	e.PushString(m.Name)
	e.PushBool(m.WantReply)
	e.PushBytes(m.Data)
}

func (m *GlobalRequest) Size() int { return EncodedSize(m) }

func (m *GlobalRequest) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	if !ok || n != NumGlobalRequest {
		return false
	}
	if m.Name, ok = d.TakeString(); !ok {
		return false
	}
	if m.WantReply, ok = d.TakeBool(); !ok {
		return false
	}
	m.Data = d.TakeRemaining()
	return true
}

// RequestSuccess is SSH_MSG_REQUEST_SUCCESS with request-specific data.
type RequestSuccess struct {
	Data []byte
}

func (m *RequestSuccess) Encode(e Encoder) {
	e.PushU8(NumRequestSuccess)
	e.PushBytes(m.Data)
}

func (m *RequestSuccess) Size() int { return EncodedSize(m) }

func (m *RequestSuccess) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	if !ok || n != NumRequestSuccess {
		return false
	}
	m.Data = d.TakeRemaining()
	return true
}

// RequestFailure is SSH_MSG_REQUEST_FAILURE.
type RequestFailure struct{}

func (m *RequestFailure) Encode(e Encoder) {
	e.PushU8(NumRequestFailure)
}

func (m *RequestFailure) Size() int { return EncodedSize(m) }

func (m *RequestFailure) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	return ok && n == NumRequestFailure
}

// ChannelOpen is SSH_MSG_CHANNEL_OPEN. Data is the raw channel-type
// specific tail (empty for session, DirectTcpIpOpen for direct-tcpip).
type ChannelOpen struct {
	ChannelType       string
	SenderChannel     uint32
	InitialWindowSize uint32
	MaximumPacketSize uint32
	Data              []byte
}

func (m *ChannelOpen) Encode(e Encoder) {
	e.PushU8(NumChannelOpen)
	e.PushString(m.ChannelType)
	e.PushU32(m.SenderChannel)
	e.PushU32(m.InitialWindowSize)
	e.PushU32(m.MaximumPacketSize)
	e.PushBytes(m.Data)
}

func (m *ChannelOpen) Size() int { return EncodedSize(m) }

func (m *ChannelOpen) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	if !ok || n != NumChannelOpen {
		return false
	}
	if m.ChannelType, ok = d.TakeString(); !ok {
		return false
	}
	if m.SenderChannel, ok = d.TakeU32(); !ok {
		return false
	}
	if m.InitialWindowSize, ok = d.TakeU32(); !ok {
		return false
	}
	if m.MaximumPacketSize, ok = d.TakeU32(); !ok {
		return false
	}
	m.Data = d.TakeRemaining()
	return true
}

// DirectTcpIpOpen is the channel-type specific part of a direct-tcpip
// CHANNEL_OPEN.
type DirectTcpIpOpen struct {
	DstHost string
	DstPort uint32
	SrcAddr string
	SrcPort uint32
}

func (m *DirectTcpIpOpen) Encode(e Encoder) {
	e.PushString(m.DstHost)
	e.PushU32(m.DstPort)
	e.PushString(m.SrcAddr)
	e.PushU32(m.SrcPort)
}

func (m *DirectTcpIpOpen) Size() int { return EncodedSize(m) }

func (m *DirectTcpIpOpen) Decode(d *Decoder) bool {
	ok := false
	if m.DstHost, ok = d.TakeString(); !ok {
		return false
	}
	if m.DstPort, ok = d.TakeU32(); !ok {
		return false
	}
	if m.SrcAddr, ok = d.TakeString(); !ok {
		return false
	}
	m.SrcPort, ok = d.TakeU32()
	return ok
}

// ChannelOpenConfirmation is SSH_MSG_CHANNEL_OPEN_CONFIRMATION.
type ChannelOpenConfirmation struct {
	RecipientChannel  uint32
	SenderChannel     uint32
	InitialWindowSize uint32
	MaximumPacketSize uint32
	Data              []byte
}

func (m *ChannelOpenConfirmation) Encode(e Encoder) {
	e.PushU8(NumChannelOpenConfirmation)
	e.PushU32(m.RecipientChannel)
	e.PushU32(m.SenderChannel)
	e.PushU32(m.InitialWindowSize)
	e.PushU32(m.MaximumPacketSize)
	e.PushBytes(m.Data)
}

func (m *ChannelOpenConfirmation) Size() int { return EncodedSize(m) }

func (m *ChannelOpenConfirmation) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	if !ok || n != NumChannelOpenConfirmation {
		return false
	}
	if m.RecipientChannel, ok = d.TakeU32(); !ok {
		return false
	}
	if m.SenderChannel, ok = d.TakeU32(); !ok {
		return false
	}
	if m.InitialWindowSize, ok = d.TakeU32(); !ok {
		return false
	}
	if m.MaximumPacketSize, ok = d.TakeU32(); !ok {
		return false
	}
	m.Data = d.TakeRemaining()
	return true
}

// ChannelOpenFailure is SSH_MSG_CHANNEL_OPEN_FAILURE.
type ChannelOpenFailure struct {
	RecipientChannel uint32
	Reason           uint32
	Description      string
	Language         string
}

func (m *ChannelOpenFailure) Encode(e Encoder) {
	e.PushU8(NumChannelOpenFailure)
	e.PushU32(m.RecipientChannel)
	e.PushU32(m.Reason)
	e.PushString(m.Description)
	e.PushString(m.Language)
}

func (m *ChannelOpenFailure) Size() int { return EncodedSize(m) }

func (m *ChannelOpenFailure) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	if !ok || n != NumChannelOpenFailure {
		return false
	}
	if m.RecipientChannel, ok = d.TakeU32(); !ok {
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

// ChannelWindowAdjust is SSH_MSG_CHANNEL_WINDOW_ADJUST.
type ChannelWindowAdjust struct {
	RecipientChannel uint32
	BytesToAdd       uint32
}

func (m *ChannelWindowAdjust) Encode(e Encoder) {
	e.PushU8(NumChannelWindowAdjust)
	e.PushU32(m.RecipientChannel)
	e.PushU32(m.BytesToAdd)
}

func (m *ChannelWindowAdjust) Size() int { return EncodedSize(m) }

func (m *ChannelWindowAdjust) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	if !ok || n != NumChannelWindowAdjust {
		return false
	}
	if m.RecipientChannel, ok = d.TakeU32(); !ok {
		return false
	}
	m.BytesToAdd, ok = d.TakeU32()
	return ok
}

// ChannelData is SSH_MSG_CHANNEL_DATA.
type ChannelData struct {
	RecipientChannel uint32
	Data             []byte
}

func (m *ChannelData) Encode(e Encoder) {
	e.PushU8(NumChannelData)
	e.PushU32(m.RecipientChannel)
	e.PushFramed(m.Data)
}

func (m *ChannelData) Size() int { return EncodedSize(m) }

func (m *ChannelData) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	if !ok || n != NumChannelData {
		return false
	}
	if m.RecipientChannel, ok = d.TakeU32(); !ok {
		return false
	}
	m.Data, ok = d.TakeFramed()
	return ok
}

// ChannelExtendedData is SSH_MSG_CHANNEL_EXTENDED_DATA.
type ChannelExtendedData struct {
	RecipientChannel uint32
	DataTypeCode     uint32
	Data             []byte
}

func (m *ChannelExtendedData) Encode(e Encoder) {
	e.PushU8(NumChannelExtendedData)
	e.PushU32(m.RecipientChannel)
	e.PushU32(m.DataTypeCode)
	e.PushFramed(m.Data)
}

func (m *ChannelExtendedData) Size() int { return EncodedSize(m) }

func (m *ChannelExtendedData) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	if !ok || n != NumChannelExtendedData {
		return false
	}
	if m.RecipientChannel, ok = d.TakeU32(); !ok {
		return false
	}
	if m.DataTypeCode, ok = d.TakeU32(); !ok {
		return false
	}
	m.Data, ok = d.TakeFramed()
	return ok
}

// ChannelEof is SSH_MSG_CHANNEL_EOF.
type ChannelEof struct {
	RecipientChannel uint32
}

func (m *ChannelEof) Encode(e Encoder) {
	e.PushU8(NumChannelEof)
	e.PushU32(m.RecipientChannel)
}

func (m *ChannelEof) Size() int { return EncodedSize(m) }

func (m *ChannelEof) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	if !ok || n != NumChannelEof {
		return false
	}
	m.RecipientChannel, ok = d.TakeU32()
	return ok
}

// ChannelClose is SSH_MSG_CHANNEL_CLOSE.
type ChannelClose struct {
	RecipientChannel uint32
}

func (m *ChannelClose) Encode(e Encoder) {
	e.PushU8(NumChannelClose)
	e.PushU32(m.RecipientChannel)
}

func (m *ChannelClose) Size() int { return EncodedSize(m) }

func (m *ChannelClose) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	if !ok || n != NumChannelClose {
		return false
	}
	m.RecipientChannel, ok = d.TakeU32()
	return ok
}

// ChannelRequest is SSH_MSG_CHANNEL_REQUEST. Data is the raw
// request-specific tail.
type ChannelRequest struct {
	RecipientChannel uint32
	RequestType      string
	WantReply        bool
	Data             []byte
}

func (m *ChannelRequest) Encode(e Encoder) {
	e.PushU8(NumChannelRequest)
	e.PushU32(m.RecipientChannel)
	e.PushString(m.RequestType)
	e.PushBool(m.WantReply)
	e.PushBytes(m.Data)
}

func (m *ChannelRequest) Size() int { return EncodedSize(m) }

func (m *ChannelRequest) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	if !ok || n != NumChannelRequest {
		return false
	}
	if m.RecipientChannel, ok = d.TakeU32(); !ok {
		return false
	}
	if m.RequestType, ok = d.TakeString(); !ok {
		return false
	}
	if m.WantReply, ok = d.TakeBool(); !ok {
		return false
	}
	m.Data = d.TakeRemaining()
	return true
}

// ChannelSuccess is SSH_MSG_CHANNEL_SUCCESS.
type ChannelSuccess struct {
	RecipientChannel uint32
}

func (m *ChannelSuccess) Encode(e Encoder) {
	e.PushU8(NumChannelSuccess)
	e.PushU32(m.RecipientChannel)
}

func (m *ChannelSuccess) Size() int { return EncodedSize(m) }

func (m *ChannelSuccess) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	if !ok || n != NumChannelSuccess {
		return false
	}
	m.RecipientChannel, ok = d.TakeU32()
	return ok
}

// ChannelFailure is SSH_MSG_CHANNEL_FAILURE.
type ChannelFailure struct {
	RecipientChannel uint32
}

func (m *ChannelFailure) Encode(e Encoder) {
	e.PushU8(NumChannelFailure)
	e.PushU32(m.RecipientChannel)
}

func (m *ChannelFailure) Size() int { return EncodedSize(m) }

func (m *ChannelFailure) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	if !ok || n != NumChannelFailure {
		return false
	}
	m.RecipientChannel, ok = d.TakeU32()
	return ok
}
