package wire

// CookieSize is the size of the random KEXINIT cookie.
const CookieSize = 16

// KexInit is SSH_MSG_KEXINIT: a fresh cookie plus the sender's algorithm
// preferences, most preferred first.
type KexInit struct {
	Cookie                    [CookieSize]byte
	KexAlgorithms             []string
	ServerHostKeyAlgorithms   []string
	EncryptionClientToServer  []string
	EncryptionServerToClient  []string
	MacClientToServer         []string
	MacServerToClient         []string
	CompressionClientToServer []string
	CompressionServerToClient []string
	LanguagesClientToServer   []string
	LanguagesServerToClient   []string
	FirstKexPacketFollows     bool
}

func (m *KexInit) Encode(e Encoder) {
	e.PushU8(NumKexInit)
	e.PushBytes(m.Cookie[:])
	e.PushNameList(m.KexAlgorithms)
	e.PushNameList(m.ServerHostKeyAlgorithms)
	e.PushNameList(m.EncryptionClientToServer)
	e.PushNameList(m.EncryptionServerToClient)
	e.PushNameList(m.MacClientToServer)
	e.PushNameList(m.MacServerToClient)
	e.PushNameList(m.CompressionClientToServer)
	e.PushNameList(m.CompressionServerToClient)
	e.PushNameList(m.LanguagesClientToServer)
	e.PushNameList(m.LanguagesServerToClient)
	e.PushBool(m.FirstKexPacketFollows)
	e.PushU32(0) // reserved
}

func (m *KexInit) Size() int { return EncodedSize(m) }

func (m *KexInit) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	if !ok || n != NumKexInit {
		return false
	}
	cookie, ok := d.TakeBytes(CookieSize)
	if !ok {
		return false
	}
	copy(m.Cookie[:], cookie)
	if m.KexAlgorithms, ok = d.TakeNameList(); !ok {
		return false
	}
	if m.ServerHostKeyAlgorithms, ok = d.TakeNameList(); !ok {
		return false
	}
	if m.EncryptionClientToServer, ok = d.TakeNameList(); !ok {
		return false
	}
	if m.EncryptionServerToClient, ok = d.TakeNameList(); !ok {
		return false
	}
	if m.MacClientToServer, ok = d.TakeNameList(); !ok {
		return false
	}
	if m.MacServerToClient, ok = d.TakeNameList(); !ok {
		return false
	}
	if m.CompressionClientToServer, ok = d.TakeNameList(); !ok {
		return false
	}
	if m.CompressionServerToClient, ok = d.TakeNameList(); !ok {
		return false
	}
	if m.LanguagesClientToServer, ok = d.TakeNameList(); !ok {
		return false
	}
	if m.LanguagesServerToClient, ok = d.TakeNameList(); !ok {
		return false
	}
	if m.FirstKexPacketFollows, ok = d.TakeBool(); !ok {
		return false
	}
	_, ok = d.TakeU32() // reserved
	return ok
}

// NewKeys is SSH_MSG_NEWKEYS. The next packet in the sending direction
// uses the freshly negotiated cipher.
type NewKeys struct{}

func (m *NewKeys) Encode(e Encoder) {
	e.PushU8(NumNewKeys)
}

func (m *NewKeys) Size() int { return EncodedSize(m) }

func (m *NewKeys) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	return ok && n == NumNewKeys
}

// KexEcdhInit is SSH_MSG_KEX_ECDH_INIT carrying the client's ephemeral
// public key.
type KexEcdhInit struct {
	ClientPublicKey []byte
}

func (m *KexEcdhInit) Encode(e Encoder) {
	e.PushU8(NumKexEcdhInit)
	e.PushFramed(m.ClientPublicKey)
}

func (m *KexEcdhInit) Size() int { return EncodedSize(m) }

func (m *KexEcdhInit) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	if !ok || n != NumKexEcdhInit {
		return false
	}
	m.ClientPublicKey, ok = d.TakeFramed()
	return ok
}

// KexEcdhReply is SSH_MSG_KEX_ECDH_REPLY. HostKey and Signature are the
// already-framed identity and signature blobs; their inner structure is
// the identity package's concern.
type KexEcdhReply struct {
	HostKey         []byte
	ServerPublicKey []byte
	Signature       []byte
}

func (m *KexEcdhReply) Encode(e Encoder) {
	e.PushU8(NumKexEcdhReply)
	e.PushFramed(m.HostKey)
	e.PushFramed(m.ServerPublicKey)
	e.PushFramed(m.Signature)
}

func (m *KexEcdhReply) Size() int { return EncodedSize(m) }

func (m *KexEcdhReply) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	if !ok || n != NumKexEcdhReply {
		return false
	}
	if m.HostKey, ok = d.TakeFramed(); !ok {
		return false
	}
	if m.ServerPublicKey, ok = d.TakeFramed(); !ok {
		return false
	}
	m.Signature, ok = d.TakeFramed()
	return ok
}
