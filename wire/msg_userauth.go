package wire

// Authentication method names.
const (
	MethodNone      = "none"
	MethodPassword  = "password"
	MethodPublicKey = "publickey"
)

// UserauthRequest is SSH_MSG_USERAUTH_REQUEST. The fields after Method
// depend on the method:
//
//	none:      -
//	password:  Password (the leading boolean is always false here;
//	           password changing is not supported)
//	publickey: HasSignature, Algorithm, Identity and, when HasSignature
//	           is set, Signature
type UserauthRequest struct {
	User    string
	Service string
	Method  string

	Password string

	HasSignature bool
	Algorithm    string
	Identity     []byte
	Signature    []byte
}

func (m *UserauthRequest) Encode(e Encoder) {
	e.PushU8(NumUserauthRequest)
	e.PushString(m.User)
	e.PushString(m.Service)
	e.PushString(m.Method)
	switch m.Method {
	case MethodPassword:
		e.PushBool(false)
		e.PushString(m.Password)
	case MethodPublicKey:
		e.PushBool(m.HasSignature)
		e.PushString(m.Algorithm)
		e.PushFramed(m.Identity)
		if m.HasSignature {
			e.PushFramed(m.Signature)
		}
	}
}

func (m *UserauthRequest) Size() int { return EncodedSize(m) }

func (m *UserauthRequest) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	if !ok || n != NumUserauthRequest {
		return false
	}
	if m.User, ok = d.TakeString(); !ok {
		return false
	}
	if m.Service, ok = d.TakeString(); !ok {
		return false
	}
	if m.Method, ok = d.TakeString(); !ok {
		return false
	}
	switch m.Method {
	case MethodNone:
		return true
	case MethodPassword:
		change, ok := d.TakeBool()
		if !ok || change {
			return false
		}
		m.Password, ok = d.TakeString()
		return ok
	case MethodPublicKey:
		if m.HasSignature, ok = d.TakeBool(); !ok {
			return false
		}
		if m.Algorithm, ok = d.TakeString(); !ok {
			return false
		}
		if m.Identity, ok = d.TakeFramed(); !ok {
			return false
		}
		if m.HasSignature {
			m.Signature, ok = d.TakeFramed()
		}
		return ok
	default:
		// Unknown methods are rejected by the caller with a
		// USERAUTH_FAILURE; the trailing bytes are method-specific
		// and skipped here.
		d.TakeRemaining()
		return true
	}
}

// UserauthFailure is SSH_MSG_USERAUTH_FAILURE listing the methods that
// can productively continue.
type UserauthFailure struct {
	Methods        []string
	PartialSuccess bool
}

func (m *UserauthFailure) Encode(e Encoder) {
	e.PushU8(NumUserauthFailure)
	e.PushNameList(m.Methods)
	e.PushBool(m.PartialSuccess)
}

func (m *UserauthFailure) Size() int { return EncodedSize(m) }

func (m *UserauthFailure) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	if !ok || n != NumUserauthFailure {
		return false
	}
	if m.Methods, ok = d.TakeNameList(); !ok {
		return false
	}
	m.PartialSuccess, ok = d.TakeBool()
	return ok
}

// UserauthSuccess is SSH_MSG_USERAUTH_SUCCESS.
type UserauthSuccess struct{}

func (m *UserauthSuccess) Encode(e Encoder) {
	e.PushU8(NumUserauthSuccess)
}

func (m *UserauthSuccess) Size() int { return EncodedSize(m) }

func (m *UserauthSuccess) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	return ok && n == NumUserauthSuccess
}

// UserauthBanner is SSH_MSG_USERAUTH_BANNER.
type UserauthBanner struct {
	Message  string
	Language string
}

func (m *UserauthBanner) Encode(e Encoder) {
	e.PushU8(NumUserauthBanner)
	e.PushString(m.Message)
	e.PushString(m.Language)
}

func (m *UserauthBanner) Size() int { return EncodedSize(m) }

func (m *UserauthBanner) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	if !ok || n != NumUserauthBanner {
		return false
	}
	if m.Message, ok = d.TakeString(); !ok {
		return false
	}
	m.Language, ok = d.TakeString()
	return ok
}

// UserauthPkOk is SSH_MSG_USERAUTH_PK_OK, the positive answer to a
// publickey probe without signature.
type UserauthPkOk struct {
	Algorithm string
	Identity  []byte
}

func (m *UserauthPkOk) Encode(e Encoder) {
	e.PushU8(NumUserauthPkOk)
	e.PushString(m.Algorithm)
	e.PushFramed(m.Identity)
}

func (m *UserauthPkOk) Size() int { return EncodedSize(m) }

func (m *UserauthPkOk) Decode(d *Decoder) bool {
	n, ok := d.TakeU8()
	if !ok || n != NumUserauthPkOk {
		return false
	}
	if m.Algorithm, ok = d.TakeString(); !ok {
		return false
	}
	m.Identity, ok = d.TakeFramed()
	return ok
}
