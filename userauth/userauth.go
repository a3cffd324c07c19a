// Package userauth implements the ssh-userauth service: the client
// method loop over publickey and password, and the server-side
// verification of both.
package userauth

import (
	"context"
	"errors"

	"github.com/postalsys/sshmux/identity"
	"github.com/postalsys/sshmux/wire"
)

var (
	// ErrNoMoreAuthMethods is returned when every identity and method
	// has been tried without success.
	ErrNoMoreAuthMethods = errors.New("userauth: no more auth methods")

	// ErrServiceNotAvailable is returned when the peer asks for a
	// service other than ssh-connection.
	ErrServiceNotAvailable = errors.New("userauth: service not available")
)

// AgentIdentity pairs an identity with its agent-side comment.
type AgentIdentity struct {
	Identity identity.Identity
	Comment  string
}

// AuthAgent produces identities and signatures for publickey
// authentication. Local agent backends (unix-socket agents) implement
// this interface outside the core. Flags are reserved for RSA SHA-2
// algorithm selection and are zero for ed25519.
type AuthAgent interface {
	Identities(ctx context.Context) ([]AgentIdentity, error)
	// Signature signs data with the given identity's key. A nil
	// signature with nil error means the agent declines this identity.
	Signature(ctx context.Context, id identity.Identity, data []byte, flags uint32) (*identity.Signature, error)
}

// KeypairAgent is an in-memory AuthAgent backed by local ed25519
// keypairs.
type KeypairAgent struct {
	keys []keypairEntry
}

type keypairEntry struct {
	keypair *identity.Ed25519Keypair
	comment string
}

// NewKeypairAgent creates an empty in-memory agent.
func NewKeypairAgent() *KeypairAgent {
	return &KeypairAgent{}
}

// Add registers a keypair under a comment.
func (a *KeypairAgent) Add(kp *identity.Ed25519Keypair, comment string) {
	a.keys = append(a.keys, keypairEntry{keypair: kp, comment: comment})
}

// Identities implements AuthAgent.
func (a *KeypairAgent) Identities(ctx context.Context) ([]AgentIdentity, error) {
	ids := make([]AgentIdentity, 0, len(a.keys))
	for _, e := range a.keys {
		ids = append(ids, AgentIdentity{Identity: e.keypair.Identity(), Comment: e.comment})
	}
	return ids, nil
}

// Signature implements AuthAgent.
func (a *KeypairAgent) Signature(ctx context.Context, id identity.Identity, data []byte, flags uint32) (*identity.Signature, error) {
	for _, e := range a.keys {
		if e.keypair.Identity().Equal(id) {
			sig := e.keypair.Sign(data)
			return &sig, nil
		}
	}
	return nil, nil
}

// signatureData builds the publickey signature pre-image binding the
// request to the transport session:
//
//	string    session identifier
//	byte      SSH_MSG_USERAUTH_REQUEST
//	string    user name
//	string    service name
//	string    "publickey"
//	boolean   TRUE
//	string    public key algorithm name
//	string    public key blob
type signatureData struct {
	sessionID []byte
	user      string
	service   string
	algorithm string
	identity  identity.Identity
}

func (s *signatureData) Encode(e wire.Encoder) {
	e.PushFramed(s.sessionID)
	e.PushU8(wire.NumUserauthRequest)
	e.PushString(s.user)
	e.PushString(s.service)
	e.PushString(wire.MethodPublicKey)
	e.PushBool(true)
	e.PushString(s.algorithm)
	e.PushFramed(s.identity)
}

func (s *signatureData) Size() int { return wire.EncodedSize(s) }

func marshalSignatureData(sessionID []byte, user, service string, id identity.Identity) ([]byte, error) {
	return wire.Marshal(&signatureData{
		sessionID: sessionID,
		user:      user,
		service:   service,
		algorithm: id.Algorithm(),
		identity:  id,
	})
}
