package userauth

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/postalsys/sshmux/identity"
	"github.com/postalsys/sshmux/internal/testutil"
	"github.com/postalsys/sshmux/transport"
	"github.com/postalsys/sshmux/wire"
)

var (
	hostSeed = [32]byte{1: 1, 31: 2}
	userSeed = [32]byte{3: 3, 30: 4}
)

type acceptAllVerifier struct{}

func (acceptAllVerifier) Verify(ctx context.Context, host string, port uint16, id identity.Identity) error {
	return nil
}

func newTransportPair(t *testing.T) (*transport.Transport, *transport.Transport) {
	t.Helper()
	a, b := testutil.Pipe()
	hostKey := identity.Ed25519KeypairFromSeed(hostSeed)

	type result struct {
		t   *transport.Transport
		err error
	}
	srvCh := make(chan result, 1)
	go func() {
		st, err := transport.Accept(context.Background(), b, hostKey, nil)
		srvCh <- result{st, err}
	}()
	ct, err := transport.Connect(context.Background(), a, "host.test", 22, acceptAllVerifier{}, nil)
	if err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	r := <-srvCh
	if r.err != nil {
		t.Fatalf("server handshake: %v", r.err)
	}
	t.Cleanup(func() {
		ct.Close()
		r.t.Close()
	})
	return ct, r.t
}

func TestSignatureDataPreImage(t *testing.T) {
	kp := identity.Ed25519KeypairFromSeed(userSeed)
	id := kp.Identity()
	sid := bytes.Repeat([]byte{0xee}, 32)

	data, err := marshalSignatureData(sid, "alice", "ssh-connection", id)
	if err != nil {
		t.Fatal(err)
	}

	d := wire.NewDecoder(data)
	gotSid, ok := d.TakeFramed()
	if !ok || !bytes.Equal(gotSid, sid) {
		t.Fatal("session id frame")
	}
	if n, ok := d.TakeU8(); !ok || n != wire.NumUserauthRequest {
		t.Fatalf("message number %d", n)
	}
	if s, _ := d.TakeString(); s != "alice" {
		t.Fatalf("user %q", s)
	}
	if s, _ := d.TakeString(); s != "ssh-connection" {
		t.Fatalf("service %q", s)
	}
	if s, _ := d.TakeString(); s != "publickey" {
		t.Fatalf("method %q", s)
	}
	if b, _ := d.TakeBool(); !b {
		t.Fatal("signature flag not set")
	}
	if s, _ := d.TakeString(); s != "ssh-ed25519" {
		t.Fatalf("algorithm %q", s)
	}
	gotID, ok := d.TakeFramed()
	if !ok || !identity.Identity(gotID).Equal(id) {
		t.Fatal("identity frame")
	}
	if d.Remaining() != 0 {
		t.Fatalf("%d trailing bytes", d.Remaining())
	}
}

func TestKeypairAgent(t *testing.T) {
	kp := identity.Ed25519KeypairFromSeed(userSeed)
	agent := NewKeypairAgent()
	agent.Add(kp, "alice@host")

	ids, err := agent.Identities(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0].Comment != "alice@host" {
		t.Fatalf("identities %+v", ids)
	}

	sig, err := agent.Signature(context.Background(), ids[0].Identity, []byte("data"), 0)
	if err != nil || sig == nil {
		t.Fatalf("signature %v, %v", sig, err)
	}
	if err := sig.Verify(ids[0].Identity, []byte("data")); err != nil {
		t.Fatal(err)
	}

	other, err := identity.GenerateEd25519Keypair()
	if err != nil {
		t.Fatal(err)
	}
	sig, err = agent.Signature(context.Background(), other.Identity(), []byte("data"), 0)
	if err != nil || sig != nil {
		t.Fatalf("unknown identity: signature %v, %v", sig, err)
	}
}

func TestPublicKeyAuthSuccess(t *testing.T) {
	ct, st := newTransportPair(t)

	kp := identity.Ed25519KeypairFromSeed(userSeed)
	agent := NewKeypairAgent()
	agent.Add(kp, "alice")

	type result struct {
		user string
		err  error
	}
	srvCh := make(chan result, 1)
	go func() {
		user, err := Serve(context.Background(), st, &ServerConfig{
			CheckPublicKey: func(user string, id identity.Identity) bool {
				return user == "alice" && id.Equal(kp.Identity())
			},
		})
		srvCh <- result{user, err}
	}()

	if err := Authenticate(context.Background(), ct, "alice", &ClientConfig{Agent: agent}); err != nil {
		t.Fatal(err)
	}
	r := <-srvCh
	if r.err != nil {
		t.Fatal(r.err)
	}
	if r.user != "alice" {
		t.Fatalf("user %q", r.user)
	}
	if !bytes.Equal(ct.SessionID(), st.SessionID()) {
		t.Fatal("session ids diverged")
	}
}

func TestAuthExhaustionKeepsTransportOpen(t *testing.T) {
	ct, st := newTransportPair(t)

	go func() {
		Serve(context.Background(), st, &ServerConfig{})
	}()

	err := Authenticate(context.Background(), ct, "alice", &ClientConfig{Agent: NewKeypairAgent()})
	if !errors.Is(err, ErrNoMoreAuthMethods) {
		t.Fatalf("err = %v", err)
	}
	if ct.Err() != nil {
		t.Fatalf("transport terminated: %v", ct.Err())
	}
}

func TestRejectedKeyExhaustsMethods(t *testing.T) {
	ct, st := newTransportPair(t)

	kp := identity.Ed25519KeypairFromSeed(userSeed)
	agent := NewKeypairAgent()
	agent.Add(kp, "alice")

	go func() {
		Serve(context.Background(), st, &ServerConfig{
			CheckPublicKey: func(string, identity.Identity) bool { return false },
		})
	}()

	err := Authenticate(context.Background(), ct, "alice", &ClientConfig{Agent: agent})
	if !errors.Is(err, ErrNoMoreAuthMethods) {
		t.Fatalf("err = %v", err)
	}
}

func TestPasswordAuth(t *testing.T) {
	ct, st := newTransportPair(t)

	srvCh := make(chan error, 1)
	go func() {
		user, err := Serve(context.Background(), st, &ServerConfig{
			CheckPassword: func(user, password string) bool {
				return user == "bob" && password == "hunter2"
			},
		})
		if err == nil && user != "bob" {
			err = errors.New("wrong user")
		}
		srvCh <- err
	}()

	err := Authenticate(context.Background(), ct, "bob", &ClientConfig{Password: "hunter2"})
	if err != nil {
		t.Fatal(err)
	}
	if err := <-srvCh; err != nil {
		t.Fatal(err)
	}
}

func TestBannerDelivery(t *testing.T) {
	ct, st := newTransportPair(t)

	go func() {
		Serve(context.Background(), st, &ServerConfig{
			Banner: "authorized use only",
			CheckPassword: func(user, password string) bool {
				return true
			},
		})
	}()

	var banner string
	err := Authenticate(context.Background(), ct, "bob", &ClientConfig{
		Password: "x",
		OnBanner: func(message string) { banner = message },
	})
	if err != nil {
		t.Fatal(err)
	}
	if banner != "authorized use only" {
		t.Fatalf("banner %q", banner)
	}
}

func TestPublicKeyProbeGetsPkOk(t *testing.T) {
	ct, st := newTransportPair(t)

	kp := identity.Ed25519KeypairFromSeed(userSeed)
	go func() {
		Serve(context.Background(), st, &ServerConfig{
			CheckPublicKey: func(user string, id identity.Identity) bool {
				return id.Equal(kp.Identity())
			},
		})
	}()

	if err := ct.RequestService(transport.ServiceUserAuth); err != nil {
		t.Fatal(err)
	}
	probe := &wire.UserauthRequest{
		User:      "alice",
		Service:   transport.ServiceConnection,
		Method:    wire.MethodPublicKey,
		Algorithm: "ssh-ed25519",
		Identity:  kp.Identity(),
	}
	if err := ct.WriteMessage(probe); err != nil {
		t.Fatal(err)
	}
	payload, err := ct.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	pkOk := &wire.UserauthPkOk{}
	if err := wire.Unmarshal(payload, pkOk); err != nil {
		t.Fatalf("expected USERAUTH_PK_OK, got %s", wire.MessageName(payload[0]))
	}
	if !identity.Identity(pkOk.Identity).Equal(kp.Identity()) {
		t.Fatal("probe echoed a different identity")
	}

	// Follow up with the signed request.
	data, err := marshalSignatureData(ct.SessionID(), "alice", transport.ServiceConnection, kp.Identity())
	if err != nil {
		t.Fatal(err)
	}
	sig := kp.Sign(data)
	signed := &wire.UserauthRequest{
		User:         "alice",
		Service:      transport.ServiceConnection,
		Method:       wire.MethodPublicKey,
		HasSignature: true,
		Algorithm:    "ssh-ed25519",
		Identity:     kp.Identity(),
		Signature:    sig.MarshalBlob(),
	}
	if err := ct.WriteMessage(signed); err != nil {
		t.Fatal(err)
	}
	payload, err = ct.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if payload[0] != wire.NumUserauthSuccess {
		t.Fatalf("expected USERAUTH_SUCCESS, got %s", wire.MessageName(payload[0]))
	}
}

func TestTamperedSignatureRejected(t *testing.T) {
	ct, st := newTransportPair(t)

	kp := identity.Ed25519KeypairFromSeed(userSeed)
	go func() {
		Serve(context.Background(), st, &ServerConfig{
			CheckPublicKey: func(string, identity.Identity) bool { return true },
		})
	}()

	if err := ct.RequestService(transport.ServiceUserAuth); err != nil {
		t.Fatal(err)
	}
	// Signature over the wrong user binds to a different pre-image.
	data, err := marshalSignatureData(ct.SessionID(), "mallory", transport.ServiceConnection, kp.Identity())
	if err != nil {
		t.Fatal(err)
	}
	sig := kp.Sign(data)
	req := &wire.UserauthRequest{
		User:         "alice",
		Service:      transport.ServiceConnection,
		Method:       wire.MethodPublicKey,
		HasSignature: true,
		Algorithm:    "ssh-ed25519",
		Identity:     kp.Identity(),
		Signature:    sig.MarshalBlob(),
	}
	if err := ct.WriteMessage(req); err != nil {
		t.Fatal(err)
	}
	payload, err := ct.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if payload[0] != wire.NumUserauthFailure {
		t.Fatalf("expected USERAUTH_FAILURE, got %s", wire.MessageName(payload[0]))
	}
}
