package connection

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/postalsys/sshmux/identity"
	"github.com/postalsys/sshmux/internal/testutil"
	"github.com/postalsys/sshmux/transport"
	"github.com/postalsys/sshmux/wire"
)

var hostSeed = [32]byte{11: 7, 29: 9}

type acceptAllVerifier struct{}

func (acceptAllVerifier) Verify(ctx context.Context, host string, port uint16, id identity.Identity) error {
	return nil
}

func newConnectionPair(t *testing.T, clientHandler, serverHandler ConnectionHandler, ccfg, scfg *Config) (*Connection, *Connection) {
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

	client := New(ct, clientHandler, ccfg)
	server := New(r.t, serverHandler, scfg)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

// echoHandler accepts direct-tcpip channels and echoes bytes back until
// EOF.
type echoHandler struct {
	RejectingHandler
	mu     sync.Mutex
	params []DirectTcpIpParams
}

func (h *echoHandler) OnDirectTcpIpRequest(params DirectTcpIpParams, ch *DirectTcpIp) *OpenFailure {
	h.mu.Lock()
	h.params = append(h.params, params)
	h.mu.Unlock()
	go func() {
		io.Copy(ch, ch)
		ch.Close()
	}()
	return nil
}

func (h *echoHandler) seen() []DirectTcpIpParams {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]DirectTcpIpParams(nil), h.params...)
}

func TestDirectTcpIpEcho(t *testing.T) {
	handler := &echoHandler{}
	client, _ := newConnectionPair(t, nil, handler, nil, nil)

	params := DirectTcpIpParams{DstHost: "dst", DstPort: 23, SrcAddr: "0.0.0.0", SrcPort: 47}
	ch, err := client.OpenDirectTcpIp(context.Background(), params)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := ch.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if err := ch.CloseWrite(); err != nil {
		t.Fatal(err)
	}

	got, err := io.ReadAll(ch)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("echoed %q", got)
	}
	if err := ch.Close(); err != nil {
		t.Fatal(err)
	}

	seen := handler.seen()
	if len(seen) != 1 || seen[0] != params {
		t.Fatalf("handler saw %+v", seen)
	}
	if client.Err() != nil {
		t.Fatalf("connection terminated: %v", client.Err())
	}
}

func TestDirectTcpIpReject(t *testing.T) {
	client, _ := newConnectionPair(t, nil, RejectingHandler{}, nil, nil)

	_, err := client.OpenDirectTcpIp(context.Background(), DirectTcpIpParams{DstHost: "x", DstPort: 1})
	var failure *OpenFailure
	if !errors.As(err, &failure) {
		t.Fatalf("err = %v", err)
	}
	if failure.Reason != OpenAdministrativelyProhibited {
		t.Fatalf("reason %d", failure.Reason)
	}

	// The connection survives a rejected open.
	_, err = client.OpenDirectTcpIp(context.Background(), DirectTcpIpParams{DstHost: "y", DstPort: 2})
	if !errors.As(err, &failure) {
		t.Fatalf("second open: err = %v", err)
	}
	if client.Err() != nil {
		t.Fatalf("connection terminated: %v", client.Err())
	}
}

func TestDirectTcpIpRejectConnectFailed(t *testing.T) {
	handler := &rejectWith{reason: OpenConnectFailed}
	client, _ := newConnectionPair(t, nil, handler, nil, nil)

	_, err := client.OpenDirectTcpIp(context.Background(), DirectTcpIpParams{DstHost: "dst", DstPort: 23})
	var failure *OpenFailure
	if !errors.As(err, &failure) || failure.Reason != OpenConnectFailed {
		t.Fatalf("err = %v", err)
	}
}

type rejectWith struct {
	RejectingHandler
	reason uint32
}

func (h *rejectWith) OnDirectTcpIpRequest(params DirectTcpIpParams, ch *DirectTcpIp) *OpenFailure {
	return &OpenFailure{Reason: h.reason}
}

func TestBulkTransferWithSmallWindow(t *testing.T) {
	handler := &echoHandler{}
	scfg := DefaultConfig()
	scfg.ChannelMaxBufferSize = 4096
	scfg.ChannelMaxPacketSize = 1024
	client, _ := newConnectionPair(t, nil, handler, nil, scfg)

	ch, err := client.OpenDirectTcpIp(context.Background(), DirectTcpIpParams{DstHost: "dst", DstPort: 1})
	if err != nil {
		t.Fatal(err)
	}

	payload := make([]byte, 100*1024)
	if _, err := rand.Read(payload); err != nil {
		t.Fatal(err)
	}

	go func() {
		ch.Write(payload)
		ch.CloseWrite()
	}()

	got, err := io.ReadAll(ch)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("echoed %d bytes, sent %d", len(got), len(payload))
	}
	ch.Close()
}

// sessionEcho runs commands by writing fixed output and an exit status.
type sessionEcho struct {
	RejectingHandler
}

type sessionEchoHandler struct {
	sess *ServerSession
	env  map[string]string
}

func (h *sessionEcho) OnSessionRequest(sess *ServerSession) (SessionHandler, *OpenFailure) {
	return &sessionEchoHandler{sess: sess, env: map[string]string{}}, nil
}

func (h *sessionEchoHandler) OnEnv(name, value string) bool {
	h.env[name] = value
	return true
}

func (h *sessionEchoHandler) OnPtyReq(req *wire.PtyRequest) bool { return false }

func (h *sessionEchoHandler) OnShell() bool { return false }

func (h *sessionEchoHandler) OnExec(command string) bool {
	if command != "whoami" {
		return false
	}
	sess := h.sess
	go func() {
		sess.Write([]byte("alice\n"))
		sess.Stderr().Write([]byte("warning\n"))
		sess.SendExitStatus(0)
		sess.Close()
	}()
	return true
}

func (h *sessionEchoHandler) OnSubsystem(name string) bool { return false }

func (h *sessionEchoHandler) OnSignal(signal string) {}

func TestSessionExec(t *testing.T) {
	client, _ := newConnectionPair(t, nil, &sessionEcho{}, nil, nil)

	sess, err := client.OpenSession(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.Setenv("LANG", "C"); err != nil {
		t.Fatal(err)
	}
	if err := sess.Exec("whoami"); err != nil {
		t.Fatal(err)
	}

	stdout, err := io.ReadAll(sess)
	if err != nil {
		t.Fatal(err)
	}
	if string(stdout) != "alice\n" {
		t.Fatalf("stdout %q", stdout)
	}
	stderr, err := io.ReadAll(sess.Stderr())
	if err != nil {
		t.Fatal(err)
	}
	if string(stderr) != "warning\n" {
		t.Fatalf("stderr %q", stderr)
	}

	exit := sess.ExitResult()
	if exit == nil || exit.Status == nil || *exit.Status != 0 {
		t.Fatalf("exit %+v", exit)
	}
	sess.Close()
}

func TestSessionRequestFailure(t *testing.T) {
	client, _ := newConnectionPair(t, nil, &sessionEcho{}, nil, nil)

	sess, err := client.OpenSession(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()

	err = sess.Exec("rm -rf /")
	var reqErr *RequestFailedError
	if !errors.As(err, &reqErr) || reqErr.Request != "exec" {
		t.Fatalf("err = %v", err)
	}
	// A pty request is refused by this handler too.
	if err := sess.RequestPty("xterm", 80, 24, nil); err == nil {
		t.Fatal("pty request succeeded")
	}
}

// countingHandler answers global requests and records their order.
type countingHandler struct {
	RejectingHandler
	mu    sync.Mutex
	names []string
}

func (h *countingHandler) OnRequest(name string, data []byte) {
	h.mu.Lock()
	h.names = append(h.names, name)
	h.mu.Unlock()
}

func (h *countingHandler) OnRequestWantReply(name string, data []byte) (bool, []byte) {
	h.mu.Lock()
	h.names = append(h.names, name)
	h.mu.Unlock()
	if name == "fail@example.test" {
		return false, nil
	}
	return true, append([]byte("re:"), data...)
}

func TestGlobalRequestReplies(t *testing.T) {
	handler := &countingHandler{}
	client, _ := newConnectionPair(t, nil, handler, nil, nil)

	reply, err := client.GlobalRequest(context.Background(), "probe@example.test", []byte("abc"), true)
	if err != nil {
		t.Fatal(err)
	}
	if !reply.Success || string(reply.Data) != "re:abc" {
		t.Fatalf("reply %+v", reply)
	}

	reply, err = client.GlobalRequest(context.Background(), "fail@example.test", nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if reply.Success {
		t.Fatal("failure request succeeded")
	}

	if _, err := client.GlobalRequest(context.Background(), "noreply@example.test", nil, false); err != nil {
		t.Fatal(err)
	}
}

func TestGlobalRequestReplyFIFO(t *testing.T) {
	handler := &countingHandler{}
	client, _ := newConnectionPair(t, nil, handler, nil, nil)

	const n = 8
	type indexed struct {
		i     int
		reply *GlobalReply
	}
	results := make(chan indexed, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data := []byte{byte(i)}
			reply, err := client.GlobalRequest(context.Background(), "probe@example.test", data, true)
			if err != nil {
				t.Errorf("request %d: %v", i, err)
				return
			}
			results <- indexed{i, reply}
		}(i)
	}
	wg.Wait()
	close(results)

	for r := range results {
		want := []byte{'r', 'e', ':', byte(r.i)}
		if !bytes.Equal(r.reply.Data, want) {
			t.Fatalf("request %d got reply %x", r.i, r.reply.Data)
		}
	}
}

func TestConnectionCloseFailsChannels(t *testing.T) {
	handler := &echoHandler{}
	client, server := newConnectionPair(t, nil, handler, nil, nil)

	ch, err := client.OpenDirectTcpIp(context.Background(), DirectTcpIpParams{DstHost: "d", DstPort: 1})
	if err != nil {
		t.Fatal(err)
	}

	server.Close()

	// The terminal error reaches the in-flight channel.
	deadline := time.After(10 * time.Second)
	for {
		if _, err := ch.Read(make([]byte, 16)); err != nil && err != io.EOF {
			break
		}
		select {
		case <-deadline:
			t.Fatal("channel read never failed")
		default:
		}
	}
	if client.Err() == nil {
		t.Fatal("client connection has no terminal error")
	}
}

func TestOpenSessionRejectedByDefaultHandler(t *testing.T) {
	client, _ := newConnectionPair(t, nil, RejectingHandler{}, nil, nil)

	_, err := client.OpenSession(context.Background())
	var failure *OpenFailure
	if !errors.As(err, &failure) {
		t.Fatalf("err = %v", err)
	}
}
