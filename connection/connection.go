// Package connection implements the ssh-connection service: channel
// multiplexing with per-channel flow control, session and direct-tcpip
// channel types, and global request correlation.
package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/postalsys/sshmux/internal/logging"
	"github.com/postalsys/sshmux/transport"
	"github.com/postalsys/sshmux/wire"
)

// GlobalReply is the answer to a global request with want-reply.
type GlobalReply struct {
	Success bool
	Data    []byte
}

// Connection multiplexes channels over an authenticated transport. A
// single dispatch goroutine owns the channel map; application handles
// communicate with it through the channel state.
type Connection struct {
	t       *transport.Transport
	cfg     *Config
	handler ConnectionHandler
	logger  *slog.Logger

	mu       sync.Mutex
	channels *channelMap
	err      error

	// gmu serializes outbound global requests so the reply FIFO
	// matches the wire order.
	gmu           sync.Mutex
	globalReplies []chan GlobalReply

	closed    chan struct{}
	closeOnce sync.Once
}

// New runs the connection service over an authenticated transport and
// starts the dispatch goroutine. A nil handler rejects all inbound
// requests.
func New(t *transport.Transport, handler ConnectionHandler, cfg *Config) *Connection {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if handler == nil {
		handler = RejectingHandler{}
	}
	c := &Connection{
		t:        t,
		cfg:      cfg,
		handler:  handler,
		logger:   logging.ForRole(cfg.logger(), t.Role().String()),
		channels: newChannelMap(cfg.MaxChannels),
		closed:   make(chan struct{}),
	}
	go c.run()
	return c
}

// SessionID returns the transport's session identifier.
func (c *Connection) SessionID() []byte {
	return c.t.SessionID()
}

// Done is closed when the connection has terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.closed
}

// Err returns the terminal error, or nil while the connection is alive.
func (c *Connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// OpenDirectTcpIp opens a direct-tcpip channel. An *OpenFailure return
// is recoverable; the connection stays usable.
func (c *Connection) OpenDirectTcpIp(ctx context.Context, params DirectTcpIpParams) (*DirectTcpIp, error) {
	data, err := wire.Marshal(&wire.DirectTcpIpOpen{
		DstHost: params.DstHost,
		DstPort: params.DstPort,
		SrcAddr: params.SrcAddr,
		SrcPort: params.SrcPort,
	})
	if err != nil {
		return nil, err
	}
	ch, err := c.openChannel(ctx, wire.ChannelTypeDirectTcpIp, data)
	if err != nil {
		return nil, err
	}
	return &DirectTcpIp{ch: ch, params: params}, nil
}

// OpenSession opens a session channel.
func (c *Connection) OpenSession(ctx context.Context) (*Session, error) {
	ch, err := c.openChannel(ctx, wire.ChannelTypeSession, nil)
	if err != nil {
		return nil, err
	}
	return &Session{ch: ch}, nil
}

// openChannel allocates a local id, sends CHANNEL_OPEN and waits for
// the peer's verdict.
func (c *Connection) openChannel(ctx context.Context, chanType string, data []byte) (*channel, error) {
	ch := newChannel(c, chanType)
	ch.opening = true
	ch.openResult = make(chan error, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	id, ok := c.channels.allocate(ch)
	if !ok {
		c.mu.Unlock()
		return nil, ErrResourceExhaustion
	}
	ch.localID = id
	c.mu.Unlock()

	open := &wire.ChannelOpen{
		ChannelType:       chanType,
		SenderChannel:     id,
		InitialWindowSize: c.cfg.ChannelMaxBufferSize,
		MaximumPacketSize: c.cfg.ChannelMaxPacketSize,
		Data:              data,
	}
	if err := c.writeMessage(open); err != nil {
		c.dropChannel(id)
		return nil, err
	}

	select {
	case err := <-ch.openResult:
		if err != nil {
			c.dropChannel(id)
			return nil, err
		}
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.ChannelsOpened.Inc()
			c.cfg.Metrics.ChannelsActive.Inc()
		}
		c.logger.Debug("channel open",
			logging.KeyChannelID, id,
			"type", chanType)
		return ch, nil
	case <-ctx.Done():
		c.dropChannel(id)
		return nil, ctx.Err()
	}
}

// GlobalRequest sends a GLOBAL_REQUEST. With wantReply it blocks until
// the reply bound to it in FIFO order arrives.
func (c *Connection) GlobalRequest(ctx context.Context, name string, data []byte, wantReply bool) (*GlobalReply, error) {
	msg := &wire.GlobalRequest{Name: name, WantReply: wantReply, Data: data}

	if !wantReply {
		return nil, c.writeMessage(msg)
	}

	reply := make(chan GlobalReply, 1)
	c.gmu.Lock()
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		c.gmu.Unlock()
		return nil, err
	}
	if len(c.globalReplies) >= c.cfg.MaxQueuedRequests {
		c.mu.Unlock()
		c.gmu.Unlock()
		return nil, ErrResourceExhaustion
	}
	c.globalReplies = append(c.globalReplies, reply)
	c.mu.Unlock()
	err := c.writeMessage(msg)
	c.gmu.Unlock()
	if err != nil {
		return nil, err
	}

	select {
	case r, ok := <-reply:
		if !ok {
			return nil, c.Err()
		}
		return &r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Disconnect closes the connection gracefully with the given reason.
func (c *Connection) Disconnect(reason uint32, description string) error {
	err := c.t.Disconnect(reason, description)
	c.fail(c.t.Err())
	return err
}

// Close tears the connection down as an application-initiated
// disconnect.
func (c *Connection) Close() error {
	return c.Disconnect(wire.DisconnectByApplication, "")
}

// writeMessage sends a message on the underlying transport.
func (c *Connection) writeMessage(m wire.Message) error {
	return c.t.WriteMessage(m)
}

// run is the dispatch loop: it owns inbound traffic and the channel
// map transitions.
func (c *Connection) run() {
	for {
		payload, err := c.t.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		if err := c.dispatch(payload); err != nil {
			c.t.Disconnect(wire.DisconnectProtocolError, err.Error())
			c.fail(err)
			return
		}
	}
}

func (c *Connection) dispatch(payload []byte) error {
	switch payload[0] {
	case wire.NumGlobalRequest:
		msg := &wire.GlobalRequest{}
		if err := wire.Unmarshal(payload, msg); err != nil {
			return err
		}
		return c.handleGlobalRequest(msg)
	case wire.NumRequestSuccess:
		msg := &wire.RequestSuccess{}
		if err := wire.Unmarshal(payload, msg); err != nil {
			return err
		}
		return c.handleGlobalReply(true, msg.Data)
	case wire.NumRequestFailure:
		msg := &wire.RequestFailure{}
		if err := wire.Unmarshal(payload, msg); err != nil {
			return err
		}
		return c.handleGlobalReply(false, nil)
	case wire.NumChannelOpen:
		msg := &wire.ChannelOpen{}
		if err := wire.Unmarshal(payload, msg); err != nil {
			return err
		}
		return c.handleChannelOpen(msg)
	case wire.NumChannelOpenConfirmation:
		msg := &wire.ChannelOpenConfirmation{}
		if err := wire.Unmarshal(payload, msg); err != nil {
			return err
		}
		return c.handleOpenConfirmation(msg)
	case wire.NumChannelOpenFailure:
		msg := &wire.ChannelOpenFailure{}
		if err := wire.Unmarshal(payload, msg); err != nil {
			return err
		}
		return c.handleOpenFailure(msg)
	case wire.NumChannelWindowAdjust:
		msg := &wire.ChannelWindowAdjust{}
		if err := wire.Unmarshal(payload, msg); err != nil {
			return err
		}
		ch, err := c.lookup(msg.RecipientChannel)
		if err != nil {
			return err
		}
		return ch.handleWindowAdjust(msg.BytesToAdd)
	case wire.NumChannelData:
		msg := &wire.ChannelData{}
		if err := wire.Unmarshal(payload, msg); err != nil {
			return err
		}
		ch, err := c.lookup(msg.RecipientChannel)
		if err != nil {
			return err
		}
		return ch.handleData(msg.Data)
	case wire.NumChannelExtendedData:
		msg := &wire.ChannelExtendedData{}
		if err := wire.Unmarshal(payload, msg); err != nil {
			return err
		}
		ch, err := c.lookup(msg.RecipientChannel)
		if err != nil {
			return err
		}
		return ch.handleExtendedData(msg.DataTypeCode, msg.Data)
	case wire.NumChannelEof:
		msg := &wire.ChannelEof{}
		if err := wire.Unmarshal(payload, msg); err != nil {
			return err
		}
		ch, err := c.lookup(msg.RecipientChannel)
		if err != nil {
			return err
		}
		return ch.handleEof()
	case wire.NumChannelClose:
		msg := &wire.ChannelClose{}
		if err := wire.Unmarshal(payload, msg); err != nil {
			return err
		}
		ch, err := c.lookup(msg.RecipientChannel)
		if err != nil {
			return err
		}
		freeSlot, err := ch.handleClose()
		if err != nil {
			return err
		}
		if freeSlot {
			c.reclaim(ch)
		}
		return nil
	case wire.NumChannelRequest:
		msg := &wire.ChannelRequest{}
		if err := wire.Unmarshal(payload, msg); err != nil {
			return err
		}
		ch, err := c.lookup(msg.RecipientChannel)
		if err != nil {
			return err
		}
		return c.handleChannelRequest(ch, msg)
	case wire.NumChannelSuccess:
		msg := &wire.ChannelSuccess{}
		if err := wire.Unmarshal(payload, msg); err != nil {
			return err
		}
		ch, err := c.lookup(msg.RecipientChannel)
		if err != nil {
			return err
		}
		return ch.handleReply(true)
	case wire.NumChannelFailure:
		msg := &wire.ChannelFailure{}
		if err := wire.Unmarshal(payload, msg); err != nil {
			return err
		}
		ch, err := c.lookup(msg.RecipientChannel)
		if err != nil {
			return err
		}
		return ch.handleReply(false)
	default:
		return fmt.Errorf("connection: unexpected %s", wire.MessageName(payload[0]))
	}
}

func (c *Connection) lookup(id uint32) (*channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := c.channels.get(id)
	if ch == nil {
		return nil, fmt.Errorf("%w: %d", ErrChannelUnknown, id)
	}
	return ch, nil
}

func (c *Connection) handleGlobalRequest(msg *wire.GlobalRequest) error {
	c.logger.Debug("global request",
		logging.KeyRequest, msg.Name,
		"want_reply", msg.WantReply)
	if !msg.WantReply {
		c.handler.OnRequest(msg.Name, msg.Data)
		return nil
	}
	ok, data := c.handler.OnRequestWantReply(msg.Name, msg.Data)
	if ok {
		return c.writeMessage(&wire.RequestSuccess{Data: data})
	}
	return c.writeMessage(&wire.RequestFailure{})
}

func (c *Connection) handleGlobalReply(success bool, data []byte) error {
	c.mu.Lock()
	if len(c.globalReplies) == 0 {
		c.mu.Unlock()
		return ErrGlobalReplyUnexpected
	}
	reply := c.globalReplies[0]
	c.globalReplies = c.globalReplies[1:]
	c.mu.Unlock()
	reply <- GlobalReply{Success: success, Data: data}
	return nil
}

func (c *Connection) handleChannelOpen(msg *wire.ChannelOpen) error {
	c.mu.Lock()
	if dup := c.channels.byRemoteID(msg.SenderChannel); dup != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: sender channel %d", ErrChannelIDInUse, msg.SenderChannel)
	}
	c.mu.Unlock()

	reject := func(reason uint32, description string) error {
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.OpenFailures.WithLabelValues(fmt.Sprint(reason)).Inc()
		}
		return c.writeMessage(&wire.ChannelOpenFailure{
			RecipientChannel: msg.SenderChannel,
			Reason:           reason,
			Description:      description,
		})
	}

	switch msg.ChannelType {
	case wire.ChannelTypeDirectTcpIp, wire.ChannelTypeSession:
	default:
		return reject(OpenUnknownChannelType, "unknown channel type")
	}

	ch := newChannel(c, msg.ChannelType)
	ch.remoteID = msg.SenderChannel
	ch.remoteKnown = true
	ch.remoteWindow = msg.InitialWindowSize
	ch.remoteMaxPacket = msg.MaximumPacketSize

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	id, ok := c.channels.allocate(ch)
	if !ok {
		c.mu.Unlock()
		return reject(OpenResourceShortage, "channel limit reached")
	}
	ch.localID = id
	c.mu.Unlock()

	var failure *OpenFailure
	switch msg.ChannelType {
	case wire.ChannelTypeDirectTcpIp:
		open := &wire.DirectTcpIpOpen{}
		if err := wire.Unmarshal(msg.Data, open); err != nil {
			c.dropChannel(id)
			return reject(OpenConnectFailed, "malformed direct-tcpip data")
		}
		params := DirectTcpIpParams{
			DstHost: open.DstHost,
			DstPort: open.DstPort,
			SrcAddr: open.SrcAddr,
			SrcPort: open.SrcPort,
		}
		failure = c.handler.OnDirectTcpIpRequest(params, &DirectTcpIp{ch: ch, params: params})
	case wire.ChannelTypeSession:
		var handler SessionHandler
		sess := &ServerSession{ch: ch}
		handler, failure = c.handler.OnSessionRequest(sess)
		ch.sessionHandler = handler
	}

	if failure != nil {
		c.dropChannel(id)
		return reject(failure.Reason, failure.Description)
	}

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.ChannelsOpened.Inc()
		c.cfg.Metrics.ChannelsActive.Inc()
	}
	c.logger.Debug("channel accepted",
		logging.KeyChannelID, id,
		logging.KeyRemoteID, msg.SenderChannel,
		"type", msg.ChannelType)
	return c.writeMessage(&wire.ChannelOpenConfirmation{
		RecipientChannel:  msg.SenderChannel,
		SenderChannel:     id,
		InitialWindowSize: c.cfg.ChannelMaxBufferSize,
		MaximumPacketSize: c.cfg.ChannelMaxPacketSize,
	})
}

func (c *Connection) handleOpenConfirmation(msg *wire.ChannelOpenConfirmation) error {
	ch, err := c.lookup(msg.RecipientChannel)
	if err != nil {
		return err
	}
	ch.mu.Lock()
	opening := ch.opening
	ch.mu.Unlock()
	if !opening {
		return fmt.Errorf("%w: confirmation for %d", ErrChannelOpenUnexpected, msg.RecipientChannel)
	}
	ch.open(msg.SenderChannel, msg.InitialWindowSize, msg.MaximumPacketSize)
	ch.openResult <- nil
	return nil
}

func (c *Connection) handleOpenFailure(msg *wire.ChannelOpenFailure) error {
	ch, err := c.lookup(msg.RecipientChannel)
	if err != nil {
		return err
	}
	ch.mu.Lock()
	opening := ch.opening
	ch.opening = false
	ch.mu.Unlock()
	if !opening {
		return fmt.Errorf("%w: failure for %d", ErrChannelOpenUnexpected, msg.RecipientChannel)
	}
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.OpenFailures.WithLabelValues(fmt.Sprint(msg.Reason)).Inc()
	}
	ch.openResult <- &OpenFailure{Reason: msg.Reason, Description: msg.Description}
	return nil
}

// handleChannelRequest dispatches an inbound CHANNEL_REQUEST and, when
// a reply is demanded, answers it in arrival order.
func (c *Connection) handleChannelRequest(ch *channel, msg *wire.ChannelRequest) error {
	ok := false
	switch {
	case ch.chanType == wire.ChannelTypeSession && ch.sessionHandler != nil:
		ok = c.dispatchSessionRequest(ch, msg)
	case ch.chanType == wire.ChannelTypeSession:
		ok = c.recordExit(ch, msg)
	}

	if !msg.WantReply {
		return nil
	}
	if ok {
		return c.writeMessage(&wire.ChannelSuccess{RecipientChannel: ch.remoteID})
	}
	return c.writeMessage(&wire.ChannelFailure{RecipientChannel: ch.remoteID})
}

// dispatchSessionRequest feeds a server-side session handler.
func (c *Connection) dispatchSessionRequest(ch *channel, msg *wire.ChannelRequest) bool {
	h := ch.sessionHandler
	switch msg.RequestType {
	case wire.RequestTypeEnv:
		req := &wire.EnvRequest{}
		if err := wire.Unmarshal(msg.Data, req); err != nil {
			return false
		}
		return h.OnEnv(req.Name, req.Value)
	case wire.RequestTypePtyReq:
		req := &wire.PtyRequest{}
		if err := wire.Unmarshal(msg.Data, req); err != nil {
			return false
		}
		return h.OnPtyReq(req)
	case wire.RequestTypeShell:
		return h.OnShell()
	case wire.RequestTypeExec:
		req := &wire.ExecRequest{}
		if err := wire.Unmarshal(msg.Data, req); err != nil {
			return false
		}
		return h.OnExec(req.Command)
	case wire.RequestTypeSubsystem:
		req := &wire.SubsystemRequest{}
		if err := wire.Unmarshal(msg.Data, req); err != nil {
			return false
		}
		return h.OnSubsystem(req.Name)
	case wire.RequestTypeSignal:
		req := &wire.SignalRequest{}
		if err := wire.Unmarshal(msg.Data, req); err != nil {
			return false
		}
		h.OnSignal(req.Signal)
		return true
	default:
		return false
	}
}

// recordExit stores the at-most-once exit notification on a client-side
// session channel.
func (c *Connection) recordExit(ch *channel, msg *wire.ChannelRequest) bool {
	switch msg.RequestType {
	case wire.RequestTypeExitStatus:
		req := &wire.ExitStatusRequest{}
		if err := wire.Unmarshal(msg.Data, req); err != nil {
			return false
		}
		ch.mu.Lock()
		if ch.exit == nil {
			status := req.Status
			ch.exit = &ExitResult{Status: &status}
		}
		ch.mu.Unlock()
		return true
	case wire.RequestTypeExitSignal:
		req := &wire.ExitSignalRequest{}
		if err := wire.Unmarshal(msg.Data, req); err != nil {
			return false
		}
		ch.mu.Lock()
		if ch.exit == nil {
			ch.exit = &ExitResult{Signal: req}
		}
		ch.mu.Unlock()
		return true
	default:
		return false
	}
}

// dropChannel frees a slot for a channel that never reached the open
// state.
func (c *Connection) dropChannel(id uint32) {
	c.mu.Lock()
	c.channels.free(id)
	c.mu.Unlock()
}

// reclaim frees the slot of a channel whose CHANNEL_CLOSE messages have
// crossed.
func (c *Connection) reclaim(ch *channel) {
	c.mu.Lock()
	if ch.freed {
		c.mu.Unlock()
		return
	}
	ch.freed = true
	c.channels.free(ch.localID)
	c.mu.Unlock()
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.ChannelsClosed.Inc()
		c.cfg.Metrics.ChannelsActive.Dec()
	}
	c.logger.Debug("channel closed", logging.KeyChannelID, ch.localID)
}

// fail broadcasts the terminal error to every channel and pending
// operation.
func (c *Connection) fail(err error) {
	if err == nil {
		err = ErrDropped
	}
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		channels := c.channels
		replies := c.globalReplies
		c.globalReplies = nil
		c.mu.Unlock()

		channels.each(func(ch *channel) {
			ch.fail(err)
		})
		for _, reply := range replies {
			close(reply)
		}
		close(c.closed)
		c.handler.OnError(err)
		c.logger.Debug("connection closed", logging.KeyError, err)
	})
}
