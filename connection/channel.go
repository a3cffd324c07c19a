package connection

import (
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/postalsys/sshmux/wire"
)

// channel is the shared state of one multiplexed channel. The
// connection's dispatch goroutine owns the inbound transitions; the
// application side reads and writes through the exported handle types.
type channel struct {
	conn     *Connection
	chanType string

	localID     uint32
	remoteID    uint32
	remoteKnown bool

	mu    sync.Mutex
	rcond *sync.Cond
	wcond *sync.Cond

	// Inbound accounting: localWindow is the credit currently granted
	// to the peer; localWindow plus the buffered bytes never exceeds
	// localMaxBuffer.
	localWindow    uint32
	localMaxBuffer uint32
	localMaxPacket uint32
	readBuf        []byte
	extBuf         []byte
	eofReceived    bool
	closeReceived  bool

	// Outbound accounting: remoteWindow is what the peer still
	// accepts; every data byte sent decrements it.
	remoteWindow    uint32
	remoteMaxPacket uint32
	eofSent         bool
	closeSent       bool
	writeMu         sync.Mutex

	// FIFO of outstanding want-reply channel requests we sent.
	pendingReplies []chan bool

	// Open handshake, client side.
	opening    bool
	openResult chan error

	// Session state.
	exit           *ExitResult
	sessionHandler SessionHandler

	err   error
	freed bool
}

// ExitResult carries the at-most-once exit notification of a session.
type ExitResult struct {
	// Status is set when the process exited normally.
	Status *uint32
	// Signal is set when the process was terminated by a signal.
	Signal *wire.ExitSignalRequest
}

func newChannel(conn *Connection, chanType string) *channel {
	ch := &channel{
		conn:           conn,
		chanType:       chanType,
		localWindow:    conn.cfg.ChannelMaxBufferSize,
		localMaxBuffer: conn.cfg.ChannelMaxBufferSize,
		localMaxPacket: conn.cfg.ChannelMaxPacketSize,
	}
	ch.rcond = sync.NewCond(&ch.mu)
	ch.wcond = sync.NewCond(&ch.mu)
	return ch
}

// open records the peer's parameters once the channel is confirmed.
func (ch *channel) open(remoteID, remoteWindow, remoteMaxPacket uint32) {
	ch.mu.Lock()
	ch.remoteID = remoteID
	ch.remoteKnown = true
	ch.remoteWindow = remoteWindow
	ch.remoteMaxPacket = remoteMaxPacket
	ch.opening = false
	ch.mu.Unlock()
}

// fail terminates the channel with the connection's terminal error.
func (ch *channel) fail(err error) {
	ch.mu.Lock()
	if ch.err == nil {
		ch.err = err
	}
	for _, reply := range ch.pendingReplies {
		close(reply)
	}
	ch.pendingReplies = nil
	if ch.openResult != nil && ch.opening {
		ch.opening = false
		select {
		case ch.openResult <- err:
		default:
		}
	}
	ch.rcond.Broadcast()
	ch.wcond.Broadcast()
	ch.mu.Unlock()
}

// handleWindowAdjust credits the outbound window.
func (ch *channel) handleWindowAdjust(n uint32) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if uint64(ch.remoteWindow)+uint64(n) > math.MaxUint32 {
		return fmt.Errorf("%w: adjust by %d", ErrChannelWindowOverflow, n)
	}
	ch.remoteWindow += n
	ch.wcond.Broadcast()
	return nil
}

// handleData consumes inbound window and buffers the data.
func (ch *channel) handleData(data []byte) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.eofReceived || ch.closeReceived {
		return ErrChannelDataUnexpected
	}
	if uint32(len(data)) > ch.localMaxPacket {
		return fmt.Errorf("%w: %d bytes", ErrChannelPacketTooLarge, len(data))
	}
	if uint32(len(data)) > ch.localWindow {
		return fmt.Errorf("%w: %d bytes, window %d", ErrChannelWindowExceeded, len(data), ch.localWindow)
	}
	ch.localWindow -= uint32(len(data))
	ch.readBuf = append(ch.readBuf, data...)
	ch.rcond.Broadcast()
	return nil
}

// handleExtendedData is handleData for the stderr stream of a session.
func (ch *channel) handleExtendedData(code uint32, data []byte) error {
	if ch.chanType != wire.ChannelTypeSession || code != wire.ExtendedDataStderr {
		return ErrChannelExtendedDataUnexpected
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.eofReceived || ch.closeReceived {
		return ErrChannelDataUnexpected
	}
	if uint32(len(data)) > ch.localMaxPacket {
		return fmt.Errorf("%w: %d bytes", ErrChannelPacketTooLarge, len(data))
	}
	if uint32(len(data)) > ch.localWindow {
		return fmt.Errorf("%w: %d bytes, window %d", ErrChannelWindowExceeded, len(data), ch.localWindow)
	}
	ch.localWindow -= uint32(len(data))
	ch.extBuf = append(ch.extBuf, data...)
	ch.rcond.Broadcast()
	return nil
}

// handleEof marks the inbound direction half-closed.
func (ch *channel) handleEof() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.eofReceived || ch.closeReceived {
		return ErrChannelEofUnexpected
	}
	ch.eofReceived = true
	ch.rcond.Broadcast()
	return nil
}

// handleClose marks the channel closed by the peer, answers with our
// own CHANNEL_CLOSE if still outstanding and reports whether the slot
// can be reclaimed.
func (ch *channel) handleClose() (freeSlot bool, err error) {
	ch.mu.Lock()
	if ch.closeReceived {
		ch.mu.Unlock()
		return false, ErrChannelCloseUnexpected
	}
	ch.closeReceived = true
	ch.eofReceived = true
	needSend := !ch.closeSent
	if needSend {
		ch.closeSent = true
	}
	ch.rcond.Broadcast()
	ch.wcond.Broadcast()
	ch.mu.Unlock()

	if needSend {
		if err := ch.conn.writeMessage(&wire.ChannelClose{RecipientChannel: ch.remoteID}); err != nil {
			return false, err
		}
	}
	return true, nil
}

// handleReply binds a CHANNEL_SUCCESS/FAILURE to the oldest pending
// want-reply request.
func (ch *channel) handleReply(success bool) error {
	ch.mu.Lock()
	if len(ch.pendingReplies) == 0 {
		ch.mu.Unlock()
		return ErrChannelReplyUnexpected
	}
	reply := ch.pendingReplies[0]
	ch.pendingReplies = ch.pendingReplies[1:]
	ch.mu.Unlock()
	reply <- success
	return nil
}

// read copies buffered bytes out of the selected stream, granting
// window credit back to the peer as the buffer drains.
func (ch *channel) read(p []byte, ext bool) (int, error) {
	ch.mu.Lock()
	buf := &ch.readBuf
	if ext {
		buf = &ch.extBuf
	}
	for len(*buf) == 0 {
		if ch.err != nil {
			err := ch.err
			ch.mu.Unlock()
			return 0, err
		}
		if ch.eofReceived || ch.closeReceived {
			ch.mu.Unlock()
			return 0, io.EOF
		}
		ch.rcond.Wait()
	}
	n := copy(p, *buf)
	*buf = (*buf)[n:]
	inc := ch.windowIncrementLocked()
	if inc > 0 {
		ch.localWindow += inc
	}
	remoteID := ch.remoteID
	ch.mu.Unlock()

	if inc > 0 {
		if err := ch.conn.writeMessage(&wire.ChannelWindowAdjust{RecipientChannel: remoteID, BytesToAdd: inc}); err != nil {
			return n, err
		}
	}
	return n, nil
}

// windowIncrementLocked applies the refill policy: once the granted
// window falls below half the buffer limit, top it back up to whatever
// the buffered backlog leaves room for.
func (ch *channel) windowIncrementLocked() uint32 {
	if ch.localWindow >= ch.localMaxBuffer/2 {
		return 0
	}
	buffered := uint32(len(ch.readBuf) + len(ch.extBuf))
	if ch.localWindow+buffered >= ch.localMaxBuffer {
		return 0
	}
	return ch.localMaxBuffer - buffered - ch.localWindow
}

// write sends data on the selected stream, fragmenting to the peer's
// window and packet limits and blocking while the window is empty.
func (ch *channel) write(p []byte, ext bool) (int, error) {
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()

	written := 0
	for len(p) > 0 {
		ch.mu.Lock()
		for ch.err == nil && !ch.eofSent && !ch.closeSent && ch.remoteWindow == 0 {
			ch.wcond.Wait()
		}
		if ch.err != nil {
			err := ch.err
			ch.mu.Unlock()
			return written, err
		}
		if ch.eofSent || ch.closeSent {
			ch.mu.Unlock()
			return written, io.ErrClosedPipe
		}
		chunk := uint32(len(p))
		if chunk > ch.remoteWindow {
			chunk = ch.remoteWindow
		}
		if chunk > ch.remoteMaxPacket {
			chunk = ch.remoteMaxPacket
		}
		ch.remoteWindow -= chunk
		remoteID := ch.remoteID
		ch.mu.Unlock()

		var msg wire.Message
		if ext {
			msg = &wire.ChannelExtendedData{RecipientChannel: remoteID, DataTypeCode: wire.ExtendedDataStderr, Data: p[:chunk]}
		} else {
			msg = &wire.ChannelData{RecipientChannel: remoteID, Data: p[:chunk]}
		}
		if err := ch.conn.writeMessage(msg); err != nil {
			return written, err
		}
		written += int(chunk)
		p = p[chunk:]
	}
	return written, nil
}

// sendEof half-closes the outbound direction.
func (ch *channel) sendEof() error {
	ch.mu.Lock()
	if ch.eofSent || ch.closeSent || ch.err != nil {
		ch.mu.Unlock()
		return nil
	}
	ch.eofSent = true
	remoteID := ch.remoteID
	ch.wcond.Broadcast()
	ch.mu.Unlock()
	return ch.conn.writeMessage(&wire.ChannelEof{RecipientChannel: remoteID})
}

// close runs the graceful close: EOF, then CLOSE. The slot is reclaimed
// once the peer's CLOSE has crossed ours.
func (ch *channel) close() error {
	if err := ch.sendEof(); err != nil {
		return err
	}
	ch.mu.Lock()
	if ch.closeSent || ch.err != nil {
		ch.mu.Unlock()
		return nil
	}
	ch.closeSent = true
	bothClosed := ch.closeReceived
	remoteID := ch.remoteID
	ch.wcond.Broadcast()
	ch.mu.Unlock()

	if err := ch.conn.writeMessage(&wire.ChannelClose{RecipientChannel: remoteID}); err != nil {
		return err
	}
	if bothClosed {
		ch.conn.reclaim(ch)
	}
	return nil
}

// request sends a CHANNEL_REQUEST. With wantReply it blocks until the
// matching CHANNEL_SUCCESS/FAILURE arrives. writeMu keeps the reply
// FIFO aligned with the wire order under concurrent requests.
func (ch *channel) request(requestType string, wantReply bool, data []byte) (bool, error) {
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()

	var reply chan bool
	ch.mu.Lock()
	if ch.err != nil {
		err := ch.err
		ch.mu.Unlock()
		return false, err
	}
	if ch.closeSent {
		ch.mu.Unlock()
		return false, io.ErrClosedPipe
	}
	if wantReply {
		if len(ch.pendingReplies) >= ch.conn.cfg.MaxQueuedRequests {
			ch.mu.Unlock()
			return false, ErrResourceExhaustion
		}
		reply = make(chan bool, 1)
		ch.pendingReplies = append(ch.pendingReplies, reply)
	}
	remoteID := ch.remoteID
	ch.mu.Unlock()

	msg := &wire.ChannelRequest{
		RecipientChannel: remoteID,
		RequestType:      requestType,
		WantReply:        wantReply,
		Data:             data,
	}
	if err := ch.conn.writeMessage(msg); err != nil {
		return false, err
	}
	if !wantReply {
		return true, nil
	}
	ok, alive := <-reply
	if !alive {
		return false, ch.terminalErr()
	}
	return ok, nil
}

func (ch *channel) terminalErr() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.err != nil {
		return ch.err
	}
	return ErrDropped
}

// exitResult returns the recorded exit notification, if any.
func (ch *channel) exitResult() *ExitResult {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.exit
}
