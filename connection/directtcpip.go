package connection

// DirectTcpIpParams is the channel-type specific data of a direct-tcpip
// open: where the receiver should connect and on whose behalf.
type DirectTcpIpParams struct {
	DstHost string
	DstPort uint32
	SrcAddr string
	SrcPort uint32
}

// DirectTcpIp is a bidirectional byte pipe to the forwarded endpoint.
// It is handed out both to the opener and, on the receiving side, to
// the ConnectionHandler. Read returns io.EOF after the peer's EOF or
// CLOSE; Write fails once the local side half-closed.
type DirectTcpIp struct {
	ch     *channel
	params DirectTcpIpParams
}

// Params returns the open parameters.
func (d *DirectTcpIp) Params() DirectTcpIpParams {
	return d.params
}

// Read reads from the channel's inbound stream.
func (d *DirectTcpIp) Read(p []byte) (int, error) {
	return d.ch.read(p, false)
}

// Write writes to the channel, blocking on the peer's window.
func (d *DirectTcpIp) Write(p []byte) (int, error) {
	return d.ch.write(p, false)
}

// CloseWrite half-closes the outbound direction with CHANNEL_EOF.
func (d *DirectTcpIp) CloseWrite() error {
	return d.ch.sendEof()
}

// Close runs the graceful close sequence: EOF, then CLOSE. The channel
// slot is reclaimed once the peer's CLOSE has crossed ours.
func (d *DirectTcpIp) Close() error {
	return d.ch.close()
}
