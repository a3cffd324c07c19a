package connection

// ConnectionHandler receives the inbound events of a connection:
// global requests and channel open requests. Callbacks run on the
// connection's dispatch goroutine; long-running work belongs in a
// goroutine of the handler's own.
type ConnectionHandler interface {
	// OnRequest handles a global request without reply.
	OnRequest(name string, data []byte)

	// OnRequestWantReply handles a global request demanding a reply.
	// The returned data travels in the REQUEST_SUCCESS message.
	OnRequestWantReply(name string, data []byte) (ok bool, replyData []byte)

	// OnDirectTcpIpRequest decides an inbound direct-tcpip open. A nil
	// return accepts the channel; the handle is live once the
	// confirmation is on the wire.
	OnDirectTcpIpRequest(params DirectTcpIpParams, ch *DirectTcpIp) *OpenFailure

	// OnSessionRequest decides an inbound session open. On accept it
	// returns the handler for in-session requests and a nil failure. A
	// nil handler refuses every in-session request except exit-status
	// and exit-signal, which are recorded on the channel.
	OnSessionRequest(sess *ServerSession) (SessionHandler, *OpenFailure)

	// OnError is invoked once with the terminal error of the
	// connection.
	OnError(err error)
}

// RejectingHandler is the default ConnectionHandler: it rejects every
// request and channel open.
type RejectingHandler struct{}

func (RejectingHandler) OnRequest(name string, data []byte) {}

func (RejectingHandler) OnRequestWantReply(name string, data []byte) (bool, []byte) {
	return false, nil
}

func (RejectingHandler) OnDirectTcpIpRequest(params DirectTcpIpParams, ch *DirectTcpIp) *OpenFailure {
	return &OpenFailure{Reason: OpenAdministrativelyProhibited}
}

func (RejectingHandler) OnSessionRequest(sess *ServerSession) (SessionHandler, *OpenFailure) {
	return nil, &OpenFailure{Reason: OpenAdministrativelyProhibited}
}

func (RejectingHandler) OnError(err error) {}
