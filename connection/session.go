package connection

import (
	"io"

	"github.com/postalsys/sshmux/wire"
)

// Session is the client handle of a session channel. Writes feed the
// remote stdin, reads drain stdout, Stderr drains the extended stream.
type Session struct {
	ch *channel
}

// Setenv sends an env request. Failures are reported but rarely fatal;
// servers commonly refuse unlisted variables.
func (s *Session) Setenv(name, value string) error {
	data, err := wire.Marshal(&wire.EnvRequest{Name: name, Value: value})
	if err != nil {
		return err
	}
	ok, err := s.ch.request(wire.RequestTypeEnv, true, data)
	if err != nil {
		return err
	}
	if !ok {
		return &RequestFailedError{Request: wire.RequestTypeEnv}
	}
	return nil
}

// RequestPty asks for a pseudo-terminal with the given geometry.
func (s *Session) RequestPty(term string, cols, rows uint32, modes []byte) error {
	data, err := wire.Marshal(&wire.PtyRequest{
		Term:       term,
		WidthCols:  cols,
		HeightRows: rows,
		Modes:      modes,
	})
	if err != nil {
		return err
	}
	ok, err := s.ch.request(wire.RequestTypePtyReq, true, data)
	if err != nil {
		return err
	}
	if !ok {
		return &RequestFailedError{Request: wire.RequestTypePtyReq}
	}
	return nil
}

// Shell starts the user's default shell.
func (s *Session) Shell() error {
	ok, err := s.ch.request(wire.RequestTypeShell, true, nil)
	if err != nil {
		return err
	}
	if !ok {
		return &RequestFailedError{Request: wire.RequestTypeShell}
	}
	return nil
}

// Exec starts a command.
func (s *Session) Exec(command string) error {
	data, err := wire.Marshal(&wire.ExecRequest{Command: command})
	if err != nil {
		return err
	}
	ok, err := s.ch.request(wire.RequestTypeExec, true, data)
	if err != nil {
		return err
	}
	if !ok {
		return &RequestFailedError{Request: wire.RequestTypeExec}
	}
	return nil
}

// Subsystem starts a named subsystem.
func (s *Session) Subsystem(name string) error {
	data, err := wire.Marshal(&wire.SubsystemRequest{Name: name})
	if err != nil {
		return err
	}
	ok, err := s.ch.request(wire.RequestTypeSubsystem, true, data)
	if err != nil {
		return err
	}
	if !ok {
		return &RequestFailedError{Request: wire.RequestTypeSubsystem}
	}
	return nil
}

// Signal delivers a signal to the remote process. No reply is defined.
func (s *Session) Signal(signal string) error {
	data, err := wire.Marshal(&wire.SignalRequest{Signal: signal})
	if err != nil {
		return err
	}
	_, err = s.ch.request(wire.RequestTypeSignal, false, data)
	return err
}

// Write sends stdin data.
func (s *Session) Write(p []byte) (int, error) {
	return s.ch.write(p, false)
}

// Read reads stdout data.
func (s *Session) Read(p []byte) (int, error) {
	return s.ch.read(p, false)
}

// Stderr returns the extended (stderr) stream.
func (s *Session) Stderr() io.Reader {
	return &stderrReader{ch: s.ch}
}

// ExitResult returns the exit notification once it arrived, nil before.
func (s *Session) ExitResult() *ExitResult {
	return s.ch.exitResult()
}

// CloseWrite half-closes stdin.
func (s *Session) CloseWrite() error {
	return s.ch.sendEof()
}

// Close runs the graceful close sequence.
func (s *Session) Close() error {
	return s.ch.close()
}

type stderrReader struct {
	ch *channel
}

func (r *stderrReader) Read(p []byte) (int, error) {
	return r.ch.read(p, true)
}

// RequestFailedError reports a CHANNEL_FAILURE reply to a session
// request.
type RequestFailedError struct {
	Request string
}

func (e *RequestFailedError) Error() string {
	return "connection: request failed: " + e.Request
}

// SessionHandler receives the in-channel requests of a server-side
// session. The boolean results answer want-reply requests.
type SessionHandler interface {
	OnEnv(name, value string) bool
	OnPtyReq(req *wire.PtyRequest) bool
	OnShell() bool
	OnExec(command string) bool
	OnSubsystem(name string) bool
	OnSignal(signal string)
}

// ServerSession is the server handle of a session channel. Writes feed
// stdout, Stderr feeds the extended stream, reads drain stdin.
type ServerSession struct {
	ch *channel

	sentExit bool
}

// Write sends stdout data.
func (s *ServerSession) Write(p []byte) (int, error) {
	return s.ch.write(p, false)
}

// Stderr returns a writer for the extended (stderr) stream.
func (s *ServerSession) Stderr() io.Writer {
	return &stderrWriter{ch: s.ch}
}

// Read reads stdin data.
func (s *ServerSession) Read(p []byte) (int, error) {
	return s.ch.read(p, false)
}

// SendExitStatus reports a normal process exit. At most one exit
// notification is sent; later calls are no-ops.
func (s *ServerSession) SendExitStatus(status uint32) error {
	if s.sentExit {
		return nil
	}
	s.sentExit = true
	data, err := wire.Marshal(&wire.ExitStatusRequest{Status: status})
	if err != nil {
		return err
	}
	_, err = s.ch.request(wire.RequestTypeExitStatus, false, data)
	return err
}

// SendExitSignal reports process termination by signal. At most one
// exit notification is sent; later calls are no-ops.
func (s *ServerSession) SendExitSignal(signal string, coreDumped bool, message string) error {
	if s.sentExit {
		return nil
	}
	s.sentExit = true
	data, err := wire.Marshal(&wire.ExitSignalRequest{
		Signal:     signal,
		CoreDumped: coreDumped,
		Message:    message,
	})
	if err != nil {
		return err
	}
	_, err = s.ch.request(wire.RequestTypeExitSignal, false, data)
	return err
}

// CloseWrite half-closes the outbound direction.
func (s *ServerSession) CloseWrite() error {
	return s.ch.sendEof()
}

// Close runs the graceful close sequence.
func (s *ServerSession) Close() error {
	return s.ch.close()
}

type stderrWriter struct {
	ch *channel
}

func (w *stderrWriter) Write(p []byte) (int, error) {
	return w.ch.write(p, true)
}
