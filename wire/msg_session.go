package wire

// Session channel request type names.
const (
	RequestTypeEnv        = "env"
	RequestTypePtyReq     = "pty-req"
	RequestTypeShell      = "shell"
	RequestTypeExec       = "exec"
	RequestTypeSubsystem  = "subsystem"
	RequestTypeSignal     = "signal"
	RequestTypeExitStatus = "exit-status"
	RequestTypeExitSignal = "exit-signal"
)

// The payloads below travel as the Data tail of a CHANNEL_REQUEST and
// therefore carry no message number of their own.

// EnvRequest sets an environment variable before shell/exec.
type EnvRequest struct {
	Name  string
	Value string
}

func (m *EnvRequest) Encode(e Encoder) {
	e.PushString(m.Name)
	e.PushString(m.Value)
}

func (m *EnvRequest) Size() int { return EncodedSize(m) }

func (m *EnvRequest) Decode(d *Decoder) bool {
	ok := false
	if m.Name, ok = d.TakeString(); !ok {
		return false
	}
	m.Value, ok = d.TakeString()
	return ok
}

// PtyRequest asks for pseudo-terminal allocation.
type PtyRequest struct {
	Term         string
	WidthCols    uint32
	HeightRows   uint32
	WidthPixels  uint32
	HeightPixels uint32
	Modes        []byte
}

func (m *PtyRequest) Encode(e Encoder) {
	e.PushString(m.Term)
	e.PushU32(m.WidthCols)
	e.PushU32(m.HeightRows)
	e.PushU32(m.WidthPixels)
	e.PushU32(m.HeightPixels)
	e.PushFramed(m.Modes)
}

func (m *PtyRequest) Size() int { return EncodedSize(m) }

func (m *PtyRequest) Decode(d *Decoder) bool {
	ok := false
	if m.Term, ok = d.TakeString(); !ok {
		return false
	}
	if m.WidthCols, ok = d.TakeU32(); !ok {
		return false
	}
	if m.HeightRows, ok = d.TakeU32(); !ok {
		return false
	}
	if m.WidthPixels, ok = d.TakeU32(); !ok {
		return false
	}
	if m.HeightPixels, ok = d.TakeU32(); !ok {
		return false
	}
	m.Modes, ok = d.TakeFramed()
	return ok
}

// ExecRequest starts a command.
type ExecRequest struct {
	Command string
}

func (m *ExecRequest) Encode(e Encoder) {
	e.PushString(m.Command)
}

func (m *ExecRequest) Size() int { return EncodedSize(m) }

func (m *ExecRequest) Decode(d *Decoder) bool {
	var ok bool
	m.Command, ok = d.TakeString()
	return ok
}

// SubsystemRequest starts a named subsystem.
type SubsystemRequest struct {
	Name string
}

func (m *SubsystemRequest) Encode(e Encoder) {
	e.PushString(m.Name)
}

func (m *SubsystemRequest) Size() int { return EncodedSize(m) }

func (m *SubsystemRequest) Decode(d *Decoder) bool {
	var ok bool
	m.Name, ok = d.TakeString()
	return ok
}

// SignalRequest delivers a signal to the remote process. The name is
// the signal without the "SIG" prefix.
type SignalRequest struct {
	Signal string
}

func (m *SignalRequest) Encode(e Encoder) {
	e.PushString(m.Signal)
}

func (m *SignalRequest) Size() int { return EncodedSize(m) }

func (m *SignalRequest) Decode(d *Decoder) bool {
	var ok bool
	m.Signal, ok = d.TakeString()
	return ok
}

// ExitStatusRequest reports the process exit code. Sent at most once,
// before CHANNEL_CLOSE.
type ExitStatusRequest struct {
	Status uint32
}

func (m *ExitStatusRequest) Encode(e Encoder) {
	e.PushU32(m.Status)
}

func (m *ExitStatusRequest) Size() int { return EncodedSize(m) }

func (m *ExitStatusRequest) Decode(d *Decoder) bool {
	var ok bool
	m.Status, ok = d.TakeU32()
	return ok
}

// ExitSignalRequest reports process termination by signal.
type ExitSignalRequest struct {
	Signal     string
	CoreDumped bool
	Message    string
	Language   string
}

func (m *ExitSignalRequest) Encode(e Encoder) {
	e.PushString(m.Signal)
	e.PushBool(m.CoreDumped)
	e.PushString(m.Message)
	e.PushString(m.Language)
}

func (m *ExitSignalRequest) Size() int { return EncodedSize(m) }

func (m *ExitSignalRequest) Decode(d *Decoder) bool {
	ok := false
	if m.Signal, ok = d.TakeString(); !ok {
		return false
	}
	if m.CoreDumped, ok = d.TakeBool(); !ok {
		return false
	}
	if m.Message, ok = d.TakeString(); !ok {
		return false
	}
	m.Language, ok = d.TakeString()
	return ok
}
