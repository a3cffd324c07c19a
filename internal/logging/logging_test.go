package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestBinaryAttrsRenderAsTruncatedHex(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter("debug", "text", &buf)

	sid := make([]byte, 32)
	for i := range sid {
		sid[i] = byte(i)
	}
	logger.Debug("kex complete", KeySessionID, sid)

	out := buf.String()
	if !strings.Contains(out, "session_id=0001020304050607...") {
		t.Fatalf("session id not hex-truncated: %s", out)
	}
	if strings.Contains(out, "1f") {
		t.Fatalf("trailing identifier bytes leaked: %s", out)
	}

	buf.Reset()
	logger.Debug("short blob", KeyMessage, []byte{0xab, 0xcd})
	if !strings.Contains(buf.String(), "message=abcd") {
		t.Fatalf("short blob not hex-encoded: %s", buf.String())
	}
}

func TestLevels(t *testing.T) {
	tests := []struct {
		level   string
		debug   bool
		errored bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"error", false, true},
		{"off", false, false},
		{"bogus", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWriter(tt.level, "text", &buf)
			logger.Debug("dbg")
			if got := strings.Contains(buf.String(), "dbg"); got != tt.debug {
				t.Errorf("debug emitted = %v", got)
			}
			buf.Reset()
			logger.Error("boom")
			if got := strings.Contains(buf.String(), "boom"); got != tt.errored {
				t.Errorf("error emitted = %v", got)
			}
		})
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter("info", "json", &buf)
	logger.Info("hello", KeyUser, "alice")
	out := buf.String()
	if !strings.HasPrefix(out, "{") || !strings.Contains(out, `"user":"alice"`) {
		t.Fatalf("not a json record: %s", out)
	}
}

func TestForRole(t *testing.T) {
	var buf bytes.Buffer
	logger := ForRole(NewWriter("info", "text", &buf), "server")
	logger.Info("hello")
	if !strings.Contains(buf.String(), "role=server") {
		t.Fatalf("role not attached: %s", buf.String())
	}
}

func TestNopDiscards(t *testing.T) {
	// Must not panic and must stay silent at every level.
	logger := Nop()
	logger.Debug("a")
	logger.Error("b", KeyError, "x")
}
