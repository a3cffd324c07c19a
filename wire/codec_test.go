package wire

import (
	"bytes"
	"testing"
)

func TestNameListRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		names []string
	}{
		{"empty", nil},
		{"single", []string{"curve25519-sha256"}},
		{"multiple", []string{"curve25519-sha256", "curve25519-sha256@libssh.org"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c countEncoder
			c.PushNameList(tt.names)
			buf := make([]byte, c.n)
			e := &bufEncoder{buf: buf}
			e.PushNameList(tt.names)
			if e.overflow || e.off != len(buf) {
				t.Fatalf("encode wrote %d bytes, sized %d", e.off, len(buf))
			}

			d := NewDecoder(buf)
			got, ok := d.TakeNameList()
			if !ok {
				t.Fatal("TakeNameList failed")
			}
			if len(got) != len(tt.names) {
				t.Fatalf("got %v, want %v", got, tt.names)
			}
			for i := range got {
				if got[i] != tt.names[i] {
					t.Fatalf("got %v, want %v", got, tt.names)
				}
			}
		})
	}
}

func TestMPIntEncoding(t *testing.T) {
	tests := []struct {
		name  string
		in    []byte
		wire  []byte
	}{
		{"zero", []byte{0}, []byte{0, 0, 0, 0}},
		{"small", []byte{0x7f}, []byte{0, 0, 0, 1, 0x7f}},
		{"high bit needs sign byte", []byte{0x80}, []byte{0, 0, 0, 2, 0, 0x80}},
		{"leading zeros stripped", []byte{0, 0, 0x01, 0x02}, []byte{0, 0, 0, 2, 0x01, 0x02}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c countEncoder
			c.PushMPInt(tt.in)
			buf := make([]byte, c.n)
			e := &bufEncoder{buf: buf}
			e.PushMPInt(tt.in)
			if e.overflow {
				t.Fatal("overflow")
			}
			if !bytes.Equal(buf, tt.wire) {
				t.Fatalf("encoded %x, want %x", buf, tt.wire)
			}

			d := NewDecoder(buf)
			got, ok := d.TakeMPInt()
			if !ok {
				t.Fatal("TakeMPInt failed")
			}
			want := tt.in
			for len(want) > 0 && want[0] == 0 {
				want = want[1:]
			}
			if !bytes.Equal(got, want) {
				t.Fatalf("decoded %x, want %x", got, want)
			}
		})
	}
}

func TestDecoderCloneDoesNotConsume(t *testing.T) {
	buf := []byte{0, 0, 0, 2, 'h', 'i', 0x2a}
	d := NewDecoder(buf)

	clone := d
	if s, ok := clone.TakeString(); !ok || s != "hi" {
		t.Fatalf("clone TakeString = %q, %v", s, ok)
	}

	// The original cursor is untouched.
	if d.Remaining() != len(buf) {
		t.Fatalf("original consumed: %d remaining", d.Remaining())
	}
	if s, ok := d.TakeString(); !ok || s != "hi" {
		t.Fatalf("original TakeString = %q, %v", s, ok)
	}
	if v, ok := d.TakeU8(); !ok || v != 0x2a {
		t.Fatalf("TakeU8 = %d, %v", v, ok)
	}
}

func TestDecoderTruncation(t *testing.T) {
	d := NewDecoder([]byte{0, 0, 0, 5, 'a'})
	if _, ok := d.TakeFramed(); ok {
		t.Fatal("TakeFramed succeeded on truncated frame")
	}
}

func TestMarshalSizeMatchesEncode(t *testing.T) {
	messages := []Message{
		&Disconnect{Reason: DisconnectByApplication, Description: "bye"},
		&Ignore{Data: []byte{1, 2, 3}},
		&Unimplemented{Sequence: 42},
		&Debug{AlwaysDisplay: true, Message: "dbg"},
		&ServiceRequest{Service: "ssh-userauth"},
		&ServiceAccept{Service: "ssh-userauth"},
		&NewKeys{},
		&KexEcdhInit{ClientPublicKey: bytes.Repeat([]byte{7}, 32)},
		&KexEcdhReply{HostKey: []byte{1}, ServerPublicKey: []byte{2}, Signature: []byte{3}},
		&UserauthSuccess{},
		&UserauthFailure{Methods: []string{"publickey", "password"}},
		&UserauthBanner{Message: "welcome"},
		&UserauthPkOk{Algorithm: "ssh-ed25519", Identity: []byte{9}},
		&GlobalRequest{Name: "keepalive@openssh.com", WantReply: true},
		&RequestSuccess{Data: []byte{1}},
		&RequestFailure{},
		&ChannelOpen{ChannelType: "session", SenderChannel: 1, InitialWindowSize: 2, MaximumPacketSize: 3},
		&ChannelOpenConfirmation{RecipientChannel: 1, SenderChannel: 2, InitialWindowSize: 3, MaximumPacketSize: 4},
		&ChannelOpenFailure{RecipientChannel: 1, Reason: 2, Description: "no"},
		&ChannelWindowAdjust{RecipientChannel: 1, BytesToAdd: 1024},
		&ChannelData{RecipientChannel: 1, Data: []byte("hello")},
		&ChannelExtendedData{RecipientChannel: 1, DataTypeCode: ExtendedDataStderr, Data: []byte("err")},
		&ChannelEof{RecipientChannel: 1},
		&ChannelClose{RecipientChannel: 1},
		&ChannelRequest{RecipientChannel: 1, RequestType: "exec", WantReply: true, Data: []byte{0, 0, 0, 2, 'l', 's'}},
		&ChannelSuccess{RecipientChannel: 1},
		&ChannelFailure{RecipientChannel: 1},
	}

	for _, m := range messages {
		buf, err := Marshal(m)
		if err != nil {
			t.Fatalf("%T: %v", m, err)
		}
		if len(buf) != m.Size() {
			t.Errorf("%T: len %d, Size %d", m, len(buf), m.Size())
		}
	}
}
