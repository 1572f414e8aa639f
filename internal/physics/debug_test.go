package physics

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetLogWriters(t *testing.T) {
	defer SetLogWriters(LogWriters{})

	var ops, diag, trace bytes.Buffer
	SetLogWriters(LogWriters{Ops: &ops, Diag: &diag, Trace: &trace})

	Opsf("run %s started", "abc")
	Diagf("windows %d", 25)
	Tracef("event %d", 7)

	tests := []struct {
		name string
		buf  *bytes.Buffer
		want string
	}{
		{"ops", &ops, "run abc started"},
		{"diag", &diag, "windows 25"},
		{"trace", &trace, "event 7"},
	}
	for _, tt := range tests {
		out := tt.buf.String()
		if !strings.Contains(out, tt.want) || !strings.Contains(out, "[combfit] ") {
			t.Errorf("%s stream = %q, want prefix and %q", tt.name, out, tt.want)
		}
	}
}

func TestDisabledStreams(t *testing.T) {
	defer SetLogWriters(LogWriters{})

	var ops bytes.Buffer
	SetLogWriters(LogWriters{Ops: &ops})

	// Nil writers must not panic and must not leak into other streams.
	Diagf("hidden")
	Tracef("hidden")
	if ops.Len() != 0 {
		t.Errorf("ops stream received %q", ops.String())
	}
}

func TestNewLogger(t *testing.T) {
	if l := newLogger("[combfit] ", nil); l != nil {
		t.Errorf("newLogger(nil) = %v, want nil", l)
	}
	var buf bytes.Buffer
	l := newLogger("[combfit] ", &buf)
	if l == nil {
		t.Fatal("newLogger returned nil for a writer")
	}
	if l.Prefix() != "[combfit] " {
		t.Errorf("prefix = %q", l.Prefix())
	}
}
