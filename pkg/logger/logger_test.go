package logger

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"
)

func TestStandardLogger_Prefixes(t *testing.T) {
	cases := []struct {
		name   string
		log    func(Logger)
		prefix string
		want   string
	}{
		{"info", func(l Logger) { l.Info("run %s finished", "run-1") }, "[INFO]", "run run-1 finished"},
		{"warning", func(l Logger) { l.Warning("suggester failed for %q", "Write report") }, "[WARNING]", `suggester failed for "Write report"`},
		{"error", func(l Logger) { l.Error("calendar query failed: %v", "timeout") }, "[ERROR]", "calendar query failed: timeout"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			l := NewStandardLogger(log.New(buf, "", 0))

			tc.log(l)

			output := buf.String()
			if !strings.Contains(output, tc.prefix) {
				t.Errorf("expected %s prefix, got: %s", tc.prefix, output)
			}
			if !strings.Contains(output, tc.want) {
				t.Errorf("expected message content, got: %s", output)
			}
		})
	}
}

func TestStandardLogger_Close(t *testing.T) {
	l := NewStandardLogger(log.New(&bytes.Buffer{}, "", 0))
	if err := l.Close(); err != nil {
		t.Errorf("expected nil error, got: %v", err)
	}
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()

	// Must not panic.
	l.Info("test")
	l.Warning("test")
	l.Error("test")

	if err := l.Close(); err != nil {
		t.Errorf("expected nil error, got: %v", err)
	}
}

func TestMockLogger_RecordsCalls(t *testing.T) {
	l := NewMockLogger()

	l.Info("poll %d", 1)
	l.Info("poll %d", 2)
	l.Warning("skipped %s", "t1")
	l.Error("placement %v", "failed")

	if len(l.InfoCalls) != 2 || l.InfoCalls[0] != "poll 1" || l.InfoCalls[1] != "poll 2" {
		t.Errorf("InfoCalls = %v", l.InfoCalls)
	}
	if len(l.WarningCalls) != 1 || l.WarningCalls[0] != "skipped t1" {
		t.Errorf("WarningCalls = %v", l.WarningCalls)
	}
	if len(l.ErrorCalls) != 1 || l.ErrorCalls[0] != "placement failed" {
		t.Errorf("ErrorCalls = %v", l.ErrorCalls)
	}
}

func TestMockLogger_Close(t *testing.T) {
	l := NewMockLogger()
	if l.CloseCalled {
		t.Error("CloseCalled should be false initially")
	}
	if err := l.Close(); err != nil {
		t.Errorf("expected nil error, got: %v", err)
	}
	if !l.CloseCalled {
		t.Error("CloseCalled should be true after Close()")
	}
}

func TestMultiLogger_BroadcastsToAll(t *testing.T) {
	mock1 := NewMockLogger()
	mock2 := NewMockLogger()
	multi := NewMultiLogger(mock1, mock2)

	multi.Info("info msg")
	multi.Warning("warn msg")
	multi.Error("error msg")

	for i, m := range []*MockLogger{mock1, mock2} {
		if len(m.InfoCalls) != 1 || m.InfoCalls[0] != "info msg" {
			t.Errorf("mock%d InfoCalls = %v", i+1, m.InfoCalls)
		}
		if len(m.WarningCalls) != 1 || m.WarningCalls[0] != "warn msg" {
			t.Errorf("mock%d WarningCalls = %v", i+1, m.WarningCalls)
		}
		if len(m.ErrorCalls) != 1 || m.ErrorCalls[0] != "error msg" {
			t.Errorf("mock%d ErrorCalls = %v", i+1, m.ErrorCalls)
		}
	}
}

func TestMultiLogger_Empty(t *testing.T) {
	multi := NewMultiLogger()

	// Must not panic with no backends.
	multi.Info("test")
	multi.Warning("test")
	multi.Error("test")
	if err := multi.Close(); err != nil {
		t.Errorf("expected nil error, got: %v", err)
	}
}

// failingCloseLogger returns a fixed error from Close, for testing
// MultiLogger error propagation.
type failingCloseLogger struct {
	NopLogger
	closeErr error
}

func (f *failingCloseLogger) Close() error {
	return f.closeErr
}

func TestMultiLogger_CloseReturnsFirstError(t *testing.T) {
	err1 := errors.New("first backend failed")
	err2 := errors.New("second backend failed")
	mock := NewMockLogger()

	multi := NewMultiLogger(&failingCloseLogger{closeErr: err1}, mock, &failingCloseLogger{closeErr: err2})

	if err := multi.Close(); !errors.Is(err, err1) {
		t.Errorf("expected first error %v, got %v", err1, err)
	}
	// Every backend is still closed, failures included.
	if !mock.CloseCalled {
		t.Error("mock should be closed even after an earlier failure")
	}
}
