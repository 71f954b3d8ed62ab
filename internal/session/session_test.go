package session

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"
)

func shSession(t *testing.T, script string, opts Options) *Session {
	t.Helper()
	opts.Spawn = SpawnSpec{Command: "/bin/sh", Args: []string{"-c", script}}
	if opts.Name == "" {
		opts.Name = "test"
	}
	s := New(opts)
	t.Cleanup(s.Kill)
	return s
}

func TestSendAndCaptureIdle(t *testing.T) {
	s := shSession(t, `while read line; do echo "got: $line"; done`, Options{
		IdleTimeout:  300 * time.Millisecond,
		HardTimeout:  10 * time.Second,
		StartupGrace: 100 * time.Millisecond,
	})

	out, err := s.SendAndCapture(context.Background(), "hello")
	if err != nil {
		t.Fatalf("SendAndCapture: %v", err)
	}
	if !strings.Contains(out, "got: hello") {
		t.Errorf("capture missing reply, got %q", out)
	}
	if st := s.State(); st != Idle {
		t.Errorf("state after capture = %v, want Idle", st)
	}
}

func TestSendAndCapturePromptMatch(t *testing.T) {
	script := `while true; do printf '> '; read line || exit 0; echo "echo: $line"; done`
	s := shSession(t, script, Options{
		ReadyPattern: regexp.MustCompile(`(?m)^> $`),
		IdleTimeout:  5 * time.Second,
		HardTimeout:  10 * time.Second,
		StartupGrace: 5 * time.Second,
	})

	start := time.Now()
	out, err := s.SendAndCapture(context.Background(), "hi")
	if err != nil {
		t.Fatalf("SendAndCapture: %v", err)
	}
	if !strings.Contains(out, "echo: hi") {
		t.Errorf("capture missing reply, got %q", out)
	}
	// The prompt reappears immediately, so the capture must resolve well
	// before the idle timeout.
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("capture took %v, idle timer won instead of the prompt", elapsed)
	}
}

func TestSecondCaptureRejectedBusy(t *testing.T) {
	// The child echoes every line it reads, so any bytes leaked to it by
	// the rejected capture would show up in the session tail.
	s := shSession(t, `while read line; do echo "seen:$line"; done`, Options{
		IdleTimeout:  500 * time.Millisecond,
		HardTimeout:  10 * time.Second,
		StartupGrace: 100 * time.Millisecond,
	})

	errc := make(chan error, 1)
	go func() {
		_, err := s.SendAndCapture(context.Background(), "first")
		errc <- err
	}()

	// Give the first capture time to take the slot.
	time.Sleep(200 * time.Millisecond)
	if _, err := s.SendAndCapture(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Fatalf("second capture err = %v, want ErrBusy", err)
	}

	if err := <-errc; err != nil {
		t.Fatalf("first capture err = %v", err)
	}

	// The rejection happens before the message is written, so neither the
	// PTY echo nor the child's reply may ever mention it.
	time.Sleep(200 * time.Millisecond)
	if tail := string(s.Tail(DefaultRingSize)); strings.Contains(tail, "second") {
		t.Errorf("rejected message reached the child, tail = %q", tail)
	}
}

func TestCaptureFailsWhenChildExits(t *testing.T) {
	s := shSession(t, `read line; exit 3`, Options{
		IdleTimeout:  10 * time.Second,
		HardTimeout:  30 * time.Second,
		StartupGrace: 100 * time.Millisecond,
	})

	_, err := s.SendAndCapture(context.Background(), "go")
	if !errors.Is(err, ErrProcessExited) {
		t.Fatalf("err = %v, want ErrProcessExited", err)
	}
	if !strings.Contains(err.Error(), "code 3") {
		t.Errorf("err = %v, want exit code 3 in message", err)
	}
	if st := s.State(); st != Dead {
		t.Errorf("state = %v, want Dead", st)
	}
}

func TestHardTimeout(t *testing.T) {
	// The child keeps producing real content so the idle timer never fires.
	s := shSession(t, `read line; while true; do echo tick; sleep 0.1; done`, Options{
		IdleTimeout:  1 * time.Second,
		HardTimeout:  800 * time.Millisecond,
		StartupGrace: 100 * time.Millisecond,
	})

	_, err := s.SendAndCapture(context.Background(), "go")
	if !errors.Is(err, ErrCaptureTimeout) {
		t.Fatalf("err = %v, want ErrCaptureTimeout", err)
	}
}

func TestCancelInterruptsChild(t *testing.T) {
	s := shSession(t, `read line; while true; do echo tick; sleep 0.1; done`, Options{
		IdleTimeout:  1 * time.Second,
		HardTimeout:  30 * time.Second,
		StartupGrace: 100 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(400 * time.Millisecond)
		cancel()
	}()

	_, err := s.SendAndCapture(ctx, "go")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestAttachBlocksCapture(t *testing.T) {
	s := shSession(t, `while read line; do echo "got: $line"; done`, Options{
		IdleTimeout:  300 * time.Millisecond,
		StartupGrace: 100 * time.Millisecond,
	})

	conduit, err := s.BeginAttach()
	if err != nil {
		t.Fatalf("BeginAttach: %v", err)
	}
	if st := s.State(); st != Attached {
		t.Errorf("state = %v, want Attached", st)
	}

	if _, err := s.SendAndCapture(context.Background(), "hi"); !errors.Is(err, ErrAttached) {
		t.Fatalf("capture while attached err = %v, want ErrAttached", err)
	}

	// Keystrokes travel through the conduit and come back out.
	if _, err := conduit.Write([]byte("ping\r")); err != nil {
		t.Fatalf("conduit write: %v", err)
	}
	deadline := time.After(3 * time.Second)
	var seen []byte
	for !strings.Contains(string(seen), "got: ping") {
		select {
		case chunk := <-conduit.Output:
			seen = append(seen, chunk...)
		case <-deadline:
			t.Fatalf("no echo through conduit, saw %q", seen)
		}
	}

	s.EndAttach()
	if st := s.State(); st != Idle {
		t.Errorf("state after detach = %v, want Idle", st)
	}
}

func TestRespawnAfterExit(t *testing.T) {
	s := shSession(t, `read line; echo "run"; exit 0`, Options{
		IdleTimeout:  300 * time.Millisecond,
		StartupGrace: 100 * time.Millisecond,
	})

	if _, err := s.SendAndCapture(context.Background(), "go"); err == nil {
		t.Fatal("first capture should fail on exit")
	}
	if st := s.State(); st != Dead {
		t.Fatalf("state = %v, want Dead", st)
	}

	// A dead session respawns transparently on the next capture.
	if _, err := s.SendAndCapture(context.Background(), "again"); !errors.Is(err, ErrProcessExited) {
		t.Fatalf("second capture err = %v, want ErrProcessExited from fresh child", err)
	}
}

func TestTailSurvivesCapture(t *testing.T) {
	s := shSession(t, `while read line; do echo "got: $line"; done`, Options{
		IdleTimeout:  300 * time.Millisecond,
		StartupGrace: 100 * time.Millisecond,
	})

	if _, err := s.SendAndCapture(context.Background(), "hello"); err != nil {
		t.Fatalf("SendAndCapture: %v", err)
	}
	if tail := string(s.Tail(DefaultRingSize)); !strings.Contains(tail, "got: hello") {
		t.Errorf("ring tail missing output, got %q", tail)
	}
}

func TestHasScreenClear(t *testing.T) {
	tests := []struct {
		name  string
		chunk string
		want  bool
	}{
		{"erase display", "before\x1b[2Jafter", true},
		{"erase scrollback", "\x1b[3J", true},
		{"full reset", "\x1bc", true},
		{"plain text", "hello world", false},
		{"cursor move only", "\x1b[2;5H", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasScreenClear([]byte(tt.chunk)); got != tt.want {
				t.Errorf("hasScreenClear(%q) = %v, want %v", tt.chunk, got, tt.want)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Dead, "dead"},
		{Spawning, "spawning"},
		{Idle, "idle"},
		{Processing, "processing"},
		{Attached, "attached"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
