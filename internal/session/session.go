// Package session implements the persistent PTY session engine: one child
// agent process per session, a lifecycle state machine, and the
// send-and-capture protocol that decides when a non-protocol-aware
// interactive tool has finished a turn.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/creack/pty"

	"github.com/simon/ferryctl/internal/sanitize"
)

// State is a session's position in its lifecycle.
type State int

const (
	Dead State = iota
	Spawning
	Idle
	Processing
	Attached
)

func (s State) String() string {
	switch s {
	case Dead:
		return "dead"
	case Spawning:
		return "spawning"
	case Idle:
		return "idle"
	case Processing:
		return "processing"
	case Attached:
		return "attached"
	default:
		return "unknown"
	}
}

var (
	// ErrBusy is returned when a capture is requested while another is in
	// flight. Nothing is written to the child.
	ErrBusy = errors.New("tool is busy with another capture")
	// ErrAttached is returned when a capture is requested while a human
	// holds the session's terminal.
	ErrAttached = errors.New("cannot send while attached")
	// ErrCaptureTimeout is returned when the overall capture bound expires.
	// The child is left running; only the capture state is discarded.
	ErrCaptureTimeout = errors.New("capture timed out")
	// ErrProcessExited is returned when the child dies mid-capture.
	ErrProcessExited = errors.New("process exited")
)

// promptWindow is how much of the accumulated output the ready-prompt
// pattern is matched against. Matching the whole transcript would re-match
// prompts quoted in the middle of a long answer.
const promptWindow = 4 * 1024

// SpawnSpec describes how to start a tool's child process.
type SpawnSpec struct {
	Command string
	Args    []string
	// ResumeFlag, when non-empty, is appended with a continuation token on
	// respawn so the tool picks up its own prior conversation.
	ResumeFlag string
	Dir        string
	Env        []string
}

// Options configures a session. Zero durations get defaults.
type Options struct {
	Name         string
	DisplayName  string
	Spawn        SpawnSpec
	ReadyPattern *regexp.Regexp
	IdleTimeout  time.Duration
	HardTimeout  time.Duration
	StartupGrace time.Duration
	RingSize     int
	Sanitize     sanitize.Func
	// ResumeToken returns a continuation token for respawn, or "".
	ResumeToken func() string
	Logger      *slog.Logger
}

// Session hosts one agent CLI in a PTY. The PTY master is exclusively owned
// here; everything else talks to the child through SendAndCapture or an
// attach conduit, never both at once.
type Session struct {
	name         string
	displayName  string
	spawn        SpawnSpec
	readyPattern *regexp.Regexp
	idleTimeout  time.Duration
	hardTimeout  time.Duration
	startupGrace time.Duration
	sanitize     sanitize.Func
	resumeToken  func() string
	logger       *slog.Logger

	mu        sync.Mutex
	state     State
	capturing bool
	cmd       *exec.Cmd
	ptmx      *os.File
	ring      *ring
	// consumer receives child output while a capture or attach is active.
	// Exactly one of the capture accumulator or the attach forwarder holds
	// it at a time; nil means output goes only to the ring.
	consumer   func([]byte)
	attachDone chan struct{}

	// Per-spawn channels, replaced on every respawn.
	ready      chan struct{}
	readyOnce  *sync.Once
	exited     chan struct{}
	exitCode   int
	graceTimer *time.Timer

	everSpawned bool
}

// New creates a session without spawning its child. The first
// SendAndCapture or BeginAttach spawns on demand.
func New(opts Options) *Session {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 2 * time.Second
	}
	if opts.HardTimeout <= 0 {
		opts.HardTimeout = 120 * time.Second
	}
	if opts.StartupGrace <= 0 {
		opts.StartupGrace = 10 * time.Second
	}
	if opts.Sanitize == nil {
		opts.Sanitize = sanitize.Generic
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DisplayName == "" {
		opts.DisplayName = opts.Name
	}
	return &Session{
		name:         opts.Name,
		displayName:  opts.DisplayName,
		spawn:        opts.Spawn,
		readyPattern: opts.ReadyPattern,
		idleTimeout:  opts.IdleTimeout,
		hardTimeout:  opts.HardTimeout,
		startupGrace: opts.StartupGrace,
		sanitize:     opts.Sanitize,
		resumeToken:  opts.ResumeToken,
		logger:       opts.Logger.With("tool", opts.Name),
		ring:         newRing(opts.RingSize),
		state:        Dead,
	}
}

func (s *Session) Name() string        { return s.name }
func (s *Session) DisplayName() string { return s.displayName }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Tail returns up to n bytes of recent raw output for reattach repaint.
func (s *Session) Tail(n int) []byte { return s.ring.tail(n) }

// Start spawns the child if it isn't running. Idempotent.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Dead {
		return nil
	}
	return s.startLocked()
}

// startLocked spawns a fresh child. Caller holds s.mu.
func (s *Session) startLocked() error {
	args := append([]string(nil), s.spawn.Args...)
	if s.everSpawned && s.spawn.ResumeFlag != "" && s.resumeToken != nil {
		if token := s.resumeToken(); token != "" {
			args = append(args, s.spawn.ResumeFlag, token)
		}
	}

	cmd := exec.Command(s.spawn.Command, args...)
	cmd.Dir = s.spawn.Dir
	if len(s.spawn.Env) > 0 {
		cmd.Env = append(os.Environ(), s.spawn.Env...)
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 40, Cols: 120})
	if err != nil {
		return fmt.Errorf("spawn %s: %w", s.spawn.Command, err)
	}

	s.cmd = cmd
	s.ptmx = ptmx
	s.state = Spawning
	s.everSpawned = true
	s.ring.reset()
	s.ready = make(chan struct{})
	s.readyOnce = &sync.Once{}
	s.exited = make(chan struct{})

	ready, readyOnce := s.ready, s.readyOnce
	exited := s.exited

	// A tool whose prompt never matches must not hang the first capture
	// forever; the grace timer resolves readiness regardless.
	s.graceTimer = time.AfterFunc(s.startupGrace, func() {
		readyOnce.Do(func() { close(ready) })
	})

	go s.readLoop(ptmx, ready, readyOnce)
	go s.waitLoop(cmd, ptmx, exited, ready, readyOnce)

	s.logger.Debug("spawned child", "pid", cmd.Process.Pid, "resumed", len(args) > len(s.spawn.Args))
	return nil
}

// readLoop pumps child output into the ring and the current consumer.
func (s *Session) readLoop(ptmx *os.File, ready chan struct{}, readyOnce *sync.Once) {
	buf := make([]byte, 4096)
	for {
		n, err := ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			if hasScreenClear(chunk) {
				s.ring.reset()
			}
			s.ring.write(chunk)

			if s.readyPattern != nil {
				select {
				case <-ready:
				default:
					tail := ansi.Strip(string(s.ring.tail(promptWindow)))
					if s.readyPattern.MatchString(tail) {
						readyOnce.Do(func() { close(ready) })
					}
				}
			}

			s.mu.Lock()
			deliver := s.consumer
			s.mu.Unlock()
			if deliver != nil {
				deliver(chunk)
			}
		}
		if err != nil {
			// EIO is the normal end-of-PTY signal once the child exits.
			return
		}
	}
}

// waitLoop reaps the child and flips the session to Dead.
func (s *Session) waitLoop(cmd *exec.Cmd, ptmx *os.File, exited chan struct{}, ready chan struct{}, readyOnce *sync.Once) {
	err := cmd.Wait()

	code := 0
	if err != nil {
		code = 1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				code = 128 + int(status.Signal())
			} else {
				code = exitErr.ExitCode()
			}
		}
	}

	s.mu.Lock()
	if s.cmd == cmd {
		s.state = Dead
		s.exitCode = code
		s.cmd = nil
		s.ptmx = nil
	}
	s.mu.Unlock()

	_ = ptmx.Close()
	// Unblock anything waiting on readiness or capture.
	readyOnce.Do(func() { close(ready) })
	close(exited)

	s.logger.Debug("child exited", "code", code)
}

// hasScreenClear reports whether a chunk contains a full-screen erase or
// terminal reset.
func hasScreenClear(chunk []byte) bool {
	return bytes.Contains(chunk, []byte("\x1b[2J")) ||
		bytes.Contains(chunk, []byte("\x1b[3J")) ||
		bytes.Contains(chunk, []byte("\x1bc"))
}

// waitReady blocks until the first ready prompt is observed, the startup
// grace expires, the child dies, or ctx is cancelled.
func (s *Session) waitReady(ctx context.Context) error {
	s.mu.Lock()
	ready, exited := s.ready, s.exited
	s.mu.Unlock()

	select {
	case <-ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	// Readiness also resolves on exit; distinguish the two.
	select {
	case <-exited:
		s.mu.Lock()
		code := s.exitCode
		s.mu.Unlock()
		return fmt.Errorf("%w with code %d during startup", ErrProcessExited, code)
	default:
		return nil
	}
}

// SendAndCapture writes message to the child and collects its reply until
// the ready prompt reappears or output goes idle, whichever is first. At
// most one capture may be in flight; a second call rejects with ErrBusy
// before any bytes are written. A Dead session is respawned first.
func (s *Session) SendAndCapture(ctx context.Context, message string) (string, error) {
	s.mu.Lock()
	if s.capturing {
		s.mu.Unlock()
		return "", ErrBusy
	}
	if s.state == Attached {
		s.mu.Unlock()
		return "", ErrAttached
	}
	if s.state == Dead {
		if err := s.startLocked(); err != nil {
			s.mu.Unlock()
			return "", err
		}
	}
	s.capturing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.capturing = false
		s.consumer = nil
		if s.state == Processing {
			s.state = Idle
		}
		s.mu.Unlock()
	}()

	if err := s.waitReady(ctx); err != nil {
		return "", err
	}

	// Route output to the capture accumulator. The done channel keeps the
	// read loop from blocking on a finished capture.
	chunks := make(chan []byte, 64)
	done := make(chan struct{})
	defer close(done)

	s.mu.Lock()
	if s.state == Dead {
		code := s.exitCode
		s.mu.Unlock()
		return "", fmt.Errorf("%w with code %d", ErrProcessExited, code)
	}
	s.state = Processing
	ptmx, exited := s.ptmx, s.exited
	s.consumer = func(b []byte) {
		select {
		case chunks <- b:
		case <-done:
		}
	}
	s.mu.Unlock()

	if err := writeMessage(ptmx, message); err != nil {
		s.logger.Warn("stdin write failed", "err", err)
		return "", fmt.Errorf("write to %s: %w", s.name, err)
	}

	return s.collect(ctx, chunks, exited)
}

// collect runs the completion race: ready-prompt match vs idle timeout vs
// hard timeout vs child exit vs operator cancel.
func (s *Session) collect(ctx context.Context, chunks <-chan []byte, exited <-chan struct{}) (string, error) {
	var buf bytes.Buffer

	idle := time.NewTimer(s.idleTimeout)
	defer idle.Stop()
	hard := time.NewTimer(s.hardTimeout)
	defer hard.Stop()

	for {
		select {
		case chunk := <-chunks:
			buf.Write(chunk)

			if s.readyPattern != nil {
				tail := buf.Bytes()
				if len(tail) > promptWindow {
					tail = tail[len(tail)-promptWindow:]
				}
				if s.readyPattern.MatchString(ansi.Strip(string(tail))) {
					return s.sanitize(buf.Bytes()), nil
				}
			}

			// Spinner frames and cursor shuffling are not progress; only
			// chunks with real content hold the turn open.
			if sanitize.HasContent(chunk) {
				if !idle.Stop() {
					select {
					case <-idle.C:
					default:
					}
				}
				idle.Reset(s.idleTimeout)
			}

		case <-idle.C:
			return s.sanitize(buf.Bytes()), nil

		case <-hard.C:
			return "", fmt.Errorf("%w after %s", ErrCaptureTimeout, s.hardTimeout)

		case <-exited:
			s.mu.Lock()
			code := s.exitCode
			s.mu.Unlock()
			return "", fmt.Errorf("%w with code %d", ErrProcessExited, code)

		case <-ctx.Done():
			// Operator interrupt: stop this turn, keep the child alive.
			s.Interrupt()
			return "", ctx.Err()
		}
	}
}

// writeMessage sends the message followed by a carriage return. The brief
// pause lets TUI input boxes ingest the text before the submit key arrives;
// sending both in one write makes some tools treat the newline as part of
// the pasted text.
func writeMessage(ptmx *os.File, message string) error {
	payload := []byte(message)
	if strings.Contains(message, "\n") {
		// Bracketed paste keeps embedded newlines from submitting the
		// message early in tools that treat Enter as send.
		payload = append(append([]byte("\x1b[200~"), payload...), "\x1b[201~"...)
	}
	if _, err := ptmx.Write(payload); err != nil {
		return err
	}
	time.Sleep(20 * time.Millisecond)
	_, err := ptmx.Write([]byte("\r"))
	return err
}

// Conduit is the I/O surface handed to the attach multiplexer.
type Conduit struct {
	session *Session
	// Output delivers child chunks while attached.
	Output <-chan []byte
	// Exited closes when the child dies.
	Exited <-chan struct{}
}

// Write forwards operator keystrokes to the child.
func (c *Conduit) Write(p []byte) (int, error) {
	c.session.mu.Lock()
	ptmx := c.session.ptmx
	c.session.mu.Unlock()
	if ptmx == nil {
		return 0, fmt.Errorf("%s: %w", c.session.name, ErrProcessExited)
	}
	return ptmx.Write(p)
}

// BeginAttach routes the session's output to the returned conduit and marks
// the session Attached. A Dead session is respawned first. Rejected with
// ErrBusy while a capture is in flight.
func (s *Session) BeginAttach() (*Conduit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capturing {
		return nil, ErrBusy
	}
	if s.state == Attached {
		return nil, errors.New("already attached")
	}
	if s.state == Dead {
		if err := s.startLocked(); err != nil {
			return nil, err
		}
	}

	out := make(chan []byte, 64)
	done := make(chan struct{})
	s.state = Attached
	s.consumer = func(b []byte) {
		select {
		case out <- b:
		case <-done:
		}
	}
	s.attachDone = done

	return &Conduit{session: s, Output: out, Exited: s.exited}, nil
}

// EndAttach detaches the conduit and returns the session to Idle, or leaves
// it Dead if the child died while attached.
func (s *Session) EndAttach() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attachDone != nil {
		close(s.attachDone)
		s.attachDone = nil
	}
	s.consumer = nil
	if s.state == Attached {
		s.state = Idle
	}
}

// Resize propagates the local terminal size to the child PTY.
func (s *Session) Resize(rows, cols uint16) {
	s.mu.Lock()
	ptmx := s.ptmx
	s.mu.Unlock()
	if ptmx == nil {
		return
	}
	if err := pty.Setsize(ptmx, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		s.logger.Debug("resize failed", "err", err)
	}
}

// Interrupt sends SIGINT to the child, cancelling its current work without
// killing it.
func (s *Session) Interrupt() {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGINT)
	}
}

// Kill terminates the child: SIGTERM, then SIGKILL if it lingers.
func (s *Session) Kill() {
	s.mu.Lock()
	cmd, exited := s.cmd, s.exited
	if s.graceTimer != nil {
		s.graceTimer.Stop()
	}
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		_ = cmd.Process.Kill()
		<-exited
	}
}

// Sanitize runs the session's configured output sanitizer. The multiplexer
// uses it on detach captures.
func (s *Session) Sanitize(raw []byte) string { return s.sanitize(raw) }
