// Package mux bridges the operator's real terminal and a session's PTY
// while attached: keystrokes flow down, child output flows up, and a detach
// chord hands the terminal back without disturbing the child.
package mux

import (
	"bytes"
	"log/slog"

	"github.com/simon/ferryctl/internal/session"
	"github.com/simon/ferryctl/internal/term"
)

// minTranscript is the smallest sanitized attach transcript worth recording
// as an assistant turn. Below this the output is prompt redraws and cursor
// noise, not content.
const minTranscript = 48

// cleanupSeq undoes terminal modes the child may have left enabled on the
// operator's terminal: bracketed paste, the kitty keyboard protocol, focus
// reporting, and the alternate screen.
const cleanupSeq = "\x1b[?2004l\x1b[<u\x1b[?1004l\x1b[?1049l"

// Multiplexer attaches sessions to the controlling terminal one at a time.
type Multiplexer struct {
	term   *term.Adapter
	logger *slog.Logger
}

func New(t *term.Adapter, logger *slog.Logger) *Multiplexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multiplexer{term: t, logger: logger}
}

// Attach gives sess the terminal until the operator detaches or the child
// exits. On return the terminal is back in its prior mode. transcript is
// the sanitized output produced during the attachment, or "" when it was
// too short to record; exited reports whether the child died while
// attached.
func (m *Multiplexer) Attach(sess *session.Session) (transcript string, exited bool, err error) {
	conduit, err := sess.BeginAttach()
	if err != nil {
		return "", false, err
	}
	defer sess.EndAttach()

	if err := m.term.SetRaw(true); err != nil {
		return "", false, err
	}
	defer m.cleanup()

	// Repaint from the session's recent output so the operator sees where
	// the tool left off.
	if tail := sess.Tail(session.DefaultRingSize); len(tail) > 0 {
		m.term.Write(tail)
	}

	stopResize := m.term.OnResize(sess.Resize)
	defer stopResize()

	m.logger.Debug("attached", "tool", sess.Name())

	scanner := newDetachScanner()
	filter := &focusFilter{}
	var captured bytes.Buffer

	in := m.term.Input()
	for {
		select {
		case chunk, ok := <-in:
			if !ok {
				// Stdin closed under us; treat it as a detach.
				return m.transcript(sess, &captured), false, nil
			}
			fwd, detach := scanner.scan(chunk)
			if len(fwd) > 0 {
				if _, werr := conduit.Write(fwd); werr != nil {
					m.logger.Debug("forward failed", "err", werr)
				}
			}
			if detach {
				m.logger.Debug("detached", "tool", sess.Name(), "captured", captured.Len())
				return m.transcript(sess, &captured), false, nil
			}

		case chunk := <-conduit.Output:
			captured.Write(chunk)
			m.term.Write(filter.filter(chunk))

		case <-conduit.Exited:
			m.logger.Debug("child exited while attached", "tool", sess.Name())
			return m.transcript(sess, &captured), true, nil
		}
	}
}

func (m *Multiplexer) cleanup() {
	if m.term.IsTerminal() {
		m.term.Write([]byte(cleanupSeq))
	}
	if err := m.term.SetRaw(false); err != nil {
		m.logger.Warn("terminal restore failed", "err", err)
	}
	m.term.RestoreCursor()
	if m.term.IsTerminal() {
		m.term.Write([]byte("\r\n"))
	}
}

func (m *Multiplexer) transcript(sess *session.Session, captured *bytes.Buffer) string {
	clean := sess.Sanitize(captured.Bytes())
	if len(clean) < minTranscript {
		return ""
	}
	return clean
}
