package mux

import (
	"bytes"
	"time"
)

// The logical detach key is Ctrl+Q, with Ctrl+] as a synonym for terminals
// that reserve Ctrl+Q for flow control. Terminals running the kitty
// keyboard protocol or xterm's modifyOtherKeys deliver the chord as an
// escape sequence instead of a control byte, and a double tap of plain Esc
// works everywhere.
var (
	kittyDetach  = []byte("\x1b[113;5u")
	modifyDetach = []byte("\x1b[27;5;113~")
	focusIn      = []byte("\x1b[I")
	focusOut     = []byte("\x1b[O")
)

const (
	ctrlQ        = 0x11
	ctrlRBracket = 0x1d
	esc          = 0x1b

	// doubleEscWindow is how close together two bare Esc taps must land to
	// count as the detach chord.
	doubleEscWindow = 400 * time.Millisecond
)

// detachScanner walks operator keystrokes looking for the detach chord in
// any of its encodings. Bytes before the chord are forwarded to the child;
// the chord itself and anything after it are not. Focus reports the
// terminal emits on window switches are filtered out so the child never
// sees them as input.
type detachScanner struct {
	pending []byte
	escAt   time.Time
	now     func() time.Time
}

func newDetachScanner() *detachScanner {
	return &detachScanner{now: time.Now}
}

// scan consumes one stdin chunk. forward holds the bytes to pass to the
// child; detach reports whether the chord was seen.
func (d *detachScanner) scan(p []byte) (forward []byte, detach bool) {
	data := p
	if len(d.pending) > 0 {
		data = append(d.pending, p...)
		d.pending = nil
	}

	var out []byte
	i := 0
	for i < len(data) {
		b := data[i]
		if b == ctrlQ || b == ctrlRBracket {
			return out, true
		}
		if b != esc {
			d.escAt = time.Time{}
			out = append(out, b)
			i++
			continue
		}

		rest := data[i:]
		switch {
		case bytes.HasPrefix(rest, kittyDetach), bytes.HasPrefix(rest, modifyDetach):
			return out, true

		case bytes.HasPrefix(rest, focusIn), bytes.HasPrefix(rest, focusOut):
			i += len(focusIn)

		case len(rest) >= 2 && rest[1] == esc:
			// Two bare escapes. A pair inside one read, or a second tap
			// landing within the window of a held first tap, is the chord.
			if d.escAt.IsZero() || d.now().Sub(d.escAt) <= doubleEscWindow {
				return out, true
			}
			d.escAt = time.Time{}
			out = append(out, esc)
			i++

		case isSeqPrefix(rest):
			// Could still grow into a detach or focus sequence; hold the
			// bytes until the next read decides.
			if len(rest) == 1 && d.escAt.IsZero() {
				d.escAt = d.now()
			}
			d.pending = append(d.pending, rest...)
			return out, false

		default:
			// Some other escape sequence. Forward the Esc and keep
			// scanning; the remainder is plain bytes to the child.
			d.escAt = time.Time{}
			out = append(out, esc)
			i++
		}
	}
	return out, false
}

// isSeqPrefix reports whether rest is a proper prefix of any sequence the
// scanner cares about.
func isSeqPrefix(rest []byte) bool {
	for _, seq := range [][]byte{kittyDetach, modifyDetach, focusIn, focusOut} {
		if len(rest) < len(seq) && bytes.HasPrefix(seq, rest) {
			return true
		}
	}
	return false
}

// focusFilter strips focus-in/out reports from child output before it
// reaches the real terminal. A report split across two reads is held at the
// boundary and resolved by the next chunk.
type focusFilter struct {
	pending []byte
}

func (f *focusFilter) filter(p []byte) []byte {
	data := p
	if len(f.pending) > 0 {
		data = append(f.pending, p...)
		f.pending = nil
	}

	var out []byte
	i := 0
	for i < len(data) {
		if data[i] != esc {
			j := bytes.IndexByte(data[i:], esc)
			if j < 0 {
				out = append(out, data[i:]...)
				break
			}
			out = append(out, data[i:i+j]...)
			i += j
			continue
		}

		rest := data[i:]
		switch {
		case bytes.HasPrefix(rest, focusIn), bytes.HasPrefix(rest, focusOut):
			i += len(focusIn)
		case len(rest) < len(focusIn) && bytes.HasPrefix(focusIn, rest):
			f.pending = append(f.pending, rest...)
			i = len(data)
		default:
			out = append(out, esc)
			i++
		}
	}
	return out
}
