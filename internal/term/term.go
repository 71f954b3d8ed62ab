// Package term owns the real controlling terminal: raw-mode toggling,
// resize notification, and cursor restoration. All side effects are
// confined to stdin/stdout; when stdin is not a TTY every toggle is a no-op
// so the rest of the program degrades instead of crashing.
package term

import (
	"io"
	"os"
	"os/signal"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

type Adapter struct {
	in  *os.File
	out *os.File

	mu     sync.Mutex
	isTTY  bool
	saved  *term.State // pre-raw state, nil when not raw
	outEnv *termenv.Output

	pumpOnce sync.Once
	input    chan []byte
}

// New returns an adapter bound to the process's stdin/stdout.
func New() *Adapter {
	return NewFrom(os.Stdin, os.Stdout)
}

// NewFrom binds an adapter to explicit files.
func NewFrom(in, out *os.File) *Adapter {
	return &Adapter{
		in:     in,
		out:    out,
		isTTY:  isatty.IsTerminal(in.Fd()),
		outEnv: termenv.NewOutput(out),
	}
}

// IsTerminal reports whether stdin is an interactive terminal.
func (a *Adapter) IsTerminal() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isTTY
}

// In exposes the terminal input stream for the attach forwarder.
func (a *Adapter) In() *os.File { return a.in }

// Input returns a shared channel of stdin chunks. Both the line-oriented
// prompt loop and the attach forwarder consume from the same channel, so a
// blocking read started in one mode can never swallow bytes meant for the
// other. The channel closes when stdin reaches EOF.
func (a *Adapter) Input() <-chan []byte {
	a.pumpOnce.Do(func() {
		a.input = make(chan []byte, 1)
		go func() {
			defer close(a.input)
			buf := make([]byte, 4096)
			for {
				n, err := a.in.Read(buf)
				if n > 0 {
					chunk := make([]byte, n)
					copy(chunk, buf[:n])
					a.input <- chunk
				}
				if err != nil {
					return
				}
			}
		}()
	})
	return a.input
}

func (a *Adapter) Write(p []byte) (int, error) {
	return a.out.Write(p)
}

// SetRaw switches the terminal in or out of raw mode. Idempotent, and a
// no-op on non-TTY stdin.
func (a *Adapter) SetRaw(on bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isTTY {
		return nil
	}
	if on {
		if a.saved != nil {
			return nil
		}
		state, err := term.MakeRaw(int(a.in.Fd()))
		if err != nil {
			return err
		}
		a.saved = state
		return nil
	}
	if a.saved == nil {
		return nil
	}
	err := term.Restore(int(a.in.Fd()), a.saved)
	a.saved = nil
	return err
}

// Size returns the terminal dimensions, or 80x24 when stdin is not a TTY.
func (a *Adapter) Size() (rows, cols uint16) {
	if !a.IsTerminal() {
		return 24, 80
	}
	width, height, err := term.GetSize(int(a.in.Fd()))
	if err != nil {
		return 24, 80
	}
	return uint16(height), uint16(width)
}

// OnResize invokes cb with the new dimensions on every SIGWINCH until the
// returned stop function is called. cb also fires once immediately so the
// child starts at the right size.
func (a *Adapter) OnResize(cb func(rows, cols uint16)) (stop func()) {
	if !a.IsTerminal() {
		return func() {}
	}

	rows, cols := a.Size()
	cb(rows, cols)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGWINCH)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case <-sigs:
				rows, cols := a.Size()
				cb(rows, cols)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigs)
			close(done)
		})
	}
}

// InputReader exposes the shared stdin pump as an io.Reader, for consumers
// that want a stream instead of chunks. All readers and the chunk channel
// draw from the same pump, so bytes are never double-read.
func (a *Adapter) InputReader() io.Reader {
	return &chanReader{ch: a.Input()}
}

type chanReader struct {
	ch  <-chan []byte
	rem []byte
}

func (r *chanReader) Read(p []byte) (int, error) {
	if len(r.rem) == 0 {
		chunk, ok := <-r.ch
		if !ok {
			return 0, io.EOF
		}
		r.rem = chunk
	}
	n := copy(p, r.rem)
	r.rem = r.rem[n:]
	return n, nil
}

// RestoreCursor makes the cursor visible again. Interactive tools hide it
// while repainting; if one dies or is detached mid-repaint the cursor stays
// hidden without this.
func (a *Adapter) RestoreCursor() {
	if a.IsTerminal() {
		a.outEnv.ShowCursor()
	}
}
