package mux

import (
	"bytes"
	"testing"
	"time"
)

func TestDetachScannerSingleChunk(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		forward string
		detach  bool
	}{
		{"plain text", "hello", "hello", false},
		{"ctrl-q alone", "\x11", "", true},
		{"ctrl-] synonym", "\x1d", "", true},
		{"ctrl-q mid chunk forwards prefix", "abc\x11def", "abc", true},
		{"kitty encoding", "\x1b[113;5u", "", true},
		{"kitty mid chunk", "ls\r\x1b[113;5uxx", "ls\r", true},
		{"modifyOtherKeys encoding", "\x1b[27;5;113~", "", true},
		{"double esc same chunk", "\x1b\x1b", "", true},
		{"focus in filtered", "a\x1b[Ib", "ab", false},
		{"focus out filtered", "a\x1b[Ob", "ab", false},
		{"arrow key passes through", "\x1b[A", "\x1b[A", false},
		{"alt-letter passes through", "\x1bx", "\x1bx", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDetachScanner()
			fwd, detach := d.scan([]byte(tt.input))
			if string(fwd) != tt.forward || detach != tt.detach {
				t.Errorf("scan(%q) = (%q, %v), want (%q, %v)",
					tt.input, fwd, detach, tt.forward, tt.detach)
			}
		})
	}
}

func TestDetachScannerDoubleEscAcrossChunks(t *testing.T) {
	clock := time.Unix(1000, 0)
	d := newDetachScanner()
	d.now = func() time.Time { return clock }

	if fwd, detach := d.scan([]byte{0x1b}); detach || len(fwd) != 0 {
		t.Fatalf("lone esc = (%q, %v), want held", fwd, detach)
	}

	clock = clock.Add(200 * time.Millisecond)
	if _, detach := d.scan([]byte{0x1b}); !detach {
		t.Fatal("second esc within window should detach")
	}
}

func TestDetachScannerDoubleEscTooSlow(t *testing.T) {
	clock := time.Unix(1000, 0)
	d := newDetachScanner()
	d.now = func() time.Time { return clock }

	d.scan([]byte{0x1b})
	clock = clock.Add(time.Second)
	fwd, detach := d.scan([]byte{0x1b})
	if detach {
		t.Fatal("slow second esc must not detach")
	}
	// The stale first esc is released; the second is held as a fresh tap.
	if !bytes.Equal(fwd, []byte{0x1b}) {
		t.Errorf("forward = %q, want the released first esc", fwd)
	}
}

func TestDetachScannerSequenceSplitAcrossChunks(t *testing.T) {
	d := newDetachScanner()
	if fwd, detach := d.scan([]byte("\x1b[113;")); detach || len(fwd) != 0 {
		t.Fatalf("partial sequence = (%q, %v), want held", fwd, detach)
	}
	if _, detach := d.scan([]byte("5u")); !detach {
		t.Fatal("completed kitty sequence should detach")
	}
}

func TestDetachScannerPartialThenUnrelated(t *testing.T) {
	d := newDetachScanner()
	d.scan([]byte("\x1b[1"))
	fwd, detach := d.scan([]byte("A"))
	if detach {
		t.Fatal("cursor-up must not detach")
	}
	if string(fwd) != "\x1b[1A" {
		t.Errorf("forward = %q, want the reassembled sequence", fwd)
	}
}

func TestDetachScannerEscThenKey(t *testing.T) {
	d := newDetachScanner()
	d.now = func() time.Time { return time.Unix(1000, 0) }
	d.scan([]byte{0x1b})
	fwd, detach := d.scan([]byte("q"))
	if detach {
		t.Fatal("esc then q must not detach")
	}
	if string(fwd) != "\x1bq" {
		t.Errorf("forward = %q, want %q", fwd, "\x1bq")
	}
}

func TestFocusFilter(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"passthrough", "plain \x1b[32mgreen\x1b[0m", "plain \x1b[32mgreen\x1b[0m"},
		{"strips focus in", "a\x1b[Ib", "ab"},
		{"strips focus out", "a\x1b[Ob", "ab"},
		{"keeps other csi", "\x1b[2J\x1b[H", "\x1b[2J\x1b[H"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &focusFilter{}
			if got := f.filter([]byte(tt.input)); string(got) != tt.want {
				t.Errorf("filter(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFocusFilterSplitReport(t *testing.T) {
	f := &focusFilter{}
	var out []byte
	out = append(out, f.filter([]byte("x\x1b["))...)
	out = append(out, f.filter([]byte("Iy"))...)
	if string(out) != "xy" {
		t.Errorf("reassembled output = %q, want %q", out, "xy")
	}
}
