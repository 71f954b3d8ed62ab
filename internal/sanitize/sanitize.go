// Package sanitize turns raw PTY output into clean text suitable for
// forwarding to another tool. The per-tool chrome heuristics live here, out
// of the session engine: a session is handed a Func and never special-cases
// a tool by name.
package sanitize

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Func converts one capture's raw bytes into clean text.
type Func func(raw []byte) string

// spinnerGlyphs are the animation characters agent CLIs use while working.
// A chunk consisting only of these (plus escapes and carriage returns) is
// cosmetic repainting, not real output.
const spinnerGlyphs = "⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏✻✽✶✳✢·*◐◓◑◒"

// ForProfile returns the sanitizer for a named profile from the tool config.
// Unknown names fall back to the generic sanitizer.
func ForProfile(name string) Func {
	switch name {
	case "claude":
		return Claude
	case "codex":
		return Codex
	default:
		return Generic
	}
}

// HasContent reports whether a chunk still carries anything after stripping
// escape sequences, spinner glyphs, and carriage returns. The capture idle
// timer only resets on chunks where this is true, so a tool repainting a
// spinner frame every 100ms cannot hold a capture open forever.
func HasContent(chunk []byte) bool {
	s := ansi.Strip(string(chunk))
	s = strings.Map(func(r rune) rune {
		if r == '\r' || strings.ContainsRune(spinnerGlyphs, r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s) != ""
}

// Generic strips escape sequences and normalizes line endings, nothing more.
func Generic(raw []byte) string {
	s := ansi.Strip(string(raw))
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(collapseBlank(s))
}

// Claude removes Claude Code's input box, status bar, and spinner lines
// from a capture.
func Claude(raw []byte) string {
	return stripChrome(raw, isClaudeChromeLine)
}

// Codex removes Codex CLI's prompt frame and working indicators.
func Codex(raw []byte) string {
	return stripChrome(raw, isCodexChromeLine)
}

func stripChrome(raw []byte, isChrome func(string) bool) string {
	var kept []string
	for _, line := range strings.Split(Generic(raw), "\n") {
		if isChrome(strings.TrimSpace(line)) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(collapseBlank(strings.Join(kept, "\n")))
}

func isClaudeChromeLine(trimmed string) bool {
	if isBoxLine(trimmed) {
		return true
	}
	lower := strings.ToLower(trimmed)
	switch {
	case strings.Contains(lower, "? for shortcuts"),
		strings.Contains(lower, "esc to interrupt"),
		strings.Contains(lower, "bypass permissions on"),
		strings.Contains(lower, "accept edits on"),
		strings.Contains(lower, "plan mode on"),
		strings.Contains(lower, "shift+tab"),
		strings.Contains(lower, "context left until auto-compact"):
		return true
	}
	// Bare prompt line
	if trimmed == "❯" || trimmed == ">" || strings.TrimRight(trimmed, "  ") == "❯" {
		return true
	}
	return isSpinnerLine(trimmed)
}

func isCodexChromeLine(trimmed string) bool {
	if isBoxLine(trimmed) {
		return true
	}
	lower := strings.ToLower(trimmed)
	if strings.Contains(lower, "send ⏎") || strings.Contains(lower, "ctrl+c to quit") {
		return true
	}
	if trimmed == "›" || trimmed == ">" {
		return true
	}
	return isSpinnerLine(trimmed)
}

// isBoxLine detects input-box and separator decoration drawn with
// box-drawing characters.
func isBoxLine(trimmed string) bool {
	if trimmed == "" {
		return false
	}
	switch trimmed[0] {
	case '|':
		return true
	}
	for _, prefix := range []string{"╭", "╰", "│", "╌", "───", "┌", "└", "┃"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

// isSpinnerLine detects active progress lines like "✻ Thinking…" without
// matching truncation markers ("… +4 lines") or completed actions ("⏺ ...").
func isSpinnerLine(trimmed string) bool {
	if trimmed == "" {
		return false
	}
	r := []rune(trimmed)[0]
	if !strings.ContainsRune(spinnerGlyphs, r) {
		return false
	}
	return strings.Contains(trimmed, "…")
}

// collapseBlank squeezes runs of blank lines down to one.
func collapseBlank(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if blank {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
