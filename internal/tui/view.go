package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/simon/ferryctl/internal/session"
)

var (
	// Adaptive colors for light/dark terminal backgrounds
	accentColor = lipgloss.AdaptiveColor{Light: "#D6249F", Dark: "#FF79C6"}
	greenColor  = lipgloss.AdaptiveColor{Light: "#116620", Dark: "#50FA7B"}
	yellowColor = lipgloss.AdaptiveColor{Light: "#7D5A00", Dark: "#F1FA8C"}
	redColor    = lipgloss.AdaptiveColor{Light: "#B31D28", Dark: "#FF5555"}
	dimColor    = lipgloss.AdaptiveColor{Light: "#777777", Dark: "#6272A4"}
	hlBgColor   = lipgloss.AdaptiveColor{Light: "#E8E8E8", Dark: "#333333"}
	cyanColor   = lipgloss.AdaptiveColor{Light: "#0E7490", Dark: "#8BE9FD"}

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			PaddingLeft(1)

	headerStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			PaddingLeft(1)

	cursorStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	selectedRowStyle = lipgloss.NewStyle().
				Background(hlBgColor)

	stateProcessing = lipgloss.NewStyle().
			Foreground(greenColor)

	stateIdle = lipgloss.NewStyle().
			Foreground(yellowColor)

	stateAttached = lipgloss.NewStyle().
			Foreground(cyanColor)

	stateDead = lipgloss.NewStyle().
			Foreground(dimColor)

	activeStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	confirmLabelStyle = lipgloss.NewStyle().
				Foreground(redColor).
				Bold(true).
				PaddingLeft(1)

	confirmKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#FFFFFF"}).
			Background(redColor).
			Bold(true).
			Padding(0, 1)

	confirmDimStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			PaddingLeft(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			PaddingLeft(1)

	inputLabelStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	previewBorderStyle = lipgloss.NewStyle().
				Foreground(dimColor)

	previewContentStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#444444", Dark: "#BBBBBB"})
)

// pad right-pads s to width with spaces (based on visual width, not byte count).
func pad(s string, width int) string {
	visual := lipgloss.Width(s)
	if visual >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visual)
}

func (m Model) View() string {
	if m.quitting && m.AttachTarget == "" {
		return ""
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("ferryctl"))
	b.WriteString("\n\n")

	if len(m.rows) == 0 {
		b.WriteString("  No tools configured.\n\n")
	} else {
		wName, wState := 4, 5
		for _, r := range m.filtered {
			if w := lipgloss.Width(r.Display); w > wName {
				wName = w
			}
			if w := lipgloss.Width(r.State.String()); w > wState {
				wState = w
			}
		}

		header := "     " + pad("TOOL", wName) + "  " + pad("STATE", wState) + "  TURNS"
		b.WriteString(headerStyle.Render(header))
		b.WriteString("\n")

		for i, r := range m.filtered {
			marker := " "
			if r.Active {
				marker = activeStyle.Render("*")
			}
			turns := "-"
			if r.Turns > 0 {
				turns = fmt.Sprintf("%d", r.Turns)
			}
			row := " " + marker + " " + pad(r.Display, wName) + "  " + pad(renderState(r.State), wState) + "  " + dimStyle.Render(turns)

			if i == m.cursor {
				b.WriteString(cursorStyle.Render(" >"))
				b.WriteString(selectedRowStyle.Render(row))
			} else {
				b.WriteString("  ")
				b.WriteString(row)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString(confirmLabelStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}

	// Preview panel (height-limited to keep the tool list visible)
	if m.preview != nil {
		borderTitle := fmt.Sprintf(" ─── %s ", m.preview.Tool)
		titleWidth := lipgloss.Width(borderTitle)
		remaining := m.width - titleWidth - 2
		if remaining > 0 {
			borderTitle += strings.Repeat("─", remaining)
		}
		b.WriteString(previewBorderStyle.Render(" " + borderTitle))
		b.WriteString("\n")

		if m.sending {
			b.WriteString(previewContentStyle.Render(" Waiting for reply..."))
			b.WriteString("\n")
		} else if m.preview.Output != "" {
			previewLines := strings.Split(m.preview.Output, "\n")

			overhead := 9 + len(m.filtered)
			maxPreview := m.height - overhead
			if maxPreview < 3 {
				maxPreview = 3
			}
			start := len(previewLines) - maxPreview
			if start < 0 {
				start = 0
			}
			for _, line := range previewLines[start:] {
				b.WriteString(previewContentStyle.Render(" " + line))
				b.WriteString("\n")
			}
		} else {
			b.WriteString(previewContentStyle.Render(" No output yet."))
			b.WriteString("\n")
		}

		borderBottom := strings.Repeat("─", max(0, m.width-2))
		b.WriteString(previewBorderStyle.Render(" " + borderBottom))
		b.WriteString("\n")
	}

	// Input line (placeholder changes based on mode)
	if m.preview != nil {
		m.input.Placeholder = "Type and press enter to send a message..."
	} else {
		m.input.Placeholder = "Type to filter..."
	}
	b.WriteString(inputLabelStyle.Render(" > "))
	b.WriteString(m.input.View())
	b.WriteString("\n")

	// Help bar / kill confirmation (same slot to avoid layout shift)
	if m.confirmKill != "" {
		b.WriteString(confirmLabelStyle.Render(fmt.Sprintf("Kill '%s'?", m.confirmKill)))
		b.WriteString("  ")
		b.WriteString(confirmKeyStyle.Render("Enter"))
		b.WriteString(confirmDimStyle.Render("confirm"))
		b.WriteString("  ")
		b.WriteString(confirmKeyStyle.Render("Esc"))
		b.WriteString(confirmDimStyle.Render("cancel"))
	} else if m.preview != nil {
		b.WriteString(helpStyle.Render("enter attach  type+enter send  esc close  j/k navigate  ctrl+k kill"))
	} else {
		b.WriteString(helpStyle.Render("enter preview  j/k navigate  ctrl+k kill  q quit"))
	}
	b.WriteString("\n")

	return b.String()
}

func renderState(s session.State) string {
	switch s {
	case session.Processing, session.Spawning:
		return stateProcessing.Render(s.String())
	case session.Idle:
		return stateIdle.Render(s.String())
	case session.Attached:
		return stateAttached.Render(s.String())
	default:
		return stateDead.Render(s.String())
	}
}
