// Package tui is the interactive tool picker: a live listing of configured
// tools with their session states, a preview of each tool's recent output,
// and keys to attach, send a quick message, or kill a child.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/simon/ferryctl/internal/history"
	"github.com/simon/ferryctl/internal/registry"
	"github.com/simon/ferryctl/internal/session"
)

const (
	pollInterval = 1500 * time.Millisecond
	previewBytes = 16 * 1024
)

type tickMsg time.Time

type toolRow struct {
	Name    string
	Display string
	State   session.State
	Active  bool
	Turns   int
}

type previewState struct {
	Tool   string
	Output string
}

type sendDoneMsg struct {
	Tool string
	Err  error
}

type Model struct {
	reg *registry.Registry
	log *history.Log

	rows          []toolRow
	filtered      []toolRow
	cursor        int
	input         textinput.Model
	preview       *previewState
	confirmKill   string // tool name pending kill confirmation, "" when none
	sending       bool
	width, height int

	// AttachTarget is set when the user picks a tool to attach to; the
	// caller tears the program down, runs the attachment, and relaunches.
	AttachTarget string

	quitting bool
	err      error
}

func NewModel(reg *registry.Registry, log *history.Log) Model {
	ti := textinput.New()
	ti.Placeholder = "Type to filter..."
	ti.Prompt = ""
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 60

	m := Model{reg: reg, log: log, input: ti}
	m.refreshRows()
	m.applyFilter()
	return m
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tickCmd())
}

func (m *Model) refreshRows() {
	active := m.reg.ActiveName()
	turns := make(map[string]int)
	for _, e := range m.log.Entries() {
		turns[e.Tool]++
	}

	rows := make([]toolRow, 0, len(m.reg.Names()))
	for _, name := range m.reg.Names() {
		s, ok := m.reg.Get(name)
		if !ok {
			continue
		}
		rows = append(rows, toolRow{
			Name:    name,
			Display: s.DisplayName(),
			State:   s.State(),
			Active:  name == active,
			Turns:   turns[name],
		})
	}
	m.rows = rows
}

func (m *Model) refreshPreview() {
	if m.preview == nil {
		return
	}
	s, ok := m.reg.Get(m.preview.Tool)
	if !ok {
		return
	}
	m.preview.Output = s.Sanitize(s.Tail(previewBytes))
}

// sendCmd performs a capture in the background so the picker stays
// responsive while the tool works.
func (m Model) sendCmd(tool, text string) tea.Cmd {
	s, ok := m.reg.Get(tool)
	if !ok {
		return nil
	}
	log := m.log
	return func() tea.Msg {
		reply, err := s.SendAndCapture(context.Background(), text)
		if err == nil {
			log.Append(tool, history.RoleUser, text)
			log.Append(tool, history.RoleAssistant, reply)
		}
		return sendDoneMsg{Tool: tool, Err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tickMsg:
		m.refreshRows()
		m.applyFilter()
		m.refreshPreview()
		return m, tickCmd()

	case sendDoneMsg:
		m.sending = false
		if msg.Err != nil {
			m.err = msg.Err
		}
		m.refreshRows()
		m.applyFilter()
		m.refreshPreview()
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 4
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Ctrl+C always quits
	if key.Matches(msg, keys.CtrlC) {
		m.quitting = true
		return m, tea.Quit
	}

	if key.Matches(msg, keys.Escape) {
		if m.confirmKill != "" {
			m.confirmKill = ""
			return m, nil
		}
		if m.preview != nil {
			m.preview = nil
			m.input.SetValue("")
			m.applyFilter()
			return m, nil
		}
		m.input.SetValue("")
		m.applyFilter()
		return m, nil
	}

	// A pending kill confirmation swallows everything but Enter.
	if m.confirmKill != "" {
		if key.Matches(msg, keys.Enter) {
			return m.executeKill()
		}
		m.confirmKill = ""
		return m, nil
	}

	if key.Matches(msg, keys.Kill) {
		if sel := m.selectedRow(); sel != nil && sel.State != session.Dead {
			m.confirmKill = sel.Name
		}
		return m, nil
	}

	// q quits only when input is empty and no preview
	if key.Matches(msg, keys.Quit) && m.input.Value() == "" && m.preview == nil {
		m.quitting = true
		return m, tea.Quit
	}

	if m.preview != nil {
		return m.handlePreviewKey(msg)
	}
	return m.handleListKey(msg)
}

func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Navigation: only when input is empty
	if m.input.Value() == "" {
		if key.Matches(msg, keys.Up) {
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		}
		if key.Matches(msg, keys.Down) {
			if m.cursor < len(m.filtered)-1 {
				m.cursor++
			}
			return m, nil
		}
	}

	if key.Matches(msg, keys.Enter) {
		sel := m.selectedRow()
		if sel == nil {
			return m, nil
		}
		m.preview = &previewState{Tool: sel.Name}
		m.refreshPreview()
		m.input.SetValue("")
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.applyFilter()
	return m, cmd
}

func (m Model) handlePreviewKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Navigation switches the previewed tool.
	if m.input.Value() == "" {
		if key.Matches(msg, keys.Up) {
			if m.cursor > 0 {
				m.cursor--
			}
			return m.switchPreview()
		}
		if key.Matches(msg, keys.Down) {
			if m.cursor < len(m.filtered)-1 {
				m.cursor++
			}
			return m.switchPreview()
		}
	}

	if key.Matches(msg, keys.Enter) {
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			// Attach to the previewed tool.
			m.AttachTarget = m.preview.Tool
			m.preview = nil
			m.quitting = true
			return m, tea.Quit
		}
		if m.sending {
			return m, nil
		}
		m.sending = true
		m.err = nil
		tool := m.preview.Tool
		m.input.SetValue("")
		return m, m.sendCmd(tool, text)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) switchPreview() (tea.Model, tea.Cmd) {
	sel := m.selectedRow()
	if sel == nil {
		return m, nil
	}
	m.preview.Tool = sel.Name
	m.preview.Output = ""
	m.refreshPreview()
	return m, nil
}

func (m Model) executeKill() (Model, tea.Cmd) {
	if m.confirmKill == "" {
		return m, nil
	}
	if s, ok := m.reg.Get(m.confirmKill); ok {
		s.Kill()
	}
	m.confirmKill = ""
	m.refreshRows()
	m.applyFilter()
	m.refreshPreview()
	return m, nil
}

func (m *Model) applyFilter() {
	query := strings.ToLower(strings.TrimSpace(m.input.Value()))
	if query == "" {
		m.filtered = m.rows
	} else {
		m.filtered = nil
		for _, r := range m.rows {
			if strings.Contains(strings.ToLower(r.Name), query) ||
				strings.Contains(strings.ToLower(r.Display), query) {
				m.filtered = append(m.filtered, r)
			}
		}
	}
	if m.cursor >= len(m.filtered) {
		m.cursor = max(0, len(m.filtered)-1)
	}
}

func (m Model) selectedRow() *toolRow {
	if m.cursor < 0 || m.cursor >= len(m.filtered) {
		return nil
	}
	r := m.filtered[m.cursor]
	return &r
}
