package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/simon/ferryctl/internal/tui"
)

var pickCmd = &cobra.Command{
	Use:   "pick",
	Short: "Interactively pick a tool to preview, message, or attach to",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		return a.runPicker()
	},
}

// runPicker loops the picker TUI: when the user chooses to attach, the
// program is torn down, the attachment runs on the raw terminal, and the
// picker relaunches after detach.
func (a *app) runPicker() error {
	for {
		m := tui.NewModel(a.reg, a.log)

		// Input comes through the shared stdin pump, so raw mode is
		// toggled here rather than by the TUI runtime.
		if err := a.term.SetRaw(true); err != nil {
			return err
		}
		p := tea.NewProgram(m,
			tea.WithAltScreen(),
			tea.WithInput(a.term.InputReader()),
		)
		finalModel, err := p.Run()
		_ = a.term.SetRaw(false)
		if err != nil {
			return fmt.Errorf("picker: %w", err)
		}

		final := finalModel.(tui.Model)
		if final.AttachTarget == "" {
			return nil
		}

		s, err := a.session(final.AttachTarget)
		if err != nil {
			return err
		}
		if err := a.attachTo(s); err != nil {
			fmt.Printf("error: %v\n", err)
		}
		// Loop restarts the picker.
	}
}

func init() {
	rootCmd.AddCommand(pickCmd)
}
