package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var attachCmd = &cobra.Command{
	Use:   "attach [tool]",
	Short: "Attach the terminal to a tool's live session",
	Long: `Binds your terminal directly to the tool's PTY. Everything you type goes
to the tool; everything it prints comes back. Detach with Ctrl+Q (or
Ctrl+], or a quick double tap of Esc); the tool keeps running.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if !a.term.IsTerminal() {
			return fmt.Errorf("attach needs an interactive terminal")
		}

		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		s, err := a.session(name)
		if err != nil {
			return err
		}
		return a.attachTo(s)
	},
}

func init() {
	rootCmd.AddCommand(attachCmd)
}
