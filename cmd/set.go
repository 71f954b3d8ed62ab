package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var setCmd = &cobra.Command{
	Use:   "set default <tool>",
	Short: "Persist settings (e.g. the default tool)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		switch args[0] {
		case "default":
			name := args[1]
			if _, ok := a.cfg.Tools[name]; !ok {
				return fmt.Errorf("unknown tool %q", name)
			}
			if err := a.store.SetDefaultTool(name); err != nil {
				return fmt.Errorf("persist default tool: %w", err)
			}
			fmt.Printf("default tool is now %q\n", name)
			return nil
		default:
			return fmt.Errorf("unknown setting %q (supported: default)", args[0])
		}
	},
}

func init() {
	rootCmd.AddCommand(setCmd)
}
