package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent conversation entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if clear, _ := cmd.Flags().GetBool("clear"); clear {
			a.log.Clear()
			if err := a.store.ClearTurns(); err != nil {
				return err
			}
			fmt.Println("history cleared")
			return nil
		}

		limit, _ := cmd.Flags().GetInt("limit")
		full, _ := cmd.Flags().GetBool("full")

		entries := a.log.Entries()
		if len(entries) == 0 {
			fmt.Println("no history yet")
			return nil
		}
		if len(entries) > limit {
			entries = entries[len(entries)-limit:]
		}
		for _, e := range entries {
			if full {
				fmt.Printf("--- [%s] %s %s\n%s\n", e.Tool, e.Role, e.At.Format("15:04:05"), e.Content)
				continue
			}
			fmt.Printf("  [%s] %-9s %s\n", e.Tool, e.Role, firstLine(e.Content, 100))
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Number of entries to show")
	historyCmd.Flags().Bool("full", false, "Print full entry contents")
	historyCmd.Flags().Bool("clear", false, "Wipe the conversation history")
	rootCmd.AddCommand(historyCmd)
}
