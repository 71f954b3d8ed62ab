package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/simon/ferryctl/internal/history"
)

var sendCmd = &cobra.Command{
	Use:   "send <text...>",
	Short: "Send one message to a tool and print the captured reply",
	Long: `Spawns the tool if needed, writes the message to its terminal, captures
the reply, and prints the sanitized text. Suited to scripting; the tools
keep running only for the duration of the call.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		tool, _ := cmd.Flags().GetString("tool")
		s, err := a.session(tool)
		if err != nil {
			return err
		}

		text := strings.Join(args, " ")
		reply, err := s.SendAndCapture(context.Background(), text)
		if err != nil {
			return fmt.Errorf("send to %s: %w", s.Name(), err)
		}
		a.log.Append(s.Name(), history.RoleUser, text)
		a.log.Append(s.Name(), history.RoleAssistant, reply)
		fmt.Println(reply)
		return nil
	},
}

func init() {
	sendCmd.Flags().StringP("tool", "t", "", "Tool to send to (default: the active tool)")
	rootCmd.AddCommand(sendCmd)
}
