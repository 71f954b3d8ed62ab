package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var forwardCmd = &cobra.Command{
	Use:   "forward [target]",
	Short: "Forward the newest captured reply to another tool",
	Long: `Takes the most recent assistant reply from the conversation log, quotes it
together with the query that produced it, and sends the composed prompt to
the target tool. With exactly two tools configured the target is implied;
otherwise name it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		target := ""
		if len(args) == 1 {
			target = args[0]
		}
		instruction, _ := cmd.Flags().GetString("message")

		res, err := a.fwd.Forward(context.Background(), target, instruction)
		if err != nil {
			return err
		}
		fmt.Printf("forwarded %s -> %s\n", res.Source, res.Target)
		fmt.Println(res.Reply)
		return nil
	},
}

func init() {
	forwardCmd.Flags().StringP("message", "m", "", "Extra instruction appended to the forwarded prompt")
	rootCmd.AddCommand(forwardCmd)
}
