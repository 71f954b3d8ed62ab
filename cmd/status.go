package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configured tools, session states, and versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		probe, _ := cmd.Flags().GetBool("probe")

		turns := make(map[string]int)
		for _, e := range a.log.Entries() {
			turns[e.Tool]++
		}

		fmt.Printf("  %-12s %-10s %-8s %s\n", "TOOL", "STATE", "TURNS", "VERSION")
		for _, name := range a.reg.Names() {
			s, _ := a.reg.Get(name)
			marker := " "
			if name == a.reg.ActiveName() {
				marker = "*"
			}

			version, _ := a.store.ToolVersion(name)
			if probe {
				if v := probeVersion(a.store, name, a.cfg.Tools[name].Command); v != "" {
					version = v
				}
			}
			if version == "" {
				version = "-"
			}
			fmt.Printf("%s %-12s %-10s %-8d %s\n", marker, name, s.State(), turns[name], version)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolP("probe", "p", false, "Run each tool's --version and record the result")
	rootCmd.AddCommand(statusCmd)
}
