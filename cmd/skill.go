package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var embeddedSkillContent []byte

func SetSkillContent(content []byte) {
	embeddedSkillContent = content
}

var skillCmd = &cobra.Command{
	Use:   "skill",
	Short: "Install the ferry skill for Claude Code",
	Long:  `Installs the ferry skill globally to ~/.claude/skills/ferry/SKILL.md.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(embeddedSkillContent) == 0 {
			return fmt.Errorf("skill content not embedded")
		}

		path, err := skillInstallPath()
		if err != nil {
			return fmt.Errorf("failed to get home dir: %w", err)
		}

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, embeddedSkillContent, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Printf("Installed %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(skillCmd)
}
