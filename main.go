package main

import (
	_ "embed"

	"github.com/simon/ferryctl/cmd"
)

//go:embed .claude/skills/ferry/SKILL.md
var skillContent []byte

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit)
	cmd.SetSkillContent(skillContent)
	cmd.Execute()
}
