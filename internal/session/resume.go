package session

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ClaudeResumeToken returns the UUID of the most recently modified Claude
// Code conversation recorded for workDir, or "" when none exists. It is the
// ResumeToken provider wired into sessions whose tool supports a resume
// flag, so a respawn after a crash picks the conversation back up.
func ClaudeResumeToken(workDir string) string {
	if workDir == "" {
		if wd, err := os.Getwd(); err == nil {
			workDir = wd
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	// Claude Code stores per-project transcripts under a directory named
	// after the working directory with slashes turned into hyphens.
	encoded := strings.ReplaceAll(workDir, "/", "-")
	projectDir := filepath.Join(home, ".claude", "projects", encoded)

	entries, err := os.ReadDir(projectDir)
	if err != nil {
		return ""
	}

	var (
		latest time.Time
		token  string
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
			token = strings.TrimSuffix(e.Name(), ".jsonl")
		}
	}
	return token
}
