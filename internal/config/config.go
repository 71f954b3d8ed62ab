package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Tool describes one agent CLI that ferryctl can host in a PTY.
type Tool struct {
	DisplayName  string        `yaml:"display_name"`
	Command      string        `yaml:"command"`
	Args         []string      `yaml:"args"`
	ResumeFlag   string        `yaml:"resume_flag"`
	ReadyPattern string        `yaml:"ready_pattern"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	HardTimeout  time.Duration `yaml:"hard_timeout"`
	StartupGrace time.Duration `yaml:"startup_grace"`
	Sanitizer    string        `yaml:"sanitizer"`
}

// CompiledReadyPattern returns the ready-prompt regexp, or nil when unset.
// Validate has already proven the pattern compiles.
func (t Tool) CompiledReadyPattern() *regexp.Regexp {
	if t.ReadyPattern == "" {
		return nil
	}
	re, err := regexp.Compile(t.ReadyPattern)
	if err != nil {
		return nil
	}
	return re
}

type Config struct {
	DefaultTool string          `yaml:"default_tool"`
	Tools       map[string]Tool `yaml:"tools"`
}

// Default returns the built-in tool catalog used when no config file exists.
func Default() *Config {
	return &Config{
		DefaultTool: "claude",
		Tools: map[string]Tool{
			"claude": {
				DisplayName:  "Claude Code",
				Command:      "claude",
				Args:         []string{"--dangerously-skip-permissions"},
				ResumeFlag:   "--resume",
				ReadyPattern: `(?m)^\s*[❯>]\s*$`,
				IdleTimeout:  2 * time.Second,
				HardTimeout:  120 * time.Second,
				StartupGrace: 10 * time.Second,
				Sanitizer:    "claude",
			},
			"codex": {
				DisplayName:  "Codex CLI",
				Command:      "codex",
				ReadyPattern: `(?m)^\s*[›>]\s*$`,
				IdleTimeout:  3 * time.Second,
				HardTimeout:  120 * time.Second,
				StartupGrace: 10 * time.Second,
				Sanitizer:    "codex",
			},
		},
	}
}

// Load reads the config from ~/.config/ferryctl/config.yaml.
// Returns the built-in defaults if the file doesn't exist. Tools defined in
// the file are merged over the defaults so a partial file only has to name
// what it changes.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Default(), nil
	}
	return loadFrom(filepath.Join(home, ".config", "ferryctl", "config.yaml"))
}

func loadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if file.DefaultTool != "" {
		cfg.DefaultTool = file.DefaultTool
	}
	for name, tool := range file.Tools {
		base, ok := cfg.Tools[name]
		if !ok {
			base = Tool{}
		}
		cfg.Tools[name] = mergeTool(base, tool)
	}

	return cfg, cfg.Validate()
}

// mergeTool overlays non-zero fields of override onto base.
func mergeTool(base, override Tool) Tool {
	if override.DisplayName != "" {
		base.DisplayName = override.DisplayName
	}
	if override.Command != "" {
		base.Command = override.Command
	}
	if override.Args != nil {
		base.Args = override.Args
	}
	if override.ResumeFlag != "" {
		base.ResumeFlag = override.ResumeFlag
	}
	if override.ReadyPattern != "" {
		base.ReadyPattern = override.ReadyPattern
	}
	if override.IdleTimeout != 0 {
		base.IdleTimeout = override.IdleTimeout
	}
	if override.HardTimeout != 0 {
		base.HardTimeout = override.HardTimeout
	}
	if override.StartupGrace != 0 {
		base.StartupGrace = override.StartupGrace
	}
	if override.Sanitizer != "" {
		base.Sanitizer = override.Sanitizer
	}
	return base
}

// Validate checks that the default tool exists and every ready pattern
// compiles.
func (c *Config) Validate() error {
	if c.DefaultTool != "" {
		if _, ok := c.Tools[c.DefaultTool]; !ok {
			return fmt.Errorf("default_tool %q is not defined under tools", c.DefaultTool)
		}
	}
	for name, tool := range c.Tools {
		if tool.Command == "" {
			return fmt.Errorf("tool %q has no command", name)
		}
		if tool.ReadyPattern != "" {
			if _, err := regexp.Compile(tool.ReadyPattern); err != nil {
				return fmt.Errorf("tool %q ready_pattern: %w", name, err)
			}
		}
	}
	return nil
}

// ToolNames returns all configured tool names, default tool first, the rest
// sorted. This is the registration order for the session registry.
func (c *Config) ToolNames() []string {
	rest := make([]string, 0, len(c.Tools))
	for name := range c.Tools {
		if name != c.DefaultTool {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)

	names := make([]string, 0, len(c.Tools))
	if _, ok := c.Tools[c.DefaultTool]; ok {
		names = append(names, c.DefaultTool)
	}
	return append(names, rest...)
}
