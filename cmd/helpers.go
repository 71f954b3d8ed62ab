package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/simon/ferryctl/internal/config"
	"github.com/simon/ferryctl/internal/forward"
	"github.com/simon/ferryctl/internal/history"
	"github.com/simon/ferryctl/internal/mux"
	"github.com/simon/ferryctl/internal/registry"
	"github.com/simon/ferryctl/internal/sanitize"
	"github.com/simon/ferryctl/internal/session"
	"github.com/simon/ferryctl/internal/state"
	"github.com/simon/ferryctl/internal/term"
)

// persistedTurns is how much transcript newApp preloads so forwarding works
// across invocations, not only within one run.
const persistedTurns = 200

// app wires the pieces every command needs.
type app struct {
	cfg    *config.Config
	store  *state.Store
	log    *history.Log
	reg    *registry.Registry
	term   *term.Adapter
	mux    *mux.Multiplexer
	fwd    *forward.Engine
	logger *slog.Logger
}

func newApp() (*app, error) {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := state.Open(logger)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	// A persisted default overrides the config file when it still exists.
	if saved, err := store.DefaultTool(); err == nil && saved != "" {
		if _, ok := cfg.Tools[saved]; ok {
			cfg.DefaultTool = saved
		}
	}

	log := history.New(store)
	if turns, err := store.RecentTurns(persistedTurns); err == nil {
		log.Seed(turns)
	}

	workDir, _ := os.Getwd()
	reg := registry.New()
	for _, name := range cfg.ToolNames() {
		tool := cfg.Tools[name]
		reg.Register(session.New(session.Options{
			Name:         name,
			DisplayName:  tool.DisplayName,
			Spawn:        spawnSpec(tool, workDir),
			ReadyPattern: tool.CompiledReadyPattern(),
			IdleTimeout:  tool.IdleTimeout,
			HardTimeout:  tool.HardTimeout,
			StartupGrace: tool.StartupGrace,
			Sanitize:     sanitize.ForProfile(tool.Sanitizer),
			ResumeToken:  resumeProvider(tool, workDir),
			Logger:       logger,
		}))
	}

	adapter := term.New()
	return &app{
		cfg:    cfg,
		store:  store,
		log:    log,
		reg:    reg,
		term:   adapter,
		mux:    mux.New(adapter, logger),
		fwd:    forward.New(reg, log, logger),
		logger: logger,
	}, nil
}

func (a *app) close() {
	a.reg.StopAll()
	a.store.Close()
}

// session resolves a tool name to its session; "" means the active one.
func (a *app) session(name string) (*session.Session, error) {
	if name == "" {
		s := a.reg.Active()
		if s == nil {
			return nil, fmt.Errorf("no tools configured")
		}
		return s, nil
	}
	s, ok := a.reg.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown tool %q (configured: %s)", name, strings.Join(a.reg.Names(), ", "))
	}
	return s, nil
}

// attachTo runs one attachment and records the transcript when it is long
// enough to be worth forwarding later.
func (a *app) attachTo(s *session.Session) error {
	transcript, exited, err := a.mux.Attach(s)
	if err != nil {
		return err
	}
	if transcript != "" {
		a.log.Append(s.Name(), history.RoleAssistant, transcript)
	}
	if exited {
		fmt.Printf("%s exited\n", s.DisplayName())
	}
	return nil
}

// firstLine reduces content to its first line, capped at max runes, for
// one-line history listings. Truncation lands on a rune boundary so
// multi-byte text never prints as mangled UTF-8.
func firstLine(content string, max int) string {
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		content = content[:i] + " ..."
	}
	if utf8.RuneCountInString(content) > max {
		runes := []rune(content)
		content = string(runes[:max-3]) + "..."
	}
	return content
}

func spawnSpec(tool config.Tool, workDir string) session.SpawnSpec {
	return session.SpawnSpec{
		Command:    tool.Command,
		Args:       append([]string(nil), tool.Args...),
		ResumeFlag: tool.ResumeFlag,
		Dir:        workDir,
	}
}

// resumeProvider picks the continuation-token source for a tool, or nil
// when the tool cannot resume.
func resumeProvider(tool config.Tool, workDir string) func() string {
	if tool.ResumeFlag == "" || tool.Sanitizer != "claude" {
		return nil
	}
	return func() string { return session.ClaudeResumeToken(workDir) }
}

// newLogger routes debug output to the file named by FERRYCTL_DEBUG, or
// discards it.
func newLogger() *slog.Logger {
	path := os.Getenv("FERRYCTL_DEBUG")
	if path == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelWarn,
		}))
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return slog.Default()
	}
	return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

var versionPattern = regexp.MustCompile(`\d+\.\d+[\w.-]*`)

// probeVersion asks a tool binary for its version and persists the answer.
// Best effort: a tool without --version just yields "".
func probeVersion(store *state.Store, name, command string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, command, "--version").Output()
	if err != nil {
		return ""
	}
	version := versionPattern.FindString(string(out))
	if version != "" {
		_ = store.SetToolVersion(name, version)
	}
	return version
}

// skillInstallPath is where the agent-facing usage note gets installed.
func skillInstallPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".claude", "skills", "ferry", "SKILL.md"), nil
}
