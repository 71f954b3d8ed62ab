package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/simon/ferryctl/internal/history"
	"github.com/simon/ferryctl/internal/session"
)

func SetVersionInfo(version, commit string) {
	rootCmd.Version = fmt.Sprintf("%s (%s)", version, commit)
}

var rootCmd = &cobra.Command{
	Use:   "ferryctl",
	Short: "Host interactive AI CLIs in PTYs and ferry replies between them",
	Long: `ferryctl keeps each configured AI tool alive in its own pseudo-terminal.
Type a message to send it to the active tool and capture the reply, attach
to any tool's live terminal, and forward one tool's reply to another.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		return runREPL(a)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// lineReader assembles lines from the shared stdin chunk channel.
type lineReader struct {
	in  <-chan []byte
	buf []byte
}

func (r *lineReader) next() (string, bool) {
	for {
		if i := bytes.IndexByte(r.buf, '\n'); i >= 0 {
			line := strings.TrimRight(string(r.buf[:i]), "\r")
			r.buf = r.buf[i+1:]
			return line, true
		}
		chunk, ok := <-r.in
		if !ok {
			if len(r.buf) > 0 {
				line := string(r.buf)
				r.buf = nil
				return line, true
			}
			return "", false
		}
		r.buf = append(r.buf, chunk...)
	}
}

func runREPL(a *app) error {
	if !a.term.IsTerminal() {
		return errors.New("stdin is not a terminal; use 'ferryctl send' for scripted use")
	}

	fmt.Printf("ferryctl: tools %s, active %s\n", strings.Join(a.reg.Names(), ", "), a.reg.ActiveName())
	fmt.Println(`type a message, or /help for commands`)

	// An interrupt during a capture cancels just that turn; with nothing in
	// flight it tears everything down.
	var cancelMu sync.Mutex
	var cancelCapture context.CancelFunc

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt)
	defer signal.Stop(sigc)
	go func() {
		for range sigc {
			cancelMu.Lock()
			cancel := cancelCapture
			cancelMu.Unlock()
			if cancel != nil {
				cancel()
				continue
			}
			fmt.Println("\nshutting down")
			a.close()
			os.Exit(0)
		}
	}()

	withCancel := func(fn func(ctx context.Context) error) error {
		ctx, cancel := context.WithCancel(context.Background())
		cancelMu.Lock()
		cancelCapture = cancel
		cancelMu.Unlock()
		defer func() {
			cancelMu.Lock()
			cancelCapture = nil
			cancelMu.Unlock()
			cancel()
		}()
		return fn(ctx)
	}

	reader := &lineReader{in: a.term.Input()}
	for {
		fmt.Printf("%s> ", a.reg.ActiveName())
		line, ok := reader.next()
		if !ok {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var err error
		switch {
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/help":
			printHelp()
		case line == "/status":
			a.printStatus()
		case line == "/history":
			a.printHistory(20)
		case line == "/clear":
			a.log.Clear()
			if err = a.store.ClearTurns(); err == nil {
				fmt.Println("history cleared")
			}
		case line == "/pick":
			err = a.runPicker()
		case strings.HasPrefix(line, "/switch"):
			err = a.switchTool(strings.TrimSpace(strings.TrimPrefix(line, "/switch")))
		case strings.HasPrefix(line, "/attach"):
			err = a.attachByName(strings.TrimSpace(strings.TrimPrefix(line, "/attach")))
		case strings.HasPrefix(line, "/forward"):
			err = withCancel(func(ctx context.Context) error {
				return a.forwardLine(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/forward")))
			})
		case strings.HasPrefix(line, "/"):
			err = fmt.Errorf("unknown command %s, try /help", strings.Fields(line)[0])
		default:
			err = withCancel(func(ctx context.Context) error {
				return a.sendToActive(ctx, line)
			})
		}
		if err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

func printHelp() {
	fmt.Print(`  <text>              send to the active tool and capture the reply
  /attach [tool]      take over the tool's terminal (Ctrl+Q or Esc Esc to detach)
  /forward [tool] [instruction]
                      send the newest reply to another tool
  /switch <tool>      change the active tool
  /pick               interactive tool picker
  /status             session states
  /history            recent conversation entries
  /clear              wipe conversation history
  /quit               stop all tools and exit
`)
}

func (a *app) sendToActive(ctx context.Context, text string) error {
	s, err := a.session("")
	if err != nil {
		return err
	}
	if s.State() == session.Dead {
		fmt.Printf("starting %s...\n", s.DisplayName())
	}
	reply, err := s.SendAndCapture(ctx, text)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("interrupted")
		}
		return err
	}
	a.log.Append(s.Name(), history.RoleUser, text)
	a.log.Append(s.Name(), history.RoleAssistant, reply)
	fmt.Println(reply)
	return nil
}

func (a *app) switchTool(name string) error {
	if name == "" {
		return errors.New("usage: /switch <tool>")
	}
	if err := a.reg.SetActive(name); err != nil {
		return err
	}
	fmt.Printf("active tool is now %s\n", name)
	return nil
}

func (a *app) attachByName(name string) error {
	s, err := a.session(name)
	if err != nil {
		return err
	}
	fmt.Printf("attaching to %s, detach with Ctrl+Q or Esc Esc\n", s.DisplayName())
	return a.attachTo(s)
}

// forwardLine parses "/forward [target] [instruction...]". The first word
// is a target only if it names a registered tool.
func (a *app) forwardLine(ctx context.Context, rest string) error {
	target := ""
	instruction := rest
	if fields := strings.Fields(rest); len(fields) > 0 {
		if _, ok := a.reg.Get(fields[0]); ok {
			target = fields[0]
			instruction = strings.TrimSpace(strings.TrimPrefix(rest, fields[0]))
		}
	}

	res, err := a.fwd.Forward(ctx, target, instruction)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("interrupted")
		}
		return err
	}
	fmt.Printf("forwarded %s -> %s\n", res.Source, res.Target)
	fmt.Println(res.Reply)
	return nil
}

func (a *app) printHistory(limit int) {
	entries := a.log.Entries()
	if len(entries) == 0 {
		fmt.Println("no history yet")
		return
	}
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	for _, e := range entries {
		fmt.Printf("  [%s] %-9s %s\n", e.Tool, e.Role, firstLine(e.Content, 100))
	}
}

func (a *app) printStatus() {
	turns := make(map[string]int)
	for _, e := range a.log.Entries() {
		turns[e.Tool]++
	}
	for _, name := range a.reg.Names() {
		s, _ := a.reg.Get(name)
		marker := " "
		if name == a.reg.ActiveName() {
			marker = "*"
		}
		fmt.Printf("  %s %-12s %-10s %d turns\n", marker, name, s.State(), turns[name])
	}
}
