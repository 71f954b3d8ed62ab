// Package forward relays the newest captured reply from one tool into
// another, quoted between explicit markers so the target treats it as
// material to work with rather than a speaker to role-play against.
package forward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/simon/ferryctl/internal/history"
	"github.com/simon/ferryctl/internal/registry"
)

var (
	// ErrNoResponse means the conversation log holds no assistant reply yet.
	ErrNoResponse = errors.New("no response to forward yet")
)

const (
	beginReply = "<<<BEGIN QUOTED REPLY"
	endReply   = "END QUOTED REPLY>>>"
	beginQuery = "<<<BEGIN ORIGINAL QUERY"
	endQuery   = "END ORIGINAL QUERY>>>"

	defaultInstruction = "Please review the quoted reply above and respond with your own take."
)

type Engine struct {
	reg    *registry.Registry
	log    *history.Log
	logger *slog.Logger
}

func New(reg *registry.Registry, log *history.Log, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{reg: reg, log: log, logger: logger}
}

// Result reports where a forward went and what came back.
type Result struct {
	Source string
	Target string
	Reply  string
}

// Forward sends the newest assistant reply to target, or auto-selects the
// target when exactly one other tool is registered. instruction is extra
// operator text appended to the composed prompt; empty means a default.
// On success the target becomes the active tool and both the forwarded
// prompt and the target's reply are appended to the conversation log.
func (e *Engine) Forward(ctx context.Context, target, instruction string) (Result, error) {
	query, src, ok := e.log.LastExchange()
	if !ok {
		return Result{}, ErrNoResponse
	}

	candidates := make([]string, 0, len(e.reg.Names()))
	for _, name := range e.reg.Names() {
		if name != src.Tool {
			candidates = append(candidates, name)
		}
	}

	switch {
	case target == src.Tool:
		return Result{}, fmt.Errorf("cannot forward %s's reply back to itself", src.Tool)
	case target != "":
		if _, ok := e.reg.Get(target); !ok {
			return Result{}, fmt.Errorf("unknown tool %q", target)
		}
	case len(candidates) == 0:
		return Result{}, fmt.Errorf("no tool other than %s is registered", src.Tool)
	case len(candidates) == 1:
		target = candidates[0]
	default:
		return Result{}, fmt.Errorf("ambiguous target, specify one of: %s", strings.Join(candidates, ", "))
	}

	sess, _ := e.reg.Get(target)
	if err := sess.Start(); err != nil {
		return Result{}, fmt.Errorf("start %s: %w", target, err)
	}

	prompt := composePrompt(src.Content, query, instruction)

	if err := e.reg.SetActive(target); err != nil {
		return Result{}, err
	}
	e.logger.Debug("forwarding", "from", src.Tool, "to", target, "bytes", len(src.Content))

	reply, err := sess.SendAndCapture(ctx, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("forward to %s: %w", target, err)
	}

	e.log.Append(target, history.RoleUser, prompt)
	e.log.Append(target, history.RoleAssistant, reply)

	return Result{Source: src.Tool, Target: target, Reply: reply}, nil
}

// composePrompt quotes the reply, and the query that elicited it, between
// neutral markers. Naming the quoted speaker makes some tools argue with an
// imagined interlocutor instead of answering, so the framing stays
// delimiter-based.
func composePrompt(reply, query, instruction string) string {
	var b strings.Builder
	b.WriteString("Below is a reply received earlier, quoted verbatim between markers.\n\n")
	b.WriteString(beginReply)
	b.WriteString("\n")
	b.WriteString(strings.TrimRight(reply, "\n"))
	b.WriteString("\n")
	b.WriteString(endReply)
	b.WriteString("\n")

	if query != "" {
		b.WriteString("\nIt was produced in response to this query:\n\n")
		b.WriteString(beginQuery)
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(query, "\n"))
		b.WriteString("\n")
		b.WriteString(endQuery)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if instruction = strings.TrimSpace(instruction); instruction != "" {
		b.WriteString(instruction)
	} else {
		b.WriteString(defaultInstruction)
	}
	return b.String()
}
