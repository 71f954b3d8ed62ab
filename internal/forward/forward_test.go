package forward

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/simon/ferryctl/internal/history"
	"github.com/simon/ferryctl/internal/registry"
	"github.com/simon/ferryctl/internal/session"
)

func echoSession(t *testing.T, name string) *session.Session {
	t.Helper()
	s := session.New(session.Options{
		Name: name,
		Spawn: session.SpawnSpec{
			Command: "/bin/sh",
			Args:    []string{"-c", `while read line; do :; done; `},
		},
		IdleTimeout:  300 * time.Millisecond,
		StartupGrace: 100 * time.Millisecond,
	})
	t.Cleanup(s.Kill)
	return s
}

func seededLog(tool string) *history.Log {
	l := history.New(nil)
	l.Append(tool, history.RoleUser, "hello")
	l.Append(tool, history.RoleAssistant, "hi")
	return l
}

func TestForwardAutoSelectsOnlyCandidate(t *testing.T) {
	reg := registry.New()
	reg.Register(echoSession(t, "a"))
	reg.Register(echoSession(t, "b"))
	log := seededLog("a")

	res, err := New(reg, log, nil).Forward(context.Background(), "", "")
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if res.Source != "a" || res.Target != "b" {
		t.Errorf("routed %s -> %s, want a -> b", res.Source, res.Target)
	}
	if reg.ActiveName() != "b" {
		t.Errorf("active = %q, want target", reg.ActiveName())
	}

	entries := log.Entries()
	if len(entries) != 4 {
		t.Fatalf("log has %d entries, want 4", len(entries))
	}
	sent := entries[2]
	if sent.Tool != "b" || sent.Role != history.RoleUser {
		t.Errorf("forwarded entry = %+v", sent)
	}
	// The composed prompt quotes both the reply and its originating query.
	for _, want := range []string{"hi", "hello", beginReply, endReply, beginQuery} {
		if !strings.Contains(sent.Content, want) {
			t.Errorf("prompt missing %q:\n%s", want, sent.Content)
		}
	}
	if entries[3].Role != history.RoleAssistant || entries[3].Tool != "b" {
		t.Errorf("reply entry = %+v", entries[3])
	}
}

func TestForwardAmbiguousWithThreeTools(t *testing.T) {
	reg := registry.New()
	for _, name := range []string{"a", "b", "c"} {
		reg.Register(echoSession(t, name))
	}
	log := seededLog("a")

	_, err := New(reg, log, nil).Forward(context.Background(), "", "")
	if err == nil {
		t.Fatal("expected ambiguity error")
	}
	for _, cand := range []string{"b", "c"} {
		if !strings.Contains(err.Error(), cand) {
			t.Errorf("ambiguity error missing candidate %q: %v", cand, err)
		}
	}
}

func TestForwardExplicitTargetWithThreeTools(t *testing.T) {
	reg := registry.New()
	for _, name := range []string{"a", "b", "c"} {
		reg.Register(echoSession(t, name))
	}
	log := seededLog("a")

	res, err := New(reg, log, nil).Forward(context.Background(), "c", "compare these")
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if res.Target != "c" {
		t.Errorf("target = %q, want c", res.Target)
	}
	entries := log.Entries()
	if !strings.Contains(entries[2].Content, "compare these") {
		t.Error("operator instruction missing from prompt")
	}
}

func TestForwardRejectsSourceAsTarget(t *testing.T) {
	reg := registry.New()
	reg.Register(echoSession(t, "a"))
	reg.Register(echoSession(t, "b"))
	log := seededLog("a")

	if _, err := New(reg, log, nil).Forward(context.Background(), "a", ""); err == nil {
		t.Fatal("forwarding to the source must fail")
	}
	if len(log.Entries()) != 2 {
		t.Error("failed forward must not append log entries")
	}
}

func TestForwardErrors(t *testing.T) {
	reg := registry.New()
	reg.Register(echoSession(t, "a"))
	reg.Register(echoSession(t, "b"))

	// Empty log: nothing to forward.
	_, err := New(reg, history.New(nil), nil).Forward(context.Background(), "", "")
	if !errors.Is(err, ErrNoResponse) {
		t.Errorf("err = %v, want ErrNoResponse", err)
	}

	// Unknown explicit target.
	if _, err := New(reg, seededLog("a"), nil).Forward(context.Background(), "ghost", ""); err == nil {
		t.Error("unknown target should fail")
	}

	// Source is the only registered tool.
	solo := registry.New()
	solo.Register(echoSession(t, "a"))
	if _, err := New(solo, seededLog("a"), nil).Forward(context.Background(), "", ""); err == nil {
		t.Error("no candidates should fail")
	}
}

func TestComposePrompt(t *testing.T) {
	p := composePrompt("the reply\n", "the query", "")
	if !strings.Contains(p, beginReply+"\nthe reply\n"+endReply) {
		t.Errorf("reply not quoted cleanly:\n%s", p)
	}
	if !strings.Contains(p, defaultInstruction) {
		t.Error("default instruction missing")
	}

	p = composePrompt("r", "", "do a review")
	if strings.Contains(p, beginQuery) {
		t.Error("query markers present with no query")
	}
	if !strings.HasSuffix(p, "do a review") {
		t.Errorf("instruction should close the prompt:\n%s", p)
	}
}
