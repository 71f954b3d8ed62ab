package history

import "testing"

func TestAppendAndLastAssistant(t *testing.T) {
	l := New(nil)
	if _, ok := l.LastAssistant(); ok {
		t.Error("empty log should have no assistant entry")
	}

	l.Append("claude", RoleUser, "what is 2+2")
	l.Append("claude", RoleAssistant, "4")
	l.Append("codex", RoleUser, "hello")
	l.Append("codex", RoleAssistant, "hi there")

	last, ok := l.LastAssistant()
	if !ok {
		t.Fatal("expected an assistant entry")
	}
	if last.Tool != "codex" || last.Content != "hi there" {
		t.Errorf("last = %+v, want newest codex reply", last)
	}
	if l.Len() != 4 {
		t.Errorf("Len = %d, want 4", l.Len())
	}
}

func TestLastExchangePairsQueryWithReply(t *testing.T) {
	l := New(nil)
	l.Append("claude", RoleUser, "first question")
	l.Append("claude", RoleAssistant, "first answer")
	l.Append("codex", RoleUser, "codex question")
	l.Append("claude", RoleUser, "second question")
	l.Append("claude", RoleAssistant, "second answer")

	query, reply, ok := l.LastExchange()
	if !ok {
		t.Fatal("expected an exchange")
	}
	if reply.Content != "second answer" {
		t.Errorf("reply = %q, want newest assistant entry", reply.Content)
	}
	// The originating query is the nearest prior user entry on the same
	// tool, not the codex question in between.
	if query != "second question" {
		t.Errorf("query = %q, want %q", query, "second question")
	}
}

func TestLastExchangeWithoutQuery(t *testing.T) {
	l := New(nil)
	l.Append("claude", RoleAssistant, "transcript captured during attach")

	query, reply, ok := l.LastExchange()
	if !ok {
		t.Fatal("expected an exchange")
	}
	if query != "" {
		t.Errorf("query = %q, want empty", query)
	}
	if reply.Content == "" {
		t.Error("reply should carry the transcript")
	}
}

type recordingSink struct{ entries []Entry }

func (r *recordingSink) AppendTurn(e Entry) { r.entries = append(r.entries, e) }

func TestSinkReceivesAppends(t *testing.T) {
	sink := &recordingSink{}
	l := New(sink)
	l.Append("claude", RoleUser, "hi")
	l.Append("claude", RoleAssistant, "hello")

	if len(sink.entries) != 2 {
		t.Fatalf("sink got %d entries, want 2", len(sink.entries))
	}
	if sink.entries[1].Role != RoleAssistant {
		t.Errorf("sink entry role = %q", sink.entries[1].Role)
	}
}

func TestClear(t *testing.T) {
	l := New(nil)
	l.Append("claude", RoleUser, "hi")
	l.Clear()
	if l.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", l.Len())
	}
	if _, ok := l.LastAssistant(); ok {
		t.Error("cleared log should have no assistant entry")
	}
}
