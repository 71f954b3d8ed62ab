package registry

import (
	"testing"

	"github.com/simon/ferryctl/internal/session"
)

func stub(name string) *session.Session {
	return session.New(session.Options{Name: name})
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	if err := r.Register(stub("claude")); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(stub("codex")); err != nil {
		t.Fatal(err)
	}

	if _, ok := r.Get("claude"); !ok {
		t.Error("claude not found")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("missing tool found")
	}
	if err := r.Register(stub("claude")); err == nil {
		t.Error("duplicate registration should fail")
	}
}

func TestNamesKeepRegistrationOrder(t *testing.T) {
	r := New()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(stub(name)); err != nil {
			t.Fatal(err)
		}
	}
	got := r.Names()
	want := []string{"zeta", "alpha", "mid"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", got, want)
		}
	}
}

func TestActiveDefaultsToFirst(t *testing.T) {
	r := New()
	if r.Active() != nil {
		t.Error("empty registry should have no active session")
	}
	r.Register(stub("claude"))
	r.Register(stub("codex"))
	if r.ActiveName() != "claude" {
		t.Errorf("active = %q, want first registered", r.ActiveName())
	}

	if err := r.SetActive("codex"); err != nil {
		t.Fatal(err)
	}
	if r.Active().Name() != "codex" {
		t.Errorf("active = %q, want codex", r.Active().Name())
	}
	if err := r.SetActive("nope"); err == nil {
		t.Error("SetActive on unknown tool should fail")
	}
}
