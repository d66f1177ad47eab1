package registry

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"testing"

	"lucius-ai/internal/domain"
)

type stubAgent struct {
	identity domain.AgentIdentity
	reply    string
}

func (a *stubAgent) Identity() domain.AgentIdentity { return a.identity }

func (a *stubAgent) Process(context.Context, string, domain.TaskContext) (domain.Response, error) {
	return domain.Response{Text: a.reply}, nil
}

func makeAgent(name, role, reply string) *stubAgent {
	return &stubAgent{identity: domain.AgentIdentity{Name: name, Role: role}, reply: reply}
}

func TestRegisterAndGet(t *testing.T) {
	r := New(slog.Default())
	r.Register(makeAgent("sarah", "Calendar Manager", "ok"))

	got, err := r.Get("sarah")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Identity().Role != "Calendar Manager" {
		t.Errorf("Role = %q, want %q", got.Identity().Role, "Calendar Manager")
	}
}

func TestRegisterOverwrites(t *testing.T) {
	r := New(slog.Default())
	r.Register(makeAgent("sarah", "Calendar Manager", "old"))
	r.Register(makeAgent("sarah", "Calendar Manager v2", "new"))

	got, err := r.Get("sarah")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp, _ := got.Process(context.Background(), "", nil)
	if resp.Text != "new" {
		t.Errorf("expected replacement to win, got %q", resp.Text)
	}
	if len(r.Names()) != 1 {
		t.Errorf("Names() = %v, want one entry", r.Names())
	}
}

func TestGetNotFound(t *testing.T) {
	r := New(slog.Default())
	_, err := r.Get("nonexistent")
	if !errors.Is(err, domain.ErrAgentNotFound) {
		t.Errorf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestNamesSorted(t *testing.T) {
	r := New(slog.Default())
	r.Register(makeAgent("tom", "Project Manager", ""))
	r.Register(makeAgent("karla", "Email Manager", ""))
	r.Register(makeAgent("sarah", "Calendar Manager", ""))

	want := []string{"karla", "sarah", "tom"}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestLookupClosure(t *testing.T) {
	r := New(slog.Default())
	r.Register(makeAgent("mike", "Research Specialist", ""))

	lookup := r.Lookup()
	if _, err := lookup("mike"); err != nil {
		t.Fatalf("lookup(mike): %v", err)
	}
	if _, err := lookup("ghost"); !errors.Is(err, domain.ErrAgentNotFound) {
		t.Errorf("expected ErrAgentNotFound, got %v", err)
	}
}
