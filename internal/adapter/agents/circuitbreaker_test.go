package agents

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"lucius-ai/internal/domain"
)

type flakyAgent struct {
	identity domain.AgentIdentity
	err      error
	calls    int
}

func (a *flakyAgent) Identity() domain.AgentIdentity { return a.identity }

func (a *flakyAgent) Process(context.Context, string, domain.TaskContext) (domain.Response, error) {
	a.calls++
	if a.err != nil {
		return domain.Response{}, a.err
	}
	return domain.Response{Text: "ok"}, nil
}

func TestBreakerPassesThrough(t *testing.T) {
	inner := &flakyAgent{identity: domain.AgentIdentity{Name: "sarah"}}
	b := NewBreaker(inner, BreakerSettings{}, slog.Default())

	if b.Identity().Name != "sarah" {
		t.Errorf("Identity = %q", b.Identity().Name)
	}
	resp, err := b.Process(context.Background(), "hola", nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if resp.Text != "ok" {
		t.Errorf("Text = %q", resp.Text)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyAgent{identity: domain.AgentIdentity{Name: "sarah"}, err: errors.New("backend down")}
	b := NewBreaker(inner, BreakerSettings{MaxFailures: 3, Timeout: time.Minute}, slog.Default())

	for i := 0; i < 3; i++ {
		if _, err := b.Process(context.Background(), "hola", nil); err == nil {
			t.Fatal("expected failure")
		}
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("State = %v, want open", b.State())
	}

	// Open circuit fails fast without reaching the worker.
	before := inner.calls
	_, err := b.Process(context.Background(), "hola", nil)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("err = %v, want ErrOpenState", err)
	}
	if inner.calls != before {
		t.Errorf("worker reached through open circuit")
	}
}

func TestBreakerRecovers(t *testing.T) {
	inner := &flakyAgent{identity: domain.AgentIdentity{Name: "sarah"}, err: errors.New("backend down")}
	b := NewBreaker(inner, BreakerSettings{MaxFailures: 2, Timeout: 30 * time.Millisecond}, slog.Default())

	for i := 0; i < 2; i++ {
		b.Process(context.Background(), "hola", nil)
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("State = %v, want open", b.State())
	}

	inner.err = nil
	time.Sleep(50 * time.Millisecond)

	// The half-open probe succeeds and closes the circuit.
	if _, err := b.Process(context.Background(), "hola", nil); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != gobreaker.StateClosed {
		t.Errorf("State = %v, want closed", b.State())
	}
}
