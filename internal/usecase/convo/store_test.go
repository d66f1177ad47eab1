package convo

import (
	"log/slog"
	"testing"
	"time"

	"lucius-ai/internal/domain"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func newTestStore(opts ...Option) *Store {
	return NewStore(5*time.Minute, slog.Default(), opts...)
}

func TestGetFreshContextNotRetained(t *testing.T) {
	s := newTestStore()

	cctx := s.Get("t1")
	if cctx.ThreadID != "t1" {
		t.Errorf("ThreadID = %q, want t1", cctx.ThreadID)
	}
	if len(cctx.History) != 0 {
		t.Errorf("fresh context has history: %v", cctx.History)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d after plain Get, want 0", s.Len())
	}
}

func TestUpdateAppendsAndRetains(t *testing.T) {
	s := newTestStore()

	s.Update("t1", "hola", domain.SpeakerUser, "¡Hola!", "greeting", "lucius")
	s.Update("t1", "gracias", domain.SpeakerUser, "De nada.", "", "")

	cctx := s.Get("t1")
	if len(cctx.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(cctx.History))
	}
	if cctx.History[0].ID == "" || cctx.History[0].ID == cctx.History[1].ID {
		t.Errorf("turn IDs not unique: %q vs %q", cctx.History[0].ID, cctx.History[1].ID)
	}
	// Empty task and agent must not clear earlier values.
	if cctx.CurrentTask != "greeting" {
		t.Errorf("CurrentTask = %q, want greeting", cctx.CurrentTask)
	}
	if cctx.ActiveAgent != "lucius" {
		t.Errorf("ActiveAgent = %q, want lucius", cctx.ActiveAgent)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := newTestStore()
	s.Update("t1", "hola", domain.SpeakerUser, "¡Hola!", "greeting", "lucius")

	cctx := s.Get("t1")
	cctx.ActiveAgent = "mutated"
	cctx.History[0].Message = "mutated"

	again := s.Get("t1")
	if again.ActiveAgent != "lucius" || again.History[0].Message != "hola" {
		t.Error("Get returned a view into store internals")
	}
}

func TestShouldStickWindowBoundary(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestStore(WithClock(fixedClock(base)))

	s.Update("t1", "agenda una reunión", domain.SpeakerUser, "Propongo las 10:00.", "calendar", "sarah")

	cases := []struct {
		name  string
		at    time.Time
		stick bool
	}{
		{"well inside window", base.Add(4*time.Minute + 59*time.Second), true},
		{"exactly at boundary", base.Add(5 * time.Minute), true},
		{"just past boundary", base.Add(5*time.Minute + time.Second), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.ShouldStick("t1", tc.at); got != tc.stick {
				t.Errorf("ShouldStick = %v, want %v", got, tc.stick)
			}
		})
	}
}

func TestShouldStickRequiresActiveAgent(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestStore(WithClock(fixedClock(base)))

	if s.ShouldStick("missing", base) {
		t.Error("unknown thread should not stick")
	}

	s.Update("t1", "hola", domain.SpeakerUser, "¡Hola!", "", "")
	if s.ShouldStick("t1", base) {
		t.Error("thread without active agent should not stick")
	}
}

func TestReapIdle(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	s := newTestStore(
		WithClock(func() time.Time { return clock }),
		WithIdleTTL(time.Hour),
	)

	s.Update("old", "hola", domain.SpeakerUser, "¡Hola!", "", "lucius")
	clock = base.Add(59 * time.Minute)
	s.Update("fresh", "hola", domain.SpeakerUser, "¡Hola!", "", "lucius")

	reaped := s.ReapIdle(base.Add(90 * time.Minute))
	if reaped != 1 {
		t.Fatalf("reaped = %d, want 1", reaped)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
	if got := s.Get("fresh"); len(got.History) != 1 {
		t.Error("surviving context lost its history")
	}
}
