package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Logger.Level != "info" || cfg.Logger.Output != "stderr" {
		t.Errorf("logger defaults = %+v", cfg.Logger)
	}
	if cfg.Conversation.StickyWindowDuration() != 5*time.Minute {
		t.Errorf("sticky window = %v", cfg.Conversation.StickyWindowDuration())
	}
	if cfg.Conversation.IdleTTLDuration() != 24*time.Hour {
		t.Errorf("idle TTL = %v", cfg.Conversation.IdleTTLDuration())
	}
	if cfg.Metrics.Backend != "file" || cfg.Metrics.WindowSize != 1000 {
		t.Errorf("metrics defaults = %+v", cfg.Metrics)
	}
	if cfg.Engine.StepTimeoutDuration() != 30*time.Second || cfg.Engine.MaxRunning != 8 {
		t.Errorf("engine defaults = %+v", cfg.Engine)
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Metrics.Backend != "file" {
		t.Errorf("backend = %q, want default", cfg.Metrics.Backend)
	}
}

func TestLoadOverridesAndParses(t *testing.T) {
	path := writeConfig(t, `
logger:
  level: debug
  format: json
conversation:
  sticky_window: 2m
metrics:
  backend: sqlite
  path: /tmp/metrics.db
engine:
  step_timeout: 10s
  max_running: 2
workflows:
  - name: triage
    steps: [lucius, tom]
    guards:
      tom: has_results
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logger.Level != "debug" || cfg.Logger.Format != "json" {
		t.Errorf("logger = %+v", cfg.Logger)
	}
	if cfg.Conversation.StickyWindowDuration() != 2*time.Minute {
		t.Errorf("sticky window = %v", cfg.Conversation.StickyWindowDuration())
	}
	if cfg.Metrics.Backend != "sqlite" {
		t.Errorf("backend = %q", cfg.Metrics.Backend)
	}
	if cfg.Engine.MaxRunning != 2 {
		t.Errorf("max running = %d", cfg.Engine.MaxRunning)
	}
	if len(cfg.Workflows) != 1 || cfg.Workflows[0].Guards["tom"] != "has_results" {
		t.Errorf("workflows = %+v", cfg.Workflows)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("METRICS_PATH", "/var/lib/lucius/metrics.json")
	path := writeConfig(t, `
metrics:
  path: ${METRICS_PATH}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Metrics.Path != "/var/lib/lucius/metrics.json" {
		t.Errorf("path = %q", cfg.Metrics.Path)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"bad backend", "metrics:\n  backend: redis\n"},
		{"bad duration", "conversation:\n  sticky_window: five minutes\n"},
		{"negative rate", "dispatch:\n  rate_per_second: -1\n"},
		{"workflow without steps", "workflows:\n  - name: empty\n"},
		{"duplicate workflow", "workflows:\n  - name: a\n    steps: [x]\n  - name: a\n    steps: [y]\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.content)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
