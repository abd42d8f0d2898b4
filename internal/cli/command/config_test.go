package command

import (
	"strings"
	"testing"

	"github.com/yndnr/sandstore-go/internal/cli/config"
)

func TestConfig_PathAndSet(t *testing.T) {
	h := newHarness(t)

	if out := h.mustRun("config", "path"); strings.TrimSpace(out) != h.profile {
		t.Errorf("path = %q, want %q", out, h.profile)
	}

	h.mustRun("config", "set", "default-output", "json")
	h.mustRun("config", "set", "default_server", "example:9000")

	cfg, err := config.Load(h.profile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultOutput != "json" || cfg.DefaultServer != "example:9000" {
		t.Errorf("profile = %+v", cfg)
	}

	for _, args := range [][]string{
		{"config", "set", "default_output", "xml"},
		{"config", "set", "color", "on"},
		{"config", "set", "default_server"},
	} {
		if _, err := h.run("", args...); err == nil {
			t.Errorf("%v should fail", args)
		}
	}
}

func TestConfig_ShowMasksTokens(t *testing.T) {
	h := newHarness(t)
	saved := h.createSession()

	out := h.mustRun("config", "show")
	if strings.Contains(out, saved.Token) {
		t.Errorf("show leaked the token:\n%s", out)
	}
	for _, want := range []string{saved.ResID, "Current session: default", "sstk_****"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}

	out = h.mustRun("-o", "yaml", "config", "show")
	if !strings.Contains(out, "current_session: default") || strings.Contains(out, saved.Token) {
		t.Errorf("yaml show = %s", out)
	}
}
