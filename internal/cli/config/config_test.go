package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.DefaultServer != "localhost:5080" {
		t.Errorf("DefaultServer = %q", cfg.DefaultServer)
	}
	if cfg.DefaultOutput != "table" {
		t.Errorf("DefaultOutput = %q", cfg.DefaultOutput)
	}
	if cfg.Sessions == nil || len(cfg.Sessions) != 0 {
		t.Errorf("Sessions = %v, want empty map", cfg.Sessions)
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()
	if !strings.HasSuffix(path, filepath.Join(".sandstore", "cli.yaml")) {
		t.Errorf("path = %q", path)
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load should not error for a missing file: %v", err)
	}
	if cfg.DefaultServer != "localhost:5080" {
		t.Error("missing file should give the defaults")
	}
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	if err := os.WriteFile(path, []byte("sessions: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load should fail on malformed YAML")
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cli.yaml")

	cfg := Default()
	cfg.DefaultOutput = "json"
	cfg.Put("lab", Session{Server: "lab.example.com:5080", Token: "sstk_abc", ResID: "01J0000000000000000000000A"})

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file mode = %o, want 600", perm)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should be gone after Save")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.DefaultOutput != "json" || loaded.CurrentSession != "lab" {
		t.Errorf("loaded = %+v", loaded)
	}
	s, ok := loaded.Current("")
	if !ok || s.Token != "sstk_abc" || s.Server != "lab.example.com:5080" {
		t.Errorf("Current() = %+v, %v", s, ok)
	}
}

func TestCLIConfig_Sessions(t *testing.T) {
	cfg := Default()

	s, ok := cfg.Current("")
	if ok {
		t.Error("empty config should have no current session")
	}
	if s.Server != "localhost:5080" {
		t.Errorf("fallback server = %q", s.Server)
	}

	cfg.Put("", Session{Token: "sstk_1", ResID: "r1"})
	if cfg.CurrentSession != DefaultSession {
		t.Errorf("CurrentSession = %q", cfg.CurrentSession)
	}
	if s, _ := cfg.Current(""); s.Server != "localhost:5080" || s.ResID != "r1" {
		t.Errorf("Current() = %+v", s)
	}

	cfg.Put("other", Session{Token: "sstk_2", ResID: "r2"})
	if s, ok := cfg.Current(DefaultSession); !ok || s.ResID != "r1" {
		t.Errorf("Current(default) = %+v, %v", s, ok)
	}

	if !cfg.Remove("other") || cfg.CurrentSession != "" {
		t.Errorf("Remove(current) should clear CurrentSession, got %q", cfg.CurrentSession)
	}
	if cfg.Remove("other") {
		t.Error("second Remove should report false")
	}
}

func TestMerge(t *testing.T) {
	cfg := Merge(Default(), "lab:5080", "")
	if cfg.DefaultServer != "lab:5080" || cfg.DefaultOutput != "table" {
		t.Errorf("Merge = %+v", cfg)
	}
}
