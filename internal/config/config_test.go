package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{
		DefaultSession: "work",
		APIBaseURL:     "http://localhost:8000/",
		ClientID:       "cid",
		PingInterval:   Duration{5 * time.Second},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
	if loaded.APIBaseURL != "http://localhost:8000/" {
		t.Errorf("APIBaseURL = %q", loaded.APIBaseURL)
	}
	if loaded.PingInterval.Duration != 5*time.Second {
		t.Errorf("PingInterval = %v, want 5s", loaded.PingInterval)
	}
	if loaded.SocketBaseURL != DefaultSocketBaseURL {
		t.Errorf("SocketBaseURL = %q, want default", loaded.SocketBaseURL)
	}
}

func TestLoadDurationString(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := "ping_interval = \"45s\"\nrequest_timeout = \"2m\"\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PingInterval.Duration != 45*time.Second {
		t.Errorf("PingInterval = %v, want 45s", cfg.PingInterval)
	}
	if cfg.RequestTimeout.Duration != 2*time.Minute {
		t.Errorf("RequestTimeout = %v, want 2m", cfg.RequestTimeout)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoadOrDefaultMissing(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PingInterval.Duration != DefaultPingInterval {
		t.Errorf("PingInterval = %v, want %v", cfg.PingInterval, DefaultPingInterval)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultSession: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
