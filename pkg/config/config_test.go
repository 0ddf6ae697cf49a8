package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"target": {"host": "example.test", "username": "alice", "password": "secret"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Target.Port != defaultSSHPort {
		t.Fatalf("expected default SSH port %d, got %d", defaultSSHPort, cfg.Target.Port)
	}
	if cfg.SocksPort != defaultSocksPort || cfg.HTTPPort != defaultHTTPPort {
		t.Fatalf("expected default ports, got socks=%d http=%d", cfg.SocksPort, cfg.HTTPPort)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	os.Setenv("TUNNEL_TEST_PASSWORD", "from-env")
	defer os.Unsetenv("TUNNEL_TEST_PASSWORD")

	path := writeConfig(t, `{
		"target": {"host": "example.test", "username": "alice", "password": "$TUNNEL_TEST_PASSWORD"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Target.Password != "from-env" {
		t.Fatalf("expected expanded password, got %q", cfg.Target.Password)
	}
}

func TestLoadRejectsMissingHost(t *testing.T) {
	path := writeConfig(t, `{"target": {"username": "alice", "password": "secret"}}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing target host")
	}
}

func TestLoadRejectsBothPasswordAndKey(t *testing.T) {
	path := writeConfig(t, `{
		"target": {"host": "example.test", "username": "alice", "password": "secret", "keyPath": "/tmp/id_rsa"}
	}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when both password and keyPath are set")
	}
}

func TestLoadRejectsUseKeyTrueWithoutKeyPath(t *testing.T) {
	path := writeConfig(t, `{
		"target": {"host": "example.test", "username": "alice", "useKey": true}
	}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when useKey is true but keyPath is empty")
	}
}

func TestLoadAllowsKeyAuthWithUseKeyTrue(t *testing.T) {
	path := writeConfig(t, `{
		"target": {"host": "example.test", "username": "alice", "useKey": true, "keyPath": "/tmp/id_rsa"}
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Target.UseKey || cfg.Target.KeyPath != "/tmp/id_rsa" {
		t.Fatalf("expected key auth preserved, got %+v", cfg.Target)
	}
}

func TestLoadAllowsJumpWithEmptyCredentials(t *testing.T) {
	path := writeConfig(t, `{
		"target": {"host": "example.test", "username": "alice", "password": "secret"},
		"jump": {"host": "jump.test"}
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Jump.Port != defaultSSHPort {
		t.Fatalf("expected jump port default, got %d", cfg.Jump.Port)
	}
}
