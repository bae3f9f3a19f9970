package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Host != "0.0.0.0:3000" {
		t.Fatalf("unexpected default host: %s", cfg.Server.Host)
	}
	if cfg.Service.EscalationInterval.Duration != 5*time.Minute {
		t.Fatalf("unexpected default escalation interval: %s", cfg.Service.EscalationInterval.Duration)
	}
}

func TestEnvOverridesScalar(t *testing.T) {
	t.Setenv("TX_SITTER__SERVER__HOST", "127.0.0.1:8080")
	t.Setenv("TX_SITTER__SERVICE__ESCALATION_INTERVAL", "2s")
	t.Setenv("TX_SITTER__DATABASE__CONNECTION_STRING", "postgres://x")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1:8080" {
		t.Fatalf("host override not applied: %s", cfg.Server.Host)
	}
	if cfg.Service.EscalationInterval.Duration != 2*time.Second {
		t.Fatalf("escalation interval override not applied: %s", cfg.Service.EscalationInterval.Duration)
	}
	if cfg.Database.ConnectionString != "postgres://x" {
		t.Fatalf("connection string override not applied")
	}
}

func TestEnvOverridesList(t *testing.T) {
	t.Setenv("TX_SITTER_EXT__RPC__RPCS", "http://a,http://b,http://c")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.RPC.RPCs) != 3 {
		t.Fatalf("expected 3 rpcs, got %d: %v", len(cfg.RPC.RPCs), cfg.RPC.RPCs)
	}
	if cfg.RPC.RPCs[1] != "http://b" {
		t.Fatalf("unexpected rpc entry: %s", cfg.RPC.RPCs[1])
	}
}

func TestAddrValidation(t *testing.T) {
	s := ServerConfig{Host: "not-an-addr"}
	if _, err := s.Addr(); err == nil {
		t.Fatalf("expected error for invalid host")
	}

	s.Host = "0.0.0.0:3000"
	addr, err := s.Addr()
	if err != nil {
		t.Fatalf("Addr: %v", err)
	}
	if addr != "0.0.0.0:3000" {
		t.Fatalf("unexpected addr: %s", addr)
	}
}

func TestUnknownEnvKeyErrors(t *testing.T) {
	os.Unsetenv("TX_SITTER__BOGUS__FIELD")
	t.Setenv("TX_SITTER__BOGUS__FIELD", "x")

	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for unknown config path")
	}
}
