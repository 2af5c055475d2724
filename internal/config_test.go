package internal

import (
	"strings"
	"testing"
	"time"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Index.Path != "./notedex.db" {
		t.Errorf("index path = %q", cfg.Index.Path)
	}
	if !cfg.Watch.Enabled {
		t.Error("watching should be enabled by default")
	}
}

func TestIndexConfig_EmptyDriverDefaults(t *testing.T) {
	cfg := IndexConfig{Path: "x.db"}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.Driver)
	}
	if got := len(cfg.RegistryOptions()); got != 1 {
		t.Errorf("zero limits should only set the driver, got %d options", got)
	}
}

func TestIndexConfig_Invalid(t *testing.T) {
	cases := map[string]IndexConfig{
		"no path":        {Driver: "sqlite"},
		"unknown driver": {Path: "x.db", Driver: "postgres"},
		"negative conns": {Path: "x.db", MaxConns: -1},
		"negative busy":  {Path: "x.db", BusyTimeoutMS: -5},
		"too many conns": {Path: "x.db", MaxConns: 1000},
	}
	for name, cfg := range cases {
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestIndexConfig_BusyTimeout(t *testing.T) {
	cfg := IndexConfig{Path: "x.db", MaxConns: 3, BusyTimeoutMS: 1500}
	if cfg.BusyTimeout() != 1500*time.Millisecond {
		t.Errorf("busy timeout = %v", cfg.BusyTimeout())
	}
	if got := len(cfg.RegistryOptions()); got != 3 {
		t.Errorf("options = %d, want 3", got)
	}
}

func TestFullConfig_IndexErrorPrefixed(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Index.Path = ""
	err := cfg.Validate()
	if err == nil || !strings.HasPrefix(err.Error(), "index:") {
		t.Fatalf("err = %v, want index-prefixed error", err)
	}
}
