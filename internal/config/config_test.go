package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DEFAULT_REGISTER_ID", "")
	t.Setenv("DEFAULT_CURRENCY", "")

	cfg := Load()
	if cfg.DefaultRegisterID != "register-1" {
		t.Fatalf("expected default register id register-1, got %q", cfg.DefaultRegisterID)
	}
	if cfg.DefaultCurrency != "IDR" {
		t.Fatalf("expected default currency IDR, got %q", cfg.DefaultCurrency)
	}
}
