package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Addr != ":8686" {
		t.Errorf("Addr = %s", cfg.Addr)
	}
	if cfg.DBMaxOpenConns != 20 || cfg.DBMaxIdleConns != 10 {
		t.Errorf("pool conns = %d/%d, want 20/10", cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	}
	if cfg.DBConnMaxLifetime != 30*time.Minute || cfg.DBConnMaxIdleTime != 5*time.Minute {
		t.Errorf("pool lifetimes = %s/%s", cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	}
	if cfg.IsProduction() {
		t.Error("default environment must not be production")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DOCUPORT_ENV", "production")
	t.Setenv("DOCUPORT_DB_MAX_OPEN_CONNS", "50")
	t.Setenv("DOCUPORT_DB_CONN_MAX_LIFETIME_SECONDS", "60")

	cfg := Load()
	if !cfg.IsProduction() {
		t.Error("DOCUPORT_ENV=production must report production")
	}
	if cfg.DBMaxOpenConns != 50 {
		t.Errorf("DBMaxOpenConns = %d, want 50", cfg.DBMaxOpenConns)
	}
	if cfg.DBConnMaxLifetime != time.Minute {
		t.Errorf("DBConnMaxLifetime = %s, want 1m", cfg.DBConnMaxLifetime)
	}

	t.Setenv("DOCUPORT_DB_MAX_OPEN_CONNS", "not-a-number")
	if cfg := Load(); cfg.DBMaxOpenConns != 20 {
		t.Errorf("unparsable value must fall back to default, got %d", cfg.DBMaxOpenConns)
	}
}
