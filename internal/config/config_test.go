package config

import (
	"testing"
	"time"
)

func TestConfigLoad_LocalDefaults(t *testing.T) {
	t.Setenv("TODO_SERVICE_BUILD_TARGET", "local")

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.DBDriver != DriverSQLite || cfg.SQLitePath == "" {
		t.Fatalf("unexpected driver defaults: driver=%s path=%q", cfg.DBDriver, cfg.SQLitePath)
	}
	if cfg.ReminderDue != 10*time.Second || cfg.ReminderPeriod != 24*time.Hour {
		t.Fatalf("unexpected reminder defaults: due=%s period=%s", cfg.ReminderDue, cfg.ReminderPeriod)
	}
	if cfg.ActivationTimeout != 5*time.Second {
		t.Fatalf("unexpected activation timeout: %s", cfg.ActivationTimeout)
	}
}

func TestConfigLoad_EnvOverride(t *testing.T) {
	t.Setenv("TODO_SERVICE_DB_DRIVER", "memory")
	t.Setenv("TODO_SERVICE_REMINDER_PERIOD", "1h")
	t.Setenv("TODO_SERVICE_MAILBOX_SIZE", "8")

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.DBDriver != DriverMemory {
		t.Fatalf("driver override failed, got %s", cfg.DBDriver)
	}
	if cfg.ReminderPeriod != time.Hour || cfg.MailboxSize != 8 {
		t.Fatalf("override failed: period=%s mailbox=%d", cfg.ReminderPeriod, cfg.MailboxSize)
	}
}

func TestConfigLoad_CloudRequiresDSN(t *testing.T) {
	t.Setenv("TODO_SERVICE_BUILD_TARGET", "cloud")
	t.Setenv("TODO_SERVICE_POSTGRES_DSN", "")

	if _, err := New(); err == nil {
		t.Fatal("expected error when postgres DSN is missing")
	}
}
