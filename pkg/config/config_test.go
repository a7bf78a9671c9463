package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateAppliesDefaults(t *testing.T) {
	var c Config
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if c.LockTime != DefaultLockTime {
		t.Fatalf("lock time = %d, want %d", c.LockTime, DefaultLockTime)
	}
	if c.PenaltyPercentage != DefaultPenaltyPercentage {
		t.Fatalf("penalty = %d, want %d", c.PenaltyPercentage, DefaultPenaltyPercentage)
	}
}

func TestValidateRejectsOversizedPenalty(t *testing.T) {
	c := Config{PenaltyPercentage: 101}
	if err := c.Validate(); err == nil {
		t.Fatal("penalty above 100 should fail validation")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "lock_time: 3600\npenalty_percentage: 50\ndebug: true\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.LockTime != 3600 || c.PenaltyPercentage != 50 || !c.Debug {
		t.Fatalf("config = %+v", c)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file should fail")
	}
}
