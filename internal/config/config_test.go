package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	d := Defaults()
	if d.Workers != 4 {
		t.Errorf("default workers = %d, want 4", d.Workers)
	}
	if d.DBPath != "network_crawl.db" {
		t.Errorf("default db_path = %q, want network_crawl.db", d.DBPath)
	}
	if d.MaxRetries != 3 {
		t.Errorf("default max_retries = %d, want 3", d.MaxRetries)
	}
}

func TestValidateRequiresSeedUsernamePassword(t *testing.T) {
	c := Defaults()
	if err := c.Validate(); err == nil {
		t.Error("expected validation error with no seed/username/password")
	}
	c.Seed = "10.0.0.1"
	c.Username = "admin"
	c.Password = "secret"
	if err := c.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsBadWorkerCount(t *testing.T) {
	c := Defaults()
	c.Seed, c.Username, c.Password = "10.0.0.1", "admin", "secret"
	c.Workers = 0
	if err := c.Validate(); err == nil {
		t.Error("expected error for workers < 1")
	}
}

func TestLoadFileMissingPathIsNotAnError(t *testing.T) {
	c, err := LoadFile("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if (c != Config{}) {
		t.Errorf("expected zero-value config, got %+v", c)
	}
}

func TestLoadFileParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "netcrawl.yaml")
	contents := "seed: 10.0.0.1\nusername: admin\nworkers: 8\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if c.Seed != "10.0.0.1" || c.Username != "admin" || c.Workers != 8 {
		t.Errorf("unexpected parsed config: %+v", c)
	}
}

func TestMergeFlagsWinOverFile(t *testing.T) {
	base := Defaults()
	base.Seed = "10.0.0.9" // set by flag
	file := Config{Seed: "10.0.0.1", Username: "fromfile", Workers: 16}

	merged := Merge(base, file)
	if merged.Seed != "10.0.0.9" {
		t.Errorf("expected flag seed to win, got %q", merged.Seed)
	}
	if merged.Username != "fromfile" {
		t.Errorf("expected file username to fill unset flag, got %q", merged.Username)
	}
	if merged.Workers != 16 {
		t.Errorf("expected file workers to override default, got %d", merged.Workers)
	}
}
