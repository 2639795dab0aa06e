// Package config resolves netcrawl's runtime configuration from CLI
// flags, an optional YAML overlay file, and an interactive password
// prompt, in that order of precedence (a flag set to a non-default value
// always wins over the file).
package config

import (
	"fmt"
	"os"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Config is the fully resolved crawl configuration, validated and ready
// to hand to the coordinator.
type Config struct {
	Seed       string `yaml:"seed"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	Workers    int    `yaml:"workers"`
	DBPath     string `yaml:"db_path"`
	MaxRetries int    `yaml:"max_retries"`
	Debug      bool   `yaml:"debug"`

	// EventsAddr, if non-empty, enables the optional Redis transition
	// feed (domain-stack addition; off by default).
	EventsAddr string `yaml:"events_addr"`
}

// Defaults returns a Config carrying netcrawl's documented defaults.
func Defaults() Config {
	return Config{
		Workers:    4,
		DBPath:     "network_crawl.db",
		MaxRetries: 3,
	}
}

// LoadFile reads a YAML overlay file. A missing path is not an error —
// callers pass an empty string when --config was not given.
func LoadFile(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return c, nil
}

// Merge overlays file values underneath flags. A field of base counts as
// unset, and is filled in from file, while it still holds its flag
// default: the empty string, false, or the Defaults() value for Workers,
// DBPath and MaxRetries. A flag given explicitly with its default value is
// not told apart from an omitted one, so the file value replaces it. base
// should already carry Defaults().
func Merge(base, file Config) Config {
	out := base
	if out.Seed == "" {
		out.Seed = file.Seed
	}
	if out.Username == "" {
		out.Username = file.Username
	}
	if out.Password == "" {
		out.Password = file.Password
	}
	if out.Workers == Defaults().Workers && file.Workers != 0 {
		out.Workers = file.Workers
	}
	if out.DBPath == Defaults().DBPath && file.DBPath != "" {
		out.DBPath = file.DBPath
	}
	if out.MaxRetries == Defaults().MaxRetries && file.MaxRetries != 0 {
		out.MaxRetries = file.MaxRetries
	}
	if !out.Debug && file.Debug {
		out.Debug = file.Debug
	}
	if out.EventsAddr == "" {
		out.EventsAddr = file.EventsAddr
	}
	return out
}

// PromptPassword reads a password from the terminal with echo disabled,
// for the case where --password was omitted and stdin is a terminal.
func PromptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("config: read password: %w", err)
	}
	return string(b), nil
}

// IsTerminal reports whether stdin is an interactive terminal, the
// condition under which PromptPassword should be offered.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Validate checks the resolved configuration against the CLI contract.
func (c Config) Validate() error {
	if c.Seed == "" {
		return fmt.Errorf("config: --seed is required")
	}
	if c.Username == "" {
		return fmt.Errorf("config: --username is required")
	}
	if c.Password == "" {
		return fmt.Errorf("config: --password is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("config: --workers must be >= 1, got %d", c.Workers)
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: --db-path must not be empty")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config: --max-retries must be >= 0, got %d", c.MaxRetries)
	}
	return nil
}
