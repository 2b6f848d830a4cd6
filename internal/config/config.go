// Package config loads kleis.yaml, the settings shared by the verifier
// CLI and its solver backends.
//
// A minimal file selects a backend and points at structure documents:
//
//	solver: z3
//	structures:
//	  - algebra.yaml
//	z3:
//	  timeout: 5s
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up by FindConfig
const FileName = "kleis.yaml"

// Config is the top-level kleis.yaml
type Config struct {
	// Solver is the backend used unless a command overrides it: z3 or isabelle.
	Solver string `yaml:"solver"`

	// Structures lists structure documents, relative to the config file.
	Structures []string `yaml:"structures,omitempty"`

	Z3       Z3Config       `yaml:"z3"`
	Isabelle IsabelleConfig `yaml:"isabelle"`
	Log      LogConfig      `yaml:"log"`

	// Workers bounds parallel batch verification. Each worker owns its own
	// backend instance.
	Workers int `yaml:"workers,omitempty"`

	dir string
}

// Z3Config configures the SMT backend
type Z3Config struct {
	Path    string        `yaml:"path,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
	// MinVersion overrides the manifest's constraint when set
	MinVersion       string `yaml:"min_version,omitempty"`
	SkipVersionCheck bool   `yaml:"skip_version_check,omitempty"`
}

// IsabelleConfig configures the interactive-prover backend
type IsabelleConfig struct {
	Command        string        `yaml:"command,omitempty"`
	ServerName     string        `yaml:"server_name,omitempty"`
	Session        string        `yaml:"session,omitempty"`
	Timeout        time.Duration `yaml:"timeout,omitempty"`
	SessionTimeout time.Duration `yaml:"session_timeout,omitempty"`
	ScratchDir     string        `yaml:"scratch_dir,omitempty"`
	Companions     []string      `yaml:"companions,omitempty"`
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"` // text or json
}

// Default is the configuration used when no file is found
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// LoadConfig reads and parses a kleis.yaml file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses kleis.yaml content. Relative paths in the file are
// resolved against the directory of path.
func ParseConfig(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.dir = filepath.Dir(path)
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &cfg, nil
}

// FindConfig searches for kleis.yaml from dir upwards. It returns "" and
// no error when there is none.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}
	for {
		for _, name := range []string{FileName, "kleis.yml"} {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func (c *Config) validate(path string) error {
	switch c.Solver {
	case "", "z3", "isabelle":
	default:
		return fmt.Errorf("%s: unknown solver %q (want z3 or isabelle)", path, c.Solver)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%s: workers must not be negative", path)
	}
	if c.Z3.Timeout < 0 || c.Isabelle.Timeout < 0 || c.Isabelle.SessionTimeout < 0 {
		return fmt.Errorf("%s: timeouts must not be negative", path)
	}
	if c.Log.Level != "" {
		if _, err := ParseLevel(c.Log.Level); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("%s: log.format must be text or json, got %q", path, c.Log.Format)
	}
	for i, s := range c.Structures {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s: structures[%d] is empty", path, i)
		}
	}
	for i, comp := range c.Isabelle.Companions {
		if !strings.HasSuffix(comp, ".thy") {
			return fmt.Errorf("%s: isabelle.companions[%d]: %q is not a .thy file", path, i, comp)
		}
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Solver == "" {
		c.Solver = "z3"
	}
	if c.Z3.Path == "" {
		c.Z3.Path = "z3"
	}
	if c.Z3.Timeout == 0 {
		c.Z3.Timeout = 5 * time.Second
	}
	if c.Isabelle.Command == "" {
		c.Isabelle.Command = "isabelle"
	}
	if c.Isabelle.Session == "" {
		c.Isabelle.Session = "HOL"
	}
	if c.Isabelle.Timeout == 0 {
		c.Isabelle.Timeout = 60 * time.Second
	}
	if c.Isabelle.SessionTimeout == 0 {
		c.Isabelle.SessionTimeout = 10 * time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	for i, s := range c.Structures {
		c.Structures[i] = c.resolve(s)
	}
	for i, s := range c.Isabelle.Companions {
		c.Isabelle.Companions[i] = c.resolve(s)
	}
	if c.Isabelle.ScratchDir != "" {
		c.Isabelle.ScratchDir = c.resolve(c.Isabelle.ScratchDir)
	}
}

func (c *Config) resolve(p string) string {
	if c.dir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.dir, p)
}

// ParseLevel maps a level name onto slog
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

// Logger builds the slog logger described by the log section
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, _ := ParseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
