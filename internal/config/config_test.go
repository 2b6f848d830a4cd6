package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseConfig(t *testing.T) {
	src := `
solver: isabelle
structures:
  - algebra.yaml
  - /abs/fields.yaml
z3:
  timeout: 2s
  min_version: ">= 4.12.0"
isabelle:
  session: HOL-Algebra
  timeout: 90s
  companions:
    - proofs/Group_Proofs.thy
log:
  level: debug
  format: json
workers: 3
`
	cfg, err := ParseConfig([]byte(src), "/work/project/kleis.yaml")
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.Solver != "isabelle" || cfg.Workers != 3 {
		t.Errorf("unexpected top level %+v", cfg)
	}
	if cfg.Z3.Timeout != 2*time.Second || cfg.Z3.MinVersion != ">= 4.12.0" || cfg.Z3.Path != "z3" {
		t.Errorf("unexpected z3 section %+v", cfg.Z3)
	}
	if cfg.Isabelle.Session != "HOL-Algebra" || cfg.Isabelle.Timeout != 90*time.Second || cfg.Isabelle.Command != "isabelle" {
		t.Errorf("unexpected isabelle section %+v", cfg.Isabelle)
	}
	if got := cfg.Structures; got[0] != "/work/project/algebra.yaml" || got[1] != "/abs/fields.yaml" {
		t.Errorf("structures not resolved: %v", got)
	}
	if cfg.Isabelle.Companions[0] != "/work/project/proofs/Group_Proofs.thy" {
		t.Errorf("companion not resolved: %v", cfg.Isabelle.Companions)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Solver != "z3" || cfg.Z3.Timeout != 5*time.Second || cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Workers < 1 {
		t.Errorf("workers default %d", cfg.Workers)
	}
	if cfg.Isabelle.SessionTimeout != 10*time.Minute {
		t.Errorf("session timeout default %s", cfg.Isabelle.SessionTimeout)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown solver", "solver: cvc5", "unknown solver"},
		{"negative workers", "workers: -1", "workers"},
		{"negative timeout", "z3:\n  timeout: -1s", "timeouts"},
		{"bad level", "log:\n  level: loud", "unknown log level"},
		{"bad format", "log:\n  format: xml", "log.format"},
		{"empty structure", "structures:\n  - ''", "structures[0]"},
		{"companion not thy", "isabelle:\n  companions: [proofs.txt]", "not a .thy file"},
		{"bad yaml", "solver: [", "parsing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.src), "kleis.yaml")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestFindConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if got, err := FindConfig(nested); err != nil || got != "" {
		t.Fatalf("expected no config yet, got %q %v", got, err)
	}
	path := filepath.Join(root, FileName)
	if err := os.WriteFile(path, []byte("solver: z3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := FindConfig(nested)
	if err != nil || got != path {
		t.Errorf("FindConfig = %q, %v; want %q", got, err, path)
	}
	cfg, err := LoadConfig(got)
	if err != nil || cfg.Solver != "z3" {
		t.Errorf("LoadConfig: %v %v", cfg, err)
	}
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "warn"
	cfg.Log.Format = "json"
	var buf bytes.Buffer
	log := cfg.Logger(&buf)
	log.Info("hidden")
	log.Warn("shown", slog.String("k", "v"))
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("unexpected log output %q", out)
	}
}
