package solver

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// SolverMetadata identifies the engine a manifest describes
type SolverMetadata struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
	// MinVersion is a semver constraint the running engine must satisfy,
	// e.g. ">= 4.8.0". Empty means any version.
	MinVersion string `yaml:"min_version"`
}

// OperationSpec describes one operation name the backend knows about
type OperationSpec struct {
	Arity        int      `yaml:"arity"`
	Theory       string   `yaml:"theory"`
	Native       bool     `yaml:"native"`
	Reason       string   `yaml:"reason,omitempty"`
	Alternatives []string `yaml:"alternatives,omitempty"`
}

// FeatureFlags are coarse engine features
type FeatureFlags struct {
	Quantifiers            bool `yaml:"quantifiers"`
	UninterpretedFunctions bool `yaml:"uninterpreted_functions"`
	RecursiveFunctions     bool `yaml:"recursive_functions"`
	Evaluation             bool `yaml:"evaluation"`
	Simplification         bool `yaml:"simplification"`
	ProofGeneration        bool `yaml:"proof_generation"`
	Datatypes              bool `yaml:"datatypes"`
}

// Performance holds hints for callers
type Performance struct {
	MaxAxioms int `yaml:"max_axioms"`
	TimeoutMS int `yaml:"timeout_ms"`
}

// Capabilities is a backend's manifest. It is read-only once parsed.
type Capabilities struct {
	Solver      SolverMetadata           `yaml:"solver"`
	Theories    []string                 `yaml:"theories"`
	Operations  map[string]OperationSpec `yaml:"operations"`
	Features    FeatureFlags             `yaml:"features"`
	Performance Performance              `yaml:"performance"`
}

const (
	defaultMaxAxioms = 10000
	defaultTimeoutMS = 5000
)

// ParseCapabilities decodes a YAML manifest, validates it and fills defaults
func ParseCapabilities(data []byte) (*Capabilities, error) {
	var caps Capabilities
	if err := yaml.Unmarshal(data, &caps); err != nil {
		return nil, fmt.Errorf("parsing capability manifest: %w", err)
	}
	if err := caps.validate(); err != nil {
		return nil, fmt.Errorf("invalid capability manifest: %w", err)
	}
	caps.setDefaults()
	return &caps, nil
}

// MustParseCapabilities is ParseCapabilities for embedded manifests
func MustParseCapabilities(data []byte) *Capabilities {
	caps, err := ParseCapabilities(data)
	if err != nil {
		panic(err)
	}
	return caps
}

func (c *Capabilities) validate() error {
	if c.Solver.Name == "" {
		return fmt.Errorf("solver.name is required")
	}
	for name, op := range c.Operations {
		if op.Arity < 0 {
			return fmt.Errorf("operation %q has negative arity", name)
		}
		if op.Theory != "" && !c.HasTheory(op.Theory) {
			return fmt.Errorf("operation %q uses undeclared theory %q", name, op.Theory)
		}
	}
	if c.Solver.MinVersion != "" {
		if _, err := semver.NewConstraint(c.Solver.MinVersion); err != nil {
			return fmt.Errorf("solver.min_version %q: %w", c.Solver.MinVersion, err)
		}
	}
	return nil
}

func (c *Capabilities) setDefaults() {
	if c.Performance.MaxAxioms == 0 {
		c.Performance.MaxAxioms = defaultMaxAxioms
	}
	if c.Performance.TimeoutMS == 0 {
		c.Performance.TimeoutMS = defaultTimeoutMS
	}
	if c.Operations == nil {
		c.Operations = make(map[string]OperationSpec)
	}
}

// HasOperation reports whether the manifest lists name at all
func (c *Capabilities) HasOperation(name string) bool {
	_, ok := c.Operations[name]
	return ok
}

// Operation returns the spec for name
func (c *Capabilities) Operation(name string) (OperationSpec, bool) {
	op, ok := c.Operations[name]
	return op, ok
}

// IsNative reports whether name maps to a built-in engine operation
func (c *Capabilities) IsNative(name string) bool {
	return c.Operations[name].Native
}

// NativeOperations returns the sorted names of native operations
func (c *Capabilities) NativeOperations() []string {
	var out []string
	for name, op := range c.Operations {
		if op.Native {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// AllOperations returns every listed operation name, sorted
func (c *Capabilities) AllOperations() []string {
	out := make([]string, 0, len(c.Operations))
	for name := range c.Operations {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// HasTheory reports whether the engine supports a theory
func (c *Capabilities) HasTheory(name string) bool {
	for _, t := range c.Theories {
		if t == name {
			return true
		}
	}
	return false
}

// CheckVersion verifies that the running engine's version satisfies the
// manifest's min_version constraint.
func (c *Capabilities) CheckVersion(actual string) error {
	if c.Solver.MinVersion == "" {
		return nil
	}
	constraint, err := semver.NewConstraint(c.Solver.MinVersion)
	if err != nil {
		return fmt.Errorf("solver.min_version %q: %w", c.Solver.MinVersion, err)
	}
	v, err := semver.NewVersion(actual)
	if err != nil {
		return fmt.Errorf("unparseable %s version %q: %w", c.Solver.Name, actual, err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("%s %s does not satisfy %s", c.Solver.Name, v, c.Solver.MinVersion)
	}
	return nil
}
