// Package config loads and validates the shared run configuration. Every
// process in a group reads the same file; the fingerprint catches the ones
// that did not.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spinwheel/spinwheel/internal/bound"
	"github.com/spinwheel/spinwheel/internal/iterate"
	"github.com/spinwheel/spinwheel/internal/solve"
	pkgerrors "github.com/spinwheel/spinwheel/pkg/errors"
)

// Config is the full run configuration.
type Config struct {
	Run     Run     `yaml:"run"`
	Logging Logging `yaml:"logging"`
	Hub     Hub     `yaml:"hub"`
	Problem Problem `yaml:"problem"`
	Spoke   Spoke   `yaml:"spoke"`
}

// Run holds the group-wide semantics every process must agree on.
type Run struct {
	Name                 string  `yaml:"name"`
	Sense                string  `yaml:"sense"`
	Seed                 int64   `yaml:"seed"`
	ProbabilityTolerance float64 `yaml:"probability_tolerance"`
	Verbose              bool    `yaml:"verbose"`
}

// Logging selects the process log level and optional log directory.
type Logging struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// Termination bundles the hub's stop criteria. Zero disables a criterion,
// except MaxIterations which defaults to 1000.
type Termination struct {
	MaxIterations int      `yaml:"max_iterations"`
	AbsGap        float64  `yaml:"abs_gap"`
	RelGap        float64  `yaml:"rel_gap"`
	MaxWallclock  Duration `yaml:"max_wallclock"`
}

// Hub holds the hub process endpoints and pacing.
type Hub struct {
	Listen       string      `yaml:"listen"`
	Console      string      `yaml:"console"`
	Metrics      string      `yaml:"metrics"`
	DataDir      string      `yaml:"data_dir"`
	StepInterval Duration    `yaml:"step_interval"`
	Termination  Termination `yaml:"termination"`
}

// ScenarioConfig declares one scenario of the synthetic problem.
type ScenarioConfig struct {
	Name        string             `yaml:"name"`
	Probability float64            `yaml:"probability"`
	Target      map[string]float64 `yaml:"target"`
	Offset      float64            `yaml:"offset"`
	Infeasible  bool               `yaml:"infeasible"`
}

// Problem declares the synthetic scenario problem.
type Problem struct {
	Stages         int                `yaml:"stages"`
	BundlesPerRank int                `yaml:"bundles_per_rank"`
	Rho            float64            `yaml:"rho"`
	Step           float64            `yaml:"step"`
	Start          map[string]float64 `yaml:"start"`
	Scenarios      []ScenarioConfig   `yaml:"scenarios"`
}

// Sampling holds options for sampling bound spokes.
type Sampling struct {
	Partition bool `yaml:"partition"`
	Workers   int  `yaml:"workers"`
}

// FixedSet holds options for fixed-set bound spokes.
type FixedSet struct {
	Candidates []string `yaml:"candidates"`
}

// Spoke holds options common to all spoke processes plus per-variant blocks.
type Spoke struct {
	PollInterval Duration `yaml:"poll_interval"`
	FailBudget   int      `yaml:"fail_budget"`
	Sampling     Sampling `yaml:"sampling"`
	FixedSet     FixedSet `yaml:"fixedset"`
}

// Default returns the configuration used when the file leaves a field unset.
func Default() *Config {
	return &Config{
		Run: Run{
			Name:                 "run",
			Sense:                "minimize",
			Seed:                 42,
			ProbabilityTolerance: 1e-9,
		},
		Logging: Logging{Level: "info"},
		Hub: Hub{
			Listen:       "127.0.0.1:7400",
			StepInterval: Duration(50 * time.Millisecond),
			Termination:  Termination{MaxIterations: 1000},
		},
		Problem: Problem{
			Stages: 2,
			Rho:    1.0,
			Step:   0.5,
		},
		Spoke: Spoke{
			PollInterval: Duration(100 * time.Millisecond),
			FailBudget:   50,
			Sampling:     Sampling{Workers: 1},
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural consistency. The probability-sum group check is
// separate (CheckProbabilities) because its failure handling differs by
// role.
func (c *Config) Validate() error {
	if _, err := bound.ParseSense(c.Run.Sense); err != nil {
		return err
	}
	if c.Run.ProbabilityTolerance <= 0 {
		return fmt.Errorf("probability_tolerance must be positive, got %v", c.Run.ProbabilityTolerance)
	}
	if len(c.Problem.Scenarios) == 0 {
		return fmt.Errorf("problem: %w", pkgerrors.ErrNoCandidates)
	}

	names := make(map[string]bool, len(c.Problem.Scenarios))
	for _, s := range c.Problem.Scenarios {
		if s.Name == "" {
			return fmt.Errorf("scenario with empty name")
		}
		if names[s.Name] {
			return fmt.Errorf("duplicate scenario %q", s.Name)
		}
		names[s.Name] = true
		if s.Probability < 0 || s.Probability > 1 {
			return fmt.Errorf("scenario %q: probability %v outside [0,1]", s.Name, s.Probability)
		}
		if len(s.Target) == 0 {
			return fmt.Errorf("scenario %q: no target variables", s.Name)
		}
	}

	for _, name := range c.Spoke.FixedSet.Candidates {
		if !names[name] {
			return fmt.Errorf("fixedset: %w: %q", pkgerrors.ErrUnknownCandidate, name)
		}
	}

	if c.Spoke.Sampling.Workers < 1 {
		return fmt.Errorf("sampling: workers must be at least 1, got %d", c.Spoke.Sampling.Workers)
	}
	if c.Spoke.PollInterval <= 0 {
		return fmt.Errorf("spoke: poll_interval must be positive")
	}
	if c.Spoke.FailBudget < 1 {
		return fmt.Errorf("spoke: fail_budget must be at least 1, got %d", c.Spoke.FailBudget)
	}
	if c.Hub.StepInterval < 0 {
		return fmt.Errorf("hub: step_interval must not be negative")
	}
	if c.Hub.Termination.MaxIterations < 1 {
		return fmt.Errorf("hub: max_iterations must be at least 1, got %d", c.Hub.Termination.MaxIterations)
	}
	return nil
}

// CheckProbabilities verifies the scenario probabilities sum to one within
// the configured tolerance. The sum comes back either way so callers can log
// the discrepancy.
func (c *Config) CheckProbabilities() (float64, error) {
	sum := 0.0
	for _, s := range c.Problem.Scenarios {
		sum += s.Probability
	}
	if math.Abs(1-sum) > c.Run.ProbabilityTolerance {
		return sum, fmt.Errorf("%w: sum %v, tolerance %v",
			pkgerrors.ErrGroupConsistency, sum, c.Run.ProbabilityTolerance)
	}
	return sum, nil
}

// CheckSpokePrereqs enforces the structural limits bound spokes carry.
func (c *Config) CheckSpokePrereqs() error {
	if c.Problem.Stages != 2 {
		return fmt.Errorf("%w: configured stages %d", pkgerrors.ErrMultiStage, c.Problem.Stages)
	}
	if c.Problem.BundlesPerRank != 0 {
		return fmt.Errorf("%w: bundles_per_rank %d", pkgerrors.ErrBundling, c.Problem.BundlesPerRank)
	}
	return nil
}

// Sense returns the parsed optimization sense. Call after Validate.
func (c *Config) Sense() bound.Sense {
	s, _ := bound.ParseSense(c.Run.Sense)
	return s
}

// ScenarioNames returns the declared scenario names in file order.
func (c *Config) ScenarioNames() []string {
	out := make([]string, len(c.Problem.Scenarios))
	for i, s := range c.Problem.Scenarios {
		out[i] = s.Name
	}
	return out
}

// Scenarios converts the declarations into solve scenarios.
func (c *Config) Scenarios() []solve.Scenario {
	out := make([]solve.Scenario, len(c.Problem.Scenarios))
	for i, s := range c.Problem.Scenarios {
		target := make(iterate.Values, len(s.Target))
		for k, v := range s.Target {
			target[iterate.Key(k)] = v
		}
		out[i] = solve.Scenario{
			Name:        s.Name,
			Probability: s.Probability,
			Target:      target,
			Offset:      s.Offset,
			Infeasible:  s.Infeasible,
		}
	}
	return out
}

// StartValues returns the hub's starting iterate values.
func (c *Config) StartValues() iterate.Values {
	out := make(iterate.Values, len(c.Problem.Start))
	for k, v := range c.Problem.Start {
		out[iterate.Key(k)] = v
	}
	return out
}

// Fingerprint hashes the fields every process in the group must agree on:
// sense, seed, tolerance, problem structure and the scenario set. Endpoint
// and logging fields stay out so operators can vary them per process.
func (c *Config) Fingerprint() string {
	h := sha256.New()
	w := func(parts ...string) {
		for _, p := range parts {
			h.Write([]byte(p))
			h.Write([]byte{0})
		}
	}
	ff := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

	w("sense", c.Run.Sense)
	w("seed", strconv.FormatInt(c.Run.Seed, 10))
	w("tol", ff(c.Run.ProbabilityTolerance))
	w("stages", strconv.Itoa(c.Problem.Stages))
	w("bundles", strconv.Itoa(c.Problem.BundlesPerRank))
	w("rho", ff(c.Problem.Rho))

	scens := make([]ScenarioConfig, len(c.Problem.Scenarios))
	copy(scens, c.Problem.Scenarios)
	sort.Slice(scens, func(i, j int) bool { return scens[i].Name < scens[j].Name })
	for _, s := range scens {
		w("scenario", s.Name, ff(s.Probability), ff(s.Offset), strconv.FormatBool(s.Infeasible))
		keys := make([]string, 0, len(s.Target))
		for k := range s.Target {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			w(k, ff(s.Target[k]))
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}

// Describe returns a short human line for startup logs.
func (c *Config) Describe() string {
	return fmt.Sprintf("run %q sense=%s scenarios=%d seed=%d",
		c.Run.Name, c.Run.Sense, len(c.Problem.Scenarios), c.Run.Seed)
}
