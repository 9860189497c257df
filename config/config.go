// Package config holds the tunable parts of an allocation run: the objective
// weights and the solver limits. Values come from defaults, optionally
// overridden by a YAML file.
package config

import (
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/yaproro/Tutor-Student-Assignment-Optimization/allocation"
	"github.com/yaproro/Tutor-Student-Assignment-Optimization/ilp"
)

type Config struct {
	Weights allocation.Weights `json:"weights"`
	Solver  SolverConfig       `json:"solver"`
}

type SolverConfig struct {
	// TimeLimit is a duration such as "30s". Empty or "0s" means no limit.
	TimeLimit string `json:"timeLimit,omitempty"`
	NodeLimit int    `json:"nodeLimit,omitempty"`
	Workers   int    `json:"workers,omitempty"`

	// Branching is one of most-infeasible, maxfun or naive.
	Branching string `json:"branching,omitempty"`
}

func Default() Config {
	return Config{
		Weights: allocation.DefaultWeights(),
		Solver: SolverConfig{
			TimeLimit: "60s",
			Workers:   1,
			Branching: ilp.BRANCH_MOST_INFEASIBLE.String(),
		},
	}
}

// Load reads a YAML file on top of the defaults. Keys absent from the file keep
// their default value; unknown keys are an error.
func Load(path string) (Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "reading config")
	}
	c, err := Parse(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return c, nil
}

func Parse(data []byte) (Config, error) {
	c := Default()
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return Config{}, errors.Wrap(err, "parsing config")
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	_, err := c.Solver.Options()
	return err
}

// Options converts the solver section into solver options.
func (s SolverConfig) Options() (ilp.Options, error) {
	var opts ilp.Options

	if s.TimeLimit != "" {
		d, err := time.ParseDuration(s.TimeLimit)
		if err != nil {
			return opts, errors.Wrap(err, "solver.timeLimit")
		}
		if d < 0 {
			return opts, errors.Errorf("solver.timeLimit must not be negative, got %s", s.TimeLimit)
		}
		opts.TimeLimit = d
	}
	if s.NodeLimit < 0 {
		return opts, errors.Errorf("solver.nodeLimit must not be negative, got %d", s.NodeLimit)
	}
	if s.Workers < 0 {
		return opts, errors.Errorf("solver.workers must not be negative, got %d", s.Workers)
	}
	opts.NodeLimit = s.NodeLimit
	opts.Workers = s.Workers

	h, err := ilp.ParseBranchHeuristic(s.Branching)
	if err != nil {
		return opts, errors.Wrap(err, "solver.branching")
	}
	opts.Branching = h
	return opts, nil
}
