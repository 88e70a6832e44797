package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/abdul-hamid-achik/tentspec/packages/results"
	"github.com/abdul-hamid-achik/tentspec/packages/spec"
	"github.com/abdul-hamid-achik/tentspec/packages/stats"
)

// ErrInvalidValidators is returned when a validator failed to build.
var ErrInvalidValidators = errors.New("invalid validators")

type Runner struct {
	config  *Config
	latency *stats.Latency
	logger  *slog.Logger
}

type Config struct {
	Env *spec.Env
	// Schemas is used to check static schema assertions up front. May be nil.
	Schemas spec.SchemaSet
	// NameFilter selects validators by name; see matchesPattern.
	NameFilter []string
	// WaitFor polls the server under test until it answers before the
	// first validator runs. Zero disables waiting.
	WaitFor      time.Duration
	WaitInterval time.Duration
	Logger       *slog.Logger

	// OnRecord is called for every record as it is folded into the results.
	OnRecord func(path []string, rec *results.Record)
	// OnSetupFailure is called for setup failures that carry no results.
	OnSetupFailure func(sf *spec.SetupFailure)
}

func NewRunner(cfg *Config) *Runner {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Env == nil {
		cfg.Env = &spec.Env{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Env.Logger == nil {
		cfg.Env.Logger = logger
	}
	return &Runner{
		config:  cfg,
		latency: stats.NewLatency(),
		logger:  logger,
	}
}

type RunResult struct {
	Results    *results.Results
	Validators []string
	Latency    *stats.Latency
	Duration   time.Duration
}

// Select returns the validators whose names match the configured filter,
// in their original order.
func (r *Runner) Select(validators []*spec.Validator) []*spec.Validator {
	if len(r.config.NameFilter) == 0 {
		return validators
	}
	var out []*spec.Validator
	for _, v := range validators {
		for _, pattern := range r.config.NameFilter {
			if matchesPattern(v.Name(), pattern) {
				out = append(out, v)
				break
			}
		}
	}
	return out
}

// Check reports build errors of every validator at once.
func (r *Runner) Check(validators []*spec.Validator) error {
	var errs []error
	for _, v := range validators {
		if err := v.Check(r.config.Schemas); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", v.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidValidators, errors.Join(errs...))
	}
	return nil
}

// Run executes the selected validators in order and then drains the
// correlator. A setup failure stops only the validator that raised it.
func (r *Runner) Run(ctx context.Context, validators []*spec.Validator) (*RunResult, error) {
	start := time.Now()
	selected := r.Select(validators)
	if err := r.Check(selected); err != nil {
		return nil, err
	}

	if r.config.WaitFor > 0 && r.config.Env.Server != "" {
		if err := r.waitForServer(ctx, r.config.Env.Server); err != nil {
			return nil, err
		}
	}

	r.latency.Reset()
	result := &RunResult{Results: results.New(), Latency: r.latency}

	for _, v := range selected {
		result.Validators = append(result.Validators, v.Name())
		r.logger.Info("running validator", "validator", v.Name(), "expectations", v.Count())

		tree, err := v.Run(ctx, r.config.Env)
		r.fold(result.Results, tree)

		var sf *spec.SetupFailure
		switch {
		case err == nil:
			// Nodes whose DependsOn did not complete leave expectations unexecuted.
			result.Results.Skipped(v)
		case errors.As(err, &sf):
			r.setupFailure(result.Results, sf)
			result.Results.Skipped(v)
		case ctx.Err() != nil:
			result.Results.Skipped(v)
			result.Duration = time.Since(start)
			return result, ctx.Err()
		default:
			return nil, fmt.Errorf("running %s: %w", v.Name(), err)
		}
	}

	if c := r.config.Env.Correlator; c != nil && c.Outstanding() > 0 {
		r.logger.Info("waiting for async requests", "outstanding", c.Outstanding())
		for _, o := range c.Drain(ctx) {
			r.fold(result.Results, o.Node())
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (r *Runner) fold(res *results.Results, tree *results.Node) {
	if tree == nil {
		return
	}
	tree.Walk(func(path []string, rec *results.Record) {
		group := ""
		if len(path) > 0 {
			group = path[0]
		}
		r.latency.Record(group, rec.Duration, !rec.Passed())
		if r.config.OnRecord != nil {
			r.config.OnRecord(path, rec)
		}
	})
	res.Merge(tree)
}

func (r *Runner) setupFailure(res *results.Results, sf *spec.SetupFailure) {
	r.logger.Warn("setup failure", "validator", sf.Validator, "error", sf.Message)
	if sf.Structured() {
		rec := results.NewRecord(sf.Message, nil, sf.Response, sf.Results, nil)
		r.fold(res, results.At([]*results.Record{rec}, sf.Path...))
		return
	}
	if r.config.OnSetupFailure != nil {
		r.config.OnSetupFailure(sf)
	}
}

// matchesPattern matches name against a pattern with an optional leading
// and/or trailing wildcard.
func matchesPattern(name, pattern string) bool {
	if pattern == "" {
		return true
	}

	if pattern[0] == '*' && pattern[len(pattern)-1] == '*' && len(pattern) > 1 {
		substr := pattern[1 : len(pattern)-1]
		for i := 0; i <= len(name)-len(substr); i++ {
			if name[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	}

	if pattern[0] == '*' {
		suffix := pattern[1:]
		return len(name) >= len(suffix) && name[len(name)-len(suffix):] == suffix
	}

	if pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(name) >= len(prefix) && name[:len(prefix)] == prefix
	}

	return name == pattern
}
