package ats

import (
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"
)

// Registry holds the ordered strategy list plus the generic fallback.
// Populated at startup, read-only afterwards.
type Registry struct {
	strategies []Strategy
	fallback   Strategy
	logger     arbor.ILogger
}

// NewRegistry builds the registry with the built-in platform strategies
func NewRegistry(logger arbor.ILogger) *Registry {
	return &Registry{
		strategies: []Strategy{
			NewGreenhouse(logger),
			NewLever(logger),
			NewWorkday(logger),
			NewAshby(logger),
			NewLinkedIn(logger),
		},
		fallback: NewGeneric(logger),
		logger:   logger,
	}
}

// Identify returns the strategy for a page: URL-pattern match first,
// content match second, generic otherwise. At most one strategy
// matches; order is fixed so the result is deterministic.
func (r *Registry) Identify(html, pageURL string) Strategy {
	for _, s := range r.strategies {
		if s.Detect("", pageURL) {
			return s
		}
	}
	for _, s := range r.strategies {
		if s.Detect(html, "") {
			return s
		}
	}
	return r.fallback
}

// Get returns a strategy by name, or the generic fallback
func (r *Registry) Get(name string) Strategy {
	for _, s := range r.strategies {
		if s.Name() == name {
			return s
		}
	}
	return r.fallback
}

// Names lists the registered platform strategies plus the fallback
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.strategies)+1)
	for _, s := range r.strategies {
		names = append(names, s.Name())
	}
	return append(names, r.fallback.Name())
}

// overrideFile is the YAML shape for selector overrides:
//
//	greenhouse:
//	  email:
//	    - input#candidate_email
type overrideFile map[string]map[string][]string

// LoadOverrides replaces selector alternatives from a YAML file. A
// missing file is not an error; deployments without overrides run on
// the built-in tables.
func (r *Registry) LoadOverrides(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read selector overrides: %w", err)
	}

	var overrides overrideFile
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("malformed selector overrides: %w", err)
	}

	for name, fields := range overrides {
		strategy := r.Get(name)
		base, ok := strategy.(*baseStrategy)
		if !ok || base.name != name {
			r.logger.Warn().Str("strategy", name).Msg("Selector override for unknown strategy ignored")
			continue
		}
		for field, alternatives := range fields {
			base.selectors[field] = alternatives
		}
		r.logger.Info().
			Str("strategy", name).
			Int("fields", len(fields)).
			Msg("Selector overrides applied")
	}
	return nil
}
