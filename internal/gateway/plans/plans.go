// Package plans holds the per-tier usage limits.
package plans

import (
	"errors"
	"fmt"
	"os"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Unlimited marks a limit that is never enforced. It is distinct from zero,
// which allows nothing.
const Unlimited = -1

const (
	Free       = "free"
	Pro        = "pro"
	Enterprise = "enterprise"
)

// ErrUnknownPlan is returned for a plan name missing from the catalog
var ErrUnknownPlan = errors.New("unknown plan")

// Limits are the monthly allowances of one plan tier
type Limits struct {
	SearchesPerMonth   int64   `yaml:"searches_per_month" json:"searches_per_month"`
	ExportsPerMonth    int64   `yaml:"exports_per_month" json:"exports_per_month"`
	CompaniesPerExport int64   `yaml:"companies_per_export" json:"companies_per_export"`
	PromptDollars      float64 `yaml:"prompt_dollars" json:"prompt_dollars"`
}

// IsUnlimited reports whether a limit value is the unlimited sentinel
func IsUnlimited[T ~int64 | ~float64](v T) bool {
	return v < 0
}

// Validate rejects negative limits other than the unlimited sentinel
func (l Limits) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.SearchesPerMonth, validation.Min(int64(Unlimited))),
		validation.Field(&l.ExportsPerMonth, validation.Min(int64(Unlimited))),
		validation.Field(&l.CompaniesPerExport, validation.Min(int64(Unlimited))),
		validation.Field(&l.PromptDollars, validation.Min(float64(Unlimited))),
	)
}

// Catalog maps plan names to limits
type Catalog struct {
	plans       map[string]Limits
	defaultPlan string
}

// Default returns the built-in catalog
func Default() *Catalog {
	return &Catalog{
		defaultPlan: Free,
		plans: map[string]Limits{
			Free: {
				SearchesPerMonth:   100,
				ExportsPerMonth:    10,
				CompaniesPerExport: 500,
				PromptDollars:      1,
			},
			Pro: {
				SearchesPerMonth:   2000,
				ExportsPerMonth:    200,
				CompaniesPerExport: 5000,
				PromptDollars:      20,
			},
			Enterprise: {
				SearchesPerMonth:   Unlimited,
				ExportsPerMonth:    Unlimited,
				CompaniesPerExport: 50000,
				PromptDollars:      200,
			},
		},
	}
}

type catalogFile struct {
	DefaultPlan string               `yaml:"default_plan"`
	Plans       map[string]yaml.Node `yaml:"plans"`
}

// LoadFile reads plan overrides from a YAML file on top of the built-in
// catalog. Fields left out of a plan keep their built-in value.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plans: %w", err)
	}
	return Parse(data)
}

// Parse applies YAML overrides to the built-in catalog
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse plans: %w", err)
	}

	c := Default()
	for name, node := range file.Plans {
		limits := c.plans[name]
		if err := node.Decode(&limits); err != nil {
			return nil, fmt.Errorf("parse plan %q: %w", name, err)
		}
		if err := limits.Validate(); err != nil {
			return nil, fmt.Errorf("plan %q: %w", name, err)
		}
		c.plans[name] = limits
	}

	if file.DefaultPlan != "" {
		if _, ok := c.plans[file.DefaultPlan]; !ok {
			return nil, fmt.Errorf("default plan %q: %w", file.DefaultPlan, ErrUnknownPlan)
		}
		c.defaultPlan = file.DefaultPlan
	}

	return c, nil
}

// Limits returns the limits of a plan. An empty name means the default plan.
func (c *Catalog) Limits(plan string) (Limits, error) {
	if plan == "" {
		plan = c.defaultPlan
	}
	limits, ok := c.plans[plan]
	if !ok {
		return Limits{}, fmt.Errorf("%w: %s", ErrUnknownPlan, plan)
	}
	return limits, nil
}

// DefaultPlan is the plan of users without a subscription
func (c *Catalog) DefaultPlan() string {
	return c.defaultPlan
}

// Names lists the plans in alphabetical order
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.plans))
	for name := range c.plans {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
