// Package pricing estimates what model calls cost from a per-model price
// table.
package pricing

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModelPricing holds USD prices per 1K tokens.
type ModelPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// DefaultProvider names the fallback entry used for models the table does
// not list.
const DefaultProvider = "default"

// Table maps provider to model to price.
type Table struct {
	Providers map[string]map[string]ModelPricing
}

// Default is the built-in table used when no pricing file is configured.
// The default/default entry prices any unlisted model.
func Default() *Table {
	return &Table{Providers: map[string]map[string]ModelPricing{
		DefaultProvider: {
			DefaultProvider: {Input: 0.003, Output: 0.015},
		},
		"openai": {
			"gpt-4o":      {Input: 0.0025, Output: 0.01},
			"gpt-4o-mini": {Input: 0.00015, Output: 0.0006},
		},
		"anthropic": {
			"claude-sonnet-4-5": {Input: 0.003, Output: 0.015},
			"claude-haiku-4-5":  {Input: 0.001, Output: 0.005},
		},
	}}
}

func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pricing file: %w", err)
	}
	var providers map[string]map[string]ModelPricing
	if err := yaml.Unmarshal(data, &providers); err != nil {
		return nil, fmt.Errorf("parsing pricing file: %w", err)
	}
	return &Table{Providers: providers}, nil
}

// Cost prices a number of tokens spent on model. Prices are per 1K
// tokens; an unpriced model costs nothing.
func (t *Table) Cost(model string, inputTokens, outputTokens int) float64 {
	p, ok := t.Lookup(model)
	if !ok {
		return 0
	}
	return p.cost(float64(inputTokens), float64(outputTokens))
}

func (p ModelPricing) cost(in, out float64) float64 {
	return (in/1000.0)*p.Input + (out/1000.0)*p.Output
}

// Lookup finds the price of model. A "provider/model" name is looked up
// directly; a bare name is searched in every provider, alphabetically.
// Unknown models fall back to the default entry, if any.
func (t *Table) Lookup(model string) (ModelPricing, bool) {
	if t == nil || t.Providers == nil {
		return ModelPricing{}, false
	}
	if provider, name, ok := strings.Cut(model, "/"); ok {
		if p, ok := t.Providers[provider][name]; ok {
			return p, true
		}
		model = name
	}
	for _, provider := range slices.Sorted(maps.Keys(t.Providers)) {
		if p, ok := t.Providers[provider][model]; ok {
			return p, true
		}
	}
	p, ok := t.Providers[DefaultProvider][DefaultProvider]
	return p, ok
}

// CostPerUse prices one typical call given average token counts.
func (t *Table) CostPerUse(model string, avgInput, avgOutput float64) float64 {
	p, ok := t.Lookup(model)
	if !ok {
		return 0
	}
	return p.cost(avgInput, avgOutput)
}

// FormatUSD renders an amount with four decimals below one cent and two
// otherwise.
func FormatUSD(v float64) string {
	if v < 0.01 {
		return fmt.Sprintf("$%.4f", v)
	}
	return fmt.Sprintf("$%.2f", v)
}
