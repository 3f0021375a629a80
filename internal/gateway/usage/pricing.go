package usage

import "strings"

// ModelRate is the provider price of a model in USD per million tokens
type ModelRate struct {
	InputPerMillion  float64 `json:"input_per_million" yaml:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million" yaml:"output_per_million"`
}

// RateTable maps a model name (or name prefix) to its rate
type RateTable map[string]ModelRate

// DefaultModel is the rate used for models missing from the table
const DefaultModel = "gpt-4o-mini"

// DefaultRates returns the built-in rate table
func DefaultRates() RateTable {
	return RateTable{
		"gpt-4o-mini":  {InputPerMillion: 0.15, OutputPerMillion: 0.60},
		"gpt-4o":       {InputPerMillion: 2.50, OutputPerMillion: 10.00},
		"gpt-4.1-nano": {InputPerMillion: 0.10, OutputPerMillion: 0.40},
		"gpt-4.1-mini": {InputPerMillion: 0.40, OutputPerMillion: 1.60},
		"gpt-4.1":      {InputPerMillion: 2.00, OutputPerMillion: 8.00},
		"o4-mini":      {InputPerMillion: 1.10, OutputPerMillion: 4.40},
	}
}

// Lookup finds the rate for a model: exact match first, then the longest
// table key the model name starts with ("gpt-4o-mini-2024-07-18" -> "gpt-4o-mini").
func (rt RateTable) Lookup(model string) (ModelRate, bool) {
	if r, ok := rt[model]; ok {
		return r, true
	}

	var bestKey string
	var best ModelRate
	for key, r := range rt {
		if strings.HasPrefix(model, key) && len(key) > len(bestKey) {
			bestKey = key
			best = r
		}
	}
	return best, bestKey != ""
}

// Pricing converts token counts into the dollars charged to the user
type Pricing struct {
	rates  RateTable
	margin float64
}

// NewPricing creates a pricing table. margin multiplies provider cost;
// values below 1 are raised to 1.
func NewPricing(rates RateTable, margin float64) *Pricing {
	if rates == nil {
		rates = DefaultRates()
	}
	if margin < 1 {
		margin = 1
	}
	return &Pricing{rates: rates, margin: margin}
}

// Rate returns the rate applied to a model, falling back to DefaultModel
func (p *Pricing) Rate(model string) ModelRate {
	if r, ok := p.rates.Lookup(model); ok {
		return r
	}
	return p.rates[DefaultModel]
}

// Margin is the multiplier applied on top of provider cost
func (p *Pricing) Margin() float64 {
	return p.margin
}

// Cost is ((input/1e6)*inputRate + (output/1e6)*outputRate) * margin
func (p *Pricing) Cost(model string, inputTokens, outputTokens int64) float64 {
	r := p.Rate(model)
	base := float64(inputTokens)/1e6*r.InputPerMillion + float64(outputTokens)/1e6*r.OutputPerMillion
	return base * p.margin
}
