package model

import (
	"strings"

	"github.com/cloudwego/eino/schema"
)

// Pricing defines USD cost per 1M tokens for input/output.
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
}

// defaultPricing is USD per 1M text tokens, keyed by model family.
var defaultPricing = map[string]Pricing{
	"gemini-2.5-pro":        {InputPerM: 1.25, OutputPerM: 10.00},
	"gemini-2.5-flash":      {InputPerM: 0.30, OutputPerM: 2.50},
	"gemini-2.5-flash-lite": {InputPerM: 0.10, OutputPerM: 0.40},
	"gemini-2.0-flash":      {InputPerM: 0.10, OutputPerM: 0.40},
}

// ResolvePricing returns the pricing for a model. Versioned names such as
// "gemini-2.5-flash-preview-05-20" match their longest known family prefix.
func ResolvePricing(model string) Pricing {
	model = strings.ToLower(strings.TrimSpace(model))
	if p, ok := defaultPricing[model]; ok {
		return p
	}
	best := ""
	for family := range defaultPricing {
		if strings.HasPrefix(model, family) && len(family) > len(best) {
			best = family
		}
	}
	if best == "" {
		return Pricing{}
	}
	return defaultPricing[best]
}

// ComputeCost converts token usage to USD cost using per-1M Pricing.
func ComputeCost(usage *schema.TokenUsage, p Pricing) (inputCost, outputCost, total float64) {
	if usage == nil {
		return 0, 0, 0
	}
	inputCost = p.InputPerM * float64(usage.PromptTokens) / 1_000_000.0
	outputCost = p.OutputPerM * float64(usage.CompletionTokens) / 1_000_000.0
	total = inputCost + outputCost
	return
}

// UsageCost builds the usage_cost record attached to a model message.
func UsageCost(modelName string, usage *schema.TokenUsage) (map[string]any, float64) {
	inC, outC, totalC := ComputeCost(usage, ResolvePricing(modelName))
	return map[string]any{
		"currency":          "USD",
		"model":             modelName,
		"prompt_tokens":     usage.PromptTokens,
		"completion_tokens": usage.CompletionTokens,
		"total_tokens":      usage.TotalTokens,
		"input_cost":        inC,
		"output_cost":       outC,
		"total_cost":        totalC,
	}, totalC
}
