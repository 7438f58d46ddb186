package llm

import "strings"

// pricePer1K is USD per 1K tokens: [input, output].
var pricePer1K = map[string][2]float64{
	"gpt-4":                  {0.03, 0.06},
	"gpt-4-turbo":            {0.01, 0.03},
	"gpt-4o":                 {0.005, 0.015},
	"gpt-4o-mini":            {0.00015, 0.0006},
	"gpt-4.1":                {0.002, 0.008},
	"gpt-4.1-mini":           {0.0004, 0.0016},
	"text-embedding-ada-002": {0.0001, 0},
	"text-embedding-3-small": {0.00002, 0},
	"text-embedding-3-large": {0.00013, 0},

	"claude-3-haiku":  {0.00025, 0.00125},
	"claude-3-opus":   {0.015, 0.075},
	"claude-sonnet-4": {0.003, 0.015},
	"claude-opus-4":   {0.015, 0.075},
}

// priceFor resolves dated or suffixed model names ("gpt-4o-mini-2024-07-18")
// to the longest known prefix.
func priceFor(model string) ([2]float64, bool) {
	if p, ok := pricePer1K[model]; ok {
		return p, true
	}
	best := ""
	for name := range pricePer1K {
		if strings.HasPrefix(model, name+"-") && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return [2]float64{}, false
	}
	return pricePer1K[best], true
}

// CalculateCost estimates the USD cost of a call. Unknown models cost 0.
func CalculateCost(model string, inputTokens, outputTokens int) float64 {
	p, ok := priceFor(model)
	if !ok {
		return 0
	}
	return float64(inputTokens)/1000*p[0] + float64(outputTokens)/1000*p[1]
}
