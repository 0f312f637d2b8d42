package oracle

import (
	"math"

	"github.com/unstableneutron/oracle/pkg/backend"
)

// Pricing holds a model's per-million-token rates in USD.
type Pricing struct {
	// InputPerMTok is the cost per million input tokens.
	InputPerMTok float64

	// OutputPerMTok is the cost per million output tokens. Reasoning
	// tokens are billed as output tokens.
	OutputPerMTok float64
}

// Cost computes the dollar cost of the given usage.
func (p Pricing) Cost(u backend.Usage) float64 {
	return float64(u.InputTokens)*p.InputPerMTok/1_000_000 +
		float64(u.OutputTokens)*p.OutputPerMTok/1_000_000
}

// buildUsage converts backend-reported usage into a UsageSummary, attaching
// cost only when pricing is known and the computed value is sane.
func buildUsage(u backend.Usage, pricing *Pricing) UsageSummary {
	total := u.TotalTokens
	if total == 0 {
		total = u.InputTokens + u.OutputTokens
	}

	summary := UsageSummary{
		InputTokens:     u.InputTokens,
		OutputTokens:    u.OutputTokens,
		ReasoningTokens: u.ReasoningTokens,
		TotalTokens:     total,
	}

	if pricing != nil {
		cost := pricing.Cost(u)
		if !math.IsNaN(cost) && !math.IsInf(cost, 0) && cost >= 0 {
			summary.Cost = &cost
		}
	}
	return summary
}
