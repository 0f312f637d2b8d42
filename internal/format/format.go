// Copyright 2026 The Oracle Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package format renders run summaries and status output for the CLI.
package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/unstableneutron/oracle/pkg/errors"
	"github.com/unstableneutron/oracle/pkg/oracle"
)

// Output selects the CLI output rendering.
type Output string

const (
	// OutputText is human-readable terminal output.
	OutputText Output = "text"
	// OutputJSON emits one JSON document on stdout.
	OutputJSON Output = "json"
)

// ParseOutput validates an output format flag value.
func ParseOutput(s string) (Output, error) {
	switch Output(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", &errors.ValidationError{
			Field:      "output",
			Message:    fmt.Sprintf("unknown output format %q", s),
			Suggestion: "Use \"text\" or \"json\"",
		}
	}
}

// CLI style colors using lipgloss
var (
	// StatusOK styles success indicators
	StatusOK = lipgloss.NewStyle().Foreground(lipgloss.Color("42")) // green

	// StatusError styles error indicators
	StatusError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red

	// Muted styles secondary/less important text
	Muted = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray

	// Header styles the per-model banner in multi-model output
	Header = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")) // blue bold
)

// Symbols for status indicators
const (
	SymbolOK    = "✓"
	SymbolError = "✗"
)

// summaryRound is the display granularity for elapsed time.
const summaryRound = 100 * time.Millisecond

// ModelBanner renders the header line printed before a model's output when
// several models share one terminal.
func ModelBanner(model string) string {
	return Header.Render("── "+model+" ") + Muted.Render(strings.Repeat("─", 30))
}

// Tokens renders a token count compactly: 950 stays numeric, larger counts
// collapse to 1.2k / 3.4M.
func Tokens(n int) string {
	switch {
	case n >= 1_000_000:
		return trimZero(fmt.Sprintf("%.1fM", float64(n)/1_000_000))
	case n >= 1_000:
		return trimZero(fmt.Sprintf("%.1fk", float64(n)/1_000))
	default:
		return fmt.Sprintf("%d", n)
	}
}

func trimZero(s string) string {
	return strings.Replace(s, ".0", "", 1)
}

// Cost renders a dollar amount, or a muted placeholder when pricing is
// unknown.
func Cost(cost *float64) string {
	if cost == nil {
		return Muted.Render("n/a")
	}
	if *cost < 0.01 {
		return fmt.Sprintf("$%.4f", *cost)
	}
	return fmt.Sprintf("$%.2f", *cost)
}

// OutcomeLine renders one model's settlement line for the run summary.
func OutcomeLine(outcome oracle.ModelExecutionOutcome) string {
	if outcome.Fulfilled() {
		return fmt.Sprintf("%s %s  %s tokens (%s reasoning)  %s",
			StatusOK.Render(SymbolOK),
			outcome.Model,
			Tokens(outcome.Usage.TotalTokens),
			Tokens(outcome.Usage.ReasoningTokens),
			Cost(outcome.Usage.Cost),
		)
	}
	return fmt.Sprintf("%s %s  %s",
		StatusError.Render(SymbolError),
		outcome.Model,
		outcome.Err.Error(),
	)
}

// Summary renders the closing block for a multi-model run: one line per
// model in settlement order, then totals.
func Summary(summary *oracle.MultiModelRunSummary) string {
	var sb strings.Builder

	var totalTokens int
	var totalCost float64
	costKnown := false

	for _, outcome := range summary.Fulfilled {
		sb.WriteString(OutcomeLine(outcome))
		sb.WriteString("\n")
		totalTokens += outcome.Usage.TotalTokens
		if outcome.Usage.Cost != nil {
			totalCost += *outcome.Usage.Cost
			costKnown = true
		}
	}
	for _, outcome := range summary.Rejected {
		sb.WriteString(OutcomeLine(outcome))
		sb.WriteString("\n")
	}

	totals := fmt.Sprintf("%d fulfilled, %d rejected in %s",
		len(summary.Fulfilled), len(summary.Rejected), summary.Elapsed.Round(summaryRound))
	if totalTokens > 0 {
		totals += fmt.Sprintf("  %s tokens", Tokens(totalTokens))
	}
	if costKnown {
		totals += "  " + Cost(&totalCost)
	}
	sb.WriteString(Muted.Render(totals))
	sb.WriteString("\n")
	return sb.String()
}
