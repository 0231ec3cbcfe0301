package cost

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/leofalp/llmkit/core/step"
	"github.com/leofalp/llmkit/providers/ai"
)

const perMillion = 1_000_000.0

// ModelPrice is the pricing of one model in USD per million tokens.
//
// Cached input and reasoning tokens are counted inside InputTokens and
// OutputTokens respectively. When CachedInput or Reasoning is zero those
// tokens are billed at the plain Input or Output rate.
//
//	price := cost.ModelPrice{Input: 2.50, Output: 10.00, CachedInput: 1.25}
type ModelPrice struct {
	Input       float64 `json:"input" yaml:"input" validate:"gte=0"`
	Output      float64 `json:"output" yaml:"output" validate:"gte=0"`
	CachedInput float64 `json:"cached_input,omitempty" yaml:"cached_input" validate:"gte=0"`
	Reasoning   float64 `json:"reasoning,omitempty" yaml:"reasoning" validate:"gte=0"`
}

// Breakdown is the cost of some usage, split by token class.
type Breakdown struct {
	Input       float64 `json:"input"`
	CachedInput float64 `json:"cached_input"`
	Output      float64 `json:"output"`
	Reasoning   float64 `json:"reasoning"`
	Total       float64 `json:"total"`
}

// Add returns the field-wise sum.
func (b Breakdown) Add(other Breakdown) Breakdown {
	return Breakdown{
		Input:       b.Input + other.Input,
		CachedInput: b.CachedInput + other.CachedInput,
		Output:      b.Output + other.Output,
		Reasoning:   b.Reasoning + other.Reasoning,
		Total:       b.Total + other.Total,
	}
}

// Cost prices usage.
func (p ModelPrice) Cost(usage ai.Usage) Breakdown {
	var b Breakdown

	input := usage.InputTokens
	if p.CachedInput > 0 && usage.CachedInputTokens > 0 {
		cached := min(usage.CachedInputTokens, input)
		b.CachedInput = float64(cached) / perMillion * p.CachedInput
		input -= cached
	}
	b.Input = float64(input) / perMillion * p.Input

	output := usage.OutputTokens
	if p.Reasoning > 0 && usage.ReasoningTokens > 0 {
		reasoning := min(usage.ReasoningTokens, output)
		b.Reasoning = float64(reasoning) / perMillion * p.Reasoning
		output -= reasoning
	}
	b.Output = float64(output) / perMillion * p.Output

	b.Total = b.Input + b.CachedInput + b.Output + b.Reasoning
	return b
}

func (p ModelPrice) String() string {
	return fmt.Sprintf("input $%.4f/M, output $%.4f/M", p.Input, p.Output)
}

// Table maps "provider/model" or bare "model" keys to prices.
type Table map[string]ModelPrice

// Lookup prefers the provider-qualified key.
func (t Table) Lookup(provider, model string) (ModelPrice, bool) {
	if price, ok := t[provider+"/"+model]; ok {
		return price, true
	}
	price, ok := t[model]
	return price, ok
}

// Summary is the priced outcome of a run.
type Summary struct {
	Steps int      `json:"steps"`
	Usage ai.Usage `json:"usage"`
	// Models is keyed by "provider/model".
	Models    map[string]Breakdown `json:"models,omitempty"`
	ToolCalls map[string]int       `json:"tool_calls,omitempty"`
	ToolCost  float64              `json:"tool_cost"`
	ModelCost float64              `json:"model_cost"`
	Total     float64              `json:"total"`
	// Unpriced lists the models that had usage but no Table entry.
	Unpriced []string `json:"unpriced,omitempty"`
}

// String renders a one-line summary, e.g. "3 steps, 1200 tokens, $0.004100".
func (s Summary) String() string {
	out := fmt.Sprintf("%d steps, %d tokens, $%.6f", s.Steps, s.Usage.TotalTokens, s.Total)
	if len(s.Unpriced) > 0 {
		out += " (unpriced: " + strings.Join(s.Unpriced, ", ") + ")"
	}
	return out
}

// Summarize prices steps with table and charges toolPrices per tool call
// requested by the model.
func Summarize(table Table, toolPrices map[string]float64, steps []*step.Result) Summary {
	tracker := NewTracker(table, toolPrices)
	for _, res := range steps {
		if res != nil {
			tracker.Add(*res)
		}
	}
	return tracker.Summary()
}

// Tracker accumulates a Summary step by step. It is safe for concurrent use.
//
//	tracker := cost.NewTracker(prices, nil)
//	a := agent.New(adapter, agent.WithOnStep(tracker.OnStep))
type Tracker struct {
	table      Table
	toolPrices map[string]float64

	mu       sync.Mutex
	summary  Summary
	unpriced map[string]bool
}

// NewTracker returns an empty tracker.
func NewTracker(table Table, toolPrices map[string]float64) *Tracker {
	return &Tracker{
		table:      table,
		toolPrices: toolPrices,
		summary:    Summary{Models: map[string]Breakdown{}, ToolCalls: map[string]int{}},
		unpriced:   map[string]bool{},
	}
}

// OnStep matches the agent step hook. It never fails.
func (t *Tracker) OnStep(_ context.Context, res step.Result) error {
	t.Add(res)
	return nil
}

// Add records one step.
func (t *Tracker) Add(res step.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &t.summary
	s.Steps++
	s.Usage = s.Usage.Add(res.Usage)

	key := res.Provider + "/" + res.ModelID
	if price, ok := t.table.Lookup(res.Provider, res.ModelID); ok {
		b := price.Cost(res.Usage)
		s.Models[key] = s.Models[key].Add(b)
		s.ModelCost += b.Total
		s.Total += b.Total
	} else if res.Usage.TotalTokens > 0 || res.Usage.InputTokens > 0 || res.Usage.OutputTokens > 0 {
		t.unpriced[key] = true
	}

	for _, call := range ai.PartsOf[ai.ToolCallPart](res.Content) {
		s.ToolCalls[call.ToolName]++
		price := t.toolPrices[call.ToolName]
		s.ToolCost += price
		s.Total += price
	}
}

// Summary returns a copy of the totals so far.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.summary
	out.Models = maps.Clone(t.summary.Models)
	out.ToolCalls = maps.Clone(t.summary.ToolCalls)
	if len(t.unpriced) > 0 {
		out.Unpriced = slices.Sorted(maps.Keys(t.unpriced))
	}
	return out
}
