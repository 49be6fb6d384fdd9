// Package usage tallies token usage for one processing run and prices it.
package usage

import (
	"sync"

	"github.com/stellarlinkco/meetclaw/internal/config"
	"github.com/stellarlinkco/meetclaw/internal/llm"
)

// Tally is the running token count of one run.
type Tally struct {
	InputTokens      int64 `json:"input_tokens"`
	OutputTokens     int64 `json:"output_tokens"`
	CacheWriteTokens int64 `json:"cache_write_tokens"`
	CacheReadTokens  int64 `json:"cache_read_tokens"`
	Calls            int   `json:"calls"`
}

// Accountant records every completion call of a single run.
type Accountant struct {
	mu    sync.Mutex
	tally Tally
}

func NewAccountant() *Accountant {
	return &Accountant{}
}

// Record adds one completion's usage. Negative counters are ignored so the
// tally never shrinks.
func (a *Accountant) Record(u llm.Usage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tally.InputTokens += nonNegative(u.InputTokens)
	a.tally.OutputTokens += nonNegative(u.OutputTokens)
	a.tally.CacheWriteTokens += nonNegative(u.CacheWriteTokens)
	a.tally.CacheReadTokens += nonNegative(u.CacheReadTokens)
	a.tally.Calls++
}

func (a *Accountant) Snapshot() Tally {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tally
}

func nonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

// CostBreakdown is the priced view of a run, in USD.
type CostBreakdown struct {
	InputCost        float64 `json:"input_cost"`
	OutputCost       float64 `json:"output_cost"`
	CacheWriteCost   float64 `json:"cache_write_cost"`
	CacheReadCost    float64 `json:"cache_read_cost"`
	DistillationCost float64 `json:"distillation_cost"`
	TotalCost        float64 `json:"total_cost"`
	CacheSavings     float64 `json:"cache_savings"`
}

// Settle prices a tally. distillationCost is added to the total as is.
func Settle(t Tally, p config.ModelPricing, distillationCost float64) CostBreakdown {
	cb := CostBreakdown{
		InputCost:        perMTok(t.InputTokens, p.InputPerMTok),
		OutputCost:       perMTok(t.OutputTokens, p.OutputPerMTok),
		CacheWriteCost:   perMTok(t.CacheWriteTokens, p.CacheWritePerMTok),
		CacheReadCost:    perMTok(t.CacheReadTokens, p.CacheReadPerMTok),
		DistillationCost: distillationCost,
		CacheSavings:     CacheSavings(t.CacheReadTokens, p),
	}
	cb.TotalCost = cb.InputCost + cb.OutputCost + cb.CacheWriteCost + cb.CacheReadCost + cb.DistillationCost
	return cb
}

// Cost prices a single usage record.
func Cost(u llm.Usage, p config.ModelPricing) float64 {
	return perMTok(u.InputTokens, p.InputPerMTok) +
		perMTok(u.OutputTokens, p.OutputPerMTok) +
		perMTok(u.CacheWriteTokens, p.CacheWritePerMTok) +
		perMTok(u.CacheReadTokens, p.CacheReadPerMTok)
}

// CacheSavings is what cache reads saved against full input pricing.
func CacheSavings(cacheReadTokens int64, p config.ModelPricing) float64 {
	return float64(cacheReadTokens) * (p.InputPerMTok - p.CacheReadPerMTok) / 1_000_000
}

func perMTok(tokens int64, rate float64) float64 {
	return float64(tokens) * rate / 1_000_000
}
