// Package pipeline runs one transcript end to end: size shaping, tier
// routing, the agent loop and cost settlement.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/stellarlinkco/meetclaw/internal/agent"
	"github.com/stellarlinkco/meetclaw/internal/backend"
	"github.com/stellarlinkco/meetclaw/internal/classify"
	"github.com/stellarlinkco/meetclaw/internal/config"
	"github.com/stellarlinkco/meetclaw/internal/distill"
	"github.com/stellarlinkco/meetclaw/internal/llm"
	"github.com/stellarlinkco/meetclaw/internal/tools"
	"github.com/stellarlinkco/meetclaw/internal/transcript"
	"github.com/stellarlinkco/meetclaw/internal/usage"
)

const (
	MethodDirect  = "direct"
	MethodTwoPass = "two-pass"
)

// ProcessingResult is the outcome of one run. Failed runs keep whatever
// fields were filled before the failure.
type ProcessingResult struct {
	RunID             string              `json:"run_id"`
	MeetingID         string              `json:"meeting_id"`
	Title             string              `json:"title"`
	Success           bool                `json:"success"`
	Error             string              `json:"error,omitempty"`
	Summary           string              `json:"summary,omitempty"`
	Tier              classify.Tier       `json:"tier,omitempty"`
	Model             string              `json:"model,omitempty"`
	ProcessingMethod  string              `json:"processing_method,omitempty"`
	TranscriptTokens  int                 `json:"transcript_tokens"`
	ChunkCount        int                 `json:"chunk_count,omitempty"`
	Iterations        int                 `json:"iterations"`
	CeilingReached    bool                `json:"ceiling_reached,omitempty"`
	Usage             usage.Tally         `json:"usage"`
	DistillationUsage llm.Usage           `json:"distillation_usage"`
	Cost              usage.CostBreakdown `json:"cost"`
	ToolCalls         []tools.CallRecord  `json:"tool_calls,omitempty"`
	StartedAt         time.Time           `json:"started_at"`
	FinishedAt        time.Time           `json:"finished_at"`
}

// Options tunes a Processor for tests.
type Options struct {
	Now func() time.Time
}

type Processor struct {
	cfg      *config.Config
	client   llm.Client
	executor *tools.Executor
	pricing  config.PricingTable
	rules    classify.Rules
	now      func() time.Time
}

// NewFromConfig wires the configured completion provider, record backend and
// pricing file.
func NewFromConfig(cfg *config.Config) (*Processor, error) {
	pricing, err := config.LoadPricingFile(cfg.Pricing.File)
	if err != nil {
		return nil, fmt.Errorf("load pricing: %w", err)
	}
	client, err := llm.NewClient(cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("create completion client: %w", err)
	}
	b := backend.NewHTTPBackend(cfg.Backend.BaseURL, time.Duration(cfg.Backend.TimeoutSec)*time.Second, nil)
	return NewProcessor(cfg, client, b, pricing), nil
}

func NewProcessor(cfg *config.Config, client llm.Client, b backend.Backend, pricing config.PricingTable) *Processor {
	return NewProcessorWithOptions(cfg, client, b, pricing, Options{})
}

func NewProcessorWithOptions(cfg *config.Config, client llm.Client, b backend.Backend, pricing config.PricingTable, opts Options) *Processor {
	if pricing == nil {
		pricing = config.DefaultPricing
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Processor{
		cfg:      cfg,
		client:   client,
		executor: tools.NewExecutor(b),
		pricing:  pricing,
		rules:    classify.RulesFromConfig(cfg.Classifier),
		now:      now,
	}
}

// Process runs in to completion. It always returns a result and never panics.
func (p *Processor) Process(ctx context.Context, in transcript.Input) (res *ProcessingResult) {
	res = &ProcessingResult{
		RunID:     uuid.NewString(),
		MeetingID: in.ID,
		Title:     in.DisplayTitle(),
		StartedAt: p.now(),
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[pipeline] run %s panicked: %v", res.RunID, r)
			res.Success = false
			res.Error = fmt.Sprintf("panic: %v\n%s", r, debug.Stack())
		}
		res.FinishedAt = p.now()
	}()

	if err := in.Validate(); err != nil {
		res.Error = fmt.Sprintf("invalid transcript: %v", err)
		return res
	}
	if spoken, dropped := in.SpokenSentences(); dropped > 0 {
		log.Printf("[pipeline] %s: dropped %d blank sentences", res.RunID, dropped)
		in.Sentences = spoken
	}

	res.TranscriptTokens = transcript.EstimateTotal(in.Sentences)
	meta := classify.MetadataFor(in, p.cfg.Processing.DurationUnit)
	res.Tier = p.rules.Classify(meta)
	res.Model = res.Tier.Model(p.cfg.Models)
	log.Printf("[pipeline] %s %q: ~%d tokens, %d utterances, %s, tier %s (%s)",
		res.RunID, res.Title, res.TranscriptTokens, meta.Utterances, meta.Duration, res.Tier, res.Model)

	var distillCost float64
	body := ""
	if res.TranscriptTokens > p.cfg.Processing.LongMeetingThreshold {
		res.ProcessingMethod = MethodTwoPass
		ex := distill.NewExtractor(p.client, p.cfg, p.pricing)
		dr, err := ex.ProcessLong(ctx, in.Sentences)
		if dr != nil {
			res.ChunkCount = dr.ChunkCount
			res.DistillationUsage = dr.Usage
			distillCost = dr.Cost
		}
		if err != nil {
			res.Cost = usage.Settle(usage.Tally{}, p.pricing.Lookup(res.Tier.PricingTier()), distillCost)
			res.Error = fmt.Sprintf("distillation failed: %v", err)
			log.Printf("[pipeline] %s: %s", res.RunID, res.Error)
			return res
		}
		body = dr.Text
	} else {
		res.ProcessingMethod = MethodDirect
		body = transcript.FormatUtterances(in.Sentences)
	}

	seed := seedPrompt(in, body, res.ProcessingMethod, in.MeetingDate(p.now()), meta.Duration)

	acct := usage.NewAccountant()
	ctrl, err := agent.New(p.client, p.executor, acct, agent.Options{
		Model:         res.Model,
		System:        SystemPrompt,
		CacheSystem:   p.cfg.Agent.CacheSystemPrompt,
		MaxTokens:     p.cfg.Agent.MaxTokens,
		MaxIterations: p.cfg.Agent.MaxIterations,
	})
	if err != nil {
		res.Error = err.Error()
		return res
	}

	out := ctrl.Run(ctx, seed)
	res.Iterations = out.Iterations
	res.CeilingReached = out.CeilingReached
	res.ToolCalls = out.ToolCalls
	res.Summary = out.Summary
	res.Usage = acct.Snapshot()
	res.Cost = usage.Settle(res.Usage, p.pricing.Lookup(res.Tier.PricingTier()), distillCost)

	if out.State != agent.Done {
		res.Error = fmt.Sprintf("agent loop failed: %v", out.Err)
		log.Printf("[pipeline] %s: %s", res.RunID, res.Error)
		return res
	}

	res.Success = true
	log.Printf("[pipeline] %s complete: %d iterations, %d tool calls, $%.4f (cache savings $%.4f)",
		res.RunID, res.Iterations, len(res.ToolCalls), res.Cost.TotalCost, res.Cost.CacheSavings)
	return res
}
