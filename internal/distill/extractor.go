// Package distill condenses long transcripts into a briefing by running a
// cheap extraction pass over token-bounded segments.
package distill

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/stellarlinkco/meetclaw/internal/config"
	"github.com/stellarlinkco/meetclaw/internal/llm"
	"github.com/stellarlinkco/meetclaw/internal/transcript"
	"github.com/stellarlinkco/meetclaw/internal/usage"
)

const systemPrompt = "You are a meeting analyst. Extract actionable information concisely and thoroughly."

const extractionPrompt = `Extract ALL of the following from this meeting segment. Be thorough, do not skip anything:

1. **Action items**: Who needs to do what, with any mentioned deadlines
2. **Decisions made**: What was decided and the rationale
3. **Key discussion points**: Main topics and important context
4. **Issues raised**: Problems, blockers, or concerns mentioned
5. **Rocks/priorities**: Any quarterly goals or strategic priorities discussed

Be concise but comprehensive. Use bullet points. Preserve speaker names and specific details.`

// nothingExtracted stands in for a segment the model returned no text for.
const nothingExtracted = "- (nothing actionable in this segment)"

type Result struct {
	Text             string
	ChunkCount       int
	Usage            llm.Usage
	Cost             float64
	TranscriptTokens int
}

type Extractor struct {
	client      llm.Client
	model       string
	chunkTokens int
	maxTokens   int
	pricing     config.ModelPricing
}

// NewExtractor builds an extractor on the fast tier model, priced with the
// fast tier entry of the table.
func NewExtractor(client llm.Client, cfg *config.Config, pricing config.PricingTable) *Extractor {
	return &Extractor{
		client:      client,
		model:       cfg.Models.Fast,
		chunkTokens: cfg.Processing.ChunkTokens,
		maxTokens:   cfg.Processing.ExtractionMaxTokens,
		pricing:     pricing.Lookup(config.TierFast),
	}
}

// Extract runs one extraction request for a single chunk. index is 1-based.
func (e *Extractor) Extract(ctx context.Context, chunk transcript.Chunk, index, total int) (string, llm.Usage, error) {
	content := fmt.Sprintf("Meeting Transcript - Segment %d of %d:\n\n%s\n\n%s", index, total, chunk.Text(), extractionPrompt)
	resp, err := e.client.Complete(ctx, llm.Request{
		Model:     e.model,
		System:    systemPrompt,
		Messages:  []llm.Message{llm.UserText(content)},
		MaxTokens: e.maxTokens,
	})
	if err != nil {
		return "", llm.Usage{}, fmt.Errorf("extract segment %d of %d: %w", index, total, err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		log.Printf("[distill] segment %d/%d returned no text", index, total)
		text = nothingExtracted
	}

	log.Printf("[distill] segment %d/%d extracted: %d in / %d out, $%.4f",
		index, total, resp.Usage.InputTokens, resp.Usage.OutputTokens, usage.Cost(resp.Usage, e.pricing))
	return text, resp.Usage, nil
}

// ProcessLong chunks the utterances, extracts every chunk in order and joins
// the results into one briefing. The first failing chunk aborts the pass, and
// the returned partial result carries the usage of the chunks before it.
func (e *Extractor) ProcessLong(ctx context.Context, utterances []transcript.Utterance) (*Result, error) {
	chunks := transcript.Split(utterances, e.chunkTokens)
	total := len(chunks)
	tokens := transcript.EstimateTotal(utterances)
	log.Printf("[distill] split ~%d token transcript into %d segments", tokens, total)

	res := &Result{ChunkCount: total, TranscriptTokens: tokens}
	sections := make([]string, 0, total)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("distill: %w", err)
		}
		text, u, err := e.Extract(ctx, chunk, i+1, total)
		res.Usage = res.Usage.Add(u)
		res.Cost = usage.Cost(res.Usage, e.pricing)
		if err != nil {
			return res, err
		}
		sections = append(sections, fmt.Sprintf("### Segment %d of %d\n%s", i+1, total, text))
	}

	res.Text = fmt.Sprintf("Transcript size: ~%d tokens, processed in %d segments. Nothing has been truncated.\n\n%s",
		tokens, total, strings.Join(sections, "\n\n"))
	log.Printf("[distill] extraction complete: %d segments, $%.4f", total, res.Cost)
	return res, nil
}
