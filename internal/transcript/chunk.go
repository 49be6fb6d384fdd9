package transcript

import (
	"iter"
	"strings"
)

// DefaultChunkTokens is the per-chunk ceiling used when none is given.
const DefaultChunkTokens = 15000

// Chunk is a run of consecutive utterances whose estimated size stays under
// the ceiling, unless it holds a single oversized utterance.
type Chunk struct {
	Lines      []string
	Utterances []Utterance
	Tokens     int
}

func (c Chunk) Text() string {
	return strings.Join(c.Lines, "\n")
}

// SplitSeq lazily yields token-bounded chunks. Utterances are never split and
// their order is preserved across chunks.
func SplitSeq(utterances []Utterance, maxTokens int) iter.Seq[Chunk] {
	if maxTokens <= 0 {
		maxTokens = DefaultChunkTokens
	}
	return func(yield func(Chunk) bool) {
		var cur Chunk
		for _, u := range utterances {
			line := FormatLine(u)
			lineTokens := EstimateTokens(line)

			if cur.Tokens+lineTokens > maxTokens && len(cur.Lines) > 0 {
				if !yield(cur) {
					return
				}
				cur = Chunk{}
			}

			cur.Lines = append(cur.Lines, line)
			cur.Utterances = append(cur.Utterances, u)
			cur.Tokens += lineTokens
		}
		if len(cur.Lines) > 0 {
			yield(cur)
		}
	}
}

// Split collects SplitSeq into a slice. Empty input returns an empty slice.
func Split(utterances []Utterance, maxTokens int) []Chunk {
	chunks := []Chunk{}
	for c := range SplitSeq(utterances, maxTokens) {
		chunks = append(chunks, c)
	}
	return chunks
}
