package classify

import (
	"fmt"
	"time"

	"github.com/stellarlinkco/meetclaw/internal/config"
	"github.com/stellarlinkco/meetclaw/internal/transcript"
)

// Tier selects the model class for the agent loop.
type Tier string

const (
	TierSimple   Tier = "simple"
	TierStandard Tier = "standard"
)

// PricingTier maps a tier to its key in the pricing table and model config.
func (t Tier) PricingTier() string {
	if t == TierSimple {
		return config.TierFast
	}
	return config.TierStandard
}

// Model returns the configured model name for the tier.
func (t Tier) Model(models config.ModelsConfig) string {
	if t == TierSimple {
		return models.Fast
	}
	return models.Standard
}

type Metadata struct {
	Duration    time.Duration
	Utterances  int
	ActionItems int
}

// MetadataFor derives classifier input from a transcript.
func MetadataFor(in transcript.Input, defaultUnit string) Metadata {
	return Metadata{
		Duration:    in.MeetingDurationIn(defaultUnit),
		Utterances:  len(in.Sentences),
		ActionItems: in.Summary.ActionItems.Count(),
	}
}

// Rules are strict upper bounds; a meeting is simple only when it is under all of them.
type Rules struct {
	MaxDuration    time.Duration
	MaxUtterances  int
	MaxActionItems int
}

var DefaultRules = Rules{
	MaxDuration:    15 * time.Minute,
	MaxUtterances:  50,
	MaxActionItems: 3,
}

// RulesFromConfig builds rules from config, keeping defaults for unset values.
func RulesFromConfig(c config.ClassifierConfig) Rules {
	r := DefaultRules
	if c.MaxMinutes > 0 {
		r.MaxDuration = time.Duration(c.MaxMinutes * float64(time.Minute))
	}
	if c.MaxUtterances > 0 {
		r.MaxUtterances = c.MaxUtterances
	}
	if c.MaxActionItems > 0 {
		r.MaxActionItems = c.MaxActionItems
	}
	return r
}

// Classify applies DefaultRules.
func Classify(m Metadata) Tier {
	return DefaultRules.Classify(m)
}

func (r Rules) Classify(m Metadata) Tier {
	if len(r.Signals(m)) == 0 {
		return TierSimple
	}
	return TierStandard
}

// Signals lists which bounds the meeting reached. Empty means simple.
func (r Rules) Signals(m Metadata) []string {
	var out []string
	if m.Duration >= r.MaxDuration {
		out = append(out, fmt.Sprintf("duration %s >= %s", m.Duration, r.MaxDuration))
	}
	if m.Utterances >= r.MaxUtterances {
		out = append(out, fmt.Sprintf("utterances %d >= %d", m.Utterances, r.MaxUtterances))
	}
	if m.ActionItems >= r.MaxActionItems {
		out = append(out, fmt.Sprintf("action items %d >= %d", m.ActionItems, r.MaxActionItems))
	}
	return out
}
