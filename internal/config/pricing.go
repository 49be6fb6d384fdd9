package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	TierFast     = "fast"
	TierStandard = "standard"
)

// ModelPricing holds per-million-token prices for one tier.
type ModelPricing struct {
	InputPerMTok      float64
	OutputPerMTok     float64
	CacheWritePerMTok float64
	CacheReadPerMTok  float64
}

// PricingTable maps tier names to pricing.
type PricingTable map[string]ModelPricing

// DefaultPricing is used when no pricing file is configured.
var DefaultPricing = PricingTable{
	TierFast: {
		InputPerMTok: 1.00, OutputPerMTok: 5.00,
		CacheWritePerMTok: 1.25, CacheReadPerMTok: 0.10,
	},
	TierStandard: {
		InputPerMTok: 3.00, OutputPerMTok: 15.00,
		CacheWritePerMTok: 3.75, CacheReadPerMTok: 0.30,
	},
}

// PricingOverride holds optional per-tier overrides; nil fields keep the default.
type PricingOverride struct {
	InputPerMTok      *float64 `toml:"input_per_mtok,omitempty" yaml:"input_per_mtok,omitempty"`
	OutputPerMTok     *float64 `toml:"output_per_mtok,omitempty" yaml:"output_per_mtok,omitempty"`
	CacheWritePerMTok *float64 `toml:"cache_write_per_mtok,omitempty" yaml:"cache_write_per_mtok,omitempty"`
	CacheReadPerMTok  *float64 `toml:"cache_read_per_mtok,omitempty" yaml:"cache_read_per_mtok,omitempty"`
}

type pricingFile struct {
	Tiers map[string]PricingOverride `toml:"tiers" yaml:"tiers"`
}

// Clone returns an independent copy of the table.
func (t PricingTable) Clone() PricingTable {
	out := make(PricingTable, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Lookup returns pricing for a tier. Unknown tiers fall back to standard.
func (t PricingTable) Lookup(tier string) ModelPricing {
	if p, ok := t[strings.ToLower(strings.TrimSpace(tier))]; ok {
		return p
	}
	return t[TierStandard]
}

// Apply merges overrides into the table in place.
func (t PricingTable) Apply(overrides map[string]PricingOverride) {
	for tier, o := range overrides {
		key := strings.ToLower(strings.TrimSpace(tier))
		p := t[key]
		if o.InputPerMTok != nil {
			p.InputPerMTok = *o.InputPerMTok
		}
		if o.OutputPerMTok != nil {
			p.OutputPerMTok = *o.OutputPerMTok
		}
		if o.CacheWritePerMTok != nil {
			p.CacheWritePerMTok = *o.CacheWritePerMTok
		}
		if o.CacheReadPerMTok != nil {
			p.CacheReadPerMTok = *o.CacheReadPerMTok
		}
		t[key] = p
	}
}

// LoadPricingFile reads tier overrides from a .toml or .yaml file and merges
// them over DefaultPricing. An empty path returns the defaults.
func LoadPricingFile(path string) (PricingTable, error) {
	table := DefaultPricing.Clone()
	if strings.TrimSpace(path) == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing file: %w", err)
	}

	var pf pricingFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &pf); err != nil {
			return nil, fmt.Errorf("parse pricing toml: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &pf); err != nil {
			return nil, fmt.Errorf("parse pricing yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported pricing file extension: %s", filepath.Ext(path))
	}

	table.Apply(pf.Tiers)
	return table, nil
}
