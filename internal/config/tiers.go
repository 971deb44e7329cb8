package config

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed models/tiers.yaml
var tiersFile embed.FS

// roleModels is the per-tier {role: modelID} table loaded from models/tiers.yaml.
type roleModels struct {
	Narrator      string `yaml:"narrator"`
	Classifier    string `yaml:"classifier"`
	Retrieval     string `yaml:"retrieval"`
	Summarization string `yaml:"summarization"`
	Suggestions   string `yaml:"suggestions"`
}

// TierRegistry resolves a QualityTier + role to a model id.
type TierRegistry struct {
	tiers map[QualityTier]roleModels
}

// LoadTierRegistry parses the embedded quality-tier table.
func LoadTierRegistry() (*TierRegistry, error) {
	data, err := tiersFile.ReadFile("models/tiers.yaml")
	if err != nil {
		return nil, fmt.Errorf("read tiers.yaml: %w", err)
	}

	var raw map[string]roleModels
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse tiers.yaml: %w", err)
	}

	tiers := make(map[QualityTier]roleModels, len(raw))
	for tier, models := range raw {
		tiers[QualityTier(tier)] = models
	}
	return &TierRegistry{tiers: tiers}, nil
}

// ModelFor resolves the model id for role in tier. An explicit override in
// ProviderModels always wins; this is only a fallback (spec §6 providerModels).
func (r *TierRegistry) ModelFor(tier QualityTier, override string, role func(roleModels) string) (string, error) {
	if override != "" {
		return override, nil
	}
	models, ok := r.tiers[tier]
	if !ok {
		return "", fmt.Errorf("unknown quality tier: %s", tier)
	}
	modelID := role(models)
	if modelID == "" {
		return "", fmt.Errorf("no model configured for tier %s", tier)
	}
	return modelID, nil
}

// ResolveModels resolves every role for a (tier, overrides) pair in one pass.
func (r *TierRegistry) ResolveModels(tier QualityTier, overrides ProviderModels) (ProviderModels, error) {
	narrator, err := r.ModelFor(tier, overrides.Narrator, func(m roleModels) string { return m.Narrator })
	if err != nil {
		return ProviderModels{}, err
	}
	classifier, err := r.ModelFor(tier, overrides.Classifier, func(m roleModels) string { return m.Classifier })
	if err != nil {
		return ProviderModels{}, err
	}
	retrieval, err := r.ModelFor(tier, overrides.Retrieval, func(m roleModels) string { return m.Retrieval })
	if err != nil {
		return ProviderModels{}, err
	}
	summarization, err := r.ModelFor(tier, overrides.Summarization, func(m roleModels) string { return m.Summarization })
	if err != nil {
		return ProviderModels{}, err
	}
	suggestions, err := r.ModelFor(tier, overrides.Suggestions, func(m roleModels) string { return m.Suggestions })
	if err != nil {
		return ProviderModels{}, err
	}

	return ProviderModels{
		Narrator:      narrator,
		Classifier:    classifier,
		Retrieval:     retrieval,
		Summarization: summarization,
		Suggestions:   suggestions,
	}, nil
}
