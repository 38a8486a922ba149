package llmprovider

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed config/capabilities/anthropic.yaml
var anthropicCapabilitiesYAML []byte

// Capabilities Philosophy:
//
// This file provides MODEL METADATA for pricing calculations and informational purposes.
// It does NOT enforce validation - the upstream worker is the source of truth.
//
// Capabilities may be outdated as new models are released.
// Library users can override embedded capabilities by:
//  1. Calling LoadCapabilitiesFromFile() with custom YAML
//  2. Calling RegisterProviderCapabilities() programmatically

// ProviderCapabilities represents the full capability configuration for a provider
type ProviderCapabilities struct {
	Version     string                     `yaml:"version"`      // Semantic version (e.g., "1.0.0")
	LastUpdated string                     `yaml:"last_updated"` // ISO 8601 date (e.g., "2025-01-15")
	Provider    string                     `yaml:"provider"`
	Models      map[string]ModelCapability `yaml:"models"`
}

// ModelCapability represents the capabilities of a specific model
type ModelCapability struct {
	Aliases         []string      `yaml:"aliases"`
	ContextWindow   int           `yaml:"context_window"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	Features        ModelFeatures `yaml:"features"`
	Pricing         PricingInfo   `yaml:"pricing"`
}

// ModelFeatures indicates which features a model supports
type ModelFeatures struct {
	Vision    bool `yaml:"vision"`
	Tools     bool `yaml:"tools"`
	Thinking  bool `yaml:"thinking"`
	Streaming bool `yaml:"streaming"`
}

// PricingInfo contains model pricing information (USD per million tokens)
type PricingInfo struct {
	InputPer1M      float64 `yaml:"input_per_1m"`
	OutputPer1M     float64 `yaml:"output_per_1m"`
	CacheWritePer1M float64 `yaml:"cache_write_per_1m"`
	CacheReadPer1M  float64 `yaml:"cache_read_per_1m"`
}

// CapabilityRegistry manages provider capabilities
type CapabilityRegistry struct {
	capabilities map[string]*ProviderCapabilities
	mu           sync.RWMutex
}

var (
	globalRegistry     *CapabilityRegistry
	globalRegistryOnce sync.Once
)

// dated model IDs end in a release date, e.g. claude-sonnet-4-5-20250929
var modelDateSuffix = regexp.MustCompile(`-\d{8}$`)

// NewCapabilityRegistry creates an empty registry.
func NewCapabilityRegistry() *CapabilityRegistry {
	return &CapabilityRegistry{
		capabilities: make(map[string]*ProviderCapabilities),
	}
}

// GetCapabilityRegistry returns the global capability registry (singleton)
func GetCapabilityRegistry() *CapabilityRegistry {
	globalRegistryOnce.Do(func() {
		globalRegistry = NewCapabilityRegistry()
		// Load embedded Anthropic capabilities
		if err := globalRegistry.loadAnthropicCapabilities(); err != nil {
			// Don't panic - cost calculation degrades to zero for unknown models
			fmt.Fprintf(os.Stderr, "Warning: failed to load Anthropic capabilities: %v\n", err)
		}
	})
	return globalRegistry
}

// loadAnthropicCapabilities loads the embedded Anthropic YAML
func (r *CapabilityRegistry) loadAnthropicCapabilities() error {
	var caps ProviderCapabilities
	if err := yaml.Unmarshal(anthropicCapabilitiesYAML, &caps); err != nil {
		return fmt.Errorf("failed to unmarshal Anthropic capabilities: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities[string(ProviderAnthropic)] = &caps

	return nil
}

// GetProviderCapabilities returns capabilities for a provider
func (r *CapabilityRegistry) GetProviderCapabilities(provider string) (*ProviderCapabilities, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps, ok := r.capabilities[provider]
	if !ok {
		return nil, fmt.Errorf("no capabilities found for provider: %s", provider)
	}
	return caps, nil
}

// ResolveModel maps a model ID to its catalog name.
// Accepts exact catalog names, dated IDs (claude-sonnet-4-5-20250929) and aliases (sonnet).
func (r *CapabilityRegistry) ResolveModel(provider, model string) (string, bool) {
	providerCaps, err := r.GetProviderCapabilities(provider)
	if err != nil {
		return "", false
	}

	if _, ok := providerCaps.Models[model]; ok {
		return model, true
	}

	undated := modelDateSuffix.ReplaceAllString(model, "")
	if _, ok := providerCaps.Models[undated]; ok {
		return undated, true
	}

	for name, modelCap := range providerCaps.Models {
		for _, alias := range modelCap.Aliases {
			if alias == model {
				return name, true
			}
		}
	}
	return "", false
}

// GetModelCapability returns capabilities for a specific model
func (r *CapabilityRegistry) GetModelCapability(provider, model string) (*ModelCapability, error) {
	providerCaps, err := r.GetProviderCapabilities(provider)
	if err != nil {
		return nil, err
	}

	name, ok := r.ResolveModel(provider, model)
	if !ok {
		return nil, fmt.Errorf("model %s not found for provider %s", model, provider)
	}
	modelCap := providerCaps.Models[name]
	return &modelCap, nil
}

// SupportsModel checks if a provider supports a specific model
func (r *CapabilityRegistry) SupportsModel(provider, model string) bool {
	_, err := r.GetModelCapability(provider, model)
	return err == nil
}

// ListModels returns the catalog names of all models for a provider, sorted
func (r *CapabilityRegistry) ListModels(provider string) []string {
	providerCaps, err := r.GetProviderCapabilities(provider)
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(providerCaps.Models))
	for name := range providerCaps.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CalculateCost prices a usage record with the model's catalog pricing.
// Unknown models cost nothing.
func (r *CapabilityRegistry) CalculateCost(provider, model string, usage Usage) Cost {
	modelCap, err := r.GetModelCapability(provider, model)
	if err != nil {
		return Cost{}
	}

	p := modelCap.Pricing
	cost := Cost{
		Input:      float64(usage.Input) * p.InputPer1M / 1_000_000,
		Output:     float64(usage.Output) * p.OutputPer1M / 1_000_000,
		CacheRead:  float64(usage.CacheRead) * p.CacheReadPer1M / 1_000_000,
		CacheWrite: float64(usage.CacheWrite) * p.CacheWritePer1M / 1_000_000,
	}
	cost.Total = cost.Input + cost.Output + cost.CacheRead + cost.CacheWrite
	return cost
}

// LoadCapabilitiesFromFile loads provider capabilities from a YAML file.
// This allows library users to override embedded capabilities with custom data.
// The file format should match the embedded YAML structure.
func (r *CapabilityRegistry) LoadCapabilitiesFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read capabilities file: %w", err)
	}

	var caps ProviderCapabilities
	if err := yaml.Unmarshal(data, &caps); err != nil {
		return fmt.Errorf("failed to unmarshal capabilities: %w", err)
	}
	if caps.Provider == "" {
		return fmt.Errorf("capabilities file %s: missing provider", path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities[caps.Provider] = &caps

	return nil
}

// RegisterProviderCapabilities programmatically registers provider capabilities.
// This allows library users to define capabilities in code rather than YAML.
func (r *CapabilityRegistry) RegisterProviderCapabilities(provider string, caps *ProviderCapabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities[provider] = caps
}

// LoadCapabilitiesFromFile is a convenience function that calls the global registry's LoadCapabilitiesFromFile.
func LoadCapabilitiesFromFile(path string) error {
	return GetCapabilityRegistry().LoadCapabilitiesFromFile(path)
}

// RegisterProviderCapabilities is a convenience function that calls the global registry's RegisterProviderCapabilities.
func RegisterProviderCapabilities(provider string, caps *ProviderCapabilities) {
	GetCapabilityRegistry().RegisterProviderCapabilities(provider, caps)
}
