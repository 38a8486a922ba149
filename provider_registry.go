package llmprovider

// ProviderID represents a unique provider identifier.
// Using a typed constant prevents typos and provides compile-time safety.
type ProviderID string

// Known provider identifiers
const (
	// ProviderClaudeAgent is the Claude Agent worker (Claude Code CLI in stream-json mode)
	ProviderClaudeAgent ProviderID = "claude-agent-sdk"

	// ProviderAnthropic is Anthropic's Claude API (pricing catalog key)
	ProviderAnthropic ProviderID = "anthropic"

	// ProviderLorem is the mock Lorem worker for testing
	ProviderLorem ProviderID = "lorem"
)

// String returns the string representation of the provider ID
func (p ProviderID) String() string {
	return string(p)
}

// IsValid returns true if the provider ID is a known provider
func (p ProviderID) IsValid() bool {
	switch p {
	case ProviderClaudeAgent, ProviderAnthropic, ProviderLorem:
		return true
	default:
		return false
	}
}

// IsClaudeAgentProvider reports whether name is the reserved identifier of the
// Claude Agent provider.
func IsClaudeAgentProvider(name string) bool {
	return name == string(ProviderClaudeAgent)
}
