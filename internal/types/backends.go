package types

// Tier classifies a backend by capability and cost profile
type Tier string

const (
	TierFast           Tier = "fast"
	TierBalanced       Tier = "balanced"
	TierHighCapability Tier = "high_capability"
)

// ValidTier reports whether t is one of the known capability tiers
func ValidTier(t Tier) bool {
	switch t {
	case TierFast, TierBalanced, TierHighCapability:
		return true
	}
	return false
}

// BackendDescriptor describes one completion backend in the registry.
// Descriptors are loaded once at startup and shared read-only afterwards.
type BackendDescriptor struct {
	// Stable identifier used in routing decisions and fallback chains
	ID string `yaml:"id" json:"id"`

	// Which SDK drives this backend ("openai" or "anthropic")
	Provider string `yaml:"provider" json:"provider"`

	// Provider-side model identifier
	Model string `yaml:"model" json:"model"`

	// Capability tier used by the routing policy
	Tier Tier `yaml:"tier" json:"tier"`

	// Ordered list of backend IDs to try after this one fails
	FallbackChain []string `yaml:"fallback_chain" json:"fallback_chain"`
}
