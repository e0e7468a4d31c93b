package domain

// Tier is a descriptive ranking bucket. It never influences auto-selection.
type Tier string

const (
	TierPremium     Tier = "premium"
	TierGeneral     Tier = "general"
	TierRegional    Tier = "regional"
	TierSpecialized Tier = "specialized"
	TierCustom      Tier = "custom"
)

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierPremium, TierGeneral, TierRegional, TierSpecialized, TierCustom:
		return true
	}
	return false
}

// ProviderDescriptor is static metadata for one upstream AI provider.
type ProviderDescriptor struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	SecretName  string `json:"secret_name"`
	Tier        Tier   `json:"tier"`
}

// DefaultProviders is the built-in provider table. Its order is the
// auto-selection order.
func DefaultProviders() []ProviderDescriptor {
	return []ProviderDescriptor{
		{ID: "perplexity", DisplayName: "Perplexity Sonar", SecretName: "PERPLEXITY_API_KEY", Tier: TierPremium},
		{ID: "openai", DisplayName: "GPT-4 / Copilot (OpenAI)", SecretName: "OPENAI_API_KEY", Tier: TierGeneral},
		{ID: "claude", DisplayName: "Claude (Anthropic)", SecretName: "ANTHROPIC_API_KEY", Tier: TierGeneral},
		{ID: "gemini", DisplayName: "Gemini (Google)", SecretName: "GOOGLE_API_KEY", Tier: TierGeneral},
		{ID: "deepseek", DisplayName: "DeepSeek", SecretName: "DEEPSEEK_API_KEY", Tier: TierRegional},
		{ID: "qwen", DisplayName: "Qwen (Alibaba)", SecretName: "QWEN_API_KEY", Tier: TierRegional},
		{ID: "kimi", DisplayName: "Kimi (Moonshot)", SecretName: "MOONSHOT_API_KEY", Tier: TierRegional},
		{ID: "grok", DisplayName: "Grok (xAI)", SecretName: "GROK_API_KEY", Tier: TierSpecialized},
		{ID: "agnes", DisplayName: "Agnes (Custom)", SecretName: "AGNES_API_KEY", Tier: TierCustom},
	}
}

// DefaultKeyAllowList is the set of provider ids users may store secrets for.
var DefaultKeyAllowList = []string{"perplexity", "openai", "claude", "gemini", "deepseek", "kimi"}
