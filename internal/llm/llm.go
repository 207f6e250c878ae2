package llm

import "fmt"

func New(cfg Config) (LLM, error) {
	switch cfg.Provider {
	case "gemini", "":
		return newGemini(cfg), nil
	case "claude":
		return newClaude(cfg.APIKey, cfg.Model), nil
	case "openai":
		return newOpenAI(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// KnownProviders returns all known provider IDs.
func KnownProviders() []string {
	return []string{"gemini", "claude", "openai"}
}
