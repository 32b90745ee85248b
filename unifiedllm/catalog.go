package unifiedllm

// ModelInfo describes a known model in the catalog.
type ModelInfo struct {
	ID             string   `json:"id"`
	Provider       string   `json:"provider"`
	DisplayName    string   `json:"display_name"`
	ContextWindow  int      `json:"context_window"`
	MaxOutput      *int     `json:"max_output,omitempty"`
	SupportsJSON   bool     `json:"supports_json"`
	SupportsVision bool     `json:"supports_vision"`
	Aliases        []string `json:"aliases,omitempty"`
}

func intPtr(v int) *int { return &v }

// DefaultContextWindow is assumed for models missing from the catalog.
const DefaultContextWindow = 128000

// Models is the built-in model catalog. Entries for a provider are ordered
// newest first.
var Models = []ModelInfo{
	// Gemini (OpenAI-compatible endpoint)
	{
		ID: "gemini-2.5-flash", Provider: "gemini", DisplayName: "Gemini 2.5 Flash",
		ContextWindow: 1048576, MaxOutput: intPtr(65536),
		SupportsJSON: true, SupportsVision: true,
		Aliases: []string{"gemini-flash"},
	},
	{
		ID: "gemini-2.5-pro", Provider: "gemini", DisplayName: "Gemini 2.5 Pro",
		ContextWindow: 1048576, MaxOutput: intPtr(65536),
		SupportsJSON: true, SupportsVision: true,
		Aliases: []string{"gemini-pro"},
	},
	{
		ID: "gemini-2.0-flash", Provider: "gemini", DisplayName: "Gemini 2.0 Flash",
		ContextWindow: 1048576, MaxOutput: intPtr(8192),
		SupportsJSON: true, SupportsVision: true,
		Aliases: []string{"gemini-2-flash"},
	},

	// OpenAI
	{
		ID: "gpt-4.1", Provider: "openai", DisplayName: "GPT-4.1",
		ContextWindow: 1047576, MaxOutput: intPtr(32768),
		SupportsJSON: true, SupportsVision: true,
		Aliases: []string{"gpt4.1"},
	},
	{
		ID: "gpt-4o-mini", Provider: "openai", DisplayName: "GPT-4o Mini",
		ContextWindow: 128000, MaxOutput: intPtr(16384),
		SupportsJSON: true, SupportsVision: true,
		Aliases: []string{"4o-mini"},
	},

	// Anthropic (via gollm)
	{
		ID: "claude-sonnet-4-5", Provider: "anthropic", DisplayName: "Claude Sonnet 4.5",
		ContextWindow: 200000, MaxOutput: intPtr(16384),
		SupportsJSON: false, SupportsVision: true,
		Aliases: []string{"sonnet", "claude-sonnet"},
	},
	{
		ID: "claude-3-5-haiku-latest", Provider: "anthropic", DisplayName: "Claude 3.5 Haiku",
		ContextWindow: 200000, MaxOutput: intPtr(8192),
		SupportsJSON: false, SupportsVision: false,
		Aliases: []string{"haiku"},
	},
}

// GetModelInfo returns the catalog entry for a model, or nil if unknown.
func GetModelInfo(modelID string) *ModelInfo {
	for i := range Models {
		if Models[i].ID == modelID {
			return &Models[i]
		}
		for _, alias := range Models[i].Aliases {
			if alias == modelID {
				return &Models[i]
			}
		}
	}
	return nil
}

// ListModels returns all known models, optionally filtered by provider.
func ListModels(provider string) []ModelInfo {
	if provider == "" {
		result := make([]ModelInfo, len(Models))
		copy(result, Models)
		return result
	}
	var result []ModelInfo
	for _, m := range Models {
		if m.Provider == provider {
			result = append(result, m)
		}
	}
	return result
}

// GetLatestModel returns the first (newest) model for a provider,
// optionally filtered by capability ("json" or "vision").
func GetLatestModel(provider string, capability string) *ModelInfo {
	for i := range Models {
		if Models[i].Provider != provider {
			continue
		}
		switch capability {
		case "":
			return &Models[i]
		case "json":
			if Models[i].SupportsJSON {
				return &Models[i]
			}
		case "vision":
			if Models[i].SupportsVision {
				return &Models[i]
			}
		}
	}
	return nil
}

// ContextWindowFor returns the context window of a model, falling back to
// DefaultContextWindow for unknown models.
func ContextWindowFor(modelID string) int {
	if info := GetModelInfo(modelID); info != nil {
		return info.ContextWindow
	}
	return DefaultContextWindow
}
