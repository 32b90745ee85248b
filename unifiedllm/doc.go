// Package unifiedllm provides a provider-agnostic chat completion client.
//
// Two adapters implement ProviderAdapter. OpenAIAdapter speaks the OpenAI
// chat completions wire format through github.com/openai/openai-go and is
// used for OpenAI and for Gemini's OpenAI-compatible endpoint, including
// native JSON mode. GollmAdapter wraps github.com/teilomillet/gollm for the
// remaining providers and flattens the conversation into a single prompt.
//
// # Quick Start
//
//	adapter, _ := unifiedllm.NewOpenAIAdapter("gemini",
//	    unifiedllm.WithOpenAIKey(os.Getenv("GEMINI_API_KEY")))
//	client := unifiedllm.NewClient(
//	    unifiedllm.WithProvider("gemini", adapter),
//	    unifiedllm.WithMiddleware(unifiedllm.RetryMiddleware(unifiedllm.DefaultRetryPolicy())),
//	)
//
//	resp, _ := client.Complete(ctx, unifiedllm.Request{
//	    Model:          "gemini-2.0-flash",
//	    Messages:       []unifiedllm.Message{unifiedllm.UserMessage("Hello")},
//	    ResponseFormat: &unifiedllm.ResponseFormat{Type: unifiedllm.FormatJSONObject},
//	})
//	fmt.Println(resp.Text())
//
// # Errors
//
// Adapters translate provider failures into the SDKError hierarchy.
// IsRetryable classifies them; RetryMiddleware retries only the retryable ones.
//
// # Model Catalog
//
//	info := unifiedllm.GetModelInfo("gemini-2.0-flash")
//	models := unifiedllm.ListModels("openai")
//	latest := unifiedllm.GetLatestModel("gemini", "json")
package unifiedllm
