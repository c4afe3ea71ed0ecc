// Package factory assembles LLM clients with their middleware chains.
// Backends stay raw; every client handed out here carries metrics and
// per-request timeouts, labeled by the component that owns it.
package factory

import (
	"fmt"
	"time"

	"guildbot/pkg/config"
	"guildbot/pkg/llm"
	"guildbot/pkg/llm/internal/llmimpl/anthropic"
	"guildbot/pkg/llm/internal/llmimpl/google"
	"guildbot/pkg/llm/internal/llmimpl/ollama"
	"guildbot/pkg/llm/internal/llmimpl/openaiofficial"
	"guildbot/pkg/llm/middleware/metrics"
	"guildbot/pkg/llm/middleware/timeout"
	"guildbot/pkg/logx"
)

// DefaultRequestTimeout bounds a single model call. Agentic generation makes
// many calls; each one gets its own window.
const DefaultRequestTimeout = 2 * time.Minute

// ClientFactory creates LLM clients with properly configured middleware chains.
type ClientFactory struct {
	recorder metrics.Recorder
	timeout  time.Duration
}

// NewClientFactory creates a factory recording to Prometheus.
func NewClientFactory() *ClientFactory {
	return &ClientFactory{
		recorder: metrics.NewPrometheusRecorder(),
		timeout:  DefaultRequestTimeout,
	}
}

// NewClientFactoryWithRecorder creates a factory with a custom recorder,
// used by tests to avoid global Prometheus registration.
func NewClientFactoryWithRecorder(recorder metrics.Recorder, requestTimeout time.Duration) *ClientFactory {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	return &ClientFactory{
		recorder: recorder,
		timeout:  requestTimeout,
	}
}

// CreateClient builds a middleware-wrapped client for the given model.
// The credential comes from the secrets layer based on the model's provider;
// component labels the client's metrics and log lines.
func (f *ClientFactory) CreateClient(modelName, component string) (llm.LLMClient, error) {
	provider, err := config.GetModelProvider(modelName)
	if err != nil {
		return nil, fmt.Errorf("failed to determine provider for model %s: %w", modelName, err)
	}

	apiKey, err := config.GetAPIKey(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to get API key for provider %s: %w", provider, err)
	}

	var rawClient llm.LLMClient
	switch provider {
	case config.ProviderAnthropic:
		rawClient = anthropic.NewClaudeClient(apiKey, modelName)
	case config.ProviderOpenAI:
		rawClient = openaiofficial.NewOfficialClient(apiKey, modelName)
	case config.ProviderGoogle:
		rawClient = google.NewGeminiClient(apiKey, modelName)
	case config.ProviderOllama:
		// GetAPIKey returns the host URL for Ollama.
		rawClient = ollama.NewClient(apiKey, modelName)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}

	// Metrics -> Timeout -> RawClient. No retry or circuit layers: a failed
	// model call fails the stage that made it.
	client := llm.Chain(rawClient,
		metrics.Middleware(f.recorder, nil, component, logx.NewLogger("llm-"+component)),
		timeout.Middleware(f.timeout),
	)

	return client, nil
}
