package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// ModelUsage is one model's share of token and cost totals.
type ModelUsage struct {
	Model  string  `json:"model"`
	Tokens int64   `json:"tokens"`
	Cost   float64 `json:"cost_usd"`
}

// UsageSummary aggregates LLM spend over a time window.
type UsageSummary struct {
	Window           time.Duration `json:"-"`
	PromptTokens     int64         `json:"prompt_tokens"`
	CompletionTokens int64         `json:"completion_tokens"`
	TotalTokens      int64         `json:"total_tokens"`
	TotalCost        float64       `json:"total_cost_usd"`
	ByModel          []ModelUsage  `json:"by_model"`
}

// QueryService queries aggregated metrics back out of Prometheus.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a metrics query service against the given
// Prometheus server.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetUsageSummary retrieves token and cost totals over the window, with a
// per-model breakdown. Counters are aggregated with increase() so bot
// restarts do not reset the report.
func (q *QueryService) GetUsageSummary(ctx context.Context, window time.Duration) (*UsageSummary, error) {
	rangeStr := fmt.Sprintf("%dm", int(window.Minutes()))
	summary := &UsageSummary{Window: window}

	promptQuery := fmt.Sprintf(`sum(increase(llm_tokens_total{type="prompt"}[%s]))`, rangeStr)
	promptTokens, err := q.scalar(ctx, promptQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	summary.PromptTokens = int64(promptTokens)

	completionQuery := fmt.Sprintf(`sum(increase(llm_tokens_total{type="completion"}[%s]))`, rangeStr)
	completionTokens, err := q.scalar(ctx, completionQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	summary.CompletionTokens = int64(completionTokens)

	summary.TotalTokens = summary.PromptTokens + summary.CompletionTokens

	costQuery := fmt.Sprintf(`sum(increase(llm_costs_total[%s]))`, rangeStr)
	cost, err := q.scalar(ctx, costQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query total cost: %w", err)
	}
	summary.TotalCost = cost

	byModel, err := q.usageByModel(ctx, rangeStr)
	if err != nil {
		return nil, err
	}
	summary.ByModel = byModel

	return summary, nil
}

// scalar runs a query expected to return a single-sample vector.
func (q *QueryService) scalar(ctx context.Context, query string) (float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, err //nolint:wrapcheck // Callers wrap with query context
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}

func (q *QueryService) usageByModel(ctx context.Context, rangeStr string) ([]ModelUsage, error) {
	tokensQuery := fmt.Sprintf(`sum by (model) (increase(llm_tokens_total[%s]))`, rangeStr)
	tokensResult, _, err := q.queryAPI.Query(ctx, tokensQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens by model: %w", err)
	}

	usage := make(map[string]*ModelUsage)
	if vector, ok := tokensResult.(model.Vector); ok {
		for _, sample := range vector {
			name := string(sample.Metric["model"])
			if name == "" {
				continue
			}
			usage[name] = &ModelUsage{
				Model:  name,
				Tokens: int64(sample.Value),
			}
		}
	}

	costQuery := fmt.Sprintf(`sum by (model) (increase(llm_costs_total[%s]))`, rangeStr)
	costResult, _, err := q.queryAPI.Query(ctx, costQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query cost by model: %w", err)
	}
	if vector, ok := costResult.(model.Vector); ok {
		for _, sample := range vector {
			name := string(sample.Metric["model"])
			if entry, exists := usage[name]; exists {
				entry.Cost = float64(sample.Value)
			} else if name != "" {
				usage[name] = &ModelUsage{Model: name, Cost: float64(sample.Value)}
			}
		}
	}

	out := make([]ModelUsage, 0, len(usage))
	for _, entry := range usage {
		out = append(out, *entry)
	}
	return out, nil
}
