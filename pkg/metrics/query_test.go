package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePrometheus answers /api/v1/query with canned vectors keyed on the
// query expression.
func fakePrometheus(t *testing.T, answer func(query string) string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/api/v1/query") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"success","data":{"resultType":"vector","result":[%s]}}`,
			answer(r.FormValue("query")))
	}))
}

func sample(labels, value string) string {
	return fmt.Sprintf(`{"metric":{%s},"value":[1700000000,"%s"]}`, labels, value)
}

func TestGetUsageSummaryAggregates(t *testing.T) {
	srv := fakePrometheus(t, func(query string) string {
		switch {
		case strings.Contains(query, `type="prompt"`):
			return sample(``, "1200")
		case strings.Contains(query, `type="completion"`):
			return sample(``, "800")
		case strings.Contains(query, "by (model)") && strings.Contains(query, "llm_tokens_total"):
			return sample(`"model":"claude-sonnet-4-5"`, "1500") + "," + sample(`"model":"gpt-4o"`, "500")
		case strings.Contains(query, "by (model)") && strings.Contains(query, "llm_costs_total"):
			// One model reports cost without a matching token row.
			return sample(`"model":"claude-sonnet-4-5"`, "0.30") + "," + sample(`"model":"gemini-2.5-flash"`, "0.12")
		case strings.Contains(query, "llm_costs_total"):
			return sample(``, "0.42")
		}
		return ""
	})
	defer srv.Close()

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	summary, err := q.GetUsageSummary(context.Background(), 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, int64(1200), summary.PromptTokens)
	assert.Equal(t, int64(800), summary.CompletionTokens)
	assert.Equal(t, int64(2000), summary.TotalTokens)
	assert.InDelta(t, 0.42, summary.TotalCost, 0.0001)

	byModel := make(map[string]ModelUsage, len(summary.ByModel))
	for _, m := range summary.ByModel {
		byModel[m.Model] = m
	}
	assert.Equal(t, int64(1500), byModel["claude-sonnet-4-5"].Tokens)
	assert.InDelta(t, 0.30, byModel["claude-sonnet-4-5"].Cost, 0.0001)
	assert.Equal(t, int64(500), byModel["gpt-4o"].Tokens)
	assert.InDelta(t, 0.12, byModel["gemini-2.5-flash"].Cost, 0.0001)
}

func TestGetUsageSummaryEmptySeries(t *testing.T) {
	srv := fakePrometheus(t, func(string) string { return "" })
	defer srv.Close()

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	summary, err := q.GetUsageSummary(context.Background(), time.Hour)
	require.NoError(t, err)

	assert.Zero(t, summary.TotalTokens)
	assert.Zero(t, summary.TotalCost)
	assert.Empty(t, summary.ByModel)
}

func TestNewQueryServiceRejectsBadURL(t *testing.T) {
	_, err := NewQueryService("://not-a-url")
	assert.Error(t, err)
}

func TestHealthEndpoint(t *testing.T) {
	s := NewServer()

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())

	rec = httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
