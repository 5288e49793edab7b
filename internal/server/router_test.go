package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"docrank/internal/analysis"
	"docrank/internal/claims"
	"docrank/internal/estimator"
	"docrank/internal/metrics"
	"docrank/internal/ranking"
	"docrank/internal/report"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReports struct {
	runs []report.Run
}

func (r *recordingReports) Append(run report.Run) { r.runs = append(r.runs, run) }
func (r *recordingReports) Close()                {}

func newTestRouter(t *testing.T, historyLength int) (*ApiV1Router, *recordingReports) {
	t.Helper()
	support, err := estimator.UniformGrid(1001)
	require.NoError(t, err)

	m := metrics.NewMetrics()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	analyzer, err := analysis.NewAnalyzer(estimator.UniformPrior(support), support, 2, nil, m)
	require.NoError(t, err)

	reports := &recordingReports{}
	return NewApiV1Router(analyzer, historyLength, ranking.DefaultAlpha, reports, reg), reports
}

func do(t *testing.T, mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

const rankingsBody = `{
  "metric": "CREDIBLE_INTERVAL",
  "ordering": "ASCENDING",
  "entities": [
    {"entity_id": "low", "num_diagnosed": 100, "num_operated_on": 5},
    {"entity_id": "low-ish", "num_diagnosed": 100, "num_operated_on": 6},
    {"entity_id": "high", "num_diagnosed": 100, "num_operated_on": 60}
  ]
}`

type rankingsResponse struct {
	RunID    string   `json:"run_id"`
	Metric   string   `json:"metric"`
	Ordering string   `json:"ordering"`
	Alpha    float64  `json:"alpha"`
	Excluded []string `json:"excluded"`
	Rankings []struct {
		Rank    int `json:"rank"`
		Entries []struct {
			EntityID string              `json:"entity_id"`
			Value    *float64            `json:"value"`
			Interval *estimator.Interval `json:"interval"`
		} `json:"entries"`
	} `json:"rankings"`
}

func TestRankingsHandler(t *testing.T) {
	router, reports := newTestRouter(t, 4)
	mux := router.Mux()

	rec := do(t, mux, http.MethodPost, "/api/v1/rankings", rankingsBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp rankingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, "CREDIBLE_INTERVAL", resp.Metric)
	assert.Equal(t, ranking.DefaultAlpha, resp.Alpha)
	require.Len(t, resp.Rankings, 2)
	require.Len(t, resp.Rankings[0].Entries, 2)
	assert.Equal(t, "low", resp.Rankings[0].Entries[0].EntityID)
	assert.Equal(t, "low-ish", resp.Rankings[0].Entries[1].EntityID)
	assert.NotNil(t, resp.Rankings[0].Entries[0].Interval)
	assert.Nil(t, resp.Rankings[0].Entries[0].Value)
	assert.Equal(t, "high", resp.Rankings[1].Entries[0].EntityID)

	require.Len(t, reports.runs, 1)
	assert.Equal(t, resp.RunID, reports.runs[0].ID)

	rec = do(t, mux, http.MethodGet, "/api/v1/rankings/recent", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var recent []rankingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recent))
	require.Len(t, recent, 1)
	assert.Equal(t, resp.RunID, recent[0].RunID)

	rec = do(t, mux, http.MethodGet, "/api/v1/rankings/"+resp.RunID, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRankingsHandler_PointMetricAndAlpha(t *testing.T) {
	router, _ := newTestRouter(t, 4)

	body := `{"metric":"map","ordering":"descending","alpha":0.1,"entities":[
	  {"entity_id":"a","num_diagnosed":10,"num_operated_on":1},
	  {"entity_id":"b","num_diagnosed":10,"num_operated_on":9}]}`
	rec := do(t, router.Mux(), http.MethodPost, "/api/v1/rankings", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp rankingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "MAP", resp.Metric)
	assert.Equal(t, "DESCENDING", resp.Ordering)
	assert.Equal(t, 0.1, resp.Alpha)
	require.Len(t, resp.Rankings, 2)
	assert.Equal(t, "b", resp.Rankings[0].Entries[0].EntityID)
	require.NotNil(t, resp.Rankings[0].Entries[0].Value)
	assert.InDelta(t, 0.9, *resp.Rankings[0].Entries[0].Value, 1e-9)
}

func TestRankingsHandler_Invalid(t *testing.T) {
	router, reports := newTestRouter(t, 4)
	mux := router.Mux()

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"metric":`},
		{"unknown metric", `{"metric":"MEDIAN","ordering":"ASCENDING","entities":[]}`},
		{"unknown ordering", `{"metric":"MAP","ordering":"UP","entities":[]}`},
		{"invalid alpha", `{"metric":"MAP","ordering":"ASCENDING","alpha":1.5,"entities":[]}`},
		{"invalid counts", `{"metric":"MAP","ordering":"ASCENDING","entities":[{"entity_id":"a","num_diagnosed":1,"num_operated_on":3}]}`},
		{"duplicate entity", `{"metric":"MAP","ordering":"ASCENDING","entities":[{"entity_id":"a","num_diagnosed":1},{"entity_id":"a","num_diagnosed":1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, http.MethodPost, "/api/v1/rankings", tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		})
	}
	assert.Empty(t, reports.runs)
	assert.Zero(t, router.history.Len())
}

func TestRecentHandler_HistoryBounded(t *testing.T) {
	router, _ := newTestRouter(t, 2)
	mux := router.Mux()

	var ids []string
	for i := 0; i < 3; i++ {
		rec := do(t, mux, http.MethodPost, "/api/v1/rankings", rankingsBody)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp rankingsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		ids = append(ids, resp.RunID)
	}

	rec := do(t, mux, http.MethodGet, "/api/v1/rankings/recent", "")
	var recent []rankingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recent))
	require.Len(t, recent, 2)
	assert.Equal(t, ids[2], recent[0].RunID)
	assert.Equal(t, ids[1], recent[1].RunID)

	rec = do(t, mux, http.MethodGet, "/api/v1/rankings/recent?limit=1", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recent))
	require.Len(t, recent, 1)
	assert.Equal(t, ids[2], recent[0].RunID)

	rec = do(t, mux, http.MethodGet, "/api/v1/rankings/recent?limit=x", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, mux, http.MethodGet, "/api/v1/rankings/"+ids[0], "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecentHandler_Empty(t *testing.T) {
	router, _ := newTestRouter(t, 2)
	rec := do(t, router.Mux(), http.MethodGet, "/api/v1/rankings/recent", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestEstimatesHandler(t *testing.T) {
	router, _ := newTestRouter(t, 2)

	body := `{"posterior":true,"entities":[{"entity_id":"doc","num_diagnosed":100,"num_operated_on":50}]}`
	rec := do(t, router.Mux(), http.MethodPost, "/api/v1/estimates", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []struct {
		EntityID         string                  `json:"entity_id"`
		MAP              float64                 `json:"map"`
		ExpectedValue    float64                 `json:"expected_value"`
		CredibleInterval estimator.Interval      `json:"credible_interval"`
		Posterior        *estimator.Distribution `json:"posterior"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "doc", resp[0].EntityID)
	assert.InDelta(t, 0.5, resp[0].MAP, 1e-9)
	assert.InDelta(t, 0.5, resp[0].ExpectedValue, 1e-6)
	assert.InDelta(t, 0.403, resp[0].CredibleInterval.Lower, 0.01)
	assert.InDelta(t, 0.597, resp[0].CredibleInterval.Upper, 0.01)
	require.NotNil(t, resp[0].Posterior)
	assert.Len(t, resp[0].Posterior.Density, 1001)
}

func TestEstimatesHandler_Invalid(t *testing.T) {
	router, _ := newTestRouter(t, 2)
	mux := router.Mux()

	rec := do(t, mux, http.MethodPost, "/api/v1/estimates", `not json`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, mux, http.MethodPost, "/api/v1/estimates", `{"alpha":-0.1,"entities":[]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, 2)
	mux := router.Mux()

	do(t, mux, http.MethodPost, "/api/v1/rankings", rankingsBody)
	rec := do(t, mux, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), metrics.MetricRankingRunsTotal)
	assert.Contains(t, rec.Body.String(), metrics.MetricEstimatorFitsTotal)
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	router := NewApiV1Router(stubService{}, 1, ranking.DefaultAlpha, nil, nil)
	rec := do(t, router.Mux(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type stubService struct {
	err error
}

func (s stubService) Rank(context.Context, []claims.Counts, ranking.RankCriteria, float64) (*analysis.Result, error) {
	return nil, s.err
}

func (s stubService) Estimate(context.Context, []claims.Counts, float64, bool) ([]analysis.Estimate, error) {
	return nil, s.err
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(estimator.ErrZeroEvidence))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(estimator.ErrAlphaOutOfRange))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(context.Canceled))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))

	router := NewApiV1Router(stubService{err: errors.New("boom")}, 1, ranking.DefaultAlpha, nil, nil)
	rec := do(t, router.Mux(), http.MethodPost, "/api/v1/rankings", `{"metric":"MAP","ordering":"ASCENDING"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDecodeBody_TooLarge(t *testing.T) {
	router, _ := newTestRouter(t, 1)
	big := bytes.Repeat([]byte(" "), maxBodyBytes+1)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/estimates", bytes.NewReader(big))
	rec := httptest.NewRecorder()
	router.Mux().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
