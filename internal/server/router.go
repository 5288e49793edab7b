package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"docrank/internal/analysis"
	"docrank/internal/claims"
	"docrank/internal/estimator"
	"docrank/internal/ranking"
	"docrank/internal/report"
	"docrank/internal/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 10 << 20

// RankingService fits and ranks doctors. *analysis.Analyzer implements it.
type RankingService interface {
	Rank(ctx context.Context, counts []claims.Counts, criteria ranking.RankCriteria, alpha float64) (*analysis.Result, error)
	Estimate(ctx context.Context, counts []claims.Counts, alpha float64, withPosterior bool) ([]analysis.Estimate, error)
}

type estimatesRequest struct {
	Alpha     *float64        `json:"alpha"`
	Entities  []claims.Counts `json:"entities"`
	Posterior bool            `json:"posterior"`
}

type rankingsRequest struct {
	Metric   string          `json:"metric"`
	Ordering string          `json:"ordering"`
	Alpha    *float64        `json:"alpha"`
	Entities []claims.Counts `json:"entities"`
}

// ApiV1Router serves the ranking API. Finished ranking runs are kept in a
// bounded history and appended to the report repository.
type ApiV1Router struct {
	service  RankingService
	history  *utils.RingBuffer[*analysis.Result]
	reports  report.Repository
	gatherer prometheus.Gatherer
	alpha    float64
}

// Mux registers:
//   - POST /api/v1/estimates: posterior summaries per entity
//   - POST /api/v1/rankings: rank entities, recorded in history
//   - GET /api/v1/rankings/recent: newest runs first, ?limit=n
//   - GET /api/v1/rankings/{run_id}: a run from history
//   - GET /metrics: Prometheus exposition (when a gatherer is set)
func (ar *ApiV1Router) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/estimates", ar.estimatesHandler)
	mux.HandleFunc("POST /api/v1/rankings", ar.rankingsHandler)
	mux.HandleFunc("GET /api/v1/rankings/recent", ar.recentHandler)
	mux.HandleFunc("GET /api/v1/rankings/{run_id}", ar.runHandler)

	if ar.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(ar.gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}

func (ar *ApiV1Router) estimatesHandler(w http.ResponseWriter, r *http.Request) {
	var req estimatesRequest
	if !decodeBody(w, r, &req) {
		return
	}

	estimates, err := ar.service.Estimate(r.Context(), req.Entities, ar.alphaOrDefault(req.Alpha), req.Posterior)
	if err != nil {
		slog.Warn("Unable to estimate", "error", err)
		w.WriteHeader(statusFor(err))
		return
	}

	writeJSON(w, estimates)
}

func (ar *ApiV1Router) rankingsHandler(w http.ResponseWriter, r *http.Request) {
	var req rankingsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	criteria, err := ranking.ParseRankCriteria(req.Metric, req.Ordering)
	if err != nil {
		slog.Warn("Invalid ranking criteria", "metric", req.Metric, "ordering", req.Ordering, "error", err)
		w.WriteHeader(http.StatusUnprocessableEntity)
		return
	}

	result, err := ar.service.Rank(r.Context(), req.Entities, criteria, ar.alphaOrDefault(req.Alpha))
	if err != nil {
		slog.Warn("Unable to rank", "criteria", criteria.String(), "error", err)
		w.WriteHeader(statusFor(err))
		return
	}

	ar.history.Push(result)
	ar.reports.Append(result.Report())
	writeJSON(w, result)
}

func (ar *ApiV1Router) recentHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			slog.Warn("Invalid recent runs limit", "limit", raw)
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		limit = n
	}

	writeJSON(w, ar.history.Latest(limit))
}

func (ar *ApiV1Router) runHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("run_id")
	for _, result := range ar.history.Latest(0) {
		if result.RunID == id {
			writeJSON(w, result)
			return
		}
	}

	slog.Warn("Ranking run not found", "run_id", id)
	w.WriteHeader(http.StatusNotFound)
}

func (ar *ApiV1Router) alphaOrDefault(alpha *float64) float64 {
	if alpha == nil {
		return ar.alpha
	}
	return *alpha
}

// decodeBody reads a JSON request body into v. On failure it answers 422
// and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		slog.Warn("Unable to read request body", "error", err)
		w.WriteHeader(http.StatusUnprocessableEntity)
		return false
	}

	if err := json.Unmarshal(body, v); err != nil {
		slog.Warn("Unable to unmarshal request body", "error", err)
		w.WriteHeader(http.StatusUnprocessableEntity)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Unable to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// statusFor maps errors caused by the request data to 422.
func statusFor(err error) int {
	switch {
	case errors.Is(err, estimator.ErrConfiguration),
		errors.Is(err, estimator.ErrNumeric),
		errors.Is(err, estimator.ErrOutOfRange),
		errors.Is(err, analysis.ErrDuplicateEntity):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewApiV1Router creates the router. reports and gatherer may be nil;
// historyLength must be positive.
func NewApiV1Router(
	service RankingService,
	historyLength int,
	defaultAlpha float64,
	reports report.Repository,
	gatherer prometheus.Gatherer,
) *ApiV1Router {
	if reports == nil {
		reports = report.Discard{}
	}
	return &ApiV1Router{
		service:  service,
		history:  utils.NewRingBuffer[*analysis.Result](historyLength),
		reports:  reports,
		gatherer: gatherer,
		alpha:    defaultAlpha,
	}
}
