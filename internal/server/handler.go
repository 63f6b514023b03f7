package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"tagindex/internal/adapter/posting"
	"tagindex/internal/domain"
	"tagindex/internal/logging"
	"tagindex/internal/port"
	"tagindex/internal/usecase"
)

// Handler serves queries against one loaded posting store.
type Handler struct {
	querier  port.Querier
	manifest posting.Manifest
	metrics  *Metrics
	logger   *slog.Logger
}

func NewHandler(querier port.Querier, manifest posting.Manifest, metrics *Metrics) *Handler {
	if metrics == nil {
		metrics = NewMetrics()
	}
	metrics.StorePostings.Set(float64(manifest.Postings.Length))
	metrics.StoreTags.Set(float64(manifest.Tags))
	return &Handler{
		querier:  querier,
		manifest: manifest,
		metrics:  metrics,
		logger:   slog.Default().With("component", "query-handler"),
	}
}

type tagCount struct {
	ID    uint32 `json:"id"`
	Count int    `json:"count"`
}

type queryResponse struct {
	Tags   []tagCount `json:"tags"`
	Posts  []uint32   `json:"posts"`
	Total  int        `json:"total"`
	TookMs float64    `json:"took_ms"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Query handles GET /v1/query?tags=1,2,3. The tags parameter may also be
// repeated.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logging.FromContext(r.Context())

	var args []string
	for _, v := range r.URL.Query()["tags"] {
		args = append(args, usecase.SplitTagList(v)...)
	}

	ids, err := usecase.ParseTagIDs(args, h.manifest.MaxTagID)
	if err == nil {
		var res *domain.QueryResult
		res, err = h.querier.Query(r.Context(), ids)
		if err == nil {
			h.observe(res, time.Since(start))
			tags := make([]tagCount, len(res.Tags))
			for i, t := range res.Tags {
				tags[i] = tagCount{ID: t.ID, Count: t.Count}
			}
			writeJSON(w, http.StatusOK, queryResponse{
				Tags:   tags,
				Posts:  res.Posts,
				Total:  len(res.Posts),
				TookMs: float64(time.Since(start).Microseconds()) / 1000,
			})
			return
		}
	}

	status := StatusFor(err)
	if status == http.StatusBadRequest {
		h.metrics.QueriesTotal.WithLabelValues("bad_request").Inc()
		log.Debug("rejected query", "tags", args, "error", err)
	} else {
		h.metrics.QueriesTotal.WithLabelValues("error").Inc()
		log.Error("query failed", "tags", args, "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func (h *Handler) observe(res *domain.QueryResult, took time.Duration) {
	outcome := "ok"
	if len(res.Posts) == 0 {
		outcome = "empty"
	}
	h.metrics.QueriesTotal.WithLabelValues(outcome).Inc()
	h.metrics.QueryLatency.Observe(took.Seconds())
	h.metrics.QueryResults.Observe(float64(len(res.Posts)))
}

// Stats handles GET /v1/stats with the manifest of the loaded store.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manifest)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusFor maps a query error to an HTTP status: malformed queries are
// the client's fault, anything else is ours.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case domain.IsQueryError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Default().Error("failed to write response", "error", err)
	}
}
