package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/workspace-search/internal/config"
	"github.com/kirillkom/workspace-search/internal/core/domain"
	"github.com/kirillkom/workspace-search/internal/core/ports"
	"github.com/kirillkom/workspace-search/internal/observability/metrics"
)

const maxRequestBodyBytes = 64 << 10

type Router struct {
	searcher ports.WorkspaceSearcher
	metrics  *metrics.HTTPServerMetrics

	apiKey            string
	rateLimitRPS      float64
	rateLimitBurst    int
	backpressureMax   int
	backpressureWait  time.Duration
	requestValidation bool
}

func NewRouter(cfg config.Config, searcher ports.WorkspaceSearcher, httpMetrics *metrics.HTTPServerMetrics) *Router {
	return &Router{
		searcher:          searcher,
		metrics:           httpMetrics,
		apiKey:            cfg.SearchAPIKey,
		rateLimitRPS:      cfg.APIRateLimitRPS,
		rateLimitBurst:    cfg.APIRateLimitBurst,
		backpressureMax:   cfg.APIBackpressureMax,
		backpressureWait:  cfg.APIBackpressureWait,
		requestValidation: cfg.APIRequestValidation,
	}
}

func (rt *Router) Handler() (http.Handler, error) {
	api := http.NewServeMux()
	api.HandleFunc("/v1/search", rt.search)

	var protected http.Handler = api
	if rt.requestValidation {
		oaRouter, err := loadOpenAPIRouter()
		if err != nil {
			return nil, err
		}
		protected = requestValidationMiddleware(protected, oaRouter)
	}
	protected = authMiddleware(protected, rt.apiKey)
	protected = backpressureMiddleware(protected, rt.backpressureMax, rt.backpressureWait)
	protected = rateLimitMiddleware(protected, rt.rateLimitRPS, rt.rateLimitBurst)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/v1/", protected)

	var handler http.Handler = mux
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
		handler = rt.metrics.Middleware(handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler)), nil
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type searchRequest struct {
	Query                    string   `json:"query"`
	Sources                  []string `json:"sources"`
	Limit                    int      `json:"limit"`
	IncludeDocumentSummaries *bool    `json:"include_document_summaries"`
	Rerank                   *bool    `json:"rerank"`
	UseAdvancedRetrieval     *bool    `json:"use_advanced_retrieval"`
	EnableContextExpansion   *bool    `json:"enable_context_expansion"`
	EnableRecencyBoost       *bool    `json:"enable_recency_boost"`
}

type searchResponse struct {
	Query   string                `json:"query"`
	Count   int                   `json:"count"`
	Results []domain.SearchResult `json:"results"`
}

// options starts from DefaultSearchOptions and applies only the fields the caller sent.
func (req searchRequest) options() (domain.SearchOptions, error) {
	opts := domain.DefaultSearchOptions()
	if len(req.Sources) > 0 {
		opts.Sources = make([]domain.Source, 0, len(req.Sources))
		for _, raw := range req.Sources {
			source, ok := domain.ParseSource(raw)
			if !ok {
				return domain.SearchOptions{}, domain.WrapError(domain.ErrInvalidInput, "search options", fmt.Errorf("unknown source %q", raw))
			}
			opts.Sources = append(opts.Sources, source)
		}
	}
	if req.Limit < 0 || req.Limit > domain.MaxSearchLimit {
		return domain.SearchOptions{}, domain.WrapError(domain.ErrInvalidInput, "search options", fmt.Errorf("limit must be between 1 and %d", domain.MaxSearchLimit))
	}
	if req.Limit > 0 {
		opts.Limit = req.Limit
	}
	setBool(&opts.IncludeDocumentSummaries, req.IncludeDocumentSummaries)
	setBool(&opts.Rerank, req.Rerank)
	setBool(&opts.UseAdvancedRetrieval, req.UseAdvancedRetrieval)
	setBool(&opts.EnableContextExpansion, req.EnableContextExpansion)
	setBool(&opts.EnableRecencyBoost, req.EnableRecencyBoost)
	return opts, nil
}

func sourceNames(sources []domain.Source) string {
	names := make([]string, len(sources))
	for i, source := range sources {
		names[i] = string(source)
	}
	return strings.Join(names, ",")
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req searchRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	opts, err := req.options()
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	annotateRequest(r.Context(),
		"sources", sourceNames(opts.Sources),
		"limit", opts.Limit,
		"rerank", opts.Rerank,
		"query_chars", utf8.RuneCountInString(req.Query),
	)

	results, err := rt.searcher.Search(r.Context(), req.Query, opts)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if results == nil {
		results = []domain.SearchResult{}
	}
	annotateRequest(r.Context(), "results", len(results))
	writeJSON(w, http.StatusOK, searchResponse{
		Query:   req.Query,
		Count:   len(results),
		Results: results,
	})
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("search_request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"status", status,
			"retrieval_unavailable", errors.Is(err, domain.ErrRetrievalUnavailable),
			"error", err,
		)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, map[string]string{"error": publicErrorMessage(status, err)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
