package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/scrypster/caresight/internal/engine"
	"github.com/scrypster/caresight/internal/llm"
	"github.com/scrypster/caresight/internal/storage"
	"github.com/scrypster/caresight/pkg/types"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Retriever answers natural-language record queries.
type Retriever interface {
	Retrieve(ctx context.Context, query string, rctx engine.RetrievalContext) (*engine.RetrievalResult, error)
}

// CorrelationScanner analyzes a date range.
type CorrelationScanner interface {
	Scan(ctx context.Context, start, end time.Time) (*engine.CorrelationReport, []types.Record, error)
}

// CacheController exposes the record cache lifecycle.
type CacheController interface {
	Invalidate()
	Stats() engine.CacheStats
}

// PostSyncRunner runs the post-sync pass.
type PostSyncRunner interface {
	Run(ctx context.Context) *engine.RunReport
}

// ModelReporter reports the active AI model and breaker state.
type ModelReporter interface {
	GetModel() string
}

type breakerStater interface {
	State() string
}

// APIHandlers contains HTTP handlers for the REST API.
type APIHandlers struct {
	retriever  Retriever
	summarizer engine.SummaryGenerator
	summaries  storage.SummaryStore
	scanner    CorrelationScanner
	cache      CacheController
	postSync   PostSyncRunner
	model      ModelReporter
	version    string
	logger     *slog.Logger
}

// Deps are the components the API serves. Any nil dependency makes its
// routes answer 503.
type Deps struct {
	Retriever  Retriever
	Summarizer engine.SummaryGenerator
	Summaries  storage.SummaryStore
	Scanner    CorrelationScanner
	Cache      CacheController
	PostSync   PostSyncRunner
	Model      ModelReporter
	Version    string
	Logger     *slog.Logger
}

// NewAPIHandlers creates a new APIHandlers instance.
func NewAPIHandlers(d Deps) *APIHandlers {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := d.Version
	if version == "" {
		version = "dev"
	}
	return &APIHandlers{
		retriever:  d.Retriever,
		summarizer: d.Summarizer,
		summaries:  d.Summaries,
		scanner:    d.Scanner,
		cache:      d.Cache,
		postSync:   d.PostSync,
		model:      d.Model,
		version:    version,
		logger:     logger.With("component", "api"),
	}
}

// Retrieve handles POST /api/retrieve.
func (h *APIHandlers) Retrieve(w http.ResponseWriter, r *http.Request) {
	if h.retriever == nil {
		respondUnavailable(w, "retrieval")
		return
	}
	var req RetrieveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, CodeInvalidInput, "query is required", nil)
		return
	}

	rctx := engine.RetrievalContext{Year: req.Year, Month: req.Month}
	if req.Category != "" {
		cat, ok := types.ParseCategory(req.Category)
		if !ok {
			respondError(w, http.StatusBadRequest, CodeInvalidInput, "unknown category",
				fmt.Errorf("category %q", req.Category))
			return
		}
		rctx.Category = cat
	}
	if req.Month < 0 || req.Month > 12 {
		respondError(w, http.StatusBadRequest, CodeInvalidInput, "month must be 1-12", nil)
		return
	}

	res, err := h.retriever.Retrieve(r.Context(), req.Query, rctx)
	if err != nil {
		h.respondEngineError(w, r, "retrieval failed", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// GenerateSummary handles POST /api/summaries/generate.
func (h *APIHandlers) GenerateSummary(w http.ResponseWriter, r *http.Request) {
	if h.summarizer == nil {
		respondUnavailable(w, "summarization")
		return
	}
	var req GenerateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PeriodKey == "" {
		respondError(w, http.StatusBadRequest, engine.CodeInvalidPeriodKey, "period_key is required", nil)
		return
	}

	res, err := h.summarizer.Generate(r.Context(), req.Type, req.PeriodKey, req.Force)
	if err != nil {
		h.respondEngineError(w, r, "summary generation failed", err)
		return
	}
	status := http.StatusOK
	if res.Generated {
		status = http.StatusCreated
	}
	respondJSON(w, status, res)
}

// ListSummaries handles GET /api/summaries?type=&from=&to=&limit=.
func (h *APIHandlers) ListSummaries(w http.ResponseWriter, r *http.Request) {
	if h.summaries == nil {
		respondUnavailable(w, "summaries")
		return
	}
	q := r.URL.Query()
	filter := storage.SummaryFilter{
		Type:  types.PeriodType(q.Get("type")),
		Limit: parseInt(q.Get("limit"), storage.DefaultListLimit),
	}
	var err error
	if filter.From, err = parseDate(q.Get("from")); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidInput, "invalid 'from' date", err)
		return
	}
	if filter.To, err = parseDate(q.Get("to")); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidInput, "invalid 'to' date", err)
		return
	}

	list, err := h.summaries.List(r.Context(), filter)
	if err != nil {
		h.respondEngineError(w, r, "failed to list summaries", err)
		return
	}
	if list == nil {
		list = []*types.Summary{}
	}
	respondJSON(w, http.StatusOK, SummaryListResponse{Summaries: list, Total: len(list)})
}

// GetSummary handles GET /api/summaries/{id}.
func (h *APIHandlers) GetSummary(w http.ResponseWriter, r *http.Request) {
	if h.summaries == nil {
		respondUnavailable(w, "summaries")
		return
	}
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, CodeInvalidInput, "summary id is required", nil)
		return
	}
	summary, err := h.summaries.Get(r.Context(), id)
	if err != nil {
		h.respondEngineError(w, r, "failed to get summary", err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// Correlations handles GET /api/correlations?from=&to=. Both bounds default
// to the last 30 days ending today.
func (h *APIHandlers) Correlations(w http.ResponseWriter, r *http.Request) {
	if h.scanner == nil {
		respondUnavailable(w, "correlations")
		return
	}
	q := r.URL.Query()
	to, err := parseDate(q.Get("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidInput, "invalid 'to' date", err)
		return
	}
	if to.IsZero() {
		to = time.Now().In(types.FacilityLocation)
	}
	from, err := parseDate(q.Get("from"))
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidInput, "invalid 'from' date", err)
		return
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -29)
	}

	report, records, err := h.scanner.Scan(r.Context(), from, to)
	if err != nil {
		h.respondEngineError(w, r, "correlation scan failed", err)
		return
	}
	respondJSON(w, http.StatusOK, CorrelationResponse{
		From:         engine.DailyKey(from),
		To:           engine.DailyKey(to),
		RecordCount:  len(records),
		Detections:   report.Detections,
		Scans:        report.Scans,
		Results:      report.Results,
		RelatedDates: report.RelatedDates,
	})
}

// InvalidateCache handles POST /api/cache/invalidate.
func (h *APIHandlers) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		respondUnavailable(w, "cache")
		return
	}
	h.cache.Invalidate()
	h.logger.Info("api: record cache invalidated", "request_id", RequestIDFrom(r.Context()))
	respondJSON(w, http.StatusOK, h.cache.Stats())
}

// SyncComplete handles POST /api/sync/complete, the ingestion job's hook.
func (h *APIHandlers) SyncComplete(w http.ResponseWriter, r *http.Request) {
	if h.postSync == nil {
		respondUnavailable(w, "post-sync")
		return
	}
	report := h.postSync.Run(r.Context())
	status := http.StatusOK
	if report.Failed() > 0 {
		status = http.StatusMultiStatus
	}
	respondJSON(w, status, report)
}

// Health handles GET /api/health. It never touches a store.
func (h *APIHandlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Version: h.version}
	if h.cache != nil {
		resp.Cache = h.cache.Stats()
	}
	if h.model != nil {
		resp.AI.Model = h.model.GetModel()
		if b, ok := h.model.(breakerStater); ok {
			resp.AI.Breaker = b.State()
			if resp.AI.Breaker == "open" {
				resp.Status = "degraded"
			}
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// respondEngineError maps engine and storage errors onto HTTP responses.
func (h *APIHandlers) respondEngineError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("api: "+message, "error", err, "request_id", RequestIDFrom(r.Context()))
	}
	respondError(w, status, code, message, err)
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrInvalidPeriodKey):
		return http.StatusBadRequest, engine.CodeInvalidPeriodKey
	case errors.Is(err, engine.ErrInvalidPeriodType):
		return http.StatusBadRequest, engine.CodeInvalidPeriodType
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, storage.ErrInvalidInput):
		return http.StatusBadRequest, CodeInvalidInput
	case errors.Is(err, llm.ErrCircuitOpen):
		return http.StatusServiceUnavailable, CodeAIUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// decodeJSON reads a bounded JSON body into dst, answering 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body", err)
		return false
	}
	return true
}

// parseDate reads an optional YYYY-MM-DD value in the facility zone.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(types.DateLayout, s, types.FacilityLocation)
}

func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// headers already sent
		slog.Default().Warn("api: failed to encode JSON response", "error", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, code, message string, err error) {
	errResp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}
	respondJSON(w, statusCode, errResp)
}

func respondUnavailable(w http.ResponseWriter, feature string) {
	respondError(w, http.StatusServiceUnavailable, CodeInternal, feature+" is not configured", nil)
}

// MethodNotAllowed answers 405 with the standard error body.
func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	respondError(w, http.StatusMethodNotAllowed, CodeMethodNotAllow, "method not allowed", nil)
}
