package handlers

import (
	"github.com/scrypster/caresight/internal/engine"
	"github.com/scrypster/caresight/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest     = "BAD_REQUEST"
	CodeInvalidInput   = "INVALID_INPUT"
	CodeNotFound       = "NOT_FOUND"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeRateLimited    = "RATE_LIMITED"
	CodeMethodNotAllow = "METHOD_NOT_ALLOWED"
	CodeAIUnavailable  = "AI_UNAVAILABLE"
	CodeTimeout        = "TIMEOUT"
	CodeInternal       = "INTERNAL_ERROR"
)

// RetrieveRequest is the body of POST /api/retrieve.
type RetrieveRequest struct {
	Query    string `json:"query"`
	Category string `json:"category,omitempty"`
	Year     int    `json:"year,omitempty"`
	Month    int    `json:"month,omitempty"`
}

// GenerateRequest is the body of POST /api/summaries/generate.
type GenerateRequest struct {
	Type      types.PeriodType `json:"type"`
	PeriodKey string           `json:"period_key"`
	Force     bool             `json:"force"`
}

// SummaryListResponse is the response of GET /api/summaries.
type SummaryListResponse struct {
	Summaries []*types.Summary `json:"summaries"`
	Total     int              `json:"total"`
}

// CorrelationResponse is the response of GET /api/correlations.
type CorrelationResponse struct {
	From         string                    `json:"from"`
	To           string                    `json:"to"`
	RecordCount  int                       `json:"record_count"`
	Detections   []engine.Detection        `json:"detections"`
	Scans        []engine.ScanResult       `json:"scans"`
	Results      []types.CorrelationResult `json:"results"`
	RelatedDates []string                  `json:"related_dates"`
}

// HealthResponse is the response of GET /api/health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Cache   engine.CacheStats `json:"cache"`
	AI      AIHealth          `json:"ai"`
}

// AIHealth describes the text generation backend.
type AIHealth struct {
	Model   string `json:"model"`
	Breaker string `json:"breaker,omitempty"`
}
