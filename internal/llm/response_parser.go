package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SummaryResult is the outcome of parsing a summary response. It is either
// a *ParsedSummary or a *RawFallback; callers switch on the concrete type.
type SummaryResult interface {
	// Text returns the summary text to store.
	Text() string
	// Insights returns the key insights (never nil).
	Insights() []string

	summaryResult()
}

// ParsedSummary is a response that contained a usable JSON object.
type ParsedSummary struct {
	Summary     string
	KeyInsights []string
}

// RawFallback is a response that could not be parsed. The raw text is
// stored verbatim and Reason says why parsing was abandoned.
type RawFallback struct {
	Raw    string
	Reason error
}

func (p *ParsedSummary) Text() string { return p.Summary }

func (p *ParsedSummary) Insights() []string {
	if p.KeyInsights == nil {
		return []string{}
	}
	return p.KeyInsights
}

func (*ParsedSummary) summaryResult() {}

func (r *RawFallback) Text() string { return strings.TrimSpace(r.Raw) }

func (*RawFallback) Insights() []string { return []string{} }

func (*RawFallback) summaryResult() {}

// summaryResponse accepts the field spellings models actually produce.
type summaryResponse struct {
	Summary        string   `json:"summary"`
	KeyInsights    []string `json:"keyInsights"`
	KeyInsightsAlt []string `json:"key_insights"`
	KeyPoints      []string `json:"key_points"`
}

var errNoSummary = errors.New("response has no summary field")

// ParseSummaryResponse locates a JSON object in the model output and reads
// {summary, keyInsights} from it. It never fails: anything unusable becomes
// a *RawFallback carrying the original text.
func ParseSummaryResponse(text string) SummaryResult {
	cleanJSON := extractJSON(text)

	var resp summaryResponse
	if err := json.Unmarshal([]byte(cleanJSON), &resp); err != nil {
		return &RawFallback{Raw: text, Reason: fmt.Errorf("failed to parse summary JSON: %w", err)}
	}

	summary := strings.TrimSpace(resp.Summary)
	if summary == "" {
		return &RawFallback{Raw: text, Reason: errNoSummary}
	}

	insights := resp.KeyInsights
	if len(insights) == 0 {
		insights = resp.KeyInsightsAlt
	}
	if len(insights) == 0 {
		insights = resp.KeyPoints
	}

	cleaned := make([]string, 0, len(insights))
	for _, s := range insights {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return &ParsedSummary{Summary: summary, KeyInsights: cleaned}
}

// extractJSON extracts the first complete JSON object from a string that may
// contain extra text or markdown fences. Returns the input unchanged when no
// complete object is found, so the JSON decoder reports the failure.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}

	depth := 0
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escape {
			escape = false
			continue
		}
		if ch == '\\' {
			escape = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text
}
