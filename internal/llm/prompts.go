package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// maxExcerpts caps the free-text excerpts included in a prompt.
	maxExcerpts = 20

	// maxExcerptRunes caps each excerpt.
	maxExcerptRunes = 120

	// maxPromptRunes is the hard ceiling on the rendered prompt.
	maxPromptRunes = 6000
)

// PromptCount is one row of the category table.
type PromptCount struct {
	Name  string
	Count int
}

// SummaryPromptInput is everything the summary prompt renders.
type SummaryPromptInput struct {
	PeriodLabel    string // 日次 / 週次 / 月次
	RangeStart     string // YYYY-MM-DD
	RangeEnd       string // YYYY-MM-DD
	TargetChars    int
	RecordCount    int
	CategoryCounts []PromptCount
	Observations   []string
	Excerpts       []string
}

// SummaryPrompt renders a strict JSON-only prompt for a period summary.
// The output is bounded: excerpts are capped in number and length and the
// whole prompt is cut at maxPromptRunes.
func SummaryPrompt(in SummaryPromptInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "あなたは介護施設の記録を要約するアシスタントです。以下の%s記録（%s〜%s、全%d件）を要約してください。\n",
		in.PeriodLabel, in.RangeStart, in.RangeEnd, in.RecordCount)
	fmt.Fprintf(&b, "要約は日本語で約%d文字にしてください。医学的な診断はせず、記録から読み取れる事実と傾向のみを述べてください。\n\n", in.TargetChars)

	b.WriteString("## カテゴリ別件数\n")
	if len(in.CategoryCounts) == 0 {
		b.WriteString("- なし\n")
	}
	for _, c := range in.CategoryCounts {
		fmt.Fprintf(&b, "- %s: %d件\n", c.Name, c.Count)
	}

	b.WriteString("\n## 相関・傾向の観察\n")
	if len(in.Observations) == 0 {
		b.WriteString("- なし\n")
	}
	for _, o := range in.Observations {
		fmt.Fprintf(&b, "- %s\n", o)
	}

	if len(in.Excerpts) > 0 {
		b.WriteString("\n## 特記事項の抜粋\n")
		for i, e := range in.Excerpts {
			if i == maxExcerpts {
				fmt.Fprintf(&b, "- ほか%d件\n", len(in.Excerpts)-maxExcerpts)
				break
			}
			fmt.Fprintf(&b, "- %s\n", truncateRunes(e, maxExcerptRunes))
		}
	}

	body := truncateRunes(b.String(), maxPromptRunes)

	return body + `
Return ONLY valid JSON, no markdown, no code blocks, no explanation:
{"summary":"...","keyInsights":["...","..."]}`
}

// truncateRunes cuts s to at most n runes, marking the cut with "…".
func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}
