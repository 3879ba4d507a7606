package engine

import (
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"github.com/scrypster/caresight/pkg/types"
)

// Normalize folds the text encodings staff actually type into one form so
// that substring matching treats them as equal:
//
//   - half-width katakana and full-width ASCII are width-folded (ﾏｸﾞﾐｯﾄ, ＡＢＣ１)
//   - voiced sound marks are composed (ク + ゙ becomes グ)
//   - Latin letters are lowercased
//   - hiragana is shifted to katakana (まぐみっと becomes マグミット)
func Normalize(s string) string {
	if s == "" {
		return s
	}
	s = width.Fold.String(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\u309B': // spacing voiced mark
			return '\u3099'
		case '\u309C': // spacing semi-voiced mark
			return '\u309A'
		}
		return r
	}, s)
	s = norm.NFC.String(s)
	s = strings.ToLower(s)
	return strings.Map(hiraganaToKatakana, s)
}

// hiraganaToKatakana maps ぁ..ゖ and ゝゞ onto their katakana counterparts,
// which sit exactly 0x60 code points higher.
func hiraganaToKatakana(r rune) rune {
	if (r >= '\u3041' && r <= '\u3096') || r == '\u309D' || r == '\u309E' {
		return r + 0x60
	}
	return r
}

// TermSet is a canonical term plus the spellings that must match as the same
// term: encoding variants and alternate names.
type TermSet struct {
	Canonical string
	variants  []string // normalized, deduplicated, canonical first
}

// NewTermSet builds a TermSet. Variants that normalize to the canonical form
// (for example hiragana or half-width spellings) collapse into it.
func NewTermSet(canonical string, variants ...string) TermSet {
	t := TermSet{Canonical: canonical}
	seen := make(map[string]bool)
	for _, v := range append([]string{canonical}, variants...) {
		n := Normalize(strings.TrimSpace(v))
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		t.variants = append(t.variants, n)
	}
	return t
}

// Variants returns the normalized spellings, canonical first.
func (t TermSet) Variants() []string {
	return append([]string(nil), t.variants...)
}

// IsZero reports whether the set has no spellings.
func (t TermSet) IsZero() bool {
	return len(t.variants) == 0
}

// MatchNormalized reports whether already-normalized text contains any variant.
func (t TermSet) MatchNormalized(normalized string) bool {
	for _, v := range t.variants {
		if strings.Contains(normalized, v) {
			return true
		}
	}
	return false
}

// Matches normalizes text and reports whether it contains any variant.
func (t TermSet) Matches(text string) bool {
	return t.MatchNormalized(Normalize(text))
}

// normalizedFields returns the record's serialized fields in normalized form.
func normalizedFields(r types.Record) string {
	return Normalize(r.SerializeFields())
}
