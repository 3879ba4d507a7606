package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/caresight/pkg/types"
)

func defaultRules(t *testing.T) *RuleSet {
	t.Helper()
	rs, err := DefaultRuleSet()
	require.NoError(t, err)
	return rs
}

func canonicals(terms []TermSet) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		out = append(out, t.Canonical)
	}
	return out
}

func TestInferCategories(t *testing.T) {
	rs := defaultRules(t)

	tests := []struct {
		query string
		want  []types.Category
	}{
		{"昨日の朝食はどれくらい食べましたか", []types.Category{types.CategoryMeal}},
		{"マグミットを飲んだ後の排便は？", []types.Category{types.CategoryExcretion, types.CategoryMedication}},
		{"ﾏｸﾞﾐｯﾄの効果", []types.Category{types.CategoryExcretion, types.CategoryMedication}},
		{"最近の体温と血圧", []types.Category{types.CategoryVitals}},
		{"ＳｐＯ２が低い日", []types.Category{types.CategoryVitals}},
		{"元気ですか", []types.Category{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, rs.InferCategories(tt.query))
		})
	}
}

func TestExtractKeywords_ExpandsTermGroups(t *testing.T) {
	rs := defaultRules(t)

	keywords := rs.ExtractKeywords("まぐみっとを飲んだ後の排便は？")
	assert.ElementsMatch(t, []string{"マグミット", "排便", "頓服"}, canonicalsNormalized(keywords))

	for _, k := range keywords {
		if k.Canonical == "マグミット" {
			assert.True(t, k.Matches("酸化マグネシウム 1錠"))
		}
	}
}

// canonicalsNormalized compares keyword sets independently of whether the
// canonical came from a term group or a raw literal.
func canonicalsNormalized(terms []TermSet) []string {
	out := make([]string, 0, len(terms))
	for _, c := range canonicals(terms) {
		out = append(out, Normalize(c))
	}
	return out
}

func TestExtractKeywords_IncludesDisplayNames(t *testing.T) {
	rs := defaultRules(t)
	keywords := canonicalsNormalized(rs.ExtractKeywords("口腔ケアの記録を見せて"))
	assert.Contains(t, keywords, Normalize("口腔ケア"))
	assert.Contains(t, keywords, Normalize("口腔"))
}

func TestExtractKeywords_NoneForUnrelatedQuery(t *testing.T) {
	rs := defaultRules(t)
	assert.Empty(t, rs.ExtractKeywords("こんにちは"))
}

func TestParseRuleSet_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "rules: [unclosed"},
		{"bad pattern", "rules:\n  - name: x\n    pattern: \"(\"\n    categories: [meal]\n"},
		{"unknown category", "rules:\n  - name: x\n    pattern: \"a\"\n    categories: [laundry]\n"},
		{"group without canonical", "term_groups:\n  - variants: [a]\n"},
		{"signal without bonus", "strong_signals:\n  - keyword: a\n    field: b\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRuleSet([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseRuleSet_AcceptsDisplayNames(t *testing.T) {
	rs, err := ParseRuleSet([]byte("rules:\n  - name: teeth\n    pattern: \"歯\"\n    categories: [口腔ケア]\n"))
	require.NoError(t, err)
	assert.Equal(t, []types.Category{types.CategoryOralCare}, rs.InferCategories("歯の状態"))
}

func TestLoadRuleSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - name: w\n    pattern: \"体重\"\n    categories: [weight]\n"), 0o600))

	rs, err := LoadRuleSet(path)
	require.NoError(t, err)
	assert.Equal(t, []types.Category{types.CategoryWeight}, rs.InferCategories("体重の推移"))

	_, err = LoadRuleSet(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestTermGroupLookup(t *testing.T) {
	rs := defaultRules(t)
	g, ok := rs.TermGroup("ﾏｸﾞﾐｯﾄ")
	require.True(t, ok)
	assert.Equal(t, "マグミット", g.Canonical)

	_, ok = rs.TermGroup("アスピリン")
	assert.False(t, ok)
}

func TestStrongSignalBonus_PaysOncePerField(t *testing.T) {
	rs := defaultRules(t)
	day := jst(2025, 6, 1, 21, 0)
	r := rec("m1", types.CategoryMedication, day, map[string]string{"薬": "マグミット", "頓服時間": "21:00"})

	keywords := rs.ExtractKeywords("マグミットの頓服は効いた？")
	require.Contains(t, canonicals(keywords), "頓服")

	assert.Equal(t, 10, rs.strongSignalBonus(r, keywords))
	assert.Equal(t, 10, rs.strongSignalBonus(r, rs.ExtractKeywords("頓服")))
}

func TestStrongSignalBonus_TakesLargestAndSumsAcrossFields(t *testing.T) {
	rs, err := ParseRuleSet([]byte(`
strong_signals:
  - keyword: 下剤
    category: medication
    field: 頓服時間
    bonus: 5
  - keyword: 浣腸
    category: medication
    field: 頓服時間
    bonus: 12
  - keyword: 浣腸
    category: medication
    field: 処置
    bonus: 3
`))
	require.NoError(t, err)

	keywords := []TermSet{NewTermSet("下剤"), NewTermSet("浣腸")}
	day := jst(2025, 6, 1, 9, 0)

	both := rec("a", types.CategoryMedication, day, map[string]string{"頓服時間": "09:00", "処置": "実施"})
	assert.Equal(t, 15, rs.strongSignalBonus(both, keywords))

	timeOnly := rec("b", types.CategoryMedication, day, map[string]string{"頓服時間": "09:00"})
	assert.Equal(t, 12, rs.strongSignalBonus(timeOnly, keywords))

	otherCategory := rec("c", types.CategoryNote, day, map[string]string{"頓服時間": "09:00"})
	assert.Zero(t, rs.strongSignalBonus(otherCategory, keywords))
}
