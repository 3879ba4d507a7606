package engine

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/caresight/pkg/types"
)

//go:embed rules/default_rules.yaml
var defaultRulesYAML []byte

// RuleFile is the on-disk shape of a category rule set.
type RuleFile struct {
	TermGroups    []TermGroupSpec    `yaml:"term_groups"`
	Rules         []RuleSpec         `yaml:"rules"`
	StrongSignals []StrongSignalSpec `yaml:"strong_signals"`
}

// TermGroupSpec declares spellings that count as one keyword.
type TermGroupSpec struct {
	Canonical string   `yaml:"canonical"`
	Variants  []string `yaml:"variants"`
}

// RuleSpec maps a question pattern to categories and extra keywords.
type RuleSpec struct {
	Name       string   `yaml:"name"`
	Pattern    string   `yaml:"pattern"`
	Categories []string `yaml:"categories"`
	Keywords   []string `yaml:"keywords"`
}

// StrongSignalSpec awards Bonus to a record of Category whose Field is
// non-empty when Keyword is among the query keywords. Signals sharing a
// category and field pay out once, at the largest bonus.
type StrongSignalSpec struct {
	Keyword  string `yaml:"keyword"`
	Category string `yaml:"category"`
	Field    string `yaml:"field"`
	Bonus    int    `yaml:"bonus"`
}

type compiledRule struct {
	name       string
	re         *regexp.Regexp
	categories []types.Category
	keywords   []string
}

type strongSignal struct {
	keyword  string // normalized
	category types.Category
	field    string
	bonus    int
}

// RuleSet is a compiled, immutable rule set. Safe for concurrent use.
type RuleSet struct {
	rules   []compiledRule
	groups  []TermSet
	signals []strongSignal
}

// DefaultRuleSet compiles the embedded rules.
func DefaultRuleSet() (*RuleSet, error) {
	return ParseRuleSet(defaultRulesYAML)
}

// LoadRuleSet reads and compiles a YAML rule file.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	return ParseRuleSet(data)
}

// ParseRuleSet compiles YAML rule data. Patterns are normalized with
// Normalize before compiling so they match normalized questions.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}

	rs := &RuleSet{}
	for _, g := range file.TermGroups {
		if g.Canonical == "" {
			return nil, fmt.Errorf("term group without canonical term")
		}
		rs.groups = append(rs.groups, NewTermSet(g.Canonical, g.Variants...))
	}

	for _, spec := range file.Rules {
		re, err := regexp.Compile(Normalize(spec.Pattern))
		if err != nil {
			return nil, fmt.Errorf("rule %q: invalid pattern: %w", spec.Name, err)
		}
		rule := compiledRule{name: spec.Name, re: re}
		for _, c := range spec.Categories {
			cat, ok := types.ParseCategory(c)
			if !ok {
				return nil, fmt.Errorf("rule %q: unknown category %q", spec.Name, c)
			}
			rule.categories = append(rule.categories, cat)
		}
		for _, k := range spec.Keywords {
			rule.keywords = append(rule.keywords, Normalize(k))
		}
		rs.rules = append(rs.rules, rule)
	}

	for _, s := range file.StrongSignals {
		cat, ok := types.ParseCategory(s.Category)
		if s.Category != "" && !ok {
			return nil, fmt.Errorf("strong signal %q: unknown category %q", s.Keyword, s.Category)
		}
		if s.Field == "" || s.Bonus <= 0 {
			return nil, fmt.Errorf("strong signal %q: field and positive bonus are required", s.Keyword)
		}
		rs.signals = append(rs.signals, strongSignal{
			keyword:  Normalize(s.Keyword),
			category: cat,
			field:    s.Field,
			bonus:    s.Bonus,
		})
	}
	return rs, nil
}

// InferCategories returns the union of categories whose rule pattern matches
// the query, in sheet order.
func (rs *RuleSet) InferCategories(query string) []types.Category {
	q := Normalize(query)
	set := make(map[types.Category]bool)
	for _, r := range rs.rules {
		if r.re.MatchString(q) {
			for _, c := range r.categories {
				set[c] = true
			}
		}
	}

	out := make([]types.Category, 0, len(set))
	for _, c := range types.ValidCategories {
		if set[c] {
			out = append(out, c)
		}
	}
	return out
}

// ExtractKeywords returns the literal keywords found in the query: every
// substring a rule pattern matched, the rule's extra keywords, and any
// category display name present verbatim. Keywords that belong to a term
// group carry all of the group's spellings.
func (rs *RuleSet) ExtractKeywords(query string) []TermSet {
	q := Normalize(query)
	literals := make(map[string]bool)
	for _, r := range rs.rules {
		matches := r.re.FindAllString(q, -1)
		if len(matches) == 0 {
			continue
		}
		for _, m := range matches {
			if m != "" {
				literals[m] = true
			}
		}
		for _, k := range r.keywords {
			literals[k] = true
		}
	}
	for _, c := range types.ValidCategories {
		name := Normalize(c.DisplayName())
		if name != "" && strings.Contains(q, name) {
			literals[name] = true
		}
	}

	sorted := make([]string, 0, len(literals))
	for l := range literals {
		sorted = append(sorted, l)
	}
	sort.Strings(sorted)

	out := make([]TermSet, 0, len(sorted))
	seenGroup := make(map[string]bool)
	for _, l := range sorted {
		if g, ok := rs.groupFor(l); ok {
			if !seenGroup[g.Canonical] {
				seenGroup[g.Canonical] = true
				out = append(out, g)
			}
			continue
		}
		out = append(out, NewTermSet(l))
	}
	return out
}

func (rs *RuleSet) groupFor(normalized string) (TermSet, bool) {
	for _, g := range rs.groups {
		for _, v := range g.variants {
			if v == normalized {
				return g, true
			}
		}
	}
	return TermSet{}, false
}

// TermGroup returns the term group whose spellings include term.
func (rs *RuleSet) TermGroup(term string) (TermSet, bool) {
	return rs.groupFor(Normalize(term))
}

// strongSignalBonus returns the bonus r earns for the keywords. A field
// pays out once, at the largest bonus among the signals that fire on it.
func (rs *RuleSet) strongSignalBonus(r types.Record, keywords []TermSet) int {
	type fieldKey struct {
		category types.Category
		field    string
	}
	best := map[fieldKey]int{}
	for _, s := range rs.signals {
		if s.category != "" && r.Category != s.category {
			continue
		}
		if r.Field(s.field) == "" {
			continue
		}
		if !keywordsInclude(keywords, s.keyword) {
			continue
		}
		k := fieldKey{s.category, s.field}
		if s.bonus > best[k] {
			best[k] = s.bonus
		}
	}
	bonus := 0
	for _, b := range best {
		bonus += b
	}
	return bonus
}

func keywordsInclude(keywords []TermSet, normalized string) bool {
	for _, k := range keywords {
		for _, v := range k.variants {
			if v == normalized {
				return true
			}
		}
	}
	return false
}
