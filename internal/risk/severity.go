package risk

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"cropcare/internal/types"

	"gopkg.in/yaml.v3"
)

//go:embed severity_keywords.yaml
var severityKeywordsYAML []byte

type keywordRule struct {
	Severity string   `yaml:"severity"`
	Keywords []string `yaml:"keywords"`
}

type keywordFile struct {
	Default string        `yaml:"default"`
	Rules   []keywordRule `yaml:"rules"`
}

type compiledRule struct {
	level    types.RiskLevel
	keywords []string
}

// SeverityTable buckets disease names by case-insensitive substring match.
// It approximates severity; it is not a diagnosis.
type SeverityTable struct {
	def   types.RiskLevel
	rules []compiledRule
}

// DefaultSeverityTable returns the built-in keyword table.
func DefaultSeverityTable() *SeverityTable {
	t, err := ParseSeverityTable(severityKeywordsYAML)
	if err != nil {
		panic(fmt.Sprintf("load severity_keywords.yaml: %v", err))
	}
	return t
}

// LoadSeverityTable reads a keyword table from path, or returns the built-in
// table when path is empty.
func LoadSeverityTable(path string) (*SeverityTable, error) {
	if path == "" {
		return DefaultSeverityTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading severity keywords: %w", err)
	}
	return ParseSeverityTable(data)
}

// ParseSeverityTable decodes and validates a keyword table.
func ParseSeverityTable(data []byte) (*SeverityTable, error) {
	var f keywordFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse severity keywords: %w", err)
	}
	t := &SeverityTable{def: types.RiskLow}
	if f.Default != "" {
		def, ok := types.ParseRiskLevel(f.Default)
		if !ok {
			return nil, fmt.Errorf("parse severity keywords: invalid default %q", f.Default)
		}
		t.def = def
	}
	for i, r := range f.Rules {
		level, ok := types.ParseRiskLevel(r.Severity)
		if !ok {
			return nil, fmt.Errorf("parse severity keywords: rule %d: invalid severity %q", i, r.Severity)
		}
		cr := compiledRule{level: level}
		for _, kw := range r.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				cr.keywords = append(cr.keywords, kw)
			}
		}
		if len(cr.keywords) == 0 {
			return nil, fmt.Errorf("parse severity keywords: rule %d has no keywords", i)
		}
		t.rules = append(t.rules, cr)
	}
	return t, nil
}

// Classify returns the bucket for a disease name. The first rule with a
// matching keyword wins.
func (t *SeverityTable) Classify(disease string) types.RiskLevel {
	name := strings.ToLower(disease)
	for _, r := range t.rules {
		for _, kw := range r.keywords {
			if strings.Contains(name, kw) {
				return r.level
			}
		}
	}
	return t.def
}

// ClassifyRecord prefers the severity the record already carries and falls
// back to the keyword match on its disease name.
func (t *SeverityTable) ClassifyRecord(rec types.HistoryRecord) types.RiskLevel {
	if rec.Severity != nil && rec.Severity.Valid() {
		return *rec.Severity
	}
	return t.Classify(rec.Disease)
}

// Distribution buckets a batch of history records.
func (t *SeverityTable) Distribution(records []types.HistoryRecord) types.SeverityDistribution {
	var d types.SeverityDistribution
	for _, rec := range records {
		switch t.ClassifyRecord(rec) {
		case types.RiskHigh:
			d.High++
		case types.RiskMedium:
			d.Medium++
		default:
			d.Low++
		}
	}
	return d
}
