package reputation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Dataset file names inside a data directory
const (
	ReputableDomainsFile     = "reputable_domains.yaml"
	BrandDomainsFile         = "brand_domains.yaml"
	SuspiciousIndicatorsFile = "suspicious_indicators.yaml"
	HeuristicWeightsFile     = "heuristic_weights.yaml"
)

// DomainEntry is one row of the reputable domain list. Negative scores mark
// trusted domains.
type DomainEntry struct {
	Score      int    `yaml:"score" json:"score"`
	Category   string `yaml:"category" json:"category"`
	Confidence string `yaml:"confidence,omitempty" json:"confidence,omitempty"`
}

type ReputableDomains struct {
	Domains map[string]DomainEntry `yaml:"domains"`
}

type BrandDomains struct {
	Categories      map[string][]string `yaml:"categories"`
	OfficialDomains map[string][]string `yaml:"official_domains"`
	DictionaryWords []string            `yaml:"dictionary_words"`
}

type TLDRisk struct {
	HighRisk   []string `yaml:"high_risk"`
	MediumRisk []string `yaml:"medium_risk"`
}

type SuspiciousIndicators struct {
	SuspiciousTLDs          TLDRisk  `yaml:"suspicious_tlds"`
	HypeKeywords            []string `yaml:"hype_keywords"`
	FinancialDangerKeywords []string `yaml:"financial_danger_keywords"`
	HealthScamKeywords      []string `yaml:"health_scam_keywords"`
	UrgencyPatterns         []string `yaml:"urgency_patterns"`
	ImpersonationKeywords   []string `yaml:"impersonation_keywords"`
	MultiPartTLDs           []string `yaml:"multi_part_tlds"`
	URLShorteners           []string `yaml:"url_shorteners"`
}

// Thresholds map a total score to a verdict.
type Thresholds struct {
	Danger  int `yaml:"danger" json:"danger"`
	Warning int `yaml:"warning" json:"warning"`
	OK      int `yaml:"ok" json:"ok"`
}

type HeuristicWeights struct {
	Weights    map[string]map[string]int `yaml:"weights"`
	Thresholds Thresholds                `yaml:"thresholds"`
}

// Dataset is the raw content of the four reputation files.
type Dataset struct {
	Reputable  ReputableDomains
	Brands     BrandDomains
	Indicators SuspiciousIndicators
	Weights    HeuristicWeights
}

// Source produces a Dataset. The Store does not care where it comes from.
type Source interface {
	Load(ctx context.Context) (Dataset, error)
}

// DirSource reads the dataset files from a directory. All four files must
// exist and parse.
type DirSource struct {
	Dir string
}

func (s DirSource) Load(ctx context.Context) (Dataset, error) {
	var ds Dataset

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { return readYAML(filepath.Join(s.Dir, ReputableDomainsFile), &ds.Reputable) })
	g.Go(func() error { return readYAML(filepath.Join(s.Dir, BrandDomainsFile), &ds.Brands) })
	g.Go(func() error { return readYAML(filepath.Join(s.Dir, SuspiciousIndicatorsFile), &ds.Indicators) })
	g.Go(func() error { return readYAML(filepath.Join(s.Dir, HeuristicWeightsFile), &ds.Weights) })

	if err := g.Wait(); err != nil {
		return Dataset{}, err
	}
	return ds, nil
}

func readYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
