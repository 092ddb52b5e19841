package reputation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Verdict is the user-facing risk level.
type Verdict string

const (
	VerdictOK      Verdict = "ok"
	VerdictWarning Verdict = "warning"
	VerdictDanger  Verdict = "danger"
)

// Verdict maps a total score onto ok / warning / danger.
func (t Thresholds) Verdict(score int) Verdict {
	switch {
	case score >= t.Danger:
		return VerdictDanger
	case score >= t.Warning:
		return VerdictWarning
	default:
		return VerdictOK
	}
}

type stringSet map[string]struct{}

func newStringSet(items []string) stringSet {
	set := make(stringSet, len(items))
	for _, item := range items {
		item = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(item)), ".")
		if item != "" {
			set[item] = struct{}{}
		}
	}
	return set
}

func (s stringSet) has(item string) bool {
	_, ok := s[item]
	return ok
}

// Brand is one entry of the curated brand list.
type Brand struct {
	Domain   string
	Name     string // first label of Domain, e.g. "chase"
	Category string
	// normalized is Name passed through NormalizeLabel
	normalized string
}

// DomainReputation explains where a domain score came from.
type DomainReputation struct {
	Score    int    `json:"score"`
	Source   string `json:"source"` // exact, parent, tld, default
	Category string `json:"category,omitempty"`
}

// Snapshot is an immutable view of the reputation data. Build a new one
// with NewSnapshot instead of mutating.
type Snapshot struct {
	domains map[string]DomainEntry

	brands          []Brand
	brandDomains    stringSet
	officialDomains map[string]stringSet
	knownDomains    stringSet // brand domains plus every official domain

	highRiskTLDs   stringSet
	mediumRiskTLDs stringSet
	suspiciousTLDs stringSet

	dictionaryWords       stringSet
	impersonationKeywords stringSet
	multiPartTLDs         stringSet
	shorteners            stringSet

	HypeKeywords      []string
	FinancialKeywords []string
	HealthKeywords    []string
	UrgencyPatterns   []*regexp.Regexp

	weights    map[string]map[string]int
	Thresholds Thresholds

	LoadedAt time.Time
}

// NewSnapshot validates a Dataset and indexes it for lookups. Empty lists
// fall back to the built-in defaults; bad regexes are an error.
func NewSnapshot(ds Dataset) (*Snapshot, error) {
	s := &Snapshot{
		domains:         make(map[string]DomainEntry, len(ds.Reputable.Domains)),
		brandDomains:    make(stringSet),
		officialDomains: make(map[string]stringSet),
		knownDomains:    make(stringSet),
		LoadedAt:        time.Now(),
	}

	for domain, entry := range ds.Reputable.Domains {
		s.domains[strings.ToLower(strings.TrimSpace(domain))] = entry
	}

	// Brands, iterated by category name so duplicates resolve the same way
	categories := make([]string, 0, len(ds.Brands.Categories))
	for category := range ds.Brands.Categories {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	for _, category := range categories {
		for _, domain := range ds.Brands.Categories[category] {
			domain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), "www.")
			if domain == "" || s.brandDomains.has(domain) {
				continue
			}
			name := strings.SplitN(domain, ".", 2)[0]
			s.brandDomains[domain] = struct{}{}
			s.knownDomains[domain] = struct{}{}
			s.brands = append(s.brands, Brand{
				Domain:     domain,
				Name:       name,
				Category:   category,
				normalized: NormalizeLabel(name),
			})
		}
	}
	sort.Slice(s.brands, func(i, j int) bool { return s.brands[i].Domain < s.brands[j].Domain })

	official := ds.Brands.OfficialDomains
	if len(official) == 0 {
		official = DefaultOfficialDomains
	}
	for brand, domains := range official {
		set := newStringSet(domains)
		s.officialDomains[strings.ToLower(brand)] = set
		for domain := range set {
			s.knownDomains[domain] = struct{}{}
		}
	}

	ind := ds.Indicators
	s.highRiskTLDs = newStringSet(ind.SuspiciousTLDs.HighRisk)
	s.mediumRiskTLDs = newStringSet(ind.SuspiciousTLDs.MediumRisk)
	s.suspiciousTLDs = make(stringSet)
	for tld := range s.highRiskTLDs {
		s.suspiciousTLDs[tld] = struct{}{}
	}
	for tld := range s.mediumRiskTLDs {
		s.suspiciousTLDs[tld] = struct{}{}
	}
	if len(s.suspiciousTLDs) == 0 {
		s.suspiciousTLDs = newStringSet(DefaultSuspiciousTLDs)
	}

	s.dictionaryWords = newStringSet(orDefault(ds.Brands.DictionaryWords, DefaultDictionaryWordBrands))
	s.impersonationKeywords = newStringSet(orDefault(ind.ImpersonationKeywords, DefaultImpersonationKeywords))
	s.multiPartTLDs = newStringSet(orDefault(ind.MultiPartTLDs, DefaultMultiPartTLDs))
	s.shorteners = newStringSet(orDefault(ind.URLShorteners, DefaultURLShorteners))

	s.HypeKeywords = lowerAll(ind.HypeKeywords)
	s.FinancialKeywords = lowerAll(ind.FinancialDangerKeywords)
	s.HealthKeywords = lowerAll(ind.HealthScamKeywords)
	for _, pattern := range ind.UrgencyPatterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("urgency pattern %q: %w", pattern, err)
		}
		s.UrgencyPatterns = append(s.UrgencyPatterns, re)
	}

	s.weights = ds.Weights.Weights
	s.Thresholds = ds.Weights.Thresholds
	if s.Thresholds.Danger == 0 && s.Thresholds.Warning == 0 {
		s.Thresholds = DefaultThresholds()
	}
	if s.Thresholds.Warning > s.Thresholds.Danger {
		return nil, fmt.Errorf("warning threshold %d above danger threshold %d", s.Thresholds.Warning, s.Thresholds.Danger)
	}

	return s, nil
}

func orDefault(items, fallback []string) []string {
	if len(items) == 0 {
		return fallback
	}
	return items
}

func lowerAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// DomainScore looks up a domain: exact entry, then parent domain, then TLD
// risk tier, then zero.
func (s *Snapshot) DomainScore(domain string) DomainReputation {
	domain = strings.TrimPrefix(strings.TrimSuffix(strings.ToLower(domain), "."), "www.")
	if domain == "" {
		return DomainReputation{Source: "default"}
	}

	if entry, ok := s.domains[domain]; ok {
		return DomainReputation{Score: entry.Score, Source: "exact", Category: entry.Category}
	}

	labels := strings.Split(domain, ".")
	if len(labels) > 2 {
		parent := strings.Join(labels[len(labels)-2:], ".")
		if entry, ok := s.domains[parent]; ok {
			return DomainReputation{Score: entry.Score, Source: "parent", Category: entry.Category}
		}
	}

	switch tld := labels[len(labels)-1]; {
	case s.highRiskTLDs.has(tld):
		return DomainReputation{Score: 2, Source: "tld", Category: "high_risk_tld"}
	case s.mediumRiskTLDs.has(tld):
		return DomainReputation{Score: 1, Source: "tld", Category: "medium_risk_tld"}
	}
	return DomainReputation{Source: "default"}
}

// TLDRiskLevel returns "high", "medium" or "".
func (s *Snapshot) TLDRiskLevel(tld string) string {
	tld = strings.TrimPrefix(strings.ToLower(tld), ".")
	switch {
	case s.highRiskTLDs.has(tld):
		return "high"
	case s.mediumRiskTLDs.has(tld):
		return "medium"
	}
	return ""
}

func (s *Snapshot) IsSuspiciousTLD(tld string) bool {
	return s.suspiciousTLDs.has(strings.TrimPrefix(strings.ToLower(tld), "."))
}

// SuspiciousTLDs lists the combined high and medium risk TLDs, sorted.
func (s *Snapshot) SuspiciousTLDs() []string {
	out := make([]string, 0, len(s.suspiciousTLDs))
	for tld := range s.suspiciousTLDs {
		out = append(out, tld)
	}
	sort.Strings(out)
	return out
}

func (s *Snapshot) IsShortener(host string) bool {
	return s.shorteners.has(strings.TrimPrefix(strings.ToLower(host), "www."))
}

// IsKnownBrandDomain reports whether domain is a brand's primary or official domain.
func (s *Snapshot) IsKnownBrandDomain(domain string) bool {
	return s.knownDomains.has(strings.ToLower(domain))
}

func (s *Snapshot) Brands() []Brand {
	return s.brands
}

// Weight returns the configured weight for category.item, falling back to
// the built-in default.
func (s *Snapshot) Weight(category, item string) int {
	if w, ok := s.weights[category][item]; ok {
		return w
	}
	return DefaultWeights[category][item]
}

// Stats summarizes a snapshot for the status endpoint.
type Stats struct {
	ReputableDomains int       `json:"reputable_domains"`
	Brands           int       `json:"brands"`
	SuspiciousTLDs   int       `json:"suspicious_tlds"`
	UrgencyPatterns  int       `json:"urgency_patterns"`
	LoadedAt         time.Time `json:"loaded_at"`
}

func (s *Snapshot) Stats() Stats {
	return Stats{
		ReputableDomains: len(s.domains),
		Brands:           len(s.brands),
		SuspiciousTLDs:   len(s.suspiciousTLDs),
		UrgencyPatterns:  len(s.UrgencyPatterns),
		LoadedAt:         s.LoadedAt,
	}
}

// RegistrableDomain returns the eTLD+1 of host using this snapshot's
// multi-part TLD set.
func (s *Snapshot) RegistrableDomain(host string) string {
	return RegistrableDomain(host, s.multiPartTLDs)
}
