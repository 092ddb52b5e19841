package analyzer

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/scheott/safe/fetcher"
	"github.com/scheott/safe/reputation"
	"github.com/scheott/safe/urlnorm"
)

const (
	maxSubdomains  = 3
	maxRedirects   = 3
	slowResponseMs = 5000
)

var (
	suspiciousPathPattern = regexp.MustCompile(`(?i)/(verify|confirm|update|secure|account|login|signin|payment)(/|$)`)
	randomSegmentPattern  = regexp.MustCompile(`(?i)/[a-z0-9]{20,}`)
)

type DomainDetails struct {
	Domain         string                      `json:"domain"`
	Reputation     reputation.DomainReputation `json:"reputation"`
	TLD            string                      `json:"tld"`
	TLDRisk        string                      `json:"tld_risk,omitempty"`
	SubdomainCount int                         `json:"subdomain_count"`
}

type URLDetails struct {
	Path            string   `json:"path"`
	PathLength      int      `json:"path_length"`
	HasQuery        bool     `json:"has_query"`
	HasFragment     bool     `json:"has_fragment"`
	IsPunycode      bool     `json:"is_punycode"`
	DecodedHost     string   `json:"decoded_host,omitempty"`
	SuspiciousChars []string `json:"suspicious_chars,omitempty"`
}

type TechnicalDetails struct {
	FinalURL      string `json:"final_url"`
	StatusCode    int    `json:"status_code,omitempty"`
	RedirectCount int    `json:"redirect_count"`
	WasBlocked    bool   `json:"was_blocked"`
	WAFType       string `json:"waf_type,omitempty"`
	FetchTimeMs   int64  `json:"fetch_time_ms"`
	ErrorReason   string `json:"error_reason,omitempty"`
}

// domainStage scores the domain's reputation. The score already carries
// the TLD risk fallback, so TLD reasons here add no points.
func domainStage(snap *reputation.Snapshot, u urlnorm.NormalizedURL, details *Details) Contribution {
	domain := u.Domain()
	rep := snap.DomainScore(domain)
	tld := u.TLD

	var c Contribution
	c.Score = rep.Score
	switch {
	case rep.Score <= ReputableScore:
		c.Reasons = append(c.Reasons, ReasonReputableDomain)
	case rep.Score >= 2:
		c.Reasons = append(c.Reasons, ReasonSuspiciousDomain)
	}

	risk := snap.TLDRiskLevel(tld)
	if rep.Score > ReputableScore {
		switch risk {
		case "high":
			c.Reasons = append(c.Reasons, ReasonSuspiciousTLD)
		case "medium":
			c.Reasons = append(c.Reasons, ReasonQuestionableTLD)
		}
	}

	details.Domain = &DomainDetails{
		Domain:         domain,
		Reputation:     rep,
		TLD:            tld,
		TLDRisk:        risk,
		SubdomainCount: subdomainCount(snap, domain),
	}
	return c
}

// subdomainCount counts labels left of the registrable domain.
func subdomainCount(snap *reputation.Snapshot, host string) int {
	if host == "" {
		return 0
	}
	registrable := snap.RegistrableDomain(host)
	if registrable == host {
		return 0
	}
	prefix := strings.TrimSuffix(host, "."+registrable)
	return strings.Count(prefix, ".") + 1
}

func urlStage(ev *evaluation) (Contribution, error) {
	var c Contribution
	u := ev.url
	snap := ev.snap

	if suspiciousPathPattern.MatchString(u.Path) {
		c.add(snap.Weight("url_structure", "suspicious_path"), ReasonSuspiciousPath)
	}
	if randomSegmentPattern.MatchString(u.Path) {
		c.add(snap.Weight("url_structure", "random_string"), ReasonRandomStringPath)
	}
	if snap.IsShortener(u.Host) {
		c.add(snap.Weight("url_structure", "url_shortener"), ReasonURLShortener)
	}
	if ev.details.Domain != nil && ev.details.Domain.SubdomainCount > maxSubdomains {
		c.add(snap.Weight("url_structure", "excessive_subdomains"), ReasonExcessiveSubdomains)
	}
	if u.IsPunycode {
		c.Reasons = append(c.Reasons, ReasonPunycodeDomain)
		if len(u.SuspiciousChars) > 0 {
			c.add(snap.Weight("brand_similarity", "homograph_attack"), ReasonHomographCharacters)
		}
	}

	ev.details.URL = &URLDetails{
		Path:            u.Path,
		PathLength:      len(u.Path),
		HasQuery:        u.Query != "",
		HasFragment:     u.Fragment != "",
		IsPunycode:      u.IsPunycode,
		DecodedHost:     u.DecodedHost,
		SuspiciousChars: u.SuspiciousChars,
	}
	return c, nil
}

func brandStage(ev *evaluation) (Contribution, error) {
	target := ev.url.MatchTarget()
	if target == "" {
		return Contribution{}, nil
	}
	bs := ev.snap.BrandSimilarityScore(target)
	if bs.Score > 0 {
		ev.details.Brand = &bs
	}
	return Contribution{Score: bs.Score, Reasons: bs.Reasons}, nil
}

// technicalStage reads transport signals off the fetch. A WAF block only
// adds points when earlier stages already found something; this stage's own
// signals never count toward that gate.
func technicalStage(ev *evaluation) (Contribution, error) {
	var c Contribution
	f := ev.fetch
	snap := ev.snap
	suspicious := ev.score > 0

	scheme := ev.url.Scheme
	if f.FinalURL != "" {
		if final, err := url.Parse(f.FinalURL); err == nil && final.Scheme != "" {
			scheme = strings.ToLower(final.Scheme)
		}
	}
	if scheme == "http" {
		c.add(snap.Weight("technical_signals", "no_https"), ReasonNoHTTPS)
	}

	if f.RedirectCount > maxRedirects || f.ErrorReason == fetcher.ReasonTooManyRedirects {
		c.add(snap.Weight("technical_signals", "suspicious_redirects"), ReasonExcessiveRedirects)
	}

	if f.WasBlocked {
		c.Reasons = append(c.Reasons, ReasonSiteHasProtection, ReasonLimitedAnalysis)
		if suspicious {
			c.add(snap.Weight("technical_signals", "blocked_by_security"), ReasonBlockedBySecurity)
		}
	}

	if f.FetchTimeMs > slowResponseMs {
		c.add(snap.Weight("technical_signals", "slow_response"), ReasonSlowResponse)
	}

	if !f.Success && isTransportFailure(f.ErrorReason) {
		c.add(snap.Weight("technical_signals", "fetch_failure"), ReasonFetchFailed)
		c.Reasons = append(c.Reasons, f.ErrorReason)
	}

	details := &TechnicalDetails{
		FinalURL:      f.FinalURL,
		StatusCode:    f.StatusCode,
		RedirectCount: f.RedirectCount,
		WasBlocked:    f.WasBlocked,
		FetchTimeMs:   f.FetchTimeMs,
		ErrorReason:   f.ErrorReason,
	}
	if f.WAF != nil {
		details.WAFType = f.WAF.WAFType
	}
	ev.details.Technical = details
	return c, nil
}

func isTransportFailure(reason string) bool {
	return fetcher.IsTimeout(reason) || fetcher.IsFetchError(reason) || reason == fetcher.ReasonBlockedBySSRF
}
