// Package analyzer turns a URL, and whatever was fetched from it, into a
// scored verdict with explainable reasons.
package analyzer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/scheott/safe/fetcher"
	"github.com/scheott/safe/reputation"
	"github.com/scheott/safe/urlnorm"
	"github.com/sirupsen/logrus"
)

// ReputableScore is the domain score at or below which analysis stops
// with an ok verdict.
const ReputableScore = -2

// Reasons produced outside the brand matcher
const (
	ReasonReputableDomain     = "reputable_domain"
	ReasonSuspiciousDomain    = "suspicious_domain"
	ReasonSuspiciousTLD       = "suspicious_tld"
	ReasonQuestionableTLD     = "questionable_tld"
	ReasonAnalysisError       = "analysis_error"
	ReasonExcessiveSubdomains = "excessive_subdomains"
	ReasonSuspiciousPath      = "suspicious_path"
	ReasonRandomStringPath    = "random_string_path"
	ReasonURLShortener        = "url_shortener"
	ReasonPunycodeDomain      = "punycode_domain"
	ReasonHomographCharacters = "homograph_characters"
	ReasonHypeLanguage        = "hype_language"
	ReasonFinancialRequest    = "financial_verification_request"
	ReasonHealthClaims        = "unverified_health_claims"
	ReasonUrgencyTactics      = "urgency_tactics"
	ReasonOffsiteFormAction   = "offsite_form_action"
	ReasonExcessiveCaps       = "excessive_caps"
	ReasonExcessiveExclaim    = "excessive_exclamation"
	ReasonSuspiciousContact   = "suspicious_contact_info"
	ReasonNoHTTPS             = "no_https"
	ReasonExcessiveRedirects  = "excessive_redirects"
	ReasonSiteHasProtection   = "site_has_protection"
	ReasonLimitedAnalysis     = "limited_analysis"
	ReasonBlockedBySecurity   = "blocked_by_security"
	ReasonSlowResponse        = "site_slow_response"
	ReasonFetchFailed         = "fetch_failed"
)

// Input is one URL to analyze. Normalized, Fetch and Content are optional;
// a missing Normalized is computed from URL.
type Input struct {
	URL        string
	Normalized *urlnorm.NormalizedURL
	Fetch      *fetcher.Result
	// Content is page text. When empty it is taken from a successful Fetch.
	Content string
}

// Result is the outcome of one analysis. It is not modified after Analyze
// returns it.
type Result struct {
	Verdict         reputation.Verdict `json:"verdict"`
	Score           int                `json:"score"`
	Reasons         []string           `json:"reasons"`
	Details         Details            `json:"details"`
	EscalateToTier1 bool               `json:"escalate_to_tier1"`
}

// HasReason reports whether reason is among r.Reasons.
func (r Result) HasReason(reason string) bool {
	for _, got := range r.Reasons {
		if got == reason {
			return true
		}
	}
	return false
}

// Details keeps what each stage saw. Stages that did not run stay nil.
type Details struct {
	Domain      *DomainDetails         `json:"domain,omitempty"`
	URL         *URLDetails            `json:"url,omitempty"`
	Brand       *reputation.BrandScore `json:"brand,omitempty"`
	Content     *ContentDetails        `json:"content,omitempty"`
	Technical   *TechnicalDetails      `json:"technical,omitempty"`
	StageErrors map[string]string      `json:"stage_errors,omitempty"`
}

// Contribution is what one stage adds to the total.
type Contribution struct {
	Score   int
	Reasons []string
}

func (c *Contribution) add(weight int, reason string) {
	c.Score += weight
	c.Reasons = append(c.Reasons, reason)
}

// SnapshotSource hands out the current reputation snapshot.
// *reputation.Store implements it.
type SnapshotSource interface {
	Snapshot() *reputation.Snapshot
}

// evaluation is the per-request state shared by the stages.
type evaluation struct {
	snap    *reputation.Snapshot
	url     urlnorm.NormalizedURL
	fetch   *fetcher.Result
	content string
	details *Details
	// score accumulated by earlier stages
	score int
}

type stage struct {
	name    string
	applies func(*evaluation) bool
	run     func(*evaluation) (Contribution, error)
}

// Analyzer is safe for concurrent use; each call reads one snapshot.
type Analyzer struct {
	snapshots SnapshotSource
	logger    logrus.FieldLogger
	stages    []stage
}

func New(snapshots SnapshotSource, logger logrus.FieldLogger) *Analyzer {
	return &Analyzer{
		snapshots: snapshots,
		logger:    logger.WithField("component", "analyzer"),
		stages: []stage{
			{name: "url", run: urlStage},
			{name: "brand", run: brandStage},
			{name: "content", applies: hasContent, run: contentStage},
			{name: "technical", applies: hasFetch, run: technicalStage},
		},
	}
}

// Precheck runs only the domain reputation lookup. It reports the early
// ok result when the domain is trusted enough to skip everything else.
func (a *Analyzer) Precheck(u urlnorm.NormalizedURL) (Result, bool) {
	snap := a.snapshots.Snapshot()
	if snap == nil {
		return Result{}, false
	}
	details := &Details{}
	domain := domainStage(snap, u, details)
	if domain.Score > ReputableScore {
		return Result{}, false
	}
	return reputableResult(domain, details), true
}

// Analyze scores in. It always returns a verdict: failures before the
// domain score is known yield a warning with analysis_error, and failures
// inside a later stage contribute nothing.
func (a *Analyzer) Analyze(in Input) Result {
	snap := a.snapshots.Snapshot()
	if snap == nil {
		a.logger.WithField("url", in.URL).Error("No reputation snapshot loaded")
		return errorResult(reputation.DefaultThresholds(), fmt.Errorf("no reputation snapshot"))
	}

	var u urlnorm.NormalizedURL
	if in.Normalized != nil {
		u = *in.Normalized
	} else {
		var err error
		u, err = urlnorm.New(snap.SuspiciousTLDs()...).Normalize(in.URL)
		if err != nil {
			a.logger.WithError(err).WithField("url", in.URL).Warn("Cannot normalize URL")
			return errorResult(snap.Thresholds, err)
		}
	}

	details := &Details{}
	domain := domainStage(snap, u, details)
	if domain.Score <= ReputableScore {
		a.logger.WithField("domain", u.Domain()).Debug("Reputable domain, skipping analysis")
		return reputableResult(domain, details)
	}

	ev := &evaluation{
		snap:    snap,
		url:     u,
		fetch:   in.Fetch,
		content: in.Content,
		details: details,
		score:   domain.Score,
	}
	if ev.content == "" && in.Fetch != nil && in.Fetch.Success && !in.Fetch.WasBlocked {
		ev.content = strings.TrimSpace(in.Fetch.Title + "\n" + in.Fetch.BodyExcerpt)
	}

	reasons := append([]string{}, domain.Reasons...)
	for _, st := range a.stages {
		if st.applies != nil && !st.applies(ev) {
			continue
		}
		c, err := runStage(st, ev)
		if err != nil {
			a.logger.WithError(err).WithFields(logrus.Fields{
				"stage": st.name,
				"url":   u.URL,
			}).Warn("Analysis stage failed")
			if details.StageErrors == nil {
				details.StageErrors = make(map[string]string)
			}
			details.StageErrors[st.name] = err.Error()
			reasons = append(reasons, ReasonAnalysisError)
			continue
		}
		ev.score += c.Score
		reasons = append(reasons, c.Reasons...)
	}

	result := Result{
		Verdict: snap.Thresholds.Verdict(ev.score),
		Score:   ev.score,
		Reasons: dedupe(reasons),
		Details: *details,
	}
	result.EscalateToTier1 = shouldEscalate(result)
	return result
}

// runStage converts a panicking stage into an error.
func runStage(st stage, ev *evaluation) (c Contribution, err error) {
	defer func() {
		if r := recover(); r != nil {
			c, err = Contribution{}, fmt.Errorf("stage %s panicked: %v", st.name, r)
		}
	}()
	return st.run(ev)
}

func reputableResult(domain Contribution, details *Details) Result {
	return Result{
		Verdict: reputation.VerdictOK,
		Score:   domain.Score,
		Reasons: []string{ReasonReputableDomain},
		Details: *details,
	}
}

func errorResult(thresholds reputation.Thresholds, err error) Result {
	return Result{
		Verdict: reputation.VerdictWarning,
		Score:   thresholds.Warning,
		Reasons: []string{ReasonAnalysisError},
		Details: Details{StageErrors: map[string]string{"domain": err.Error()}},
	}
}

// shouldEscalate asks for a deeper review on warnings, on any brand
// signal, and on low scores that involve money or health.
func shouldEscalate(r Result) bool {
	if r.Verdict == reputation.VerdictWarning {
		return true
	}
	for _, reason := range r.Reasons {
		if strings.Contains(reason, "brand") {
			return true
		}
	}
	if r.Score >= 1 && r.Score <= 3 {
		return r.HasReason(ReasonFinancialRequest) || r.HasReason(ReasonHealthClaims)
	}
	return false
}

func dedupe(reasons []string) []string {
	seen := make(map[string]bool, len(reasons))
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	sort.Strings(out)
	return out
}

// hasContent is false for blocked fetches: a challenge page says nothing
// about the site behind it.
func hasContent(ev *evaluation) bool {
	if ev.fetch != nil && ev.fetch.WasBlocked {
		return false
	}
	return ev.content != "" || (ev.fetch != nil && len(ev.fetch.FormActions) > 0)
}

func hasFetch(ev *evaluation) bool { return ev.fetch != nil }
