package analyzer

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

const (
	capsRatioLimit     = 0.3
	minLettersForCaps  = 20
	exclamationLimit   = 5
	phoneLimit         = 2
	emailLimit         = 3
	maxRecordedMatches = 20
)

var (
	formActionPattern  = regexp.MustCompile(`(?i)<form[^>]*action\s*=\s*["']([^"']+)["']`)
	exclamationRun     = regexp.MustCompile(`!{2,}`)
	phonePattern       = regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`)
	emailPattern       = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	pressureContactRes = []*regexp.Regexp{
		regexp.MustCompile(`call now`),
		regexp.MustCompile(`urgent.{0,20}contact`),
		regexp.MustCompile(`immediate.{0,20}response`),
		regexp.MustCompile(`limited time.{0,20}call`),
	}
)

// KeywordHit is one keyword or urgency pattern found in the page text.
type KeywordHit struct {
	Type  string `json:"type"`
	Match string `json:"match"`
	Score int    `json:"score"`
}

type ContentDetails struct {
	KeywordScore      int          `json:"keyword_score"`
	Hits              []KeywordHit `json:"hits,omitempty"`
	OffsiteForms      []string     `json:"offsite_forms,omitempty"`
	CapsRatio         float64      `json:"caps_ratio"`
	ExclamationCount  int          `json:"exclamation_count"`
	SuspiciousContact bool         `json:"suspicious_contact"`
}

func contentStage(ev *evaluation) (Contribution, error) {
	var c Contribution
	snap := ev.snap
	text := ev.content
	lower := strings.ToLower(text)
	details := &ContentDetails{}

	keywordGroups := []struct {
		kind     string
		reason   string
		weight   int
		keywords []string
	}{
		{"hype_language", ReasonHypeLanguage, snap.Weight("content_heuristics", "hype_language"), snap.HypeKeywords},
		{"financial_verification", ReasonFinancialRequest, snap.Weight("content_heuristics", "financial_verification"), snap.FinancialKeywords},
		{"health_claims", ReasonHealthClaims, snap.Weight("content_heuristics", "health_claims"), snap.HealthKeywords},
	}
	for _, group := range keywordGroups {
		found := false
		for _, keyword := range group.keywords {
			if !strings.Contains(lower, keyword) {
				continue
			}
			found = true
			details.record(KeywordHit{Type: group.kind, Match: keyword, Score: group.weight})
		}
		if found {
			c.Reasons = append(c.Reasons, group.reason)
		}
	}

	urgencyWeight := snap.Weight("content_heuristics", "urgency_pattern")
	urgent := false
	for _, re := range snap.UrgencyPatterns {
		for _, match := range re.FindAllString(text, -1) {
			urgent = true
			details.record(KeywordHit{Type: "urgency_pattern", Match: match, Score: urgencyWeight})
		}
	}
	if urgent {
		c.Reasons = append(c.Reasons, ReasonUrgencyTactics)
	}
	c.Score += details.KeywordScore

	details.OffsiteForms = offsiteForms(ev)
	if len(details.OffsiteForms) > 0 {
		c.add(snap.Weight("content_heuristics", "offsite_form_action"), ReasonOffsiteFormAction)
	}

	letters, caps := 0, 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				caps++
			}
		}
	}
	if letters > 0 {
		details.CapsRatio = float64(caps) / float64(letters)
	}
	if letters >= minLettersForCaps && details.CapsRatio > capsRatioLimit {
		c.add(snap.Weight("content_heuristics", "high_caps_ratio"), ReasonExcessiveCaps)
	}

	details.ExclamationCount = strings.Count(text, "!")
	if details.ExclamationCount > exclamationLimit || len(exclamationRun.FindAllString(text, -1)) >= 2 {
		c.add(snap.Weight("content_heuristics", "excessive_urgency"), ReasonExcessiveExclaim)
	}

	details.SuspiciousContact = suspiciousContact(text, lower)
	if details.SuspiciousContact {
		c.add(snap.Weight("content_heuristics", "suspicious_contact"), ReasonSuspiciousContact)
	}

	ev.details.Content = details
	return c, nil
}

func (d *ContentDetails) record(hit KeywordHit) {
	d.KeywordScore += hit.Score
	if len(d.Hits) < maxRecordedMatches {
		d.Hits = append(d.Hits, hit)
	}
}

// offsiteForms lists form actions posting to a different registrable
// domain than the page that served them.
func offsiteForms(ev *evaluation) []string {
	pageHost := ev.url.Host
	if ev.fetch != nil && ev.fetch.FinalURL != "" {
		if u, err := url.Parse(ev.fetch.FinalURL); err == nil && u.Hostname() != "" {
			pageHost = u.Hostname()
		}
	}
	page := ev.snap.RegistrableDomain(pageHost)

	var actions []string
	if ev.fetch != nil && len(ev.fetch.FormActions) > 0 {
		actions = ev.fetch.FormActions
	} else {
		for _, m := range formActionPattern.FindAllStringSubmatch(ev.content, -1) {
			actions = append(actions, m[1])
		}
	}

	var offsite []string
	for _, action := range actions {
		u, err := url.Parse(strings.TrimSpace(action))
		if err != nil || u.Hostname() == "" {
			continue
		}
		if ev.snap.RegistrableDomain(u.Hostname()) != page {
			offsite = append(offsite, action)
		}
	}
	return offsite
}

func suspiciousContact(text, lower string) bool {
	if len(phonePattern.FindAllString(text, -1)) > phoneLimit {
		return true
	}
	if len(emailPattern.FindAllString(text, -1)) > emailLimit {
		return true
	}
	for _, re := range pressureContactRes {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}
