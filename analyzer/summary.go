package analyzer

import (
	"fmt"
	"strings"

	"github.com/scheott/safe/reputation"
)

// Summary renders a one-line explanation of r for end users.
func Summary(r Result) string {
	if r.Verdict == reputation.VerdictOK {
		if r.HasReason(ReasonLimitedAnalysis) {
			return "No significant risks detected, but the site limited our checks"
		}
		return "No significant risks detected"
	}

	var parts []string

	if b := r.Details.Brand; b != nil && b.Best != nil {
		brand := b.Best.Brand
		switch b.Best.MatchType {
		case reputation.MatchExactDifferentTLD:
			parts = append(parts, fmt.Sprintf("Appears to impersonate %s", brand))
		case reputation.MatchBrandWithKeywords:
			keywords := b.Best.Metadata.KeywordsFound
			if len(keywords) > 2 {
				keywords = keywords[:2]
			}
			if len(keywords) > 0 {
				parts = append(parts, fmt.Sprintf("Contains %s branding with suspicious keywords: %s", brand, strings.Join(keywords, ", ")))
			} else {
				parts = append(parts, fmt.Sprintf("Contains %s branding with impersonation keywords", brand))
			}
		case reputation.MatchLookalike:
			parts = append(parts, fmt.Sprintf("Domain looks similar to %s", brand))
		}
	}

	if r.HasReason(ReasonHomographCharacters) {
		parts = append(parts, "Uses look-alike characters in the domain name")
	}
	if r.HasReason(ReasonSuspiciousTLD) || r.HasReason(ReasonSuspiciousDomain) {
		if d := r.Details.Domain; d != nil && d.TLDRisk == "high" {
			parts = append(parts, fmt.Sprintf("Uses suspicious .%s domain", d.TLD))
		} else {
			parts = append(parts, "Uses suspicious domain")
		}
	}

	messages := []struct {
		reason string
		text   string
	}{
		{ReasonFinancialRequest, "Requests financial verification"},
		{ReasonHypeLanguage, "Uses high-pressure sales language"},
		{ReasonUrgencyTactics, "Pushes urgent action"},
		{ReasonOffsiteFormAction, "Forms submit to external sites"},
		{ReasonHealthClaims, "Makes unverified health claims"},
		{ReasonURLShortener, "Hides its destination behind a link shortener"},
		{ReasonNoHTTPS, "Does not use secure HTTPS"},
		{ReasonExcessiveRedirects, "Uses excessive redirects"},
		{ReasonBlockedBySecurity, "Blocked our safety check"},
		{ReasonFetchFailed, "Website failed to load properly"},
	}
	for _, m := range messages {
		if r.HasReason(m.reason) {
			parts = append(parts, m.text)
		}
	}

	if len(parts) == 0 {
		return fmt.Sprintf("Flagged with %d risk points", r.Score)
	}
	return strings.Join(parts, "; ")
}
