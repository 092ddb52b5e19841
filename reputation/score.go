package reputation

// Reasons produced by brand scoring
const (
	ReasonBrandImpersonationHighRisk = "brand_impersonation_high_risk"
	ReasonBrandImpersonation         = "brand_impersonation"
	ReasonBrandSimilarity            = "brand_similarity"
	ReasonImpersonationKeywords      = "impersonation_keywords"
	ReasonSuspiciousDomain           = "suspicious_domain"
	ReasonAuthPath                   = "auth_path"
)

// maxBrandScore caps the brand signal including the auth path bonus.
const maxBrandScore = 4

// BrandScore is the brand-similarity contribution to a risk score.
type BrandScore struct {
	Score   int               `json:"score"`
	Verdict Verdict           `json:"verdict"`
	Reasons []string          `json:"reasons,omitempty"`
	Best    *SimilarityMatch  `json:"best_match,omitempty"`
	Matches []SimilarityMatch `json:"matches,omitempty"`
}

// BrandSimilarityScore scores the best brand match for domain. The verdict
// is what the brand signal alone would produce.
func (s *Snapshot) BrandSimilarityScore(domain string) BrandScore {
	matches := s.FindSimilarBrands(domain)
	if len(matches) == 0 {
		return BrandScore{Verdict: s.Thresholds.Verdict(0)}
	}

	best := matches[0]
	score, reasons := scoreMatch(best)

	if best.MatchType == MatchLookalike && best.Metadata.PathFlags.HasAuthPath {
		score += 2
		if score > maxBrandScore {
			score = maxBrandScore
		}
		reasons = append(reasons, ReasonAuthPath)
	}

	return BrandScore{
		Score:   score,
		Verdict: s.Thresholds.Verdict(score),
		Reasons: reasons,
		Best:    &best,
		Matches: matches,
	}
}

func scoreMatch(m SimilarityMatch) (int, []string) {
	switch m.MatchType {
	case MatchExactDifferentTLD:
		if m.SuspiciousTLD {
			return 4, []string{ReasonBrandImpersonationHighRisk, ReasonSuspiciousDomain}
		}
		return 2, []string{ReasonBrandImpersonation}

	case MatchBrandWithKeywords:
		if m.SuspiciousTLD {
			return 4, []string{ReasonBrandImpersonationHighRisk, ReasonImpersonationKeywords}
		}
		return 2, []string{ReasonBrandImpersonation, ReasonImpersonationKeywords}

	case MatchLookalike:
		if m.EditDistance <= 1 {
			if m.SuspiciousTLD || m.Metadata.PathFlags.HasAuthPath {
				return 4, []string{ReasonBrandImpersonationHighRisk}
			}
			return 2, []string{ReasonBrandSimilarity}
		}
		return 1, []string{ReasonBrandSimilarity}
	}
	return 0, nil
}
