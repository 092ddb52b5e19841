package reputation

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

type MatchType string

const (
	MatchExactDifferentTLD MatchType = "exact_match_different_tld"
	MatchBrandWithKeywords MatchType = "brand_with_keywords"
	MatchLookalike         MatchType = "lookalike"
)

// Similarity subtypes, for explaining a match
const (
	SubtypeConfusable   = "confusable_substitution"
	SubtypeExactLabel   = "exact_label"
	SubtypeKeywordCombo = "brand_keyword_combo"
	SubtypeEditDistance = "edit_distance"
)

// MaxMatches is how many ranked matches FindSimilarBrands returns.
const MaxMatches = 3

// MatchMetadata explains why a match fired.
type MatchMetadata struct {
	RegistrableLabel  string    `json:"registrable_label"`
	NormalizedLabel   string    `json:"normalized_label"`
	Tokens            []string  `json:"tokens"`
	KeywordsFound     []string  `json:"keywords_found,omitempty"`
	PathFlags         PathFlags `json:"path_flags"`
	SimilaritySubtype string    `json:"similarity_subtype"`
}

// SimilarityMatch is one brand a candidate domain resembles.
type SimilarityMatch struct {
	Brand             string        `json:"brand"`
	Category          string        `json:"category"`
	MatchType         MatchType     `json:"match_type"`
	EditDistance      int           `json:"edit_distance"`
	Confidence        float64       `json:"confidence"`
	RegistrableDomain string        `json:"registrable_domain"`
	TLD               string        `json:"tld"`
	SuspiciousTLD     bool          `json:"suspicious_tld"`
	Metadata          MatchMetadata `json:"metadata"`
}

var letterTokens = regexp.MustCompile(`[a-z]+`)

const maxConfidence = 0.99

// FindSimilarBrands compares domain (bare, with path, or a full URL) against
// every brand in the snapshot and returns up to MaxMatches matches ranked by
// edit distance, then confidence. Unparseable input yields no matches.
func (s *Snapshot) FindSimilarBrands(domain string) []SimilarityMatch {
	c, ok := parseCandidate(domain)
	if !ok {
		return nil
	}
	c.resolve(s.multiPartTLDs)

	// A known brand or official domain never impersonates another brand
	if s.IsKnownBrandDomain(c.registrable) {
		return nil
	}

	label := NormalizeLabel(c.rawLabel)
	if label == "" {
		return nil
	}
	slim := strings.ReplaceAll(label, "-", "")
	tokens := letterTokens.FindAllString(label, -1)
	keywords := s.keywordsIn(tokens)
	flags := extractPathFlags(c.path, c.query)
	suspicious := s.IsSuspiciousTLD(c.finalTLD)
	hasSignal := suspicious || len(keywords) > 0 || flags.HasAuthPath
	lettersInRaw := countLetters(c.rawLabel)

	newMatch := func(b Brand, t MatchType, distance int, confidence float64, subtype string) SimilarityMatch {
		return SimilarityMatch{
			Brand:             b.Domain,
			Category:          b.Category,
			MatchType:         t,
			EditDistance:      distance,
			Confidence:        roundConfidence(confidence),
			RegistrableDomain: c.registrable,
			TLD:               c.tld,
			SuspiciousTLD:     suspicious,
			Metadata: MatchMetadata{
				RegistrableLabel:  c.rawLabel,
				NormalizedLabel:   label,
				Tokens:            tokens,
				KeywordsFound:     keywords,
				PathFlags:         flags,
				SimilaritySubtype: subtype,
			},
		}
	}

	var matches []SimilarityMatch
	for _, b := range s.brands {
		if s.isOfficial(b, c.registrable) {
			continue
		}
		if len(b.normalized) == 0 {
			continue
		}
		dictionary := s.dictionaryWords.has(b.Name)

		// Confusable-exact: looks like the brand only after folding homoglyphs
		if strings.ToLower(c.rawLabel) != b.Name && label == b.normalized {
			confidence := 0.85
			if suspicious {
				confidence += 0.05
			}
			matches = append(matches, newMatch(b, MatchLookalike, 1, confidence, SubtypeConfusable))
			continue
		}

		// Same name under a different registrable domain
		if label == b.normalized {
			if dictionary && !hasSignal {
				continue
			}
			confidence := 0.95
			if suspicious {
				confidence += 0.03
			}
			matches = append(matches, newMatch(b, MatchExactDifferentTLD, 0, confidence, SubtypeExactLabel))
			continue
		}

		// Brand as a whole token next to an impersonation keyword
		if len(keywords) > 0 && containsToken(tokens, b.normalized) {
			confidence := 0.90
			if suspicious {
				confidence += 0.05
			}
			matches = append(matches, newMatch(b, MatchBrandWithKeywords, 0, confidence, SubtypeKeywordCombo))
			continue
		}

		if m, ok := s.lookalike(b, slim, lettersInRaw, suspicious, flags, dictionary, hasSignal); ok {
			matches = append(matches, newMatch(b, MatchLookalike, m.distance, m.confidence, SubtypeEditDistance))
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].EditDistance != matches[j].EditDistance {
			return matches[i].EditDistance < matches[j].EditDistance
		}
		return matches[i].Confidence > matches[j].Confidence
	})
	if len(matches) > MaxMatches {
		matches = matches[:MaxMatches]
	}
	return matches
}

type lookalikeResult struct {
	distance   int
	confidence float64
}

// lookalike runs the guarded edit-distance comparison.
func (s *Snapshot) lookalike(b Brand, slim string, lettersInRaw int, suspicious bool, flags PathFlags, dictionary, hasSignal bool) (lookalikeResult, bool) {
	brand := b.normalized
	if len(slim) < 3 || len(brand) < 3 {
		return lookalikeResult{}, false
	}
	// Digits fold into letters during normalization, so count on the raw label
	if lettersInRaw < 3 {
		return lookalikeResult{}, false
	}
	minOverlap := math.Max(3, 0.4*float64(len(brand)))
	if float64(charOverlap(slim, brand)) < minOverlap {
		return lookalikeResult{}, false
	}
	if slim[0] != brand[0] && slim[len(slim)-1] != brand[len(brand)-1] {
		return lookalikeResult{}, false
	}

	threshold := distanceThreshold(len(brand), suspicious)
	if abs(len(slim)-len(brand)) > threshold+2 {
		return lookalikeResult{}, false
	}

	distance := levenshtein(slim, brand)
	if distance == 0 || distance > threshold {
		return lookalikeResult{}, false
	}
	if dictionary && !hasSignal {
		return lookalikeResult{}, false
	}

	confidence := 0.75 + 0.05*float64(threshold-distance)
	if flags.HasAuthPath {
		confidence += 0.10
	}
	return lookalikeResult{distance: distance, confidence: confidence}, true
}

// distanceThreshold scales the allowed edit distance with brand length.
func distanceThreshold(brandLen int, suspicious bool) int {
	var threshold int
	switch {
	case brandLen <= 4:
		threshold = 1
	case brandLen <= 9:
		threshold = 2
	default:
		threshold = 3
	}
	if suspicious {
		threshold++
	}
	return threshold
}

func (s *Snapshot) isOfficial(b Brand, registrable string) bool {
	if registrable == b.Domain {
		return true
	}
	return s.officialDomains[b.Name].has(registrable)
}

func (s *Snapshot) keywordsIn(tokens []string) []string {
	var found []string
	seen := make(map[string]bool)
	for _, token := range tokens {
		if s.impersonationKeywords.has(token) && !seen[token] {
			seen[token] = true
			found = append(found, token)
		}
	}
	return found
}

func containsToken(tokens []string, want string) bool {
	for _, token := range tokens {
		if token == want {
			return true
		}
	}
	return false
}

func charOverlap(a, b string) int {
	inA := make(map[rune]bool)
	for _, r := range a {
		inA[r] = true
	}
	overlap := 0
	seen := make(map[rune]bool)
	for _, r := range b {
		if inA[r] && !seen[r] {
			seen[r] = true
			overlap++
		}
	}
	return overlap
}

// levenshtein is the classic two-row edit distance over bytes. Inputs are
// already folded to ASCII.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func roundConfidence(c float64) float64 {
	if c > maxConfidence {
		c = maxConfidence
	}
	return math.Round(c*100) / 100
}
