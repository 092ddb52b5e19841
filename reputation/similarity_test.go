package reputation

import (
	"testing"
)

func TestFindSimilarBrands(t *testing.T) {
	snap := loadShippedSnapshot(t)

	tests := []struct {
		domain    string
		wantBrand string
		wantType  MatchType
	}{
		// Exact brand name under a suspicious TLD
		{"chase.tk", "chase.com", MatchExactDifferentTLD},
		{"google.ml", "google.com", MatchExactDifferentTLD},
		{"microsoft.cf", "microsoft.com", MatchExactDifferentTLD},
		{"paypal.gq", "paypal.com", MatchExactDifferentTLD},
		{"target.tk", "target.com", MatchExactDifferentTLD},
		{"google.co.uk", "google.com", MatchExactDifferentTLD},

		// Brand plus impersonation keyword
		{"microsoft-support.com", "microsoft.com", MatchBrandWithKeywords},
		{"apple-billing.com", "apple.com", MatchBrandWithKeywords},
		{"microsoft--support.com", "microsoft.com", MatchBrandWithKeywords},
		{"google-login.tk", "google.com", MatchBrandWithKeywords},
		{"chase-secure.xyz", "chase.com", MatchBrandWithKeywords},
		{"paypal-verify.ml", "paypal.com", MatchBrandWithKeywords},
		{"apple-login.tk", "apple.com", MatchBrandWithKeywords},
		{"chase-support.ml", "chase.com", MatchBrandWithKeywords},
		{"microsoft-support.co.uk", "microsoft.com", MatchBrandWithKeywords},

		// Look-alikes
		{"g00gle.com", "google.com", MatchLookalike},
		{"paypaI.com", "paypal.com", MatchLookalike},
		{"micr0soft.com", "microsoft.com", MatchLookalike},
		{"appl3.com", "apple.com", MatchLookalike},
		{"microsofy.com", "microsoft.com", MatchLookalike},
		{"amaz0n.tk", "amazon.com", MatchLookalike},
		{"xn--pple-43d.com", "apple.com", MatchLookalike},
		{"https://www.g00gle.com/login", "google.com", MatchLookalike},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			matches := snap.FindSimilarBrands(tt.domain)
			if len(matches) == 0 {
				t.Fatalf("FindSimilarBrands(%q) returned no matches", tt.domain)
			}
			top := matches[0]
			if top.Brand != tt.wantBrand {
				t.Errorf("top brand = %q, want %q", top.Brand, tt.wantBrand)
			}
			if top.MatchType != tt.wantType {
				t.Errorf("top type = %q, want %q", top.MatchType, tt.wantType)
			}
			if top.Confidence < 0 || top.Confidence > 0.99 {
				t.Errorf("confidence %v out of range", top.Confidence)
			}
		})
	}
}

func TestFindSimilarBrandsNoMatch(t *testing.T) {
	snap := loadShippedSnapshot(t)

	domains := []string{
		// Legitimate subdomains
		"support.microsoft.com",
		"login.microsoft.com",
		"accounts.google.com",
		"support.apple.com",
		"mail.google.com",
		"aws.amazon.com",

		// Dictionary-word brands inside ordinary names
		"appledaily.com",
		"targetnews.com",
		"chaserewards.com",
		"appleforum.org",
		"squarestore.net",

		// Noise
		"verylongdomainnamethatshouldnotmatch.com",
		"a.com",
		"123456.tk",
		"random-words-here.com",
		"",
		"http://",
		"usps.com",
	}

	for _, domain := range domains {
		if matches := snap.FindSimilarBrands(domain); len(matches) != 0 {
			t.Errorf("FindSimilarBrands(%q) = %+v, want no match", domain, matches[0])
		}
	}
}

func TestFindSimilarBrandsOfficialDomains(t *testing.T) {
	snap := loadShippedSnapshot(t)

	for _, brand := range snap.Brands() {
		domains := []string{brand.Domain, "www." + brand.Domain, "login." + brand.Domain}
		for official := range snap.officialDomains[brand.Name] {
			domains = append(domains, official, "secure."+official)
		}
		for _, domain := range domains {
			for _, m := range snap.FindSimilarBrands(domain) {
				if m.Brand == brand.Domain {
					t.Errorf("FindSimilarBrands(%q) matched its own brand %s", domain, brand.Domain)
				}
			}
		}
	}
}

func TestFindSimilarBrandsDictionaryWords(t *testing.T) {
	snap := loadShippedSnapshot(t)

	// Same word, ordinary TLD, no keyword or auth path: suppressed
	if matches := snap.FindSimilarBrands("apple.net"); len(matches) != 0 {
		t.Errorf("apple.net should not match, got %+v", matches[0])
	}
	// Auth path is enough of a signal
	matches := snap.FindSimilarBrands("apple.net/signin")
	if len(matches) == 0 || matches[0].MatchType != MatchExactDifferentTLD {
		t.Fatalf("apple.net/signin should be an exact match, got %+v", matches)
	}
	// Non-dictionary brands match on any TLD
	if matches := snap.FindSimilarBrands("paypal.net"); len(matches) == 0 {
		t.Error("paypal.net should match")
	}
}

func TestFindSimilarBrandsConfidence(t *testing.T) {
	snap := loadShippedSnapshot(t)

	matches := snap.FindSimilarBrands("g00gle.com")
	if len(matches) == 0 {
		t.Fatal("expected a match")
	}
	top := matches[0]
	if top.Confidence < 0.75 || top.Confidence >= 0.95 {
		t.Errorf("g00gle.com confidence = %v, want [0.75, 0.95)", top.Confidence)
	}
	if top.EditDistance != 1 {
		t.Errorf("g00gle.com distance = %d, want 1", top.EditDistance)
	}
	if top.Metadata.SimilaritySubtype != SubtypeConfusable {
		t.Errorf("subtype = %q", top.Metadata.SimilaritySubtype)
	}

	exact := snap.FindSimilarBrands("chase.tk")[0]
	if exact.EditDistance != 0 || !exact.SuspiciousTLD {
		t.Errorf("chase.tk match = %+v", exact)
	}
	if exact.Confidence <= 0.95 {
		t.Errorf("suspicious TLD should raise confidence, got %v", exact.Confidence)
	}
}

func TestFindSimilarBrandsRanking(t *testing.T) {
	ds := Dataset{
		Brands: BrandDomains{Categories: map[string][]string{
			"test": {"paypal.com", "paypay.com", "paypai.com", "paytal.com", "payeal.com"},
		}},
	}
	snap, err := NewSnapshot(ds)
	if err != nil {
		t.Fatal(err)
	}

	matches := snap.FindSimilarBrands("paypxl.tk")
	if len(matches) != MaxMatches {
		t.Fatalf("got %d matches, want %d", len(matches), MaxMatches)
	}
	for i := 1; i < len(matches); i++ {
		prev, cur := matches[i-1], matches[i]
		if prev.EditDistance > cur.EditDistance ||
			(prev.EditDistance == cur.EditDistance && prev.Confidence < cur.Confidence) {
			t.Errorf("matches out of order at %d: %+v before %+v", i, prev, cur)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"microsofy", "microsoft", 1},
		{"kitten", "sitting", 3},
		{"google", "google", 0},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
