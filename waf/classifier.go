package waf

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

type indicatorKind int

const (
	kindGeneric indicatorKind = iota
	kindVendor
	kindCaptcha
)

var kindWeight = map[indicatorKind]float64{
	kindVendor:  0.3,
	kindCaptcha: 0.2,
	kindGeneric: 0.1,
}

type indicator struct {
	phrase string
	kind   indicatorKind
	vendor string
}

// Phrases seen on anti-bot and block pages, matched lower-cased
var indicators = []indicator{
	// Cloudflare
	{"cloudflare", kindVendor, "cloudflare"},
	{"cf-ray", kindVendor, "cloudflare"},
	{"checking your browser", kindGeneric, ""},
	{"ddos protection", kindGeneric, ""},
	{"please wait while we check", kindGeneric, ""},
	{"security check", kindGeneric, ""},
	{"ray id", kindGeneric, ""},

	// Imperva / Incapsula and generic WAF copy
	{"incapsula", kindVendor, "incapsula"},
	{"imperva", kindVendor, "incapsula"},
	{"access denied", kindGeneric, ""},
	{"blocked by administrator", kindGeneric, ""},
	{"your request has been blocked", kindGeneric, ""},
	{"suspicious activity detected", kindGeneric, ""},
	{"bot protection", kindGeneric, ""},
	{"anti-bot", kindGeneric, ""},
	{"human verification required", kindGeneric, ""},

	// CAPTCHA systems
	{"recaptcha", kindCaptcha, "captcha"},
	{"hcaptcha", kindCaptcha, "captcha"},
	{"solve the captcha", kindCaptcha, "captcha"},
	{"verify you are human", kindGeneric, ""},
	{"prove you are not a robot", kindGeneric, ""},
	{"security verification", kindGeneric, ""},

	// Generic block messages
	{"403 forbidden", kindGeneric, ""},
	{"access forbidden", kindGeneric, ""},
	{"request blocked", kindGeneric, ""},
	{"firewall protection", kindGeneric, ""},
	{"web application firewall", kindGeneric, ""},
}

// Script and markup shapes typical of interstitial challenge pages
var challengePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)window\.location\.href\s*=\s*["'].*["']`),
	regexp.MustCompile(`(?i)document\.cookie\s*=`),
	regexp.MustCompile(`(?i)setTimeout\s*\(\s*function`),
	regexp.MustCompile(`(?i)please\s+enable\s+javascript`),
	regexp.MustCompile(`(?i)browser\s+check\s+in\s+progress`),
}

var metaRefresh = regexp.MustCompile(`<meta[^>]*http-equiv\s*=\s*["']refresh["']`)

// Markers for embedded challenge widgets, checked in order
var challengeWidgets = []struct {
	marker string
	name   string
}{
	{"challenges.cloudflare.com", "Cloudflare Turnstile"},
	{"cf-turnstile", "Cloudflare Turnstile"},
	{"cf-chl-widget", "Cloudflare Challenge"},
	{"g-recaptcha", "reCAPTCHA"},
	{"recaptcha.net", "reCAPTCHA"},
	{"h-captcha", "hCaptcha"},
	{"hcaptcha.com", "hCaptcha"},
	{"funcaptcha.com", "FunCaptcha"},
	{"arkoselabs.com", "Arkose Labs"},
	{"mtcaptcha.com", "MTCaptcha"},
}

var blockWords = []string{"access denied", "blocked", "forbidden", "not authorized"}
var securityWords = []string{"security", "protection", "verification", "checking"}

// Result describes how much a response looks like an anti-bot page.
type Result struct {
	IsWAFPage         bool     `json:"is_waf_page"`
	WAFType           string   `json:"waf_type,omitempty"`
	Confidence        float64  `json:"confidence"`
	Indicators        []string `json:"indicators"`
	IsChallengePage   bool     `json:"is_challenge_page"`
	ChallengePatterns []string `json:"challenge_patterns,omitempty"`
	ChallengeWidget   string   `json:"challenge_widget,omitempty"`
}

// Blocking reports a detection strong enough to treat the fetch as blocked.
func (r Result) Blocking() bool {
	return r.Confidence >= 0.5 || len(r.Indicators) >= 3
}

// Classify scores body (possibly truncated HTML) and its status code.
// An empty body yields a zero Result.
func Classify(body string, statusCode int) Result {
	result := Result{Indicators: []string{}}
	if body == "" {
		return result
	}

	lower := strings.ToLower(body)
	confidence := 0.0

	for _, ind := range indicators {
		if !strings.Contains(lower, ind.phrase) {
			continue
		}
		result.Indicators = append(result.Indicators, ind.phrase)
		confidence += kindWeight[ind.kind]
		switch {
		case ind.kind == kindVendor:
			result.WAFType = ind.vendor
		case ind.kind == kindCaptcha && result.WAFType == "":
			result.WAFType = ind.vendor
		}
	}

	for _, pattern := range challengePatterns {
		if pattern.MatchString(body) {
			result.ChallengePatterns = append(result.ChallengePatterns, pattern.String())
			confidence += 0.15
		}
	}
	result.IsChallengePage = len(result.ChallengePatterns) > 0

	if len(body) < 2000 && containsAny(lower, blockWords) {
		confidence += 0.2
	}
	if len(body) < 5000 && containsAny(lower, securityWords) {
		confidence += 0.1
	}

	switch statusCode {
	case 403, 406, 429, 503:
		confidence += 0.2
		result.Indicators = append(result.Indicators, fmt.Sprintf("http_%d", statusCode))
	}

	if metaRefresh.MatchString(lower) {
		confidence += 0.15
		result.Indicators = append(result.Indicators, "meta_refresh")
	}

	scripts, visible := scanMarkup(body)
	if scripts > 3 && visible < 500 {
		confidence += 0.1
		result.Indicators = append(result.Indicators, "js_heavy_minimal_content")
	}

	for _, w := range challengeWidgets {
		if strings.Contains(lower, w.marker) {
			result.ChallengeWidget = w.name
			break
		}
	}

	result.Confidence = math.Round(math.Min(confidence, 1.0)*100) / 100
	result.IsWAFPage = result.Confidence >= 0.3 || len(result.Indicators) >= 2
	if result.ChallengeWidget != "" && result.IsWAFPage {
		result.IsChallengePage = true
	}
	return result
}

// IsBlockedResponse decides whether a fetch outcome means the site refused
// us: a blocking status code, a fetch already marked blocked, or a strong
// WAF detection on the body.
func IsBlockedResponse(statusCode int, wasBlocked bool, body string) bool {
	switch statusCode {
	case 401, 403, 429, 451:
		return true
	}
	if wasBlocked {
		return true
	}
	if body == "" {
		return false
	}
	return Classify(body, statusCode).Blocking()
}

// scanMarkup counts <script> tags and the length of whitespace-normalized
// text outside script and style elements.
func scanMarkup(body string) (scripts int, visible int) {
	z := html.NewTokenizer(strings.NewReader(body))
	skip := 0
	lastSpace := true

	for {
		switch z.Next() {
		case html.ErrorToken:
			return scripts, visible
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script":
				scripts++
				skip++
			case "style", "noscript":
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				if skip > 0 {
					skip--
				}
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			for _, r := range string(z.Text()) {
				if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
					if !lastSpace {
						visible++
						lastSpace = true
					}
					continue
				}
				visible++
				lastSpace = false
			}
		}
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
