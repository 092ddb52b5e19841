package reputation

// Fallback tables used when a dataset file leaves the corresponding list empty.

// Suspicious TLDs - free or cheap registrations heavily used by phishing kits
var DefaultSuspiciousTLDs = []string{
	"tk", "ml", "ga", "cf", "gq",
	"top", "click", "download", "stream", "xyz", "info",
	"bid", "country", "kim", "party", "review", "trade",
	"webcam", "win", "loan", "racing", "science", "work", "date",
}

// Brands whose name is also an everyday word. A bare match on these needs an
// extra signal (suspicious TLD, keyword, auth path) before it counts.
var DefaultDictionaryWordBrands = []string{
	"apple", "target", "chase", "gap", "shell", "square", "mint",
	"ally", "discover", "capital", "virgin", "orange", "sprint",
}

// Words phishing domains glue onto a brand name (microsoft-support, paypal-verify)
var DefaultImpersonationKeywords = []string{
	"support", "login", "verify", "secure", "update", "help", "billing",
	"account", "portal", "pay", "wallet", "signin", "auth", "security",
	"service", "customer", "official", "online", "access",
}

// Second-level registries where the registrable domain has three labels
var DefaultMultiPartTLDs = []string{
	"co.uk", "com.au", "co.jp", "co.nz", "com.br", "co.za",
	"com.mx", "co.in", "com.sg", "co.kr", "com.tw", "co.th",
}

// Domains a brand legitimately operates besides its primary domain
var DefaultOfficialDomains = map[string][]string{
	"microsoft": {
		"microsoft.com", "microsoftonline.com", "live.com", "outlook.com",
		"office.com", "xbox.com", "msn.com", "bing.com", "skype.com",
	},
	"google": {
		"google.com", "gmail.com", "youtube.com", "blogger.com",
		"googleusercontent.com", "googleapis.com", "gstatic.com",
	},
	"apple":  {"apple.com", "icloud.com", "me.com", "mac.com", "itunes.com"},
	"amazon": {"amazon.com", "aws.amazon.com", "amazonaws.com", "smile.amazon.com"},
	"paypal": {"paypal.com", "paypalobjects.com"},
	"chase":  {"chase.com", "jpmorgan.com", "jpmorganchase.com"},
}

var DefaultURLShorteners = []string{
	"bit.ly", "tinyurl.com", "t.co", "goo.gl", "short.link",
	"ow.ly", "is.gd", "buff.ly", "tiny.cc", "rebrand.ly", "cutt.ly",
}

// DefaultWeights mirrors heuristic_weights.yaml so a partial file still scores.
var DefaultWeights = map[string]map[string]int{
	"url_structure": {
		"excessive_subdomains": 1,
		"suspicious_path":      1,
		"random_string":        2,
		"url_shortener":        1,
	},
	"brand_similarity": {
		"homograph_attack": 3,
	},
	"content_heuristics": {
		"offsite_form_action":    2,
		"excessive_urgency":      1,
		"financial_verification": 2,
		"health_claims":          1,
		"high_caps_ratio":        1,
		"suspicious_contact":     1,
		"hype_language":          1,
		"urgency_pattern":        1,
	},
	"technical_signals": {
		"no_https":             1,
		"suspicious_redirects": 2,
		"blocked_by_security":  3,
		"slow_response":        1,
		"fetch_failure":        1,
	},
}

// DefaultThresholds are the verdict cut-offs
func DefaultThresholds() Thresholds {
	return Thresholds{
		Danger:  4,
		Warning: 2,
		OK:      1,
	}
}
