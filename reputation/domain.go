package reputation

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// candidate is a parsed domain ready for brand comparison.
type candidate struct {
	host        string // lower-cased, no www.
	registrable string // eTLD+1, lower-cased
	rawLabel    string // first label of registrable, case preserved
	tld         string // registrable minus its first label
	finalTLD    string // last label only
	rawLabels   []string
	path        string
	query       url.Values
}

// parseCandidate accepts a bare domain, a domain with path, or a full URL.
// It returns false when no host can be found.
func parseCandidate(raw string) (candidate, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return candidate{}, false
	}

	input := raw
	if !strings.Contains(input, "://") {
		input = "http://" + input
	}

	var c candidate
	var rawHost string
	if u, err := url.Parse(input); err == nil {
		rawHost = u.Hostname()
		c.path = u.Path
		c.query = u.Query()
	} else {
		// Unparseable URL: take whatever precedes the first path separator
		rawHost = raw
		if i := strings.Index(rawHost, "://"); i >= 0 {
			rawHost = rawHost[i+3:]
		}
		if i := strings.IndexAny(rawHost, "/?#"); i >= 0 {
			rawHost = rawHost[:i]
		}
	}

	rawHost = strings.TrimSuffix(strings.TrimSpace(rawHost), ".")
	if len(rawHost) >= 4 && strings.EqualFold(rawHost[:4], "www.") {
		rawHost = rawHost[4:]
	}
	if rawHost == "" || strings.ContainsAny(rawHost, " @:") {
		return candidate{}, false
	}

	rawLabels := strings.Split(rawHost, ".")
	for i, label := range rawLabels {
		rawLabels[i] = decodePunycodeLabel(label)
	}
	for _, label := range rawLabels {
		if label == "" {
			return candidate{}, false
		}
	}

	lowerLabels := make([]string, len(rawLabels))
	for i, label := range rawLabels {
		lowerLabels[i] = strings.ToLower(label)
	}
	c.host = strings.Join(lowerLabels, ".")
	c.rawLabels = rawLabels

	return c, true
}

// resolve fills in the registrable domain and its parts.
func (c *candidate) resolve(multiPartTLDs map[string]struct{}) {
	c.registrable = RegistrableDomain(c.host, multiPartTLDs)
	parts := strings.Split(c.registrable, ".")
	c.rawLabel = c.rawLabels[len(c.rawLabels)-len(parts)]
	c.tld = strings.Join(parts[1:], ".")
	c.finalTLD = parts[len(parts)-1]
}

func decodePunycodeLabel(label string) string {
	if !strings.HasPrefix(strings.ToLower(label), "xn--") {
		return label
	}
	decoded, err := idna.Punycode.ToUnicode(strings.ToLower(label))
	if err != nil {
		return label
	}
	return decoded
}

// RegistrableDomain returns the eTLD+1 of host. The multi-part TLD set is
// checked first (last three, then last two labels); ICANN suffixes from the
// public suffix list cover registries the set is missing.
func RegistrableDomain(host string, multiPartTLDs map[string]struct{}) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}

	for n := 3; n >= 2; n-- {
		if len(labels) <= n {
			continue
		}
		suffix := strings.Join(labels[len(labels)-n:], ".")
		if _, ok := multiPartTLDs[suffix]; ok {
			return strings.Join(labels[len(labels)-n-1:], ".")
		}
	}

	if suffix, icann := publicsuffix.PublicSuffix(host); icann && strings.Contains(suffix, ".") {
		if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
			return etld1
		}
	}

	return strings.Join(labels[len(labels)-2:], ".")
}

// PathFlags describe authentication hints in the URL path and query.
type PathFlags struct {
	HasPath     bool     `json:"has_path"`
	HasAuthPath bool     `json:"has_auth_path"`
	AuthTerms   []string `json:"auth_terms,omitempty"`
}

var authTermPattern = regexp.MustCompile(`login|signin|auth|verify|secure|account|portal|billing|payment|wallet|checkout`)

func extractPathFlags(path string, query url.Values) PathFlags {
	var flags PathFlags
	seen := make(map[string]bool)
	add := func(s string) {
		for _, term := range authTermPattern.FindAllString(strings.ToLower(s), -1) {
			if !seen[term] {
				seen[term] = true
				flags.AuthTerms = append(flags.AuthTerms, term)
			}
		}
	}

	for _, segment := range strings.Split(path, "/") {
		if segment != "" {
			flags.HasPath = true
			add(segment)
		}
	}
	for key := range query {
		add(key)
	}

	sort.Strings(flags.AuthTerms)
	flags.HasAuthPath = len(flags.AuthTerms) > 0
	return flags
}
