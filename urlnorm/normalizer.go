package urlnorm

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

var (
	ErrEmptyURL    = errors.New("empty url")
	ErrMissingHost = errors.New("url has no host")
)

// NormalizedURL is the canonical form of a URL plus the signals collected
// while canonicalizing it.
type NormalizedURL struct {
	Original          string   `json:"original"`
	URL               string   `json:"url"`
	Scheme            string   `json:"scheme"`
	Host              string   `json:"host"`
	OriginalHost      string   `json:"-"`
	Port              string   `json:"port,omitempty"`
	Path              string   `json:"path"`
	Query             string   `json:"query,omitempty"`
	Fragment          string   `json:"fragment,omitempty"`
	RemovedParamCount int      `json:"removed_param_count"`
	IsPunycode        bool     `json:"is_punycode"`
	DecodedHost       string   `json:"decoded_host"`
	SuspiciousChars   []string `json:"suspicious_chars,omitempty"`
	IsSuspiciousTLD   bool     `json:"is_suspicious_tld"`
	TLD               string   `json:"tld"`
}

// Domain returns the host without a leading "www.".
func (n NormalizedURL) Domain() string {
	return strings.TrimPrefix(n.Host, "www.")
}

// MatchTarget is the host (case preserved, Unicode when the host was
// punycode) followed by path and query. Brand matching needs the original
// case to catch PayPaI-style substitutions.
func (n NormalizedURL) MatchTarget() string {
	host := n.OriginalHost
	if n.IsPunycode || host == "" {
		host = n.DecodedHost
	}
	target := host + n.Path
	if n.Query != "" {
		target += "?" + n.Query
	}
	return target
}

// trackingParams are query keys removed outright (matched lower-cased).
var trackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_term": {},
	"utm_content": {}, "utm_id": {},
	"fbclid": {}, "gclid": {}, "dclid": {}, "msclkid": {}, "yclid": {}, "igshid": {},
	"mc_cid": {}, "mc_eid": {}, "_hsenc": {}, "_hsmi": {}, "mkt_tok": {},
	"_ga": {}, "_gl": {}, "ref_src": {},
	"v": {}, "ver": {}, "version": {},
	"t": {}, "ts": {}, "timestamp": {},
	"r": {}, "rand": {}, "random": {},
	"nonce": {}, "sig": {}, "signature": {},
	"cache": {}, "cb": {}, "cachebuster": {},
}

// sessionPatterns catch cache-busting keys with per-request suffixes.
var sessionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`_ts$`),
	regexp.MustCompile(`_time$`),
	regexp.MustCompile(`_rnd$`),
	regexp.MustCompile(`_nonce$`),
	regexp.MustCompile(`_sig$`),
	regexp.MustCompile(`_cache$`),
	regexp.MustCompile(`_v$`),
}

var repeatedSlashes = regexp.MustCompile(`/{2,}`)

// homographRunes are Cyrillic and Greek letters rendered like Latin ones.
var homographRunes = map[rune]struct{}{
	'а': {}, 'е': {}, 'о': {}, 'р': {}, 'с': {}, 'х': {}, 'у': {}, 'і': {}, 'ї': {}, 'є': {},
	'α': {}, 'ο': {}, 'ρ': {}, 'ε': {}, 'ν': {},
}

var defaultSuspiciousTLDs = []string{"tk", "ml", "ga", "cf", "gq"}

// Normalizer canonicalizes URLs. The zero value is not usable; call New.
type Normalizer struct {
	suspiciousTLDs map[string]struct{}
}

// New returns a Normalizer flagging the given TLDs (leading dots allowed).
// With no TLDs a small built-in set of free-registration TLDs is used.
func New(suspiciousTLDs ...string) *Normalizer {
	if len(suspiciousTLDs) == 0 {
		suspiciousTLDs = defaultSuspiciousTLDs
	}
	set := make(map[string]struct{}, len(suspiciousTLDs))
	for _, tld := range suspiciousTLDs {
		set[strings.TrimPrefix(strings.ToLower(tld), ".")] = struct{}{}
	}
	return &Normalizer{suspiciousTLDs: set}
}

// Normalize parses raw and returns its canonical form. Applying Normalize to
// the resulting URL yields the same URL again.
func (n *Normalizer) Normalize(raw string) (NormalizedURL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NormalizedURL{}, ErrEmptyURL
	}

	input := raw
	if !strings.Contains(input, "://") {
		input = "http://" + input
	}

	u, err := url.Parse(input)
	if err != nil {
		return NormalizedURL{}, fmt.Errorf("parse url: %w", err)
	}

	originalHost := strings.TrimSuffix(u.Hostname(), ".")
	if originalHost == "" {
		return NormalizedURL{}, ErrMissingHost
	}

	result := NormalizedURL{
		Original:     raw,
		Scheme:       strings.ToLower(u.Scheme),
		OriginalHost: originalHost,
	}

	// Host: lower-case, punycode for anything non-ASCII
	host := strings.ToLower(originalHost)
	if !isASCII(host) {
		if ascii, err := idna.Lookup.ToASCII(host); err == nil {
			host = ascii
		}
	}
	result.Host = host
	result.DecodedHost = host
	if strings.Contains(host, "xn--") {
		result.IsPunycode = true
		if decoded, err := idna.Lookup.ToUnicode(host); err == nil {
			result.DecodedHost = decoded
		}
		result.SuspiciousChars = suspiciousChars(result.DecodedHost)
	}

	if labels := strings.Split(host, "."); len(labels) > 1 {
		result.TLD = labels[len(labels)-1]
		_, result.IsSuspiciousTLD = n.suspiciousTLDs[result.TLD]
	}

	// Port: drop defaults
	port := u.Port()
	if (result.Scheme == "http" && port == "80") || (result.Scheme == "https" && port == "443") {
		port = ""
	}
	result.Port = port

	result.Path = normalizePath(u.EscapedPath())
	result.Query, result.RemovedParamCount = cleanQuery(u.RawQuery)
	result.Fragment = u.EscapedFragment()
	result.URL = result.build()

	return result, nil
}

func (n NormalizedURL) build() string {
	var b strings.Builder
	b.WriteString(n.Scheme)
	b.WriteString("://")
	if strings.Contains(n.Host, ":") {
		b.WriteString("[" + n.Host + "]")
	} else {
		b.WriteString(n.Host)
	}
	if n.Port != "" {
		b.WriteString(":" + n.Port)
	}
	b.WriteString(n.Path)
	if n.Query != "" {
		b.WriteString("?" + n.Query)
	}
	if n.Fragment != "" {
		b.WriteString("#" + n.Fragment)
	}
	return b.String()
}

func normalizePath(path string) string {
	path = repeatedSlashes.ReplaceAllString(path, "/")
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if path == "" {
		path = "/"
	}
	return path
}

// queryPair is one key=value from a raw query. Pairs that do not decode
// keep their raw text and are written back unchanged.
type queryPair struct {
	key string
	raw string
}

// cleanQuery drops tracking and session parameters and sorts the rest by
// key. It returns the number of distinct keys removed.
func cleanQuery(rawQuery string) (string, int) {
	if rawQuery == "" {
		return "", 0
	}

	var kept []queryPair
	removed := make(map[string]struct{})
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(part, "=")
		key, keyErr := url.QueryUnescape(rawKey)
		value, valueErr := url.QueryUnescape(rawValue)
		if keyErr != nil || valueErr != nil || strings.Contains(part, ";") {
			kept = append(kept, queryPair{key: rawKey, raw: part})
			continue
		}
		if isTrackingParam(key) {
			removed[key] = struct{}{}
			continue
		}
		kept = append(kept, queryPair{key: key, raw: url.QueryEscape(key) + "=" + url.QueryEscape(value)})
	}
	if len(kept) == 0 {
		return "", len(removed)
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].key < kept[j].key })
	parts := make([]string, len(kept))
	for i, p := range kept {
		parts[i] = p.raw
	}
	return strings.Join(parts, "&"), len(removed)
}

func isTrackingParam(key string) bool {
	key = strings.ToLower(key)
	if _, ok := trackingParams[key]; ok {
		return true
	}
	for _, pattern := range sessionPatterns {
		if pattern.MatchString(key) {
			return true
		}
	}
	return false
}

func suspiciousChars(host string) []string {
	var found []string
	seen := make(map[rune]bool)
	for _, r := range host {
		if _, ok := homographRunes[r]; ok && !seen[r] {
			seen[r] = true
			found = append(found, string(r))
		}
	}
	return found
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
