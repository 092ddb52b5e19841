// Package fetcher retrieves a single public web page under SSRF protection,
// staged timeouts, and a bounded redirect chain.
package fetcher

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/scheott/safe/waf"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

const (
	DefaultUserAgent = "SafeSignal/1.0 (+https://safesignal.com/bot)"

	// blockedBodyBytes bounds what is read from refusal responses for WAF
	// classification.
	blockedBodyBytes = 64 << 10
)

// Config holds the fetch limits.
type Config struct {
	ConnectTimeout time.Duration
	TLSTimeout     time.Duration
	ReadTimeout    time.Duration
	TotalTimeout   time.Duration
	MaxRedirects   int
	MaxBodyBytes   int64
	UserAgent      string
	// RatePerSecond throttles outbound requests across all callers. Zero
	// means unlimited.
	RatePerSecond float64
}

// DefaultConfig returns the production fetch limits.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 2 * time.Second,
		TLSTimeout:     2 * time.Second,
		ReadTimeout:    3 * time.Second,
		TotalTimeout:   10 * time.Second,
		MaxRedirects:   3,
		MaxBodyBytes:   200 << 10,
		UserAgent:      DefaultUserAgent,
	}
}

// Result is the outcome of one fetch. ErrorReason is set exactly when
// Success is false.
type Result struct {
	Success       bool        `json:"success"`
	FinalURL      string      `json:"final_url"`
	StatusCode    int         `json:"status_code,omitempty"`
	ContentType   string      `json:"content_type,omitempty"`
	Title         string      `json:"title,omitempty"`
	BodyExcerpt   string      `json:"body_excerpt,omitempty"`
	ErrorReason   string      `json:"error_reason,omitempty"`
	FetchTimeMs   int64       `json:"fetch_time_ms"`
	RedirectCount int         `json:"redirect_count"`
	WasBlocked    bool        `json:"was_blocked"`
	FormActions   []string    `json:"form_actions,omitempty"`
	WAF           *waf.Result `json:"waf,omitempty"`

	// HTML is the decoded, size-capped document.
	HTML string `json:"-"`
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithResolver replaces the DNS resolver used for SSRF validation.
func WithResolver(r Resolver) Option {
	return func(f *Fetcher) { f.resolver = r }
}

// WithAddressPolicy replaces the check deciding which IPs are off limits.
// The default is IsPrivateIP.
func WithAddressPolicy(blocked func(net.IP) bool) Option {
	return func(f *Fetcher) { f.blockedIP = blocked }
}

// Fetcher is safe for concurrent use.
type Fetcher struct {
	cfg       Config
	client    *http.Client
	resolver  Resolver
	blockedIP func(net.IP) bool
	limiter   *rate.Limiter
	logger    logrus.FieldLogger
}

// New builds a Fetcher. Zero fields in cfg fall back to DefaultConfig.
func New(cfg Config, logger logrus.FieldLogger, opts ...Option) *Fetcher {
	cfg = withDefaults(cfg)
	f := &Fetcher{
		cfg:       cfg,
		resolver:  net.DefaultResolver,
		blockedIP: IsPrivateIP,
		limiter:   rate.NewLimiter(rate.Inf, 1),
		logger:    logger,
	}
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	for _, opt := range opts {
		opt(f)
	}

	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
		Control:   f.dialControl,
	}
	transport := &http.Transport{
		Proxy:                 nil,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.TLSTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConns:          50,
		IdleConnTimeout:       30 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	f.client = &http.Client{
		Transport: transport,
		// Redirects are followed by hand so every hop is validated
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return f
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.TLSTimeout <= 0 {
		cfg.TLSTimeout = def.TLSTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.TotalTimeout <= 0 {
		cfg.TotalTimeout = def.TotalTimeout
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = def.MaxRedirects
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	return cfg
}

// Fetch retrieves rawURL. It never returns an error: every failure is
// reported through Result.ErrorReason.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, f.cfg.TotalTimeout)
	defer cancel()

	result := f.fetch(ctx, rawURL)
	result.FetchTimeMs = time.Since(start).Milliseconds()
	result.Success = result.ErrorReason == ""

	entry := f.logger.WithFields(logrus.Fields{
		"url":            rawURL,
		"final_url":      result.FinalURL,
		"status":         result.StatusCode,
		"redirects":      result.RedirectCount,
		"fetch_time_ms":  result.FetchTimeMs,
		"was_blocked":    result.WasBlocked,
		"content_length": len(result.HTML),
	})
	if result.ErrorReason != "" {
		entry.WithField("reason", result.ErrorReason).Info("Fetch failed")
	} else {
		entry.Debug("Fetch complete")
	}
	return result
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) Result {
	result := Result{FinalURL: rawURL}

	current, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		result.ErrorReason = ReasonInvalidURL
		return result
	}

	for {
		if reason := f.validateTarget(ctx, current); reason != "" {
			result.ErrorReason = reason
			return result
		}
		if err := f.limiter.Wait(ctx); err != nil {
			result.ErrorReason = ReasonTimeoutUnknown
			return result
		}

		resp, err := f.do(ctx, current)
		if err != nil {
			result.ErrorReason = classifyError(err)
			return result
		}
		result.StatusCode = resp.StatusCode
		result.ContentType = resp.Header.Get("Content-Type")

		if isRedirect(resp.StatusCode) {
			location := resp.Header.Get("Location")
			drain(resp)
			if location == "" {
				result.ErrorReason = httpErrorReason(resp.StatusCode)
				return result
			}
			next, err := current.Parse(location)
			if err != nil {
				result.ErrorReason = ReasonInvalidURL
				return result
			}
			result.RedirectCount++
			if result.RedirectCount > f.cfg.MaxRedirects {
				result.ErrorReason = ReasonTooManyRedirects
				return result
			}
			current = next
			result.FinalURL = next.String()
			continue
		}

		f.handleFinal(resp, current, &result)
		return result
	}
}

func (f *Fetcher) do(ctx context.Context, u *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")
	return f.client.Do(req)
}

// handleFinal fills result from the last, non-redirect response.
func (f *Fetcher) handleFinal(resp *http.Response, u *url.URL, result *Result) {
	defer resp.Body.Close()
	status := resp.StatusCode

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusUnavailableForLegalReasons:
		result.WasBlocked = true
		result.ErrorReason = ReasonBlockedBySite
		f.classifyRefusal(resp, result)
		return

	case status == http.StatusTooManyRequests:
		result.WasBlocked = true
		result.ErrorReason = ReasonRateLimited
		f.classifyRefusal(resp, result)
		return

	case status != http.StatusOK:
		result.ErrorReason = httpErrorReason(status)
		// Challenge pages are often served as 503
		f.classifyRefusal(resp, result)
		if result.WAF != nil && result.WAF.Blocking() {
			result.WasBlocked = true
			result.ErrorReason = ReasonBlockedBySite
		}
		return
	}

	if !strings.Contains(strings.ToLower(result.ContentType), "text/html") {
		result.ErrorReason = ReasonNotHTML
		return
	}

	raw, err := f.readBody(resp, f.cfg.MaxBodyBytes)
	if err != nil {
		result.ErrorReason = classifyError(err)
		return
	}
	body := decode(raw, result.ContentType)
	result.HTML = body

	p := extractPage(body, u)
	result.Title = p.title
	result.BodyExcerpt = p.excerpt
	result.FormActions = p.formActions

	w := waf.Classify(body, status)
	result.WAF = &w
	if w.Blocking() {
		result.WasBlocked = true
	}
}

// classifyRefusal reads a bounded slice of a non-200 body for WAF detection.
// Read failures leave the original reason in place.
func (f *Fetcher) classifyRefusal(resp *http.Response, result *Result) {
	raw, err := f.readBody(resp, blockedBodyBytes)
	if err != nil && len(raw) == 0 {
		return
	}
	body := decode(raw, result.ContentType)
	if body == "" {
		return
	}
	w := waf.Classify(body, resp.StatusCode)
	result.WAF = &w
	result.HTML = body
}

// readBody reads at most limit bytes, enforcing the read timeout on the
// whole body rather than per read call.
func (f *Fetcher) readBody(resp *http.Response, limit int64) ([]byte, error) {
	var timedOut atomic.Bool
	timer := time.AfterFunc(f.cfg.ReadTimeout, func() {
		timedOut.Store(true)
		resp.Body.Close()
	})
	defer timer.Stop()

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil && timedOut.Load() {
		return data, errReadTimeout
	}
	return data, err
}

// decode converts raw to UTF-8 using the declared or sniffed charset.
func decode(raw []byte, contentType string) string {
	if len(raw) == 0 {
		return ""
	}
	r, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return string(raw)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	resp.Body.Close()
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}
