package fetcher

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Error reasons reported in Result.ErrorReason
const (
	ReasonInvalidURL        = "invalid_url"
	ReasonBlockedBySSRF     = "blocked_by_ssrf"
	ReasonTooManyRedirects  = "too_many_redirects"
	ReasonBlockedBySite     = "blocked_by_site"
	ReasonRateLimited       = "rate_limited"
	ReasonNotHTML           = "not_html"
	ReasonTimeoutConnect    = "fetch_timeout_stage_connect"
	ReasonTimeoutRead       = "fetch_timeout_stage_read"
	ReasonTimeoutUnknown    = "fetch_timeout_stage_unknown"
	ReasonDNS               = "fetch_error_dns"
	ReasonConnectionRefused = "fetch_error_connection_refused"
	ReasonConnectionReset   = "fetch_error_connection_reset"
	ReasonTLS               = "fetch_error_tls"
	ReasonRequest           = "fetch_error_request"
)

var errReadTimeout = errors.New("body read timed out")

func errorReason(kind string) string {
	return "fetch_error_" + kind
}

func httpErrorReason(status int) string {
	return fmt.Sprintf("http_error_%d", status)
}

// IsTimeout reports whether reason is one of the staged timeout reasons.
func IsTimeout(reason string) bool {
	return strings.HasPrefix(reason, "fetch_timeout_")
}

// IsFetchError reports whether reason is a transport-level failure.
func IsFetchError(reason string) bool {
	return strings.HasPrefix(reason, "fetch_error_")
}

// classifyError maps a transport error onto a stable reason string.
func classifyError(err error) string {
	if errors.Is(err, errBlockedAddress) {
		return ReasonBlockedBySSRF
	}
	if errors.Is(err, errReadTimeout) {
		return ReasonTimeoutRead
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" && opErr.Timeout() {
		return ReasonTimeoutConnect
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "TLS handshake timeout"):
		return ReasonTimeoutConnect
	case strings.Contains(msg, "timeout awaiting response headers"):
		return ReasonTimeoutRead
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ReasonDNS
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeoutUnknown
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeoutUnknown
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return ReasonConnectionRefused
	case errors.Is(err, syscall.ECONNRESET):
		return ReasonConnectionReset
	}

	var certErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var invalidCert x509.CertificateInvalidError
	var recordErr tls.RecordHeaderError
	switch {
	case errors.As(err, &certErr),
		errors.As(err, &unknownAuth),
		errors.As(err, &hostnameErr),
		errors.As(err, &invalidCert),
		errors.As(err, &recordErr):
		return ReasonTLS
	case strings.Contains(msg, "tls:"):
		return ReasonTLS
	}

	return ReasonRequest
}
