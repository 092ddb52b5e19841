package check

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/scheott/safe/fetcher"
	"github.com/scheott/safe/reputation"
	"github.com/scheott/safe/tier1"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestStore(t *testing.T) *reputation.Store {
	t.Helper()
	store, err := reputation.Load(context.Background(), reputation.DirSource{Dir: filepath.Join("..", "data")}, quietLogger())
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	return store
}

type fakeFetcher struct {
	result fetcher.Result
	delay  time.Duration
	calls  atomic.Int64

	mu      sync.Mutex
	active  int
	maxSeen int
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) fetcher.Result {
	f.calls.Add(1)
	f.mu.Lock()
	f.active++
	if f.active > f.maxSeen {
		f.maxSeen = f.active
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.active--
	f.mu.Unlock()

	r := f.result
	if r.FinalURL == "" {
		r.FinalURL = rawURL
	}
	return r
}

type fakeReviewer struct {
	review tier1.Review
	err    error
	calls  atomic.Int64
	last   tier1.Request
}

func (r *fakeReviewer) Review(ctx context.Context, req tier1.Request) (tier1.Review, error) {
	r.calls.Add(1)
	r.last = req
	return r.review, r.err
}

func TestCheckInvalidURL(t *testing.T) {
	svc := NewService(newTestStore(t), nil, nil, Config{}, quietLogger())

	for _, raw := range []string{"", "http://"} {
		got := svc.Check(context.Background(), raw)
		if got.Verdict != reputation.VerdictDanger {
			t.Errorf("%q: Verdict = %s, want danger", raw, got.Verdict)
		}
		if len(got.Reasons) != 1 || got.Reasons[0] != ReasonInvalidURL {
			t.Errorf("%q: Reasons = %v", raw, got.Reasons)
		}
		if got.Meta.AnalysisMode != ModeInvalid {
			t.Errorf("%q: mode = %s", raw, got.Meta.AnalysisMode)
		}
		if got.CheckID == "" {
			t.Errorf("%q: missing check id", raw)
		}
	}
}

func TestCheckReputablePrecheckSkipsFetch(t *testing.T) {
	f := &fakeFetcher{result: fetcher.Result{Success: true}}
	svc := NewService(newTestStore(t), f, nil, Config{}, quietLogger())

	got := svc.Check(context.Background(), "https://www.google.com/search?q=weather&utm_source=mail")
	if got.Verdict != reputation.VerdictOK {
		t.Errorf("Verdict = %s, want ok", got.Verdict)
	}
	if got.Meta.AnalysisMode != ModeReputablePrecheck {
		t.Errorf("mode = %s", got.Meta.AnalysisMode)
	}
	if f.calls.Load() != 0 {
		t.Errorf("fetcher called %d times", f.calls.Load())
	}
	if got.NormalizedURL != "https://www.google.com/search?q=weather" {
		t.Errorf("NormalizedURL = %s", got.NormalizedURL)
	}
}

func TestCheckAnalysisModes(t *testing.T) {
	tests := []struct {
		name  string
		fetch *fetcher.Result
		mode  string
	}{
		{"offline", nil, ModeDomainOnly},
		{"page fetched", &fetcher.Result{
			Success: true, StatusCode: 200, Title: "Grandma's Recipes", BodyExcerpt: "Apple pie with cinnamon.",
		}, ModeFullContent},
		{"site refused", &fetcher.Result{
			StatusCode: 403, WasBlocked: true, ErrorReason: fetcher.ReasonBlockedBySite,
		}, ModeDomainOnlyBlocked},
		{"rate limited", &fetcher.Result{
			StatusCode: 429, WasBlocked: true, ErrorReason: fetcher.ReasonRateLimited,
		}, ModeDomainOnlyBlocked},
		{"timed out", &fetcher.Result{
			ErrorReason: fetcher.ReasonTimeoutConnect,
		}, ModeDomainOnly},
	}

	store := newTestStore(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Fetcher
			if tt.fetch != nil {
				f = &fakeFetcher{result: *tt.fetch}
			}
			svc := NewService(store, f, nil, Config{}, quietLogger())

			got := svc.Check(context.Background(), "https://wholesome-recipes.net/pie")
			if got.Meta.AnalysisMode != tt.mode {
				t.Errorf("mode = %s, want %s", got.Meta.AnalysisMode, tt.mode)
			}
			if (got.Meta.Fetch != nil) != (tt.fetch != nil) {
				t.Errorf("Meta.Fetch = %v", got.Meta.Fetch)
			}
			if got.Summary == "" {
				t.Error("empty summary")
			}
		})
	}
}

func TestCheckEscalatesToTier1(t *testing.T) {
	reviewer := &fakeReviewer{review: tier1.Review{
		Verdict:     reputation.VerdictDanger,
		Explanation: "Imitates Google.",
		Model:       "test",
	}}
	svc := NewService(newTestStore(t), nil, reviewer, Config{}, quietLogger())

	got := svc.Check(context.Background(), "g00gle.com")
	if got.Verdict != reputation.VerdictWarning || !got.EscalateToTier1 {
		t.Fatalf("Verdict = %s escalate = %v, want escalated warning", got.Verdict, got.EscalateToTier1)
	}
	if got.Tier1 == nil || got.Tier1.Review == nil {
		t.Fatalf("Tier1 = %+v", got.Tier1)
	}
	if got.Tier1.Review.Verdict != reputation.VerdictDanger {
		t.Errorf("Tier1 verdict = %s", got.Tier1.Review.Verdict)
	}
	if reviewer.last.URL != "http://g00gle.com/" || reviewer.last.Score != got.Score {
		t.Errorf("review request = %+v", reviewer.last)
	}

	c := svc.Counters()
	if c.Checks != 1 || c.Escalations != 1 || c.Verdicts["warning"] != 1 {
		t.Errorf("Counters = %+v", c)
	}
}

func TestCheckTier1FailureKeepsVerdict(t *testing.T) {
	reviewer := &fakeReviewer{err: errors.New("quota exceeded")}
	svc := NewService(newTestStore(t), nil, reviewer, Config{}, quietLogger())

	got := svc.Check(context.Background(), "g00gle.com")
	if got.Verdict != reputation.VerdictWarning {
		t.Errorf("Verdict = %s", got.Verdict)
	}
	if got.Tier1 == nil || got.Tier1.Error != "quota exceeded" || got.Tier1.Review != nil {
		t.Errorf("Tier1 = %+v", got.Tier1)
	}
	if svc.Counters().Tier1Errors != 1 {
		t.Error("tier1 error not counted")
	}
}

func TestCheckSkipsTier1WhenNotEscalated(t *testing.T) {
	reviewer := &fakeReviewer{}
	svc := NewService(newTestStore(t), nil, reviewer, Config{}, quietLogger())

	got := svc.Check(context.Background(), "https://wholesome-recipes.net/")
	if got.Verdict != reputation.VerdictOK || got.EscalateToTier1 {
		t.Errorf("Verdict = %s escalate = %v", got.Verdict, got.EscalateToTier1)
	}
	if reviewer.calls.Load() != 0 || got.Tier1 != nil {
		t.Error("reviewer called for a clean URL")
	}
}

func TestCheckManyKeepsOrder(t *testing.T) {
	f := &fakeFetcher{
		result: fetcher.Result{Success: true, StatusCode: 200, Title: "Hello"},
		delay:  20 * time.Millisecond,
	}
	svc := NewService(newTestStore(t), f, nil, Config{Concurrency: 2}, quietLogger())

	urls := []string{
		"https://wholesome-recipes.net/a",
		"http://",
		"https://quiet-bakery.com/",
		"https://www.google.com/",
		"https://wholesome-recipes.net/b",
		"https://quiet-bakery.xyz/",
	}
	got := svc.CheckMany(context.Background(), urls)
	if len(got) != len(urls) {
		t.Fatalf("len = %d", len(got))
	}
	for i, r := range got {
		if r.URL != urls[i] {
			t.Errorf("result %d URL = %s, want %s", i, r.URL, urls[i])
		}
	}
	if got[1].Verdict != reputation.VerdictDanger {
		t.Errorf("invalid URL verdict = %s", got[1].Verdict)
	}
	if f.maxSeen > 2 {
		t.Errorf("max concurrent fetches = %d, want <= 2", f.maxSeen)
	}
}

func TestCheckWithLiveFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, `<html><head><title>Knitting Club</title></head><body><p>Meetings every Tuesday.</p></body></html>`)
	}))
	defer srv.Close()

	allowLoopback := func(ip net.IP) bool {
		if ip != nil && ip.IsLoopback() {
			return false
		}
		return fetcher.IsPrivateIP(ip)
	}
	f := fetcher.New(fetcher.DefaultConfig(), quietLogger(), fetcher.WithAddressPolicy(allowLoopback))
	svc := NewService(newTestStore(t), f, nil, Config{}, quietLogger())

	got := svc.Check(context.Background(), srv.URL)
	if got.Meta.AnalysisMode != ModeFullContent {
		t.Fatalf("mode = %s, fetch = %+v", got.Meta.AnalysisMode, got.Meta.Fetch)
	}
	if got.Meta.Fetch.Title != "Knitting Club" {
		t.Errorf("Title = %q", got.Meta.Fetch.Title)
	}
	if got.Details == nil || got.Details.Technical == nil {
		t.Error("technical details missing")
	}
}
