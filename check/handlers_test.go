package check

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/scheott/safe/reputation"
)

func newTestRouter(t *testing.T, store *reputation.Store, cfg RouterConfig) http.Handler {
	t.Helper()
	svc := NewService(store, nil, nil, Config{}, quietLogger())
	return NewHandler(svc, store, cfg, quietLogger()).Routes()
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body["error"]
}

func TestCheckEndpoint(t *testing.T) {
	h := newTestRouter(t, newTestStore(t), RouterConfig{})

	rec := serve(h, http.MethodPost, "/check", `{"url":"chase.tk"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s", ct)
	}

	var got Response
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Verdict != reputation.VerdictDanger {
		t.Errorf("Verdict = %s, want danger", got.Verdict)
	}
	if got.NormalizedURL != "http://chase.tk/" || got.CheckID == "" {
		t.Errorf("response = %+v", got)
	}
	if got.Meta.AnalysisMode != ModeDomainOnly {
		t.Errorf("mode = %s", got.Meta.AnalysisMode)
	}
}

func TestCheckEndpointRejectsBadInput(t *testing.T) {
	h := newTestRouter(t, newTestStore(t), RouterConfig{MaxBatchURLs: 2})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		err    string
	}{
		{"bad json", http.MethodPost, "/check", `{"url":`, http.StatusBadRequest, "invalid JSON body"},
		{"missing url", http.MethodPost, "/check", `{"url":"  "}`, http.StatusBadRequest, "url required"},
		{"empty batch", http.MethodPost, "/check/batch", `{"urls":[]}`, http.StatusBadRequest, "urls required"},
		{"batch too large", http.MethodPost, "/check/batch", `{"urls":["a.com","b.com","c.com"]}`, http.StatusBadRequest, "too many urls in batch"},
		{"wrong method", http.MethodGet, "/check", "", http.StatusMethodNotAllowed, "method not allowed"},
		{"unknown path", http.MethodGet, "/nope", "", http.StatusNotFound, "not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, tt.method, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if msg := errorMessage(t, rec); msg != tt.err {
				t.Errorf("error = %q, want %q", msg, tt.err)
			}
		})
	}
}

func TestBatchEndpoint(t *testing.T) {
	h := newTestRouter(t, newTestStore(t), RouterConfig{})

	rec := serve(h, http.MethodPost, "/check/batch", `{"urls":["https://www.google.com","chase.tk","http://"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var got BatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Count != 3 || len(got.Results) != 3 {
		t.Fatalf("Count = %d, results = %d", got.Count, len(got.Results))
	}
	want := []reputation.Verdict{reputation.VerdictOK, reputation.VerdictDanger, reputation.VerdictDanger}
	for i, r := range got.Results {
		if r.Verdict != want[i] {
			t.Errorf("result %d (%s) verdict = %s, want %s", i, r.URL, r.Verdict, want[i])
		}
	}
}

func TestStatsAndHealth(t *testing.T) {
	h := newTestRouter(t, newTestStore(t), RouterConfig{})

	if rec := serve(h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}

	serve(h, http.MethodPost, "/check", `{"url":"https://www.google.com"}`)

	rec := serve(h, http.MethodGet, "/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	var got StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Reputation.ReputableDomains == 0 || got.Reputation.Brands == 0 {
		t.Errorf("reputation stats = %+v", got.Reputation)
	}
	if got.Checks.Checks != 1 || got.Checks.Verdicts["ok"] != 1 {
		t.Errorf("check counters = %+v", got.Checks)
	}
	if got.Tier1 || got.Fetching {
		t.Errorf("Tier1 = %v Fetching = %v, want both off", got.Tier1, got.Fetching)
	}
}

func TestReloadEndpoint(t *testing.T) {
	dir := t.TempDir()
	entries, err := os.ReadDir(filepath.Join("..", "data"))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join("..", "data", e.Name()))
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, e.Name()), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	store, err := reputation.Load(context.Background(), reputation.DirSource{Dir: dir}, quietLogger())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	h := newTestRouter(t, store, RouterConfig{})

	if rec := serve(h, http.MethodPost, "/admin/reload", ""); rec.Code != http.StatusOK {
		t.Fatalf("reload status = %d: %s", rec.Code, rec.Body.String())
	}

	if err := os.Remove(filepath.Join(dir, reputation.BrandDomainsFile)); err != nil {
		t.Fatal(err)
	}
	rec := serve(h, http.MethodPost, "/admin/reload", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if msg := errorMessage(t, rec); !strings.HasPrefix(msg, "reload failed") {
		t.Errorf("error = %q", msg)
	}

	stats := store.Stats()
	if stats.Reloads != 1 || stats.FailedReloads != 1 || stats.Brands == 0 {
		t.Errorf("store stats after failed reload = %+v", stats)
	}

	rec = serve(h, http.MethodPost, "/check", `{"url":"chase.tk"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("check after failed reload status = %d", rec.Code)
	}
}

func TestAPIRateLimit(t *testing.T) {
	h := newTestRouter(t, newTestStore(t), RouterConfig{APIRateLimit: 1})

	first := serve(h, http.MethodGet, "/healthz", "")
	second := serve(h, http.MethodGet, "/healthz", "")
	if first.Code != http.StatusOK {
		t.Errorf("first status = %d", first.Code)
	}
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", second.Code)
	}
}
