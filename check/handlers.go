package check

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/scheott/safe/reputation"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// maxRequestBody caps POST bodies; a batch of URLs fits well within it.
const maxRequestBody = 1 << 20

type CheckRequest struct {
	URL string `json:"url"`
}

type BatchRequest struct {
	URLs []string `json:"urls"`
}

type BatchResponse struct {
	Count   int        `json:"count"`
	Results []Response `json:"results"`
}

type StatsResponse struct {
	Reputation reputation.StoreStats `json:"reputation"`
	Checks     Counters              `json:"checks"`
	Tier1      bool                  `json:"tier1_enabled"`
	Fetching   bool                  `json:"fetching_enabled"`
}

type RouterConfig struct {
	RequestTimeout time.Duration
	MaxBatchURLs   int
	// APIRateLimit is requests per second for the whole process; 0 disables it.
	APIRateLimit float64
}

// Handler serves the check API.
type Handler struct {
	svc    *Service
	store  *reputation.Store
	cfg    RouterConfig
	logger logrus.FieldLogger
}

func NewHandler(svc *Service, store *reputation.Store, cfg RouterConfig, logger logrus.FieldLogger) *Handler {
	if cfg.MaxBatchURLs <= 0 {
		cfg.MaxBatchURLs = 50
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	return &Handler{
		svc:    svc,
		store:  store,
		cfg:    cfg,
		logger: logger.WithField("component", "http"),
	}
}

// Routes returns the chi router with middleware and every endpoint mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)
	if h.cfg.APIRateLimit > 0 {
		burst := int(h.cfg.APIRateLimit)
		if burst < 1 {
			burst = 1
		}
		r.Use(limitRequests(rate.NewLimiter(rate.Limit(h.cfg.APIRateLimit), burst)))
	}

	r.Get("/healthz", h.Healthz)
	r.Get("/stats", h.Stats)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(h.cfg.RequestTimeout))
		r.Post("/check", h.Check)
		r.Post("/check/batch", h.CheckBatch)
		r.Post("/admin/reload", h.Reload)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, "method not allowed", http.StatusMethodNotAllowed)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, "not found", http.StatusNotFound)
	})
	return r
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := decodeBody(w, r, &req); err != nil {
		sendError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		sendError(w, "url required", http.StatusBadRequest)
		return
	}

	sendJSON(w, http.StatusOK, h.svc.Check(r.Context(), req.URL))
}

func (h *Handler) CheckBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := decodeBody(w, r, &req); err != nil {
		sendError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if len(req.URLs) == 0 {
		sendError(w, "urls required", http.StatusBadRequest)
		return
	}
	if len(req.URLs) > h.cfg.MaxBatchURLs {
		sendError(w, "too many urls in batch", http.StatusBadRequest)
		return
	}

	results := h.svc.CheckMany(r.Context(), req.URLs)
	sendJSON(w, http.StatusOK, BatchResponse{Count: len(results), Results: results})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, StatsResponse{
		Reputation: h.store.Stats(),
		Checks:     h.svc.Counters(),
		Tier1:      h.svc.reviewer != nil,
		Fetching:   h.svc.fetcher != nil,
	})
}

// Reload rebuilds the reputation snapshot. On failure the old data keeps
// serving and the error is reported.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Reload(r.Context()); err != nil {
		sendError(w, "reload failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	sendJSON(w, http.StatusOK, h.store.Stats())
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.logger.WithFields(logrus.Fields{
			"request_id":  middleware.GetReqID(r.Context()),
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"remote":      r.RemoteAddr,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("Request served")
	})
}

func limitRequests(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				sendError(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	return json.NewDecoder(r.Body).Decode(out)
}

func sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, message string, status int) {
	sendJSON(w, status, map[string]string{"error": message})
}
