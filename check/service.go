// Package check runs the full per-URL pipeline (normalize, precheck,
// fetch, aggregate, escalate) and serves it over HTTP.
package check

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/scheott/safe/analyzer"
	"github.com/scheott/safe/fetcher"
	"github.com/scheott/safe/reputation"
	"github.com/scheott/safe/tier1"
	"github.com/scheott/safe/urlnorm"
	"github.com/scheott/safe/waf"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Analysis modes reported in Meta.
const (
	ModeFullContent       = "full_content"
	ModeDomainOnly        = "domain_only"
	ModeDomainOnlyBlocked = "domain_only_blocked"
	ModeReputablePrecheck = "reputable_precheck"
	ModeInvalid           = "invalid"
)

const ReasonInvalidURL = "invalid_url"

// Fetcher retrieves a page. *fetcher.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) fetcher.Result
}

type Response struct {
	CheckID         string             `json:"check_id"`
	URL             string             `json:"url"`
	NormalizedURL   string             `json:"normalized_url,omitempty"`
	Verdict         reputation.Verdict `json:"verdict"`
	Score           int                `json:"score"`
	Reasons         []string           `json:"reasons"`
	Summary         string             `json:"summary"`
	EscalateToTier1 bool               `json:"escalate_to_tier1"`
	Tier1           *Tier1Outcome      `json:"tier1,omitempty"`
	Details         *analyzer.Details  `json:"details,omitempty"`
	Meta            Meta               `json:"meta"`
}

type Tier1Outcome struct {
	Review *tier1.Review `json:"review,omitempty"`
	Error  string        `json:"error,omitempty"`
}

type Meta struct {
	AnalysisMode     string          `json:"analysis_mode"`
	Fetch            *fetcher.Result `json:"fetch,omitempty"`
	ProcessingTimeMs int64           `json:"processing_time_ms"`
}

type Config struct {
	Concurrency  int
	Tier1Timeout time.Duration
}

// Counters are process lifetime totals since start.
type Counters struct {
	Checks      int64            `json:"checks"`
	Verdicts    map[string]int64 `json:"verdicts"`
	Escalations int64            `json:"escalations"`
	Tier1Errors int64            `json:"tier1_errors"`
}

// Service checks URLs. A nil Fetcher means domain-only analysis; a nil
// Reviewer disables Tier-1.
type Service struct {
	snapshots analyzer.SnapshotSource
	analyzer  *analyzer.Analyzer
	fetcher   Fetcher
	reviewer  tier1.Reviewer
	cfg       Config
	logger    logrus.FieldLogger

	checks      atomic.Int64
	ok          atomic.Int64
	warning     atomic.Int64
	danger      atomic.Int64
	escalations atomic.Int64
	tier1Errors atomic.Int64
}

func NewService(snapshots analyzer.SnapshotSource, f Fetcher, reviewer tier1.Reviewer, cfg Config, logger logrus.FieldLogger) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Tier1Timeout <= 0 {
		cfg.Tier1Timeout = 8 * time.Second
	}
	return &Service{
		snapshots: snapshots,
		analyzer:  analyzer.New(snapshots, logger),
		fetcher:   f,
		reviewer:  reviewer,
		cfg:       cfg,
		logger:    logger.WithField("component", "check"),
	}
}

// Check runs one URL through the pipeline. It always returns a verdict.
func (s *Service) Check(ctx context.Context, rawURL string) (resp Response) {
	start := time.Now()
	resp = Response{
		CheckID: uuid.NewString(),
		URL:     rawURL,
	}
	defer func() {
		resp.Meta.ProcessingTimeMs = time.Since(start).Milliseconds()
	}()

	snap := s.snapshots.Snapshot()
	normalizer := urlnorm.New()
	thresholds := reputation.DefaultThresholds()
	if snap != nil {
		normalizer = urlnorm.New(snap.SuspiciousTLDs()...)
		thresholds = snap.Thresholds
	}

	norm, err := normalizer.Normalize(rawURL)
	if err != nil {
		resp.Verdict = reputation.VerdictDanger
		resp.Score = thresholds.Danger
		resp.Reasons = []string{ReasonInvalidURL}
		resp.Summary = "This is not a valid web address"
		resp.Meta.AnalysisMode = ModeInvalid
		s.record(resp)
		s.logger.WithError(err).WithFields(logrus.Fields{
			"check_id": resp.CheckID,
			"url":      rawURL,
		}).Info("Invalid URL")
		return resp
	}
	resp.NormalizedURL = norm.URL

	if result, ok := s.analyzer.Precheck(norm); ok {
		resp.Meta.AnalysisMode = ModeReputablePrecheck
		s.finish(&resp, result)
		return resp
	}

	mode := ModeDomainOnly
	var fetched *fetcher.Result
	if s.fetcher != nil {
		fr := s.fetcher.Fetch(ctx, norm.URL)
		fetched = &fr
		mode = analysisMode(fr)
		resp.Meta.Fetch = fetched
	}
	resp.Meta.AnalysisMode = mode

	result := s.analyzer.Analyze(analyzer.Input{
		URL:        rawURL,
		Normalized: &norm,
		Fetch:      fetched,
	})
	s.finish(&resp, result)

	if result.EscalateToTier1 && s.reviewer != nil {
		resp.Tier1 = s.review(ctx, resp, fetched)
	}
	return resp
}

func analysisMode(fr fetcher.Result) string {
	switch {
	case waf.IsBlockedResponse(fr.StatusCode, fr.WasBlocked, fr.HTML):
		return ModeDomainOnlyBlocked
	case fr.Success:
		return ModeFullContent
	default:
		return ModeDomainOnly
	}
}

func (s *Service) finish(resp *Response, result analyzer.Result) {
	resp.Verdict = result.Verdict
	resp.Score = result.Score
	resp.Reasons = result.Reasons
	resp.Summary = analyzer.Summary(result)
	resp.EscalateToTier1 = result.EscalateToTier1
	details := result.Details
	resp.Details = &details
	s.record(*resp)

	s.logger.WithFields(logrus.Fields{
		"check_id": resp.CheckID,
		"url":      resp.NormalizedURL,
		"verdict":  resp.Verdict,
		"score":    resp.Score,
		"mode":     resp.Meta.AnalysisMode,
	}).Info("Check complete")
}

func (s *Service) review(ctx context.Context, resp Response, fetched *fetcher.Result) *Tier1Outcome {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Tier1Timeout)
	defer cancel()

	req := tier1.Request{
		URL:     resp.NormalizedURL,
		Verdict: resp.Verdict,
		Score:   resp.Score,
		Reasons: resp.Reasons,
		Summary: resp.Summary,
	}
	if fetched != nil && fetched.Success {
		req.Title = fetched.Title
		req.Excerpt = fetched.BodyExcerpt
	}

	review, err := s.reviewer.Review(ctx, req)
	if err != nil {
		s.tier1Errors.Add(1)
		s.logger.WithError(err).WithField("check_id", resp.CheckID).Warn("Tier-1 review unavailable")
		return &Tier1Outcome{Error: err.Error()}
	}
	return &Tier1Outcome{Review: &review}
}

// CheckMany checks urls with bounded concurrency. Results keep input order.
func (s *Service) CheckMany(ctx context.Context, urls []string) []Response {
	results := make([]Response, len(urls))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, u := range urls {
		g.Go(func() error {
			results[i] = s.Check(ctx, u)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Service) record(resp Response) {
	s.checks.Add(1)
	switch resp.Verdict {
	case reputation.VerdictOK:
		s.ok.Add(1)
	case reputation.VerdictWarning:
		s.warning.Add(1)
	case reputation.VerdictDanger:
		s.danger.Add(1)
	}
	if resp.EscalateToTier1 {
		s.escalations.Add(1)
	}
}

func (s *Service) Counters() Counters {
	return Counters{
		Checks: s.checks.Load(),
		Verdicts: map[string]int64{
			string(reputation.VerdictOK):      s.ok.Load(),
			string(reputation.VerdictWarning): s.warning.Load(),
			string(reputation.VerdictDanger):  s.danger.Load(),
		},
		Escalations: s.escalations.Load(),
		Tier1Errors: s.tier1Errors.Load(),
	}
}
