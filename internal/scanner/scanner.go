// Package scanner turns equipment photos into normalized label scans and
// condition analyses by calling the vision model.
package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/xMathyu/hvac-scanner/internal/config"
	"github.com/xMathyu/hvac-scanner/internal/model"
	"github.com/xMathyu/hvac-scanner/internal/monitoring"
	"github.com/xMathyu/hvac-scanner/internal/normalize"
	"github.com/xMathyu/hvac-scanner/internal/resilience"
	"github.com/xMathyu/hvac-scanner/internal/store"
	"github.com/xMathyu/hvac-scanner/pkg/anthropic"
)

const (
	opLabelScan = "label_scan"
	opAnalysis  = "equipment_analysis"
)

// Config holds the scanner settings.
type Config struct {
	Model       string
	MaxTokens   int64
	Temperature float64
	CacheTTL    string

	ConfidenceThreshold  float64
	PersistLowConfidence bool

	MaxImageBytes int64
	MaxImages     int
	DedupeTTL     time.Duration
	Timeout       time.Duration
	Retry         resilience.RetryPolicy
}

// ConfigFrom builds scanner settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	r := cfg.Scanner.Retry
	return Config{
		Model:                cfg.Anthropic.Model,
		MaxTokens:            cfg.Anthropic.MaxTokens,
		Temperature:          cfg.Anthropic.Temperature,
		CacheTTL:             cfg.Anthropic.CacheTTL,
		ConfidenceThreshold:  cfg.Scanner.ConfidenceThreshold,
		PersistLowConfidence: cfg.Scanner.PersistLowConfidence,
		MaxImageBytes:        cfg.Scanner.MaxImageBytes,
		MaxImages:            cfg.Scanner.MaxImages,
		DedupeTTL:            cfg.Scanner.DedupeTTL(),
		Timeout:              cfg.Scanner.Timeout(),
		Retry: resilience.RetryPolicy{
			MaxAttempts:    r.MaxAttempts,
			InitialBackoff: time.Duration(r.InitialBackoffMs) * time.Millisecond,
			MaxBackoff:     time.Duration(r.MaxBackoffMs) * time.Millisecond,
			Multiplier:     r.Multiplier,
			JitterFraction: r.JitterFraction,
		},
	}
}

// ScanOptions controls what happens to a label scan after normalization.
type ScanOptions struct {
	// Persist saves the scanned equipment record, subject to the
	// low-confidence policy.
	Persist  bool
	Location string
	Notes    string
}

// ScanResult is a normalized label scan plus the policy decisions taken on it.
type ScanResult struct {
	Outcome     *model.LabelScanOutcome `json:"outcome"`
	NeedsReview bool                    `json:"needsReview"`
	Persisted   bool                    `json:"persisted"`
	Duplicate   bool                    `json:"duplicate"`
}

// Service runs label scans, equipment analyses and report processing.
type Service struct {
	client  anthropic.Client
	store   store.Store
	cfg     Config
	breaker *resilience.Breaker
	recent  *cache.Cache
	now     func() time.Time

	persistMu sync.Mutex
}

// New creates a scanner. st may be nil when nothing is persisted (CLI
// one-off scans); breaker may be nil to use a default one.
func New(client anthropic.Client, st store.Store, cfg Config, breaker *resilience.Breaker) *Service {
	if breaker == nil {
		breaker = resilience.NewBreaker(0, 0, nil)
	}
	ttl := cfg.DedupeTTL
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &Service{
		client:  client,
		store:   st,
		cfg:     cfg,
		breaker: breaker,
		recent:  cache.New(ttl, 2*ttl),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// BreakerState reports the vision model circuit breaker state.
func (s *Service) BreakerState() resilience.BreakerState {
	return s.breaker.State()
}

// ScanLabel reads an equipment nameplate. A result below the confidence
// threshold is flagged for review and, unless PersistLowConfidence is set,
// not persisted.
func (s *Service) ScanLabel(ctx context.Context, images []Image, opts ScanOptions) (*ScanResult, error) {
	if err := s.checkImages(images); err != nil {
		return nil, err
	}

	key := fingerprint(opLabelScan, images)
	if s.cfg.DedupeTTL > 0 {
		if cached, ok := s.recent.Get(key); ok {
			monitoring.DuplicateScansTotal.WithLabelValues(opLabelScan).Inc()
			return s.replayScan(ctx, key, cached.(*ScanResult), opts)
		}
	}

	requestedAt := s.now()
	text, err := s.callModel(ctx, opLabelScan, labelSystemPrompt, labelUserPrompt, images)
	if err != nil {
		return nil, err
	}

	outcome, err := normalize.NormalizeLabelScan(text, requestedAt)
	if err != nil {
		monitoring.ParseFailuresTotal.WithLabelValues(opLabelScan).Inc()
		monitoring.ScansTotal.WithLabelValues(opLabelScan, "parse_error").Inc()
		return nil, eris.Wrap(err, "scanner: normalize label scan")
	}
	monitoring.ScanConfidence.Observe(outcome.Confidence)

	result := &ScanResult{
		Outcome:     outcome,
		NeedsReview: outcome.LowConfidence(s.cfg.ConfidenceThreshold),
	}
	outcomeLabel := "ok"
	if result.NeedsReview {
		outcomeLabel = "low_confidence"
		zap.L().Info("scanner: low confidence label scan",
			zap.Float64("confidence", outcome.Confidence),
			zap.Float64("threshold", s.cfg.ConfidenceThreshold),
		)
	}
	monitoring.ScansTotal.WithLabelValues(opLabelScan, outcomeLabel).Inc()

	if opts.Persist && s.store != nil && s.mayPersist(result) {
		if err := s.persist(ctx, &outcome.Equipment, opts); err != nil {
			return nil, err
		}
		result.Persisted = true
	}

	if s.cfg.DedupeTTL > 0 {
		s.recent.SetDefault(key, result)
	}
	return result, nil
}

// replayScan answers a repeated submission from the dedupe cache. A repeat
// that asks to persist a result the first submission only previewed saves it
// now, with the repeat's location and notes. A result that is already
// stored is never saved twice.
func (s *Service) replayScan(ctx context.Context, key string, cached *ScanResult, opts ScanOptions) (*ScanResult, error) {
	if !opts.Persist || cached.Persisted || s.store == nil || !s.mayPersist(cached) {
		dup := *cached
		dup.Duplicate = true
		return &dup, nil
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	// Another request may have persisted it while we waited.
	if current, ok := s.recent.Get(key); ok && current.(*ScanResult).Persisted {
		dup := *current.(*ScanResult)
		dup.Duplicate = true
		return &dup, nil
	}

	outcome := *cached.Outcome
	if err := s.persist(ctx, &outcome.Equipment, opts); err != nil {
		return nil, err
	}
	stored := &ScanResult{Outcome: &outcome, NeedsReview: cached.NeedsReview, Persisted: true}
	s.recent.SetDefault(key, stored)

	dup := *stored
	dup.Duplicate = true
	return &dup, nil
}

func (s *Service) persist(ctx context.Context, rec *model.EquipmentRecord, opts ScanOptions) error {
	rec.Location = opts.Location
	rec.Notes = opts.Notes
	if err := s.store.CreateEquipment(ctx, rec); err != nil {
		return eris.Wrap(err, "scanner: persist scanned equipment")
	}
	return nil
}

// AnalyzeEquipment inspects equipment photos for visible failures.
func (s *Service) AnalyzeEquipment(ctx context.Context, images []Image) (*model.EquipmentAnalysis, error) {
	if err := s.checkImages(images); err != nil {
		return nil, err
	}

	key := fingerprint(opAnalysis, images)
	if s.cfg.DedupeTTL > 0 {
		if cached, ok := s.recent.Get(key); ok {
			monitoring.DuplicateScansTotal.WithLabelValues(opAnalysis).Inc()
			return cached.(*model.EquipmentAnalysis), nil
		}
	}

	text, err := s.callModel(ctx, opAnalysis, analysisSystemPrompt, analysisUserPrompt, images)
	if err != nil {
		return nil, err
	}

	analysis, err := normalize.NormalizeEquipmentAnalysis(text)
	if err != nil {
		monitoring.ParseFailuresTotal.WithLabelValues(opAnalysis).Inc()
		monitoring.ScansTotal.WithLabelValues(opAnalysis, "parse_error").Inc()
		return nil, eris.Wrap(err, "scanner: normalize equipment analysis")
	}
	monitoring.ScansTotal.WithLabelValues(opAnalysis, "ok").Inc()

	if s.cfg.DedupeTTL > 0 {
		s.recent.SetDefault(key, analysis)
	}
	return analysis, nil
}

func (s *Service) mayPersist(r *ScanResult) bool {
	return !r.NeedsReview || s.cfg.PersistLowConfidence
}

// callModel sends the images with a cached system prompt and returns the
// response text. Transient API failures are retried; every attempt passes
// through the circuit breaker.
func (s *Service) callModel(ctx context.Context, operation, system, prompt string, images []Image) (string, error) {
	req := anthropic.MessageRequest{
		Model:     s.cfg.Model,
		MaxTokens: s.cfg.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(system, s.cfg.CacheTTL),
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt, Images: toImageBlocks(images)},
		},
	}
	if s.cfg.Temperature > 0 {
		t := s.cfg.Temperature
		req.Temperature = &t
	}

	policy := s.cfg.Retry
	policy.OnRetry = resilience.RetryLogger(operation)

	start := time.Now()
	resp, err := resilience.DoVal(ctx, policy, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.Call(ctx, s.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return s.createMessage(ctx, req)
		})
	})
	monitoring.VisionLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	monitoring.BreakerState.Set(float64(s.breaker.State()))

	if err != nil {
		monitoring.ScansTotal.WithLabelValues(operation, "model_error").Inc()
		return "", eris.Wrapf(err, "scanner: %s", operation)
	}

	resp.Usage.LogCost(s.cfg.Model, operation)
	monitoring.VisionCostUSD.WithLabelValues(s.cfg.Model, operation).Add(resp.Usage.EstimateCost(s.cfg.Model))

	if resp.StopReason == "max_tokens" {
		zap.L().Warn("scanner: model response truncated",
			zap.String("operation", operation),
			zap.Int64("max_tokens", s.cfg.MaxTokens),
		)
	}
	return resp.Text(), nil
}

func (s *Service) createMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	resp, err := s.client.CreateMessage(ctx, req)
	if err != nil {
		if anthropic.IsRetryable(err) {
			return nil, resilience.Transient(err, anthropic.StatusCode(err))
		}
		return nil, err
	}
	return resp, nil
}
