package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seoforge/seoforge/pkg/batch"
	"github.com/seoforge/seoforge/pkg/config"
	"github.com/seoforge/seoforge/pkg/models"
)

// HTTPProvider talks to one keyword-metrics vendor over JSON HTTP. All calls
// pass through the per-provider batcher; quota is accounted locally with
// atomic counters so auto-selection never needs a network round trip.
type HTTPProvider struct {
	cfg     config.MetricsProviderConfig
	apiKey  string
	client  *http.Client
	batcher *batch.Batcher
	logger  *slog.Logger

	quotaUsed   atomic.Int64
	lastLatency atomic.Int64 // nanoseconds
	unhealthy   atomic.Bool

	resetMu sync.Mutex
	resetAt time.Time
}

// NewHTTPProvider builds a vendor client from configuration. The API key is
// read from the environment variable named in the config.
func NewHTTPProvider(cfg config.MetricsProviderConfig, logger *slog.Logger) *HTTPProvider {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPProvider{
		cfg:     cfg,
		apiKey:  os.Getenv(cfg.APIKeyEnv),
		client:  &http.Client{Timeout: timeout},
		batcher: batch.New(cfg.Name, cfg.Batcher, logger),
		logger:  logger.With("component", "provider", "provider", cfg.Name),
		resetAt: time.Now().Add(cfg.QuotaResetInterval),
	}
}

// Name implements Provider.
func (p *HTTPProvider) Name() string { return p.cfg.Name }

// CostPerRequest implements Provider.
func (p *HTTPProvider) CostPerRequest() float64 { return p.cfg.CostPerRequest }

// wire types shared by the metrics endpoints.

type metricsRequest struct {
	Phrase   string   `json:"phrase,omitempty"`
	Phrases  []string `json:"phrases,omitempty"`
	Market   string   `json:"market,omitempty"`
	Language string   `json:"language,omitempty"`
}

type wireRecord struct {
	Phrase      string   `json:"phrase"`
	Volume      *int64   `json:"volume"`
	Difficulty  *float64 `json:"difficulty"`
	Competition *float64 `json:"competition"`

	// Scale is the vendor's difficulty/competition ceiling (100 when
	// omitted). Values are rescaled to 0..100.
	Scale float64 `json:"scale,omitempty"`

	CPC         *float64 `json:"cpc"`
	Trend       *float64 `json:"trend"`
	TopSERPURLs []string `json:"top_serp_urls,omitempty"`
	Error       string   `json:"error,omitempty"`
}

type bulkResponse struct {
	Records []wireRecord `json:"records"`
}

type suggestionsResponse struct {
	Phrases []string `json:"phrases"`
}

// GetKeywordMetrics implements Provider.
func (p *HTTPProvider) GetKeywordMetrics(ctx context.Context, phrase string, opts MetricsOptions) (*MetricsRecord, error) {
	if err := p.acquireQuota(1); err != nil {
		return nil, err
	}
	record, err := batch.Submit(ctx, p.batcher, func(ctx context.Context) (*wireRecord, error) {
		var out wireRecord
		if err := p.post(ctx, "/v1/metrics", metricsRequest{
			Phrase: phrase, Market: opts.Market, Language: opts.Language,
		}, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		p.compensateQuota(err, 1)
		return nil, err
	}
	return p.normalize(record), nil
}

// GetBulkKeywordMetrics implements Provider. One request covers the whole
// batch; the vendor reports per-phrase errors inline.
func (p *HTTPProvider) GetBulkKeywordMetrics(ctx context.Context, phrases []string, opts MetricsOptions) ([]BulkResult, error) {
	if len(phrases) == 0 {
		return nil, nil
	}
	if err := p.acquireQuota(1); err != nil {
		return nil, err
	}
	resp, err := batch.Submit(ctx, p.batcher, func(ctx context.Context) (*bulkResponse, error) {
		var out bulkResponse
		if err := p.post(ctx, "/v1/metrics/bulk", metricsRequest{
			Phrases: phrases, Market: opts.Market, Language: opts.Language,
		}, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		p.compensateQuota(err, 1)
		return nil, err
	}

	byPhrase := make(map[string]*wireRecord, len(resp.Records))
	for i := range resp.Records {
		byPhrase[models.NormalizePhrase(resp.Records[i].Phrase)] = &resp.Records[i]
	}

	results := make([]BulkResult, len(phrases))
	for i, phrase := range phrases {
		record, ok := byPhrase[models.NormalizePhrase(phrase)]
		switch {
		case !ok:
			results[i] = BulkResult{Err: NewProviderError(p.cfg.Name, KindPermanent,
				fmt.Errorf("no record returned for %q", phrase))}
		case record.Error != "":
			results[i] = BulkResult{Err: NewProviderError(p.cfg.Name, KindPermanent,
				fmt.Errorf("vendor error for %q: %s", phrase, record.Error))}
		default:
			results[i] = BulkResult{Record: p.normalize(record)}
		}
	}
	return results, nil
}

// GetKeywordSuggestions implements Provider.
func (p *HTTPProvider) GetKeywordSuggestions(ctx context.Context, seed string, opts SuggestOptions) ([]string, error) {
	if err := p.acquireQuota(1); err != nil {
		return nil, err
	}
	resp, err := batch.Submit(ctx, p.batcher, func(ctx context.Context) (*suggestionsResponse, error) {
		q := url.Values{"seed": {seed}}
		if opts.Limit > 0 {
			q.Set("limit", strconv.Itoa(opts.Limit))
		}
		if opts.Market != "" {
			q.Set("market", opts.Market)
		}
		var out suggestionsResponse
		if err := p.get(ctx, "/v1/suggestions?"+q.Encode(), &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		p.compensateQuota(err, 1)
		return nil, err
	}
	phrases := resp.Phrases
	if opts.Limit > 0 && len(phrases) > opts.Limit {
		phrases = phrases[:opts.Limit]
	}
	return phrases, nil
}

// Health implements Provider.
func (p *HTTPProvider) Health(context.Context) HealthStatus {
	used := p.quotaUsed.Load()
	remaining := p.cfg.QuotaLimit - used
	if remaining < 0 {
		remaining = 0
	}
	return HealthStatus{
		Provider:       p.cfg.Name,
		Healthy:        !p.unhealthy.Load() && remaining > 0,
		QuotaUsed:      used,
		QuotaLimit:     p.cfg.QuotaLimit,
		QuotaRemaining: remaining,
		ResetAt:        p.currentResetAt(),
		LastLatency:    time.Duration(p.lastLatency.Load()),
	}
}

// Probe performs a lightweight reachability check, used by the background
// health monitor.
func (p *HTTPProvider) Probe(ctx context.Context) error {
	err := p.get(ctx, "/v1/health", &struct{}{})
	p.unhealthy.Store(err != nil)
	return err
}

// acquireQuota decrements the window quota before dispatch.
func (p *HTTPProvider) acquireQuota(n int64) error {
	p.maybeResetWindow()
	if p.quotaUsed.Add(n) > p.cfg.QuotaLimit {
		p.quotaUsed.Add(-n)
		return NewProviderError(p.cfg.Name, KindQuota,
			fmt.Errorf("quota exhausted (%d per %s)", p.cfg.QuotaLimit, p.cfg.QuotaResetInterval))
	}
	return nil
}

// compensateQuota refunds quota consumed by a call that never completed
// upstream. Permanent rejections still count against the window.
func (p *HTTPProvider) compensateQuota(err error, n int64) {
	if batch.IsRetryable(err) {
		p.quotaUsed.Add(-n)
	}
}

func (p *HTTPProvider) maybeResetWindow() {
	p.resetMu.Lock()
	defer p.resetMu.Unlock()
	if p.cfg.QuotaResetInterval > 0 && time.Now().After(p.resetAt) {
		p.quotaUsed.Store(0)
		p.resetAt = time.Now().Add(p.cfg.QuotaResetInterval)
	}
}

func (p *HTTPProvider) currentResetAt() time.Time {
	p.resetMu.Lock()
	defer p.resetMu.Unlock()
	return p.resetAt
}

func (p *HTTPProvider) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return NewProviderError(p.cfg.Name, KindPermanent, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return NewProviderError(p.cfg.Name, KindPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return p.send(req, out)
}

func (p *HTTPProvider) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+path, nil)
	if err != nil {
		return NewProviderError(p.cfg.Name, KindPermanent, err)
	}
	return p.send(req, out)
}

func (p *HTTPProvider) send(req *http.Request, out any) error {
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return NewProviderError(p.cfg.Name, KindTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()
	p.lastLatency.Store(int64(time.Since(start)))

	if kind, failed := classifyStatus(resp.StatusCode); failed {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if kind == KindAuth {
			p.unhealthy.Store(true)
		}
		return NewProviderError(p.cfg.Name, kind,
			fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, body))
	}
	p.unhealthy.Store(false)

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewProviderError(p.cfg.Name, KindPermanent,
			fmt.Errorf("malformed response: %w", err))
	}
	return nil
}

func classifyStatus(status int) (ErrorKind, bool) {
	switch {
	case status < 400:
		return "", false
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth, true
	case status == http.StatusTooManyRequests:
		return KindTransient, true
	case status >= 500:
		return KindTransient, true
	default:
		return KindPermanent, true
	}
}

// normalize converts a wire record to the provider-neutral shape, rescaling
// difficulty and competition to 0..100.
func (p *HTTPProvider) normalize(w *wireRecord) *MetricsRecord {
	scale := w.Scale
	if scale <= 0 {
		scale = 100
	}
	record := &MetricsRecord{
		Phrase:      models.NormalizePhrase(w.Phrase),
		Volume:      w.Volume,
		CPC:         w.CPC,
		Trend:       w.Trend,
		TopSERPURLs: w.TopSERPURLs,
		Source:      p.cfg.Name,
		Confidence:  1.0,
	}
	if w.Difficulty != nil {
		record.Difficulty = rescale(*w.Difficulty, scale)
	}
	if w.Competition != nil {
		record.Competition = rescale(*w.Competition, scale)
	}
	return record
}

func rescale(value, scale float64) *int {
	v := int(value / scale * 100)
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return &v
}
