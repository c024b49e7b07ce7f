package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/seoforge/seoforge/pkg/batch"
	"github.com/seoforge/seoforge/pkg/config"
	"github.com/seoforge/seoforge/pkg/models"
	"github.com/seoforge/seoforge/pkg/provider"
)

// clientName labels embedding failures and batcher metrics.
const clientName = "embedding"

// HTTPProvider calls an OpenAI-compatible embeddings endpoint through a
// dedicated batcher.
type HTTPProvider struct {
	cfg     config.EmbeddingConfig
	apiKey  string
	client  *http.Client
	batcher *batch.Batcher
	logger  *slog.Logger
}

// NewHTTPProvider builds the provider from configuration.
func NewHTTPProvider(cfg config.EmbeddingConfig, logger *slog.Logger) *HTTPProvider {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPProvider{
		cfg:     cfg,
		apiKey:  os.Getenv(cfg.APIKeyEnv),
		client:  &http.Client{Timeout: timeout},
		batcher: batch.New(clientName, cfg.Batcher, logger),
		logger:  logger.With("component", "embedding"),
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed implements Provider.
func (p *HTTPProvider) Embed(ctx context.Context, phrases []string) ([][]float32, error) {
	if len(phrases) == 0 {
		return nil, nil
	}
	resp, err := batch.Submit(ctx, p.batcher, func(ctx context.Context) (*embedResponse, error) {
		return p.post(ctx, phrases)
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(phrases) {
		return nil, provider.NewProviderError(clientName, provider.KindPermanent,
			fmt.Errorf("expected %d vectors, got %d", len(phrases), len(resp.Data)))
	}
	out := make([][]float32, len(phrases))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, provider.NewProviderError(clientName, provider.KindPermanent,
				fmt.Errorf("vector index %d out of range", d.Index))
		}
		if len(d.Embedding) != models.EmbeddingDimensions {
			return nil, provider.NewProviderError(clientName, provider.KindPermanent,
				fmt.Errorf("vector has %d dimensions, want %d", len(d.Embedding), models.EmbeddingDimensions))
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func (p *HTTPProvider) post(ctx context.Context, phrases []string) (*embedResponse, error) {
	payload, err := json.Marshal(embedRequest{Model: p.cfg.Model, Input: phrases})
	if err != nil {
		return nil, provider.NewProviderError(clientName, provider.KindPermanent, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, provider.NewProviderError(clientName, provider.KindPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, provider.NewProviderError(clientName, provider.KindTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		kind := provider.KindPermanent
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			kind = provider.KindAuth
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			kind = provider.KindTransient
		}
		return nil, provider.NewProviderError(clientName, kind,
			fmt.Errorf("status %d: %s", resp.StatusCode, raw))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, provider.NewProviderError(clientName, provider.KindPermanent,
			fmt.Errorf("malformed response: %w", err))
	}
	return &out, nil
}
