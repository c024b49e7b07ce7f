package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/seoforge/seoforge/pkg/batch"
	"github.com/seoforge/seoforge/pkg/config"
	"github.com/seoforge/seoforge/pkg/models"
	"github.com/seoforge/seoforge/pkg/provider"
)

// clientName labels LLM failures and batcher metrics.
const clientName = "llm"

// HTTPClient talks to an OpenAI-compatible chat completions endpoint. Calls
// go through a dedicated batcher with its own rate limit and circuit breaker.
type HTTPClient struct {
	cfg     config.LLMConfig
	apiKey  string
	client  *http.Client
	batcher *batch.Batcher
	logger  *slog.Logger
}

// NewHTTPClient builds the client from configuration. The API key is read
// from the environment variable named in the config.
func NewHTTPClient(cfg config.LLMConfig, logger *slog.Logger) *HTTPClient {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		cfg:     cfg,
		apiKey:  os.Getenv(cfg.APIKeyEnv),
		client:  &http.Client{Timeout: timeout},
		batcher: batch.New(clientName, cfg.Batcher, logger),
		logger:  logger.With("component", "llm"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// Expand implements Client.
func (c *HTTPClient) Expand(ctx context.Context, req ExpansionRequest) ([]ExpandedPhrase, Usage, error) {
	user := map[string]any{
		"seeds": req.Seeds,
		"limit": req.Limit,
	}
	if req.Market != "" {
		user["market"] = req.Market
	}
	if req.Language != "" {
		user["language"] = req.Language
	}
	if len(req.Avoid) > 0 {
		user["avoid"] = req.Avoid
	}

	var out struct {
		Phrases []ExpandedPhrase `json:"phrases"`
	}
	usage, err := c.complete(ctx, expansionSystemPrompt, user, &out)
	if err != nil {
		return nil, usage, err
	}

	phrases := out.Phrases
	if req.Limit > 0 && len(phrases) > req.Limit {
		phrases = phrases[:req.Limit]
	}
	for i := range phrases {
		phrases[i].Phrase = models.NormalizePhrase(phrases[i].Phrase)
	}
	return phrases, usage, nil
}

// ClassifyIntents implements Client.
func (c *HTTPClient) ClassifyIntents(ctx context.Context, phrases []string) ([]IntentResult, Usage, error) {
	var out struct {
		Intents []IntentResult `json:"intents"`
	}
	usage, err := c.complete(ctx, intentSystemPrompt, map[string]any{"phrases": phrases}, &out)
	if err != nil {
		return nil, usage, err
	}
	for i := range out.Intents {
		out.Intents[i].Phrase = models.NormalizePhrase(out.Intents[i].Phrase)
		if !validIntent(out.Intents[i].Intent) {
			out.Intents[i].Intent = models.IntentUnknown
		}
	}
	return out.Intents, usage, nil
}

// SuggestLabel implements Client.
func (c *HTTPClient) SuggestLabel(ctx context.Context, phrases []string) (string, Usage, error) {
	var out struct {
		Label string `json:"label"`
	}
	usage, err := c.complete(ctx, labelSystemPrompt, map[string]any{"phrases": phrases}, &out)
	if err != nil {
		return "", usage, err
	}
	return strings.TrimSpace(out.Label), usage, nil
}

// complete performs one JSON-mode chat completion and decodes the message
// content into out.
func (c *HTTPClient) complete(ctx context.Context, system string, user any, out any) (Usage, error) {
	userJSON, err := json.Marshal(user)
	if err != nil {
		return Usage{}, provider.NewProviderError(clientName, provider.KindPermanent, err)
	}

	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: string(userJSON)},
		},
	}
	body.ResponseFormat.Type = "json_object"

	resp, err := batch.Submit(ctx, c.batcher, func(ctx context.Context) (*chatResponse, error) {
		return c.post(ctx, body)
	})
	if err != nil {
		return Usage{}, err
	}

	usage := Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	usage.Cost = float64(usage.Tokens()) / 1000 * c.cfg.CostPer1KTokens

	if len(resp.Choices) == 0 {
		return usage, provider.NewProviderError(clientName, provider.KindPermanent,
			fmt.Errorf("empty completion"))
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), out); err != nil {
		// Malformed model output is permanent: retrying the identical
		// prompt reproduces it.
		return usage, provider.NewProviderError(clientName, provider.KindPermanent,
			fmt.Errorf("malformed completion JSON: %w", err))
	}
	return usage, nil
}

func (c *HTTPClient) post(ctx context.Context, body chatRequest) (*chatResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, provider.NewProviderError(clientName, provider.KindPermanent, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, provider.NewProviderError(clientName, provider.KindPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
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

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, provider.NewProviderError(clientName, provider.KindPermanent,
			fmt.Errorf("malformed response: %w", err))
	}
	return &out, nil
}

func validIntent(intent models.Intent) bool {
	for _, known := range models.AllIntents {
		if intent == known {
			return true
		}
	}
	return false
}
