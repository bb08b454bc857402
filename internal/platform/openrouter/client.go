package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/NotARoomba/canvas/internal/platform/envutil"
	"github.com/NotARoomba/canvas/internal/platform/httpx"
	"github.com/NotARoomba/canvas/internal/platform/logger"
	"github.com/NotARoomba/canvas/internal/platform/ratelimit"
)

const DefaultBaseURL = "https://openrouter.ai/api/v1"

// Schema is a strict JSON-schema response constraint. Name doubles as the
// cache key for the compiled validator, so one name must map to one definition.
type Schema struct {
	Name       string
	Definition map[string]any
}

type Request struct {
	Model  string
	Prompt string
	Schema *Schema
	// Images are https:// or data: URLs sent as image parts alongside Prompt.
	Images []string
}

type Client interface {
	// CompleteJSON sends a single user message and decodes the (fence-stripped,
	// schema-validated) reply into out.
	CompleteJSON(ctx context.Context, req Request, out any) error
}

type Config struct {
	APIKey     string
	BaseURL    string
	RPM        int
	Timeout    time.Duration
	MaxRetries int
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:     envutil.String("OPENROUTER_API_KEY", ""),
		BaseURL:    envutil.String("OPENROUTER_BASE_URL", DefaultBaseURL),
		RPM:        envutil.Int("OPENROUTER_RPM", 60),
		Timeout:    envutil.Seconds("OPENROUTER_TIMEOUT_SECONDS", 90*time.Second),
		MaxRetries: envutil.Int("OPENROUTER_MAX_RETRIES", 2),
	}
}

type client struct {
	log        *logger.Logger
	api        *openai.Client
	hasKey     bool
	limits     *ratelimit.Pool
	rpm        int
	maxRetries int
}

// NewClient never fails on a missing key: the server still starts and each
// call reports ErrMissingAPIKey, which the lesson pipeline treats as fatal.
func NewClient(log *logger.Logger, cfg Config, limits *ratelimit.Pool) Client {
	serviceLog := log.With("service", "OpenRouterClient")
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		serviceLog.Warn("OPENROUTER_API_KEY not set; chat completions will fail")
	}
	config := openai.DefaultConfig(key)
	config.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.HTTPClient = &http.Client{
		Timeout:   cfg.Timeout,
		Transport: retryAfterTransport{base: http.DefaultTransport},
	}
	if limits == nil {
		limits = ratelimit.NewPool()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &client{
		log:        serviceLog,
		api:        openai.NewClientWithConfig(config),
		hasKey:     key != "",
		limits:     limits,
		rpm:        cfg.RPM,
		maxRetries: maxRetries,
	}
}

func (c *client) CompleteJSON(ctx context.Context, req Request, out any) error {
	if !c.hasKey {
		return ErrMissingAPIKey
	}
	if strings.TrimSpace(req.Model) == "" {
		return errors.New("chat model required")
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: []openai.ChatCompletionMessage{userMessage(req)},
	}
	if req.Schema != nil {
		schemaBytes, err := json.Marshal(req.Schema.Definition)
		if err != nil {
			return fmt.Errorf("marshal schema: %w", err)
		}
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.Schema.Name,
				Schema: json.RawMessage(schemaBytes),
				Strict: true,
			},
		}
	}

	content, err := c.complete(ctx, chatReq)
	if err != nil {
		return err
	}

	raw := json.RawMessage(StripFences(content))
	if err := validateResponse(req.Schema, raw); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ErrInvalidResponse{Content: raw, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

func (c *client) complete(ctx context.Context, chatReq openai.ChatCompletionRequest) (string, error) {
	backoff := 1 * time.Second
	for attempt := 0; ; attempt++ {
		if err := c.limits.Wait(ctx, "openrouter:"+chatReq.Model, c.rpm); err != nil {
			return "", err
		}
		var retryAfter time.Duration
		resp, err := c.api.CreateChatCompletion(context.WithValue(ctx, retryAfterKey{}, &retryAfter), chatReq)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", &ErrInvalidResponse{Err: errors.New("no choices in response")}
			}
			return resp.Choices[0].Message.Content, nil
		}

		mapped := mapError(err, retryAfter)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !retryable(mapped) || attempt >= c.maxRetries {
			return "", mapped
		}

		sleepFor := backoff
		var rl *ErrRateLimit
		if errors.As(mapped, &rl) && rl.RetryAfter > 0 {
			sleepFor = rl.RetryAfter
		}
		if sleepFor > maxRetryAfter {
			sleepFor = maxRetryAfter
		}
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("OpenRouter request retrying",
			"model", chatReq.Model,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", mapped.Error(),
		)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return "", err
		}
		backoff *= 2
	}
}

func userMessage(req Request) openai.ChatCompletionMessage {
	if len(req.Images) == 0 {
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.Prompt,
		}
	}
	parts := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: req.Prompt,
	}}
	for _, u := range req.Images {
		if strings.TrimSpace(u) == "" {
			continue
		}
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    u,
				Detail: openai.ImageURLDetailLow,
			},
		})
	}
	return openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: parts,
	}
}

// StripFences removes a surrounding ```json ... ``` (or bare ```) block.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimPrefix(s, "JSON")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// maxRetryAfter caps a provider-requested wait.
const maxRetryAfter = 10 * time.Second

type retryAfterKey struct{}

// retryAfterTransport copies the Retry-After of a 429 into the
// *time.Duration stored on the request context. go-openai's error types
// do not carry response headers.
type retryAfterTransport struct {
	base http.RoundTripper
}

func (t retryAfterTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusTooManyRequests {
		return resp, err
	}
	if slot, ok := req.Context().Value(retryAfterKey{}).(*time.Duration); ok && slot != nil {
		*slot = httpx.RetryAfterDuration(resp, 0, maxRetryAfter)
	}
	return resp, nil
}

func mapError(err error, retryAfter time.Duration) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return &ErrRateLimit{RetryAfter: retryAfter, Err: err}
		case apiErr.HTTPStatusCode >= 500:
			return &ErrProviderUnavailable{Err: err}
		case apiErr.HTTPStatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", ErrMissingAPIKey, err)
		}
		return err
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.HTTPStatusCode == http.StatusTooManyRequests:
			return &ErrRateLimit{RetryAfter: retryAfter, Err: err}
		case reqErr.HTTPStatusCode >= 500:
			return &ErrProviderUnavailable{Err: err}
		}
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &ErrProviderUnavailable{Err: err}
}

func retryable(err error) bool {
	var rl *ErrRateLimit
	if errors.As(err, &rl) {
		return true
	}
	var unavail *ErrProviderUnavailable
	return errors.As(err, &unavail)
}
