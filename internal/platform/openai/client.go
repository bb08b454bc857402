package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/NotARoomba/canvas/internal/platform/envutil"
	"github.com/NotARoomba/canvas/internal/platform/httpx"
	"github.com/NotARoomba/canvas/internal/platform/logger"
)

var ErrMissingAPIKey = errors.New("missing OPENAI_API_KEY")

type ImageGeneration struct {
	Bytes         []byte
	MimeType      string
	RevisedPrompt string
}

// DataURL renders the image as "data:<mime>;base64,<payload>".
func (g ImageGeneration) DataURL() string {
	mime := g.MimeType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(g.Bytes)
}

// Client generates raster images.
type Client interface {
	GenerateImage(ctx context.Context, prompt string) (ImageGeneration, error)
}

type Config struct {
	APIKey       string
	BaseURL      string
	ImageModel   string
	ImageSize    string
	ImageQuality string
	Timeout      time.Duration
	MaxRetries   int
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:       envutil.String("OPENAI_API_KEY", ""),
		BaseURL:      envutil.String("OPENAI_BASE_URL", "https://api.openai.com"),
		ImageModel:   envutil.String("OPENAI_IMAGE_MODEL", "gpt-image-1"),
		ImageSize:    envutil.String("OPENAI_IMAGE_SIZE", "1024x1024"),
		ImageQuality: envutil.String("OPENAI_IMAGE_QUALITY", "low"),
		Timeout:      envutil.Seconds("OPENAI_TIMEOUT_SECONDS", 180*time.Second),
		MaxRetries:   envutil.Int("OPENAI_MAX_RETRIES", 2),
	}
}

type client struct {
	log          *logger.Logger
	baseURL      string
	apiKey       string
	imageModel   string
	imageSize    string
	imageQuality string
	httpClient   *http.Client
	maxRetries   int
}

// NewClient builds the image client. A missing key is reported per call
// (ErrMissingAPIKey) rather than at construction.
func NewClient(log *logger.Logger, cfg Config) Client {
	serviceLog := log.With("service", "OpenAIClient")
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		serviceLog.Warn("OPENAI_API_KEY not set; image generation will fail")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &client{
		log:          serviceLog,
		baseURL:      baseURL,
		apiKey:       apiKey,
		imageModel:   strings.TrimSpace(cfg.ImageModel),
		imageSize:    strings.TrimSpace(cfg.ImageSize),
		imageQuality: strings.TrimSpace(cfg.ImageQuality),
		httpClient:   &http.Client{Timeout: timeout},
		maxRetries:   maxRetries,
	}
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w", uErr)
			}
			return nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return err
		}
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

type imagesGenerationRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	N       int    `json:"n"`
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
}

type imagesGenerationResponse struct {
	Data []struct {
		B64JSON       string `json:"b64_json"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

func (c *client) GenerateImage(ctx context.Context, prompt string) (ImageGeneration, error) {
	var out ImageGeneration
	if c.apiKey == "" {
		return out, ErrMissingAPIKey
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return out, errors.New("image prompt required")
	}
	if c.imageModel == "" {
		return out, errors.New("missing OPENAI_IMAGE_MODEL")
	}

	req := imagesGenerationRequest{
		Model:   c.imageModel,
		Prompt:  prompt,
		N:       1,
		Size:    c.imageSize,
		Quality: c.imageQuality,
	}

	var resp imagesGenerationResponse
	if err := c.do(ctx, http.MethodPost, "/v1/images/generations", req, &resp); err != nil {
		return out, err
	}
	if len(resp.Data) == 0 {
		return out, errors.New("no image returned")
	}
	item := resp.Data[0]
	b64 := strings.TrimSpace(item.B64JSON)
	if b64 == "" {
		return out, errors.New("image response missing b64_json")
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return out, fmt.Errorf("decode image base64: %w", err)
	}
	if len(raw) == 0 {
		return out, errors.New("decoded image is empty")
	}
	out.Bytes = raw
	out.MimeType = "image/png"
	out.RevisedPrompt = strings.TrimSpace(item.RevisedPrompt)
	return out, nil
}
