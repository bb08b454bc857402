package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/NotARoomba/canvas/internal/platform/envutil"
	"github.com/NotARoomba/canvas/internal/platform/logger"
)

const (
	DefaultBaseURL      = "https://api.elevenlabs.io"
	DefaultVoiceID      = "86V9x9hrQds83qf7zaGn"
	DefaultModelID      = "eleven_flash_v2_5"
	DefaultOutputFormat = "mp3_22050_32"
)

var ErrMissingAPIKey = errors.New("missing ELEVENLABS_API_KEY")

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("elevenlabs http %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// Client turns narration text into audio bytes.
type Client interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type Config struct {
	APIKey       string
	BaseURL      string
	VoiceID      string
	ModelID      string
	OutputFormat string
	Timeout      time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:       envutil.String("ELEVENLABS_API_KEY", ""),
		BaseURL:      envutil.String("ELEVENLABS_BASE_URL", DefaultBaseURL),
		VoiceID:      envutil.String("ELEVENLABS_VOICE_ID", DefaultVoiceID),
		ModelID:      envutil.String("ELEVENLABS_MODEL_ID", DefaultModelID),
		OutputFormat: envutil.String("ELEVENLABS_OUTPUT_FORMAT", DefaultOutputFormat),
		Timeout:      envutil.Seconds("ELEVENLABS_TIMEOUT_SECONDS", 60*time.Second),
	}
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type client struct {
	log          *logger.Logger
	apiKey       string
	baseURL      string
	voiceID      string
	modelID      string
	outputFormat string
	httpClient   *http.Client
}

func NewClient(log *logger.Logger, cfg Config) Client {
	serviceLog := log.With("service", "ElevenLabsClient")
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		serviceLog.Warn("ELEVENLABS_API_KEY not set; narration will fail")
	}
	c := &client{
		log:          serviceLog,
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		voiceID:      strings.TrimSpace(cfg.VoiceID),
		modelID:      strings.TrimSpace(cfg.ModelID),
		outputFormat: strings.TrimSpace(cfg.OutputFormat),
		httpClient:   &http.Client{Timeout: cfg.Timeout},
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.voiceID == "" {
		c.voiceID = DefaultVoiceID
	}
	if c.modelID == "" {
		c.modelID = DefaultModelID
	}
	if c.outputFormat == "" {
		c.outputFormat = DefaultOutputFormat
	}
	if cfg.Timeout <= 0 {
		c.httpClient.Timeout = 60 * time.Second
	}
	return c
}

func (c *client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("narration text required")
	}

	body, err := json.Marshal(ttsRequest{
		Text:    text,
		ModelID: c.modelID,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Style:           0,
		},
	})
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("optimize_streaming_latency", "0")
	q.Set("output_format", c.outputFormat)
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?%s", c.baseURL, url.PathEscape(c.voiceID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(raw)
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: msg}
	}
	if len(raw) == 0 {
		return nil, errors.New("empty audio response")
	}
	return raw, nil
}
