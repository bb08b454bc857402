package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/NotARoomba/canvas/internal/platform/logger"
)

func TestGenerateImage(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	var got imagesGenerationRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/generations" {
			t.Errorf("path: %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"b64_json": base64.StdEncoding.EncodeToString(png)}},
		})
	}))
	defer srv.Close()

	c := NewClient(logger.Nop(), Config{APIKey: "k", BaseURL: srv.URL, ImageModel: "gpt-image-1", ImageSize: "1024x1024", ImageQuality: "low"})
	img, err := c.GenerateImage(context.Background(), "un volcán")
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if got.N != 1 || got.Size != "1024x1024" || got.Quality != "low" || got.Model != "gpt-image-1" {
		t.Fatalf("request: %+v", got)
	}
	if string(img.Bytes) != string(png) || img.MimeType != "image/png" {
		t.Fatalf("image: %+v", img)
	}
	want := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	if img.DataURL() != want {
		t.Fatalf("DataURL: %s", img.DataURL())
	}
}

func TestGenerateImageMissingKey(t *testing.T) {
	c := NewClient(logger.Nop(), Config{ImageModel: "gpt-image-1"})
	if _, err := c.GenerateImage(context.Background(), "x"); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestGenerateImageDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"content policy"}}`))
	}))
	defer srv.Close()

	c := NewClient(logger.Nop(), Config{APIKey: "k", BaseURL: srv.URL, ImageModel: "gpt-image-1", MaxRetries: 3})
	_, err := c.GenerateImage(context.Background(), "x")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 HTTPError, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("client error should not be retried, calls=%d", calls)
	}
}

func TestGenerateImageEmptyPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c := NewClient(logger.Nop(), Config{APIKey: "k", BaseURL: srv.URL, ImageModel: "gpt-image-1"})
	if _, err := c.GenerateImage(context.Background(), "x"); err == nil {
		t.Fatalf("expected error for empty data")
	}
}
