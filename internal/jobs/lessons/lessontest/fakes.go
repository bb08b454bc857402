// Package lessontest holds in-memory stand-ins for the generative services,
// shared by the step and pipeline tests.
package lessontest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/NotARoomba/canvas/internal/platform/openai"
	"github.com/NotARoomba/canvas/internal/platform/openrouter"
	"github.com/NotARoomba/canvas/internal/platform/wikipedia"
)

// ChatHandler answers one schema. Returning a string sends it verbatim as the
// model reply; anything else is JSON encoded first.
type ChatHandler func(req openrouter.Request) (any, error)

// Chat routes CompleteJSON calls by schema name.
type Chat struct {
	mu       sync.Mutex
	Handlers map[string]ChatHandler
	Calls    []openrouter.Request
}

func NewChat() *Chat {
	return &Chat{Handlers: map[string]ChatHandler{}}
}

func (c *Chat) On(schema string, h ChatHandler) *Chat {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Handlers[schema] = h
	return c
}

func (c *Chat) CompleteJSON(ctx context.Context, req openrouter.Request, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := ""
	if req.Schema != nil {
		name = req.Schema.Name
	}
	c.mu.Lock()
	c.Calls = append(c.Calls, req)
	h := c.Handlers[name]
	c.mu.Unlock()
	if h == nil {
		return fmt.Errorf("no chat handler for schema %q", name)
	}
	v, err := h(req)
	if err != nil {
		return err
	}
	var raw []byte
	if s, ok := v.(string); ok {
		raw = []byte(s)
	} else if raw, err = json.Marshal(v); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &openrouter.ErrInvalidResponse{Content: json.RawMessage(raw), Err: err}
	}
	return nil
}

// CallsFor returns the recorded requests for one schema.
func (c *Chat) CallsFor(schema string) []openrouter.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []openrouter.Request
	for _, r := range c.Calls {
		if r.Schema != nil && r.Schema.Name == schema {
			out = append(out, r)
		}
	}
	return out
}

// Images generates a fixed PNG unless Fail says otherwise.
type Images struct {
	mu      sync.Mutex
	Prompts []string
	Fail    func(prompt string) error
}

func (f *Images) GenerateImage(ctx context.Context, prompt string) (openai.ImageGeneration, error) {
	f.mu.Lock()
	f.Prompts = append(f.Prompts, prompt)
	fail := f.Fail
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return openai.ImageGeneration{}, err
	}
	if fail != nil {
		if err := fail(prompt); err != nil {
			return openai.ImageGeneration{}, err
		}
	}
	return openai.ImageGeneration{Bytes: PNG(), MimeType: "image/png"}, nil
}

// TTS returns Audio for every script unless Err is set.
type TTS struct {
	mu      sync.Mutex
	Scripts []string
	Audio   []byte
	Err     error
	// Block, when set, makes Synthesize wait for it or for ctx.
	Block chan struct{}
}

func (f *TTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	f.Scripts = append(f.Scripts, text)
	block := f.Block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	if len(f.Audio) == 0 {
		return []byte("ID3-fake-mp3"), nil
	}
	return f.Audio, nil
}

// Calls counts Synthesize calls so far.
func (f *TTS) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Scripts)
}

// Wiki serves pages from maps keyed by page title and file name.
type Wiki struct {
	Images  map[string][]string
	URLs    map[string]string
	Sources map[string]string
	Err     error
}

func (w *Wiki) PageImages(ctx context.Context, title string) ([]string, error) {
	if w.Err != nil {
		return nil, w.Err
	}
	names, ok := w.Images[title]
	if !ok {
		return nil, wikipedia.ErrNotFound
	}
	return names, nil
}

func (w *Wiki) ImageURL(ctx context.Context, fileName string) (string, error) {
	if w.Err != nil {
		return "", w.Err
	}
	u, ok := w.URLs[fileName]
	if !ok {
		return "", wikipedia.ErrNotFound
	}
	return u, nil
}

func (w *Wiki) PageSource(ctx context.Context, title string) (string, error) {
	if w.Err != nil {
		return "", w.Err
	}
	s, ok := w.Sources[title]
	if !ok {
		return "", wikipedia.ErrNotFound
	}
	return s, nil
}

// OutlineReply builds an "outline" schema reply from (title, media_type) pairs.
func OutlineReply(title string, entries ...[2]string) map[string]any {
	outline := make([]map[string]any, 0, len(entries))
	for i, e := range entries {
		outline = append(outline, map[string]any{
			"title":      e[0],
			"media_type": e[1],
			"prompt":     fmt.Sprintf("p%d", i+1),
			"speech":     fmt.Sprintf("s%d", i+1),
		})
	}
	return map[string]any{
		"title":       title,
		"description": "descripción de " + title,
		"outline":     outline,
	}
}

var (
	pngOnce  sync.Once
	pngBytes []byte
)

// PNG is a small valid PNG image.
func PNG() []byte {
	pngOnce.Do(func() {
		img := image.NewNRGBA(image.Rect(0, 0, 64, 48))
		for y := 0; y < 48; y++ {
			for x := 0; x < 64; x++ {
				img.Set(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 5), B: 128, A: 255})
			}
		}
		var buf bytes.Buffer
		_ = png.Encode(&buf, img)
		pngBytes = buf.Bytes()
	})
	return append([]byte(nil), pngBytes...)
}
