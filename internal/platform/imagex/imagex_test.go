package imagex

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestDataURLRoundTrip(t *testing.T) {
	raw := testPNG(t, 4, 4)
	u := EncodeDataURL("image/png", raw)
	mime, got, err := DecodeDataURL(u)
	if err != nil {
		t.Fatalf("DecodeDataURL: %v", err)
	}
	if mime != "image/png" || !bytes.Equal(got, raw) {
		t.Fatalf("mime=%s len=%d", mime, len(got))
	}
}

func TestDecodeDataURLErrors(t *testing.T) {
	for _, in := range []string{"", "data:image/png;base64", "data:image/png,abc", "data:image/png;base64,@@@"} {
		if _, _, err := DecodeDataURL(in); !errors.Is(err, ErrInvalidDataURL) {
			t.Fatalf("DecodeDataURL(%q): expected ErrInvalidDataURL, got %v", in, err)
		}
	}
}

func TestThumbnail(t *testing.T) {
	raw := testPNG(t, 200, 100)
	out, mime, err := Thumbnail(raw, 50)
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	if mime != "image/png" {
		t.Fatalf("mime: %s", mime)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if cfg.Width != 50 || cfg.Height != 25 {
		t.Fatalf("size: %dx%d", cfg.Width, cfg.Height)
	}

	same, _, err := Thumbnail(raw, 400)
	if err != nil || !bytes.Equal(same, raw) {
		t.Fatalf("wider request should return original")
	}
}
