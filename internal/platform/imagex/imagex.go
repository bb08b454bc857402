package imagex

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	MinThumbnailWidth = 16
	MaxThumbnailWidth = 1024
)

var ErrInvalidDataURL = errors.New("invalid data url")

// EncodeDataURL renders bytes as "data:<mime>;base64,<payload>".
func EncodeDataURL(mime string, data []byte) string {
	if strings.TrimSpace(mime) == "" {
		mime = http.DetectContentType(data)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL splits a base64 data URL into its mime type and bytes. A bare
// base64 payload without the "data:" header is accepted and sniffed.
func DecodeDataURL(s string) (string, []byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil, ErrInvalidDataURL
	}
	mime := ""
	payload := s
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return "", nil, ErrInvalidDataURL
		}
		header := s[len("data:"):comma]
		payload = s[comma+1:]
		if !strings.HasSuffix(header, ";base64") {
			return "", nil, fmt.Errorf("%w: only base64 payloads are supported", ErrInvalidDataURL)
		}
		mime = strings.TrimSuffix(header, ";base64")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return mime, data, nil
}

// Thumbnail scales the image to the given width keeping its aspect ratio.
// Images already narrower than width are returned unchanged. The output is
// PNG for PNG/GIF input and JPEG otherwise.
func Thumbnail(data []byte, width int) ([]byte, string, error) {
	if width < MinThumbnailWidth {
		width = MinThumbnailWidth
	}
	if width > MaxThumbnailWidth {
		width = MaxThumbnailWidth
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Dx() <= width {
		return data, http.DetectContentType(data), nil
	}

	resized := imaging.Resize(img, width, 0, imaging.Lanczos)

	var buf bytes.Buffer
	outFormat, mime := imaging.JPEG, "image/jpeg"
	if format == "png" || format == "gif" {
		outFormat, mime = imaging.PNG, "image/png"
	}
	if err := imaging.Encode(&buf, resized, outFormat, imaging.JPEGQuality(85)); err != nil {
		return nil, "", fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), mime, nil
}
