package wikipedia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/NotARoomba/canvas/internal/platform/envutil"
	"github.com/NotARoomba/canvas/internal/platform/logger"
	"github.com/NotARoomba/canvas/internal/platform/ratelimit"
)

const DefaultBaseURL = "https://es.wikipedia.org"

var ErrNotFound = errors.New("wikipedia page not found")

// Client reads pages and media metadata from a MediaWiki site.
type Client interface {
	// PageImages lists the file names (namespace prefix stripped) used on a page.
	PageImages(ctx context.Context, title string) ([]string, error)
	// ImageURL resolves a file name to its upload URL.
	ImageURL(ctx context.Context, fileName string) (string, error)
	// PageSource returns the page's wikitext.
	PageSource(ctx context.Context, title string) (string, error)
}

type Config struct {
	BaseURL string
	RPS     int
	Timeout time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL: envutil.String("WIKIPEDIA_BASE_URL", DefaultBaseURL),
		RPS:     envutil.Int("WIKIPEDIA_RPS", 5),
		Timeout: envutil.Seconds("WIKIPEDIA_TIMEOUT_SECONDS", 20*time.Second),
	}
}

type client struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
	limits     *ratelimit.Pool
	rpm        int
}

func NewClient(log *logger.Logger, cfg Config, limits *ratelimit.Pool) Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if limits == nil {
		limits = ratelimit.NewPool()
	}
	return &client{
		log:        log.With("service", "WikipediaClient"),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limits:     limits,
		rpm:        cfg.RPS * 60,
	}
}

// TitleFromURL returns the unescaped last path segment of a page URL,
// e.g. "https://es.wikipedia.org/wiki/Fotos%C3%ADntesis" -> "Fotosíntesis".
func TitleFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	path := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		path = u.EscapedPath()
	}
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	if t, err := url.PathUnescape(path); err == nil {
		path = t
	}
	return strings.TrimSpace(path)
}

// stripFileNamespace drops "File:"/"Archivo:"/"Imagen:" from a media title.
func stripFileNamespace(title string) string {
	for _, ns := range []string{"File:", "Archivo:", "Imagen:", "Image:"} {
		if strings.HasPrefix(title, ns) {
			return strings.TrimPrefix(title, ns)
		}
	}
	return title
}

type queryResponse struct {
	Query struct {
		Pages map[string]struct {
			Missing *string `json:"missing"`
			Images  []struct {
				Title string `json:"title"`
			} `json:"images"`
			ImageInfo []struct {
				URL string `json:"url"`
			} `json:"imageinfo"`
		} `json:"pages"`
	} `json:"query"`
}

func (c *client) PageImages(ctx context.Context, title string) ([]string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("page title required")
	}
	q := url.Values{}
	q.Set("action", "query")
	q.Set("titles", title)
	q.Set("prop", "images")
	q.Set("format", "json")

	var resp queryResponse
	if err := c.getJSON(ctx, "/w/api.php?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	out := []string{}
	for _, key := range sortedKeys(resp.Query.Pages) {
		page := resp.Query.Pages[key]
		for _, img := range page.Images {
			if name := strings.TrimSpace(stripFileNamespace(img.Title)); name != "" {
				out = append(out, name)
			}
		}
		break
	}
	return out, nil
}

func (c *client) ImageURL(ctx context.Context, fileName string) (string, error) {
	fileName = strings.TrimSpace(stripFileNamespace(fileName))
	if fileName == "" {
		return "", errors.New("file name required")
	}
	q := url.Values{}
	q.Set("action", "query")
	q.Set("titles", "File:"+fileName)
	q.Set("prop", "imageinfo")
	q.Set("iiprop", "url")
	q.Set("format", "json")

	var resp queryResponse
	if err := c.getJSON(ctx, "/w/api.php?"+q.Encode(), &resp); err != nil {
		return "", err
	}
	for _, key := range sortedKeys(resp.Query.Pages) {
		page := resp.Query.Pages[key]
		if len(page.ImageInfo) > 0 && strings.TrimSpace(page.ImageInfo[0].URL) != "" {
			return strings.TrimSpace(page.ImageInfo[0].URL), nil
		}
		break
	}
	return "", ErrNotFound
}

func (c *client) PageSource(ctx context.Context, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", errors.New("page title required")
	}
	var resp struct {
		Source string `json:"source"`
	}
	if err := c.getJSON(ctx, "/w/rest.php/v1/page/"+url.PathEscape(title), &resp); err != nil {
		return "", err
	}
	return resp.Source, nil
}

func (c *client) getJSON(ctx context.Context, pathAndQuery string, out any) error {
	if err := c.limits.Wait(ctx, "wikipedia", c.rpm); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathAndQuery, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "canvas-lessons/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("wikipedia http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("wikipedia decode: %w", err)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
