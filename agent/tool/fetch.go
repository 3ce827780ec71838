package tool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
	"github.com/tanpawarit/theo-ai/pkg/httpx"
)

const (
	DefaultFetchMaxBytes int64 = 5 << 20
	DefaultFetchMaxChars       = 12000
)

type FetchOutput struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Content     string `json:"content"`
	ContentType string `json:"contentType,omitempty"`
	Truncated   bool   `json:"truncated,omitempty"`
	StatusCode  int    `json:"statusCode"`
}

// Fetcher downloads a page and extracts its readable text.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = httpx.NewClient()
	}
	return &Fetcher{client: client, maxBytes: DefaultFetchMaxBytes}
}

func (f *Fetcher) Fetch(ctx context.Context, rawURL string, maxChars int) (*FetchOutput, error) {
	target, err := normalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	if maxChars <= 0 {
		maxChars = DefaultFetchMaxChars
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url: %w", contractx.ErrValidation, err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web_fetch: request failed: %w", err)
	}
	defer httpx.DrainAndClose(resp.Body, 4096)

	if err := httpx.CheckStatus("web_fetch", resp, maxErrorBodyBytes); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("web_fetch: read body: %w", err)
	}

	out := &FetchOutput{
		URL:         resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}

	ct := strings.ToLower(out.ContentType)
	switch {
	case strings.Contains(ct, "text/html"), strings.Contains(ct, "application/xhtml"), ct == "" && looksLikeHTML(body):
		doc, err := html.Parse(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("web_fetch: parse html: %w", err)
		}
		page := extractPage(doc)
		out.Title, out.Description, out.Content = page.Title, page.Description, page.Text
	case utf8.Valid(body):
		out.Content = strings.TrimSpace(string(body))
	default:
		out.Content = fmt.Sprintf("binary content (%s), %d bytes", out.ContentType, len(body))
	}

	if utf8.RuneCountInString(out.Content) > maxChars {
		out.Content = truncateRunes(out.Content, maxChars)
		out.Truncated = true
	}
	return out, nil
}

func normalizeURL(raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", fmt.Errorf("%w: url is required", contractx.ErrValidation)
	}
	if !strings.Contains(v, "://") {
		v = "https://" + v
	}
	u, err := url.Parse(v)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: invalid url %q", contractx.ErrValidation, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported url scheme %q", contractx.ErrValidation, u.Scheme)
	}
	return u.String(), nil
}

func looksLikeHTML(body []byte) bool {
	head := bytes.ToLower(body[:min(len(body), 512)])
	return bytes.Contains(head, []byte("<html")) || bytes.Contains(head, []byte("<!doctype html"))
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
