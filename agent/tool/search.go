package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/tanpawarit/theo-ai/pkg/httpx"
)

const (
	ProviderDuckDuckGo = "duckduckgo"
	ProviderBrave      = "brave"

	defaultDuckDuckGoURL = "https://html.duckduckgo.com/html/"
	defaultBraveURL      = "https://api.search.brave.com/res/v1/web/search"
	maxSearchBodyBytes   = 2 << 20
	maxErrorBodyBytes    = 512
)

type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

type SearchOutput struct {
	Provider string         `json:"provider"`
	Query    string         `json:"query"`
	Results  []SearchResult `json:"results"`
}

type SearchProvider interface {
	Name() string
	Search(ctx context.Context, query string, count int) ([]SearchResult, error)
}

// NewSearchProvider picks the configured backend. Brave needs a key; without
// one the keyless DuckDuckGo HTML endpoint is used.
func NewSearchProvider(cfg Config, client *http.Client) SearchProvider {
	if strings.EqualFold(cfg.SearchProvider, ProviderBrave) && cfg.BraveAPIKey != "" {
		return NewBrave(cfg.BraveAPIKey, cfg.SearchBaseURL, client)
	}
	return NewDuckDuckGo(cfg.SearchBaseURL, client)
}

// DuckDuckGo scrapes the HTML results page.
type DuckDuckGo struct {
	baseURL    string
	httpClient *http.Client
}

func NewDuckDuckGo(baseURL string, client *http.Client) *DuckDuckGo {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultDuckDuckGoURL
	}
	if client == nil {
		client = httpx.NewClient()
	}
	return &DuckDuckGo{baseURL: baseURL, httpClient: client}
}

func (d *DuckDuckGo) Name() string { return ProviderDuckDuckGo }

func (d *DuckDuckGo) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: request failed: %w", err)
	}
	defer httpx.DrainAndClose(resp.Body, 4096)

	if err := httpx.CheckStatus("duckduckgo", resp, maxErrorBodyBytes); err != nil {
		return nil, err
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxSearchBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: parse results: %w", err)
	}
	return parseDuckDuckGo(doc, count), nil
}

// parseDuckDuckGo walks result blocks: a.result__a holds the title and link,
// .result__snippet the snippet.
func parseDuckDuckGo(doc *html.Node, count int) []SearchResult {
	var results []SearchResult
	var current *SearchResult

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if count > 0 && len(results) >= count {
			return
		}
		if n.Type == html.ElementNode {
			switch {
			case n.DataAtom == atom.A && hasClass(n, "result__a"):
				if current != nil && current.URL != "" {
					results = append(results, *current)
				}
				current = &SearchResult{
					Title: cleanWhitespace(textContent(n)),
					URL:   unwrapDuckDuckGoLink(attr(n, "href")),
				}
				return
			case hasClass(n, "result__snippet"):
				if current != nil {
					current.Snippet = cleanWhitespace(textContent(n))
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if current != nil && current.URL != "" && (count <= 0 || len(results) < count) {
		results = append(results, *current)
	}
	return results
}

// unwrapDuckDuckGoLink resolves //duckduckgo.com/l/?uddg=<target> redirects.
func unwrapDuckDuckGoLink(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

// Brave queries the Brave Search API.
type Brave struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewBrave(apiKey, baseURL string, client *http.Client) *Brave {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBraveURL
	}
	if client == nil {
		client = httpx.NewClient()
	}
	return &Brave{apiKey: apiKey, baseURL: baseURL, httpClient: client}
}

func (b *Brave) Name() string { return ProviderBrave }

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func (b *Brave) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	if count <= 0 {
		count = 5
	}
	params := url.Values{
		"q":     {query},
		"count": {strconv.Itoa(count)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("brave: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave: request failed: %w", err)
	}
	defer httpx.DrainAndClose(resp.Body, 4096)

	if err := httpx.CheckStatus("brave", resp, maxErrorBodyBytes); err != nil {
		return nil, err
	}

	var br braveResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxSearchBodyBytes)).Decode(&br); err != nil {
		return nil, fmt.Errorf("brave: decode response: %w", err)
	}

	results := make([]SearchResult, 0, len(br.Web.Results))
	for _, r := range br.Web.Results {
		results = append(results, SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return results, nil
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
