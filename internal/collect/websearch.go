package collect

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/weizhiyuan62/zhilan/internal/domain"
)

// Web search defaults.
const (
	webSearchSourceName = "WebSearch"
	bingSearchBase      = "https://www.bing.com/search"
	webSearchUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

// WebSearchSource scrapes Bing's HTML result page for a topic. Search
// results rarely carry a machine-readable date, so most items pass the
// window filter with a nil timestamp and the judge weighs timeliness from
// content instead.
type WebSearchSource struct {
	client  *http.Client
	baseURL string
}

var _ Source = (*WebSearchSource)(nil)

// NewWebSearchSource builds a web search source. baseURL overrides the
// Bing endpoint for tests; pass "" for the default.
func NewWebSearchSource(baseURL string, client *http.Client) *WebSearchSource {
	if baseURL == "" {
		baseURL = bingSearchBase
	}
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &WebSearchSource{client: client, baseURL: baseURL}
}

// Name implements Source.
func (s *WebSearchSource) Name() string { return webSearchSourceName }

// Fetch scrapes the first result page for the topic.
func (s *WebSearchSource) Fetch(ctx context.Context, topic string, window domain.TimeRange) ([]domain.Item, error) {
	query := url.Values{}
	query.Set("q", topic+" latest news")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("User-Agent", webSearchUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search failed for topic %q: %w", topic, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web search returned HTTP %d for topic %q", resp.StatusCode, topic)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	var items []domain.Item
	doc.Find("li.b_algo").Each(func(_ int, result *goquery.Selection) {
		anchor := result.Find("h2 a").First()
		title := strings.TrimSpace(anchor.Text())
		link, _ := anchor.Attr("href")
		if title == "" || link == "" {
			return
		}

		snippet := strings.TrimSpace(result.Find(".b_caption p").First().Text())
		if snippet == "" {
			snippet = strings.TrimSpace(result.Find("p").First().Text())
		}

		published := parseResultDate(result.Find("span.news_dt").First().Text())
		if !window.Contains(published) {
			return
		}

		items = append(items, domain.NewItem(title, snippet, webSearchSourceName, link, published))
	})

	return items, nil
}

// parseResultDate handles the few absolute date formats Bing renders.
// Relative dates ("2 days ago") and unknown formats yield nil.
func parseResultDate(text string) *time.Time {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	for _, layout := range []string{"Jan 2, 2006", "2 Jan 2006", "2006-01-02"} {
		if t, err := time.Parse(layout, text); err == nil {
			return &t
		}
	}
	return nil
}
