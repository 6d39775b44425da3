package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/weizhiyuan62/zhilan/internal/domain"
)

// NewsAPI defaults.
const (
	newsAPISourceName = "NewsAPI"
	newsAPIBase       = "https://newsapi.org/v2/everything"
	newsAPIPageSize   = 30
)

// NewsAPISource fetches articles from the newsapi.org "everything"
// endpoint, scoped to the collection window via the from/to parameters.
type NewsAPISource struct {
	client   *http.Client
	apiKey   string
	baseURL  string
	pageSize int
}

var _ Source = (*NewsAPISource)(nil)

// NewNewsAPISource builds a NewsAPI source. baseURL overrides the endpoint
// for tests; pass "" for the default.
func NewNewsAPISource(apiKey, baseURL string, client *http.Client) (*NewsAPISource, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: NewsAPI key is required", domain.ErrInvalidConfiguration)
	}
	if baseURL == "" {
		baseURL = newsAPIBase
	}
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &NewsAPISource{
		client:   client,
		apiKey:   apiKey,
		baseURL:  baseURL,
		pageSize: newsAPIPageSize,
	}, nil
}

// Name implements Source.
func (s *NewsAPISource) Name() string { return newsAPISourceName }

type newsAPIResponse struct {
	Status   string           `json:"status"`
	Code     string           `json:"code"`
	Message  string           `json:"message"`
	Articles []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	URL         string     `json:"url"`
	PublishedAt *time.Time `json:"publishedAt"`
}

// Fetch queries the everything endpoint for the topic within the window.
func (s *NewsAPISource) Fetch(ctx context.Context, topic string, window domain.TimeRange) ([]domain.Item, error) {
	query := url.Values{}
	query.Set("q", topic)
	query.Set("from", window.Start.UTC().Format(time.RFC3339))
	query.Set("to", window.End.UTC().Format(time.RFC3339))
	query.Set("sortBy", "publishedAt")
	query.Set("language", "en")
	query.Set("pageSize", fmt.Sprintf("%d", s.pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build NewsAPI request: %w", err)
	}
	req.Header.Set("X-Api-Key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("NewsAPI request failed for topic %q: %w", topic, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read NewsAPI response: %w", err)
	}

	var parsed newsAPIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse NewsAPI response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || parsed.Status != "ok" {
		return nil, fmt.Errorf("NewsAPI error (HTTP %d, code %s): %s", resp.StatusCode, parsed.Code, parsed.Message)
	}

	items := make([]domain.Item, 0, len(parsed.Articles))
	for _, article := range parsed.Articles {
		if article.Title == "" || article.URL == "" {
			continue
		}
		sourceName := article.Source.Name
		if sourceName == "" {
			sourceName = newsAPISourceName
		}
		items = append(items, domain.NewItem(
			article.Title,
			article.Description,
			sourceName,
			article.URL,
			article.PublishedAt,
		))
	}
	return items, nil
}
