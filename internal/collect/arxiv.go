package collect

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/weizhiyuan62/zhilan/internal/domain"
)

// arXiv Atom API defaults.
const (
	arxivSourceName  = "arXiv"
	arxivAPIBase     = "http://export.arxiv.org/api/query"
	arxivMaxResults  = 30
	arxivAbstractCap = 1500
)

// ArxivSource fetches recent preprints from the arXiv Atom API. Results
// are requested newest-first and filtered to the collection window.
type ArxivSource struct {
	parser     *gofeed.Parser
	baseURL    string
	maxResults int
}

var _ Source = (*ArxivSource)(nil)

// NewArxivSource builds an arXiv source. baseURL overrides the public API
// endpoint for tests; pass "" for the default. maxResults caps results per
// topic, defaulting to 30.
func NewArxivSource(baseURL string, maxResults int) *ArxivSource {
	if baseURL == "" {
		baseURL = arxivAPIBase
	}
	if maxResults <= 0 {
		maxResults = arxivMaxResults
	}
	return &ArxivSource{
		parser:     gofeed.NewParser(),
		baseURL:    baseURL,
		maxResults: maxResults,
	}
}

// Name implements Source.
func (s *ArxivSource) Name() string { return arxivSourceName }

// Fetch queries the arXiv API for the topic and converts feed entries into
// items. Entries outside the window are dropped here since the API has no
// date-range parameter.
func (s *ArxivSource) Fetch(ctx context.Context, topic string, window domain.TimeRange) ([]domain.Item, error) {
	query := url.Values{}
	query.Set("search_query", fmt.Sprintf("all:%q", topic))
	query.Set("sortBy", "submittedDate")
	query.Set("sortOrder", "descending")
	query.Set("max_results", fmt.Sprintf("%d", s.maxResults))

	feed, err := s.parser.ParseURLWithContext(s.baseURL+"?"+query.Encode(), ctx)
	if err != nil {
		return nil, fmt.Errorf("arxiv query failed for topic %q: %w", topic, err)
	}

	items := make([]domain.Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		published := entry.PublishedParsed
		if published == nil {
			published = entry.UpdatedParsed
		}
		if !window.Contains(published) {
			continue
		}

		abstract := strings.TrimSpace(entry.Description)
		if len([]rune(abstract)) > arxivAbstractCap {
			abstract = string([]rune(abstract)[:arxivAbstractCap])
		}

		items = append(items, domain.NewItem(
			strings.TrimSpace(entry.Title),
			abstract,
			arxivSourceName,
			entry.Link,
			published,
		))
	}
	return items, nil
}
