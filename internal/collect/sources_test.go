package collect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weizhiyuan62/zhilan/internal/domain"
)

func wideWindow() domain.TimeRange {
	return domain.TimeRange{
		Start: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

const arxivFeedFixture = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>ArXiv Query Results</title>
  <entry>
    <id>http://arxiv.org/abs/2508.01234v1</id>
    <title>Scaling Laws for Judge Models</title>
    <summary>We study how judge model quality scales with parameter count.</summary>
    <published>2026-08-10T12:00:00Z</published>
    <updated>2026-08-10T12:00:00Z</updated>
    <link href="http://arxiv.org/abs/2508.01234v1" rel="alternate" type="text/html"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2001.00001v1</id>
    <title>An Old Paper</title>
    <summary>Outside the collection window.</summary>
    <published>2019-01-01T00:00:00Z</published>
    <updated>2019-01-01T00:00:00Z</updated>
    <link href="http://arxiv.org/abs/2001.00001v1" rel="alternate" type="text/html"/>
  </entry>
</feed>`

func TestArxivSourceFetch(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(arxivFeedFixture))
	}))
	defer server.Close()

	source := NewArxivSource(server.URL, 10)
	items, err := source.Fetch(context.Background(), "judge models", wideWindow())
	require.NoError(t, err)

	require.Len(t, items, 1, "the 2019 entry falls outside the window")
	assert.Equal(t, "Scaling Laws for Judge Models", items[0].Title)
	assert.Equal(t, "arXiv", items[0].SourceName)
	require.NotNil(t, items[0].PublishedAt)
	assert.Equal(t, 2026, items[0].PublishedAt.Year())
	assert.Contains(t, gotQuery, "submittedDate")
}

func TestNewsAPISourceFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		assert.NotEmpty(t, r.URL.Query().Get("from"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": "ok",
			"articles": [
				{
					"source": {"name": "TechCrunch"},
					"title": "Startup ships new inference chip",
					"description": "A lower-power accelerator for LLM serving.",
					"url": "https://techcrunch.com/chip",
					"publishedAt": "2026-08-12T08:30:00Z"
				},
				{
					"source": {"name": ""},
					"title": "",
					"description": "missing title gets dropped",
					"url": "https://example.com/x"
				}
			]
		}`))
	}))
	defer server.Close()

	source, err := NewNewsAPISource("test-key", server.URL, server.Client())
	require.NoError(t, err)

	items, err := source.Fetch(context.Background(), "ai chips", wideWindow())
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, "Startup ships new inference chip", items[0].Title)
	assert.Equal(t, "TechCrunch", items[0].SourceName)
	require.NotNil(t, items[0].PublishedAt)
}

func TestNewsAPISourceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status": "error", "code": "apiKeyInvalid", "message": "bad key"}`))
	}))
	defer server.Close()

	source, err := NewNewsAPISource("bad-key", server.URL, server.Client())
	require.NoError(t, err)

	_, err = source.Fetch(context.Background(), "ai", wideWindow())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apiKeyInvalid")
}

func TestNewsAPISourceRequiresKey(t *testing.T) {
	_, err := NewNewsAPISource("", "", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

const bingResultsFixture = `<!DOCTYPE html>
<html><body>
<ol id="b_results">
  <li class="b_algo">
    <h2><a href="https://news.example.com/gpt5">GPT-5 sets new reasoning records</a></h2>
    <div class="b_caption">
      <p><span class="news_dt">Aug 14, 2026</span> The model tops every public benchmark.</p>
    </div>
  </li>
  <li class="b_algo">
    <h2><a href="https://blog.example.com/agents">Agent frameworks mature</a></h2>
    <div class="b_caption"><p>Production agent deployments are becoming routine.</p></div>
  </li>
  <li class="b_algo">
    <h2><a href="">Result with no link</a></h2>
  </li>
</ol>
</body></html>`

func TestWebSearchSourceFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("q"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(bingResultsFixture))
	}))
	defer server.Close()

	source := NewWebSearchSource(server.URL, server.Client())
	items, err := source.Fetch(context.Background(), "large language models", wideWindow())
	require.NoError(t, err)

	require.Len(t, items, 2, "the linkless result is dropped")
	assert.Equal(t, "GPT-5 sets new reasoning records", items[0].Title)
	assert.Equal(t, "WebSearch", items[0].SourceName)
	assert.Contains(t, items[0].Body, "tops every public benchmark")
	assert.Equal(t, "Agent frameworks mature", items[1].Title)
	assert.Nil(t, items[1].PublishedAt, "results without a date stay undated")
}

func TestWebSearchSourceHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	source := NewWebSearchSource(server.URL, server.Client())
	_, err := source.Fetch(context.Background(), "ai", wideWindow())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestParseResultDate(t *testing.T) {
	parsed := parseResultDate("Aug 14, 2026")
	require.NotNil(t, parsed)
	assert.Equal(t, time.August, parsed.Month())

	assert.Nil(t, parseResultDate("2 days ago"))
	assert.Nil(t, parseResultDate(""))
}
