package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestItemIDDeterministic(t *testing.T) {
	a := ItemID("arXiv", "https://arxiv.org/abs/2501.00001", "Paper title")
	b := ItemID("arXiv", "https://arxiv.org/abs/2501.00001", "Paper title")
	assert.Equal(t, a, b)
	assert.Len(t, a, 32, "ID is 16 bytes hex encoded")
}

func TestItemIDDistinguishesFields(t *testing.T) {
	base := ItemID("src", "https://example.com/a", "title")
	assert.NotEqual(t, base, ItemID("src2", "https://example.com/a", "title"))
	assert.NotEqual(t, base, ItemID("src", "https://example.com/b", "title"))
	assert.NotEqual(t, base, ItemID("src", "https://example.com/a", "other"))

	// Field boundaries matter: moving a character across the separator
	// must change the ID.
	assert.NotEqual(t, ItemID("ab", "c", "t"), ItemID("a", "bc", "t"))
}

func TestNewItemDerivesID(t *testing.T) {
	item := NewItem("Title", "Body", "NewsAPI", "https://example.com/x", nil)
	assert.Equal(t, ItemID("NewsAPI", "https://example.com/x", "Title"), item.ID)
	assert.Nil(t, item.PublishedAt)
}

func TestTimeRangeContains(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	window := TimeRange{Start: start, End: end}

	inside := start.Add(24 * time.Hour)
	before := start.Add(-time.Minute)
	after := end.Add(time.Minute)

	assert.True(t, window.Contains(&inside))
	assert.True(t, window.Contains(&start), "boundaries are inclusive")
	assert.True(t, window.Contains(&end))
	assert.False(t, window.Contains(&before))
	assert.False(t, window.Contains(&after))
	assert.True(t, window.Contains(nil), "items without a date pass through")
}
