package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Item represents a single collected piece of information: a search result,
// a news article, or a preprint. Items are immutable once produced by the
// collector and are owned by the run for its duration.
type Item struct {
	// ID is the stable identifier for this item, derived from the source
	// name, URL, and title. It is deterministic and content-addressable,
	// so the same item collected twice resolves to the same ID.
	ID string `json:"id"`

	// Title is the item headline or paper title.
	Title string `json:"title"`

	// Body is the snippet, abstract, or article excerpt used for judging.
	Body string `json:"body"`

	// SourceName identifies where the item came from (e.g. "arXiv",
	// "TechCrunch").
	SourceName string `json:"source_name"`

	// PublishedAt is the publication timestamp, nil when the source did
	// not provide one.
	PublishedAt *time.Time `json:"published_at,omitempty"`

	// URL is the canonical link to the item.
	URL string `json:"url"`
}

// NewItem constructs an Item with its ID derived from source, URL, and title.
func NewItem(title, body, sourceName, url string, publishedAt *time.Time) Item {
	return Item{
		ID:          ItemID(sourceName, url, title),
		Title:       title,
		Body:        body,
		SourceName:  sourceName,
		PublishedAt: publishedAt,
		URL:         url,
	}
}

// ItemID derives the stable item identifier from source, URL, and title.
// The ID is the first 16 bytes of the SHA-256 digest over the three fields,
// hex encoded. Identical inputs always produce identical IDs.
func ItemID(sourceName, url, title string) string {
	h := sha256.New()
	h.Write([]byte(sourceName))
	h.Write([]byte{0})
	h.Write([]byte(url))
	h.Write([]byte{0})
	h.Write([]byte(title))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// TimeRange bounds a collection window.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range. A nil timestamp is
// given the benefit of the doubt: sources frequently omit publication dates.
func (tr TimeRange) Contains(t *time.Time) bool {
	if t == nil {
		return true
	}
	return !t.Before(tr.Start) && !t.After(tr.End)
}
