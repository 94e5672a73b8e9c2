package entity

import "time"

// SitemapEntry is a single <url> or <sitemap> element read from a sitemap document.
type SitemapEntry struct {
	URL          string
	LastModified *time.Time
	// Index is true when the entry came from a <sitemapindex> and points to another sitemap.
	Index bool
}
