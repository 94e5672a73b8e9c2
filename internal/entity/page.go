package entity

import (
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Page is a fetched article page as delivered by the fetch engine.
type Page struct {
	URL             string
	Document        *goquery.Document
	DownloadLatency time.Duration
	FetchedAt       time.Time
}

// StartedAt is the best estimate of when the download was started.
func (p *Page) StartedAt() time.Time {
	return p.FetchedAt.Add(-p.DownloadLatency)
}
