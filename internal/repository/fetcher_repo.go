package repository

import (
	"context"
	"errors"
	"iter"

	"github.com/pazars/grabeklis/internal/entity"
)

var (
	// ErrFetchTimeout is returned when a page or sitemap does not load in time.
	ErrFetchTimeout = errors.New("fetch timed out")
	// ErrContentRestricted is returned for non-2xx responses.
	ErrContentRestricted = errors.New("content is restricted or unavailable")
)

// PageFetcher downloads article pages.
type PageFetcher interface {
	// Fetch consumes urls until the sequence ends or ctx is cancelled and calls
	// handle for every page that was downloaded and parsed. handle may be called
	// concurrently. Per-page transport failures are reported through onError.
	Fetch(ctx context.Context, urls iter.Seq[string], handle func(*entity.Page), onError func(url string, err error)) error
}

// SitemapSource returns the raw body of a sitemap document.
type SitemapSource interface {
	Get(ctx context.Context, url string) ([]byte, error)
}
