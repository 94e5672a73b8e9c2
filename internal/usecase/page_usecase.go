package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/pazars/grabeklis/internal/entity"
	"github.com/pazars/grabeklis/internal/extractor"
	"github.com/pazars/grabeklis/internal/repository"
)

// ErrNoPage is returned when the fetcher neither delivered the page nor reported an error.
var ErrNoPage = errors.New("page was not delivered")

// PageScraper fetches and extracts a single article, without touching the archive.
type PageScraper interface {
	Scrape(ctx context.Context, url string) (entity.Result, error)
}

type pageUseCase struct {
	fetcher   repository.PageFetcher
	extractor *extractor.Extractor
}

// NewPageUseCase creates a single-page scraper.
func NewPageUseCase(fetcher repository.PageFetcher, ex *extractor.Extractor) PageScraper {
	return &pageUseCase{fetcher: fetcher, extractor: ex}
}

// Scrape returns the extraction result for url. Transport errors are returned
// as errors; extraction problems come back as a failure result.
func (uc *pageUseCase) Scrape(ctx context.Context, url string) (entity.Result, error) {
	var (
		result   entity.Result
		got      bool
		fetchErr error
	)
	err := uc.fetcher.Fetch(ctx, slices.Values([]string{url}),
		func(p *entity.Page) {
			result, got = uc.extractor.Extract(p), true
		},
		func(_ string, err error) {
			fetchErr = err
		},
	)
	switch {
	case err != nil:
		return entity.Result{}, fmt.Errorf("fetch %s: %w", url, err)
	case fetchErr != nil:
		return entity.Result{}, fmt.Errorf("fetch %s: %w", url, fetchErr)
	case !got:
		return entity.Result{}, fmt.Errorf("%w: %s", ErrNoPage, url)
	}
	return result, nil
}
