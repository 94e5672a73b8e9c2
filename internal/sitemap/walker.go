package sitemap

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/pazars/grabeklis/internal/entity"
	"github.com/pazars/grabeklis/internal/repository"
	"github.com/pazars/grabeklis/pkg/utils"
)

// DefaultArticleRule selects article pages among urlset entries.
const DefaultArticleRule = "/raksts/"

const maxDepth = 8

// Walker traverses a sitemap tree, descending only into eligible sub-sitemaps.
type Walker struct {
	source      repository.SitemapSource
	filter      *Filter
	articleRule string
	logger      *zap.Logger
}

// NewWalker creates a walker. An empty articleRule falls back to DefaultArticleRule.
func NewWalker(source repository.SitemapSource, filter *Filter, articleRule string, logger *zap.Logger) *Walker {
	if articleRule == "" {
		articleRule = DefaultArticleRule
	}
	return &Walker{source: source, filter: filter, articleRule: articleRule, logger: logger}
}

// WalkStats counts what a walk saw.
type WalkStats struct {
	Documents      int
	FailedSitemaps int
	Entries        int
	Eligible       int
}

// Walk fetches rootURL and calls visit for every eligible article entry, in
// document order. It stops early when visit returns false or ctx is done.
// Failing to load the root document is an error; failing sub-sitemaps are
// logged and skipped.
func (w *Walker) Walk(ctx context.Context, rootURL string, visit func(entity.SitemapEntry) bool) (WalkStats, error) {
	st := &walkState{visited: map[string]struct{}{}, visit: visit}
	if err := w.walk(ctx, rootURL, 0, st); err != nil {
		return st.stats, err
	}
	return st.stats, ctx.Err()
}

type walkState struct {
	stats   WalkStats
	visited map[string]struct{}
	visit   func(entity.SitemapEntry) bool
	stopped bool
}

func (w *Walker) walk(ctx context.Context, docURL string, depth int, st *walkState) error {
	if st.stopped || ctx.Err() != nil {
		return nil
	}
	if _, seen := st.visited[docURL]; seen {
		return nil
	}
	st.visited[docURL] = struct{}{}

	body, err := w.source.Get(ctx, docURL)
	if err != nil {
		return fmt.Errorf("fetch sitemap %s: %w", docURL, err)
	}
	entries, err := ParseDocument(body)
	if err != nil {
		return fmt.Errorf("sitemap %s: %w", docURL, err)
	}
	st.stats.Documents++
	st.stats.Entries += len(entries)

	for i := range entries {
		if abs, err := utils.ToAbsoluteURL(docURL, entries[i].URL); err == nil {
			entries[i].URL = abs
		}
	}

	for e := range w.filter.Apply(slices.Values(entries)) {
		if st.stopped || ctx.Err() != nil {
			return nil
		}
		if e.Index || strings.Contains(e.URL, SubSitemapMarker) {
			if depth+1 > maxDepth {
				w.logger.Warn("Sitemap nesting too deep, skipping", zap.String("url", e.URL))
				continue
			}
			if err := w.walk(ctx, e.URL, depth+1, st); err != nil {
				st.stats.FailedSitemaps++
				w.logger.Warn("Skipping sub-sitemap", zap.String("url", e.URL), zap.Error(err))
			}
			continue
		}
		if !strings.Contains(e.URL, w.articleRule) {
			continue
		}
		st.stats.Eligible++
		if !st.visit(e) {
			st.stopped = true
			return nil
		}
	}
	return nil
}
