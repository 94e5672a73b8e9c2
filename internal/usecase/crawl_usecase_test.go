package usecase

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pazars/grabeklis/internal/adapter/filelock"
	"github.com/pazars/grabeklis/internal/archive"
	"github.com/pazars/grabeklis/internal/entity"
	"github.com/pazars/grabeklis/internal/extractor"
	"github.com/pazars/grabeklis/internal/localedate"
	"github.com/pazars/grabeklis/internal/repository"
	"github.com/pazars/grabeklis/pkg/utils"
)

const (
	rootSitemap = "https://www.lsm.lv/sitemap.xml"
	weekSitemap = "https://www.lsm.lv/assets/sitemap_2023W41.xml"
	articleA    = "https://www.lsm.lv/raksts/zinas/latvija/a.a1/"
	articleB    = "https://www.lsm.lv/raksts/zinas/latvija/b.a2/"
	articleC    = "https://www.lsm.lv/raksts/zinas/latvija/c.a3/"
	articleD    = "https://www.lsm.lv/raksts/zinas/latvija/d.a4/"
)

func articlePage(category, date, title string) string {
	return fmt.Sprintf(`<html><body>
<h1 class="article-title">%s</h1>
<div class="info-item category"><a href="/">%s</a></div>
<div class="info-item time">%s</div>
<h2 class="article-lead">Ievads par notikumu.</h2>
<div class="article__body"><p>Raksta teksts.</p></div>
</body></html>`, title, category, date)
}

type fakeSitemaps map[string]string

func (f fakeSitemaps) Get(_ context.Context, url string) ([]byte, error) {
	body, ok := f[url]
	if !ok {
		return nil, fmt.Errorf("%w: received status code 404", repository.ErrContentRestricted)
	}
	return []byte(body), nil
}

type fakeFetcher struct {
	pages map[string]string

	mu      sync.Mutex
	fetched []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, urls iter.Seq[string], handle func(*entity.Page), onError func(string, error)) error {
	for u := range urls {
		if ctx.Err() != nil {
			break
		}
		f.mu.Lock()
		f.fetched = append(f.fetched, u)
		f.mu.Unlock()

		html, ok := f.pages[u]
		if !ok {
			onError(u, fmt.Errorf("%w: received status code 404", repository.ErrContentRestricted))
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return err
		}
		handle(&entity.Page{URL: u, Document: doc, DownloadLatency: time.Second, FetchedAt: time.Date(2023, 10, 12, 12, 0, 0, 0, entity.SiteLocation)})
	}
	return ctx.Err()
}

func (f *fakeFetcher) Fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

type recordingSink struct {
	mu      sync.Mutex
	results []entity.Result
}

func (s *recordingSink) Upsert(_ context.Context, r entity.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return nil
}

func (s *recordingSink) Close() {}

type fixture struct {
	store   *archive.Store
	fetcher *fakeFetcher
	deps    Deps
}

func newFixture(t *testing.T, articles ...string) *fixture {
	t.Helper()

	var urlset strings.Builder
	urlset.WriteString("<urlset>")
	for _, a := range articles {
		fmt.Fprintf(&urlset, "<url><loc>%s</loc></url>", a)
	}
	urlset.WriteString("<url><loc>https://www.lsm.lv/temas/politika/</loc></url></urlset>")

	dates, err := localedate.Riga()
	require.NoError(t, err)

	store := archive.NewStore(filepath.Join(t.TempDir(), "lsm"), archive.PolicyKeepExisting, zap.NewNop())
	fetcher := &fakeFetcher{pages: map[string]string{
		articleA: articlePage("Latvijā", "12. oktobris, 2023, 08:15", "Pirmais"),
		articleB: articlePage("Audio", "12. oktobris, 2023, 09:00", "Otrais"),
		articleD: articlePage("Pasaulē", "Šodien, 10:30", "Ceturtais"),
	}}
	return &fixture{
		store:   store,
		fetcher: fetcher,
		deps: Deps{
			Store:   store,
			Fetcher: fetcher,
			Sitemaps: fakeSitemaps{
				rootSitemap: `<sitemapindex><sitemap><loc>` + weekSitemap + `</loc></sitemap>` +
					`<sitemap><loc>https://www.lsm.lv/assets/sitemap_2023W30.xml</loc></sitemap></sitemapindex>`,
				weekSitemap: urlset.String(),
			},
			Extractor: extractor.New(dates, zap.NewNop()),
			Logger:    zap.NewNop(),
		},
	}
}

func clock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var noon = time.Date(2023, 10, 12, 12, 0, 0, 0, entity.SiteLocation)

func defaultOptions() CrawlOptions {
	return CrawlOptions{SitemapURL: rootSitemap, MidnightGuard: true}
}

func TestCrawl_EndToEnd(t *testing.T) {
	t.Parallel()

	f := newFixture(t, articleA, articleB, articleC)
	sink := &recordingSink{}
	f.deps.Sink = sink
	uc := newCrawlUseCase(f.deps, defaultOptions(), clock(noon))

	stats, err := uc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{articleA, articleB, articleC}, f.fetcher.Fetched())
	assert.Equal(t, CloseFinished, stats.CloseReason)
	assert.Equal(t, 1, stats.ItemSavedCount)
	assert.Equal(t, 2, stats.FailedToScrape)
	assert.True(t, archive.DefaultWatermark.Equal(stats.Watermark))
	require.NotNil(t, stats.Archive)
	assert.Equal(t, entity.Summary{NewInOKArchive: 1, NewInFailedArchive: 2}, *stats.Archive)
	assert.Len(t, sink.results, 3)

	articles, err := f.store.LoadArticles()
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, articleA, articles[0].URL)
	assert.Equal(t, "Pirmais", articles[0].Title)

	failures, err := f.store.LoadFailures()
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Contains(t, failures[0].Error, "Audio")
	assert.Contains(t, failures[1].Error, "404")

	runDir := f.store.RunDir(noon)
	assert.FileExists(t, filepath.Join(runDir, archive.StatsFile))
	assert.FileExists(t, filepath.Join(runDir, archive.MetricsFile))
	assert.FileExists(t, f.store.Path(archive.HistoryFile))

	// The next run skips what is archived and re-reports known failures as duplicates.
	later := noon.Add(time.Hour)
	f2 := *f
	f2.fetcher = &fakeFetcher{pages: f.fetcher.pages}
	f2.deps.Fetcher = f2.fetcher
	stats, err = newCrawlUseCase(f2.deps, defaultOptions(), clock(later)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{articleB, articleC}, f2.fetcher.Fetched())
	assert.True(t, time.Date(2023, 10, 12, 8, 15, 0, 0, entity.SiteLocation).Equal(stats.Watermark))
	assert.Equal(t, entity.Summary{SkippedFailDuplicates: 2}, *stats.Archive)
}

func TestCrawl_MaxItems(t *testing.T) {
	t.Parallel()

	// Denied and missing pages do not count towards the limit.
	f := newFixture(t, articleB, articleC, articleA, articleD)
	opts := defaultOptions()
	opts.MaxItems = 1

	stats, err := newCrawlUseCase(f.deps, opts, clock(noon)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{articleB, articleC, articleA}, f.fetcher.Fetched())
	assert.Equal(t, CloseMaxItems, stats.CloseReason)
	assert.Equal(t, 1, stats.ItemSavedCount)
	assert.Equal(t, 2, stats.FailedToScrape)

	f = newFixture(t, articleA, articleB, articleC)
	opts.MaxItems = 2
	stats, err = newCrawlUseCase(f.deps, opts, clock(noon)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{articleA, articleB, articleC}, f.fetcher.Fetched())
	assert.Equal(t, CloseFinished, stats.CloseReason)
	assert.Equal(t, 1, stats.ItemSavedCount)
}

func TestCrawl_MidnightGuard(t *testing.T) {
	t.Parallel()

	f := newFixture(t, articleA)
	late := time.Date(2023, 10, 12, 23, 50, 0, 0, entity.SiteLocation)

	stats, err := newCrawlUseCase(f.deps, defaultOptions(), clock(late)).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.fetcher.Fetched())
	assert.Equal(t, CloseMidnightGuard, stats.CloseReason)

	opts := defaultOptions()
	opts.MidnightGuard = false
	f = newFixture(t, articleA)
	_, err = newCrawlUseCase(f.deps, opts, clock(late)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{articleA}, f.fetcher.Fetched())
}

func TestCrawl_DryRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t, articleA, articleB)
	sink := &recordingSink{}
	f.deps.Sink = sink
	opts := defaultOptions()
	opts.DryRun = true

	stats, err := newCrawlUseCase(f.deps, opts, clock(noon)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ItemSavedCount)
	assert.True(t, stats.DryRun)
	assert.Empty(t, sink.results)

	_, statErr := os.Stat(f.store.RunDir(noon))
	assert.True(t, os.IsNotExist(statErr), "dry runs leave no run directory")
	assert.NoFileExists(t, f.store.Path(archive.ItemsFile))
	assert.NoFileExists(t, f.store.Path(archive.HistoryFile))
	assert.NoFileExists(t, f.store.Path(archive.SummaryFile))
}

func TestCrawl_DryRunDerivesMissingHistory(t *testing.T) {
	t.Parallel()

	f := newFixture(t, articleA, articleB)
	archived := []entity.ArticleRecord{{URL: articleA, Title: "Pirmais", Category: "Latvijā"}}
	require.NoError(t, utils.WriteJSONAtomic(f.store.Path(archive.ItemsFile), archived, true))
	opts := defaultOptions()
	opts.DryRun = true

	_, err := newCrawlUseCase(f.deps, opts, clock(noon)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{articleB}, f.fetcher.Fetched())
	assert.NoFileExists(t, f.store.Path(archive.HistoryFile))
	assert.NoFileExists(t, f.store.Path(archive.SummaryFile))
}

func TestCrawl_StartFromOverride(t *testing.T) {
	t.Parallel()

	f := newFixture(t, articleA)
	opts := defaultOptions()
	from := time.Date(2023, 10, 20, 0, 0, 0, 0, entity.SiteLocation)
	opts.StartFrom = &from

	stats, err := newCrawlUseCase(f.deps, opts, clock(noon)).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.fetcher.Fetched(), "week 41 ends before the override")
	assert.True(t, from.Equal(stats.Watermark))
}

func TestCrawl_RelativeDateDoesNotMoveWatermark(t *testing.T) {
	t.Parallel()

	f := newFixture(t, articleD)
	_, err := newCrawlUseCase(f.deps, defaultOptions(), clock(noon)).Run(context.Background())
	require.NoError(t, err)

	articles, err := f.store.LoadArticles()
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, entity.DateToday, articles[0].DateForm)

	wm, err := f.store.Watermark(noon)
	require.NoError(t, err)
	assert.True(t, archive.DefaultWatermark.Equal(wm))
}

func TestCrawl_Locked(t *testing.T) {
	t.Parallel()

	f := newFixture(t, articleA)
	lockPath := f.store.Path(archive.LockFile)
	holder := filelock.New(lockPath)
	require.NoError(t, holder.Acquire(context.Background()))

	f.deps.Lock = filelock.New(lockPath)
	_, err := newCrawlUseCase(f.deps, defaultOptions(), clock(noon)).Run(context.Background())
	require.ErrorIs(t, err, repository.ErrLocked)
	assert.Empty(t, f.fetcher.Fetched())

	require.NoError(t, holder.Release(context.Background()))
	_, err = newCrawlUseCase(f.deps, defaultOptions(), clock(noon)).Run(context.Background())
	require.NoError(t, err)
	assert.NoFileExists(t, lockPath, "lock released after the run")
}

func TestCrawl_RootSitemapFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, articleA)
	opts := defaultOptions()
	opts.SitemapURL = "https://www.lsm.lv/missing.xml"

	stats, err := newCrawlUseCase(f.deps, opts, clock(noon)).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrContentRestricted))
	assert.Equal(t, CloseError, stats.CloseReason)
}

func TestCrawl_CancelledStillFinalizes(t *testing.T) {
	t.Parallel()

	f := newFixture(t, articleA, articleB)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := newCrawlUseCase(f.deps, defaultOptions(), clock(noon)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, CloseCancelled, stats.CloseReason)
	assert.FileExists(t, filepath.Join(f.store.RunDir(noon), archive.StatsFile))
}
