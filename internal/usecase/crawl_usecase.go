package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pazars/grabeklis/internal/archive"
	"github.com/pazars/grabeklis/internal/entity"
	"github.com/pazars/grabeklis/internal/extractor"
	"github.com/pazars/grabeklis/internal/repository"
	"github.com/pazars/grabeklis/internal/run"
	"github.com/pazars/grabeklis/internal/sitemap"
	"github.com/pazars/grabeklis/pkg/metrics"
	"github.com/pazars/grabeklis/pkg/utils"
)

// Close reasons recorded in stats.json.
const (
	CloseFinished      = "finished"
	CloseMaxItems      = "max_items"
	CloseMidnightGuard = "midnight_guard"
	CloseCancelled     = "cancelled"
	CloseError         = "error"
)

// Site dates roll over at midnight; from this time on no new pages are scheduled.
const (
	midnightGuardHour   = 23
	midnightGuardMinute = 45
)

// CrawlOptions configures one crawl.
type CrawlOptions struct {
	SitemapURL     string
	ArticleRule    string
	StartFrom      *time.Time
	MaxItems       int
	DryRun         bool
	BatchSizeBytes int
	MidnightGuard  bool
}

// Deps are the collaborators of a crawl. Sink and Lock are optional.
type Deps struct {
	Store     *archive.Store
	Fetcher   repository.PageFetcher
	Sitemaps  repository.SitemapSource
	Extractor *extractor.Extractor
	Sink      repository.ResultSink
	Lock      repository.RunLock
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// Crawler runs incremental crawls.
type Crawler interface {
	Run(ctx context.Context) (entity.RunStats, error)
	Start(ctx context.Context) (*Session, error)
}

type crawlUseCase struct {
	deps Deps
	opts CrawlOptions
	now  func() time.Time
}

// NewCrawlUseCase creates the crawl use case.
func NewCrawlUseCase(deps Deps, opts CrawlOptions) Crawler {
	return newCrawlUseCase(deps, opts, time.Now)
}

func newCrawlUseCase(deps Deps, opts CrawlOptions, now func() time.Time) *crawlUseCase {
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &crawlUseCase{deps: deps, opts: opts, now: now}
}

// Run starts a session, crawls, and finalizes even when crawling fails or
// ctx is cancelled, so flushed batches are always merged.
func (uc *crawlUseCase) Run(ctx context.Context) (entity.RunStats, error) {
	s, err := uc.Start(ctx)
	if err != nil {
		return entity.RunStats{}, err
	}
	crawlErr := s.Crawl(ctx)
	_, finErr := s.Finalize(ctx)
	return s.Stats(), errors.Join(crawlErr, finErr)
}

// Session holds the state of one run between Start and Finalize.
type Session struct {
	uc        *crawlUseCase
	logger    *zap.Logger
	id        string
	started   time.Time
	runDir    string
	watermark time.Time
	history   []string
	acc       *run.Accumulator

	mu          sync.Mutex
	closeReason string
	fatal       error
	walk        sitemap.WalkStats
	stats       entity.RunStats
	finalized   bool
}

// Start takes the run lock, loads the archive history and resolves the watermark.
func (uc *crawlUseCase) Start(ctx context.Context) (*Session, error) {
	if uc.deps.Lock != nil {
		if err := uc.deps.Lock.Acquire(ctx); err != nil {
			return nil, err
		}
	}
	s, err := uc.start()
	if err != nil && uc.deps.Lock != nil {
		if relErr := uc.deps.Lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			uc.deps.Logger.Warn("Failed to release run lock", zap.Error(relErr))
		}
	}
	return s, err
}

func (uc *crawlUseCase) start() (*Session, error) {
	started := uc.now().In(entity.SiteLocation)
	loadHistory := uc.deps.Store.LoadHistory
	if uc.opts.DryRun {
		loadHistory = uc.deps.Store.History
	}
	history, err := loadHistory()
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	watermark := archive.DefaultWatermark
	if uc.opts.StartFrom != nil {
		watermark = uc.opts.StartFrom.In(entity.SiteLocation)
	} else if watermark, err = uc.deps.Store.Watermark(started); err != nil {
		return nil, fmt.Errorf("compute watermark: %w", err)
	}

	runDir := uc.deps.Store.RunDir(started)
	var writer run.BatchWriter = run.NewFileBatchWriter(runDir)
	if uc.opts.DryRun {
		writer = run.DiscardWriter{}
	}

	id := uuid.NewString()
	logger := uc.deps.Logger.With(zap.String("run_id", id))
	logger.Info("Starting crawl",
		zap.String("run_dir", runDir),
		zap.Time("watermark", watermark),
		zap.Int("history", len(history)),
		zap.Bool("dry_run", uc.opts.DryRun),
		zap.Int("max_items", uc.opts.MaxItems),
	)

	return &Session{
		uc:          uc,
		logger:      logger,
		id:          id,
		started:     started,
		runDir:      runDir,
		watermark:   watermark,
		history:     history,
		acc:         run.NewAccumulator(writer, uc.opts.BatchSizeBytes, history, logger),
		closeReason: CloseFinished,
	}, nil
}

// ID is the run id.
func (s *Session) ID() string { return s.id }

// Dir is the run directory.
func (s *Session) Dir() string { return s.runDir }

// Watermark is the cut-off used by the sitemap filter.
func (s *Session) Watermark() time.Time { return s.watermark }

func (s *Session) setReason(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeReason == CloseFinished {
		s.closeReason = reason
	}
}

func (s *Session) fail(err error, cancel context.CancelFunc) {
	s.mu.Lock()
	if s.fatal == nil {
		s.fatal = err
	}
	s.mu.Unlock()
	cancel()
}

func (s *Session) midnight() bool {
	t := s.uc.now().In(entity.SiteLocation)
	return t.Hour() == midnightGuardHour && t.Minute() >= midnightGuardMinute
}

// Crawl walks the sitemap and fetches every eligible article. Scheduling stops
// once MaxItems articles are saved, at the midnight guard, or when ctx is cancelled.
func (s *Session) Crawl(ctx context.Context) error {
	uc := s.uc
	crawlCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	filter := sitemap.NewFilter(sitemap.NewHistorySet(s.history), s.watermark)
	walker := sitemap.NewWalker(uc.deps.Sitemaps, filter, uc.opts.ArticleRule, s.logger)

	var walkErr error
	limitReached := func() bool {
		return uc.opts.MaxItems > 0 && s.acc.Stats().Saved >= uc.opts.MaxItems
	}
	urls := func(yield func(string) bool) {
		stats, err := walker.Walk(crawlCtx, uc.opts.SitemapURL, func(e entity.SitemapEntry) bool {
			if uc.opts.MidnightGuard && s.midnight() {
				s.logger.Warn("Midnight guard reached, no new pages are scheduled")
				s.setReason(CloseMidnightGuard)
				return false
			}
			if limitReached() {
				s.setReason(CloseMaxItems)
				return false
			}
			if !s.acc.Claim(e.URL) {
				return true
			}
			return yield(e.URL)
		})
		s.mu.Lock()
		s.walk = stats
		s.mu.Unlock()
		if err != nil && !errors.Is(err, context.Canceled) {
			walkErr = err
		}
	}

	record := func(result entity.Result) {
		outcome := "ok"
		if !result.OK() {
			outcome = "failed"
		}
		uc.deps.Metrics.PagesTotal.WithLabelValues(outcome).Inc()

		if err := s.acc.Add(result); err != nil {
			s.logger.Error("Failed to buffer result", zap.String("url", result.URL()), zap.Error(err))
			s.fail(err, cancel)
			return
		}
		if uc.deps.Sink != nil && !uc.opts.DryRun {
			if err := uc.deps.Sink.Upsert(crawlCtx, result); err != nil {
				s.logger.Warn("Failed to store result in sink", zap.String("url", result.URL()), zap.Error(err))
			}
		}
		if result.OK() && limitReached() {
			s.logger.Info("Saved article limit reached", zap.Int("max_items", uc.opts.MaxItems))
			s.setReason(CloseMaxItems)
			cancel()
		}
	}

	fetchErr := uc.deps.Fetcher.Fetch(crawlCtx, urls,
		func(page *entity.Page) {
			uc.deps.Metrics.FetchDuration.Observe(page.DownloadLatency.Seconds())
			record(uc.deps.Extractor.Extract(page))
		},
		func(url string, err error) {
			s.logger.Warn("Failed to fetch page", zap.String("url", url), zap.Error(err))
			record(entity.Failed(url, fmt.Errorf("fetch %s: %w", url, err)))
		},
	)

	s.mu.Lock()
	fatal := s.fatal
	s.mu.Unlock()
	switch {
	case fatal != nil:
		s.setReason(CloseError)
		return fatal
	case walkErr != nil:
		s.setReason(CloseError)
		return walkErr
	case ctx.Err() != nil:
		s.setReason(CloseCancelled)
		return nil
	case fetchErr != nil && !errors.Is(fetchErr, context.Canceled):
		s.setReason(CloseError)
		return fmt.Errorf("fetch: %w", fetchErr)
	}
	return nil
}

// Finalize flushes the remaining articles, merges the run into the archive,
// writes stats.json and metrics.prom, and releases the lock. Call it exactly
// once, however Crawl ended.
func (s *Session) Finalize(ctx context.Context) (entity.Summary, error) {
	uc := s.uc
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return summaryOf(s.stats), errors.New("session already finalized")
	}
	s.finalized = true
	s.mu.Unlock()

	defer func() {
		if uc.deps.Lock != nil {
			if err := uc.deps.Lock.Release(ctx); err != nil {
				s.logger.Warn("Failed to release run lock", zap.Error(err))
			}
		}
	}()

	var errs []error
	if err := s.acc.Close(); err != nil {
		errs = append(errs, err)
	}
	accStats := s.acc.Stats()

	s.mu.Lock()
	s.stats = entity.RunStats{
		RunID:          s.id,
		StartTime:      s.started,
		Watermark:      s.watermark,
		ItemSavedCount: accStats.Saved,
		FailedToScrape: accStats.Failed,
		CloseReason:    s.closeReason,
		DryRun:         uc.opts.DryRun,
	}
	walk := s.walk
	s.mu.Unlock()

	m := uc.deps.Metrics
	m.ArticlesSaved.Add(float64(accStats.Saved))
	m.Duplicates.Add(float64(accStats.Duplicates))
	m.BatchesFlushed.Add(float64(accStats.Flushes))
	m.SitemapsFetched.WithLabelValues("ok").Add(float64(walk.Documents))
	m.SitemapsFetched.WithLabelValues("failed").Add(float64(walk.FailedSitemaps))

	var summary entity.Summary
	if !uc.opts.DryRun && len(errs) == 0 {
		report, err := uc.deps.Store.MergeRun(s.runDir, uc.now())
		if err != nil {
			errs = append(errs, fmt.Errorf("merge run: %w", err))
		} else {
			summary = report.Summary
			m.ArchiveArticles.Set(float64(report.ArticlesTotal))
			m.ArchiveFailures.Set(float64(report.FailuresTotal))
			m.Watermark.Set(float64(report.Watermark.Unix()))
		}
	}

	s.mu.Lock()
	s.stats.FinishTime = uc.now().In(entity.SiteLocation)
	s.stats.Archive = &summary
	if len(errs) > 0 {
		s.stats.CloseReason = CloseError
	}
	stats := s.stats
	s.mu.Unlock()

	if len(errs) == 0 {
		m.LastRunSuccess.Set(1)
	} else {
		m.LastRunSuccess.Set(0)
	}

	if !uc.opts.DryRun {
		if err := utils.WriteJSONAtomic(filepath.Join(s.runDir, archive.StatsFile), stats, true); err != nil {
			errs = append(errs, fmt.Errorf("%w: write stats: %w", archive.ErrPersistence, err))
		}
		if err := m.WriteToTextfile(filepath.Join(s.runDir, archive.MetricsFile)); err != nil {
			s.logger.Warn("Failed to write metrics textfile", zap.Error(err))
		}
	}

	s.logger.Info("Crawl finished",
		zap.String("close_reason", stats.CloseReason),
		zap.Int("item_saved_count", stats.ItemSavedCount),
		zap.Int("failed_to_scrape", stats.FailedToScrape),
		zap.Int("duplicates", accStats.Duplicates),
		zap.Int("new_in_ok_archive", summary.NewInOKArchive),
		zap.Int("skipped_ok_duplicates", summary.SkippedOKDuplicates),
		zap.Int("new_in_failed_archive", summary.NewInFailedArchive),
		zap.Int("skipped_fail_duplicates", summary.SkippedFailDuplicates),
		zap.Duration("took", stats.FinishTime.Sub(stats.StartTime)),
	)
	return summary, errors.Join(errs...)
}

// Stats returns the run statistics; complete after Finalize.
func (s *Session) Stats() entity.RunStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func summaryOf(st entity.RunStats) entity.Summary {
	if st.Archive == nil {
		return entity.Summary{}
	}
	return *st.Archive
}
