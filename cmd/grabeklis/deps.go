package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pazars/grabeklis/internal/adapter/chromedp_crawler"
	"github.com/pazars/grabeklis/internal/adapter/colly_fetcher"
	"github.com/pazars/grabeklis/internal/adapter/filelock"
	"github.com/pazars/grabeklis/internal/adapter/postgres"
	redis_adapter "github.com/pazars/grabeklis/internal/adapter/redis"
	"github.com/pazars/grabeklis/internal/adapter/useragent"
	"github.com/pazars/grabeklis/internal/archive"
	"github.com/pazars/grabeklis/internal/entity"
	"github.com/pazars/grabeklis/internal/extractor"
	"github.com/pazars/grabeklis/internal/localedate"
	"github.com/pazars/grabeklis/internal/repository"
	"github.com/pazars/grabeklis/internal/usecase"
	"github.com/pazars/grabeklis/pkg/metrics"
)

func (a *app) store() (*archive.Store, error) {
	policy, err := archive.ParsePolicy(a.cfg.MergePolicy)
	if err != nil {
		return nil, err
	}
	return archive.NewStore(a.cfg.SpiderDir(), policy, a.logger), nil
}

// runLock guards the spider directory: a Redis lock when REDIS_ADDR is set,
// otherwise a lock file inside the directory.
func (a *app) runLock(ctx context.Context, store *archive.Store) (repository.RunLock, func(), error) {
	if a.cfg.RedisAddr == "" {
		return filelock.New(store.Path(archive.LockFile)), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.logger.Info("Redis connection established", zap.String("addr", a.cfg.RedisAddr))
	return redis_adapter.NewRunLock(rdb, store.Dir(), 0), func() { _ = rdb.Close() }, nil
}

func (a *app) sink(ctx context.Context) (repository.ResultSink, error) {
	if a.cfg.PostgresURL == "" {
		return nil, nil
	}
	s, err := postgres.Connect(ctx, a.cfg.PostgresURL, a.logger)
	if err != nil {
		return nil, err
	}
	a.logger.Info("PostgreSQL connection pool established")
	return s, nil
}

// fetchers returns the page fetcher selected by FETCHER. Sitemaps are always
// downloaded with colly.
func (a *app) fetchers() (repository.PageFetcher, repository.SitemapSource) {
	agents := useragent.New(a.cfg.UserAgent)
	collyFetcher := colly_fetcher.New(colly_fetcher.Options{
		Parallelism: a.cfg.CrawlParallelism,
		Delay:       a.cfg.CrawlDelay,
		Timeout:     a.cfg.CrawlTimeout,
	}, agents, a.logger)

	if a.cfg.Fetcher == "chromedp" {
		return chromedp_crawler.NewChromedpCrawler(a.cfg.CrawlParallelism, a.cfg.CrawlTimeout, agents, a.logger), collyFetcher
	}
	return collyFetcher, collyFetcher
}

func (a *app) extractor() (*extractor.Extractor, error) {
	dates, err := localedate.Riga()
	if err != nil {
		return nil, err
	}
	return extractor.New(dates, a.logger), nil
}

func (a *app) crawlOptions(now time.Time, req usecase.RunRequest) usecase.CrawlOptions {
	opts := usecase.CrawlOptions{
		SitemapURL:     a.cfg.SitemapURL,
		ArticleRule:    a.cfg.ArticleRule,
		MaxItems:       a.cfg.MaxItems,
		DryRun:         a.cfg.DryRun,
		BatchSizeBytes: a.cfg.BatchSizeBytes,
		MidnightGuard:  a.cfg.MidnightGuard,
	}
	if from, ok := a.cfg.StartFrom(now, entity.SiteLocation); ok {
		opts.StartFrom = &from
	}
	if req.MaxItems > 0 {
		opts.MaxItems = req.MaxItems
	}
	if req.DryRun {
		opts.DryRun = true
	}
	return opts
}

// crawlerFactory wires a fresh crawl per run. The release func closes the
// sink and the Redis client opened for it.
func (a *app) crawlerFactory(m *metrics.Metrics) usecase.CrawlerFactory {
	return func(ctx context.Context, req usecase.RunRequest) (usecase.Crawler, func(), error) {
		store, err := a.store()
		if err != nil {
			return nil, nil, err
		}
		ex, err := a.extractor()
		if err != nil {
			return nil, nil, err
		}
		lock, releaseLock, err := a.runLock(ctx, store)
		if err != nil {
			return nil, nil, err
		}
		sink, err := a.sink(ctx)
		if err != nil {
			releaseLock()
			return nil, nil, err
		}
		release := func() {
			if sink != nil {
				sink.Close()
			}
			releaseLock()
		}

		pages, sitemaps := a.fetchers()
		crawler := usecase.NewCrawlUseCase(usecase.Deps{
			Store:     store,
			Fetcher:   pages,
			Sitemaps:  sitemaps,
			Extractor: ex,
			Sink:      sink,
			Lock:      lock,
			Metrics:   m,
			Logger:    a.logger,
		}, a.crawlOptions(time.Now(), req))
		return crawler, release, nil
	}
}

func (a *app) archiveManager(ctx context.Context, locked bool) (usecase.ArchiveManager, func(), error) {
	store, err := a.store()
	if err != nil {
		return nil, nil, err
	}
	if !locked {
		return usecase.NewArchiveManager(store, nil, a.logger), func() {}, nil
	}
	lock, release, err := a.runLock(ctx, store)
	if err != nil {
		return nil, nil, err
	}
	return usecase.NewArchiveManager(store, lock, a.logger), release, nil
}
