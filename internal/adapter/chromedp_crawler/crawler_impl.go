package chromedp_crawler

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/pazars/grabeklis/internal/adapter/useragent"
	"github.com/pazars/grabeklis/internal/entity"
	"github.com/pazars/grabeklis/internal/repository"
)

const defaultPageLoadTimeout = 30 * time.Second

// ChromedpCrawler renders pages in headless Chrome with a fixed pool of tabs.
type ChromedpCrawler struct {
	workers  int
	timeout  time.Duration
	agents   *useragent.Pool
	execPath string
	logger   *zap.Logger
}

var _ repository.PageFetcher = (*ChromedpCrawler)(nil)

// NewChromedpCrawler creates a fetcher running maxConcurrency browser tabs.
func NewChromedpCrawler(maxConcurrency int, pageLoadTimeout time.Duration, agents *useragent.Pool, logger *zap.Logger) *ChromedpCrawler {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if pageLoadTimeout <= 0 {
		pageLoadTimeout = defaultPageLoadTimeout
	}
	if agents == nil {
		agents = useragent.New("")
	}
	return &ChromedpCrawler{
		workers: maxConcurrency,
		timeout: pageLoadTimeout,
		agents:  agents,
		logger:  logger,
	}
}

// WithExecPath pins the Chrome binary instead of searching PATH.
func (c *ChromedpCrawler) WithExecPath(path string) *ChromedpCrawler {
	c.execPath = path
	return c
}

func (c *ChromedpCrawler) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(c.agents.Next()),
	)
	if c.execPath != "" {
		opts = append(opts, chromedp.ExecPath(c.execPath))
	}
	return opts
}

// Fetch renders every URL from urls using a worker pool that shares one
// browser process.
func (c *ChromedpCrawler) Fetch(
	ctx context.Context,
	urls iter.Seq[string],
	handle func(*entity.Page),
	onError func(url string, err error),
) error {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, c.allocatorOptions()...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(c.logger.Sugar().Debugf))
	defer cancelBrowser()
	if err := chromedp.Run(browserCtx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}

	tasks := make(chan string, c.workers*2)
	var wg sync.WaitGroup
	for range c.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range tasks {
				page, err := c.render(browserCtx, u)
				if err != nil {
					onError(u, err)
					continue
				}
				handle(page)
			}
		}()
	}

	seen := make(map[string]struct{})
feed:
	for u := range urls {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		select {
		case tasks <- u:
		case <-ctx.Done():
			break feed
		}
	}
	close(tasks)
	wg.Wait()
	return ctx.Err()
}

func (c *ChromedpCrawler) render(browserCtx context.Context, url string) (*entity.Page, error) {
	tabCtx, cancel := chromedp.NewContext(browserCtx)
	defer cancel()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, c.timeout)
	defer cancelTimeout()

	var html string
	started := time.Now()
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	fetchedAt := time.Now()
	if err != nil {
		c.logger.Warn("Failed to render page", zap.String("url", url), zap.Error(err))
		if errors.Is(tabCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", repository.ErrFetchTimeout, err)
		}
		return nil, fmt.Errorf("render: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &entity.Page{
		URL:             url,
		Document:        doc,
		DownloadLatency: fetchedAt.Sub(started),
		FetchedAt:       fetchedAt,
	}, nil
}
