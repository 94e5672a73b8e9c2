// Package colly_fetcher downloads article pages and sitemap documents with colly.
package colly_fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	colly "github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/pazars/grabeklis/internal/adapter/useragent"
	"github.com/pazars/grabeklis/internal/entity"
	"github.com/pazars/grabeklis/internal/repository"
)

const (
	defaultParallelism = 8
	defaultTimeout     = 30 * time.Second
	// RandomDelayDivisor derives the random jitter from the fixed delay.
	RandomDelayDivisor = 2

	startedAtKey = "started_at"
)

// Options tunes politeness and timeouts.
type Options struct {
	Parallelism   int
	Delay         time.Duration
	Timeout       time.Duration
	RespectRobots bool
}

// Fetcher implements repository.PageFetcher and repository.SitemapSource.
type Fetcher struct {
	opts   Options
	agents *useragent.Pool
	logger *zap.Logger
}

var (
	_ repository.PageFetcher   = (*Fetcher)(nil)
	_ repository.SitemapSource = (*Fetcher)(nil)
)

// New creates a fetcher. Zero options fall back to defaults.
func New(opts Options, agents *useragent.Pool, logger *zap.Logger) *Fetcher {
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if agents == nil {
		agents = useragent.New("")
	}
	return &Fetcher{opts: opts, agents: agents, logger: logger}
}

func (f *Fetcher) newCollector(ctx context.Context, async bool) (*colly.Collector, error) {
	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.Async(async),
	)
	c.IgnoreRobotsTxt = !f.opts.RespectRobots
	c.SetRequestTimeout(f.opts.Timeout)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: f.opts.Parallelism,
		Delay:       f.opts.Delay,
		RandomDelay: f.opts.Delay / RandomDelayDivisor,
	}); err != nil {
		return nil, fmt.Errorf("set limit rule: %w", err)
	}
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", f.agents.Next())
		r.Ctx.Put(startedAtKey, time.Now())
	})
	return c, nil
}

// Fetch downloads every URL from urls. At most twice the parallelism is in
// flight at once, so urls is pulled lazily.
func (f *Fetcher) Fetch(
	ctx context.Context,
	urls iter.Seq[string],
	handle func(*entity.Page),
	onError func(url string, err error),
) error {
	c, err := f.newCollector(ctx, true)
	if err != nil {
		return err
	}

	slots := make(chan struct{}, f.opts.Parallelism*2)
	release := func() { <-slots }

	c.OnResponse(func(r *colly.Response) {
		fetchedAt := time.Now()
		started, ok := r.Ctx.GetAny(startedAtKey).(time.Time)
		if !ok {
			started = fetchedAt
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
		if err != nil {
			onError(r.Request.URL.String(), fmt.Errorf("parse html: %w", err))
			return
		}
		handle(&entity.Page{
			URL:             r.Request.URL.String(),
			Document:        doc,
			DownloadLatency: fetchedAt.Sub(started),
			FetchedAt:       fetchedAt,
		})
	})
	c.OnScraped(func(*colly.Response) { release() })
	c.OnError(func(r *colly.Response, err error) {
		defer release()
		onError(r.Request.URL.String(), classify(r, err))
	})

	for u := range urls {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
		if err := c.Visit(u); err != nil {
			release()
			var visited *colly.AlreadyVisitedError
			if errors.As(err, &visited) {
				continue
			}
			onError(u, classify(nil, err))
		}
	}
	c.Wait()
	return ctx.Err()
}

// Get downloads a sitemap document, transparently inflating gzip bodies.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	c, err := f.newCollector(ctx, false)
	if err != nil {
		return nil, err
	}
	var body []byte
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	var resp *colly.Response
	c.OnError(func(r *colly.Response, _ error) {
		resp = r
	})
	if err := c.Visit(url); err != nil {
		return nil, fmt.Errorf("get %s: %w", url, classify(resp, err))
	}
	return inflate(body)
}

func inflate(body []byte) ([]byte, error) {
	if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
		return body, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("open gzip sitemap: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("inflate sitemap: %w", err)
	}
	return out, nil
}

func classify(r *colly.Response, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", repository.ErrFetchTimeout, err)
	}
	if r != nil && r.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: received status code %d", repository.ErrContentRestricted, r.StatusCode)
	}
	return err
}
