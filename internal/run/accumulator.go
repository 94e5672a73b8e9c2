// Package run buffers the results of a single crawl and flushes them to batch
// files in the run directory.
package run

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pazars/grabeklis/internal/entity"
)

// RunIDLayout names run directories and batch files (YYYYMMDDHHMMSS).
const RunIDLayout = "20060102150405"

// DefaultThreshold is the default flush size in bytes.
const DefaultThreshold = 1 << 20

var (
	// ErrPersistence marks batch or failure writes that did not reach disk.
	ErrPersistence = errors.New("persist run output")
	// ErrClosed is returned by Add after Close.
	ErrClosed = errors.New("accumulator closed")
)

// Stats reports what the accumulator has seen so far.
type Stats struct {
	Saved      int
	Duplicates int
	Failed     int
	Flushes    int
	Pending    int
}

// Accumulator owns the in-memory state of one run. All methods are safe for
// concurrent use.
type Accumulator struct {
	writer    BatchWriter
	threshold int
	logger    *zap.Logger

	mu           sync.Mutex
	pending      []entity.ArticleRecord
	pendingBytes int
	failures     []entity.FailureRecord
	seen         map[string]struct{}
	claimed      map[string]struct{}
	stats        Stats
	batches      []string
	closed       bool
}

// NewAccumulator creates an accumulator whose seen-set starts with history.
// A threshold <= 0 selects DefaultThreshold.
func NewAccumulator(writer BatchWriter, threshold int, history []string, logger *zap.Logger) *Accumulator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	seen := make(map[string]struct{}, len(history))
	for _, u := range history {
		seen[u] = struct{}{}
	}
	return &Accumulator{
		writer:    writer,
		threshold: threshold,
		logger:    logger,
		seen:      seen,
		claimed:   make(map[string]struct{}),
	}
}

// Claim marks url as scheduled for this run. It returns false when the URL is
// already archived or was claimed before, so a page is fetched at most once.
func (a *Accumulator) Claim(url string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.seen[url]; ok {
		return false
	}
	if _, ok := a.claimed[url]; ok {
		return false
	}
	a.claimed[url] = struct{}{}
	return true
}

// Seen reports whether a successful record for url is archived or buffered.
func (a *Accumulator) Seen(url string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.seen[url]
	return ok
}

// Add records one extraction result. Articles whose URL was already seen are
// counted as duplicates and dropped. Reaching the size threshold flushes the
// pending batch before Add returns.
func (a *Accumulator) Add(result entity.Result) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}

	switch {
	case result.Failure != nil:
		a.failures = append(a.failures, *result.Failure)
		a.stats.Failed++
		return nil
	case result.Article == nil:
		return errors.New("empty result")
	}

	art := *result.Article
	if _, dup := a.seen[art.URL]; dup {
		a.stats.Duplicates++
		a.logger.Debug("Skipping already seen article", zap.String("url", art.URL))
		return nil
	}
	a.seen[art.URL] = struct{}{}
	a.pending = append(a.pending, art)
	a.pendingBytes += art.Size()
	a.stats.Saved++

	if a.pendingBytes >= a.threshold {
		return a.flushLocked()
	}
	return nil
}

// Flush writes the pending articles, if any, as one batch.
func (a *Accumulator) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flushLocked()
}

func (a *Accumulator) flushLocked() error {
	if len(a.pending) == 0 {
		return nil
	}
	start := time.Now()
	path, err := a.writer.WriteBatch(a.pending)
	if err != nil {
		return fmt.Errorf("%w: batch of %d articles: %w", ErrPersistence, len(a.pending), err)
	}
	a.logger.Info("Flushed article batch",
		zap.String("path", path),
		zap.Int("articles", len(a.pending)),
		zap.Int("bytes", a.pendingBytes),
		zap.Duration("took", time.Since(start)),
	)
	if path != "" {
		a.batches = append(a.batches, path)
	}
	a.stats.Flushes++
	a.pending = nil
	a.pendingBytes = 0
	return nil
}

// Close flushes the remainder and writes the failure list. Further Adds fail.
// Close is idempotent.
func (a *Accumulator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	if err := a.flushLocked(); err != nil {
		return err
	}
	failures := a.failures
	if failures == nil {
		failures = []entity.FailureRecord{}
	}
	if _, err := a.writer.WriteFailures(failures); err != nil {
		return fmt.Errorf("%w: %d failures: %w", ErrPersistence, len(failures), err)
	}
	a.closed = true
	return nil
}

// Stats returns a snapshot of the counters.
func (a *Accumulator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.stats
	s.Pending = len(a.pending)
	return s
}

// Batches lists the files written so far.
func (a *Accumulator) Batches() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.batches...)
}
