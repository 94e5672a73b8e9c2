package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pazars/grabeklis/internal/entity"
)

var ErrRunInProgress = errors.New("a crawl is already in progress")

// RunRequest overrides the configured crawl options for one triggered run.
// Zero values keep the configuration.
type RunRequest struct {
	MaxItems int
	DryRun   bool
}

// CrawlerFactory builds a fresh crawler for one run and a release func for
// the resources it opened.
type CrawlerFactory func(ctx context.Context, req RunRequest) (Crawler, func(), error)

// RunState is what RunController.State reports.
type RunState struct {
	Running   bool             `json:"running"`
	StartedAt *time.Time       `json:"started_at,omitempty"`
	Last      *entity.RunStats `json:"last,omitempty"`
	LastError string           `json:"last_error,omitempty"`
}

// RunController runs at most one crawl at a time, on demand or on a schedule.
type RunController interface {
	Submit(ctx context.Context, req RunRequest) error
	RunNow(ctx context.Context, req RunRequest) (entity.RunStats, error)
	State() RunState
	Shutdown(ctx context.Context) error
}

// RunManager is the RunController used by the serve and schedule commands.
type RunManager struct {
	factory CrawlerFactory
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	started time.Time
	cancel  context.CancelFunc
	last    *entity.RunStats
	lastErr string
	wg      sync.WaitGroup
}

// NewRunManager creates a RunManager.
func NewRunManager(factory CrawlerFactory, logger *zap.Logger) *RunManager {
	return &RunManager{factory: factory, logger: logger}
}

func (m *RunManager) begin(ctx context.Context) (context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil, ErrRunInProgress
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.started = time.Now()
	m.cancel = cancel
	m.wg.Add(1)
	return runCtx, nil
}

func (m *RunManager) end(stats entity.RunStats, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancel()
	m.running = false
	m.cancel = nil
	if stats.RunID != "" {
		m.last = &stats
	}
	m.lastErr = ""
	if err != nil {
		m.lastErr = err.Error()
	}
	m.wg.Done()
}

func (m *RunManager) run(ctx context.Context, req RunRequest) (entity.RunStats, error) {
	crawler, release, err := m.factory(ctx, req)
	if err != nil {
		return entity.RunStats{}, err
	}
	defer release()
	return crawler.Run(ctx)
}

// Submit starts a crawl in the background. The run outlives ctx's
// cancellation; it stops on Shutdown.
func (m *RunManager) Submit(ctx context.Context, req RunRequest) error {
	runCtx, err := m.begin(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	go func() {
		stats, err := m.run(runCtx, req)
		if err != nil {
			m.logger.Error("Triggered crawl failed", zap.Error(err))
		}
		m.end(stats, err)
	}()
	return nil
}

// RunNow runs a crawl and waits for it.
func (m *RunManager) RunNow(ctx context.Context, req RunRequest) (entity.RunStats, error) {
	runCtx, err := m.begin(ctx)
	if err != nil {
		return entity.RunStats{}, err
	}
	stats, err := m.run(runCtx, req)
	m.end(stats, err)
	return stats, err
}

// State reports whether a crawl is running and how the last one ended.
func (m *RunManager) State() RunState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := RunState{Running: m.running, Last: m.last, LastError: m.lastErr}
	if m.running {
		started := m.started
		st.StartedAt = &started
	}
	return st
}

// Shutdown cancels a running crawl and waits until it is finalized or ctx ends.
func (m *RunManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
