package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/pazars/grabeklis/internal/archive"
	"github.com/pazars/grabeklis/internal/entity"
	"github.com/pazars/grabeklis/internal/repository"
)

// Article statuses reported by ArchiveManager.Status.
const (
	StatusArchived = "archived"
	StatusFailed   = "failed"
	StatusNotFound = "not_found"
)

// ArticleStatus describes what the archive knows about one URL.
type ArticleStatus struct {
	URL     string                `json:"url"`
	Status  string                `json:"status"`
	Article *entity.ArticleRecord `json:"article,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// ArchiveManager exposes archive maintenance and queries.
type ArchiveManager interface {
	Merge(ctx context.Context, runID string) (archive.MergeReport, error)
	MergeAll(ctx context.Context) ([]archive.MergeReport, error)
	Rebuild(ctx context.Context) (entity.ArchiveSummary, error)
	PruneFailed(ctx context.Context) (int, error)
	Summary(ctx context.Context) (entity.ArchiveSummary, error)
	Overview(ctx context.Context) (archive.Overview, error)
	Status(ctx context.Context, url string) (*ArticleStatus, error)
}

type archiveUseCase struct {
	store  *archive.Store
	lock   repository.RunLock
	logger *zap.Logger
	now    func() time.Time
}

// NewArchiveManager creates the archive use case. Writes take lock when it is set.
func NewArchiveManager(store *archive.Store, lock repository.RunLock, logger *zap.Logger) ArchiveManager {
	return &archiveUseCase{store: store, lock: lock, logger: logger, now: time.Now}
}

func (uc *archiveUseCase) locked(ctx context.Context, fn func() error) error {
	if uc.lock == nil {
		return fn()
	}
	if err := uc.lock.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		if err := uc.lock.Release(context.WithoutCancel(ctx)); err != nil {
			uc.logger.Warn("Failed to release run lock", zap.Error(err))
		}
	}()
	return fn()
}

func (uc *archiveUseCase) Merge(ctx context.Context, runID string) (archive.MergeReport, error) {
	var report archive.MergeReport
	dir := runID
	if !filepath.IsAbs(dir) && filepath.Dir(dir) == "." {
		dir = uc.store.Path(runID)
	}
	err := uc.locked(ctx, func() error {
		var err error
		report, err = uc.store.MergeRun(dir, uc.now())
		return err
	})
	if err != nil {
		return report, fmt.Errorf("merge %s: %w", runID, err)
	}
	return report, nil
}

func (uc *archiveUseCase) MergeAll(ctx context.Context) ([]archive.MergeReport, error) {
	var reports []archive.MergeReport
	err := uc.locked(ctx, func() error {
		var err error
		reports, err = uc.store.MergeAll(uc.now())
		return err
	})
	return reports, err
}

func (uc *archiveUseCase) Rebuild(ctx context.Context) (entity.ArchiveSummary, error) {
	err := uc.locked(ctx, func() error {
		_, err := uc.store.RebuildHistory()
		return err
	})
	if err != nil {
		return entity.ArchiveSummary{}, err
	}
	return uc.store.Summary()
}

func (uc *archiveUseCase) PruneFailed(ctx context.Context) (int, error) {
	var removed int
	err := uc.locked(ctx, func() error {
		var err error
		removed, err = uc.store.PruneFailed()
		return err
	})
	return removed, err
}

func (uc *archiveUseCase) Summary(_ context.Context) (entity.ArchiveSummary, error) {
	return uc.store.Summary()
}

func (uc *archiveUseCase) Overview(_ context.Context) (archive.Overview, error) {
	return uc.store.Overview(uc.now())
}

// Status looks url up in the success archive first, then in the failures.
func (uc *archiveUseCase) Status(_ context.Context, url string) (*ArticleStatus, error) {
	articles, err := uc.store.LoadArticles()
	if err != nil {
		return nil, err
	}
	for i := range articles {
		if articles[i].URL == url {
			return &ArticleStatus{URL: url, Status: StatusArchived, Article: &articles[i]}, nil
		}
	}

	failures, err := uc.store.LoadFailures()
	if err != nil {
		return nil, err
	}
	for _, f := range failures {
		if f.URL == url {
			return &ArticleStatus{URL: url, Status: StatusFailed, Error: f.Error}, nil
		}
	}
	return &ArticleStatus{URL: url, Status: StatusNotFound}, nil
}
